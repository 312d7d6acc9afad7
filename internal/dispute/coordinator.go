// Package dispute drives pending disputes from case assembly through the
// reasoner to on-chain settlement.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"escrowScope/internal/metrics"
	"escrowScope/internal/model"
	"escrowScope/internal/resolver"
)

const (
	defaultInterval = 30 * time.Second
	defaultBatch    = 20
)

// Config holds coordinator settings.
type Config struct {
	Interval       time.Duration
	Threshold      float64
	Batch          int
	MaxFailures    int
	ResolveTimeout time.Duration
}

// Coordinator polls for undecided disputes. Each dispute is handled in its
// own goroutine so a slow confirmation does not hold up the next cycle.
type Coordinator struct {
	cfg       Config
	store     Store
	reasoner  Reasoner
	resolvers map[model.Chain]Resolver
	metrics   Metrics
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

func NewCoordinator(cfg Config, store Store, reasoner Reasoner, resolvers []Resolver, m Metrics, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewCoordinator()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Batch <= 0 {
		cfg.Batch = defaultBatch
	}
	byChain := make(map[model.Chain]Resolver, len(resolvers))
	for _, r := range resolvers {
		byChain[r.Chain()] = r
	}
	return &Coordinator{
		cfg:       cfg,
		store:     store,
		reasoner:  reasoner,
		resolvers: byChain,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		inFlight:  make(map[string]struct{}),
	}
}

// Run scans once immediately and then on every interval until ctx is done.
// It returns after in-flight resolutions have finished.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("dispute coordinator started",
		zap.Duration("interval", c.cfg.Interval),
		zap.Float64("threshold", c.cfg.Threshold),
		zap.Int("resolvers", len(c.resolvers)),
	)
	defer c.Wait()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := c.RunOnce(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("dispute cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			c.logger.Info("dispute coordinator stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce starts a resolution for every pending dispute not already being
// handled and returns how many it started.
func (c *Coordinator) RunOnce(ctx context.Context) (int, error) {
	started := time.Now()
	pending, err := c.store.PendingDisputes(ctx, c.cfg.Batch)
	c.metrics.ObserveCycle(err, started)
	if err != nil {
		return 0, fmt.Errorf("pending disputes: %w", err)
	}

	launched := 0
	for _, d := range pending {
		if !c.claim(d.ID) {
			continue
		}
		launched++
		c.wg.Add(1)
		go func(d model.Dispute) {
			defer c.wg.Done()
			defer c.release(d.ID)
			c.handle(ctx, d)
		}(d)
	}
	if launched > 0 {
		c.logger.Debug("dispute cycle", zap.Int("pending", len(pending)), zap.Int("started", launched))
	}
	return launched, nil
}

// Wait blocks until every started resolution has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) claim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inFlight[id]; ok {
		return false
	}
	c.inFlight[id] = struct{}{}
	return true
}

func (c *Coordinator) release(id string) {
	c.mu.Lock()
	delete(c.inFlight, id)
	c.mu.Unlock()
}

func (c *Coordinator) handle(ctx context.Context, d model.Dispute) {
	logger := c.logger.With(
		zap.String("dispute", d.ID),
		zap.String("chain", string(d.Chain)),
		zap.String("escrow", d.EscrowID),
	)

	packet, err := buildCase(ctx, c.store, d)
	if err != nil {
		if errors.Is(err, ErrPermanent) {
			c.fail(ctx, logger, d, err, true)
			return
		}
		logger.Warn("assemble case failed", zap.Error(err))
		return
	}

	verdict, err := c.reasoner.Decide(ctx, packet)
	if err != nil {
		c.metrics.ObserveVerdict(d.Chain, metrics.OutcomeReasonerErr)
		logger.Warn("reasoner failed", zap.Error(err))
		return
	}
	if verdict.Confidence < c.cfg.Threshold {
		c.metrics.ObserveVerdict(d.Chain, metrics.OutcomeBelow)
		logger.Info("verdict below threshold, left pending",
			zap.String("ruling", string(verdict.Ruling.Kind)),
			zap.Float64("confidence", verdict.Confidence),
			zap.Float64("threshold", c.cfg.Threshold),
		)
		return
	}
	if err := verdict.Ruling.Validate(); err != nil {
		c.fail(ctx, logger, d, err, true)
		return
	}

	res, ok := c.resolvers[d.Chain]
	if !ok {
		c.metrics.ObserveVerdict(d.Chain, metrics.OutcomeNoResolver)
		logger.Warn("no resolver configured for chain")
		return
	}

	req := resolver.Request{
		Chain:        d.Chain,
		EscrowID:     d.EscrowID,
		Client:       packet.Client,
		Provider:     packet.Provider,
		Token:        packet.Token,
		FeeRecipient: packet.feeRecipient,
		Ruling:       verdict.Ruling,
	}
	resolveCtx := ctx
	if c.cfg.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		resolveCtx, cancel = context.WithTimeout(ctx, c.cfg.ResolveTimeout)
		defer cancel()
	}
	receipt, err := res.Resolve(resolveCtx, req)
	if err != nil {
		c.fail(ctx, logger, d, err, resolver.IsPermanent(err) || errors.Is(err, ErrPermanent))
		return
	}

	// The settlement is final on chain, so the mark must land even when
	// shutdown has begun.
	markCtx := context.WithoutCancel(ctx)
	if _, err := c.store.MarkDisputeSubmitted(markCtx, d.ID, verdict, receipt.TxRef, c.now()); err != nil {
		logger.Error("mark dispute submitted failed", zap.String("tx", receipt.TxRef), zap.Error(err))
		return
	}
	c.metrics.ObserveVerdict(d.Chain, metrics.OutcomeSubmitted)
	logger.Info("dispute resolved on chain",
		zap.String("ruling", string(verdict.Ruling.Kind)),
		zap.Float64("confidence", verdict.Confidence),
		zap.String("tx", receipt.TxRef),
	)
}

func (c *Coordinator) fail(ctx context.Context, logger *zap.Logger, d model.Dispute, cause error, permanent bool) {
	outcome := metrics.OutcomeSubmitFailed
	if permanent {
		outcome = metrics.OutcomePermanent
	}
	c.metrics.ObserveVerdict(d.Chain, outcome)
	logger.Warn("dispute resolution failed", zap.Bool("permanent", permanent), zap.Error(cause))

	if err := c.store.RecordDisputeFailure(context.WithoutCancel(ctx), d.ID, cause.Error(), c.cfg.MaxFailures, permanent); err != nil {
		logger.Error("record dispute failure failed", zap.Error(err))
	}
}
