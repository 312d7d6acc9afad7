// Package projection maps canonical escrow events onto projection store
// writes. It is the only place that knows which event touches which rows.
package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

// disputeNamespace seeds name-based dispute ids, so a redelivered
// DisputeRaised event maps to the row it created the first time.
var disputeNamespace = uuid.MustParse("5f0f8a6e-4c1b-4e8e-9a53-2b7d3c9e1a40")

// DisputeID is the deterministic id of the dispute opened by an event.
func DisputeID(chain model.Chain, eventRef string) string {
	return uuid.NewSHA1(disputeNamespace, []byte(string(chain)+"|"+eventRef)).String()
}

// Projector applies events through a storage.Writer.
type Projector struct {
	store  storage.Writer
	logger *zap.Logger
}

func NewProjector(store storage.Writer, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{store: store, logger: logger}
}

// Apply writes one event. Every write is an idempotent upsert, so applying
// the same event again returns storage.Unchanged and leaves state as is.
func (p *Projector) Apply(ctx context.Context, ev model.Event) (storage.Result, error) {
	switch e := ev.(type) {
	case model.Created:
		return p.created(ctx, e)
	case model.Accepted:
		return p.status(ctx, e.EventMeta, model.StatusActive, e.AcceptedAt)
	case model.ProofSubmitted:
		return p.proof(ctx, e)
	case model.Completed:
		return p.status(ctx, e.EventMeta, model.StatusCompleted, e.CompletedAt)
	case model.Cancelled:
		return p.status(ctx, e.EventMeta, model.StatusCancelled, e.CancelledAt)
	case model.Expired:
		return p.status(ctx, e.EventMeta, model.StatusExpired, e.ExpiredAt)
	case model.DisputeRaised:
		return p.disputeRaised(ctx, e)
	case model.DisputeResolved:
		return p.disputeResolved(ctx, e)
	case model.ConfigChanged:
		cfg := e.Config
		cfg.Chain = e.Chain
		if cfg.UpdatedAt.IsZero() {
			cfg.UpdatedAt = e.Timestamp
		}
		if err := p.store.PutProtocolConfig(ctx, cfg); err != nil {
			return storage.Rejected, fmt.Errorf("put protocol config: %w", err)
		}
		return storage.Applied, nil
	default:
		return storage.Rejected, fmt.Errorf("unsupported event %T", ev)
	}
}

func (p *Projector) created(ctx context.Context, e model.Created) (storage.Result, error) {
	escrow := model.Escrow{
		Chain:            e.Chain,
		ID:               e.EscrowID,
		Client:           e.Client,
		Provider:         e.Provider,
		Arbitrator:       e.Arbitrator,
		Token:            e.Token,
		Amount:           e.Amount,
		ProtocolFeeBps:   e.ProtocolFeeBps,
		ArbitratorFeeBps: e.ArbitratorFeeBps,
		TaskHash:         e.TaskHash,
		Verification:     e.Verification,
		CreatedAt:        e.CreatedAt,
		Deadline:         e.Deadline,
		GracePeriod:      e.GracePeriod,
		Status:           model.StatusAwaitingProvider,
		CreatedTx:        e.TxRef,
		CreatedPosition:  e.Position,
		UpdatedAt:        e.CreatedAt,
	}
	if escrow.CreatedAt.IsZero() {
		escrow.CreatedAt = e.Timestamp
		escrow.UpdatedAt = e.Timestamp
	}
	res, err := p.store.InsertEscrow(ctx, escrow)
	if err != nil {
		return storage.Rejected, fmt.Errorf("insert escrow %s: %w", e.Key(), err)
	}
	if res == storage.Unchanged {
		p.logger.Debug("escrow already indexed", zap.String("escrow", e.Key().String()), zap.String("ref", e.Ref))
	}
	return res, nil
}

func (p *Projector) status(ctx context.Context, meta model.EventMeta, to model.Status, at time.Time) (storage.Result, error) {
	if at.IsZero() {
		at = meta.Timestamp
	}
	res, current, err := p.store.UpdateStatus(ctx, storage.StatusUpdate{
		Key:      meta.Key(),
		To:       to,
		At:       at,
		EventRef: meta.Ref,
	})
	if errors.Is(err, storage.ErrNotFound) {
		// Created was never indexed, e.g. it fell into an outage window.
		// A backfill over that range repairs it.
		p.logger.Warn("status update for unknown escrow",
			zap.String("escrow", meta.Key().String()),
			zap.String("status", string(to)),
			zap.String("ref", meta.Ref),
		)
		return storage.Rejected, nil
	}
	if err != nil {
		return storage.Rejected, fmt.Errorf("update status %s -> %s: %w", meta.Key(), to, err)
	}
	if res == storage.Rejected {
		p.logger.Warn("status regression rejected",
			zap.String("escrow", meta.Key().String()),
			zap.String("current", string(current)),
			zap.String("incoming", string(to)),
			zap.String("ref", meta.Ref),
		)
	}
	return res, nil
}

func (p *Projector) proof(ctx context.Context, e model.ProofSubmitted) (storage.Result, error) {
	statusRes, err := p.status(ctx, e.EventMeta, model.StatusProofSubmitted, e.SubmittedAt)
	if err != nil {
		return statusRes, err
	}
	proofRes, err := p.store.AppendProof(ctx, model.Proof{
		Chain:       e.Chain,
		EscrowID:    e.EscrowID,
		EventRef:    e.Ref,
		Submitter:   e.Provider,
		Type:        e.ProofType,
		Payload:     e.Payload,
		SubmittedAt: e.SubmittedAt,
	})
	if err != nil {
		return storage.Rejected, fmt.Errorf("append proof %s: %w", e.Key(), err)
	}
	return merge(statusRes, proofRes), nil
}

func (p *Projector) disputeRaised(ctx context.Context, e model.DisputeRaised) (storage.Result, error) {
	statusRes, err := p.status(ctx, e.EventMeta, model.StatusDisputed, e.RaisedAt)
	if err != nil {
		return statusRes, err
	}
	raisedAt := e.RaisedAt
	if raisedAt.IsZero() {
		raisedAt = e.Timestamp
	}
	disputeRes, err := p.store.InsertDispute(ctx, model.Dispute{
		ID:       DisputeID(e.Chain, e.Ref),
		Chain:    e.Chain,
		EscrowID: e.EscrowID,
		EventRef: e.Ref,
		RaisedBy: e.RaisedBy,
		RaisedAt: raisedAt,
	})
	if err != nil {
		return storage.Rejected, fmt.Errorf("insert dispute %s: %w", e.Key(), err)
	}
	return merge(statusRes, disputeRes), nil
}

func (p *Projector) disputeResolved(ctx context.Context, e model.DisputeResolved) (storage.Result, error) {
	statusRes, err := p.status(ctx, e.EventMeta, model.StatusResolved, e.ResolvedAt)
	if err != nil {
		return statusRes, err
	}
	resolvedAt := e.ResolvedAt
	if resolvedAt.IsZero() {
		resolvedAt = e.Timestamp
	}
	disputeRes, err := p.store.ResolveDispute(ctx, model.Resolution{
		Key:        e.Key(),
		Arbitrator: e.Arbitrator,
		Ruling:     e.Ruling,
		ResolvedAt: resolvedAt,
		TxRef:      e.TxRef,
	})
	if errors.Is(err, storage.ErrNotFound) {
		p.logger.Warn("resolution without dispute row", zap.String("escrow", e.Key().String()), zap.String("ref", e.Ref))
		return statusRes, nil
	}
	if err != nil {
		return storage.Rejected, fmt.Errorf("resolve dispute %s: %w", e.Key(), err)
	}
	return merge(statusRes, disputeRes), nil
}

// merge reports Applied when any write changed state.
func merge(results ...storage.Result) storage.Result {
	out := storage.Unchanged
	for _, r := range results {
		switch r {
		case storage.Applied:
			return storage.Applied
		case storage.Rejected:
			out = storage.Rejected
		}
	}
	return out
}
