package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"escrowScope/internal/metrics"
	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

// Batch is what a stream delivers at once. Cursor is the position covered
// once every event in the batch is applied; a zero cursor is not saved.
type Batch struct {
	Events []model.Event
	Errors []model.DecodeError
	Cursor model.Cursor
}

// Sink receives batches from a stream. A non-nil error ends the session.
type Sink func(ctx context.Context, batch Batch) error

// Range bounds an explicit backfill. On Base From and To are inclusive
// block numbers, To 0 meaning the confirmed head. On Solana Until is the
// newest signature already applied and From the oldest slot to scan.
type Range struct {
	From  uint64
	To    uint64
	Until string
}

// Stream is one chain's event source.
type Stream interface {
	Chain() model.Chain
	// Stream delivers live batches until ctx ends or the transport fails.
	// When from is set, history after it is delivered first.
	Stream(ctx context.Context, from *model.Cursor, sink Sink) error
	Backfill(ctx context.Context, rng Range, sink Sink) error
}

// RunConfig holds runtime settings for a listener.
type RunConfig struct {
	CursorName    string
	CursorEnabled bool
	RetryBackoff  time.Duration
	MaxBackoff    time.Duration
}

// Runner keeps one chain stream alive and applies what it delivers.
type Runner struct {
	cfg        RunConfig
	stream     Stream
	dispatcher *Dispatcher
	cursors    storage.CursorStore
	journal    *storage.Journal
	logger     *zap.Logger
	metrics    *metrics.Listener
}

// NewRunner builds a Runner with its dependencies. cursors may be nil when
// cursor persistence is disabled.
func NewRunner(cfg RunConfig, stream Stream, dispatcher *Dispatcher, cursors storage.CursorStore, journal *storage.Journal, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CursorName == "" {
		cfg.CursorName = string(stream.Chain())
	}
	if cursors == nil {
		cfg.CursorEnabled = false
	}
	return &Runner{
		cfg:        cfg,
		stream:     stream,
		dispatcher: dispatcher,
		cursors:    cursors,
		journal:    journal,
		logger:     logger.With(zap.String("chain", string(stream.Chain()))),
		metrics:    metrics.NewListener(stream.Chain()),
	}
}

// Run streams until ctx is cancelled, reconnecting with backoff whenever a
// session ends. Failures never escape, so one chain cannot stop another.
func (r *Runner) Run(ctx context.Context) error {
	bo := newBackoff(r.cfg.RetryBackoff, r.cfg.MaxBackoff)
	for {
		started := time.Now()
		err := r.session(ctx)
		if ctx.Err() != nil {
			r.logger.Info("listener stopped")
			return nil
		}
		if err == nil {
			err = errors.New("stream ended")
		}
		if time.Since(started) > bo.max {
			bo.reset()
		}
		delay := bo.next()
		r.metrics.ObserveReconnect()
		r.logger.Warn("stream session ended, reconnecting", zap.Error(err), zap.Duration("backoff", delay))
		if err := sleep(ctx, delay); err != nil {
			r.logger.Info("listener stopped")
			return nil
		}
	}
}

func (r *Runner) session(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("stream panic: %v", p)
		}
	}()

	var from *model.Cursor
	if r.cfg.CursorEnabled {
		cur, ok, err := r.cursors.LoadCursor(ctx, r.cfg.CursorName)
		if err != nil {
			return fmt.Errorf("load cursor: %w", err)
		}
		if ok && !cur.IsZero() {
			from = &cur
			r.logger.Info("resume from cursor", zap.Uint64("position", cur.Position), zap.String("ref", cur.Ref))
		}
	}
	if from == nil {
		r.logger.Info("subscribe from head")
	}
	return r.stream.Stream(ctx, from, r.handle)
}

// Backfill runs an explicit historical scan through the same apply path.
// It does not move the live cursor.
func (r *Runner) Backfill(ctx context.Context, rng Range) error {
	var applyErrs []error
	err := r.stream.Backfill(ctx, rng, func(ctx context.Context, batch Batch) error {
		if err := r.apply(ctx, batch); err != nil {
			applyErrs = append(applyErrs, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return errors.Join(applyErrs...)
}

func (r *Runner) handle(ctx context.Context, batch Batch) error {
	if err := r.apply(ctx, batch); err != nil {
		if r.cfg.CursorEnabled {
			// Restart from the last saved cursor so the failed writes are retried.
			return fmt.Errorf("apply batch: %w", err)
		}
		r.logger.Error("batch applied with errors", zap.Error(err))
		return nil
	}
	if r.cfg.CursorEnabled && !batch.Cursor.IsZero() {
		cur := batch.Cursor
		cur.Chain = r.stream.Chain()
		cur.UpdatedAt = time.Now().UTC()
		err := r.cursors.SaveCursor(ctx, r.cfg.CursorName, cur)
		r.metrics.ObserveCursorSave(err, cur.Position)
		if err != nil {
			r.logger.Warn("save cursor failed", zap.Uint64("position", cur.Position), zap.Error(err))
		}
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, batch Batch) error {
	started := time.Now()
	for _, de := range batch.Errors {
		r.logger.Warn("skip undecodable event",
			zap.Uint64("position", de.Position),
			zap.String("tx", de.TxRef),
			zap.Int("index", de.Index),
			zap.String("name", de.Name),
			zap.String("error", de.Error),
		)
	}
	r.metrics.ObserveDecodeErrors(len(batch.Errors))
	if len(batch.Events) == 0 {
		return nil
	}

	if err := r.journal.Append(batch.Events); err != nil {
		r.logger.Warn("journal append failed", zap.Error(err))
	}

	err := r.dispatcher.Apply(ctx, batch.Events)
	r.metrics.ObserveBatch(err, started)
	if err == nil {
		r.logger.Debug("batch applied", zap.Int("events", len(batch.Events)), zap.Uint64("position", batch.Cursor.Position))
	}
	return err
}
