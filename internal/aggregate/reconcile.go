package aggregate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"escrowScope/internal/storage"
)

// Reconciler periodically re-derives the agent stats cache from escrow rows,
// correcting drift in the incremental counters.
type Reconciler struct {
	store    storage.Reconciler
	interval time.Duration
	logger   *zap.Logger
}

func NewReconciler(store storage.Reconciler, interval time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, interval: interval, logger: logger}
}

// RunOnce rebuilds the cache and returns the number of agent rows written.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	started := time.Now()
	n, err := r.store.RebuildAgentStats(ctx)
	if err != nil {
		return 0, err
	}
	r.logger.Info("agent stats rebuilt", zap.Int("agents", n), zap.Duration("took", time.Since(started)))
	return n, nil
}

// Run rebuilds on every interval tick until ctx ends. A non-positive
// interval disables the job.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("agent stats rebuild failed", zap.Error(err))
			}
		}
	}
}
