package listener

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"escrowScope/internal/metrics"
	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

// Applier writes one canonical event to the projection store.
type Applier interface {
	Apply(ctx context.Context, ev model.Event) (storage.Result, error)
}

type job struct {
	ctx   context.Context
	event model.Event
	done  func(error)
}

// Dispatcher fans events out to a fixed set of workers. Events of the same
// escrow always land on the same worker, so their relative order holds while
// different escrows are applied concurrently.
type Dispatcher struct {
	applier Applier
	queues  []chan job
	logger  *zap.Logger
	metrics *metrics.Listener
	wg      sync.WaitGroup
	once    sync.Once
}

func NewDispatcher(applier Applier, workers, queueSize int, m *metrics.Listener, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewListener("")
	}
	d := &Dispatcher{
		applier: applier,
		queues:  make([]chan job, workers),
		logger:  logger,
		metrics: m,
	}
	for i := range d.queues {
		d.queues[i] = make(chan job, queueSize)
		d.wg.Add(1)
		go d.work(d.queues[i])
	}
	return d
}

// Close stops the workers after their queues drain.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		for _, q := range d.queues {
			close(q)
		}
	})
	d.wg.Wait()
}

func (d *Dispatcher) work(queue <-chan job) {
	defer d.wg.Done()
	for j := range queue {
		j.done(d.apply(j.ctx, j.event))
	}
}

func (d *Dispatcher) apply(ctx context.Context, ev model.Event) error {
	meta := ev.Meta()
	result, err := d.applier.Apply(ctx, ev)
	if err != nil {
		d.metrics.ObserveEvent(ev.Kind(), "error")
		d.logger.Error("apply event failed",
			zap.String("kind", string(ev.Kind())),
			zap.String("escrow", meta.EscrowID),
			zap.String("ref", meta.Ref),
			zap.Error(err),
		)
		return fmt.Errorf("%s %s: %w", ev.Kind(), meta.Ref, err)
	}
	d.metrics.ObserveEvent(ev.Kind(), result.String())
	return nil
}

// Apply blocks until every event has been applied. A failed write does not
// stop the rest of the batch; all failures are joined into the returned error.
func (d *Dispatcher) Apply(ctx context.Context, events []model.Event) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	done := func(err error) {
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
		wg.Done()
	}

	for _, ev := range events {
		q := d.queues[d.shard(ev.Meta())]
		wg.Add(1)
		select {
		case q <- job{ctx: ctx, event: ev, done: done}:
		case <-ctx.Done():
			wg.Done()
			wg.Wait()
			return ctx.Err()
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (d *Dispatcher) shard(meta model.EventMeta) int {
	if len(d.queues) == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(meta.Key().String()))
	return int(h.Sum32() % uint32(len(d.queues)))
}
