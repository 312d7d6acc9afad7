package listener

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"escrowScope/internal/decoder"
	"escrowScope/internal/model"
	"escrowScope/internal/storage/memory"
)

type scriptedStream struct {
	mu       sync.Mutex
	sessions []*model.Cursor
	script   []func(ctx context.Context, sink Sink) error
	idle     chan struct{}
	once     sync.Once
}

func newScriptedStream(script ...func(ctx context.Context, sink Sink) error) *scriptedStream {
	return &scriptedStream{script: script, idle: make(chan struct{})}
}

func (s *scriptedStream) Chain() model.Chain { return model.ChainBase }

func (s *scriptedStream) Stream(ctx context.Context, from *model.Cursor, sink Sink) error {
	s.mu.Lock()
	idx := len(s.sessions)
	var seen *model.Cursor
	if from != nil {
		c := *from
		seen = &c
	}
	s.sessions = append(s.sessions, seen)
	s.mu.Unlock()

	if idx < len(s.script) {
		return s.script[idx](ctx, sink)
	}
	s.once.Do(func() { close(s.idle) })
	<-ctx.Done()
	return ctx.Err()
}

func (s *scriptedStream) Backfill(ctx context.Context, _ Range, sink Sink) error {
	return sink(ctx, Batch{Events: []model.Event{accepted("9", "bf-1")}})
}

func (s *scriptedStream) seen() []*model.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.Cursor(nil), s.sessions...)
}

func deliver(batches ...Batch) func(ctx context.Context, sink Sink) error {
	return func(ctx context.Context, sink Sink) error {
		for _, b := range batches {
			if err := sink(ctx, b); err != nil {
				return err
			}
		}
		return errors.New("connection reset")
	}
}

func runUntilIdle(t *testing.T, r *Runner, stream *scriptedStream) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-stream.idle:
	case <-time.After(5 * time.Second):
		t.Fatalf("stream never reached idle session")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestRunnerResumesFromSavedCursor(t *testing.T) {
	applier := newRecordingApplier()
	dispatcher := NewDispatcher(applier, 2, 4, nil, nil)
	defer dispatcher.Close()
	cursors := memory.New()

	stream := newScriptedStream(
		deliver(Batch{Events: []model.Event{accepted("1", "r-1")}, Cursor: model.Cursor{Position: 10}}),
		deliver(
			Batch{Errors: []model.DecodeError{{Chain: model.ChainBase, Position: 11, Error: "bad"}}},
			Batch{Events: []model.Event{accepted("1", "r-2")}, Cursor: model.Cursor{Position: 11}},
		),
	)
	r := NewRunner(RunConfig{CursorEnabled: true, RetryBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
		stream, dispatcher, cursors, nil, zap.NewNop())

	runUntilIdle(t, r, stream)

	sessions := stream.seen()
	require.GreaterOrEqual(t, len(sessions), 3)
	require.Nil(t, sessions[0])
	require.Equal(t, uint64(10), sessions[1].Position)
	require.Equal(t, uint64(11), sessions[2].Position)
	require.Equal(t, []string{"r-1", "r-2"}, applier.refs("1"))

	cur, ok, err := cursors.LoadCursor(context.Background(), "base")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.ChainBase, cur.Chain)
}

func TestRunnerHoldsCursorOnApplyFailure(t *testing.T) {
	applier := newRecordingApplier()
	applier.failOn = "f-1"
	dispatcher := NewDispatcher(applier, 1, 4, nil, nil)
	defer dispatcher.Close()
	cursors := memory.New()

	stream := newScriptedStream(
		deliver(Batch{Events: []model.Event{accepted("1", "f-1"), accepted("2", "ok-1")}, Cursor: model.Cursor{Position: 5}}),
	)
	r := NewRunner(RunConfig{CursorEnabled: true, RetryBackoff: time.Millisecond}, stream, dispatcher, cursors, nil, nil)

	runUntilIdle(t, r, stream)

	sessions := stream.seen()
	require.Nil(t, sessions[1], "failed batch must not advance the cursor")
	require.Equal(t, []string{"ok-1"}, applier.refs("2"))
}

func TestRunnerWithoutCursorResumesFromHead(t *testing.T) {
	applier := newRecordingApplier()
	dispatcher := NewDispatcher(applier, 1, 4, nil, nil)
	defer dispatcher.Close()

	stream := newScriptedStream(
		deliver(Batch{Events: []model.Event{accepted("1", "h-1")}, Cursor: model.Cursor{Position: 5}}),
	)
	r := NewRunner(RunConfig{CursorEnabled: true, RetryBackoff: time.Millisecond}, stream, dispatcher, nil, nil, nil)

	runUntilIdle(t, r, stream)
	require.Nil(t, stream.seen()[1])
}

func TestRunnerRecoversFromPanic(t *testing.T) {
	dispatcher := NewDispatcher(newRecordingApplier(), 1, 4, nil, nil)
	defer dispatcher.Close()

	stream := newScriptedStream(func(context.Context, Sink) error {
		panic("decoder bug")
	})
	r := NewRunner(RunConfig{RetryBackoff: time.Millisecond}, stream, dispatcher, nil, nil, nil)

	runUntilIdle(t, r, stream)
	require.Len(t, stream.seen(), 2)
}

func TestRunnerBackfill(t *testing.T) {
	applier := newRecordingApplier()
	dispatcher := NewDispatcher(applier, 1, 4, nil, nil)
	defer dispatcher.Close()
	cursors := memory.New()

	r := NewRunner(RunConfig{CursorEnabled: true}, newScriptedStream(), dispatcher, cursors, nil, nil)
	require.NoError(t, r.Backfill(context.Background(), Range{From: 1}))
	require.Equal(t, []string{"bf-1"}, applier.refs("9"))

	_, ok, err := cursors.LoadCursor(context.Background(), "base")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunnerDialFailureDoesNotStopOtherChain(t *testing.T) {
	dec, err := decoder.NewEVMDecoder(baseContract)
	require.NoError(t, err)
	dead := &unreachableEVM{}
	deadDispatcher := NewDispatcher(newRecordingApplier(), 1, 4, nil, nil)
	defer deadDispatcher.Close()
	deadRunner := NewRunner(RunConfig{RetryBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
		NewBaseStream(BaseConfig{}, dead, dec, nil), deadDispatcher, nil, nil, nil)

	applier := newRecordingApplier()
	dispatcher := NewDispatcher(applier, 1, 4, nil, nil)
	defer dispatcher.Close()
	live := newScriptedStream(deliver(Batch{Events: []model.Event{accepted("1", "live-1")}, Cursor: model.Cursor{Position: 3}}))
	liveRunner := NewRunner(RunConfig{RetryBackoff: time.Millisecond}, live, dispatcher, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, r := range []*Runner{deadRunner, liveRunner} {
		wg.Add(1)
		go func(r *Runner) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				t.Errorf("run: %v", err)
			}
		}(r)
	}

	select {
	case <-live.idle:
	case <-time.After(5 * time.Second):
		t.Fatalf("live stream never reached idle session")
	}
	require.Eventually(t, func() bool { return dead.dials.Load() >= 3 }, 5*time.Second, time.Millisecond,
		"unreachable endpoint should be redialed with backoff")
	cancel()
	wg.Wait()

	require.Equal(t, []string{"live-1"}, applier.refs("1"))
}
