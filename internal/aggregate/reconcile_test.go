package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"escrowScope/internal/model"
	"escrowScope/internal/storage/memory"
)

func TestReconcilerRunOnce(t *testing.T) {
	store := memory.New()
	seed(t, store, model.ChainBase, "1", "agent-a", 1_000, now, model.StatusActive, model.StatusCompleted)
	seed(t, store, model.ChainBase, "2", "agent-a", 500, now, model.StatusActive)

	before, err := store.GetAgentStats(context.Background(), model.ChainBase, "agent-a")
	require.NoError(t, err)

	n, err := NewReconciler(store, 0, nil).RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)

	after, err := store.GetAgentStats(context.Background(), model.ChainBase, "agent-a")
	require.NoError(t, err)
	require.Equal(t, before.TotalEscrows, after.TotalEscrows)
	require.Equal(t, before.CompletedEscrows, after.CompletedEscrows)
	require.Equal(t, before.AvgCompletionTime, after.AvgCompletionTime)
}

func TestReconcilerDisabledReturnsImmediately(t *testing.T) {
	done := make(chan error, 1)
	go func() { done <- NewReconciler(memory.New(), 0, nil).Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("disabled reconciler did not return")
	}
}

func TestReconcilerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewReconciler(memory.New(), 10*time.Millisecond, nil).Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
