package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/db":    "pgx5://u:p@localhost:5432/db",
		"postgresql://localhost/db":           "pgx5://localhost/db",
		"pgx5://localhost/db?sslmode=disable": "pgx5://localhost/db?sslmode=disable",
	}
	for in, want := range cases {
		require.Equal(t, want, migrateURL(in), in)
	}
}

func TestLimitArg(t *testing.T) {
	require.Nil(t, limitArg(0))
	require.Nil(t, limitArg(-1))
	require.Equal(t, 25, limitArg(25))
}

// openTestStore connects to ESCROW_TEST_PG_DSN and resets every table.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("ESCROW_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("ESCROW_TEST_PG_DSN not set")
	}
	_, err := Migrate(dsn)
	require.NoError(t, err)

	ctx := context.Background()
	store, err := NewStore(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	_, err = store.pool.Exec(ctx, `TRUNCATE escrows, tasks, proofs, disputes, dispute_reasons, agent_stats, protocol_config, indexer_state`)
	require.NoError(t, err)
	return store
}

func TestStoreLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	escrow := model.Escrow{
		Chain:        model.ChainBase,
		ID:           "7",
		Client:       "0xaaa",
		Provider:     "0xbbb",
		Token:        "0xusdc",
		Amount:       "500",
		TaskHash:     "ab",
		Verification: model.VerificationOnChain,
		CreatedAt:    t0,
		Deadline:     t0.Add(48 * time.Hour),
	}
	res, err := store.InsertEscrow(ctx, escrow)
	require.NoError(t, err)
	require.Equal(t, storage.Applied, res)

	res, err = store.InsertEscrow(ctx, escrow)
	require.NoError(t, err)
	require.Equal(t, storage.Unchanged, res)

	key := escrow.Key()
	for i, to := range []model.Status{model.StatusActive, model.StatusProofSubmitted, model.StatusCompleted} {
		res, _, err := store.UpdateStatus(ctx, storage.StatusUpdate{Key: key, To: to, At: t0.Add(time.Duration(i+1) * time.Hour)})
		require.NoError(t, err)
		require.Equal(t, storage.Applied, res)
	}

	res, current, err := store.UpdateStatus(ctx, storage.StatusUpdate{Key: key, To: model.StatusActive, At: t0})
	require.NoError(t, err)
	require.Equal(t, storage.Rejected, res)
	require.Equal(t, model.StatusCompleted, current)

	res, _, err = store.UpdateStatus(ctx, storage.StatusUpdate{Key: key, To: model.StatusCompleted, At: t0})
	require.NoError(t, err)
	require.Equal(t, storage.Unchanged, res)

	stats, err := store.GetAgentStats(ctx, model.ChainBase, "0xbbb")
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.TotalEscrows)
	require.EqualValues(t, 1, stats.CompletedEscrows)
	require.Equal(t, model.Amount("500"), stats.TotalVolume)
	require.EqualValues(t, 3*3600, stats.AvgCompletionTime)
	require.InDelta(t, 100.0, stats.SuccessRate, 0.001)

	n, err := store.RebuildAgentStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rebuilt, err := store.GetAgentStats(ctx, model.ChainBase, "0xbbb")
	require.NoError(t, err)
	require.Equal(t, stats.CompletedEscrows, rebuilt.CompletedEscrows)
	require.Equal(t, stats.AvgCompletionTime, rebuilt.AvgCompletionTime)
}

func TestStoreDisputeFlow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.InsertEscrow(ctx, model.Escrow{
		Chain: model.ChainSolana, ID: "E1", Client: "C", Provider: "P", Token: "M",
		Amount: "10", TaskHash: "00", Verification: model.VerificationOnChain,
		CreatedAt: t0, Deadline: t0.Add(time.Hour),
	})
	require.NoError(t, err)
	key := model.EscrowKey{Chain: model.ChainSolana, ID: "E1"}
	for _, to := range []model.Status{model.StatusActive, model.StatusDisputed} {
		_, _, err := store.UpdateStatus(ctx, storage.StatusUpdate{Key: key, To: to, At: t0})
		require.NoError(t, err)
	}

	require.NoError(t, store.RecordDisputeReason(ctx, key, "C", "late"))
	_, err = store.InsertDispute(ctx, model.Dispute{ID: "d1", Chain: key.Chain, EscrowID: key.ID, EventRef: "sig:0", RaisedBy: "C", RaisedAt: t0})
	require.NoError(t, err)

	pending, err := store.PendingDisputes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "late", pending[0].Reason)

	verdict := model.Verdict{Ruling: model.Split(6000, 4000), Confidence: 0.9, Rationale: "partial"}
	res, err := store.MarkDisputeSubmitted(ctx, "d1", verdict, "sig-settle", t0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, storage.Applied, res)

	res, err = store.ResolveDispute(ctx, model.Resolution{Key: key, Arbitrator: "A", Ruling: model.PayClient(), ResolvedAt: t0.Add(2 * time.Minute), TxRef: "other"})
	require.NoError(t, err)
	require.Equal(t, storage.Applied, res)

	disputes, err := store.ListDisputes(ctx, key)
	require.NoError(t, err)
	require.Len(t, disputes, 1)
	require.Equal(t, model.Split(6000, 4000), *disputes[0].Ruling)
	require.Equal(t, "sig-settle", disputes[0].SettlementTx)
	require.NotNil(t, disputes[0].ResolvedAt)
}

func TestStoreCursorRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, ok, err := store.LoadCursor(ctx, "solana")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SaveCursor(ctx, "solana", model.Cursor{Position: 99, Ref: "sig"}))
	c, ok, err := store.LoadCursor(ctx, "solana")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 99, c.Position)
	require.Equal(t, "sig", c.Ref)
}

func TestStoreResolveDisputeTieGoesToLaterInsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.InsertEscrow(ctx, model.Escrow{
		Chain: model.ChainBase, ID: "5", Client: "C", Provider: "P", Token: "T",
		Amount: "10", TaskHash: "00", Verification: model.VerificationOnChain,
		CreatedAt: t0, Deadline: t0.Add(time.Hour),
	})
	require.NoError(t, err)
	key := model.EscrowKey{Chain: model.ChainBase, ID: "5"}
	for _, id := range []string{"ffffffff-0000-0000-0000-000000000000", "00000000-0000-0000-0000-000000000001"} {
		_, err := store.InsertDispute(ctx, model.Dispute{ID: id, Chain: key.Chain, EscrowID: key.ID, EventRef: id, RaisedAt: t0})
		require.NoError(t, err)
	}
	res, err := store.ResolveDispute(ctx, model.Resolution{Key: key, Arbitrator: "A", Ruling: model.PayClient(), ResolvedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	require.Equal(t, storage.Applied, res)

	disputes, err := store.ListDisputes(ctx, key)
	require.NoError(t, err)
	require.Len(t, disputes, 2)
	require.Nil(t, disputes[0].ResolvedAt)
	require.Equal(t, "00000000-0000-0000-0000-000000000001", disputes[1].ID)
	require.NotNil(t, disputes[1].ResolvedAt)
}

func TestStoreAmountsBeyondInt64(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for _, id := range []string{"10", "11"} {
		_, err := store.InsertEscrow(ctx, model.Escrow{
			Chain: model.ChainBase, ID: id, Client: "C", Provider: "P", Token: "T",
			Amount: "10000000000000000000", TaskHash: "00", Verification: model.VerificationOnChain,
			CreatedAt: t0, Deadline: t0.Add(time.Hour),
		})
		require.NoError(t, err)
	}

	escrow, err := store.GetEscrow(ctx, model.EscrowKey{Chain: model.ChainBase, ID: "10"})
	require.NoError(t, err)
	require.Equal(t, model.Amount("10000000000000000000"), escrow.Amount)

	stats, err := store.GetAgentStats(ctx, model.ChainBase, "P")
	require.NoError(t, err)
	require.Equal(t, model.Amount("20000000000000000000"), stats.TotalVolume)

	_, err = store.RebuildAgentStats(ctx)
	require.NoError(t, err)
	stats, err = store.GetAgentStats(ctx, model.ChainBase, "P")
	require.NoError(t, err)
	require.Equal(t, model.Amount("20000000000000000000"), stats.TotalVolume)
}
