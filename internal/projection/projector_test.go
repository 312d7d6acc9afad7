package projection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"escrowScope/internal/model"
	"escrowScope/internal/storage"
	"escrowScope/internal/storage/memory"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func meta(chain model.Chain, escrow, ref string, at time.Time) model.EventMeta {
	return model.EventMeta{Chain: chain, EscrowID: escrow, Ref: ref, TxRef: "tx-" + ref, Timestamp: at}
}

func created(chain model.Chain, escrow string, amount uint64, feeBps uint16) model.Created {
	return model.Created{
		EventMeta:      meta(chain, escrow, "c-"+escrow, t0),
		Client:         "client-1",
		Provider:       "provider-1",
		Token:          "usdc",
		Amount:         model.AmountFromUint64(amount),
		ProtocolFeeBps: feeBps,
		TaskHash:       "aa",
		Verification:   model.VerificationOnChain,
		CreatedAt:      t0,
		Deadline:       t0.Add(48 * time.Hour),
		GracePeriod:    3600,
	}
}

func lifecycle(chain model.Chain, escrow string) []model.Event {
	return []model.Event{
		created(chain, escrow, 50_000_000, 50),
		model.Accepted{EventMeta: meta(chain, escrow, "a-"+escrow, t0.Add(time.Minute)), Provider: "provider-1", AcceptedAt: t0.Add(time.Minute)},
		model.ProofSubmitted{
			EventMeta:   meta(chain, escrow, "p-"+escrow, t0.Add(time.Hour)),
			Provider:    "provider-1",
			ProofType:   model.ProofTransactionSignature,
			Payload:     []byte("sig"),
			SubmittedAt: t0.Add(time.Hour),
		},
		model.Completed{EventMeta: meta(chain, escrow, "d-"+escrow, t0.Add(2*time.Hour)), AmountPaid: "49750000", FeeCollected: "250000", CompletedAt: t0.Add(2 * time.Hour)},
	}
}

func applyAll(t *testing.T, p *Projector, events []model.Event) []storage.Result {
	t.Helper()
	out := make([]storage.Result, 0, len(events))
	for _, ev := range events {
		res, err := p.Apply(context.Background(), ev)
		require.NoError(t, err)
		out = append(out, res)
	}
	return out
}

func TestHappyPathUpdatesAgentStats(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := NewProjector(store, nil)

	applyAll(t, p, lifecycle(model.ChainSolana, "E1"))

	escrow, err := store.GetEscrow(ctx, model.EscrowKey{Chain: model.ChainSolana, ID: "E1"})
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, escrow.Status)
	require.NotNil(t, escrow.CompletedAt)
	require.True(t, escrow.CompletedAt.Equal(t0.Add(2*time.Hour)))

	stats, err := store.GetAgentStats(ctx, model.ChainSolana, "provider-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.CompletedEscrows)
	require.Equal(t, model.Amount("50000000"), stats.TotalVolume)
	require.EqualValues(t, 7200, stats.AvgCompletionTime)

	proofs, err := store.ListProofs(ctx, escrow.Key())
	require.NoError(t, err)
	require.Len(t, proofs, 1)
	require.Equal(t, []byte("sig"), proofs[0].Payload)
}

func TestDuplicateCreatedKeepsFirstValues(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := NewProjector(store, nil)

	first := created(model.ChainBase, "7", 1_000, 50)
	second := created(model.ChainBase, "7", 9_999, 300)
	second.Client = "someone-else"

	results := applyAll(t, p, []model.Event{first, second})
	require.Equal(t, []storage.Result{storage.Applied, storage.Unchanged}, results)

	page, err := store.ListEscrows(ctx, storage.EscrowFilter{Chain: model.ChainBase})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, model.Amount("1000"), page[0].Amount)
	require.EqualValues(t, 50, page[0].ProtocolFeeBps)
	require.Equal(t, "client-1", page[0].Client)

	stats, err := store.GetAgentStats(ctx, model.ChainBase, "client-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.TotalEscrows)
}

func TestEveryEventIsIdempotent(t *testing.T) {
	ctx := context.Background()
	key := model.EscrowKey{Chain: model.ChainBase, ID: "5"}
	events := []model.Event{
		created(model.ChainBase, "5", 2_000, 25),
		model.Accepted{EventMeta: meta(model.ChainBase, "5", "a", t0.Add(time.Minute)), AcceptedAt: t0.Add(time.Minute)},
		model.ProofSubmitted{EventMeta: meta(model.ChainBase, "5", "p", t0.Add(2*time.Minute)), ProofType: model.ProofOracleAttestation, SubmittedAt: t0.Add(2 * time.Minute)},
		model.DisputeRaised{EventMeta: meta(model.ChainBase, "5", "r", t0.Add(3*time.Minute)), RaisedBy: "client-1", RaisedAt: t0.Add(3 * time.Minute)},
		model.DisputeResolved{EventMeta: meta(model.ChainBase, "5", "s", t0.Add(4*time.Minute)), Arbitrator: "arb", Ruling: model.Split(5000, 5000), ResolvedAt: t0.Add(4 * time.Minute)},
		model.ConfigChanged{EventMeta: meta(model.ChainBase, "", "cfg", t0), Config: model.ProtocolConfig{ProtocolFeeBps: 900}},
	}

	once := memory.New()
	applyAll(t, NewProjector(once, nil), events)

	twice := memory.New()
	p := NewProjector(twice, nil)
	for _, ev := range events {
		_, err := p.Apply(ctx, ev)
		require.NoError(t, err)
		res, err := p.Apply(ctx, ev)
		require.NoError(t, err)
		if ev.Kind() != model.KindConfigChanged {
			require.NotEqual(t, storage.Applied, res, "second %s must not change state", ev.Kind())
		}
	}

	snapshot := func(s *memory.Store) (model.Escrow, []model.Proof, []model.Dispute, model.AgentStats) {
		escrow, err := s.GetEscrow(ctx, key)
		require.NoError(t, err)
		proofs, err := s.ListProofs(ctx, key)
		require.NoError(t, err)
		disputes, err := s.ListDisputes(ctx, key)
		require.NoError(t, err)
		stats, err := s.GetAgentStats(ctx, model.ChainBase, "client-1")
		require.NoError(t, err)
		return escrow, proofs, disputes, stats
	}
	e1, p1, d1, s1 := snapshot(once)
	e2, p2, d2, s2 := snapshot(twice)
	require.Equal(t, e1, e2)
	require.Equal(t, p1, p2)
	require.Equal(t, d1, d2)
	require.Equal(t, s1, s2)
	require.Equal(t, model.StatusResolved, e2.Status)
	require.Len(t, d2, 1)
	require.Equal(t, DisputeID(model.ChainBase, "r"), d2[0].ID)
	require.NotNil(t, d2[0].Ruling)
	require.Equal(t, model.Split(5000, 5000), *d2[0].Ruling)
	require.EqualValues(t, 1, s2.DisputedEscrows)
}

func TestOutOfOrderStatusRejected(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := NewProjector(store, nil)

	events := lifecycle(model.ChainBase, "3")
	applyAll(t, p, []model.Event{events[0], events[3]})

	res, err := p.Apply(ctx, events[1])
	require.NoError(t, err)
	require.Equal(t, storage.Rejected, res)

	escrow, err := store.GetEscrow(ctx, model.EscrowKey{Chain: model.ChainBase, ID: "3"})
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, escrow.Status)

	cancel := model.Cancelled{EventMeta: meta(model.ChainBase, "3", "x", t0.Add(time.Hour)), CancelledAt: t0.Add(time.Hour)}
	res, err = p.Apply(ctx, cancel)
	require.NoError(t, err)
	require.Equal(t, storage.Rejected, res, "terminal status must not fork")
}

func TestStatusForUnknownEscrowIsSkipped(t *testing.T) {
	p := NewProjector(memory.New(), nil)
	res, err := p.Apply(context.Background(), model.Accepted{EventMeta: meta(model.ChainBase, "404", "a", t0)})
	require.NoError(t, err)
	require.Equal(t, storage.Rejected, res)
}

func TestConfigChangeDoesNotTouchEscrowFees(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := NewProjector(store, nil)

	applyAll(t, p, []model.Event{
		created(model.ChainSolana, "F1", 10, 50),
		model.ConfigChanged{EventMeta: meta(model.ChainSolana, "", "cfg", t0.Add(time.Hour)), Config: model.ProtocolConfig{ProtocolFeeBps: 500}},
	})

	escrow, err := store.GetEscrow(ctx, model.EscrowKey{Chain: model.ChainSolana, ID: "F1"})
	require.NoError(t, err)
	require.EqualValues(t, 50, escrow.ProtocolFeeBps)

	cfg, err := store.GetProtocolConfig(ctx, model.ChainSolana)
	require.NoError(t, err)
	require.EqualValues(t, 500, cfg.ProtocolFeeBps)
	require.Equal(t, model.ChainSolana, cfg.Chain)
	require.True(t, cfg.UpdatedAt.Equal(t0.Add(time.Hour)))
}

func TestDisputeIDIsNamespaced(t *testing.T) {
	require.Equal(t, DisputeID(model.ChainBase, "r"), DisputeID(model.ChainBase, "r"))
	require.NotEqual(t, DisputeID(model.ChainBase, "r"), DisputeID(model.ChainSolana, "r"))
}

func TestWideAmountsSumBeyondInt64(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := NewProjector(store, nil)

	for _, id := range []string{"W1", "W2"} {
		ev := created(model.ChainBase, id, 0, 50)
		ev.EventMeta = meta(model.ChainBase, id, "c-"+id, t0)
		ev.Amount = "10000000000000000000"
		applyAll(t, p, []model.Event{ev})
	}

	stats, err := store.GetAgentStats(ctx, model.ChainBase, "client-1")
	require.NoError(t, err)
	require.Equal(t, model.Amount("20000000000000000000"), stats.TotalVolume)

	escrow, err := store.GetEscrow(ctx, model.EscrowKey{Chain: model.ChainBase, ID: "W1"})
	require.NoError(t, err)
	require.Equal(t, model.Amount("10000000000000000000"), escrow.Amount)
}
