package dispute

import (
	"context"
	"errors"
	"time"

	"escrowScope/internal/model"
	"escrowScope/internal/resolver"
	"escrowScope/internal/storage"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

// ErrPermanent marks failures that retrying cannot fix, such as a case with
// no payout data. The dispute is flagged for operator attention.
var ErrPermanent = errors.New("permanent dispute failure")

type (
	// Reasoner decides a dispute from its case packet.
	Reasoner interface {
		Decide(ctx context.Context, c Case) (model.Verdict, error)
	}
	// Resolver submits a ruling on one chain and waits for finality.
	Resolver interface {
		Chain() model.Chain
		Resolve(ctx context.Context, req resolver.Request) (resolver.Receipt, error)
	}
	// Store is the part of the projection store the coordinator reads and marks.
	Store interface {
		PendingDisputes(ctx context.Context, limit int) ([]model.Dispute, error)
		MarkDisputeSubmitted(ctx context.Context, id string, verdict model.Verdict, txRef string, at time.Time) (storage.Result, error)
		RecordDisputeFailure(ctx context.Context, id string, message string, maxFailures int, permanent bool) error
		GetEscrow(ctx context.Context, key model.EscrowKey) (model.Escrow, error)
		GetTask(ctx context.Context, hash string) (model.Task, error)
		ListProofs(ctx context.Context, key model.EscrowKey) ([]model.Proof, error)
		GetProtocolConfig(ctx context.Context, chain model.Chain) (model.ProtocolConfig, error)
	}
	Metrics interface {
		ObserveVerdict(chain model.Chain, outcome string)
		ObserveCycle(err error, started time.Time)
	}
)
