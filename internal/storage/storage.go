package storage

import (
	"context"
	"errors"
	"time"

	"escrowScope/internal/model"
)

// ErrNotFound is returned by point lookups for rows that do not exist yet.
var ErrNotFound = errors.New("not found")

// Result reports what a write did.
type Result int

const (
	// Applied means the write changed stored state.
	Applied Result = iota
	// Unchanged means the write was already reflected (duplicate delivery).
	Unchanged
	// Rejected means the write would regress the stored lifecycle.
	Rejected
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case Unchanged:
		return "unchanged"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// StatusUpdate moves an escrow to To. At is the chain time of the update and
// becomes the completion time when To is Completed.
type StatusUpdate struct {
	Key      model.EscrowKey
	To       model.Status
	At       time.Time
	EventRef string
}

// EscrowFilter selects escrow pages. Empty fields do not filter.
type EscrowFilter struct {
	Chain    model.Chain
	Status   model.Status
	Client   string
	Provider string
	// Agent matches either party.
	Agent  string
	Limit  int
	Offset int
}

// Writer is the write side used by the projector and the coordinator.
// Every method is a single-statement idempotent upsert.
type Writer interface {
	InsertEscrow(ctx context.Context, escrow model.Escrow) (Result, error)
	UpdateStatus(ctx context.Context, update StatusUpdate) (Result, model.Status, error)
	AppendProof(ctx context.Context, proof model.Proof) (Result, error)
	InsertDispute(ctx context.Context, dispute model.Dispute) (Result, error)
	ResolveDispute(ctx context.Context, resolution model.Resolution) (Result, error)
	PutProtocolConfig(ctx context.Context, cfg model.ProtocolConfig) error
}

// Reader is the read side used by the query service.
type Reader interface {
	GetEscrow(ctx context.Context, key model.EscrowKey) (model.Escrow, error)
	ListEscrows(ctx context.Context, filter EscrowFilter) ([]model.Escrow, error)
	ListProofs(ctx context.Context, key model.EscrowKey) ([]model.Proof, error)
	ListDisputes(ctx context.Context, key model.EscrowKey) ([]model.Dispute, error)
	GetTask(ctx context.Context, hash string) (model.Task, error)
	GetAgentStats(ctx context.Context, chain model.Chain, agent string) (model.AgentStats, error)
	GetProtocolConfig(ctx context.Context, chain model.Chain) (model.ProtocolConfig, error)
	StatusTotals(ctx context.Context) ([]model.StatusTotal, error)
	EscrowPoints(ctx context.Context, since time.Time) ([]model.EscrowPoint, error)
	TopAgents(ctx context.Context, limit int) ([]model.AgentVolume, error)
	Ping(ctx context.Context) error
}

// ContentWriter stores off-chain content posted through the API.
type ContentWriter interface {
	PutTask(ctx context.Context, task model.Task) (Result, error)
	RecordDisputeReason(ctx context.Context, key model.EscrowKey, raisedBy, reason string) error
}

// DisputeQueue is the coordinator's view of pending disputes.
type DisputeQueue interface {
	PendingDisputes(ctx context.Context, limit int) ([]model.Dispute, error)
	MarkDisputeSubmitted(ctx context.Context, id string, verdict model.Verdict, txRef string, at time.Time) (Result, error)
	RecordDisputeFailure(ctx context.Context, id string, message string, maxFailures int, permanent bool) error
}

// CursorStore persists listener positions by name.
type CursorStore interface {
	LoadCursor(ctx context.Context, name string) (model.Cursor, bool, error)
	SaveCursor(ctx context.Context, name string, cursor model.Cursor) error
}

// Reconciler re-derives cached aggregates from escrow rows.
type Reconciler interface {
	RebuildAgentStats(ctx context.Context) (int, error)
}

// Store is the full projection store.
type Store interface {
	Writer
	Reader
	ContentWriter
	DisputeQueue
	CursorStore
	Reconciler
	Close()
}
