package dispute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

// Case is the packet a reasoner decides on.
type Case struct {
	DisputeID    string          `json:"dispute_id"`
	Chain        model.Chain     `json:"chain"`
	Escrow       string          `json:"escrow_address"`
	Client       string          `json:"client"`
	Provider     string          `json:"provider"`
	Arbitrator   string          `json:"arbitrator,omitempty"`
	Token        string          `json:"token_mint"`
	Amount       model.Amount    `json:"amount"`
	Status       model.Status    `json:"status"`
	TaskHash     string          `json:"task_hash"`
	Description  string          `json:"task_description,omitempty"`
	Criteria     json.RawMessage `json:"criteria,omitempty"`
	Verification string          `json:"verification_type"`
	Proofs       []CaseProof     `json:"proofs"`
	Reason       string          `json:"reason,omitempty"`
	RaisedBy     string          `json:"raised_by"`
	RaisedAt     time.Time       `json:"raised_at"`
	Deadline     time.Time       `json:"deadline"`
	CreatedAt    time.Time       `json:"created_at"`

	feeRecipient string
}

// CaseProof is one submitted proof as the reasoner sees it. Data is printable
// text when the payload is, hex otherwise.
type CaseProof struct {
	Type        model.ProofType `json:"type"`
	Submitter   string          `json:"submitter"`
	Data        string          `json:"data"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// buildCase loads everything known about a dispute. A missing task or config
// only leaves fields empty; a missing escrow row is permanent.
func buildCase(ctx context.Context, store Store, d model.Dispute) (Case, error) {
	escrow, err := store.GetEscrow(ctx, d.Key())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Case{}, fmt.Errorf("%w: escrow %s has no row", ErrPermanent, d.EscrowID)
		}
		return Case{}, fmt.Errorf("get escrow: %w", err)
	}
	if escrow.Client == "" || escrow.Provider == "" {
		return Case{}, fmt.Errorf("%w: escrow %s has no payout parties", ErrPermanent, d.EscrowID)
	}

	c := Case{
		DisputeID:    d.ID,
		Chain:        d.Chain,
		Escrow:       d.EscrowID,
		Client:       escrow.Client,
		Provider:     escrow.Provider,
		Arbitrator:   escrow.Arbitrator,
		Token:        escrow.Token,
		Amount:       escrow.Amount,
		Status:       escrow.Status,
		TaskHash:     escrow.TaskHash,
		Verification: string(escrow.Verification),
		Proofs:       []CaseProof{},
		Reason:       d.Reason,
		RaisedBy:     d.RaisedBy,
		RaisedAt:     d.RaisedAt,
		Deadline:     escrow.Deadline,
		CreatedAt:    escrow.CreatedAt,
	}

	if escrow.TaskHash != "" {
		task, err := store.GetTask(ctx, escrow.TaskHash)
		switch {
		case err == nil:
			c.Description = task.Description
			c.Criteria = task.Criteria
		case !errors.Is(err, storage.ErrNotFound):
			return Case{}, fmt.Errorf("get task: %w", err)
		}
	}

	proofs, err := store.ListProofs(ctx, d.Key())
	if err != nil {
		return Case{}, fmt.Errorf("list proofs: %w", err)
	}
	for _, p := range proofs {
		c.Proofs = append(c.Proofs, CaseProof{
			Type:        p.Type,
			Submitter:   p.Submitter,
			Data:        proofText(p.Payload),
			SubmittedAt: p.SubmittedAt,
		})
	}

	cfg, err := store.GetProtocolConfig(ctx, d.Chain)
	switch {
	case err == nil:
		c.feeRecipient = cfg.FeeRecipient
	case !errors.Is(err, storage.ErrNotFound):
		return Case{}, fmt.Errorf("get protocol config: %w", err)
	}
	return c, nil
}

func proofText(payload []byte) string {
	for _, b := range payload {
		if b < 0x20 || b > 0x7e {
			return fmt.Sprintf("0x%x", payload)
		}
	}
	return string(payload)
}
