// Package resolver turns an abstract ruling into a chain's resolve-dispute
// transaction and waits until the chain reports finality or failure.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"escrowScope/internal/model"
)

var (
	// ErrInvalidRuling is returned before anything is signed when a ruling
	// fails the shared validation.
	ErrInvalidRuling = model.ErrInvalidRuling
	// ErrInvalidRequest marks requests that can never succeed, such as a
	// malformed escrow id or a signer that is not the escrow's arbitrator.
	ErrInvalidRequest = errors.New("invalid settlement request")
	// ErrReverted is returned when the chain rejected the settlement.
	ErrReverted = errors.New("settlement reverted")
)

// Request is one settlement. Party addresses are in the chain's own
// address space; Solana derives token accounts from them.
type Request struct {
	Chain        model.Chain
	EscrowID     string
	Client       string
	Provider     string
	Token        string
	FeeRecipient string
	Ruling       model.Ruling
}

// Receipt identifies the finalized settlement transaction.
type Receipt struct {
	TxRef    string
	Position uint64
}

// Resolver submits settlements on one chain.
type Resolver interface {
	Chain() model.Chain
	Resolve(ctx context.Context, req Request) (Receipt, error)
}

// Validate runs the checks every resolver applies before signing.
func Validate(chain model.Chain, req Request) error {
	if req.Chain != chain {
		return fmt.Errorf("%w: %s request sent to %s resolver", ErrInvalidRequest, req.Chain, chain)
	}
	if req.EscrowID == "" {
		return fmt.Errorf("%w: escrow id is empty", ErrInvalidRequest)
	}
	return req.Ruling.Validate()
}

// IsPermanent reports whether retrying err cannot help.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidRuling) || errors.Is(err, ErrInvalidRequest)
}
