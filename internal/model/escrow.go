package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// VerificationType is how an escrow's task completion is verified.
type VerificationType string

const (
	VerificationOnChain         VerificationType = "OnChain"
	VerificationOracleCallback  VerificationType = "OracleCallback"
	VerificationMultiSigConfirm VerificationType = "MultiSigConfirm"
	VerificationAutoRelease     VerificationType = "AutoRelease"
)

var verificationTypes = []VerificationType{
	VerificationOnChain,
	VerificationOracleCallback,
	VerificationMultiSigConfirm,
	VerificationAutoRelease,
}

func VerificationFromIndex(idx uint8) (VerificationType, error) {
	if int(idx) >= len(verificationTypes) {
		return "", fmt.Errorf("unknown verification type %d", idx)
	}
	return verificationTypes[idx], nil
}

// ProofType is the kind of evidence a provider submitted.
type ProofType string

const (
	ProofTransactionSignature ProofType = "TransactionSignature"
	ProofOracleAttestation    ProofType = "OracleAttestation"
	ProofSignedConfirmation   ProofType = "SignedConfirmation"
)

var proofTypes = []ProofType{
	ProofTransactionSignature,
	ProofOracleAttestation,
	ProofSignedConfirmation,
}

func ProofTypeFromIndex(idx uint8) (ProofType, error) {
	if int(idx) >= len(proofTypes) {
		return "", fmt.Errorf("unknown proof type %d", idx)
	}
	return proofTypes[idx], nil
}

// Escrow is the projected escrow row. Creation fields are written once.
type Escrow struct {
	Chain            Chain            `json:"chain"`
	ID               string           `json:"escrow_address"`
	Client           string           `json:"client_address"`
	Provider         string           `json:"provider_address"`
	Arbitrator       string           `json:"arbitrator_address,omitempty"`
	Token            string           `json:"token_mint"`
	Amount           Amount           `json:"amount"`
	ProtocolFeeBps   uint16           `json:"protocol_fee_bps"`
	ArbitratorFeeBps uint16           `json:"arbitrator_fee_bps"`
	TaskHash         string           `json:"task_hash"`
	Verification     VerificationType `json:"verification_type"`
	CreatedAt        time.Time        `json:"created_at"`
	Deadline         time.Time        `json:"deadline"`
	GracePeriod      int64            `json:"grace_period"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	Status           Status           `json:"status"`
	CreatedTx        string           `json:"created_tx,omitempty"`
	CreatedPosition  uint64           `json:"created_position,omitempty"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (e Escrow) Key() EscrowKey {
	return EscrowKey{Chain: e.Chain, ID: e.ID}
}

// Task is off-chain task content addressed by its hash.
type Task struct {
	Hash        string          `json:"task_hash"`
	Description string          `json:"description"`
	Criteria    json.RawMessage `json:"criteria,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Proof is one append-only proof submission.
type Proof struct {
	Chain       Chain     `json:"chain"`
	EscrowID    string    `json:"escrow_address"`
	EventRef    string    `json:"event_ref"`
	Submitter   string    `json:"submitter"`
	Type        ProofType `json:"proof_type"`
	Payload     []byte    `json:"proof_data,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}
