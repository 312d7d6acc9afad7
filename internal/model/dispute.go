package model

import "time"

// Dispute is one dispute-raised occurrence on an escrow.
type Dispute struct {
	ID             string     `json:"id"`
	Chain          Chain      `json:"chain"`
	EscrowID       string     `json:"escrow_address"`
	EventRef       string     `json:"event_ref"`
	RaisedBy       string     `json:"raised_by"`
	Reason         string     `json:"reason,omitempty"`
	RaisedAt       time.Time  `json:"raised_at"`
	Ruling         *Ruling    `json:"ruling,omitempty"`
	Confidence     *float64   `json:"confidence,omitempty"`
	Rationale      string     `json:"rationale,omitempty"`
	Submitted      bool       `json:"submitted_on_chain"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	SettlementTx   string     `json:"settlement_tx,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	Failures       int        `json:"submit_failures"`
	LastError      string     `json:"last_error,omitempty"`
	NeedsAttention bool       `json:"needs_attention"`
}

func (d Dispute) Key() EscrowKey {
	return EscrowKey{Chain: d.Chain, ID: d.EscrowID}
}

// Verdict is a ruling with the reasoner's confidence and rationale.
type Verdict struct {
	Ruling     Ruling  `json:"ruling"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Resolution is the chain's own record of a settled dispute.
type Resolution struct {
	Key        EscrowKey
	Arbitrator string
	Ruling     Ruling
	ResolvedAt time.Time
	TxRef      string
}
