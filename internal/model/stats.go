package model

import "time"

// AgentStats is the per-agent reputation cache. Rates and averages are
// derived from the counters on read.
type AgentStats struct {
	Chain             Chain      `json:"chain"`
	Agent             string     `json:"address"`
	TotalEscrows      int64      `json:"total_escrows"`
	CompletedEscrows  int64      `json:"completed_escrows"`
	DisputedEscrows   int64      `json:"disputed_escrows"`
	ExpiredEscrows    int64      `json:"expired_escrows"`
	TotalVolume       Amount     `json:"total_volume"`
	CompletionSeconds int64      `json:"-"`
	SuccessRate       float64    `json:"success_rate"`
	AvgCompletionTime int64      `json:"avg_completion_time"`
	LastActive        *time.Time `json:"last_active,omitempty"`
}

// Derive fills SuccessRate and AvgCompletionTime from the counters.
func (s *AgentStats) Derive() {
	s.SuccessRate = Percent(s.CompletedEscrows, s.TotalEscrows)
	s.AvgCompletionTime = 0
	if s.CompletedEscrows > 0 {
		s.AvgCompletionTime = s.CompletionSeconds / s.CompletedEscrows
	}
}

// Percent returns 100*num/den, or 0 when den is 0.
func Percent(num, den int64) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) * 100 / float64(den)
}

// ProtocolConfig is the latest governance snapshot for one chain.
type ProtocolConfig struct {
	Chain              Chain     `json:"chain"`
	Admin              string    `json:"admin"`
	FeeRecipient       string    `json:"fee_recipient"`
	ProtocolFeeBps     uint16    `json:"protocol_fee_bps"`
	ArbitratorFeeBps   uint16    `json:"arbitrator_fee_bps"`
	MinEscrowAmount    Amount    `json:"min_escrow_amount"`
	MaxEscrowAmount    Amount    `json:"max_escrow_amount"`
	MinGracePeriod     int64     `json:"min_grace_period"`
	MaxDeadlineSeconds int64     `json:"max_deadline_seconds"`
	Paused             bool      `json:"paused"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// StatusTotal is one (chain, status) bucket.
type StatusTotal struct {
	Chain  Chain  `json:"chain"`
	Status Status `json:"status"`
	Count  int64  `json:"count"`
	Volume Amount `json:"volume"`
}

// EscrowPoint is the slice of an escrow row used for time bucketing.
type EscrowPoint struct {
	Chain       Chain
	Status      Status
	Amount      Amount
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// AgentVolume ranks an agent by cumulative volume.
type AgentVolume struct {
	Chain        Chain  `json:"chain"`
	Agent        string `json:"address"`
	TotalVolume  Amount `json:"total_volume"`
	TotalEscrows int64  `json:"total_escrows"`
}
