package model

import "time"

// Cursor is the last fully applied position of a listener. Position is a
// block number on Base and a slot on Solana; Ref is the last Solana
// signature and empty on Base.
type Cursor struct {
	Chain     Chain     `json:"chain"`
	Position  uint64    `json:"position"`
	Ref       string    `json:"ref,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Cursor) IsZero() bool {
	return c.Position == 0 && c.Ref == ""
}
