package model

// DecodeError records a payload that could not be turned into a canonical event.
type DecodeError struct {
	Chain    Chain  `json:"chain"`
	Position uint64 `json:"position"`
	TxRef    string `json:"tx"`
	Index    int    `json:"index"`
	Name     string `json:"name,omitempty"`
	Error    string `json:"error"`
}
