package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"escrowScope/internal/model"
)

// EscrowDetail is an escrow with its task content and proofs.
type EscrowDetail struct {
	model.Escrow
	Task   *model.Task   `json:"task,omitempty"`
	Proofs []model.Proof `json:"proofs"`
}

// CreateTaskRequest stores task content under its on-chain hash.
type CreateTaskRequest struct {
	TaskHash    string `json:"task_hash" example:"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"`
	Description string `json:"description"`
	Criteria    any    `json:"criteria,omitempty"`
	Metadata    any    `json:"metadata,omitempty"`
}

// DisputeReasonRequest accepts both snake and camel case field names.
type DisputeReasonRequest struct {
	Chain            string `json:"chain,omitempty"`
	EscrowAddress    string `json:"escrow_address,omitempty"`
	EscrowAddressAlt string `json:"escrowAddress,omitempty"`
	RaisedBy         string `json:"raised_by,omitempty"`
	RaisedByAlt      string `json:"raisedBy,omitempty"`
	Reason           string `json:"reason"`
}

// DisputeReasonResponse echoes the recorded reason.
type DisputeReasonResponse struct {
	Chain         model.Chain `json:"chain"`
	EscrowAddress string      `json:"escrow_address"`
	RaisedBy      string      `json:"raised_by,omitempty"`
	Reason        string      `json:"reason"`
}

// chainFor returns the explicit chain, or the one implied by id.
func chainFor(raw, id string) (model.Chain, error) {
	if strings.TrimSpace(raw) == "" {
		return model.InferChain(id), nil
	}
	return model.ParseChain(raw)
}

func escrowKey(rawChain, id string) (model.EscrowKey, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.EscrowKey{}, fmt.Errorf("invalid escrow id: empty")
	}
	chain, err := chainFor(rawChain, id)
	if err != nil {
		return model.EscrowKey{}, err
	}
	return model.EscrowKey{Chain: chain, ID: id}, nil
}

// normalizeAgent matches the decoders' address rendering: checksummed hex on
// Base, base58 as given on Solana.
func normalizeAgent(chain model.Chain, addr string) string {
	addr = strings.TrimSpace(addr)
	if chain == model.ChainBase && common.IsHexAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return addr
}

// normalizeTaskHash accepts 64 hex characters with an optional 0x prefix.
func normalizeTaskHash(raw string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(raw))
	h = strings.TrimPrefix(h, "0x")
	if len(h) != 64 {
		return "", fmt.Errorf("invalid task_hash: want 64 hex characters, got %d", len(h))
	}
	if _, err := hex.DecodeString(h); err != nil {
		return "", fmt.Errorf("invalid task_hash: %v", err)
	}
	return h, nil
}

func rawJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
