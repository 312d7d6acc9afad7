package model

import (
	"fmt"
	"strings"
)

// Chain names an identifier namespace. Escrow ids, agent ids and cursors from
// different chains are never compared with each other.
type Chain string

const (
	ChainSolana Chain = "solana"
	ChainBase   Chain = "base"
)

// Chains lists the supported chains in a stable order.
var Chains = []Chain{ChainSolana, ChainBase}

// ParseChain normalizes a chain name.
func ParseChain(input string) (Chain, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "solana", "sol":
		return ChainSolana, nil
	case "base", "evm":
		return ChainBase, nil
	default:
		return "", fmt.Errorf("invalid chain: %q", input)
	}
}

func (c Chain) Valid() bool {
	return c == ChainSolana || c == ChainBase
}

// InferChain picks the namespace for an identifier when the caller did not
// name one. Base escrow ids are decimal integers and Base agents are 0x
// addresses; anything else is treated as a Solana public key.
func InferChain(id string) Chain {
	id = strings.TrimSpace(id)
	if id == "" {
		return ChainSolana
	}
	if strings.HasPrefix(id, "0x") || strings.HasPrefix(id, "0X") {
		return ChainBase
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return ChainSolana
		}
	}
	return ChainBase
}

// EscrowKey is the chain-qualified escrow identifier.
type EscrowKey struct {
	Chain Chain  `json:"chain"`
	ID    string `json:"escrow_address"`
}

func (k EscrowKey) String() string {
	return string(k.Chain) + ":" + k.ID
}
