package model

import (
	"errors"
	"fmt"
	"strings"
)

// TotalBps is 100% in basis points.
const TotalBps = 10000

// RulingKind tags a Ruling variant.
type RulingKind string

const (
	RulingPayClient   RulingKind = "PayClient"
	RulingPayProvider RulingKind = "PayProvider"
	RulingSplit       RulingKind = "Split"
)

// ErrInvalidRuling is returned for ruling shapes no resolver may submit.
var ErrInvalidRuling = errors.New("invalid ruling")

// Ruling is an arbitration outcome. ClientBps and ProviderBps are only
// meaningful for RulingSplit.
type Ruling struct {
	Kind        RulingKind `json:"type"`
	ClientBps   uint16     `json:"client_bps,omitempty"`
	ProviderBps uint16     `json:"provider_bps,omitempty"`
}

func PayClient() Ruling   { return Ruling{Kind: RulingPayClient} }
func PayProvider() Ruling { return Ruling{Kind: RulingPayProvider} }

func Split(clientBps, providerBps uint16) Ruling {
	return Ruling{Kind: RulingSplit, ClientBps: clientBps, ProviderBps: providerBps}
}

// Validate is shared by every resolver and must pass before submission.
func (r Ruling) Validate() error {
	switch r.Kind {
	case RulingPayClient, RulingPayProvider:
		if r.ClientBps != 0 || r.ProviderBps != 0 {
			return fmt.Errorf("%w: %s carries basis points", ErrInvalidRuling, r.Kind)
		}
		return nil
	case RulingSplit:
		if int(r.ClientBps)+int(r.ProviderBps) != TotalBps {
			return fmt.Errorf("%w: split %d+%d != %d", ErrInvalidRuling, r.ClientBps, r.ProviderBps, TotalBps)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRuling, r.Kind)
	}
}

// Index is the integer discriminant used by both programs.
func (r Ruling) Index() (uint8, error) {
	switch r.Kind {
	case RulingPayClient:
		return 0, nil
	case RulingPayProvider:
		return 1, nil
	case RulingSplit:
		return 2, nil
	default:
		return 0, fmt.Errorf("%w: unknown type %q", ErrInvalidRuling, r.Kind)
	}
}

// RulingFromIndex rebuilds a ruling from its on-chain discriminant.
func RulingFromIndex(idx uint8, clientBps, providerBps uint16) (Ruling, error) {
	switch idx {
	case 0:
		return PayClient(), nil
	case 1:
		return PayProvider(), nil
	case 2:
		return Split(clientBps, providerBps), nil
	default:
		return Ruling{}, fmt.Errorf("unknown ruling index %d", idx)
	}
}

// ParseRulingKind accepts "PayClient", "pay_client", "payclient" and so on.
func ParseRulingKind(input string) (RulingKind, error) {
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(input))
	switch key {
	case "payclient", "client":
		return RulingPayClient, nil
	case "payprovider", "provider":
		return RulingPayProvider, nil
	case "split":
		return RulingSplit, nil
	default:
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidRuling, input)
	}
}
