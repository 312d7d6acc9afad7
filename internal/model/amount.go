package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
)

// Amount is a non-negative token quantity in the token's smallest unit.
// It holds the canonical base-10 digits so uint256 values round-trip
// through JSON and NUMERIC columns unchanged. The empty Amount is zero.
type Amount string

// NewAmount converts v. A nil v is zero; a negative v panics, since no
// on-chain amount can be negative.
func NewAmount(v *big.Int) Amount {
	if v == nil || v.Sign() == 0 {
		return "0"
	}
	if v.Sign() < 0 {
		panic(fmt.Sprintf("negative amount %s", v))
	}
	return Amount(v.String())
}

func AmountFromUint64(v uint64) Amount {
	return NewAmount(new(big.Int).SetUint64(v))
}

// ParseAmount accepts base-10 digits and returns the canonical form.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return "", fmt.Errorf("empty amount")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("invalid amount %q", s)
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return "", fmt.Errorf("invalid amount %q", s)
	}
	return NewAmount(v), nil
}

// Big returns a fresh big.Int holding a.
func (a Amount) Big() *big.Int {
	v, ok := new(big.Int).SetString(a.String(), 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

func (a Amount) String() string {
	if a == "" {
		return "0"
	}
	return string(a)
}

func (a Amount) IsZero() bool {
	return a.Big().Sign() == 0
}

func (a Amount) Add(b Amount) Amount {
	return NewAmount(new(big.Int).Add(a.Big(), b.Big()))
}

func (a Amount) Cmp(b Amount) int {
	return a.Big().Cmp(b.Big())
}

// MarshalJSON writes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a decimal string or a bare JSON integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
