package decoder

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"escrowScope/internal/model"
)

var resolveDisputeDisc = discriminator("global", "resolve_dispute")

// ResolveDisputeData encodes resolve_dispute instruction data: the Anchor
// discriminator followed by the borsh DisputeRuling enum.
func ResolveDisputeData(ruling model.Ruling) ([]byte, error) {
	if err := ruling.Validate(); err != nil {
		return nil, err
	}
	idx, err := ruling.Index()
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(resolveDisputeDisc[:], false); err != nil {
		return nil, fmt.Errorf("write discriminator: %w", err)
	}
	if err := enc.WriteUint8(idx); err != nil {
		return nil, fmt.Errorf("write ruling: %w", err)
	}
	if ruling.Kind == model.RulingSplit {
		if err := enc.WriteUint16(ruling.ClientBps, binary.LittleEndian); err != nil {
			return nil, fmt.Errorf("write client_bps: %w", err)
		}
		if err := enc.WriteUint16(ruling.ProviderBps, binary.LittleEndian); err != nil {
			return nil, fmt.Errorf("write provider_bps: %w", err)
		}
	}
	return buf.Bytes(), nil
}
