package decoder

import (
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"escrowScope/internal/model"
)

// discriminator is the 8-byte Anchor prefix for "<namespace>:<name>".
func discriminator(namespace, name string) [8]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

// borshReader keeps the first error so field reads can be chained.
type borshReader struct {
	dec *bin.Decoder
	err error
}

func newBorshReader(data []byte) *borshReader {
	return &borshReader{dec: bin.NewBorshDecoder(data)}
}

func (r *borshReader) fail(field string, err error) {
	if r.err == nil && err != nil {
		r.err = fmt.Errorf("read %s: %w", field, err)
	}
}

func (r *borshReader) bytes(field string, n int) []byte {
	if r.err != nil {
		return nil
	}
	out, err := r.dec.ReadNBytes(n)
	r.fail(field, err)
	return out
}

func (r *borshReader) pubkey(field string) solana.PublicKey {
	raw := r.bytes(field, solana.PublicKeyLength)
	if r.err != nil {
		return solana.PublicKey{}
	}
	return solana.PublicKeyFromBytes(raw)
}

func (r *borshReader) u8(field string) uint8 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint8()
	r.fail(field, err)
	return v
}

func (r *borshReader) u16(field string) uint16 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint16(bin.LE)
	r.fail(field, err)
	return v
}

func (r *borshReader) u64(field string) uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint64(bin.LE)
	r.fail(field, err)
	return v
}

func (r *borshReader) i64(field string) int64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadInt64(bin.LE)
	r.fail(field, err)
	return v
}

func (r *borshReader) boolean(field string) bool {
	if r.err != nil {
		return false
	}
	v, err := r.dec.ReadBool()
	r.fail(field, err)
	return v
}

// amount reads a u64 token amount.
func (r *borshReader) amount(field string) model.Amount {
	v := r.u64(field)
	if r.err != nil {
		return ""
	}
	return model.AmountFromUint64(v)
}
