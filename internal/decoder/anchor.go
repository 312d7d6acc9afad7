package decoder

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"escrowScope/internal/model"
)

const (
	programDataPrefix = "Program data: "
	programLogPrefix  = "Program log: "
	programPrefix     = "Program "
)

var anchorEventNames = []string{
	"EscrowCreated",
	"EscrowAccepted",
	"EscrowProofSubmitted",
	"EscrowCompleted",
	"EscrowCancelled",
	"EscrowExpired",
	"DisputeRaised",
	"DisputeResolved",
}

// AnchorDecoder decodes escrow program events from transaction logs.
type AnchorDecoder struct {
	program solana.PublicKey
	byDisc  map[[8]byte]string
}

func NewAnchorDecoder(program solana.PublicKey) *AnchorDecoder {
	byDisc := make(map[[8]byte]string, len(anchorEventNames))
	for _, name := range anchorEventNames {
		byDisc[discriminator("event", name)] = name
	}
	return &AnchorDecoder{program: program, byDisc: byDisc}
}

func (d *AnchorDecoder) Program() solana.PublicKey {
	return d.program
}

// Tx is one transaction's logs with its location on chain.
type Tx struct {
	Signature string
	Slot      uint64
	BlockTime time.Time
	Logs      []string
}

// ProgramData returns the base64 payloads logged while the escrow program
// was the innermost invoked program. Data logged by CPI callees is ignored.
func (d *AnchorDecoder) ProgramData(logs []string) []string {
	var out []string
	d.ownLines(logs, func(line string) {
		if strings.HasPrefix(line, programDataPrefix) {
			out = append(out, strings.TrimPrefix(line, programDataPrefix))
		}
	})
	return out
}

// HasInstruction reports whether the escrow program logged
// "Instruction: <name>" itself.
func (d *AnchorDecoder) HasInstruction(logs []string, name string) bool {
	want := programLogPrefix + "Instruction: " + name
	found := false
	d.ownLines(logs, func(line string) {
		if line == want {
			found = true
		}
	})
	return found
}

// ownLines calls fn for each data and log line emitted while the escrow
// program was the innermost invoked program.
func (d *AnchorDecoder) ownLines(logs []string, fn func(line string)) {
	target := d.program.String()
	var stack []string
	for _, line := range logs {
		if strings.HasPrefix(line, programDataPrefix) || strings.HasPrefix(line, programLogPrefix) {
			if len(stack) > 0 && stack[len(stack)-1] == target {
				fn(line)
			}
			continue
		}
		if !strings.HasPrefix(line, programPrefix) {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, programPrefix))
		if len(fields) < 2 {
			continue
		}
		switch {
		case fields[1] == "invoke":
			stack = append(stack, fields[0])
		case fields[1] == "success" || strings.HasPrefix(fields[1], "failed"):
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
}

// DecodeTx decodes every escrow event in tx. A payload that fails to decode
// is reported in the error slice and does not stop its siblings.
func (d *AnchorDecoder) DecodeTx(tx Tx) ([]model.Event, []model.DecodeError) {
	var (
		events []model.Event
		errs   []model.DecodeError
	)
	for idx, payload := range d.ProgramData(tx.Logs) {
		meta := model.EventMeta{
			Chain:     model.ChainSolana,
			Ref:       fmt.Sprintf("%s:%d", tx.Signature, idx),
			TxRef:     tx.Signature,
			Position:  tx.Slot,
			Timestamp: tx.BlockTime.UTC(),
		}
		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			errs = append(errs, decodeError(meta, idx, "", fmt.Errorf("base64: %w", err)))
			continue
		}
		name, ev, err := d.DecodeEvent(raw, meta)
		if err != nil {
			errs = append(errs, decodeError(meta, idx, name, err))
			continue
		}
		events = append(events, ev)
	}
	return events, errs
}

func decodeError(meta model.EventMeta, idx int, name string, err error) model.DecodeError {
	return model.DecodeError{
		Chain:    meta.Chain,
		Position: meta.Position,
		TxRef:    meta.TxRef,
		Index:    idx,
		Name:     name,
		Error:    err.Error(),
	}
}

// DecodeEvent decodes one discriminator-prefixed event payload.
func (d *AnchorDecoder) DecodeEvent(raw []byte, meta model.EventMeta) (string, model.Event, error) {
	if len(raw) < 8 {
		return "", nil, fmt.Errorf("payload too short: %d bytes", len(raw))
	}
	var disc [8]byte
	copy(disc[:], raw[:8])
	name, ok := d.byDisc[disc]
	if !ok {
		return "", nil, fmt.Errorf("unknown event discriminator %x", raw[:8])
	}

	r := newBorshReader(raw[8:])
	var ev model.Event
	switch name {
	case "EscrowCreated":
		ev = decodeAnchorCreated(r, meta)
	case "EscrowAccepted":
		meta.EscrowID = r.pubkey("escrow").String()
		ev = model.Accepted{
			EventMeta:  meta,
			Provider:   r.pubkey("provider").String(),
			AcceptedAt: unixTime(r.i64("accepted_at")),
		}
	case "EscrowProofSubmitted":
		meta.EscrowID = r.pubkey("escrow").String()
		provider := r.pubkey("provider").String()
		proofIdx := r.u8("proof_type")
		submittedAt := unixTime(r.i64("submitted_at"))
		if r.err != nil {
			break
		}
		proofType, err := model.ProofTypeFromIndex(proofIdx)
		if err != nil {
			return name, nil, err
		}
		ev = model.ProofSubmitted{
			EventMeta:   meta,
			Provider:    provider,
			ProofType:   proofType,
			SubmittedAt: submittedAt,
		}
	case "EscrowCompleted":
		meta.EscrowID = r.pubkey("escrow").String()
		ev = model.Completed{
			EventMeta:    meta,
			AmountPaid:   r.amount("amount_paid"),
			FeeCollected: r.amount("fee_collected"),
			CompletedAt:  unixTime(r.i64("completed_at")),
		}
	case "EscrowCancelled":
		meta.EscrowID = r.pubkey("escrow").String()
		ev = model.Cancelled{
			EventMeta:   meta,
			Client:      r.pubkey("client").String(),
			CancelledAt: unixTime(r.i64("cancelled_at")),
		}
	case "EscrowExpired":
		meta.EscrowID = r.pubkey("escrow").String()
		expiredAt := unixTime(r.i64("expired_at"))
		ev = model.Expired{
			EventMeta:    meta,
			ExpiredAt:    expiredAt,
			RefundAmount: r.amount("refund_amount"),
		}
	case "DisputeRaised":
		meta.EscrowID = r.pubkey("escrow").String()
		ev = model.DisputeRaised{
			EventMeta: meta,
			RaisedBy:  r.pubkey("raised_by").String(),
			RaisedAt:  unixTime(r.i64("raised_at")),
		}
	case "DisputeResolved":
		meta.EscrowID = r.pubkey("escrow").String()
		arbitrator := r.pubkey("arbitrator").String()
		ruling, err := readRuling(r)
		if err != nil {
			return name, nil, err
		}
		ev = model.DisputeResolved{
			EventMeta:  meta,
			Arbitrator: arbitrator,
			Ruling:     ruling,
			ResolvedAt: unixTime(r.i64("resolved_at")),
		}
	}
	if r.err != nil {
		return name, nil, r.err
	}
	return name, ev, nil
}

func decodeAnchorCreated(r *borshReader, meta model.EventMeta) model.Event {
	meta.EscrowID = r.pubkey("escrow").String()
	client := r.pubkey("client").String()
	provider := r.pubkey("provider").String()
	amount := r.amount("amount")
	mint := r.pubkey("token_mint").String()
	deadline := unixTime(r.i64("deadline"))
	taskHash := r.bytes("task_hash", 32)
	verificationIdx := r.u8("verification_type")
	if r.err != nil {
		return nil
	}
	verification, err := model.VerificationFromIndex(verificationIdx)
	if err != nil {
		r.err = err
		return nil
	}
	return model.Created{
		EventMeta:    meta,
		Client:       client,
		Provider:     provider,
		Token:        mint,
		Amount:       amount,
		TaskHash:     hex.EncodeToString(taskHash),
		Verification: verification,
		CreatedAt:    meta.Timestamp,
		Deadline:     deadline,
	}
}

// readRuling decodes the DisputeRuling enum: a u8 variant tag followed by
// two u16 basis-point fields for Split.
func readRuling(r *borshReader) (model.Ruling, error) {
	tag := r.u8("ruling")
	var clientBps, providerBps uint16
	if tag == 2 {
		clientBps = r.u16("client_bps")
		providerBps = r.u16("provider_bps")
	}
	if r.err != nil {
		return model.Ruling{}, r.err
	}
	return model.RulingFromIndex(tag, clientBps, providerBps)
}
