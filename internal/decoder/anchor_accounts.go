package decoder

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"escrowScope/internal/model"
)

// PDA seeds of the escrow program.
var (
	escrowSeed          = []byte("escrow")
	vaultSeed           = []byte("vault")
	vaultAuthoritySeed  = []byte("vault_authority")
	protocolConfigSeed  = []byte("protocol_config")
	escrowAccountDisc   = discriminator("account", "Escrow")
	protocolAccountDisc = discriminator("account", "ProtocolConfig")
)

// EscrowAccount is the on-chain Escrow account.
type EscrowAccount struct {
	Client           solana.PublicKey
	Provider         solana.PublicKey
	Arbitrator       solana.PublicKey
	TokenMint        solana.PublicKey
	Vault            solana.PublicKey
	Amount           model.Amount
	ProtocolFeeBps   uint16
	ArbitratorFeeBps uint16
	TaskHash         [32]byte
	Verification     uint8
	CriteriaCount    uint8
	CreatedAt        int64
	Deadline         int64
	GracePeriod      int64
	Status           uint8
	ProofType        *uint8
	ProofData        [64]byte
	ProofSubmittedAt int64
	DisputeRaisedBy  solana.PublicKey
	Bump             uint8
	VaultBump        uint8
}

// DecodeEscrowAccount parses raw Escrow account data.
func DecodeEscrowAccount(data []byte) (EscrowAccount, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], escrowAccountDisc[:]) {
		return EscrowAccount{}, fmt.Errorf("not an escrow account")
	}
	r := newBorshReader(data[8:])
	acct := EscrowAccount{
		Client:           r.pubkey("client"),
		Provider:         r.pubkey("provider"),
		Arbitrator:       r.pubkey("arbitrator"),
		TokenMint:        r.pubkey("token_mint"),
		Vault:            r.pubkey("escrow_vault"),
		Amount:           r.amount("amount"),
		ProtocolFeeBps:   r.u16("protocol_fee_bps"),
		ArbitratorFeeBps: r.u16("arbitrator_fee_bps"),
	}
	copy(acct.TaskHash[:], r.bytes("task_hash", 32))
	acct.Verification = r.u8("verification_type")
	acct.CriteriaCount = r.u8("criteria_count")
	acct.CreatedAt = r.i64("created_at")
	acct.Deadline = r.i64("deadline")
	acct.GracePeriod = r.i64("grace_period")
	acct.Status = r.u8("status")
	if r.u8("proof_type") == 1 {
		v := r.u8("proof_type")
		acct.ProofType = &v
	}
	copy(acct.ProofData[:], r.bytes("proof_data", 64))
	acct.ProofSubmittedAt = r.i64("proof_submitted_at")
	acct.DisputeRaisedBy = r.pubkey("dispute_raised_by")
	acct.Bump = r.u8("bump")
	acct.VaultBump = r.u8("vault_bump")
	if r.err != nil {
		return EscrowAccount{}, r.err
	}
	return acct, nil
}

// EnrichCreated fills the fields the EscrowCreated event does not carry.
func EnrichCreated(ev model.Created, acct EscrowAccount) model.Created {
	if !acct.Arbitrator.IsZero() {
		ev.Arbitrator = acct.Arbitrator.String()
	}
	ev.ProtocolFeeBps = acct.ProtocolFeeBps
	ev.ArbitratorFeeBps = acct.ArbitratorFeeBps
	ev.GracePeriod = acct.GracePeriod
	if acct.CreatedAt > 0 {
		ev.CreatedAt = unixTime(acct.CreatedAt)
	}
	return ev
}

// EnrichProof attaches the proof bytes stored on the account. A later proof
// may already have replaced them, so the submission time must match.
func EnrichProof(ev model.ProofSubmitted, acct EscrowAccount) model.ProofSubmitted {
	if acct.ProofSubmittedAt != ev.SubmittedAt.Unix() {
		return ev
	}
	ev.Payload = bytes.TrimRight(acct.ProofData[:], "\x00")
	return ev
}

// ConfigAccount is the on-chain ProtocolConfig account.
type ConfigAccount struct {
	Admin              solana.PublicKey
	FeeAuthority       solana.PublicKey
	ProtocolFeeBps     uint16
	ArbitratorFeeBps   uint16
	MinEscrowAmount    model.Amount
	MaxEscrowAmount    model.Amount
	MinGracePeriod     int64
	MaxDeadlineSeconds int64
	Paused             bool
	Bump               uint8
}

// DecodeConfigAccount parses raw ProtocolConfig account data.
func DecodeConfigAccount(data []byte) (ConfigAccount, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], protocolAccountDisc[:]) {
		return ConfigAccount{}, fmt.Errorf("not a protocol config account")
	}
	r := newBorshReader(data[8:])
	cfg := ConfigAccount{
		Admin:              r.pubkey("admin"),
		FeeAuthority:       r.pubkey("fee_authority"),
		ProtocolFeeBps:     r.u16("protocol_fee_bps"),
		ArbitratorFeeBps:   r.u16("arbitrator_fee_bps"),
		MinEscrowAmount:    r.amount("min_escrow_amount"),
		MaxEscrowAmount:    r.amount("max_escrow_amount"),
		MinGracePeriod:     r.i64("min_grace_period"),
		MaxDeadlineSeconds: r.i64("max_deadline_seconds"),
		Paused:             r.boolean("paused"),
		Bump:               r.u8("bump"),
	}
	if r.err != nil {
		return ConfigAccount{}, r.err
	}
	return cfg, nil
}

// ProtocolConfig converts the account into the stored snapshot.
func (c ConfigAccount) ProtocolConfig(at time.Time) model.ProtocolConfig {
	return model.ProtocolConfig{
		Chain:              model.ChainSolana,
		Admin:              c.Admin.String(),
		FeeRecipient:       c.FeeAuthority.String(),
		ProtocolFeeBps:     c.ProtocolFeeBps,
		ArbitratorFeeBps:   c.ArbitratorFeeBps,
		MinEscrowAmount:    c.MinEscrowAmount,
		MaxEscrowAmount:    c.MaxEscrowAmount,
		MinGracePeriod:     c.MinGracePeriod,
		MaxDeadlineSeconds: c.MaxDeadlineSeconds,
		Paused:             c.Paused,
		UpdatedAt:          at.UTC(),
	}
}

// EscrowAddress derives the escrow PDA.
func EscrowAddress(program, client, provider solana.PublicKey, taskHash [32]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{escrowSeed, client[:], provider[:], taskHash[:]}, program)
	return addr, err
}

// VaultAddress derives the escrow's token vault PDA.
func VaultAddress(program, escrow solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{vaultSeed, escrow[:]}, program)
	return addr, err
}

// VaultAuthorityAddress derives the PDA that signs vault transfers.
func VaultAuthorityAddress(program, escrow solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{vaultAuthoritySeed, escrow[:]}, program)
	return addr, err
}

// ConfigAddress derives the protocol config PDA.
func ConfigAddress(program solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{protocolConfigSeed}, program)
	return addr, err
}
