package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"escrowScope/internal/chain/sol"
	"escrowScope/internal/decoder"
	"escrowScope/internal/metrics"
	"escrowScope/internal/model"
)

// SolanaBackend is the part of the Solana transport the resolver uses.
type SolanaBackend interface {
	AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	WaitFinalized(ctx context.Context, sig solana.Signature, interval time.Duration) error
}

// SolanaConfig holds Solana resolver settings.
type SolanaConfig struct {
	Program      solana.PublicKey
	PollInterval time.Duration
}

// Payouts are the token accounts a resolve_dispute instruction pays into.
type Payouts struct {
	Client     solana.PublicKey
	Provider   solana.PublicKey
	Arbitrator solana.PublicKey
	Fee        solana.PublicKey
}

// DerivePayouts returns the associated token accounts of each wallet for mint.
func DerivePayouts(client, provider, arbitrator, feeAuthority, mint solana.PublicKey) (Payouts, error) {
	var (
		out Payouts
		err error
	)
	if out.Client, _, err = solana.FindAssociatedTokenAddress(client, mint); err != nil {
		return Payouts{}, fmt.Errorf("client token account: %w", err)
	}
	if out.Provider, _, err = solana.FindAssociatedTokenAddress(provider, mint); err != nil {
		return Payouts{}, fmt.Errorf("provider token account: %w", err)
	}
	if out.Arbitrator, _, err = solana.FindAssociatedTokenAddress(arbitrator, mint); err != nil {
		return Payouts{}, fmt.Errorf("arbitrator token account: %w", err)
	}
	if out.Fee, _, err = solana.FindAssociatedTokenAddress(feeAuthority, mint); err != nil {
		return Payouts{}, fmt.Errorf("fee token account: %w", err)
	}
	return out, nil
}

// SolanaResolver sends resolve_dispute signed by the arbitrator keypair.
type SolanaResolver struct {
	cfg     SolanaConfig
	backend SolanaBackend
	signer  solana.PrivateKey
	metrics *metrics.Resolver
	logger  *zap.Logger
}

var _ Resolver = (*SolanaResolver)(nil)

func NewSolanaResolver(cfg SolanaConfig, backend SolanaBackend, signer solana.PrivateKey, logger *zap.Logger) (*SolanaResolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Program.IsZero() {
		return nil, fmt.Errorf("solana resolver: program id is required")
	}
	if len(signer) == 0 {
		return nil, fmt.Errorf("solana resolver: signer keypair is required")
	}
	return &SolanaResolver{
		cfg:     cfg,
		backend: backend,
		signer:  signer,
		metrics: metrics.NewResolver(model.ChainSolana),
		logger:  logger.With(zap.String("chain", string(model.ChainSolana))),
	}, nil
}

// LoadKeypair reads a solana-keygen JSON keypair file.
func LoadKeypair(path string) (solana.PrivateKey, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return key, nil
}

func (r *SolanaResolver) Chain() model.Chain {
	return model.ChainSolana
}

func (r *SolanaResolver) Resolve(ctx context.Context, req Request) (Receipt, error) {
	started := time.Now()
	receipt, status, err := r.resolve(ctx, req)
	r.metrics.ObserveSubmission(status, started)
	return receipt, err
}

func (r *SolanaResolver) resolve(ctx context.Context, req Request) (Receipt, string, error) {
	if err := Validate(model.ChainSolana, req); err != nil {
		return Receipt{}, "invalid", err
	}
	tx, err := r.BuildTransaction(ctx, req)
	if err != nil {
		if IsPermanent(err) {
			return Receipt{}, "invalid", err
		}
		return Receipt{}, "error", err
	}

	sig, err := r.backend.Send(ctx, tx)
	if err != nil {
		if isSimulationFailure(err) {
			return Receipt{}, "reverted", fmt.Errorf("%w: %v", ErrReverted, err)
		}
		return Receipt{}, "error", fmt.Errorf("send transaction: %w", err)
	}
	r.logger.Info("settlement broadcast",
		zap.String("escrow", req.EscrowID),
		zap.String("signature", sig.String()),
		zap.String("ruling", string(req.Ruling.Kind)),
	)

	if err := r.backend.WaitFinalized(ctx, sig, r.cfg.PollInterval); err != nil {
		if errors.Is(err, sol.ErrTransactionFailed) {
			return Receipt{}, "reverted", fmt.Errorf("%w: %v", ErrReverted, err)
		}
		return Receipt{}, "error", err
	}
	return Receipt{TxRef: sig.String()}, "success", nil
}

// BuildTransaction reads the escrow and config accounts and returns the
// signed resolve_dispute transaction.
func (r *SolanaResolver) BuildTransaction(ctx context.Context, req Request) (*solana.Transaction, error) {
	escrow, err := solana.PublicKeyFromBase58(req.EscrowID)
	if err != nil {
		return nil, fmt.Errorf("%w: escrow address %q: %v", ErrInvalidRequest, req.EscrowID, err)
	}
	acct, err := r.escrowAccount(ctx, escrow)
	if err != nil {
		return nil, err
	}
	arbitrator := r.signer.PublicKey()
	if !acct.Arbitrator.Equals(arbitrator) {
		return nil, fmt.Errorf("%w: signer %s is not the arbitrator %s", ErrInvalidRequest, arbitrator, acct.Arbitrator)
	}
	if err := matches("client", req.Client, acct.Client); err != nil {
		return nil, err
	}
	if err := matches("provider", req.Provider, acct.Provider); err != nil {
		return nil, err
	}
	if err := matches("token", req.Token, acct.TokenMint); err != nil {
		return nil, err
	}

	configAddr, err := decoder.ConfigAddress(r.cfg.Program)
	if err != nil {
		return nil, fmt.Errorf("derive config address: %w", err)
	}
	cfg, err := r.configAccount(ctx, configAddr)
	if err != nil {
		return nil, err
	}
	if cfg.Paused {
		return nil, fmt.Errorf("protocol is paused")
	}
	// The config account was just read, so its fee authority wins over a
	// stored recipient that may predate a config update.
	if req.FeeRecipient != "" && req.FeeRecipient != cfg.FeeAuthority.String() {
		r.logger.Warn("stored fee recipient is stale, using on-chain fee authority",
			zap.String("escrow", req.EscrowID),
			zap.String("stored", req.FeeRecipient),
			zap.String("on_chain", cfg.FeeAuthority.String()),
		)
	}

	vaultAuthority, err := decoder.VaultAuthorityAddress(r.cfg.Program, escrow)
	if err != nil {
		return nil, fmt.Errorf("derive vault authority: %w", err)
	}
	payouts, err := DerivePayouts(acct.Client, acct.Provider, arbitrator, cfg.FeeAuthority, acct.TokenMint)
	if err != nil {
		return nil, err
	}
	data, err := decoder.ResolveDisputeData(req.Ruling)
	if err != nil {
		return nil, err
	}

	ix := solana.NewInstruction(r.cfg.Program, solana.AccountMetaSlice{
		solana.Meta(arbitrator).WRITE().SIGNER(),
		solana.Meta(configAddr),
		solana.Meta(escrow).WRITE(),
		solana.Meta(acct.Vault).WRITE(),
		solana.Meta(vaultAuthority),
		solana.Meta(payouts.Client).WRITE(),
		solana.Meta(payouts.Provider).WRITE(),
		solana.Meta(payouts.Arbitrator).WRITE(),
		solana.Meta(payouts.Fee).WRITE(),
		solana.Meta(acct.Client).WRITE(),
		solana.Meta(solana.TokenProgramID),
	}, data)

	blockhash, err := r.backend.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, blockhash, solana.TransactionPayer(arbitrator))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(arbitrator) {
			return &r.signer
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

func (r *SolanaResolver) escrowAccount(ctx context.Context, escrow solana.PublicKey) (decoder.EscrowAccount, error) {
	data, err := r.backend.AccountData(ctx, escrow)
	if err != nil {
		if errors.Is(err, sol.ErrAccountNotFound) {
			// Closed escrows were already settled.
			return decoder.EscrowAccount{}, fmt.Errorf("%w: escrow account %s is closed", ErrInvalidRequest, escrow)
		}
		return decoder.EscrowAccount{}, fmt.Errorf("read escrow account: %w", err)
	}
	acct, err := decoder.DecodeEscrowAccount(data)
	if err != nil {
		return decoder.EscrowAccount{}, fmt.Errorf("%w: decode escrow account: %v", ErrInvalidRequest, err)
	}
	return acct, nil
}

func (r *SolanaResolver) configAccount(ctx context.Context, addr solana.PublicKey) (decoder.ConfigAccount, error) {
	data, err := r.backend.AccountData(ctx, addr)
	if err != nil {
		return decoder.ConfigAccount{}, fmt.Errorf("read protocol config: %w", err)
	}
	cfg, err := decoder.DecodeConfigAccount(data)
	if err != nil {
		return decoder.ConfigAccount{}, fmt.Errorf("decode protocol config: %w", err)
	}
	return cfg, nil
}

// matches checks a caller-supplied wallet against the chain's record. An
// empty value is not checked.
func matches(field, given string, onChain solana.PublicKey) error {
	if given == "" || given == onChain.String() {
		return nil
	}
	return fmt.Errorf("%w: %s %s does not match on-chain %s", ErrInvalidRequest, field, given, onChain)
}

func isSimulationFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "simulation failed") || strings.Contains(msg, "custom program error")
}
