package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"escrowScope/internal/chain/evm"
	"escrowScope/internal/chain/sol"
	"escrowScope/internal/config"
	"escrowScope/internal/decoder"
	"escrowScope/internal/dispute"
	"escrowScope/internal/listener"
	"escrowScope/internal/resolver"
	"escrowScope/internal/storage"
	"escrowScope/internal/storage/memory"
	"escrowScope/internal/storage/postgres"
)

// openStore applies migrations and connects the configured store.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store, state is lost on exit")
		return memory.New(), nil
	}
	applied, err := postgres.Migrate(cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if applied {
		logger.Info("migrations applied")
	}
	store, err := postgres.NewStore(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	logger.Info("postgres connected", zap.String("pg_dsn", redactDSN(cfg.PGDSN)), zap.Int32("max_conns", cfg.PGMaxConns))
	return store, nil
}

func cursorStore(cfg config.Config, store storage.Store) storage.CursorStore {
	if cfg.Listener.CursorFile != "" {
		return listener.NewFileCursorStore(cfg.Listener.CursorFile)
	}
	return store
}

// chains holds the transports and streams of every enabled chain.
type chains struct {
	evm      *evm.Lazy
	sol      *sol.Client
	contract common.Address
	program  solana.PublicKey
	streams  []listener.Stream
}

func connectChains(cfg config.Config, logger *zap.Logger) (*chains, error) {
	out := &chains{}
	if cfg.Base.Enabled {
		if err := out.connectBase(cfg, logger); err != nil {
			out.Close()
			return nil, err
		}
	}
	if cfg.Solana.Enabled {
		if err := out.connectSolana(cfg, logger); err != nil {
			out.Close()
			return nil, err
		}
	}
	return out, nil
}

// connectBase validates the Base settings. The endpoint is dialed by the
// stream session, so an unreachable node is retried instead of failing boot.
func (c *chains) connectBase(cfg config.Config, logger *zap.Logger) error {
	if !common.IsHexAddress(cfg.Base.Contract) {
		return fmt.Errorf("base-contract %q is not an address", cfg.Base.Contract)
	}
	url := cfg.Base.WSURL
	if url == "" {
		url = cfg.Base.RPCURL
	}
	c.contract = common.HexToAddress(cfg.Base.Contract)
	dec, err := decoder.NewEVMDecoder(c.contract)
	if err != nil {
		return err
	}
	c.evm = evm.NewLazy(url, cfg.Base.ChainID)
	c.streams = append(c.streams, listener.NewBaseStream(listener.BaseConfig{
		Confirmations: cfg.Base.Confirmations,
		PollInterval:  cfg.Base.PollInterval,
		BatchSize:     cfg.Base.BatchSize,
		StartBlock:    cfg.Base.StartBlock,
		MaxRetries:    cfg.Listener.MaxRetries,
		RetryBackoff:  cfg.Listener.RetryBackoff,
	}, c.evm, dec, logger.Named("base")))

	logger.Info("base configured",
		zap.String("network", cfg.Base.Network),
		zap.String("contract", c.contract.Hex()),
		zap.Bool("subscribe", c.evm.CanSubscribe()),
	)
	return nil
}

func (c *chains) connectSolana(cfg config.Config, logger *zap.Logger) error {
	program, err := solana.PublicKeyFromBase58(cfg.Solana.ProgramID)
	if err != nil {
		return fmt.Errorf("solana-program-id: %w", err)
	}
	client, err := sol.NewClient(sol.Options{
		RPCURL:     cfg.Solana.RPCURL,
		WSURL:      cfg.Solana.WSURL,
		RPS:        cfg.Solana.RPS,
		Commitment: rpc.CommitmentType(cfg.Solana.Commitment),
	})
	if err != nil {
		return err
	}
	c.sol = client
	c.program = program
	c.streams = append(c.streams, listener.NewSolanaStream(listener.SolanaConfig{
		MaxRetries:   cfg.Listener.MaxRetries,
		RetryBackoff: cfg.Listener.RetryBackoff,
	}, listener.NewSolanaRPC(client), decoder.NewAnchorDecoder(program), logger.Named("solana")))

	logger.Info("solana connected",
		zap.String("network", cfg.Solana.Network),
		zap.String("program", program.String()),
		zap.String("commitment", cfg.Solana.Commitment),
	)
	return nil
}

func (c *chains) Close() {
	if c.evm != nil {
		c.evm.Close()
	}
	if c.sol != nil {
		_ = c.sol.Close()
	}
}

// resolvers builds a resolver for each connected chain with signing
// credentials. A chain without credentials leaves its disputes pending.
func (c *chains) resolvers(cfg config.Config, logger *zap.Logger) ([]dispute.Resolver, error) {
	var out []dispute.Resolver
	if c.evm != nil && cfg.Base.PrivateKey != "" {
		r, err := resolver.NewBaseResolver(resolver.BaseConfig{
			Contract:      c.contract,
			ChainID:       big.NewInt(cfg.Base.ChainID),
			Confirmations: cfg.Base.Confirmations,
			PollInterval:  cfg.Base.PollInterval,
		}, c.evm, cfg.Base.PrivateKey, logger.Named("resolver"))
		if err != nil {
			return nil, err
		}
		logger.Info("base resolver ready", zap.String("arbitrator", r.Address().Hex()))
		out = append(out, r)
	}
	if c.sol != nil && cfg.Solana.Keypair != "" {
		key, err := resolver.LoadKeypair(cfg.Solana.Keypair)
		if err != nil {
			return nil, err
		}
		r, err := resolver.NewSolanaResolver(resolver.SolanaConfig{
			Program: c.program,
		}, c.sol, key, logger.Named("resolver"))
		if err != nil {
			return nil, err
		}
		logger.Info("solana resolver ready", zap.String("arbitrator", key.PublicKey().String()))
		out = append(out, r)
	}
	return out, nil
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
