package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"escrowScope/internal/chain/sol"
	"escrowScope/internal/decoder"
	"escrowScope/internal/model"
)

// LogSource is an open program log subscription.
type LogSource interface {
	Recv(ctx context.Context) (sol.LogNotification, error)
	Close()
}

// SolanaRPC is the part of the Solana transport the stream uses.
type SolanaRPC interface {
	AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
	Signatures(ctx context.Context, address solana.PublicKey, before, until solana.Signature, limit int) ([]sol.SignatureInfo, error)
	TransactionLogs(ctx context.Context, sig solana.Signature) (sol.TxLogs, error)
	Subscribe(ctx context.Context, program solana.PublicKey) (LogSource, error)
}

type solanaRPC struct {
	*sol.Client
}

// NewSolanaRPC adapts a sol.Client.
func NewSolanaRPC(client *sol.Client) SolanaRPC {
	return solanaRPC{Client: client}
}

func (r solanaRPC) Subscribe(ctx context.Context, program solana.PublicKey) (LogSource, error) {
	stream, err := r.Client.SubscribeLogs(ctx, program)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// SolanaConfig holds Solana stream settings.
type SolanaConfig struct {
	PageSize     int
	MaxRetries   int
	RetryBackoff time.Duration
}

// SolanaStream follows the escrow program's logs. Created and
// ProofSubmitted events are completed from the escrow account.
type SolanaStream struct {
	cfg     SolanaConfig
	rpc     SolanaRPC
	decoder *decoder.AnchorDecoder
	logger  *zap.Logger
	now     func() time.Time
}

func NewSolanaStream(cfg SolanaConfig, rpc SolanaRPC, dec *decoder.AnchorDecoder, logger *zap.Logger) *SolanaStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 1000 {
		cfg.PageSize = 1000
	}
	return &SolanaStream{
		cfg:     cfg,
		rpc:     rpc,
		decoder: dec,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *SolanaStream) Chain() model.Chain {
	return model.ChainSolana
}

func (s *SolanaStream) Stream(ctx context.Context, from *model.Cursor, sink Sink) error {
	src, err := s.rpc.Subscribe(ctx, s.decoder.Program())
	if err != nil {
		return fmt.Errorf("subscribe logs: %w", err)
	}
	defer src.Close()

	if err := s.snapshotConfig(ctx, sink); err != nil {
		return err
	}

	if from != nil {
		rng := Range{Until: from.Ref}
		if from.Ref == "" {
			rng.From = from.Position + 1
		}
		if err := s.Backfill(ctx, rng, sink); err != nil {
			return err
		}
	}

	for {
		note, err := src.Recv(ctx)
		if err != nil {
			return fmt.Errorf("log subscription: %w", err)
		}
		cursor := model.Cursor{Position: note.Slot, Ref: note.Signature.String()}
		if note.Failed {
			if err := sink(ctx, Batch{Cursor: cursor}); err != nil {
				return err
			}
			continue
		}
		events, decodeErrs := s.decodeTx(ctx, decoder.Tx{
			Signature: note.Signature.String(),
			Slot:      note.Slot,
			BlockTime: s.now(),
			Logs:      note.Logs,
		})
		if err := sink(ctx, Batch{Events: events, Errors: decodeErrs, Cursor: cursor}); err != nil {
			return err
		}
	}
}

// Backfill walks signature pages from newest back to rng.Until (exclusive)
// or rng.From, then delivers transactions oldest first.
func (s *SolanaStream) Backfill(ctx context.Context, rng Range, sink Sink) error {
	var until solana.Signature
	if rng.Until != "" {
		sig, err := solana.SignatureFromBase58(rng.Until)
		if err != nil {
			return fmt.Errorf("parse until signature: %w", err)
		}
		until = sig
	}

	sigs, err := s.collectSignatures(ctx, until, rng.From)
	if err != nil {
		return err
	}
	s.logger.Info("backfill signatures", zap.Int("count", len(sigs)), zap.Uint64("from_slot", rng.From))

	for i := len(sigs) - 1; i >= 0; i-- {
		info := sigs[i]
		if rng.To > 0 && info.Slot > rng.To {
			continue
		}
		cursor := model.Cursor{Position: info.Slot, Ref: info.Signature.String()}
		if info.Failed {
			if err := sink(ctx, Batch{Cursor: cursor}); err != nil {
				return err
			}
			continue
		}

		tx, err := s.transactionWithRetry(ctx, info.Signature)
		if err != nil {
			return err
		}
		batch := Batch{Cursor: cursor}
		if !tx.Failed {
			batch.Events, batch.Errors = s.decodeTx(ctx, decoder.Tx{
				Signature: tx.Signature.String(),
				Slot:      tx.Slot,
				BlockTime: tx.BlockTime,
				Logs:      tx.Logs,
			})
		}
		if err := sink(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *SolanaStream) collectSignatures(ctx context.Context, until solana.Signature, minSlot uint64) ([]sol.SignatureInfo, error) {
	var (
		out    []sol.SignatureInfo
		before solana.Signature
	)
	for {
		var page []sol.SignatureInfo
		err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			page, err = s.rpc.Signatures(ctx, s.decoder.Program(), before, until, s.cfg.PageSize)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, info := range page {
			if minSlot > 0 && info.Slot < minSlot {
				return out, nil
			}
			out = append(out, info)
		}
		if len(page) < s.cfg.PageSize {
			return out, nil
		}
		before = page[len(page)-1].Signature
	}
}

func (s *SolanaStream) transactionWithRetry(ctx context.Context, sig solana.Signature) (sol.TxLogs, error) {
	var tx sol.TxLogs
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		tx, err = s.rpc.TransactionLogs(ctx, sig)
		if err != nil {
			s.logger.Warn("get transaction failed", zap.String("signature", sig.String()), zap.Error(err))
		}
		return err
	})
	return tx, err
}

func (s *SolanaStream) decodeTx(ctx context.Context, tx decoder.Tx) ([]model.Event, []model.DecodeError) {
	events, errs := s.decoder.DecodeTx(tx)
	if s.decoder.HasInstruction(tx.Logs, updateConfigInstruction) {
		if ev, ok := s.configEvent(ctx, tx.Signature); ok {
			events = append(events, ev)
		}
	}
	for i, ev := range events {
		switch e := ev.(type) {
		case model.Created:
			if acct, ok := s.escrowAccount(ctx, e.EscrowID); ok {
				events[i] = decoder.EnrichCreated(e, acct)
			}
		case model.ProofSubmitted:
			if acct, ok := s.escrowAccount(ctx, e.EscrowID); ok {
				events[i] = decoder.EnrichProof(e, acct)
			}
		}
	}
	return events, errs
}

// escrowAccount reads an escrow account best effort. Settled escrows may
// already be closed, which leaves the event as decoded.
func (s *SolanaStream) escrowAccount(ctx context.Context, id string) (decoder.EscrowAccount, bool) {
	key, err := solana.PublicKeyFromBase58(id)
	if err != nil {
		return decoder.EscrowAccount{}, false
	}
	var data []byte
	err = withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		data, err = s.rpc.AccountData(ctx, key)
		if errors.Is(err, sol.ErrAccountNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		s.logger.Warn("read escrow account failed", zap.String("escrow", id), zap.Error(err))
		return decoder.EscrowAccount{}, false
	}
	if data == nil {
		s.logger.Debug("escrow account closed", zap.String("escrow", id))
		return decoder.EscrowAccount{}, false
	}
	acct, err := decoder.DecodeEscrowAccount(data)
	if err != nil {
		s.logger.Warn("decode escrow account failed", zap.String("escrow", id), zap.Error(err))
		return decoder.EscrowAccount{}, false
	}
	return acct, true
}

// updateConfigInstruction changes the config account without logging an
// event, so its transactions trigger a fresh read.
const updateConfigInstruction = "UpdateProtocolConfig"

// snapshotConfig emits the protocol config account as a ConfigChanged event.
// Every session starts with a read; later changes are picked up from
// UpdateProtocolConfig transactions.
func (s *SolanaStream) snapshotConfig(ctx context.Context, sink Sink) error {
	ev, ok := s.configEvent(ctx, "")
	if !ok {
		return nil
	}
	return sink(ctx, Batch{Events: []model.Event{ev}})
}

// configEvent reads the config account best effort. txRef names the
// transaction that changed it, if any.
func (s *SolanaStream) configEvent(ctx context.Context, txRef string) (model.ConfigChanged, bool) {
	addr, err := decoder.ConfigAddress(s.decoder.Program())
	if err != nil {
		s.logger.Warn("derive config address failed", zap.Error(err))
		return model.ConfigChanged{}, false
	}
	var data []byte
	err = withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		data, err = s.rpc.AccountData(ctx, addr)
		if errors.Is(err, sol.ErrAccountNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		s.logger.Warn("read protocol config failed", zap.Error(err))
		return model.ConfigChanged{}, false
	}
	if data == nil {
		s.logger.Info("protocol config not initialized", zap.String("address", addr.String()))
		return model.ConfigChanged{}, false
	}
	acct, err := decoder.DecodeConfigAccount(data)
	if err != nil {
		s.logger.Warn("decode protocol config failed", zap.Error(err))
		return model.ConfigChanged{}, false
	}
	ref := "config:" + addr.String()
	if txRef != "" {
		ref = "config:" + txRef
	}
	now := s.now()
	return model.ConfigChanged{
		EventMeta: model.EventMeta{
			Chain:     model.ChainSolana,
			Ref:       ref,
			TxRef:     txRef,
			Timestamp: now,
		},
		Config: acct.ProtocolConfig(now),
	}, true
}
