package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"escrowScope/internal/decoder"
	"escrowScope/internal/model"
)

// EVMClient is the part of the EVM transport the Base stream uses.
type EVMClient interface {
	CanSubscribe() bool
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	SubscribeLogs(ctx context.Context, addresses []common.Address, topic0 []common.Hash, ch chan<- types.Log) (ethereum.Subscription, error)
}

// dialer is implemented by clients that connect on first use. The stream
// dials at session start so a dead endpoint fails the session, not boot.
type dialer interface {
	Dial(ctx context.Context) error
}

// BaseConfig holds Base stream settings.
type BaseConfig struct {
	Confirmations uint64
	PollInterval  time.Duration
	BatchSize     uint64
	StartBlock    uint64
	MaxRetries    int
	RetryBackoff  time.Duration
}

// BaseStream watches the escrow contract's logs. A websocket endpoint is
// subscribed to; an HTTP endpoint is polled over confirmed block ranges.
// With more than one confirmation the subscription only paces reads of
// confirmed ranges, so both modes apply the same finalized logs.
type BaseStream struct {
	cfg     BaseConfig
	client  EVMClient
	decoder *decoder.EVMDecoder
	logger  *zap.Logger
}

func NewBaseStream(cfg BaseConfig, client EVMClient, dec *decoder.EVMDecoder, logger *zap.Logger) *BaseStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &BaseStream{cfg: cfg, client: client, decoder: dec, logger: logger}
}

func (s *BaseStream) Chain() model.Chain {
	return model.ChainBase
}

func (s *BaseStream) Stream(ctx context.Context, from *model.Cursor, sink Sink) error {
	if err := s.dial(ctx); err != nil {
		return err
	}
	if s.client.CanSubscribe() {
		return s.subscribe(ctx, from, sink)
	}
	return s.poll(ctx, from, sink)
}

// Backfill scans [rng.From, rng.To] in batches.
func (s *BaseStream) Backfill(ctx context.Context, rng Range, sink Sink) error {
	if err := s.dial(ctx); err != nil {
		return err
	}
	from := rng.From
	if from == 0 {
		from = s.cfg.StartBlock
	}
	to := rng.To
	if to == 0 {
		head, ok, err := s.confirmedHead(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		to = head
	}
	if from > to {
		s.logger.Info("nothing to backfill", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}
	return s.scan(ctx, from, to, sink)
}

func (s *BaseStream) dial(ctx context.Context) error {
	d, ok := s.client.(dialer)
	if !ok {
		return nil
	}
	if err := d.Dial(ctx); err != nil {
		return fmt.Errorf("connect base: %w", err)
	}
	s.logger.Info("connected", zap.Bool("subscribe", s.client.CanSubscribe()))
	return nil
}

func (s *BaseStream) subscribe(ctx context.Context, from *model.Cursor, sink Sink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logs := make(chan types.Log, 256)
	sub, err := s.client.SubscribeLogs(ctx, s.addresses(), s.decoder.Topics(), logs)
	if err != nil {
		return fmt.Errorf("subscribe logs: %w", err)
	}
	defer sub.Unsubscribe()

	if s.cfg.Confirmations > 1 {
		return s.followConfirmed(ctx, from, sub, logs, sink)
	}

	// Subscribed first, so nothing between the catch-up head and the first
	// live log is missed. Overlap is applied twice and is harmless.
	var last uint64
	if from != nil {
		latest, err := s.latest(ctx)
		if err != nil {
			return err
		}
		last = from.Position
		if latest > from.Position {
			if err := s.scan(ctx, from.Position+1, latest, sink); err != nil {
				return err
			}
			last = latest
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return subscriptionErr(err)
		case log := <-logs:
			events, decodeErrs, err := s.decode(ctx, []types.Log{log})
			if err != nil {
				return err
			}
			batch := Batch{Events: events, Errors: decodeErrs}
			// Logs of one block may still be arriving, so only the
			// previous block is known to be complete.
			if log.BlockNumber > 0 && log.BlockNumber-1 > last {
				last = log.BlockNumber - 1
				batch.Cursor = model.Cursor{Position: last}
			}
			if err := sink(ctx, batch); err != nil {
				return err
			}
		}
	}
}

// followConfirmed holds every log back until it is Confirmations deep. Live
// logs only tell it the chain has moved; the confirmed range is then read
// with eth_getLogs, and a quiet chain is noticed by checking the head every
// PollInterval.
func (s *BaseStream) followConfirmed(ctx context.Context, from *model.Cursor, sub ethereum.Subscription, logs <-chan types.Log, sink Sink) error {
	next, err := s.nextBlock(ctx, from)
	if err != nil {
		return err
	}
	advance := func(head uint64) error {
		if head < next {
			return nil
		}
		if err := s.scan(ctx, next, head, sink); err != nil {
			return err
		}
		next = head + 1
		return nil
	}

	head, ok, err := s.confirmedHead(ctx)
	if err != nil {
		return err
	}
	if ok {
		if err := advance(head); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return subscriptionErr(err)
		case log := <-logs:
			if log.Removed {
				continue
			}
			if head, ok := ConfirmedHead(log.BlockNumber, s.cfg.Confirmations); ok {
				if err := advance(head); err != nil {
					return err
				}
			}
		case <-ticker.C:
			head, ok, err := s.confirmedHead(ctx)
			if err != nil {
				return err
			}
			if ok {
				if err := advance(head); err != nil {
					return err
				}
			}
		}
	}
}

func subscriptionErr(err error) error {
	if err == nil {
		err = errors.New("subscription closed")
	}
	return fmt.Errorf("log subscription: %w", err)
}

func (s *BaseStream) poll(ctx context.Context, from *model.Cursor, sink Sink) error {
	next, err := s.nextBlock(ctx, from)
	if err != nil {
		return err
	}

	for {
		head, ok, err := s.confirmedHead(ctx)
		if err != nil {
			return err
		}
		if ok && head >= next {
			if err := s.scan(ctx, next, head, sink); err != nil {
				return err
			}
			next = head + 1
		}
		if err := sleep(ctx, s.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// nextBlock is the first block a session reads: the one after the cursor,
// or after the confirmed head when there is no cursor.
func (s *BaseStream) nextBlock(ctx context.Context, from *model.Cursor) (uint64, error) {
	if from != nil {
		return from.Position + 1, nil
	}
	head, ok, err := s.confirmedHead(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return head + 1, nil
}

// scan delivers one batch per block range, each carrying the range end as
// its cursor.
func (s *BaseStream) scan(ctx context.Context, from, to uint64, sink Sink) error {
	ranges, err := SplitRange(from, to, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.logger.Debug("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := s.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}
		events, decodeErrs, err := s.decode(ctx, logs)
		if err != nil {
			return err
		}
		batch := Batch{
			Events: events,
			Errors: decodeErrs,
			Cursor: model.Cursor{Position: blockRange.To},
		}
		if err := sink(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// decode turns logs into events. Removed logs belong to an orphaned block
// and are dropped. Only a failed timestamp lookup is returned as an error.
func (s *BaseStream) decode(ctx context.Context, logs []types.Log) ([]model.Event, []model.DecodeError, error) {
	var (
		events []model.Event
		errs   []model.DecodeError
	)
	for _, log := range logs {
		if log.Removed {
			s.logger.Debug("skip removed log", zap.String("tx", log.TxHash.Hex()), zap.Uint("index", log.Index))
			continue
		}
		ts, err := s.blockTimestampWithRetry(ctx, log.BlockNumber)
		if err != nil {
			return nil, nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}
		ev, err := s.decoder.Decode(log, time.Unix(int64(ts), 0))
		if err != nil {
			errs = append(errs, model.DecodeError{
				Chain:    model.ChainBase,
				Position: log.BlockNumber,
				TxRef:    log.TxHash.Hex(),
				Index:    int(log.Index),
				Error:    err.Error(),
			})
			continue
		}
		events = append(events, ev)
	}
	return events, errs, nil
}

func (s *BaseStream) addresses() []common.Address {
	return []common.Address{s.decoder.Contract()}
}

func (s *BaseStream) latest(ctx context.Context) (uint64, error) {
	var latest uint64
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		latest, err = s.client.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}
	return latest, nil
}

func (s *BaseStream) confirmedHead(ctx context.Context) (uint64, bool, error) {
	latest, err := s.latest(ctx)
	if err != nil {
		return 0, false, err
	}
	head, ok := ConfirmedHead(latest, s.cfg.Confirmations)
	return head, ok, nil
}

func (s *BaseStream) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = s.client.FilterLogs(ctx, fromBlock, toBlock, s.addresses(), s.decoder.Topics())
		if err != nil {
			s.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (s *BaseStream) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = s.client.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			s.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}
