// Package sol wraps the Solana JSON-RPC and websocket endpoints used by the
// listener and the resolver.
package sol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/ratelimit"
)

// ErrAccountNotFound is returned when an account does not exist or was closed.
var ErrAccountNotFound = errors.New("account not found")

// Client is a rate-limited Solana RPC client.
type Client struct {
	rpc        *rpc.Client
	wsURL      string
	limiter    ratelimit.Limiter
	commitment rpc.CommitmentType
}

// Options configure a Client.
type Options struct {
	RPCURL     string
	WSURL      string
	RPS        int
	Commitment rpc.CommitmentType
}

func NewClient(opts Options) (*Client, error) {
	if opts.RPCURL == "" {
		return nil, fmt.Errorf("solana rpc url is required")
	}
	limiter := ratelimit.NewUnlimited()
	if opts.RPS > 0 {
		limiter = ratelimit.New(opts.RPS)
	}
	commitment := opts.Commitment
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &Client{
		rpc:        rpc.New(opts.RPCURL),
		wsURL:      opts.WSURL,
		limiter:    limiter,
		commitment: commitment,
	}, nil
}

// Close releases the HTTP transport.
func (c *Client) Close() error {
	return c.rpc.Close()
}

func (c *Client) Commitment() rpc.CommitmentType {
	return c.commitment
}

// AccountData returns the raw data of account.
func (c *Client) AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	c.limiter.Take()
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", account, ErrAccountNotFound)
		}
		return nil, fmt.Errorf("get account %s: %w", account, err)
	}
	if out == nil || out.Value == nil || out.Value.Data == nil {
		return nil, fmt.Errorf("%s: %w", account, ErrAccountNotFound)
	}
	return out.Value.Data.GetBinary(), nil
}

// Slot returns the current slot at the client's commitment.
func (c *Client) Slot(ctx context.Context) (uint64, error) {
	c.limiter.Take()
	return c.rpc.GetSlot(ctx, c.commitment)
}

// SignatureInfo is one entry of a signature page.
type SignatureInfo struct {
	Signature solana.Signature
	Slot      uint64
	Failed    bool
}

// Signatures returns up to limit signatures that mention address, newest
// first, strictly older than before and strictly newer than until. Zero
// signatures leave a bound open.
func (c *Client) Signatures(ctx context.Context, address solana.PublicKey, before, until solana.Signature, limit int) ([]SignatureInfo, error) {
	c.limiter.Take()
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Before:     before,
		Until:      until,
		Commitment: c.commitment,
	}
	out, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, address, opts)
	if err != nil {
		return nil, fmt.Errorf("get signatures for %s: %w", address, err)
	}
	sigs := make([]SignatureInfo, 0, len(out))
	for _, entry := range out {
		if entry == nil {
			continue
		}
		sigs = append(sigs, SignatureInfo{
			Signature: entry.Signature,
			Slot:      entry.Slot,
			Failed:    entry.Err != nil,
		})
	}
	return sigs, nil
}

// TxLogs is the part of a confirmed transaction the decoder needs.
type TxLogs struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime time.Time
	Logs      []string
	Failed    bool
}

// TransactionLogs fetches a confirmed transaction's log messages.
func (c *Client) TransactionLogs(ctx context.Context, sig solana.Signature) (TxLogs, error) {
	c.limiter.Take()
	version := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &version,
	})
	if err != nil {
		return TxLogs{}, fmt.Errorf("get transaction %s: %w", sig, err)
	}
	if out == nil {
		return TxLogs{}, fmt.Errorf("transaction %s not found", sig)
	}
	tx := TxLogs{Signature: sig, Slot: out.Slot}
	if out.BlockTime != nil {
		tx.BlockTime = out.BlockTime.Time().UTC()
	}
	if out.Meta != nil {
		tx.Logs = out.Meta.LogMessages
		tx.Failed = out.Meta.Err != nil
	}
	return tx, nil
}

// LogNotification is one logsSubscribe notification.
type LogNotification struct {
	Signature solana.Signature
	Slot      uint64
	Logs      []string
	Failed    bool
}

// LogStream is an open logsSubscribe subscription.
type LogStream struct {
	conn *ws.Client
	sub  *ws.LogSubscription
}

// SubscribeLogs opens a websocket subscription for transactions that
// mention program.
func (c *Client) SubscribeLogs(ctx context.Context, program solana.PublicKey) (*LogStream, error) {
	if c.wsURL == "" {
		return nil, fmt.Errorf("solana websocket url is required")
	}
	conn, err := ws.Connect(ctx, c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.wsURL, err)
	}
	sub, err := conn.LogsSubscribeMentions(program, c.commitment)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("logs subscribe: %w", err)
	}
	return &LogStream{conn: conn, sub: sub}, nil
}

// Recv blocks for the next notification.
func (s *LogStream) Recv(ctx context.Context) (LogNotification, error) {
	res, err := s.sub.Recv(ctx)
	if err != nil {
		return LogNotification{}, err
	}
	if res == nil {
		return LogNotification{}, fmt.Errorf("subscription closed")
	}
	return LogNotification{
		Signature: res.Value.Signature,
		Slot:      res.Context.Slot,
		Logs:      res.Value.Logs,
		Failed:    res.Value.Err != nil,
	}, nil
}

func (s *LogStream) Close() {
	s.sub.Unsubscribe()
	s.conn.Close()
}

// LatestBlockhash returns a finalized recent blockhash for signing.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}

// Send broadcasts a signed transaction after preflight simulation.
func (c *Client) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: c.commitment,
	})
}

// ErrTransactionFailed wraps an on-chain execution error.
var ErrTransactionFailed = errors.New("transaction failed")

// WaitFinalized polls the signature until it is finalized or reports an
// execution error.
func (c *Client) WaitFinalized(ctx context.Context, sig solana.Signature, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return fmt.Errorf("get signature status %s: %w", sig, err)
		}
		if out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %s: %v", ErrTransactionFailed, sig, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
