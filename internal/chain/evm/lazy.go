package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Lazy dials its endpoint on first use and verifies the chain id before
// handing the connection out. A failed dial is not cached, so the next
// call tries again.
type Lazy struct {
	url     string
	chainID int64

	mu     sync.Mutex
	client *Client
}

func NewLazy(url string, chainID int64) *Lazy {
	return &Lazy{url: url, chainID: chainID}
}

// Connect returns the shared client, dialing it if needed.
func (l *Lazy) Connect(ctx context.Context) (*Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}

	client, err := NewClient(ctx, l.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	got, err := client.GetChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if l.chainID != 0 && got.Int64() != l.chainID {
		client.Close()
		return nil, fmt.Errorf("endpoint is chain %s, expected %d", got, l.chainID)
	}
	l.client = client
	return client, nil
}

// Dial connects without returning the client.
func (l *Lazy) Dial(ctx context.Context) error {
	_, err := l.Connect(ctx)
	return err
}

// Connected reports whether a verified client is held.
func (l *Lazy) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.client != nil
}

func (l *Lazy) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		l.client.Close()
		l.client = nil
	}
}

// CanSubscribe follows the URL scheme and needs no connection.
func (l *Lazy) CanSubscribe() bool {
	return IsWebsocketURL(l.url)
}

func (l *Lazy) LatestBlockNumber(ctx context.Context) (uint64, error) {
	c, err := l.Connect(ctx)
	if err != nil {
		return 0, err
	}
	return c.LatestBlockNumber(ctx)
}

func (l *Lazy) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c, err := l.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return c.HeaderByNumber(ctx, number)
}

func (l *Lazy) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c, err := l.Connect(ctx)
	if err != nil {
		return 0, err
	}
	return c.BlockTimestamp(ctx, number)
}

func (l *Lazy) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	c, err := l.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return c.FilterLogs(ctx, fromBlock, toBlock, addresses, topic0)
}

func (l *Lazy) SubscribeLogs(ctx context.Context, addresses []common.Address, topic0 []common.Hash, ch chan<- types.Log) (ethereum.Subscription, error) {
	c, err := l.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return c.SubscribeLogs(ctx, addresses, topic0, ch)
}

func (l *Lazy) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	c, err := l.Connect(ctx)
	if err != nil {
		return 0, err
	}
	return c.PendingNonceAt(ctx, account)
}

func (l *Lazy) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	c, err := l.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return c.SuggestGasTipCap(ctx)
}

func (l *Lazy) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	c, err := l.Connect(ctx)
	if err != nil {
		return 0, err
	}
	return c.EstimateGas(ctx, msg)
}

func (l *Lazy) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	c, err := l.Connect(ctx)
	if err != nil {
		return err
	}
	return c.SendTransaction(ctx, tx)
}

func (l *Lazy) WaitReceipt(ctx context.Context, hash common.Hash, confirmations uint64, interval time.Duration) (*types.Receipt, error) {
	c, err := l.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return c.WaitReceipt(ctx, hash, confirmations, interval)
}
