package resolver

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"escrowScope/internal/decoder"
	"escrowScope/internal/metrics"
	"escrowScope/internal/model"
)

// EVMBackend is the part of the EVM transport the Base resolver uses.
type EVMBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	WaitReceipt(ctx context.Context, hash common.Hash, confirmations uint64, interval time.Duration) (*types.Receipt, error)
}

// BaseConfig holds Base resolver settings.
type BaseConfig struct {
	Contract      common.Address
	ChainID       *big.Int
	Confirmations uint64
	PollInterval  time.Duration
}

// disputeRuling mirrors the contract's DisputeRuling tuple.
type disputeRuling struct {
	RulingType  uint8
	ClientBps   uint16
	ProviderBps uint16
}

// BaseResolver calls resolveDispute(escrowId, ruling) as the arbitrator.
type BaseResolver struct {
	cfg     BaseConfig
	backend EVMBackend
	key     *ecdsa.PrivateKey
	from    common.Address
	abi     abi.ABI
	metrics *metrics.Resolver
	logger  *zap.Logger

	// nonce assignment and broadcast are serialized
	sendMu sync.Mutex
}

var _ Resolver = (*BaseResolver)(nil)

func NewBaseResolver(cfg BaseConfig, backend EVMBackend, privateKeyHex string, logger *zap.Logger) (*BaseResolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("base resolver: chain id is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("base resolver: parse private key: %w", err)
	}
	parsed, err := decoder.EscrowABI()
	if err != nil {
		return nil, err
	}
	if cfg.Confirmations == 0 {
		cfg.Confirmations = 1
	}
	return &BaseResolver{
		cfg:     cfg,
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		abi:     parsed,
		metrics: metrics.NewResolver(model.ChainBase),
		logger:  logger.With(zap.String("chain", string(model.ChainBase))),
	}, nil
}

func (r *BaseResolver) Chain() model.Chain {
	return model.ChainBase
}

// Address is the arbitrator account that signs settlements.
func (r *BaseResolver) Address() common.Address {
	return r.from
}

// PackResolveDispute encodes the resolveDispute call.
func PackResolveDispute(contractABI abi.ABI, escrowID *big.Int, ruling model.Ruling) ([]byte, error) {
	idx, err := ruling.Index()
	if err != nil {
		return nil, err
	}
	arg := disputeRuling{RulingType: idx}
	if ruling.Kind == model.RulingSplit {
		arg.ClientBps = ruling.ClientBps
		arg.ProviderBps = ruling.ProviderBps
	}
	return contractABI.Pack("resolveDispute", escrowID, arg)
}

func (r *BaseResolver) Resolve(ctx context.Context, req Request) (Receipt, error) {
	started := time.Now()
	receipt, status, err := r.resolve(ctx, req)
	r.metrics.ObserveSubmission(status, started)
	return receipt, err
}

func (r *BaseResolver) resolve(ctx context.Context, req Request) (Receipt, string, error) {
	if err := Validate(model.ChainBase, req); err != nil {
		return Receipt{}, "invalid", err
	}
	escrowID, ok := new(big.Int).SetString(req.EscrowID, 10)
	if !ok || escrowID.Sign() < 0 {
		return Receipt{}, "invalid", fmt.Errorf("%w: escrow id %q is not a uint256", ErrInvalidRequest, req.EscrowID)
	}
	data, err := PackResolveDispute(r.abi, escrowID, req.Ruling)
	if err != nil {
		return Receipt{}, "invalid", fmt.Errorf("%w: pack resolveDispute: %v", ErrInvalidRequest, err)
	}

	signed, err := r.send(ctx, data)
	if err != nil {
		if isRevert(err) {
			return Receipt{}, "reverted", fmt.Errorf("%w: %v", ErrReverted, err)
		}
		return Receipt{}, "error", err
	}
	r.logger.Info("settlement broadcast",
		zap.String("escrow", req.EscrowID),
		zap.String("tx", signed.Hash().Hex()),
		zap.String("ruling", string(req.Ruling.Kind)),
	)

	rcpt, err := r.backend.WaitReceipt(ctx, signed.Hash(), r.cfg.Confirmations, r.cfg.PollInterval)
	if err != nil {
		return Receipt{}, "error", fmt.Errorf("wait receipt %s: %w", signed.Hash().Hex(), err)
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return Receipt{}, "reverted", fmt.Errorf("%w: tx %s", ErrReverted, signed.Hash().Hex())
	}
	var block uint64
	if rcpt.BlockNumber != nil {
		block = rcpt.BlockNumber.Uint64()
	}
	return Receipt{TxRef: signed.Hash().Hex(), Position: block}, "success", nil
}

func (r *BaseResolver) send(ctx context.Context, data []byte) (*types.Transaction, error) {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	to := r.cfg.Contract
	gas, err := r.backend.EstimateGas(ctx, ethereum.CallMsg{From: r.from, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	nonce, err := r.backend.PendingNonceAt(ctx, r.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	tip, err := r.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest tip: %w", err)
	}
	head, err := r.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   r.cfg.ChainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas * 12 / 10,
		To:        &to,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(r.cfg.ChainID), r.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := r.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}
	return signed, nil
}

func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "revert")
}
