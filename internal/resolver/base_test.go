package resolver

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"escrowScope/internal/model"
)

var testContract = common.HexToAddress("0x00000000000000000000000000000000000000e5")

type fakeEVM struct {
	estimateErr error
	status      uint64
	sent        []*types.Transaction
}

func (f *fakeEVM) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeEVM) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: big.NewInt(1_000)}, nil
}

func (f *fakeEVM) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(10), nil
}

func (f *fakeEVM) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, f.estimateErr
}

func (f *fakeEVM) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeEVM) WaitReceipt(_ context.Context, hash common.Hash, _ uint64, _ time.Duration) (*types.Receipt, error) {
	return &types.Receipt{TxHash: hash, Status: f.status, BlockNumber: big.NewInt(101)}, nil
}

func newTestBaseResolver(t *testing.T, backend EVMBackend) *BaseResolver {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	r, err := NewBaseResolver(BaseConfig{
		Contract: testContract,
		ChainID:  big.NewInt(84532),
	}, backend, common.Bytes2Hex(crypto.FromECDSA(key)), nil)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return r
}

func baseRequest(ruling model.Ruling) Request {
	return Request{Chain: model.ChainBase, EscrowID: "42", Ruling: ruling}
}

func TestBaseResolverSubmitsSplit(t *testing.T) {
	backend := &fakeEVM{status: types.ReceiptStatusSuccessful}
	r := newTestBaseResolver(t, backend)

	receipt, err := r.Resolve(context.Background(), baseRequest(model.Split(5000, 5000)))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(backend.sent) != 1 {
		t.Fatalf("expected one transaction, got %d", len(backend.sent))
	}
	tx := backend.sent[0]
	if receipt.TxRef != tx.Hash().Hex() || receipt.Position != 101 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if tx.To() == nil || *tx.To() != testContract || tx.Nonce() != 7 || tx.Gas() != 120_000 {
		t.Fatalf("unexpected tx fields: to=%v nonce=%d gas=%d", tx.To(), tx.Nonce(), tx.Gas())
	}
	if tx.GasFeeCap().Cmp(big.NewInt(2_010)) != 0 {
		t.Fatalf("fee cap = %s", tx.GasFeeCap())
	}
	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(84532)), tx)
	if err != nil || sender != r.Address() {
		t.Fatalf("sender %s err %v, want %s", sender.Hex(), err, r.Address().Hex())
	}

	method := r.abi.Methods["resolveDispute"]
	if string(tx.Data()[:4]) != string(method.ID) {
		t.Fatalf("selector mismatch")
	}
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if args[0].(*big.Int).Int64() != 42 {
		t.Fatalf("escrow id = %v", args[0])
	}
	ruling := abi.ConvertType(args[1], new(disputeRuling)).(*disputeRuling)
	if ruling.RulingType != 2 || ruling.ClientBps != 5000 || ruling.ProviderBps != 5000 {
		t.Fatalf("ruling = %+v", ruling)
	}
}

func TestBaseResolverRejectsBeforeSending(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{name: "split not summing", req: baseRequest(model.Split(5000, 4999)), want: ErrInvalidRuling},
		{name: "pay client with bps", req: baseRequest(model.Ruling{Kind: model.RulingPayClient, ClientBps: 1}), want: ErrInvalidRuling},
		{name: "non numeric id", req: Request{Chain: model.ChainBase, EscrowID: "Esc1", Ruling: model.PayClient()}, want: ErrInvalidRequest},
		{name: "wrong chain", req: Request{Chain: model.ChainSolana, EscrowID: "1", Ruling: model.PayClient()}, want: ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeEVM{status: types.ReceiptStatusSuccessful}
			r := newTestBaseResolver(t, backend)
			_, err := r.Resolve(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if !IsPermanent(err) {
				t.Fatalf("expected permanent error")
			}
			if len(backend.sent) != 0 {
				t.Fatalf("transaction sent for invalid request")
			}
		})
	}
}

func TestBaseResolverSurfacesReverts(t *testing.T) {
	backend := &fakeEVM{status: types.ReceiptStatusFailed}
	r := newTestBaseResolver(t, backend)
	if _, err := r.Resolve(context.Background(), baseRequest(model.PayProvider())); !errors.Is(err, ErrReverted) {
		t.Fatalf("expected revert from receipt, got %v", err)
	}

	backend = &fakeEVM{estimateErr: errors.New("execution reverted: InvalidStatus")}
	r = newTestBaseResolver(t, backend)
	if _, err := r.Resolve(context.Background(), baseRequest(model.PayProvider())); !errors.Is(err, ErrReverted) {
		t.Fatalf("expected revert from estimate, got %v", err)
	}
	if len(backend.sent) != 0 {
		t.Fatalf("reverting call was broadcast")
	}
}
