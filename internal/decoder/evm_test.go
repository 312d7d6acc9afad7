package decoder

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"escrowScope/internal/model"
)

var (
	testContract = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testClient   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testProvider = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testToken    = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func TestEVMDecoderCreated(t *testing.T) {
	decoder, err := NewEVMDecoder(testContract)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	escrowABI, _ := EscrowABI()
	event := escrowABI.Events["EscrowCreated"]

	var taskHash [32]byte
	taskHash[0] = 0xab
	data, err := event.Inputs.NonIndexed().Pack(
		common.Address{},
		testToken,
		big.NewInt(1_000_000),
		uint16(100),
		uint16(50),
		uint64(1_700_000_000),
		uint64(1_700_086_400),
		uint64(3600),
		taskHash,
		uint8(1),
	)
	if err != nil {
		t.Fatalf("pack created: %v", err)
	}

	log := buildLog(event.ID, data, []common.Hash{
		topicFromUint(7),
		topicFromAddress(testClient),
		topicFromAddress(testProvider),
	})
	blockTime := time.Unix(1_700_000_012, 0)

	ev, err := decoder.Decode(log, blockTime)
	if err != nil {
		t.Fatalf("decode created: %v", err)
	}
	created, ok := ev.(model.Created)
	if !ok {
		t.Fatalf("decoded type mismatch: %T", ev)
	}
	if created.EscrowID != "7" || created.Chain != model.ChainBase {
		t.Fatalf("meta mismatch: %+v", created.EventMeta)
	}
	if created.Client != testClient.Hex() || created.Provider != testProvider.Hex() {
		t.Fatalf("parties mismatch: %+v", created)
	}
	if created.Arbitrator != "" {
		t.Fatalf("zero arbitrator should be empty, got %q", created.Arbitrator)
	}
	if created.Amount != "1000000" || created.ProtocolFeeBps != 100 || created.ArbitratorFeeBps != 50 {
		t.Fatalf("amounts mismatch: %+v", created)
	}
	if created.Verification != model.VerificationOracleCallback {
		t.Fatalf("verification mismatch: %s", created.Verification)
	}
	if created.CreatedAt.Unix() != 1_700_000_000 || created.GracePeriod != 3600 {
		t.Fatalf("times mismatch: %+v", created)
	}
	if created.TaskHash[:2] != "ab" || len(created.TaskHash) != 64 {
		t.Fatalf("task hash mismatch: %s", created.TaskHash)
	}
	if created.Ref != log.TxHash.Hex()+":3" || created.Position != 42 {
		t.Fatalf("ref mismatch: %s @ %d", created.Ref, created.Position)
	}
}

func TestEVMDecoderCreatedWideAmount(t *testing.T) {
	decoder, err := NewEVMDecoder(testContract)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	escrowABI, _ := EscrowABI()
	event := escrowABI.Events["EscrowCreated"]

	// 10 tokens at 18 decimals, past the range of int64.
	amount, _ := new(big.Int).SetString("10000000000000000000", 10)
	data, err := event.Inputs.NonIndexed().Pack(
		common.Address{},
		testToken,
		amount,
		uint16(100),
		uint16(0),
		uint64(1_700_000_000),
		uint64(1_700_086_400),
		uint64(3600),
		[32]byte{},
		uint8(0),
	)
	if err != nil {
		t.Fatalf("pack created: %v", err)
	}
	log := buildLog(event.ID, data, []common.Hash{
		topicFromUint(8),
		topicFromAddress(testClient),
		topicFromAddress(testProvider),
	})

	ev, err := decoder.Decode(log, time.Unix(1_700_000_012, 0))
	if err != nil {
		t.Fatalf("decode created: %v", err)
	}
	created := ev.(model.Created)
	if created.Amount != "10000000000000000000" {
		t.Fatalf("amount mismatch: %s", created.Amount)
	}
	if created.Amount.Big().Cmp(amount) != 0 {
		t.Fatalf("amount does not round-trip: %s", created.Amount)
	}
}

func TestEVMDecoderDisputeResolved(t *testing.T) {
	decoder, err := NewEVMDecoder(testContract)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	escrowABI, _ := EscrowABI()
	event := escrowABI.Events["DisputeResolved"]
	arbitrator := common.HexToAddress("0x5555555555555555555555555555555555555555")

	cases := []struct {
		name string
		idx  uint8
		c, p uint16
		want model.Ruling
	}{
		{name: "pay client drops bps", idx: 0, c: 10, p: 20, want: model.PayClient()},
		{name: "split keeps bps", idx: 2, c: 7000, p: 3000, want: model.Split(7000, 3000)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := event.Inputs.NonIndexed().Pack(tc.idx, tc.c, tc.p, uint64(1_700_000_500))
			if err != nil {
				t.Fatalf("pack resolved: %v", err)
			}
			log := buildLog(event.ID, data, []common.Hash{topicFromUint(9), topicFromAddress(arbitrator)})
			ev, err := decoder.Decode(log, time.Unix(1_700_000_500, 0))
			if err != nil {
				t.Fatalf("decode resolved: %v", err)
			}
			resolved := ev.(model.DisputeResolved)
			if resolved.Ruling != tc.want {
				t.Fatalf("ruling mismatch: %+v", resolved.Ruling)
			}
			if resolved.Arbitrator != arbitrator.Hex() || resolved.EscrowID != "9" {
				t.Fatalf("resolved mismatch: %+v", resolved)
			}
		})
	}
}

func TestEVMDecoderConfigUpdated(t *testing.T) {
	decoder, err := NewEVMDecoder(testContract)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	escrowABI, _ := EscrowABI()
	event := escrowABI.Events["ProtocolConfigUpdated"]

	data, err := event.Inputs.NonIndexed().Pack(testClient, testProvider, uint16(250), uint16(100), big.NewInt(10), big.NewInt(1_000_000), true)
	if err != nil {
		t.Fatalf("pack config: %v", err)
	}
	ev, err := decoder.Decode(buildLog(event.ID, data, nil), time.Unix(1_700_000_000, 0))
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	cfg := ev.(model.ConfigChanged).Config
	if cfg.Chain != model.ChainBase || cfg.ProtocolFeeBps != 250 || !cfg.Paused {
		t.Fatalf("config mismatch: %+v", cfg)
	}
	if cfg.FeeRecipient != testProvider.Hex() || cfg.MaxEscrowAmount != "1000000" {
		t.Fatalf("config mismatch: %+v", cfg)
	}
}

func TestEVMDecoderRejects(t *testing.T) {
	decoder, err := NewEVMDecoder(testContract)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	escrowABI, _ := EscrowABI()
	completed := escrowABI.Events["EscrowCompleted"]

	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	data, err := completed.Inputs.NonIndexed().Pack(huge, big.NewInt(1), uint64(1))
	if err != nil {
		t.Fatalf("pack completed: %v", err)
	}
	if _, err := decoder.Decode(buildLog(completed.ID, data, []common.Hash{topicFromUint(1)}), time.Now()); err == nil {
		t.Fatalf("expected amount overflow error")
	}

	foreign := buildLog(completed.ID, data, []common.Hash{topicFromUint(1)})
	foreign.Address = testToken
	if _, err := decoder.Decode(foreign, time.Now()); err == nil {
		t.Fatalf("expected address mismatch error")
	}

	unknown := buildLog(common.HexToHash("0xdead"), nil, nil)
	if decoder.CanDecode(unknown.Topics[0]) {
		t.Fatalf("unknown topic should not decode")
	}
	if _, err := decoder.Decode(unknown, time.Now()); err == nil {
		t.Fatalf("expected unsupported topic error")
	}
}

func buildLog(topic0 common.Hash, data []byte, indexed []common.Hash) types.Log {
	return types.Log{
		Address:     testContract,
		Topics:      append([]common.Hash{topic0}, indexed...),
		Data:        data,
		BlockNumber: 42,
		TxHash:      common.HexToHash("0xabc"),
		Index:       3,
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func topicFromUint(v int64) common.Hash {
	return common.BigToHash(big.NewInt(v))
}
