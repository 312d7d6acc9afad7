package listener

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"escrowScope/internal/chain/sol"
	"escrowScope/internal/decoder"
	"escrowScope/internal/model"
)

var (
	solProgram = solana.MustPublicKeyFromBase58("8rXSN62qT7hb3DkcYrMmi6osPxak7nhXi2cBGDNbh7Py")
	solEscrow  = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	solAgent   = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
)

func testSig(n byte) solana.Signature {
	var sig solana.Signature
	sig[0] = n
	return sig
}

func acceptedLogs(acceptedAt int64) []string {
	disc := sha256.Sum256([]byte("event:EscrowAccepted"))
	payload := append([]byte{}, disc[:8]...)
	payload = append(payload, solEscrow[:]...)
	payload = append(payload, solAgent[:]...)
	payload = binary.LittleEndian.AppendUint64(payload, uint64(acceptedAt))
	return []string{
		"Program " + solProgram.String() + " invoke [1]",
		"Program data: " + base64.StdEncoding.EncodeToString(payload),
		"Program " + solProgram.String() + " success",
	}
}

type fakeSource struct {
	notes []sol.LogNotification
}

func (f *fakeSource) Recv(ctx context.Context) (sol.LogNotification, error) {
	if len(f.notes) == 0 {
		return sol.LogNotification{}, errors.New("websocket closed")
	}
	n := f.notes[0]
	f.notes = f.notes[1:]
	return n, nil
}

func (f *fakeSource) Close() {}

type fakeSolana struct {
	sigs      []sol.SignatureInfo
	untilSeen []solana.Signature
	source    *fakeSource
	// configs are returned by successive config account reads, the last
	// one repeating.
	configs     [][]byte
	configReads int
}

func (f *fakeSolana) AccountData(_ context.Context, key solana.PublicKey) ([]byte, error) {
	configAddr, err := decoder.ConfigAddress(solProgram)
	if err != nil {
		return nil, err
	}
	if key.Equals(configAddr) && len(f.configs) > 0 {
		idx := f.configReads
		if idx >= len(f.configs) {
			idx = len(f.configs) - 1
		}
		f.configReads++
		return f.configs[idx], nil
	}
	return nil, fmt.Errorf("x: %w", sol.ErrAccountNotFound)
}

func configData(feeAuthority solana.PublicKey) []byte {
	disc := sha256.Sum256([]byte("account:ProtocolConfig"))
	data := append([]byte{}, disc[:8]...)
	data = append(data, solAgent[:]...)
	data = append(data, feeAuthority[:]...)
	data = binary.LittleEndian.AppendUint16(data, 50)
	data = binary.LittleEndian.AppendUint16(data, 100)
	data = binary.LittleEndian.AppendUint64(data, 1)
	data = binary.LittleEndian.AppendUint64(data, 1_000_000_000)
	data = binary.LittleEndian.AppendUint64(data, 300)
	data = binary.LittleEndian.AppendUint64(data, 7_776_000)
	return append(data, 0, 254)
}

func instructionLogs(program solana.PublicKey, name string) []string {
	return []string{
		"Program " + program.String() + " invoke [1]",
		"Program log: Instruction: " + name,
		"Program " + program.String() + " success",
	}
}

func (f *fakeSolana) Signatures(_ context.Context, _ solana.PublicKey, before, until solana.Signature, limit int) ([]sol.SignatureInfo, error) {
	f.untilSeen = append(f.untilSeen, until)
	start := 0
	if !before.IsZero() {
		for i, s := range f.sigs {
			if s.Signature == before {
				start = i + 1
			}
		}
	}
	end := start + limit
	if end > len(f.sigs) {
		end = len(f.sigs)
	}
	return f.sigs[start:end], nil
}

func (f *fakeSolana) TransactionLogs(_ context.Context, sig solana.Signature) (sol.TxLogs, error) {
	for _, s := range f.sigs {
		if s.Signature == sig {
			return sol.TxLogs{
				Signature: sig,
				Slot:      s.Slot,
				BlockTime: time.Unix(int64(s.Slot), 0),
				Logs:      acceptedLogs(int64(s.Slot)),
			}, nil
		}
	}
	return sol.TxLogs{}, errors.New("not found")
}

func (f *fakeSolana) Subscribe(context.Context, solana.PublicKey) (LogSource, error) {
	return f.source, nil
}

func TestSolanaBackfillOldestFirst(t *testing.T) {
	rpc := &fakeSolana{sigs: []sol.SignatureInfo{
		{Signature: testSig(5), Slot: 50},
		{Signature: testSig(4), Slot: 40, Failed: true},
		{Signature: testSig(3), Slot: 30},
		{Signature: testSig(2), Slot: 20},
		{Signature: testSig(1), Slot: 10},
	}}
	stream := NewSolanaStream(SolanaConfig{PageSize: 2}, rpc, decoder.NewAnchorDecoder(solProgram), nil)

	var batches []Batch
	err := stream.Backfill(context.Background(), Range{From: 20}, func(_ context.Context, b Batch) error {
		batches = append(batches, b)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, batches, 4)
	var slots []uint64
	for _, b := range batches {
		slots = append(slots, b.Cursor.Position)
	}
	require.Equal(t, []uint64{20, 30, 40, 50}, slots)
	require.Empty(t, batches[2].Events, "failed transaction carries only its cursor")

	ev, ok := batches[0].Events[0].(model.Accepted)
	require.True(t, ok)
	require.Equal(t, solEscrow.String(), ev.EscrowID)
	require.Equal(t, testSig(2).String()+":0", ev.Ref)
}

func TestSolanaStreamCatchesUpThenFollows(t *testing.T) {
	rpc := &fakeSolana{
		sigs: []sol.SignatureInfo{{Signature: testSig(9), Slot: 90}},
		source: &fakeSource{notes: []sol.LogNotification{
			{Signature: testSig(10), Slot: 100, Logs: acceptedLogs(100)},
			{Signature: testSig(11), Slot: 101, Failed: true},
		}},
	}
	stream := NewSolanaStream(SolanaConfig{}, rpc, decoder.NewAnchorDecoder(solProgram), nil)

	from := model.Cursor{Position: 80, Ref: testSig(8).String()}
	var batches []Batch
	err := stream.Stream(context.Background(), &from, func(_ context.Context, b Batch) error {
		batches = append(batches, b)
		return nil
	})
	require.Error(t, err)
	require.Equal(t, testSig(8), rpc.untilSeen[0])

	require.Len(t, batches, 3)
	require.Equal(t, testSig(9).String(), batches[0].Cursor.Ref)
	require.Len(t, batches[1].Events, 1)
	require.Equal(t, uint64(101), batches[2].Cursor.Position)
	require.Empty(t, batches[2].Events)
}

func TestSolanaStreamRereadsConfigOnUpdate(t *testing.T) {
	oldFees := solana.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111")
	newFees := solana.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")
	other := solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	rpc := &fakeSolana{
		configs: [][]byte{configData(oldFees), configData(newFees)},
		source: &fakeSource{notes: []sol.LogNotification{
			{Signature: testSig(20), Slot: 200, Logs: instructionLogs(solProgram, "UpdateProtocolConfig")},
			{Signature: testSig(21), Slot: 201, Logs: instructionLogs(other, "UpdateProtocolConfig")},
			{Signature: testSig(22), Slot: 202, Logs: acceptedLogs(202)},
		}},
	}
	stream := NewSolanaStream(SolanaConfig{}, rpc, decoder.NewAnchorDecoder(solProgram), nil)

	var batches []Batch
	err := stream.Stream(context.Background(), nil, func(_ context.Context, b Batch) error {
		batches = append(batches, b)
		return nil
	})
	require.Error(t, err)
	require.Equal(t, 2, rpc.configReads, "only the program's own update triggers a read")

	require.Len(t, batches, 4)
	first, ok := batches[0].Events[0].(model.ConfigChanged)
	require.True(t, ok)
	require.Equal(t, oldFees.String(), first.Config.FeeRecipient)

	require.Len(t, batches[1].Events, 1)
	updated, ok := batches[1].Events[0].(model.ConfigChanged)
	require.True(t, ok)
	require.Equal(t, newFees.String(), updated.Config.FeeRecipient)
	require.Equal(t, testSig(20).String(), updated.TxRef)
	require.Equal(t, uint64(200), batches[1].Cursor.Position)

	require.Empty(t, batches[2].Events)
	require.Len(t, batches[3].Events, 1)
}
