package decoder

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"escrowScope/internal/model"
)

// EVMDecoder decodes escrow contract logs into canonical events.
type EVMDecoder struct {
	contract    common.Address
	escrowABI   abi.ABI
	topicToName map[common.Hash]string
}

// NewEVMDecoder builds a decoder for logs emitted by contract.
func NewEVMDecoder(contract common.Address) (*EVMDecoder, error) {
	escrowABI, err := EscrowABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[common.Hash]string, len(escrowABI.Events))
	for name, event := range escrowABI.Events {
		topicToName[event.ID] = name
	}

	return &EVMDecoder{
		contract:    contract,
		escrowABI:   escrowABI,
		topicToName: topicToName,
	}, nil
}

func (d *EVMDecoder) Contract() common.Address {
	return d.contract
}

// Topics returns every topic0 the decoder understands, for log filters.
func (d *EVMDecoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.topicToName))
	for topic := range d.topicToName {
		out = append(out, topic)
	}
	return out
}

// CanDecode checks if the topic0 is supported.
func (d *EVMDecoder) CanDecode(topic0 common.Hash) bool {
	_, ok := d.topicToName[topic0]
	return ok
}

// Decode converts a contract log into a canonical event. blockTime is the
// timestamp of the log's block.
func (d *EVMDecoder) Decode(log types.Log, blockTime time.Time) (model.Event, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	if log.Address != d.contract {
		return nil, fmt.Errorf("log from unexpected address %s", log.Address.Hex())
	}
	name, ok := d.topicToName[log.Topics[0]]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	meta := model.EventMeta{
		Chain:     model.ChainBase,
		Ref:       fmt.Sprintf("%s:%d", log.TxHash.Hex(), log.Index),
		TxRef:     log.TxHash.Hex(),
		Position:  log.BlockNumber,
		Timestamp: blockTime.UTC(),
	}

	switch name {
	case "EscrowCreated":
		return d.decodeCreated(log, meta)
	case "EscrowAccepted":
		return d.decodeAccepted(log, meta)
	case "EscrowProofSubmitted":
		return d.decodeProofSubmitted(log, meta)
	case "EscrowCompleted":
		return d.decodeCompleted(log, meta)
	case "EscrowCancelled":
		return d.decodeCancelled(log, meta)
	case "EscrowExpired":
		return d.decodeExpired(log, meta)
	case "DisputeRaised":
		return d.decodeDisputeRaised(log, meta)
	case "DisputeResolved":
		return d.decodeDisputeResolved(log, meta)
	case "ProtocolConfigUpdated":
		return d.decodeConfigUpdated(log, meta)
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
}

// escrowParty is the topic layout shared by events indexed on
// (escrowId, address).
type escrowParty struct {
	EscrowId *big.Int
	Party    common.Address
}

func (d *EVMDecoder) parseParty(event abi.Event, topics []common.Hash) (escrowParty, error) {
	indexedTopics, err := parseIndexedTopics(event, topics)
	if err != nil {
		return escrowParty{}, err
	}
	args := indexedArguments(event.Inputs)
	if len(args) != 2 {
		return escrowParty{}, fmt.Errorf("%s: expected 2 indexed arguments, got %d", event.Name, len(args))
	}
	out := map[string]interface{}{}
	if err := abi.ParseTopicsIntoMap(out, args, indexedTopics); err != nil {
		return escrowParty{}, fmt.Errorf("parse topics: %w", err)
	}
	id, err := asBigInt(out[args[0].Name])
	if err != nil {
		return escrowParty{}, err
	}
	party, err := asAddress(out[args[1].Name])
	if err != nil {
		return escrowParty{}, err
	}
	return escrowParty{EscrowId: id, Party: party}, nil
}

func (d *EVMDecoder) parseEscrowID(event abi.Event, topics []common.Hash) (*big.Int, error) {
	indexedTopics, err := parseIndexedTopics(event, topics)
	if err != nil {
		return nil, err
	}
	var indexed struct {
		EscrowId *big.Int
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	return indexed.EscrowId, nil
}

func (d *EVMDecoder) decodeCreated(log types.Log, meta model.EventMeta) (model.Event, error) {
	event := d.escrowABI.Events["EscrowCreated"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}

	var indexed struct {
		EscrowId *big.Int
		Client   common.Address
		Provider common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 10 {
		return nil, fmt.Errorf("unexpected created values: %d", len(values))
	}

	arbitrator, err := asAddress(values[0])
	if err != nil {
		return nil, err
	}
	token, err := asAddress(values[1])
	if err != nil {
		return nil, err
	}
	amount, err := asAmount(values[2])
	if err != nil {
		return nil, err
	}
	protocolFee, err := asUint16(values[3])
	if err != nil {
		return nil, err
	}
	arbitratorFee, err := asUint16(values[4])
	if err != nil {
		return nil, err
	}
	createdAt, err := asTime(values[5])
	if err != nil {
		return nil, err
	}
	deadline, err := asTime(values[6])
	if err != nil {
		return nil, err
	}
	grace, err := asUint64(values[7])
	if err != nil {
		return nil, err
	}
	taskHash, err := asBytes(values[8])
	if err != nil {
		return nil, err
	}
	verificationIdx, err := asUint8(values[9])
	if err != nil {
		return nil, err
	}
	verification, err := model.VerificationFromIndex(verificationIdx)
	if err != nil {
		return nil, err
	}

	meta.EscrowID = indexed.EscrowId.String()
	created := model.Created{
		EventMeta:        meta,
		Client:           indexed.Client.Hex(),
		Provider:         indexed.Provider.Hex(),
		Token:            token.Hex(),
		Amount:           amount,
		ProtocolFeeBps:   protocolFee,
		ArbitratorFeeBps: arbitratorFee,
		TaskHash:         hex.EncodeToString(taskHash),
		Verification:     verification,
		CreatedAt:        createdAt,
		Deadline:         deadline,
		GracePeriod:      int64(grace),
	}
	if arbitrator != (common.Address{}) {
		created.Arbitrator = arbitrator.Hex()
	}
	return created, nil
}

func (d *EVMDecoder) decodeAccepted(log types.Log, meta model.EventMeta) (model.Event, error) {
	event := d.escrowABI.Events["EscrowAccepted"]
	indexed, err := d.parseParty(event, log.Topics)
	if err != nil {
		return nil, err
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected accepted values: %d", len(values))
	}
	acceptedAt, err := asTime(values[0])
	if err != nil {
		return nil, err
	}

	meta.EscrowID = indexed.EscrowId.String()
	return model.Accepted{
		EventMeta:  meta,
		Provider:   indexed.Party.Hex(),
		AcceptedAt: acceptedAt,
	}, nil
}

func (d *EVMDecoder) decodeProofSubmitted(log types.Log, meta model.EventMeta) (model.Event, error) {
	event := d.escrowABI.Events["EscrowProofSubmitted"]
	indexed, err := d.parseParty(event, log.Topics)
	if err != nil {
		return nil, err
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected proof values: %d", len(values))
	}
	proofIdx, err := asUint8(values[0])
	if err != nil {
		return nil, err
	}
	proofType, err := model.ProofTypeFromIndex(proofIdx)
	if err != nil {
		return nil, err
	}
	payload, err := asBytes(values[1])
	if err != nil {
		return nil, err
	}
	submittedAt, err := asTime(values[2])
	if err != nil {
		return nil, err
	}

	meta.EscrowID = indexed.EscrowId.String()
	return model.ProofSubmitted{
		EventMeta:   meta,
		Provider:    indexed.Party.Hex(),
		ProofType:   proofType,
		Payload:     payload,
		SubmittedAt: submittedAt,
	}, nil
}

func (d *EVMDecoder) decodeCompleted(log types.Log, meta model.EventMeta) (model.Event, error) {
	event := d.escrowABI.Events["EscrowCompleted"]
	id, err := d.parseEscrowID(event, log.Topics)
	if err != nil {
		return nil, err
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected completed values: %d", len(values))
	}
	paid, err := asAmount(values[0])
	if err != nil {
		return nil, err
	}
	fee, err := asAmount(values[1])
	if err != nil {
		return nil, err
	}
	completedAt, err := asTime(values[2])
	if err != nil {
		return nil, err
	}

	meta.EscrowID = id.String()
	return model.Completed{
		EventMeta:    meta,
		AmountPaid:   paid,
		FeeCollected: fee,
		CompletedAt:  completedAt,
	}, nil
}

func (d *EVMDecoder) decodeCancelled(log types.Log, meta model.EventMeta) (model.Event, error) {
	event := d.escrowABI.Events["EscrowCancelled"]
	indexed, err := d.parseParty(event, log.Topics)
	if err != nil {
		return nil, err
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected cancelled values: %d", len(values))
	}
	cancelledAt, err := asTime(values[0])
	if err != nil {
		return nil, err
	}

	meta.EscrowID = indexed.EscrowId.String()
	return model.Cancelled{
		EventMeta:   meta,
		Client:      indexed.Party.Hex(),
		CancelledAt: cancelledAt,
	}, nil
}

func (d *EVMDecoder) decodeExpired(log types.Log, meta model.EventMeta) (model.Event, error) {
	event := d.escrowABI.Events["EscrowExpired"]
	id, err := d.parseEscrowID(event, log.Topics)
	if err != nil {
		return nil, err
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected expired values: %d", len(values))
	}
	refund, err := asAmount(values[0])
	if err != nil {
		return nil, err
	}
	expiredAt, err := asTime(values[1])
	if err != nil {
		return nil, err
	}

	meta.EscrowID = id.String()
	return model.Expired{
		EventMeta:    meta,
		RefundAmount: refund,
		ExpiredAt:    expiredAt,
	}, nil
}

func (d *EVMDecoder) decodeDisputeRaised(log types.Log, meta model.EventMeta) (model.Event, error) {
	event := d.escrowABI.Events["DisputeRaised"]
	indexed, err := d.parseParty(event, log.Topics)
	if err != nil {
		return nil, err
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected dispute values: %d", len(values))
	}
	raisedAt, err := asTime(values[0])
	if err != nil {
		return nil, err
	}

	meta.EscrowID = indexed.EscrowId.String()
	return model.DisputeRaised{
		EventMeta: meta,
		RaisedBy:  indexed.Party.Hex(),
		RaisedAt:  raisedAt,
	}, nil
}

func (d *EVMDecoder) decodeDisputeResolved(log types.Log, meta model.EventMeta) (model.Event, error) {
	event := d.escrowABI.Events["DisputeResolved"]
	indexed, err := d.parseParty(event, log.Topics)
	if err != nil {
		return nil, err
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected resolved values: %d", len(values))
	}
	rulingIdx, err := asUint8(values[0])
	if err != nil {
		return nil, err
	}
	clientBps, err := asUint16(values[1])
	if err != nil {
		return nil, err
	}
	providerBps, err := asUint16(values[2])
	if err != nil {
		return nil, err
	}
	resolvedAt, err := asTime(values[3])
	if err != nil {
		return nil, err
	}
	ruling, err := model.RulingFromIndex(rulingIdx, clientBps, providerBps)
	if err != nil {
		return nil, err
	}
	if ruling.Kind != model.RulingSplit {
		ruling.ClientBps, ruling.ProviderBps = 0, 0
	}

	meta.EscrowID = indexed.EscrowId.String()
	return model.DisputeResolved{
		EventMeta:  meta,
		Arbitrator: indexed.Party.Hex(),
		Ruling:     ruling,
		ResolvedAt: resolvedAt,
	}, nil
}

func (d *EVMDecoder) decodeConfigUpdated(log types.Log, meta model.EventMeta) (model.Event, error) {
	event := d.escrowABI.Events["ProtocolConfigUpdated"]
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 7 {
		return nil, fmt.Errorf("unexpected config values: %d", len(values))
	}
	admin, err := asAddress(values[0])
	if err != nil {
		return nil, err
	}
	feeRecipient, err := asAddress(values[1])
	if err != nil {
		return nil, err
	}
	protocolFee, err := asUint16(values[2])
	if err != nil {
		return nil, err
	}
	arbitratorFee, err := asUint16(values[3])
	if err != nil {
		return nil, err
	}
	minAmount, err := asAmount(values[4])
	if err != nil {
		return nil, err
	}
	maxAmount, err := asAmount(values[5])
	if err != nil {
		return nil, err
	}
	paused, err := asBool(values[6])
	if err != nil {
		return nil, err
	}

	return model.ConfigChanged{
		EventMeta: meta,
		Config: model.ProtocolConfig{
			Chain:            model.ChainBase,
			Admin:            admin.Hex(),
			FeeRecipient:     feeRecipient.Hex(),
			ProtocolFeeBps:   protocolFee,
			ArbitratorFeeBps: arbitratorFee,
			MinEscrowAmount:  minAmount,
			MaxEscrowAmount:  maxAmount,
			Paused:           paused,
			UpdatedAt:        meta.Timestamp,
		},
	}, nil
}

func parseIndexedTopics(event abi.Event, topics []common.Hash) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return topics[1:], nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, data []byte) ([]interface{}, error) {
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
