package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind tags a canonical event.
type EventKind string

const (
	KindCreated         EventKind = "Created"
	KindAccepted        EventKind = "Accepted"
	KindProofSubmitted  EventKind = "ProofSubmitted"
	KindCompleted       EventKind = "Completed"
	KindCancelled       EventKind = "Cancelled"
	KindExpired         EventKind = "Expired"
	KindDisputeRaised   EventKind = "DisputeRaised"
	KindDisputeResolved EventKind = "DisputeResolved"
	KindConfigChanged   EventKind = "ConfigChanged"
)

// Event is the closed set of canonical escrow events. Both chain decoders
// produce these and nothing downstream branches on the source chain.
type Event interface {
	Meta() EventMeta
	Kind() EventKind
	isEvent()
}

// EventMeta locates an event on its chain. Ref is unique per event
// (tx hash or signature plus the event's index within it).
type EventMeta struct {
	Chain     Chain     `json:"chain"`
	EscrowID  string    `json:"escrow_address,omitempty"`
	Ref       string    `json:"ref"`
	TxRef     string    `json:"tx"`
	Position  uint64    `json:"position"`
	Timestamp time.Time `json:"timestamp"`
}

func (m EventMeta) Meta() EventMeta { return m }

func (m EventMeta) Key() EscrowKey {
	return EscrowKey{Chain: m.Chain, ID: m.EscrowID}
}

type Created struct {
	EventMeta
	Client           string           `json:"client"`
	Provider         string           `json:"provider"`
	Arbitrator       string           `json:"arbitrator,omitempty"`
	Token            string           `json:"token"`
	Amount           Amount           `json:"amount"`
	ProtocolFeeBps   uint16           `json:"protocol_fee_bps"`
	ArbitratorFeeBps uint16           `json:"arbitrator_fee_bps"`
	TaskHash         string           `json:"task_hash"`
	Verification     VerificationType `json:"verification_type"`
	CreatedAt        time.Time        `json:"created_at"`
	Deadline         time.Time        `json:"deadline"`
	GracePeriod      int64            `json:"grace_period"`
}

type Accepted struct {
	EventMeta
	Provider   string    `json:"provider"`
	AcceptedAt time.Time `json:"accepted_at"`
}

type ProofSubmitted struct {
	EventMeta
	Provider    string    `json:"provider"`
	ProofType   ProofType `json:"proof_type"`
	Payload     []byte    `json:"proof_data,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Completed struct {
	EventMeta
	AmountPaid   Amount    `json:"amount_paid"`
	FeeCollected Amount    `json:"fee_collected"`
	CompletedAt  time.Time `json:"completed_at"`
}

type Cancelled struct {
	EventMeta
	Client      string    `json:"client"`
	CancelledAt time.Time `json:"cancelled_at"`
}

type Expired struct {
	EventMeta
	RefundAmount Amount    `json:"refund_amount"`
	ExpiredAt    time.Time `json:"expired_at"`
}

type DisputeRaised struct {
	EventMeta
	RaisedBy string    `json:"raised_by"`
	RaisedAt time.Time `json:"raised_at"`
}

type DisputeResolved struct {
	EventMeta
	Arbitrator string    `json:"arbitrator"`
	Ruling     Ruling    `json:"ruling"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// ConfigChanged carries a full governance snapshot; it has no escrow id.
type ConfigChanged struct {
	EventMeta
	Config ProtocolConfig `json:"config"`
}

func (Created) Kind() EventKind         { return KindCreated }
func (Accepted) Kind() EventKind        { return KindAccepted }
func (ProofSubmitted) Kind() EventKind  { return KindProofSubmitted }
func (Completed) Kind() EventKind       { return KindCompleted }
func (Cancelled) Kind() EventKind       { return KindCancelled }
func (Expired) Kind() EventKind         { return KindExpired }
func (DisputeRaised) Kind() EventKind   { return KindDisputeRaised }
func (DisputeResolved) Kind() EventKind { return KindDisputeResolved }
func (ConfigChanged) Kind() EventKind   { return KindConfigChanged }

func (Created) isEvent()         {}
func (Accepted) isEvent()        {}
func (ProofSubmitted) isEvent()  {}
func (Completed) isEvent()       {}
func (Cancelled) isEvent()       {}
func (Expired) isEvent()         {}
func (DisputeRaised) isEvent()   {}
func (DisputeResolved) isEvent() {}
func (ConfigChanged) isEvent()   {}

// EventEnvelope is the journal encoding of an Event.
type EventEnvelope struct {
	Kind  EventKind       `json:"kind"`
	Event json.RawMessage `json:"event"`
}

// MarshalEvent wraps an event with its kind tag.
func MarshalEvent(ev Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.Kind(), err)
	}
	return json.Marshal(EventEnvelope{Kind: ev.Kind(), Event: body})
}

// UnmarshalEvent is the inverse of MarshalEvent.
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}

	var (
		ev  Event
		err error
	)
	switch env.Kind {
	case KindCreated:
		ev, err = decodeAs[Created](env.Event)
	case KindAccepted:
		ev, err = decodeAs[Accepted](env.Event)
	case KindProofSubmitted:
		ev, err = decodeAs[ProofSubmitted](env.Event)
	case KindCompleted:
		ev, err = decodeAs[Completed](env.Event)
	case KindCancelled:
		ev, err = decodeAs[Cancelled](env.Event)
	case KindExpired:
		ev, err = decodeAs[Expired](env.Event)
	case KindDisputeRaised:
		ev, err = decodeAs[DisputeRaised](env.Event)
	case KindDisputeResolved:
		ev, err = decodeAs[DisputeResolved](env.Event)
	case KindConfigChanged:
		ev, err = decodeAs[ConfigChanged](env.Event)
	default:
		return nil, fmt.Errorf("unknown event kind %q", env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", env.Kind, err)
	}
	return ev, nil
}

func decodeAs[T Event](raw json.RawMessage) (Event, error) {
	var ev T
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}
