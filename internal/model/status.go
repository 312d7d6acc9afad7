package model

import (
	"fmt"
	"strings"
)

// Status is the escrow lifecycle status recorded from the chain.
type Status string

const (
	StatusAwaitingProvider Status = "AwaitingProvider"
	StatusActive           Status = "Active"
	StatusProofSubmitted   Status = "ProofSubmitted"
	StatusCompleted        Status = "Completed"
	StatusDisputed         Status = "Disputed"
	StatusResolved         Status = "Resolved"
	StatusExpired          Status = "Expired"
	StatusCancelled        Status = "Cancelled"
)

// Statuses is ordered like the on-chain enum discriminants.
var Statuses = []Status{
	StatusAwaitingProvider,
	StatusActive,
	StatusProofSubmitted,
	StatusCompleted,
	StatusDisputed,
	StatusResolved,
	StatusExpired,
	StatusCancelled,
}

// StatusFromIndex maps an on-chain enum discriminant to a Status.
func StatusFromIndex(idx uint8) (Status, error) {
	if int(idx) >= len(Statuses) {
		return "", fmt.Errorf("unknown status index %d", idx)
	}
	return Statuses[idx], nil
}

// ParseStatus accepts the canonical name in any case, with or without
// separators ("proof_submitted", "ProofSubmitted").
func ParseStatus(input string) (Status, error) {
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(input))
	for _, s := range Statuses {
		if strings.ToLower(string(s)) == key {
			return s, nil
		}
	}
	return "", fmt.Errorf("invalid status: %q", input)
}

// Rank orders statuses along the state machine. A status may only be
// replaced by one of strictly higher rank.
func (s Status) Rank() int {
	switch s {
	case StatusAwaitingProvider:
		return 0
	case StatusActive:
		return 1
	case StatusProofSubmitted:
		return 2
	case StatusDisputed:
		return 3
	case StatusCompleted, StatusResolved, StatusExpired, StatusCancelled:
		return 4
	default:
		return -1
	}
}

func (s Status) Terminal() bool {
	return s.Rank() == 4
}

// Transition is the outcome of recording a status against the stored one.
type Transition int

const (
	TransitionApply Transition = iota
	// TransitionNoop means the status is already recorded.
	TransitionNoop
	// TransitionReject means the update would regress or fork the lifecycle.
	TransitionReject
)

func (t Transition) String() string {
	switch t {
	case TransitionApply:
		return "applied"
	case TransitionNoop:
		return "noop"
	case TransitionReject:
		return "rejected"
	default:
		return "unknown"
	}
}

// CheckTransition decides whether next may replace current.
func CheckTransition(current, next Status) Transition {
	if current == next {
		return TransitionNoop
	}
	if next.Rank() > current.Rank() {
		return TransitionApply
	}
	return TransitionReject
}
