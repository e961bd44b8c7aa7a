package subscription

import (
	"fmt"

	"github.com/xraph/subvault/types"
)

// Status is the billing state of a subscription.
type Status string

const (
	StatusActive              Status = "active"
	StatusPaused              Status = "paused"
	StatusCancelled           Status = "cancelled"
	StatusInsufficientBalance Status = "insufficient_balance"
	StatusGracePeriod         Status = "grace_period"
)

// ErrInvalidStatusTransition is returned for any edge missing from the
// transition table.
var ErrInvalidStatusTransition = types.NewError(400, types.KindStateMachine, "invalid status transition")

// transitions lists the allowed targets for each source state, excluding
// the always-allowed same-state edge.
var transitions = map[Status][]Status{
	StatusActive:              {StatusPaused, StatusCancelled, StatusInsufficientBalance, StatusGracePeriod},
	StatusPaused:              {StatusActive, StatusCancelled},
	StatusInsufficientBalance: {StatusActive, StatusCancelled, StatusGracePeriod},
	StatusGracePeriod:         {StatusActive, StatusInsufficientBalance, StatusCancelled},
	StatusCancelled:           {},
}

// Statuses returns every known status.
func Statuses() []Status {
	return []Status{StatusActive, StatusPaused, StatusCancelled, StatusInsufficientBalance, StatusGracePeriod}
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no other status can follow s.
func (s Status) IsTerminal() bool { return s == StatusCancelled }

// ChargeExpected reports whether the billing runner should expect to charge
// a subscription in status s.
func (s Status) ChargeExpected() bool {
	switch s {
	case StatusActive, StatusInsufficientBalance, StatusGracePeriod:
		return true
	}
	return false
}

// ParseStatus parses a stored status string.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.IsValid() {
		return "", fmt.Errorf("subscription: unknown status %q", v)
	}
	return s, nil
}

// CanTransition reports whether from -> to is allowed. Same-state
// transitions of a known status are always allowed.
func CanTransition(from, to Status) bool {
	targets, ok := transitions[from]
	if !ok || !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidStatusTransition unless from -> to
// is allowed.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
	}
	return nil
}

// AllowedTransitions returns the targets reachable from s, including s
// itself.
func AllowedTransitions(s Status) []Status {
	targets, ok := transitions[s]
	if !ok {
		return nil
	}
	out := make([]Status, 0, len(targets)+1)
	out = append(out, s)
	return append(out, targets...)
}
