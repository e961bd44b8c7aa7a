// Package recovery records the admin-only path for returning stranded
// funds held by the vault.
package recovery

import (
	"fmt"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/types"
)

// Reason documents why funds were recovered.
type Reason string

const (
	// ReasonAccidentalTransfer covers tokens sent to the vault directly.
	ReasonAccidentalTransfer Reason = "accidental_transfer"
	// ReasonDeprecatedFlow covers funds left behind by a retired flow.
	ReasonDeprecatedFlow Reason = "deprecated_flow"
	// ReasonUnreachableSubscriber covers balances whose owner cannot act.
	ReasonUnreachableSubscriber Reason = "unreachable_subscriber"
)

// IsValid reports whether r is a documented reason.
func (r Reason) IsValid() bool {
	switch r {
	case ReasonAccidentalTransfer, ReasonDeprecatedFlow, ReasonUnreachableSubscriber:
		return true
	}
	return false
}

// ParseReason parses a stored reason string.
func ParseReason(v string) (Reason, error) {
	r := Reason(v)
	if !r.IsValid() {
		return "", fmt.Errorf("recovery: unknown reason %q", v)
	}
	return r, nil
}

// Record is the durable audit entry of one recovery.
type Record struct {
	types.Entity
	ID        id.RecoveryID `json:"id"`
	Admin     types.Address `json:"admin"`
	Recipient types.Address `json:"recipient"`
	Amount    types.Amount  `json:"amount"`
	Reason    Reason        `json:"reason"`
	Timestamp uint64        `json:"timestamp"`
}
