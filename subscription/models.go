package subscription

import (
	"github.com/xraph/subvault/types"
)

// ID identifies a subscription. IDs are assigned from a store-held counter
// that starts at 0 and only grows.
type ID uint64

// Subscription is a recurring billing agreement between a subscriber and a
// merchant, funded from a prepaid balance held by the vault.
type Subscription struct {
	types.Entity
	ID                   ID            `json:"id"`
	Subscriber           types.Address `json:"subscriber"`
	Merchant             types.Address `json:"merchant"`
	Amount               types.Amount  `json:"amount"`
	IntervalSeconds      uint64        `json:"interval_seconds"`
	LastPaymentTimestamp uint64        `json:"last_payment_timestamp"`
	Status               Status        `json:"status"`
	PrepaidBalance       types.Amount  `json:"prepaid_balance"`
	UsageEnabled         bool          `json:"usage_enabled"`
	Expiration           *uint64       `json:"expiration,omitempty"`
	PlanTemplateID       *uint64       `json:"plan_template_id,omitempty"`
	LastChargeKey        string        `json:"last_charge_key,omitempty"`
}

// TransitionTo moves the subscription to target after checking the
// transition table. The status is left untouched on error.
func (s *Subscription) TransitionTo(target Status) error {
	if err := ValidateTransition(s.Status, target); err != nil {
		return err
	}
	s.Status = target
	return nil
}

// IsExpired reports whether charges are blocked at ledger time now.
func (s *Subscription) IsExpired(now uint64) bool {
	return s.Expiration != nil && now >= *s.Expiration
}

// Clone returns a deep copy.
func (s *Subscription) Clone() *Subscription {
	c := *s
	if s.Expiration != nil {
		exp := *s.Expiration
		c.Expiration = &exp
	}
	if s.PlanTemplateID != nil {
		pid := *s.PlanTemplateID
		c.PlanTemplateID = &pid
	}
	return &c
}
