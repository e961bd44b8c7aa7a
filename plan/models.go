package plan

import (
	"github.com/xraph/subvault/types"
)

// TemplateID identifies a plan template. Template IDs come from their own
// counter, independent of subscription IDs.
type TemplateID uint64

// Template is a merchant-owned parameter set used to create subscriptions
// without repeating their terms. Templates are immutable once created.
type Template struct {
	types.Entity
	ID              TemplateID    `json:"id"`
	Merchant        types.Address `json:"merchant"`
	Amount          types.Amount  `json:"amount"`
	IntervalSeconds uint64        `json:"interval_seconds"`
	UsageEnabled    bool          `json:"usage_enabled"`
}
