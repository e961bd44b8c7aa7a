// Package settings holds the vault-wide configuration written by Init and
// the counters that number subscriptions and plan templates.
package settings

import (
	"github.com/xraph/subvault/types"
)

// SchemaVersion is the layout version stamped into Settings at init.
const SchemaVersion uint32 = 1

// Settings is the single configuration record of a vault.
type Settings struct {
	types.Entity
	Token         types.Address `json:"token"`
	TokenDecimals uint32        `json:"token_decimals"`
	Admin         types.Address `json:"admin"`
	MinTopup      types.Amount  `json:"min_topup"`
	// GracePeriod is in seconds. Zero disables the grace state.
	GracePeriod   uint64 `json:"grace_period"`
	SchemaVersion uint32 `json:"schema_version"`
}

// Sequence names a monotonically increasing counter.
type Sequence string

const (
	SequenceSubscription Sequence = "subscription"
	SequencePlanTemplate Sequence = "plan_template"
)
