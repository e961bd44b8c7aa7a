// Package plugin provides an extensible plugin system for the vault.
// Plugins hook into vault events by implementing any of the On* interfaces.
// Hooks run after the triggering operation has been committed, and a
// failing hook never fails the operation.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/recovery"
	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the vault starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, vault any) error
}

// OnShutdown is called when the vault stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Admin hooks
// ──────────────────────────────────────────────────

// OnVaultInitialized is called once, after Init stores the settings.
type OnVaultInitialized interface {
	Plugin
	OnVaultInitialized(ctx context.Context, s *settings.Settings) error
}

// OnSettingsUpdated is called after an admin changes a setting. Field is
// "min_topup" or "grace_period".
type OnSettingsUpdated interface {
	Plugin
	OnSettingsUpdated(ctx context.Context, s *settings.Settings, field string) error
}

// OnAdminRotated is called after the admin address changes.
type OnAdminRotated interface {
	Plugin
	OnAdminRotated(ctx context.Context, oldAdmin, newAdmin types.Address, timestamp uint64) error
}

// OnFundsRecovered is called for every stranded-funds recovery.
type OnFundsRecovered interface {
	Plugin
	OnFundsRecovered(ctx context.Context, r *recovery.Record) error
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanTemplateCreated is called when a merchant creates a plan template.
type OnPlanTemplateCreated interface {
	Plugin
	OnPlanTemplateCreated(ctx context.Context, t *plan.Template) error
}

// OnSubscriptionCreated is called when a new subscription is created.
type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error
}

// OnFundsDeposited is called after a subscriber tops up a subscription.
type OnFundsDeposited interface {
	Plugin
	OnFundsDeposited(ctx context.Context, sub *subscription.Subscription, amount types.Amount) error
}

// OnStatusChanged is called after a subscription changes status. The
// authorizer is empty when the change was caused by a charge.
type OnStatusChanged interface {
	Plugin
	OnStatusChanged(ctx context.Context, sub *subscription.Subscription, from subscription.Status, authorizer types.Address) error
}

// OnSubscriberWithdrawal is called after a subscriber withdraws the
// residual balance of a cancelled subscription.
type OnSubscriberWithdrawal interface {
	Plugin
	OnSubscriberWithdrawal(ctx context.Context, sub *subscription.Subscription, amount types.Amount) error
}

// ──────────────────────────────────────────────────
// Charge hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCharged is called after a successful interval charge.
type OnSubscriptionCharged interface {
	Plugin
	OnSubscriptionCharged(ctx context.Context, sub *subscription.Subscription, amount types.Amount) error
}

// OnChargeFailed is called when an interval charge is rejected.
type OnChargeFailed interface {
	Plugin
	OnChargeFailed(ctx context.Context, subID subscription.ID, err error) error
}

// OnUsageCharged is called after a successful metered usage charge.
type OnUsageCharged interface {
	Plugin
	OnUsageCharged(ctx context.Context, sub *subscription.Subscription, amount types.Amount) error
}

// OnOneOffCharged is called after a merchant-initiated one-off charge.
type OnOneOffCharged interface {
	Plugin
	OnOneOffCharged(ctx context.Context, sub *subscription.Subscription, amount types.Amount) error
}

// BatchSummary describes one completed batch charge.
type BatchSummary struct {
	ID        id.BatchID    `json:"id"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// OnBatchCharged is called after a batch charge completes.
type OnBatchCharged interface {
	Plugin
	OnBatchCharged(ctx context.Context, summary BatchSummary) error
}

// ──────────────────────────────────────────────────
// Merchant hooks
// ──────────────────────────────────────────────────

// OnMerchantWithdrawal is called after a merchant withdraws accrued funds.
type OnMerchantWithdrawal interface {
	Plugin
	OnMerchantWithdrawal(ctx context.Context, merchant types.Address, amount types.Amount) error
}
