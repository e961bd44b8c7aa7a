// Package audithook bridges vault events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/plugin"
	"github.com/xraph/subvault/recovery"
	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnVaultInitialized     = (*Extension)(nil)
	_ plugin.OnSettingsUpdated      = (*Extension)(nil)
	_ plugin.OnAdminRotated         = (*Extension)(nil)
	_ plugin.OnFundsRecovered       = (*Extension)(nil)
	_ plugin.OnPlanTemplateCreated  = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated  = (*Extension)(nil)
	_ plugin.OnFundsDeposited       = (*Extension)(nil)
	_ plugin.OnStatusChanged        = (*Extension)(nil)
	_ plugin.OnSubscriberWithdrawal = (*Extension)(nil)
	_ plugin.OnSubscriptionCharged  = (*Extension)(nil)
	_ plugin.OnChargeFailed         = (*Extension)(nil)
	_ plugin.OnUsageCharged         = (*Extension)(nil)
	_ plugin.OnOneOffCharged        = (*Extension)(nil)
	_ plugin.OnBatchCharged         = (*Extension)(nil)
	_ plugin.OnMerchantWithdrawal   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges vault events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Administration hooks
// ──────────────────────────────────────────────────

// OnVaultInitialized implements plugin.OnVaultInitialized.
func (e *Extension) OnVaultInitialized(ctx context.Context, s *settings.Settings) error {
	return e.record(ctx, ActionVaultInitialized, SeverityInfo, OutcomeSuccess,
		ResourceVault, "", CategoryAdmin, nil,
		"admin", s.Admin,
		"token", s.Token,
		"min_topup", s.MinTopup.String(),
		"grace_period", s.GracePeriod,
	)
}

// OnSettingsUpdated implements plugin.OnSettingsUpdated.
func (e *Extension) OnSettingsUpdated(ctx context.Context, s *settings.Settings, field string) error {
	switch field {
	case "min_topup":
		return e.record(ctx, ActionMinTopupChanged, SeverityInfo, OutcomeSuccess,
			ResourceVault, "", CategoryAdmin, nil,
			"min_topup", s.MinTopup.String(),
		)
	case "grace_period":
		return e.record(ctx, ActionGracePeriodChanged, SeverityInfo, OutcomeSuccess,
			ResourceVault, "", CategoryAdmin, nil,
			"grace_period", s.GracePeriod,
		)
	}
	return nil
}

// OnAdminRotated implements plugin.OnAdminRotated.
func (e *Extension) OnAdminRotated(ctx context.Context, oldAdmin, newAdmin types.Address, timestamp uint64) error {
	return e.record(ctx, ActionAdminRotated, SeverityWarning, OutcomeSuccess,
		ResourceVault, "", CategoryAdmin, nil,
		"old_admin", oldAdmin,
		"new_admin", newAdmin,
		"timestamp", timestamp,
	)
}

// OnFundsRecovered implements plugin.OnFundsRecovered. Recoveries move
// funds out of the vault by admin fiat and are recorded even when the
// action is filtered out.
func (e *Extension) OnFundsRecovered(ctx context.Context, r *recovery.Record) error {
	return e.send(ctx, ActionFundsRecovered, SeverityCritical, OutcomeSuccess,
		ResourceRecovery, r.ID.String(), CategoryAdmin, nil,
		"admin", r.Admin,
		"recipient", r.Recipient,
		"amount", r.Amount.String(),
		"reason", string(r.Reason),
		"timestamp", r.Timestamp,
	)
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanTemplateCreated implements plugin.OnPlanTemplateCreated.
func (e *Extension) OnPlanTemplateCreated(ctx context.Context, t *plan.Template) error {
	return e.record(ctx, ActionPlanTemplateCreated, SeverityInfo, OutcomeSuccess,
		ResourcePlanTemplate, strconv.FormatUint(uint64(t.ID), 10), CategoryBilling, nil,
		"merchant", t.Merchant,
		"amount", t.Amount.String(),
		"interval_seconds", t.IntervalSeconds,
	)
}

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subID(sub.ID), CategorySubscription, nil,
		"subscriber", sub.Subscriber,
		"merchant", sub.Merchant,
		"amount", sub.Amount.String(),
		"interval_seconds", sub.IntervalSeconds,
	)
}

// OnFundsDeposited implements plugin.OnFundsDeposited.
func (e *Extension) OnFundsDeposited(ctx context.Context, sub *subscription.Subscription, amount types.Amount) error {
	return e.record(ctx, ActionFundsDeposited, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subID(sub.ID), CategoryPayment, nil,
		"subscriber", sub.Subscriber,
		"amount", amount.String(),
		"prepaid_balance", sub.PrepaidBalance.String(),
	)
}

// OnStatusChanged implements plugin.OnStatusChanged.
func (e *Extension) OnStatusChanged(ctx context.Context, sub *subscription.Subscription, from subscription.Status, authorizer types.Address) error {
	action, severity := statusAction(sub.Status)
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceSubscription, subID(sub.ID), CategorySubscription, nil,
		"from", string(from),
		"to", string(sub.Status),
		"authorizer", authorizer,
	)
}

// statusAction maps a new status to its audit action.
func statusAction(to subscription.Status) (string, string) {
	switch to {
	case subscription.StatusPaused:
		return ActionSubscriptionPaused, SeverityInfo
	case subscription.StatusCancelled:
		return ActionSubscriptionCanceled, SeverityInfo
	case subscription.StatusInsufficientBalance, subscription.StatusGracePeriod:
		return ActionSubscriptionLapsed, SeverityWarning
	default:
		return ActionSubscriptionResumed, SeverityInfo
	}
}

// OnSubscriberWithdrawal implements plugin.OnSubscriberWithdrawal.
func (e *Extension) OnSubscriberWithdrawal(ctx context.Context, sub *subscription.Subscription, amount types.Amount) error {
	return e.record(ctx, ActionSubscriberWithdrawal, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subID(sub.ID), CategoryPayment, nil,
		"subscriber", sub.Subscriber,
		"amount", amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Charge hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCharged implements plugin.OnSubscriptionCharged.
func (e *Extension) OnSubscriptionCharged(ctx context.Context, sub *subscription.Subscription, amount types.Amount) error {
	return e.record(ctx, ActionSubscriptionCharged, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subID(sub.ID), CategoryBilling, nil,
		"merchant", sub.Merchant,
		"amount", amount.String(),
		"last_payment_timestamp", sub.LastPaymentTimestamp,
	)
}

// OnChargeFailed implements plugin.OnChargeFailed.
func (e *Extension) OnChargeFailed(ctx context.Context, id subscription.ID, err error) error {
	return e.record(ctx, ActionChargeFailed, SeverityWarning, OutcomeFailure,
		ResourceSubscription, subID(id), CategoryBilling, err,
	)
}

// OnUsageCharged implements plugin.OnUsageCharged.
func (e *Extension) OnUsageCharged(ctx context.Context, sub *subscription.Subscription, amount types.Amount) error {
	return e.record(ctx, ActionUsageCharged, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subID(sub.ID), CategoryBilling, nil,
		"merchant", sub.Merchant,
		"amount", amount.String(),
	)
}

// OnOneOffCharged implements plugin.OnOneOffCharged.
func (e *Extension) OnOneOffCharged(ctx context.Context, sub *subscription.Subscription, amount types.Amount) error {
	return e.record(ctx, ActionOneOffCharged, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subID(sub.ID), CategoryBilling, nil,
		"merchant", sub.Merchant,
		"amount", amount.String(),
	)
}

// OnBatchCharged implements plugin.OnBatchCharged.
func (e *Extension) OnBatchCharged(ctx context.Context, summary plugin.BatchSummary) error {
	outcome := OutcomeSuccess
	switch {
	case summary.Failed > 0 && summary.Succeeded == 0:
		outcome = OutcomeFailure
	case summary.Failed > 0:
		outcome = OutcomePartial
	}
	return e.record(ctx, ActionBatchCharged, SeverityInfo, outcome,
		ResourceBatch, summary.ID.String(), CategoryBilling, nil,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"elapsed_ms", summary.Elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Merchant hooks
// ──────────────────────────────────────────────────

// OnMerchantWithdrawal implements plugin.OnMerchantWithdrawal.
func (e *Extension) OnMerchantWithdrawal(ctx context.Context, merchant types.Address, amount types.Amount) error {
	return e.record(ctx, ActionMerchantWithdrawal, SeverityInfo, OutcomeSuccess,
		ResourceMerchant, string(merchant), CategoryPayment, nil,
		"amount", amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func subID(id subscription.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}
	return e.send(ctx, action, severity, outcome, resource, resourceID, category, err, kvPairs...)
}

// send builds and sends an audit event unconditionally.
func (e *Extension) send(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
