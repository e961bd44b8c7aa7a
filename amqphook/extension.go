// Package amqphook publishes vault events to a RabbitMQ topic exchange.
//
// Each event is a JSON envelope routed under "<prefix>.<event type>", for
// example "subvault.charge.interval". Consumers bind queues with topic
// patterns such as "subvault.charge.#".
package amqphook

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/xraph/subvault/id"
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
	_ plugin.OnShutdown             = (*Extension)(nil)
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

// Event types, appended to the routing prefix.
const (
	EventVaultInitialized     = "vault.initialized"
	EventSettingsUpdated      = "vault.settings_updated"
	EventAdminRotated         = "vault.admin_rotated"
	EventFundsRecovered       = "vault.funds_recovered"
	EventPlanTemplateCreated  = "plan_template.created"
	EventSubscriptionCreated  = "subscription.created"
	EventFundsDeposited       = "subscription.deposited"
	EventStatusChanged        = "subscription.status_changed"
	EventSubscriberWithdrawal = "subscription.withdrawn"
	EventSubscriptionCharged  = "charge.interval"
	EventChargeFailed         = "charge.failed"
	EventUsageCharged         = "charge.usage"
	EventOneOffCharged        = "charge.one_off"
	EventBatchCharged         = "charge.batch"
	EventMerchantWithdrawal   = "merchant.withdrawn"
)

// DefaultRoutingPrefix is prepended to every routing key.
const DefaultRoutingPrefix = "subvault"

// envelopeVersion is bumped when the Envelope layout changes.
const envelopeVersion = 1

// Envelope is the JSON body of every published message.
type Envelope struct {
	ID             id.EventID `json:"id"`
	Type           string     `json:"type"`
	Version        int        `json:"version"`
	OccurredAt     time.Time  `json:"occurred_at"`
	SubscriptionID *uint64    `json:"subscription_id,omitempty"`
	Data           any        `json:"data"`
}

// Extension forwards vault events to a Publisher.
type Extension struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger for the extension.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// WithRoutingPrefix replaces the routing key prefix.
func WithRoutingPrefix(prefix string) Option {
	return func(e *Extension) { e.prefix = prefix }
}

// New creates an Extension publishing through pub.
func New(pub Publisher, opts ...Option) *Extension {
	e := &Extension{
		pub:    pub,
		prefix: DefaultRoutingPrefix,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "amqp-hook" }

// OnShutdown implements plugin.OnShutdown. It closes the publisher.
func (e *Extension) OnShutdown(_ context.Context) error {
	return e.pub.Close()
}

// ──────────────────────────────────────────────────
// Administration hooks
// ──────────────────────────────────────────────────

// OnVaultInitialized implements plugin.OnVaultInitialized.
func (e *Extension) OnVaultInitialized(ctx context.Context, s *settings.Settings) error {
	return e.publish(ctx, EventVaultInitialized, nil, s)
}

// OnSettingsUpdated implements plugin.OnSettingsUpdated.
func (e *Extension) OnSettingsUpdated(ctx context.Context, s *settings.Settings, field string) error {
	return e.publish(ctx, EventSettingsUpdated, nil, map[string]any{
		"field":    field,
		"settings": s,
	})
}

// OnAdminRotated implements plugin.OnAdminRotated.
func (e *Extension) OnAdminRotated(ctx context.Context, oldAdmin, newAdmin types.Address, timestamp uint64) error {
	return e.publish(ctx, EventAdminRotated, nil, map[string]any{
		"old_admin": oldAdmin,
		"new_admin": newAdmin,
		"timestamp": timestamp,
	})
}

// OnFundsRecovered implements plugin.OnFundsRecovered.
func (e *Extension) OnFundsRecovered(ctx context.Context, r *recovery.Record) error {
	return e.publish(ctx, EventFundsRecovered, nil, r)
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnPlanTemplateCreated implements plugin.OnPlanTemplateCreated.
func (e *Extension) OnPlanTemplateCreated(ctx context.Context, t *plan.Template) error {
	return e.publish(ctx, EventPlanTemplateCreated, nil, t)
}

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error {
	return e.publish(ctx, EventSubscriptionCreated, &sub.ID, sub)
}

// OnFundsDeposited implements plugin.OnFundsDeposited.
func (e *Extension) OnFundsDeposited(ctx context.Context, sub *subscription.Subscription, amount types.Amount) error {
	return e.publish(ctx, EventFundsDeposited, &sub.ID, amountData(sub, amount))
}

// OnStatusChanged implements plugin.OnStatusChanged.
func (e *Extension) OnStatusChanged(ctx context.Context, sub *subscription.Subscription, from subscription.Status, authorizer types.Address) error {
	return e.publish(ctx, EventStatusChanged, &sub.ID, map[string]any{
		"from":       from,
		"to":         sub.Status,
		"authorizer": authorizer,
	})
}

// OnSubscriberWithdrawal implements plugin.OnSubscriberWithdrawal.
func (e *Extension) OnSubscriberWithdrawal(ctx context.Context, sub *subscription.Subscription, amount types.Amount) error {
	return e.publish(ctx, EventSubscriberWithdrawal, &sub.ID, amountData(sub, amount))
}

// ──────────────────────────────────────────────────
// Charge hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCharged implements plugin.OnSubscriptionCharged.
func (e *Extension) OnSubscriptionCharged(ctx context.Context, sub *subscription.Subscription, amount types.Amount) error {
	return e.publish(ctx, EventSubscriptionCharged, &sub.ID, amountData(sub, amount))
}

// OnChargeFailed implements plugin.OnChargeFailed.
func (e *Extension) OnChargeFailed(ctx context.Context, subID subscription.ID, err error) error {
	return e.publish(ctx, EventChargeFailed, &subID, map[string]any{
		"code":  types.CodeOf(err),
		"error": err.Error(),
	})
}

// OnUsageCharged implements plugin.OnUsageCharged.
func (e *Extension) OnUsageCharged(ctx context.Context, sub *subscription.Subscription, amount types.Amount) error {
	return e.publish(ctx, EventUsageCharged, &sub.ID, amountData(sub, amount))
}

// OnOneOffCharged implements plugin.OnOneOffCharged.
func (e *Extension) OnOneOffCharged(ctx context.Context, sub *subscription.Subscription, amount types.Amount) error {
	return e.publish(ctx, EventOneOffCharged, &sub.ID, amountData(sub, amount))
}

// OnBatchCharged implements plugin.OnBatchCharged.
func (e *Extension) OnBatchCharged(ctx context.Context, summary plugin.BatchSummary) error {
	return e.publish(ctx, EventBatchCharged, nil, summary)
}

// OnMerchantWithdrawal implements plugin.OnMerchantWithdrawal.
func (e *Extension) OnMerchantWithdrawal(ctx context.Context, merchant types.Address, amount types.Amount) error {
	return e.publish(ctx, EventMerchantWithdrawal, nil, map[string]any{
		"merchant": merchant,
		"amount":   amount,
	})
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func amountData(sub *subscription.Subscription, amount types.Amount) map[string]any {
	return map[string]any{
		"subscriber":      sub.Subscriber,
		"merchant":        sub.Merchant,
		"amount":          amount,
		"prepaid_balance": sub.PrepaidBalance,
		"status":          sub.Status,
	}
}

// RoutingKey returns the routing key used for an event type.
func (e *Extension) RoutingKey(eventType string) string {
	if e.prefix == "" {
		return eventType
	}
	return e.prefix + "." + eventType
}

func (e *Extension) publish(ctx context.Context, eventType string, subID *subscription.ID, data any) error {
	env := Envelope{
		ID:         id.NewEventID(),
		Type:       eventType,
		Version:    envelopeVersion,
		OccurredAt: e.now(),
		Data:       data,
	}
	if subID != nil {
		v := uint64(*subID)
		env.SubscriptionID = &v
	}

	body, err := json.Marshal(env)
	if err != nil {
		e.logger.Error("amqp_hook: encode event", "type", eventType, "error", err)
		return err
	}

	key := e.RoutingKey(eventType)
	if err := e.pub.Publish(ctx, key, body); err != nil {
		e.logger.Warn("amqp_hook: failed to publish event",
			"routing_key", key,
			"event_id", env.ID.String(),
			"error", err,
		)
		return err
	}
	return nil
}
