// Package observability provides a metrics extension for the vault that
// records charge, balance and lifecycle event counts through a
// MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/plugin"
	"github.com/xraph/subvault/recovery"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnPlanTemplateCreated  = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated  = (*MetricsExtension)(nil)
	_ plugin.OnFundsDeposited       = (*MetricsExtension)(nil)
	_ plugin.OnStatusChanged        = (*MetricsExtension)(nil)
	_ plugin.OnSubscriberWithdrawal = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCharged  = (*MetricsExtension)(nil)
	_ plugin.OnChargeFailed         = (*MetricsExtension)(nil)
	_ plugin.OnUsageCharged         = (*MetricsExtension)(nil)
	_ plugin.OnOneOffCharged        = (*MetricsExtension)(nil)
	_ plugin.OnBatchCharged         = (*MetricsExtension)(nil)
	_ plugin.OnMerchantWithdrawal   = (*MetricsExtension)(nil)
	_ plugin.OnFundsRecovered       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records vault-wide metrics.
// Register it as a vault plugin to track billing activity.
type MetricsExtension struct {
	factory MetricFactory

	// Lifecycle metrics
	PlanTemplateCreated  Counter
	SubscriptionCreated  Counter
	SubscriptionPaused   Counter
	SubscriptionResumed  Counter
	SubscriptionCanceled Counter
	SubscriptionLapsed   Counter

	// Charge metrics
	ChargeSucceeded Counter
	ChargeFailed    Counter
	// ChargeRejected counts failed charges that were not balance failures.
	ChargeRejected Counter
	UsageCharged   Counter
	OneOffCharged  Counter
	ChargeAmount   Histogram

	// Batch metrics
	BatchRuns      Counter
	BatchSize      Histogram
	BatchFailures  Counter
	BatchLatencyMs Histogram

	// Fund movement metrics
	Deposits            Counter
	DepositAmount       Histogram
	SubscriberWithdrawn Counter
	MerchantWithdrawn   Counter
	FundsRecovered      Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		PlanTemplateCreated:  factory.Counter("subvault.plan_template.created"),
		SubscriptionCreated:  factory.Counter("subvault.subscription.created"),
		SubscriptionPaused:   factory.Counter("subvault.subscription.paused"),
		SubscriptionResumed:  factory.Counter("subvault.subscription.resumed"),
		SubscriptionCanceled: factory.Counter("subvault.subscription.cancelled"),
		SubscriptionLapsed:   factory.Counter("subvault.subscription.lapsed"),

		ChargeSucceeded: factory.Counter("subvault.charge.succeeded"),
		ChargeFailed:    factory.Counter("subvault.charge.failed"),
		ChargeRejected:  factory.Counter("subvault.charge.rejected"),
		UsageCharged:    factory.Counter("subvault.charge.usage"),
		OneOffCharged:   factory.Counter("subvault.charge.one_off"),
		ChargeAmount:    factory.Histogram("subvault.charge.amount"),

		BatchRuns:      factory.Counter("subvault.batch.runs"),
		BatchSize:      factory.Histogram("subvault.batch.size"),
		BatchFailures:  factory.Counter("subvault.batch.failures"),
		BatchLatencyMs: factory.Histogram("subvault.batch.latency_ms"),

		Deposits:            factory.Counter("subvault.deposit.count"),
		DepositAmount:       factory.Histogram("subvault.deposit.amount"),
		SubscriberWithdrawn: factory.Counter("subvault.withdrawal.subscriber"),
		MerchantWithdrawn:   factory.Counter("subvault.withdrawal.merchant"),
		FundsRecovered:      factory.Counter("subvault.recovery.count"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanTemplateCreated implements plugin.OnPlanTemplateCreated.
func (m *MetricsExtension) OnPlanTemplateCreated(_ context.Context, _ *plan.Template) error {
	m.PlanTemplateCreated.Inc()
	return nil
}

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnStatusChanged implements plugin.OnStatusChanged.
func (m *MetricsExtension) OnStatusChanged(_ context.Context, sub *subscription.Subscription, _ subscription.Status, _ types.Address) error {
	switch sub.Status {
	case subscription.StatusPaused:
		m.SubscriptionPaused.Inc()
	case subscription.StatusActive:
		m.SubscriptionResumed.Inc()
	case subscription.StatusCancelled:
		m.SubscriptionCanceled.Inc()
	case subscription.StatusInsufficientBalance, subscription.StatusGracePeriod:
		m.SubscriptionLapsed.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Charge hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCharged implements plugin.OnSubscriptionCharged.
func (m *MetricsExtension) OnSubscriptionCharged(_ context.Context, _ *subscription.Subscription, amount types.Amount) error {
	m.ChargeSucceeded.Inc()
	m.ChargeAmount.Observe(approx(amount))
	return nil
}

// OnChargeFailed implements plugin.OnChargeFailed.
func (m *MetricsExtension) OnChargeFailed(_ context.Context, _ subscription.ID, err error) error {
	m.ChargeFailed.Inc()
	if types.KindOf(err) != types.KindBalance {
		m.ChargeRejected.Inc()
	}
	return nil
}

// OnUsageCharged implements plugin.OnUsageCharged.
func (m *MetricsExtension) OnUsageCharged(_ context.Context, _ *subscription.Subscription, amount types.Amount) error {
	m.UsageCharged.Inc()
	m.ChargeAmount.Observe(approx(amount))
	return nil
}

// OnOneOffCharged implements plugin.OnOneOffCharged.
func (m *MetricsExtension) OnOneOffCharged(_ context.Context, _ *subscription.Subscription, amount types.Amount) error {
	m.OneOffCharged.Inc()
	m.ChargeAmount.Observe(approx(amount))
	return nil
}

// OnBatchCharged implements plugin.OnBatchCharged.
func (m *MetricsExtension) OnBatchCharged(_ context.Context, summary plugin.BatchSummary) error {
	m.BatchRuns.Inc()
	m.BatchSize.Observe(float64(summary.Total))
	m.BatchFailures.Add(float64(summary.Failed))
	m.BatchLatencyMs.Observe(float64(summary.Elapsed.Milliseconds()))
	return nil
}

// ──────────────────────────────────────────────────
// Fund movement hooks
// ──────────────────────────────────────────────────

// OnFundsDeposited implements plugin.OnFundsDeposited.
func (m *MetricsExtension) OnFundsDeposited(_ context.Context, _ *subscription.Subscription, amount types.Amount) error {
	m.Deposits.Inc()
	m.DepositAmount.Observe(approx(amount))
	return nil
}

// OnSubscriberWithdrawal implements plugin.OnSubscriberWithdrawal.
func (m *MetricsExtension) OnSubscriberWithdrawal(_ context.Context, _ *subscription.Subscription, _ types.Amount) error {
	m.SubscriberWithdrawn.Inc()
	return nil
}

// OnMerchantWithdrawal implements plugin.OnMerchantWithdrawal.
func (m *MetricsExtension) OnMerchantWithdrawal(_ context.Context, _ types.Address, _ types.Amount) error {
	m.MerchantWithdrawn.Inc()
	return nil
}

// OnFundsRecovered implements plugin.OnFundsRecovered.
func (m *MetricsExtension) OnFundsRecovered(_ context.Context, _ *recovery.Record) error {
	m.FundsRecovered.Inc()
	return nil
}

// approx converts an amount to float64 for histograms. Amounts outside
// the int64 range are clamped; they only feed distributions.
func approx(a types.Amount) float64 {
	if v, ok := a.Int64(); ok {
		return float64(v)
	}
	if a.IsNegative() {
		return -1 << 63
	}
	return 1 << 63
}
