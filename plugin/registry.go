package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/recovery"
	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// defaultHookTimeout bounds a single hook call.
const defaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onVaultInitialized     []OnVaultInitialized
	onSettingsUpdated      []OnSettingsUpdated
	onAdminRotated         []OnAdminRotated
	onFundsRecovered       []OnFundsRecovered
	onPlanTemplateCreated  []OnPlanTemplateCreated
	onSubscriptionCreated  []OnSubscriptionCreated
	onFundsDeposited       []OnFundsDeposited
	onStatusChanged        []OnStatusChanged
	onSubscriberWithdrawal []OnSubscriberWithdrawal
	onSubscriptionCharged  []OnSubscriptionCharged
	onChargeFailed         []OnChargeFailed
	onUsageCharged         []OnUsageCharged
	onOneOffCharged        []OnOneOffCharged
	onBatchCharged         []OnBatchCharged
	onMerchantWithdrawal   []OnMerchantWithdrawal
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: defaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnVaultInitialized); ok {
		r.onVaultInitialized = append(r.onVaultInitialized, v)
	}
	if v, ok := p.(OnSettingsUpdated); ok {
		r.onSettingsUpdated = append(r.onSettingsUpdated, v)
	}
	if v, ok := p.(OnAdminRotated); ok {
		r.onAdminRotated = append(r.onAdminRotated, v)
	}
	if v, ok := p.(OnFundsRecovered); ok {
		r.onFundsRecovered = append(r.onFundsRecovered, v)
	}
	if v, ok := p.(OnPlanTemplateCreated); ok {
		r.onPlanTemplateCreated = append(r.onPlanTemplateCreated, v)
	}
	if v, ok := p.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
	}
	if v, ok := p.(OnFundsDeposited); ok {
		r.onFundsDeposited = append(r.onFundsDeposited, v)
	}
	if v, ok := p.(OnStatusChanged); ok {
		r.onStatusChanged = append(r.onStatusChanged, v)
	}
	if v, ok := p.(OnSubscriberWithdrawal); ok {
		r.onSubscriberWithdrawal = append(r.onSubscriberWithdrawal, v)
	}
	if v, ok := p.(OnSubscriptionCharged); ok {
		r.onSubscriptionCharged = append(r.onSubscriptionCharged, v)
	}
	if v, ok := p.(OnChargeFailed); ok {
		r.onChargeFailed = append(r.onChargeFailed, v)
	}
	if v, ok := p.(OnUsageCharged); ok {
		r.onUsageCharged = append(r.onUsageCharged, v)
	}
	if v, ok := p.(OnOneOffCharged); ok {
		r.onOneOffCharged = append(r.onOneOffCharged, v)
	}
	if v, ok := p.(OnBatchCharged); ok {
		r.onBatchCharged = append(r.onBatchCharged, v)
	}
	if v, ok := p.(OnMerchantWithdrawal); ok {
		r.onMerchantWithdrawal = append(r.onMerchantWithdrawal, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

// hookTypes maps hook names to their interface types, for registration logs.
var hookTypes = []struct {
	name  string
	iface reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnVaultInitialized", reflect.TypeOf((*OnVaultInitialized)(nil)).Elem()},
	{"OnSettingsUpdated", reflect.TypeOf((*OnSettingsUpdated)(nil)).Elem()},
	{"OnAdminRotated", reflect.TypeOf((*OnAdminRotated)(nil)).Elem()},
	{"OnFundsRecovered", reflect.TypeOf((*OnFundsRecovered)(nil)).Elem()},
	{"OnPlanTemplateCreated", reflect.TypeOf((*OnPlanTemplateCreated)(nil)).Elem()},
	{"OnSubscriptionCreated", reflect.TypeOf((*OnSubscriptionCreated)(nil)).Elem()},
	{"OnFundsDeposited", reflect.TypeOf((*OnFundsDeposited)(nil)).Elem()},
	{"OnStatusChanged", reflect.TypeOf((*OnStatusChanged)(nil)).Elem()},
	{"OnSubscriberWithdrawal", reflect.TypeOf((*OnSubscriberWithdrawal)(nil)).Elem()},
	{"OnSubscriptionCharged", reflect.TypeOf((*OnSubscriptionCharged)(nil)).Elem()},
	{"OnChargeFailed", reflect.TypeOf((*OnChargeFailed)(nil)).Elem()},
	{"OnUsageCharged", reflect.TypeOf((*OnUsageCharged)(nil)).Elem()},
	{"OnOneOffCharged", reflect.TypeOf((*OnOneOffCharged)(nil)).Elem()},
	{"OnBatchCharged", reflect.TypeOf((*OnBatchCharged)(nil)).Elem()},
	{"OnMerchantWithdrawal", reflect.TypeOf((*OnMerchantWithdrawal)(nil)).Elem()},
}

// implementedInterfaces returns the hook names implemented by p.
func implementedInterfaces(p Plugin) []string {
	var out []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.iface) {
			out = append(out, h.name)
		}
	}
	return out
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every plugin in the snapshot taken by list, logging
// (never returning) failures.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list func() []T, fn func(T) error) {
	r.mu.RLock()
	plugins := list()
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, vault any) {
	emit(ctx, r, "OnInit", func() []OnInit { return r.onInit }, func(p OnInit) error {
		return p.OnInit(ctx, vault)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func() []OnShutdown { return r.onShutdown }, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitVaultInitialized calls OnVaultInitialized for all plugins that implement it.
func (r *Registry) EmitVaultInitialized(ctx context.Context, s *settings.Settings) {
	emit(ctx, r, "OnVaultInitialized", func() []OnVaultInitialized { return r.onVaultInitialized }, func(p OnVaultInitialized) error {
		return p.OnVaultInitialized(ctx, s)
	})
}

// EmitSettingsUpdated calls OnSettingsUpdated for all plugins that implement it.
func (r *Registry) EmitSettingsUpdated(ctx context.Context, s *settings.Settings, field string) {
	emit(ctx, r, "OnSettingsUpdated", func() []OnSettingsUpdated { return r.onSettingsUpdated }, func(p OnSettingsUpdated) error {
		return p.OnSettingsUpdated(ctx, s, field)
	})
}

// EmitAdminRotated calls OnAdminRotated for all plugins that implement it.
func (r *Registry) EmitAdminRotated(ctx context.Context, oldAdmin, newAdmin types.Address, timestamp uint64) {
	emit(ctx, r, "OnAdminRotated", func() []OnAdminRotated { return r.onAdminRotated }, func(p OnAdminRotated) error {
		return p.OnAdminRotated(ctx, oldAdmin, newAdmin, timestamp)
	})
}

// EmitFundsRecovered calls OnFundsRecovered for all plugins that implement it.
func (r *Registry) EmitFundsRecovered(ctx context.Context, rec *recovery.Record) {
	emit(ctx, r, "OnFundsRecovered", func() []OnFundsRecovered { return r.onFundsRecovered }, func(p OnFundsRecovered) error {
		return p.OnFundsRecovered(ctx, rec)
	})
}

// EmitPlanTemplateCreated calls OnPlanTemplateCreated for all plugins that implement it.
func (r *Registry) EmitPlanTemplateCreated(ctx context.Context, t *plan.Template) {
	emit(ctx, r, "OnPlanTemplateCreated", func() []OnPlanTemplateCreated { return r.onPlanTemplateCreated }, func(p OnPlanTemplateCreated) error {
		return p.OnPlanTemplateCreated(ctx, t)
	})
}

// EmitSubscriptionCreated calls OnSubscriptionCreated for all plugins that implement it.
func (r *Registry) EmitSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) {
	emit(ctx, r, "OnSubscriptionCreated", func() []OnSubscriptionCreated { return r.onSubscriptionCreated }, func(p OnSubscriptionCreated) error {
		return p.OnSubscriptionCreated(ctx, sub)
	})
}

// EmitFundsDeposited calls OnFundsDeposited for all plugins that implement it.
func (r *Registry) EmitFundsDeposited(ctx context.Context, sub *subscription.Subscription, amount types.Amount) {
	emit(ctx, r, "OnFundsDeposited", func() []OnFundsDeposited { return r.onFundsDeposited }, func(p OnFundsDeposited) error {
		return p.OnFundsDeposited(ctx, sub, amount)
	})
}

// EmitStatusChanged calls OnStatusChanged for all plugins that implement it.
func (r *Registry) EmitStatusChanged(ctx context.Context, sub *subscription.Subscription, from subscription.Status, authorizer types.Address) {
	emit(ctx, r, "OnStatusChanged", func() []OnStatusChanged { return r.onStatusChanged }, func(p OnStatusChanged) error {
		return p.OnStatusChanged(ctx, sub, from, authorizer)
	})
}

// EmitSubscriberWithdrawal calls OnSubscriberWithdrawal for all plugins that implement it.
func (r *Registry) EmitSubscriberWithdrawal(ctx context.Context, sub *subscription.Subscription, amount types.Amount) {
	emit(ctx, r, "OnSubscriberWithdrawal", func() []OnSubscriberWithdrawal { return r.onSubscriberWithdrawal }, func(p OnSubscriberWithdrawal) error {
		return p.OnSubscriberWithdrawal(ctx, sub, amount)
	})
}

// EmitSubscriptionCharged calls OnSubscriptionCharged for all plugins that implement it.
func (r *Registry) EmitSubscriptionCharged(ctx context.Context, sub *subscription.Subscription, amount types.Amount) {
	emit(ctx, r, "OnSubscriptionCharged", func() []OnSubscriptionCharged { return r.onSubscriptionCharged }, func(p OnSubscriptionCharged) error {
		return p.OnSubscriptionCharged(ctx, sub, amount)
	})
}

// EmitChargeFailed calls OnChargeFailed for all plugins that implement it.
func (r *Registry) EmitChargeFailed(ctx context.Context, subID subscription.ID, chargeErr error) {
	emit(ctx, r, "OnChargeFailed", func() []OnChargeFailed { return r.onChargeFailed }, func(p OnChargeFailed) error {
		return p.OnChargeFailed(ctx, subID, chargeErr)
	})
}

// EmitUsageCharged calls OnUsageCharged for all plugins that implement it.
func (r *Registry) EmitUsageCharged(ctx context.Context, sub *subscription.Subscription, amount types.Amount) {
	emit(ctx, r, "OnUsageCharged", func() []OnUsageCharged { return r.onUsageCharged }, func(p OnUsageCharged) error {
		return p.OnUsageCharged(ctx, sub, amount)
	})
}

// EmitOneOffCharged calls OnOneOffCharged for all plugins that implement it.
func (r *Registry) EmitOneOffCharged(ctx context.Context, sub *subscription.Subscription, amount types.Amount) {
	emit(ctx, r, "OnOneOffCharged", func() []OnOneOffCharged { return r.onOneOffCharged }, func(p OnOneOffCharged) error {
		return p.OnOneOffCharged(ctx, sub, amount)
	})
}

// EmitBatchCharged calls OnBatchCharged for all plugins that implement it.
func (r *Registry) EmitBatchCharged(ctx context.Context, summary BatchSummary) {
	emit(ctx, r, "OnBatchCharged", func() []OnBatchCharged { return r.onBatchCharged }, func(p OnBatchCharged) error {
		return p.OnBatchCharged(ctx, summary)
	})
}

// EmitMerchantWithdrawal calls OnMerchantWithdrawal for all plugins that implement it.
func (r *Registry) EmitMerchantWithdrawal(ctx context.Context, merchant types.Address, amount types.Amount) {
	emit(ctx, r, "OnMerchantWithdrawal", func() []OnMerchantWithdrawal { return r.onMerchantWithdrawal }, func(p OnMerchantWithdrawal) error {
		return p.OnMerchantWithdrawal(ctx, merchant, amount)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
