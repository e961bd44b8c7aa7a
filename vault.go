package subvault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/subvault/host"
	"github.com/xraph/subvault/plugin"
	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// DefaultExportLimit is the largest page the export operations return.
const DefaultExportLimit = 100

// DefaultAddress is the vault's custody address when none is configured.
const DefaultAddress types.Address = "subvault"

// Settlement selects how a successful charge pays the merchant.
type Settlement int

const (
	// SettleAccrue credits the merchant's accrual, withdrawn later with
	// WithdrawMerchantFunds.
	SettleAccrue Settlement = iota
	// SettleImmediate transfers each charged amount to the merchant.
	SettleImmediate
)

func (s Settlement) String() string {
	if s == SettleImmediate {
		return "immediate"
	}
	return "accrue"
}

// ParseSettlement parses "accrue" or "immediate". An empty string selects
// SettleAccrue.
func ParseSettlement(v string) (Settlement, error) {
	switch v {
	case "", "accrue":
		return SettleAccrue, nil
	case "immediate":
		return SettleImmediate, nil
	}
	return SettleAccrue, fmt.Errorf("%w: unknown settlement mode %q", ErrInvalidInput, v)
}

// Vault is the subscription billing engine.
//
// Mutating entry points are serialized. When the store implements
// store.Atomic each entry point runs as one unit of work.
type Vault struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	auth  host.Authorizer
	clock host.Clock
	token host.TokenTransfer

	address     types.Address
	settleMode  Settlement
	exportLimit int

	mu sync.Mutex
}

// New creates a new Vault instance.
func New(s store.Store, opts ...Option) *Vault {
	v := &Vault{
		store:       s,
		plugins:     plugin.NewRegistry(),
		logger:      slog.Default(),
		auth:        host.AllowAll(),
		clock:       host.SystemClock(),
		token:       host.NoopTransfer(),
		address:     DefaultAddress,
		settleMode:  SettleAccrue,
		exportLimit: DefaultExportLimit,
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Option configures a Vault instance.
type Option func(*Vault)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Vault) {
		v.logger = logger
		v.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(v *Vault) {
		_ = v.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithAuthorizer sets the authorization port. The default approves every
// address, which only suits callers that authenticate upstream.
func WithAuthorizer(a host.Authorizer) Option {
	return func(v *Vault) { v.auth = a }
}

// WithClock sets the ledger clock. The default reads Unix seconds.
func WithClock(c host.Clock) Option {
	return func(v *Vault) { v.clock = c }
}

// WithTokenTransfer sets the token port. The default moves nothing.
func WithTokenTransfer(t host.TokenTransfer) Option {
	return func(v *Vault) { v.token = t }
}

// WithAddress sets the vault's own custody address, the counterparty of
// every deposit and payout.
func WithAddress(addr types.Address) Option {
	return func(v *Vault) { v.address = addr }
}

// WithSettlement selects how charges pay merchants.
func WithSettlement(s Settlement) Option {
	return func(v *Vault) { v.settleMode = s }
}

// WithExportLimit sets the largest page returned by the export operations.
func WithExportLimit(limit int) Option {
	return func(v *Vault) {
		if limit > 0 {
			v.exportLimit = limit
		}
	}
}

// Start migrates the store and initializes plugins.
func (v *Vault) Start(ctx context.Context) error {
	if err := v.store.Migrate(ctx); err != nil {
		return err
	}

	v.plugins.EmitInit(ctx, v)

	v.logger.Info("subvault started",
		"address", v.address,
		"settlement", v.settleMode,
		"export_limit", v.exportLimit,
		"plugins", v.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (v *Vault) Stop() error {
	ctx := context.Background()
	v.plugins.EmitShutdown(ctx)

	return v.store.Close()
}

// Store returns the underlying store.
func (v *Vault) Store() store.Store { return v.store }

// Plugins returns the plugin registry.
func (v *Vault) Plugins() *plugin.Registry { return v.plugins }

// Address returns the vault's custody address.
func (v *Vault) Address() types.Address { return v.address }

// Now returns the current ledger time.
func (v *Vault) Now() uint64 { return v.clock.Now() }

// ──────────────────────────────────────────────────
// Units of work
// ──────────────────────────────────────────────────

// outbox queues plugin notifications until their unit of work commits.
type outbox struct {
	events []func(ctx context.Context)
}

func (o *outbox) add(fn func(ctx context.Context)) {
	o.events = append(o.events, fn)
}

func (o *outbox) merge(other *outbox) {
	o.events = append(o.events, other.events...)
}

func (o *outbox) flush(ctx context.Context) {
	for _, fn := range o.events {
		fn(ctx)
	}
}

// exec runs fn as one serialized entry point. Queued events are emitted
// only if the unit commits.
func (v *Vault) exec(ctx context.Context, fn func(ctx context.Context, ob *outbox) error) error {
	ob := &outbox{}

	v.mu.Lock()
	err := v.unit(ctx, func(ctx context.Context) error { return fn(ctx, ob) })
	v.mu.Unlock()

	var ce *committedError
	switch {
	case err == nil:
		ob.flush(ctx)
	case errors.As(err, &ce):
		ob.flush(ctx)
		return ce.err
	}
	return err
}

// unit runs fn inside a store unit of work when the store supports one.
// A committedError from fn keeps the writes and is returned as is.
func (v *Vault) unit(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, ok := v.store.(store.Atomic)
	if !ok {
		return fn(ctx)
	}

	var kept error
	err := tx.Atomically(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		var ce *committedError
		if errors.As(err, &ce) {
			kept = err
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	return kept
}

// undo reverts a write that an external step after it failed on, for
// stores without units of work. cause is returned, joined with the undo
// error if reverting fails too.
func (v *Vault) undo(ctx context.Context, cause error, what string, revert func(ctx context.Context) error) error {
	if err := revert(ctx); err != nil {
		v.logger.Error("failed to revert write",
			"write", what,
			"cause", cause,
			"error", err,
		)
		return errors.Join(cause, fmt.Errorf("subvault: revert %s: %w", what, err))
	}
	return cause
}

// ──────────────────────────────────────────────────
// Shared checks
// ──────────────────────────────────────────────────

// loadSettings returns the vault settings or ErrNotInitialized.
func (v *Vault) loadSettings(ctx context.Context) (*settings.Settings, error) {
	return v.store.GetSettings(ctx)
}

// requireAuth asks the host for addr's approval. Host errors without a
// vault code are reported as ErrUnauthorized.
func (v *Vault) requireAuth(ctx context.Context, addr types.Address) error {
	err := v.auth.RequireAuth(ctx, addr)
	if err == nil {
		return nil
	}
	if Code(err) == CodeInternal {
		return fmt.Errorf("%w: %s: %v", ErrUnauthorized, addr, err)
	}
	return err
}

// requireAdmin checks that caller is approved and is the stored admin.
func (v *Vault) requireAdmin(ctx context.Context, caller types.Address) (*settings.Settings, error) {
	s, err := v.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	if err := v.requireAuth(ctx, caller); err != nil {
		return nil, err
	}
	if caller != s.Admin {
		return nil, fmt.Errorf("%w: %s is not the admin", ErrForbidden, caller)
	}
	return s, nil
}

// requireOperator checks the stored admin's approval, for the charge
// entry points driven by the billing service.
func (v *Vault) requireOperator(ctx context.Context) (*settings.Settings, error) {
	s, err := v.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	if err := v.requireAuth(ctx, s.Admin); err != nil {
		return nil, err
	}
	return s, nil
}

// requireParty checks that caller is approved and is the subscriber or the
// merchant of sub.
func (v *Vault) requireParty(ctx context.Context, sub *subscription.Subscription, caller types.Address) error {
	if err := v.requireAuth(ctx, caller); err != nil {
		return err
	}
	if caller != sub.Subscriber && caller != sub.Merchant {
		return fmt.Errorf("%w: %s is not a party to subscription %d", ErrForbidden, caller, sub.ID)
	}
	return nil
}
