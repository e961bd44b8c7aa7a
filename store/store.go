package store

import (
	"context"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/merchant"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/recovery"
	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// Store is the unified storage interface for all vault records.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Settings and counter methods
	GetSettings(ctx context.Context) (*settings.Settings, error)
	CreateSettings(ctx context.Context, s *settings.Settings) error
	UpdateSettings(ctx context.Context, s *settings.Settings) error
	NextSequence(ctx context.Context, seq settings.Sequence) (uint64, error)
	PeekSequence(ctx context.Context, seq settings.Sequence) (uint64, error)

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error
	ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error)
	CountSubscriptions(ctx context.Context, opts subscription.ListOpts) (int, error)

	// Plan template methods
	CreatePlanTemplate(ctx context.Context, t *plan.Template) error
	GetPlanTemplate(ctx context.Context, templateID plan.TemplateID) (*plan.Template, error)
	ListPlanTemplates(ctx context.Context, opts plan.ListOpts) ([]*plan.Template, error)

	// Merchant accrual methods
	GetMerchantBalance(ctx context.Context, merchant types.Address) (*merchant.Balance, error)
	PutMerchantBalance(ctx context.Context, b *merchant.Balance) error

	// Recovery methods
	CreateRecovery(ctx context.Context, r *recovery.Record) error
	DeleteRecovery(ctx context.Context, recID id.RecoveryID) error
	ListRecoveries(ctx context.Context, opts recovery.ListOpts) ([]*recovery.Record, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Atomic is implemented by stores that can run a group of writes as one
// unit of work. If fn returns an error every write made through the store
// during fn is discarded. Units may nest; a failing inner unit discards
// only its own writes.
type Atomic interface {
	Atomically(ctx context.Context, fn func(ctx context.Context) error) error
}
