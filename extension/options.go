package extension

import (
	"github.com/xraph/grove"

	"github.com/xraph/subvault"
	audithook "github.com/xraph/subvault/audit_hook"
	"github.com/xraph/subvault/plugin"
	"github.com/xraph/subvault/store"
)

// Option configures the subvault Forge extension.
type Option func(*Extension)

// WithStore sets the store for the vault. It takes precedence over
// WithGroveDB.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB sets the grove database the store is built on. The backend
// is chosen by Config.Backend.
func WithGroveDB(db *grove.DB, backend string) Option {
	return func(e *Extension) {
		e.groveDB = db
		e.config.Backend = backend
	}
}

// WithVaultOption passes a subvault.Option through to the underlying vault.
func WithVaultOption(opt subvault.Option) Option {
	return func(e *Extension) {
		e.vaultOpts = append(e.vaultOpts, opt)
	}
}

// WithPlugin registers a vault plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.vaultOpts = append(e.vaultOpts, subvault.WithPlugin(p))
	}
}

// WithAuditRecorder registers the audit plugin writing to r.
func WithAuditRecorder(r audithook.Recorder, opts ...audithook.Option) Option {
	return func(e *Extension) {
		e.vaultOpts = append(e.vaultOpts, subvault.WithPlugin(audithook.New(r, opts...)))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithSettlement sets the settlement mode ("accrue" or "immediate").
func WithSettlement(mode string) Option {
	return func(e *Extension) { e.config.Settlement = mode }
}

// WithExportLimit caps export page sizes.
func WithExportLimit(limit int) Option {
	return func(e *Extension) { e.config.ExportLimit = limit }
}

// WithRunner enables the billing runner on the given cron schedule.
func WithRunner(schedule string, batchSize int) Option {
	return func(e *Extension) {
		e.config.Runner.Enabled = true
		e.config.Runner.Schedule = schedule
		e.config.Runner.BatchSize = batchSize
	}
}

// WithAMQP publishes vault events to exchange on the broker at url.
func WithAMQP(url, exchange string) Option {
	return func(e *Extension) {
		e.config.AMQP.URL = url
		e.config.AMQP.Exchange = exchange
	}
}

// WithMetrics registers Prometheus metrics with the default registerer.
func WithMetrics() Option {
	return func(e *Extension) { e.config.Metrics = true }
}
