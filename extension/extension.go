// Package extension provides the Forge extension adapter for subvault.
//
// It implements the forge.Extension interface to integrate the vault
// into a Forge application with DI registration, store selection, the
// billing runner and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.subvault" or
// "subvault" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/amqphook"
	"github.com/xraph/subvault/observability"
	"github.com/xraph/subvault/runner"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/store/memory"
	mongostore "github.com/xraph/subvault/store/mongo"
	pgstore "github.com/xraph/subvault/store/postgres"
	sqlitestore "github.com/xraph/subvault/store/sqlite"
	"github.com/xraph/subvault/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "subvault"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Prepaid recurring subscription billing vault"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts subvault as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config    Config
	engine    *subvault.Vault
	runner    *runner.Runner
	store     store.Store
	groveDB   *grove.DB
	vaultOpts []subvault.Option
}

// New creates a new subvault Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Vault.
// This is nil until Register is called.
func (e *Extension) Engine() *subvault.Vault { return e.engine }

// Runner returns the billing runner, or nil when it is disabled.
func (e *Extension) Runner() *runner.Runner { return e.runner }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration, builds
// the store and the vault, and registers the vault in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.setup(); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*subvault.Vault, error) {
		return e.engine, nil
	})
}

// setup builds the store, the vault and the runner from the resolved
// configuration.
func (e *Extension) setup() error {
	if e.store == nil {
		s, err := buildStore(e.config.Backend, e.groveDB)
		if err != nil {
			return err
		}
		e.store = s
	}

	opts, err := e.buildVaultOpts()
	if err != nil {
		return err
	}
	e.engine = subvault.New(e.store, opts...)

	if e.config.Runner.Enabled {
		e.runner = runner.New(e.engine,
			runner.WithSchedule(e.config.Runner.Schedule),
			runner.WithBatchSize(e.config.Runner.BatchSize),
			runner.WithTimeout(e.config.Runner.Timeout),
		)
	}

	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("subvault: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	if e.runner != nil {
		if err := e.runner.Start(); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension]. A billing run in progress is allowed
// to finish unless ctx ends first.
func (e *Extension) Stop(ctx context.Context) error {
	if e.runner != nil {
		select {
		case <-e.runner.Stop().Done():
		case <-ctx.Done():
		}
	}
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("subvault: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildStore picks the store backend.
func buildStore(backend string, db *grove.DB) (store.Store, error) {
	if db == nil {
		if backend != "" && backend != BackendMemory {
			return nil, fmt.Errorf("subvault: backend %q needs a grove database", backend)
		}
		return memory.New(), nil
	}
	switch backend {
	case BackendPostgres:
		return pgstore.New(db), nil
	case BackendSQLite:
		return sqlitestore.New(db), nil
	case BackendMongo:
		return mongostore.New(db), nil
	default:
		return nil, fmt.Errorf("subvault: unsupported backend %q for grove database", backend)
	}
}

// buildVaultOpts constructs subvault.Option values from the resolved config.
func (e *Extension) buildVaultOpts() ([]subvault.Option, error) {
	opts := make([]subvault.Option, 0, len(e.vaultOpts)+5)

	settlement, err := subvault.ParseSettlement(e.config.Settlement)
	if err != nil {
		return nil, err
	}
	opts = append(opts, subvault.WithSettlement(settlement))

	if e.config.ExportLimit > 0 {
		opts = append(opts, subvault.WithExportLimit(e.config.ExportLimit))
	}
	if e.config.Address != "" {
		opts = append(opts, subvault.WithAddress(types.Address(e.config.Address)))
	}

	if e.config.Metrics {
		factory, err := observability.NewPrometheusFactory(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, err
		}
		opts = append(opts, subvault.WithPlugin(observability.NewMetricsExtension(factory)))
	}

	if e.config.AMQP.URL != "" {
		pub, err := amqphook.Dial(e.config.AMQP.URL, e.config.AMQP.Exchange)
		if err != nil {
			return nil, fmt.Errorf("subvault: amqp: %w", err)
		}
		opts = append(opts, subvault.WithPlugin(amqphook.New(pub,
			amqphook.WithRoutingPrefix(e.config.AMQP.RoutingPrefix),
		)))
	}

	// Pass-through options come last so they override config-derived ones.
	opts = append(opts, e.vaultOpts...)

	return opts, nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("subvault: configuration is required but not found in config files; " +
				"ensure 'extensions.subvault' or 'subvault' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("subvault: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("backend", e.config.Backend),
		forge.F("settlement", e.config.Settlement),
		forge.F("export_limit", e.config.ExportLimit),
		forge.F("runner_enabled", e.config.Runner.Enabled),
		forge.F("runner_schedule", e.config.Runner.Schedule),
		forge.F("amqp_enabled", e.config.AMQP.URL != ""),
		forge.F("metrics", e.config.Metrics),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.subvault", "subvault"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("subvault: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("subvault: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Backend == "" {
		cfg.Backend = defaults.Backend
	}
	if cfg.Settlement == "" {
		cfg.Settlement = defaults.Settlement
	}
	if cfg.ExportLimit == 0 {
		cfg.ExportLimit = defaults.ExportLimit
	}
	if cfg.Runner.Schedule == "" {
		cfg.Runner.Schedule = defaults.Runner.Schedule
	}
	if cfg.Runner.BatchSize == 0 {
		cfg.Runner.BatchSize = defaults.Runner.BatchSize
	}
	if cfg.Runner.Timeout == 0 {
		cfg.Runner.Timeout = defaults.Runner.Timeout
	}
	if cfg.AMQP.Exchange == "" {
		cfg.AMQP.Exchange = defaults.AMQP.Exchange
	}
	if cfg.AMQP.RoutingPrefix == "" {
		cfg.AMQP.RoutingPrefix = defaults.AMQP.RoutingPrefix
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.Runner.Enabled {
		yamlConfig.Runner.Enabled = true
	}
	if programmaticConfig.Metrics {
		yamlConfig.Metrics = true
	}

	if yamlConfig.Backend == "" {
		yamlConfig.Backend = programmaticConfig.Backend
	}
	if yamlConfig.Address == "" {
		yamlConfig.Address = programmaticConfig.Address
	}
	if yamlConfig.Settlement == "" {
		yamlConfig.Settlement = programmaticConfig.Settlement
	}
	if yamlConfig.ExportLimit == 0 {
		yamlConfig.ExportLimit = programmaticConfig.ExportLimit
	}
	if yamlConfig.Runner.Schedule == "" {
		yamlConfig.Runner.Schedule = programmaticConfig.Runner.Schedule
	}
	if yamlConfig.Runner.BatchSize == 0 {
		yamlConfig.Runner.BatchSize = programmaticConfig.Runner.BatchSize
	}
	if yamlConfig.Runner.Timeout == 0 {
		yamlConfig.Runner.Timeout = programmaticConfig.Runner.Timeout
	}
	if yamlConfig.AMQP.URL == "" {
		yamlConfig.AMQP.URL = programmaticConfig.AMQP.URL
	}
	if yamlConfig.AMQP.Exchange == "" {
		yamlConfig.AMQP.Exchange = programmaticConfig.AMQP.Exchange
	}
	if yamlConfig.AMQP.RoutingPrefix == "" {
		yamlConfig.AMQP.RoutingPrefix = programmaticConfig.AMQP.RoutingPrefix
	}

	return mergeWithDefaults(yamlConfig)
}
