package extension

import "time"

// Store backends selectable through Config.Backend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMongo    = "mongo"
)

// Config holds the subvault extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.subvault" or "subvault" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Backend selects the store built around the grove database passed
	// with WithGroveDB: "postgres", "sqlite" or "mongo". Without a grove
	// database the in-memory store is used.
	Backend string `json:"backend" mapstructure:"backend" yaml:"backend"`

	// Address is the vault's custody address (default: "subvault").
	Address string `json:"address" mapstructure:"address" yaml:"address"`

	// Settlement is "accrue" (default) or "immediate".
	Settlement string `json:"settlement" mapstructure:"settlement" yaml:"settlement"`

	// ExportLimit caps export page sizes (default: 100).
	ExportLimit int `json:"export_limit" mapstructure:"export_limit" yaml:"export_limit"`

	// Runner schedules interval charging when enabled.
	Runner RunnerConfig `json:"runner" mapstructure:"runner" yaml:"runner"`

	// AMQP publishes vault events when URL is set.
	AMQP AMQPConfig `json:"amqp" mapstructure:"amqp" yaml:"amqp"`

	// Metrics registers Prometheus metrics with the default registerer.
	Metrics bool `json:"metrics" mapstructure:"metrics" yaml:"metrics"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// RunnerConfig configures the billing runner.
type RunnerConfig struct {
	Enabled   bool          `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	Schedule  string        `json:"schedule" mapstructure:"schedule" yaml:"schedule"`
	BatchSize int           `json:"batch_size" mapstructure:"batch_size" yaml:"batch_size"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout"`
}

// AMQPConfig configures event publishing.
type AMQPConfig struct {
	URL           string `json:"url" mapstructure:"url" yaml:"url"`
	Exchange      string `json:"exchange" mapstructure:"exchange" yaml:"exchange"`
	RoutingPrefix string `json:"routing_prefix" mapstructure:"routing_prefix" yaml:"routing_prefix"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendMemory,
		Settlement:  "accrue",
		ExportLimit: 100,
		Runner: RunnerConfig{
			Schedule:  "@every 1m",
			BatchSize: 50,
			Timeout:   30 * time.Second,
		},
		AMQP: AMQPConfig{
			Exchange:      "subvault.events",
			RoutingPrefix: "subvault",
		},
	}
}
