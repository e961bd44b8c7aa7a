package extension

import (
	"testing"
	"time"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{ExportLimit: 20})
	if cfg.ExportLimit != 20 {
		t.Errorf("export limit overwritten: %d", cfg.ExportLimit)
	}
	if cfg.Backend != BackendMemory || cfg.Settlement != "accrue" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Runner.Schedule != "@every 1m" || cfg.Runner.BatchSize != 50 || cfg.Runner.Timeout != 30*time.Second {
		t.Errorf("runner defaults not applied: %+v", cfg.Runner)
	}
}

func TestMergeConfigurations(t *testing.T) {
	file := Config{
		Settlement: "immediate",
		Runner:     RunnerConfig{Schedule: "@every 5m"},
	}
	prog := Config{
		DisableMigrate: true,
		Settlement:     "accrue",
		ExportLimit:    10,
		Runner:         RunnerConfig{Enabled: true, Schedule: "@every 1h", BatchSize: 7},
		AMQP:           AMQPConfig{URL: "amqp://localhost"},
	}
	cfg := mergeConfigurations(file, prog)

	if cfg.Settlement != "immediate" || cfg.Runner.Schedule != "@every 5m" {
		t.Errorf("file values should win: %+v", cfg)
	}
	if !cfg.DisableMigrate || !cfg.Runner.Enabled {
		t.Errorf("programmatic flags lost: %+v", cfg)
	}
	if cfg.ExportLimit != 10 || cfg.Runner.BatchSize != 7 || cfg.AMQP.URL != "amqp://localhost" {
		t.Errorf("programmatic gaps not filled: %+v", cfg)
	}
	if cfg.AMQP.Exchange != "subvault.events" {
		t.Errorf("exchange default not applied: %q", cfg.AMQP.Exchange)
	}
}

func TestBuildStore(t *testing.T) {
	s, err := buildStore("", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Errorf("store = %T, want *memory.Store", s)
	}
	if _, err := buildStore(BackendPostgres, nil); err == nil {
		t.Error("expected error for postgres without a grove database")
	}
}

func TestSetupBuildsEngineAndRunner(t *testing.T) {
	e := New(WithRunner("@every 1h", 10), WithExportLimit(25))
	e.config = mergeWithDefaults(e.config)
	if err := e.setup(); err != nil {
		t.Fatal(err)
	}
	if e.Engine() == nil || e.Runner() == nil {
		t.Fatal("engine or runner not built")
	}
	if _, ok := e.store.(*memory.Store); !ok {
		t.Errorf("store = %T", e.store)
	}
}

func TestSetupRejectsUnknownSettlement(t *testing.T) {
	e := New(WithStore(memory.New()), WithSettlement("weekly"))
	e.config = mergeWithDefaults(e.config)
	err := e.setup()
	if subvault.Code(err) != subvault.Code(subvault.ErrInvalidInput) {
		t.Errorf("err = %v, want invalid input", err)
	}
}
