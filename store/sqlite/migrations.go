package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the subvault store (SQLite).
var Migrations = migrate.NewGroup("subvault")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_subvault_settings",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subvault_settings (
    id             INTEGER PRIMARY KEY,
    token          TEXT NOT NULL,
    token_decimals INTEGER NOT NULL DEFAULT 0,
    admin          TEXT NOT NULL,
    min_topup      TEXT NOT NULL DEFAULT '0',
    grace_period   INTEGER NOT NULL DEFAULT 0,
    schema_version INTEGER NOT NULL DEFAULT 1,
    created_at     TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at     TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS subvault_sequences (
    name  TEXT PRIMARY KEY,
    value INTEGER NOT NULL DEFAULT 0
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS subvault_sequences;
DROP TABLE IF EXISTS subvault_settings;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subvault_subscriptions",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subvault_subscriptions (
    id                     INTEGER PRIMARY KEY,
    subscriber             TEXT NOT NULL,
    merchant               TEXT NOT NULL,
    amount                 TEXT NOT NULL,
    interval_seconds       INTEGER NOT NULL,
    last_payment_timestamp INTEGER NOT NULL,
    status                 TEXT NOT NULL DEFAULT 'active',
    prepaid_balance        TEXT NOT NULL DEFAULT '0',
    usage_enabled          INTEGER NOT NULL DEFAULT 0,
    expiration             INTEGER,
    plan_template_id       INTEGER,
    last_charge_key        TEXT NOT NULL DEFAULT '',
    created_at             TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at             TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_subvault_subscriptions_merchant ON subvault_subscriptions (merchant, id);
CREATE INDEX IF NOT EXISTS idx_subvault_subscriptions_subscriber ON subvault_subscriptions (subscriber, id);
CREATE INDEX IF NOT EXISTS idx_subvault_subscriptions_status ON subvault_subscriptions (status, id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subvault_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subvault_plan_templates",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subvault_plan_templates (
    id               INTEGER PRIMARY KEY,
    merchant         TEXT NOT NULL,
    amount           TEXT NOT NULL,
    interval_seconds INTEGER NOT NULL,
    usage_enabled    INTEGER NOT NULL DEFAULT 0,
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_subvault_plan_templates_merchant ON subvault_plan_templates (merchant, id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subvault_plan_templates`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subvault_merchant_balances",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subvault_merchant_balances (
    merchant   TEXT PRIMARY KEY,
    accrued    TEXT NOT NULL DEFAULT '0',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subvault_merchant_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subvault_recoveries",
			Version: "20260101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subvault_recoveries (
    id         TEXT PRIMARY KEY,
    admin      TEXT NOT NULL,
    recipient  TEXT NOT NULL,
    amount     TEXT NOT NULL,
    reason     TEXT NOT NULL,
    timestamp  INTEGER NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_subvault_recoveries_created ON subvault_recoveries (created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subvault_recoveries`)
				return err
			},
		},
	)
}
