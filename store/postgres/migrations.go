package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the subvault store.
var Migrations = migrate.NewGroup("subvault")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_subvault_settings",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subvault_settings (
    id             INT PRIMARY KEY,
    token          TEXT NOT NULL,
    token_decimals BIGINT NOT NULL DEFAULT 0,
    admin          TEXT NOT NULL,
    min_topup      TEXT NOT NULL DEFAULT '0',
    grace_period   BIGINT NOT NULL DEFAULT 0,
    schema_version BIGINT NOT NULL DEFAULT 1,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS subvault_sequences (
    name  TEXT PRIMARY KEY,
    value BIGINT NOT NULL DEFAULT 0
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
    id                     BIGINT PRIMARY KEY,
    subscriber             TEXT NOT NULL,
    merchant               TEXT NOT NULL,
    amount                 TEXT NOT NULL,
    interval_seconds       BIGINT NOT NULL,
    last_payment_timestamp BIGINT NOT NULL,
    status                 TEXT NOT NULL DEFAULT 'active',
    prepaid_balance        TEXT NOT NULL DEFAULT '0',
    usage_enabled          BOOLEAN NOT NULL DEFAULT FALSE,
    expiration             BIGINT,
    plan_template_id       BIGINT,
    last_charge_key        TEXT NOT NULL DEFAULT '',
    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    id               BIGINT PRIMARY KEY,
    merchant         TEXT NOT NULL,
    amount           TEXT NOT NULL,
    interval_seconds BIGINT NOT NULL,
    usage_enabled    BOOLEAN NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    timestamp  BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
