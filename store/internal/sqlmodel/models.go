// Package sqlmodel holds the grove row models shared by the postgres and
// sqlite stores.
package sqlmodel

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/merchant"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/recovery"
	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// Unsigned ledger values are stored bit-for-bit in signed 64-bit columns
// (BIGINT on postgres, INTEGER on sqlite). Amounts exceed 64 bits and are
// stored as decimal TEXT.

// I64 maps an unsigned ledger value onto its signed column value.
func I64(v uint64) int64 { return int64(v) } //nolint:gosec // bit-preserving round trip

// U64 maps a signed column value back onto the unsigned ledger value.
func U64(v int64) uint64 { return uint64(v) } //nolint:gosec // bit-preserving round trip

func optU2I(v *uint64) *int64 {
	if v == nil {
		return nil
	}
	i := I64(*v)
	return &i
}

func optI2U(v *int64) *uint64 {
	if v == nil {
		return nil
	}
	u := U64(*v)
	return &u
}

func parseAmount(field, v string) (types.Amount, error) {
	a, err := types.ParseAmount(v)
	if err != nil {
		return types.Amount{}, fmt.Errorf("subvault/sql: decode %s: %w", field, err)
	}
	return a, nil
}

// ==================== Settings models ====================

// SettingsRowID is the primary key of the single settings row.
const SettingsRowID = 1

// SettingsRow is the single settings row.
type SettingsRow struct {
	grove.BaseModel `grove:"table:subvault_settings"`

	ID            int       `grove:"id,pk"`
	Token         string    `grove:"token"`
	TokenDecimals int64     `grove:"token_decimals"`
	Admin         string    `grove:"admin"`
	MinTopup      string    `grove:"min_topup"`
	GracePeriod   int64     `grove:"grace_period"`
	SchemaVersion int64     `grove:"schema_version"`
	CreatedAt     time.Time `grove:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"`
}

func ToSettingsRow(s *settings.Settings) *SettingsRow {
	return &SettingsRow{
		ID:            SettingsRowID,
		Token:         string(s.Token),
		TokenDecimals: int64(s.TokenDecimals),
		Admin:         string(s.Admin),
		MinTopup:      s.MinTopup.String(),
		GracePeriod:   I64(s.GracePeriod),
		SchemaVersion: int64(s.SchemaVersion),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func FromSettingsRow(m *SettingsRow) (*settings.Settings, error) {
	minTopup, err := parseAmount("min_topup", m.MinTopup)
	if err != nil {
		return nil, err
	}
	return &settings.Settings{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Token:         types.Address(m.Token),
		TokenDecimals: uint32(m.TokenDecimals), //nolint:gosec // written from a uint32
		Admin:         types.Address(m.Admin),
		MinTopup:      minTopup,
		GracePeriod:   U64(m.GracePeriod),
		SchemaVersion: uint32(m.SchemaVersion), //nolint:gosec // written from a uint32
	}, nil
}

// ==================== Subscription models ====================

// SubscriptionRow is one subscription.
type SubscriptionRow struct {
	grove.BaseModel `grove:"table:subvault_subscriptions"`

	ID                   int64     `grove:"id,pk"`
	Subscriber           string    `grove:"subscriber"`
	Merchant             string    `grove:"merchant"`
	Amount               string    `grove:"amount"`
	IntervalSeconds      int64     `grove:"interval_seconds"`
	LastPaymentTimestamp int64     `grove:"last_payment_timestamp"`
	Status               string    `grove:"status"`
	PrepaidBalance       string    `grove:"prepaid_balance"`
	UsageEnabled         bool      `grove:"usage_enabled"`
	Expiration           *int64    `grove:"expiration"`
	PlanTemplateID       *int64    `grove:"plan_template_id"`
	LastChargeKey        string    `grove:"last_charge_key"`
	CreatedAt            time.Time `grove:"created_at"`
	UpdatedAt            time.Time `grove:"updated_at"`
}

func ToSubscriptionRow(s *subscription.Subscription) *SubscriptionRow {
	return &SubscriptionRow{
		ID:                   I64(uint64(s.ID)),
		Subscriber:           string(s.Subscriber),
		Merchant:             string(s.Merchant),
		Amount:               s.Amount.String(),
		IntervalSeconds:      I64(s.IntervalSeconds),
		LastPaymentTimestamp: I64(s.LastPaymentTimestamp),
		Status:               string(s.Status),
		PrepaidBalance:       s.PrepaidBalance.String(),
		UsageEnabled:         s.UsageEnabled,
		Expiration:           optU2I(s.Expiration),
		PlanTemplateID:       optU2I(s.PlanTemplateID),
		LastChargeKey:        s.LastChargeKey,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func FromSubscriptionRow(m *SubscriptionRow) (*subscription.Subscription, error) {
	status, err := subscription.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", m.Amount)
	if err != nil {
		return nil, err
	}
	balance, err := parseAmount("prepaid_balance", m.PrepaidBalance)
	if err != nil {
		return nil, err
	}
	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                   subscription.ID(U64(m.ID)),
		Subscriber:           types.Address(m.Subscriber),
		Merchant:             types.Address(m.Merchant),
		Amount:               amount,
		IntervalSeconds:      U64(m.IntervalSeconds),
		LastPaymentTimestamp: U64(m.LastPaymentTimestamp),
		Status:               status,
		PrepaidBalance:       balance,
		UsageEnabled:         m.UsageEnabled,
		Expiration:           optI2U(m.Expiration),
		PlanTemplateID:       optI2U(m.PlanTemplateID),
		LastChargeKey:        m.LastChargeKey,
	}, nil
}

// ==================== Plan template models ====================

type PlanTemplateRow struct {
	grove.BaseModel `grove:"table:subvault_plan_templates"`

	ID              int64     `grove:"id,pk"`
	Merchant        string    `grove:"merchant"`
	Amount          string    `grove:"amount"`
	IntervalSeconds int64     `grove:"interval_seconds"`
	UsageEnabled    bool      `grove:"usage_enabled"`
	CreatedAt       time.Time `grove:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"`
}

func ToPlanTemplateRow(t *plan.Template) *PlanTemplateRow {
	return &PlanTemplateRow{
		ID:              I64(uint64(t.ID)),
		Merchant:        string(t.Merchant),
		Amount:          t.Amount.String(),
		IntervalSeconds: I64(t.IntervalSeconds),
		UsageEnabled:    t.UsageEnabled,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func FromPlanTemplateRow(m *PlanTemplateRow) (*plan.Template, error) {
	amount, err := parseAmount("amount", m.Amount)
	if err != nil {
		return nil, err
	}
	return &plan.Template{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              plan.TemplateID(U64(m.ID)),
		Merchant:        types.Address(m.Merchant),
		Amount:          amount,
		IntervalSeconds: U64(m.IntervalSeconds),
		UsageEnabled:    m.UsageEnabled,
	}, nil
}

// ==================== Merchant balance models ====================

// MerchantBalanceRow is a merchant's accrued balance.
type MerchantBalanceRow struct {
	grove.BaseModel `grove:"table:subvault_merchant_balances"`

	Merchant  string    `grove:"merchant,pk"`
	Accrued   string    `grove:"accrued"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func ToMerchantBalanceRow(b *merchant.Balance) *MerchantBalanceRow {
	return &MerchantBalanceRow{
		Merchant:  string(b.Merchant),
		Accrued:   b.Accrued.String(),
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

func FromMerchantBalanceRow(m *MerchantBalanceRow) (*merchant.Balance, error) {
	accrued, err := parseAmount("accrued", m.Accrued)
	if err != nil {
		return nil, err
	}
	return &merchant.Balance{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Merchant: types.Address(m.Merchant),
		Accrued:  accrued,
	}, nil
}

// ==================== Recovery models ====================

type RecoveryRow struct {
	grove.BaseModel `grove:"table:subvault_recoveries"`

	ID        string    `grove:"id,pk"`
	Admin     string    `grove:"admin"`
	Recipient string    `grove:"recipient"`
	Amount    string    `grove:"amount"`
	Reason    string    `grove:"reason"`
	Timestamp int64     `grove:"timestamp"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func ToRecoveryRow(r *recovery.Record) *RecoveryRow {
	return &RecoveryRow{
		ID:        r.ID.String(),
		Admin:     string(r.Admin),
		Recipient: string(r.Recipient),
		Amount:    r.Amount.String(),
		Reason:    string(r.Reason),
		Timestamp: I64(r.Timestamp),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func FromRecoveryRow(m *RecoveryRow) (*recovery.Record, error) {
	recID, err := id.ParseRecoveryID(m.ID)
	if err != nil {
		return nil, err
	}
	reason, err := recovery.ParseReason(m.Reason)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", m.Amount)
	if err != nil {
		return nil, err
	}
	return &recovery.Record{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        recID,
		Admin:     types.Address(m.Admin),
		Recipient: types.Address(m.Recipient),
		Amount:    amount,
		Reason:    reason,
		Timestamp: U64(m.Timestamp),
	}, nil
}
