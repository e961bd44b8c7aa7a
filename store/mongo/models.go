package mongo

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

// BSON has no unsigned 64-bit type; unsigned fields are stored as the
// int64 with the same bits. Amounts are decimal strings.

func u2i(v uint64) int64 { return int64(v) } //nolint:gosec // bit-preserving round trip
func i2u(v int64) uint64 { return uint64(v) } //nolint:gosec // bit-preserving round trip

func optU2I(v *uint64) *int64 {
	if v == nil {
		return nil
	}
	i := u2i(*v)
	return &i
}

func optI2U(v *int64) *uint64 {
	if v == nil {
		return nil
	}
	u := i2u(*v)
	return &u
}

func parseAmount(field, v string) (types.Amount, error) {
	a, err := types.ParseAmount(v)
	if err != nil {
		return types.Amount{}, fmt.Errorf("subvault/mongo: decode %s: %w", field, err)
	}
	return a, nil
}

// ==================== Settings models ====================

const settingsDocID = 1

type settingsModel struct {
	grove.BaseModel `grove:"table:subvault_settings"`

	ID            int       `grove:"id,pk"          bson:"_id"`
	Token         string    `grove:"token"          bson:"token"`
	TokenDecimals int64     `grove:"token_decimals" bson:"token_decimals"`
	Admin         string    `grove:"admin"          bson:"admin"`
	MinTopup      string    `grove:"min_topup"      bson:"min_topup"`
	GracePeriod   int64     `grove:"grace_period"   bson:"grace_period"`
	SchemaVersion int64     `grove:"schema_version" bson:"schema_version"`
	CreatedAt     time.Time `grove:"created_at"     bson:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"     bson:"updated_at"`
}

func toSettingsModel(s *settings.Settings) *settingsModel {
	return &settingsModel{
		ID:            settingsDocID,
		Token:         string(s.Token),
		TokenDecimals: int64(s.TokenDecimals),
		Admin:         string(s.Admin),
		MinTopup:      s.MinTopup.String(),
		GracePeriod:   u2i(s.GracePeriod),
		SchemaVersion: int64(s.SchemaVersion),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func fromSettingsModel(m *settingsModel) (*settings.Settings, error) {
	minTopup, err := parseAmount("min_topup", m.MinTopup)
	if err != nil {
		return nil, err
	}
	return &settings.Settings{
		Entity:        types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		Token:         types.Address(m.Token),
		TokenDecimals: uint32(m.TokenDecimals), //nolint:gosec // written from a uint32
		Admin:         types.Address(m.Admin),
		MinTopup:      minTopup,
		GracePeriod:   i2u(m.GracePeriod),
		SchemaVersion: uint32(m.SchemaVersion), //nolint:gosec // written from a uint32
	}, nil
}

// sequenceModel is a named counter document. Value holds the next
// identifier to hand out.
type sequenceModel struct {
	Name  string `bson:"_id"`
	Value int64  `bson:"value"`
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:subvault_subscriptions"`

	ID                   int64     `grove:"id,pk"                  bson:"_id"`
	Subscriber           string    `grove:"subscriber"             bson:"subscriber"`
	Merchant             string    `grove:"merchant"               bson:"merchant"`
	Amount               string    `grove:"amount"                 bson:"amount"`
	IntervalSeconds      int64     `grove:"interval_seconds"       bson:"interval_seconds"`
	LastPaymentTimestamp int64     `grove:"last_payment_timestamp" bson:"last_payment_timestamp"`
	Status               string    `grove:"status"                 bson:"status"`
	PrepaidBalance       string    `grove:"prepaid_balance"        bson:"prepaid_balance"`
	UsageEnabled         bool      `grove:"usage_enabled"          bson:"usage_enabled"`
	Expiration           *int64    `grove:"expiration"             bson:"expiration,omitempty"`
	PlanTemplateID       *int64    `grove:"plan_template_id"       bson:"plan_template_id,omitempty"`
	LastChargeKey        string    `grove:"last_charge_key"        bson:"last_charge_key,omitempty"`
	CreatedAt            time.Time `grove:"created_at"             bson:"created_at"`
	UpdatedAt            time.Time `grove:"updated_at"             bson:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:                   u2i(uint64(s.ID)),
		Subscriber:           string(s.Subscriber),
		Merchant:             string(s.Merchant),
		Amount:               s.Amount.String(),
		IntervalSeconds:      u2i(s.IntervalSeconds),
		LastPaymentTimestamp: u2i(s.LastPaymentTimestamp),
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

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
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
		Entity:               types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                   subscription.ID(i2u(m.ID)),
		Subscriber:           types.Address(m.Subscriber),
		Merchant:             types.Address(m.Merchant),
		Amount:               amount,
		IntervalSeconds:      i2u(m.IntervalSeconds),
		LastPaymentTimestamp: i2u(m.LastPaymentTimestamp),
		Status:               status,
		PrepaidBalance:       balance,
		UsageEnabled:         m.UsageEnabled,
		Expiration:           optI2U(m.Expiration),
		PlanTemplateID:       optI2U(m.PlanTemplateID),
		LastChargeKey:        m.LastChargeKey,
	}, nil
}

// ==================== Plan template models ====================

type planTemplateModel struct {
	grove.BaseModel `grove:"table:subvault_plan_templates"`

	ID              int64     `grove:"id,pk"            bson:"_id"`
	Merchant        string    `grove:"merchant"         bson:"merchant"`
	Amount          string    `grove:"amount"           bson:"amount"`
	IntervalSeconds int64     `grove:"interval_seconds" bson:"interval_seconds"`
	UsageEnabled    bool      `grove:"usage_enabled"    bson:"usage_enabled"`
	CreatedAt       time.Time `grove:"created_at"       bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"       bson:"updated_at"`
}

func toPlanTemplateModel(t *plan.Template) *planTemplateModel {
	return &planTemplateModel{
		ID:              u2i(uint64(t.ID)),
		Merchant:        string(t.Merchant),
		Amount:          t.Amount.String(),
		IntervalSeconds: u2i(t.IntervalSeconds),
		UsageEnabled:    t.UsageEnabled,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func fromPlanTemplateModel(m *planTemplateModel) (*plan.Template, error) {
	amount, err := parseAmount("amount", m.Amount)
	if err != nil {
		return nil, err
	}
	return &plan.Template{
		Entity:          types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:              plan.TemplateID(i2u(m.ID)),
		Merchant:        types.Address(m.Merchant),
		Amount:          amount,
		IntervalSeconds: i2u(m.IntervalSeconds),
		UsageEnabled:    m.UsageEnabled,
	}, nil
}

// ==================== Merchant balance models ====================

type merchantBalanceModel struct {
	grove.BaseModel `grove:"table:subvault_merchant_balances"`

	Merchant  string    `grove:"merchant,pk" bson:"_id"`
	Accrued   string    `grove:"accrued"     bson:"accrued"`
	CreatedAt time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"  bson:"updated_at"`
}

func fromMerchantBalanceModel(m *merchantBalanceModel) (*merchant.Balance, error) {
	accrued, err := parseAmount("accrued", m.Accrued)
	if err != nil {
		return nil, err
	}
	return &merchant.Balance{
		Entity:   types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		Merchant: types.Address(m.Merchant),
		Accrued:  accrued,
	}, nil
}

// ==================== Recovery models ====================

type recoveryModel struct {
	grove.BaseModel `grove:"table:subvault_recoveries"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	Admin     string    `grove:"admin"      bson:"admin"`
	Recipient string    `grove:"recipient"  bson:"recipient"`
	Amount    string    `grove:"amount"     bson:"amount"`
	Reason    string    `grove:"reason"     bson:"reason"`
	Timestamp int64     `grove:"timestamp"  bson:"timestamp"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toRecoveryModel(r *recovery.Record) *recoveryModel {
	return &recoveryModel{
		ID:        r.ID.String(),
		Admin:     string(r.Admin),
		Recipient: string(r.Recipient),
		Amount:    r.Amount.String(),
		Reason:    string(r.Reason),
		Timestamp: u2i(r.Timestamp),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func fromRecoveryModel(m *recoveryModel) (*recovery.Record, error) {
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
		Entity:    types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:        recID,
		Admin:     types.Address(m.Admin),
		Recipient: types.Address(m.Recipient),
		Amount:    amount,
		Reason:    reason,
		Timestamp: i2u(m.Timestamp),
	}, nil
}
