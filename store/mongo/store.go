package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/merchant"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/recovery"
	"github.com/xraph/subvault/settings"
	vaultstore "github.com/xraph/subvault/store"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// Collection name constants.
const (
	colSettings         = "subvault_settings"
	colSequences        = "subvault_sequences"
	colSubscriptions    = "subvault_subscriptions"
	colPlanTemplates    = "subvault_plan_templates"
	colMerchantBalances = "subvault_merchant_balances"
	colRecoveries       = "subvault_recoveries"
)

// compile-time interface check
var _ vaultstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all vault collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("subvault/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Settings Store ====================

func (s *Store) GetSettings(ctx context.Context) (*settings.Settings, error) {
	var m settingsModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": settingsDocID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subvault.ErrNotInitialized
		}
		return nil, fmt.Errorf("subvault/mongo: get settings: %w", err)
	}
	return fromSettingsModel(&m)
}

func (s *Store) CreateSettings(ctx context.Context, st *settings.Settings) error {
	_, err := s.mdb.NewInsert(toSettingsModel(st)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return subvault.ErrAlreadyInitialized
		}
		return fmt.Errorf("subvault/mongo: create settings: %w", err)
	}
	return nil
}

func (s *Store) UpdateSettings(ctx context.Context, st *settings.Settings) error {
	m := toSettingsModel(st)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subvault/mongo: update settings: %w", err)
	}
	if res.MatchedCount() == 0 {
		return subvault.ErrNotInitialized
	}
	return nil
}

func (s *Store) NextSequence(ctx context.Context, seq settings.Sequence) (uint64, error) {
	var m sequenceModel
	err := s.mdb.Collection(colSequences).FindOneAndUpdate(ctx,
		bson.M{"_id": string(seq)},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		return 0, fmt.Errorf("subvault/mongo: next %s: %w", seq, err)
	}
	return i2u(m.Value - 1), nil
}

func (s *Store) PeekSequence(ctx context.Context, seq settings.Sequence) (uint64, error) {
	var m sequenceModel
	err := s.mdb.Collection(colSequences).FindOne(ctx, bson.M{"_id": string(seq)}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("subvault/mongo: peek %s: %w", seq, err)
	}
	return i2u(m.Value), nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.mdb.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("subvault/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": u2i(uint64(subID))}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: subscription %d", subvault.ErrNotFound, subID)
		}
		return nil, fmt.Errorf("subvault/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subvault/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("%w: subscription %d", subvault.ErrNotFound, sub.ID)
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	q := s.mdb.NewFind(&models).
		Filter(subscriptionFilter(opts)).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("subvault/mongo: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) CountSubscriptions(ctx context.Context, opts subscription.ListOpts) (int, error) {
	n, err := s.mdb.Collection(colSubscriptions).CountDocuments(ctx, subscriptionFilter(opts))
	if err != nil {
		return 0, fmt.Errorf("subvault/mongo: count subscriptions: %w", err)
	}
	return int(n), nil
}

func subscriptionFilter(opts subscription.ListOpts) bson.M {
	filter := bson.M{}
	if opts.StartID > 0 {
		filter["_id"] = bson.M{"$gte": u2i(opts.StartID)}
	}
	if opts.Merchant != "" {
		filter["merchant"] = string(opts.Merchant)
	}
	if opts.Subscriber != "" {
		filter["subscriber"] = string(opts.Subscriber)
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	return filter
}

// ==================== Plan Template Store ====================

func (s *Store) CreatePlanTemplate(ctx context.Context, t *plan.Template) error {
	_, err := s.mdb.NewInsert(toPlanTemplateModel(t)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("subvault/mongo: create plan template: %w", err)
	}
	return nil
}

func (s *Store) GetPlanTemplate(ctx context.Context, templateID plan.TemplateID) (*plan.Template, error) {
	var m planTemplateModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": u2i(uint64(templateID))}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: plan template %d", subvault.ErrNotFound, templateID)
		}
		return nil, fmt.Errorf("subvault/mongo: get plan template: %w", err)
	}
	return fromPlanTemplateModel(&m)
}

func (s *Store) ListPlanTemplates(ctx context.Context, opts plan.ListOpts) ([]*plan.Template, error) {
	var models []planTemplateModel

	filter := bson.M{}
	if opts.Merchant != "" {
		filter["merchant"] = string(opts.Merchant)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("subvault/mongo: list plan templates: %w", err)
	}

	result := make([]*plan.Template, len(models))
	for i := range models {
		t, err := fromPlanTemplateModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

// ==================== Merchant Balance Store ====================

func (s *Store) GetMerchantBalance(ctx context.Context, m types.Address) (*merchant.Balance, error) {
	var bm merchantBalanceModel
	err := s.mdb.NewFind(&bm).
		Filter(bson.M{"_id": string(m)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return &merchant.Balance{Entity: types.NewEntity(), Merchant: m}, nil
		}
		return nil, fmt.Errorf("subvault/mongo: get merchant balance: %w", err)
	}
	return fromMerchantBalanceModel(&bm)
}

func (s *Store) PutMerchantBalance(ctx context.Context, b *merchant.Balance) error {
	t := now()
	_, err := s.mdb.NewUpdate((*merchantBalanceModel)(nil)).
		Filter(bson.M{"_id": string(b.Merchant)}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"accrued":    b.Accrued.String(),
				"updated_at": t,
			},
			"$setOnInsert": bson.M{"created_at": b.CreatedAt},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subvault/mongo: put merchant balance: %w", err)
	}
	return nil
}

// ==================== Recovery Store ====================

func (s *Store) CreateRecovery(ctx context.Context, r *recovery.Record) error {
	_, err := s.mdb.NewInsert(toRecoveryModel(r)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("subvault/mongo: create recovery: %w", err)
	}
	return nil
}

func (s *Store) DeleteRecovery(ctx context.Context, recID id.RecoveryID) error {
	res, err := s.mdb.NewDelete((*recoveryModel)(nil)).
		Filter(bson.M{"_id": recID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subvault/mongo: delete recovery: %w", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("%w: recovery %s", subvault.ErrNotFound, recID)
	}
	return nil
}

func (s *Store) ListRecoveries(ctx context.Context, opts recovery.ListOpts) ([]*recovery.Record, error) {
	var models []recoveryModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("subvault/mongo: list recoveries: %w", err)
	}

	result := make([]*recovery.Record, len(models))
	for i := range models {
		r, err := fromRecoveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Helpers ====================

func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all vault collections.
// Settings and sequences are keyed by _id only.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSettings:  nil,
		colSequences: nil,
		colSubscriptions: {
			{Keys: bson.D{{Key: "merchant", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "subscriber", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colPlanTemplates: {
			{Keys: bson.D{{Key: "merchant", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colMerchantBalances: nil,
		colRecoveries: {
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
			{
				Keys:    bson.D{{Key: "recipient", Value: 1}, {Key: "timestamp", Value: -1}},
				Options: options.Index().SetSparse(true),
			},
		},
	}
}
