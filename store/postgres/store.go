package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/merchant"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/recovery"
	"github.com/xraph/subvault/settings"
	vaultstore "github.com/xraph/subvault/store"
	"github.com/xraph/subvault/store/internal/sqlmodel"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// compile-time interface check
var _ vaultstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("subvault/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("subvault/postgres: migration failed: %w", err)
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
	m := new(sqlmodel.SettingsRow)
	err := s.pg.NewSelect(m).
		Where("id = $1", sqlmodel.SettingsRowID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, subvault.ErrNotInitialized
		}
		return nil, err
	}
	return sqlmodel.FromSettingsRow(m)
}

func (s *Store) CreateSettings(ctx context.Context, st *settings.Settings) error {
	res, err := s.pg.NewInsert(sqlmodel.ToSettingsRow(st)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return subvault.ErrAlreadyInitialized
	}
	return nil
}

func (s *Store) UpdateSettings(ctx context.Context, st *settings.Settings) error {
	m := sqlmodel.ToSettingsRow(st)
	m.UpdatedAt = now()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return subvault.ErrNotInitialized
	}
	return nil
}

func (s *Store) NextSequence(ctx context.Context, seq settings.Sequence) (uint64, error) {
	var cur int64
	err := s.pg.NewRaw(`
		INSERT INTO subvault_sequences (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = subvault_sequences.value + 1
		RETURNING value - 1
	`, string(seq)).Scan(ctx, &cur)
	if err != nil {
		return 0, fmt.Errorf("subvault/postgres: next %s: %w", seq, err)
	}
	return sqlmodel.U64(cur), nil
}

func (s *Store) PeekSequence(ctx context.Context, seq settings.Sequence) (uint64, error) {
	var cur int64
	err := s.pg.NewRaw(`
		SELECT COALESCE((SELECT value FROM subvault_sequences WHERE name = $1), 0)
	`, string(seq)).Scan(ctx, &cur)
	if err != nil {
		return 0, err
	}
	return sqlmodel.U64(cur), nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.pg.NewInsert(sqlmodel.ToSubscriptionRow(sub)).Exec(ctx)
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	m := new(sqlmodel.SubscriptionRow)
	err := s.pg.NewSelect(m).
		Where("id = $1", sqlmodel.I64(uint64(subID))).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: subscription %d", subvault.ErrNotFound, subID)
		}
		return nil, err
	}
	return sqlmodel.FromSubscriptionRow(m)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := sqlmodel.ToSubscriptionRow(sub)
	m.UpdatedAt = now()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: subscription %d", subvault.ErrNotFound, sub.ID)
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []sqlmodel.SubscriptionRow
	q := s.pg.NewSelect(&models)

	conds, args := subscriptionFilter(opts)
	for i, c := range conds {
		q = q.Where(c, args[i])
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := sqlmodel.FromSubscriptionRow(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) CountSubscriptions(ctx context.Context, opts subscription.ListOpts) (int, error) {
	query := "SELECT COUNT(*) FROM subvault_subscriptions"
	conds, args := subscriptionFilter(opts)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var n int64
	if err := s.pg.NewRaw(query, args...).Scan(ctx, &n); err != nil {
		return 0, err
	}
	return int(n), nil
}

// subscriptionFilter builds one condition per set filter, with placeholders
// numbered in order.
func subscriptionFilter(opts subscription.ListOpts) ([]string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s $%d", col, len(args)))
	}
	if opts.StartID > 0 {
		add("id >=", sqlmodel.I64(opts.StartID))
	}
	if opts.Merchant != "" {
		add("merchant =", string(opts.Merchant))
	}
	if opts.Subscriber != "" {
		add("subscriber =", string(opts.Subscriber))
	}
	if opts.Status != "" {
		add("status =", string(opts.Status))
	}
	return conds, args
}

// ==================== Plan Template Store ====================

func (s *Store) CreatePlanTemplate(ctx context.Context, t *plan.Template) error {
	_, err := s.pg.NewInsert(sqlmodel.ToPlanTemplateRow(t)).Exec(ctx)
	return err
}

func (s *Store) GetPlanTemplate(ctx context.Context, templateID plan.TemplateID) (*plan.Template, error) {
	m := new(sqlmodel.PlanTemplateRow)
	err := s.pg.NewSelect(m).
		Where("id = $1", sqlmodel.I64(uint64(templateID))).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: plan template %d", subvault.ErrNotFound, templateID)
		}
		return nil, err
	}
	return sqlmodel.FromPlanTemplateRow(m)
}

func (s *Store) ListPlanTemplates(ctx context.Context, opts plan.ListOpts) ([]*plan.Template, error) {
	var models []sqlmodel.PlanTemplateRow
	q := s.pg.NewSelect(&models)

	if opts.Merchant != "" {
		q = q.Where("merchant = $1", string(opts.Merchant))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*plan.Template, len(models))
	for i := range models {
		t, err := sqlmodel.FromPlanTemplateRow(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

// ==================== Merchant Balance Store ====================

func (s *Store) GetMerchantBalance(ctx context.Context, m types.Address) (*merchant.Balance, error) {
	bm := new(sqlmodel.MerchantBalanceRow)
	err := s.pg.NewSelect(bm).
		Where("merchant = $1", string(m)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return &merchant.Balance{Entity: types.NewEntity(), Merchant: m}, nil
		}
		return nil, err
	}
	return sqlmodel.FromMerchantBalanceRow(bm)
}

func (s *Store) PutMerchantBalance(ctx context.Context, b *merchant.Balance) error {
	m := sqlmodel.ToMerchantBalanceRow(b)
	m.UpdatedAt = now()
	_, err := s.pg.NewInsert(m).
		OnConflict("(merchant) DO UPDATE").
		Set("accrued = EXCLUDED.accrued").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Recovery Store ====================

func (s *Store) CreateRecovery(ctx context.Context, r *recovery.Record) error {
	_, err := s.pg.NewInsert(sqlmodel.ToRecoveryRow(r)).Exec(ctx)
	return err
}

func (s *Store) DeleteRecovery(ctx context.Context, recID id.RecoveryID) error {
	res, err := s.pg.NewDelete((*sqlmodel.RecoveryRow)(nil)).
		Where("id = $1", recID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subvault/postgres: delete recovery: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: recovery %s", subvault.ErrNotFound, recID)
	}
	return nil
}

func (s *Store) ListRecoveries(ctx context.Context, opts recovery.ListOpts) ([]*recovery.Record, error) {
	var models []sqlmodel.RecoveryRow
	q := s.pg.NewSelect(&models)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*recovery.Record, len(models))
	for i := range models {
		r, err := sqlmodel.FromRecoveryRow(&models[i])
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

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
