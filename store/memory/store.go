package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/merchant"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/recovery"
	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// Store keeps every record in process memory. Records are copied on the way
// in and out, so callers never share state with the store.
//
// Store implements store.Atomic with an undo journal: each write inside a
// unit records how to revert itself, and a failing unit replays its undo
// entries in reverse. Units must not run concurrently with other writes;
// the vault serializes its entry points.
type Store struct {
	mu sync.RWMutex

	settings      *settings.Settings
	sequences     map[settings.Sequence]uint64
	subscriptions map[subscription.ID]*subscription.Subscription
	templates     map[plan.TemplateID]*plan.Template
	balances      map[types.Address]*merchant.Balance
	recoveries    []*recovery.Record

	// journal holds one undo frame per open unit, innermost last.
	journal [][]func()
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Atomic = (*Store)(nil)
)

func New() *Store {
	return &Store{
		sequences:     make(map[settings.Sequence]uint64),
		subscriptions: make(map[subscription.ID]*subscription.Subscription),
		templates:     make(map[plan.TemplateID]*plan.Template),
		balances:      make(map[types.Address]*merchant.Balance),
	}
}

// record adds an undo entry to the innermost open unit. Callers hold s.mu.
func (s *Store) record(undo func()) {
	if n := len(s.journal); n > 0 {
		s.journal[n-1] = append(s.journal[n-1], undo)
	}
}

// Atomically runs fn as one unit of work. If fn fails every write made
// during fn is reverted; on success the writes join the enclosing unit,
// if any.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	s.journal = append(s.journal, nil)
	depth := len(s.journal)
	s.mu.Unlock()

	err := fn(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	frame := s.journal[depth-1]
	s.journal = s.journal[:depth-1]

	if err != nil {
		for i := len(frame) - 1; i >= 0; i-- {
			frame[i]()
		}
		return err
	}
	if depth > 1 {
		s.journal[depth-2] = append(s.journal[depth-2], frame...)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Settings and counters
// ──────────────────────────────────────────────────

func (s *Store) GetSettings(_ context.Context) (*settings.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, subvault.ErrNotInitialized
	}
	cp := *s.settings
	return &cp, nil
}

func (s *Store) CreateSettings(_ context.Context, st *settings.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings != nil {
		return subvault.ErrAlreadyInitialized
	}
	cp := *st
	s.settings = &cp
	s.record(func() { s.settings = nil })
	return nil
}

func (s *Store) UpdateSettings(_ context.Context, st *settings.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings == nil {
		return subvault.ErrNotInitialized
	}
	prev := s.settings
	cp := *st
	s.settings = &cp
	s.record(func() { s.settings = prev })
	return nil
}

func (s *Store) NextSequence(_ context.Context, seq settings.Sequence) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.sequences[seq]
	s.sequences[seq] = cur + 1
	s.record(func() { s.sequences[seq] = cur })
	return cur, nil
}

func (s *Store) PeekSequence(_ context.Context, seq settings.Sequence) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sequences[seq], nil
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID]; exists {
		return fmt.Errorf("%w: subscription %d already exists", subvault.ErrInvalidInput, sub.ID)
	}
	s.subscriptions[sub.ID] = sub.Clone()
	subID := sub.ID
	s.record(func() { delete(s.subscriptions, subID) })
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID]; ok {
		return sub.Clone(), nil
	}
	return nil, fmt.Errorf("%w: subscription %d", subvault.ErrNotFound, subID)
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.subscriptions[sub.ID]
	if !exists {
		return fmt.Errorf("%w: subscription %d", subvault.ErrNotFound, sub.ID)
	}
	next := sub.Clone()
	next.Touch()
	s.subscriptions[sub.ID] = next
	s.record(func() { s.subscriptions[prev.ID] = prev })
	return nil
}

func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchSubscriptions(opts)
	matched = paginate(matched, opts.Offset, opts.Limit)

	result := make([]*subscription.Subscription, 0, len(matched))
	for _, sub := range matched {
		result = append(result, sub.Clone())
	}
	return result, nil
}

func (s *Store) CountSubscriptions(_ context.Context, opts subscription.ListOpts) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.matchSubscriptions(opts)), nil
}

// matchSubscriptions returns the filtered subscriptions in ID order,
// ignoring paging. Callers hold s.mu.
func (s *Store) matchSubscriptions(opts subscription.ListOpts) []*subscription.Subscription {
	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if uint64(sub.ID) < opts.StartID {
			continue
		}
		if opts.Merchant != "" && sub.Merchant != opts.Merchant {
			continue
		}
		if opts.Subscriber != "" && sub.Subscriber != opts.Subscriber {
			continue
		}
		if opts.Status != "" && sub.Status != opts.Status {
			continue
		}
		result = append(result, sub)
	}
	slices.SortFunc(result, func(a, b *subscription.Subscription) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

// ──────────────────────────────────────────────────
// Plan templates
// ──────────────────────────────────────────────────

func (s *Store) CreatePlanTemplate(_ context.Context, t *plan.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[t.ID]; exists {
		return fmt.Errorf("%w: plan template %d already exists", subvault.ErrInvalidInput, t.ID)
	}
	cp := *t
	s.templates[t.ID] = &cp
	tid := t.ID
	s.record(func() { delete(s.templates, tid) })
	return nil
}

func (s *Store) GetPlanTemplate(_ context.Context, templateID plan.TemplateID) (*plan.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.templates[templateID]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: plan template %d", subvault.ErrNotFound, templateID)
}

func (s *Store) ListPlanTemplates(_ context.Context, opts plan.ListOpts) ([]*plan.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*plan.Template, 0)
	for _, t := range s.templates {
		if opts.Merchant != "" && t.Merchant != opts.Merchant {
			continue
		}
		matched = append(matched, t)
	}
	slices.SortFunc(matched, func(a, b *plan.Template) int {
		return cmp.Compare(a.ID, b.ID)
	})
	matched = paginate(matched, opts.Offset, opts.Limit)

	result := make([]*plan.Template, 0, len(matched))
	for _, t := range matched {
		cp := *t
		result = append(result, &cp)
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Merchant accruals
// ──────────────────────────────────────────────────

func (s *Store) GetMerchantBalance(_ context.Context, m types.Address) (*merchant.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.balances[m]; ok {
		cp := *b
		return &cp, nil
	}
	return &merchant.Balance{Entity: types.NewEntity(), Merchant: m}, nil
}

func (s *Store) PutMerchantBalance(_ context.Context, b *merchant.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.balances[b.Merchant]
	cp := *b
	s.balances[b.Merchant] = &cp
	m := b.Merchant
	s.record(func() {
		if existed {
			s.balances[m] = prev
		} else {
			delete(s.balances, m)
		}
	})
	return nil
}

// ──────────────────────────────────────────────────
// Recoveries
// ──────────────────────────────────────────────────

func (s *Store) CreateRecovery(_ context.Context, r *recovery.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.recoveries = append(s.recoveries, &cp)
	n := len(s.recoveries) - 1
	s.record(func() { s.recoveries = s.recoveries[:n] })
	return nil
}

func (s *Store) DeleteRecovery(_ context.Context, recID id.RecoveryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.recoveries, func(r *recovery.Record) bool { return r.ID == recID })
	if i < 0 {
		return fmt.Errorf("%w: recovery %s", subvault.ErrNotFound, recID)
	}
	removed := s.recoveries[i]
	s.recoveries = slices.Delete(s.recoveries, i, i+1)
	s.record(func() { s.recoveries = slices.Insert(s.recoveries, i, removed) })
	return nil
}

func (s *Store) ListRecoveries(_ context.Context, opts recovery.ListOpts) ([]*recovery.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page := paginate(s.recoveries, opts.Offset, opts.Limit)
	result := make([]*recovery.Record, 0, len(page))
	for _, r := range page {
		cp := *r
		result = append(result, &cp)
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

// paginate applies offset and limit. A zero limit means no limit.
func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start < 0 {
		start = 0
	}
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
