package subvault_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/host"
	"github.com/xraph/subvault/plugin"
	"github.com/xraph/subvault/store/memory"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

const (
	month   = 2_592_000
	minimum = 1_000_000
)

type fixture struct {
	v       *subvault.Vault
	store   *memory.Store
	clock   *host.ManualClock
	signers *host.SignerSet
	token   *host.TransferLog
}

func newFixture(t *testing.T, opts ...subvault.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store:   memory.New(),
		clock:   host.NewManualClock(1000),
		signers: host.NewSignerSet("admin", "alice", "bob", "acme", "globex"),
		token:   host.NewTransferLog(),
	}
	opts = append([]subvault.Option{
		subvault.WithAuthorizer(f.signers),
		subvault.WithClock(f.clock),
		subvault.WithTokenTransfer(f.token),
	}, opts...)
	f.v = subvault.New(f.store, opts...)

	if err := f.v.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.v.Init(ctx, subvault.InitParams{
		Token:         "usdc",
		TokenDecimals: 7,
		Admin:         "admin",
		MinTopup:      types.NewAmount(minimum),
	}); err != nil {
		t.Fatalf("init: %v", err)
	}
	return f
}

func (f *fixture) create(t *testing.T, subscriber, merchant types.Address, amount int64, interval uint64) subscription.ID {
	t.Helper()
	subID, err := f.v.CreateSubscription(context.Background(), subvault.CreateParams{
		Subscriber:      subscriber,
		Merchant:        merchant,
		Amount:          types.NewAmount(amount),
		IntervalSeconds: interval,
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return subID
}

func (f *fixture) deposit(t *testing.T, subID subscription.ID, subscriber types.Address, amount int64) {
	t.Helper()
	if err := f.v.DepositFunds(context.Background(), subID, subscriber, types.NewAmount(amount)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func (f *fixture) get(t *testing.T, subID subscription.ID) *subscription.Subscription {
	t.Helper()
	sub, err := f.v.GetSubscription(context.Background(), subID)
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	return sub
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func expectBalance(t *testing.T, got types.Amount, want int64) {
	t.Helper()
	if !got.Equal(types.NewAmount(want)) {
		t.Fatalf("balance = %s, want %d", got, want)
	}
}

// ──────────────────────────────────────────────────
// Interval charges
// ──────────────────────────────────────────────────

func TestMonthlyScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	subID := f.create(t, "alice", "acme", 10_000_000, month)
	f.deposit(t, subID, "alice", 10_000_000)

	f.clock.Set(2_592_999)
	expectErr(t, f.v.ChargeSubscription(ctx, subID), subvault.ErrIntervalNotElapsed)
	sub := f.get(t, subID)
	expectBalance(t, sub.PrepaidBalance, 10_000_000)
	if sub.LastPaymentTimestamp != 1000 || sub.Status != subscription.StatusActive {
		t.Fatalf("early charge changed state: %+v", sub)
	}

	f.clock.Set(2_593_000)
	if err := f.v.ChargeSubscription(ctx, subID); err != nil {
		t.Fatalf("charge at boundary: %v", err)
	}
	sub = f.get(t, subID)
	expectBalance(t, sub.PrepaidBalance, 0)
	if sub.LastPaymentTimestamp != 2_593_000 {
		t.Fatalf("last payment = %d, want 2593000", sub.LastPaymentTimestamp)
	}

	// Same timestamp again: the watermark has moved.
	expectErr(t, f.v.ChargeSubscription(ctx, subID), subvault.ErrIntervalNotElapsed)

	// One interval later the empty balance is reported and recorded.
	f.clock.Set(2_593_000 + month)
	expectErr(t, f.v.ChargeSubscription(ctx, subID), subvault.ErrInsufficientBalance)
	sub = f.get(t, subID)
	if sub.Status != subscription.StatusInsufficientBalance {
		t.Fatalf("status = %s, want insufficient_balance", sub.Status)
	}
	expectBalance(t, sub.PrepaidBalance, 0)
	if sub.LastPaymentTimestamp != 2_593_000 {
		t.Fatalf("failed charge moved the watermark to %d", sub.LastPaymentTimestamp)
	}

	accrued, err := f.v.GetMerchantBalance(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	expectBalance(t, accrued, 10_000_000)
}

func TestChargeRequiresAdminApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subID := f.create(t, "alice", "acme", 1_000_000, 60)
	f.deposit(t, subID, "alice", 1_000_000)
	f.clock.Advance(60)

	f.signers.Revoke("admin")
	expectErr(t, f.v.ChargeSubscription(ctx, subID), subvault.ErrUnauthorized)
	expectBalance(t, f.get(t, subID).PrepaidBalance, 1_000_000)

	f.signers.Allow("admin")
	if err := f.v.ChargeSubscription(ctx, subID); err != nil {
		t.Fatal(err)
	}
}

func TestChargeNotFound(t *testing.T) {
	f := newFixture(t)
	err := f.v.ChargeSubscription(context.Background(), 42)
	expectErr(t, err, subvault.ErrNotFound)
	if subvault.Code(err) != 404 {
		t.Errorf("code = %d, want 404", subvault.Code(err))
	}
}

func TestChargeWithKeyRejectsReplay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subID := f.create(t, "alice", "acme", 1_000_000, 60)
	f.deposit(t, subID, "alice", 3_000_000)

	f.clock.Advance(60)
	if err := f.v.ChargeSubscriptionWithKey(ctx, subID, "k1"); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(60)
	expectErr(t, f.v.ChargeSubscriptionWithKey(ctx, subID, "k1"), subvault.ErrReplay)
	expectBalance(t, f.get(t, subID).PrepaidBalance, 2_000_000)

	if err := f.v.ChargeSubscriptionWithKey(ctx, subID, "k2"); err != nil {
		t.Fatal(err)
	}
	if got := f.get(t, subID).LastChargeKey; got != "k2" {
		t.Errorf("last charge key = %q, want k2", got)
	}
}

func TestChargeExpiredSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	past := uint64(1000)
	_, err := f.v.CreateSubscription(ctx, subvault.CreateParams{
		Subscriber: "alice", Merchant: "acme",
		Amount: types.NewAmount(1_000_000), IntervalSeconds: 60,
		Expiration: &past,
	})
	expectErr(t, err, subvault.ErrInvalidInput)

	exp := uint64(1120)
	subID, err := f.v.CreateSubscription(ctx, subvault.CreateParams{
		Subscriber: "alice", Merchant: "acme",
		Amount: types.NewAmount(1_000_000), IntervalSeconds: 60,
		Expiration: &exp,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.deposit(t, subID, "alice", 5_000_000)

	f.clock.Set(1060)
	if err := f.v.ChargeSubscription(ctx, subID); err != nil {
		t.Fatal(err)
	}
	f.clock.Set(1120)
	expectErr(t, f.v.ChargeSubscription(ctx, subID), subvault.ErrSubscriptionExpired)
	sub := f.get(t, subID)
	if sub.Status != subscription.StatusActive || sub.LastPaymentTimestamp != 1060 {
		t.Fatalf("expired charge changed state: %+v", sub)
	}
}

func TestGracePeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.v.SetGracePeriod(ctx, "admin", 100); err != nil {
		t.Fatal(err)
	}
	subID := f.create(t, "alice", "acme", 1_000_000, 60)

	// Due at 1060, grace window until 1160.
	f.clock.Set(1060)
	expectErr(t, f.v.ChargeSubscription(ctx, subID), subvault.ErrInsufficientBalance)
	if got := f.get(t, subID).Status; got != subscription.StatusGracePeriod {
		t.Fatalf("status = %s, want grace_period", got)
	}

	// Still chargeable while in grace.
	f.clock.Set(1070)
	expectErr(t, f.v.ChargeSubscription(ctx, subID), subvault.ErrInsufficientBalance)
	f.deposit(t, subID, "alice", 1_000_000)
	if err := f.v.ChargeSubscription(ctx, subID); err != nil {
		t.Fatal(err)
	}
	sub := f.get(t, subID)
	if sub.Status != subscription.StatusActive || sub.LastPaymentTimestamp != 1070 {
		t.Fatalf("charge in grace: %+v", sub)
	}

	// Due at 1130; at 1230 the window has closed.
	f.clock.Set(1230)
	expectErr(t, f.v.ChargeSubscription(ctx, subID), subvault.ErrInsufficientBalance)
	if got := f.get(t, subID).Status; got != subscription.StatusInsufficientBalance {
		t.Fatalf("status = %s, want insufficient_balance", got)
	}
}

func TestImmediateSettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, subvault.WithSettlement(subvault.SettleImmediate))
	subID := f.create(t, "alice", "acme", 1_000_000, 60)
	f.deposit(t, subID, "alice", 1_000_000)

	f.clock.Advance(60)
	if err := f.v.ChargeSubscription(ctx, subID); err != nil {
		t.Fatal(err)
	}

	transfers := f.token.Transfers()
	last := transfers[len(transfers)-1]
	if last.From != subvault.DefaultAddress || last.To != "acme" || !last.Amount.Equal(types.NewAmount(1_000_000)) {
		t.Errorf("unexpected payout: %+v", last)
	}
	accrued, _ := f.v.GetMerchantBalance(ctx, "acme")
	expectBalance(t, accrued, 0)
}

func TestImmediateSettlementFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, subvault.WithSettlement(subvault.SettleImmediate))
	subID := f.create(t, "alice", "acme", 1_000_000, 60)
	f.deposit(t, subID, "alice", 1_000_000)

	f.clock.Advance(60)
	f.token.SetFailing(true)
	err := f.v.ChargeSubscription(ctx, subID)
	expectErr(t, err, host.ErrTransferFailed)
	if subvault.Code(err) != subvault.CodeInternal {
		t.Errorf("code = %d, want %d", subvault.Code(err), subvault.CodeInternal)
	}

	sub := f.get(t, subID)
	expectBalance(t, sub.PrepaidBalance, 1_000_000)
	if sub.LastPaymentTimestamp != 1000 {
		t.Errorf("watermark moved on failed payout: %d", sub.LastPaymentTimestamp)
	}
}

// ──────────────────────────────────────────────────
// Usage charges
// ──────────────────────────────────────────────────

func TestChargeUsage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	plain := f.create(t, "alice", "acme", 1_000_000, 60)
	f.deposit(t, plain, "alice", 1_000_000)
	expectErr(t, f.v.ChargeUsage(ctx, plain, types.NewAmount(1)), subvault.ErrUsageNotEnabled)

	metered, err := f.v.CreateSubscription(ctx, subvault.CreateParams{
		Subscriber: "alice", Merchant: "acme",
		Amount: types.NewAmount(1_000_000), IntervalSeconds: 60,
		UsageEnabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.deposit(t, metered, "alice", 1_000_000)

	if err := f.v.ChargeUsage(ctx, metered, types.NewAmount(400_000)); err != nil {
		t.Fatal(err)
	}
	expectErr(t, f.v.ChargeUsage(ctx, metered, types.NewAmount(700_000)), subvault.ErrInsufficientPrepaidBalance)
	expectErr(t, f.v.ChargeUsage(ctx, metered, types.Zero()), subvault.ErrInvalidAmount)
	expectErr(t, f.v.ChargeUsage(ctx, metered, types.NewAmount(-5)), subvault.ErrInvalidAmount)

	if err := f.v.ChargeUsage(ctx, metered, types.NewAmount(600_000)); err != nil {
		t.Fatal(err)
	}
	sub := f.get(t, metered)
	expectBalance(t, sub.PrepaidBalance, 0)
	if sub.Status != subscription.StatusInsufficientBalance {
		t.Fatalf("status = %s, want insufficient_balance", sub.Status)
	}
	expectErr(t, f.v.ChargeUsage(ctx, metered, types.NewAmount(1)), subvault.ErrNotActive)

	accrued, _ := f.v.GetMerchantBalance(ctx, "acme")
	expectBalance(t, accrued, 1_000_000)
}

// ──────────────────────────────────────────────────
// Batch charges
// ──────────────────────────────────────────────────

func TestBatchChargeEmpty(t *testing.T) {
	f := newFixture(t)
	results, err := f.v.BatchCharge(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestBatchChargeIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	funded := f.create(t, "alice", "acme", 1_000_000, 60)
	f.deposit(t, funded, "alice", 1_000_000)
	empty := f.create(t, "bob", "acme", 1_000_000, 60)
	paused := f.create(t, "bob", "globex", 1_000_000, 60)
	f.deposit(t, paused, "bob", 1_000_000)
	if err := f.v.PauseSubscription(ctx, paused, "bob"); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(60)

	ids := []subscription.ID{funded, 999, empty, paused, funded}
	results, err := f.v.BatchCharge(ctx, ids)
	if err != nil {
		t.Fatal(err)
	}

	want := []subvault.BatchChargeResult{
		{Success: true},
		{ErrorCode: 404},
		{ErrorCode: 1003},
		{ErrorCode: 1002},
		{ErrorCode: 1001},
	}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("results[%d] = %+v, want %+v", i, results[i], want[i])
		}
	}

	expectBalance(t, f.get(t, funded).PrepaidBalance, 0)
	if got := f.get(t, empty).Status; got != subscription.StatusInsufficientBalance {
		t.Errorf("underfunded item status = %s, want insufficient_balance", got)
	}

	berr := subvault.BatchErrors(ids, results)
	var merr subvault.MultiError
	if !errors.As(berr, &merr) || len(merr.Errors) != 4 {
		t.Fatalf("expected 4 batch errors, got %v", berr)
	}
	var item *subvault.BatchItemError
	if !errors.As(merr.First(), &item) || item.SubscriptionID != 999 || item.Code != 404 {
		t.Errorf("unexpected first batch error: %v", merr.First())
	}
}

func TestBatchChargeValidAndMissing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subID := f.create(t, "alice", "acme", 1_000_000, 60)
	f.deposit(t, subID, "alice", 1_000_000)
	f.clock.Advance(60)

	results, err := f.v.BatchCharge(ctx, []subscription.ID{subID, subID + 1})
	if err != nil {
		t.Fatal(err)
	}
	if results[0] != (subvault.BatchChargeResult{Success: true}) {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1] != (subvault.BatchChargeResult{Success: false, ErrorCode: 404}) {
		t.Errorf("results[1] = %+v", results[1])
	}
	expectBalance(t, f.get(t, subID).PrepaidBalance, 0)
}

func TestBatchChargeRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	f.signers.Revoke("admin")
	_, err := f.v.BatchCharge(context.Background(), []subscription.ID{0})
	expectErr(t, err, subvault.ErrUnauthorized)
}

// ──────────────────────────────────────────────────
// Plugin events
// ──────────────────────────────────────────────────

type recorder struct {
	mu      sync.Mutex
	events  []string
	batches []plugin.BatchSummary
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) OnFundsDeposited(context.Context, *subscription.Subscription, types.Amount) error {
	r.add("deposited")
	return nil
}

func (r *recorder) OnSubscriptionCharged(context.Context, *subscription.Subscription, types.Amount) error {
	r.add("charged")
	return nil
}

func (r *recorder) OnChargeFailed(context.Context, subscription.ID, error) error {
	r.add("charge_failed")
	return nil
}

func (r *recorder) OnStatusChanged(_ context.Context, sub *subscription.Subscription, from subscription.Status, _ types.Address) error {
	r.add(string(from) + "->" + string(sub.Status))
	return nil
}

func (r *recorder) OnBatchCharged(_ context.Context, summary plugin.BatchSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, summary)
	return nil
}

func TestEventsFollowCommits(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	f := newFixture(t, subvault.WithPlugin(rec))
	subID := f.create(t, "alice", "acme", 1_000_000, 60)

	f.token.SetFailing(true)
	if err := f.v.DepositFunds(ctx, subID, "alice", types.NewAmount(1_000_000)); err == nil {
		t.Fatal("expected deposit to fail")
	}
	expectBalance(t, f.get(t, subID).PrepaidBalance, 0)
	if got := rec.list(); len(got) != 0 {
		t.Fatalf("events emitted for a rolled back deposit: %v", got)
	}
	f.token.SetFailing(false)

	f.clock.Advance(60)
	_ = f.v.ChargeSubscription(ctx, subID)
	f.deposit(t, subID, "alice", 1_000_000)
	if err := f.v.ResumeSubscription(ctx, subID, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := f.v.ChargeSubscription(ctx, subID); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"active->insufficient_balance",
		"charge_failed",
		"deposited",
		"insufficient_balance->active",
		"charged",
	}
	got := rec.list()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if _, err := f.v.BatchCharge(ctx, []subscription.ID{subID, 77}); err != nil {
		t.Fatal(err)
	}
	if len(rec.batches) != 1 {
		t.Fatalf("expected one batch summary, got %d", len(rec.batches))
	}
	if s := rec.batches[0]; s.Total != 2 || s.Succeeded != 0 || s.Failed != 2 || s.ID.IsNil() {
		t.Errorf("unexpected batch summary: %+v", s)
	}
}
