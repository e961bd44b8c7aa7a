package subvault_test

import (
	"context"
	"testing"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

func TestCreateSubscriptionValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name string
		p    subvault.CreateParams
		want error
	}{
		{"zero amount", subvault.CreateParams{Subscriber: "alice", Merchant: "acme", IntervalSeconds: 60}, subvault.ErrInvalidAmount},
		{"negative amount", subvault.CreateParams{Subscriber: "alice", Merchant: "acme", Amount: types.NewAmount(-1), IntervalSeconds: 60}, subvault.ErrInvalidAmount},
		{"zero interval", subvault.CreateParams{Subscriber: "alice", Merchant: "acme", Amount: types.NewAmount(1)}, subvault.ErrInvalidInput},
		{"missing merchant", subvault.CreateParams{Subscriber: "alice", Amount: types.NewAmount(1), IntervalSeconds: 60}, subvault.ErrInvalidInput},
		{"deposit below minimum", subvault.CreateParams{Subscriber: "alice", Merchant: "acme", Amount: types.NewAmount(1), IntervalSeconds: 60, InitialDeposit: types.NewAmount(minimum - 1)}, subvault.ErrBelowMinimumTopup},
		{"unsigned subscriber", subvault.CreateParams{Subscriber: "eve", Merchant: "acme", Amount: types.NewAmount(1), IntervalSeconds: 60}, subvault.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.v.CreateSubscription(ctx, tt.p)
			expectErr(t, err, tt.want)
		})
	}

	// Failed creations do not consume IDs.
	if got := f.create(t, "alice", "acme", 1, 60); got != 0 {
		t.Errorf("first ID = %d, want 0", got)
	}
	if got := f.create(t, "alice", "acme", 1, 60); got != 1 {
		t.Errorf("second ID = %d, want 1", got)
	}
}

func TestCreateSubscriptionDefaults(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(5000)
	sub := f.get(t, f.create(t, "alice", "acme", 10, 60))

	if sub.Status != subscription.StatusActive {
		t.Errorf("status = %s, want active", sub.Status)
	}
	if sub.LastPaymentTimestamp != 5000 {
		t.Errorf("last payment = %d, want 5000", sub.LastPaymentTimestamp)
	}
	expectBalance(t, sub.PrepaidBalance, 0)
}

func TestCreateSubscriptionWithInitialDeposit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := subvault.CreateParams{
		Subscriber: "alice", Merchant: "acme",
		Amount: types.NewAmount(1_000_000), IntervalSeconds: 60,
		InitialDeposit: types.NewAmount(2_000_000),
	}

	f.token.SetFailing(true)
	if _, err := f.v.CreateSubscription(ctx, p); err == nil {
		t.Fatal("expected failed transfer to fail creation")
	}
	f.token.SetFailing(false)

	subID, err := f.v.CreateSubscription(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if subID != 0 {
		t.Errorf("ID = %d, want 0 after rolled back creation", subID)
	}
	expectBalance(t, f.get(t, subID).PrepaidBalance, 2_000_000)

	transfers := f.token.Transfers()
	if len(transfers) != 1 || transfers[0].From != "alice" || transfers[0].To != subvault.DefaultAddress {
		t.Errorf("unexpected transfers: %+v", transfers)
	}
}

func TestDepositFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subID := f.create(t, "alice", "acme", 1_000_000, 60)

	f.deposit(t, subID, "alice", minimum)
	expectErr(t, f.v.DepositFunds(ctx, subID, "alice", types.NewAmount(minimum-1)), subvault.ErrBelowMinimumTopup)
	expectErr(t, f.v.DepositFunds(ctx, subID, "alice", types.Zero()), subvault.ErrInvalidAmount)
	expectErr(t, f.v.DepositFunds(ctx, subID, "bob", types.NewAmount(minimum)), subvault.ErrForbidden)
	expectErr(t, f.v.DepositFunds(ctx, 99, "alice", types.NewAmount(minimum)), subvault.ErrNotFound)

	expectBalance(t, f.get(t, subID).PrepaidBalance, minimum)
}

func TestDepositOverflow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subID := f.create(t, "alice", "acme", 1, 60)

	if err := f.v.DepositFunds(ctx, subID, "alice", types.MaxAmount); err != nil {
		t.Fatal(err)
	}
	expectErr(t, f.v.DepositFunds(ctx, subID, "alice", types.NewAmount(minimum)), subvault.ErrOverflow)
	if !f.get(t, subID).PrepaidBalance.Equal(types.MaxAmount) {
		t.Error("overflowing deposit changed the balance")
	}
}

func TestStatusChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subID := f.create(t, "alice", "acme", 1_000_000, 60)
	f.deposit(t, subID, "alice", 2_000_000)

	if err := f.v.PauseSubscription(ctx, subID, "alice"); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(60)
	expectErr(t, f.v.ChargeSubscription(ctx, subID), subvault.ErrNotActive)

	// The merchant may resume too.
	if err := f.v.ResumeSubscription(ctx, subID, "acme"); err != nil {
		t.Fatal(err)
	}
	if err := f.v.ChargeSubscription(ctx, subID); err != nil {
		t.Fatal(err)
	}

	expectErr(t, f.v.PauseSubscription(ctx, subID, "globex"), subvault.ErrForbidden)
	expectErr(t, f.v.PauseSubscription(ctx, subID, "eve"), subvault.ErrUnauthorized)
	expectErr(t, f.v.PauseSubscription(ctx, 99, "alice"), subvault.ErrNotFound)
}

func TestCancelledIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subID := f.create(t, "alice", "acme", 1_000_000, 60)
	f.deposit(t, subID, "alice", 1_000_000)

	if err := f.v.CancelSubscription(ctx, subID, "acme"); err != nil {
		t.Fatal(err)
	}
	// Cancelling again is an idempotent same-state transition.
	if err := f.v.CancelSubscription(ctx, subID, "alice"); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(60)
	expectErr(t, f.v.ResumeSubscription(ctx, subID, "alice"), subvault.ErrInvalidStatusTransition)
	expectErr(t, f.v.PauseSubscription(ctx, subID, "alice"), subvault.ErrInvalidStatusTransition)
	expectErr(t, f.v.ChargeSubscription(ctx, subID), subvault.ErrNotActive)
	expectErr(t, f.v.DepositFunds(ctx, subID, "alice", types.NewAmount(minimum)), subvault.ErrNotActive)
	expectErr(t, f.v.ChargeOneOff(ctx, subID, "acme", types.NewAmount(1)), subvault.ErrNotActive)

	if got := f.get(t, subID).Status; got != subscription.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got)
	}
}

func TestWithdrawSubscriberFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subID := f.create(t, "alice", "acme", 1_000_000, 60)
	f.deposit(t, subID, "alice", 3_000_000)

	_, err := f.v.WithdrawSubscriberFunds(ctx, subID, "alice")
	expectErr(t, err, subvault.ErrForbidden)

	if err := f.v.CancelSubscription(ctx, subID, "alice"); err != nil {
		t.Fatal(err)
	}
	_, err = f.v.WithdrawSubscriberFunds(ctx, subID, "bob")
	expectErr(t, err, subvault.ErrForbidden)

	paid, err := f.v.WithdrawSubscriberFunds(ctx, subID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	expectBalance(t, paid, 3_000_000)
	expectBalance(t, f.get(t, subID).PrepaidBalance, 0)

	transfers := f.token.Transfers()
	last := transfers[len(transfers)-1]
	if last.From != subvault.DefaultAddress || last.To != "alice" {
		t.Errorf("unexpected refund transfer: %+v", last)
	}

	_, err = f.v.WithdrawSubscriberFunds(ctx, subID, "alice")
	expectErr(t, err, subvault.ErrInsufficientBalance)
}

func TestChargeOneOff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subID := f.create(t, "alice", "acme", 1_000_000, 60)
	f.deposit(t, subID, "alice", 1_000_000)

	if err := f.v.PauseSubscription(ctx, subID, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := f.v.ChargeOneOff(ctx, subID, "acme", types.NewAmount(200_000)); err != nil {
		t.Fatalf("one-off on paused subscription: %v", err)
	}
	expectErr(t, f.v.ChargeOneOff(ctx, subID, "globex", types.NewAmount(1)), subvault.ErrForbidden)
	expectErr(t, f.v.ChargeOneOff(ctx, subID, "acme", types.NewAmount(800_001)), subvault.ErrInsufficientPrepaidBalance)
	expectErr(t, f.v.ChargeOneOff(ctx, subID, "acme", types.Zero()), subvault.ErrInvalidAmount)

	if err := f.v.ChargeOneOff(ctx, subID, "acme", types.NewAmount(800_000)); err != nil {
		t.Fatalf("one-off of the whole balance: %v", err)
	}
	expectBalance(t, f.get(t, subID).PrepaidBalance, 0)

	accrued, _ := f.v.GetMerchantBalance(ctx, "acme")
	expectBalance(t, accrued, 1_000_000)
}

func TestWithdrawMerchantFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subID := f.create(t, "alice", "acme", 10_000_000, 60)
	f.deposit(t, subID, "alice", 10_000_000)
	f.clock.Advance(60)
	if err := f.v.ChargeSubscription(ctx, subID); err != nil {
		t.Fatal(err)
	}

	expectErr(t, f.v.WithdrawMerchantFunds(ctx, "acme", types.NewAmount(20_000_000)), subvault.ErrInsufficientBalance)
	expectErr(t, f.v.WithdrawMerchantFunds(ctx, "acme", types.Zero()), subvault.ErrInvalidAmount)

	f.token.SetFailing(true)
	if err := f.v.WithdrawMerchantFunds(ctx, "acme", types.NewAmount(5_000_000)); err == nil {
		t.Fatal("expected failed payout")
	}
	f.token.SetFailing(false)
	accrued, _ := f.v.GetMerchantBalance(ctx, "acme")
	expectBalance(t, accrued, 10_000_000)

	if err := f.v.WithdrawMerchantFunds(ctx, "acme", types.NewAmount(4_000_000)); err != nil {
		t.Fatal(err)
	}
	accrued, _ = f.v.GetMerchantBalance(ctx, "acme")
	expectBalance(t, accrued, 6_000_000)
}

func TestPlanTemplates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.v.CreatePlanTemplate(ctx, subvault.PlanParams{Merchant: "acme", IntervalSeconds: 60})
	expectErr(t, err, subvault.ErrInvalidAmount)

	tid, err := f.v.CreatePlanTemplate(ctx, subvault.PlanParams{
		Merchant:        "acme",
		Amount:          types.NewAmount(5_000_000),
		IntervalSeconds: month,
		UsageEnabled:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if tid != 0 {
		t.Errorf("template ID = %d, want 0", tid)
	}

	subID, err := f.v.CreateSubscriptionFromPlan(ctx, "alice", tid)
	if err != nil {
		t.Fatal(err)
	}
	sub := f.get(t, subID)
	if sub.Merchant != "acme" || sub.IntervalSeconds != month || !sub.UsageEnabled {
		t.Errorf("subscription does not carry template terms: %+v", sub)
	}
	if sub.PlanTemplateID == nil || *sub.PlanTemplateID != uint64(tid) {
		t.Errorf("plan template ID not recorded: %v", sub.PlanTemplateID)
	}

	_, err = f.v.CreateSubscriptionFromPlan(ctx, "alice", 42)
	expectErr(t, err, subvault.ErrNotFound)

	templates, err := f.v.ListPlanTemplates(ctx, plan.ListOpts{Merchant: "acme"})
	if err != nil {
		t.Fatal(err)
	}
	if len(templates) != 1 {
		t.Errorf("got %d templates, want 1", len(templates))
	}
}
