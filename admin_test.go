package subvault_test

import (
	"context"
	"testing"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/host"
	"github.com/xraph/subvault/recovery"
	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/store/memory"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

func TestOperationsBeforeInit(t *testing.T) {
	ctx := context.Background()
	v := subvault.New(memory.New(), subvault.WithClock(host.NewManualClock(1000)))

	_, err := v.CreateSubscription(ctx, subvault.CreateParams{
		Subscriber: "alice", Merchant: "acme",
		Amount: types.NewAmount(1), IntervalSeconds: 60,
	})
	expectErr(t, err, subvault.ErrNotInitialized)
	expectErr(t, v.ChargeSubscription(ctx, 0), subvault.ErrNotInitialized)
	_, err = v.BatchCharge(ctx, nil)
	expectErr(t, err, subvault.ErrNotInitialized)
	_, err = v.GetAdmin(ctx)
	expectErr(t, err, subvault.ErrNotInitialized)
}

func TestInit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.v.Init(ctx, subvault.InitParams{Token: "usdc", Admin: "mallory"})
	expectErr(t, err, subvault.ErrAlreadyInitialized)

	s, err := f.v.Settings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Admin != "admin" || s.Token != "usdc" || s.TokenDecimals != 7 {
		t.Errorf("unexpected settings: %+v", s)
	}
	if s.SchemaVersion != settings.SchemaVersion {
		t.Errorf("schema version = %d, want %d", s.SchemaVersion, settings.SchemaVersion)
	}

	v := subvault.New(memory.New())
	expectErr(t, v.Init(ctx, subvault.InitParams{Token: "usdc"}), subvault.ErrInvalidInput)
	expectErr(t, v.Init(ctx, subvault.InitParams{Token: "usdc", Admin: "admin", MinTopup: types.NewAmount(-1)}), subvault.ErrUnderflow)
}

func TestSetMinTopup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	expectErr(t, f.v.SetMinTopup(ctx, "alice", types.NewAmount(5)), subvault.ErrForbidden)
	expectErr(t, f.v.SetMinTopup(ctx, "admin", types.NewAmount(-5)), subvault.ErrInvalidAmount)

	if err := f.v.SetMinTopup(ctx, "admin", types.NewAmount(5_000_000)); err != nil {
		t.Fatal(err)
	}
	got, err := f.v.GetMinTopup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	expectBalance(t, got, 5_000_000)

	subID := f.create(t, "alice", "acme", 1, 60)
	expectErr(t, f.v.DepositFunds(ctx, subID, "alice", types.NewAmount(4_999_999)), subvault.ErrBelowMinimumTopup)
	f.deposit(t, subID, "alice", 5_000_000)
}

func TestRotateAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signers.Allow("admin2")

	expectErr(t, f.v.RotateAdmin(ctx, "alice", "alice"), subvault.ErrForbidden)
	if err := f.v.RotateAdmin(ctx, "admin", "admin2"); err != nil {
		t.Fatal(err)
	}
	admin, _ := f.v.GetAdmin(ctx)
	if admin != "admin2" {
		t.Fatalf("admin = %s, want admin2", admin)
	}

	// The old admin loses access immediately.
	expectErr(t, f.v.SetGracePeriod(ctx, "admin", 10), subvault.ErrForbidden)
	if err := f.v.SetGracePeriod(ctx, "admin2", 10); err != nil {
		t.Fatal(err)
	}
	grace, _ := f.v.GetGracePeriod(ctx)
	if grace != 10 {
		t.Errorf("grace period = %d, want 10", grace)
	}

	// Charges now need the new admin's approval.
	f.signers.Revoke("admin2")
	expectErr(t, f.v.ChargeSubscription(ctx, 0), subvault.ErrUnauthorized)
}

func TestRecoverStrandedFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.v.RecoverStrandedFunds(ctx, "admin", "alice", types.Zero(), recovery.ReasonAccidentalTransfer)
	expectErr(t, err, subvault.ErrInvalidRecoveryAmount)
	_, err = f.v.RecoverStrandedFunds(ctx, "admin", "alice", types.NewAmount(-1), recovery.ReasonAccidentalTransfer)
	expectErr(t, err, subvault.ErrInvalidRecoveryAmount)
	_, err = f.v.RecoverStrandedFunds(ctx, "admin", "alice", types.NewAmount(5), recovery.Reason("because"))
	expectErr(t, err, subvault.ErrInvalidInput)
	_, err = f.v.RecoverStrandedFunds(ctx, "alice", "alice", types.NewAmount(5), recovery.ReasonAccidentalTransfer)
	expectErr(t, err, subvault.ErrForbidden)

	rec, err := f.v.RecoverStrandedFunds(ctx, "admin", "bob", types.NewAmount(500), recovery.ReasonUnreachableSubscriber)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID.IsNil() || rec.Recipient != "bob" || rec.Timestamp != 1000 {
		t.Errorf("unexpected record: %+v", rec)
	}

	recs, err := f.v.ListRecoveries(ctx, recovery.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID.String() != rec.ID.String() {
		t.Fatalf("recoveries = %+v", recs)
	}

	transfers := f.token.Transfers()
	last := transfers[len(transfers)-1]
	if last.From != subvault.DefaultAddress || last.To != "bob" || !last.Amount.Equal(types.NewAmount(500)) {
		t.Errorf("unexpected recovery transfer: %+v", last)
	}
}

func TestExports(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.create(t, "alice", "acme", int64(i+1), 60)
	}

	snap, err := f.v.ExportContractSnapshot(ctx, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if snap.NextID != 3 || snap.Token != "usdc" || snap.SchemaVersion != settings.SchemaVersion || snap.Timestamp != 1000 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	_, err = f.v.ExportContractSnapshot(ctx, "alice")
	expectErr(t, err, subvault.ErrForbidden)

	summary, err := f.v.ExportSubscriptionSummary(ctx, "admin", 2)
	if err != nil {
		t.Fatal(err)
	}
	expectBalance(t, summary.Amount, 3)

	_, err = f.v.ExportSubscriptionSummaries(ctx, "admin", 0, subvault.DefaultExportLimit+1)
	expectErr(t, err, subvault.ErrInvalidExportLimit)

	tests := []struct {
		name  string
		start uint64
		limit int
		want  []uint64
	}{
		{"zero limit", 0, 0, nil},
		{"start past next id", 3, 10, nil},
		{"clipped to next id", 1, 100, []uint64{1, 2}},
		{"window", 0, 2, []uint64{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.v.ExportSubscriptionSummaries(ctx, "admin", subscription.ID(tt.start), tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			if len(out) != len(tt.want) {
				t.Fatalf("got %d summaries, want %d", len(out), len(tt.want))
			}
			for i, s := range out {
				if uint64(s.SubscriptionID) != tt.want[i] {
					t.Errorf("out[%d] = %d, want %d", i, s.SubscriptionID, tt.want[i])
				}
			}
		})
	}
}

func TestExportLimitOption(t *testing.T) {
	f := newFixture(t, subvault.WithExportLimit(2))
	_, err := f.v.ExportSubscriptionSummaries(context.Background(), "admin", 0, 3)
	expectErr(t, err, subvault.ErrInvalidExportLimit)
}
