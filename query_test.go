package subvault_test

import (
	"context"
	"math"
	"testing"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

func TestComputeNextChargeInfo(t *testing.T) {
	tests := []struct {
		status   subscription.Status
		last     uint64
		interval uint64
		wantTS   uint64
		expected bool
	}{
		{subscription.StatusActive, 1000, 60, 1060, true},
		{subscription.StatusInsufficientBalance, 1000, 60, 1060, true},
		{subscription.StatusGracePeriod, 1000, 60, 1060, true},
		{subscription.StatusPaused, 1000, 60, 1060, false},
		{subscription.StatusCancelled, 1000, 60, 1060, false},
		{subscription.StatusActive, math.MaxUint64 - 10, 60, math.MaxUint64, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			info := subvault.ComputeNextChargeInfo(&subscription.Subscription{
				Status:               tt.status,
				LastPaymentTimestamp: tt.last,
				IntervalSeconds:      tt.interval,
			})
			if info.NextChargeTimestamp != tt.wantTS {
				t.Errorf("next charge = %d, want %d", info.NextChargeTimestamp, tt.wantTS)
			}
			if info.IsChargeExpected != tt.expected {
				t.Errorf("expected = %v, want %v", info.IsChargeExpected, tt.expected)
			}
		})
	}
}

func TestComputeTopupForIntervals(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		balance int64
		n       uint32
		want    int64
	}{
		{"empty balance", 10_000_000, 0, 5, 50_000_000},
		{"already covered", 10_000_000, 30_000_000, 3, 0},
		{"partly covered", 10_000_000, 25_000_000, 3, 5_000_000},
		{"zero intervals", 10_000_000, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := subvault.ComputeTopupForIntervals(&subscription.Subscription{
				Amount:         types.NewAmount(tt.amount),
				PrepaidBalance: types.NewAmount(tt.balance),
			}, tt.n)
			if err != nil {
				t.Fatal(err)
			}
			expectBalance(t, got, tt.want)
		})
	}

	_, err := subvault.ComputeTopupForIntervals(&subscription.Subscription{Amount: types.MaxAmount}, 2)
	expectErr(t, err, subvault.ErrOverflow)
}

func TestEstimateTopupForIntervals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subID := f.create(t, "alice", "acme", 10_000_000, month)

	got, err := f.v.EstimateTopupForIntervals(ctx, subID, 5)
	if err != nil {
		t.Fatal(err)
	}
	expectBalance(t, got, 50_000_000)

	f.deposit(t, subID, "alice", 30_000_000)
	got, err = f.v.EstimateTopupForIntervals(ctx, subID, 3)
	if err != nil {
		t.Fatal(err)
	}
	expectBalance(t, got, 0)

	info, err := f.v.NextChargeInfo(ctx, subID)
	if err != nil {
		t.Fatal(err)
	}
	if info.NextChargeTimestamp != 1000+month || !info.IsChargeExpected {
		t.Errorf("unexpected next charge info: %+v", info)
	}

	_, err = f.v.EstimateTopupForIntervals(ctx, 99, 1)
	expectErr(t, err, subvault.ErrNotFound)
}

func TestListSubscriptionsBySubscriber(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// alice owns 0, 1, 3 and 4; bob owns 2.
	f.create(t, "alice", "acme", 1, 60)
	f.create(t, "alice", "acme", 1, 60)
	f.create(t, "bob", "acme", 1, 60)
	f.create(t, "alice", "globex", 1, 60)
	f.create(t, "alice", "acme", 1, 60)

	page, err := f.v.ListSubscriptionsBySubscriber(ctx, "alice", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.IDs) != 2 || page.IDs[0] != 0 || page.IDs[1] != 1 || !page.HasNext {
		t.Fatalf("first page = %+v", page)
	}

	page, err = f.v.ListSubscriptionsBySubscriber(ctx, "alice", page.IDs[1]+1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.IDs) != 2 || page.IDs[0] != 3 || page.IDs[1] != 4 || page.HasNext {
		t.Fatalf("second page = %+v", page)
	}

	page, err = f.v.ListSubscriptionsBySubscriber(ctx, "alice", 5, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.IDs) != 0 || page.HasNext {
		t.Fatalf("page past end = %+v", page)
	}
}

func TestListSubscriptionsByMerchant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create(t, "alice", "acme", 1, 60)
	f.create(t, "bob", "globex", 1, 60)
	f.create(t, "bob", "acme", 2, 60)

	subs, err := f.v.ListSubscriptionsByMerchant(ctx, "acme", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0].ID != 0 || subs[1].ID != 2 {
		t.Fatalf("unexpected merchant page: %d subscriptions", len(subs))
	}

	subs, err = f.v.ListSubscriptionsByMerchant(ctx, "acme", 5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 0 {
		t.Errorf("offset past end returned %d subscriptions", len(subs))
	}

	n, err := f.v.MerchantSubscriptionCount(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}
