package subvault

import (
	"errors"
	"testing"

	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

func activeSub(amount, balance int64) *subscription.Subscription {
	return &subscription.Subscription{
		Amount:               types.NewAmount(amount),
		IntervalSeconds:      100,
		LastPaymentTimestamp: 1000,
		Status:               subscription.StatusActive,
		PrepaidBalance:       types.NewAmount(balance),
	}
}

func TestChargeIntervalBoundary(t *testing.T) {
	sub := activeSub(10, 10)
	if err := chargeInterval(sub, 1099, 0); !errors.Is(err, ErrIntervalNotElapsed) {
		t.Fatalf("one second early: expected ErrIntervalNotElapsed, got %v", err)
	}
	if sub.LastPaymentTimestamp != 1000 || !sub.PrepaidBalance.Equal(types.NewAmount(10)) {
		t.Fatalf("early charge mutated the subscription: %+v", sub)
	}

	if err := chargeInterval(sub, 1100, 0); err != nil {
		t.Fatalf("exact boundary: %v", err)
	}
	if sub.LastPaymentTimestamp != 1100 || !sub.PrepaidBalance.IsZero() {
		t.Fatalf("unexpected state after charge: %+v", sub)
	}
}

func TestChargeIntervalTimestampOverflow(t *testing.T) {
	sub := activeSub(10, 10)
	sub.LastPaymentTimestamp = ^uint64(0) - 5
	if err := chargeInterval(sub, ^uint64(0), 0); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestChargeIntervalStatusGate(t *testing.T) {
	for _, st := range []subscription.Status{
		subscription.StatusPaused,
		subscription.StatusCancelled,
		subscription.StatusInsufficientBalance,
	} {
		sub := activeSub(10, 10)
		sub.Status = st
		if err := chargeInterval(sub, 5000, 0); !errors.Is(err, ErrNotActive) {
			t.Errorf("%s: expected ErrNotActive, got %v", st, err)
		}
	}
}

func TestChargeIntervalInsufficient(t *testing.T) {
	sub := activeSub(10, 9)
	if err := chargeInterval(sub, 1100, 0); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if sub.Status != subscription.StatusInsufficientBalance {
		t.Errorf("status = %s", sub.Status)
	}
	if !sub.PrepaidBalance.Equal(types.NewAmount(9)) || sub.LastPaymentTimestamp != 1000 {
		t.Errorf("balance or watermark changed: %+v", sub)
	}

	// Inside a grace window the subscription moves to GracePeriod instead.
	sub = activeSub(10, 9)
	if err := chargeInterval(sub, 1149, 50); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if sub.Status != subscription.StatusGracePeriod {
		t.Errorf("status = %s, want grace_period", sub.Status)
	}
	if err := chargeInterval(sub, 1150, 50); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if sub.Status != subscription.StatusInsufficientBalance {
		t.Errorf("status = %s, want insufficient_balance", sub.Status)
	}
}

func TestChargeIntervalExpiration(t *testing.T) {
	exp := uint64(1100)
	sub := activeSub(10, 10)
	sub.Expiration = &exp
	if err := chargeInterval(sub, 1100, 0); !errors.Is(err, ErrSubscriptionExpired) {
		t.Fatalf("expected ErrSubscriptionExpired, got %v", err)
	}
	if sub.Status != subscription.StatusActive {
		t.Errorf("expiration changed status to %s", sub.Status)
	}
}

func TestChargeUsageOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*subscription.Subscription)
		amount int64
		want   error
	}{
		{"not active", func(s *subscription.Subscription) { s.Status = subscription.StatusPaused }, 1, ErrNotActive},
		{"usage disabled", func(s *subscription.Subscription) { s.UsageEnabled = false }, 1, ErrUsageNotEnabled},
		{"zero amount", func(*subscription.Subscription) {}, 0, ErrInvalidAmount},
		{"over balance", func(*subscription.Subscription) {}, 11, ErrInsufficientPrepaidBalance},
		{"disabled beats invalid amount", func(s *subscription.Subscription) { s.UsageEnabled = false }, 0, ErrUsageNotEnabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := activeSub(5, 10)
			sub.UsageEnabled = true
			tt.mutate(sub)
			if err := chargeUsage(sub, types.NewAmount(tt.amount), 1000); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !sub.PrepaidBalance.Equal(types.NewAmount(10)) {
				t.Errorf("failed usage charge changed the balance: %s", sub.PrepaidBalance)
			}
		})
	}
}

func TestCommittedErrorUnwraps(t *testing.T) {
	err := commit(ErrInsufficientBalance)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatal("committed error should unwrap to its cause")
	}
	if Code(err) != 1003 {
		t.Errorf("code = %d, want 1003", Code(err))
	}
}
