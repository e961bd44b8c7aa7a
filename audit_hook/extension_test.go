package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	audithook "github.com/xraph/subvault/audit_hook"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/plugin"
	"github.com/xraph/subvault/recovery"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

type captured struct {
	events []*audithook.AuditEvent
}

func (c *captured) recorder() audithook.Recorder {
	return audithook.RecorderFunc(func(_ context.Context, e *audithook.AuditEvent) error {
		c.events = append(c.events, e)
		return nil
	})
}

func (c *captured) last(t *testing.T) *audithook.AuditEvent {
	t.Helper()
	if len(c.events) == 0 {
		t.Fatal("no audit events recorded")
	}
	return c.events[len(c.events)-1]
}

func quiet() audithook.Option {
	return audithook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStatusChangeActions(t *testing.T) {
	tests := []struct {
		to       subscription.Status
		action   string
		severity string
	}{
		{subscription.StatusPaused, audithook.ActionSubscriptionPaused, audithook.SeverityInfo},
		{subscription.StatusActive, audithook.ActionSubscriptionResumed, audithook.SeverityInfo},
		{subscription.StatusCancelled, audithook.ActionSubscriptionCanceled, audithook.SeverityInfo},
		{subscription.StatusInsufficientBalance, audithook.ActionSubscriptionLapsed, audithook.SeverityWarning},
		{subscription.StatusGracePeriod, audithook.ActionSubscriptionLapsed, audithook.SeverityWarning},
	}
	for _, tt := range tests {
		t.Run(string(tt.to), func(t *testing.T) {
			c := &captured{}
			ext := audithook.New(c.recorder(), quiet())
			sub := &subscription.Subscription{ID: 12, Status: tt.to}
			if err := ext.OnStatusChanged(context.Background(), sub, subscription.StatusActive, "alice"); err != nil {
				t.Fatal(err)
			}
			evt := c.last(t)
			if evt.Action != tt.action || evt.Severity != tt.severity {
				t.Errorf("got %s/%s, want %s/%s", evt.Action, evt.Severity, tt.action, tt.severity)
			}
			if evt.ResourceID != "12" {
				t.Errorf("resource id = %q", evt.ResourceID)
			}
		})
	}
}

func TestChargeFailedCarriesReason(t *testing.T) {
	c := &captured{}
	ext := audithook.New(c.recorder(), quiet())
	_ = ext.OnChargeFailed(context.Background(), 4, errors.New("insufficient balance"))

	evt := c.last(t)
	if evt.Outcome != audithook.OutcomeFailure || evt.Reason != "insufficient balance" {
		t.Errorf("unexpected event: %+v", evt)
	}
}

func TestBatchOutcome(t *testing.T) {
	tests := []struct {
		succeeded, failed int
		want              string
	}{
		{2, 0, audithook.OutcomeSuccess},
		{1, 1, audithook.OutcomePartial},
		{0, 2, audithook.OutcomeFailure},
	}
	for _, tt := range tests {
		c := &captured{}
		ext := audithook.New(c.recorder(), quiet())
		_ = ext.OnBatchCharged(context.Background(), plugin.BatchSummary{
			ID:        id.NewBatchID(),
			Total:     tt.succeeded + tt.failed,
			Succeeded: tt.succeeded,
			Failed:    tt.failed,
		})
		if got := c.last(t).Outcome; got != tt.want {
			t.Errorf("%d/%d: outcome = %s, want %s", tt.succeeded, tt.failed, got, tt.want)
		}
	}
}

func TestEnabledActionsFilter(t *testing.T) {
	c := &captured{}
	ext := audithook.New(c.recorder(), quiet(), audithook.WithEnabledActions(audithook.ActionUsageCharged))
	ctx := context.Background()
	sub := &subscription.Subscription{ID: 1}

	_ = ext.OnSubscriptionCharged(ctx, sub, types.NewAmount(5))
	_ = ext.OnUsageCharged(ctx, sub, types.NewAmount(5))

	if len(c.events) != 1 || c.events[0].Action != audithook.ActionUsageCharged {
		t.Fatalf("expected only the usage event, got %d events", len(c.events))
	}
}

func TestRecoveryAlwaysRecordedAsCritical(t *testing.T) {
	c := &captured{}
	ext := audithook.New(c.recorder(), quiet(), audithook.WithDisabledActions(audithook.ActionFundsRecovered))

	rec := &recovery.Record{
		ID:        id.NewRecoveryID(),
		Admin:     "admin",
		Recipient: "treasury",
		Amount:    types.NewAmount(100),
		Reason:    recovery.ReasonAccidentalTransfer,
		Timestamp: 1000,
	}
	if err := ext.OnFundsRecovered(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	evt := c.last(t)
	if evt.Action != audithook.ActionFundsRecovered || evt.Severity != audithook.SeverityCritical {
		t.Errorf("unexpected event: %+v", evt)
	}
	if evt.Metadata["reason"] != "accidental_transfer" || evt.Metadata["amount"] != "100" {
		t.Errorf("unexpected metadata: %v", evt.Metadata)
	}
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}), quiet())
	if err := ext.OnMerchantWithdrawal(context.Background(), "acme", types.NewAmount(1)); err != nil {
		t.Fatalf("recorder failure leaked: %v", err)
	}
}
