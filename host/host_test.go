package host

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/subvault/types"
)

func TestSignerSet(t *testing.T) {
	ctx := context.Background()
	s := NewSignerSet("alice")

	if err := s.RequireAuth(ctx, "alice"); err != nil {
		t.Fatalf("alice: %v", err)
	}
	if err := s.RequireAuth(ctx, "bob"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bob: got %v, want ErrUnauthorized", err)
	}

	s.Allow("bob")
	s.Revoke("alice")
	if err := s.RequireAuth(ctx, "bob"); err != nil {
		t.Errorf("bob after Allow: %v", err)
	}
	if err := s.RequireAuth(ctx, "alice"); err == nil {
		t.Error("alice after Revoke should fail")
	}
	if types.CodeOf(ErrUnauthorized) != 401 {
		t.Errorf("code: got %d", types.CodeOf(ErrUnauthorized))
	}
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(1000)
	c.Advance(2_592_000)
	if c.Now() != 2_593_000 {
		t.Errorf("Now: got %d", c.Now())
	}
	c.Set(5)
	if c.Now() != 5 {
		t.Errorf("Set: got %d", c.Now())
	}

	var fn Clock = ClockFunc(func() uint64 { return 42 })
	if fn.Now() != 42 {
		t.Error("ClockFunc should return 42")
	}
}

func TestTransferLog(t *testing.T) {
	ctx := context.Background()
	l := NewTransferLog()

	if err := l.Transfer(ctx, "a", "b", types.NewAmount(10)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	l.SetFailing(true)
	if err := l.Transfer(ctx, "a", "b", types.NewAmount(5)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	l.SetFailing(false)

	got := l.Transfers()
	if len(got) != 1 || got[0].Amount != types.NewAmount(10) {
		t.Errorf("Transfers: got %+v", got)
	}
}
