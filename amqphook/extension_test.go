package amqphook_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/amqphook"
	"github.com/xraph/subvault/store/memory"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

type message struct {
	key  string
	body []byte
}

type fakePublisher struct {
	sent   []message
	err    error
	closed bool
}

func (p *fakePublisher) Publish(_ context.Context, key string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, message{key: key, body: body})
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

func quiet() amqphook.Option {
	return amqphook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newVault(t *testing.T, ext *amqphook.Extension) *subvault.Vault {
	t.Helper()
	ctx := context.Background()
	v := subvault.New(memory.New(),
		subvault.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		subvault.WithPlugin(ext),
	)
	if err := v.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := v.Init(ctx, subvault.InitParams{
		Token:         "usdc",
		TokenDecimals: 7,
		Admin:         "admin",
		MinTopup:      types.NewAmount(1),
	}); err != nil {
		t.Fatal(err)
	}
	return v
}

func decode(t *testing.T, m message) map[string]any {
	t.Helper()
	var env map[string]any
	if err := json.Unmarshal(m.body, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestChargeEventEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	ext := amqphook.New(pub, quiet())

	sub := &subscription.Subscription{
		ID:             9,
		Subscriber:     "alice",
		Merchant:       "acme",
		Status:         subscription.StatusActive,
		PrepaidBalance: types.NewAmount(40),
	}
	if err := ext.OnSubscriptionCharged(context.Background(), sub, types.NewAmount(10)); err != nil {
		t.Fatal(err)
	}

	if len(pub.sent) != 1 {
		t.Fatalf("sent %d messages", len(pub.sent))
	}
	if pub.sent[0].key != "subvault.charge.interval" {
		t.Errorf("routing key = %q", pub.sent[0].key)
	}
	env := decode(t, pub.sent[0])
	if env["type"] != amqphook.EventSubscriptionCharged {
		t.Errorf("type = %v", env["type"])
	}
	if env["subscription_id"] != float64(9) {
		t.Errorf("subscription_id = %v", env["subscription_id"])
	}
	data, ok := env["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %T", env["data"])
	}
	if data["amount"] != "10" || data["prepaid_balance"] != "40" {
		t.Errorf("amounts not encoded as decimal strings: %v", data)
	}
}

func TestChargeFailedCarriesCode(t *testing.T) {
	pub := &fakePublisher{}
	ext := amqphook.New(pub, quiet(), amqphook.WithRoutingPrefix("billing"))

	_ = ext.OnChargeFailed(context.Background(), 3, subvault.ErrInsufficientBalance)

	if pub.sent[0].key != "billing.charge.failed" {
		t.Errorf("routing key = %q", pub.sent[0].key)
	}
	data := decode(t, pub.sent[0])["data"].(map[string]any)
	if data["code"] != float64(1003) {
		t.Errorf("code = %v", data["code"])
	}
}

func TestPublishErrorIsReturned(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	ext := amqphook.New(pub, quiet())
	err := ext.OnMerchantWithdrawal(context.Background(), "acme", types.NewAmount(1))
	if err == nil {
		t.Fatal("expected publish error")
	}
}

func TestShutdownClosesPublisher(t *testing.T) {
	pub := &fakePublisher{}
	ext := amqphook.New(pub, quiet())
	if err := ext.OnShutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !pub.closed {
		t.Error("publisher not closed")
	}
}

func TestEventsReachPublisherThroughVault(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	v := newVault(t, amqphook.New(pub, quiet()))

	if _, err := v.CreateSubscription(ctx, subvault.CreateParams{
		Subscriber:      "alice",
		Merchant:        "acme",
		Amount:          types.NewAmount(10),
		IntervalSeconds: 60,
	}); err != nil {
		t.Fatal(err)
	}

	var keys []string
	for _, m := range pub.sent {
		keys = append(keys, m.key)
	}
	want := []string{"subvault.vault.initialized", "subvault.subscription.created"}
	if len(keys) != len(want) || keys[0] != want[0] || keys[1] != want[1] {
		t.Errorf("routing keys = %v, want %v", keys, want)
	}
}

func TestDialRejectsBadURL(t *testing.T) {
	if _, err := amqphook.Dial("http://localhost:5672", "subvault"); err == nil {
		t.Error("expected scheme error")
	}
	if _, err := amqphook.Dial("amqp://localhost:5672", ""); err == nil {
		t.Error("expected exchange error")
	}
}
