// Package host defines the ports through which the vault reaches its
// execution host: authorization, ledger time and token custody.
//
// The vault never assumes a concrete host. Production wiring supplies
// adapters for the real signature check, block clock and token contract.
// The in-process implementations in this package serve tests, local
// development and single-process deployments.
package host

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xraph/subvault/types"
)

// ErrUnauthorized is returned by an Authorizer that refuses an address.
var ErrUnauthorized = types.NewError(401, types.KindAuth, "unauthorized")

// Authorizer verifies that the current invocation carries the signed
// approval of addr. A non-nil error aborts the operation.
type Authorizer interface {
	RequireAuth(ctx context.Context, addr types.Address) error
}

// Clock returns the current ledger time in seconds.
type Clock interface {
	Now() uint64
}

// TokenTransfer moves tokens between addresses.
type TokenTransfer interface {
	Transfer(ctx context.Context, from, to types.Address, amount types.Amount) error
}

// ──────────────────────────────────────────────────
// Func adapters
// ──────────────────────────────────────────────────

// AuthorizerFunc is an adapter to use a plain function as an Authorizer.
type AuthorizerFunc func(ctx context.Context, addr types.Address) error

// RequireAuth implements Authorizer.
func (f AuthorizerFunc) RequireAuth(ctx context.Context, addr types.Address) error {
	return f(ctx, addr)
}

// ClockFunc is an adapter to use a plain function as a Clock.
type ClockFunc func() uint64

// Now implements Clock.
func (f ClockFunc) Now() uint64 { return f() }

// TransferFunc is an adapter to use a plain function as a TokenTransfer.
type TransferFunc func(ctx context.Context, from, to types.Address, amount types.Amount) error

// Transfer implements TokenTransfer.
func (f TransferFunc) Transfer(ctx context.Context, from, to types.Address, amount types.Amount) error {
	return f(ctx, from, to, amount)
}

// ──────────────────────────────────────────────────
// In-process implementations
// ──────────────────────────────────────────────────

// AllowAll returns an Authorizer that approves every address.
func AllowAll() Authorizer {
	return AuthorizerFunc(func(context.Context, types.Address) error { return nil })
}

// SystemClock returns a Clock reading wall-clock Unix seconds.
func SystemClock() Clock {
	return ClockFunc(func() uint64 { return uint64(time.Now().Unix()) })
}

// NoopTransfer returns a TokenTransfer that accepts every transfer without
// moving anything, for deployments where custody is settled elsewhere.
func NoopTransfer() TokenTransfer {
	return TransferFunc(func(context.Context, types.Address, types.Address, types.Amount) error { return nil })
}

// SignerSet is an Authorizer that approves only the addresses currently
// marked as signers.
type SignerSet struct {
	mu      sync.RWMutex
	signers map[types.Address]bool
}

// NewSignerSet creates a SignerSet approving the given addresses.
func NewSignerSet(signers ...types.Address) *SignerSet {
	s := &SignerSet{signers: make(map[types.Address]bool)}
	for _, a := range signers {
		s.signers[a] = true
	}
	return s
}

// Allow marks addr as a signer.
func (s *SignerSet) Allow(addr types.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signers[addr] = true
}

// Revoke removes addr from the signers.
func (s *SignerSet) Revoke(addr types.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.signers, addr)
}

// RequireAuth implements Authorizer.
func (s *SignerSet) RequireAuth(_ context.Context, addr types.Address) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.signers[addr] {
		return ErrUnauthorized
	}
	return nil
}

// ManualClock is a Clock whose time only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

// NewManualClock creates a ManualClock at the given ledger time.
func NewManualClock(now uint64) *ManualClock {
	return &ManualClock{now: now}
}

// Now implements Clock.
func (c *ManualClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(d uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Transfer is one recorded token movement.
type Transfer struct {
	From   types.Address
	To     types.Address
	Amount types.Amount
}

// ErrTransferFailed is returned by a TransferLog told to fail.
var ErrTransferFailed = errors.New("host: transfer failed")

// TransferLog is a TokenTransfer that records every transfer in memory.
// It can be told to fail, which lets callers exercise rollback paths.
type TransferLog struct {
	mu        sync.Mutex
	transfers []Transfer
	fail      bool
}

// NewTransferLog creates an empty TransferLog.
func NewTransferLog() *TransferLog { return &TransferLog{} }

// Transfer implements TokenTransfer.
func (l *TransferLog) Transfer(_ context.Context, from, to types.Address, amount types.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return ErrTransferFailed
	}
	l.transfers = append(l.transfers, Transfer{From: from, To: to, Amount: amount})
	return nil
}

// SetFailing makes every following transfer fail until called with false.
func (l *TransferLog) SetFailing(fail bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = fail
}

// Transfers returns a copy of the recorded transfers.
func (l *TransferLog) Transfers() []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transfer, len(l.transfers))
	copy(out, l.transfers)
	return out
}
