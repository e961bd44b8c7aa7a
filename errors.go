package subvault

import (
	"errors"
	"fmt"

	"github.com/xraph/subvault/host"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// Sentinel errors. Every one carries a stable numeric code (see Code) and
// a taxonomy kind. Compare with errors.Is; wrapped errors keep their code.
var (
	// Auth errors
	ErrUnauthorized = host.ErrUnauthorized
	ErrForbidden    = types.NewError(1010, types.KindAuth, "forbidden")

	// Lookup errors
	ErrNotFound = types.NewError(404, types.KindNotFound, "not found")

	// State machine errors
	ErrInvalidStatusTransition = subscription.ErrInvalidStatusTransition
	ErrNotActive               = types.NewError(1002, types.KindStateMachine, "subscription not active")

	// Timing errors
	ErrIntervalNotElapsed  = types.NewError(1001, types.KindTiming, "billing interval not elapsed")
	ErrSubscriptionExpired = types.NewError(1011, types.KindTiming, "subscription expired")
	ErrReplay              = types.NewError(1007, types.KindTiming, "charge already processed")

	// Balance errors
	ErrInsufficientBalance        = types.NewError(1003, types.KindBalance, "insufficient balance")
	ErrUsageNotEnabled            = types.NewError(1004, types.KindBalance, "usage billing not enabled")
	ErrInsufficientPrepaidBalance = types.NewError(1005, types.KindBalance, "insufficient prepaid balance")
	ErrInvalidAmount              = types.NewError(1006, types.KindBalance, "invalid amount")
	ErrBelowMinimumTopup          = types.NewError(402, types.KindBalance, "below minimum top-up")
	ErrInvalidRecoveryAmount      = types.NewError(1008, types.KindBalance, "invalid recovery amount")

	// Arithmetic errors
	ErrOverflow  = types.ErrOverflow
	ErrUnderflow = types.ErrUnderflow

	// Config errors
	ErrNotInitialized     = types.NewError(1012, types.KindConfig, "vault not initialized")
	ErrAlreadyInitialized = types.NewError(1013, types.KindConfig, "vault already initialized")
	ErrInvalidExportLimit = types.NewError(1014, types.KindConfig, "invalid export limit")
	ErrInvalidInput       = types.NewError(1015, types.KindConfig, "invalid input")
)

// CodeInternal is the code of errors raised outside the vault (store,
// transport, token transfer).
const CodeInternal = types.CodeInternal

// Code returns the numeric code for err: 0 for nil, the vault code for
// vault errors, CodeInternal for anything else.
func Code(err error) uint32 { return types.CodeOf(err) }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "subvault: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("subvault: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuthError returns true for Unauthorized and Forbidden.
func IsAuthError(err error) bool {
	return types.KindOf(err) == types.KindAuth
}

// IsBalanceError returns true for errors about amounts and balances.
func IsBalanceError(err error) bool {
	return types.KindOf(err) == types.KindBalance
}

// IsTimingError returns true for interval, expiration and replay errors.
func IsTimingError(err error) bool {
	return types.KindOf(err) == types.KindTiming
}

// IsArithmeticError returns true for Overflow and Underflow.
func IsArithmeticError(err error) bool {
	return types.KindOf(err) == types.KindArithmetic
}

// IsRetryable returns true if the same call may succeed later without any
// change by the caller: the interval has not elapsed yet, or the failure
// came from outside the vault.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrIntervalNotElapsed) ||
		(err != nil && Code(err) == CodeInternal)
}

// committedError marks an error whose unit of work must still be
// committed. It is the status-only write of an insufficient-balance charge.
type committedError struct {
	err error
}

func (e *committedError) Error() string { return e.err.Error() }

func (e *committedError) Unwrap() error { return e.err }

// commit wraps err so that the enclosing unit of work keeps its writes.
func commit(err error) error { return &committedError{err: err} }
