package types

import "errors"

// Kind groups error codes into the vault's error taxonomy.
type Kind uint8

const (
	KindInternal Kind = iota
	KindAuth
	KindNotFound
	KindStateMachine
	KindTiming
	KindBalance
	KindArithmetic
	KindConfig
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindStateMachine:
		return "state_machine"
	case KindTiming:
		return "timing"
	case KindBalance:
		return "balance"
	case KindArithmetic:
		return "arithmetic"
	case KindConfig:
		return "config"
	default:
		return "internal"
	}
}

// CodeInternal is reported for errors that carry no vault code, such as
// store or transport failures.
const CodeInternal uint32 = 500

// Error is a vault error with a stable numeric code. Sentinel values are
// compared by identity, so wrap them with fmt.Errorf("...: %w", err) to add
// context.
type Error struct {
	Code    uint32
	Kind    Kind
	Message string
}

// NewError creates a coded error.
func NewError(code uint32, kind Kind, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return "subvault: " + e.Message
}

// CodeOf returns the code of the first *Error in err's chain, 0 for nil
// and CodeInternal for anything else.
func CodeOf(err error) uint32 {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Arithmetic errors are raised by the checked operations in this package.
var (
	ErrOverflow  = NewError(403, KindArithmetic, "arithmetic overflow")
	ErrUnderflow = NewError(1009, KindArithmetic, "arithmetic underflow")
)
