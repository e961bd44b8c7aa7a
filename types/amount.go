// Package types provides the value types shared across the vault: the
// 128-bit signed Amount, checked arithmetic, coded errors and addresses.
package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/bits"
	"strings"
)

// Amount is a signed 128-bit integer in the token's smallest unit.
// All arithmetic is integer-only and overflow-checked (see checked.go).
//
// The zero value is 0.
type Amount struct {
	hi int64
	lo uint64
}

var (
	// MaxAmount is the largest representable Amount (2^127 - 1).
	MaxAmount = Amount{hi: 1<<63 - 1, lo: 1<<64 - 1}
	// MinAmount is the smallest representable Amount (-2^127).
	MinAmount = Amount{hi: -1 << 63, lo: 0}
)

// NewAmount creates an Amount from an int64.
func NewAmount(v int64) Amount {
	if v < 0 {
		return Amount{hi: -1, lo: uint64(v)}
	}
	return Amount{lo: uint64(v)}
}

// Zero returns the zero Amount.
func Zero() Amount { return Amount{} }

// ParseAmount parses a base-10 integer string, with an optional leading sign.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return Amount{}, fmt.Errorf("amount: empty string")
	}
	neg := false
	digits := s
	switch s[0] {
	case '-':
		neg = true
		digits = s[1:]
	case '+':
		digits = s[1:]
	}
	if digits == "" {
		return Amount{}, fmt.Errorf("amount: invalid %q", s)
	}

	var hi, lo uint64
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if c < '0' || c > '9' {
			return Amount{}, fmt.Errorf("amount: invalid %q", s)
		}
		var ok bool
		hi, lo, ok = mulAdd(hi, lo, 10, uint64(c-'0'))
		if !ok {
			return Amount{}, fmt.Errorf("amount: %q out of range", s)
		}
	}

	// The magnitude may reach 2^127 only for negative values.
	if hi > 1<<63 || (hi == 1<<63 && (lo != 0 || !neg)) {
		return Amount{}, fmt.Errorf("amount: %q out of range", s)
	}
	a := Amount{hi: int64(hi), lo: lo}
	if neg {
		a = a.neg()
	}
	return a, nil
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Int64 returns the value as an int64 and whether it fits.
func (a Amount) Int64() (int64, bool) {
	v := int64(a.lo)
	if (a.hi == 0 && v >= 0) || (a.hi == -1 && v < 0) {
		return v, true
	}
	return 0, false
}

// Comparison

// Cmp returns -1, 0 or +1 when a is less than, equal to or greater than b.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a.hi < b.hi:
		return -1
	case a.hi > b.hi:
		return 1
	case a.lo < b.lo:
		return -1
	case a.lo > b.lo:
		return 1
	}
	return 0
}

// Sign returns -1, 0 or +1.
func (a Amount) Sign() int {
	switch {
	case a.hi < 0:
		return -1
	case a.hi == 0 && a.lo == 0:
		return 0
	}
	return 1
}

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a.hi == 0 && a.lo == 0 }

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return a.Sign() > 0 }

// IsNegative returns true if the amount is less than zero.
func (a Amount) IsNegative() bool { return a.hi < 0 }

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool { return a == b }

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool { return a.Cmp(b) < 0 }

// GreaterThan reports whether a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.Cmp(b) > 0 }

// Max returns the larger of a and b.
func (a Amount) Max(b Amount) Amount {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Formatting

// String returns the base-10 representation.
func (a Amount) String() string {
	if a.IsZero() {
		return "0"
	}
	neg := a.hi < 0
	m := a
	if neg {
		m = a.neg()
	}
	// For MinAmount the negation wraps back to 1<<127, which is the
	// correct unsigned magnitude.
	hi, lo := uint64(m.hi), m.lo

	var buf [41]byte
	i := len(buf)
	for hi != 0 || lo != 0 {
		var r uint64
		hi, r = bits.Div64(0, hi, 10)
		lo, r = bits.Div64(r, lo, 10)
		i--
		buf[i] = byte('0' + r)
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Format renders the amount in major units for a token with the given
// number of decimals: Format(7) of 10_000_000 is "1.0000000".
func (a Amount) Format(decimals uint32) string {
	s := a.String()
	if decimals == 0 {
		return s
	}

	isNegative := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")
	if n := int(decimals) + 1 - len(digits); n > 0 {
		digits = strings.Repeat("0", n) + digits
	}
	cut := len(digits) - int(decimals)
	result := digits[:cut] + "." + digits[cut:]

	if isNegative {
		return "-" + result
	}
	return result
}

// Encoding

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(data []byte) error {
	v, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MarshalJSON encodes the amount as a JSON string, since 128-bit values
// do not survive float64 decoding in most JSON consumers.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both a JSON string and a bare JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if n := len(data); n >= 2 && data[0] == '"' && data[n-1] == '"' {
		data = data[1 : n-1]
	}
	return a.UnmarshalText(data)
}

// Value implements driver.Valuer. Amounts are stored as decimal text.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case int64:
		*a = NewAmount(v)
		return nil
	default:
		return fmt.Errorf("amount: cannot scan %T", src)
	}
}

// Helpers

// neg returns the two's complement negation, wrapping for MinAmount.
func (a Amount) neg() Amount {
	lo := ^a.lo + 1
	hi := ^uint64(a.hi)
	if lo == 0 {
		hi++
	}
	return Amount{hi: int64(hi), lo: lo}
}

// abs returns the unsigned magnitude as (hi, lo).
func (a Amount) abs() (uint64, uint64) {
	if a.hi < 0 {
		n := a.neg()
		return uint64(n.hi), n.lo
	}
	return uint64(a.hi), a.lo
}

// mulAdd computes (hi, lo) * m + add over unsigned 128 bits, reporting
// whether the result fit.
func mulAdd(hi, lo, m, add uint64) (uint64, uint64, bool) {
	carryLo, resLo := bits.Mul64(lo, m)
	overHi, resHi := bits.Mul64(hi, m)
	if overHi != 0 {
		return 0, 0, false
	}
	resHi, c := bits.Add64(resHi, carryLo, 0)
	if c != 0 {
		return 0, 0, false
	}
	resLo, c = bits.Add64(resLo, add, 0)
	resHi, c = bits.Add64(resHi, 0, c)
	if c != 0 {
		return 0, 0, false
	}
	return resHi, resLo, true
}
