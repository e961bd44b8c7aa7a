package types

import "math/bits"

// Every balance mutation in the vault goes through the functions in this
// file. Nothing else performs arithmetic on prepaid or merchant balances.

// Add returns a + b. A result above MaxAmount fails ErrOverflow and a
// result below MinAmount fails ErrUnderflow.
func Add(a, b Amount) (Amount, error) {
	lo, carry := bits.Add64(a.lo, b.lo, 0)
	hi, _ := bits.Add64(uint64(a.hi), uint64(b.hi), carry)
	r := Amount{hi: int64(hi), lo: lo}

	if a.IsNegative() == b.IsNegative() && r.IsNegative() != a.IsNegative() {
		if a.IsNegative() {
			return Amount{}, ErrUnderflow
		}
		return Amount{}, ErrOverflow
	}
	return r, nil
}

// Sub returns a - b. Negative results are allowed. A result below
// MinAmount fails ErrUnderflow and one above MaxAmount fails ErrOverflow.
func Sub(a, b Amount) (Amount, error) {
	lo, borrow := bits.Sub64(a.lo, b.lo, 0)
	hi, _ := bits.Sub64(uint64(a.hi), uint64(b.hi), borrow)
	r := Amount{hi: int64(hi), lo: lo}

	if a.IsNegative() != b.IsNegative() && r.IsNegative() != a.IsNegative() {
		if a.IsNegative() {
			return Amount{}, ErrUnderflow
		}
		return Amount{}, ErrOverflow
	}
	return r, nil
}

// MulUint64 returns a * n, failing ErrOverflow (or ErrUnderflow for a
// negative a) when the product does not fit.
func MulUint64(a Amount, n uint64) (Amount, error) {
	hi, lo := a.abs()
	hi, lo, ok := mulAdd(hi, lo, n, 0)

	neg := a.IsNegative() && (hi != 0 || lo != 0)
	switch {
	case !ok, hi > 1<<63, hi == 1<<63 && (lo != 0 || !neg):
		if a.IsNegative() {
			return Amount{}, ErrUnderflow
		}
		return Amount{}, ErrOverflow
	}

	r := Amount{hi: int64(hi), lo: lo}
	if neg {
		r = r.neg()
	}
	return r, nil
}

// AddBalance credits amount to balance. A negative amount fails
// ErrUnderflow.
func AddBalance(balance, amount Amount) (Amount, error) {
	if amount.IsNegative() {
		return Amount{}, ErrUnderflow
	}
	return Add(balance, amount)
}

// SubBalance debits amount from balance. A negative amount, or a debit
// that would leave the balance below zero, fails ErrUnderflow.
func SubBalance(balance, amount Amount) (Amount, error) {
	if amount.IsNegative() {
		return Amount{}, ErrUnderflow
	}
	r, err := Sub(balance, amount)
	if err != nil {
		return Amount{}, err
	}
	if r.IsNegative() {
		return Amount{}, ErrUnderflow
	}
	return r, nil
}

// ValidateNonNegative fails ErrUnderflow if x < 0.
func ValidateNonNegative(x Amount) error {
	if x.IsNegative() {
		return ErrUnderflow
	}
	return nil
}

// AddSeconds returns a + b on ledger timestamps, failing ErrOverflow on
// wraparound.
func AddSeconds(a, b uint64) (uint64, error) {
	r, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return r, nil
}

// SaturatingAdd returns a + b clamped to the largest uint64.
func SaturatingAdd(a, b uint64) uint64 {
	r, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 1<<64 - 1
	}
	return r
}
