package types

// Address is an opaque identity handle (a subscriber, merchant, admin,
// token or the vault itself). Addresses are compared by equality only.
type Address string

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool { return a == "" }

func (a Address) String() string { return string(a) }
