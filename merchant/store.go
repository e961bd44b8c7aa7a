package merchant

import (
	"context"

	"github.com/xraph/subvault/types"
)

type Store interface {
	// GetBalance returns the merchant's balance, or a zero balance if the
	// merchant has never accrued anything.
	GetBalance(ctx context.Context, merchant types.Address) (*Balance, error)
	// PutBalance creates or replaces the merchant's balance.
	PutBalance(ctx context.Context, b *Balance) error
}
