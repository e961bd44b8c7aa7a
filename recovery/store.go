package recovery

import (
	"context"

	"github.com/xraph/subvault/id"
)

type Store interface {
	Create(ctx context.Context, r *Record) error
	// Delete removes a record whose payout failed.
	Delete(ctx context.Context, recID id.RecoveryID) error
	List(ctx context.Context, opts ListOpts) ([]*Record, error)
}

// ListOpts pages recovery records, oldest first.
type ListOpts struct {
	Limit  int
	Offset int
}
