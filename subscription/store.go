package subscription

import (
	"context"

	"github.com/xraph/subvault/types"
)

type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subID ID) (*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	List(ctx context.Context, opts ListOpts) ([]*Subscription, error)
	Count(ctx context.Context, opts ListOpts) (int, error)
}

// ListOpts filters and pages subscriptions. Results are always ordered by
// ID, which is insertion order.
type ListOpts struct {
	Merchant   types.Address
	Subscriber types.Address
	Status     Status
	// StartID is an inclusive lower bound on the ID.
	StartID uint64
	Limit   int
	Offset  int
}
