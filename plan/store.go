package plan

import (
	"context"

	"github.com/xraph/subvault/types"
)

type Store interface {
	Create(ctx context.Context, t *Template) error
	Get(ctx context.Context, templateID TemplateID) (*Template, error)
	List(ctx context.Context, opts ListOpts) ([]*Template, error)
}

// ListOpts filters and pages templates, ordered by ID.
type ListOpts struct {
	Merchant types.Address
	Limit    int
	Offset   int
}
