// Package merchant holds the per-merchant accrual ledger.
package merchant

import (
	"github.com/xraph/subvault/types"
)

// Balance is the amount accrued to a merchant by successful charges and
// not yet withdrawn. It is shared by every subscription paying the
// merchant.
type Balance struct {
	types.Entity
	Merchant types.Address `json:"merchant"`
	Accrued  types.Amount  `json:"accrued"`
}
