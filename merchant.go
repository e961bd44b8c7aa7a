package subvault

import (
	"context"
	"fmt"

	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// settlement computes how a merchant is paid for a charge, either by
// crediting the accrual or by transferring immediately. Any failure of the
// computation (an overflowing accrual) surfaces here, before the charge
// writes anything. The returned func performs the payment.
func (v *Vault) settlement(ctx context.Context, merchant types.Address, amount types.Amount) (func(ctx context.Context) error, error) {
	if v.settleMode == SettleImmediate {
		return func(ctx context.Context) error {
			return v.token.Transfer(ctx, v.address, merchant, amount)
		}, nil
	}

	bal, err := v.store.GetMerchantBalance(ctx, merchant)
	if err != nil {
		return nil, err
	}
	accrued, err := types.AddBalance(bal.Accrued, amount)
	if err != nil {
		return nil, err
	}
	bal.Accrued = accrued
	bal.Touch()
	return func(ctx context.Context) error {
		return v.store.PutMerchantBalance(ctx, bal)
	}, nil
}

// commitCharge persists a debited subscription and pays its merchant.
// prev is the subscription as loaded; it is written back if the payment
// fails.
func (v *Vault) commitCharge(ctx context.Context, prev, sub *subscription.Subscription, amount types.Amount) error {
	pay, err := v.settlement(ctx, sub.Merchant, amount)
	if err != nil {
		return err
	}
	if err := v.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	if err := pay(ctx); err != nil {
		return v.undo(ctx, err, "subscription debit", func(ctx context.Context) error {
			return v.store.UpdateSubscription(ctx, prev)
		})
	}
	return nil
}

// WithdrawMerchantFunds pays out part of a merchant's accrual. The accrual
// is debited before the transfer is attempted; a failed transfer restores
// it and fails the call.
func (v *Vault) WithdrawMerchantFunds(ctx context.Context, merchant types.Address, amount types.Amount) error {
	err := v.exec(ctx, func(ctx context.Context, ob *outbox) error {
		if _, err := v.loadSettings(ctx); err != nil {
			return err
		}
		if err := v.requireAuth(ctx, merchant); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return ErrInvalidAmount
		}

		bal, err := v.store.GetMerchantBalance(ctx, merchant)
		if err != nil {
			return err
		}
		if bal.Accrued.LessThan(amount) {
			return fmt.Errorf("%w: accrued %s, requested %s", ErrInsufficientBalance, bal.Accrued, amount)
		}
		accrued, err := types.SubBalance(bal.Accrued, amount)
		if err != nil {
			return err
		}
		prev := *bal
		bal.Accrued = accrued
		bal.Touch()
		if err := v.store.PutMerchantBalance(ctx, bal); err != nil {
			return err
		}
		if err := v.token.Transfer(ctx, v.address, merchant, amount); err != nil {
			return v.undo(ctx, err, "merchant accrual", func(ctx context.Context) error {
				return v.store.PutMerchantBalance(ctx, &prev)
			})
		}

		ob.add(func(ctx context.Context) { v.plugins.EmitMerchantWithdrawal(ctx, merchant, amount) })
		return nil
	})
	if err != nil {
		return err
	}

	v.logger.Info("merchant withdrawal",
		"merchant", merchant,
		"amount", amount,
	)
	return nil
}

// GetMerchantBalance returns the merchant's accrued, unwithdrawn balance.
func (v *Vault) GetMerchantBalance(ctx context.Context, merchant types.Address) (types.Amount, error) {
	bal, err := v.store.GetMerchantBalance(ctx, merchant)
	if err != nil {
		return types.Amount{}, err
	}
	return bal.Accrued, nil
}
