package subvault

import (
	"context"
	"errors"

	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// ──────────────────────────────────────────────────
// Charge core
// ──────────────────────────────────────────────────

// chargeInterval applies one interval charge to sub at ledger time now.
//
// Every check runs before any field changes. The one failure that still
// changes sub is the insufficient-balance path: the status moves to
// InsufficientBalance (or GracePeriod while inside the grace window), the
// balance is untouched, and ErrInsufficientBalance is returned for the
// caller to persist.
func chargeInterval(sub *subscription.Subscription, now, grace uint64) error {
	if sub.Status != subscription.StatusActive && sub.Status != subscription.StatusGracePeriod {
		return ErrNotActive
	}
	if sub.IsExpired(now) {
		return ErrSubscriptionExpired
	}

	next, err := types.AddSeconds(sub.LastPaymentTimestamp, sub.IntervalSeconds)
	if err != nil {
		return err
	}
	if now < next {
		return ErrIntervalNotElapsed
	}

	if sub.PrepaidBalance.LessThan(sub.Amount) {
		target := subscription.StatusInsufficientBalance
		if grace > 0 && now < types.SaturatingAdd(next, grace) {
			target = subscription.StatusGracePeriod
		}
		if err := sub.TransitionTo(target); err != nil {
			return err
		}
		return ErrInsufficientBalance
	}

	balance, err := types.SubBalance(sub.PrepaidBalance, sub.Amount)
	if err != nil {
		return err
	}
	if sub.Status == subscription.StatusGracePeriod {
		if err := sub.TransitionTo(subscription.StatusActive); err != nil {
			return err
		}
	}
	sub.PrepaidBalance = balance
	sub.LastPaymentTimestamp = now
	return nil
}

// chargeUsage debits a metered amount from sub. A balance left at exactly
// zero moves the subscription to InsufficientBalance.
func chargeUsage(sub *subscription.Subscription, amount types.Amount, now uint64) error {
	if sub.Status != subscription.StatusActive {
		return ErrNotActive
	}
	if !sub.UsageEnabled {
		return ErrUsageNotEnabled
	}
	if sub.IsExpired(now) {
		return ErrSubscriptionExpired
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if sub.PrepaidBalance.LessThan(amount) {
		return ErrInsufficientPrepaidBalance
	}

	balance, err := types.SubBalance(sub.PrepaidBalance, amount)
	if err != nil {
		return err
	}
	if balance.IsZero() {
		if err := sub.TransitionTo(subscription.StatusInsufficientBalance); err != nil {
			return err
		}
	}
	sub.PrepaidBalance = balance
	return nil
}

// chargeOne loads, charges and persists one subscription. Callers run it
// inside a unit of work; a committedError result means the status-only
// write must be kept.
func (v *Vault) chargeOne(ctx context.Context, ob *outbox, subID subscription.ID, now, grace uint64, key string) error {
	sub, err := v.store.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}
	if key != "" && key == sub.LastChargeKey {
		return ErrReplay
	}

	prev := sub.Clone()
	from := sub.Status
	err = chargeInterval(sub, now, grace)
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		if uerr := v.store.UpdateSubscription(ctx, sub); uerr != nil {
			return uerr
		}
		if sub.Status != from {
			changed := sub.Clone()
			ob.add(func(ctx context.Context) { v.plugins.EmitStatusChanged(ctx, changed, from, "") })
		}
		return commit(err)
	case err != nil:
		return err
	}

	if key != "" {
		sub.LastChargeKey = key
	}
	if err := v.commitCharge(ctx, prev, sub, sub.Amount); err != nil {
		return err
	}

	charged := sub.Clone()
	ob.add(func(ctx context.Context) { v.plugins.EmitSubscriptionCharged(ctx, charged, charged.Amount) })
	if charged.Status != from {
		ob.add(func(ctx context.Context) { v.plugins.EmitStatusChanged(ctx, charged, from, "") })
	}
	return nil
}

// ──────────────────────────────────────────────────
// Charge entry points
// ──────────────────────────────────────────────────

// ChargeSubscription charges one billing interval. It requires the admin's
// approval (the billing service acts with the admin capability).
//
// When the prepaid balance cannot cover the charge the subscription moves
// to InsufficientBalance and ErrInsufficientBalance is returned; that
// status change is kept even though the call fails.
func (v *Vault) ChargeSubscription(ctx context.Context, subID subscription.ID) error {
	return v.ChargeSubscriptionWithKey(ctx, subID, "")
}

// ChargeSubscriptionWithKey is ChargeSubscription with an idempotency key.
// Repeating the key of the last successful charge fails ErrReplay without
// touching the subscription. An empty key disables the check.
func (v *Vault) ChargeSubscriptionWithKey(ctx context.Context, subID subscription.ID, key string) error {
	attempted := false
	err := v.exec(ctx, func(ctx context.Context, ob *outbox) error {
		s, err := v.requireOperator(ctx)
		if err != nil {
			return err
		}
		attempted = true
		return v.chargeOne(ctx, ob, subID, v.clock.Now(), s.GracePeriod, key)
	})

	if err != nil {
		if attempted {
			v.logger.Warn("charge failed",
				"subscription_id", subID,
				"code", Code(err),
				"error", err,
			)
			v.plugins.EmitChargeFailed(ctx, subID, err)
		}
		return err
	}

	v.logger.Info("subscription charged", "subscription_id", subID)
	return nil
}

// ChargeUsage debits a metered usage amount. It requires the admin's
// approval (the metering service acts with the admin capability).
func (v *Vault) ChargeUsage(ctx context.Context, subID subscription.ID, amount types.Amount) error {
	err := v.exec(ctx, func(ctx context.Context, ob *outbox) error {
		if _, err := v.requireOperator(ctx); err != nil {
			return err
		}

		sub, err := v.store.GetSubscription(ctx, subID)
		if err != nil {
			return err
		}
		prev := sub.Clone()
		from := sub.Status
		if err := chargeUsage(sub, amount, v.clock.Now()); err != nil {
			return err
		}
		if err := v.commitCharge(ctx, prev, sub, amount); err != nil {
			return err
		}

		ob.add(func(ctx context.Context) { v.plugins.EmitUsageCharged(ctx, sub, amount) })
		if sub.Status != from {
			ob.add(func(ctx context.Context) { v.plugins.EmitStatusChanged(ctx, sub, from, "") })
		}
		return nil
	})
	if err != nil {
		return err
	}

	v.logger.Info("usage charged",
		"subscription_id", subID,
		"amount", amount,
	)
	return nil
}
