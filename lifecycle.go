package subvault

import (
	"context"
	"fmt"

	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// CreateParams are the terms of a new subscription.
type CreateParams struct {
	Subscriber      types.Address
	Merchant        types.Address
	Amount          types.Amount
	IntervalSeconds uint64
	UsageEnabled    bool
	// Expiration, if set, is the ledger time from which charges are blocked.
	Expiration *uint64
	// InitialDeposit funds the subscription at creation. Zero starts with
	// an empty balance; a positive value must meet the minimum top-up.
	InitialDeposit types.Amount
}

// PlanParams are the terms of a new plan template.
type PlanParams struct {
	Merchant        types.Address
	Amount          types.Amount
	IntervalSeconds uint64
	UsageEnabled    bool
}

// ──────────────────────────────────────────────────
// Creation
// ──────────────────────────────────────────────────

// CreateSubscription creates an Active subscription on behalf of the
// subscriber and returns its ID.
func (v *Vault) CreateSubscription(ctx context.Context, p CreateParams) (subscription.ID, error) {
	var created *subscription.Subscription
	err := v.exec(ctx, func(ctx context.Context, ob *outbox) error {
		s, err := v.loadSettings(ctx)
		if err != nil {
			return err
		}
		if err := v.requireAuth(ctx, p.Subscriber); err != nil {
			return err
		}
		created, err = v.createSubscription(ctx, ob, s, p, nil)
		return err
	})
	if err != nil {
		return 0, err
	}

	v.logger.Info("subscription created",
		"subscription_id", created.ID,
		"subscriber", created.Subscriber,
		"merchant", created.Merchant,
		"amount", created.Amount,
		"interval_seconds", created.IntervalSeconds,
	)
	return created.ID, nil
}

// CreatePlanTemplate stores a reusable set of subscription terms for the
// merchant and returns its ID.
func (v *Vault) CreatePlanTemplate(ctx context.Context, p PlanParams) (plan.TemplateID, error) {
	var created *plan.Template
	err := v.exec(ctx, func(ctx context.Context, ob *outbox) error {
		if _, err := v.loadSettings(ctx); err != nil {
			return err
		}
		if err := v.requireAuth(ctx, p.Merchant); err != nil {
			return err
		}
		if p.Merchant.IsZero() {
			return fmt.Errorf("%w: merchant is required", ErrInvalidInput)
		}
		if !p.Amount.IsPositive() {
			return ErrInvalidAmount
		}
		if p.IntervalSeconds == 0 {
			return fmt.Errorf("%w: interval must be positive", ErrInvalidInput)
		}

		next, err := v.store.NextSequence(ctx, settings.SequencePlanTemplate)
		if err != nil {
			return err
		}
		t := &plan.Template{
			Entity:          types.NewEntity(),
			ID:              plan.TemplateID(next),
			Merchant:        p.Merchant,
			Amount:          p.Amount,
			IntervalSeconds: p.IntervalSeconds,
			UsageEnabled:    p.UsageEnabled,
		}
		if err := v.store.CreatePlanTemplate(ctx, t); err != nil {
			return err
		}

		created = t
		ob.add(func(ctx context.Context) { v.plugins.EmitPlanTemplateCreated(ctx, t) })
		return nil
	})
	if err != nil {
		return 0, err
	}

	v.logger.Info("plan template created",
		"plan_template_id", created.ID,
		"merchant", created.Merchant,
	)
	return created.ID, nil
}

// CreateSubscriptionFromPlan creates a subscription with the terms of a
// plan template.
func (v *Vault) CreateSubscriptionFromPlan(ctx context.Context, subscriber types.Address, templateID plan.TemplateID) (subscription.ID, error) {
	var created *subscription.Subscription
	err := v.exec(ctx, func(ctx context.Context, ob *outbox) error {
		s, err := v.loadSettings(ctx)
		if err != nil {
			return err
		}
		if err := v.requireAuth(ctx, subscriber); err != nil {
			return err
		}

		t, err := v.store.GetPlanTemplate(ctx, templateID)
		if err != nil {
			return err
		}
		pid := uint64(t.ID)
		created, err = v.createSubscription(ctx, ob, s, CreateParams{
			Subscriber:      subscriber,
			Merchant:        t.Merchant,
			Amount:          t.Amount,
			IntervalSeconds: t.IntervalSeconds,
			UsageEnabled:    t.UsageEnabled,
		}, &pid)
		return err
	})
	if err != nil {
		return 0, err
	}

	v.logger.Info("subscription created from plan",
		"subscription_id", created.ID,
		"plan_template_id", templateID,
		"subscriber", subscriber,
	)
	return created.ID, nil
}

func (v *Vault) createSubscription(ctx context.Context, ob *outbox, s *settings.Settings, p CreateParams, templateID *uint64) (*subscription.Subscription, error) {
	now := v.clock.Now()

	if p.Subscriber.IsZero() || p.Merchant.IsZero() {
		return nil, fmt.Errorf("%w: subscriber and merchant are required", ErrInvalidInput)
	}
	if !p.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if p.IntervalSeconds == 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidInput)
	}
	if p.Expiration != nil && *p.Expiration <= now {
		return nil, fmt.Errorf("%w: expiration %d is not after %d", ErrInvalidInput, *p.Expiration, now)
	}
	if p.InitialDeposit.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if p.InitialDeposit.IsPositive() && p.InitialDeposit.LessThan(s.MinTopup) {
		return nil, ErrBelowMinimumTopup
	}

	balance, err := types.AddBalance(types.Zero(), p.InitialDeposit)
	if err != nil {
		return nil, err
	}

	// The deposit is pulled first; if the record cannot be written it is
	// sent back.
	if balance.IsPositive() {
		if err := v.token.Transfer(ctx, p.Subscriber, v.address, balance); err != nil {
			return nil, err
		}
	}
	refund := func(ctx context.Context) error {
		if !balance.IsPositive() {
			return nil
		}
		return v.token.Transfer(ctx, v.address, p.Subscriber, balance)
	}

	next, err := v.store.NextSequence(ctx, settings.SequenceSubscription)
	if err != nil {
		return nil, v.undo(ctx, err, "initial deposit", refund)
	}
	sub := &subscription.Subscription{
		Entity:               types.NewEntity(),
		ID:                   subscription.ID(next),
		Subscriber:           p.Subscriber,
		Merchant:             p.Merchant,
		Amount:               p.Amount,
		IntervalSeconds:      p.IntervalSeconds,
		LastPaymentTimestamp: now,
		Status:               subscription.StatusActive,
		PrepaidBalance:       balance,
		UsageEnabled:         p.UsageEnabled,
		Expiration:           p.Expiration,
		PlanTemplateID:       templateID,
	}
	if err := v.store.CreateSubscription(ctx, sub); err != nil {
		return nil, v.undo(ctx, err, "initial deposit", refund)
	}

	created := sub.Clone()
	ob.add(func(ctx context.Context) { v.plugins.EmitSubscriptionCreated(ctx, created) })
	if balance.IsPositive() {
		ob.add(func(ctx context.Context) { v.plugins.EmitFundsDeposited(ctx, created, balance) })
	}
	return sub, nil
}

// ──────────────────────────────────────────────────
// Funding
// ──────────────────────────────────────────────────

// DepositFunds tops up a subscription's prepaid balance from its
// subscriber.
func (v *Vault) DepositFunds(ctx context.Context, subID subscription.ID, subscriber types.Address, amount types.Amount) error {
	err := v.exec(ctx, func(ctx context.Context, ob *outbox) error {
		s, err := v.loadSettings(ctx)
		if err != nil {
			return err
		}
		if err := v.requireAuth(ctx, subscriber); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return ErrInvalidAmount
		}
		if amount.LessThan(s.MinTopup) {
			return fmt.Errorf("%w: minimum is %s", ErrBelowMinimumTopup, s.MinTopup)
		}

		sub, err := v.store.GetSubscription(ctx, subID)
		if err != nil {
			return err
		}
		if sub.Subscriber != subscriber {
			return fmt.Errorf("%w: %s is not the subscriber of %d", ErrForbidden, subscriber, subID)
		}
		if sub.Status == subscription.StatusCancelled {
			return ErrNotActive
		}

		balance, err := types.AddBalance(sub.PrepaidBalance, amount)
		if err != nil {
			return err
		}
		if err := v.token.Transfer(ctx, subscriber, v.address, amount); err != nil {
			return err
		}
		sub.PrepaidBalance = balance
		if err := v.store.UpdateSubscription(ctx, sub); err != nil {
			return v.undo(ctx, err, "deposit", func(ctx context.Context) error {
				return v.token.Transfer(ctx, v.address, subscriber, amount)
			})
		}

		ob.add(func(ctx context.Context) { v.plugins.EmitFundsDeposited(ctx, sub, amount) })
		return nil
	})
	if err != nil {
		return err
	}

	v.logger.Info("funds deposited",
		"subscription_id", subID,
		"amount", amount,
	)
	return nil
}

// WithdrawSubscriberFunds returns the residual prepaid balance of a
// cancelled subscription to its subscriber and returns the amount paid.
func (v *Vault) WithdrawSubscriberFunds(ctx context.Context, subID subscription.ID, subscriber types.Address) (types.Amount, error) {
	var paid types.Amount
	err := v.exec(ctx, func(ctx context.Context, ob *outbox) error {
		if _, err := v.loadSettings(ctx); err != nil {
			return err
		}
		if err := v.requireAuth(ctx, subscriber); err != nil {
			return err
		}

		sub, err := v.store.GetSubscription(ctx, subID)
		if err != nil {
			return err
		}
		if sub.Subscriber != subscriber {
			return fmt.Errorf("%w: %s is not the subscriber of %d", ErrForbidden, subscriber, subID)
		}
		if sub.Status != subscription.StatusCancelled {
			return fmt.Errorf("%w: subscription %d is not cancelled", ErrForbidden, subID)
		}
		if !sub.PrepaidBalance.IsPositive() {
			return ErrInsufficientBalance
		}

		amount := sub.PrepaidBalance
		balance, err := types.SubBalance(sub.PrepaidBalance, amount)
		if err != nil {
			return err
		}
		prev := sub.Clone()
		sub.PrepaidBalance = balance
		if err := v.store.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		if err := v.token.Transfer(ctx, v.address, subscriber, amount); err != nil {
			return v.undo(ctx, err, "subscriber withdrawal", func(ctx context.Context) error {
				return v.store.UpdateSubscription(ctx, prev)
			})
		}

		paid = amount
		ob.add(func(ctx context.Context) { v.plugins.EmitSubscriberWithdrawal(ctx, sub, amount) })
		return nil
	})
	if err != nil {
		return types.Amount{}, err
	}

	v.logger.Info("subscriber withdrawal",
		"subscription_id", subID,
		"amount", paid,
	)
	return paid, nil
}

// ──────────────────────────────────────────────────
// Status changes
// ──────────────────────────────────────────────────

// PauseSubscription pauses billing. The authorizer must be the subscriber
// or the merchant.
func (v *Vault) PauseSubscription(ctx context.Context, subID subscription.ID, authorizer types.Address) error {
	return v.changeStatus(ctx, subID, authorizer, subscription.StatusPaused)
}

// ResumeSubscription returns a paused, underfunded or grace-period
// subscription to Active. The authorizer must be the subscriber or the
// merchant.
func (v *Vault) ResumeSubscription(ctx context.Context, subID subscription.ID, authorizer types.Address) error {
	return v.changeStatus(ctx, subID, authorizer, subscription.StatusActive)
}

// CancelSubscription cancels a subscription for good. Any remaining
// prepaid balance becomes withdrawable by the subscriber.
func (v *Vault) CancelSubscription(ctx context.Context, subID subscription.ID, authorizer types.Address) error {
	return v.changeStatus(ctx, subID, authorizer, subscription.StatusCancelled)
}

func (v *Vault) changeStatus(ctx context.Context, subID subscription.ID, authorizer types.Address, target subscription.Status) error {
	var (
		from    subscription.Status
		changed *subscription.Subscription
	)
	err := v.exec(ctx, func(ctx context.Context, ob *outbox) error {
		if _, err := v.loadSettings(ctx); err != nil {
			return err
		}

		sub, err := v.store.GetSubscription(ctx, subID)
		if err != nil {
			return err
		}
		if err := v.requireParty(ctx, sub, authorizer); err != nil {
			return err
		}

		from = sub.Status
		if err := sub.TransitionTo(target); err != nil {
			return err
		}
		if err := v.store.UpdateSubscription(ctx, sub); err != nil {
			return err
		}

		changed = sub
		if from != target {
			ob.add(func(ctx context.Context) { v.plugins.EmitStatusChanged(ctx, sub, from, authorizer) })
		}
		return nil
	})
	if err != nil {
		return err
	}

	v.logger.Info("subscription status changed",
		"subscription_id", subID,
		"from", from,
		"to", target,
		"authorizer", authorizer,
		"refundable", changed.PrepaidBalance,
	)
	return nil
}

// ──────────────────────────────────────────────────
// One-off charges
// ──────────────────────────────────────────────────

// ChargeOneOff lets the merchant debit an immediate amount from an Active
// or Paused subscription, bounded by its prepaid balance.
func (v *Vault) ChargeOneOff(ctx context.Context, subID subscription.ID, merchant types.Address, amount types.Amount) error {
	err := v.exec(ctx, func(ctx context.Context, ob *outbox) error {
		if _, err := v.loadSettings(ctx); err != nil {
			return err
		}
		if err := v.requireAuth(ctx, merchant); err != nil {
			return err
		}

		sub, err := v.store.GetSubscription(ctx, subID)
		if err != nil {
			return err
		}
		if sub.Merchant != merchant {
			return fmt.Errorf("%w: %s is not the merchant of %d", ErrForbidden, merchant, subID)
		}
		if sub.Status != subscription.StatusActive && sub.Status != subscription.StatusPaused {
			return ErrNotActive
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
		prev := sub.Clone()
		sub.PrepaidBalance = balance
		if err := v.commitCharge(ctx, prev, sub, amount); err != nil {
			return err
		}

		ob.add(func(ctx context.Context) { v.plugins.EmitOneOffCharged(ctx, sub, amount) })
		return nil
	})
	if err != nil {
		return err
	}

	v.logger.Info("one-off charged",
		"subscription_id", subID,
		"merchant", merchant,
		"amount", amount,
	)
	return nil
}
