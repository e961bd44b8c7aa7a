package subvault

import (
	"context"

	"github.com/xraph/subvault/plan"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// NextChargeInfo estimates the next interval charge of a subscription.
type NextChargeInfo struct {
	// NextChargeTimestamp is the earliest ledger time at which the next
	// interval charge may succeed. It saturates at the maximum uint64.
	NextChargeTimestamp uint64 `json:"next_charge_timestamp"`
	// IsChargeExpected is false for Paused and Cancelled subscriptions.
	IsChargeExpected bool `json:"is_charge_expected"`
}

// ComputeNextChargeInfo projects the next charge of sub. It never fails.
func ComputeNextChargeInfo(sub *subscription.Subscription) NextChargeInfo {
	return NextChargeInfo{
		NextChargeTimestamp: types.SaturatingAdd(sub.LastPaymentTimestamp, sub.IntervalSeconds),
		IsChargeExpected:    sub.Status.ChargeExpected(),
	}
}

// ComputeTopupForIntervals returns how much must be deposited so that the
// prepaid balance covers n more interval charges. It is zero when the
// balance already suffices.
func ComputeTopupForIntervals(sub *subscription.Subscription, n uint32) (types.Amount, error) {
	required, err := types.MulUint64(sub.Amount, uint64(n))
	if err != nil {
		return types.Amount{}, err
	}
	shortfall, err := types.Sub(required, sub.PrepaidBalance)
	if err != nil {
		return types.Amount{}, err
	}
	return shortfall.Max(types.Zero()), nil
}

// SubscriptionsPage is one page of subscription IDs for a subscriber.
type SubscriptionsPage struct {
	IDs     []subscription.ID `json:"subscription_ids"`
	HasNext bool              `json:"has_next"`
}

// GetSubscription returns a subscription by ID.
func (v *Vault) GetSubscription(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	return v.store.GetSubscription(ctx, subID)
}

// NextChargeInfo returns the next-charge projection of a subscription.
func (v *Vault) NextChargeInfo(ctx context.Context, subID subscription.ID) (NextChargeInfo, error) {
	sub, err := v.store.GetSubscription(ctx, subID)
	if err != nil {
		return NextChargeInfo{}, err
	}
	return ComputeNextChargeInfo(sub), nil
}

// EstimateTopupForIntervals returns the deposit needed to cover n more
// interval charges of a subscription.
func (v *Vault) EstimateTopupForIntervals(ctx context.Context, subID subscription.ID, n uint32) (types.Amount, error) {
	sub, err := v.store.GetSubscription(ctx, subID)
	if err != nil {
		return types.Amount{}, err
	}
	return ComputeTopupForIntervals(sub, n)
}

// ListSubscriptionsByMerchant returns the merchant's subscriptions in
// creation order. An offset past the end yields an empty slice.
func (v *Vault) ListSubscriptionsByMerchant(ctx context.Context, merchant types.Address, offset, limit int) ([]*subscription.Subscription, error) {
	if limit <= 0 || offset < 0 {
		return []*subscription.Subscription{}, nil
	}
	return v.store.ListSubscriptions(ctx, subscription.ListOpts{
		Merchant: merchant,
		Offset:   offset,
		Limit:    limit,
	})
}

// MerchantSubscriptionCount returns how many subscriptions pay merchant.
func (v *Vault) MerchantSubscriptionCount(ctx context.Context, merchant types.Address) (int, error) {
	return v.store.CountSubscriptions(ctx, subscription.ListOpts{Merchant: merchant})
}

// ListSubscriptionsBySubscriber returns up to limit subscription IDs owned
// by subscriber, in ascending order, starting at startFromID (inclusive).
// Pass the last returned ID plus one to fetch the next page.
func (v *Vault) ListSubscriptionsBySubscriber(ctx context.Context, subscriber types.Address, startFromID subscription.ID, limit int) (SubscriptionsPage, error) {
	page := SubscriptionsPage{IDs: []subscription.ID{}}
	if limit <= 0 {
		return page, nil
	}

	// One extra row tells whether another page exists.
	subs, err := v.store.ListSubscriptions(ctx, subscription.ListOpts{
		Subscriber: subscriber,
		StartID:    uint64(startFromID),
		Limit:      limit + 1,
	})
	if err != nil {
		return SubscriptionsPage{}, err
	}

	if len(subs) > limit {
		page.HasNext = true
		subs = subs[:limit]
	}
	for _, s := range subs {
		page.IDs = append(page.IDs, s.ID)
	}
	return page, nil
}

// GetPlanTemplate returns a plan template by ID.
func (v *Vault) GetPlanTemplate(ctx context.Context, templateID plan.TemplateID) (*plan.Template, error) {
	return v.store.GetPlanTemplate(ctx, templateID)
}

// ListPlanTemplates returns plan templates in creation order.
func (v *Vault) ListPlanTemplates(ctx context.Context, opts plan.ListOpts) ([]*plan.Template, error) {
	return v.store.ListPlanTemplates(ctx, opts)
}
