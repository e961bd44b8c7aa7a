package subvault

import (
	"context"
	"fmt"

	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// ContractSnapshot is the vault-level configuration exported for
// migration tooling.
type ContractSnapshot struct {
	Admin         types.Address `json:"admin"`
	Token         types.Address `json:"token"`
	MinTopup      types.Amount  `json:"min_topup"`
	NextID        uint64        `json:"next_id"`
	SchemaVersion uint32        `json:"schema_version"`
	Timestamp     uint64        `json:"timestamp"`
}

// SubscriptionSummary is the exported form of one subscription.
type SubscriptionSummary struct {
	SubscriptionID       subscription.ID     `json:"subscription_id"`
	Subscriber           types.Address       `json:"subscriber"`
	Merchant             types.Address       `json:"merchant"`
	Amount               types.Amount        `json:"amount"`
	IntervalSeconds      uint64              `json:"interval_seconds"`
	LastPaymentTimestamp uint64              `json:"last_payment_timestamp"`
	Status               subscription.Status `json:"status"`
	PrepaidBalance       types.Amount        `json:"prepaid_balance"`
	UsageEnabled         bool                `json:"usage_enabled"`
}

func summarize(sub *subscription.Subscription) SubscriptionSummary {
	return SubscriptionSummary{
		SubscriptionID:       sub.ID,
		Subscriber:           sub.Subscriber,
		Merchant:             sub.Merchant,
		Amount:               sub.Amount,
		IntervalSeconds:      sub.IntervalSeconds,
		LastPaymentTimestamp: sub.LastPaymentTimestamp,
		Status:               sub.Status,
		PrepaidBalance:       sub.PrepaidBalance,
		UsageEnabled:         sub.UsageEnabled,
	}
}

// ExportContractSnapshot returns the vault configuration. Admin only.
func (v *Vault) ExportContractSnapshot(ctx context.Context, admin types.Address) (*ContractSnapshot, error) {
	s, err := v.requireAdmin(ctx, admin)
	if err != nil {
		return nil, err
	}
	next, err := v.store.PeekSequence(ctx, settings.SequenceSubscription)
	if err != nil {
		return nil, err
	}

	snap := &ContractSnapshot{
		Admin:         s.Admin,
		Token:         s.Token,
		MinTopup:      s.MinTopup,
		NextID:        next,
		SchemaVersion: s.SchemaVersion,
		Timestamp:     v.clock.Now(),
	}
	v.logger.Info("contract snapshot exported", "admin", admin, "next_id", next)
	return snap, nil
}

// ExportSubscriptionSummary returns one subscription summary. Admin only.
func (v *Vault) ExportSubscriptionSummary(ctx context.Context, admin types.Address, subID subscription.ID) (*SubscriptionSummary, error) {
	if _, err := v.requireAdmin(ctx, admin); err != nil {
		return nil, err
	}
	sub, err := v.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	summary := summarize(sub)
	v.logger.Info("subscription exported", "admin", admin, "subscription_id", subID)
	return &summary, nil
}

// ExportSubscriptionSummaries returns summaries for IDs in
// [startID, startID+limit), clipped to the IDs issued so far. Admin only.
// A limit above the export limit fails ErrInvalidExportLimit.
func (v *Vault) ExportSubscriptionSummaries(ctx context.Context, admin types.Address, startID subscription.ID, limit int) ([]SubscriptionSummary, error) {
	if _, err := v.requireAdmin(ctx, admin); err != nil {
		return nil, err
	}
	if limit < 0 || limit > v.exportLimit {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrInvalidExportLimit, limit, v.exportLimit)
	}

	out := []SubscriptionSummary{}
	if limit == 0 {
		return out, nil
	}
	next, err := v.store.PeekSequence(ctx, settings.SequenceSubscription)
	if err != nil {
		return nil, err
	}
	if uint64(startID) >= next {
		return out, nil
	}

	subs, err := v.store.ListSubscriptions(ctx, subscription.ListOpts{
		StartID: uint64(startID),
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	end := types.SaturatingAdd(uint64(startID), uint64(limit))
	for _, sub := range subs {
		if uint64(sub.ID) >= end {
			break
		}
		out = append(out, summarize(sub))
	}

	v.logger.Info("subscriptions exported",
		"admin", admin,
		"start_id", startID,
		"limit", limit,
		"exported", len(out),
	)
	return out, nil
}
