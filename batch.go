package subvault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/plugin"
	"github.com/xraph/subvault/subscription"
)

// BatchChargeResult is the outcome of one entry of a batch charge.
// ErrorCode is 0 on success and the failing error's code otherwise.
type BatchChargeResult struct {
	Success   bool   `json:"success"`
	ErrorCode uint32 `json:"error_code"`
}

// BatchCharge charges every listed subscription and returns one result per
// input, in input order.
//
// Items are independent: a missing, inactive, unfunded or not-yet-due
// subscription is reported in its result and never stops or undoes the
// others. Duplicate IDs are charged again in order, so a duplicate that
// follows a success fails with IntervalNotElapsed.
//
// The returned error is non-nil only when the batch as a whole is
// rejected (the vault is not initialized or the admin did not approve).
func (v *Vault) BatchCharge(ctx context.Context, ids []subscription.ID) ([]BatchChargeResult, error) {
	start := time.Now()
	results := make([]BatchChargeResult, len(ids))
	summary := plugin.BatchSummary{ID: id.NewBatchID(), Total: len(ids)}

	err := v.exec(ctx, func(ctx context.Context, ob *outbox) error {
		s, err := v.requireOperator(ctx)
		if err != nil {
			return err
		}
		now := v.clock.Now()

		for i, subID := range ids {
			item := &outbox{}
			err := v.unit(ctx, func(ctx context.Context) error {
				return v.chargeOne(ctx, item, subID, now, s.GracePeriod, "")
			})

			var ce *committedError
			if errors.As(err, &ce) {
				ob.merge(item)
				err = ce.err
			} else if err == nil {
				ob.merge(item)
			}

			if err != nil {
				results[i] = BatchChargeResult{ErrorCode: Code(err)}
				summary.Failed++
				failedID, failErr := subID, err
				ob.add(func(ctx context.Context) { v.plugins.EmitChargeFailed(ctx, failedID, failErr) })
				continue
			}
			results[i] = BatchChargeResult{Success: true}
			summary.Succeeded++
		}

		summary.Elapsed = time.Since(start)
		ob.add(func(ctx context.Context) { v.plugins.EmitBatchCharged(ctx, summary) })
		return nil
	})
	if err != nil {
		return nil, err
	}

	v.logger.Info("batch charged",
		"batch_id", summary.ID,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed,
	)
	return results, nil
}

// BatchErrors collects the failed entries of a batch result as one error,
// or nil when every entry succeeded.
func BatchErrors(ids []subscription.ID, results []BatchChargeResult) error {
	var merr MultiError
	for i, r := range results {
		if !r.Success && i < len(ids) {
			merr.Add(&BatchItemError{SubscriptionID: ids[i], Code: r.ErrorCode})
		}
	}
	if !merr.HasErrors() {
		return nil
	}
	return merr
}

// BatchItemError reports the failure code of one batch entry.
type BatchItemError struct {
	SubscriptionID subscription.ID
	Code           uint32
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("subvault: batch charge of subscription %d failed with code %d", e.SubscriptionID, e.Code)
}
