// Package subvault provides a recurring-billing ledger for Go applications.
//
// Subvault is designed as a library, not a service. It tracks subscription
// agreements between a subscriber and a merchant, decides when and how much
// may be charged, and keeps prepaid and merchant balances with checked
// 128-bit arithmetic. It provides:
//
//   - An explicit subscription state machine (active, paused, cancelled,
//     insufficient balance, grace period)
//   - Interval, usage and one-off charges
//   - Batch charging that isolates failures per subscription
//   - Merchant accruals and payouts
//   - Plan templates, pagination queries and migration exports
//   - Pluggable storage (memory, PostgreSQL, SQLite, MongoDB)
//   - Plugins for audit trails, metrics and AMQP event publishing
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/subvault"
//	    "github.com/xraph/subvault/store/memory"
//	)
//
//	v := subvault.New(memory.New(),
//	    subvault.WithAuthorizer(signers),
//	    subvault.WithTokenTransfer(token),
//	)
//	if err := v.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer v.Stop()
//
//	err := v.Init(ctx, subvault.InitParams{
//	    Token:    "usdc",
//	    Admin:    "admin",
//	    MinTopup: subvault.NewAmount(1_000_000),
//	})
//
// # Core Concepts
//
// A subscriber creates a subscription and funds its prepaid balance:
//
//	subID, err := v.CreateSubscription(ctx, subvault.CreateParams{
//	    Subscriber:      "alice",
//	    Merchant:        "acme",
//	    Amount:          subvault.NewAmount(10_000_000),
//	    IntervalSeconds: 30 * 24 * 60 * 60,
//	})
//	err = v.DepositFunds(ctx, subID, "alice", subvault.NewAmount(10_000_000))
//
// The billing service charges due subscriptions one by one or in batches:
//
//	results, err := v.BatchCharge(ctx, []subscription.ID{0, 1, 2})
//	for i, r := range results {
//	    if !r.Success {
//	        log.Printf("subscription %d failed with code %d", i, r.ErrorCode)
//	    }
//	}
//
// A charge succeeds once last_payment_timestamp + interval_seconds has been
// reached. When the prepaid balance cannot cover it the subscription moves
// to InsufficientBalance and stays there until the subscriber deposits and
// resumes.
//
// # Errors
//
// Every domain error carries a stable numeric code, available through
// Code. Batch results report the same codes.
//
// # Host ports
//
// Authorization, time and token custody are injected through the host
// package: Authorizer, Clock and TokenTransfer. The defaults approve every
// caller, read the system clock and move no tokens.
package subvault
