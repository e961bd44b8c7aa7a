// Package runner drives interval charging on a cron schedule.
//
// Each tick pages through the stored subscriptions, picks the ones that are
// due and submits them to Vault.BatchCharge in chunks. A subscription that
// fails is not retried within the tick; the next tick will find it again if
// it is still due.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/subscription"
)

// Defaults.
const (
	DefaultSchedule  = "@every 1m"
	DefaultBatchSize = 50
	DefaultPageSize  = 200
	DefaultTimeout   = 30 * time.Second
)

// Report summarizes one tick.
type Report struct {
	Scanned   int           `json:"scanned"`
	Due       int           `json:"due"`
	Batches   int           `json:"batches"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Runner schedules batch charges against a Vault.
type Runner struct {
	vault     *subvault.Vault
	cron      *cron.Cron
	logger    *slog.Logger
	schedule  string
	batchSize int
	pageSize  int
	timeout   time.Duration

	mu      sync.Mutex
	running bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithSchedule sets the cron spec. Any spec accepted by robfig/cron works,
// including descriptors such as "@every 30s".
func WithSchedule(spec string) Option {
	return func(r *Runner) { r.schedule = spec }
}

// WithBatchSize caps how many subscriptions go into one BatchCharge call.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithPageSize sets how many subscriptions are read from the store at once.
func WithPageSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// WithTimeout bounds a single tick.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// New creates a Runner for v. It does nothing until Start is called.
func New(v *subvault.Vault, opts ...Option) *Runner {
	r := &Runner{
		vault:     v,
		logger:    slog.Default(),
		schedule:  DefaultSchedule,
		batchSize: DefaultBatchSize,
		pageSize:  DefaultPageSize,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(r.logger.Handler(), slog.LevelInfo))
	r.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))
	return r
}

// Start registers the billing job and starts the scheduler.
func (r *Runner) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.tick); err != nil {
		return fmt.Errorf("runner: schedule %q: %w", r.schedule, err)
	}
	r.cron.Start()
	r.logger.Info("billing runner started",
		"schedule", r.schedule,
		"batch_size", r.batchSize,
	)
	return nil
}

// Stop stops the scheduler. The returned context is done once a tick in
// progress has finished.
func (r *Runner) Stop() context.Context {
	return r.cron.Stop()
}

func (r *Runner) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	report, err := r.RunOnce(ctx)
	if err != nil {
		r.logger.Error("billing run failed", "error", err)
		return
	}
	if report.Due == 0 {
		return
	}
	r.logger.Info("billing run completed",
		"scanned", report.Scanned,
		"due", report.Due,
		"batches", report.Batches,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"elapsed", report.Elapsed,
	)
}

// RunOnce performs a single billing pass: it collects every due
// subscription and charges them in batches.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return Report{}, errors.New("runner: a billing run is already in progress")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	start := time.Now()
	var report Report

	due, scanned, err := r.collectDue(ctx)
	report.Scanned = scanned
	report.Due = len(due)
	if err != nil {
		return report, err
	}

	for len(due) > 0 {
		n := min(r.batchSize, len(due))
		chunk := due[:n]
		due = due[n:]

		results, err := r.vault.BatchCharge(ctx, chunk)
		if err != nil {
			return report, fmt.Errorf("runner: batch charge: %w", err)
		}
		report.Batches++
		for i, res := range results {
			if res.Success {
				report.Succeeded++
				continue
			}
			report.Failed++
			r.logger.Debug("charge not applied",
				"subscription_id", chunk[i],
				"error_code", res.ErrorCode,
			)
		}
	}

	report.Elapsed = time.Since(start)
	return report, nil
}

// collectDue pages through the store by ascending ID.
func (r *Runner) collectDue(ctx context.Context) ([]subscription.ID, int, error) {
	now := r.vault.Now()
	var (
		due     []subscription.ID
		scanned int
		startID uint64
	)
	for {
		page, err := r.vault.Store().ListSubscriptions(ctx, subscription.ListOpts{
			StartID: startID,
			Limit:   r.pageSize,
		})
		if err != nil {
			return due, scanned, fmt.Errorf("runner: list subscriptions: %w", err)
		}
		for _, sub := range page {
			scanned++
			if IsDue(sub, now) {
				due = append(due, sub.ID)
			}
		}
		if len(page) < r.pageSize {
			return due, scanned, nil
		}
		startID = uint64(page[len(page)-1].ID) + 1
	}
}

// IsDue reports whether sub should be charged at ledger time now. Only
// active and grace-period subscriptions are chargeable; an unfunded one
// waits for a deposit to reactivate it.
func IsDue(sub *subscription.Subscription, now uint64) bool {
	if sub.Status != subscription.StatusActive && sub.Status != subscription.StatusGracePeriod {
		return false
	}
	info := subvault.ComputeNextChargeInfo(sub)
	return info.NextChargeTimestamp <= now && !sub.IsExpired(now)
}
