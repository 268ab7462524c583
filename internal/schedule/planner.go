package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"postpilot/internal/types"
)

// AccountSource abstracts the account reads the planner needs from the store.
type AccountSource interface {
	// ListActive returns all accounts eligible for planning.
	ListActive(ctx context.Context) ([]*types.Account, error)
	// GetByID returns a single account or a not-found AppError.
	GetByID(ctx context.Context, id string) (*types.Account, error)
}

// JobCreator abstracts job record creation.
type JobCreator interface {
	Create(ctx context.Context, input types.CreateJobInput) (*types.Job, error)
}

// DeferredSubmitter abstracts the durable delayed-delivery broker. The broker
// guarantees at-least-once delivery of the payload at or after the fire time;
// submissions carrying an already-seen idempotency key are dropped rather
// than duplicated.
type DeferredSubmitter interface {
	Submit(ctx context.Context, queue string, payload any, opts types.SubmitOptions) (*types.TriggerHandle, error)
}

// Planner is the daily planner. Once per planning cycle it decides, per
// active account, how many posting events to create and at what times within
// the account's posting window, persists them as PENDING job records, and
// submits a deferred publish trigger for each.
type Planner struct {
	accounts AccountSource
	jobs     JobCreator
	trigger  DeferredSubmitter

	defaultPlatform types.Platform
	concurrency     int
	rng             *rand.Rand
	now             func() time.Time
	logger          *slog.Logger
}

// PlannerConfig holds the dependencies and settings for creating a Planner.
type PlannerConfig struct {
	Accounts AccountSource
	Jobs     JobCreator
	Trigger  DeferredSubmitter

	// DefaultPlatform is used for accounts without an explicit platform.
	// Empty defaults to instagram.
	DefaultPlatform types.Platform
	// Concurrency bounds per-account parallelism. Values below 2 keep the
	// account loop sequential. Per-job work within one account is always
	// sequential so records are created in ascending scheduled order.
	Concurrency int
	// Rand is the random source for post counts and window sampling.
	// Nil gets a time-seeded source. Tests inject a deterministic one.
	Rand *rand.Rand
	// Now overrides the clock. Nil uses time.Now in UTC.
	Now    func() time.Time
	Logger *slog.Logger
}

// NewPlanner creates a Planner with the given configuration.
func NewPlanner(cfg PlannerConfig) *Planner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = NewRand(time.Now().UnixNano())
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	platform := cfg.DefaultPlatform
	if platform == "" {
		platform = types.PlatformInstagram
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Planner{
		accounts:        cfg.Accounts,
		jobs:            cfg.Jobs,
		trigger:         cfg.Trigger,
		defaultPlatform: platform,
		concurrency:     concurrency,
		rng:             rng,
		now:             now,
		logger:          logger,
	}
}

// PlanForDate runs one planning cycle for date's calendar day.
//
// Per-account failures (bad configuration, missing references) are isolated:
// the account is recorded under Failures and the cycle continues.
// Infrastructure failures (store or broker unreachable) abort the cycle and
// propagate, so the invoking scheduler can retry or alert. The planner itself
// retries nothing.
//
// The run is idempotent with respect to execution, not storage: re-running
// the same date creates fresh job records, but the deterministic idempotency
// key on each publish trigger prevents duplicate deliveries for jobs that
// were already scheduled.
func (p *Planner) PlanForDate(ctx context.Context, date time.Time) (*types.PlanSummary, error) {
	dateStr := date.Format("2006-01-02")
	summary := &types.PlanSummary{Date: dateStr, Accounts: []types.AccountPlan{}}

	accounts, err := p.accounts.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active accounts: %w", err)
	}

	p.logger.InfoContext(ctx, "planning cycle starting",
		"date", dateStr,
		"accounts", len(accounts),
	)

	if len(accounts) == 0 {
		p.logger.InfoContext(ctx, "no accounts to plan for", "date", dateStr)
		return summary, nil
	}

	if p.concurrency > 1 {
		if err := p.planAccountsParallel(ctx, accounts, date, summary); err != nil {
			return nil, err
		}
	} else {
		for _, account := range accounts {
			plan, err := p.planAccount(ctx, account, date)
			if err != nil {
				if isInfrastructure(err) {
					return nil, fmt.Errorf("planning account %s: %w", account.ID, err)
				}
				p.recordFailure(ctx, summary, account, err)
				continue
			}
			p.recordPlan(summary, plan)
		}
	}

	p.logger.InfoContext(ctx, "planning cycle complete",
		"date", dateStr,
		"total_jobs", summary.TotalJobs,
		"total_queued", summary.TotalQueued,
		"accounts_planned", len(summary.Accounts),
		"accounts_failed", len(summary.Failures),
	)

	return summary, nil
}

// planAccountsParallel fans the per-account work out across a bounded group.
// There is no cross-account shared state beyond the summary, which is guarded
// by a mutex. Infrastructure errors cancel the group and abort the cycle.
func (p *Planner) planAccountsParallel(ctx context.Context, accounts []*types.Account, date time.Time, summary *types.PlanSummary) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, account := range accounts {
		g.Go(func() error {
			plan, err := p.planAccount(gctx, account, date)
			if err != nil {
				if isInfrastructure(err) {
					return fmt.Errorf("planning account %s: %w", account.ID, err)
				}
				mu.Lock()
				defer mu.Unlock()
				p.recordFailure(gctx, summary, account, err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			p.recordPlan(summary, plan)
			return nil
		})
	}

	return g.Wait()
}

// accountPlan is the outcome of planning a single account.
type accountPlan struct {
	account *types.Account
	jobs    int
	queued  int
}

// planAccount plans one account: draws the post count, samples the posting
// window, and creates + schedules each job sequentially so records are
// created in ascending scheduled order.
func (p *Planner) planAccount(ctx context.Context, account *types.Account, date time.Time) (*accountPlan, error) {
	if err := account.Validate(); err != nil {
		return nil, err
	}

	n := RandomInt(p.rng, account.MinPostsPerDay, account.MaxPostsPerDay)
	if n <= 0 {
		p.logger.InfoContext(ctx, "account skipped, zero posts drawn",
			"account_id", account.ID,
			"account", account.Name,
		)
		return &accountPlan{account: account}, nil
	}

	times, err := TimesInWindow(p.rng, account.Timezone, account.PostingWindowStart, account.PostingWindowEnd, date, n)
	if err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "scheduling posts for account",
		"account_id", account.ID,
		"account", account.Name,
		"posts", n,
		"window_start", account.PostingWindowStart,
		"window_end", account.PostingWindowEnd,
		"timezone", account.Timezone,
	)

	platform := account.Platform
	if platform == "" {
		platform = p.defaultPlatform
	}

	plan := &accountPlan{account: account}
	for _, scheduledFor := range times {
		job, handle, err := p.createAndSchedule(ctx, account.ID, platform, scheduledFor)
		if err != nil {
			return nil, err
		}
		plan.jobs++
		if !handle.Deduplicated {
			plan.queued++
		}
		p.logger.InfoContext(ctx, "job scheduled",
			"job_id", job.ID,
			"account_id", account.ID,
			"scheduled_for", scheduledFor.Format(time.RFC3339),
			"fire_at", handle.FireAt.Format(time.RFC3339),
			"deduplicated", handle.Deduplicated,
		)
	}

	return plan, nil
}

// createAndSchedule persists one PENDING job record and submits its deferred
// publish trigger. The trigger's idempotency key is derived from the job ID,
// so a retried submission for the same record cannot double-deliver.
func (p *Planner) createAndSchedule(ctx context.Context, accountID string, platform types.Platform, scheduledFor time.Time) (*types.Job, *types.TriggerHandle, error) {
	job, err := p.jobs.Create(ctx, types.CreateJobInput{
		AccountID:    accountID,
		ScheduledFor: scheduledFor,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating job record: %w", err)
	}

	delay := scheduledFor.Sub(p.now())
	if delay < 0 {
		delay = 0
	}

	payload := types.PublishMessage{
		JobID:        job.ID,
		AccountID:    accountID,
		Platform:     platform,
		ScheduledFor: scheduledFor,
	}

	handle, err := p.trigger.Submit(ctx, types.QueuePublish, payload, types.SubmitOptions{
		Delay:          delay,
		IdempotencyKey: types.PublishIdempotencyKey(job.ID),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("submitting publish trigger for job %s: %w", job.ID, err)
	}

	return job, handle, nil
}

// ScheduleImmediate creates a job record scheduled for now and submits its
// publish trigger with zero delay. Used by the ops API for one-off manual
// publishes.
func (p *Planner) ScheduleImmediate(ctx context.Context, accountID string, platform types.Platform) (*types.Job, error) {
	account, err := p.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if platform == "" {
		platform = account.Platform
	}
	if platform == "" {
		platform = p.defaultPlatform
	}
	if !platform.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPlatform,
			"unsupported platform "+string(platform), nil)
	}

	job, handle, err := p.createAndSchedule(ctx, account.ID, platform, p.now())
	if err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "immediate publish scheduled",
		"job_id", job.ID,
		"account_id", account.ID,
		"platform", string(platform),
		"deduplicated", handle.Deduplicated,
	)

	return job, nil
}

func (p *Planner) recordPlan(summary *types.PlanSummary, plan *accountPlan) {
	if plan.jobs == 0 {
		return
	}
	summary.TotalJobs += plan.jobs
	summary.TotalQueued += plan.queued
	summary.Accounts = append(summary.Accounts, types.AccountPlan{
		AccountID: plan.account.ID,
		Name:      plan.account.Name,
		Jobs:      plan.jobs,
	})
}

func (p *Planner) recordFailure(ctx context.Context, summary *types.PlanSummary, account *types.Account, err error) {
	p.logger.ErrorContext(ctx, "account planning failed",
		"account_id", account.ID,
		"account", account.Name,
		"error", err,
	)
	summary.Failures = append(summary.Failures, types.PlanFailure{
		AccountID: account.ID,
		Name:      account.Name,
		Error:     err.Error(),
	})
}

// isInfrastructure reports whether err represents a store or broker outage,
// which is fatal to the whole cycle rather than to a single account.
func isInfrastructure(err error) bool {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Code.IsInfrastructure()
	}
	// Errors that never went through the taxonomy come from collaborator
	// clients themselves; treat them as infrastructure.
	return true
}
