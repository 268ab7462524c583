package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"postpilot/internal/types"
)

// DispatchStore abstracts the job store operations the polling dispatcher
// needs: due-job selection, the conditional claim, and the failure write.
type DispatchStore interface {
	// FindDue returns all PENDING jobs with scheduled_for <= now, ordered
	// ascending by scheduled_for so the oldest backlog drains first.
	FindDue(ctx context.Context, now time.Time) ([]*types.Job, error)
	// UpdateIfStatus performs a compare-and-swap status transition. It
	// returns false, without error, when the job is no longer in the
	// expected status.
	UpdateIfStatus(ctx context.Context, jobID string, expected, next types.JobStatus) (bool, error)
	// Update applies a partial update, enforcing lifecycle transitions.
	Update(ctx context.Context, jobID string, update types.JobUpdate) (*types.Job, error)
}

// ImmediateSubmitter abstracts the undelayed work queue the dispatcher hands
// claimed jobs to.
type ImmediateSubmitter interface {
	SubmitImmediate(ctx context.Context, queue string, payload any) (*types.TriggerHandle, error)
}

// Dispatcher is the polling scheduling path, retained for brokers without
// native delayed delivery. It runs on a fixed interval, so a job's worst-case
// dispatch latency is the interval length. It claims each due job with a
// compare-and-swap update; a lost claim means another dispatcher instance got
// there first and is counted as skipped, not failed.
type Dispatcher struct {
	store   DispatchStore
	trigger ImmediateSubmitter
	logger  *slog.Logger
}

// DispatcherConfig holds the dependencies for creating a Dispatcher.
type DispatcherConfig struct {
	Store   DispatchStore
	Trigger ImmediateSubmitter
	Logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher with the given configuration.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:   cfg.Store,
		trigger: cfg.Trigger,
		logger:  logger,
	}
}

// DispatchDueAsOf runs one dispatch cycle against the given reference time.
//
// For each due job, oldest first: claim PENDING -> RUNNING, then enqueue a
// create-content message. Any per-record failure transitions that record to
// FAILED with the captured error and the batch continues; one record never
// halts the rest. Only the initial due-job query can fail the whole cycle.
func (d *Dispatcher) DispatchDueAsOf(ctx context.Context, now time.Time) (*types.DispatchSummary, error) {
	summary := &types.DispatchSummary{}

	due, err := d.store.FindDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("finding due jobs: %w", err)
	}
	if len(due) == 0 {
		return summary, nil
	}

	d.logger.InfoContext(ctx, "found due jobs", "count", len(due))

	for _, job := range due {
		claimed, err := d.store.UpdateIfStatus(ctx, job.ID, types.JobPending, types.JobRunning)
		if err != nil {
			d.markFailed(ctx, job, fmt.Errorf("claiming job: %w", err))
			summary.Failed++
			continue
		}
		if !claimed {
			// Another dispatcher instance won the claim.
			d.logger.InfoContext(ctx, "job already claimed, skipping",
				"job_id", job.ID,
			)
			summary.Skipped++
			continue
		}

		payload := types.CreateContentMessage{
			JobID:     job.ID,
			AccountID: job.AccountID,
		}
		if _, err := d.trigger.SubmitImmediate(ctx, types.QueueCreateContent, payload); err != nil {
			d.markFailed(ctx, job, fmt.Errorf("enqueueing job: %w", err))
			summary.Failed++
			continue
		}

		summary.Dispatched++
		d.logger.InfoContext(ctx, "job dispatched",
			"job_id", job.ID,
			"account_id", job.AccountID,
			"scheduled_for", job.ScheduledFor.Format(time.RFC3339),
		)
	}

	d.logger.InfoContext(ctx, "dispatch cycle complete",
		"dispatched", summary.Dispatched,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)

	return summary, nil
}

// markFailed transitions a job to FAILED with the captured error message.
// A record must never be left RUNNING after a failed submission, so this is
// best-effort: if the failure write itself fails there is nothing further to
// do for this record beyond logging.
func (d *Dispatcher) markFailed(ctx context.Context, job *types.Job, cause error) {
	d.logger.ErrorContext(ctx, "job dispatch failed",
		"job_id", job.ID,
		"account_id", job.AccountID,
		"error", cause,
	)

	status := types.JobFailed
	msg := cause.Error()
	if _, err := d.store.Update(ctx, job.ID, types.JobUpdate{
		Status: &status,
		Error:  &msg,
	}); err != nil {
		d.logger.ErrorContext(ctx, "failed to mark job as failed",
			"job_id", job.ID,
			"error", err,
		)
	}
}
