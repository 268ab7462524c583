package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"postpilot/internal/types"
)

// jobColumns is the canonical column list for job queries. Scan order must
// match scanJob.
const jobColumns = `id, account_id, scheduled_for, status, idea, scripts,
	assets, final_video_url, platform_media_id, error, analytics,
	created_at, updated_at`

// JobRepository provides data access for the jobs table. It is the durable
// job store behind the planner, the dispatcher, and the execution workers.
//
// Status writes are guarded at this boundary: a plain Update carrying a
// status is expressed as a conditional UPDATE restricted to the statuses the
// lifecycle permits as predecessors, and UpdateIfStatus exposes an explicit
// compare-and-swap for dispatcher claims. Illegal transitions surface as
// conflict errors, never as silent writes.
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a new JobRepository backed by the given database
// connection (pool or transaction).
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a single PENDING job record. The scheduled instant is stored
// in UTC and is immutable after creation; no update path touches it.
func (r *JobRepository) Create(ctx context.Context, input types.CreateJobInput) (*types.Job, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO jobs (id, account_id, scheduled_for, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 RETURNING `+jobColumns,
		uuid.New().String(),
		input.AccountID,
		input.ScheduledFor.UTC(),
		types.JobPending,
	)

	job, err := scanJob(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create job", err)
	}
	return job, nil
}

// CreateBatch inserts multiple PENDING job records in a single round trip
// using a pgx batch. Records come back in input order.
func (r *JobRepository) CreateBatch(ctx context.Context, inputs []types.CreateJobInput) ([]*types.Job, error) {
	if len(inputs) == 0 {
		return []*types.Job{}, nil
	}

	batch := &pgx.Batch{}
	for _, input := range inputs {
		batch.Queue(
			`INSERT INTO jobs (id, account_id, scheduled_for, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, NOW(), NOW())
			 RETURNING `+jobColumns,
			uuid.New().String(),
			input.AccountID,
			input.ScheduledFor.UTC(),
			types.JobPending,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	jobs := make([]*types.Job, 0, len(inputs))
	for range inputs {
		job, err := scanJob(results.QueryRow())
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create job batch", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

// GetByID returns a single job record. Returns a not-found AppError when no
// job exists with the given ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*types.Job, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`,
		id,
	)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundJob, "job not found: "+id, err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get job", err)
	}
	return job, nil
}

// FindDue returns all PENDING jobs whose scheduled instant has passed as of
// now, ordered ascending by scheduled_for so the oldest backlog is served
// first. Returns an empty slice when nothing is due.
func (r *JobRepository) FindDue(ctx context.Context, now time.Time) ([]*types.Job, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM jobs
		 WHERE status = $1 AND scheduled_for <= $2
		 ORDER BY scheduled_for ASC`,
		types.JobPending,
		now.UTC(),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query due jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// JobListFilter narrows a List query. Zero values mean "no constraint".
type JobListFilter struct {
	AccountID string
	Status    *types.JobStatus
	// From/To bound scheduled_for (inclusive from, exclusive to).
	From  time.Time
	To    time.Time
	Limit int
}

// List returns jobs matching the filter, ordered ascending by scheduled_for.
func (r *JobRepository) List(ctx context.Context, filter JobListFilter) ([]*types.Job, error) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.AccountID != "" {
		add("account_id = $%d", filter.AccountID)
	}
	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	}
	if !filter.From.IsZero() {
		add("scheduled_for >= $%d", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		add("scheduled_for < $%d", filter.To.UTC())
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY scheduled_for ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list jobs", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// Update applies a partial update to a job record. Nil fields are unchanged.
//
// When the update carries a status, the write is restricted to rows whose
// current status is a legal predecessor of the target, making the lifecycle
// check and the write a single atomic statement. A zero-row result is then
// disambiguated: missing row -> not found, existing row -> illegal transition
// conflict carrying the from/to pair in its details.
func (r *JobRepository) Update(ctx context.Context, jobID string, update types.JobUpdate) (*types.Job, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{jobID}

	set := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if update.Status != nil {
		if !update.Status.Valid() {
			return nil, types.NewAppError(types.ErrCodeConflictIllegalTransition,
				"unknown job status "+string(*update.Status), nil)
		}
		set("status", *update.Status)
	}
	if update.Error != nil {
		set("error", *update.Error)
	}
	if update.Idea != nil {
		set("idea", update.Idea)
	}
	if update.Scripts != nil {
		set("scripts", update.Scripts)
	}
	if update.Assets != nil {
		set("assets", update.Assets)
	}
	if update.FinalVideoURL != nil {
		set("final_video_url", *update.FinalVideoURL)
	}
	if update.PlatformMediaID != nil {
		set("platform_media_id", *update.PlatformMediaID)
	}
	if update.Analytics != nil {
		set("analytics", update.Analytics)
	}

	if len(sets) == 1 {
		// Nothing to change; return the current record.
		return r.GetByID(ctx, jobID)
	}

	where := "id = $1"
	if update.Status != nil {
		preds := types.PredecessorsOf(*update.Status)
		predStrs := make([]string, len(preds))
		for i, p := range preds {
			predStrs[i] = string(p)
		}
		args = append(args, predStrs)
		where += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}

	query := `UPDATE jobs SET ` + strings.Join(sets, ", ") +
		` WHERE ` + where +
		` RETURNING ` + jobColumns

	job, err := scanJob(r.db.QueryRow(ctx, query, args...))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update job", err)
	}

	// Zero rows: either the job does not exist or the status transition is
	// not permitted from the job's current state.
	current, getErr := r.GetByID(ctx, jobID)
	if getErr != nil {
		return nil, getErr
	}
	if update.Status == nil {
		// Status-less updates match on id alone, so a zero-row result with a
		// readable row means it vanished between the two statements.
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"update matched no rows for existing job "+jobID, nil)
	}
	return nil, types.NewAppError(types.ErrCodeConflictIllegalTransition,
		fmt.Sprintf("illegal status transition %s -> %s for job %s", current.Status, *update.Status, jobID),
		nil).WithDetails(map[string]any{
		"from": string(current.Status),
		"to":   string(*update.Status),
	})
}

// UpdateIfStatus performs an explicit compare-and-swap status transition.
// It returns false, without error, when the row exists but is no longer in
// the expected status; dispatchers treat that as "another instance already
// claimed it". A transition the lifecycle forbids is rejected up front.
func (r *JobRepository) UpdateIfStatus(ctx context.Context, jobID string, expected, next types.JobStatus) (bool, error) {
	if !expected.CanTransitionTo(next) {
		return false, types.NewAppError(types.ErrCodeConflictIllegalTransition,
			fmt.Sprintf("illegal status transition %s -> %s", expected, next), nil)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE jobs SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $2`,
		jobID,
		expected,
		next,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to transition job status", err)
	}

	return tag.RowsAffected() > 0, nil
}

// collectJobs drains rows into a slice, converting scan failures into
// AppErrors.
func collectJobs(rows pgx.Rows) ([]*types.Job, error) {
	jobs := []*types.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan job", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating jobs", err)
	}
	return jobs, nil
}

// scanJob scans one job row in jobColumns order.
func scanJob(row pgx.Row) (*types.Job, error) {
	var j types.Job
	err := row.Scan(
		&j.ID,
		&j.AccountID,
		&j.ScheduledFor,
		&j.Status,
		&j.Idea,
		&j.Scripts,
		&j.Assets,
		&j.FinalVideoURL,
		&j.PlatformMediaID,
		&j.Error,
		&j.Analytics,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.ScheduledFor = j.ScheduledFor.UTC()
	return &j, nil
}
