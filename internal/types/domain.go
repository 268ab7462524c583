package types

import (
	"time"
)

// Account is a managed publishing account. Accounts are owned and mutated by
// external account-management tooling; the scheduling core only reads them.
type Account struct {
	ID       string   `json:"id" db:"id"`
	Name     string   `json:"name" db:"name"`
	Platform Platform `json:"platform" db:"platform"`

	// Scheduling configuration. The posting window bounds are local
	// times-of-day ("HH:MM") interpreted in Timezone.
	Timezone           string `json:"timezone" db:"timezone"`
	PostingWindowStart string `json:"posting_window_start" db:"posting_window_start"`
	PostingWindowEnd   string `json:"posting_window_end" db:"posting_window_end"`
	MinPostsPerDay     int    `json:"min_posts_per_day" db:"min_posts_per_day"`
	MaxPostsPerDay     int    `json:"max_posts_per_day" db:"max_posts_per_day"`

	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks the scheduling configuration of the account. It returns a
// validation AppError for the first problem found. A failing account is
// skipped by the planner, never fatal to a planning cycle.
func (a *Account) Validate() error {
	if a.Timezone == "" {
		return NewAppError(ErrCodeValidationMissingField, "account timezone is required", nil)
	}
	if _, err := time.LoadLocation(a.Timezone); err != nil {
		return NewAppError(ErrCodeValidationInvalidTimezone, "unknown IANA timezone "+a.Timezone, err)
	}
	if _, err := ParseTimeOfDay(a.PostingWindowStart); err != nil {
		return err
	}
	if _, err := ParseTimeOfDay(a.PostingWindowEnd); err != nil {
		return err
	}
	if a.MinPostsPerDay < 0 || a.MaxPostsPerDay < 0 || a.MinPostsPerDay > a.MaxPostsPerDay {
		return NewAppError(ErrCodeValidationInvalidPostRange,
			"posts-per-day bounds must satisfy 0 <= min <= max", nil)
	}
	if a.Platform != "" && !a.Platform.Valid() {
		return NewAppError(ErrCodeValidationInvalidPlatform, "unsupported platform "+string(a.Platform), nil)
	}
	return nil
}

// Job is a durable record of a single scheduled posting event.
//
// ScheduledFor is an absolute UTC instant and is immutable after creation.
// Status moves forward only, per the transitions defined on JobStatus.
// The content fields (Idea, Scripts, Assets, FinalVideoURL, PlatformMediaID,
// Analytics) are populated by downstream pipeline stages; the scheduling core
// writes only Status and Error.
type Job struct {
	ID           string    `json:"id" db:"id"`
	AccountID    string    `json:"account_id" db:"account_id"`
	ScheduledFor time.Time `json:"scheduled_for" db:"scheduled_for"`
	Status       JobStatus `json:"status" db:"status"`

	Idea            Document `json:"idea,omitempty" db:"idea"`
	Scripts         Document `json:"scripts,omitempty" db:"scripts"`
	Assets          Document `json:"assets,omitempty" db:"assets"`
	FinalVideoURL   *string  `json:"final_video_url,omitempty" db:"final_video_url"`
	PlatformMediaID *string  `json:"platform_media_id,omitempty" db:"platform_media_id"`
	Error           *string  `json:"error,omitempty" db:"error"`
	Analytics       Document `json:"analytics,omitempty" db:"analytics"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreateJobInput is the input for creating a job record. Status is always
// PENDING at creation; it is not a caller choice.
type CreateJobInput struct {
	AccountID    string    `json:"account_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// JobUpdate is a partial update applied to a job record. Nil fields are left
// unchanged. A non-nil Status is subject to the lifecycle transition rules.
type JobUpdate struct {
	Status          *JobStatus `json:"status,omitempty"`
	Error           *string    `json:"error,omitempty"`
	Idea            Document   `json:"idea,omitempty"`
	Scripts         Document   `json:"scripts,omitempty"`
	Assets          Document   `json:"assets,omitempty"`
	FinalVideoURL   *string    `json:"final_video_url,omitempty"`
	PlatformMediaID *string    `json:"platform_media_id,omitempty"`
	Analytics       Document   `json:"analytics,omitempty"`
}

// AccountPlan is the per-account breakdown inside a PlanSummary.
type AccountPlan struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Jobs      int    `json:"jobs"`
}

// PlanFailure records a single account whose planning failed. Per-account
// failures never abort the remaining accounts; they are surfaced here.
type PlanFailure struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Error     string `json:"error"`
}

// PlanSummary is the structured result of one planning run. Callers always
// receive a summary distinguishing successes from failures per account; a
// partial success is never disguised as a total success.
type PlanSummary struct {
	Date        string        `json:"date"`
	TotalJobs   int           `json:"total_jobs"`
	TotalQueued int           `json:"total_queued"`
	Accounts    []AccountPlan `json:"accounts"`
	Failures    []PlanFailure `json:"failures,omitempty"`
}

// DispatchSummary is the structured result of one dispatch cycle.
// Skipped counts records another dispatcher instance claimed first.
type DispatchSummary struct {
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}
