package types

import "time"

// Queue names. Each queue carries exactly one payload type.
const (
	// QueuePublish carries PublishMessage payloads scheduled by the daily
	// planner for delivery at the job's scheduled instant.
	QueuePublish = "publish"
	// QueueCreateContent carries CreateContentMessage payloads enqueued
	// immediately by the polling dispatcher.
	QueueCreateContent = "create_content"
)

// PublishMessage is the payload delivered to the publish worker when a
// deferred trigger fires. ScheduledFor is carried along so the worker can
// measure delivery lag without a store round-trip.
type PublishMessage struct {
	JobID        string    `json:"job_id"`
	AccountID    string    `json:"account_id"`
	Platform     Platform  `json:"platform"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// CreateContentMessage is the payload enqueued by the polling dispatcher for
// jobs whose scheduled instant has passed.
type CreateContentMessage struct {
	JobID     string `json:"job_id"`
	AccountID string `json:"account_id"`
}

// PublishIdempotencyKey derives the deterministic idempotency key for a job's
// publish trigger. Re-submitting the same key is a no-op at the broker, which
// is the core's sole defense against double-scheduling on planner retry.
func PublishIdempotencyKey(jobID string) string {
	return "publish-" + jobID
}

// SubmitOptions controls deferred trigger submission. Exactly one of Delay or
// FireAt should be set; when both are zero the trigger fires immediately.
type SubmitOptions struct {
	// Delay is the duration to wait before the payload becomes deliverable.
	Delay time.Duration
	// FireAt is an absolute fire instant. Takes precedence over Delay when
	// non-zero.
	FireAt time.Time
	// IdempotencyKey deduplicates submissions. Empty disables deduplication.
	IdempotencyKey string
}

// TriggerHandle describes a submitted trigger. It is ephemeral: the core
// holds no long-lived reference to the broker entry beyond the idempotency
// key recorded here.
type TriggerHandle struct {
	Queue          string    `json:"queue"`
	MessageID      string    `json:"message_id"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	FireAt         time.Time `json:"fire_at"`
	// Deduplicated is true when the broker already held an entry for the
	// idempotency key and this submission was dropped.
	Deduplicated bool `json:"deduplicated"`
}
