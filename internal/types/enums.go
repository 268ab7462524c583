package types

// JobStatus represents the lifecycle state of a publishing job.
//
// The allowed transitions form a strict forward-only state machine:
//
//	PENDING -> RUNNING -> POSTED
//	PENDING -> RUNNING -> FAILED
//	PENDING -> FAILED            (dispatch failed before execution started)
//
// POSTED and FAILED are terminal. Any other transition is a contract
// violation and must be rejected at the update boundary.
type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobPosted  JobStatus = "POSTED"
	JobFailed  JobStatus = "FAILED"
)

// jobTransitions enumerates every legal status transition.
var jobTransitions = map[JobStatus][]JobStatus{
	JobPending: {JobRunning, JobFailed},
	JobRunning: {JobPosted, JobFailed},
	JobPosted:  {},
	JobFailed:  {},
}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	_, ok := jobTransitions[s]
	return ok
}

// Terminal reports whether no further transition out of s is permitted.
func (s JobStatus) Terminal() bool {
	return s == JobPosted || s == JobFailed
}

// CanTransitionTo reports whether the transition s -> next is legal.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PredecessorsOf returns every status from which the given status may be
// reached in a single transition. The job store uses this to express
// transition checks as a conditional UPDATE (status = ANY(predecessors)).
func PredecessorsOf(next JobStatus) []JobStatus {
	var preds []JobStatus
	for from, targets := range jobTransitions {
		for _, t := range targets {
			if t == next {
				preds = append(preds, from)
			}
		}
	}
	return preds
}

// Platform identifies the publishing destination for a job.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
)

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformInstagram, PlatformYouTube, PlatformTikTok:
		return true
	}
	return false
}
