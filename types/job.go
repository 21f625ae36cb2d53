package types

import "time"

// JobStatus is the lifecycle state of a persisted provisioning job.
// Written by the worker based on the reconciled outcome, never by an
// adapter directly.
type JobStatus string

// Job status constants.
const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Terminal reports whether the job has reached a final state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobOutcome is the aggregated result of running one request through the
// orchestrator: one Result per selected provider plus the reconciled
// overall status.
type JobOutcome struct {
	// PerApp holds each provider's apply result.
	PerApp map[ProviderID]*Result `json:"per_app"`
	// Overall is the reconciled status (max by Status.Rank).
	Overall Status `json:"overall"`
	// Plans holds the pre-apply plans, keyed like PerApp. Informational;
	// plans are values and carry no identity.
	Plans map[ProviderID]*Plan `json:"plans,omitempty"`
	// Duration is the wall-clock time of the whole fan-out.
	Duration time.Duration `json:"duration"`
}

// Job is a persisted provisioning job record. The queue creates it
// before the orchestrator is invoked; the worker persists the status
// transitions.
type Job struct {
	// ID is the opaque job identifier.
	ID string `json:"id"`
	// Request is the submitted config.
	Request Request `json:"request"`
	// Status is the lifecycle state.
	Status JobStatus `json:"status"`
	// Outcome is set once the orchestrator has run.
	Outcome *JobOutcome `json:"outcome,omitempty"`
	// Error holds the failure reason for JobFailed jobs.
	Error string `json:"error,omitempty"`
	// Attempt counts delivery attempts, starting at 1.
	Attempt int `json:"attempt"`
	// CreatedAt is when the job record was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time `json:"updated_at"`
}
