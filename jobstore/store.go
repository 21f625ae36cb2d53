// Package jobstore persists provisioning job records and their status
// transitions.
package jobstore

import (
	"context"
	"errors"
	"time"

	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// ErrNotFound is returned when no job exists for the given ID.
var ErrNotFound = errors.New("jobstore: job not found")

// ErrNotPending is returned when a transition requires a pending job
// and the job has already moved on.
var ErrNotPending = errors.New("jobstore: job is not pending")

// Filter narrows List results.
type Filter struct {
	// Status restricts to one lifecycle state when non-nil.
	Status *types.JobStatus
	// Limit caps the result count; zero means no cap.
	Limit int
	// Offset skips the first N records.
	Offset int
}

// Store persists job records. Implementations must be safe for
// concurrent use.
type Store interface {
	// Create persists a new pending job. It assigns the ID, attempt
	// counter, and timestamps.
	Create(ctx context.Context, job *types.Job) error
	// Get returns the job by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*types.Job, error)
	// List returns jobs newest first, narrowed by the filter.
	List(ctx context.Context, filter Filter) ([]types.Job, error)
	// MarkRunning transitions the job to running and bumps the attempt
	// counter.
	MarkRunning(ctx context.Context, id string) error
	// Complete records the outcome and the terminal status.
	Complete(ctx context.Context, id string, status types.JobStatus, outcome *types.JobOutcome, errMsg string) error
	// Cancel transitions a pending job to cancelled, or returns
	// ErrNotPending.
	Cancel(ctx context.Context, id string) error
	// Stale returns pending jobs that have not been touched for at
	// least the given age, oldest first. Used by the requeue sweep.
	Stale(ctx context.Context, age time.Duration) ([]types.Job, error)
	// Close releases the underlying resources.
	Close() error
}
