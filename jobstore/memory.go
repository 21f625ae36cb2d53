package jobstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// MemoryStore implements Store in memory, for tests and one-shot CLI
// runs that need no persistence.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*types.Job
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*types.Job),
		now:  time.Now,
	}
}

// Create persists a new pending job.
func (s *MemoryStore) Create(ctx context.Context, job *types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.ID = uuid.New().String()
	job.Status = types.JobPending
	job.Attempt = 0
	job.CreatedAt = s.now().UTC()
	job.UpdatedAt = job.CreatedAt

	stored := *job
	s.jobs[job.ID] = &stored
	return nil
}

// Get returns the job by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *job
	return &copied, nil
}

// List returns jobs newest first, narrowed by the filter.
func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]types.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[filter.Offset:]
	}
	if filter.Limit > 0 && len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}
	return jobs, nil
}

// MarkRunning transitions the job to running and bumps the attempt
// counter.
func (s *MemoryStore) MarkRunning(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.Status = types.JobRunning
	job.Attempt++
	job.UpdatedAt = s.now().UTC()
	return nil
}

// Complete records the outcome and the terminal status.
func (s *MemoryStore) Complete(ctx context.Context, id string, status types.JobStatus, outcome *types.JobOutcome, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.Status = status
	job.Outcome = outcome
	job.Error = errMsg
	job.UpdatedAt = s.now().UTC()
	return nil
}

// Cancel transitions a pending job to cancelled.
func (s *MemoryStore) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != types.JobPending {
		return ErrNotPending
	}
	job.Status = types.JobCancelled
	job.UpdatedAt = s.now().UTC()
	return nil
}

// Stale returns pending jobs untouched for at least the given age.
func (s *MemoryStore) Stale(ctx context.Context, age time.Duration) ([]types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().UTC().Add(-age)
	var jobs []types.Job
	for _, job := range s.jobs {
		if job.Status == types.JobPending && !job.UpdatedAt.After(cutoff) {
			jobs = append(jobs, *job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].UpdatedAt.Before(jobs[j].UpdatedAt) })
	return jobs, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Verify MemoryStore implements the store interface.
var _ Store = (*MemoryStore)(nil)
