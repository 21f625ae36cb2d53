// Package metrics provides worker-lifetime metrics collection.
//
// The Collector accumulates counters while a worker processes jobs. It
// is a leaf package with no internal dependencies; provider and status
// labels are plain strings so nothing here imports the types package.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is an immutable point-in-time view of all collected metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after
// creation.
type Snapshot struct {
	// Job lifecycle
	JobsStarted   int64
	JobsCompleted int64
	JobsFailed    int64
	JobsRequeued  int64

	// Per-provider apply outcomes, keyed provider -> status -> count.
	ProviderOutcomes map[string]map[string]int64

	// Per-provider cumulative apply duration.
	ProviderDurations map[string]time.Duration

	// Notification adapter
	NotifySuccess int64
	NotifyFailure int64

	// Audit archive
	ArchiveSuccess int64
	ArchiveFailure int64

	// Dimensions (informational, set at construction)
	WorkerID string
	Store    string
}

// Collector accumulates metrics for one worker process.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	// Job lifecycle
	jobsStarted   int64
	jobsCompleted int64
	jobsFailed    int64
	jobsRequeued  int64

	// Per-provider
	providerOutcomes  map[string]map[string]int64
	providerDurations map[string]time.Duration

	// Notification adapter
	notifySuccess int64
	notifyFailure int64

	// Audit archive
	archiveSuccess int64
	archiveFailure int64

	// Dimensions
	workerID string
	store    string
}

// NewCollector creates a Collector with dimension labels. workerID
// identifies the worker process; store names the job store backend.
func NewCollector(workerID, store string) *Collector {
	return &Collector{
		providerOutcomes:  make(map[string]map[string]int64),
		providerDurations: make(map[string]time.Duration),
		workerID:          workerID,
		store:             store,
	}
}

// --- Job lifecycle ---

// IncJobStarted records a job moving to running.
func (c *Collector) IncJobStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.jobsStarted++
	c.mu.Unlock()
}

// IncJobCompleted records a job reaching completed.
func (c *Collector) IncJobCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.jobsCompleted++
	c.mu.Unlock()
}

// IncJobFailed records a job reaching failed.
func (c *Collector) IncJobFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.jobsFailed++
	c.mu.Unlock()
}

// IncJobRequeued records a stale job pushed back onto the queue.
func (c *Collector) IncJobRequeued() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.jobsRequeued++
	c.mu.Unlock()
}

// --- Providers ---

// RecordProviderOutcome records one provider's final apply status and
// wall-clock duration.
func (c *Collector) RecordProviderOutcome(provider, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	byStatus, ok := c.providerOutcomes[provider]
	if !ok {
		byStatus = make(map[string]int64)
		c.providerOutcomes[provider] = byStatus
	}
	byStatus[status]++
	c.providerDurations[provider] += d
	c.mu.Unlock()
}

// --- Notification adapter ---

// IncNotifySuccess records a delivered completion event.
func (c *Collector) IncNotifySuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.notifySuccess++
	c.mu.Unlock()
}

// IncNotifyFailure records a completion event that could not be delivered.
func (c *Collector) IncNotifyFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.notifyFailure++
	c.mu.Unlock()
}

// --- Audit archive ---

// IncArchiveSuccess records a persisted audit record.
func (c *Collector) IncArchiveSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.archiveSuccess++
	c.mu.Unlock()
}

// IncArchiveFailure records an audit record that could not be persisted.
func (c *Collector) IncArchiveFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.archiveFailure++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	outcomes := make(map[string]map[string]int64, len(c.providerOutcomes))
	for provider, byStatus := range c.providerOutcomes {
		copied := make(map[string]int64, len(byStatus))
		for status, n := range byStatus {
			copied[status] = n
		}
		outcomes[provider] = copied
	}
	durations := make(map[string]time.Duration, len(c.providerDurations))
	for provider, d := range c.providerDurations {
		durations[provider] = d
	}

	return Snapshot{
		JobsStarted:   c.jobsStarted,
		JobsCompleted: c.jobsCompleted,
		JobsFailed:    c.jobsFailed,
		JobsRequeued:  c.jobsRequeued,

		ProviderOutcomes:  outcomes,
		ProviderDurations: durations,

		NotifySuccess: c.notifySuccess,
		NotifyFailure: c.notifyFailure,

		ArchiveSuccess: c.archiveSuccess,
		ArchiveFailure: c.archiveFailure,

		WorkerID: c.workerID,
		Store:    c.store,
	}
}
