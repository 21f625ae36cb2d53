// Package adapter defines the notification boundary.
//
// Adapters publish job completion notifications to downstream systems
// (HR ticketing, chat, dashboards). The worker owns adapter lifecycle;
// operators provide configuration only.
package adapter

import "context"

// JobCompletedEvent is the payload published when a provisioning job
// finishes. Carries only statuses and identifiers; per-account metadata
// (credentials included) never leaves the job record.
type JobCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "job_completed"
	JobID           string `json:"job_id"`
	Attempt         int    `json:"attempt"`
	EmployeeEmail   string `json:"employee_email"`
	Overall         string `json:"overall"` // success, partial, error
	// PerApp maps provider ID to that provider's final status.
	PerApp     map[string]string `json:"per_app"`
	Timestamp  string            `json:"timestamp"` // ISO 8601
	DurationMs int64             `json:"duration_ms"`
}

// Adapter publishes job completion events to a downstream system.
// Implementations must be safe for concurrent use.
type Adapter interface {
	// Publish sends a job completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *JobCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
