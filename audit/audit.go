// Package audit builds and archives provisioning audit records.
//
// Every completed job produces one Record: who was provisioned, in which
// apps, with what outcome. Result metadata is redacted before the record
// leaves this package, so generated credentials never reach storage or
// logs in plaintext.
package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// RedactedValue replaces secret metadata values in archived records.
const RedactedValue = "[REDACTED]"

// AppRecord is the audited outcome of one provider.
type AppRecord struct {
	Provider      string            `json:"provider"`
	Status        string            `json:"status"`
	ExternalIDs   map[string]string `json:"external_ids,omitempty"`
	ExternalLinks map[string]string `json:"external_links,omitempty"`
	Errors        []string          `json:"errors,omitempty"`
	Warnings      []string          `json:"warnings,omitempty"`
	// Metadata is the provider's result metadata with secret keys
	// redacted.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Record is one archived provisioning job.
type Record struct {
	JobID         string      `json:"job_id"`
	Attempt       int         `json:"attempt"`
	EmployeeEmail string      `json:"employee_email"`
	EmployeeName  string      `json:"employee_name"`
	Overall       string      `json:"overall"`
	Apps          []AppRecord `json:"apps"`
	DurationMs    int64       `json:"duration_ms"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Archiver persists audit records.
type Archiver interface {
	// Archive writes one record. Must respect context cancellation.
	Archive(ctx context.Context, rec *Record) error

	// Close releases archiver resources.
	Close() error
}

// NewRecord builds an audit record from a finished job. Metadata is
// redacted here; callers receive a record that is safe to store and
// display.
func NewRecord(job *types.Job, outcome *types.JobOutcome) *Record {
	rec := &Record{
		JobID:         job.ID,
		Attempt:       job.Attempt,
		EmployeeEmail: job.Request.Employee.WorkEmail,
		EmployeeName:  job.Request.Employee.FullName,
		Timestamp:     time.Now().UTC(),
	}
	if outcome == nil {
		rec.Overall = string(types.StatusError)
		return rec
	}

	rec.Overall = string(outcome.Overall)
	rec.DurationMs = outcome.Duration.Milliseconds()
	for id, res := range outcome.PerApp {
		if res == nil {
			rec.Apps = append(rec.Apps, AppRecord{
				Provider: string(id),
				Status:   string(types.StatusError),
			})
			continue
		}
		rec.Apps = append(rec.Apps, AppRecord{
			Provider:      string(id),
			Status:        string(res.Status),
			ExternalIDs:   res.ExternalIDs,
			ExternalLinks: res.ExternalLinks,
			Errors:        res.Errors,
			Warnings:      res.Warnings,
			Metadata:      Redact(res.Metadata),
		})
	}
	// Map iteration order is random; keep records diffable.
	sort.Slice(rec.Apps, func(i, j int) bool {
		return rec.Apps[i].Provider < rec.Apps[j].Provider
	})
	return rec
}

// Redact returns a copy of metadata with secret values replaced. The
// input map is never modified. Returns nil for empty input.
func Redact(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if types.IsSecretKey(k) {
			out[k] = RedactedValue
			continue
		}
		out[k] = v
	}
	return out
}

// MemoryArchiver stores records in memory. For tests and local
// single-node runs.
type MemoryArchiver struct {
	mu      sync.Mutex
	records []*Record
}

// NewMemoryArchiver creates an empty in-memory archiver.
func NewMemoryArchiver() *MemoryArchiver {
	return &MemoryArchiver{}
}

// Archive appends the record.
func (a *MemoryArchiver) Archive(_ context.Context, rec *Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

// Records returns a snapshot of archived records in arrival order.
func (a *MemoryArchiver) Records() []*Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Record, len(a.records))
	copy(out, a.records)
	return out
}

// Close is a no-op.
func (a *MemoryArchiver) Close() error { return nil }

var _ Archiver = (*MemoryArchiver)(nil)
