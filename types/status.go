// Package types defines core domain types for the oneclick provisioning
// runtime: the provisioner contract shapes (validated input, plan, result),
// provider identifiers and typed configs, and the persisted job record.
package types

// Status is the outcome status of a single provider apply, and of the
// reconciled job as a whole.
type Status string

// Status constants in increasing severity.
const (
	// StatusSuccess indicates all steps completed.
	StatusSuccess Status = "success"
	// StatusPending indicates the apply has not run yet.
	StatusPending Status = "pending"
	// StatusPartial indicates the primary identity succeeded but at least
	// one auxiliary step failed.
	StatusPartial Status = "partial"
	// StatusError indicates the primary identity step or a required
	// auxiliary step failed.
	StatusError Status = "error"
)

// Rank returns the precedence of the status for reconciliation.
// Ordering: error > partial > pending > success. The reconciled job
// status is the maximum rank across all per-provider results, so a
// single fully-failed provider is never hidden behind others' success.
func (s Status) Rank() int {
	switch s {
	case StatusError:
		return 3
	case StatusPartial:
		return 2
	case StatusPending:
		return 1
	case StatusSuccess:
		return 0
	default:
		// Unknown statuses reconcile as errors rather than disappearing.
		return 3
	}
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusPending, StatusPartial, StatusError:
		return true
	}
	return false
}
