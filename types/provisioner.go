package types

import "time"

// ProviderID identifies a target SaaS application.
type ProviderID string

// Known provider identifiers.
const (
	ProviderGoogleWorkspace ProviderID = "google-workspace"
	ProviderMicrosoft365    ProviderID = "microsoft-365"
	ProviderSlack           ProviderID = "slack"
	ProviderJira            ProviderID = "jira"
	ProviderZoom            ProviderID = "zoom"
)

// KnownProviders lists every provider the runtime can provision, in
// deterministic order.
func KnownProviders() []ProviderID {
	return []ProviderID{
		ProviderGoogleWorkspace,
		ProviderMicrosoft365,
		ProviderSlack,
		ProviderJira,
		ProviderZoom,
	}
}

// ValidatedInput is the normalized, defaulted input a provisioner's
// Validate produced. It is the only acceptable input to Plan and Apply;
// callers never construct one directly.
type ValidatedInput struct {
	// Provider is the owning provider.
	Provider ProviderID `json:"provider"`
	// Data holds the normalized fields, with documented defaults applied.
	Data map[string]any `json:"data"`
}

// ActionType classifies a planned mutation.
type ActionType string

// Action type constants.
const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionAssign ActionType = "assign"
	ActionDelete ActionType = "delete"
)

// Action is a single declared intended mutation. Each action maps to one
// externally observable side effect on the vendor.
type Action struct {
	// Type is the mutation kind.
	Type ActionType `json:"type"`
	// Resource names the vendor resource affected (user, license, channels).
	Resource string `json:"resource"`
	// Details is a human-readable description including the resource
	// identifier, rendered verbatim to the operator.
	Details string `json:"details"`
	// Required marks steps whose failure fails the whole apply.
	// Non-required steps may fail and downgrade the result to partial.
	Required bool `json:"required,omitempty"`
}

// Plan declares the mutations an Apply would perform, computed from
// validated input and read-only vendor state. Plans are values, not
// entities: they carry no identity and are not persisted by the core.
type Plan struct {
	// Provider is the owning provider.
	Provider ProviderID `json:"provider"`
	// Actions are the intended mutations in execution order.
	Actions []Action `json:"actions"`
	// EstimatedTime is a rough duration estimate for the apply.
	EstimatedTime time.Duration `json:"estimated_time,omitempty"`
}

// Result is the authoritative record of what one provider's Apply
// achieved.
//
// Invariant: a non-empty Errors list implies Status is StatusError or
// StatusPartial. Warnings alone may coexist with StatusSuccess.
type Result struct {
	// Provider is the owning provider.
	Provider ProviderID `json:"provider"`
	// Status is the apply outcome.
	Status Status `json:"status"`
	// ExternalIDs are vendor-side identifiers for created/located
	// resources. Keys are stable across repeated applies of the same
	// validated input so retries can detect existing resources.
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
	// ExternalLinks are operator-facing URLs into the vendor console.
	ExternalLinks map[string]string `json:"external_links,omitempty"`
	// Errors describe failed steps.
	Errors []string `json:"errors,omitempty"`
	// Warnings describe advisory-step failures and degraded behavior.
	Warnings []string `json:"warnings,omitempty"`
	// Metadata carries provider-specific payload, including generated
	// credentials. Treated as sensitive: the audit layer redacts secret
	// keys before any write.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HasSecrets reports whether the result metadata contains keys that must
// be redacted before logging or archival.
func (r *Result) HasSecrets() bool {
	if r == nil {
		return false
	}
	for key := range r.Metadata {
		if IsSecretKey(key) {
			return true
		}
	}
	return false
}

// secretKeys are metadata keys holding credentials. Matched exactly,
// case-sensitive, because adapters control these names.
var secretKeys = map[string]struct{}{
	"tempPassword":    {},
	"password":        {},
	"initialPassword": {},
	"secret":          {},
	"token":           {},
}

// IsSecretKey reports whether a metadata key carries a credential.
func IsSecretKey(key string) bool {
	_, ok := secretKeys[key]
	return ok
}
