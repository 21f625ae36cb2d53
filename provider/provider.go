// Package provider defines the provisioner contract every vendor
// integration must satisfy, the registry the orchestrator dispatches
// through, and the classified error taxonomy shared by all adapters.
//
// The lifecycle is validate -> plan -> apply. Each phase is idempotent
// and independently retriable: validation is pure, planning is read-only
// against the vendor, and apply re-checks existence immediately before
// mutating so a retried apply converts to an update instead of creating
// a duplicate.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// Provisioner is the contract one vendor adapter implements.
type Provisioner interface {
	// Validate normalizes and defaults the raw per-provider config plus
	// employee data, rejecting structurally invalid input. It performs
	// no vendor calls; at most cheap local lookups against injected
	// catalog tables. A successful Validate is the only way to obtain a
	// ValidatedInput.
	Validate(raw any) (*types.ValidatedInput, error)

	// Plan performs read-only vendor queries (one existence check per
	// planned entity) and enumerates the mutations Apply would perform.
	// It never mutates vendor state. When the existence read fails, the
	// plan assumes the resource is absent and declares a create: a plan
	// the operator can see beats no plan at all, and Apply's own
	// read-before-write check is the real safety net.
	Plan(ctx context.Context, input *types.ValidatedInput) (*types.Plan, error)

	// Apply performs the mutations. The primary identity is resolved or
	// created first; its failure is fatal and yields a StatusError
	// result with no partial credit. Auxiliary steps run independently
	// afterwards, their failures collected as errors (required steps)
	// or warnings (advisory steps) without aborting siblings.
	Apply(ctx context.Context, input *types.ValidatedInput) (*types.Result, error)
}

// Metadata describes a registered provider for operator-facing listings.
type Metadata struct {
	// DisplayName is the human-readable provider name.
	DisplayName string
	// Description is a one-line summary of what gets provisioned.
	Description string
}

// Registry maps provider IDs to their provisioner implementations.
// Safe for concurrent use; registration normally happens once at boot.
type Registry struct {
	mu       sync.RWMutex
	backends map[types.ProviderID]Provisioner
	meta     map[types.ProviderID]Metadata
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[types.ProviderID]Provisioner),
		meta:     make(map[types.ProviderID]Metadata),
	}
}

// Register adds a provisioner under the given ID. Registering the same
// ID twice is a configuration bug and returns an error.
func (r *Registry) Register(id types.ProviderID, p Provisioner, meta Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[id]; exists {
		return fmt.Errorf("provider already registered: %s", id)
	}
	r.backends[id] = p
	r.meta[id] = meta
	return nil
}

// Get returns the provisioner for the given ID.
func (r *Registry) Get(id types.ProviderID) (Provisioner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.backends[id]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %s", id)
	}
	return p, nil
}

// Meta returns the metadata for the given ID, if registered.
func (r *Registry) Meta(id types.ProviderID) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meta[id]
	return m, ok
}

// List returns registered provider IDs in sorted order.
func (r *Registry) List() []types.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]types.ProviderID, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
