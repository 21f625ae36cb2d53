package cmd

import (
	"strings"
	"testing"

	"github.com/mfellsbbtv/oneclick-provisioner/cli/config"
	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

func TestValidateRequest_AllValid(t *testing.T) {
	registry, err := buildRegistry(fullProvidersConfig())
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}

	req := &types.Request{
		Employee: types.Employee{FullName: "Jane Doe", WorkEmail: "jane.doe@example.com"},
		Apps: []types.ProviderConfig{
			types.SlackConfig{},
			types.ZoomConfig{},
		},
	}

	results := validateRequest(registry, req)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, res := range results {
		if !res.Valid {
			t.Errorf("%s: expected valid, got error %q", res.Provider, res.Error)
		}
	}

	// Sorted by provider.
	if results[0].Provider != "slack" || results[1].Provider != "zoom" {
		t.Errorf("results not sorted: %v", results)
	}
}

func TestValidateRequest_InvalidInput(t *testing.T) {
	registry, err := buildRegistry(fullProvidersConfig())
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}

	req := &types.Request{
		Employee: types.Employee{FullName: "Jane Doe", WorkEmail: "not-an-email"},
		Apps:     []types.ProviderConfig{types.ZoomConfig{}},
	}

	results := validateRequest(registry, req)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Valid {
		t.Error("expected invalid result for malformed email")
	}
	if results[0].Error == "" {
		t.Error("expected error message")
	}
}

func TestValidateRequest_UnregisteredProvider(t *testing.T) {
	registry, err := buildRegistry(&config.ProvidersConfig{
		Zoom: &config.ZoomConfig{Token: "zm-test"},
	})
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}

	req := &types.Request{
		Employee: types.Employee{FullName: "Jane Doe", WorkEmail: "jane.doe@example.com"},
		Apps:     []types.ProviderConfig{types.SlackConfig{}},
	}

	results := validateRequest(registry, req)
	if results[0].Valid {
		t.Error("expected error for provider with no credentials configured")
	}
}

func TestValidateRequest_CatalogRejection(t *testing.T) {
	registry, err := buildRegistry(fullProvidersConfig())
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}

	// Catalog restricts org units; an unknown unit fails validation.
	req := &types.Request{
		Employee: types.Employee{FullName: "Jane Doe", WorkEmail: "jane.doe@example.com"},
		Apps: []types.ProviderConfig{
			types.GoogleWorkspaceConfig{PrimaryOrgUnit: "/Sales"},
		},
	}

	results := validateRequest(registry, req)
	if results[0].Valid {
		t.Error("expected invalid result for org unit outside catalog")
	}
	if !strings.Contains(results[0].Error, "org unit") {
		t.Errorf("error should name the org unit check, got %q", results[0].Error)
	}
}
