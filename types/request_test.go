package types

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func validEmployee() Employee {
	return Employee{FullName: "Jane Doe", WorkEmail: "jane@example.com"}
}

func TestRequestValidate_EmptySelection(t *testing.T) {
	req := &Request{Employee: validEmployee()}
	if err := req.Validate(); err == nil {
		t.Fatal("a request with zero selected applications must be rejected")
	}
}

func TestRequestValidate_MissingEmployee(t *testing.T) {
	req := &Request{
		Employee: Employee{FullName: "Jane Doe"},
		Apps:     []ProviderConfig{GoogleWorkspaceConfig{}},
	}
	if err := req.Validate(); err == nil {
		t.Fatal("missing workEmail must be rejected")
	}
}

func TestRequestValidate_DuplicateProvider(t *testing.T) {
	req := &Request{
		Employee: validEmployee(),
		Apps: []ProviderConfig{
			SlackConfig{},
			SlackConfig{UserRole: "admin"},
		},
	}
	if err := req.Validate(); err == nil {
		t.Fatal("duplicate provider selections must be rejected")
	}
}

func TestDecodeApps_TypedUnion(t *testing.T) {
	raw := map[string]any{
		"google-workspace": map[string]any{
			"primaryOrgUnit": "/Developers",
			"licenseSku":     "Google-Apps-For-Business",
		},
		"slack": map[string]any{
			"defaultChannels": []any{"general", "engineering"},
		},
	}

	apps, err := DecodeApps(raw)
	if err != nil {
		t.Fatalf("DecodeApps: %v", err)
	}
	if len(apps) != 2 {
		t.Fatalf("expected 2 configs, got %d", len(apps))
	}

	// Keys are sorted, so google-workspace comes first.
	gw, ok := apps[0].(GoogleWorkspaceConfig)
	if !ok {
		t.Fatalf("expected GoogleWorkspaceConfig, got %T", apps[0])
	}
	if gw.PrimaryOrgUnit != "/Developers" {
		t.Errorf("PrimaryOrgUnit = %q", gw.PrimaryOrgUnit)
	}

	sl, ok := apps[1].(SlackConfig)
	if !ok {
		t.Fatalf("expected SlackConfig, got %T", apps[1])
	}
	if diff := cmp.Diff([]string{"general", "engineering"}, sl.DefaultChannels); diff != "" {
		t.Errorf("DefaultChannels mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeApps_UnknownProvider(t *testing.T) {
	_, err := DecodeApps(map[string]any{"hubspot": map[string]any{}})
	if err == nil {
		t.Fatal("unknown provider keys must be rejected, not dropped")
	}
}

func TestDecodeApps_UnknownField(t *testing.T) {
	_, err := DecodeApps(map[string]any{
		"zoom": map[string]any{"licenseTier": "pro"},
	})
	if err == nil {
		t.Fatal("unknown config fields must be rejected")
	}
}

func TestRequest_JSONRoundTrip(t *testing.T) {
	req := Request{
		Employee: validEmployee(),
		Apps: []ProviderConfig{
			Microsoft365Config{UsageLocation: "GB", LicenseSKUs: []string{"O365_BUSINESS"}},
			ZoomConfig{LicenseType: "business", AddOns: []string{"webinar"}},
		},
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Request
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Employee != req.Employee {
		t.Errorf("employee mismatch: %+v", got.Employee)
	}
	if len(got.Apps) != 2 {
		t.Fatalf("expected 2 apps after round trip, got %d", len(got.Apps))
	}
	ms := got.App(ProviderMicrosoft365)
	if ms == nil {
		t.Fatal("microsoft-365 config lost in round trip")
	}
	if diff := cmp.Diff(req.App(ProviderMicrosoft365), ms); diff != "" {
		t.Errorf("microsoft-365 config mismatch (-want +got):\n%s", diff)
	}
}
