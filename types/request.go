package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Employee is the person being provisioned. Shared across all selected
// providers; per-provider settings live in the provider configs.
type Employee struct {
	// FullName is the employee's display name (required).
	FullName string `json:"fullName" yaml:"full_name"`
	// WorkEmail is the employee's primary work address (required).
	WorkEmail string `json:"workEmail" yaml:"work_email"`
	// Department is an optional org attribute forwarded to providers
	// that store it.
	Department string `json:"department,omitempty" yaml:"department,omitempty"`
	// JobTitle is an optional org attribute.
	JobTitle string `json:"jobTitle,omitempty" yaml:"job_title,omitempty"`
	// OfficeLocation is an optional org attribute.
	OfficeLocation string `json:"officeLocation,omitempty" yaml:"office_location,omitempty"`
}

// ProviderConfig is the tagged union of per-provider settings. Each
// concrete config names its provider; the orchestrator dispatches on the
// tag instead of trusting untyped maps.
type ProviderConfig interface {
	// Provider returns the union tag.
	Provider() ProviderID
}

// GoogleWorkspaceConfig holds Google Workspace provisioning settings.
type GoogleWorkspaceConfig struct {
	// PrimaryOrgUnit is the org unit path. Defaults to "/".
	PrimaryOrgUnit string `json:"primaryOrgUnit,omitempty"`
	// PasswordMode is "auto" (generated) or "custom". Defaults to "auto".
	PasswordMode string `json:"passwordMode,omitempty"`
	// CustomPassword is required when PasswordMode is "custom".
	CustomPassword string `json:"customPassword,omitempty"`
	// ChangePasswordAtNextLogin forces a reset on first login.
	ChangePasswordAtNextLogin bool `json:"changePasswordAtNextLogin,omitempty"`
	// LicenseSku is the license to assign. Defaults to
	// "Google-Apps-For-Business".
	LicenseSku string `json:"licenseSku,omitempty"`
}

// Provider returns the union tag.
func (GoogleWorkspaceConfig) Provider() ProviderID { return ProviderGoogleWorkspace }

// Microsoft365Config holds Microsoft 365 provisioning settings.
type Microsoft365Config struct {
	// UsageLocation is the ISO country code required for license
	// assignment. Defaults to "US".
	UsageLocation string `json:"usageLocation,omitempty"`
	// LicenseSKUs are SKU part numbers or IDs to assign.
	LicenseSKUs []string `json:"licenseSKUs,omitempty"`
	// ServicePlans are plan names to enable (advisory).
	ServicePlans []string `json:"servicePlans,omitempty"`
	// TempPassword overrides the generated initial password.
	TempPassword string `json:"tempPassword,omitempty"`
	// RequirePasswordChange forces a reset at first sign-in.
	// Defaults to true; only an explicit false disables it.
	RequirePasswordChange *bool `json:"requirePasswordChange,omitempty"`
}

// Provider returns the union tag.
func (Microsoft365Config) Provider() ProviderID { return ProviderMicrosoft365 }

// SlackConfig holds Slack provisioning settings.
type SlackConfig struct {
	// UserRole is "member" or "admin". Defaults to "member".
	UserRole string `json:"userRole,omitempty"`
	// DefaultChannels are channel names to invite the user to.
	// Defaults to ["general"].
	DefaultChannels []string `json:"defaultChannels,omitempty"`
	// UserGroups are user group names or handles to add the user to.
	UserGroups []string `json:"userGroups,omitempty"`
}

// Provider returns the union tag.
func (SlackConfig) Provider() ProviderID { return ProviderSlack }

// JiraConfig holds Jira provisioning settings.
type JiraConfig struct {
	// Site is the Atlassian site hostname, e.g. "acme.atlassian.net"
	// (required).
	Site string `json:"site,omitempty"`
	// ProjectAccess names project groups to grant. Defaults to
	// ["development"].
	ProjectAccess []string `json:"projectAccess,omitempty"`
	// DefaultRole is "developer", "viewer" or "admin". Defaults to
	// "developer".
	DefaultRole string `json:"defaultRole,omitempty"`
}

// Provider returns the union tag.
func (JiraConfig) Provider() ProviderID { return ProviderJira }

// ZoomConfig holds Zoom provisioning settings.
type ZoomConfig struct {
	// LicenseType is "basic", "pro" or "business". Defaults to "pro".
	LicenseType string `json:"licenseType,omitempty"`
	// AddOns are feature add-ons: webinar, cloud_recording, large_meeting.
	AddOns []string `json:"addOns,omitempty"`
}

// Provider returns the union tag.
func (ZoomConfig) Provider() ProviderID { return ProviderZoom }

// Request is one provisioning job's input: one employee plus the set of
// selected applications with their per-provider settings.
type Request struct {
	// Employee is the person being provisioned.
	Employee Employee `json:"employee"`
	// Apps are the selected providers' configs. Must be non-empty and
	// contain at most one config per provider.
	Apps []ProviderConfig `json:"-"`
}

// Validate checks structural request invariants. Per-provider field
// validation is each provisioner's job; this only guards the shapes the
// orchestrator itself depends on.
func (r *Request) Validate() error {
	if r.Employee.FullName == "" || r.Employee.WorkEmail == "" {
		return fmt.Errorf("employee fullName and workEmail are required")
	}
	if len(r.Apps) == 0 {
		return fmt.Errorf("at least one application must be selected")
	}
	seen := make(map[ProviderID]struct{}, len(r.Apps))
	for _, app := range r.Apps {
		id := app.Provider()
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate application selection: %s", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Providers returns the selected provider IDs in deterministic order.
func (r *Request) Providers() []ProviderID {
	ids := make([]ProviderID, 0, len(r.Apps))
	for _, app := range r.Apps {
		ids = append(ids, app.Provider())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// App returns the config for the given provider, or nil if not selected.
func (r *Request) App(id ProviderID) ProviderConfig {
	for _, app := range r.Apps {
		if app.Provider() == id {
			return app
		}
	}
	return nil
}

// DecodeApps converts a provider-keyed map of raw settings (as parsed
// from a request file or API payload) into the typed union. Unknown
// provider keys are rejected rather than silently dropped.
func DecodeApps(raw map[string]any) ([]ProviderConfig, error) {
	// Sort keys so decode errors and output ordering are deterministic.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	apps := make([]ProviderConfig, 0, len(keys))
	for _, key := range keys {
		cfg, err := decodeApp(ProviderID(key), raw[key])
		if err != nil {
			return nil, err
		}
		apps = append(apps, cfg)
	}
	return apps, nil
}

// decodeApp decodes one provider's raw settings into its typed config.
func decodeApp(id ProviderID, raw any) (ProviderConfig, error) {
	switch id {
	case ProviderGoogleWorkspace:
		var cfg GoogleWorkspaceConfig
		if err := reencode(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%s config: %w", id, err)
		}
		return cfg, nil
	case ProviderMicrosoft365:
		var cfg Microsoft365Config
		if err := reencode(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%s config: %w", id, err)
		}
		return cfg, nil
	case ProviderSlack:
		var cfg SlackConfig
		if err := reencode(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%s config: %w", id, err)
		}
		return cfg, nil
	case ProviderJira:
		var cfg JiraConfig
		if err := reencode(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%s config: %w", id, err)
		}
		return cfg, nil
	case ProviderZoom:
		var cfg ZoomConfig
		if err := reencode(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%s config: %w", id, err)
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", id)
	}
}

// reencode copies a loosely-typed decoded value into a typed struct via
// JSON. Unknown fields are rejected so config typos surface early.
func reencode(raw, target any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := strictUnmarshal(data, target); err != nil {
		return err
	}
	return nil
}

// strictUnmarshal unmarshals JSON rejecting unknown fields.
func strictUnmarshal(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// MarshalJSON flattens the apps union back into a provider-keyed map so
// persisted job configs round-trip through the store.
func (r Request) MarshalJSON() ([]byte, error) {
	apps := make(map[string]ProviderConfig, len(r.Apps))
	for _, app := range r.Apps {
		apps[string(app.Provider())] = app
	}
	return json.Marshal(struct {
		Employee Employee                  `json:"employee"`
		Apps     map[string]ProviderConfig `json:"apps"`
	}{Employee: r.Employee, Apps: apps})
}

// UnmarshalJSON restores the typed union from the provider-keyed form.
func (r *Request) UnmarshalJSON(data []byte) error {
	var wire struct {
		Employee Employee       `json:"employee"`
		Apps     map[string]any `json:"apps"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	apps, err := DecodeApps(wire.Apps)
	if err != nil {
		return err
	}
	r.Employee = wire.Employee
	r.Apps = apps
	return nil
}
