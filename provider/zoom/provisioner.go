// Package zoom provisions Zoom accounts, sets the license tier, and
// enables feature add-ons.
//
// Defaults applied at validation (part of the adapter contract):
//   - licenseType: "pro"
//   - addOns:      []
package zoom

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mfellsbbtv/oneclick-provisioner/provider"
	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// License tiers and their Zoom user type codes.
const (
	LicenseBasic    = "basic"
	LicensePro      = "pro"
	LicenseBusiness = "business"

	DefaultLicenseType = LicensePro

	estimatedApplyTime = 15 * time.Second
)

// licenseTypeCodes maps tier names to the API's numeric user type.
// Basic is unlicensed; pro and business are licensed seats.
var licenseTypeCodes = map[string]int{
	LicenseBasic:    1,
	LicensePro:      2,
	LicenseBusiness: 2,
}

// ValidAddOns are the recognized feature add-ons.
var ValidAddOns = []string{"webinar", "cloud_recording", "large_meeting"}

// Input is what the orchestrator hands to Validate.
type Input struct {
	Employee types.Employee
	Config   types.ZoomConfig
}

// Provisioner implements the provider contract for Zoom.
type Provisioner struct {
	client Client
}

// New creates a Zoom provisioner around an authenticated client.
func New(client Client) (*Provisioner, error) {
	if client == nil {
		return nil, errors.New("zoom: client is required")
	}
	return &Provisioner{client: client}, nil
}

// Validate normalizes the input and applies documented defaults. No
// vendor calls.
func (p *Provisioner) Validate(raw any) (*types.ValidatedInput, error) {
	in, ok := raw.(Input)
	if !ok {
		return nil, provider.NewValidationError(types.ProviderZoom, "unexpected input type %T", raw)
	}

	if in.Employee.FullName == "" || in.Employee.WorkEmail == "" {
		return nil, provider.NewValidationError(types.ProviderZoom, "full name and work email are required")
	}
	if !provider.ValidEmail(in.Employee.WorkEmail) {
		return nil, provider.NewValidationError(types.ProviderZoom, "invalid email format: %q", in.Employee.WorkEmail)
	}

	cfg := in.Config
	if cfg.LicenseType == "" {
		cfg.LicenseType = DefaultLicenseType
	}
	if _, ok := licenseTypeCodes[cfg.LicenseType]; !ok {
		return nil, provider.NewValidationError(types.ProviderZoom,
			"licenseType must be %q, %q or %q, got %q", LicenseBasic, LicensePro, LicenseBusiness, cfg.LicenseType)
	}
	for _, addOn := range cfg.AddOns {
		if !slices.Contains(ValidAddOns, addOn) {
			return nil, provider.NewValidationError(types.ProviderZoom,
				"unknown add-on %q, valid: %s", addOn, strings.Join(ValidAddOns, ", "))
		}
	}

	return &types.ValidatedInput{
		Provider: types.ProviderZoom,
		Data: map[string]any{
			"fullName":    in.Employee.FullName,
			"workEmail":   in.Employee.WorkEmail,
			"licenseType": cfg.LicenseType,
			"addOns":      cfg.AddOns,
		},
	}, nil
}

// Plan issues one existence read and declares create-or-update for the
// account plus a required license assign and an advisory feature
// assign.
func (p *Provisioner) Plan(ctx context.Context, input *types.ValidatedInput) (*types.Plan, error) {
	email := provider.DataString(input.Data, "workEmail")
	license := provider.DataString(input.Data, "licenseType")
	addOns := provider.DataStrings(input.Data, "addOns")

	userExists := false
	if _, err := p.client.GetUserByEmail(ctx, email); err == nil {
		userExists = true
	}

	actions := make([]types.Action, 0, 3)
	if userExists {
		actions = append(actions, types.Action{
			Type:     types.ActionUpdate,
			Resource: "user",
			Details:  fmt.Sprintf("Update existing Zoom user %s", email),
			Required: true,
		})
	} else {
		actions = append(actions, types.Action{
			Type:     types.ActionCreate,
			Resource: "user",
			Details:  fmt.Sprintf("Create Zoom user %s", email),
			Required: true,
		})
	}
	actions = append(actions, types.Action{
		Type:     types.ActionAssign,
		Resource: "license",
		Details:  fmt.Sprintf("Set %s license for %s", license, email),
		Required: true,
	})
	if len(addOns) > 0 {
		actions = append(actions, types.Action{
			Type:     types.ActionAssign,
			Resource: "features",
			Details:  fmt.Sprintf("Enable add-ons: %s", strings.Join(addOns, ", ")),
		})
	}

	return &types.Plan{
		Provider:      types.ProviderZoom,
		Actions:       actions,
		EstimatedTime: estimatedApplyTime,
	}, nil
}

// Apply resolves or creates the account, sets the license tier, and
// enables requested add-ons. The account step is fatal; a license
// failure is a required-step error; add-on failures are warnings.
func (p *Provisioner) Apply(ctx context.Context, input *types.ValidatedInput) (*types.Result, error) {
	email := provider.DataString(input.Data, "workEmail")
	license := provider.DataString(input.Data, "licenseType")
	addOns := provider.DataStrings(input.Data, "addOns")

	result := &types.Result{
		Provider:      types.ProviderZoom,
		ExternalIDs:   map[string]string{},
		ExternalLinks: map[string]string{},
		Metadata: map[string]any{
			"email":       email,
			"licenseType": license,
			"addOns":      addOns,
		},
	}

	user, created, err := p.ensureUser(ctx, input)
	if err != nil {
		result.Status = types.StatusError
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to provision Zoom user: %v", err))
		return result, nil
	}

	result.ExternalIDs["zoomUserId"] = user.ID
	result.ExternalLinks["profile"] = "https://zoom.us/user/" + user.ID + "/profile"
	result.Metadata["created"] = created

	// A create sets the license tier in the same call; only existing
	// accounts need the separate license patch.
	if !created && user.Type != licenseTypeCodes[license] {
		if err := p.client.UpdateUser(ctx, user.ID, &UserUpdate{Type: licenseTypeCodes[license]}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to set %s license: %v", license, err))
		}
	}

	if len(addOns) > 0 {
		if err := p.client.UpdateFeatures(ctx, user.ID, featureSettings(addOns)); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Failed to enable add-ons: %v", err))
		}
	}

	switch {
	case len(result.Errors) > 0:
		result.Status = types.StatusError
	case len(result.Warnings) > 0:
		result.Status = types.StatusPartial
	default:
		result.Status = types.StatusSuccess
	}
	return result, nil
}

// ensureUser locates the account by email and renames it, or creates
// it with the requested license tier when absent.
func (p *Provisioner) ensureUser(ctx context.Context, input *types.ValidatedInput) (user *User, created bool, err error) {
	email := provider.DataString(input.Data, "workEmail")
	given, family := provider.SplitName(provider.DataString(input.Data, "fullName"), "")
	code := licenseTypeCodes[provider.DataString(input.Data, "licenseType")]

	existing, getErr := p.client.GetUserByEmail(ctx, email)
	switch {
	case getErr == nil:
		update := &UserUpdate{FirstName: given, LastName: family}
		if updateErr := p.client.UpdateUser(ctx, existing.ID, update); updateErr != nil {
			return nil, false, updateErr
		}
		return existing, false, nil

	case errors.Is(getErr, provider.ErrNotFound):
		madeUser, createErr := p.client.CreateUser(ctx, &UserCreate{
			Action: "create",
			UserInfo: UserInfo{
				Email:     email,
				FirstName: given,
				LastName:  family,
				Type:      code,
			},
		})
		if createErr != nil {
			return nil, false, createErr
		}
		return madeUser, true, nil

	default:
		return nil, false, getErr
	}
}

// featureSettings turns the add-on list into the settings payload.
func featureSettings(addOns []string) FeatureSettings {
	on := true
	var f FeatureSettings
	for _, addOn := range addOns {
		switch addOn {
		case "webinar":
			f.Webinar = &on
		case "cloud_recording":
			f.CloudRecording = &on
		case "large_meeting":
			f.LargeMeeting = &on
		}
	}
	return f
}

// Verify Provisioner implements the provider contract.
var _ provider.Provisioner = (*Provisioner)(nil)
