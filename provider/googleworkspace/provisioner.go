// Package googleworkspace provisions Google Workspace accounts through
// the Admin SDK Directory and Licensing APIs.
//
// Defaults applied at validation (part of the adapter contract):
//   - primaryOrgUnit: "/"
//   - passwordMode:   "auto" (generated, change forced at first login)
//   - licenseSku:     "Google-Apps-For-Business"
package googleworkspace

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

// Documented defaults.
const (
	DefaultOrgUnit    = "/"
	DefaultLicenseSku = "Google-Apps-For-Business"

	// PasswordModeAuto generates a credential; PasswordModeCustom uses
	// the operator-supplied one.
	PasswordModeAuto   = "auto"
	PasswordModeCustom = "custom"

	// minCustomPasswordLength is the floor for operator-supplied
	// passwords. Generated ones follow the stricter provider policy.
	minCustomPasswordLength = 8

	generatedPasswordLength = 16

	estimatedApplyTime = 30 * time.Second
)

// Input is what the orchestrator hands to Validate.
type Input struct {
	Employee types.Employee
	Config   types.GoogleWorkspaceConfig
}

// Catalog holds the injected static tables the adapter validates
// against. Empty slices disable the corresponding membership check.
type Catalog struct {
	// OrgUnits are the allowed org unit paths.
	OrgUnits []string
	// LicenseSKUs are the known license SKUs.
	LicenseSKUs []string
}

// Provisioner implements the provider contract for Google Workspace.
type Provisioner struct {
	dir     DirectoryClient
	catalog Catalog
}

// New creates a Google Workspace provisioner around an authenticated
// directory client.
func New(dir DirectoryClient, catalog Catalog) (*Provisioner, error) {
	if dir == nil {
		return nil, errors.New("googleworkspace: directory client is required")
	}
	return &Provisioner{dir: dir, catalog: catalog}, nil
}

// Validate normalizes the input and applies documented defaults.
// No vendor calls; catalog membership checks are local lookups.
func (p *Provisioner) Validate(raw any) (*types.ValidatedInput, error) {
	in, ok := raw.(Input)
	if !ok {
		return nil, provider.NewValidationError(types.ProviderGoogleWorkspace, "unexpected input type %T", raw)
	}

	if in.Employee.FullName == "" || in.Employee.WorkEmail == "" {
		return nil, provider.NewValidationError(types.ProviderGoogleWorkspace, "full name and work email are required")
	}
	if !provider.ValidEmail(in.Employee.WorkEmail) {
		return nil, provider.NewValidationError(types.ProviderGoogleWorkspace, "invalid email format: %q", in.Employee.WorkEmail)
	}

	cfg := in.Config
	if cfg.PrimaryOrgUnit == "" {
		cfg.PrimaryOrgUnit = DefaultOrgUnit
	}
	if cfg.PasswordMode == "" {
		cfg.PasswordMode = PasswordModeAuto
	}
	if cfg.LicenseSku == "" {
		cfg.LicenseSku = DefaultLicenseSku
	}

	switch cfg.PasswordMode {
	case PasswordModeAuto:
		if cfg.CustomPassword != "" {
			return nil, provider.NewValidationError(types.ProviderGoogleWorkspace,
				"customPassword is only valid with passwordMode %q", PasswordModeCustom)
		}
	case PasswordModeCustom:
		if cfg.CustomPassword == "" {
			return nil, provider.NewValidationError(types.ProviderGoogleWorkspace,
				"passwordMode %q requires customPassword", PasswordModeCustom)
		}
		if len(cfg.CustomPassword) < minCustomPasswordLength {
			return nil, provider.NewValidationError(types.ProviderGoogleWorkspace,
				"customPassword must be at least %d characters", minCustomPasswordLength)
		}
	default:
		return nil, provider.NewValidationError(types.ProviderGoogleWorkspace,
			"passwordMode must be %q or %q, got %q", PasswordModeAuto, PasswordModeCustom, cfg.PasswordMode)
	}

	if len(p.catalog.OrgUnits) > 0 && !slices.Contains(p.catalog.OrgUnits, cfg.PrimaryOrgUnit) {
		return nil, provider.NewValidationError(types.ProviderGoogleWorkspace,
			"unknown org unit %q", cfg.PrimaryOrgUnit)
	}
	if len(p.catalog.LicenseSKUs) > 0 && !slices.Contains(p.catalog.LicenseSKUs, cfg.LicenseSku) {
		return nil, provider.NewValidationError(types.ProviderGoogleWorkspace,
			"unknown license SKU %q", cfg.LicenseSku)
	}

	return &types.ValidatedInput{
		Provider: types.ProviderGoogleWorkspace,
		Data: map[string]any{
			"fullName":                  in.Employee.FullName,
			"workEmail":                 in.Employee.WorkEmail,
			"primaryOrgUnit":            cfg.PrimaryOrgUnit,
			"passwordMode":              cfg.PasswordMode,
			"customPassword":            cfg.CustomPassword,
			"changePasswordAtNextLogin": cfg.ChangePasswordAtNextLogin,
			"licenseSku":                cfg.LicenseSku,
		},
	}, nil
}

// Plan issues one existence read and declares create-or-update for the
// user plus a license assign. A failed read plans a create: the apply
// re-checks before mutating, so an optimistic plan is safe.
func (p *Provisioner) Plan(ctx context.Context, input *types.ValidatedInput) (*types.Plan, error) {
	email := provider.DataString(input.Data, "workEmail")
	orgUnit := provider.DataString(input.Data, "primaryOrgUnit")
	sku := provider.DataString(input.Data, "licenseSku")

	userExists := false
	if _, err := p.dir.GetUser(ctx, email); err == nil {
		userExists = true
	}

	actions := make([]types.Action, 0, 2)
	if userExists {
		actions = append(actions, types.Action{
			Type:     types.ActionUpdate,
			Resource: "user",
			Details:  fmt.Sprintf("Update existing user %s", email),
			Required: true,
		})
	} else {
		actions = append(actions, types.Action{
			Type:     types.ActionCreate,
			Resource: "user",
			Details:  fmt.Sprintf("Create user %s in org unit %s", email, orgUnit),
			Required: true,
		})
	}
	actions = append(actions, types.Action{
		Type:     types.ActionAssign,
		Resource: "license",
		Details:  fmt.Sprintf("Assign %s license to %s", sku, email),
	})

	return &types.Plan{
		Provider:      types.ProviderGoogleWorkspace,
		Actions:       actions,
		EstimatedTime: estimatedApplyTime,
	}, nil
}

// Apply resolves or creates the user, then assigns the license. The
// user step is fatal on failure; a license failure downgrades the
// result to partial.
func (p *Provisioner) Apply(ctx context.Context, input *types.ValidatedInput) (*types.Result, error) {
	email := provider.DataString(input.Data, "workEmail")
	orgUnit := provider.DataString(input.Data, "primaryOrgUnit")
	sku := provider.DataString(input.Data, "licenseSku")

	result := &types.Result{
		Provider:      types.ProviderGoogleWorkspace,
		ExternalIDs:   map[string]string{},
		ExternalLinks: map[string]string{},
		Metadata: map[string]any{
			"email":   email,
			"orgUnit": orgUnit,
			"license": sku,
		},
	}

	userID, created, tempPassword, err := p.ensureUser(ctx, input)
	if err != nil {
		result.Status = types.StatusError
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to provision user: %v", err))
		return result, nil
	}

	result.ExternalIDs["userId"] = userID
	result.ExternalLinks["adminConsole"] = "https://admin.google.com/ac/users/" + userID
	result.Metadata["created"] = created
	if created && tempPassword != "" {
		// Generated secret travels only in metadata; the audit layer
		// redacts it and the logger never sees result metadata.
		result.Metadata["tempPassword"] = tempPassword
	}

	if err := p.dir.AssignLicense(ctx, productID(sku), sku, email); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to assign license: %v", err))
	}

	if len(result.Errors) > 0 {
		result.Status = types.StatusPartial
	} else {
		result.Status = types.StatusSuccess
	}
	return result, nil
}

// ensureUser locates the user by email and updates it, or creates it
// when absent. Returns the vendor user ID, whether a create happened,
// and the generated password if one was produced.
func (p *Provisioner) ensureUser(ctx context.Context, input *types.ValidatedInput) (userID string, created bool, tempPassword string, err error) {
	email := provider.DataString(input.Data, "workEmail")
	given, family := provider.SplitName(provider.DataString(input.Data, "fullName"), "User")
	orgUnit := provider.DataString(input.Data, "primaryOrgUnit")

	existing, getErr := p.dir.GetUser(ctx, email)
	switch {
	case getErr == nil:
		// Update path keeps the apply idempotent: a retry after a
		// successful create lands here with the same external ID.
		updateErr := p.dir.UpdateUser(ctx, email, &UserRequest{
			Name:        UserName{GivenName: given, FamilyName: family},
			OrgUnitPath: orgUnit,
		})
		if updateErr != nil {
			return "", false, "", updateErr
		}
		return existing.ID, false, "", nil

	case errors.Is(getErr, provider.ErrNotFound):
		password, change, genErr := p.resolvePassword(input)
		if genErr != nil {
			return "", false, "", genErr
		}
		user, insertErr := p.dir.InsertUser(ctx, &UserRequest{
			PrimaryEmail:              email,
			Name:                      UserName{GivenName: given, FamilyName: family},
			Password:                  password,
			ChangePasswordAtNextLogin: change,
			OrgUnitPath:               orgUnit,
		})
		if insertErr != nil {
			return "", false, "", insertErr
		}
		generated := ""
		if provider.DataString(input.Data, "passwordMode") == PasswordModeAuto {
			generated = password
		}
		return user.ID, true, generated, nil

	default:
		// Auth or vendor failure on the existence read is fatal:
		// mutating blind here risks duplicate identities.
		return "", false, "", getErr
	}
}

// resolvePassword returns the initial password and whether a change is
// forced at next login.
func (p *Provisioner) resolvePassword(input *types.ValidatedInput) (password string, change bool, err error) {
	if provider.DataString(input.Data, "passwordMode") == PasswordModeCustom {
		return provider.DataString(input.Data, "customPassword"),
			provider.DataBool(input.Data, "changePasswordAtNextLogin"), nil
	}
	generated, err := provider.GeneratePassword(generatedPasswordLength)
	if err != nil {
		return "", false, fmt.Errorf("generate password: %w", err)
	}
	// Auto-generated credentials always force a reset.
	return generated, true, nil
}

// productID derives the Licensing API product ID from a SKU name,
// e.g. "Google-Apps-For-Business" -> "Google".
func productID(sku string) string {
	if i := strings.Index(sku, "-"); i > 0 {
		return sku[:i]
	}
	return sku
}

// Verify Provisioner implements the provider contract.
var _ provider.Provisioner = (*Provisioner)(nil)
