// Package microsoft365 provisions Microsoft 365 accounts through the
// Graph API.
//
// Defaults applied at validation (part of the adapter contract):
//   - usageLocation:         "US" (validated against the supported set)
//   - requirePasswordChange: true
//   - tempPassword:          generated when not supplied
//
// License assignment is best-effort: SKUs that are unknown to the
// tenant or out of seats downgrade to warnings instead of failing the
// apply, so a seat shortage never blocks the account itself.
package microsoft365

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mfellsbbtv/oneclick-provisioner/provider"
	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// DefaultUsageLocation is applied when no usage location is supplied.
const DefaultUsageLocation = "US"

// ValidUsageLocations are the tenant's supported license regions.
var ValidUsageLocations = []string{"US", "GB", "CA", "AU", "DE", "FR", "JP", "IN"}

const (
	generatedPasswordLength = 16
	estimatedApplyTime      = 45 * time.Second
)

// Input is what the orchestrator hands to Validate.
type Input struct {
	Employee types.Employee
	Config   types.Microsoft365Config
}

// Provisioner implements the provider contract for Microsoft 365.
type Provisioner struct {
	graph GraphClient
}

// New creates a Microsoft 365 provisioner around an authenticated Graph
// client.
func New(graph GraphClient) (*Provisioner, error) {
	if graph == nil {
		return nil, errors.New("microsoft365: graph client is required")
	}
	return &Provisioner{graph: graph}, nil
}

// Validate normalizes the input and applies documented defaults,
// generating the initial credential when none is supplied.
func (p *Provisioner) Validate(raw any) (*types.ValidatedInput, error) {
	in, ok := raw.(Input)
	if !ok {
		return nil, provider.NewValidationError(types.ProviderMicrosoft365, "unexpected input type %T", raw)
	}

	if in.Employee.FullName == "" || in.Employee.WorkEmail == "" {
		return nil, provider.NewValidationError(types.ProviderMicrosoft365, "full name and work email are required")
	}
	if !provider.ValidEmail(in.Employee.WorkEmail) {
		return nil, provider.NewValidationError(types.ProviderMicrosoft365, "invalid email format: %q", in.Employee.WorkEmail)
	}

	cfg := in.Config
	if cfg.UsageLocation == "" {
		cfg.UsageLocation = DefaultUsageLocation
	}
	if !slices.Contains(ValidUsageLocations, cfg.UsageLocation) {
		return nil, provider.NewValidationError(types.ProviderMicrosoft365,
			"invalid usage location %q, must be one of: %s", cfg.UsageLocation, strings.Join(ValidUsageLocations, ", "))
	}

	// Usage location is required by Graph before any license can be
	// assigned, hence it is normalized here rather than at apply time.
	requireChange := true
	if cfg.RequirePasswordChange != nil {
		requireChange = *cfg.RequirePasswordChange
	}

	tempPassword := cfg.TempPassword
	generated := false
	if tempPassword == "" {
		pw, err := provider.GeneratePassword(generatedPasswordLength)
		if err != nil {
			return nil, fmt.Errorf("generate password: %w", err)
		}
		tempPassword = pw
		generated = true
	}

	return &types.ValidatedInput{
		Provider: types.ProviderMicrosoft365,
		Data: map[string]any{
			"fullName":              in.Employee.FullName,
			"workEmail":             in.Employee.WorkEmail,
			"department":            in.Employee.Department,
			"jobTitle":              in.Employee.JobTitle,
			"officeLocation":        in.Employee.OfficeLocation,
			"usageLocation":         cfg.UsageLocation,
			"licenseSKUs":           cfg.LicenseSKUs,
			"servicePlans":          cfg.ServicePlans,
			"tempPassword":          tempPassword,
			"passwordGenerated":     generated,
			"requirePasswordChange": requireChange,
		},
	}, nil
}

// Plan issues one existence read and enumerates the user action plus
// one assign per license SKU and an advisory service-plan action.
func (p *Provisioner) Plan(ctx context.Context, input *types.ValidatedInput) (*types.Plan, error) {
	email := provider.DataString(input.Data, "workEmail")
	skus := provider.DataStrings(input.Data, "licenseSKUs")
	plans := provider.DataStrings(input.Data, "servicePlans")

	userExists := false
	if _, err := p.graph.FindUserByEmail(ctx, email); err == nil {
		userExists = true
	}

	actions := make([]types.Action, 0, len(skus)+2)
	if userExists {
		actions = append(actions, types.Action{
			Type:     types.ActionUpdate,
			Resource: "user",
			Details:  fmt.Sprintf("Update existing Microsoft 365 user %s", email),
			Required: true,
		})
	} else {
		actions = append(actions, types.Action{
			Type:     types.ActionCreate,
			Resource: "user",
			Details:  fmt.Sprintf("Create Microsoft 365 user %s", email),
			Required: true,
		})
	}
	for _, sku := range skus {
		actions = append(actions, types.Action{
			Type:     types.ActionAssign,
			Resource: "license",
			Details:  fmt.Sprintf("Assign license %s to %s", sku, email),
			Required: true,
		})
	}
	if len(plans) > 0 {
		actions = append(actions, types.Action{
			Type:     types.ActionAssign,
			Resource: "service_plans",
			Details:  fmt.Sprintf("Enable service plans: %s", strings.Join(plans, ", ")),
		})
	}

	return &types.Plan{
		Provider:      types.ProviderMicrosoft365,
		Actions:       actions,
		EstimatedTime: estimatedApplyTime,
	}, nil
}

// Apply resolves or creates the user, then runs license assignment and
// service-plan enablement concurrently. The user step is fatal; license
// API failures are required-step errors, seat shortages and unknown
// SKUs downgrade to warnings, service plans are advisory.
func (p *Provisioner) Apply(ctx context.Context, input *types.ValidatedInput) (*types.Result, error) {
	email := provider.DataString(input.Data, "workEmail")

	result := &types.Result{
		Provider:      types.ProviderMicrosoft365,
		ExternalIDs:   map[string]string{},
		ExternalLinks: map[string]string{},
		Metadata: map[string]any{
			"email":         email,
			"usageLocation": provider.DataString(input.Data, "usageLocation"),
			"licenses":      provider.DataStrings(input.Data, "licenseSKUs"),
		},
	}

	user, created, err := p.ensureUser(ctx, input)
	if err != nil {
		result.Status = types.StatusError
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to provision Microsoft 365 user: %v", err))
		return result, nil
	}

	result.ExternalIDs["userId"] = user.ID
	result.ExternalIDs["userPrincipalName"] = user.UserPrincipalName
	result.ExternalLinks["profile"] = "https://portal.office.com/adminportal/home#/users/:/UserDetails/" + user.ID
	result.ExternalLinks["outlook"] = "https://outlook.office.com/"
	result.Metadata["userPrincipalName"] = user.UserPrincipalName
	result.Metadata["created"] = created
	if created && input.Data["passwordGenerated"] == true {
		result.Metadata["tempPassword"] = provider.DataString(input.Data, "tempPassword")
	}
	if created {
		result.ExternalLinks["firstLogin"] = "https://portal.office.com/"
	}

	// Auxiliary steps are independent of each other; run them
	// concurrently and collect failures per step.
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	skus := provider.DataStrings(input.Data, "licenseSKUs")
	if len(skus) > 0 {
		g.Go(func() error {
			errs, warns := p.assignLicenses(gctx, user.ID, skus)
			mu.Lock()
			result.Errors = append(result.Errors, errs...)
			result.Warnings = append(result.Warnings, warns...)
			mu.Unlock()
			return nil
		})
	}

	plans := provider.DataStrings(input.Data, "servicePlans")
	if len(plans) > 0 {
		g.Go(func() error {
			if err := p.graph.EnableServicePlans(gctx, user.ID, plans); err != nil {
				mu.Lock()
				result.Warnings = append(result.Warnings, fmt.Sprintf("Failed to enable service plans: %v", err))
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()

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

// ensureUser locates the user by email and updates it, or creates it
// when absent.
func (p *Provisioner) ensureUser(ctx context.Context, input *types.ValidatedInput) (user *GraphUser, created bool, err error) {
	email := provider.DataString(input.Data, "workEmail")
	fullName := provider.DataString(input.Data, "fullName")
	given, family := provider.SplitName(fullName, "")

	existing, findErr := p.graph.FindUserByEmail(ctx, email)
	switch {
	case findErr == nil:
		update := &UserUpdate{
			DisplayName:    fullName,
			GivenName:      given,
			Surname:        family,
			UsageLocation:  provider.DataString(input.Data, "usageLocation"),
			Department:     provider.DataString(input.Data, "department"),
			JobTitle:       provider.DataString(input.Data, "jobTitle"),
			OfficeLocation: provider.DataString(input.Data, "officeLocation"),
		}
		if err := p.graph.UpdateUser(ctx, existing.ID, update); err != nil {
			return nil, false, err
		}
		return existing, false, nil

	case errors.Is(findErr, provider.ErrNotFound):
		nickname := email
		if i := strings.Index(email, "@"); i > 0 {
			nickname = email[:i]
		}
		createReq := &UserCreate{
			AccountEnabled:    true,
			DisplayName:       fullName,
			GivenName:         given,
			Surname:           family,
			MailNickname:      nickname,
			UserPrincipalName: email,
			Mail:              email,
			UsageLocation:     provider.DataString(input.Data, "usageLocation"),
			PasswordProfile: PasswordProfile{
				ForceChangePasswordNextSignIn: provider.DataBool(input.Data, "requirePasswordChange"),
				Password:                      provider.DataString(input.Data, "tempPassword"),
			},
			Department:     provider.DataString(input.Data, "department"),
			JobTitle:       provider.DataString(input.Data, "jobTitle"),
			OfficeLocation: provider.DataString(input.Data, "officeLocation"),
		}
		madeUser, createErr := p.graph.CreateUser(ctx, createReq)
		if createErr != nil {
			return nil, false, createErr
		}
		return madeUser, true, nil

	default:
		return nil, false, findErr
	}
}

// assignLicenses resolves requested SKUs against the tenant's
// subscriptions and assigns the ones with free seats. Unknown SKUs and
// seat shortages become warnings; an assignment API failure is a
// required-step error.
func (p *Provisioner) assignLicenses(ctx context.Context, userID string, requested []string) (errs, warns []string) {
	subscribed, err := p.graph.SubscribedSKUs(ctx)
	if err != nil {
		return []string{fmt.Sprintf("Failed to list subscribed SKUs: %v", err)}, nil
	}

	var toAssign []string
	for _, want := range requested {
		idx := slices.IndexFunc(subscribed, func(s SubscribedSKU) bool {
			return s.SkuPartNumber == want || s.SkuID == want
		})
		if idx < 0 {
			warns = append(warns, fmt.Sprintf("License SKU not found: %s", want))
			continue
		}
		if subscribed[idx].Available() <= 0 {
			warns = append(warns, fmt.Sprintf("No available licenses for SKU: %s", want))
			continue
		}
		toAssign = append(toAssign, subscribed[idx].SkuID)
	}

	if len(toAssign) > 0 {
		if err := p.graph.AssignLicenses(ctx, userID, toAssign); err != nil {
			errs = append(errs, fmt.Sprintf("Failed to assign licenses: %v", err))
		}
	}
	return errs, warns
}

// Verify Provisioner implements the provider contract.
var _ provider.Provisioner = (*Provisioner)(nil)
