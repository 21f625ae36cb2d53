// Package jira provisions Atlassian Jira Cloud accounts and grants
// project access through group membership.
//
// Defaults applied at validation (part of the adapter contract):
//   - projectAccess: ["development"]
//   - defaultRole:   "developer"
//
// The site (your-domain.atlassian.net) has no default and must be
// supplied.
package jira

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

// Documented defaults and valid values.
const (
	DefaultRole = "developer"

	// ProjectAll grants access to every project area.
	ProjectAll = "all"

	estimatedApplyTime = 25 * time.Second
)

// DefaultProjectAccess is the project areas granted when none are
// requested.
var DefaultProjectAccess = []string{"development"}

// ValidProjectAccess are the recognized project areas.
var ValidProjectAccess = []string{ProjectAll, "development", "operations", "support"}

// ValidRoles are the recognized roles.
var ValidRoles = []string{"developer", "viewer", "admin"}

// jiraProducts are the application seats a new account receives.
var jiraProducts = []string{"jira-software"}

// Input is what the orchestrator hands to Validate.
type Input struct {
	Employee types.Employee
	Config   types.JiraConfig
}

// Provisioner implements the provider contract for Jira Cloud.
type Provisioner struct {
	client Client
}

// New creates a Jira provisioner around an authenticated client.
func New(client Client) (*Provisioner, error) {
	if client == nil {
		return nil, errors.New("jira: client is required")
	}
	return &Provisioner{client: client}, nil
}

// Validate normalizes the input and applies documented defaults. No
// vendor calls.
func (p *Provisioner) Validate(raw any) (*types.ValidatedInput, error) {
	in, ok := raw.(Input)
	if !ok {
		return nil, provider.NewValidationError(types.ProviderJira, "unexpected input type %T", raw)
	}

	if in.Employee.FullName == "" || in.Employee.WorkEmail == "" {
		return nil, provider.NewValidationError(types.ProviderJira, "full name and work email are required")
	}
	if !provider.ValidEmail(in.Employee.WorkEmail) {
		return nil, provider.NewValidationError(types.ProviderJira, "invalid email format: %q", in.Employee.WorkEmail)
	}

	cfg := in.Config
	if cfg.Site == "" {
		return nil, provider.NewValidationError(types.ProviderJira, "site is required (e.g. your-domain.atlassian.net)")
	}
	if strings.Contains(cfg.Site, "/") || !strings.Contains(cfg.Site, ".") {
		return nil, provider.NewValidationError(types.ProviderJira, "site must be a bare hostname, got %q", cfg.Site)
	}

	if len(cfg.ProjectAccess) == 0 {
		cfg.ProjectAccess = DefaultProjectAccess
	}
	for _, area := range cfg.ProjectAccess {
		if !slices.Contains(ValidProjectAccess, area) {
			return nil, provider.NewValidationError(types.ProviderJira,
				"unknown project access %q, valid: %s", area, strings.Join(ValidProjectAccess, ", "))
		}
	}
	// "all" subsumes every other area.
	if slices.Contains(cfg.ProjectAccess, ProjectAll) {
		cfg.ProjectAccess = []string{ProjectAll}
	}

	if cfg.DefaultRole == "" {
		cfg.DefaultRole = DefaultRole
	}
	if !slices.Contains(ValidRoles, cfg.DefaultRole) {
		return nil, provider.NewValidationError(types.ProviderJira,
			"unknown role %q, valid: %s", cfg.DefaultRole, strings.Join(ValidRoles, ", "))
	}

	return &types.ValidatedInput{
		Provider: types.ProviderJira,
		Data: map[string]any{
			"fullName":      in.Employee.FullName,
			"workEmail":     in.Employee.WorkEmail,
			"site":          cfg.Site,
			"projectAccess": cfg.ProjectAccess,
			"defaultRole":   cfg.DefaultRole,
		},
	}, nil
}

// Plan issues one existence read and declares create-or-update for the
// account plus one required group assign per project area. Group
// membership carries real access, so those steps are not advisory.
func (p *Provisioner) Plan(ctx context.Context, input *types.ValidatedInput) (*types.Plan, error) {
	email := provider.DataString(input.Data, "workEmail")
	site := provider.DataString(input.Data, "site")
	areas := provider.DataStrings(input.Data, "projectAccess")
	role := provider.DataString(input.Data, "defaultRole")

	userExists := false
	if _, err := p.client.FindUserByEmail(ctx, site, email); err == nil {
		userExists = true
	}

	actions := make([]types.Action, 0, len(areas)+1)
	if userExists {
		actions = append(actions, types.Action{
			Type:     types.ActionUpdate,
			Resource: "user",
			Details:  fmt.Sprintf("Update existing Jira user %s on %s", email, site),
			Required: true,
		})
	} else {
		actions = append(actions, types.Action{
			Type:     types.ActionCreate,
			Resource: "user",
			Details:  fmt.Sprintf("Create Jira user %s on %s", email, site),
			Required: true,
		})
	}
	for _, area := range areas {
		actions = append(actions, types.Action{
			Type:     types.ActionAssign,
			Resource: "group",
			Details:  fmt.Sprintf("Add %s to group %s", email, accessGroup(area, role)),
			Required: true,
		})
	}

	return &types.Plan{
		Provider:      types.ProviderJira,
		Actions:       actions,
		EstimatedTime: estimatedApplyTime,
	}, nil
}

// Apply resolves or creates the account, then adds it to one group per
// project area. The account step is fatal on failure; a failed group
// add is a required-step error and yields an error status, but the
// remaining groups are still attempted.
func (p *Provisioner) Apply(ctx context.Context, input *types.ValidatedInput) (*types.Result, error) {
	email := provider.DataString(input.Data, "workEmail")
	site := provider.DataString(input.Data, "site")
	areas := provider.DataStrings(input.Data, "projectAccess")
	role := provider.DataString(input.Data, "defaultRole")

	result := &types.Result{
		Provider:      types.ProviderJira,
		ExternalIDs:   map[string]string{},
		ExternalLinks: map[string]string{},
		Metadata: map[string]any{
			"email":         email,
			"site":          site,
			"projectAccess": areas,
			"role":          role,
		},
	}

	accountID, created, err := p.ensureUser(ctx, input)
	if err != nil {
		result.Status = types.StatusError
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to provision Jira user: %v", err))
		return result, nil
	}

	result.ExternalIDs["accountId"] = accountID
	result.ExternalLinks["profile"] = fmt.Sprintf("https://%s/jira/people/%s", site, accountID)
	result.ExternalLinks["dashboard"] = fmt.Sprintf("https://%s/jira/dashboards", site)
	result.Metadata["created"] = created

	for _, area := range areas {
		group := accessGroup(area, role)
		if err := p.client.AddUserToGroup(ctx, site, accountID, group); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to add to group %s: %v", group, err))
		}
	}

	if len(result.Errors) > 0 {
		result.Status = types.StatusError
	} else {
		result.Status = types.StatusSuccess
	}
	return result, nil
}

// ensureUser locates the account by email or creates it when absent.
// Jira Cloud manages profile fields through Atlassian identity, so the
// found path has nothing to write back.
func (p *Provisioner) ensureUser(ctx context.Context, input *types.ValidatedInput) (accountID string, created bool, err error) {
	email := provider.DataString(input.Data, "workEmail")
	site := provider.DataString(input.Data, "site")

	existing, findErr := p.client.FindUserByEmail(ctx, site, email)
	switch {
	case findErr == nil:
		return existing.AccountID, false, nil

	case errors.Is(findErr, provider.ErrNotFound):
		user, createErr := p.client.CreateUser(ctx, site, &UserRequest{
			EmailAddress: email,
			DisplayName:  provider.DataString(input.Data, "fullName"),
			Products:     jiraProducts,
		})
		if createErr != nil {
			return "", false, createErr
		}
		return user.AccountID, true, nil

	default:
		return "", false, findErr
	}
}

// accessGroup maps a project area and role to the directory group
// carrying that access, e.g. ("development", "developer") ->
// "jira-development-developer".
func accessGroup(area, role string) string {
	if area == ProjectAll {
		return "jira-" + role
	}
	return fmt.Sprintf("jira-%s-%s", area, role)
}

// Verify Provisioner implements the provider contract.
var _ provider.Provisioner = (*Provisioner)(nil)
