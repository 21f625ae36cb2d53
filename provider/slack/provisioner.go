// Package slack provisions Slack workspace members through the SCIM
// API, then handles channel invitations and user-group membership
// through the Web API.
//
// Defaults applied at validation (part of the adapter contract):
//   - userRole:        "member"
//   - defaultChannels: ["general"]
//   - userGroups:      []
package slack

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
	RoleMember = "member"
	RoleAdmin  = "admin"

	DefaultChannel = "general"

	estimatedApplyTime = 20 * time.Second
)

// Input is what the orchestrator hands to Validate.
type Input struct {
	Employee types.Employee
	Config   types.SlackConfig
}

// Provisioner implements the provider contract for Slack.
type Provisioner struct {
	client Client
}

// New creates a Slack provisioner around an authenticated client.
func New(client Client) (*Provisioner, error) {
	if client == nil {
		return nil, errors.New("slack: client is required")
	}
	return &Provisioner{client: client}, nil
}

// Validate normalizes the input and applies documented defaults. No
// vendor calls.
func (p *Provisioner) Validate(raw any) (*types.ValidatedInput, error) {
	in, ok := raw.(Input)
	if !ok {
		return nil, provider.NewValidationError(types.ProviderSlack, "unexpected input type %T", raw)
	}

	if in.Employee.FullName == "" || in.Employee.WorkEmail == "" {
		return nil, provider.NewValidationError(types.ProviderSlack, "full name and work email are required")
	}
	if !provider.ValidEmail(in.Employee.WorkEmail) {
		return nil, provider.NewValidationError(types.ProviderSlack, "invalid email format: %q", in.Employee.WorkEmail)
	}

	cfg := in.Config
	if cfg.UserRole == "" {
		cfg.UserRole = RoleMember
	}
	if cfg.UserRole != RoleMember && cfg.UserRole != RoleAdmin {
		return nil, provider.NewValidationError(types.ProviderSlack,
			"userRole must be %q or %q, got %q", RoleMember, RoleAdmin, cfg.UserRole)
	}
	if cfg.DefaultChannels == nil {
		cfg.DefaultChannels = []string{DefaultChannel}
	}

	return &types.ValidatedInput{
		Provider: types.ProviderSlack,
		Data: map[string]any{
			"fullName":        in.Employee.FullName,
			"workEmail":       in.Employee.WorkEmail,
			"userRole":        cfg.UserRole,
			"defaultChannels": cfg.DefaultChannels,
			"userGroups":      cfg.UserGroups,
		},
	}, nil
}

// Plan issues one existence read and declares create-or-update for the
// member plus advisory assigns for channels and user groups. A failed
// read plans a create; the apply re-checks before mutating.
func (p *Provisioner) Plan(ctx context.Context, input *types.ValidatedInput) (*types.Plan, error) {
	email := provider.DataString(input.Data, "workEmail")
	channels := provider.DataStrings(input.Data, "defaultChannels")
	groups := provider.DataStrings(input.Data, "userGroups")

	userExists := false
	if _, err := p.client.FindUserByEmail(ctx, email); err == nil {
		userExists = true
	}

	actions := make([]types.Action, 0, 3)
	if userExists {
		actions = append(actions, types.Action{
			Type:     types.ActionUpdate,
			Resource: "user",
			Details:  fmt.Sprintf("Update existing Slack user %s", email),
			Required: true,
		})
	} else {
		actions = append(actions, types.Action{
			Type:     types.ActionCreate,
			Resource: "user",
			Details:  fmt.Sprintf("Create Slack user %s", email),
			Required: true,
		})
	}
	if len(channels) > 0 {
		actions = append(actions, types.Action{
			Type:     types.ActionAssign,
			Resource: "channels",
			Details:  fmt.Sprintf("Invite to channels: %s", strings.Join(channels, ", ")),
		})
	}
	if len(groups) > 0 {
		actions = append(actions, types.Action{
			Type:     types.ActionAssign,
			Resource: "user_groups",
			Details:  fmt.Sprintf("Add to user groups: %s", strings.Join(groups, ", ")),
		})
	}

	return &types.Plan{
		Provider:      types.ProviderSlack,
		Actions:       actions,
		EstimatedTime: estimatedApplyTime,
	}, nil
}

// Apply resolves or creates the member, then invites it to channels
// and user groups. The member step is fatal on failure; channel and
// group steps are advisory and downgrade the result to partial.
func (p *Provisioner) Apply(ctx context.Context, input *types.ValidatedInput) (*types.Result, error) {
	email := provider.DataString(input.Data, "workEmail")
	channels := provider.DataStrings(input.Data, "defaultChannels")
	groups := provider.DataStrings(input.Data, "userGroups")

	result := &types.Result{
		Provider:      types.ProviderSlack,
		ExternalIDs:   map[string]string{},
		ExternalLinks: map[string]string{},
		Metadata: map[string]any{
			"email":    email,
			"role":     provider.DataString(input.Data, "userRole"),
			"channels": channels,
			"groups":   groups,
		},
	}

	userID, created, err := p.ensureUser(ctx, input)
	if err != nil {
		result.Status = types.StatusError
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to provision Slack user: %v", err))
		return result, nil
	}

	result.ExternalIDs["slackUserId"] = userID
	result.ExternalLinks["profile"] = "https://app.slack.com/team/" + userID
	result.Metadata["created"] = created

	// Channel invitations only make sense right after a create; an
	// existing member has already curated their channels.
	if created && len(channels) > 0 {
		result.Warnings = append(result.Warnings, p.inviteToChannels(ctx, userID, channels)...)
	}
	if len(groups) > 0 {
		result.Warnings = append(result.Warnings, p.addToGroups(ctx, userID, groups)...)
	}

	if len(result.Warnings) > 0 {
		result.Status = types.StatusPartial
	} else {
		result.Status = types.StatusSuccess
	}
	return result, nil
}

// ensureUser locates the member by email and reactivates/renames it,
// or creates it when absent.
func (p *Provisioner) ensureUser(ctx context.Context, input *types.ValidatedInput) (userID string, created bool, err error) {
	email := provider.DataString(input.Data, "workEmail")
	given, family := provider.SplitName(provider.DataString(input.Data, "fullName"), "")

	existing, findErr := p.client.FindUserByEmail(ctx, email)
	switch {
	case findErr == nil:
		ops := []SCIMPatchOp{
			{Op: "replace", Path: "name", Value: SCIMName{GivenName: given, FamilyName: family}},
			{Op: "replace", Path: "active", Value: true},
		}
		if patchErr := p.client.PatchUser(ctx, existing.ID, ops); patchErr != nil {
			return "", false, patchErr
		}
		return existing.ID, false, nil

	case errors.Is(findErr, provider.ErrNotFound):
		user, createErr := p.client.CreateUser(ctx, &SCIMUserRequest{
			UserName: email,
			Name:     SCIMName{GivenName: given, FamilyName: family},
			Emails:   []SCIMEmail{{Value: email, Type: "work", Primary: true}},
			Active:   true,
		})
		if createErr != nil {
			return "", false, createErr
		}
		return user.ID, true, nil

	default:
		return "", false, findErr
	}
}

// inviteToChannels resolves channel names and invites the user,
// collecting one warning per channel that fails or does not exist.
func (p *Provisioner) inviteToChannels(ctx context.Context, userID string, names []string) (warns []string) {
	channels, err := p.client.ListChannels(ctx)
	if err != nil {
		return []string{fmt.Sprintf("Failed to list channels: %v", err)}
	}

	for _, name := range names {
		idx := slices.IndexFunc(channels, func(ch Channel) bool { return ch.Name == name })
		if idx < 0 {
			warns = append(warns, fmt.Sprintf("Channel not found: %s", name))
			continue
		}
		if err := p.client.InviteToChannel(ctx, channels[idx].ID, userID); err != nil {
			warns = append(warns, fmt.Sprintf("Failed to invite to channel %s: %v", name, err))
		}
	}
	return warns
}

// addToGroups resolves group names or handles and appends the user to
// each group's member list.
func (p *Provisioner) addToGroups(ctx context.Context, userID string, names []string) (warns []string) {
	groups, err := p.client.ListUserGroups(ctx)
	if err != nil {
		return []string{fmt.Sprintf("Failed to list user groups: %v", err)}
	}

	for _, name := range names {
		idx := slices.IndexFunc(groups, func(g UserGroup) bool {
			return g.Name == name || g.Handle == name
		})
		if idx < 0 {
			warns = append(warns, fmt.Sprintf("User group not found: %s", name))
			continue
		}
		group := groups[idx]
		if slices.Contains(group.Members, userID) {
			continue
		}
		members := append(slices.Clone(group.Members), userID)
		if err := p.client.SetUserGroupMembers(ctx, group.ID, members); err != nil {
			warns = append(warns, fmt.Sprintf("Failed to add to group %s: %v", name, err))
		}
	}
	return warns
}

// Verify Provisioner implements the provider contract.
var _ provider.Provisioner = (*Provisioner)(nil)
