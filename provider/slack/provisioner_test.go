package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mfellsbbtv/oneclick-provisioner/provider"
	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// fakeClient is an in-memory vendor double recording every call.
type fakeClient struct {
	users    map[string]*SCIMUser
	channels []Channel
	groups   []UserGroup
	nextID   int

	findCalls   int
	createCalls int
	patchCalls  int
	invites     map[string][]string // channel ID -> invited user IDs
	groupSets   map[string][]string // group ID -> last member list

	createErr error
	findErr   error
	inviteErr error
	listErr   error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		users: map[string]*SCIMUser{},
		channels: []Channel{
			{ID: "C01", Name: "general"},
			{ID: "C02", Name: "engineering"},
		},
		groups: []UserGroup{
			{ID: "S01", Name: "Engineering", Handle: "eng", Members: []string{"U00"}},
		},
		invites:   map[string][]string{},
		groupSets: map[string][]string{},
	}
}

func (f *fakeClient) FindUserByEmail(ctx context.Context, email string) (*SCIMUser, error) {
	f.findCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	u, ok := f.users[email]
	if !ok {
		return nil, provider.NewError(provider.ErrNotFound, types.ProviderSlack, "find user", errors.New("no match"))
	}
	return u, nil
}

func (f *fakeClient) CreateUser(ctx context.Context, req *SCIMUserRequest) (*SCIMUser, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	u := &SCIMUser{ID: fmt.Sprintf("U%02d", f.nextID), UserName: req.UserName, Name: req.Name, Active: req.Active}
	f.users[req.UserName] = u
	return u, nil
}

func (f *fakeClient) PatchUser(ctx context.Context, userID string, ops []SCIMPatchOp) error {
	f.patchCalls++
	return nil
}

func (f *fakeClient) ListChannels(ctx context.Context) ([]Channel, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.channels, nil
}

func (f *fakeClient) InviteToChannel(ctx context.Context, channelID, userID string) error {
	if f.inviteErr != nil {
		return f.inviteErr
	}
	f.invites[channelID] = append(f.invites[channelID], userID)
	return nil
}

func (f *fakeClient) ListUserGroups(ctx context.Context) ([]UserGroup, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.groups, nil
}

func (f *fakeClient) SetUserGroupMembers(ctx context.Context, groupID string, userIDs []string) error {
	f.groupSets[groupID] = userIDs
	return nil
}

func janeInput() Input {
	return Input{
		Employee: types.Employee{FullName: "Jane Doe", WorkEmail: "jane@example.com"},
	}
}

func mustProvisioner(t *testing.T, c Client) *Provisioner {
	t.Helper()
	p, err := New(c)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestValidate_Defaults(t *testing.T) {
	p := mustProvisioner(t, newFakeClient())

	input, err := p.Validate(janeInput())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if got := input.Data["userRole"]; got != RoleMember {
		t.Errorf("userRole default = %v, want %q", got, RoleMember)
	}
	channels := provider.DataStrings(input.Data, "defaultChannels")
	if diff := cmp.Diff([]string{"general"}, channels); diff != "" {
		t.Errorf("defaultChannels mismatch (-want +got):\n%s", diff)
	}
	if groups := provider.DataStrings(input.Data, "userGroups"); len(groups) != 0 {
		t.Errorf("userGroups default = %v, want empty", groups)
	}
}

func TestValidate_RejectsUnknownRole(t *testing.T) {
	p := mustProvisioner(t, newFakeClient())

	in := janeInput()
	in.Config.UserRole = "owner"
	if _, err := p.Validate(in); !errors.Is(err, provider.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestValidate_EmptyChannelListSuppressesInvites(t *testing.T) {
	p := mustProvisioner(t, newFakeClient())

	in := janeInput()
	in.Config.DefaultChannels = []string{}
	input, err := p.Validate(in)
	if err != nil {
		t.Fatal(err)
	}
	// An explicit empty list is not replaced by the default.
	if channels := provider.DataStrings(input.Data, "defaultChannels"); len(channels) != 0 {
		t.Errorf("explicit empty channel list overridden: %v", channels)
	}
}

func TestPlan_AdvisoryAuxSteps(t *testing.T) {
	g := newFakeClient()
	p := mustProvisioner(t, g)

	in := janeInput()
	in.Config.UserGroups = []string{"eng"}
	input, _ := p.Validate(in)

	plan, err := p.Plan(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}

	if len(plan.Actions) != 3 {
		t.Fatalf("expected 3 actions, got %d: %+v", len(plan.Actions), plan.Actions)
	}
	if plan.Actions[0].Type != types.ActionCreate || !plan.Actions[0].Required {
		t.Errorf("primary action = %+v", plan.Actions[0])
	}
	if plan.Actions[1].Required || plan.Actions[2].Required {
		t.Error("channel and group assigns are advisory")
	}
	if g.findCalls != 1 {
		t.Errorf("plan should issue exactly one existence read, got %d", g.findCalls)
	}
}

func TestPlan_ReadFailureAssumesCreate(t *testing.T) {
	g := newFakeClient()
	g.findErr = provider.NewError(provider.ErrVendor, types.ProviderSlack, "find user", errors.New("503"))
	p := mustProvisioner(t, g)

	input, _ := p.Validate(janeInput())
	plan, err := p.Plan(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Actions[0].Type != types.ActionCreate {
		t.Errorf("unreadable vendor state should plan a create, got %s", plan.Actions[0].Type)
	}
}

func TestApply_CreatesAndInvites(t *testing.T) {
	g := newFakeClient()
	p := mustProvisioner(t, g)

	in := janeInput()
	in.Config.UserGroups = []string{"eng"}
	input, _ := p.Validate(in)

	result, err := p.Apply(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != types.StatusSuccess {
		t.Errorf("status = %s (warnings %v errors %v)", result.Status, result.Warnings, result.Errors)
	}
	userID := result.ExternalIDs["slackUserId"]
	if userID == "" {
		t.Fatal("slackUserId missing")
	}
	if got := g.invites["C01"]; len(got) != 1 || got[0] != userID {
		t.Errorf("general invite = %v, want [%s]", got, userID)
	}
	want := []string{"U00", userID}
	if diff := cmp.Diff(want, g.groupSets["S01"]); diff != "" {
		t.Errorf("group members mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasSuffix(result.ExternalLinks["profile"], userID) {
		t.Errorf("profile link = %s", result.ExternalLinks["profile"])
	}
}

func TestApply_UnknownChannelIsWarning(t *testing.T) {
	g := newFakeClient()
	p := mustProvisioner(t, g)

	in := janeInput()
	in.Config.DefaultChannels = []string{"general", "no-such-channel"}
	input, _ := p.Validate(in)

	result, _ := p.Apply(context.Background(), input)
	if result.Status != types.StatusPartial {
		t.Errorf("unknown channel should downgrade to partial, got %s", result.Status)
	}
	if len(g.invites["C01"]) != 1 {
		t.Error("known channels are still invited")
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "no-such-channel") {
		t.Errorf("warnings = %v", result.Warnings)
	}
}

func TestApply_InviteFailureIsWarning(t *testing.T) {
	g := newFakeClient()
	g.inviteErr = provider.NewError(provider.ErrVendor, types.ProviderSlack, "invite to channel", errors.New("fatal_error"))
	p := mustProvisioner(t, g)

	input, _ := p.Validate(janeInput())
	result, _ := p.Apply(context.Background(), input)

	if result.Status != types.StatusPartial {
		t.Errorf("invite failure should downgrade to partial, got %s", result.Status)
	}
	if result.ExternalIDs["slackUserId"] == "" {
		t.Error("the created identity's IDs are still reported")
	}
}

func TestApply_ExistingUserSkipsChannelInvites(t *testing.T) {
	g := newFakeClient()
	g.users["jane@example.com"] = &SCIMUser{ID: "U77", UserName: "jane@example.com"}
	p := mustProvisioner(t, g)

	input, _ := p.Validate(janeInput())
	result, _ := p.Apply(context.Background(), input)

	if result.Status != types.StatusSuccess {
		t.Errorf("status = %s", result.Status)
	}
	if g.patchCalls != 1 || g.createCalls != 0 {
		t.Errorf("existing user should be patched, not recreated (patch=%d create=%d)", g.patchCalls, g.createCalls)
	}
	if len(g.invites) != 0 {
		t.Errorf("existing members keep their channel list, got invites %v", g.invites)
	}
	if result.ExternalIDs["slackUserId"] != "U77" {
		t.Errorf("slackUserId = %s, want U77", result.ExternalIDs["slackUserId"])
	}
}

func TestApply_GroupMembershipIdempotent(t *testing.T) {
	g := newFakeClient()
	g.users["jane@example.com"] = &SCIMUser{ID: "U00", UserName: "jane@example.com"}
	p := mustProvisioner(t, g)

	in := janeInput()
	in.Config.UserGroups = []string{"eng"}
	input, _ := p.Validate(in)

	result, _ := p.Apply(context.Background(), input)
	if result.Status != types.StatusSuccess {
		t.Errorf("status = %s (warnings %v)", result.Status, result.Warnings)
	}
	// U00 is already a member; no replacement call should be issued.
	if _, ok := g.groupSets["S01"]; ok {
		t.Error("membership update issued for a user already in the group")
	}
}

func TestApply_PrimaryFailureIsFatal(t *testing.T) {
	g := newFakeClient()
	g.createErr = provider.NewError(provider.ErrAuth, types.ProviderSlack, "create user", errors.New("401"))
	p := mustProvisioner(t, g)

	input, _ := p.Validate(janeInput())
	result, _ := p.Apply(context.Background(), input)

	if result.Status != types.StatusError {
		t.Errorf("status = %s, want error", result.Status)
	}
	if len(g.invites) != 0 {
		t.Error("auxiliary steps must not run after a fatal primary failure")
	}
}
