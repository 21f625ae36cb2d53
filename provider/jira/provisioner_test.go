package jira

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
	users  map[string]*User
	nextID int

	findCalls   int
	createCalls int
	groupAdds   []string // "accountID/group"

	createErr error
	findErr   error
	groupErr  map[string]error // group -> injected failure
}

func newFakeClient() *fakeClient {
	return &fakeClient{users: map[string]*User{}, groupErr: map[string]error{}}
}

func (f *fakeClient) FindUserByEmail(ctx context.Context, site, email string) (*User, error) {
	f.findCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	u, ok := f.users[email]
	if !ok {
		return nil, provider.NewError(provider.ErrNotFound, types.ProviderJira, "find user", errors.New("no match"))
	}
	return u, nil
}

func (f *fakeClient) CreateUser(ctx context.Context, site string, req *UserRequest) (*User, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	u := &User{AccountID: fmt.Sprintf("acc-%d", f.nextID), EmailAddress: req.EmailAddress, Active: true}
	f.users[req.EmailAddress] = u
	return u, nil
}

func (f *fakeClient) AddUserToGroup(ctx context.Context, site, accountID, group string) error {
	if err := f.groupErr[group]; err != nil {
		return err
	}
	f.groupAdds = append(f.groupAdds, accountID+"/"+group)
	return nil
}

func janeInput() Input {
	return Input{
		Employee: types.Employee{FullName: "Jane Doe", WorkEmail: "jane@example.com"},
		Config:   types.JiraConfig{Site: "acme.atlassian.net"},
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

	if diff := cmp.Diff([]string{"development"}, provider.DataStrings(input.Data, "projectAccess")); diff != "" {
		t.Errorf("projectAccess mismatch (-want +got):\n%s", diff)
	}
	if got := input.Data["defaultRole"]; got != "developer" {
		t.Errorf("defaultRole default = %v, want developer", got)
	}
}

func TestValidate_SiteRequired(t *testing.T) {
	p := mustProvisioner(t, newFakeClient())

	tests := []struct {
		name string
		site string
	}{
		{"empty", ""},
		{"with path", "acme.atlassian.net/jira"},
		{"not a hostname", "acme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := janeInput()
			in.Config.Site = tt.site
			if _, err := p.Validate(in); !errors.Is(err, provider.ErrValidation) {
				t.Errorf("site %q: expected ErrValidation, got %v", tt.site, err)
			}
		})
	}
}

func TestValidate_AllSubsumesAreas(t *testing.T) {
	p := mustProvisioner(t, newFakeClient())

	in := janeInput()
	in.Config.ProjectAccess = []string{"development", "all", "support"}
	input, err := p.Validate(in)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"all"}, provider.DataStrings(input.Data, "projectAccess")); diff != "" {
		t.Errorf("projectAccess mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_RejectsUnknownAreaAndRole(t *testing.T) {
	p := mustProvisioner(t, newFakeClient())

	in := janeInput()
	in.Config.ProjectAccess = []string{"marketing"}
	if _, err := p.Validate(in); !errors.Is(err, provider.ErrValidation) {
		t.Errorf("unknown area: expected ErrValidation, got %v", err)
	}

	in = janeInput()
	in.Config.DefaultRole = "superuser"
	if _, err := p.Validate(in); !errors.Is(err, provider.ErrValidation) {
		t.Errorf("unknown role: expected ErrValidation, got %v", err)
	}
}

func TestPlan_RequiredGroupAssigns(t *testing.T) {
	g := newFakeClient()
	p := mustProvisioner(t, g)

	in := janeInput()
	in.Config.ProjectAccess = []string{"development", "operations"}
	input, _ := p.Validate(in)

	plan, err := p.Plan(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}

	if len(plan.Actions) != 3 {
		t.Fatalf("expected 3 actions, got %d: %+v", len(plan.Actions), plan.Actions)
	}
	for i, action := range plan.Actions {
		if !action.Required {
			t.Errorf("action %d (%s) must be required", i, action.Resource)
		}
	}
	if !strings.Contains(plan.Actions[1].Details, "jira-development-developer") {
		t.Errorf("group name missing from details: %s", plan.Actions[1].Details)
	}
	if g.findCalls != 1 {
		t.Errorf("plan should issue exactly one existence read, got %d", g.findCalls)
	}
}

func TestApply_CreatesAndGrantsAccess(t *testing.T) {
	g := newFakeClient()
	p := mustProvisioner(t, g)

	input, _ := p.Validate(janeInput())
	result, err := p.Apply(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != types.StatusSuccess {
		t.Errorf("status = %s (errors %v)", result.Status, result.Errors)
	}
	accountID := result.ExternalIDs["accountId"]
	if accountID == "" {
		t.Fatal("accountId missing")
	}
	want := []string{accountID + "/jira-development-developer"}
	if diff := cmp.Diff(want, g.groupAdds); diff != "" {
		t.Errorf("group adds mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(result.ExternalLinks["profile"], "acme.atlassian.net") {
		t.Errorf("profile link = %s", result.ExternalLinks["profile"])
	}
}

func TestApply_GroupFailureIsErrorButContinues(t *testing.T) {
	g := newFakeClient()
	g.groupErr["jira-development-developer"] = provider.NewError(
		provider.ErrVendor, types.ProviderJira, "add user to group", errors.New("500"))
	p := mustProvisioner(t, g)

	in := janeInput()
	in.Config.ProjectAccess = []string{"development", "support"}
	input, _ := p.Validate(in)

	result, _ := p.Apply(context.Background(), input)
	if result.Status != types.StatusError {
		t.Errorf("a failed required group add must yield error, got %s", result.Status)
	}
	// The remaining group is still attempted.
	if len(g.groupAdds) != 1 || !strings.HasSuffix(g.groupAdds[0], "jira-support-developer") {
		t.Errorf("remaining groups not attempted: %v", g.groupAdds)
	}
	if result.ExternalIDs["accountId"] == "" {
		t.Error("the created identity's IDs are still reported")
	}
}

func TestApply_Idempotent(t *testing.T) {
	g := newFakeClient()
	p := mustProvisioner(t, g)

	input, _ := p.Validate(janeInput())
	first, _ := p.Apply(context.Background(), input)
	second, _ := p.Apply(context.Background(), input)

	if g.createCalls != 1 {
		t.Errorf("repeated apply created %d users, want 1", g.createCalls)
	}
	if first.ExternalIDs["accountId"] != second.ExternalIDs["accountId"] {
		t.Error("accountId must be stable across applies")
	}
	if second.Metadata["created"] != false {
		t.Error("second apply should report created=false")
	}
}

func TestApply_PrimaryFailureIsFatal(t *testing.T) {
	g := newFakeClient()
	g.createErr = provider.NewError(provider.ErrAuth, types.ProviderJira, "create user", errors.New("401"))
	p := mustProvisioner(t, g)

	input, _ := p.Validate(janeInput())
	result, _ := p.Apply(context.Background(), input)

	if result.Status != types.StatusError {
		t.Errorf("status = %s, want error", result.Status)
	}
	if len(g.groupAdds) != 0 {
		t.Error("auxiliary steps must not run after a fatal primary failure")
	}
}
