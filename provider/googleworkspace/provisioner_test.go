package googleworkspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mfellsbbtv/oneclick-provisioner/provider"
	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// fakeDirectory is an in-memory vendor double recording every call.
type fakeDirectory struct {
	users map[string]*User
	nextID int

	getCalls    int
	insertCalls int
	updateCalls int
	licenseCalls int

	insertErr  error
	updateErr  error
	getErr     error
	licenseErr error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: map[string]*User{}, nextID: 100}
}

func (f *fakeDirectory) GetUser(ctx context.Context, email string) (*User, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[email]
	if !ok {
		return nil, provider.NewError(provider.ErrNotFound, types.ProviderGoogleWorkspace, "get user", errors.New("404"))
	}
	return u, nil
}

func (f *fakeDirectory) InsertUser(ctx context.Context, req *UserRequest) (*User, error) {
	f.insertCalls++
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.nextID++
	u := &User{ID: userIDString(f.nextID), PrimaryEmail: req.PrimaryEmail, OrgUnitPath: req.OrgUnitPath}
	f.users[req.PrimaryEmail] = u
	return u, nil
}

func (f *fakeDirectory) UpdateUser(ctx context.Context, email string, req *UserRequest) error {
	f.updateCalls++
	return f.updateErr
}

func (f *fakeDirectory) AssignLicense(ctx context.Context, productID, skuID, email string) error {
	f.licenseCalls++
	return f.licenseErr
}

func userIDString(n int) string {
	return fmt.Sprintf("uid-%d", n)
}

func janeInput() Input {
	return Input{
		Employee: types.Employee{FullName: "Jane Doe", WorkEmail: "jane@example.com"},
	}
}

func mustProvisioner(t *testing.T, dir DirectoryClient) *Provisioner {
	t.Helper()
	p, err := New(dir, Catalog{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestValidate_AppliesDefaults(t *testing.T) {
	p := mustProvisioner(t, newFakeDirectory())

	input, err := p.Validate(janeInput())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if got := input.Data["primaryOrgUnit"]; got != "/" {
		t.Errorf("primaryOrgUnit default = %v, want \"/\"", got)
	}
	if got := input.Data["passwordMode"]; got != PasswordModeAuto {
		t.Errorf("passwordMode default = %v", got)
	}
	if got := input.Data["licenseSku"]; got != DefaultLicenseSku {
		t.Errorf("licenseSku default = %v", got)
	}
}

func TestValidate_RejectsMissingFields(t *testing.T) {
	p := mustProvisioner(t, newFakeDirectory())

	_, err := p.Validate(Input{Employee: types.Employee{FullName: "Jane Doe"}})
	if !errors.Is(err, provider.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}

	_, err = p.Validate(Input{Employee: types.Employee{FullName: "Jane Doe", WorkEmail: "not-an-email"}})
	if !errors.Is(err, provider.ErrValidation) {
		t.Errorf("malformed email: expected ErrValidation, got %v", err)
	}
}

func TestValidate_CustomPasswordCrossField(t *testing.T) {
	p := mustProvisioner(t, newFakeDirectory())

	in := janeInput()
	in.Config.PasswordMode = PasswordModeCustom
	if _, err := p.Validate(in); !errors.Is(err, provider.ErrValidation) {
		t.Error("custom mode without a password must be rejected")
	}

	in.Config.CustomPassword = "short"
	if _, err := p.Validate(in); !errors.Is(err, provider.ErrValidation) {
		t.Error("passwords below the minimum length must be rejected")
	}

	in.Config.CustomPassword = "longenough1!"
	if _, err := p.Validate(in); err != nil {
		t.Errorf("valid custom password rejected: %v", err)
	}
}

func TestValidate_CatalogMembership(t *testing.T) {
	dir := newFakeDirectory()
	p, err := New(dir, Catalog{OrgUnits: []string{"/", "/Developers"}})
	if err != nil {
		t.Fatal(err)
	}

	in := janeInput()
	in.Config.PrimaryOrgUnit = "/Marketing"
	if _, err := p.Validate(in); !errors.Is(err, provider.ErrValidation) {
		t.Error("org unit outside the catalog must be rejected")
	}

	in.Config.PrimaryOrgUnit = "/Developers"
	if _, err := p.Validate(in); err != nil {
		t.Errorf("catalog org unit rejected: %v", err)
	}
}

func TestValidate_NoVendorCalls(t *testing.T) {
	dir := newFakeDirectory()
	p := mustProvisioner(t, dir)

	_, _ = p.Validate(janeInput())
	_, _ = p.Validate(Input{})

	if dir.getCalls+dir.insertCalls+dir.updateCalls+dir.licenseCalls != 0 {
		t.Error("Validate must not touch the vendor")
	}
}

func TestPlan_NewUser(t *testing.T) {
	dir := newFakeDirectory()
	p := mustProvisioner(t, dir)

	input, err := p.Validate(janeInput())
	if err != nil {
		t.Fatal(err)
	}
	plan, err := p.Plan(context.Background(), input)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if len(plan.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(plan.Actions))
	}
	if plan.Actions[0].Type != types.ActionCreate || plan.Actions[0].Resource != "user" {
		t.Errorf("first action = %+v, want create user", plan.Actions[0])
	}
	if plan.Actions[1].Type != types.ActionAssign || plan.Actions[1].Resource != "license" {
		t.Errorf("second action = %+v, want assign license", plan.Actions[1])
	}
	if !strings.Contains(plan.Actions[0].Details, "jane@example.com") {
		t.Errorf("action details should name the resource identifier: %q", plan.Actions[0].Details)
	}
	if dir.getCalls != 1 {
		t.Errorf("plan should issue exactly one existence read, got %d", dir.getCalls)
	}
}

func TestPlan_ExistingUserPlansUpdate(t *testing.T) {
	dir := newFakeDirectory()
	dir.users["jane@example.com"] = &User{ID: "uid-1", PrimaryEmail: "jane@example.com"}
	p := mustProvisioner(t, dir)

	input, _ := p.Validate(janeInput())
	plan, err := p.Plan(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Actions[0].Type != types.ActionUpdate {
		t.Errorf("existing user should plan an update, got %s", plan.Actions[0].Type)
	}
}

func TestPlan_ReadFailureAssumesCreate(t *testing.T) {
	dir := newFakeDirectory()
	dir.getErr = provider.NewError(provider.ErrVendor, types.ProviderGoogleWorkspace, "get user", errors.New("503"))
	p := mustProvisioner(t, dir)

	input, _ := p.Validate(janeInput())
	plan, err := p.Plan(context.Background(), input)
	if err != nil {
		t.Fatalf("a failed existence read must not starve the operator of a plan: %v", err)
	}
	if plan.Actions[0].Type != types.ActionCreate {
		t.Errorf("read failure should plan a create, got %s", plan.Actions[0].Type)
	}
}

func TestApply_EndToEnd(t *testing.T) {
	dir := newFakeDirectory()
	p := mustProvisioner(t, dir)

	input, _ := p.Validate(janeInput())
	result, err := p.Apply(context.Background(), input)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if result.Status != types.StatusSuccess {
		t.Errorf("status = %s, want success (errors: %v)", result.Status, result.Errors)
	}
	if result.ExternalIDs["userId"] == "" {
		t.Error("userId must be set")
	}
	if result.Metadata["email"] != "jane@example.com" {
		t.Errorf("metadata.email = %v", result.Metadata["email"])
	}
	if result.Metadata["created"] != true {
		t.Error("metadata.created should be true on the create path")
	}
	pw, ok := result.Metadata["tempPassword"].(string)
	if !ok || len(pw) < provider.MinPasswordLength {
		t.Error("auto mode should return the generated credential in metadata")
	}
}

func TestApply_Idempotent(t *testing.T) {
	dir := newFakeDirectory()
	p := mustProvisioner(t, dir)

	input, _ := p.Validate(janeInput())

	first, err := p.Apply(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Apply(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}

	if dir.insertCalls != 1 {
		t.Errorf("repeated apply created %d users, want 1", dir.insertCalls)
	}
	if dir.updateCalls != 1 {
		t.Errorf("second apply should convert to an update, got %d updates", dir.updateCalls)
	}
	if first.ExternalIDs["userId"] != second.ExternalIDs["userId"] {
		t.Errorf("userId must be stable across applies: %q vs %q",
			first.ExternalIDs["userId"], second.ExternalIDs["userId"])
	}
	if second.Metadata["created"] != false {
		t.Error("second apply should report the update path")
	}
	if _, leaked := second.Metadata["tempPassword"]; leaked {
		t.Error("update path must not report a credential")
	}
}

func TestApply_LicenseFailureIsPartial(t *testing.T) {
	dir := newFakeDirectory()
	dir.licenseErr = provider.NewError(provider.ErrVendor, types.ProviderGoogleWorkspace, "assign license", errors.New("500"))
	p := mustProvisioner(t, dir)

	input, _ := p.Validate(janeInput())
	result, err := p.Apply(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != types.StatusPartial {
		t.Errorf("status = %s, want partial", result.Status)
	}
	if result.ExternalIDs["userId"] == "" {
		t.Error("primary step IDs must survive an auxiliary failure")
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "license") {
		t.Errorf("errors should name the failed step: %v", result.Errors)
	}
}

func TestApply_PrimaryFailureIsFatal(t *testing.T) {
	dir := newFakeDirectory()
	dir.insertErr = provider.NewError(provider.ErrAuth, types.ProviderGoogleWorkspace, "insert user", errors.New("403"))
	p := mustProvisioner(t, dir)

	input, _ := p.Validate(janeInput())
	result, err := p.Apply(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != types.StatusError {
		t.Errorf("status = %s, want error", result.Status)
	}
	if _, ok := result.ExternalIDs["userId"]; ok {
		t.Error("no external IDs on total failure")
	}
	if dir.licenseCalls != 0 {
		t.Error("auxiliary steps must not run after a fatal primary failure")
	}
}

func TestApply_CustomPasswordNotReported(t *testing.T) {
	dir := newFakeDirectory()
	p := mustProvisioner(t, dir)

	in := janeInput()
	in.Config.PasswordMode = PasswordModeCustom
	in.Config.CustomPassword = "operator-set-1!"
	input, err := p.Validate(in)
	if err != nil {
		t.Fatal(err)
	}

	result, err := p.Apply(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := result.Metadata["tempPassword"]; ok {
		t.Error("operator-supplied passwords are not echoed back")
	}
}
