package provision

import (
	"testing"

	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name     string
		statuses []types.Status
		want     types.Status
	}{
		{"all success", []types.Status{types.StatusSuccess, types.StatusSuccess}, types.StatusSuccess},
		{"one partial", []types.Status{types.StatusSuccess, types.StatusPartial}, types.StatusPartial},
		{"one pending", []types.Status{types.StatusSuccess, types.StatusPending}, types.StatusPending},
		{"error beats partial", []types.Status{types.StatusPartial, types.StatusError, types.StatusSuccess}, types.StatusError},
		{"single error", []types.Status{types.StatusError}, types.StatusError},
		{"pending below partial", []types.Status{types.StatusPending, types.StatusPartial}, types.StatusPartial},
	}

	ids := []types.ProviderID{
		types.ProviderGoogleWorkspace,
		types.ProviderMicrosoft365,
		types.ProviderSlack,
		types.ProviderJira,
		types.ProviderZoom,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perApp := make(map[types.ProviderID]*types.Result, len(tt.statuses))
			for i, status := range tt.statuses {
				perApp[ids[i]] = &types.Result{Provider: ids[i], Status: status}
			}
			if got := Reconcile(perApp); got != tt.want {
				t.Errorf("Reconcile(%v) = %s, want %s", tt.statuses, got, tt.want)
			}
		})
	}
}

func TestReconcile_EmptyIsError(t *testing.T) {
	if got := Reconcile(nil); got != types.StatusError {
		t.Errorf("Reconcile(nil) = %s, want error", got)
	}
}

func TestReconcile_NilResultIsError(t *testing.T) {
	perApp := map[types.ProviderID]*types.Result{
		types.ProviderSlack: nil,
	}
	if got := Reconcile(perApp); got != types.StatusError {
		t.Errorf("nil result reconciled to %s, want error", got)
	}
}

func TestReconcile_UnknownStatusIsError(t *testing.T) {
	perApp := map[types.ProviderID]*types.Result{
		types.ProviderSlack: {Provider: types.ProviderSlack, Status: types.Status("bogus")},
		types.ProviderZoom:  {Provider: types.ProviderZoom, Status: types.StatusSuccess},
	}
	if got := Reconcile(perApp); got != types.StatusError {
		t.Errorf("unknown status reconciled to %s, want error", got)
	}
}
