package provision

import "github.com/mfellsbbtv/oneclick-provisioner/types"

// Reconcile derives the overall status from the per-app results: the
// worst individual status wins (error > partial > pending > success).
// An empty result set reconciles to error, since a job that produced
// nothing cannot be called successful.
func Reconcile(perApp map[types.ProviderID]*types.Result) types.Status {
	if len(perApp) == 0 {
		return types.StatusError
	}
	overall := types.StatusSuccess
	for _, result := range perApp {
		if result == nil || !result.Status.Valid() {
			// A missing or malformed result is an orchestration defect;
			// treat it as the worst case rather than hiding it.
			return types.StatusError
		}
		if result.Status.Rank() > overall.Rank() {
			overall = result.Status
		}
	}
	return overall
}
