package dispatcher

import (
	"context"
	"time"
)

// DriftCheckFailure records one deployment's drift-check dispatch failing,
// so a caller fanning out across many deployments can keep going instead of
// aborting the whole run on the first error.
type DriftCheckFailure struct {
	DeploymentID string
	Err          error
}

// RunDriftCheck queries every region's DriftCheckIndex for deployments due
// for a re-plan and dispatches a "plan" job for each. This is the
// supplemented feature original_source's periodic reconciliation loop
// implies (spec.md names the index and the next_drift_check_epoch field but
// leaves the consumer unspecified, see DESIGN.md); the scheduler that calls
// this on a timer is an external collaborator, out of scope here.
func (d *Dispatcher) RunDriftCheck(ctx context.Context, regions []string, now time.Time) ([]DispatchResult, []DriftCheckFailure) {
	var results []DispatchResult
	var failures []DriftCheckFailure

	for _, region := range regions {
		due, err := d.Metadata.DueForDriftCheck(ctx, region, now.Unix())
		if err != nil {
			failures = append(failures, DriftCheckFailure{DeploymentID: "region:" + region, Err: err})
			continue
		}

		for _, dep := range due {
			res, err := d.dispatch(ctx, dispatchRequest{
				ProjectID:     dep.ProjectID,
				Region:        dep.Region,
				Environment:   dep.Environment,
				DeploymentID:  dep.DeploymentID,
				Module:        dep.Module,
				ModuleVersion: dep.ModuleVersion,
				Track:         trackOf(dep.ModuleTrack),
				Variables:     dep.Variables,
				CallerID:      "drift-check-scheduler",
				Command:       CommandPlan,
				Dependencies:  dep.Dependencies,
			})
			if err != nil {
				failures = append(failures, DriftCheckFailure{DeploymentID: dep.DeploymentID, Err: err})
				continue
			}
			results = append(results, res)
		}
	}

	return results, failures
}
