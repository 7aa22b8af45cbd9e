package schema

import "time"

// DeploymentStatus enumerates the claim-dispatcher state machine's states.
type DeploymentStatus string

const (
	StatusReceived      DeploymentStatus = "received"
	StatusInitiated     DeploymentStatus = "initiated"
	StatusRunning       DeploymentStatus = "running"
	StatusSuccessful    DeploymentStatus = "successful"
	StatusFailed        DeploymentStatus = "failed"
	StatusFailedPolicy  DeploymentStatus = "failed_policy"
)

// IsTerminal reports whether a job may no longer transition without a new
// claim being dispatched.
func (s DeploymentStatus) IsTerminal() bool {
	switch s {
	case StatusSuccessful, StatusFailed, StatusFailedPolicy:
		return true
	default:
		return false
	}
}

// DependencyRef names one deployment this deployment declares a dependency
// on.
type DependencyRef struct {
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Environment string `json:"environment"`
}

// PolicyResult captures the outcome of evaluating one policy against a
// deployment's plan.
type PolicyResult struct {
	Policy    string `json:"policy"`
	Version   string `json:"version"`
	Passed    bool   `json:"passed"`
	Violation string `json:"violation,omitempty"`
}

// DeploymentRecord is the persistent record of a claim's latest applied
// state in an environment.
type DeploymentRecord struct {
	ProjectID   string `json:"projectId"`
	Region      string `json:"region"`
	Environment string `json:"environment"`

	DeploymentID  string `json:"deploymentId"`
	Module        string `json:"module"`
	ModuleVersion string `json:"moduleVersion"`
	ModuleTrack   string `json:"moduleTrack"`

	Variables map[string]any `json:"variables"`
	Output    map[string]any `json:"output,omitempty"`

	Status DeploymentStatus `json:"status"`
	JobID  string           `json:"jobId,omitempty"`
	Epoch  int64            `json:"epoch"`

	Deleted int `json:"deleted"`

	PolicyResults []PolicyResult   `json:"policyResults,omitempty"`
	Dependencies  []DependencyRef  `json:"dependencies,omitempty"`
	Dependents    []string         `json:"dependents,omitempty"`

	NextDriftCheckEpoch int64  `json:"nextDriftCheckEpoch,omitempty"`
	Reference           string `json:"reference,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsDeleted reports the soft-delete flag as a bool.
func (d DeploymentRecord) IsDeleted() bool {
	return d.Deleted != 0
}

// DeletedIndexPK is the composed attribute the DeletedIndex secondary index
// projects on: "{deleted}|DEPLOYMENT#{project}::{region}::".
func (d DeploymentRecord) DeletedIndexPK() string {
	status := "0"
	if d.IsDeleted() {
		status = "1"
	}
	return status + "|DEPLOYMENT#" + d.ProjectID + "::" + d.Region + "::"
}

// ModuleIndexPK is the composed attribute ModuleIndex projects on:
// "MODULE#{project}::{region}::::{module}".
func (d DeploymentRecord) ModuleIndexPK() string {
	return "MODULE#" + d.ProjectID + "::" + d.Region + "::::" + d.Module
}
