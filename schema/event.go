package schema

// EventType enumerates the append-only event log's event kinds.
type EventType string

const (
	EventApply   EventType = "apply"
	EventDestroy EventType = "destroy"
	EventPlan    EventType = "plan"
	EventRead    EventType = "read"
)

// EventRecord is one row of a deployment's append-only event log.
type EventRecord struct {
	ProjectID     string         `json:"projectId"`
	Region        string         `json:"region"`
	DeploymentID  string         `json:"deploymentId"`
	Environment   string         `json:"environment"`
	Epoch         int64          `json:"epoch"`
	Event         EventType      `json:"event"`
	Status        string         `json:"status"`
	JobID         string         `json:"jobId,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// RegionIndexPK is the composed attribute the RegionIndex secondary index
// projects on: "EVENT#{region}".
func (e EventRecord) RegionIndexPK() string {
	return "EVENT#" + e.Region
}

// ChangeRecordKind enumerates the job command that produced a change record.
type ChangeRecordKind string

const (
	ChangeRecordApply   ChangeRecordKind = "APPLY"
	ChangeRecordDestroy ChangeRecordKind = "DESTROY"
	ChangeRecordPlan    ChangeRecordKind = "PLAN"
)

// ChangeRecord is the artifact a runner job writes on completion: the raw
// IaC plan JSON, captured stdout, the derived resource-change list, and the
// policy results evaluated against the plan.
type ChangeRecord struct {
	ProjectID    string           `json:"projectId"`
	Region       string           `json:"region"`
	DeploymentID string           `json:"deploymentId"`
	Environment  string           `json:"environment"`
	JobID        string           `json:"jobId"`
	Kind         ChangeRecordKind `json:"kind"`

	Status string `json:"status"`

	PlanJSON        string                    `json:"planJson,omitempty"`
	PlanObjectKey   string                    `json:"planObjectKey,omitempty"`
	Stdout          string                    `json:"stdout,omitempty"`
	StdoutObjectKey string                    `json:"stdoutObjectKey,omitempty"`
	ResourceChanges []SanitizedResourceChange `json:"resourceChanges,omitempty"`
	PolicyResults   []PolicyResult            `json:"policyResults,omitempty"`

	CreatedAtEpoch int64 `json:"createdAtEpoch"`
}

// ProjectRecord is a tenant-level record used for project lookups and as the
// unit of caller authorization.
type ProjectRecord struct {
	ProjectID string `json:"projectId"`
	Region    string `json:"region"`
	Name      string `json:"name"`
}
