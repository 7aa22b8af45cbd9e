// Package dispatcher implements the claim-to-job dispatcher and its
// per-(deployment_id, environment) lifecycle state machine: validating a
// claim, resolving the module it targets, assembling the runner payload,
// and driving the deployment record through received -> initiated ->
// running -> successful|failed|failed_policy.
package dispatcher

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/stratoform/controlplane/identifier"
	"github.com/stratoform/controlplane/orcherr"
	"github.com/stratoform/controlplane/schema"
)

// Command is one of the three IaC operations a claim can request.
type Command string

const (
	CommandPlan    Command = "plan"
	CommandApply   Command = "apply"
	CommandDestroy Command = "destroy"
)

// CallerIdentity is the caller context the HTTP boundary resolves and
// passes through to the dispatcher; the dispatcher only reads ID and
// AllowedProjects, never re-derives them.
type CallerIdentity struct {
	ID              string   `validate:"required"`
	AllowedProjects []string `validate:"required,min=1"`
}

// Allows reports whether this identity is authorized for projectID.
func (c CallerIdentity) Allows(projectID string) bool {
	for _, p := range c.AllowedProjects {
		if p == projectID {
			return true
		}
	}
	return false
}

// RunClaimInput is everything POST /api/v1/claim/run supplies.
type RunClaimInput struct {
	Caller      CallerIdentity             `validate:"required"`
	Claim       schema.ClaimManifest       `validate:"required"`
	ProjectID   string                     `validate:"required"`
	Region      string                     `validate:"required"`
	Environment string                     `validate:"required"`
	Command     Command                    `validate:"required,oneof=plan apply destroy"`
	ExtraData   *schema.GitOpsCorrelation
}

// ApiInfraPayload is the typed envelope the dispatcher hands the runner:
// everything it needs to run the IaC tool against the right module
// coordinates without re-querying the control plane. Its Variables are
// stored on the deployment record before the runner is launched, spec.md
// §4.4's "store before launch" rule; the rest of the payload is not stored.
type ApiInfraPayload struct {
	Command       Command                   `json:"command"`
	Module        string                    `json:"module"`
	ModuleVersion string                    `json:"moduleVersion"`
	Track         identifier.Track          `json:"track"`
	CPU           string                    `json:"cpu"`
	Memory        string                    `json:"memory"`
	Variables     map[string]any            `json:"variables"`
	CallerID      string                    `json:"callerId"`
	ExtraData     *schema.GitOpsCorrelation `json:"extraData,omitempty"`
	DeploymentID  string                    `json:"deploymentId"`
	Environment   string                    `json:"environment"`
	Region        string                    `json:"region"`
	ProjectID     string                    `json:"projectId"`
}

// mustMarshalPayload renders an ApiInfraPayload as the JSON the runner
// reads off its launch request. Marshal of this struct cannot fail short of
// a programming error (every field is a plain string/map), so a failure
// here is not something a caller can meaningfully recover from.
func mustMarshalPayload(p ApiInfraPayload) json.RawMessage {
	raw, err := json.Marshal(p)
	if err != nil {
		panic("dispatcher: ApiInfraPayload failed to marshal: " + err.Error())
	}
	return raw
}

var validate = validator.New()

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return orcherr.InputValidation("invalid_request", err.Error(), err)
	}
	return nil
}

// DeploymentIDForClaim derives spec.md §4.4's
// `deployment_id = "{moduleLowercase}-{claim.metadata.name}"`.
func DeploymentIDForClaim(claim schema.ClaimManifest) string {
	return claim.Module() + "-" + claim.Metadata.Name
}

// marshalVariables round-trips a claim's variables through JSON so the
// stored blob is the same plain map[string]any shape regardless of how it
// was decoded (YAML decodes maps as map[string]interface{} with nested
// map[string]interface{}, which is already what we want, but this keeps
// the contract explicit and catches non-serializable values early).
func marshalVariables(vars map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(vars)
	if err != nil {
		return nil, orcherr.InputValidation("invalid_variables", err.Error(), err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, orcherr.InputValidation("invalid_variables", err.Error(), err)
	}
	return out, nil
}
