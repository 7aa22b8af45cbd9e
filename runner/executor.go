// Package runner implements the control plane's side of the task-executor
// collaborator: the out-of-scope component (spec.md's non-goal "the core
// does not itself execute IaC tooling") that the claim dispatcher hands an
// opaque environment payload to and asks to run a container.
package runner

import (
	"context"
	"encoding/json"
)

// LaunchInput is everything the dispatcher knows about a job at launch
// time. Payload is the marshaled ApiInfraPayload the runner will read back
// by (DeploymentID, Environment, JobID) rather than from the environment,
// so its size is never bound by a runtime's argument/env limits.
type LaunchInput struct {
	JobID        string          `json:"jobId"`
	DeploymentID string          `json:"deploymentId"`
	Environment  string          `json:"environment"`
	Command      string          `json:"command"`
	Payload      json.RawMessage `json:"payload"`
}

// LaunchOutput is the executor's acknowledgement that a job has been
// scheduled; TaskARN is opaque to the dispatcher beyond being persisted on
// the deployment record for later cross-reference.
type LaunchOutput struct {
	TaskARN string `json:"taskArn"`
}

// Executor launches a runner job and returns immediately once the job has
// been scheduled — launching never blocks for the job's outcome, matching
// the dispatcher's "fire and track asynchronously via events/change record"
// model.
type Executor interface {
	Launch(ctx context.Context, in LaunchInput) (LaunchOutput, error)
}

// Constructor builds an Executor from decrypted config, following the same
// provider-constructor shape the other backend registries (secret,
// substrate, object store) use.
type Constructor func(config map[string]any) (Executor, error)
