package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/stratoform/controlplane/identifier"
	"github.com/stratoform/controlplane/orcherr"
	"github.com/stratoform/controlplane/runner"
	"github.com/stratoform/controlplane/schema"
	"github.com/stratoform/controlplane/store"
)

// Dispatcher drives the claim-to-job lifecycle: it resolves a claim's
// module, assembles the runner payload, and transactionally advances the
// deployment's state machine before handing the job to an Executor.
//
// This implementation collapses spec.md §4.4's "received" and "initiated"
// states into a single transition: every guard that would gate entry into
// "received" (caller authorized, module resolved, claim well-formed) is
// checked in-process before any write happens, so there is no externally
// observable state between "claim accepted" and "event+deployment written
// with status=initiated, runner about to be launched". See DESIGN.md.
type Dispatcher struct {
	Metadata *store.Metadata
	Executor runner.Executor

	// Now returns the current time; overridable in tests for determinism.
	Now func() time.Time

	// NewJobID returns a fresh job identifier; overridable in tests.
	NewJobID func() string
}

func New(md *store.Metadata, exec runner.Executor) *Dispatcher {
	return &Dispatcher{
		Metadata: md,
		Executor: exec,
		Now:      time.Now,
		NewJobID: uuid.NewString,
	}
}

// DispatchResult is what a successful dispatch hands back to the caller
// (the HTTP boundary's POST /api/v1/claim/run response).
type DispatchResult struct {
	JobID        string
	TaskARN      string
	DeploymentID string
	Payload      ApiInfraPayload
}

// dispatchRequest is the fully-resolved shape DispatchClaim and
// RunDriftCheck both funnel into: by the time dispatch() runs, module
// resolution and claim parsing are already done, so the core state-machine
// logic doesn't care whether the caller came from a claim YAML or from a
// drift-check re-plan of an existing deployment.
type dispatchRequest struct {
	ProjectID     string
	Region        string
	Environment   string
	DeploymentID  string
	Module        string
	ModuleVersion string
	Track         identifier.Track
	CPU           string
	Memory        string
	Variables     map[string]any
	CallerID      string
	Command       Command
	Dependencies  []schema.DependencyRef
	ExtraData     *schema.GitOpsCorrelation
}

// DispatchClaim validates and authorizes a claim, resolves its module,
// and dispatches it per spec.md §4.4.
func (d *Dispatcher) DispatchClaim(ctx context.Context, in RunClaimInput) (DispatchResult, error) {
	if err := validateStruct(in); err != nil {
		return DispatchResult{}, err
	}
	if !in.Caller.Allows(in.ProjectID) {
		return DispatchResult{}, orcherr.CallerAuth("access_denied", "caller not authorized for project "+in.ProjectID)
	}
	if in.Environment == "" {
		return DispatchResult{}, orcherr.InputValidation("missing_environment", "claim environment must be non-empty", nil)
	}

	track, err := identifier.TrackFromVersion(in.Claim.Spec.ModuleVersion)
	if err != nil {
		return DispatchResult{}, orcherr.InputValidation("invalid_version", err.Error(), err)
	}

	module, ok, err := d.Metadata.GetModule(ctx, track, in.Claim.Module(), in.Claim.Spec.ModuleVersion)
	if err != nil {
		return DispatchResult{}, err
	}
	if !ok {
		return DispatchResult{}, orcherr.NotFound("module " + in.Claim.Module() + "@" + in.Claim.Spec.ModuleVersion)
	}

	variables, err := marshalVariables(in.Claim.Spec.Variables)
	if err != nil {
		return DispatchResult{}, err
	}

	return d.dispatch(ctx, dispatchRequest{
		ProjectID:     in.ProjectID,
		Region:        in.Region,
		Environment:   in.Environment,
		DeploymentID:  DeploymentIDForClaim(in.Claim),
		Module:        in.Claim.Module(),
		ModuleVersion: module.Version,
		Track:         track,
		CPU:           module.CPU,
		Memory:        module.Memory,
		Variables:     variables,
		CallerID:      in.Caller.ID,
		Command:       in.Command,
		Dependencies:  in.Claim.Spec.Dependencies,
		ExtraData:     in.ExtraData,
	})
}

// dispatch is the state machine itself: it checks the concurrency guard,
// the destroy-cascade guard, writes the received->initiated transition
// transactionally, then launches the runner, recording a failed event if
// the launch itself fails (spec.md §7's write-then-return ordering).
func (d *Dispatcher) dispatch(ctx context.Context, req dispatchRequest) (DispatchResult, error) {
	existing, exists, err := d.Metadata.GetDeployment(ctx, req.ProjectID, req.Region, req.DeploymentID, req.Environment)
	if err != nil {
		return DispatchResult{}, err
	}

	var prevEpoch *int64
	epoch := int64(0)
	createdAt := d.Now()
	if exists {
		if !existing.Status.IsTerminal() {
			return DispatchResult{}, orcherr.Conflict("deployment_in_progress", "a non-terminal job already exists for this deployment")
		}
		e := existing.Epoch
		prevEpoch = &e
		epoch = existing.Epoch + 1
		createdAt = existing.CreatedAt
	}

	if req.Command == CommandDestroy {
		if !exists {
			return DispatchResult{}, orcherr.NotFound("deployment " + req.DeploymentID)
		}
		hasDeps, err := d.Metadata.HasDependents(ctx, req.ProjectID, req.Region, req.DeploymentID, req.Environment)
		if err != nil {
			return DispatchResult{}, err
		}
		if hasDeps {
			return DispatchResult{}, orcherr.Conflict("has_dependents", "deployment has live dependents and cannot be destroyed")
		}
	}

	jobID := d.NewJobID()
	now := d.Now()

	payload := ApiInfraPayload{
		Command:       req.Command,
		Module:        req.Module,
		ModuleVersion: req.ModuleVersion,
		Track:         req.Track,
		CPU:           req.CPU,
		Memory:        req.Memory,
		Variables:     req.Variables,
		CallerID:      req.CallerID,
		ExtraData:     req.ExtraData,
		DeploymentID:  req.DeploymentID,
		Environment:   req.Environment,
		Region:        req.Region,
		ProjectID:     req.ProjectID,
	}

	rec := schema.DeploymentRecord{
		ProjectID:     req.ProjectID,
		Region:        req.Region,
		Environment:   req.Environment,
		DeploymentID:  req.DeploymentID,
		Module:        req.Module,
		ModuleVersion: req.ModuleVersion,
		ModuleTrack:   string(req.Track),
		Variables:     req.Variables,
		Status:        schema.StatusInitiated,
		JobID:         jobID,
		Epoch:         epoch,
		Dependencies:  req.Dependencies,
		CreatedAt:     createdAt,
		UpdatedAt:     now,
	}

	event := schema.EventRecord{
		ProjectID:    req.ProjectID,
		Region:       req.Region,
		DeploymentID: req.DeploymentID,
		Environment:  req.Environment,
		Epoch:        epoch,
		Event:        eventTypeForCommand(req.Command),
		Status:       string(schema.StatusInitiated),
		JobID:        jobID,
	}

	if err := d.Metadata.TransitionDeployment(ctx, rec, event, prevEpoch); err != nil {
		return DispatchResult{}, err
	}

	launchPayload := payload
	out, err := withTransientRetry(ctx, func() (runner.LaunchOutput, error) {
		return d.Executor.Launch(ctx, runner.LaunchInput{
			JobID:        jobID,
			DeploymentID: req.DeploymentID,
			Environment:  req.Environment,
			Command:      string(req.Command),
			Payload:      mustMarshalPayload(launchPayload),
		})
	})
	if err != nil {
		d.recordLaunchFailure(ctx, rec, epoch, req.Command)
		return DispatchResult{}, classifyLaunchError(err)
	}

	return DispatchResult{JobID: jobID, TaskARN: out.TaskARN, DeploymentID: req.DeploymentID, Payload: payload}, nil
}

// recordLaunchFailure writes the "failed" transition spec.md §7 requires
// before a failed dispatch returns to the caller. It is best-effort: if the
// store itself is unreachable, the original launch error is still what the
// caller sees.
func (d *Dispatcher) recordLaunchFailure(ctx context.Context, rec schema.DeploymentRecord, prevEpoch int64, cmd Command) {
	rec.Status = schema.StatusFailed
	rec.Epoch = prevEpoch + 1
	rec.UpdatedAt = d.Now()

	event := schema.EventRecord{
		ProjectID:    rec.ProjectID,
		Region:       rec.Region,
		DeploymentID: rec.DeploymentID,
		Environment:  rec.Environment,
		Epoch:        rec.Epoch,
		Event:        eventTypeForCommand(cmd),
		Status:       string(schema.StatusFailed),
		JobID:        rec.JobID,
	}
	p := prevEpoch
	_ = d.Metadata.TransitionDeployment(ctx, rec, event, &p)
}

func eventTypeForCommand(cmd Command) schema.EventType {
	switch cmd {
	case CommandApply:
		return schema.EventApply
	case CommandDestroy:
		return schema.EventDestroy
	case CommandPlan:
		return schema.EventPlan
	default:
		return schema.EventRead
	}
}

func trackOf(s string) identifier.Track {
	return identifier.Track(s)
}

func classifyLaunchError(err error) error {
	var oe orcherr.OpsOrchError
	if errors.As(err, &oe) {
		return err
	}
	return orcherr.External("runner_launch_failed", "failed to launch runner job", err)
}
