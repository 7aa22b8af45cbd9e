package store

import (
	"context"
	"testing"

	"github.com/stratoform/controlplane/identifier"
	"github.com/stratoform/controlplane/schema"
)

func newTestMetadata() *Metadata {
	return NewMetadata(NewMemStore())
}

func TestPutModuleMaintainsSingleLatestRow(t *testing.T) {
	ctx := context.Background()
	md := newTestMetadata()

	if err := md.PutModule(ctx, schema.ModuleRecord{Module: "s3bucket", Track: "stable", Version: "1.0.0"}); err != nil {
		t.Fatal(err)
	}
	if err := md.PutModule(ctx, schema.ModuleRecord{Module: "s3bucket", Track: "stable", Version: "1.1.0"}); err != nil {
		t.Fatal(err)
	}

	latest, ok, err := md.GetLatestModule(ctx, identifier.TrackStable, "s3bucket")
	if err != nil || !ok {
		t.Fatalf("expected latest row, err=%v ok=%v", err, ok)
	}
	if latest.Version != "1.1.0" {
		t.Fatalf("expected latest version 1.1.0, got %s", latest.Version)
	}

	versions, err := md.ListModules(ctx, identifier.TrackStable, "s3bucket")
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 version rows, got %d", len(versions))
	}
}

func TestPutModuleRejectsNonNewerVersion(t *testing.T) {
	ctx := context.Background()
	md := newTestMetadata()

	if err := md.PutModule(ctx, schema.ModuleRecord{Module: "s3bucket", Track: "stable", Version: "1.1.0"}); err != nil {
		t.Fatal(err)
	}
	if err := md.PutModule(ctx, schema.ModuleRecord{Module: "s3bucket", Track: "stable", Version: "1.0.0"}); err == nil {
		t.Fatalf("expected version_not_newer conflict")
	}
	if err := md.PutModule(ctx, schema.ModuleRecord{Module: "s3bucket", Track: "stable", Version: "1.1.0"}); err == nil {
		t.Fatalf("expected conflict for equal version")
	}
}

func TestHasDependentsBlocksDestroy(t *testing.T) {
	ctx := context.Background()
	md := newTestMetadata()

	parent := schema.DeploymentRecord{ProjectID: "proj1", Region: "eu-west-1", DeploymentID: "net1", Environment: "prod"}
	if err := md.PutDeployment(ctx, parent, nil); err != nil {
		t.Fatal(err)
	}

	has, err := md.HasDependents(ctx, "proj1", "eu-west-1", "net1", "prod")
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Fatalf("expected no dependents yet")
	}

	child := schema.DeploymentRecord{
		ProjectID: "proj1", Region: "eu-west-1", DeploymentID: "app1", Environment: "prod",
		Dependencies: []schema.DependencyRef{{Kind: "network", Name: "net1", Environment: "prod"}},
	}
	if err := md.PutDeployment(ctx, child, nil); err != nil {
		t.Fatal(err)
	}

	has, err = md.HasDependents(ctx, "proj1", "eu-west-1", "net1", "prod")
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Fatalf("expected dependent row after child deployment declares dependency")
	}
}

func TestPutDeploymentConcurrencyConflict(t *testing.T) {
	ctx := context.Background()
	md := newTestMetadata()

	rec := schema.DeploymentRecord{ProjectID: "p", Region: "r", DeploymentID: "d", Environment: "prod", Epoch: 1}
	if err := md.PutDeployment(ctx, rec, nil); err != nil {
		t.Fatal(err)
	}

	// Writing again without a condition (prevEpoch nil) should fail since
	// the row now exists.
	if err := md.PutDeployment(ctx, rec, nil); err == nil {
		t.Fatalf("expected conflict on unconditioned re-create")
	}

	rec.Epoch = 2
	if err := md.PutDeployment(ctx, rec, ptrInt64(1)); err != nil {
		t.Fatalf("expected success with correct prevEpoch, got %v", err)
	}

	rec.Epoch = 3
	if err := md.PutDeployment(ctx, rec, ptrInt64(1)); err == nil {
		t.Fatalf("expected conflict with stale prevEpoch")
	}
}

func ptrInt64(v int64) *int64 { return &v }

func TestDeletedIndexPKDerivationIsDeterministic(t *testing.T) {
	ctx := context.Background()
	md := newTestMetadata()

	rec := schema.DeploymentRecord{ProjectID: "p", Region: "r", DeploymentID: "d", Environment: "prod"}
	if err := md.PutDeployment(ctx, rec, nil); err != nil {
		t.Fatal(err)
	}

	live, err := md.ListDeployments(ctx, "p", "r", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 1 {
		t.Fatalf("expected 1 live deployment, got %d", len(live))
	}

	rec.Deleted = 1
	rec.Epoch = 1
	if err := md.PutDeployment(ctx, rec, ptrInt64(0)); err != nil {
		t.Fatal(err)
	}

	live, err = md.ListDeployments(ctx, "p", "r", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 0 {
		t.Fatalf("expected 0 live deployments after soft delete, got %d", len(live))
	}

	all, err := md.ListDeployments(ctx, "p", "r", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 deployment total, got %d", len(all))
	}
}

func TestEventAppendAndList(t *testing.T) {
	ctx := context.Background()
	md := newTestMetadata()

	for i, ev := range []schema.EventType{schema.EventApply, schema.EventPlan, schema.EventDestroy} {
		rec := schema.EventRecord{ProjectID: "p", Region: "r", DeploymentID: "d", Environment: "prod", Epoch: int64(i), Event: ev, Status: "ok"}
		if err := md.AppendEvent(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	events, _, err := md.ListEvents(ctx, "p", "r", "d", "prod", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Event != schema.EventDestroy {
		t.Fatalf("expected newest-first ordering, got %v first", events[0].Event)
	}
	if events[0].Epoch != 2 {
		t.Fatalf("expected the newest event's epoch to round-trip as 2, got %d", events[0].Epoch)
	}
	if events[2].Epoch != 0 {
		t.Fatalf("expected the oldest event's epoch to round-trip as 0, got %d", events[2].Epoch)
	}
}

func TestGetDeploymentRoundTripsEpoch(t *testing.T) {
	ctx := context.Background()
	md := newTestMetadata()

	rec := schema.DeploymentRecord{ProjectID: "p", Region: "r", DeploymentID: "d", Environment: "prod", Epoch: 7}
	if err := md.PutDeployment(ctx, rec, nil); err != nil {
		t.Fatal(err)
	}

	got, ok, err := md.GetDeployment(ctx, "p", "r", "d", "prod")
	if err != nil || !ok {
		t.Fatalf("expected deployment record, err=%v ok=%v", err, ok)
	}
	if got.Epoch != 7 {
		t.Fatalf("expected epoch to round-trip as 7, got %d", got.Epoch)
	}
}

func TestTransitionDeploymentWritesEventAndStatusTogether(t *testing.T) {
	ctx := context.Background()
	md := newTestMetadata()

	rec := schema.DeploymentRecord{ProjectID: "p", Region: "r", DeploymentID: "d", Environment: "prod", Status: schema.StatusInitiated, Epoch: 1}
	event := schema.EventRecord{ProjectID: "p", Region: "r", DeploymentID: "d", Environment: "prod", Epoch: 1, Event: schema.EventApply, Status: "initiated"}

	if err := md.TransitionDeployment(ctx, rec, event, nil); err != nil {
		t.Fatal(err)
	}

	got, ok, err := md.GetDeployment(ctx, "p", "r", "d", "prod")
	if err != nil || !ok {
		t.Fatalf("expected deployment row, err=%v ok=%v", err, ok)
	}
	if got.Status != schema.StatusInitiated {
		t.Fatalf("expected status initiated, got %s", got.Status)
	}

	events, _, err := md.ListEvents(ctx, "p", "r", "d", "prod", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Event != schema.EventApply {
		t.Fatalf("expected one apply event, got %+v", events)
	}
}

func TestTransitionDeploymentRejectsConcurrentTransition(t *testing.T) {
	ctx := context.Background()
	md := newTestMetadata()

	rec := schema.DeploymentRecord{ProjectID: "p", Region: "r", DeploymentID: "d", Environment: "prod", Status: schema.StatusRunning, Epoch: 1}
	event := schema.EventRecord{ProjectID: "p", Region: "r", DeploymentID: "d", Environment: "prod", Epoch: 1, Event: schema.EventApply}
	if err := md.TransitionDeployment(ctx, rec, event, nil); err != nil {
		t.Fatal(err)
	}

	rec.Status = schema.StatusInitiated
	rec.Epoch = 2
	event.Epoch = 2
	if err := md.TransitionDeployment(ctx, rec, event, ptrInt64(0)); err == nil {
		t.Fatalf("expected conflict with stale prevEpoch")
	}
}

func TestChangeRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	md := newTestMetadata()

	rec := schema.ChangeRecord{
		ProjectID: "p", Region: "r", DeploymentID: "d", Environment: "prod",
		JobID: "job1", Kind: schema.ChangeRecordApply, Status: "successful",
		PlanJSON: `{"resource_changes":[]}`,
	}
	if err := md.PutChangeRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, ok, err := md.GetChangeRecord(ctx, "p", "r", "d", "prod", "job1")
	if err != nil || !ok {
		t.Fatalf("expected change record, err=%v ok=%v", err, ok)
	}
	if got.Status != "successful" || got.PlanJSON == "" {
		t.Fatalf("unexpected change record: %+v", got)
	}
}
