package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/stratoform/controlplane/identifier"
	"github.com/stratoform/controlplane/orcherr"
	"github.com/stratoform/controlplane/schema"
)

// Metadata is the typed operations layer over a Substrate: every method
// composes the right keys (via keys.go and the schema record's own PK
// derivation methods) and issues exactly the Substrate calls the spec
// allows, so callers above this package never see a raw Item or Key.
type Metadata struct {
	db Substrate
}

func NewMetadata(db Substrate) *Metadata {
	return &Metadata{db: db}
}

const moduleVersionWidth = 6

// GetLatestModule fetches the single LATEST_MODULE mirror row for a
// module/track — invariant (i) from spec §8: there is exactly one such row
// per (track, module), updated in lockstep with the version row.
func (m *Metadata) GetLatestModule(ctx context.Context, track identifier.Track, module string) (schema.ModuleRecord, bool, error) {
	item, ok, err := m.db.GetItem(ctx, Key{PK: LatestModulePK, SK: LatestModuleSK(track, module)})
	if err != nil || !ok {
		return schema.ModuleRecord{}, ok, err
	}
	return decodeModule(item)
}

// GetModule fetches one specific published version.
func (m *Metadata) GetModule(ctx context.Context, track identifier.Track, module, version string) (schema.ModuleRecord, bool, error) {
	padded, err := identifier.ZeroPadSemver(version, moduleVersionWidth)
	if err != nil {
		return schema.ModuleRecord{}, false, orcherr.InputValidation("invalid_version", err.Error(), err)
	}
	item, ok, err := m.db.GetItem(ctx, Key{PK: ModulePK(track, module), SK: ModuleVersionSK(padded)})
	if err != nil || !ok {
		return schema.ModuleRecord{}, ok, err
	}
	return decodeModule(item)
}

// ListModules returns every published version of a module/track, newest
// first.
func (m *Metadata) ListModules(ctx context.Context, track identifier.Track, module string) ([]schema.ModuleRecord, error) {
	out, err := m.db.Query(ctx, QueryInput{
		PK:               ModulePK(track, module),
		SKBeginsWith:     "VERSION#",
		ScanIndexForward: false,
	})
	if err != nil {
		return nil, err
	}
	records := make([]schema.ModuleRecord, 0, len(out.Items))
	for _, it := range out.Items {
		rec, _, err := decodeModule(it)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// PutModule publishes a new module version, enforcing invariant (ii): a
// publish only succeeds if the new version is strictly newer than whatever
// LATEST_MODULE currently points to. Both the version row and the
// LATEST_MODULE mirror row are written atomically.
func (m *Metadata) PutModule(ctx context.Context, rec schema.ModuleRecord) error {
	padded, err := identifier.ZeroPadSemver(rec.Version, moduleVersionWidth)
	if err != nil {
		return orcherr.InputValidation("invalid_version", err.Error(), err)
	}

	track := identifier.Track(rec.Track)
	if existing, ok, err := m.GetLatestModule(ctx, track, rec.Module); err != nil {
		return err
	} else if ok {
		cmp, err := identifier.CompareVersions(rec.Version, existing.Version)
		if err != nil {
			return orcherr.InputValidation("invalid_version", err.Error(), err)
		}
		if cmp <= 0 {
			return orcherr.Conflict("version_not_newer",
				fmt.Sprintf("version %s is not strictly newer than published %s", rec.Version, existing.Version))
		}
	}

	versionItem := encodeModule(rec)
	versionItem["PK"] = ModulePK(track, rec.Module)
	versionItem["SK"] = ModuleVersionSK(padded)

	latestItem := encodeModule(rec)
	latestItem["PK"] = LatestModulePK
	latestItem["SK"] = LatestModuleSK(track, rec.Module)

	return m.db.TransactWrite(ctx, []TransactWriteOp{
		{Put: &versionItem, Condition: &Condition{Attribute: "SK", Op: CondAttributeNotExists}},
		{Put: &latestItem},
	})
}

// DeprecateModule flips the deprecated flag on one published version and
// its LATEST_MODULE mirror row (when that version is still the latest),
// without running PutModule's strictly-newer version check — deprecation
// marks an existing version, it doesn't publish a new one.
func (m *Metadata) DeprecateModule(ctx context.Context, track identifier.Track, module, version string) error {
	rec, ok, err := m.GetModule(ctx, track, module, version)
	if err != nil {
		return err
	}
	if !ok {
		return orcherr.NotFound("module " + module + "@" + version)
	}

	padded, err := identifier.ZeroPadSemver(version, moduleVersionWidth)
	if err != nil {
		return orcherr.InputValidation("invalid_version", err.Error(), err)
	}
	deprecated := true
	rec.Deprecated = &deprecated

	versionItem := encodeModule(rec)
	versionItem["PK"] = ModulePK(track, module)
	versionItem["SK"] = ModuleVersionSK(padded)
	ops := []TransactWriteOp{{Put: &versionItem}}

	if latest, ok, err := m.GetLatestModule(ctx, track, module); err != nil {
		return err
	} else if ok && latest.Version == version {
		latestItem := encodeModule(rec)
		latestItem["PK"] = LatestModulePK
		latestItem["SK"] = LatestModuleSK(track, module)
		ops = append(ops, TransactWriteOp{Put: &latestItem})
	}

	return m.db.TransactWrite(ctx, ops)
}

func encodeModule(rec schema.ModuleRecord) Item {
	return Item{
		"module":      rec.Module,
		"moduleName":  rec.ModuleName,
		"moduleType":  string(rec.ModuleType),
		"version":     rec.Version,
		"track":       rec.Track,
		"timestamp":   rec.Timestamp,
		"description": rec.Description,
		"reference":   rec.Reference,
		"manifest":    rec.Manifest,
		"tfVariables": rec.TfVariables,
		"tfOutputs":   rec.TfOutputs,
		"stackData":   rec.StackData,
		"versionDiff": rec.VersionDiff,
		"cpu":         rec.CPU,
		"memory":      rec.Memory,
		"s3Key":       rec.S3Key,
		"deprecated":  rec.Deprecated,
	}
}

func decodeModule(it Item) (schema.ModuleRecord, bool, error) {
	rec := schema.ModuleRecord{
		Module:      asString(it["module"]),
		ModuleName:  asString(it["moduleName"]),
		ModuleType:  schema.ModuleType(asString(it["moduleType"])),
		Version:     asString(it["version"]),
		Track:       asString(it["track"]),
		Timestamp:   asString(it["timestamp"]),
		Description: asString(it["description"]),
		Reference:   asString(it["reference"]),
		Manifest:    asString(it["manifest"]),
		CPU:         asString(it["cpu"]),
		Memory:      asString(it["memory"]),
		S3Key:       asString(it["s3Key"]),
	}
	if tv, ok := it["tfVariables"].([]schema.TfVariable); ok {
		rec.TfVariables = tv
	}
	if to, ok := it["tfOutputs"].([]schema.TfOutput); ok {
		rec.TfOutputs = to
	}
	if sd, ok := it["stackData"].([]schema.StackDataEntry); ok {
		rec.StackData = sd
	}
	if vd, ok := it["versionDiff"].(*schema.VersionDiff); ok {
		rec.VersionDiff = vd
	}
	if dep, ok := it["deprecated"].(*bool); ok {
		rec.Deprecated = dep
	}
	return rec, true, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asInt64 normalizes an epoch-like attribute across substrates: MemStore
// round-trips the Go value as-is (int64), while DynamoStore's
// attributevalue.UnmarshalMap decodes a Number attribute into map[string]any
// as float64. encodeDeployment additionally stores epoch as a decimal
// string so it can be used in a condition expression.
func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

// GetDeployment fetches the METADATA row of one deployment.
func (m *Metadata) GetDeployment(ctx context.Context, project, region, deploymentID, environment string) (schema.DeploymentRecord, bool, error) {
	item, ok, err := m.db.GetItem(ctx, Key{
		PK: DeploymentPK(project, region, deploymentID, environment),
		SK: DeploymentMetadataSK,
	})
	if err != nil || !ok {
		return schema.DeploymentRecord{}, ok, err
	}
	return decodeDeployment(item)
}

// ListDeployments queries deployments under a project/region, optionally
// filtering to non-deleted ones via the DeletedIndex.
func (m *Metadata) ListDeployments(ctx context.Context, project, region string, includeDeleted bool) ([]schema.DeploymentRecord, error) {
	pk := "0|DEPLOYMENT#" + project + "::" + region + "::"
	if includeDeleted {
		// Two queries (live + deleted) merged, since DeletedIndex's PK
		// encodes the deleted flag itself.
		live, err := m.queryDeletedIndex(ctx, pk)
		if err != nil {
			return nil, err
		}
		deleted, err := m.queryDeletedIndex(ctx, "1|DEPLOYMENT#"+project+"::"+region+"::")
		if err != nil {
			return nil, err
		}
		return append(live, deleted...), nil
	}
	return m.queryDeletedIndex(ctx, pk)
}

func (m *Metadata) queryDeletedIndex(ctx context.Context, pk string) ([]schema.DeploymentRecord, error) {
	out, err := m.db.Query(ctx, QueryInput{Index: DeletedIndex, PK: pk, ScanIndexForward: true})
	if err != nil {
		return nil, err
	}
	records := make([]schema.DeploymentRecord, 0, len(out.Items))
	for _, it := range out.Items {
		rec, _, err := decodeDeployment(it)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ListDeploymentsByModule queries the ModuleIndex for every deployment of a
// given module in a project/region, used to compute drift-check fan-out and
// to answer "who uses this module" queries.
func (m *Metadata) ListDeploymentsByModule(ctx context.Context, project, region, module string) ([]schema.DeploymentRecord, error) {
	out, err := m.db.Query(ctx, QueryInput{
		Index: ModuleIndex,
		PK:    "MODULE#" + project + "::" + region + "::::" + module,
	})
	if err != nil {
		return nil, err
	}
	records := make([]schema.DeploymentRecord, 0, len(out.Items))
	for _, it := range out.Items {
		rec, _, err := decodeDeployment(it)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// HasDependents reports whether any other deployment declares a dependency
// on this one, by checking for DEPENDENT# rows under its partition — the
// guard behind the destroy-cascade policy (spec §8 testable property 6).
func (m *Metadata) HasDependents(ctx context.Context, project, region, deploymentID, environment string) (bool, error) {
	out, err := m.db.Query(ctx, QueryInput{
		PK:           DeploymentPK(project, region, deploymentID, environment),
		SKBeginsWith: "DEPENDENT#",
		Limit:        1,
	})
	if err != nil {
		return false, err
	}
	return len(out.Items) > 0, nil
}

// PutDeployment writes (or updates) a deployment's METADATA row under an
// optimistic-concurrency condition on Epoch: if prevEpoch is non-nil, the
// write only applies when the stored epoch still equals it (spec §8
// testable property 7 — DeploymentInProgress conflict detection).
func (m *Metadata) PutDeployment(ctx context.Context, rec schema.DeploymentRecord, prevEpoch *int64) error {
	if err := m.db.TransactWrite(ctx, deploymentWriteOps(rec, prevEpoch)); err != nil {
		var condErr *ErrConditionFailed
		if errors.As(err, &condErr) {
			return orcherr.Conflict("deployment_in_progress", "deployment was concurrently modified")
		}
		return err
	}
	return nil
}

// TransitionDeployment is the state-machine writer spec.md §4.4 requires:
// "any transition writes one event row and updates the deployment METADATA
// row transactionally; status fields are never observed in an inconsistent
// intermediate state by readers." It issues the deployment row (plus any
// reciprocal DEPENDENT# rows) and the event row as a single TransactWrite
// call, so a reader never sees the event without the matching status or
// vice versa.
func (m *Metadata) TransitionDeployment(ctx context.Context, rec schema.DeploymentRecord, event schema.EventRecord, prevEpoch *int64) error {
	ops := deploymentWriteOps(rec, prevEpoch)
	ops = append(ops, TransactWriteOp{Put: eventItem(event)})

	if err := m.db.TransactWrite(ctx, ops); err != nil {
		var condErr *ErrConditionFailed
		if errors.As(err, &condErr) {
			return orcherr.Conflict("deployment_in_progress", "deployment was concurrently modified")
		}
		return err
	}
	return nil
}

func deploymentWriteOps(rec schema.DeploymentRecord, prevEpoch *int64) []TransactWriteOp {
	item := encodeDeployment(rec)
	item["PK"] = DeploymentPK(rec.ProjectID, rec.Region, rec.DeploymentID, rec.Environment)
	item["SK"] = DeploymentMetadataSK
	item["DeletedIndexPK"] = rec.DeletedIndexPK()
	item["DeletedIndexSK"] = item["PK"]
	item["ModuleIndexPK"] = rec.ModuleIndexPK()
	item["ModuleIndexSK"] = item["PK"]
	if rec.Deleted == 0 && rec.NextDriftCheckEpoch > 0 {
		item["DriftCheckIndexPK"] = "DRIFTCHECK#" + rec.Region
		item["DriftCheckIndexSK"] = fmt.Sprintf("%020d", rec.NextDriftCheckEpoch)
	}

	op := TransactWriteOp{Put: &item}
	if prevEpoch != nil {
		op.Condition = &Condition{Attribute: "epoch", Op: CondAttributeEquals, Values: []string{fmt.Sprintf("%d", *prevEpoch)}}
	} else {
		op.Condition = &Condition{Attribute: "SK", Op: CondAttributeNotExists}
	}

	ops := []TransactWriteOp{op}
	for _, dep := range rec.Dependencies {
		depPK := DeploymentPK(rec.ProjectID, rec.Region, dep.Name, dep.Environment)
		ops = append(ops, TransactWriteOp{
			Put: &Item{
				"PK":         depPK,
				"SK":         DependentSK(rec.DeploymentID),
				"deployment": rec.DeploymentID,
			},
		})
	}
	return ops
}

func encodeDeployment(rec schema.DeploymentRecord) Item {
	return Item{
		"projectId":           rec.ProjectID,
		"region":              rec.Region,
		"environment":         rec.Environment,
		"deploymentId":        rec.DeploymentID,
		"module":              rec.Module,
		"moduleVersion":       rec.ModuleVersion,
		"moduleTrack":         rec.ModuleTrack,
		"variables":           rec.Variables,
		"output":              rec.Output,
		"status":              string(rec.Status),
		"jobId":               rec.JobID,
		"epoch":               fmt.Sprintf("%d", rec.Epoch),
		"deleted":             rec.Deleted,
		"policyResults":       rec.PolicyResults,
		"dependencies":        rec.Dependencies,
		"dependents":          rec.Dependents,
		"nextDriftCheckEpoch": rec.NextDriftCheckEpoch,
		"reference":           rec.Reference,
		"createdAt":           rec.CreatedAt,
		"updatedAt":           rec.UpdatedAt,
	}
}

func decodeDeployment(it Item) (schema.DeploymentRecord, bool, error) {
	rec := schema.DeploymentRecord{
		ProjectID:     asString(it["projectId"]),
		Region:        asString(it["region"]),
		Environment:   asString(it["environment"]),
		DeploymentID:  asString(it["deploymentId"]),
		Module:        asString(it["module"]),
		ModuleVersion: asString(it["moduleVersion"]),
		ModuleTrack:   asString(it["moduleTrack"]),
		Status:        schema.DeploymentStatus(asString(it["status"])),
		JobID:         asString(it["jobId"]),
		Epoch:         asInt64(it["epoch"]),
		Reference:     asString(it["reference"]),
	}
	if vars, ok := it["variables"].(map[string]any); ok {
		rec.Variables = vars
	}
	if out, ok := it["output"].(map[string]any); ok {
		rec.Output = out
	}
	if d, ok := it["deleted"].(int); ok {
		rec.Deleted = d
	}
	if pr, ok := it["policyResults"].([]schema.PolicyResult); ok {
		rec.PolicyResults = pr
	}
	if deps, ok := it["dependencies"].([]schema.DependencyRef); ok {
		rec.Dependencies = deps
	}
	if dts, ok := it["dependents"].([]string); ok {
		rec.Dependents = dts
	}
	if ndc, ok := it["nextDriftCheckEpoch"].(int64); ok {
		rec.NextDriftCheckEpoch = ndc
	}
	if ca, ok := it["createdAt"].(time.Time); ok {
		rec.CreatedAt = ca
	}
	if ua, ok := it["updatedAt"].(time.Time); ok {
		rec.UpdatedAt = ua
	}
	return rec, true, nil
}

// AppendEvent appends one row to a deployment's event log. Event rows are
// never updated, so no condition is needed beyond uniqueness of the SK,
// which eventItem derives as "EVENT#{zero-padded epoch}#{event}".
func (m *Metadata) AppendEvent(ctx context.Context, rec schema.EventRecord) error {
	return m.db.TransactWrite(ctx, []TransactWriteOp{{Put: eventItem(rec)}})
}

func eventItem(rec schema.EventRecord) *Item {
	sk := fmt.Sprintf("EVENT#%020d#%s", rec.Epoch, rec.Event)
	return &Item{
		"PK":            EventPK(rec.ProjectID, rec.Region, rec.DeploymentID, rec.Environment),
		"SK":            sk,
		"projectId":     rec.ProjectID,
		"region":        rec.Region,
		"deploymentId":  rec.DeploymentID,
		"environment":   rec.Environment,
		"epoch":         rec.Epoch,
		"event":         string(rec.Event),
		"status":        rec.Status,
		"jobId":         rec.JobID,
		"metadata":      rec.Metadata,
		"RegionIndexPK": rec.RegionIndexPK(),
		"RegionIndexSK": fmt.Sprintf("%020d", rec.Epoch),
	}
}

// ListEvents returns a deployment's event log, newest first.
func (m *Metadata) ListEvents(ctx context.Context, project, region, deploymentID, environment string, limit int, startKey map[string]string) ([]schema.EventRecord, map[string]string, error) {
	out, err := m.db.Query(ctx, QueryInput{
		PK:                EventPK(project, region, deploymentID, environment),
		SKBeginsWith:      "EVENT#",
		ScanIndexForward:  false,
		Limit:             limit,
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		return nil, nil, err
	}
	events := make([]schema.EventRecord, 0, len(out.Items))
	for _, it := range out.Items {
		events = append(events, schema.EventRecord{
			ProjectID:    asString(it["projectId"]),
			Region:       asString(it["region"]),
			DeploymentID: asString(it["deploymentId"]),
			Environment:  asString(it["environment"]),
			Epoch:        asInt64(it["epoch"]),
			Event:        schema.EventType(asString(it["event"])),
			Status:       asString(it["status"]),
			JobID:        asString(it["jobId"]),
		})
	}
	return events, out.LastEvaluatedKey, nil
}

// ListEventsInRegionWindow answers the RegionIndex time-window query used by
// tenant-wide activity views.
func (m *Metadata) ListEventsInRegionWindow(ctx context.Context, region string, from, to int64) ([]schema.EventRecord, error) {
	out, err := m.db.Query(ctx, QueryInput{
		Index: RegionIndex,
		PK:    "EVENT#" + region,
		SKBetween: &SKRange{
			From: fmt.Sprintf("%020d", from),
			To:   fmt.Sprintf("%020d", to),
		},
		ScanIndexForward: true,
	})
	if err != nil {
		return nil, err
	}
	events := make([]schema.EventRecord, 0, len(out.Items))
	for _, it := range out.Items {
		events = append(events, schema.EventRecord{
			ProjectID:    asString(it["projectId"]),
			Region:       asString(it["region"]),
			DeploymentID: asString(it["deploymentId"]),
			Environment:  asString(it["environment"]),
			Epoch:        asInt64(it["epoch"]),
			Event:        schema.EventType(asString(it["event"])),
			Status:       asString(it["status"]),
		})
	}
	return events, nil
}

// PutChangeRecord stores the artifact a runner job produces on completion.
func (m *Metadata) PutChangeRecord(ctx context.Context, rec schema.ChangeRecord) error {
	item := Item{
		"PK":              ChangeRecordPK("CHANGE", rec.ProjectID, rec.Region, rec.DeploymentID, rec.Environment),
		"SK":              fmt.Sprintf("JOB#%s", rec.JobID),
		"projectId":       rec.ProjectID,
		"region":          rec.Region,
		"deploymentId":    rec.DeploymentID,
		"environment":     rec.Environment,
		"jobId":           rec.JobID,
		"kind":            string(rec.Kind),
		"status":          rec.Status,
		"planJson":        rec.PlanJSON,
		"planObjectKey":   rec.PlanObjectKey,
		"stdout":          rec.Stdout,
		"stdoutObjectKey": rec.StdoutObjectKey,
		"resourceChanges": rec.ResourceChanges,
		"policyResults":   rec.PolicyResults,
		"createdAtEpoch":  rec.CreatedAtEpoch,
	}
	return m.db.TransactWrite(ctx, []TransactWriteOp{{Put: &item}})
}

// GetChangeRecord fetches one job's change record.
func (m *Metadata) GetChangeRecord(ctx context.Context, project, region, deploymentID, environment, jobID string) (schema.ChangeRecord, bool, error) {
	item, ok, err := m.db.GetItem(ctx, Key{
		PK: ChangeRecordPK("CHANGE", project, region, deploymentID, environment),
		SK: fmt.Sprintf("JOB#%s", jobID),
	})
	if err != nil || !ok {
		return schema.ChangeRecord{}, ok, err
	}
	rec := schema.ChangeRecord{
		ProjectID:       asString(item["projectId"]),
		Region:          asString(item["region"]),
		DeploymentID:    asString(item["deploymentId"]),
		Environment:     asString(item["environment"]),
		JobID:           asString(item["jobId"]),
		Kind:            schema.ChangeRecordKind(asString(item["kind"])),
		Status:          asString(item["status"]),
		PlanJSON:        asString(item["planJson"]),
		PlanObjectKey:   asString(item["planObjectKey"]),
		Stdout:          asString(item["stdout"]),
		StdoutObjectKey: asString(item["stdoutObjectKey"]),
	}
	if rc, ok := item["resourceChanges"].([]schema.SanitizedResourceChange); ok {
		rec.ResourceChanges = rc
	}
	if pr, ok := item["policyResults"].([]schema.PolicyResult); ok {
		rec.PolicyResults = pr
	}
	return rec, true, nil
}

// PutProject upserts a tenant-level project record.
func (m *Metadata) PutProject(ctx context.Context, rec schema.ProjectRecord) error {
	item := Item{
		"PK":        ProjectPKPrefix + rec.ProjectID,
		"SK":        ProjectSK(rec.ProjectID),
		"projectId": rec.ProjectID,
		"region":    rec.Region,
		"name":      rec.Name,
	}
	return m.db.TransactWrite(ctx, []TransactWriteOp{{Put: &item}})
}

// GetProject fetches a project record by id.
func (m *Metadata) GetProject(ctx context.Context, projectID string) (schema.ProjectRecord, bool, error) {
	item, ok, err := m.db.GetItem(ctx, Key{PK: ProjectPKPrefix + projectID, SK: ProjectSK(projectID)})
	if err != nil || !ok {
		return schema.ProjectRecord{}, ok, err
	}
	return schema.ProjectRecord{
		ProjectID: asString(item["projectId"]),
		Region:    asString(item["region"]),
		Name:      asString(item["name"]),
	}, true, nil
}

// DueForDriftCheck queries the DriftCheckIndex for every deployment whose
// scheduled next-check epoch has passed, used by RunDriftCheck's fan-out.
func (m *Metadata) DueForDriftCheck(ctx context.Context, region string, asOfEpoch int64) ([]schema.DeploymentRecord, error) {
	out, err := m.db.Query(ctx, QueryInput{
		Index: DriftCheckIndex,
		PK:    "DRIFTCHECK#" + region,
		SKBetween: &SKRange{
			From: "0",
			To:   fmt.Sprintf("%020d", asOfEpoch),
		},
		ScanIndexForward: true,
	})
	if err != nil {
		return nil, err
	}
	records := make([]schema.DeploymentRecord, 0, len(out.Items))
	for _, it := range out.Items {
		rec, _, err := decodeDeployment(it)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
