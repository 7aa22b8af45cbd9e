// Package packaging implements the packaging engine (spec component C2):
// manifest parsing, IaC input/output extraction, the stack wiring
// algorithm, content-addressed archive construction, and per-version
// diffing.
package packaging

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/stratoform/controlplane/identifier"
	"github.com/stratoform/controlplane/objectstore"
	"github.com/stratoform/controlplane/orcherr"
	"github.com/stratoform/controlplane/schema"
	"github.com/stratoform/controlplane/store"
)

// Engine bundles the collaborators every publish operation needs: the
// metadata store for version bookkeeping and the object store for archive
// bytes.
type Engine struct {
	Metadata    *store.Metadata
	ObjectStore objectstore.Store
	// Regions lists every region a module archive must be fanned out to
	// (invariant (iv)); PublishModule's object-store upload loops over it.
	Regions []string
}

func NewEngine(md *store.Metadata, objStore objectstore.Store, regions []string) *Engine {
	return &Engine{Metadata: md, ObjectStore: objStore, Regions: regions}
}

// PublishModule implements publish_module. sourceTree holds the module's
// .tf files (and any other files to ship in the archive); it does not
// include the manifest file itself. now is the caller's wall-clock reading,
// stamped onto the published record's Timestamp.
func (e *Engine) PublishModule(ctx context.Context, manifest schema.ModuleManifest, sourceTree *Archive, track identifier.Track, version string, now time.Time) (schema.ModuleRecord, error) {
	if err := identifier.ValidateTrack(version, track); err != nil {
		return schema.ModuleRecord{}, orcherr.InputValidation("track_mismatch", err.Error(), err)
	}
	if manifest.Metadata.Name == "" || manifest.Spec.ModuleName == "" {
		return schema.ModuleRecord{}, orcherr.InputValidation("invalid_manifest", "module manifest missing name fields", nil)
	}

	tfSource := sourceTree.TfSource()
	tfVariables, tfOutputs, err := ExtractVariablesAndOutputs(tfSource, manifest.Metadata.Name+".tf")
	if err != nil {
		return schema.ModuleRecord{}, orcherr.InputValidation("invalid_manifest", err.Error(), err)
	}

	module := manifest.Metadata.Name
	versionDiff, err := e.computeVersionDiffAgainstLatest(ctx, track, module, tfSource)
	if err != nil {
		return schema.ModuleRecord{}, err
	}

	rec := schema.ModuleRecord{
		Module:      module,
		ModuleName:  manifest.Spec.ModuleName,
		ModuleType:  schema.ModuleTypeModule,
		Version:     version,
		Track:       string(track),
		Timestamp:   now.UTC().Format(time.RFC3339),
		Description: manifest.Spec.Description,
		Reference:   manifest.Spec.Reference,
		Manifest:    manifest.Spec.SourcePath,
		TfVariables: tfVariables,
		TfOutputs:   tfOutputs,
		VersionDiff: versionDiff,
		CPU:         manifest.Spec.CPU,
		Memory:      manifest.Spec.Memory,
		S3Key:       schema.S3KeyFor(module, version),
	}

	archiveBytes, err := sourceTree.Bytes()
	if err != nil {
		return schema.ModuleRecord{}, err
	}
	if err := e.uploadToAllRegions(ctx, rec.S3Key, archiveBytes); err != nil {
		return schema.ModuleRecord{}, err
	}

	if err := e.Metadata.PutModule(ctx, rec); err != nil {
		return schema.ModuleRecord{}, err
	}
	return rec, nil
}

// PublishStack implements publish_stack: resolve each child claim to an
// existing module version (the caller has already done this and supplies
// ChildModules), wire them together, and publish the synthesized root as a
// module_type=stack.
func (e *Engine) PublishStack(ctx context.Context, manifest schema.StackManifest, children []ChildModule, track identifier.Track, version string, now time.Time) (schema.ModuleRecord, error) {
	if err := identifier.ValidateTrack(version, track); err != nil {
		return schema.ModuleRecord{}, orcherr.InputValidation("track_mismatch", err.Error(), err)
	}

	wired, err := GenerateFullTerraformModule(children)
	if err != nil {
		return schema.ModuleRecord{}, err
	}

	sourceTree := NewArchive()
	sourceTree.AddFile("main.tf", []byte(wired.ModulesHCL))
	sourceTree.AddFile("variables.tf", []byte(wired.VariablesHCL))
	sourceTree.AddFile("outputs.tf", []byte(wired.OutputsHCL))

	tfSource := wired.ModulesHCL + "\n" + wired.VariablesHCL + "\n" + wired.OutputsHCL
	tfVariables, tfOutputs, err := ExtractVariablesAndOutputs(tfSource, manifest.Metadata.Name+".tf")
	if err != nil {
		return schema.ModuleRecord{}, orcherr.InputValidation("invalid_manifest", err.Error(), err)
	}

	module := manifest.Metadata.Name
	versionDiff, err := e.computeVersionDiffAgainstLatest(ctx, track, module, tfSource)
	if err != nil {
		return schema.ModuleRecord{}, err
	}

	stackData := make([]schema.StackDataEntry, 0, len(children))
	for _, c := range children {
		archiveDir := archiveBasename(c.Module.S3Key)
		stackData = append(stackData, schema.StackDataEntry{
			Module:        c.Module.Module,
			ModuleVersion: c.Module.Version,
			ArchiveDir:    archiveDir,
		})

		childArchiveBytes, err := e.downloadArchive(ctx, c.Module.S3Key)
		if err != nil {
			return schema.ModuleRecord{}, err
		}
		childArchive, err := ReadArchive(childArchiveBytes)
		if err != nil {
			return schema.ModuleRecord{}, err
		}
		sourceTree.Merge(archiveDir, childArchive)
	}

	rec := schema.ModuleRecord{
		Module:      module,
		ModuleName:  manifest.Spec.ModuleName,
		ModuleType:  schema.ModuleTypeStack,
		Version:     version,
		Track:       string(track),
		Timestamp:   now.UTC().Format(time.RFC3339),
		Description: manifest.Spec.Description,
		Manifest:    "stack.yaml",
		TfVariables: tfVariables,
		TfOutputs:   tfOutputs,
		StackData:   stackData,
		VersionDiff: versionDiff,
		S3Key:       schema.S3KeyFor(module, version),
	}

	archiveBytes, err := sourceTree.Bytes()
	if err != nil {
		return schema.ModuleRecord{}, err
	}
	if err := e.uploadToAllRegions(ctx, rec.S3Key, archiveBytes); err != nil {
		return schema.ModuleRecord{}, err
	}

	if err := e.Metadata.PutModule(ctx, rec); err != nil {
		return schema.ModuleRecord{}, err
	}
	return rec, nil
}

// GetStackPreview implements get_stack_preview: wire the children together
// and return the concatenated HCL without publishing anything.
func GetStackPreview(children []ChildModule) (string, error) {
	wired, err := GenerateFullTerraformModule(children)
	if err != nil {
		return "", err
	}
	return wired.ModulesHCL + "\n" + wired.VariablesHCL + "\n" + wired.OutputsHCL, nil
}

func (e *Engine) computeVersionDiffAgainstLatest(ctx context.Context, track identifier.Track, module, newTfSource string) (*schema.VersionDiff, error) {
	latest, ok, err := e.Metadata.GetLatestModule(ctx, track, module)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	prevArchiveBytes, err := e.downloadArchive(ctx, latest.S3Key)
	if err != nil {
		return nil, err
	}
	prevArchive, err := ReadArchive(prevArchiveBytes)
	if err != nil {
		return nil, err
	}

	diff, err := DiffModuleSource(prevArchive.TfSource(), newTfSource)
	if err != nil {
		return nil, err
	}
	return &diff, nil
}

func (e *Engine) uploadToAllRegions(ctx context.Context, key string, data []byte) error {
	regions := e.Regions
	if len(regions) == 0 {
		regions = []string{""}
	}
	for _, region := range regions {
		regionalKey := key
		if region != "" {
			regionalKey = region + "/" + key
		}
		if err := e.ObjectStore.Put(ctx, regionalKey, bytesReader(data), int64(len(data))); err != nil {
			return orcherr.SubstratePermanent(fmt.Sprintf("upload module archive to region %s", region), err)
		}
	}
	return nil
}

func (e *Engine) downloadArchive(ctx context.Context, key string) ([]byte, error) {
	if len(e.Regions) > 0 && e.Regions[0] != "" {
		key = e.Regions[0] + "/" + key
	}
	rc, err := e.ObjectStore.Get(ctx, key)
	if err != nil {
		return nil, orcherr.SubstratePermanent("download module archive", err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func bytesReader(b []byte) io.Reader {
	return &byteReader{b: b}
}

type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}
