package schema

// ClaimSpec is the body of a Claim manifest: the module to deploy, the
// variables to supply, and optional dependency declarations.
type ClaimSpec struct {
	ModuleVersion string          `yaml:"moduleVersion" json:"moduleVersion" validate:"required"`
	Variables     map[string]any  `yaml:"variables" json:"variables"`
	Dependencies  []DependencyRef `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// ClaimManifest is a full "FooClaim"-kind manifest: a declarative deployment
// request naming a module and supplying variables.
type ClaimManifest struct {
	ManifestHeader `yaml:",inline"`
	Spec           ClaimSpec `yaml:"spec" json:"spec" validate:"required"`
}

// Module derives the module slug a claim targets from its Kind, e.g. a
// "S3BucketClaim" targets module "s3bucket".
func (c ClaimManifest) Module() string {
	return toLowerASCII(c.ClaimKindBase())
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// ModuleManifestSpec is the body of a Module manifest.
type ModuleManifestSpec struct {
	ModuleName  string `yaml:"moduleName" json:"moduleName" validate:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Reference   string `yaml:"reference,omitempty" json:"reference,omitempty"`
	CPU         string `yaml:"cpu,omitempty" json:"cpu,omitempty"`
	Memory      string `yaml:"memory,omitempty" json:"memory,omitempty"`
	SourcePath  string `yaml:"sourcePath" json:"sourcePath" validate:"required"`
}

// ModuleManifest is a full Module (or Policy, which shares this shape)
// manifest as authored by a module publisher.
type ModuleManifest struct {
	ManifestHeader `yaml:",inline"`
	Spec           ModuleManifestSpec `yaml:"spec" json:"spec" validate:"required"`
}

// StackManifestSpec is the body of a Stack manifest: an ordered list of
// child claims to wire together.
type StackManifestSpec struct {
	ModuleName  string          `yaml:"moduleName" json:"moduleName" validate:"required"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	Claims      []ClaimManifest `yaml:"claims" json:"claims" validate:"required,min=1"`
}

// StackManifest is a full Stack manifest.
type StackManifest struct {
	ManifestHeader `yaml:",inline"`
	Spec           StackManifestSpec `yaml:"spec" json:"spec" validate:"required"`
}

// PolicyManifestSpec mirrors ModuleManifestSpec; policies are published the
// same way modules are but keyed without a track.
type PolicyManifestSpec = ModuleManifestSpec

// PolicyManifest is a full Policy manifest.
type PolicyManifest struct {
	ManifestHeader `yaml:",inline"`
	Environment    string             `yaml:"environment" json:"environment" validate:"required"`
	Spec           PolicyManifestSpec `yaml:"spec" json:"spec" validate:"required"`
}

// GitOpsCorrelation is the typed shape of a claim's optional extra-data
// envelope, supplementing the spec's opaque "extra-data" field with the
// dominant real-world shape original_source's GitOps adapter produces. The
// dispatcher never interprets these fields beyond echoing them into the
// change record.
type GitOpsCorrelation struct {
	Repository string `json:"repository,omitempty"`
	PRNumber   int    `json:"prNumber,omitempty"`
	CommitSHA  string `json:"commitSha,omitempty"`
	CheckRunID int64  `json:"checkRunId,omitempty"`
}
