package packaging

import (
	"fmt"

	"github.com/stratoform/controlplane/orcherr"
	"github.com/stratoform/controlplane/schema"
	"gopkg.in/yaml.v3"
)

// ParseManifest sniffs a raw manifest's kind and decodes it into the
// matching concrete type: a ModuleManifest/PolicyManifest, a StackManifest,
// or a ClaimManifest. The returned value's concrete type is one of those
// four; callers type-switch on it.
func ParseManifest(raw []byte) (any, error) {
	header, err := schema.ParseManifestHeader(raw)
	if err != nil {
		return nil, orcherr.InputValidation("invalid_manifest", err.Error(), err)
	}

	switch {
	case header.Kind == string(schema.KindStack):
		var m schema.StackManifest
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return nil, orcherr.InputValidation("invalid_manifest", "stack manifest decode failed", err)
		}
		return m, nil
	case header.Kind == string(schema.KindPolicy):
		var m schema.PolicyManifest
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return nil, orcherr.InputValidation("invalid_manifest", "policy manifest decode failed", err)
		}
		return m, nil
	case header.Kind == string(schema.KindModule):
		var m schema.ModuleManifest
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return nil, orcherr.InputValidation("invalid_manifest", "module manifest decode failed", err)
		}
		return m, nil
	case len(header.Kind) > len("Claim") && header.Kind[len(header.Kind)-len("Claim"):] == "Claim":
		var m schema.ClaimManifest
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return nil, orcherr.InputValidation("invalid_manifest", "claim manifest decode failed", err)
		}
		return m, nil
	default:
		return nil, orcherr.InputValidation("invalid_manifest", fmt.Sprintf("unrecognized manifest kind %q", header.Kind), nil)
	}
}
