// Package schema holds the wire and record types shared across the control
// plane: manifests submitted by users, and the typed records the metadata
// store persists.
package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ManifestKind enumerates the tagged variants a YAML manifest can declare.
// Unknown kinds are rejected at parse time rather than coerced into one of
// these, per the design note on dynamic manifests.
type ManifestKind string

const (
	KindModule ManifestKind = "Module"
	KindStack  ManifestKind = "Stack"
	KindPolicy ManifestKind = "Policy"
	KindClaim  ManifestKind = "Claim"
)

// ObjectMeta carries the identifying fields common to every manifest kind.
type ObjectMeta struct {
	Name      string            `yaml:"name" json:"name" validate:"required"`
	Namespace string            `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Labels    map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// ManifestHeader is the portion of a manifest common to every kind, used to
// sniff which concrete type to decode into.
type ManifestHeader struct {
	APIVersion string     `yaml:"apiVersion" json:"apiVersion" validate:"required"`
	Kind       string     `yaml:"kind" json:"kind" validate:"required"`
	Metadata   ObjectMeta `yaml:"metadata" json:"metadata" validate:"required"`
}

// ClaimKindBase derives the deployment-id-friendly claim name: a
// "FooClaim"-style kind has its "Claim" suffix stripped, matching the
// dispatcher's deployment_id derivation rule.
func (h ManifestHeader) ClaimKindBase() string {
	const suffix = "Claim"
	k := h.Kind
	if len(k) > len(suffix) && k[len(k)-len(suffix):] == suffix {
		return k[:len(k)-len(suffix)]
	}
	return k
}

// ParseManifestHeader sniffs apiVersion/kind/metadata from a raw manifest
// without committing to a full decode, so callers can dispatch to the right
// concrete type.
func ParseManifestHeader(raw []byte) (ManifestHeader, error) {
	var h ManifestHeader
	if err := yaml.Unmarshal(raw, &h); err != nil {
		return ManifestHeader{}, fmt.Errorf("schema: parse manifest header: %w", err)
	}
	if h.Kind == "" {
		return ManifestHeader{}, fmt.Errorf("schema: manifest missing kind")
	}
	return h, nil
}
