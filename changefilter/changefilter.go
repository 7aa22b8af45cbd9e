// Package changefilter suppresses or trims noisy, operator-uninteresting
// fields from a plan's sanitized resource changes — by default the
// provisioning-system tags a module injects into every managed resource.
package changefilter

import (
	"regexp"
	"strings"

	"github.com/stratoform/controlplane/schema"
)

// FilterRule matches a changed field path, optionally narrowed by the
// value's own name and by the owning resource's type.
type FilterRule struct {
	// Path is the field path prefix the rule applies under, e.g. "tags".
	Path string `json:"path"`
	// ValuePattern, if set, must match the first path segment under Path
	// (e.g. "^INFRAWEAVE_" matches "tags.INFRAWEAVE_MODULE_VERSION").
	ValuePattern string `json:"value_pattern,omitempty"`
	// ResourcePattern, if set, must match the resource's type.
	ResourcePattern string `json:"resource_pattern,omitempty"`
}

// Filter is an ordered set of rules used to suppress or trim noisy fields
// from resource changes.
type Filter struct {
	Rules []FilterRule
}

// Default returns the built-in filter: drop tags.INFRAWEAVE_* and
// tags_all.INFRAWEAVE_* changes on resource types matching "^aws_".
func Default() Filter {
	return Filter{Rules: []FilterRule{
		{Path: "tags", ValuePattern: "^INFRAWEAVE_", ResourcePattern: "^aws_"},
		{Path: "tags_all", ValuePattern: "^INFRAWEAVE_", ResourcePattern: "^aws_"},
	}}
}

// Apply drops every change in changes whose entire field set matches the
// filter, and trims matching individual fields from the rest, in place in
// the returned slice order.
func Apply(changes []schema.SanitizedResourceChange, filter Filter) []schema.SanitizedResourceChange {
	out := make([]schema.SanitizedResourceChange, 0, len(changes))
	for _, c := range changes {
		if filter.shouldFilter(c) {
			continue
		}
		out = append(out, filter.trimFields(c))
	}
	return out
}

// shouldFilter reports whether every changed field path in c matches some
// rule scoped to c's resource type. Create/Delete/NoOp changes carry no
// field-level diff and are never filtered.
func (f Filter) shouldFilter(c schema.SanitizedResourceChange) bool {
	if c.Action != schema.ActionUpdate && c.Action != schema.ActionReplace {
		return false
	}
	if len(c.Changes) == 0 || len(f.Rules) == 0 {
		return false
	}
	for path := range c.Changes {
		if !f.fieldMatchesForResource(path, c.ResourceType) {
			return false
		}
	}
	return true
}

// trimFields removes individual changed fields that match a rule scoped to
// c's resource type, leaving the rest of the change untouched.
func (f Filter) trimFields(c schema.SanitizedResourceChange) schema.SanitizedResourceChange {
	if c.Action != schema.ActionUpdate && c.Action != schema.ActionReplace {
		return c
	}
	if len(c.Changes) == 0 || len(f.Rules) == 0 {
		return c
	}

	trimmed := make(map[string]any, len(c.Changes))
	for path, v := range c.Changes {
		if !f.fieldMatchesForResource(path, c.ResourceType) {
			trimmed[path] = v
		}
	}
	c.Changes = trimmed
	return c
}

func (f Filter) fieldMatchesAnyRule(path string) bool {
	for _, rule := range f.Rules {
		if pathMatchesRule(path, rule) {
			return true
		}
	}
	return false
}

func (f Filter) fieldMatchesForResource(path, resourceType string) bool {
	for _, rule := range f.Rules {
		if rule.ResourcePattern != "" && !matchOrPrefix(rule.ResourcePattern, resourceType) {
			continue
		}
		if pathMatchesRule(path, rule) {
			return true
		}
	}
	return false
}

// pathMatchesRule reports whether changedPath is at or under rule.Path,
// and — when rule.ValuePattern is set — whether the first path segment
// under Path matches it.
func pathMatchesRule(changedPath string, rule FilterRule) bool {
	if changedPath == rule.Path {
		return rule.ValuePattern == ""
	}
	if !strings.HasPrefix(changedPath, rule.Path+".") {
		return false
	}
	if rule.ValuePattern == "" {
		return true
	}
	valueName := changedPath[len(rule.Path)+1:]
	firstSegment, _, _ := strings.Cut(valueName, ".")
	return matchOrPrefix(rule.ValuePattern, firstSegment)
}

// matchOrPrefix compiles pattern as a regex and matches it against s,
// falling back to a plain prefix match if the pattern doesn't compile —
// an operator-supplied filter config should degrade gracefully, not panic
// a request.
func matchOrPrefix(pattern, s string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return strings.HasPrefix(s, pattern)
	}
	return re.MatchString(s)
}
