package plangraph

import (
	"encoding/json"
	"strings"
)

// configRefKey is one (dependent address, raw reference text) pair found
// while walking the plan's configuration expression tree.
type configRefKey struct {
	Dependent string
	RefTarget string
}

// traverseConfiguration recursively walks a module's resource expressions,
// count/for_each expressions, and output expressions, recording every
// reference it finds as a (dependent, referenced_target, argument_name)
// triple in into. Resource addresses in child modules are qualified with
// parentPath since ResourceConfig.Address only carries the resource's local
// type.name.
func traverseConfiguration(module moduleConfig, parentPath string, into map[configRefKey]map[string]bool) {
	for _, res := range module.Resources {
		fullAddress := qualify(parentPath, res.Address)

		for argName, exprVal := range res.Expressions {
			for _, target := range referencesIn(exprVal) {
				addConfigRef(into, fullAddress, target, argName)
			}
		}
		for _, target := range referencesIn(res.CountExpression) {
			addConfigRef(into, fullAddress, target, "count")
		}
		for _, target := range referencesIn(res.ForEachExpression) {
			addConfigRef(into, fullAddress, target, "for_each")
		}
	}

	for name, out := range module.Outputs {
		fullAddress := qualify(parentPath, "output."+name)
		refs := referencesIn(out.Expression)

		// Drop references that are a prefix of another reference in the
		// same expression (keep the more specific one).
		filtered := filterPrefixedReferences(refs)

		for _, target := range filtered {
			stripped := stripAttributePath(target)
			qualified := qualifyConfigReference(stripped, parentPath)
			addConfigRef(into, fullAddress, qualified, "value")
		}
	}

	for name, call := range module.ModuleCalls {
		if call.Module == nil {
			continue
		}
		traverseConfiguration(*call.Module, qualify(parentPath, "module."+name), into)
	}
}

func qualify(parentPath, local string) string {
	if parentPath == "" {
		return local
	}
	return parentPath + "." + local
}

func addConfigRef(into map[configRefKey]map[string]bool, dependent, target, arg string) {
	key := configRefKey{Dependent: dependent, RefTarget: target}
	if into[key] == nil {
		into[key] = map[string]bool{}
	}
	into[key][arg] = true
}

func referencesIn(raw json.RawMessage) []string {
	var refs []string
	extractReferences(decodeRaw(raw), &refs)
	return refs
}

func extractReferences(val any, refs *[]string) {
	switch v := val.(type) {
	case map[string]any:
		if refList, ok := v["references"].([]any); ok {
			for _, r := range refList {
				if s, ok := r.(string); ok {
					*refs = append(*refs, s)
				}
			}
		}
		for _, vv := range v {
			extractReferences(vv, refs)
		}
	case []any:
		for _, vv := range v {
			extractReferences(vv, refs)
		}
	}
}

func filterPrefixedReferences(refs []string) []string {
	var out []string
	for _, a := range refs {
		prefixOfAnother := false
		for _, b := range refs {
			if b != a && strings.HasPrefix(b, a+".") {
				prefixOfAnother = true
				break
			}
		}
		if !prefixOfAnother {
			out = append(out, a)
		}
	}
	return out
}

// stripAttributePath trims a trailing attribute off a resource/data
// reference ("aws_instance.web[0].id" -> "aws_instance.web"), leaving
// module/var/local references untouched since their full dotted path is
// the dependency identity.
func stripAttributePath(reference string) string {
	parts := strings.Split(reference, ".")
	if len(parts) < 2 {
		return reference
	}

	switch parts[0] {
	case "module", "var", "local":
		return reference
	case "data":
		if len(parts) >= 3 {
			name := strings.SplitN(parts[2], "[", 2)[0]
			return parts[0] + "." + parts[1] + "." + name
		}
		return reference
	default:
		name := strings.SplitN(parts[1], "[", 2)[0]
		return parts[0] + "." + name
	}
}

// qualifyConfigReference prefixes a plain resource reference found inside
// an output expression with the module scope the output is defined in;
// module/var/local/output/data references already carry their own scope
// and are left as-is.
func qualifyConfigReference(strippedRef, parentPath string) string {
	if parentPath == "" {
		return strippedRef
	}
	for _, prefix := range [5]string{"module.", "var.", "local.", "output.", "data."} {
		if strings.HasPrefix(strippedRef, prefix) {
			return strippedRef
		}
	}
	return parentPath + "." + strippedRef
}
