package plangraph

import (
	"fmt"
	"sort"
	"strings"
)

// buildDependencyMap turns the raw DOT edges into an address-keyed
// dependent -> dependencies map and captures each non-group node's type,
// both needed by the pass-through resolution pass. DOT edges point from a
// dependent to what it depends on, so deps[x] is literally "what x needs".
func buildDependencyMap(edges []dotEdge, dotNodeToAddress map[string]string, nodes []Node) (map[string][]string, map[string]NodeType) {
	deps := map[string][]string{}
	nodeTypes := map[string]NodeType{}

	for _, n := range nodes {
		if isGroupNode(n) {
			continue
		}
		nodeTypes[n.ID] = n.Data.Type
	}

	for _, e := range edges {
		s, sok := dotNodeToAddress[e.source]
		t, tok := dotNodeToAddress[e.target]
		if !sok || !tok || s == t {
			continue
		}
		deps[s] = append(deps[s], t)
	}

	return deps, nodeTypes
}

// augmentOutputDependencies adds edges the DOT dump may not carry: an
// output's configuration-derived references, qualified into the output's
// own module scope and normalized from a bare module-output reference
// ("module.eks.cluster_endpoint") to the canonical graph address
// ("module.eks.output.cluster_endpoint").
func augmentOutputDependencies(deps map[string][]string, configDeps map[configRefKey]map[string]bool) {
	for key := range configDeps {
		dependent, refTarget := key.Dependent, key.RefTarget
		if !strings.HasPrefix(dependent, "output.") && !strings.Contains(dependent, ".output.") {
			continue
		}

		dependentScope := ""
		if pos := strings.LastIndex(dependent, ".output."); pos >= 0 {
			dependentScope = dependent[:pos]
		}

		qualifiedTarget := refTarget
		if dependentScope != "" && strings.HasPrefix(refTarget, "module.") {
			if !strings.HasPrefix(refTarget, dependentScope+".") && refTarget != dependentScope {
				qualifiedTarget = dependentScope + "." + refTarget
			}
		}

		deps[dependent] = append(deps[dependent], normalizeModuleOutputReference(qualifiedTarget))
	}
}

// normalizeModuleOutputReference inserts ".output." before the final
// segment of a module reference when that segment names an output rather
// than a resource — a bare "module.a.module.b.cluster_endpoint" becomes
// "module.a.module.b.output.cluster_endpoint", while a resource reference
// like "module.eks.aws_eks_cluster.this" is left alone.
func normalizeModuleOutputReference(ref string) string {
	if !strings.HasPrefix(ref, "module.") {
		return ref
	}
	parts := strings.Split(ref, ".")

	i := 0
	for i+1 < len(parts) && parts[i] == "module" {
		i += 2
	}
	remaining := len(parts) - i
	isResourceRef := remaining >= 2
	hasOutputSegment := containsString(parts, "output")

	if isResourceRef || hasOutputSegment {
		return ref
	}

	newParts := append(append([]string{}, parts[:len(parts)-1]...), "output", parts[len(parts)-1])
	return strings.Join(newParts, ".")
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// resolveDependencies resolves node upstream through var/local/module-output
// pass-throughs until it reaches a non-simplifiable node (a resource, data
// source, or root var/output source), breaking cycles via stack and
// memoizing results actually computed by recursion in cache.
func resolveDependencies(node string, deps map[string][]string, types map[string]NodeType, cache map[string][]string, stack map[string]bool) []string {
	if stack[node] {
		return nil
	}
	if cached, ok := cache[node]; ok {
		return cached
	}

	nType, ok := types[node]
	if !ok {
		nType = determineBlockType(node, false)
	}
	if nType != NodeVar && nType != NodeLocal && nType != NodeOutput {
		return []string{node}
	}

	myDeps := deps[node]
	if len(myDeps) == 0 {
		return passThroughSource(node, nType)
	}

	stack[node] = true
	var resolved []string
	for _, d := range myDeps {
		resolved = append(resolved, resolveDependencies(d, deps, types, cache, stack)...)
	}
	delete(stack, node)

	if nType == NodeOutput && !strings.HasPrefix(node, "output.") {
		resolved = sortDedup(resolved)
		cache[node] = resolved
		return resolved
	}

	if len(resolved) == 0 {
		return passThroughSource(node, nType)
	}

	resolved = sortDedup(resolved)
	cache[node] = resolved
	return resolved
}

// passThroughSource is what a var/local/output with no upstream dependency
// resolves to: a root variable or root output is itself a source, a module
// output or local with nothing behind it contributes nothing.
func passThroughSource(node string, nType NodeType) []string {
	switch nType {
	case NodeVar:
		if strings.HasPrefix(node, "var.") {
			return []string{node}
		}
	case NodeOutput:
		if strings.HasPrefix(node, "output.") {
			return []string{node}
		}
	}
	return nil
}

func sortDedup(ss []string) []string {
	sort.Strings(ss)
	out := ss[:0]
	var prev string
	for i, s := range ss {
		if i == 0 || s != prev {
			out = append(out, s)
			prev = s
		}
	}
	return out
}

type simplifiedEdge struct {
	Dependent  string
	Dependency string
	Via        string
}

// simplifyEdges walks every non-group node, skipping intermediate
// pass-throughs (non-root vars, locals, module outputs) that themselves
// have further dependencies, and resolves each kept node's immediate
// dependencies to their ultimate source via resolveDependencies. The
// surviving (dependent, resolved-source, via) triples are what edge
// attribution and node filtering key off of.
func simplifyEdges(deps map[string][]string, nodeTypes map[string]NodeType) ([]simplifiedEdge, map[string]bool) {
	cache := map[string][]string{}
	stack := map[string]bool{}
	var simplified []simplifiedEdge
	activeNodes := map[string]bool{}

	for node, nType := range nodeTypes {
		isRootOutput := strings.HasPrefix(node, "output.")
		isSimplifiable := (nType == NodeVar || nType == NodeLocal || nType == NodeOutput) && !isRootOutput
		myDeps := deps[node]

		if isSimplifiable {
			if len(myDeps) > 0 {
				continue
			}
			if nType == NodeLocal {
				continue
			}
			if nType == NodeVar && !strings.HasPrefix(node, "var.") {
				continue
			}
		}

		activeNodes[node] = true

		for _, dep := range myDeps {
			for _, source := range resolveDependencies(dep, deps, nodeTypes, cache, stack) {
				if source != node {
					simplified = append(simplified, simplifiedEdge{Dependent: node, Dependency: source, Via: dep})
					activeNodes[source] = true
				}
			}
		}
	}

	return simplified, activeNodes
}

type refArgs struct {
	Ref  string
	Args map[string]bool
}

type edgeKey struct {
	Source string
	Target string
}

// attributeEdges attaches the configuration argument names responsible for
// each simplified edge: an argument counts toward an edge when its
// referenced target (qualified into the dependent's module scope) either
// exactly matches the edge's via-node or is a strict child of it in the
// dotted/indexed address path (or vice versa).
func attributeEdges(simplified []simplifiedEdge, configDeps map[configRefKey]map[string]bool) []Edge {
	configLookup := map[string][]refArgs{}
	for key, args := range configDeps {
		configLookup[key.Dependent] = append(configLookup[key.Dependent], refArgs{Ref: key.RefTarget, Args: args})
	}

	currentEdges := map[edgeKey]map[string]bool{}

	for _, se := range simplified {
		var attributes []string
		if refs, ok := configLookup[se.Dependent]; ok {
			scope := moduleScopeOf(se.Dependent)
			for _, ra := range refs {
				qualifiedRef := ra.Ref
				if scope != "" {
					qualifiedRef = scope + "." + ra.Ref
				}
				if addressesMatch(se.Via, qualifiedRef) {
					for arg := range ra.Args {
						attributes = append(attributes, arg)
					}
				}
			}
		}

		key := edgeKey{Source: se.Dependency, Target: se.Dependent}
		if currentEdges[key] == nil {
			currentEdges[key] = map[string]bool{}
		}
		for _, a := range attributes {
			currentEdges[key][a] = true
		}
	}

	edges := make([]Edge, 0, len(currentEdges))
	counter := 0
	for key, attrSet := range currentEdges {
		counter++
		attrs := make([]string, 0, len(attrSet))
		for a := range attrSet {
			attrs = append(attrs, a)
		}
		sort.Strings(attrs)
		edges = append(edges, Edge{
			ID:         fmt.Sprintf("e_%d", counter),
			Source:     key.Source,
			Target:     key.Target,
			Attributes: attrs,
		})
	}
	return edges
}

func moduleScopeOf(dependent string) string {
	parts := strings.Split(dependent, ".")
	var scope []string
	i := 0
	for i < len(parts) {
		if parts[i] == "module" && i+1 < len(parts) {
			scope = append(scope, "module", parts[i+1])
			i += 2
		} else {
			break
		}
	}
	return strings.Join(scope, ".")
}

func addressesMatch(via, ref string) bool {
	if via == ref {
		return true
	}
	if strings.HasPrefix(ref, via) {
		rest := ref[len(via):]
		return strings.HasPrefix(rest, ".") || strings.HasPrefix(rest, "[")
	}
	if strings.HasPrefix(via, ref) {
		rest := via[len(ref):]
		return strings.HasPrefix(rest, ".") || strings.HasPrefix(rest, "[")
	}
	return false
}
