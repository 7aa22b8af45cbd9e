// Package plangraph fuses an IaC plan document with a dependency-graph dump
// into a simplified, hierarchical DAG suitable for rendering: resources and
// data sources grouped by module, pass-through var/local/module-output
// nodes resolved away, and each surviving edge annotated with the
// configuration arguments that created it.
package plangraph

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/stratoform/controlplane/orcherr"
)

// NodeType is the visual/semantic class of a graph node.
type NodeType string

const (
	NodeResource NodeType = "resource"
	NodeData     NodeType = "data"
	NodeModule   NodeType = "module"
	NodeVar      NodeType = "var"
	NodeLocal    NodeType = "local"
	NodeOutput   NodeType = "output"
	NodeGroup    NodeType = "group"
)

// NodeData is the per-node payload a renderer reads.
type NodeData struct {
	Label  string   `json:"label"`
	Type   NodeType `json:"type"`
	Action string   `json:"action,omitempty"`
	Count  *int     `json:"count,omitempty"`
	Values any      `json:"values,omitempty"`
	HCL    string   `json:"hcl,omitempty"`
}

// NodeStyle carries the group-box styling the original graph applies to
// module and root-collection groups; leaf nodes carry no style.
type NodeStyle struct {
	BackgroundColor string `json:"backgroundColor"`
	Border          string `json:"border"`
	ZIndex          int    `json:"zIndex"`
}

// NodePosition is always the origin; layout is a rendering concern.
type NodePosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Node is one vertex of the output graph: a resource, data source,
// variable, output, or a module/collection group.
type Node struct {
	ID       string     `json:"id"`
	ParentID string     `json:"parent_id,omitempty"`
	Data     NodeData   `json:"data"`
	Position NodePosition `json:"position"`
	Style    *NodeStyle `json:"style,omitempty"`
}

// Edge is one simplified, attributed dependency edge.
type Edge struct {
	ID         string   `json:"id"`
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	Attributes []string `json:"attributes,omitempty"`
}

// Graph is the normalized output document.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// BuildOptions controls the optional parts of the build.
type BuildOptions struct {
	// IncludeValues reconciles after/after_unknown/after_sensitive into each
	// node's Data.Values (step 8). Expensive and omitted by default.
	IncludeValues bool
	// SourceDir, if set, enables HCL block extraction (step 9): the source
	// tree root used to resolve a resource/data address to its module
	// directory and the .tf file defining it.
	SourceDir string
}

// isGroupNode reports whether n is a structural container (a module group
// or a root_variables/root_outputs collection group) rather than a leaf
// resource/data/var/local/output node.
func isGroupNode(n Node) bool {
	return n.Data.Type == NodeModule || n.Data.Type == NodeGroup
}

// BuildGraph runs the full nine-step fusion: index the plan, materialize
// nodes from the DOT dump, prune unreachable var/local/data nodes, simplify
// pass-through edges, attribute them from the plan's configuration tree,
// collapse empty groups, and (optionally) merge values and extract HCL.
func BuildGraph(planJSON []byte, dotContent string, opts BuildOptions) (Graph, error) {
	var plan planDocument
	if err := json.Unmarshal(planJSON, &plan); err != nil {
		return Graph{}, orcherr.InputValidation("invalid_plan_json", err.Error(), err)
	}

	idx := indexPlan(plan)
	dot := parseDOT(dotContent)

	b := &graphBuilder{knownModules: map[string]bool{}}
	dotNodeToAddress := map[string]string{}

	var fileCache map[string]string
	useHCL := opts.SourceDir != ""
	if useHCL {
		fileCache = map[string]string{}
	}

	for _, n := range dot.nodes {
		address := cleanLabel(n.label)
		if _, already := dotNodeToAddress[n.id]; already {
			continue
		}
		var hcl string
		if useHCL {
			hcl = findHCLBlock(opts.SourceDir, address, fileCache)
		}
		if node, ok := b.createNode(address, idx, opts.IncludeValues, hcl); ok {
			dotNodeToAddress[n.id] = address
			b.nodes = append(b.nodes, node)
		}
	}

	seenDotIDs := map[string]bool{}
	var implicitIDs []string
	for _, e := range dot.edges {
		for _, id := range [2]string{e.source, e.target} {
			if !seenDotIDs[id] {
				seenDotIDs[id] = true
				implicitIDs = append(implicitIDs, id)
			}
		}
	}
	for _, dotID := range implicitIDs {
		if _, ok := dotNodeToAddress[dotID]; ok {
			continue
		}
		address := parseDotID(dotID)
		var hcl string
		if useHCL {
			hcl = findHCLBlock(opts.SourceDir, address, fileCache)
		}
		if node, ok := b.createNode(address, idx, opts.IncludeValues, hcl); ok {
			dotNodeToAddress[dotID] = address
			b.nodes = append(b.nodes, node)
		}
	}

	adjacency := buildAddressAdjacency(dot.edges, dotNodeToAddress)
	b.nodes = pruneUnreached(b.nodes, adjacency)
	b.nodes = pruneEmptyGroups(b.nodes)
	b.nodes = addRootCollectionGroups(b.nodes)

	configDeps := map[configRefKey]map[string]bool{}
	if plan.Configuration != nil {
		traverseConfiguration(plan.Configuration.RootModule, "", configDeps)
	}

	deps, nodeTypes := buildDependencyMap(dot.edges, dotNodeToAddress, b.nodes)
	augmentOutputDependencies(deps, configDeps)

	simplified, activeNodes := simplifyEdges(deps, nodeTypes)
	edges := attributeEdges(simplified, configDeps)

	nodesInEdges := map[string]bool{}
	for _, e := range edges {
		nodesInEdges[e.Source] = true
		nodesInEdges[e.Target] = true
	}

	b.nodes = filterSimplifiedNodes(b.nodes, activeNodes, nodesInEdges)
	b.nodes = pruneEmptyGroups(b.nodes)
	b.nodes = pruneOrphanGroups(b.nodes, activeNodes)
	b.nodes = dedupeNodes(b.nodes)

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	for i := range edges {
		edges[i].ID = "e_" + strconv.Itoa(i+1)
	}

	return Graph{Nodes: b.nodes, Edges: edges}, nil
}
