package plangraph

import "strings"

// pruneEmptyGroups iteratively drops module/collection groups that no node
// lists as its parent, repeating until a fixed point — removing a group can
// orphan its own parent group in turn.
func pruneEmptyGroups(nodes []Node) []Node {
	for {
		parentIDs := map[string]bool{}
		for _, n := range nodes {
			if n.ParentID != "" {
				parentIDs[n.ParentID] = true
			}
		}

		kept := make([]Node, 0, len(nodes))
		for _, n := range nodes {
			if !isGroupNode(n) || parentIDs[n.ID] {
				kept = append(kept, n)
			}
		}

		if len(kept) == len(nodes) {
			return kept
		}
		nodes = kept
	}
}

// addRootCollectionGroups adds the synthetic root_variables/root_outputs
// groups when something was actually re-parented under them.
func addRootCollectionGroups(nodes []Node) []Node {
	hasRootVars, hasRootOutputs := false, false
	for _, n := range nodes {
		switch n.ParentID {
		case "root_variables":
			hasRootVars = true
		case "root_outputs":
			hasRootOutputs = true
		}
	}

	if hasRootVars {
		nodes = append(nodes, Node{
			ID:    "root_variables",
			Data:  NodeData{Label: "Variables", Type: NodeGroup},
			Style: &NodeStyle{BackgroundColor: "rgba(255, 255, 255, 0.05)", Border: "1px dashed #cccccc", ZIndex: -1},
		})
	}
	if hasRootOutputs {
		nodes = append(nodes, Node{
			ID:    "root_outputs",
			Data:  NodeData{Label: "Outputs", Type: NodeGroup},
			Style: &NodeStyle{BackgroundColor: "rgba(255, 255, 255, 0.05)", Border: "1px dashed #cccccc", ZIndex: -1},
		})
	}
	return nodes
}

// filterSimplifiedNodes drops non-root module outputs (they are always
// simplified into a pass-through and never drawn) and any resource/data/var
// node that edge simplification neither kept as active nor referenced.
func filterSimplifiedNodes(nodes []Node, activeNodes, nodesInEdges map[string]bool) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if isGroupNode(n) {
			out = append(out, n)
			continue
		}
		if n.Data.Type == NodeOutput && !strings.HasPrefix(n.ID, "output.") {
			continue
		}
		if activeNodes[n.ID] || nodesInEdges[n.ID] {
			out = append(out, n)
		}
	}
	return out
}

// pruneOrphanGroups drops module groups left with nothing beneath them
// (by id prefix) after edge simplification removed their contents, unless
// they are themselves active or another surviving node's parent.
func pruneOrphanGroups(nodes []Node, activeNodes map[string]bool) []Node {
	leafIDs := make([]string, 0, len(nodes))
	parentIDs := map[string]bool{}
	for _, n := range nodes {
		if !isGroupNode(n) {
			leafIDs = append(leafIDs, n.ID)
		}
		if n.ParentID != "" {
			parentIDs[n.ParentID] = true
		}
	}

	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if !isGroupNode(n) {
			out = append(out, n)
			continue
		}
		hasDescendant := false
		for _, id := range leafIDs {
			if strings.HasPrefix(id, n.ID+".") {
				hasDescendant = true
				break
			}
		}
		if hasDescendant || activeNodes[n.ID] || parentIDs[n.ID] {
			out = append(out, n)
		}
	}
	return out
}

func dedupeNodes(nodes []Node) []Node {
	seen := map[string]bool{}
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		out = append(out, n)
	}
	return out
}
