package plangraph

import "strings"

func buildAddressAdjacency(edges []dotEdge, dotNodeToAddress map[string]string) map[string][]string {
	adj := map[string][]string{}
	for _, e := range edges {
		s, sok := dotNodeToAddress[e.source]
		t, tok := dotNodeToAddress[e.target]
		if sok && tok {
			adj[s] = append(adj[s], t)
		}
	}
	return adj
}

// pruneUnreached drops var/local nodes that a walk from every resource,
// data source, and root output never reaches: unused variables and dead
// locals. Every data node present is itself a seed (a data source the plan
// does not evaluate never becomes a node), so no data node is dropped here.
// Module outputs are kept regardless — they are filtered later, once edge
// simplification has decided what they resolve to.
func pruneUnreached(nodes []Node, adj map[string][]string) []Node {
	var seeds []string
	for _, n := range nodes {
		if isGroupNode(n) {
			continue
		}
		isRootOutput := n.Data.Type == NodeOutput && strings.HasPrefix(n.ID, "output.")
		if n.Data.Type != NodeVar && n.Data.Type != NodeLocal && (n.Data.Type != NodeOutput || isRootOutput) {
			seeds = append(seeds, n.ID)
		}
	}

	visited := map[string]bool{}
	queue := append([]string(nil), seeds...)
	for len(queue) > 0 {
		u := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if visited[u] {
			continue
		}
		visited[u] = true
		for _, v := range adj[u] {
			if !visited[v] {
				queue = append(queue, v)
			}
		}
	}

	var out []Node
	for _, n := range nodes {
		if isGroupNode(n) {
			out = append(out, n)
			continue
		}
		prunable := n.Data.Type == NodeVar || n.Data.Type == NodeLocal || n.Data.Type == NodeData
		if !prunable || visited[n.ID] {
			out = append(out, n)
		}
	}
	return out
}
