package plangraph

import (
	"regexp"
	"strings"
)

var (
	dotNodeRe = regexp.MustCompile(`^\s*"(.+?)"\s*\[label\s*=\s*"(.+?)"`)
	dotEdgeRe = regexp.MustCompile(`^\s*"(.+?)"\s*->\s*"(.+?)"`)
)

type dotNode struct {
	id    string
	label string
}

type dotEdge struct {
	source string
	target string
}

type dotGraph struct {
	nodes []dotNode
	edges []dotEdge
}

// parseDOT scans a graph dump's "id" [label="..."] and "src" -> "dst" lines.
// It does not attempt a full DOT grammar; the dump is machine-generated and
// always one statement per line.
func parseDOT(content string) dotGraph {
	var g dotGraph
	for _, line := range strings.Split(content, "\n") {
		if m := dotNodeRe.FindStringSubmatch(line); m != nil {
			g.nodes = append(g.nodes, dotNode{id: m[1], label: m[2]})
			continue
		}
		if m := dotEdgeRe.FindStringSubmatch(line); m != nil {
			g.edges = append(g.edges, dotEdge{source: m[1], target: m[2]})
		}
	}
	return g
}

// cleanLabel strips a DOT label's surrounding quotes and any trailing
// "(expand)"/"(close)"/… annotation the graph renderer adds.
func cleanLabel(label string) string {
	s := strings.TrimSpace(label)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = strings.ReplaceAll(s[1:len(s)-1], `\"`, `"`)
	}
	if idx := strings.Index(s, " ("); idx >= 0 {
		return s[:idx]
	}
	return s
}

// parseDotID strips a raw DOT node id's "[root] " module-root prefix and
// any trailing annotation, the same cleanup cleanLabel applies to labels.
func parseDotID(dotID string) string {
	s := strings.TrimSpace(dotID)
	s = strings.TrimPrefix(s, "[root] ")
	if idx := strings.Index(s, " ("); idx >= 0 {
		return s[:idx]
	}
	return s
}
