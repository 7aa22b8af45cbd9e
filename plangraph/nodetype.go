package plangraph

import "strings"

// determineBlockType derives a node's type from its address: explicit
// var./local./output. prefixes, a "var"/"local"/"output" path segment
// (module input/output/local references), a data.-prefixed or
// "…data.type.name" address, else a managed resource.
func determineBlockType(address string, isData bool) NodeType {
	switch {
	case strings.HasPrefix(address, "var."):
		return NodeVar
	case strings.HasPrefix(address, "local."):
		return NodeLocal
	case strings.HasPrefix(address, "output."):
		return NodeOutput
	}

	parts := strings.Split(address, ".")
	for _, p := range parts {
		switch p {
		case "var":
			return NodeVar
		case "local":
			return NodeLocal
		case "output":
			return NodeOutput
		}
	}

	if isData {
		return NodeData
	}
	if len(parts) >= 3 && parts[len(parts)-3] == "data" {
		return NodeData
	}
	if strings.HasPrefix(address, "data.") {
		return NodeData
	}
	return NodeResource
}

// graphBuilder accumulates materialized nodes across the node-creation
// pass, tracking which module group ids have already been emitted so a
// module chain shared by many resources is only created once.
type graphBuilder struct {
	knownModules map[string]bool
	nodes        []Node
}

// materializeModuleChain walks the "module.a.module.b.…" prefix of address,
// lazily creating module group nodes chained by ParentID, and returns the
// id of the deepest group (empty if address has no module prefix).
func (b *graphBuilder) materializeModuleChain(address string) string {
	parts := strings.Split(address, ".")

	var current strings.Builder
	var hierarchy []string

	i := 0
	for i < len(parts) {
		if parts[i] == "module" && i+1 < len(parts) {
			if current.Len() > 0 {
				current.WriteByte('.')
			}
			current.WriteString("module.")
			current.WriteString(parts[i+1])
			hierarchy = append(hierarchy, current.String())
			i += 2
		} else {
			if current.Len() > 0 {
				current.WriteByte('.')
			}
			current.WriteString(parts[i])
			i++
		}
	}

	if len(hierarchy) == 0 {
		return ""
	}

	for idx, moduleID := range hierarchy {
		if b.knownModules[moduleID] {
			continue
		}
		b.knownModules[moduleID] = true

		var parentID string
		if idx > 0 {
			parentID = hierarchy[idx-1]
		}

		b.nodes = append(b.nodes, Node{
			ID:       moduleID,
			ParentID: parentID,
			Data:     NodeData{Label: moduleID, Type: NodeModule},
			Style:    &NodeStyle{BackgroundColor: "rgba(56, 139, 253, 0.05)", Border: "1px dashed #388bfd", ZIndex: -1},
		})
	}

	return hierarchy[len(hierarchy)-1]
}
