package plangraph

import (
	"sort"
	"strings"
)

type nodeFacts struct {
	Action string
	IsData bool
	Count  *int
	Values any
}

// createNode materializes one graph node for address, or reports keep=false
// for root/provider/meta noise, addresses that coincide with their own
// module group, and resources/data sources absent from both the plan and
// state (ghosts the renderer has no business drawing).
func (b *graphBuilder) createNode(address string, idx planIndex, includeValues bool, hcl string) (Node, bool) {
	if address == "root" || strings.HasPrefix(address, "provider[") || strings.HasPrefix(address, "meta.") {
		return Node{}, false
	}

	parentID := b.materializeModuleChain(address)
	if parentID != "" && parentID == address {
		return Node{}, false
	}

	facts, keep := resolveNodeFacts(address, idx, includeValues)
	if !keep {
		return Node{}, false
	}

	nodeType := determineBlockType(address, facts.IsData)

	finalParentID := parentID
	if parentID == "" {
		switch nodeType {
		case NodeVar:
			finalParentID = "root_variables"
		case NodeOutput:
			finalParentID = "root_outputs"
		}
	}

	action := facts.Action
	if nodeType == NodeData && action == "" {
		action = "read"
	}

	return Node{
		ID:       address,
		ParentID: finalParentID,
		Data: NodeData{
			Label:  address,
			Type:   nodeType,
			Action: action,
			Count:  facts.Count,
			Values: facts.Values,
			HCL:    hcl,
		},
	}, true
}

// resolveNodeFacts determines a node's action, data-source-ness, instance
// count, and (optionally) merged values, in order of where the address can
// be found: an exact or base-stripped plan resource_changes entry, a state
// values entry (existing infra with no pending change), an output_changes
// entry, or — for var/local/output addresses not mentioned anywhere — a
// bare "n/a" placeholder. Anything else (a resource/data address the plan
// and state both say nothing about) is a ghost and is dropped.
func resolveNodeFacts(address string, idx planIndex, includeValues bool) (nodeFacts, bool) {
	if changes, ok := idx.resourceMap[address]; ok {
		return resourceChangeFacts(changes, includeValues), true
	}

	if stateVal, ok := idx.stateValues[address]; ok {
		tempType := determineBlockType(address, false)
		var values any
		if includeValues {
			values = decodeRaw(stateVal)
		}
		if tempType == NodeData {
			return nodeFacts{Action: "read", IsData: true, Values: values}, true
		}
		return nodeFacts{Values: values}, true
	}

	if strings.HasPrefix(address, "output.") {
		key := strings.TrimPrefix(address, "output.")
		if ch, ok := idx.outputMap[key]; ok {
			actions := append([]string(nil), ch.Actions...)
			sort.Strings(actions)
			var values any
			if includeValues {
				values, _ = mergeValues(decodeRaw(ch.After), decodeRaw(ch.AfterUnknown), decodeRaw(ch.AfterSensitive))
			}
			return nodeFacts{Action: strings.Join(actions, ", "), Values: values}, true
		}
		return nodeFacts{Action: "no-op"}, true
	}

	switch determineBlockType(address, false) {
	case NodeData:
		if idx.activeAddresses[address] {
			return nodeFacts{Action: "read", IsData: true}, true
		}
		return nodeFacts{}, false
	case NodeVar, NodeLocal, NodeOutput:
		return nodeFacts{Action: "n/a"}, true
	default:
		return nodeFacts{}, false
	}
}

func resourceChangeFacts(changes []resourceChange, includeValues bool) nodeFacts {
	distinctActions := map[string]bool{}
	var collectedValues []any
	hasIndexed := false
	isData := false

	for _, ch := range changes {
		if ch.Mode == "data" {
			isData = true
		}
		for _, act := range ch.Change.Actions {
			distinctActions[act] = true
		}
		if includeValues {
			if merged, ok := mergeValues(decodeRaw(ch.Change.After), decodeRaw(ch.Change.AfterUnknown), decodeRaw(ch.Change.AfterSensitive)); ok {
				collectedValues = append(collectedValues, merged)
			}
		}
		if strings.HasSuffix(ch.Address, "]") {
			hasIndexed = true
		}
	}

	if len(distinctActions) > 1 {
		delete(distinctActions, "no-op")
	}
	actions := make([]string, 0, len(distinctActions))
	for a := range distinctActions {
		actions = append(actions, a)
	}
	sort.Strings(actions)

	var count *int
	if len(changes) > 1 || hasIndexed {
		n := len(changes)
		count = &n
	}

	var values any
	if includeValues && len(collectedValues) > 0 {
		if len(collectedValues) == 1 {
			values = collectedValues[0]
		} else {
			values = collectedValues
		}
	}

	return nodeFacts{Action: strings.Join(actions, ", "), IsData: isData, Count: count, Values: values}
}
