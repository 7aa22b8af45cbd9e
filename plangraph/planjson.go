package plangraph

import (
	"encoding/json"
	"regexp"
)

// planDocument is the subset of an IaC plan's JSON representation this
// package reads: resource/output changes, the configuration expression
// tree, and either prior/planned state or a bare state file's values
// block (state mode, when there is no plan to diff against).
type planDocument struct {
	ResourceChanges []resourceChange  `json:"resource_changes"`
	OutputChanges   map[string]change `json:"output_changes"`
	Configuration   *configuration    `json:"configuration"`
	PriorState      *stateDocument    `json:"prior_state"`
	PlannedValues   *stateDocument    `json:"planned_values"`
	Values          *stateValues      `json:"values"`
}

type stateDocument struct {
	Values *stateValues `json:"values"`
}

type stateValues struct {
	RootModule stateModule            `json:"root_module"`
	Outputs    map[string]stateOutput `json:"outputs"`
}

type stateOutput struct {
	Sensitive bool            `json:"sensitive"`
	Value     json.RawMessage `json:"value"`
}

type stateModule struct {
	Resources    []stateResource `json:"resources"`
	ChildModules []stateModule   `json:"child_modules"`
}

type stateResource struct {
	Address string          `json:"address"`
	Mode    string          `json:"mode"`
	Type    string          `json:"type"`
	Values  json.RawMessage `json:"values"`
}

type configuration struct {
	RootModule moduleConfig `json:"root_module"`
}

type moduleConfig struct {
	Resources   []resourceConfig        `json:"resources"`
	ModuleCalls map[string]moduleCall   `json:"module_calls"`
	Outputs     map[string]outputConfig `json:"outputs"`
}

type outputConfig struct {
	Expression json.RawMessage `json:"expression"`
}

type moduleCall struct {
	Module *moduleConfig `json:"module"`
}

type resourceConfig struct {
	Address           string                     `json:"address"`
	Expressions       map[string]json.RawMessage `json:"expressions"`
	CountExpression   json.RawMessage            `json:"count_expression"`
	ForEachExpression json.RawMessage            `json:"for_each_expression"`
}

type resourceChange struct {
	Address string `json:"address"`
	Type    string `json:"type"`
	Mode    string `json:"mode"`
	Change  change `json:"change"`
}

type change struct {
	Actions        []string        `json:"actions"`
	After          json.RawMessage `json:"after"`
	AfterUnknown   json.RawMessage `json:"after_unknown"`
	AfterSensitive json.RawMessage `json:"after_sensitive"`
}

var indexSuffixRe = regexp.MustCompile(`\[[^\]]+\]$`)

// planIndex is the plan indexed for node materialization: resource changes
// keyed by both their exact and base (index-stripped) addresses, output
// changes by name, and every address seen anywhere in the plan or state
// (the "active set" step 1 names).
type planIndex struct {
	resourceMap     map[string][]resourceChange
	outputMap       map[string]change
	activeAddresses map[string]bool
	stateValues     map[string]json.RawMessage
}

func indexPlan(plan planDocument) planIndex {
	idx := planIndex{
		resourceMap:     map[string][]resourceChange{},
		outputMap:       plan.OutputChanges,
		activeAddresses: map[string]bool{},
		stateValues:     map[string]json.RawMessage{},
	}
	if idx.outputMap == nil {
		idx.outputMap = map[string]change{}
	}

	if plan.Values != nil {
		collectStateAddresses(plan.Values.RootModule, idx.activeAddresses)
		collectStateValues(plan.Values.RootModule, idx.stateValues)
	}

	for _, rc := range plan.ResourceChanges {
		idx.activeAddresses[rc.Address] = true
		idx.resourceMap[rc.Address] = append(idx.resourceMap[rc.Address], rc)

		base := indexSuffixRe.ReplaceAllString(rc.Address, "")
		if base != rc.Address {
			idx.resourceMap[base] = append(idx.resourceMap[base], rc)
		}
	}

	if plan.PriorState != nil && plan.PriorState.Values != nil {
		collectStateAddresses(plan.PriorState.Values.RootModule, idx.activeAddresses)
	}
	if plan.PlannedValues != nil && plan.PlannedValues.Values != nil {
		collectStateAddresses(plan.PlannedValues.Values.RootModule, idx.activeAddresses)
	}

	return idx
}

func collectStateAddresses(m stateModule, out map[string]bool) {
	for _, r := range m.Resources {
		out[r.Address] = true
	}
	for _, c := range m.ChildModules {
		collectStateAddresses(c, out)
	}
}

func collectStateValues(m stateModule, out map[string]json.RawMessage) {
	for _, r := range m.Resources {
		if len(r.Values) > 0 {
			out[r.Address] = r.Values
		}
	}
	for _, c := range m.ChildModules {
		collectStateValues(c, out)
	}
}

func decodeRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
