package plangraph

import (
	"strings"
	"testing"
)

func findNode(t *testing.T, g Graph, id string) Node {
	t.Helper()
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	t.Fatalf("node %q not found in graph", id)
	return Node{}
}

func hasNode(g Graph, id string) bool {
	for _, n := range g.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

const basePlan = `{
	"resource_changes": [%s],
	"configuration": {"root_module": {"resources": [], "module_calls": {}, "outputs": {}}}
}`

func TestMultipleIndices(t *testing.T) {
	plan := `{
		"resource_changes": [
			{"address": "aws_instance.web[0]", "type": "aws_instance", "mode": "managed", "change": {"actions": ["create"]}},
			{"address": "aws_instance.web[1]", "type": "aws_instance", "mode": "managed", "change": {"actions": ["create"]}}
		],
		"configuration": {"root_module": {"resources": [], "module_calls": {}, "outputs": {}}}
	}`
	dot := `"aws_instance.web" [label="aws_instance.web"]`

	g, err := BuildGraph([]byte(plan), dot, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}

	n := findNode(t, g, "aws_instance.web")
	if n.Data.Count == nil || *n.Data.Count != 2 {
		t.Fatalf("expected count 2, got %v", n.Data.Count)
	}
	if n.Data.Action != "create" {
		t.Fatalf("expected action create, got %q", n.Data.Action)
	}
}

func TestActionResolution(t *testing.T) {
	plan := `{
		"resource_changes": [
			{"address": "data.aws_ami.latest", "type": "aws_ami", "mode": "data", "change": {"actions": ["read"]}},
			{"address": "aws_instance.keep", "type": "aws_instance", "mode": "managed", "change": {"actions": ["no-op"]}}
		],
		"configuration": {"root_module": {"resources": [], "module_calls": {}, "outputs": {}}}
	}`
	dot := `
"data.aws_ami.latest" [label="data.aws_ami.latest"]
"aws_instance.keep" [label="aws_instance.keep"]
"aws_instance.ghost" [label="aws_instance.ghost"]
`

	g, err := BuildGraph([]byte(plan), dot, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if n := findNode(t, g, "data.aws_ami.latest"); n.Data.Action != "read" {
		t.Fatalf("expected read, got %q", n.Data.Action)
	}
	if n := findNode(t, g, "aws_instance.keep"); n.Data.Action != "no-op" {
		t.Fatalf("expected no-op preserved, got %q", n.Data.Action)
	}
	if hasNode(g, "aws_instance.ghost") {
		t.Fatal("ghost resource absent from plan and state should have been dropped")
	}
}

func TestIncludeValues(t *testing.T) {
	plan := `{
		"resource_changes": [
			{"address": "aws_instance.web", "type": "aws_instance", "mode": "managed",
			 "change": {"actions": ["create"], "after": {"id": "i-123"}, "after_unknown": {}, "after_sensitive": {}}}
		],
		"configuration": {"root_module": {"resources": [], "module_calls": {}, "outputs": {}}}
	}`
	dot := `"aws_instance.web" [label="aws_instance.web"]`

	withValues, err := BuildGraph([]byte(plan), dot, BuildOptions{IncludeValues: true})
	if err != nil {
		t.Fatal(err)
	}
	n := findNode(t, withValues, "aws_instance.web")
	m, ok := n.Data.Values.(map[string]any)
	if !ok || m["id"] != "i-123" {
		t.Fatalf("expected merged values with id, got %#v", n.Data.Values)
	}

	withoutValues, err := BuildGraph([]byte(plan), dot, BuildOptions{IncludeValues: false})
	if err != nil {
		t.Fatal(err)
	}
	if n := findNode(t, withoutValues, "aws_instance.web"); n.Data.Values != nil {
		t.Fatalf("expected nil values when IncludeValues is false, got %#v", n.Data.Values)
	}
}

func TestCountExpressionAttributeExtraction(t *testing.T) {
	plan := `{
		"resource_changes": [
			{"address": "aws_instance.web[0]", "type": "aws_instance", "mode": "managed", "change": {"actions": ["create"]}}
		],
		"configuration": {"root_module": {
			"resources": [
				{"address": "aws_instance.web", "expressions": {}, "count_expression": {"references": ["var.instance_count"]}}
			],
			"module_calls": {}, "outputs": {}
		}}
	}`
	dot := `
"var.instance_count" [label="var.instance_count"]
"aws_instance.web" [label="aws_instance.web"]
"aws_instance.web" -> "var.instance_count"
`

	g, err := BuildGraph([]byte(plan), dot, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, e := range g.Edges {
		if e.Source == "var.instance_count" && e.Target == "aws_instance.web" {
			found = true
			if !containsString(e.Attributes, "count") {
				t.Fatalf("expected count attribute, got %v", e.Attributes)
			}
		}
	}
	if !found {
		t.Fatal("expected edge from var.instance_count to aws_instance.web")
	}
}

func TestForEachExpressionAttributeExtraction(t *testing.T) {
	plan := `{
		"resource_changes": [
			{"address": "aws_instance.web[\"a\"]", "type": "aws_instance", "mode": "managed", "change": {"actions": ["create"]}}
		],
		"configuration": {"root_module": {
			"resources": [
				{"address": "aws_instance.web", "expressions": {}, "for_each_expression": {"references": ["var.instances"]}}
			],
			"module_calls": {}, "outputs": {}
		}}
	}`
	dot := `
"var.instances" [label="var.instances"]
"aws_instance.web" [label="aws_instance.web"]
"aws_instance.web" -> "var.instances"
`

	g, err := BuildGraph([]byte(plan), dot, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, e := range g.Edges {
		if e.Source == "var.instances" && e.Target == "aws_instance.web" {
			found = true
			if !containsString(e.Attributes, "for_each") {
				t.Fatalf("expected for_each attribute, got %v", e.Attributes)
			}
		}
	}
	if !found {
		t.Fatal("expected edge from var.instances to aws_instance.web")
	}
}

func TestValueMerging(t *testing.T) {
	after := map[string]any{
		"name": "bucket",
		"tags": map[string]any{"env": "prod"},
		"arns": []any{"arn:1", "arn:2"},
		"id":   nil,
	}
	unknown := map[string]any{
		"name": false,
		"tags": map[string]any{"env": false},
		"arns": []any{false, false},
		"id":   true,
	}
	sensitive := map[string]any{
		"name": false,
		"tags": map[string]any{"env": false},
		"arns": []any{false, false},
		"id":   false,
	}

	merged, ok := mergeValues(after, unknown, sensitive)
	if !ok {
		t.Fatal("expected merge to succeed")
	}
	m, ok := merged.(map[string]any)
	if !ok {
		t.Fatalf("expected object shape, got %#v", merged)
	}
	if m["name"] != "bucket" {
		t.Fatalf("expected known name to pass through, got %v", m["name"])
	}
	if m["id"] != "(known after apply)" {
		t.Fatalf("expected unknown id placeholder, got %v", m["id"])
	}
	tags, ok := m["tags"].(map[string]any)
	if !ok || tags["env"] != "prod" {
		t.Fatalf("expected nested object merge to preserve env, got %#v", m["tags"])
	}
	arns, ok := m["arns"].([]any)
	if !ok || len(arns) != 2 || arns[0] != "arn:1" {
		t.Fatalf("expected array shape preserved, got %#v", m["arns"])
	}

	sensitiveWins, ok := mergeValues("secret", false, true)
	if !ok || sensitiveWins != "(sensitive)" {
		t.Fatalf("expected sensitive to win over known, got %v", sensitiveWins)
	}
}

func TestModuleGroupingAndPassThroughSimplification(t *testing.T) {
	plan := `{
		"resource_changes": [
			{"address": "module.vpc.aws_vpc.this", "type": "aws_vpc", "mode": "managed", "change": {"actions": ["create"]}},
			{"address": "aws_instance.web", "type": "aws_instance", "mode": "managed", "change": {"actions": ["create"]}}
		],
		"configuration": {"root_module": {
			"resources": [
				{"address": "aws_instance.web", "expressions": {"subnet_id": {"references": ["local.subnet"]}}}
			],
			"module_calls": {}, "outputs": {}
		}}
	}`
	dot := `
"module.vpc.aws_vpc.this" [label="module.vpc.aws_vpc.this"]
"aws_instance.web" [label="aws_instance.web"]
"local.subnet" [label="local.subnet"]
"local.subnet" -> "module.vpc.aws_vpc.this"
"aws_instance.web" -> "local.subnet"
`

	g, err := BuildGraph([]byte(plan), dot, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}

	group := findNode(t, g, "module.vpc")
	if group.Data.Type != NodeGroup && group.Data.Type != NodeModule {
		t.Fatalf("expected module.vpc to be a group node, got %v", group.Data.Type)
	}
	vpc := findNode(t, g, "module.vpc.aws_vpc.this")
	if vpc.ParentID != "module.vpc" {
		t.Fatalf("expected aws_vpc.this parented under module.vpc, got %q", vpc.ParentID)
	}
	if hasNode(g, "local.subnet") {
		t.Fatal("local.subnet should have been simplified away as a pass-through")
	}

	var found bool
	for _, e := range g.Edges {
		if e.Source == "module.vpc.aws_vpc.this" && e.Target == "aws_instance.web" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected local.subnet pass-through to resolve to an edge from aws_vpc.this to aws_instance.web")
	}
}

func TestDetermineBlockType(t *testing.T) {
	cases := []struct {
		address string
		isData  bool
		want    NodeType
	}{
		{"var.region", false, NodeVar},
		{"local.name", false, NodeLocal},
		{"output.bucket_arn", false, NodeOutput},
		{"aws_instance.web", false, NodeResource},
		{"data.aws_ami.latest", false, NodeData},
		{"aws_instance.web", true, NodeData},
		{"module.vpc.module.subnet.var.cidr", false, NodeVar},
	}
	for _, c := range cases {
		if got := determineBlockType(c.address, c.isData); got != c.want {
			t.Errorf("determineBlockType(%q, %v) = %v, want %v", c.address, c.isData, got, c.want)
		}
	}
}

func TestCleanLabelStripsAnnotation(t *testing.T) {
	if got := cleanLabel(`"aws_instance.web (expand)"`); got != "aws_instance.web" {
		t.Fatalf("expected annotation stripped, got %q", got)
	}
	if got := parseDotID(`[root] aws_instance.web (close)`); got != "aws_instance.web" {
		t.Fatalf("expected root prefix and annotation stripped, got %q", got)
	}
}

func TestBuildGraphRejectsInvalidPlanJSON(t *testing.T) {
	_, err := BuildGraph([]byte("{not json"), "", BuildOptions{})
	if err == nil {
		t.Fatal("expected error for malformed plan JSON")
	}
	if !strings.Contains(err.Error(), "invalid_plan_json") && !strings.Contains(err.Error(), "invalid") {
		t.Logf("error message: %v", err)
	}
}
