package packaging

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stratoform/controlplane/schema"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// ExtractVariablesAndOutputs parses the concatenated .tf source of a module
// and returns its declared "variable" and "output" top-level blocks as typed
// TfVariable/TfOutput records — the Go-native equivalent of
// get_variables_from_tf_files / get_outputs_from_tf_files.
func ExtractVariablesAndOutputs(source string, filename string) ([]schema.TfVariable, []schema.TfOutput, error) {
	file, diags := hclsyntax.ParseConfig([]byte(source), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, nil, fmt.Errorf("packaging: parse %s: %w", filename, diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, nil, fmt.Errorf("packaging: unexpected body type for %s", filename)
	}

	var variables []schema.TfVariable
	var outputs []schema.TfOutput

	for _, block := range body.Blocks {
		switch block.Type {
		case "variable":
			if len(block.Labels) != 1 {
				continue
			}
			v := schema.TfVariable{Name: block.Labels[0], Nullable: true}
			if attr, ok := block.Body.Attributes["type"]; ok {
				v.Type = exprSourceText(attr.Expr, []byte(source))
			}
			if attr, ok := block.Body.Attributes["default"]; ok {
				val, diags := attr.Expr.Value(nil)
				if !diags.HasErrors() {
					v.Default = ctyToAny(val)
				}
			}
			if attr, ok := block.Body.Attributes["nullable"]; ok {
				val, diags := attr.Expr.Value(nil)
				if !diags.HasErrors() && val.Type() == cty.Bool {
					v.Nullable = val.True()
				}
			}
			if attr, ok := block.Body.Attributes["sensitive"]; ok {
				val, diags := attr.Expr.Value(nil)
				if !diags.HasErrors() && val.Type() == cty.Bool {
					v.Sensitive = val.True()
				}
			}
			variables = append(variables, v)
		case "output":
			if len(block.Labels) != 1 {
				continue
			}
			o := schema.TfOutput{Name: block.Labels[0]}
			if attr, ok := block.Body.Attributes["description"]; ok {
				val, diags := attr.Expr.Value(nil)
				if !diags.HasErrors() && val.Type() == cty.String {
					o.Description = val.AsString()
				}
			}
			outputs = append(outputs, o)
		}
	}
	return variables, outputs, nil
}

// exprSourceText renders an expression back to its literal source text,
// used for the "type" attribute which is a bare type constraint
// (string, list(string), …) rather than a value.
func exprSourceText(expr hclsyntax.Expression, src []byte) string {
	return string(expr.Range().SliceBytes(src))
}

// ctyToAny converts a decoded cty.Value into a plain Go value suitable for
// JSON encoding and for map_value_to_hcl-style re-emission.
func ctyToAny(val cty.Value) any {
	if val.IsNull() {
		return nil
	}
	raw, err := ctyjson.Marshal(val, val.Type())
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
