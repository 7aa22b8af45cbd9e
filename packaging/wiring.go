package packaging

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/stratoform/controlplane/orcherr"
	"github.com/stratoform/controlplane/schema"
)

// ChildModule is one resolved child of a stack: the claim that referenced it
// and the module version it resolved to.
type ChildModule struct {
	Claim  schema.ClaimManifest
	Module schema.ModuleRecord
}

// WiredStack is the output of GenerateFullTerraformModule: three HCL
// documents that together form a valid root module.
type WiredStack struct {
	ModulesHCL   string
	VariablesHCL string
	OutputsHCL   string
}

var crossRefPattern = regexp.MustCompile(`(?s)(.*?)\{\{\s*(.*?)\s*\}\}(.*)`)

// GenerateFullTerraformModule runs the stack wiring algorithm (spec.md
// §4.2): collect every child's inputs/outputs, resolve {{ Kind::child::field
// }} cross-references into module/variable references, and emit sorted
// module/variable/output HCL blocks.
func GenerateFullTerraformModule(children []ChildModule) (WiredStack, error) {
	variables, variableOrder := collectVariables(children)
	outputs := collectOutputs(children)

	dependencyMap, err := generateDependencyMap(variables, variableOrder, outputs)
	if err != nil {
		return WiredStack{}, err
	}

	modulesHCL, err := generateModules(children, variables, variableOrder, dependencyMap)
	if err != nil {
		return WiredStack{}, err
	}
	variablesHCL := generateVariables(variables, variableOrder, dependencyMap)
	outputsHCL := generateOutputs(outputs)

	return WiredStack{ModulesHCL: modulesHCL, VariablesHCL: variablesHCL, OutputsHCL: outputsHCL}, nil
}

func variableKey(claimName, fieldSnake string) string {
	return toSnakeCase(claimName) + "__" + fieldSnake
}

// collectVariables builds the "{childName}__{inputName}" map (spec step 1):
// every child's declared tf variables, with its default overridden by
// whatever value the claim supplies.
func collectVariables(children []ChildModule) (map[string]schema.TfVariable, []string) {
	variables := make(map[string]schema.TfVariable)
	var order []string
	for _, c := range children {
		for _, tfVar := range c.Module.TfVariables {
			key := variableKey(c.Claim.Metadata.Name, tfVar.Name)
			v := tfVar
			camelName := toCamelCase(tfVar.Name)
			if override, ok := c.Claim.Spec.Variables[camelName]; ok {
				v.Default = override
			}
			if _, exists := variables[key]; !exists {
				order = append(order, key)
			}
			variables[key] = v
		}
	}
	return variables, order
}

// collectOutputs builds the "{childName}__{outputName}" map (spec step 2).
func collectOutputs(children []ChildModule) map[string]schema.TfOutput {
	outputs := make(map[string]schema.TfOutput)
	for _, c := range children {
		for _, out := range c.Module.TfOutputs {
			outputs[variableKey(c.Claim.Metadata.Name, out.Name)] = out
		}
	}
	return outputs
}

// generateDependencyMap resolves the first cross-reference token embedded in
// a variable's default value (spec step 3), mapping the variable's full key
// to the value's JSON text with that token replaced by an HCL interpolation.
// Only the first token of a value is resolved; any later token in the same
// value is left in place as literal text.
func generateDependencyMap(variables map[string]schema.TfVariable, order []string, outputs map[string]schema.TfOutput) (map[string]string, error) {
	dependencyMap := make(map[string]string)

	for _, key := range order {
		v := variables[key]
		if v.Default == nil {
			continue
		}
		raw, err := json.Marshal(v.Default)
		if err != nil {
			continue
		}
		serialized := string(raw)

		match := crossRefPattern.FindStringSubmatch(serialized)
		if match == nil {
			continue
		}
		before, expr, after := match[1], match[2], match[3]

		parts := strings.Split(expr, "::")
		if len(parts) != 3 {
			continue
		}
		claimName, field := parts[1], parts[2]
		fieldSnake := toSnakeCase(field)
		outputKey := variableKey(claimName, fieldSnake)

		switch {
		case outputExists(outputs, outputKey):
			dependencyMap[key] = fmt.Sprintf("%s${module.%s.%s}%s", before, toSnakeCase(claimName), fieldSnake, after)
		case variableExists(variables, outputKey):
			dependencyMap[key] = fmt.Sprintf("%s${var.%s}%s", before, outputKey, after)
		default:
			return nil, orcherr.InputValidation("unresolved_reference",
				fmt.Sprintf("reference %q in variable %q does not resolve to any child output or variable", expr, key), nil)
		}
	}
	return dependencyMap, nil
}

func outputExists(outputs map[string]schema.TfOutput, key string) bool {
	_, ok := outputs[key]
	return ok
}

func variableExists(variables map[string]schema.TfVariable, key string) bool {
	_, ok := variables[key]
	return ok
}

// generateModules emits a sorted sequence of module blocks (spec step 4):
// one per child, with each argument either the dependency map's substituted
// value (decoded from JSON and rendered by mapValueToHCL) or
// var.{child}__{input} otherwise.
func generateModules(children []ChildModule, variables map[string]schema.TfVariable, order []string, dependencyMap map[string]string) (string, error) {
	sortedKeys := append([]string(nil), order...)
	sort.Strings(sortedKeys)

	var blocks []string
	for _, c := range children {
		claimName := c.Claim.Metadata.Name
		source := archiveBasename(c.Module.S3Key)

		var b strings.Builder
		fmt.Fprintf(&b, "module \"%s\" {\n  source = \"./%s\"\n", toSnakeCase(claimName), source)

		for _, key := range sortedKeys {
			partClaim := strings.SplitN(key, "__", 2)[0]
			if partClaim != toSnakeCase(claimName) {
				continue
			}
			inputName := strings.SplitN(key, "__", 2)[1]

			if expr, ok := dependencyMap[key]; ok {
				var substituted any
				if err := json.Unmarshal([]byte(expr), &substituted); err == nil {
					fmt.Fprintf(&b, "  %s = %s\n", inputName, mapValueToHCL(substituted))
				} else {
					fmt.Fprintf(&b, "  %s = %s\n", inputName, hclValueForExpr(expr))
				}
				continue
			}
			fmt.Fprintf(&b, "  %s = var.%s\n", inputName, key)
		}
		b.WriteString("}")
		blocks = append(blocks, b.String())
	}

	sort.Strings(blocks)
	return strings.Join(blocks, "\n\n"), nil
}

// hclValueForExpr decides whether a resolved dependency string is itself
// valid HCL (an interpolation like "${module.x.y}") or needs quoting as a
// literal string.
func hclValueForExpr(expr string) string {
	if strings.HasPrefix(expr, "${") && strings.HasSuffix(expr, "}") && strings.Count(expr, "${") == 1 {
		return expr[2 : len(expr)-1]
	}
	return fmt.Sprintf("%q", expr)
}

func archiveBasename(s3Key string) string {
	parts := strings.SplitN(s3Key, "/", 2)
	file := s3Key
	if len(parts) == 2 {
		file = parts[1]
	}
	return strings.TrimSuffix(file, ".zip")
}

// generateVariables emits a sorted sequence of variable blocks for every
// variable not already resolved via the dependency map (spec step 5).
func generateVariables(variables map[string]schema.TfVariable, order []string, dependencyMap map[string]string) string {
	var blocks []string
	for _, key := range order {
		if _, resolved := dependencyMap[key]; resolved {
			continue
		}
		v := variables[key]
		defaultVal := "null"
		if v.Default != nil {
			defaultVal = mapValueToHCL(v.Default)
		}
		typ := v.Type
		if typ == "" {
			typ = "any"
		}
		blocks = append(blocks, fmt.Sprintf(
			"variable \"%s\" {\n  type        = %s\n  default     = %s\n  description = %q\n}",
			key, typ, defaultVal, "",
		))
	}
	sort.Strings(blocks)
	return strings.Join(blocks, "\n\n")
}

// generateOutputs emits a sorted sequence of output blocks, one per
// collected child output, exposing it as "{child}__{output}".
func generateOutputs(outputs map[string]schema.TfOutput) string {
	var blocks []string
	for key := range outputs {
		parts := strings.SplitN(key, "__", 2)
		if len(parts) != 2 {
			continue
		}
		blocks = append(blocks, fmt.Sprintf(
			"output \"%s\" {\n  value = module.%s.%s\n}", key, parts[0], parts[1],
		))
	}
	sort.Strings(blocks)
	return strings.Join(blocks, "\n\n")
}

// mapValueToHCL recursively renders a JSON-decoded Go value as an HCL
// literal, the Go equivalent of original_source's map_value_to_hcl.
func mapValueToHCL(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return formatNumber(val)
	case []any:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = mapValueToHCL(item)
		}
		return "[\n  " + strings.Join(items, ",\n  ") + "\n]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]string, len(keys))
		for i, k := range keys {
			items[i] = fmt.Sprintf("%s = %s", k, mapValueToHCL(val[k]))
		}
		return "{\n  " + strings.Join(items, "\n  ") + "\n}"
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%v", f)
}
