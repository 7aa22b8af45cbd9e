package verify

import (
	"context"

	"github.com/open-policy-agent/opa/v1/rego"
)

// defaultPolicyContent is the built-in Rego policy: an attestation is
// allowed only when its predicate type names SLSA provenance, its build
// invocation's configSource.uri points at the expected repository, and
// that URI's ref suffix names the expected branch.
const defaultPolicyContent = `package verification

default allow = false

allow if {
	is_slsa_provenance
	is_expected_repository
	is_expected_branch
}

is_slsa_provenance if {
	contains(input.attestation.predicateType, "slsa.dev/provenance")
}

is_expected_repository if {
	config_uri := input.attestation.predicate.invocation.configSource.uri
	expected_repo_url := sprintf("git+https://github.com/%s@", [input.config.expected_repository])
	startswith(config_uri, expected_repo_url)
}

is_expected_branch if {
	config_uri := input.attestation.predicate.invocation.configSource.uri
	expected_branch_suffix := sprintf("@refs/heads/%s", [input.config.expected_branch])
	endswith(config_uri, expected_branch_suffix)
}
`

// DefaultConfig returns the built-in verification config: the default
// policy paired with a placeholder repository/branch an operator is
// expected to override via ConfigFromEnv.
func DefaultConfig() Config {
	return Config{
		ExpectedRepository: "example-org/example-module",
		ExpectedBranch:     "main",
		PolicyContent:      defaultPolicyContent,
	}
}

// EvaluatePolicy evaluates cfg's Rego policy's data.verification.allow
// query against {config, attestation: payload}, failing the verification
// if the query doesn't evaluate to a bare `true`.
func EvaluatePolicy(payload map[string]any, cfg Config) error {
	input := map[string]any{
		"config": map[string]any{
			"expected_repository": cfg.ExpectedRepository,
			"expected_branch":     cfg.ExpectedBranch,
		},
		"attestation": payload,
	}

	query, err := rego.New(
		rego.Query("data.verification.allow"),
		rego.Module("verification_policy.rego", cfg.PolicyContent),
	).PrepareForEval(context.Background())
	if err != nil {
		return fail("failed to load policy: " + err.Error())
	}

	results, err := query.Eval(context.Background(), rego.EvalInput(input))
	if err != nil {
		return fail("failed to evaluate policy: " + err.Error())
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return fail("policy evaluation returned no result")
	}
	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return fail("policy evaluation returned a non-boolean result")
	}
	if !allowed {
		return fail("policy verification failed: attestation not allowed")
	}
	return nil
}
