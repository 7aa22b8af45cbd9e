package verify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestConfigFromEnvReturnsDefaultWhenUnset(t *testing.T) {
	t.Setenv(EnvVar, "")
	os.Unsetenv(EnvVar)
	t.Setenv(SecretPathEnvVar, "")
	os.Unsetenv(SecretPathEnvVar)

	cfg := ConfigFromEnv(nil)
	if cfg != DefaultConfig() {
		t.Fatalf("expected default config, got %+v", cfg)
	}
}

func TestConfigFromEnvParsesLiteralJSON(t *testing.T) {
	os.Unsetenv(SecretPathEnvVar)
	want := Config{ExpectedRepository: "acme/infra", ExpectedBranch: "main", PolicyContent: "policy-v1"}
	raw, err := json.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvVar, string(raw))

	got := ConfigFromEnv(nil)
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestConfigFromEnvPrefersSecretProviderOverLiteralEnv(t *testing.T) {
	fromSecret := Config{ExpectedRepository: "acme/infra", ExpectedBranch: "release", PolicyContent: "policy-from-secret"}

	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")
	secretsFile, err := json.Marshal(map[string]Config{"verification_config": fromSecret})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, secretsFile, 0o600); err != nil {
		t.Fatal(err)
	}

	fromEnv := Config{ExpectedRepository: "other/repo", ExpectedBranch: "main", PolicyContent: "policy-from-env"}
	envRaw, err := json.Marshal(fromEnv)
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvVar, string(envRaw))
	t.Setenv(SecretPathEnvVar, path)

	got := ConfigFromEnv(nil)
	if got != fromSecret {
		t.Fatalf("expected secret-provider config %+v, got %+v", fromSecret, got)
	}
}

func TestConfigFromEnvFallsBackWhenSecretKeyMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}

	fromEnv := Config{ExpectedRepository: "acme/infra", ExpectedBranch: "main", PolicyContent: "policy-from-env"}
	envRaw, err := json.Marshal(fromEnv)
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvVar, string(envRaw))
	t.Setenv(SecretPathEnvVar, path)

	got := ConfigFromEnv(nil)
	if got != fromEnv {
		t.Fatalf("expected fallback to literal env config %+v, got %+v", fromEnv, got)
	}
}
