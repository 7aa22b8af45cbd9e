package verify

import (
	"context"
	"encoding/json"
	"os"

	"go.uber.org/zap"

	"github.com/stratoform/controlplane/secret"
)

// EnvVar is the environment variable an operator sets to override
// DefaultConfig with a JSON-encoded Config document.
const EnvVar = "STRATOFORM_VERIFICATION_CONFIG"

// SecretPathEnvVar and SecretKeyEnvVar point ConfigFromEnv at a
// secret.Provider-backed config instead of the literal JSON in EnvVar, so
// the policy content a deploy is verified against can live behind the
// same secret backend as everything else rather than a plaintext
// environment variable.
const (
	SecretPathEnvVar = "STRATOFORM_VERIFICATION_SECRET_PATH"
	SecretKeyEnvVar  = "STRATOFORM_VERIFICATION_SECRET_KEY"
)

// ConfigFromEnv returns the config configured via EnvVar, or DefaultConfig
// when the variable is unset, fails to parse, or is missing a required
// field. log may be nil. When SecretPathEnvVar is set, it takes
// precedence: the config is loaded through the "json" secret.Provider
// registered in secret/json_provider.go, falling back to EnvVar and then
// DefaultConfig on any failure.
func ConfigFromEnv(log *zap.Logger) Config {
	if path := os.Getenv(SecretPathEnvVar); path != "" {
		if cfg, ok := configFromSecretProvider(log, path); ok {
			return cfg
		}
	}

	raw, ok := os.LookupEnv(EnvVar)
	if !ok {
		return DefaultConfig()
	}

	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		if log != nil {
			log.Warn("failed to parse verification config from environment, using default",
				zap.String("env", EnvVar), zap.Error(err))
		}
		return DefaultConfig()
	}
	if cfg.ExpectedRepository == "" || cfg.ExpectedBranch == "" || cfg.PolicyContent == "" {
		if log != nil {
			log.Warn("verification config from environment missing required fields, using default",
				zap.String("env", EnvVar))
		}
		return DefaultConfig()
	}
	return cfg
}

// configFromSecretProvider loads the verification config JSON from the
// "json" secret.Provider at the given path/key. It reports ok=false on
// any failure so the caller can fall back to the legacy env var.
func configFromSecretProvider(log *zap.Logger, path string) (cfg Config, ok bool) {
	constructor, found := secret.LookupProvider("json")
	if !found {
		if log != nil {
			log.Warn("no \"json\" secret provider registered, falling back", zap.String("path", path))
		}
		return Config{}, false
	}

	provider, err := constructor(map[string]any{"path": path})
	if err != nil {
		if log != nil {
			log.Warn("failed to construct secret provider for verification config, falling back",
				zap.String("path", path), zap.Error(err))
		}
		return Config{}, false
	}

	key := os.Getenv(SecretKeyEnvVar)
	if key == "" {
		key = "verification_config"
	}

	raw, err := provider.Get(context.Background(), key)
	if err != nil {
		if log != nil {
			log.Warn("failed to read verification config from secret provider, falling back",
				zap.String("path", path), zap.String("key", key), zap.Error(err))
		}
		return Config{}, false
	}

	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		if log != nil {
			log.Warn("failed to parse verification config from secret provider, falling back",
				zap.String("path", path), zap.String("key", key), zap.Error(err))
		}
		return Config{}, false
	}
	if cfg.ExpectedRepository == "" || cfg.ExpectedBranch == "" || cfg.PolicyContent == "" {
		if log != nil {
			log.Warn("verification config from secret provider missing required fields, falling back",
				zap.String("path", path), zap.String("key", key))
		}
		return Config{}, false
	}
	return cfg, true
}
