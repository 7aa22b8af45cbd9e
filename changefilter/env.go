package changefilter

import (
	"encoding/json"
	"os"

	"go.uber.org/zap"
)

// EnvVar is the environment variable an operator can set to override the
// default filter with a JSON-encoded {"rules": [...]} document.
const EnvVar = "STRATOFORM_RESOURCE_CHANGE_FILTER"

// FromEnv returns the filter configured via EnvVar, or Default() when the
// variable is unset or fails to parse. log may be nil.
func FromEnv(log *zap.Logger) Filter {
	raw, ok := os.LookupEnv(EnvVar)
	if !ok {
		return Default()
	}

	var parsed struct {
		Rules []FilterRule `json:"rules"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		if log != nil {
			log.Warn("failed to parse resource change filter from environment, using default",
				zap.String("env", EnvVar), zap.Error(err))
		}
		return Default()
	}
	return Filter{Rules: parsed.Rules}
}
