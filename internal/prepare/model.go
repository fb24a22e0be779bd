package prepare

import (
	"fmt"
	"strings"
)

// ModelSpec is a parsed "provider:model[:envSuffixOrVar]" string, per spec
// §6's agent-document "model" field.
type ModelSpec struct {
	ProviderID      string
	ModelID         string
	EnvSuffixOrVar  string
	HasEnvSelector  bool
}

// ParseModelSpec parses the colon-separated model field. Unlike the
// teacher's ParseModelString (internal/provider/registry.go), which splits
// a "provider/model" pair on "/", the core spec's model strings are
// colon-separated and carry an optional third segment selecting which
// credential to use.
func ParseModelSpec(spec string) (ModelSpec, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ModelSpec{}, fmt.Errorf("prepare: invalid model spec %q, want provider:model[:envSuffixOrVar]", spec)
	}
	ms := ModelSpec{ProviderID: parts[0], ModelID: parts[1]}
	if len(parts) == 3 && parts[2] != "" {
		ms.EnvSuffixOrVar = parts[2]
		ms.HasEnvSelector = true
	}
	return ms, nil
}

// apiKeyEnvBase maps a providerID to the base name of its API key
// environment variable, per spec §6's enumerated
// "ANTHROPIC_API_KEY[_SUFFIX]" / "OPENAI_API_KEY[_SUFFIX]" /
// "OPENROUTER_API_KEY[_SUFFIX]" variables.
func apiKeyEnvBase(providerID string) string {
	return strings.ToUpper(providerID) + "_API_KEY"
}

// baseURLEnvBase maps a providerID to the base name of its base-URL
// environment variable, per spec §6's "<PROVIDER>_BASE_URL[_SUFFIX]".
func baseURLEnvBase(providerID string) string {
	return strings.ToUpper(providerID) + "_BASE_URL"
}

// APIKeyEnv returns the environment variable name this spec should read
// its API key from. When the model spec carries a third segment, it is
// appended as a "_SUFFIX" to the provider's base variable name, letting
// one agent select among several configured accounts for the same
// provider (e.g. "anthropic:claude-sonnet-4:WORK" reads
// ANTHROPIC_API_KEY_WORK instead of ANTHROPIC_API_KEY).
func (ms ModelSpec) APIKeyEnv() string {
	base := apiKeyEnvBase(ms.ProviderID)
	if !ms.HasEnvSelector {
		return base
	}
	return base + "_" + strings.ToUpper(ms.EnvSuffixOrVar)
}

// BaseURLEnv is the base-URL environment variable counterpart to
// APIKeyEnv, following the same suffix rule.
func (ms ModelSpec) BaseURLEnv() string {
	base := baseURLEnvBase(ms.ProviderID)
	if !ms.HasEnvSelector {
		return base
	}
	return base + "_" + strings.ToUpper(ms.EnvSuffixOrVar)
}

// String reconstructs the canonical "provider:model[:envSuffixOrVar]" form.
func (ms ModelSpec) String() string {
	if ms.HasEnvSelector {
		return ms.ProviderID + ":" + ms.ModelID + ":" + ms.EnvSuffixOrVar
	}
	return ms.ProviderID + ":" + ms.ModelID
}
