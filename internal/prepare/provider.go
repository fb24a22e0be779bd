package prepare

import (
	"context"
	"fmt"
	"os"

	"github.com/agentuse/agentuse/internal/provider"
)

// BuildProvider constructs the single provider.Provider a ModelSpec names,
// reading its credentials from the environment variables ModelSpec.APIKeyEnv/
// BaseURLEnv compute (spec §6's multi-account env-suffix convention).
// Grounded on internal/provider/registry.go's InitializeProviders, narrowed
// from "build every configured provider" to "build the one this run needs."
func BuildProvider(ctx context.Context, spec ModelSpec) (provider.Provider, error) {
	apiKey := os.Getenv(spec.APIKeyEnv())
	baseURL := os.Getenv(spec.BaseURLEnv())

	switch spec.ProviderID {
	case "anthropic", "claude":
		if apiKey == "" {
			return nil, fmt.Errorf("prepare: %s not set for model %s", spec.APIKeyEnv(), spec)
		}
		return provider.NewAnthropicProvider(ctx, &provider.AnthropicConfig{
			ID:        spec.ProviderID,
			APIKey:    apiKey,
			BaseURL:   baseURL,
			Model:     spec.ModelID,
			MaxTokens: 8192,
		})

	case "ark":
		if apiKey == "" {
			return nil, fmt.Errorf("prepare: %s not set for model %s", spec.APIKeyEnv(), spec)
		}
		return provider.NewArkProvider(ctx, &provider.ArkConfig{
			APIKey:    apiKey,
			BaseURL:   baseURL,
			Model:     spec.ModelID,
			MaxTokens: 4096,
		})

	default:
		// openai and any OpenAI-compatible provider (local/self-hosted
		// endpoints may rely on baseURL alone with no key).
		if apiKey == "" && baseURL == "" {
			return nil, fmt.Errorf("prepare: neither %s nor %s set for model %s", spec.APIKeyEnv(), spec.BaseURLEnv(), spec)
		}
		return provider.NewOpenAIProvider(ctx, &provider.OpenAIConfig{
			ID:        spec.ProviderID,
			APIKey:    apiKey,
			BaseURL:   baseURL,
			Model:     spec.ModelID,
			MaxTokens: 4096,
		})
	}
}
