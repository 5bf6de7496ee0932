package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ProviderConfig selects and configures one provider.
type ProviderConfig struct {
	Name    string // gemini, openai, openrouter, offline
	Model   string // empty selects DefaultModel(Name)
	APIKey  string
	BaseURL string
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case "gemini":
		return "gemini-1.5-flash"
	case "openai":
		return "gpt-4o-mini"
	case "openrouter":
		return "openai/gpt-4o-mini"
	default:
		return "offline"
	}
}

// NewProvider builds the configured provider and returns it with the model
// to request. A hosted provider without an API key degrades to the offline
// provider with a warning.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, string, error) {
	if cfg.Name != "offline" && cfg.APIKey == "" {
		log.Warn().Str("provider", cfg.Name).Msg("llm_provider_missing_api_key_using_offline")
		return NewOfflineProvider(), DefaultModel("offline"), nil
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel(cfg.Name)
	}

	switch cfg.Name {
	case "gemini":
		p, err := NewGeminiProvider(ctx, cfg.APIKey, cfg.BaseURL)
		if err != nil {
			return nil, "", err
		}
		return p, model, nil
	case "openai":
		if cfg.BaseURL != "" {
			return NewOpenAIProviderWithBaseURL(cfg.APIKey, cfg.BaseURL), model, nil
		}
		return NewOpenAIProvider(cfg.APIKey), model, nil
	case "openrouter":
		return NewOpenRouterProvider(cfg.APIKey, cfg.BaseURL), model, nil
	case "offline":
		return NewOfflineProvider(), DefaultModel("offline"), nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Name)
	}
}
