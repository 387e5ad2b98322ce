package providers

import (
	"fmt"
	"strings"

	"github.com/dotsetgreg/repcue/pkg/config"
)

const (
	defaultOpenRouterAPIBase = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel   = "openai/gpt-4o-mini"
)

func init() {
	RegisterFactory(ProviderOpenRouter, newOpenRouterProviderFromConfig, validateOpenRouterConfig)
}

func validateOpenRouterConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if strings.TrimSpace(cfg.Providers.OpenRouter.APIKey) == "" {
		return fmt.Errorf("OpenRouter API key is required (set providers.openrouter.api_key or REPCUE_PROVIDERS_OPENROUTER_API_KEY)")
	}
	return nil
}

func newOpenRouterProviderFromConfig(cfg *config.Config) (LLMProvider, error) {
	if err := validateOpenRouterConfig(cfg); err != nil {
		return nil, err
	}

	apiBase := strings.TrimSpace(cfg.Providers.OpenRouter.APIBase)
	if apiBase == "" {
		apiBase = defaultOpenRouterAPIBase
	}
	model := strings.TrimSpace(cfg.Engine.Model)
	if model == "" {
		model = defaultOpenRouterModel
	}
	auth := NewAPIKeyAuth(NewStaticTokenSource(cfg.Providers.OpenRouter.APIKey, "providers.openrouter.api_key"))
	return newChatCompletionsProvider(
		ProviderOpenRouter,
		apiBase,
		model,
		strings.TrimSpace(cfg.Providers.OpenRouter.Proxy),
		auth,
		map[string]string{"X-Title": "RepCue"},
	)
}
