package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/dotsetgreg/repcue/pkg/config"
	"github.com/dotsetgreg/repcue/pkg/logger"
	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

func init() {
	RegisterFactory(ProviderOpenAI, newOpenAIProviderFromConfig, validateOpenAIConfig)
}

func validateOpenAIConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if strings.TrimSpace(cfg.Providers.OpenAI.APIKey) == "" {
		return fmt.Errorf("OpenAI API key is required (set providers.openai.api_key or REPCUE_PROVIDERS_OPENAI_API_KEY)")
	}
	return nil
}

// openAIProvider talks to the OpenAI API through the go-openai client.
type openAIProvider struct {
	client       *openai.Client
	defaultModel string
}

func newOpenAIProviderFromConfig(cfg *config.Config) (LLMProvider, error) {
	if err := validateOpenAIConfig(cfg); err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.Providers.OpenAI.APIKey))
	if base := strings.TrimSpace(cfg.Providers.OpenAI.APIBase); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	if org := strings.TrimSpace(cfg.Providers.OpenAI.Organization); org != "" {
		clientCfg.OrgID = org
	}

	model := strings.TrimSpace(cfg.Engine.Model)
	// OpenRouter-style "vendor/model" names are meaningless to the OpenAI API.
	if model == "" || strings.Contains(model, "/") {
		model = defaultOpenAIModel
	}
	return &openAIProvider{client: openai.NewClientWithConfig(clientCfg), defaultModel: model}, nil
}

func (p *openAIProvider) Chat(ctx context.Context, messages []Message, model string, opts ChatOptions) (*LLMResponse, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = p.defaultModel
	}

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	req.MaxCompletionTokens = opts.MaxTokens
	req.Temperature = float32(opts.Temperature)
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		logger.WarnCF("providers", "OpenAI request failed", map[string]interface{}{"model": model, "error": err.Error()})
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return &LLMResponse{Content: "", FinishReason: "stop"}, nil
	}

	choice := resp.Choices[0]
	return &LLMResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: &UsageInfo{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (p *openAIProvider) GetDefaultModel() string {
	return p.defaultModel
}
