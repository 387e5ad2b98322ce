package providers

import "context"

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type UsageInfo struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type LLMResponse struct {
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason"`
	Usage        *UsageInfo `json:"usage,omitempty"`
}

// ChatOptions tunes one completion. JSON asks for a JSON object response
// where the backend supports it.
type ChatOptions struct {
	MaxTokens   int
	Temperature float64
	JSON        bool
}

// LLMProvider is the narrow completion interface the semantic matcher uses.
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message, model string, opts ChatOptions) (*LLMResponse, error)
	GetDefaultModel() string
}
