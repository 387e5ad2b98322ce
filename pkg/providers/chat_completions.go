package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxErrorBodyLen    = 2000
)

// APIError is a non-2xx provider response. Status 429 and 5xx are retryable.
type APIError struct {
	Provider string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API request failed: status=%d error=%s", e.Provider, e.Status, e.Message)
}

func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// chatCompletionsProvider speaks the OpenAI-compatible /chat/completions
// wire format to gateways such as OpenRouter.
type chatCompletionsProvider struct {
	name         string
	endpoint     string
	defaultModel string
	auth         AuthStrategy
	client       *http.Client
	headers      http.Header
}

type chatCompletionsRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *UsageInfo `json:"usage"`
}

func newChatCompletionsProvider(name, apiBase, defaultModel, proxy string, auth AuthStrategy, extraHeaders map[string]string) (*chatCompletionsProvider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		return nil, fmt.Errorf("%s API base not configured", name)
	}
	if auth == nil {
		return nil, fmt.Errorf("%s auth is not configured", name)
	}

	client := &http.Client{Timeout: defaultHTTPTimeout}
	if proxy = strings.TrimSpace(proxy); proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse %s proxy: %w", name, err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	headers := http.Header{}
	for k, v := range extraHeaders {
		if k, v = strings.TrimSpace(k), strings.TrimSpace(v); k != "" && v != "" {
			headers.Set(k, v)
		}
	}

	return &chatCompletionsProvider{
		name:         name,
		endpoint:     apiBase + "/chat/completions",
		defaultModel: strings.TrimSpace(defaultModel),
		auth:         auth,
		client:       client,
		headers:      headers,
	}, nil
}

func (p *chatCompletionsProvider) Chat(ctx context.Context, messages []Message, model string, opts ChatOptions) (*LLMResponse, error) {
	if p == nil {
		return nil, fmt.Errorf("provider not initialized")
	}
	if model = strings.TrimSpace(model); model == "" {
		model = p.defaultModel
	}

	body := chatCompletionsRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if opts.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range p.headers {
		req.Header[k] = vs
	}
	if err := p.auth.Apply(ctx, req); err != nil {
		return nil, fmt.Errorf("apply %s auth: %w", p.name, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send %s request: %w", p.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", p.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Provider: p.name, Status: resp.StatusCode, Message: apiErrorMessage(raw)}
	}

	var parsed chatCompletionsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", p.name, err)
	}
	if len(parsed.Choices) == 0 {
		return &LLMResponse{FinishReason: "stop", Usage: parsed.Usage}, nil
	}
	choice := parsed.Choices[0]
	return &LLMResponse{
		Content:      contentText(choice.Message.Content),
		FinishReason: choice.FinishReason,
		Usage:        parsed.Usage,
	}, nil
}

func (p *chatCompletionsProvider) GetDefaultModel() string {
	if p == nil {
		return ""
	}
	return p.defaultModel
}

// contentText accepts either a plain string or a list of typed content
// parts and joins the text of the parts.
func contentText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, part := range parts {
		if part.Text != "" {
			b.WriteString(part.Text)
		} else {
			b.WriteString(part.Content)
		}
	}
	return b.String()
}

func apiErrorMessage(raw []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		for _, msg := range []string{payload.Error.Message, payload.Message} {
			if msg = strings.TrimSpace(msg); msg != "" {
				return msg
			}
		}
	}
	text := strings.TrimSpace(string(raw))
	switch {
	case text == "":
		return "empty response body"
	case len(text) > maxErrorBodyLen:
		return text[:maxErrorBodyLen] + "..."
	}
	return text
}
