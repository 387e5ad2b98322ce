package matcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dotsetgreg/repcue/pkg/catalog"
	"github.com/dotsetgreg/repcue/pkg/providers"
)

const semanticSystemPrompt = `You map a gym member's free-text exercise phrase onto a catalog.
Only use ids from the catalog lines you are given. Rank the best match first and return at most %d ids.
If nothing in the catalog fits, return an empty list.
Respond with JSON only, no prose:
{"candidate_ids": ["<id>", ...], "reasoning": "<one sentence>", "confidence": <0..1>}`

// LLMSemanticMatcher implements SemanticMatcher with a chat-completions
// provider. The model's answer is untrusted: ids are re-checked against the
// catalog by Matcher.
type LLMSemanticMatcher struct {
	provider      providers.LLMProvider
	model         string
	maxCandidates int
}

func NewLLMSemanticMatcher(provider providers.LLMProvider, model string, maxCandidates int) *LLMSemanticMatcher {
	if maxCandidates <= 0 {
		maxCandidates = DefaultOptions().MaxCandidates
	}
	return &LLMSemanticMatcher{provider: provider, model: strings.TrimSpace(model), maxCandidates: maxCandidates}
}

type semanticResponse struct {
	CandidateIDs []string `json:"candidate_ids"`
	Reasoning    string   `json:"reasoning"`
	Confidence   float64  `json:"confidence"`
}

func (m *LLMSemanticMatcher) SemanticMatch(ctx context.Context, phrase string, intent Intent, slice []catalog.Entry) (SemanticResult, error) {
	if m == nil || m.provider == nil {
		return SemanticResult{}, ErrSemanticUnavailable
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Intent: %s\nPhrase: %q\nCatalog:\n", intent, phrase)
	for _, e := range slice {
		fmt.Fprintf(&b, "- %s | %s | type=%s | pattern=%s | equipment=%s | tags=%s\n",
			e.ID, e.Name, e.Type, e.MovementPattern,
			strings.Join(e.Equipment, ","), strings.Join(e.Tags, ","))
	}

	messages := []providers.Message{
		{Role: "system", Content: fmt.Sprintf(semanticSystemPrompt, m.maxCandidates)},
		{Role: "user", Content: b.String()},
	}
	resp, err := m.provider.Chat(ctx, messages, m.model, providers.ChatOptions{
		MaxTokens: 300,
		JSON:      true,
	})
	if err != nil {
		return SemanticResult{}, fmt.Errorf("semantic match: %w", err)
	}

	parsed, err := parseSemanticResponse(resp.Content)
	if err != nil {
		return SemanticResult{}, err
	}
	return SemanticResult{
		CandidateIDs: parsed.CandidateIDs,
		Reasoning:    parsed.Reasoning,
		Confidence:   clamp01(parsed.Confidence),
	}, nil
}

// parseSemanticResponse accepts the first JSON object in raw, which lets
// models that wrap their answer in code fences or prose still parse.
func parseSemanticResponse(raw string) (semanticResponse, error) {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return semanticResponse{}, fmt.Errorf("semantic match: no JSON object in response")
	}
	var out semanticResponse
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return semanticResponse{}, fmt.Errorf("semantic match: decode response: %w", err)
	}
	return out, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
