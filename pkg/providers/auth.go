package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const authModeAPIKey = "api_key"

// TokenSource returns bearer material for request auth.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Source() string
}

type staticTokenSource struct {
	token  string
	source string
}

func NewStaticTokenSource(token, source string) TokenSource {
	return &staticTokenSource{
		token:  strings.TrimSpace(token),
		source: strings.TrimSpace(source),
	}
}

func (s *staticTokenSource) Token(context.Context) (string, error) {
	tok := strings.TrimSpace(s.token)
	if tok == "" {
		return "", fmt.Errorf("token is empty for %s", s.Source())
	}
	if looksLikePlaceholder(tok) {
		return "", fmt.Errorf("token for %s looks like an unexpanded placeholder", s.Source())
	}
	return tok, nil
}

func (s *staticTokenSource) Source() string {
	if s.source != "" {
		return s.source
	}
	return "static"
}

func looksLikePlaceholder(tok string) bool {
	return (strings.HasPrefix(tok, "<") && strings.HasSuffix(tok, ">")) ||
		(strings.HasPrefix(tok, "${") && strings.HasSuffix(tok, "}"))
}

// AuthStrategy applies request auth for provider HTTP calls.
type AuthStrategy interface {
	Mode() string
	Apply(ctx context.Context, req *http.Request) error
}

type apiKeyAuth struct {
	source TokenSource
}

func NewAPIKeyAuth(source TokenSource) AuthStrategy {
	return &apiKeyAuth{source: source}
}

func (a *apiKeyAuth) Mode() string {
	return authModeAPIKey
}

func (a *apiKeyAuth) Apply(ctx context.Context, req *http.Request) error {
	if a.source == nil {
		return fmt.Errorf("auth token source is nil")
	}
	tok, err := a.source.Token(ctx)
	if err != nil {
		return fmt.Errorf("resolve auth token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}
