// Package llm produces compliance reports from a hosted or local language model.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/regcheck/backend/internal/config"
)

type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	StatusCode   int
}

// Provider is a single model backend
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Health(ctx context.Context) error
	Name() string
	Model() string
}

// NewProvider builds the provider named by cfg.Provider
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, &http.Client{Timeout: cfg.Timeout}), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("LLM_API_KEY is required for the anthropic provider")
		}
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, orDefault(cfg.Timeout, 2*time.Minute)), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
