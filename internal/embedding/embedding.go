// Package embedding turns text into vectors through an external embedding
// service.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/regcheck/backend/internal/cache"
	"github.com/regcheck/backend/internal/config"
	"github.com/regcheck/backend/internal/upstream"
)

var ErrEmptyEmbedding = errors.New("embedding service returned an empty vector")

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}

// New builds the embedder selected by cfg.Provider, memoised through c when
// c is non-nil.
func New(cfg config.EmbeddingConfig, maxRetries int, c cache.Cache, cacheTTL time.Duration) (Embedder, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	policy := upstream.DefaultPolicy(maxRetries)
	limiter := upstream.NewLimiter(cfg.RequestsPerS, int(cfg.RequestsPerS)+1)

	var base Embedder
	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		base = &OllamaEmbedder{
			baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
			model:     cfg.Model,
			dimension: cfg.Dimension,
			client:    httpClient,
			limiter:   limiter,
			policy:    policy,
		}
	case "openai":
		base = &OpenAIEmbedder{
			baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
			apiKey:    cfg.APIKey,
			model:     cfg.Model,
			dimension: cfg.Dimension,
			client:    httpClient,
			limiter:   limiter,
			policy:    policy,
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if c == nil {
		return base, nil
	}
	return NewCachedEmbedder(base, c, cacheTTL), nil
}
