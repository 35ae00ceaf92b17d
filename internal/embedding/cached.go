package embedding

import (
	"context"
	"time"

	"github.com/regcheck/backend/internal/cache"
)

// CachedEmbedder memoises vectors by model and text
type CachedEmbedder struct {
	next  Embedder
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedEmbedder(next Embedder, c cache.Cache, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{next: next, cache: c, ttl: ttl}
}

func (e *CachedEmbedder) Model() string  { return e.next.Model() }
func (e *CachedEmbedder) Dimension() int { return e.next.Dimension() }

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.Key(cache.NamespaceEmbedding, e.next.Model(), text)
	vec, _, err := cache.GetOrCompute(ctx, e.cache, key, e.ttl, func(ctx context.Context) ([]float32, error) {
		return e.next.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}
