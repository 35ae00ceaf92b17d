// Package cache provides the result cache shared by the embedding and analysis
// paths: Redis when reachable, an in-process LRU always.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const keyPrefix = "crc"

// Namespaces used across the backend
const (
	NamespaceAnalysis  = "analysis"
	NamespaceEmbedding = "embedding"
	NamespaceDocument  = "document"
)

type Cache interface {
	// Get decodes the cached value into dst and reports whether it was found.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Stats() Stats
}

type Stats struct {
	Backend      string `json:"backend"`
	Hits         int64  `json:"hits"`
	Misses       int64  `json:"misses"`
	Sets         int64  `json:"sets"`
	Deletes      int64  `json:"deletes"`
	RedisErrors  int64  `json:"redisErrors"`
	LocalEntries int    `json:"localEntries"`
}

// Key builds "crc:<namespace>:<sha256 of parts joined by ':'>"
func Key(namespace string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return NamespacePrefix(namespace) + hex.EncodeToString(sum[:])
}

// NamespacePrefix returns the prefix shared by every key of a namespace
func NamespacePrefix(namespace string) string {
	if namespace == "" {
		return keyPrefix + ":"
	}
	return keyPrefix + ":" + namespace + ":"
}

// GetOrCompute returns the cached value for key, or calls fn and stores its
// result. The bool reports a cache hit. Cache failures never fail the call.
func GetOrCompute[T any](ctx context.Context, c Cache, key string, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, bool, error) {
	var cached T
	if found, err := c.Get(ctx, key, &cached); err == nil && found {
		return cached, true, nil
	}

	value, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}
	_ = c.Set(ctx, key, value, ttl)
	return value, false, nil
}
