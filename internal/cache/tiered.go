package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/regcheck/backend/internal/logger"
)

const (
	DefaultLocalSize = 1000
	maxLocalTTL      = 24 * time.Hour
	scanBatch        = 100
)

type localEntry struct {
	data      []byte
	expiresAt time.Time
}

// TieredCache writes through to Redis and a local LRU and reads Redis first.
// Redis errors are logged and counted; callers only ever see a miss.
type TieredCache struct {
	redis      *redis.Client
	local      *expirable.LRU[string, localEntry]
	defaultTTL time.Duration
	now        func() time.Time

	hits        atomic.Int64
	misses      atomic.Int64
	sets        atomic.Int64
	deletes     atomic.Int64
	redisErrors atomic.Int64
}

// NewTieredCache builds the cache. A nil client runs the cache local-only.
func NewTieredCache(client *redis.Client, localSize int, defaultTTL time.Duration) *TieredCache {
	if localSize <= 0 {
		localSize = DefaultLocalSize
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &TieredCache{
		redis:      client,
		local:      expirable.NewLRU[string, localEntry](localSize, nil, maxLocalTTL),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// ConnectRedis parses url and pings the server. Callers fall back to a
// local-only cache when it returns an error.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (c *TieredCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c.redis != nil {
		data, err := c.redis.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			if c.decode(key, data, dst) {
				c.hits.Add(1)
				return true, nil
			}
		case errors.Is(err, redis.Nil):
		default:
			c.redisFailed(err, "get", key)
		}
	}

	if entry, ok := c.local.Get(key); ok {
		if c.now().Before(entry.expiresAt) && c.decode(key, entry.data, dst) {
			c.hits.Add(1)
			return true, nil
		}
		c.local.Remove(key)
	}

	c.misses.Add(1)
	return false, nil
}

func (c *TieredCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
			c.redisFailed(err, "set", key)
		}
	}
	c.local.Add(key, localEntry{data: data, expiresAt: c.now().Add(ttl)})
	c.sets.Add(1)
	return nil
}

func (c *TieredCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if c.redis != nil {
		if err := c.redis.Del(ctx, keys...).Err(); err != nil {
			c.redisFailed(err, "delete", strings.Join(keys, ","))
		}
	}
	for _, k := range keys {
		c.local.Remove(k)
	}
	c.deletes.Add(int64(len(keys)))
	return nil
}

func (c *TieredCache) DeletePrefix(ctx context.Context, prefix string) error {
	removed := 0
	if c.redis != nil {
		iter := c.redis.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
		batch := make([]string, 0, scanBatch)
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == scanBatch {
				if err := c.redis.Del(ctx, batch...).Err(); err != nil {
					c.redisFailed(err, "delete_prefix", prefix)
				}
				removed += len(batch)
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			c.redisFailed(err, "scan", prefix)
		}
		if len(batch) > 0 {
			if err := c.redis.Del(ctx, batch...).Err(); err != nil {
				c.redisFailed(err, "delete_prefix", prefix)
			}
			removed += len(batch)
		}
	}
	for _, k := range c.local.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.local.Remove(k)
			removed++
		}
	}
	c.deletes.Add(int64(removed))
	return nil
}

func (c *TieredCache) Stats() Stats {
	backend := "local"
	if c.redis != nil {
		backend = "redis+local"
	}
	return Stats{
		Backend:      backend,
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Sets:         c.sets.Load(),
		Deletes:      c.deletes.Load(),
		RedisErrors:  c.redisErrors.Load(),
		LocalEntries: c.local.Len(),
	}
}

// Ping reports whether the Redis tier is reachable
func (c *TieredCache) Ping(ctx context.Context) error {
	if c.redis == nil {
		return errors.New("redis not configured, running local-only")
	}
	return c.redis.Ping(ctx).Err()
}

func (c *TieredCache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

func (c *TieredCache) decode(key string, data []byte, dst any) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		logger.WithError(err, "cache").WithField("key", key).Warn("Discarding undecodable cache entry")
		return false
	}
	return true
}

func (c *TieredCache) redisFailed(err error, op, key string) {
	c.redisErrors.Add(1)
	logger.WithError(err, "cache").WithFields(map[string]interface{}{
		"operation": op,
		"key":       key,
	}).Warn("Redis operation failed, using local cache")
}
