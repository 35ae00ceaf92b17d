package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type report struct {
	Summary   string `json:"summary"`
	RiskScore int    `json:"riskScore"`
}

func newRedisCache(t *testing.T) (*TieredCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewTieredCache(client, 10, time.Hour), mr
}

func TestKey(t *testing.T) {
	k := Key(NamespaceAnalysis, "abc", "ollama", "llama3")
	assert.True(t, strings.HasPrefix(k, "crc:analysis:"))
	assert.Len(t, strings.TrimPrefix(k, "crc:analysis:"), 64)
	assert.Equal(t, k, Key(NamespaceAnalysis, "abc", "ollama", "llama3"))
	assert.NotEqual(t, k, Key(NamespaceAnalysis, "abc", "ollama", "llama3.1"))
	assert.NotEqual(t, k, Key(NamespaceEmbedding, "abc", "ollama", "llama3"))
	assert.Equal(t, "crc:", NamespacePrefix(""))
}

func TestTieredCacheRoundTrip(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "crc:analysis:1", report{Summary: "ok", RiskScore: 40}, time.Minute))
	assert.True(t, mr.Exists("crc:analysis:1"))

	var got report
	found, err := c.Get(ctx, "crc:analysis:1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, report{Summary: "ok", RiskScore: 40}, got)

	found, err = c.Get(ctx, "crc:analysis:missing", &got)
	require.NoError(t, err)
	assert.False(t, found)

	stats := c.Stats()
	assert.Equal(t, "redis+local", stats.Backend)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.LocalEntries)
}

func TestTieredCacheFallsBackWhenRedisDown(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "crc:analysis:2", report{Summary: "kept"}, time.Minute))
	mr.Close()

	var got report
	found, err := c.Get(ctx, "crc:analysis:2", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "kept", got.Summary)

	require.NoError(t, c.Set(ctx, "crc:analysis:3", report{Summary: "local"}, time.Minute))
	found, err = c.Get(ctx, "crc:analysis:3", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Greater(t, c.Stats().RedisErrors, int64(0))
}

func TestTieredCacheLocalOnlyExpiry(t *testing.T) {
	c := NewTieredCache(nil, 10, time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "crc:embedding:1", []float32{0.1, 0.2}, time.Minute))

	var vec []float32
	found, _ := c.Get(ctx, "crc:embedding:1", &vec)
	assert.True(t, found)
	assert.Equal(t, []float32{0.1, 0.2}, vec)

	now = now.Add(2 * time.Minute)
	found, _ = c.Get(ctx, "crc:embedding:1", &vec)
	assert.False(t, found)
	assert.Equal(t, "local", c.Stats().Backend)
	assert.Error(t, c.Ping(ctx))
}

func TestTieredCacheRedisExpiry(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "crc:analysis:ttl", report{Summary: "x"}, time.Minute))
	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("crc:analysis:ttl"))
}

func TestTieredCacheDelete(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "crc:analysis:a", 1, 0))
	require.NoError(t, c.Set(ctx, "crc:analysis:b", 2, 0))
	require.NoError(t, c.Set(ctx, "crc:embedding:c", 3, 0))

	require.NoError(t, c.Delete(ctx, "crc:analysis:a"))
	var v int
	found, _ := c.Get(ctx, "crc:analysis:a", &v)
	assert.False(t, found)

	require.NoError(t, c.DeletePrefix(ctx, NamespacePrefix(NamespaceAnalysis)))
	found, _ = c.Get(ctx, "crc:analysis:b", &v)
	assert.False(t, found)
	assert.False(t, mr.Exists("crc:analysis:b"))

	found, _ = c.Get(ctx, "crc:embedding:c", &v)
	assert.True(t, found)
	assert.Equal(t, 3, v)
}

func TestTieredCacheRejectsUnencodableValue(t *testing.T) {
	c := NewTieredCache(nil, 10, time.Hour)
	err := c.Set(context.Background(), "crc:x", make(chan int), time.Minute)
	assert.Error(t, err)
}

func TestGetOrCompute(t *testing.T) {
	c := NewTieredCache(nil, 10, time.Hour)
	ctx := context.Background()
	calls := 0
	compute := func(context.Context) (report, error) {
		calls++
		return report{Summary: "computed", RiskScore: 10}, nil
	}

	first, hit, err := GetOrCompute(ctx, c, "crc:analysis:k", time.Minute, compute)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := GetOrCompute(ctx, c, "crc:analysis:k", time.Minute, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	_, _, err = GetOrCompute(ctx, c, "crc:analysis:fail", time.Minute, func(context.Context) (report, error) {
		return report{}, errors.New("upstream down")
	})
	assert.EqualError(t, err, "upstream down")
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := ConnectRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	client.Close()

	_, err = ConnectRedis(context.Background(), "not a url")
	assert.Error(t, err)
}
