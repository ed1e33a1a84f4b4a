package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFromClient(client), mr
}

// TestPurpose: Validates the Redis cache adapter: set/get round trip, TTL
// expiry and delete semantics against a real protocol implementation.
// Scope: Unit Test (miniredis)
func TestRedisCache_SetGetDelete(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	// Miss
	_, found, err := cache.Get(ctx, "token:introspect:missing")
	require.NoError(t, err)
	assert.False(t, found)

	// Round trip
	require.NoError(t, cache.Set(ctx, "token:introspect:abc", "1", time.Minute))
	value, found, err := cache.Get(ctx, "token:introspect:abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", value)

	ttl := mr.TTL("token:introspect:abc")
	assert.Greater(t, ttl, 50*time.Second)

	// Delete, then deleting again stays silent
	require.NoError(t, cache.Delete(ctx, "token:introspect:abc"))
	_, found, err = cache.Get(ctx, "token:introspect:abc")
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, cache.Delete(ctx, "token:introspect:abc"))

	// Non-positive TTL must not store
	require.NoError(t, cache.Set(ctx, "token:introspect:expired", "1", -time.Second))
	_, found, err = cache.Get(ctx, "token:introspect:expired")
	require.NoError(t, err)
	assert.False(t, found)
}

// TestPurpose: Validates that entries vanish once their TTL elapses.
// Scope: Unit Test (miniredis clock control)
func TestRedisCache_TTLExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "token:introspect:short", "1", 10*time.Second))

	mr.FastForward(11 * time.Second)

	_, found, err := cache.Get(ctx, "token:introspect:short")
	require.NoError(t, err)
	assert.False(t, found)
}
