package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisCache instance
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewRedisCache(client, "test:")

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return cache, mr, cleanup
}

func TestRedisCache_SetGet(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	err := cache.Set(ctx, "catalog:item:sku-1", []byte(`{"id":"sku-1"}`), 5*time.Minute)
	require.NoError(t, err)

	stored, err := mr.Get("test:catalog:item:sku-1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"sku-1"}`, stored)

	got, err := cache.Get(ctx, "catalog:item:sku-1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"sku-1"}`), got)
}

func TestRedisCache_Miss(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	got, err := cache.Get(context.Background(), "nonexistent")

	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, got)
}

func TestRedisCache_TTL(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), 10*time.Minute))
	assert.Equal(t, 10*time.Minute, mr.TTL("test:k"))

	mr.FastForward(11 * time.Minute)

	_, err := cache.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_ZeroTTLPersists(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, cache.Set(context.Background(), "k", []byte("v"), 0))

	assert.Equal(t, time.Duration(0), mr.TTL("test:k"))
}

func TestRedisCache_Delete(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, mr.Set("test:k", "v"))

	require.NoError(t, cache.Delete(ctx, "k"))
	assert.False(t, mr.Exists("test:k"))

	// Deleting a missing key is not an error
	assert.NoError(t, cache.Delete(ctx, "k"))
}

func TestRedisCache_ConnectionError(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	mr.Close()

	_, err := cache.Get(context.Background(), "k")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
	assert.Contains(t, err.Error(), "redis get failed")
}
