package integration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filepipe/internal/contentcache"
)

func TestContentCache_PutGetDelete(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	ctx := context.Background()

	cache := contentcache.New(infra.RedisClient, time.Minute)

	content := []byte(`[{"id":"1"},{"id":"2"}]`)
	key, err := cache.Put(ctx, "content:", content)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "content:"))

	got, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	require.NoError(t, cache.Delete(ctx, key))

	_, err = cache.Get(ctx, key)
	assert.ErrorIs(t, err, contentcache.ErrNotFound)
}

func TestContentCache_KeysAreUnique(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	ctx := context.Background()

	cache := contentcache.New(infra.RedisClient, time.Minute)

	k1, err := cache.Put(ctx, "content:", []byte("a"))
	require.NoError(t, err)
	k2, err := cache.Put(ctx, "content:", []byte("b"))
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
}

func TestContentCache_TTLExpiry(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	ctx := context.Background()

	cache := contentcache.New(infra.RedisClient, time.Second)

	key, err := cache.Put(ctx, "content:", []byte("ephemeral"))
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	_, err = cache.Get(ctx, key)
	assert.ErrorIs(t, err, contentcache.ErrNotFound)
}

func TestContentCache_DeleteMissingKey(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	ctx := context.Background()

	cache := contentcache.New(infra.RedisClient, time.Minute)

	assert.NoError(t, cache.Delete(ctx, "content:never-existed"))
}
