package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filepipe/internal/dedup"
)

func TestDedupRepository_SetNXAndExists(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	ctx := context.Background()

	repo := dedup.NewRepository(infra.RedisClient)

	set, err := repo.SetNX(ctx, "filehash:src-1:abc", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, set)

	// Second SetNX on the same key does not overwrite.
	set, err = repo.SetNX(ctx, "filehash:src-1:abc", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, set)

	exists, err := repo.Exists(ctx, "filehash:src-1:abc")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, "filehash:src-1:missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDedupRepository_Delete(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	ctx := context.Background()

	repo := dedup.NewRepository(infra.RedisClient)

	_, err := repo.SetNX(ctx, "filehash:src-1:abc", 1, time.Minute)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "filehash:src-1:abc"))

	exists, err := repo.Exists(ctx, "filehash:src-1:abc")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDedupRepository_CountPrefix(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	ctx := context.Background()

	repo := dedup.NewRepository(infra.RedisClient)

	for _, key := range []string{"filehash:src-1:a", "filehash:src-1:b", "filehash:src-2:c"} {
		_, err := repo.SetNX(ctx, key, 1, time.Minute)
		require.NoError(t, err)
	}

	count, err := repo.CountPrefix(ctx, "filehash:src-1:")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = repo.CountPrefix(ctx, "filehash:")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestDedupRepository_TTLExpiry(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)
	ctx := context.Background()

	repo := dedup.NewRepository(infra.RedisClient)

	_, err := repo.SetNX(ctx, "filehash:src-1:shortlived", 1, time.Second)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	exists, err := repo.Exists(ctx, "filehash:src-1:shortlived")
	require.NoError(t, err)
	assert.False(t, exists)
}
