package integration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"filepipe/internal/constants"
	"filepipe/internal/lock"
	"filepipe/internal/source"
)

func TestLockManager_AcquireAndRelease(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, true)
	ctx := context.Background()

	insertSource(t, infra.MongoDB, createTestSource("src-1"))
	locks := lock.NewManager(infra.MongoDB, time.Minute, createTestLogger())

	acquired, err := locks.TryAcquire(ctx, "src-1", "corr-1", "instance-a")
	require.NoError(t, err)
	assert.True(t, acquired)

	// Held and fresh: a second acquirer is turned away without error.
	acquired, err = locks.TryAcquire(ctx, "src-1", "corr-2", "instance-b")
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, locks.Release(ctx, "src-1", "cycle_complete"))

	// Release clears every lock field, the start timestamp included.
	var doc source.DataSource
	err = infra.MongoDB.Collection(constants.CollectionSources).
		FindOne(ctx, bson.M{"_id": "src-1"}).Decode(&doc)
	require.NoError(t, err)
	assert.False(t, doc.IsProcessing)
	assert.Empty(t, doc.ProcessingInstanceID)
	assert.Empty(t, doc.CorrelationID)
	assert.True(t, doc.ProcessingStartedAt.IsZero())

	acquired, err = locks.TryAcquire(ctx, "src-1", "corr-3", "instance-b")
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestLockManager_ConcurrentAcquire(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, true)
	ctx := context.Background()

	insertSource(t, infra.MongoDB, createTestSource("src-1"))
	locks := lock.NewManager(infra.MongoDB, time.Minute, createTestLogger())

	// Two instances race for the same source; the CAS must admit exactly one.
	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acquired, err := locks.TryAcquire(ctx,
				"src-1",
				fmt.Sprintf("corr-%d", i),
				fmt.Sprintf("instance-%d", i),
			)
			assert.NoError(t, err)
			if acquired {
				successes.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
}

func TestLockManager_StaleTakeover(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, true)
	ctx := context.Background()

	insertSource(t, infra.MongoDB, createTestSource("src-1"))
	locks := lock.NewManager(infra.MongoDB, time.Second, createTestLogger())

	acquired, err := locks.TryAcquire(ctx, "src-1", "corr-1", "crashed-instance")
	require.NoError(t, err)
	require.True(t, acquired)

	// Within the grace period the lock holds even without a release.
	acquired, err = locks.TryAcquire(ctx, "src-1", "corr-2", "instance-b")
	require.NoError(t, err)
	assert.False(t, acquired)

	time.Sleep(1500 * time.Millisecond)

	// Past the grace period the stale lock is displaced atomically.
	acquired, err = locks.TryAcquire(ctx, "src-1", "corr-3", "instance-b")
	require.NoError(t, err)
	assert.True(t, acquired)

	var doc source.DataSource
	err = infra.MongoDB.Collection(constants.CollectionSources).
		FindOne(ctx, bson.M{"_id": "src-1"}).Decode(&doc)
	require.NoError(t, err)
	assert.Equal(t, "instance-b", doc.ProcessingInstanceID)
	assert.Equal(t, "corr-3", doc.CorrelationID)
	assert.True(t, doc.IsProcessing)
}

func TestLockManager_AcquireMissingSource(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, true)
	ctx := context.Background()

	locks := lock.NewManager(infra.MongoDB, time.Minute, createTestLogger())

	acquired, err := locks.TryAcquire(ctx, "no-such-source", "corr-1", "instance-a")
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestLockManager_ReleaseMissingSource(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, true)
	ctx := context.Background()

	locks := lock.NewManager(infra.MongoDB, time.Minute, createTestLogger())

	assert.Error(t, locks.Release(ctx, "no-such-source", "cycle_complete"))
}

func TestLockManager_ReleaseOwned(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, true, true)
	ctx := context.Background()

	insertSource(t, infra.MongoDB, createTestSource("src-1"))
	insertSource(t, infra.MongoDB, createTestSource("src-2"))
	insertSource(t, infra.MongoDB, createTestSource("src-3"))
	locks := lock.NewManager(infra.MongoDB, time.Minute, createTestLogger())

	for _, id := range []string{"src-1", "src-2"} {
		acquired, err := locks.TryAcquire(ctx, id, "corr-1", "instance-a")
		require.NoError(t, err)
		require.True(t, acquired)
	}
	acquired, err := locks.TryAcquire(ctx, "src-3", "corr-2", "instance-b")
	require.NoError(t, err)
	require.True(t, acquired)

	released, err := locks.ReleaseOwned(ctx, "instance-a")
	require.NoError(t, err)
	assert.Equal(t, 2, released)

	// The other instance's lock is untouched.
	acquired, err = locks.TryAcquire(ctx, "src-3", "corr-3", "instance-a")
	require.NoError(t, err)
	assert.False(t, acquired)

	acquired, err = locks.TryAcquire(ctx, "src-1", "corr-4", "instance-b")
	require.NoError(t, err)
	assert.True(t, acquired)
}
