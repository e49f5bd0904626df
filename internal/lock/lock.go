package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"filepipe/internal/constants"
	"filepipe/internal/logger"
	"filepipe/pkg/metrics"
)

// Manager guards each data source with a lock embedded in its document.
// Acquisition is one atomic compare-and-set: the filter admits a free lock
// or a stale one, so a crashed owner is displaced without a separate
// release step. Staleness never clears a lock on its own.
type Manager struct {
	collection  *mongo.Collection
	gracePeriod time.Duration
	logger      logger.Logger
}

func NewManager(db *mongo.Database, gracePeriod time.Duration, log logger.Logger) *Manager {
	if gracePeriod <= 0 {
		gracePeriod = constants.DefaultLockGracePeriod
	}
	return &Manager{
		collection:  db.Collection(constants.CollectionSources),
		gracePeriod: gracePeriod,
		logger:      log,
	}
}

// TryAcquire returns true when this instance now holds the lock. A held,
// fresh lock returns false with no error.
func (m *Manager) TryAcquire(ctx context.Context, sourceID, correlationID, instanceID string) (bool, error) {
	now := time.Now().UTC()
	staleBefore := now.Add(-m.gracePeriod)

	filter := bson.M{
		"_id": sourceID,
		"$or": []bson.M{
			{"is_processing": false},
			{"processing_started_at": bson.M{"$lt": staleBefore}},
		},
	}
	update := bson.M{"$set": bson.M{
		"is_processing":          true,
		"processing_started_at":  now,
		"processing_instance_id": instanceID,
		"correlation_id":         correlationID,
	}}

	err := m.collection.FindOneAndUpdate(ctx, filter, update).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Either the source does not exist or the lock is held and fresh.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock for source %s: %w", sourceID, err)
	}

	m.logger.InfowCtx(ctx, "Processing lock acquired",
		"source_id", sourceID,
		"instance_id", instanceID,
	)
	return true, nil
}

// Release clears the lock unconditionally. Reason is recorded for the
// release metric and log line only.
func (m *Manager) Release(ctx context.Context, sourceID, reason string) error {
	result, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": sourceID},
		bson.M{
			"$set": bson.M{
				"is_processing":          false,
				"processing_instance_id": "",
				"correlation_id":         "",
			},
			"$unset": bson.M{"processing_started_at": ""},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to release lock for source %s: %w", sourceID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("source %s not found on lock release", sourceID)
	}

	metrics.LocksReleasedTotal.WithLabelValues(reason).Inc()
	m.logger.InfowCtx(ctx, "Processing lock released",
		"source_id", sourceID,
		"reason", reason,
	)
	return nil
}

// ReleaseOwned clears every lock held by instanceID and reports how many
// were released. Used by the shutdown hook and the lifecycle endpoint.
func (m *Manager) ReleaseOwned(ctx context.Context, instanceID string) (int, error) {
	result, err := m.collection.UpdateMany(ctx,
		bson.M{
			"is_processing":          true,
			"processing_instance_id": instanceID,
		},
		bson.M{
			"$set": bson.M{
				"is_processing":          false,
				"processing_instance_id": "",
				"correlation_id":         "",
			},
			"$unset": bson.M{"processing_started_at": ""},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release locks for instance %s: %w", instanceID, err)
	}

	released := int(result.ModifiedCount)
	if released > 0 {
		metrics.LocksReleasedTotal.WithLabelValues("shutdown").Add(float64(released))
	}
	m.logger.InfowCtx(ctx, "Released owned processing locks",
		"instance_id", instanceID,
		"count", released,
	)
	return released, nil
}
