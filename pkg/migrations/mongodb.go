package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"filepipe/internal/constants"
)

// EnsureMongoCollection creates the indexes the pipeline queries by:
// active-source listing, lock acquisition, and the owned-lock sweep on
// shutdown.
func EnsureMongoCollection(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection(constants.CollectionSources)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "active", Value: 1}},
			Options: options.Index().SetName("idx_data_sources_active"),
		},
		{
			Keys:    bson.D{{Key: "is_processing", Value: 1}, {Key: "processing_started_at", Value: 1}},
			Options: options.Index().SetName("idx_data_sources_lock"),
		},
		{
			Keys:    bson.D{{Key: "is_processing", Value: 1}, {Key: "processing_instance_id", Value: 1}},
			Options: options.Index().SetName("idx_data_sources_lock_owner"),
		},
		{
			Keys:    bson.D{{Key: "last_polled_at", Value: -1}},
			Options: options.Index().SetName("idx_data_sources_last_polled"),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
