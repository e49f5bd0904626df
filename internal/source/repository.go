package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"filepipe/internal/constants"
	pkgerrors "filepipe/pkg/errors"
)

type Repository interface {
	Get(ctx context.Context, id string) (*DataSource, error)
	ListActive(ctx context.Context) ([]DataSource, error)
	UpdateLastPolled(ctx context.Context, id string, at time.Time) error
}

type MongoRepository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection(constants.CollectionSources),
	}
}

func (r *MongoRepository) Get(ctx context.Context, id string) (*DataSource, error) {
	var src DataSource
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&src)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("data source %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data source: %w", err)
	}
	return &src, nil
}

func (r *MongoRepository) ListActive(ctx context.Context) ([]DataSource, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, fmt.Errorf("failed to list active data sources: %w", err)
	}
	defer cursor.Close(ctx)

	var sources []DataSource
	if err := cursor.All(ctx, &sources); err != nil {
		return nil, fmt.Errorf("failed to decode data sources: %w", err)
	}
	return sources, nil
}

func (r *MongoRepository) UpdateLastPolled(ctx context.Context, id string, at time.Time) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"last_polled_at": at,
			"updated_at":     time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update last polled: %w", err)
	}
	if result.MatchedCount == 0 {
		return pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("data source %s not found", id))
	}
	return nil
}
