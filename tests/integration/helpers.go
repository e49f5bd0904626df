package integration

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"filepipe/internal/config"
	"filepipe/internal/constants"
	"filepipe/internal/logger"
	"filepipe/internal/source"
)

const containerStartupTimeout = 60

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestDedupConfig() config.DedupConfig {
	return config.DedupConfig{
		TTL:        5 * time.Minute,
		OnCacheErr: "allow",
	}
}

func createTestSource(id string) *source.DataSource {
	now := time.Now().UTC()
	return &source.DataSource{
		ID:              id,
		Name:            "test-source",
		Active:          true,
		AdapterType:     "filesystem",
		Path:            "/tmp/test-source",
		FilePattern:     "*.csv",
		PollingInterval: time.Minute,
		DefaultFormat:   "csv",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func insertSource(t *testing.T, db *mongo.Database, src *source.DataSource) {
	t.Helper()
	_, err := db.Collection(constants.CollectionSources).InsertOne(context.Background(), src)
	if err != nil {
		t.Fatalf("failed to insert test source: %v", err)
	}
}
