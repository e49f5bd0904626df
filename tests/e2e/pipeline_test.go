package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"filepipe/internal/source"
	"filepipe/pkg/models"
)

// These tests drive a locally running deployment of all five services
// sharing the host filesystem, Kafka, Mongo, and Redis below.
const (
	kafkaBroker              = "localhost:29092"
	mongoURI                 = "mongodb://localhost:27017"
	mongoDatabase            = "filepipe"
	pollRequestsTopic        = "poll_requests"
	validationCompletedTopic = "validation_completed"
	dropDir                  = "/tmp/filepipe-e2e/in"
	outputDir                = "/tmp/filepipe-e2e/out"
	messageWaitTimeout       = 60 * time.Second
)

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	sourceID := "e2e-" + uuid.NewString()[:8]
	require.NoError(t, os.MkdirAll(dropDir, 0o755))

	src := &source.DataSource{
		ID:            sourceID,
		Name:          "e2e-orders",
		Active:        true,
		AdapterType:   "filesystem",
		Path:          dropDir,
		FilePattern:   sourceID + "_*.csv",
		CronSchedule:  "0 0 0 1 1 *",
		DefaultFormat: "csv",
		Schema: map[string]interface{}{
			"required": []interface{}{"id"},
		},
		Output: &source.OutputConfig{
			Destinations: []source.OutputDestination{
				{
					Name:          "e2e-folder",
					Type:          "folder",
					Enabled:       true,
					PathTemplate:  outputDir + "/{sourceId}",
					OverwriteMode: "overwrite",
				},
			},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	collection := client.Database(mongoDatabase).Collection("data_sources")
	_, err = collection.InsertOne(ctx, src)
	require.NoError(t, err)
	defer collection.DeleteOne(ctx, bson.M{"_id": sourceID})

	fileName := sourceID + "_orders.csv"
	filePath := filepath.Join(dropDir, fileName)
	require.NoError(t, os.WriteFile(filePath, []byte("id,name\n1,alice\n2,bob\n"), 0o644))
	defer os.Remove(filePath)

	correlationID := uuid.NewString()
	sendPollRequest(t, sourceID, correlationID)

	completed := waitForValidationCompleted(t, sourceID)
	require.NotNil(t, completed, "file should reach the validation stage")

	assert.Equal(t, "success", completed.Status)
	assert.Equal(t, 2, completed.ValidCount)
	assert.Equal(t, 0, completed.InvalidCount)
	assert.Equal(t, "csv", completed.OriginalFormat)

	outputPath := filepath.Join(outputDir, sourceID, sourceID+"_orders.csv")
	require.Eventually(t, func() bool {
		_, err := os.Stat(outputPath)
		return err == nil
	}, messageWaitTimeout, time.Second, "delivered file should appear in the folder destination")
	defer os.Remove(outputPath)
}

func TestPipelineValidation_InvalidRecords(t *testing.T) {
	ctx := context.Background()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	sourceID := "e2e-" + uuid.NewString()[:8]
	require.NoError(t, os.MkdirAll(dropDir, 0o755))

	src := &source.DataSource{
		ID:            sourceID,
		Name:          "e2e-partial",
		Active:        true,
		AdapterType:   "filesystem",
		Path:          dropDir,
		FilePattern:   sourceID + "_*.csv",
		CronSchedule:  "0 0 0 1 1 *",
		DefaultFormat: "csv",
		Schema: map[string]interface{}{
			"required": []interface{}{"id", "name"},
		},
		Output: &source.OutputConfig{
			Destinations: []source.OutputDestination{
				{
					Name:          "e2e-folder",
					Type:          "folder",
					Enabled:       true,
					PathTemplate:  outputDir + "/{sourceId}",
					OverwriteMode: "overwrite",
				},
			},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	collection := client.Database(mongoDatabase).Collection("data_sources")
	_, err = collection.InsertOne(ctx, src)
	require.NoError(t, err)
	defer collection.DeleteOne(ctx, bson.M{"_id": sourceID})

	fileName := sourceID + "_mixed.csv"
	filePath := filepath.Join(dropDir, fileName)
	require.NoError(t, os.WriteFile(filePath, []byte("id,name\n1,alice\n2,\n"), 0o644))
	defer os.Remove(filePath)

	sendPollRequest(t, sourceID, uuid.NewString())

	completed := waitForValidationCompleted(t, sourceID)
	require.NotNil(t, completed)

	assert.Equal(t, "partial-failure", completed.Status)
	assert.Equal(t, 1, completed.ValidCount)
	assert.Equal(t, 1, completed.InvalidCount)
}

func sendPollRequest(t *testing.T, sourceID, correlationID string) {
	t.Helper()

	payload := models.PollRequest{
		SourceID:    sourceID,
		SourceName:  sourceID,
		FilePath:    dropDir,
		TriggeredAt: time.Now().UTC(),
	}
	envelope, err := models.NewEnvelope(correlationID, "e2e-test", payload)
	require.NoError(t, err)

	body, err := json.Marshal(envelope)
	require.NoError(t, err)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(kafkaBroker),
		Topic:                  pollRequestsTopic,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(correlationID),
		Value: body,
	})
	require.NoError(t, err, "failed to publish poll request")
}

func waitForValidationCompleted(t *testing.T, sourceID string) *models.ValidationCompleted {
	t.Helper()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{kafkaBroker},
		GroupID: fmt.Sprintf("e2e-%s", uuid.NewString()[:8]),
		Topic:   validationCompletedTopic,
	})
	defer reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), messageWaitTimeout)
	defer cancel()

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			return nil
		}

		var envelope models.Envelope
		if err := json.Unmarshal(m.Value, &envelope); err != nil {
			continue
		}

		var completed models.ValidationCompleted
		if err := envelope.Decode(&completed); err != nil {
			continue
		}

		if completed.SourceID == sourceID {
			return &completed
		}
	}
}
