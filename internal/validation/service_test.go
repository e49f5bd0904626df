package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filepipe/internal/constants"
	"filepipe/internal/contentcache"
	"filepipe/internal/convert"
	"filepipe/internal/logger"
	"filepipe/internal/source"
	"filepipe/pkg/models"
)

type stubSources struct {
	src *source.DataSource
}

func (s *stubSources) Get(ctx context.Context, id string) (*source.DataSource, error) {
	if s.src == nil {
		return nil, errors.New("not found")
	}
	return s.src, nil
}

func (s *stubSources) ListActive(ctx context.Context) ([]source.DataSource, error) {
	return nil, nil
}

func (s *stubSources) UpdateLastPolled(ctx context.Context, id string, at time.Time) error {
	return nil
}

type fakeCache struct {
	entries map[string][]byte
	deleted []string
	puts    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (c *fakeCache) Put(ctx context.Context, prefix string, content []byte) (string, error) {
	c.puts++
	key := fmt.Sprintf("%s%d", prefix, c.puts)
	c.entries[key] = content
	return key, nil
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := c.entries[key]
	if !ok {
		return nil, contentcache.ErrNotFound
	}
	return data, nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	delete(c.entries, key)
	c.deleted = append(c.deleted, key)
	return nil
}

// flakyProducer fails the first n publishes, then records the rest.
type flakyProducer struct {
	failures  int
	topics    []string
	published []*models.Envelope
}

func (p *flakyProducer) Publish(ctx context.Context, topic string, msg *models.Envelope) error {
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	p.published = append(p.published, msg)
	return nil
}

func (p *flakyProducer) Close() error {
	return nil
}

func stagedRequest(t *testing.T, cache *fakeCache, records []convert.Record) *models.Envelope {
	t.Helper()

	data, err := json.Marshal(records)
	require.NoError(t, err)
	key, err := cache.Put(context.Background(), constants.CacheKeyPrefixContent, data)
	require.NoError(t, err)

	envelope, err := models.NewEnvelope("corr-1", "processor-service", models.ValidationRequest{
		SourceID:   "src-1",
		BatchID:    "batch-1",
		FileName:   "orders.csv",
		ContentKey: key,
	})
	require.NoError(t, err)
	return envelope
}

func testService(cache *fakeCache, producer *flakyProducer) *Service {
	src := &source.DataSource{
		ID:     "src-1",
		Schema: map[string]interface{}{"required": []interface{}{"id"}},
	}
	return NewService(&stubSources{src: src}, cache, NewSchemaValidator(), producer, logger.NopLogger())
}

func TestHandleValidationRequest_PublishesAndDeletesConsumedKey(t *testing.T) {
	cache := newFakeCache()
	producer := &flakyProducer{}
	svc := testService(cache, producer)

	msg := stagedRequest(t, cache, []convert.Record{{"id": "1"}, {"id": "2"}})
	require.NoError(t, svc.HandleValidationRequest(context.Background(), msg))

	require.Len(t, producer.published, 1)
	assert.Equal(t, constants.TopicValidationCompleted, producer.topics[0])

	var completed models.ValidationCompleted
	require.NoError(t, producer.published[0].Decode(&completed))
	assert.Equal(t, constants.StatusSuccess, completed.Status)
	assert.Equal(t, 2, completed.ValidCount)
	assert.NotEmpty(t, completed.ValidRecordKey)

	// The consumed key is spent; the staged valid set is not.
	var req models.ValidationRequest
	require.NoError(t, msg.Decode(&req))
	assert.Contains(t, cache.deleted, req.ContentKey)
	assert.Contains(t, cache.entries, completed.ValidRecordKey)
}

func TestHandleValidationRequest_RedeliveryAfterPublishFailure(t *testing.T) {
	cache := newFakeCache()
	producer := &flakyProducer{failures: 1}
	svc := testService(cache, producer)

	msg := stagedRequest(t, cache, []convert.Record{{"id": "1"}})
	var req models.ValidationRequest
	require.NoError(t, msg.Decode(&req))

	// First delivery hits the transient publish failure; the consumed key
	// must survive so the redelivery can still read the content.
	err := svc.HandleValidationRequest(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, cache.entries, req.ContentKey)
	assert.NotContains(t, cache.deleted, req.ContentKey)

	require.NoError(t, svc.HandleValidationRequest(context.Background(), msg))

	require.Len(t, producer.published, 1)
	var completed models.ValidationCompleted
	require.NoError(t, producer.published[0].Decode(&completed))
	assert.Equal(t, constants.StatusSuccess, completed.Status)
	assert.Equal(t, 1, completed.ValidCount)
	assert.Contains(t, cache.deleted, req.ContentKey)
}

func TestHandleValidationRequest_ExpiredKeyDropsFile(t *testing.T) {
	cache := newFakeCache()
	producer := &flakyProducer{}
	svc := testService(cache, producer)

	envelope, err := models.NewEnvelope("corr-1", "processor-service", models.ValidationRequest{
		SourceID:   "src-1",
		FileName:   "orders.csv",
		ContentKey: "content:gone",
	})
	require.NoError(t, err)

	require.NoError(t, svc.HandleValidationRequest(context.Background(), envelope))
	assert.Empty(t, producer.published)
}
