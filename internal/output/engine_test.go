package output

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filepipe/internal/config"
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
	mu      sync.Mutex
	entries map[string][]byte
	deleted []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (c *fakeCache) put(key string, records []convert.Record) {
	data, _ := json.Marshal(records)
	c.entries[key] = data
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return nil, contentcache.ErrNotFound
	}
	return data, nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.deleted = append(c.deleted, key)
	return nil
}

type recordingHandler struct {
	mu       sync.Mutex
	writes   []WriteRequest
	failFor  map[string]error
	attempts map[string]int
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		failFor:  make(map[string]error),
		attempts: make(map[string]int),
	}
}

func (h *recordingHandler) CanHandle(destinationType string) bool {
	return destinationType == "test"
}

func (h *recordingHandler) Write(ctx context.Context, req WriteRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts[req.Destination.Name]++
	if err, ok := h.failFor[req.Destination.Name]; ok {
		return err
	}
	h.writes = append(h.writes, req)
	return nil
}

func testEngine(t *testing.T, src *source.DataSource, cache *fakeCache, handler Handler) *Engine {
	t.Helper()
	return NewEngine(
		&stubSources{src: src},
		cache,
		convert.NewRegistry(),
		NewHandlerRegistry(handler),
		config.OutputConfig{RetryAttempts: 2, RetryDelay: time.Millisecond},
		logger.NopLogger(),
	)
}

func testSource(destinations ...source.OutputDestination) *source.DataSource {
	return &source.DataSource{
		ID:     "src-1",
		Name:   "orders",
		Active: true,
		Output: &source.OutputConfig{Destinations: destinations},
	}
}

func completedEnvelope(t *testing.T, event models.ValidationCompleted) *models.Envelope {
	t.Helper()
	envelope, err := models.NewEnvelope("corr-1", "validation-service", event)
	require.NoError(t, err)
	return envelope
}

func TestShouldFanOut(t *testing.T) {
	tests := []struct {
		name  string
		event models.ValidationCompleted
		want  bool
	}{
		{
			name:  "success with records",
			event: models.ValidationCompleted{Status: "success", ValidCount: 3},
			want:  true,
		},
		{
			name:  "partial failure with records",
			event: models.ValidationCompleted{Status: "partial-failure", ValidCount: 1},
			want:  true,
		},
		{
			name:  "failed",
			event: models.ValidationCompleted{Status: "failed", ValidCount: 0},
			want:  false,
		},
		{
			name:  "completed empty file",
			event: models.ValidationCompleted{Status: "completed", ValidCount: 0},
			want:  false,
		},
		{
			name:  "unknown status",
			event: models.ValidationCompleted{Status: "exploded", ValidCount: 3},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldFanOut(tt.event))
		})
	}
}

func TestHandleValidationCompleted_DeliversToAllDestinations(t *testing.T) {
	handler := newRecordingHandler()
	cache := newFakeCache()
	cache.put("validrecords:abc", []convert.Record{{"id": "1"}})

	src := testSource(
		source.OutputDestination{Name: "a", Type: "test", Enabled: true},
		source.OutputDestination{Name: "b", Type: "test", Enabled: true},
		source.OutputDestination{Name: "disabled", Type: "test"},
	)
	engine := testEngine(t, src, cache, handler)

	event := models.ValidationCompleted{
		SourceID:       "src-1",
		FileName:       "orders.csv",
		Status:         "success",
		ValidCount:     1,
		ValidRecordKey: "validrecords:abc",
		OriginalFormat: "json",
	}

	err := engine.HandleValidationCompleted(context.Background(), completedEnvelope(t, event))
	require.NoError(t, err)

	require.Len(t, handler.writes, 2)
	assert.Zero(t, handler.attempts["disabled"])
	assert.Contains(t, cache.deleted, "validrecords:abc")
}

func TestHandleValidationCompleted_DestinationsAreIndependent(t *testing.T) {
	handler := newRecordingHandler()
	handler.failFor["broken"] = errors.New("connection refused")
	cache := newFakeCache()
	cache.put("validrecords:abc", []convert.Record{{"id": "1"}})

	src := testSource(
		source.OutputDestination{Name: "broken", Type: "test", Enabled: true},
		source.OutputDestination{Name: "healthy", Type: "test", Enabled: true},
	)
	engine := testEngine(t, src, cache, handler)

	event := models.ValidationCompleted{
		SourceID:       "src-1",
		FileName:       "orders.json",
		Status:         "success",
		ValidCount:     1,
		ValidRecordKey: "validrecords:abc",
		OriginalFormat: "json",
	}

	err := engine.HandleValidationCompleted(context.Background(), completedEnvelope(t, event))
	require.NoError(t, err)

	// The broken destination exhausted its retries; the healthy one still
	// got the file, and the staged key was cleaned up regardless.
	assert.Equal(t, 2, handler.attempts["broken"])
	require.Len(t, handler.writes, 1)
	assert.Equal(t, "healthy", handler.writes[0].Destination.Name)
	assert.Contains(t, cache.deleted, "validrecords:abc")
}

func TestHandleValidationCompleted_SkipsWithoutValidRecords(t *testing.T) {
	handler := newRecordingHandler()
	cache := newFakeCache()
	cache.put("invalidrecords:xyz", []convert.Record{{"id": "bad"}})

	src := testSource(source.OutputDestination{Name: "a", Type: "test", Enabled: true})
	engine := testEngine(t, src, cache, handler)

	event := models.ValidationCompleted{
		SourceID:         "src-1",
		FileName:         "orders.json",
		Status:           "failed",
		InvalidCount:     1,
		InvalidRecordKey: "invalidrecords:xyz",
	}

	err := engine.HandleValidationCompleted(context.Background(), completedEnvelope(t, event))
	require.NoError(t, err)

	assert.Empty(t, handler.writes)
	assert.Contains(t, cache.deleted, "invalidrecords:xyz")
}

func TestHandleValidationCompleted_ExpiredKeyDropsFile(t *testing.T) {
	handler := newRecordingHandler()
	cache := newFakeCache()

	src := testSource(source.OutputDestination{Name: "a", Type: "test", Enabled: true})
	engine := testEngine(t, src, cache, handler)

	event := models.ValidationCompleted{
		SourceID:       "src-1",
		FileName:       "orders.json",
		Status:         "success",
		ValidCount:     1,
		ValidRecordKey: "validrecords:gone",
	}

	err := engine.HandleValidationCompleted(context.Background(), completedEnvelope(t, event))
	require.NoError(t, err)
	assert.Empty(t, handler.writes)
}

func TestHandleValidationCompleted_MergesInvalidRecordsWhenRequested(t *testing.T) {
	handler := newRecordingHandler()
	cache := newFakeCache()
	cache.put("validrecords:v", []convert.Record{{"id": "1"}})
	cache.put("invalidrecords:i", []convert.Record{{"id": "2"}})

	src := testSource(
		source.OutputDestination{Name: "all", Type: "test", Enabled: true, IncludeInvalidRecords: true},
		source.OutputDestination{Name: "valid-only", Type: "test", Enabled: true},
	)
	engine := testEngine(t, src, cache, handler)

	event := models.ValidationCompleted{
		SourceID:         "src-1",
		FileName:         "orders.json",
		Status:           "partial-failure",
		ValidCount:       1,
		InvalidCount:     1,
		ValidRecordKey:   "validrecords:v",
		InvalidRecordKey: "invalidrecords:i",
		OriginalFormat:   "json",
	}

	err := engine.HandleValidationCompleted(context.Background(), completedEnvelope(t, event))
	require.NoError(t, err)
	require.Len(t, handler.writes, 2)

	sizes := map[string]int{}
	for _, w := range handler.writes {
		var records []convert.Record
		require.NoError(t, json.Unmarshal(w.Content, &records))
		sizes[w.Destination.Name] = len(records)
	}
	assert.Equal(t, 2, sizes["all"])
	assert.Equal(t, 1, sizes["valid-only"])
}

func TestFileNameWithFormat(t *testing.T) {
	tests := []struct {
		fileName string
		format   string
		want     string
	}{
		{"orders.csv", "csv", "orders.csv"},
		{"orders.csv", "json", "orders.json"},
		{"orders.CSV", "csv", "orders.CSV"},
		{"orders", "xml", "orders.xml"},
	}

	for _, tt := range tests {
		t.Run(tt.fileName+"_"+tt.format, func(t *testing.T) {
			assert.Equal(t, tt.want, fileNameWithFormat(tt.fileName, tt.format))
		})
	}
}
