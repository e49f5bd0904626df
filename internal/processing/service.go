package processing

import (
	"context"
	"encoding/json"
	"fmt"

	"filepipe/internal/broker"
	"filepipe/internal/constants"
	"filepipe/internal/convert"
	"filepipe/internal/discovery"
	"filepipe/internal/logger"
	"filepipe/internal/source"
	"filepipe/pkg/models"
	"filepipe/pkg/tracing"
)

const serviceName = "processor-service"

// ContentCache is the slice of the staging cache this stage needs.
type ContentCache interface {
	Put(ctx context.Context, prefix string, content []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

// Service turns a discovered file into canonical JSON and hands it to the
// validation stage through the content cache. Messages downstream carry
// only the cache key, never the content.
type Service struct {
	sources    source.Repository
	adapters   *discovery.Registry
	converters *convert.Registry
	cache      ContentCache
	producer   broker.Producer
	logger     logger.Logger
}

func NewService(sources source.Repository, adapters *discovery.Registry, converters *convert.Registry, cache ContentCache, producer broker.Producer, log logger.Logger) *Service {
	return &Service{
		sources:    sources,
		adapters:   adapters,
		converters: converters,
		cache:      cache,
		producer:   producer,
		logger:     log,
	}
}

// HandleFileDiscovered is the broker handler for discovered files.
func (s *Service) HandleFileDiscovered(ctx context.Context, msg *models.Envelope) error {
	ctx, span := tracing.GetTracer(serviceName).Start(ctx, "processing.convert")
	defer span.End()

	var file models.FileDiscovered
	if err := msg.Decode(&file); err != nil {
		return err
	}

	src, err := s.sources.Get(ctx, file.SourceID)
	if err != nil {
		return err
	}

	adapter, ok := s.adapters.Get(src.AdapterType)
	if !ok {
		return fmt.Errorf("no adapter registered for type %q", src.AdapterType)
	}

	data, err := adapter.ReadFile(ctx, file.FilePath)
	if err != nil {
		return err
	}

	format := src.DefaultFormat
	if format == "" {
		format = s.converters.DetectFormat(file.FileName)
	}

	records, formatMeta, err := s.converters.ToJSON(data, format, nil)
	if err != nil {
		return fmt.Errorf("failed to convert %s from %s: %w", file.FileName, format, err)
	}

	canonical, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal canonical records: %w", err)
	}

	contentKey, err := s.cache.Put(ctx, constants.CacheKeyPrefixContent, canonical)
	if err != nil {
		return err
	}

	payload := models.ValidationRequest{
		SourceID:       file.SourceID,
		BatchID:        file.BatchID,
		FileName:       file.FileName,
		ContentKey:     contentKey,
		OriginalFormat: format,
		FormatMetadata: formatMeta,
		RecordCount:    len(records),
	}
	envelope, err := models.NewEnvelope(msg.CorrelationID, serviceName, payload)
	if err == nil {
		err = s.producer.Publish(ctx, constants.TopicValidationRequests, envelope)
	}
	if err != nil {
		// Orphaned key; the TTL reclaims it.
		_ = s.cache.Delete(ctx, contentKey)
		return fmt.Errorf("failed to publish validation request for %s: %w", file.FileName, err)
	}

	s.logger.InfowCtx(ctx, "File converted and staged",
		"source_id", file.SourceID,
		"file_name", file.FileName,
		"format", format,
		"records", len(records),
	)
	return nil
}
