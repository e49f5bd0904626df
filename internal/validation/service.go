package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"filepipe/internal/broker"
	"filepipe/internal/constants"
	"filepipe/internal/contentcache"
	"filepipe/internal/convert"
	"filepipe/internal/logger"
	"filepipe/internal/source"
	"filepipe/pkg/metrics"
	"filepipe/pkg/models"
	"filepipe/pkg/tracing"
)

const serviceName = "validation-service"

// ContentCache is the slice of the staging cache this stage needs.
type ContentCache interface {
	Put(ctx context.Context, prefix string, content []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Service validates staged files record by record. The consumed content
// key is only deleted once the completion event is published, so a
// redelivered request still finds the content; a cache miss means the
// content expired and the file is dropped with a logged miss, not retried.
type Service struct {
	sources   source.Repository
	cache     ContentCache
	validator Validator
	producer  broker.Producer
	logger    logger.Logger
}

func NewService(sources source.Repository, cache ContentCache, validator Validator, producer broker.Producer, log logger.Logger) *Service {
	return &Service{
		sources:   sources,
		cache:     cache,
		validator: validator,
		producer:  producer,
		logger:    log,
	}
}

// HandleValidationRequest is the broker handler for validation requests.
func (s *Service) HandleValidationRequest(ctx context.Context, msg *models.Envelope) error {
	ctx, span := tracing.GetTracer(serviceName).Start(ctx, "validation.validate")
	defer span.End()

	var req models.ValidationRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}

	content, err := s.cache.Get(ctx, req.ContentKey)
	if errors.Is(err, contentcache.ErrNotFound) {
		metrics.ContentCacheMissesTotal.WithLabelValues("validation").Inc()
		s.logger.WarnwCtx(ctx, "Content key expired before validation, dropping file",
			"source_id", req.SourceID,
			"file_name", req.FileName,
			"content_key", req.ContentKey,
		)
		return nil
	}
	if err != nil {
		return err
	}

	var records []convert.Record
	if err := json.Unmarshal(content, &records); err != nil {
		return fmt.Errorf("staged content for %s is not canonical JSON: %w", req.FileName, err)
	}

	src, err := s.sources.Get(ctx, req.SourceID)
	if err != nil {
		return err
	}

	valid, invalid := s.split(src.Schema, records)
	metrics.IncValidationRecords("valid", len(valid))
	metrics.IncValidationRecords("invalid", len(invalid))

	status := statusFor(len(valid), len(invalid))
	metrics.ValidationsTotal.WithLabelValues(status).Inc()

	payload := models.ValidationCompleted{
		SourceID:       req.SourceID,
		BatchID:        req.BatchID,
		FileName:       req.FileName,
		Status:         status,
		ValidCount:     len(valid),
		InvalidCount:   len(invalid),
		OriginalFormat: req.OriginalFormat,
		FormatMetadata: req.FormatMetadata,
	}

	if len(valid) > 0 {
		validJSON, err := json.Marshal(valid)
		if err != nil {
			return fmt.Errorf("failed to marshal valid records: %w", err)
		}
		key, err := s.cache.Put(ctx, constants.CacheKeyPrefixValidRecords, validJSON)
		if err != nil {
			return err
		}
		payload.ValidRecordKey = key
	}

	if len(invalid) > 0 && wantsInvalidRecords(src) {
		invalidJSON, err := json.Marshal(invalid)
		if err != nil {
			return fmt.Errorf("failed to marshal invalid records: %w", err)
		}
		key, err := s.cache.Put(ctx, constants.CacheKeyPrefixInvalid, invalidJSON)
		if err != nil {
			return err
		}
		payload.InvalidRecordKey = key
	}

	envelope, err := models.NewEnvelope(msg.CorrelationID, serviceName, payload)
	if err == nil {
		err = s.producer.Publish(ctx, constants.TopicValidationCompleted, envelope)
	}
	if err != nil {
		return fmt.Errorf("failed to publish validation completed for %s: %w", req.FileName, err)
	}

	// Only now is the consumed key spent: up to this point a redelivery
	// must still find the content.
	if err := s.cache.Delete(ctx, req.ContentKey); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to delete consumed content key",
			"content_key", req.ContentKey,
			"error", err,
		)
	}

	s.logger.InfowCtx(ctx, "File validated",
		"source_id", req.SourceID,
		"file_name", req.FileName,
		"status", status,
		"valid", len(valid),
		"invalid", len(invalid),
	)
	return nil
}

func (s *Service) split(schema map[string]interface{}, records []convert.Record) (valid, invalid []convert.Record) {
	if len(schema) == 0 {
		return records, nil
	}
	for _, record := range records {
		if violations := s.validator.Validate(schema, record); len(violations) > 0 {
			annotated := make(convert.Record, len(record)+1)
			for k, v := range record {
				annotated[k] = v
			}
			annotated["_violations"] = violations
			invalid = append(invalid, annotated)
			continue
		}
		valid = append(valid, record)
	}
	return valid, invalid
}

func statusFor(validCount, invalidCount int) string {
	switch {
	case validCount == 0 && invalidCount == 0:
		return constants.StatusCompleted
	case invalidCount == 0:
		return constants.StatusSuccess
	case validCount == 0:
		return constants.StatusFailed
	default:
		return constants.StatusPartialFailure
	}
}

// wantsInvalidRecords reports whether any enabled destination asked for the
// invalid set alongside the valid one.
func wantsInvalidRecords(src *source.DataSource) bool {
	if src.Output == nil {
		return false
	}
	for _, d := range src.Output.Destinations {
		if d.Enabled && d.IncludeInvalidRecords {
			return true
		}
	}
	return false
}
