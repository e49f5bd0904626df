package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"filepipe/internal/config"
	"filepipe/internal/constants"
	"filepipe/internal/contentcache"
	"filepipe/internal/convert"
	"filepipe/internal/logger"
	"filepipe/internal/source"
	"filepipe/pkg/metrics"
	"filepipe/pkg/models"
	"filepipe/pkg/retry"
	"filepipe/pkg/tracing"
)

const serviceName = "output-service"

// DestinationResult is the outcome of one destination's delivery attempt
// chain.
type DestinationResult struct {
	Destination string
	Type        string
	Attempts    int
	Err         error
}

// FileResult aggregates the per-destination outcomes for one file.
type FileResult struct {
	FileName string
	Results  []DestinationResult
}

// Succeeded reports whether every attempted destination delivered.
func (r FileResult) Succeeded() bool {
	for _, d := range r.Results {
		if d.Err != nil {
			return false
		}
	}
	return true
}

// ContentCache is the slice of the staging cache the engine needs.
type ContentCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Engine fans one validated file out to all of its source's enabled
// destinations. Destinations are independent: one failing, even through
// all retries, never blocks another. The staged record keys are deleted
// only after every destination has been attempted.
type Engine struct {
	sources    source.Repository
	cache      ContentCache
	converters *convert.Registry
	handlers   *HandlerRegistry
	cfg        config.OutputConfig
	logger     logger.Logger
}

func NewEngine(sources source.Repository, cache ContentCache, converters *convert.Registry, handlers *HandlerRegistry, cfg config.OutputConfig, log logger.Logger) *Engine {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = constants.DefaultOutputRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = constants.DefaultOutputRetryDelay
	}
	return &Engine{
		sources:    sources,
		cache:      cache,
		converters: converters,
		handlers:   handlers,
		cfg:        cfg,
		logger:     log,
	}
}

// HandleValidationCompleted is the broker handler for completion events.
func (e *Engine) HandleValidationCompleted(ctx context.Context, msg *models.Envelope) error {
	ctx, span := tracing.GetTracer(serviceName).Start(ctx, "output.fanout")
	defer span.End()

	var event models.ValidationCompleted
	if err := msg.Decode(&event); err != nil {
		return err
	}

	if !shouldFanOut(event) {
		e.logger.InfowCtx(ctx, "No deliverable records, skipping output",
			"source_id", event.SourceID,
			"file_name", event.FileName,
			"status", event.Status,
			"valid_count", event.ValidCount,
		)
		e.cleanup(ctx, event)
		return nil
	}

	src, err := e.sources.Get(ctx, event.SourceID)
	if err != nil {
		return err
	}

	destinations := enabledDestinations(src)
	if len(destinations) == 0 {
		e.logger.InfowCtx(ctx, "Source has no enabled destinations",
			"source_id", event.SourceID,
			"file_name", event.FileName,
		)
		e.cleanup(ctx, event)
		return nil
	}

	validRecords, ok := e.fetchRecords(ctx, event.ValidRecordKey, "output")
	if !ok {
		// Content expired before delivery; nothing to send, nothing to retry.
		return nil
	}

	var invalidRecords []convert.Record
	if event.InvalidRecordKey != "" && anyWantsInvalid(destinations) {
		// Invalid records are best-effort; an expired key downgrades those
		// destinations to valid-only rather than abandoning the file.
		invalidRecords, _ = e.fetchRecords(ctx, event.InvalidRecordKey, "output_invalid")
	}

	result := FileResult{FileName: event.FileName}
	for _, dest := range destinations {
		dr := e.deliver(ctx, src, dest, event, validRecords, invalidRecords)
		result.Results = append(result.Results, dr)
	}

	e.cleanup(ctx, event)

	if result.Succeeded() {
		e.logger.InfowCtx(ctx, "File delivered to all destinations",
			"source_id", event.SourceID,
			"file_name", event.FileName,
			"destinations", len(result.Results),
		)
	} else {
		for _, dr := range result.Results {
			if dr.Err != nil {
				e.logger.ErrorwCtx(ctx, "Destination delivery failed after retries",
					"source_id", event.SourceID,
					"file_name", event.FileName,
					"destination", dr.Destination,
					"attempts", dr.Attempts,
					"error", dr.Err,
				)
			}
		}
	}
	return nil
}

// deliver runs one destination's attempt chain: resolve format,
// reconstruct content, then write with linear backoff.
func (e *Engine) deliver(ctx context.Context, src *source.DataSource, dest source.OutputDestination, event models.ValidationCompleted, valid, invalid []convert.Record) DestinationResult {
	result := DestinationResult{Destination: dest.Name, Type: dest.Type}

	handler, err := e.handlers.For(dest.Type)
	if err != nil {
		result.Err = err
		metrics.OutputWritesTotal.WithLabelValues(dest.Type, "failure").Inc()
		return result
	}

	records := valid
	if dest.IncludeInvalidRecords && len(invalid) > 0 {
		records = make([]convert.Record, 0, len(valid)+len(invalid))
		records = append(records, valid...)
		records = append(records, invalid...)
	}

	format := dest.EffectiveFormat(src.DefaultFormat)
	if format == constants.FormatOriginal {
		format = event.OriginalFormat
	}

	content, err := e.converters.FromJSON(records, format, event.FormatMetadata)
	if err != nil {
		result.Err = fmt.Errorf("failed to reconstruct %s as %s: %w", event.FileName, format, err)
		metrics.OutputWritesTotal.WithLabelValues(dest.Type, "failure").Inc()
		return result
	}

	req := WriteRequest{
		Destination: dest,
		Content:     content,
		FileName:    fileNameWithFormat(event.FileName, format),
		SourceID:    src.ID,
		SourceName:  src.Name,
		Format:      format,
	}

	start := time.Now()
	err = retry.Linear(ctx, e.cfg.RetryAttempts, e.cfg.RetryDelay, func() error {
		result.Attempts++
		writeCtx := ctx
		if e.cfg.WriteTimeout > 0 {
			var cancel context.CancelFunc
			writeCtx, cancel = context.WithTimeout(ctx, e.cfg.WriteTimeout)
			defer cancel()
		}
		return handler.Write(writeCtx, req)
	}, func(attempt int, err error, nextDelay time.Duration) {
		e.logger.WarnwCtx(ctx, "Output write failed, retrying",
			"destination", dest.Name,
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	})
	metrics.ObserveOutputWriteDuration(dest.Type, time.Since(start))

	if err != nil {
		result.Err = err
		metrics.OutputWritesTotal.WithLabelValues(dest.Type, "failure").Inc()
	} else {
		metrics.OutputWritesTotal.WithLabelValues(dest.Type, "success").Inc()
	}
	return result
}

func (e *Engine) fetchRecords(ctx context.Context, key, missStage string) ([]convert.Record, bool) {
	data, err := e.cache.Get(ctx, key)
	if errors.Is(err, contentcache.ErrNotFound) {
		metrics.ContentCacheMissesTotal.WithLabelValues(missStage).Inc()
		e.logger.WarnwCtx(ctx, "Record key expired before output",
			"record_key", key,
			"stage", missStage,
		)
		return nil, false
	}
	if err != nil {
		e.logger.ErrorwCtx(ctx, "Failed to fetch staged records",
			"record_key", key,
			"error", err,
		)
		return nil, false
	}

	var records []convert.Record
	if err := json.Unmarshal(data, &records); err != nil {
		e.logger.ErrorwCtx(ctx, "Staged records are not canonical JSON",
			"record_key", key,
			"error", err,
		)
		return nil, false
	}
	return records, true
}

func (e *Engine) cleanup(ctx context.Context, event models.ValidationCompleted) {
	for _, key := range []string{event.ValidRecordKey, event.InvalidRecordKey} {
		if key == "" {
			continue
		}
		if err := e.cache.Delete(ctx, key); err != nil {
			e.logger.WarnwCtx(ctx, "Failed to delete staged record key",
				"record_key", key,
				"error", err,
			)
		}
	}
}

// shouldFanOut applies the hard-failure skip: only files with deliverable
// valid records reach destinations.
func shouldFanOut(event models.ValidationCompleted) bool {
	switch event.Status {
	case constants.StatusSuccess, constants.StatusCompleted, constants.StatusPartialFailure:
		return event.ValidCount > 0
	default:
		return false
	}
}

func enabledDestinations(src *source.DataSource) []source.OutputDestination {
	if src.Output == nil {
		return nil
	}
	var out []source.OutputDestination
	for _, d := range src.Output.Destinations {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

func anyWantsInvalid(destinations []source.OutputDestination) bool {
	for _, d := range destinations {
		if d.IncludeInvalidRecords {
			return true
		}
	}
	return false
}

func fileNameWithFormat(fileName, format string) string {
	ext := "." + strings.ToLower(format)
	if strings.EqualFold(filepath.Ext(fileName), ext) {
		return fileName
	}
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	return base + ext
}
