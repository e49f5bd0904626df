package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"filepipe/internal/broker"
	"filepipe/internal/constants"
	"filepipe/internal/dedup"
	"filepipe/internal/lock"
	"filepipe/internal/logger"
	"filepipe/internal/source"
	"filepipe/pkg/metrics"
	"filepipe/pkg/models"
	"filepipe/pkg/tracing"
)

const serviceName = "discovery-service"

// Service runs one discovery cycle per poll request: list candidates,
// drop the already-processed ones, publish the rest, then release the
// source's lock and report the cycle outcome. Release and the completion
// event happen on every path, success or failure.
type Service struct {
	sources  source.Repository
	adapters *Registry
	dedup    *dedup.Service
	locks    *lock.Manager
	producer broker.Producer
	logger   logger.Logger
}

func NewService(sources source.Repository, adapters *Registry, dedupSvc *dedup.Service, locks *lock.Manager, producer broker.Producer, log logger.Logger) *Service {
	return &Service{
		sources:  sources,
		adapters: adapters,
		dedup:    dedupSvc,
		locks:    locks,
		producer: producer,
		logger:   log,
	}
}

// HandlePollRequest is the broker handler for poll requests.
func (s *Service) HandlePollRequest(ctx context.Context, msg *models.Envelope) error {
	ctx, span := tracing.GetTracer(serviceName).Start(ctx, "discovery.poll")
	defer span.End()

	var req models.PollRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}

	start := time.Now()
	discovered, err := s.runCycle(ctx, msg.CorrelationID, req)
	if err != nil {
		metrics.ObserveDiscoveryDuration(time.Since(start), "failure")
		s.finishCycle(ctx, msg.CorrelationID, req.SourceID, discovered, err)
		// The cycle outcome is already recorded; retrying the message would
		// re-run discovery against a released lock.
		return nil
	}

	metrics.ObserveDiscoveryDuration(time.Since(start), "success")
	s.finishCycle(ctx, msg.CorrelationID, req.SourceID, discovered, nil)
	return nil
}

func (s *Service) runCycle(ctx context.Context, correlationID string, req models.PollRequest) (int, error) {
	src, err := s.sources.Get(ctx, req.SourceID)
	if err != nil {
		return 0, err
	}

	adapter, ok := s.adapters.Get(src.AdapterType)
	if !ok {
		return 0, fmt.Errorf("no adapter registered for type %q", src.AdapterType)
	}

	files, err := adapter.ListFiles(ctx, src.Path, src.FilePattern)
	if err != nil {
		return 0, err
	}

	var fresh []FileInfo
	hashes := make([]string, 0, len(files))
	for _, f := range files {
		hash := dedup.FileHash(f.Path, f.SizeBytes, f.LastModified)
		processed, err := s.dedup.IsProcessed(ctx, src.ID, hash)
		if err != nil {
			return 0, err
		}
		if processed {
			continue
		}
		fresh = append(fresh, f)
		hashes = append(hashes, hash)
	}

	batchID := uuid.NewString()
	published := 0
	for i, f := range fresh {
		payload := models.FileDiscovered{
			SourceID:       src.ID,
			BatchID:        batchID,
			SequenceNumber: i + 1,
			BatchSize:      len(fresh),
			FilePath:       f.Path,
			FileName:       f.Name,
			SizeBytes:      f.SizeBytes,
			LastModified:   f.LastModified,
			FileHash:       hashes[i],
		}
		envelope, err := models.NewEnvelope(correlationID, serviceName, payload)
		if err != nil {
			return published, err
		}
		if err := s.producer.Publish(ctx, constants.TopicFilesDiscovered, envelope); err != nil {
			return published, fmt.Errorf("failed to publish discovered file %s: %w", f.Name, err)
		}
		s.dedup.MarkProcessed(ctx, src.ID, hashes[i], dedup.FileHashEntry{
			FileName:      f.Name,
			FilePath:      f.Path,
			SizeBytes:     f.SizeBytes,
			CorrelationID: correlationID,
		})
		published++
		metrics.FilesDiscoveredTotal.WithLabelValues(src.ID).Inc()
	}

	s.logger.InfowCtx(ctx, "Discovery cycle finished",
		"source_id", src.ID,
		"candidates", len(files),
		"published", published,
	)
	return published, nil
}

// finishCycle releases the lock and publishes the poll-completed summary.
// Both run on their own timeout so a canceled handler context cannot leave
// the lock held.
func (s *Service) finishCycle(ctx context.Context, correlationID, sourceID string, discovered int, cycleErr error) {
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	reason := "cycle_complete"
	if cycleErr != nil {
		reason = "cycle_failure"
		s.logger.ErrorwCtx(ctx, "Discovery cycle failed",
			"source_id", sourceID,
			"error", cycleErr,
		)
	}

	if err := s.locks.Release(finishCtx, sourceID, reason); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to release lock after cycle",
			"source_id", sourceID,
			"error", err,
		)
	}

	payload := models.PollCompleted{
		SourceID:        sourceID,
		FilesDiscovered: discovered,
		Success:         cycleErr == nil,
		CompletedAt:     time.Now().UTC(),
	}
	if cycleErr != nil {
		payload.Error = cycleErr.Error()
	}

	envelope, err := models.NewEnvelope(correlationID, serviceName, payload)
	if err == nil {
		err = s.producer.Publish(finishCtx, constants.TopicPollCompleted, envelope)
	}
	if err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to publish poll completed event",
			"source_id", sourceID,
			"error", err,
		)
	}
}
