package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"filepipe/internal/config"
	"filepipe/internal/constants"
	"filepipe/internal/logger"
	"filepipe/pkg/metrics"
)

// Service is the content-addressed file dedup cache. Markers are keyed per
// source so the same file appearing under two sources is processed twice,
// once for each. The cache is advisory: on Redis failure the default is to
// let the file through, trading a possible duplicate for no data loss.
type Service struct {
	repo     Repository
	cfg      config.DedupConfig
	logger   logger.Logger
	cancelBg context.CancelFunc
}

func NewService(repo Repository, cfg config.DedupConfig, log logger.Logger) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = constants.DefaultDedupTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		repo:     repo,
		cfg:      cfg,
		logger:   log,
		cancelBg: cancel,
	}

	go s.updateCacheSizeMetrics(ctx)
	return s
}

func markerKey(sourceID, hash string) string {
	return constants.CacheKeyPrefixFileHash + sourceID + ":" + hash
}

// FileHashEntry is the marker value: enough metadata to tell which file a
// hash belongs to when inspecting the cache, never the content itself.
type FileHashEntry struct {
	FileName      string    `json:"fileName"`
	FilePath      string    `json:"filePath"`
	SizeBytes     int64     `json:"sizeBytes"`
	ProcessedAt   time.Time `json:"processedAt"`
	CorrelationID string    `json:"correlationId"`
}

// IsProcessed reports whether the file hash already has a marker. A cache
// error fails open (or closed, per config) rather than surfacing to the
// discovery cycle.
func (s *Service) IsProcessed(ctx context.Context, sourceID, hash string) (bool, error) {
	exists, err := s.repo.Exists(ctx, markerKey(sourceID, hash))
	if err != nil {
		metrics.DedupCacheErrorsTotal.WithLabelValues("exists").Inc()
		if s.cfg.OnCacheErr == "deny" {
			return false, fmt.Errorf("dedup check failed for source %s: %w", sourceID, err)
		}
		s.logger.WarnwCtx(ctx, "Dedup check failed, treating file as new",
			"source_id", sourceID,
			"error", err,
		)
		return false, nil
	}
	if exists {
		metrics.DedupHitsTotal.WithLabelValues(sourceID).Inc()
	}
	return exists, nil
}

// MarkProcessed writes the marker. Failure is logged, never propagated: a
// lost marker means at worst one reprocessed file next cycle.
func (s *Service) MarkProcessed(ctx context.Context, sourceID, hash string, entry FileHashEntry) {
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Now().UTC()
	}
	value, err := json.Marshal(entry)
	if err == nil {
		_, err = s.repo.SetNX(ctx, markerKey(sourceID, hash), value, s.cfg.TTL)
	}
	if err != nil {
		metrics.DedupCacheErrorsTotal.WithLabelValues("set").Inc()
		s.logger.WarnwCtx(ctx, "Failed to write dedup marker",
			"source_id", sourceID,
			"error", err,
		)
	}
}

// Forget removes one marker so the file is picked up again next cycle.
func (s *Service) Forget(ctx context.Context, sourceID, hash string) error {
	return s.repo.Delete(ctx, markerKey(sourceID, hash))
}

// Count returns the number of markers for one source.
func (s *Service) Count(ctx context.Context, sourceID string) (int64, error) {
	return s.repo.CountPrefix(ctx, constants.CacheKeyPrefixFileHash+sourceID+":")
}

func (s *Service) updateCacheSizeMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			size, err := s.repo.CountPrefix(ctx, constants.CacheKeyPrefixFileHash)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Debugw("Failed to get dedup cache size for metrics",
					"error", err,
				)
				continue
			}
			metrics.SetDedupCacheSize(size)
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the background cache size updater.
func (s *Service) Close() {
	if s.cancelBg != nil {
		s.cancelBg()
	}
}
