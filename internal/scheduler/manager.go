package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"filepipe/internal/broker"
	"filepipe/internal/constants"
	"filepipe/internal/lock"
	"filepipe/internal/logger"
	"filepipe/internal/source"
	"filepipe/pkg/logging"
	"filepipe/pkg/metrics"
	"filepipe/pkg/models"
)

const serviceName = "scheduler-service"

// Manager owns one cron trigger per active data source. Trigger firing is
// lock-first: the poll request is only published once this instance holds
// the source's processing lock, and a failed publish rolls the lock back.
type Manager struct {
	cron       *cron.Cron
	parser     cron.Parser
	sources    source.Repository
	locks      *lock.Manager
	producer   broker.Producer
	logger     logger.Logger
	instanceID string

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewManager(sources source.Repository, locks *lock.Manager, producer broker.Producer, log logger.Logger, instanceID string) *Manager {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Manager{
		cron:       cron.New(cron.WithParser(parser)),
		parser:     parser,
		sources:    sources,
		locks:      locks,
		producer:   producer,
		logger:     log,
		instanceID: instanceID,
		entries:    make(map[string]cron.EntryID),
	}
}

func (m *Manager) InstanceID() string {
	return m.instanceID
}

func (m *Manager) Start() {
	m.cron.Start()
}

// Stop halts trigger firing and waits for in-flight jobs.
func (m *Manager) Stop(ctx context.Context) error {
	stopCtx := m.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload rebuilds the trigger set from the repository. Existing triggers
// for sources no longer active are dropped; the rest are re-registered so
// schedule edits take effect.
func (m *Manager) Reload(ctx context.Context) error {
	sources, err := m.sources.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active sources: %w", err)
	}

	active := make(map[string]bool, len(sources))
	registered := 0
	for i := range sources {
		src := sources[i]
		active[src.ID] = true
		if err := m.Register(ctx, &src); err != nil {
			m.logger.ErrorwCtx(ctx, "Failed to register trigger",
				"source_id", src.ID,
				"error", err,
			)
			continue
		}
		registered++
	}

	m.mu.Lock()
	for id := range m.entries {
		if !active[id] {
			m.cron.Remove(m.entries[id])
			delete(m.entries, id)
		}
	}
	count := len(m.entries)
	m.mu.Unlock()

	metrics.ActiveTriggers.Set(float64(count))
	m.logger.InfowCtx(ctx, "Scheduler reloaded",
		"active_sources", len(sources),
		"registered", registered,
	)
	return nil
}

// Register installs or replaces the trigger for one source. The schedule
// is validated before the old trigger is touched, so a bad edit leaves the
// previous trigger running.
func (m *Manager) Register(ctx context.Context, src *source.DataSource) error {
	expr, err := src.CronExpression()
	if err != nil {
		return err
	}
	// Quartz-style expressions are accepted and normalized.
	if strings.Contains(expr, "?") {
		if expr, err = FromQuartz(expr); err != nil {
			return err
		}
	}
	if _, err := m.parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q for source %s: %w", expr, src.ID, err)
	}

	sourceID := src.ID
	sourceName := src.Name
	sourcePath := src.Path
	entryID, err := m.cron.AddFunc(expr, func() {
		m.fire(sourceID, sourceName, sourcePath)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron trigger for source %s: %w", src.ID, err)
	}

	m.mu.Lock()
	if old, ok := m.entries[src.ID]; ok {
		m.cron.Remove(old)
	}
	m.entries[src.ID] = entryID
	count := len(m.entries)
	m.mu.Unlock()

	metrics.ActiveTriggers.Set(float64(count))
	m.logger.InfowCtx(ctx, "Trigger registered",
		"source_id", src.ID,
		"cron", expr,
	)
	return nil
}

// Unregister removes the trigger for one source, if present.
func (m *Manager) Unregister(ctx context.Context, sourceID string) {
	m.mu.Lock()
	if entryID, ok := m.entries[sourceID]; ok {
		m.cron.Remove(entryID)
		delete(m.entries, sourceID)
	}
	count := len(m.entries)
	m.mu.Unlock()

	metrics.ActiveTriggers.Set(float64(count))
	m.logger.InfowCtx(ctx, "Trigger unregistered",
		"source_id", sourceID,
	)
}

// fire runs one trigger: mint a correlation id, take the lock, publish the
// poll request, stamp last-polled. A held lock means another instance (or a
// still-running cycle) owns this source; the firing is skipped, not queued.
func (m *Manager) fire(sourceID, sourceName, sourcePath string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	correlationID := uuid.NewString()
	ctx = logging.WithCorrelationID(ctx, correlationID)
	ctx = logging.WithServiceName(ctx, serviceName)

	acquired, err := m.locks.TryAcquire(ctx, sourceID, correlationID, m.instanceID)
	if err != nil {
		metrics.PollTriggersTotal.WithLabelValues(sourceID, "error").Inc()
		m.logger.ErrorwCtx(ctx, "Lock acquisition failed",
			"source_id", sourceID,
			"error", err,
		)
		return
	}
	if !acquired {
		metrics.PollSkipsTotal.WithLabelValues(sourceID).Inc()
		m.logger.InfowCtx(ctx, "Poll skipped, lock held",
			"source_id", sourceID,
		)
		return
	}

	payload := models.PollRequest{
		SourceID:    sourceID,
		SourceName:  sourceName,
		FilePath:    sourcePath,
		TriggeredAt: time.Now().UTC(),
	}
	envelope, err := models.NewEnvelope(correlationID, serviceName, payload)
	if err == nil {
		err = m.producer.Publish(ctx, constants.TopicPollRequests, envelope)
	}
	if err != nil {
		metrics.PollTriggersTotal.WithLabelValues(sourceID, "publish_failure").Inc()
		m.logger.ErrorwCtx(ctx, "Failed to publish poll request",
			"source_id", sourceID,
			"error", err,
		)
		if relErr := m.locks.Release(ctx, sourceID, "publish_failure"); relErr != nil {
			m.logger.ErrorwCtx(ctx, "Failed to roll back lock after publish failure",
				"source_id", sourceID,
				"error", relErr,
			)
		}
		return
	}

	if err := m.sources.UpdateLastPolled(ctx, sourceID, payload.TriggeredAt); err != nil {
		m.logger.WarnwCtx(ctx, "Failed to update last polled timestamp",
			"source_id", sourceID,
			"error", err,
		)
	}

	metrics.PollTriggersTotal.WithLabelValues(sourceID, "published").Inc()
	m.logger.InfowCtx(ctx, "Poll request published",
		"source_id", sourceID,
	)
}
