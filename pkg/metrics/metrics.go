package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PollTriggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_triggers_total",
			Help: "Total number of cron trigger firings (count)",
		},
		[]string{"source_id", "result"},
	)

	PollSkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_skips_total",
			Help: "Total number of trigger firings skipped because the source lock was held (count)",
		},
		[]string{"source_id"},
	)

	LocksReleasedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locks_released_total",
			Help: "Total number of processing lock releases (count)",
		},
		[]string{"reason"},
	)

	ActiveTriggers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_active_triggers",
			Help: "Number of cron triggers currently registered (count)",
		},
	)

	FilesDiscoveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "files_discovered_total",
			Help: "Total number of new files published for processing (count)",
		},
		[]string{"source_id"},
	)

	DedupHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_hits_total",
			Help: "Total number of files skipped as already processed (count)",
		},
		[]string{"source_id"},
	)

	DedupCacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_cache_errors_total",
			Help: "Total number of dedup cache lookups that failed and fell open (count)",
		},
		[]string{"operation"},
	)

	DedupCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_cache_size",
			Help: "Approximate number of file hash markers in the dedup cache (count)",
		},
	)

	DiscoveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "discovery_duration_ms",
			Help:    "Duration of one discovery cycle in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"result"},
	)

	ConversionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "format_conversions_total",
			Help: "Total number of format conversions (count)",
		},
		[]string{"format", "direction", "status"},
	)

	ConversionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "format_conversion_duration_ms",
			Help:    "Duration of format conversions in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"format", "direction"},
	)

	ValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validations_total",
			Help: "Total number of files validated (count)",
		},
		[]string{"status"},
	)

	ValidationRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_records_total",
			Help: "Total number of records validated (count)",
		},
		[]string{"result"},
	)

	ContentCacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_cache_misses_total",
			Help: "Total number of cache-key fetches that found nothing, dropping the file (count)",
		},
		[]string{"stage"},
	)

	OutputWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "output_writes_total",
			Help: "Total number of per-destination output write outcomes (count)",
		},
		[]string{"destination_type", "status"},
	)

	OutputWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "output_write_duration_ms",
			Help:    "Duration of per-destination output writes in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"destination_type"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)
)

func RegisterSchedulerMetrics() {
	prometheus.MustRegister(PollTriggersTotal)
	prometheus.MustRegister(PollSkipsTotal)
	prometheus.MustRegister(LocksReleasedTotal)
	prometheus.MustRegister(ActiveTriggers)
}

func RegisterDiscoveryMetrics() {
	prometheus.MustRegister(FilesDiscoveredTotal)
	prometheus.MustRegister(DedupHitsTotal)
	prometheus.MustRegister(DedupCacheErrorsTotal)
	prometheus.MustRegister(DedupCacheSize)
	prometheus.MustRegister(DiscoveryDuration)
	prometheus.MustRegister(LocksReleasedTotal)
}

func RegisterProcessorMetrics() {
	prometheus.MustRegister(ConversionsTotal)
	prometheus.MustRegister(ConversionDuration)
}

func RegisterValidationMetrics() {
	prometheus.MustRegister(ValidationsTotal)
	prometheus.MustRegister(ValidationRecordsTotal)
	prometheus.MustRegister(ContentCacheMissesTotal)
}

func RegisterOutputMetrics() {
	prometheus.MustRegister(OutputWritesTotal)
	prometheus.MustRegister(OutputWriteDuration)
	prometheus.MustRegister(ContentCacheMissesTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func ObserveDiscoveryDuration(duration time.Duration, result string) {
	DiscoveryDuration.WithLabelValues(result).Observe(float64(duration.Milliseconds()))
}

func ObserveConversionDuration(format, direction string, duration time.Duration) {
	ConversionDuration.WithLabelValues(format, direction).Observe(float64(duration.Milliseconds()))
}

func ObserveOutputWriteDuration(destinationType string, duration time.Duration) {
	OutputWriteDuration.WithLabelValues(destinationType).Observe(float64(duration.Milliseconds()))
}

func SetDedupCacheSize(size int64) {
	DedupCacheSize.Set(float64(size))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncValidationRecords(result string, n int) {
	ValidationRecordsTotal.WithLabelValues(result).Add(float64(n))
}
