package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	TopicPollRequests        = "poll_requests"
	TopicFilesDiscovered     = "files_discovered"
	TopicValidationRequests  = "validation_requests"
	TopicValidationCompleted = "validation_completed"
	TopicPollCompleted       = "poll_completed"
	TopicSourceEvents        = "source_events"
)

const (
	CacheKeyPrefixFileHash     = "filehash:"
	CacheKeyPrefixContent      = "content:"
	CacheKeyPrefixValidRecords = "validrecords:"
	CacheKeyPrefixInvalid      = "invalidrecords:"
)

const (
	DefaultMongoDBName = "filepipe"
	CollectionSources  = "data_sources"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// DefaultLockGracePeriod bounds stale-lock takeover. Must exceed the
	// longest expected poll cycle end to end.
	DefaultLockGracePeriod = 15 * time.Minute

	DefaultDedupTTL   = 24 * time.Hour
	DefaultContentTTL = time.Hour
)

const (
	DefaultOutputRetryAttempts = 3
	DefaultOutputRetryDelay    = time.Second
	DefaultMaxInFlight         = 10
)

const (
	MinPollingInterval = time.Second
	MaxPollingInterval = 24 * time.Hour
)

const (
	StatusSuccess        = "success"
	StatusCompleted      = "completed"
	StatusPartialFailure = "partial-failure"
	StatusFailed         = "failed"
)

const (
	DestinationTypeKafka  = "kafka"
	DestinationTypeFolder = "folder"
)

const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatXML      = "xml"
	FormatOriginal = "original"
)
