package source

import (
	"fmt"
	"time"

	"filepipe/internal/constants"
)

// DataSource is the durable definition of one polled location. The lock
// fields live on the document itself so acquisition is a single atomic
// update against the one record that needs protecting.
type DataSource struct {
	ID          string `bson:"_id" json:"id"`
	Name        string `bson:"name" json:"name"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	Active      bool   `bson:"active" json:"active"`

	// Location holds adapter-specific settings; for the filesystem
	// adapter, Path is the directory to scan.
	AdapterType string `bson:"adapter_type" json:"adapterType"`
	Path        string `bson:"path" json:"path"`
	FilePattern string `bson:"file_pattern,omitempty" json:"filePattern,omitempty"`

	// Either a cron expression or a plain interval drives the schedule;
	// CronSchedule wins when both are set.
	CronSchedule    string        `bson:"cron_schedule,omitempty" json:"cronSchedule,omitempty"`
	PollingInterval time.Duration `bson:"polling_interval,omitempty" json:"pollingInterval,omitempty"`

	DefaultFormat string                 `bson:"default_format,omitempty" json:"defaultFormat,omitempty"`
	Schema        map[string]interface{} `bson:"schema,omitempty" json:"schema,omitempty"`

	Output *OutputConfig `bson:"output,omitempty" json:"output,omitempty"`

	// Processing lock state.
	IsProcessing         bool      `bson:"is_processing" json:"isProcessing"`
	ProcessingStartedAt  time.Time `bson:"processing_started_at,omitempty" json:"processingStartedAt,omitempty"`
	ProcessingInstanceID string    `bson:"processing_instance_id,omitempty" json:"processingInstanceId,omitempty"`
	CorrelationID        string    `bson:"correlation_id,omitempty" json:"correlationId,omitempty"`

	LastPolledAt time.Time `bson:"last_polled_at,omitempty" json:"lastPolledAt,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updatedAt"`
}

// OutputConfig describes where validated records go after a file clears
// validation.
type OutputConfig struct {
	Destinations []OutputDestination `bson:"destinations" json:"destinations"`
}

// OutputDestination is one delivery target. Format, when set, overrides the
// source's default format for this destination only.
type OutputDestination struct {
	Name    string `bson:"name" json:"name"`
	Type    string `bson:"type" json:"type"`
	Enabled bool   `bson:"enabled" json:"enabled"`

	Format                string `bson:"format,omitempty" json:"format,omitempty"`
	IncludeInvalidRecords bool   `bson:"include_invalid_records,omitempty" json:"includeInvalidRecords,omitempty"`

	// Kafka destination settings.
	Topic   string   `bson:"topic,omitempty" json:"topic,omitempty"`
	Brokers []string `bson:"brokers,omitempty" json:"brokers,omitempty"`

	// Folder destination settings. PathTemplate and FileNameTemplate accept
	// {sourceId}, {sourceName}, {yyyy}, {MM}, {dd}, {fileName}, {timestamp}
	// placeholders.
	PathTemplate     string `bson:"path_template,omitempty" json:"pathTemplate,omitempty"`
	FileNameTemplate string `bson:"file_name_template,omitempty" json:"fileNameTemplate,omitempty"`
	OverwriteMode    string `bson:"overwrite_mode,omitempty" json:"overwriteMode,omitempty"`
}

// EffectiveFormat resolves the format for this destination: destination
// override first, then the source default, then JSON.
func (d OutputDestination) EffectiveFormat(sourceDefault string) string {
	if d.Format != "" && d.Format != constants.FormatOriginal {
		return d.Format
	}
	if d.Format == constants.FormatOriginal {
		return constants.FormatOriginal
	}
	if sourceDefault != "" {
		return sourceDefault
	}
	return constants.FormatJSON
}

// CronExpression derives the effective schedule: an explicit cron wins,
// otherwise the polling interval is converted to a cron expression.
// Intervals outside [MinPollingInterval, MaxPollingInterval] are rejected.
func (s *DataSource) CronExpression() (string, error) {
	if s.CronSchedule != "" {
		return s.CronSchedule, nil
	}
	if s.PollingInterval == 0 {
		return "", fmt.Errorf("source %s has neither cron schedule nor polling interval", s.ID)
	}
	if s.PollingInterval < constants.MinPollingInterval || s.PollingInterval > constants.MaxPollingInterval {
		return "", fmt.Errorf("polling interval %s outside allowed range [%s, %s]",
			s.PollingInterval, constants.MinPollingInterval, constants.MaxPollingInterval)
	}
	return intervalToCron(s.PollingInterval), nil
}

func intervalToCron(interval time.Duration) string {
	seconds := int(interval.Seconds())
	switch {
	case seconds < 60:
		return fmt.Sprintf("*/%d * * * * *", seconds)
	case seconds < 3600 && seconds%60 == 0:
		return fmt.Sprintf("0 */%d * * * *", seconds/60)
	case seconds%3600 == 0:
		return fmt.Sprintf("0 0 */%d * * *", seconds/3600)
	default:
		// Not evenly divisible; fall back to minute resolution.
		return fmt.Sprintf("0 */%d * * * *", (seconds+59)/60)
	}
}
