package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageVersion is carried on every envelope so consumers can reject
// payloads they do not understand.
const MessageVersion = "1.0"

// Envelope wraps every payload that crosses a stage boundary. CorrelationID
// is minted once per poll cycle and propagated unchanged through every
// downstream message.
type Envelope struct {
	CorrelationID  string          `json:"correlationId"`
	PublishedBy    string          `json:"publishedBy"`
	Timestamp      time.Time       `json:"timestamp"`
	MessageVersion string          `json:"messageVersion"`
	Payload        json.RawMessage `json:"payload"`
}

// NewEnvelope stamps the standard fields and serializes the payload.
func NewEnvelope(correlationID, publishedBy string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return &Envelope{
		CorrelationID:  correlationID,
		PublishedBy:    publishedBy,
		Timestamp:      time.Now().UTC(),
		MessageVersion: MessageVersion,
		Payload:        raw,
	}, nil
}

// Decode unmarshals the payload into v.
func (e *Envelope) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// PollRequest tells the discovery stage to scan one source.
type PollRequest struct {
	SourceID    string    `json:"sourceId"`
	SourceName  string    `json:"sourceName"`
	FilePath    string    `json:"filePath"`
	TriggeredAt time.Time `json:"triggeredAt"`
}

// FileDiscovered announces one new (not previously processed) file.
type FileDiscovered struct {
	SourceID       string    `json:"sourceId"`
	BatchID        string    `json:"batchId"`
	SequenceNumber int       `json:"sequenceNumber"`
	BatchSize      int       `json:"batchSize"`
	FilePath       string    `json:"filePath"`
	FileName       string    `json:"fileName"`
	SizeBytes      int64     `json:"sizeBytes"`
	LastModified   time.Time `json:"lastModified"`
	FileHash       string    `json:"fileHash"`
}

// ValidationRequest hands converted content to the validation stage by
// cache key; the payload itself never carries file content.
type ValidationRequest struct {
	SourceID       string            `json:"sourceId"`
	BatchID        string            `json:"batchId"`
	FileName       string            `json:"fileName"`
	ContentKey     string            `json:"contentKey"`
	OriginalFormat string            `json:"originalFormat"`
	FormatMetadata map[string]string `json:"formatMetadata,omitempty"`
	RecordCount    int               `json:"recordCount"`
}

// ValidationCompleted reports the outcome of validating one file.
type ValidationCompleted struct {
	SourceID         string            `json:"sourceId"`
	BatchID          string            `json:"batchId"`
	FileName         string            `json:"fileName"`
	Status           string            `json:"status"`
	ValidRecordKey   string            `json:"validRecordKey,omitempty"`
	InvalidRecordKey string            `json:"invalidRecordKey,omitempty"`
	ValidCount       int               `json:"validCount"`
	InvalidCount     int               `json:"invalidCount"`
	OriginalFormat   string            `json:"originalFormat"`
	FormatMetadata   map[string]string `json:"formatMetadata,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// PollCompleted summarizes one discovery cycle, success or not.
type PollCompleted struct {
	SourceID        string    `json:"sourceId"`
	FilesDiscovered int       `json:"filesDiscovered"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	CompletedAt     time.Time `json:"completedAt"`
}

// SourceChanged notifies the scheduler that a source definition changed.
// ChangeType is one of "created", "updated", "deleted".
type SourceChanged struct {
	SourceID   string `json:"sourceId"`
	ChangeType string `json:"changeType"`
}

const (
	SourceCreated = "created"
	SourceUpdated = "updated"
	SourceDeleted = "deleted"
)
