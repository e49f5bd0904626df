package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	payload := PollRequest{SourceID: "src-1", SourceName: "orders"}

	envelope, err := NewEnvelope("corr-1", "scheduler-service", payload)
	require.NoError(t, err)

	assert.Equal(t, "corr-1", envelope.CorrelationID)
	assert.Equal(t, "scheduler-service", envelope.PublishedBy)
	assert.Equal(t, MessageVersion, envelope.MessageVersion)
	assert.False(t, envelope.Timestamp.IsZero())

	var decoded PollRequest
	require.NoError(t, envelope.Decode(&decoded))
	assert.Equal(t, payload.SourceID, decoded.SourceID)
	assert.Equal(t, payload.SourceName, decoded.SourceName)
}

func TestNewEnvelope_MintsCorrelationID(t *testing.T) {
	e1, err := NewEnvelope("", "scheduler-service", PollRequest{SourceID: "src-1"})
	require.NoError(t, err)
	e2, err := NewEnvelope("", "scheduler-service", PollRequest{SourceID: "src-1"})
	require.NoError(t, err)

	assert.NotEmpty(t, e1.CorrelationID)
	assert.NotEqual(t, e1.CorrelationID, e2.CorrelationID)
}

func TestNewEnvelope_UnmarshalablePayload(t *testing.T) {
	_, err := NewEnvelope("corr-1", "scheduler-service", func() {})
	assert.Error(t, err)
}

func TestEnvelopeDecode_WrongShape(t *testing.T) {
	envelope, err := NewEnvelope("corr-1", "scheduler-service", PollRequest{SourceID: "src-1"})
	require.NoError(t, err)

	var wrong []string
	assert.Error(t, envelope.Decode(&wrong))
}
