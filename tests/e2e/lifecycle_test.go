package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schedulerBaseURL = "http://localhost:8080"

func TestSchedulerHealth(t *testing.T) {
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(schedulerBaseURL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
}

func TestSchedulerMetrics(t *testing.T) {
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(schedulerBaseURL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "scheduler_active_triggers")
}

func TestSchedulerLifecycleShutdown(t *testing.T) {
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Post(schedulerBaseURL+"/api/lifecycle/shutdown", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		InstanceID    string `json:"instanceId"`
		LocksReleased int    `json:"locksReleased"`
		Timestamp     string `json:"timestamp"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))

	assert.NotEmpty(t, result.InstanceID)
	assert.GreaterOrEqual(t, result.LocksReleased, 0)

	_, err = time.Parse(time.RFC3339, result.Timestamp)
	assert.NoError(t, err)
}
