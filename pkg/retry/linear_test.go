package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinear_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Linear(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestLinear_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	var delays []time.Duration
	err := Linear(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(attempt int, err error, nextDelay time.Duration) {
		delays = append(delays, nextDelay)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
}

func TestLinear_ExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("still broken")
	err := Linear(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return wantErr
	}, nil)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls)
}

func TestLinear_FatalStopsImmediately(t *testing.T) {
	calls := 0
	err := Linear(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return NewFatalError(errors.New("bad request"))
	}, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestLinear_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Linear(ctx, 3, time.Second, func() error {
		return errors.New("transient")
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
