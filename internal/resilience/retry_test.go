package resilience

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(fmt.Errorf("connection reset by peer"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return fmt.Errorf("constraint violation")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		return NewTransientError(fmt.Errorf("database is locked"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NoRetryPolicy(t *testing.T) {
	calls := 0
	err := Do(context.Background(), NoRetry, func(context.Context) error {
		calls++
		return NewTransientError(fmt.Errorf("i/o timeout"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastRetry(5), func(context.Context) error {
		calls++
		cancel()
		return NewTransientError(fmt.Errorf("i/o timeout"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsTransient_PatternMatch(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("write: broken pipe")))
	assert.True(t, IsTransient(fmt.Errorf("database is locked")))
	assert.True(t, IsTransient(fmt.Errorf("ERROR: deadlock detected")))
	assert.False(t, IsTransient(fmt.Errorf("duplicate key value")))
	assert.False(t, IsTransient(nil))
}

func TestComputeBackoff_Caps(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     2 * time.Second,
		Multiplier:     10,
	})
	d := computeBackoff(5, cfg)
	assert.LessOrEqual(t, d, time.Duration(float64(2*time.Second)*1.25)+time.Millisecond)
}
