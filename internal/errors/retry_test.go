package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that fails twice then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	}

	// When: retrying
	err := Retry(context.Background(), fastRetry(3), fn)

	// Then: succeeds after 3 attempts
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	// Given: a function that always fails
	attempts := 0
	fn := func() error {
		attempts++
		return errors.New("persistent error")
	}

	// When: retrying with two retries
	err := Retry(context.Background(), fastRetry(2), fn)

	// Then: fails with wrapped error after initial + 2 attempts
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 3, attempts)
}

func TestRetry_StopsOnNonRetryableError(t *testing.T) {
	// Given: a config that only retries network errors
	cfg := fastRetry(5)
	cfg.ShouldRetry = IsRetryable

	attempts := 0
	permanent := EmbeddingError("model not found", nil)

	// When: the function fails with a permanent error
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return permanent
	})

	// Then: no retries are attempted
	assert.Equal(t, 1, attempts)
	assert.True(t, errors.Is(err, permanent))
}

func TestRetry_RespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Retry(ctx, fastRetry(3), func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastRetry(3), func() ([]float32, error) {
		attempts++
		if attempts == 1 {
			return nil, NetworkError("timeout", nil)
		}
		return []float32{1, 2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, got)
	assert.Equal(t, 2, attempts)
}
