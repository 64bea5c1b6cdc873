package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("disk I/O error")

	// When: wrapping it as a storage error
	err := StorageError("upsert batch", originalErr)

	// Then: the chain still reaches the original error
	require.NotNil(t, err)
	assert.Equal(t, originalErr, errors.Unwrap(err))
	assert.True(t, errors.Is(err, originalErr))
}

func TestMarkError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{"config error", ErrCodeConfigInvalid, "bad weight", "[ERR_102_CONFIG_INVALID] bad weight"},
		{"storage error", ErrCodeStorageUnavailable, "db closed", "[ERR_201_STORAGE_UNAVAILABLE] db closed"},
		{"fetch error", ErrCodeFetchFailed, "status 404", "[ERR_303_FETCH_FAILED] status 404"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, New(tt.code, tt.message, nil).Error())
		})
	}
}

func TestMarkError_Is_MatchesByCode(t *testing.T) {
	// Given: two errors with the same code but different messages
	err1 := EmbeddingError("batch 1 failed", nil)
	err2 := EmbeddingError("batch 7 failed", nil)

	// Then: they match by code, not by message
	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, StorageError("x", nil)))
}

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeStorageUnavailable, CategoryIO, SeverityFatal, false},
		{ErrCodeNetworkTimeout, CategoryNetwork, SeverityWarning, true},
		{ErrCodeQueryEmpty, CategoryValidation, SeverityError, false},
		{ErrCodeEmbeddingFailed, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestHelpers_SeeThroughWrapping(t *testing.T) {
	// Given: a MarkError wrapped by fmt.Errorf
	inner := NetworkError("ollama timed out", nil)
	wrapped := fmt.Errorf("embed batch: %w", inner)

	// Then: helpers still find it
	assert.Equal(t, ErrCodeNetworkTimeout, GetCode(wrapped))
	assert.Equal(t, CategoryNetwork, GetCategory(wrapped))
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsFatal(wrapped))
	assert.True(t, IsFatal(fmt.Errorf("x: %w", StorageError("gone", nil))))
}

func TestHelpers_PlainErrors(t *testing.T) {
	plain := errors.New("plain")

	assert.Empty(t, GetCode(plain))
	assert.False(t, IsRetryable(plain))
	assert.False(t, IsFatal(nil))
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	err := ConfigError("vector_weight out of range", nil).
		WithDetail("value", "1.5").
		WithSuggestion("use a value between 0 and 1")

	assert.Equal(t, "1.5", err.Details["value"])

	out := FormatForCLI(err)
	assert.Contains(t, out, "Error: vector_weight out of range")
	assert.Contains(t, out, "Hint: use a value between 0 and 1")
	assert.Contains(t, out, "Code: ERR_102_CONFIG_INVALID")
}

func TestFormatForCLI_WrapsPlainError(t *testing.T) {
	out := FormatForCLI(errors.New("boom"))

	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, ErrCodeInternal)
	assert.Empty(t, FormatForCLI(nil))
}

func TestLogAttrs(t *testing.T) {
	// Given: a structured error with cause and detail
	err := StorageError("commit failed", errors.New("locked")).WithDetail("batch", "3")

	// When: converting to log attributes
	attrs := LogAttrs(err)

	// Then: code, cause and details are present
	keys := map[string]string{}
	for _, a := range attrs {
		keys[a.Key] = a.Value.String()
	}
	assert.Equal(t, ErrCodeStorageUnavailable, keys["error_code"])
	assert.Equal(t, "locked", keys["cause"])
	assert.Equal(t, "3", keys["detail_batch"])

	assert.Len(t, LogAttrs(errors.New("plain")), 1)
	assert.Nil(t, LogAttrs(nil))
}
