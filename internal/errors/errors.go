package errors

import (
	"errors"
	"fmt"
)

// MarkError is the structured error type for markrag.
// It provides rich context for error handling, logging, and user presentation.
type MarkError struct {
	// Code is the unique error code (e.g., "ERR_201_STORAGE_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *MarkError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *MarkError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a MarkError with the same code.
func (e *MarkError) Is(target error) bool {
	if t, ok := target.(*MarkError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *MarkError) WithDetail(key, value string) *MarkError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *MarkError) WithSuggestion(suggestion string) *MarkError {
	e.Suggestion = suggestion
	return e
}

// New creates a new MarkError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *MarkError {
	return &MarkError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a MarkError from an existing error.
// The error's message becomes the MarkError message.
func Wrap(code string, err error) *MarkError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *MarkError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a storage-unavailable error. Storage errors abort
// the current indexing pass.
func StorageError(message string, cause error) *MarkError {
	return New(ErrCodeStorageUnavailable, message, cause)
}

// EmbeddingError creates an embedding failure error.
func EmbeddingError(message string, cause error) *MarkError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *MarkError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// FetchError creates a page fetch error.
func FetchError(message string, cause error) *MarkError {
	return New(ErrCodeFetchFailed, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *MarkError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *MarkError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var me *MarkError
	if errors.As(err, &me) {
		return me.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var me *MarkError
	if errors.As(err, &me) {
		return me.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a MarkError.
// Returns empty string if err is not a MarkError.
func GetCode(err error) string {
	var me *MarkError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// GetCategory extracts the category from a MarkError.
func GetCategory(err error) Category {
	var me *MarkError
	if errors.As(err, &me) {
		return me.Category
	}
	return ""
}
