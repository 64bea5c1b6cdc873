// Package errors provides structured error handling for markrag.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage and IO errors
//   - 3XX: Network errors (fetch, LLM, daemon socket)
//   - 4XX: Validation errors
//   - 5XX: Internal errors (embedding, indexing)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates storage and file I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage / IO errors (200-299)
	ErrCodeStorageUnavailable  = "ERR_201_STORAGE_UNAVAILABLE"
	ErrCodeBookmarksUnreadable = "ERR_202_BOOKMARKS_UNREADABLE"
	ErrCodeInstanceLocked      = "ERR_203_INSTANCE_LOCKED"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeFetchFailed        = "ERR_303_FETCH_FAILED"
	ErrCodeUnsupportedContent = "ERR_304_UNSUPPORTED_CONTENT"
	ErrCodeLLMFailed          = "ERR_305_LLM_FAILED"
	ErrCodeDaemonNotRunning   = "ERR_306_DAEMON_NOT_RUNNING"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_403_QUERY_EMPTY"
	ErrCodeInvalidRequest    = "ERR_404_INVALID_REQUEST"

	// Internal errors (500-599)
	ErrCodeInternal            = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed     = "ERR_502_EMBEDDING_FAILED"
	ErrCodeEmbedderUnavailable = "ERR_503_EMBEDDER_UNAVAILABLE"
	ErrCodeIndexFailed         = "ERR_504_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "101" from "ERR_101_CONFIG_NOT_FOUND"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeStorageUnavailable, ErrCodeInstanceLocked:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable:
		return true
	default:
		return false
	}
}
