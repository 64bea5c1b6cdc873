// Package mcp exposes bookmark search over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	merrors "github.com/Aman-CERP/markrag/internal/errors"
)

// MCP error codes.
const (
	// ErrCodeIndexFailed indicates an indexing pass failed.
	ErrCodeIndexFailed = -32001

	// ErrCodeUnavailable indicates storage or the network is unavailable.
	ErrCodeUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors. The suggestion of a
// MarkError is appended to its message.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var me *merrors.MarkError
	if errors.As(err, &me) {
		return mapMarkError(me)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

func mapMarkError(me *merrors.MarkError) *MCPError {
	message := me.Message
	if me.Suggestion != "" {
		message = fmt.Sprintf("%s %s", me.Message, me.Suggestion)
	}

	switch me.Category {
	case merrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case merrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case merrors.CategoryIO:
		return &MCPError{Code: ErrCodeUnavailable, Message: message}
	}
	if me.Code == merrors.ErrCodeIndexFailed {
		return &MCPError{Code: ErrCodeIndexFailed, Message: message}
	}
	return &MCPError{Code: ErrCodeInternalError, Message: message}
}
