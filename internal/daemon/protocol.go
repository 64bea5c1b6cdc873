package daemon

import (
	"encoding/json"
	"errors"

	merrors "github.com/Aman-CERP/markrag/internal/errors"
	"github.com/Aman-CERP/markrag/internal/service"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing     = "ping"
	MethodSearch   = "search"
	MethodAsk      = "ask"
	MethodReindex  = "reindex"
	MethodStatus   = "status"
	MethodAttach   = "attach"
	MethodShutdown = "shutdown"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Custom error codes. The MarkError code travels in Error.Data.
const (
	ErrCodeIndexFailed = -32001
	ErrCodeUnavailable = -32002
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData carries the MarkError behind a failure.
type ErrorData struct {
	Code       string `json:"code"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// AsMarkError rebuilds the server-side MarkError. Responses without a code
// become ERR_501_INTERNAL.
func (e *Error) AsMarkError() *merrors.MarkError {
	code := merrors.ErrCodeInternal
	if e.Data != nil && e.Data.Code != "" {
		code = e.Data.Code
	}
	me := merrors.New(code, e.Message, nil)
	if e.Data != nil && e.Data.Suggestion != "" {
		me = me.WithSuggestion(e.Data.Suggestion)
	}
	return me
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrCodeInternalError, "failed to encode result: "+err.Error())
	}
	return Response{JSONRPC: "2.0", Result: raw, ID: id}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}
}

// errorResponse maps a service error to a JSON-RPC error.
func errorResponse(id string, err error) Response {
	rpcCode := ErrCodeInternalError
	message := err.Error()
	data := &ErrorData{Code: merrors.ErrCodeInternal}

	var me *merrors.MarkError
	if errors.As(err, &me) {
		message = me.Message
		data.Code = me.Code
		data.Suggestion = me.Suggestion
		switch me.Category {
		case merrors.CategoryValidation:
			rpcCode = ErrCodeInvalidParams
		case merrors.CategoryNetwork, merrors.CategoryIO:
			rpcCode = ErrCodeUnavailable
		default:
			if me.Code == merrors.ErrCodeIndexFailed {
				rpcCode = ErrCodeIndexFailed
			}
		}
	}

	resp := NewErrorResponse(id, rpcCode, message)
	resp.Error.Data = data
	return resp
}

// SearchParams are the params of the search method.
type SearchParams = service.SearchRequest

// AskParams are the params of the ask method.
type AskParams = service.AskRequest

// ReindexParams are the params of the reindex method.
type ReindexParams = service.ReindexRequest

// PingResult is the result of the ping method.
type PingResult struct {
	PID     int    `json:"pid"`
	Version string `json:"version"`
}

// StatusResult is the result of the status method.
type StatusResult struct {
	service.StatusResponse

	PID           int    `json:"pid"`
	Uptime        string `json:"uptime"`
	BookmarksPath string `json:"bookmarksPath,omitempty"`
	Watching      bool   `json:"watching"`
}

// AttachResult acknowledges an attach. The connection stays open and the
// session ends when either side closes it.
type AttachResult struct {
	Sessions int `json:"sessions"`
}

// ShutdownResult acknowledges a shutdown request.
type ShutdownResult struct {
	Stopping bool `json:"stopping"`
}
