package gateway

import (
	"errors"
	"fmt"
)

// Stable error codes returned to gateway callers. These are part of the tool
// contract; agents branch on them, so values never change.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeAccessDenied       = "ACCESS_DENIED"
	CodeToolNotFound       = "TOOL_NOT_FOUND"
	CodeObjectNotFound     = "OBJECT_NOT_FOUND"
	CodeResourceNotFound   = "RESOURCE_NOT_FOUND"
	CodeRequestTooLarge    = "REQUEST_TOO_LARGE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeQueryFailed        = "QUERY_FAILED"
	CodeQueryTimeout       = "QUERY_TIMEOUT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// ToolError is a client-safe error with a stable code and HTTP-style status.
// Messages are scrubbed before they leave the process; Details carries
// structured context that is safe to return to the caller.
type ToolError struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewToolError builds a ToolError with the default status for code.
func NewToolError(code, message string) *ToolError {
	return &ToolError{Code: code, Message: message, Status: StatusForCode(code)}
}

// WithDetail returns the error with one detail field added.
func (e *ToolError) WithDetail(key string, value any) *ToolError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// StatusForCode maps a stable error code to its response status.
func StatusForCode(code string) int {
	switch code {
	case CodeInvalidRequest, CodeValidationError:
		return 400
	case CodeUnauthorized:
		return 401
	case CodeAccessDenied:
		return 403
	case CodeToolNotFound, CodeObjectNotFound, CodeResourceNotFound:
		return 404
	case CodeRequestTooLarge:
		return 413
	case CodeRateLimited:
		return 429
	case CodeQueryTimeout:
		return 504
	case CodeServiceUnavailable:
		return 503
	default:
		return 500
	}
}

// AsToolError extracts a ToolError from err, wrapping unknown errors as an
// internal error so raw provider messages never reach the caller.
func AsToolError(err error) *ToolError {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}
	return NewToolError(CodeInternalError, "an internal error occurred")
}
