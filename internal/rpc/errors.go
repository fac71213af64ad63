// Package rpc implements JSON-RPC 2.0 method registration, parameter
// binding and request dispatch.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"norelock.dev/rpcsite/pkg/jsonrpc"
)

// ErrorCode is a type for JSON-RPC error codes.
type ErrorCode int

// JSON-RPC 2.0 error codes
const (
	// Parse error: Invalid JSON was received by the server.
	ErrParseError ErrorCode = jsonrpc.CodeParseError

	// Invalid Request: The JSON sent is not a valid Request object.
	ErrInvalidRequest ErrorCode = jsonrpc.CodeInvalidRequest

	// Method not found: The method does not exist / is not available.
	ErrMethodNotFound ErrorCode = jsonrpc.CodeMethodNotFound

	// Invalid params: Invalid method parameter(s).
	ErrInvalidParams ErrorCode = jsonrpc.CodeInvalidParams

	// Internal error: Internal JSON-RPC error.
	ErrInternalError ErrorCode = jsonrpc.CodeInternalError

	// Server error: Reserved for implementation-defined server-errors.
	ErrServerError ErrorCode = jsonrpc.CodeServerError

	// Authentication error: The client is not authenticated.
	ErrAuthenticationRequired ErrorCode = -32001

	// Authorization error: The client is not authorized to perform the requested action.
	ErrNotAuthorized ErrorCode = -32002

	// Rate limit exceeded: The client has exceeded the rate limit.
	ErrRateLimitExceeded ErrorCode = -32003
)

// String returns the default message for the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrParseError:
		return "Parse error"
	case ErrInvalidRequest:
		return "Invalid Request"
	case ErrMethodNotFound:
		return "Method not found"
	case ErrInvalidParams:
		return "Invalid params"
	case ErrInternalError:
		return "Internal error"
	case ErrServerError:
		return "Server error"
	case ErrAuthenticationRequired:
		return "Authentication required"
	case ErrNotAuthorized:
		return "Not authorized"
	case ErrRateLimitExceeded:
		return "Rate limit exceeded"
	default:
		return "Server error"
	}
}

// Name returns the error kind reported in the error object.
func (c ErrorCode) Name() string {
	switch c {
	case ErrParseError:
		return "ParseError"
	case ErrInvalidRequest:
		return "InvalidRequestError"
	case ErrMethodNotFound:
		return "MethodNotFoundError"
	case ErrInvalidParams:
		return "InvalidParamsError"
	case ErrInternalError:
		return "InternalError"
	case ErrAuthenticationRequired:
		return "AuthenticationRequiredError"
	case ErrNotAuthorized:
		return "NotAuthorizedError"
	case ErrRateLimitExceeded:
		return "RateLimitExceededError"
	default:
		return "ServerError"
	}
}

// HTTPStatus returns the default HTTP status for the error code.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrParseError, ErrInvalidRequest, ErrMethodNotFound, ErrInvalidParams, ErrInternalError:
		return http.StatusBadRequest
	case ErrAuthenticationRequired:
		return http.StatusUnauthorized
	case ErrNotAuthorized:
		return http.StatusForbidden
	case ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a JSON-RPC error. Methods may return one (possibly wrapped) to
// control the code, message, data and HTTP status of the response.
type Error struct {
	Code    ErrorCode
	Message string
	Name    string
	Data    any
	Status  int

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if msg := e.dataMessage(); msg != "" {
		return fmt.Sprintf("%s: %s", e.Message, msg)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// HTTPStatus returns the HTTP status the error maps to.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return e.Code.HTTPStatus()
}

// WithCause attaches the error that triggered this one.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// WithStatus overrides the HTTP status.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// Object converts the error to its wire form.
func (e *Error) Object() *jsonrpc.Error {
	obj := &jsonrpc.Error{
		Code:    int(e.Code),
		Message: e.Message,
		Name:    e.Name,
	}
	if e.Data != nil {
		data, err := json.Marshal(e.Data)
		if err != nil {
			data, _ = json.Marshal(map[string]any{"message": err.Error()})
		}
		obj.Data = data
	}
	return obj
}

func (e *Error) dataMessage() string {
	if m, ok := e.Data.(map[string]any); ok {
		if s, ok := m["message"].(string); ok {
			return s
		}
	}
	return ""
}

// NewError creates an error with the given code; message and name default
// from the code.
func NewError(code ErrorCode, message string, data any) *Error {
	if message == "" {
		message = code.String()
	}
	return &Error{
		Code:    code,
		Message: message,
		Name:    code.Name(),
		Data:    data,
	}
}

func messageData(format string, args ...any) map[string]any {
	return map[string]any{"message": fmt.Sprintf(format, args...)}
}

// NewParseError reports a payload that is not JSON.
func NewParseError(format string, args ...any) *Error {
	return NewError(ErrParseError, "", messageData(format, args...))
}

// NewInvalidRequestError reports a structurally invalid request object.
func NewInvalidRequestError(format string, args ...any) *Error {
	return NewError(ErrInvalidRequest, "", messageData(format, args...))
}

// NewMethodNotFoundError reports an unknown method.
func NewMethodNotFoundError(method string) *Error {
	return NewError(ErrMethodNotFound, "", messageData("Method not found: %s", method))
}

// NewInvalidParamsError reports params that cannot be bound.
func NewInvalidParamsError(format string, args ...any) *Error {
	return NewError(ErrInvalidParams, "", messageData(format, args...))
}

// NewInternalError reports a failure inside the dispatcher itself.
func NewInternalError(format string, args ...any) *Error {
	return NewError(ErrInternalError, "", messageData(format, args...))
}

// NewServerError reports an application failure. Data is used verbatim.
func NewServerError(data any) *Error {
	return NewError(ErrServerError, "", data)
}

// IsParseError checks if an error is a parse error.
func IsParseError(err error) bool {
	return hasCode(err, ErrParseError)
}

// IsInvalidRequestError checks if an error is an invalid request error.
func IsInvalidRequestError(err error) bool {
	return hasCode(err, ErrInvalidRequest)
}

// IsMethodNotFoundError checks if an error is a method not found error.
func IsMethodNotFoundError(err error) bool {
	return hasCode(err, ErrMethodNotFound)
}

// IsInvalidParamsError checks if an error is an invalid params error.
func IsInvalidParamsError(err error) bool {
	return hasCode(err, ErrInvalidParams)
}

func hasCode(err error, code ErrorCode) bool {
	var rpcErr *Error
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}

// Registration errors
var (
	ErrDuplicateMethod = errors.New("method already registered")
	ErrInvalidMethod   = errors.New("invalid method")
)
