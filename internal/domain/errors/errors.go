// Package errors provides the gateway's error taxonomy.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. They are returned verbatim in the "error" field of response bodies.
const (
	CodeInvalidCollection       = "InvalidCollection"
	CodeInvalidFilterSyntax     = "InvalidFilterSyntax"
	CodeInvalidLimit            = "InvalidLimit"
	CodeInvalidSkip             = "InvalidSkip"
	CodeInvalidSortSyntax       = "InvalidSortSyntax"
	CodeInvalidProjectionSyntax = "InvalidProjectionSyntax"
	CodeMixedProjectionMode     = "MixedProjectionMode"
	CodePoolExhausted           = "PoolExhausted"
	CodeUnavailable             = "Unavailable"
	CodeQueryRejected           = "QueryRejected"
	CodeBackendProtocol         = "BackendProtocolError"
	CodeExecutionTimeout        = "ExecutionTimeout"
	CodeStreamingFault          = "StreamingFault"
	CodeNotFound                = "NotFound"
	CodeMethodNotAllowed        = "MethodNotAllowed"
	CodeInternal                = "InternalError"
)

// Category groups error codes by how they propagate.
type Category string

const (
	CategoryClientInput        Category = "client_input"
	CategoryResourceExhaustion Category = "resource_exhaustion"
	CategoryBackendUnavailable Category = "backend_unavailable"
	CategoryQueryRejected      Category = "query_rejected"
	CategoryExecutionTimeout   Category = "execution_timeout"
	CategoryStreamingFault     Category = "streaming_fault"
	CategoryInternal           Category = "internal"
)

// DomainError represents a classified gateway error.
type DomainError struct {
	Code       string   `json:"error"`
	Category   Category `json:"-"`
	Message    string   `json:"message"`
	Parameter  string   `json:"parameter,omitempty"`
	HTTPStatus int      `json:"-"`
	Err        error    `json:"-"`
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Parameter != "" {
		return fmt.Sprintf("%s: %s (parameter %q)", e.Code, e.Message, e.Parameter)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code, so that
// errors.Is(err, &DomainError{Code: CodePoolExhausted}) works.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// NewClientInputError creates a 400 error for a malformed request parameter.
func NewClientInputError(code, parameter, message string) *DomainError {
	return &DomainError{
		Code:       code,
		Category:   CategoryClientInput,
		Message:    message,
		Parameter:  parameter,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewPoolExhaustedError creates a 503 error for a lease that could not be served.
func NewPoolExhaustedError(message string) *DomainError {
	return &DomainError{
		Code:       CodePoolExhausted,
		Category:   CategoryResourceExhaustion,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// NewUnavailableError creates a 503 error for an unreachable backend.
func NewUnavailableError(err error) *DomainError {
	return &DomainError{
		Code:       CodeUnavailable,
		Category:   CategoryBackendUnavailable,
		Message:    "backend is unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewQueryRejectedError creates a 400 error for a query the backend refused.
// The message is the backend's own explanation and is shown to the client.
func NewQueryRejectedError(message string, err error) *DomainError {
	return &DomainError{
		Code:       CodeQueryRejected,
		Category:   CategoryQueryRejected,
		Message:    message,
		Parameter:  "query",
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
	}
}

// NewBackendProtocolError creates a 502 error for a backend that answered
// with something the gateway could not use.
func NewBackendProtocolError(err error) *DomainError {
	return &DomainError{
		Code:       CodeBackendProtocol,
		Category:   CategoryBackendUnavailable,
		Message:    "backend protocol error",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewTimeoutError creates a 504 error.
func NewTimeoutError(operation string, err error) *DomainError {
	return &DomainError{
		Code:       CodeExecutionTimeout,
		Category:   CategoryExecutionTimeout,
		Message:    fmt.Sprintf("%s timed out", operation),
		HTTPStatus: http.StatusGatewayTimeout,
		Err:        err,
	}
}

// NewStreamingFault reports a failure after the response status was sent.
// It is never rendered; the client sees a truncated body instead.
func NewStreamingFault(written int, err error) *DomainError {
	return &DomainError{
		Code:       CodeStreamingFault,
		Category:   CategoryStreamingFault,
		Message:    fmt.Sprintf("stream aborted after %d documents", written),
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewNotFoundError creates a 404 error for an unknown route shape.
func NewNotFoundError(path string) *DomainError {
	return &DomainError{
		Code:       CodeNotFound,
		Category:   CategoryClientInput,
		Message:    fmt.Sprintf("no route for %s", path),
		HTTPStatus: http.StatusNotFound,
	}
}

// NewMethodNotAllowedError creates a 405 error.
func NewMethodNotAllowedError(method string) *DomainError {
	return &DomainError{
		Code:       CodeMethodNotAllowed,
		Category:   CategoryClientInput,
		Message:    fmt.Sprintf("method %s not allowed", method),
		HTTPStatus: http.StatusMethodNotAllowed,
	}
}

// NewInternalError creates a 500 error. The wrapped error is never rendered.
func NewInternalError(message string, err error) *DomainError {
	return &DomainError{
		Code:       CodeInternal,
		Category:   CategoryInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsDomainError checks if the error is a domain error.
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}

// GetDomainError extracts the domain error from an error.
func GetDomainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// HasCode checks if err is a domain error with the given code.
func HasCode(err error, code string) bool {
	domainErr, ok := GetDomainError(err)
	return ok && domainErr.Code == code
}

// IsClientInput checks if the error was caused by malformed request parameters.
func IsClientInput(err error) bool {
	domainErr, ok := GetDomainError(err)
	return ok && domainErr.Category == CategoryClientInput
}
