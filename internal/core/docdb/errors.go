package docdb

import (
	"errors"
	"fmt"
)

// ErrorClass says what a backend failure means for the request and for the
// connection that produced it.
type ErrorClass int

const (
	// ClassUnknown is a failure the backend adapter could not classify.
	ClassUnknown ErrorClass = iota
	// ClassQueryRejected means the backend understood the request and refused
	// it, e.g. an unknown operator. The connection is still healthy.
	ClassQueryRejected
	// ClassTimeout means the operation exceeded its time limit.
	ClassTimeout
	// ClassCancelled means the caller's context was cancelled.
	ClassCancelled
	// ClassNetwork means the connection to the backend failed.
	ClassNetwork
	// ClassProtocol means the backend answered with something unusable.
	ClassProtocol
)

// String returns the class name.
func (c ErrorClass) String() string {
	switch c {
	case ClassQueryRejected:
		return "query_rejected"
	case ClassTimeout:
		return "timeout"
	case ClassCancelled:
		return "cancelled"
	case ClassNetwork:
		return "network"
	case ClassProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// BackendError is a classified failure reported by a Conn or Cursor.
type BackendError struct {
	Class   ErrorClass
	Code    int32
	Message string
	Err     error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s backend error (code %d): %s", e.Class, e.Code, e.Message)
	}
	return fmt.Sprintf("%s backend error: %s", e.Class, e.Message)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of err, or ClassUnknown if it is not a BackendError.
func ClassOf(err error) ErrorClass {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Class
	}
	return ClassUnknown
}
