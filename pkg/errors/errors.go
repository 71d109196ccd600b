// Package errors defines the error taxonomy for semantic cache operations.
// Every failure surfaced by the cache is a *CacheError carrying one of the
// Type constants below; callers match on the sentinel values with errors.Is.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Common error types as constants for consistency.
const (
	TypeDimensionMismatch = "dimension_mismatch"
	TypeDegenerateVector  = "degenerate_vector"
	TypePersistence       = "persistence_error"
	TypeCompute           = "compute_error"
	TypeClosed            = "cache_closed"
	TypeInvalidRequest    = "invalid_request_error"
)

// Sentinels matched by errors.Is against any *CacheError of the same Type.
var (
	ErrDimensionMismatch = &CacheError{Type: TypeDimensionMismatch, Message: "vector dimensions differ"}
	ErrDegenerateVector  = &CacheError{Type: TypeDegenerateVector, Message: "vector has zero norm"}
	ErrPersistence       = &CacheError{Type: TypePersistence, Message: "persistence failed"}
	ErrCompute           = &CacheError{Type: TypeCompute, Message: "compute failed"}
	ErrClosed            = &CacheError{Type: TypeClosed, Message: "cache is closed"}
)

// CacheError represents a failure inside the cache engine.
// It contains the operation and key involved plus the underlying cause.
type CacheError struct {
	Type    string `json:"type"`
	Op      string `json:"op,omitempty"`
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("%s (op=%s", msg, e.Op)
		if e.Key != "" {
			msg += ", key=" + e.Key
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *CacheError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *CacheError of the same Type.
func (e *CacheError) Is(target error) bool {
	t, ok := target.(*CacheError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
func (e *CacheError) HTTPStatusCode() int {
	switch e.Type {
	case TypeDimensionMismatch, TypeDegenerateVector, TypeInvalidRequest:
		return http.StatusBadRequest
	case TypeCompute:
		return http.StatusBadGateway
	case TypeClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewDimensionMismatchError creates a dimension mismatch error.
func NewDimensionMismatchError(lenA, lenB int) *CacheError {
	return &CacheError{
		Type:    TypeDimensionMismatch,
		Message: fmt.Sprintf("vector dimensions differ: %d != %d", lenA, lenB),
	}
}

// NewDegenerateVectorError creates a zero-norm vector error.
func NewDegenerateVectorError() *CacheError {
	return &CacheError{
		Type:    TypeDegenerateVector,
		Message: "vector has zero norm",
	}
}

// NewPersistenceError wraps an I/O or format failure during dump or load.
func NewPersistenceError(op, path string, err error) *CacheError {
	return &CacheError{
		Type:    TypePersistence,
		Op:      op,
		Key:     path,
		Message: "persistence failed",
		Err:     err,
	}
}

// NewComputeError wraps a failure returned by a compute function.
func NewComputeError(key string, err error) *CacheError {
	return &CacheError{
		Type:    TypeCompute,
		Op:      "get_or_compute",
		Key:     key,
		Message: "compute failed",
		Err:     err,
	}
}

// NewClosedError reports an operation attempted after Close.
func NewClosedError(op string) *CacheError {
	return &CacheError{
		Type:    TypeClosed,
		Op:      op,
		Message: "cache is closed",
	}
}

// NewInvalidRequestError creates an invalid request error (400).
func NewInvalidRequestError(message string) *CacheError {
	return &CacheError{
		Type:    TypeInvalidRequest,
		Message: message,
	}
}

// StatusCode maps any error to an HTTP status code.
// Errors that are not a *CacheError map to 500.
func StatusCode(err error) int {
	var ce *CacheError
	if stderrors.As(err, &ce) {
		return ce.HTTPStatusCode()
	}
	return http.StatusInternalServerError
}
