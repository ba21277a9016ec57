// Package errors provides error types and handling for object storage operations.
package errors

import (
	"errors"
	"fmt"
)

// Error represents an object storage operation error with context about the operation that failed.
// It wraps the underlying transport or validation error with the container and key involved.
type Error struct {
	// Op is the operation that failed (e.g., "upload", "download", "deleteContainer")
	Op string

	// Container is the container name (if applicable)
	Container string

	// Key is the object key (if applicable)
	Key string

	// Err is the primary error
	Err error

	// Cleanup is the outcome of best-effort cleanup after a failure.
	// It is informational only and never replaces Err.
	Cleanup error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	var msg string
	switch {
	case e.Container != "" && e.Key != "":
		msg = fmt.Sprintf("objstore.%s %s/%s: %v", e.Op, e.Container, e.Key, e.Err)
	case e.Container != "":
		msg = fmt.Sprintf("objstore.%s container %s: %v", e.Op, e.Container, e.Err)
	case e.Key != "":
		msg = fmt.Sprintf("objstore.%s object %s: %v", e.Op, e.Key, e.Err)
	default:
		msg = fmt.Sprintf("objstore.%s: %v", e.Op, e.Err)
	}
	if e.Cleanup != nil {
		msg += fmt.Sprintf(" (cleanup failed: %v)", e.Cleanup)
	}
	return msg
}

// Unwrap returns the primary error. The cleanup error is deliberately not part of the chain.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithContainer adds container context to an existing error.
func (e *Error) WithContainer(container string) *Error {
	e.Container = container
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// WithCleanup records the outcome of a cleanup attempt.
func (e *Error) WithCleanup(err error) *Error {
	e.Cleanup = err
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewContainerError creates a new Error with container context.
func NewContainerError(op, container string, err error) *Error {
	return &Error{
		Op:        op,
		Container: container,
		Err:       err,
	}
}

// NewObjectError creates a new Error with container and key context.
func NewObjectError(op, container, key string, err error) *Error {
	return &Error{
		Op:        op,
		Container: container,
		Key:       key,
		Err:       err,
	}
}

// Sentinel errors for common object storage failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrNotFound indicates that the container or object does not exist
	ErrNotFound = errors.New("objstore: not found")

	// ErrAlreadyExists indicates that the container already exists
	ErrAlreadyExists = errors.New("objstore: already exists")

	// ErrContainerNotEmpty indicates that the container still holds objects
	ErrContainerNotEmpty = errors.New("objstore: container not empty")

	// ErrAccessDenied indicates that access to the resource is denied
	ErrAccessDenied = errors.New("objstore: access denied")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("objstore: invalid input")

	// ErrInvalidContainerName indicates that the container name is invalid
	ErrInvalidContainerName = errors.New("objstore: invalid container name")

	// ErrInvalidObjectKey indicates that the object key is invalid
	ErrInvalidObjectKey = errors.New("objstore: invalid object key")

	// ErrChecksumMismatch indicates that a computed digest differs from the expected one
	ErrChecksumMismatch = errors.New("objstore: checksum mismatch")

	// ErrStreamTruncated indicates that a stream ended before its declared length
	ErrStreamTruncated = errors.New("objstore: stream ended before declared length")

	// ErrRetryExhausted indicates that an operation failed on every allowed attempt
	ErrRetryExhausted = errors.New("objstore: retry attempts exhausted")

	// ErrDeadlineExceeded indicates that the session deadline passed
	ErrDeadlineExceeded = errors.New("objstore: session deadline exceeded")

	// ErrAborted indicates that a transfer was cancelled by the caller
	ErrAborted = errors.New("objstore: transfer aborted")

	// ErrTransport indicates a failure reported by the storage transport
	ErrTransport = errors.New("objstore: transport error")

	// ErrNotImplemented indicates that the backend does not support the operation
	ErrNotImplemented = errors.New("objstore: not implemented")
)

// TransportError carries the raw outcome of a failed backend call.
// Adapters return it for failures that do not map onto a sentinel.
type TransportError struct {
	// Op is the backend call that failed
	Op string

	// StatusCode is the HTTP status, or 0 when the backend does not speak HTTP
	StatusCode int

	// Code is the provider error code (e.g., "SlowDown")
	Code string

	// Err is the underlying error
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Code != "":
		return fmt.Sprintf("transport %s: status %d (%s): %v", e.Op, e.StatusCode, e.Code, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.Code != "":
		return fmt.Sprintf("transport %s: %s: %v", e.Op, e.Code, e.Err)
	default:
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports ErrTransport as a match.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// RetryExhaustedError is returned when every attempt of a retryable operation failed.
type RetryExhaustedError struct {
	// Op is the operation that was retried
	Op string

	// Attempts is the number of attempts made
	Attempts int

	// Last is the error from the final attempt
	Last error
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts failed: %v", e.Op, e.Attempts, e.Last)
}

// Unwrap exposes both the sentinel and the last attempt's error.
func (e *RetryExhaustedError) Unwrap() []error {
	return []error{ErrRetryExhausted, e.Last}
}

// IsNotFound checks if an error indicates that a container or object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error indicates that a container already exists.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsAccessDenied checks if an error indicates access was denied.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsInvalidInput checks if an error indicates invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidContainerName) ||
		errors.Is(err, ErrInvalidObjectKey)
}

// IsChecksumMismatch checks if an error indicates a digest mismatch.
func IsChecksumMismatch(err error) bool {
	return errors.Is(err, ErrChecksumMismatch)
}

// IsRetryExhausted checks if an error indicates exhausted retries.
func IsRetryExhausted(err error) bool {
	return errors.Is(err, ErrRetryExhausted)
}

// IsAborted checks if a transfer ended because of cancellation or a session deadline.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, ErrDeadlineExceeded)
}
