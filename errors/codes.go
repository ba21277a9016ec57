package errors

import "errors"

// ErrorCode is a stable, string-based identifier for a failure category.
// Codes are meant for logs, metrics labels and API payloads.
type ErrorCode string

const (
	// CodeNotFound indicates a requested container or object does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeAlreadyExists indicates a container already exists.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// CodeConflict indicates a container still holds objects.
	CodeConflict ErrorCode = "CONFLICT"

	// CodeForbidden indicates the caller lacks permission for the operation.
	CodeForbidden ErrorCode = "FORBIDDEN"

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeChecksum indicates a digest mismatch or a truncated stream.
	CodeChecksum ErrorCode = "CHECKSUM_MISMATCH"

	// CodeRetryExhausted indicates every allowed attempt failed.
	CodeRetryExhausted ErrorCode = "RETRY_EXHAUSTED"

	// CodeTimeout indicates the session deadline passed.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeAborted indicates the caller cancelled the transfer.
	CodeAborted ErrorCode = "ABORTED"

	// CodeTransport indicates an unclassified backend failure.
	CodeTransport ErrorCode = "TRANSPORT_ERROR"

	// CodeNotImplemented indicates the backend lacks the operation.
	CodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// CodeOf maps an error onto its ErrorCode. Nil maps to the empty code.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrChecksumMismatch), errors.Is(err, ErrStreamTruncated):
		return CodeChecksum
	case errors.Is(err, ErrRetryExhausted):
		return CodeRetryExhausted
	case errors.Is(err, ErrDeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, ErrAborted):
		return CodeAborted
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, ErrContainerNotEmpty):
		return CodeConflict
	case errors.Is(err, ErrAccessDenied):
		return CodeForbidden
	case IsInvalidInput(err):
		return CodeInvalidInput
	case errors.Is(err, ErrNotImplemented):
		return CodeNotImplemented
	case errors.Is(err, ErrTransport):
		return CodeTransport
	default:
		return CodeUnknown
	}
}
