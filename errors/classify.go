package errors

import "errors"

// Class is the retry classification attached to an error.
type Class int

const (
	// Unclassified means no explicit marker is present.
	Unclassified Class = iota
	// RetryableClass marks a transient failure worth another attempt.
	RetryableClass
	// FatalClass marks a failure that must not be retried.
	FatalClass
)

type classified struct {
	class Class
	err   error
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }

// Retryable marks err as transient. A nil error stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &classified{class: RetryableClass, err: err}
}

// Fatal marks err as permanent. A nil error stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &classified{class: FatalClass, err: err}
}

// ClassOf returns the outermost explicit classification marker in err's chain.
func ClassOf(err error) Class {
	var c *classified
	if errors.As(err, &c) {
		return c.class
	}
	return Unclassified
}
