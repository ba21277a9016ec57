// Package retry wraps idempotent transport calls with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"syscall"
	"time"

	"github.com/aws/smithy-go"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
)

// Class is the retry classification of an error.
type Class int

const (
	// Fatal errors are returned immediately.
	Fatal Class = iota
	// Retryable errors are attempted again after a backoff.
	Retryable
)

// String returns the lowercase class name.
func (c Class) String() string {
	if c == Retryable {
		return "retryable"
	}
	return "fatal"
}

// Observer is notified after every attempt. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveAttempt(op string, attempt int, err error)
}

// Config holds the policy tunables.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int

	// BaseBackoff is the delay after the first failed attempt
	BaseBackoff time.Duration

	// MaxBackoff caps the exponential delay before jitter is added
	MaxBackoff time.Duration

	// CallTimeout bounds each attempt; zero means no per-call timeout
	CallTimeout time.Duration
}

// Policy executes operations with retries.
//
// Thread Safety: a Policy is immutable after New and safe for concurrent use.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	callTimeout time.Duration
	detached    bool
	observer    Observer
	logger      *slog.Logger

	// sleep and jitter are replaced in tests
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(n int64) int64
}

// Option configures a Policy.
type Option func(*Policy)

// WithObserver registers an attempt observer.
func WithObserver(o Observer) Option {
	return func(p *Policy) {
		p.observer = o
	}
}

// WithLogger configures the policy with a logger for retry decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		p.logger = logger
	}
}

// New creates a Policy. Non-positive values fall back to the package defaults.
func New(cfg Config, opts ...Option) *Policy {
	p := &Policy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseBackoff,
		maxDelay:    cfg.MaxBackoff,
		callTimeout: cfg.CallTimeout,
		sleep:       sleepContext,
		jitter:      rand.Int64N,
	}
	if p.maxAttempts < 1 {
		p.maxAttempts = 5
	}
	if p.baseDelay <= 0 {
		p.baseDelay = 200 * time.Millisecond
	}
	if p.maxDelay <= 0 {
		p.maxDelay = 30 * time.Second
	}
	if p.maxDelay < p.baseDelay {
		p.maxDelay = p.baseDelay
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts returns the maximum number of attempts.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Detached returns a copy of the policy whose calls run on a context that is
// not cancelled with the caller's. Cancellation is still observed between
// attempts, so an in-flight call finishes and no new one starts.
func (p *Policy) Detached() *Policy {
	cp := *p
	cp.detached = true
	return &cp
}

// Backoff returns the delay after the given zero-based failed attempt:
// base * 2^attempt capped at the maximum, plus jitter in [0, backoff/2).
func (p *Policy) Backoff(attempt int) time.Duration {
	d := p.baseDelay
	for i := 0; i < attempt && d < p.maxDelay; i++ {
		d *= 2
	}
	if d > p.maxDelay {
		d = p.maxDelay
	}
	if half := int64(d / 2); half > 0 {
		d += time.Duration(p.jitter(half))
	}
	return d
}

// Execute runs fn until it succeeds, fails fatally, the context ends, or the attempts run out.
func (p *Policy) Execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do is the value-returning form of Execute.
//
// Returns:
//   - the value from the first successful attempt
//   - the error itself when it is classified Fatal
//   - context.Cause(ctx) when ctx ends before or between attempts
//   - *objerrors.RetryExhaustedError when every attempt failed
func Do[T any](ctx context.Context, p *Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var last error

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return zero, context.Cause(ctx)
		}

		v, timedOut, err := attemptOnce(ctx, p, fn)
		if p.observer != nil {
			p.observer.ObserveAttempt(op, attempt+1, err)
		}
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, context.Cause(ctx)
		}
		if timedOut {
			err = objerrors.Retryable(err)
		}
		if Classify(err) == Fatal {
			return zero, err
		}
		last = err

		if attempt+1 == p.maxAttempts {
			break
		}
		delay := p.Backoff(attempt)
		if p.logger != nil {
			p.logger.DebugContext(ctx, "retrying operation",
				"operation", op,
				"attempt", attempt+1,
				"delay", delay,
				"error", err,
			)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return zero, context.Cause(ctx)
		}
	}

	if p.logger != nil {
		p.logger.WarnContext(ctx, "retry attempts exhausted",
			"operation", op,
			"attempts", p.maxAttempts,
			"error", last,
		)
	}
	return zero, &objerrors.RetryExhaustedError{Op: op, Attempts: p.maxAttempts, Last: last}
}

// attemptOnce runs one attempt and reports whether the per-call timeout fired.
func attemptOnce[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, bool, error) {
	callCtx := ctx
	if p.detached {
		callCtx = context.WithoutCancel(ctx)
	}
	if p.callTimeout <= 0 {
		v, err := fn(callCtx)
		return v, false, err
	}

	callCtx, cancel := context.WithTimeout(callCtx, p.callTimeout)
	defer cancel()
	v, err := fn(callCtx)
	timedOut := err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded)
	return v, timedOut, err
}

// Classify decides whether err is worth another attempt.
//
// Explicit objerrors.Retryable / objerrors.Fatal markers win. Domain sentinels
// (not found, checksum mismatch, invalid input, ...) are fatal. Throttling,
// timeouts, 5xx/408/429 responses and dropped connections are retryable.
// Anything unrecognised is fatal so that permanent failures do not loop.
func Classify(err error) Class {
	if err == nil {
		return Fatal
	}

	switch objerrors.ClassOf(err) {
	case objerrors.RetryableClass:
		return Retryable
	case objerrors.FatalClass:
		return Fatal
	}

	for _, sentinel := range fatalSentinels {
		if errors.Is(err, sentinel) {
			return Fatal
		}
	}

	if errors.Is(err, context.Canceled) {
		return Fatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Retryable
	}

	var te *objerrors.TransportError
	if errors.As(err, &te) {
		if te.Code != "" {
			if c, ok := classifyCode(te.Code); ok {
				return c
			}
		}
		if te.StatusCode != 0 {
			return classifyStatus(te.StatusCode)
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if c, ok := classifyCode(apiErr.ErrorCode()); ok {
			return c
		}
	}

	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) && statusErr.HTTPStatusCode() != 0 {
		return classifyStatus(statusErr.HTTPStatusCode())
	}

	if isNetworkError(err) {
		return Retryable
	}

	return Fatal
}

var fatalSentinels = []error{
	objerrors.ErrChecksumMismatch,
	objerrors.ErrStreamTruncated,
	objerrors.ErrNotFound,
	objerrors.ErrAlreadyExists,
	objerrors.ErrContainerNotEmpty,
	objerrors.ErrAccessDenied,
	objerrors.ErrInvalidInput,
	objerrors.ErrInvalidContainerName,
	objerrors.ErrInvalidObjectKey,
	objerrors.ErrRetryExhausted,
	objerrors.ErrAborted,
	objerrors.ErrDeadlineExceeded,
	objerrors.ErrNotImplemented,
}

func classifyCode(code string) (Class, bool) {
	switch code {
	case "Throttling",
		"ThrottlingException",
		"SlowDown",
		"SlowDownRead",
		"SlowDownWrite",
		"RequestTimeout",
		"RequestTimeoutException",
		"RequestLimitExceeded",
		"TooManyRequestsException",
		"ProvisionedThroughputExceededException",
		"InternalError",
		"ServiceUnavailable",
		"XMinioServerNotInitialized":
		return Retryable, true
	case "AccessDenied",
		"AccessDeniedException",
		"InvalidAccessKeyId",
		"SignatureDoesNotMatch",
		"ExpiredToken",
		"InvalidArgument",
		"InvalidBucketName",
		"NoSuchUpload",
		"EntityTooSmall",
		"InvalidPart",
		"InvalidPartOrder",
		"BadDigest",
		"InvalidDigest":
		return Fatal, true
	}
	return Fatal, false
}

func classifyStatus(status int) Class {
	switch {
	case status == 408, status == 429:
		return Retryable
	case status >= 500:
		return Retryable
	default:
		return Fatal
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
