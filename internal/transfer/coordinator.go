// Package transfer runs chunked, checksummed, retrying uploads and downloads.
//
// A Coordinator turns one object transfer into a Session: the object is
// planned into chunks, a fixed pool of workers moves the chunks through the
// transport, and the session is finalized by completing the multipart upload
// or by writing the downloaded chunks to the sink in index order.
package transfer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/checksum"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport"
)

// cleanupTimeout bounds best-effort cleanup after a failed or aborted upload.
const cleanupTimeout = 30 * time.Second

// Coordinator starts transfer sessions against one transport.
//
// Thread Safety: a Coordinator is safe for concurrent use; every session
// has its own workers and state.
type Coordinator struct {
	transport transport.Transport
	retry     *retry.Policy
	cfg       objtypes.Configuration
	buffers   *pool.ChunkPool
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithBufferPool shares a chunk buffer pool between coordinators.
func WithBufferPool(p *pool.ChunkPool) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.buffers = p
		}
	}
}

// New creates a Coordinator. Transport calls made by workers run detached
// from session cancellation so that an abort lets in-flight calls finish.
func New(t transport.Transport, policy *retry.Policy, cfg objtypes.Configuration, opts ...Option) *Coordinator {
	c := &Coordinator{
		transport: t,
		retry:     policy.Detached(),
		cfg:       cfg,
		buffers:   pool.NewChunkPool(),
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// uploadChunkSize picks the chunk size for an upload, honoring the transport's minimum part size.
func (c *Coordinator) uploadChunkSize(override int64) int64 {
	size := c.cfg.MaxChunkBytes
	if override > 0 {
		size = override
	}
	if l, ok := c.transport.(transport.PartSizeLimiter); ok {
		if limit := l.MinPartSize(); size < limit {
			size = limit
		}
	}
	return size
}

func (c *Coordinator) parallelism(override int) int {
	if override > 0 {
		return override
	}
	return c.cfg.MaxParallelism
}

func (c *Coordinator) engine(alg objtypes.ChecksumAlgorithm) (*checksum.Engine, error) {
	return checksum.New(alg)
}

// process claims ch and runs fn under the retry policy until the chunk commits,
// the session ends, or the chunk fails for good. A chunk whose retries are
// exhausted goes back to pending while the re-plan budget allows.
func (c *Coordinator) process(s *Session, ch *chunk, op string, fn func(ctx context.Context) error) error {
	for {
		if s.interrupted() {
			return context.Cause(s.ctx)
		}
		if !ch.claim() {
			return objerrors.NewObjectError(op, s.container, s.key, objerrors.ErrInvalidInput).
				WithMessage("chunk is not pending")
		}

		start := time.Now()
		err := c.retry.Execute(s.ctx, op, func(ctx context.Context) error {
			ch.attempts.Add(1)
			return fn(ctx)
		})

		if err == nil {
			if s.interrupted() {
				ch.fail()
				return context.Cause(s.ctx)
			}
			ch.commit()
			c.metrics.ChunkCommitted(s.direction, ch.desc.Length, time.Since(start))
			return nil
		}

		ch.fail()
		if s.interrupted() {
			return context.Cause(s.ctx)
		}
		if errors.Is(err, objerrors.ErrRetryExhausted) && ch.rounds < c.cfg.ChunkRetryBudget {
			ch.rounds++
			ch.replan()
			s.logger.WarnContext(s.ctx, "re-planning chunk after exhausted retries",
				"chunk_index", ch.desc.Index,
				"round", ch.rounds,
				"error", err,
			)
			continue
		}

		s.logger.ErrorContext(s.ctx, "chunk failed",
			"chunk_index", ch.desc.Index,
			"attempts", ch.attempts.Load(),
			"error", err,
		)
		return err
	}
}

// end finishes s with whatever ended it and records metrics and progress.
func (c *Coordinator) end(s *Session, state objtypes.SessionState, result *objtypes.ObjectDescriptor, err error, progress objtypes.ProgressTracker) {
	s.finish(state, result, err)
	c.metrics.SessionFinished(s.direction, state, err)

	if progress != nil {
		if state == objtypes.SessionComplete {
			progress.Complete()
		} else {
			progress.Error(err)
		}
	}

	if state == objtypes.SessionComplete {
		s.logger.InfoContext(s.ctx, "transfer complete", "size", s.plan.TotalSize, "chunks", len(s.chunks))
		return
	}
	s.logger.WarnContext(s.ctx, "transfer ended", "state", state.String(), "error", err)
}

func (c *Coordinator) reportProgress(s *Session, n int64, progress objtypes.ProgressTracker) {
	total := s.transferred.Add(n)
	if progress != nil {
		progress.Update(total, s.plan.TotalSize)
	}
}
