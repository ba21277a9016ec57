package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/checksum"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/planner"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
)

// DownloadRequest describes one object download.
type DownloadRequest struct {
	Container string
	Key       string
	// Sink receives the object bytes strictly in order
	Sink io.Writer
	// ExpectedDigest overrides the digest stored with the object
	ExpectedDigest objtypes.Digest
	ChunkSize      int64
	Parallelism    int
	Progress       objtypes.ProgressTracker
}

type downloadResult struct {
	chunk *chunk
	body  []byte
	err   error
}

// StartDownload looks the object up, plans the ranged reads and starts the
// workers. Lookup errors (including ErrNotFound) are returned directly.
func (c *Coordinator) StartDownload(ctx context.Context, req DownloadRequest) (*Handle, error) {
	if req.Sink == nil {
		return nil, objerrors.NewObjectError("download", req.Container, req.Key, objerrors.ErrInvalidInput).
			WithMessage("sink writer is nil")
	}

	s := newSession(ctx, metrics.Download, req.Container, req.Key, c.cfg.SessionDeadline, c.logger)

	head, err := retry.Do(s.ctx, c.retry, "HeadObject", func(ctx context.Context) (*objtypes.ObjectDescriptor, error) {
		return c.transport.HeadObject(ctx, req.Container, req.Key)
	})
	if err != nil {
		state := objtypes.SessionFailed
		if s.interrupted() {
			state, err = s.outcome()
		}
		err = objerrors.NewObjectError("download", req.Container, req.Key, err)
		c.end(s, state, nil, err, req.Progress)
		return nil, err
	}

	reference := req.ExpectedDigest
	if reference.IsZero() {
		reference = head.Digest
	}
	wholeAlg := c.cfg.ChecksumAlgorithm
	if !reference.IsZero() {
		wholeAlg = reference.Algorithm
	}
	whole, err := c.engine(wholeAlg)
	if err != nil {
		c.end(s, objtypes.SessionFailed, nil, err, req.Progress)
		return nil, err
	}
	part, err := c.engine(c.cfg.ChunkChecksumAlgorithm)
	if err != nil {
		c.end(s, objtypes.SessionFailed, nil, err, req.Progress)
		return nil, err
	}

	chunkSize := c.cfg.MaxChunkBytes
	if req.ChunkSize > 0 {
		chunkSize = req.ChunkSize
	}
	plan, err := planner.Build(req.Key, head.Size, chunkSize, c.parallelism(req.Parallelism))
	if err != nil {
		err = objerrors.NewObjectError("download", req.Container, req.Key, err)
		c.end(s, objtypes.SessionFailed, nil, err, req.Progress)
		return nil, err
	}
	s.setPlan(plan)
	s.logger.InfoContext(ctx, "download started",
		"size", plan.TotalSize,
		"chunks", len(plan.Chunks),
		"chunk_size", plan.ChunkSize,
		"parallelism", plan.Parallelism,
	)

	s.transition(objtypes.SessionPlanning, objtypes.SessionTransferring)
	go c.runDownload(s, req, head, reference, whole, part)
	return &Handle{s: s}, nil
}

func (c *Coordinator) runDownload(s *Session, req DownloadRequest, head *objtypes.ObjectDescriptor, reference objtypes.Digest, whole, part *checksum.Engine) {
	// At most window chunks are fetched but not yet written to the sink.
	window := 2 * s.plan.Parallelism
	tokens := make(chan struct{}, window)
	jobs := make(chan *chunk)
	results := make(chan downloadResult, window)

	var g errgroup.Group
	g.Go(func() error {
		defer close(jobs)
		for _, ch := range s.chunks {
			select {
			case tokens <- struct{}{}:
			case <-s.ctx.Done():
				return nil
			}
			if s.interrupted() {
				return nil
			}
			select {
			case jobs <- ch:
			case <-s.ctx.Done():
				return nil
			}
		}
		return nil
	})
	for w := 0; w < s.plan.Parallelism; w++ {
		g.Go(func() error {
			for ch := range jobs {
				results <- c.downloadChunk(s, req, ch, part)
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	hasher := whole.NewHasher()
	pending := make(map[int][]byte, window)
	next := 0

	for r := range results {
		if r.err != nil {
			if !s.interrupted() {
				s.fail(objerrors.NewObjectError("download", req.Container, req.Key, r.err).
					WithMessage(fmt.Sprintf("chunk %d", r.chunk.desc.Index)))
			}
			c.buffers.Put(s.plan.ChunkSize, r.body)
			continue
		}
		if s.interrupted() {
			c.buffers.Put(s.plan.ChunkSize, r.body)
			continue
		}

		pending[r.chunk.desc.Index] = r.body
		for {
			body, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if _, err := req.Sink.Write(body); err != nil {
				s.fail(objerrors.NewObjectError("download", req.Container, req.Key, fmt.Errorf("write sink: %w", err)))
				c.buffers.Put(s.plan.ChunkSize, body)
				break
			}
			_, _ = hasher.Write(body)
			c.reportProgress(s, int64(len(body)), req.Progress)
			c.buffers.Put(s.plan.ChunkSize, body)
			next++
			<-tokens
		}
	}
	for _, body := range pending {
		c.buffers.Put(s.plan.ChunkSize, body)
	}

	if s.interrupted() {
		state, err := s.outcome()
		var e *objerrors.Error
		if !errors.As(err, &e) {
			err = objerrors.NewObjectError("download", req.Container, req.Key, err)
		}
		c.end(s, state, nil, err, req.Progress)
		return
	}

	s.transition(objtypes.SessionTransferring, objtypes.SessionFinalizing)

	digest := hasher.Digest()
	if !reference.IsZero() && !checksum.Verify(reference, digest) {
		err := objerrors.NewObjectError("download", req.Container, req.Key, objerrors.ErrChecksumMismatch).
			WithMessage(fmt.Sprintf("expected %s, computed %s", reference, digest))
		c.end(s, objtypes.SessionFailed, nil, err, req.Progress)
		return
	}

	result := *head
	result.Digest = digest
	c.end(s, objtypes.SessionComplete, &result, nil, req.Progress)
}

// commitEmpty commits a zero-length chunk without a transport call, so no
// attempt is recorded for a request that was never sent.
func (c *Coordinator) commitEmpty(s *Session, ch *chunk) error {
	if s.interrupted() {
		return context.Cause(s.ctx)
	}
	if !ch.claim() || !ch.commit() {
		return objerrors.NewObjectError("GetObjectRange", s.container, s.key, objerrors.ErrInvalidInput).
			WithMessage("chunk is not pending")
	}
	return nil
}

func (c *Coordinator) downloadChunk(s *Session, req DownloadRequest, ch *chunk, part *checksum.Engine) downloadResult {
	body := c.buffers.Get(s.plan.ChunkSize, ch.desc.Length)
	if ch.desc.Length == 0 {
		// Nothing to fetch; an empty object still has one committed chunk.
		err := c.commitEmpty(s, ch)
		ch.setDigest(part.DigestChunk(body))
		return downloadResult{chunk: ch, body: body, err: err}
	}

	err := c.process(s, ch, "GetObjectRange", func(ctx context.Context) error {
		rc, err := c.transport.GetObjectRange(ctx, req.Container, req.Key, ch.desc.Offset, ch.desc.Length)
		if err != nil {
			return err
		}
		defer rc.Close()
		if _, err := io.ReadFull(rc, body); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return objerrors.Retryable(fmt.Errorf("range %d+%d: %w", ch.desc.Offset, ch.desc.Length, io.ErrUnexpectedEOF))
			}
			return err
		}
		return nil
	})
	if err == nil {
		ch.setDigest(part.DigestChunk(body))
	}
	return downloadResult{chunk: ch, body: body, err: err}
}
