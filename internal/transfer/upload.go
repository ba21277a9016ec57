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
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport"
)

// UploadRequest describes one object upload.
type UploadRequest struct {
	Container string
	Key       string
	// Source is read sequentially exactly once
	Source io.Reader
	// Size is the exact number of bytes Source will yield
	Size        int64
	ContentType string
	Metadata    map[string]string
	// ExpectedDigest, when set, must match the digest of the uploaded bytes
	// or the upload fails without creating the object
	ExpectedDigest objtypes.Digest
	ChunkSize      int64
	Parallelism    int
	Progress       objtypes.ProgressTracker
}

type uploadJob struct {
	chunk *chunk
	body  []byte
}

// StartUpload plans the upload, opens the multipart upload and starts the
// workers. Planning errors are returned directly; later errors are reported
// by the Handle. Cancelling ctx aborts the session.
func (c *Coordinator) StartUpload(ctx context.Context, req UploadRequest) (*Handle, error) {
	if req.Source == nil {
		return nil, objerrors.NewObjectError("upload", req.Container, req.Key, objerrors.ErrInvalidInput).
			WithMessage("source reader is nil")
	}

	wholeAlg := c.cfg.ChecksumAlgorithm
	if !req.ExpectedDigest.IsZero() {
		wholeAlg = req.ExpectedDigest.Algorithm
	}
	whole, err := c.engine(wholeAlg)
	if err != nil {
		return nil, err
	}
	part, err := c.engine(c.cfg.ChunkChecksumAlgorithm)
	if err != nil {
		return nil, err
	}

	chunkSize := c.uploadChunkSize(req.ChunkSize)
	plan, err := planner.Build(req.Key, req.Size, chunkSize, c.parallelism(req.Parallelism))
	if err != nil {
		return nil, err
	}

	s := newSession(ctx, metrics.Upload, req.Container, req.Key, c.cfg.SessionDeadline, c.logger)
	s.setPlan(plan)
	s.logger.InfoContext(ctx, "upload started",
		"size", plan.TotalSize,
		"chunks", len(plan.Chunks),
		"chunk_size", plan.ChunkSize,
		"parallelism", plan.Parallelism,
	)

	metadata := req.Metadata
	if !req.ExpectedDigest.IsZero() {
		metadata = transport.WithDigest(req.Metadata, req.ExpectedDigest)
	}
	uploadID, err := retry.Do(s.ctx, c.retry, "CreateMultipartUpload", func(ctx context.Context) (string, error) {
		return c.transport.CreateMultipartUpload(ctx, transport.CreateMultipartRequest{
			Container:         req.Container,
			Key:               req.Key,
			ContentType:       req.ContentType,
			Metadata:          metadata,
			ChecksumAlgorithm: part.Algorithm(),
		})
	})
	if err != nil {
		state := objtypes.SessionFailed
		if s.interrupted() {
			state, err = s.outcome()
		}
		err = objerrors.NewObjectError("upload", req.Container, req.Key, err)
		c.end(s, state, nil, err, req.Progress)
		return nil, err
	}

	s.transition(objtypes.SessionPlanning, objtypes.SessionTransferring)
	go c.runUpload(s, req, uploadID, whole, part)
	return &Handle{s: s}, nil
}

func (c *Coordinator) runUpload(s *Session, req UploadRequest, uploadID string, whole, part *checksum.Engine) {
	hasher := whole.NewHasher()
	jobs := make(chan uploadJob)
	chunkSize := s.plan.ChunkSize

	var workers errgroup.Group
	for w := 0; w < s.plan.Parallelism; w++ {
		workers.Go(func() error {
			for job := range jobs {
				c.uploadChunk(s, req, uploadID, job)
				c.buffers.Put(chunkSize, job.body)
			}
			return nil
		})
	}

dispatch:
	for _, ch := range s.chunks {
		if s.interrupted() {
			break
		}

		body := c.buffers.Get(chunkSize, ch.desc.Length)
		if _, err := io.ReadFull(req.Source, body); err != nil {
			c.buffers.Put(chunkSize, body)
			s.fail(sourceError(req, ch, err))
			break
		}
		_, _ = hasher.Write(body)
		ch.setDigest(part.DigestChunk(body))

		select {
		case jobs <- uploadJob{chunk: ch, body: body}:
		case <-s.ctx.Done():
			c.buffers.Put(chunkSize, body)
			break dispatch
		}
	}
	if !s.interrupted() {
		if err := sourceDrained(req); err != nil {
			s.fail(err)
		}
	}
	close(jobs)
	_ = workers.Wait()

	if s.interrupted() {
		c.failUpload(s, req, uploadID)
		return
	}

	s.transition(objtypes.SessionTransferring, objtypes.SessionFinalizing)

	digest := hasher.Digest()
	if !req.ExpectedDigest.IsZero() && !checksum.Verify(req.ExpectedDigest, digest) {
		s.fail(objerrors.NewObjectError("upload", req.Container, req.Key, objerrors.ErrChecksumMismatch).
			WithMessage(fmt.Sprintf("expected %s, computed %s", req.ExpectedDigest, digest)))
		c.failUpload(s, req, uploadID)
		return
	}

	parts := make([]transport.PartResult, len(s.chunks))
	for i, ch := range s.chunks {
		parts[i] = ch.part
	}
	desc, err := retry.Do(s.ctx, c.retry, "CompleteMultipartUpload", func(ctx context.Context) (*objtypes.ObjectDescriptor, error) {
		return c.transport.CompleteMultipartUpload(ctx, transport.CompleteMultipartRequest{
			Container: req.Container,
			Key:       req.Key,
			UploadID:  uploadID,
			Parts:     parts,
			Size:      s.plan.TotalSize,
			Digest:    digest,
			Metadata:  transport.WithDigest(req.Metadata, digest),
		})
	})
	if err != nil {
		if !s.interrupted() {
			s.fail(objerrors.NewObjectError("completeUpload", req.Container, req.Key, err))
		}
		c.failUpload(s, req, uploadID)
		return
	}

	result := completedDescriptor(desc, req, s.plan.TotalSize, digest)
	c.end(s, objtypes.SessionComplete, result, nil, req.Progress)
}

func (c *Coordinator) uploadChunk(s *Session, req UploadRequest, uploadID string, job uploadJob) {
	ch := job.chunk
	digest := ch.snapshot().Digest
	err := c.process(s, ch, "UploadPart", func(ctx context.Context) error {
		res, err := c.transport.UploadPart(ctx, transport.UploadPartRequest{
			Container:  req.Container,
			Key:        req.Key,
			UploadID:   uploadID,
			PartNumber: ch.desc.Index + 1,
			Body:       job.body,
			Checksum:   digest,
		})
		if err != nil {
			return err
		}
		ch.part = *res
		if ch.part.PartNumber == 0 {
			ch.part.PartNumber = ch.desc.Index + 1
		}
		return nil
	})
	if err != nil {
		if !s.interrupted() {
			s.fail(objerrors.NewObjectError("uploadPart", req.Container, req.Key, err).
				WithMessage(fmt.Sprintf("chunk %d", ch.desc.Index)))
		}
		return
	}
	c.reportProgress(s, ch.desc.Length, req.Progress)
}

// failUpload aborts the multipart upload and ends the session with the
// primary error. The cleanup outcome is attached without masking it.
func (c *Coordinator) failUpload(s *Session, req UploadRequest, uploadID string) {
	state, primary := s.outcome()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), cleanupTimeout)
	defer cancel()
	cleanupErr := c.retry.Execute(ctx, "AbortMultipartUpload", func(ctx context.Context) error {
		return c.transport.AbortMultipartUpload(ctx, req.Container, req.Key, uploadID)
	})
	if cleanupErr != nil {
		s.logger.WarnContext(ctx, "failed to abort multipart upload",
			"upload_id", uploadID,
			"error", cleanupErr,
		)
	}

	var e *objerrors.Error
	if !errors.As(primary, &e) || e.Container == "" {
		e = objerrors.NewObjectError("upload", req.Container, req.Key, primary)
	}
	c.end(s, state, nil, e.WithCleanup(cleanupErr), req.Progress)
}

func sourceError(req UploadRequest, ch *chunk, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return objerrors.NewObjectError("upload", req.Container, req.Key, objerrors.ErrStreamTruncated).
			WithMessage(fmt.Sprintf("source ended inside chunk %d; declared size %d", ch.desc.Index, req.Size))
	}
	return objerrors.NewObjectError("upload", req.Container, req.Key, fmt.Errorf("read source: %w", err))
}

// sourceDrained fails when the source still has bytes after the planned size,
// so a short declared size never commits a truncated object.
func sourceDrained(req UploadRequest) error {
	var extra [1]byte
	n, err := io.ReadFull(req.Source, extra[:])
	switch {
	case n > 0:
		return objerrors.NewObjectError("upload", req.Container, req.Key, objerrors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("source longer than declared size %d", req.Size))
	case errors.Is(err, io.EOF):
		return nil
	default:
		return objerrors.NewObjectError("upload", req.Container, req.Key, fmt.Errorf("read source: %w", err))
	}
}

func completedDescriptor(desc *objtypes.ObjectDescriptor, req UploadRequest, size int64, digest objtypes.Digest) *objtypes.ObjectDescriptor {
	out := objtypes.ObjectDescriptor{}
	if desc != nil {
		out = *desc
	}
	out.Container = req.Container
	out.Key = req.Key
	out.Size = size
	out.Digest = digest
	if out.ContentType == "" {
		out.ContentType = req.ContentType
	}
	if out.Metadata == nil && len(req.Metadata) > 0 {
		out.Metadata = req.Metadata
	}
	return &out
}
