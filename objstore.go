package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"iter"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/transfer"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
)

// DefaultContentType is used when no content type is given and none can be detected.
const DefaultContentType = "application/octet-stream"

// sniffLen is how many leading bytes are inspected to detect a content type.
const sniffLen = 512

// CreateContainer creates a container. Creating a container that already
// exists succeeds.
func (c *Client) CreateContainer(ctx context.Context, name string) error {
	return c.containers.CreateContainer(ctx, name)
}

// DeleteContainer deletes a container.
//
// Errors:
//   - ErrNotFound: the container does not exist (unless WithIgnoreMissing)
//   - ErrContainerNotEmpty: the container holds objects (unless WithForce)
func (c *Client) DeleteContainer(ctx context.Context, name string, opts ...objtypes.DeleteContainerOption) error {
	cfg := objtypes.DeleteContainerOptionConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return c.containers.DeleteContainer(ctx, name, cfg)
}

// ContainerExists reports whether a container exists. Results are cached
// for the configured ContainerCacheTTL.
func (c *Client) ContainerExists(ctx context.Context, name string) (bool, error) {
	return c.containers.ContainerExists(ctx, name)
}

// ListObjects lists a container's objects. S3, MinIO and fs list in key
// order; Storj lists in its own order when key encryption is on. Pages are
// fetched as the sequence is consumed; an error ends the sequence.
//
// Example:
//
//	for obj, err := range client.ListObjects(ctx, "reports", objstore.WithPrefix("2024/")) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(obj.Key, obj.Size)
//	}
func (c *Client) ListObjects(
	ctx context.Context,
	container string,
	opts ...objtypes.ListOption,
) iter.Seq2[objtypes.ObjectDescriptor, error] {
	cfg := objtypes.ListOptionConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return c.containers.ListObjects(ctx, container, cfg)
}

// StatObject returns an object's descriptor or ErrNotFound.
func (c *Client) StatObject(ctx context.Context, container, key string) (*objtypes.ObjectDescriptor, error) {
	return c.containers.StatObject(ctx, container, key)
}

// DeleteObject deletes an object. Deleting a missing object succeeds.
func (c *Client) DeleteObject(ctx context.Context, container, key string) error {
	return c.containers.DeleteObject(ctx, container, key)
}

// UploadObject uploads src as container/key and returns the committed
// object's descriptor. The object becomes visible only once every chunk is
// stored and the digest checks pass; on failure nothing is committed.
//
// The size is taken from WithSize, or from src when it has a Len, Size or
// Stat method or is an io.Seeker. The content type is taken from
// WithContentType, then the key's extension, then the leading bytes of src.
//
// Errors:
//   - ErrInvalidInput: invalid names, metadata, or an unknown source size
//   - ErrStreamTruncated: src ended before the declared size
//   - ErrChecksumMismatch: the digest did not match WithExpectedDigest
//   - ErrRetryExhausted: a chunk failed on every attempt
//   - ErrAborted, ErrDeadlineExceeded: the upload was cancelled or ran out of time
func (c *Client) UploadObject(
	ctx context.Context,
	container, key string,
	src io.Reader,
	opts ...objtypes.TransferOption,
) (*objtypes.ObjectDescriptor, error) {
	h, err := c.StartUpload(ctx, container, key, src, opts...)
	if err != nil {
		return nil, err
	}
	// cancelling ctx aborts the session; wait for its cleanup to finish
	return h.Wait(context.WithoutCancel(ctx))
}

// StartUpload starts an upload and returns its handle without waiting.
// Cancelling ctx aborts the upload.
func (c *Client) StartUpload(
	ctx context.Context,
	container, key string,
	src io.Reader,
	opts ...objtypes.TransferOption,
) (*Handle, error) {
	cfg := transferConfig(opts)
	if err := validateUpload(container, key, src, cfg); err != nil {
		return nil, err
	}

	size, err := sourceSize(src, cfg.Size)
	if err != nil {
		return nil, objerrors.NewObjectError("upload", container, key, err)
	}
	contentType, src, err := detectContentType(key, src, size, cfg.ContentType)
	if err != nil {
		return nil, objerrors.NewObjectError("upload", container, key, err)
	}

	return c.transfers.StartUpload(ctx, transfer.UploadRequest{
		Container:      container,
		Key:            key,
		Source:         src,
		Size:           size,
		ContentType:    contentType,
		Metadata:       cfg.Metadata,
		ExpectedDigest: cfg.ExpectedDigest,
		ChunkSize:      cfg.ChunkSize,
		Parallelism:    cfg.Parallelism,
		Progress:       cfg.ProgressTracker,
	})
}

// DownloadObject writes container/key to dst in order. Bytes reach dst as
// chunks arrive, so on a digest mismatch dst already holds the data and
// the error is ErrChecksumMismatch; DownloadFile avoids this by writing to
// a temporary file first.
func (c *Client) DownloadObject(
	ctx context.Context,
	container, key string,
	dst io.Writer,
	opts ...objtypes.TransferOption,
) error {
	h, err := c.StartDownload(ctx, container, key, dst, opts...)
	if err != nil {
		return err
	}
	_, err = h.Wait(context.WithoutCancel(ctx))
	return err
}

// StartDownload starts a download and returns its handle without waiting.
// Lookup errors such as ErrNotFound are returned directly.
func (c *Client) StartDownload(
	ctx context.Context,
	container, key string,
	dst io.Writer,
	opts ...objtypes.TransferOption,
) (*Handle, error) {
	cfg := transferConfig(opts)
	if err := validateObject("download", container, key); err != nil {
		return nil, err
	}
	if dst == nil {
		return nil, objerrors.NewObjectError("download", container, key, objerrors.ErrInvalidInput).
			WithMessage("destination writer cannot be nil")
	}

	return c.transfers.StartDownload(ctx, transfer.DownloadRequest{
		Container:      container,
		Key:            key,
		Sink:           dst,
		ExpectedDigest: cfg.ExpectedDigest,
		ChunkSize:      cfg.ChunkSize,
		Parallelism:    cfg.Parallelism,
		Progress:       cfg.ProgressTracker,
	})
}

func transferConfig(opts []objtypes.TransferOption) objtypes.TransferOptionConfig {
	// -1 marks an undeclared size
	cfg := objtypes.TransferOptionConfig{Size: -1}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func validateObject(op, container, key string) error {
	if err := validation.ValidateContainerName(container); err != nil {
		return objerrors.NewObjectError(op, container, key, err)
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return objerrors.NewObjectError(op, container, key, err)
	}
	return nil
}

func validateUpload(container, key string, src io.Reader, cfg objtypes.TransferOptionConfig) error {
	if err := validateObject("upload", container, key); err != nil {
		return err
	}
	if src == nil {
		return objerrors.NewObjectError("upload", container, key, objerrors.ErrInvalidInput).
			WithMessage("source reader cannot be nil")
	}
	if err := validation.ValidateMetadata(cfg.Metadata); err != nil {
		return objerrors.NewObjectError("upload", container, key, err)
	}
	if err := validation.ValidateContentType(cfg.ContentType); err != nil {
		return objerrors.NewObjectError("upload", container, key, err)
	}
	if !cfg.ExpectedDigest.IsZero() && !cfg.ExpectedDigest.Algorithm.Valid() {
		return objerrors.NewObjectError("upload", container, key, objerrors.ErrInvalidInput).
			WithMessage("expected digest uses an unsupported algorithm")
	}
	return nil
}

// sourceSize returns the number of bytes src will yield from its current position.
func sourceSize(src io.Reader, declared int64) (int64, error) {
	if declared >= 0 {
		return declared, nil
	}

	switch r := src.(type) {
	case interface{ Len() int }:
		return int64(r.Len()), nil
	case io.Seeker:
		cur, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		end, err := r.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, err
		}
		if _, err := r.Seek(cur, io.SeekStart); err != nil {
			return 0, err
		}
		return end - cur, nil
	case interface{ Stat() (fs.FileInfo, error) }:
		info, err := r.Stat()
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	case interface{ Size() int64 }:
		return r.Size(), nil
	}

	return 0, objerrors.NewError("upload", objerrors.ErrInvalidInput).
		WithMessage("source size is unknown; pass WithSize")
}

// detectContentType resolves the upload's content type. When the leading
// bytes have to be sniffed, the returned reader replays them.
func detectContentType(key string, src io.Reader, size int64, explicit string) (string, io.Reader, error) {
	if explicit != "" {
		return explicit, src, nil
	}
	if ext := strings.ToLower(path.Ext(key)); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt, src, nil
		}
	}
	if size <= 0 {
		return DefaultContentType, src, nil
	}

	head := make([]byte, min(size, sniffLen))
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, err
	}
	head = head[:n]

	contentType := DefaultContentType
	if n > 0 {
		contentType = mimetype.Detect(head).String()
	}
	return contentType, io.MultiReader(bytes.NewReader(head), src), nil
}
