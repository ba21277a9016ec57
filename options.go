package objstore

import (
	"log/slog"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
)

// Client options

// WithLogger sets the structured logger. The default discards all output.
func WithLogger(logger *slog.Logger) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.Logger = logger
	}
}

// WithMetricsRegisterer registers the client's Prometheus collectors on reg.
// Without it no metrics are recorded.
func WithMetricsRegisterer(reg prometheus.Registerer) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.MetricsRegisterer = reg
	}
}

// WithFilesystem sets the filesystem used by UploadFile and DownloadFile.
// The default is the host filesystem with paths used as given.
func WithFilesystem(fs billy.Filesystem) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.Filesystem = fs
	}
}

// WithConfiguration replaces every tunable at once.
func WithConfiguration(cfg objtypes.Configuration) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.Configuration = cfg
	}
}

// WithMaxChunkBytes sets the upper bound on a chunk. Default is 4 MiB.
func WithMaxChunkBytes(n int64) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.MaxChunkBytes = n
	}
}

// WithMaxParallelism sets how many chunks of one transfer may be in flight. Default is 4.
func WithMaxParallelism(n int) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.MaxParallelism = n
	}
}

// WithMaxAttempts sets the attempts per transport call, including the first. Default is 5.
func WithMaxAttempts(n int) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.MaxAttempts = n
	}
}

// WithBackoff sets the first retry delay and the cap on the exponential delay.
// Defaults are 200ms and 30s.
func WithBackoff(base, maxDelay time.Duration) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.BaseBackoff = base
		c.MaxBackoff = maxDelay
	}
}

// WithCallTimeout bounds each transport call. Zero disables the bound.
func WithCallTimeout(d time.Duration) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.CallTimeout = d
	}
}

// WithSessionDeadline bounds a whole upload or download. Zero disables the bound.
func WithSessionDeadline(d time.Duration) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.SessionDeadline = d
	}
}

// WithChecksumAlgorithm sets the whole-object digest algorithm. Default is sha256.
func WithChecksumAlgorithm(alg objtypes.ChecksumAlgorithm) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.ChecksumAlgorithm = alg
	}
}

// WithChunkChecksumAlgorithm sets the per-chunk digest algorithm. Default is crc32c.
func WithChunkChecksumAlgorithm(alg objtypes.ChecksumAlgorithm) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.ChunkChecksumAlgorithm = alg
	}
}

// WithChunkRetryBudget sets how many times a chunk that exhausted its
// attempts may be re-planned before the transfer fails. Default is 0.
func WithChunkRetryBudget(n int) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.ChunkRetryBudget = n
	}
}

// WithContainerCacheTTL sets how long ContainerExists results are cached.
// Zero disables the cache.
func WithContainerCacheTTL(d time.Duration) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.ContainerCacheTTL = d
	}
}

// WithListPageSize sets the default listing page size. Default is 1000.
func WithListPageSize(n int) objtypes.Option {
	return func(c *objtypes.ClientConfig) {
		c.ListPageSize = n
	}
}

// Transfer options

// WithExpectedDigest makes the transfer fail with ErrChecksumMismatch unless
// the object's digest equals d. On upload the object is never committed on a
// mismatch; on download it overrides the digest stored with the object.
func WithExpectedDigest(d objtypes.Digest) objtypes.TransferOption {
	return func(c *objtypes.TransferOptionConfig) {
		c.ExpectedDigest = d
	}
}

// WithContentType sets the object's MIME type on upload.
func WithContentType(contentType string) objtypes.TransferOption {
	return func(c *objtypes.TransferOptionConfig) {
		c.ContentType = contentType
	}
}

// WithMetadata attaches user metadata on upload.
func WithMetadata(metadata map[string]string) objtypes.TransferOption {
	return func(c *objtypes.TransferOptionConfig) {
		c.Metadata = metadata
	}
}

// WithSize declares the exact number of bytes the upload source yields.
// It is required when the size cannot be taken from the reader.
func WithSize(n int64) objtypes.TransferOption {
	return func(c *objtypes.TransferOptionConfig) {
		c.Size = n
	}
}

// WithProgress reports progress after every committed chunk.
func WithProgress(tracker objtypes.ProgressTracker) objtypes.TransferOption {
	return func(c *objtypes.TransferOptionConfig) {
		c.ProgressTracker = tracker
	}
}

// WithChunkSize overrides the chunk size for one transfer.
func WithChunkSize(n int64) objtypes.TransferOption {
	return func(c *objtypes.TransferOptionConfig) {
		c.ChunkSize = n
	}
}

// WithParallelism overrides the parallelism for one transfer.
func WithParallelism(n int) objtypes.TransferOption {
	return func(c *objtypes.TransferOptionConfig) {
		c.Parallelism = n
	}
}

// DeleteContainer options

// WithIgnoreMissing makes deleting a missing container succeed.
func WithIgnoreMissing() objtypes.DeleteContainerOption {
	return func(c *objtypes.DeleteContainerOptionConfig) {
		c.IgnoreMissing = true
	}
}

// WithForce deletes every object in the container before deleting it.
func WithForce() objtypes.DeleteContainerOption {
	return func(c *objtypes.DeleteContainerOptionConfig) {
		c.Force = true
	}
}

// List options

// WithPrefix limits a listing to keys starting with prefix.
func WithPrefix(prefix string) objtypes.ListOption {
	return func(c *objtypes.ListOptionConfig) {
		c.Prefix = prefix
	}
}

// WithPageSize overrides the page size requested from the backend.
func WithPageSize(n int) objtypes.ListOption {
	return func(c *objtypes.ListOptionConfig) {
		c.PageSize = n
	}
}
