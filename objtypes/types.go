// Package objtypes provides shared type definitions for the objstore module.
package objtypes

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// ChecksumAlgorithm names a digest algorithm.
type ChecksumAlgorithm string

// Supported checksum algorithms
const (
	// ChecksumSHA256 is the default whole-object algorithm
	ChecksumSHA256 ChecksumAlgorithm = "sha256"

	// ChecksumCRC32C is a fast CRC (Castagnoli) used for per-chunk checks
	ChecksumCRC32C ChecksumAlgorithm = "crc32c"

	// ChecksumBLAKE3 is a fast cryptographic alternative to SHA-256
	ChecksumBLAKE3 ChecksumAlgorithm = "blake3"
)

// Valid reports whether the algorithm is supported.
func (a ChecksumAlgorithm) Valid() bool {
	switch a {
	case ChecksumSHA256, ChecksumCRC32C, ChecksumBLAKE3:
		return true
	}
	return false
}

// Digest is a checksum value tagged with its algorithm.
type Digest struct {
	Algorithm ChecksumAlgorithm
	Sum       []byte
}

// IsZero reports whether the digest carries no value.
func (d Digest) IsZero() bool {
	return d.Algorithm == "" || len(d.Sum) == 0
}

// Hex returns the hex encoding of the sum.
func (d Digest) Hex() string {
	return hex.EncodeToString(d.Sum)
}

// String renders the digest as "<algorithm>:<hex>".
func (d Digest) String() string {
	if d.IsZero() {
		return ""
	}
	return string(d.Algorithm) + ":" + d.Hex()
}

// ParseDigest parses the "<algorithm>:<hex>" form produced by Digest.String.
func ParseDigest(s string) (Digest, error) {
	alg, sum, ok := strings.Cut(s, ":")
	if !ok {
		return Digest{}, fmt.Errorf("digest %q: missing algorithm prefix", s)
	}
	a := ChecksumAlgorithm(strings.ToLower(alg))
	if !a.Valid() {
		return Digest{}, fmt.Errorf("digest %q: unsupported algorithm %q", s, alg)
	}
	raw, err := hex.DecodeString(sum)
	if err != nil {
		return Digest{}, fmt.Errorf("digest %q: %w", s, err)
	}
	if len(raw) == 0 {
		return Digest{}, fmt.Errorf("digest %q: empty sum", s)
	}
	return Digest{Algorithm: a, Sum: raw}, nil
}

// DigestMetadataKey is the user metadata key under which an object's digest is stored.
const DigestMetadataKey = "objstore-digest"

// ContainerState is the client-side view of a container.
type ContainerState int

// Container states
const (
	ContainerAbsent ContainerState = iota
	ContainerPresent
)

// Container is a named namespace that holds objects.
type Container struct {
	// Name is the container name
	Name string

	// CreatedAt is when the container was created, if the backend reports it
	CreatedAt time.Time

	// State is the last observed state
	State ContainerState
}

// ObjectDescriptor describes a committed object. It is immutable once committed.
type ObjectDescriptor struct {
	// Container holds the object
	Container string

	// Key is the object key within the container
	Key string

	// Size is the object size in bytes
	Size int64

	// Digest is the whole-object digest, when known
	Digest Digest

	// ETag is the backend entity tag
	ETag string

	// ContentType is the MIME type of the object
	ContentType string

	// LastModified is when the object was committed
	LastModified time.Time

	// Metadata contains user-defined metadata
	Metadata map[string]string
}

// ChunkState is the lifecycle state of a single chunk.
type ChunkState int32

// Chunk states. Transitions only move forward, except failed -> pending on re-plan.
const (
	ChunkPending ChunkState = iota
	ChunkInFlight
	ChunkCommitted
	ChunkFailed
)

// String returns the lowercase state name.
func (s ChunkState) String() string {
	switch s {
	case ChunkPending:
		return "pending"
	case ChunkInFlight:
		return "in-flight"
	case ChunkCommitted:
		return "committed"
	case ChunkFailed:
		return "failed"
	}
	return fmt.Sprintf("ChunkState(%d)", int32(s))
}

// ChunkDescriptor is one contiguous byte range of an object being transferred.
type ChunkDescriptor struct {
	// Key is the object key the chunk belongs to
	Key string

	// Index is the zero-based chunk index
	Index int

	// Offset is the byte offset of the chunk within the object
	Offset int64

	// Length is the chunk size in bytes
	Length int64

	// Digest is the chunk digest, set once the chunk data has been seen
	Digest Digest

	// State is the chunk state at the time the descriptor was taken
	State ChunkState

	// Attempts is the number of transport attempts made for this chunk
	Attempts int
}

// SessionState is the lifecycle state of a transfer session.
type SessionState int32

// Session states
const (
	SessionPlanning SessionState = iota
	SessionTransferring
	SessionFinalizing
	SessionComplete
	SessionFailed
	SessionAborted
)

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == SessionComplete || s == SessionFailed || s == SessionAborted
}

// String returns the lowercase state name.
func (s SessionState) String() string {
	switch s {
	case SessionPlanning:
		return "planning"
	case SessionTransferring:
		return "transferring"
	case SessionFinalizing:
		return "finalizing"
	case SessionComplete:
		return "complete"
	case SessionFailed:
		return "failed"
	case SessionAborted:
		return "aborted"
	}
	return fmt.Sprintf("SessionState(%d)", int32(s))
}

// ProgressTracker defines the interface for tracking transfer progress.
// Implementations can provide real-time progress updates during uploads and downloads.
type ProgressTracker interface {
	// Update is called after each committed chunk with transfer progress
	Update(bytesTransferred, totalBytes int64)

	// Complete is called when the transfer completes successfully
	Complete()

	// Error is called when the transfer fails
	Error(err error)
}

// Default configuration values.
const (
	DefaultMaxChunkBytes     int64 = 4 << 20
	DefaultMaxParallelism          = 4
	DefaultMaxAttempts             = 5
	DefaultBaseBackoff             = 200 * time.Millisecond
	DefaultMaxBackoff              = 30 * time.Second
	DefaultContainerCacheTTL       = 10 * time.Second
	DefaultListPageSize            = 1000
)

// Configuration holds the tunables shared by every component.
type Configuration struct {
	// MaxChunkBytes is the upper bound on a single chunk
	MaxChunkBytes int64 `validate:"gt=0"`

	// MaxParallelism bounds how many chunks are in flight per session
	MaxParallelism int `validate:"gt=0,lte=1024"`

	// MaxAttempts bounds transport attempts per operation, including the first
	MaxAttempts int `validate:"gte=1,lte=100"`

	// BaseBackoff is the first retry delay before doubling
	BaseBackoff time.Duration `validate:"gt=0"`

	// MaxBackoff caps the retry delay before jitter
	MaxBackoff time.Duration `validate:"gtefield=BaseBackoff"`

	// CallTimeout bounds a single transport call; zero means none
	CallTimeout time.Duration `validate:"gte=0"`

	// SessionDeadline bounds a whole transfer; zero means none
	SessionDeadline time.Duration `validate:"gte=0"`

	// ChecksumAlgorithm is used for whole-object digests
	ChecksumAlgorithm ChecksumAlgorithm `validate:"oneof=sha256 crc32c blake3"`

	// ChunkChecksumAlgorithm is used for per-chunk digests
	ChunkChecksumAlgorithm ChecksumAlgorithm `validate:"oneof=sha256 crc32c blake3"`

	// ChunkRetryBudget is how many times a chunk that exhausted its retries
	// may be re-planned before the session fails
	ChunkRetryBudget int `validate:"gte=0"`

	// ContainerCacheTTL is how long a container existence check is trusted
	ContainerCacheTTL time.Duration `validate:"gte=0"`

	// ListPageSize is the page size requested from the backend when listing
	ListPageSize int `validate:"gt=0"`
}

// DefaultConfiguration returns the configuration used when no options are given.
func DefaultConfiguration() Configuration {
	return Configuration{
		MaxChunkBytes:          DefaultMaxChunkBytes,
		MaxParallelism:         DefaultMaxParallelism,
		MaxAttempts:            DefaultMaxAttempts,
		BaseBackoff:            DefaultBaseBackoff,
		MaxBackoff:             DefaultMaxBackoff,
		ChecksumAlgorithm:      ChecksumSHA256,
		ChunkChecksumAlgorithm: ChecksumCRC32C,
		ContainerCacheTTL:      DefaultContainerCacheTTL,
		ListPageSize:           DefaultListPageSize,
	}
}

// Configuration types for functional options

// ClientConfig holds configuration for the objstore client.
type ClientConfig struct {
	Configuration
	Logger            *slog.Logger
	MetricsRegisterer prometheus.Registerer
	Filesystem        billy.Filesystem
}

// TransferOptionConfig holds configuration for upload and download operations.
type TransferOptionConfig struct {
	ExpectedDigest  Digest
	ContentType     string
	Metadata        map[string]string
	Size            int64
	ProgressTracker ProgressTracker
	ChunkSize       int64
	Parallelism     int
}

// DeleteContainerOptionConfig holds configuration for container deletion.
type DeleteContainerOptionConfig struct {
	IgnoreMissing bool
	Force         bool
}

// ListOptionConfig holds configuration for list operations.
type ListOptionConfig struct {
	Prefix   string
	PageSize int
}

type (
	// Option is a functional option for configuring the client.
	Option func(*ClientConfig)
	// TransferOption is a functional option for configuring uploads and downloads.
	TransferOption func(*TransferOptionConfig)
	// DeleteContainerOption is a functional option for configuring container deletion.
	DeleteContainerOption func(*DeleteContainerOptionConfig)
	// ListOption is a functional option for configuring list operations.
	ListOption func(*ListOptionConfig)
)
