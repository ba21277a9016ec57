// Package transport defines the contract between objstore and a storage backend.
//
// A Transport signs and sends single requests. It does not retry, split or
// verify anything; those concerns belong to objstore. Implementations map
// provider failures onto objstore error sentinels (ErrNotFound,
// ErrAlreadyExists, ErrContainerNotEmpty, ErrAccessDenied,
// ErrChecksumMismatch) or onto *errors.TransportError carrying the HTTP status
// and provider error code, so that the retry policy can classify them.
package transport

import (
	"context"
	"io"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
)

// Transport is a storage backend adapter. Implementations must be safe for concurrent use.
type Transport interface {
	// CreateContainer creates a container. It returns ErrAlreadyExists if
	// the caller already owns a container with that name.
	CreateContainer(ctx context.Context, name string) error

	// HeadContainer returns ErrNotFound if the container does not exist.
	HeadContainer(ctx context.Context, name string) (*objtypes.Container, error)

	// DeleteContainer returns ErrNotFound if the container does not exist
	// and ErrContainerNotEmpty if it still holds objects.
	DeleteContainer(ctx context.Context, name string) error

	// ListObjects returns one page of objects in the backend's listing order.
	// Token resumes after the last key of the previous page.
	ListObjects(ctx context.Context, req ListRequest) (*ListPage, error)

	// HeadObject returns the object's descriptor or ErrNotFound.
	HeadObject(ctx context.Context, container, key string) (*objtypes.ObjectDescriptor, error)

	// GetObjectRange opens length bytes of the object starting at offset.
	GetObjectRange(ctx context.Context, container, key string, offset, length int64) (io.ReadCloser, error)

	// DeleteObject removes an object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, container, key string) error

	// CreateMultipartUpload starts a multipart upload and returns its id.
	CreateMultipartUpload(ctx context.Context, req CreateMultipartRequest) (string, error)

	// UploadPart stores one part. Re-sending the same part number replaces it.
	UploadPart(ctx context.Context, req UploadPartRequest) (*PartResult, error)

	// CompleteMultipartUpload assembles the parts, in the order given, into the object.
	CompleteMultipartUpload(ctx context.Context, req CompleteMultipartRequest) (*objtypes.ObjectDescriptor, error)

	// AbortMultipartUpload discards an upload and its parts. Aborting an
	// unknown upload is not an error.
	AbortMultipartUpload(ctx context.Context, container, key, uploadID string) error
}

// PartSizeLimiter is implemented by transports that reject small non-final parts.
type PartSizeLimiter interface {
	MinPartSize() int64
}

// ListRequest selects one page of a listing.
type ListRequest struct {
	Container string
	Prefix    string
	// Token is the opaque continuation token from the previous page; empty starts from the beginning
	Token    string
	PageSize int
}

// ListPage is one page of a listing.
type ListPage struct {
	Objects []objtypes.ObjectDescriptor
	// NextToken is empty on the last page
	NextToken string
}

// CreateMultipartRequest starts an upload.
type CreateMultipartRequest struct {
	Container   string
	Key         string
	ContentType string
	Metadata    map[string]string
	// ChecksumAlgorithm is the algorithm of the per-part digests that will be sent
	ChecksumAlgorithm objtypes.ChecksumAlgorithm
}

// UploadPartRequest carries one part's bytes.
type UploadPartRequest struct {
	Container string
	Key       string
	UploadID  string
	// PartNumber is the 1-based part number (chunk index + 1)
	PartNumber int
	Body       []byte
	// Checksum is the digest of Body; transports that can verify it server-side should
	Checksum objtypes.Digest
}

// PartResult identifies a stored part.
type PartResult struct {
	PartNumber int
	ETag       string
	Checksum   objtypes.Digest
}

// CompleteMultipartRequest commits an upload.
type CompleteMultipartRequest struct {
	Container string
	Key       string
	UploadID  string
	// Parts in ascending part-number order
	Parts []PartResult
	// Size is the total object size
	Size int64
	// Digest is the whole-object digest computed while uploading
	Digest objtypes.Digest
	// Metadata is applied at commit by transports that only accept metadata there
	Metadata map[string]string
}

// MetadataDigest extracts the digest stored under objtypes.DigestMetadataKey.
// Header-style keys ("Objstore-Digest", "X-Amz-Meta-Objstore-Digest") are
// matched case-insensitively. A missing or malformed value yields a zero Digest.
func MetadataDigest(md map[string]string) objtypes.Digest {
	for k, v := range md {
		k = strings.ToLower(k)
		if k == objtypes.DigestMetadataKey || k == "x-amz-meta-"+objtypes.DigestMetadataKey {
			d, err := objtypes.ParseDigest(v)
			if err != nil {
				return objtypes.Digest{}
			}
			return d
		}
	}
	return objtypes.Digest{}
}

// WithDigest returns a copy of md with d stored under objtypes.DigestMetadataKey.
func WithDigest(md map[string]string, d objtypes.Digest) map[string]string {
	out := make(map[string]string, len(md)+1)
	for k, v := range md {
		out[k] = v
	}
	if !d.IsZero() {
		out[objtypes.DigestMetadataKey] = d.String()
	}
	return out
}
