// Package storjtransport implements transport.Transport on the Storj
// decentralized network using storj.io/uplink.
//
// Storj only accepts custom metadata when an upload is committed, so the
// content type given at CreateMultipartUpload is held until commit and stored
// with the user metadata under "content-type".
package storjtransport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"storj.io/uplink"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport"
)

// MinPartSize is the smallest part accepted for every part but the last.
const MinPartSize int64 = 5 << 20

// contentTypeKey is the custom metadata key holding the object's MIME type.
const contentTypeKey = "content-type"

// Transport implements transport.Transport on a Storj project.
type Transport struct {
	project Project

	// uploadID -> metadata held until commit
	pending sync.Map
}

type pendingUpload struct {
	contentType string
	metadata    map[string]string
}

var (
	_ transport.Transport       = (*Transport)(nil)
	_ transport.PartSizeLimiter = (*Transport)(nil)
)

// New creates a Transport around an open project.
func New(project Project) *Transport {
	return &Transport{project: project}
}

// NewFromAccessGrant opens the project granted by a serialized access grant.
func NewFromAccessGrant(ctx context.Context, accessGrant string) (*Transport, error) {
	if accessGrant == "" {
		return nil, objerrors.NewError("storj client initialization", objerrors.ErrInvalidInput).
			WithMessage("access grant is required")
	}
	project, err := OpenProject(ctx, accessGrant)
	if err != nil {
		return nil, objerrors.NewError("storj client initialization", err)
	}
	return New(project), nil
}

// Close closes the underlying project.
func (t *Transport) Close() error {
	return t.project.Close()
}

// MinPartSize implements transport.PartSizeLimiter.
func (t *Transport) MinPartSize() int64 {
	return MinPartSize
}

// CreateContainer implements transport.Transport.
func (t *Transport) CreateContainer(ctx context.Context, name string) error {
	_, err := t.project.CreateBucket(ctx, name)
	return translateError("CreateBucket", name, "", err)
}

// HeadContainer implements transport.Transport.
func (t *Transport) HeadContainer(ctx context.Context, name string) (*objtypes.Container, error) {
	b, err := t.project.StatBucket(ctx, name)
	if err != nil {
		return nil, translateError("StatBucket", name, "", err)
	}
	return &objtypes.Container{Name: b.Name, CreatedAt: b.Created, State: objtypes.ContainerPresent}, nil
}

// DeleteContainer implements transport.Transport.
func (t *Transport) DeleteContainer(ctx context.Context, name string) error {
	_, err := t.project.DeleteBucket(ctx, name)
	return translateError("DeleteBucket", name, "", err)
}

// ListObjects implements transport.Transport.
//
// uplink only lists under prefixes that end in "/", so the listing runs under
// the prefix's directory and filters the rest. The token is the last key of
// the previous page and resumes the listing as the uplink cursor. Keys are
// not in lexicographic order when key encryption is on, so pages follow the
// satellite's order.
func (t *Transport) ListObjects(ctx context.Context, req transport.ListRequest) (*transport.ListPage, error) {
	dir := ""
	if i := strings.LastIndex(req.Prefix, "/"); i >= 0 {
		dir = req.Prefix[:i+1]
	}

	it := t.project.ListObjects(ctx, req.Container, &uplink.ListObjectsOptions{
		Prefix:    dir,
		Cursor:    strings.TrimPrefix(req.Token, dir),
		Recursive: true,
		System:    true,
		Custom:    true,
	})

	page := &transport.ListPage{}
	for it.Next() {
		obj := it.Item()
		if obj.IsPrefix || !strings.HasPrefix(obj.Key, req.Prefix) {
			continue
		}
		if req.PageSize > 0 && len(page.Objects) == req.PageSize {
			page.NextToken = page.Objects[len(page.Objects)-1].Key
			return page, nil
		}
		page.Objects = append(page.Objects, descriptor(req.Container, obj))
	}
	if err := it.Err(); err != nil {
		return nil, translateError("ListObjects", req.Container, "", err)
	}
	return page, nil
}

// HeadObject implements transport.Transport.
func (t *Transport) HeadObject(ctx context.Context, container, key string) (*objtypes.ObjectDescriptor, error) {
	obj, err := t.project.StatObject(ctx, container, key)
	if err != nil {
		return nil, translateError("StatObject", container, key, err)
	}
	d := descriptor(container, obj)
	return &d, nil
}

// GetObjectRange implements transport.Transport.
func (t *Transport) GetObjectRange(ctx context.Context, container, key string, offset, length int64) (io.ReadCloser, error) {
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	body, err := t.project.DownloadObject(ctx, container, key, &uplink.DownloadOptions{
		Offset: offset,
		Length: length,
	})
	if err != nil {
		return nil, translateError("DownloadObject", container, key, err)
	}
	return body, nil
}

// DeleteObject implements transport.Transport.
func (t *Transport) DeleteObject(ctx context.Context, container, key string) error {
	_, err := t.project.DeleteObject(ctx, container, key)
	if errors.Is(err, uplink.ErrObjectNotFound) {
		return nil
	}
	return translateError("DeleteObject", container, key, err)
}

// CreateMultipartUpload implements transport.Transport.
func (t *Transport) CreateMultipartUpload(ctx context.Context, req transport.CreateMultipartRequest) (string, error) {
	info, err := t.project.BeginUpload(ctx, req.Container, req.Key, nil)
	if err != nil {
		return "", translateError("BeginUpload", req.Container, req.Key, err)
	}
	t.pending.Store(info.UploadID, pendingUpload{contentType: req.ContentType, metadata: req.Metadata})
	return info.UploadID, nil
}

// UploadPart implements transport.Transport. The part digest is recorded as
// the part's ETag; uplink verifies data integrity itself.
func (t *Transport) UploadPart(ctx context.Context, req transport.UploadPartRequest) (*transport.PartResult, error) {
	var etag []byte
	if !req.Checksum.IsZero() {
		etag = []byte(req.Checksum.String())
	}

	part, err := t.project.UploadPart(ctx, req.Container, req.Key, req.UploadID,
		uint32(req.PartNumber), req.Body, etag) //nolint:gosec // part numbers are bounded by the planner
	if err != nil {
		return nil, translateError("UploadPart", req.Container, req.Key, err)
	}
	return &transport.PartResult{
		PartNumber: req.PartNumber,
		ETag:       string(part.ETag),
		Checksum:   req.Checksum,
	}, nil
}

// CompleteMultipartUpload implements transport.Transport. uplink commits every
// uploaded part in part-number order.
func (t *Transport) CompleteMultipartUpload(
	ctx context.Context,
	req transport.CompleteMultipartRequest,
) (*objtypes.ObjectDescriptor, error) {
	custom := transport.WithDigest(req.Metadata, req.Digest)
	if v, ok := t.pending.Load(req.UploadID); ok {
		p := v.(pendingUpload)
		for k, val := range p.metadata {
			if _, set := custom[k]; !set {
				custom[k] = val
			}
		}
		if p.contentType != "" {
			custom[contentTypeKey] = p.contentType
		}
	}

	obj, err := t.project.CommitUpload(ctx, req.Container, req.Key, req.UploadID, &uplink.CommitUploadOptions{
		CustomMetadata: uplink.CustomMetadata(custom),
	})
	if err != nil {
		return nil, translateError("CommitUpload", req.Container, req.Key, err)
	}
	t.pending.Delete(req.UploadID)

	d := descriptor(req.Container, obj)
	if d.Size == 0 {
		d.Size = req.Size
	}
	return &d, nil
}

// AbortMultipartUpload implements transport.Transport.
func (t *Transport) AbortMultipartUpload(ctx context.Context, container, key, uploadID string) error {
	t.pending.Delete(uploadID)
	err := t.project.AbortUpload(ctx, container, key, uploadID)
	if errors.Is(err, uplink.ErrUploadIDInvalid) || errors.Is(err, uplink.ErrObjectNotFound) {
		return nil
	}
	return translateError("AbortUpload", container, key, err)
}

func descriptor(container string, obj *uplink.Object) objtypes.ObjectDescriptor {
	md := map[string]string(obj.Custom)
	return objtypes.ObjectDescriptor{
		Container:    container,
		Key:          obj.Key,
		Size:         obj.System.ContentLength,
		Digest:       transport.MetadataDigest(md),
		ContentType:  md[contentTypeKey],
		LastModified: obj.System.Created,
		Metadata:     md,
	}
}
