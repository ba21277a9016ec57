// Package miniotransport implements transport.Transport on MinIO using the
// low-level multipart primitives of minio-go's Core client.
package miniotransport

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport"
)

// MinPartSize is the smallest part MinIO accepts for every part but the last.
const MinPartSize int64 = 5 << 20

// Transport implements transport.Transport on a MinIO server.
type Transport struct {
	core   CoreAPI
	region string
}

var (
	_ transport.Transport       = (*Transport)(nil)
	_ transport.PartSizeLimiter = (*Transport)(nil)
)

// Config describes how to reach a MinIO server.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
	Secure          bool
}

// New creates a Transport around a Core client.
func New(core CoreAPI, region string) *Transport {
	return &Transport{core: core, region: region}
}

// NewFromConfig connects to the endpoint with static credentials.
func NewFromConfig(cfg Config) (*Transport, error) {
	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, objerrors.NewError("minio client initialization", err)
	}
	return New(core, cfg.Region), nil
}

// MinPartSize implements transport.PartSizeLimiter.
func (t *Transport) MinPartSize() int64 {
	return MinPartSize
}

// CreateContainer implements transport.Transport.
func (t *Transport) CreateContainer(ctx context.Context, name string) error {
	err := t.core.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: t.region})
	return translateError("MakeBucket", name, "", err)
}

// HeadContainer implements transport.Transport.
func (t *Transport) HeadContainer(ctx context.Context, name string) (*objtypes.Container, error) {
	ok, err := t.core.BucketExists(ctx, name)
	if err != nil {
		return nil, translateError("BucketExists", name, "", err)
	}
	if !ok {
		return nil, objerrors.NewContainerError("BucketExists", name, objerrors.ErrNotFound)
	}
	return &objtypes.Container{Name: name, State: objtypes.ContainerPresent}, nil
}

// DeleteContainer implements transport.Transport.
func (t *Transport) DeleteContainer(ctx context.Context, name string) error {
	return translateError("RemoveBucket", name, "", t.core.RemoveBucket(ctx, name))
}

// ListObjects implements transport.Transport. The Core listing call takes no
// context, so cancellation is only observed between pages.
func (t *Transport) ListObjects(ctx context.Context, req transport.ListRequest) (*transport.ListPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := t.core.ListObjectsV2(req.Container, req.Prefix, "", req.Token, "", req.PageSize)
	if err != nil {
		return nil, translateError("ListObjectsV2", req.Container, "", err)
	}

	page := &transport.ListPage{Objects: make([]objtypes.ObjectDescriptor, 0, len(res.Contents))}
	for _, obj := range res.Contents {
		page.Objects = append(page.Objects, objtypes.ObjectDescriptor{
			Container:    req.Container,
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         obj.ETag,
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
		})
	}
	if res.IsTruncated {
		page.NextToken = res.NextContinuationToken
	}
	return page, nil
}

// HeadObject implements transport.Transport.
func (t *Transport) HeadObject(ctx context.Context, container, key string) (*objtypes.ObjectDescriptor, error) {
	info, err := t.core.StatObject(ctx, container, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, translateError("StatObject", container, key, err)
	}
	d := descriptor(container, info)
	return &d, nil
}

// GetObjectRange implements transport.Transport.
func (t *Transport) GetObjectRange(ctx context.Context, container, key string, offset, length int64) (io.ReadCloser, error) {
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+length-1); err != nil {
		return nil, objerrors.NewObjectError("GetObject", container, key, objerrors.ErrInvalidInput).WithMessage(err.Error())
	}
	body, _, _, err := t.core.GetObject(ctx, container, key, opts)
	if err != nil {
		return nil, translateError("GetObject", container, key, err)
	}
	return body, nil
}

// DeleteObject implements transport.Transport.
func (t *Transport) DeleteObject(ctx context.Context, container, key string) error {
	err := t.core.RemoveObject(ctx, container, key, minio.RemoveObjectOptions{})
	return translateError("RemoveObject", container, key, err)
}

// CreateMultipartUpload implements transport.Transport.
func (t *Transport) CreateMultipartUpload(ctx context.Context, req transport.CreateMultipartRequest) (string, error) {
	id, err := t.core.NewMultipartUpload(ctx, req.Container, req.Key, minio.PutObjectOptions{
		ContentType:  req.ContentType,
		UserMetadata: req.Metadata,
	})
	if err != nil {
		return "", translateError("NewMultipartUpload", req.Container, req.Key, err)
	}
	return id, nil
}

// UploadPart implements transport.Transport. SHA-256 part checksums are
// sent so the server verifies the part; other algorithms are not.
func (t *Transport) UploadPart(ctx context.Context, req transport.UploadPartRequest) (*transport.PartResult, error) {
	opts := minio.PutObjectPartOptions{}
	if req.Checksum.Algorithm == objtypes.ChecksumSHA256 && !req.Checksum.IsZero() {
		opts.Sha256Hex = hex.EncodeToString(req.Checksum.Sum)
	}

	part, err := t.core.PutObjectPart(ctx, req.Container, req.Key, req.UploadID, req.PartNumber,
		bytes.NewReader(req.Body), int64(len(req.Body)), opts)
	if err != nil {
		return nil, translateError("PutObjectPart", req.Container, req.Key, err)
	}
	return &transport.PartResult{
		PartNumber: req.PartNumber,
		ETag:       part.ETag,
		Checksum:   req.Checksum,
	}, nil
}

// CompleteMultipartUpload implements transport.Transport. Metadata is fixed at creation.
func (t *Transport) CompleteMultipartUpload(ctx context.Context, req transport.CompleteMultipartRequest) (*objtypes.ObjectDescriptor, error) {
	parts := make([]minio.CompletePart, len(req.Parts))
	for i, p := range req.Parts {
		parts[i] = minio.CompletePart{PartNumber: p.PartNumber, ETag: p.ETag}
	}

	info, err := t.core.CompleteMultipartUpload(ctx, req.Container, req.Key, req.UploadID, parts, minio.PutObjectOptions{})
	if err != nil {
		return nil, translateError("CompleteMultipartUpload", req.Container, req.Key, err)
	}
	return &objtypes.ObjectDescriptor{
		Container:    req.Container,
		Key:          req.Key,
		Size:         req.Size,
		Digest:       req.Digest,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

// AbortMultipartUpload implements transport.Transport.
func (t *Transport) AbortMultipartUpload(ctx context.Context, container, key, uploadID string) error {
	err := t.core.AbortMultipartUpload(ctx, container, key, uploadID)
	if minio.ToErrorResponse(err).Code == "NoSuchUpload" {
		return nil
	}
	return translateError("AbortMultipartUpload", container, key, err)
}

func descriptor(container string, info minio.ObjectInfo) objtypes.ObjectDescriptor {
	return objtypes.ObjectDescriptor{
		Container:    container,
		Key:          info.Key,
		Size:         info.Size,
		Digest:       transport.MetadataDigest(info.UserMetadata),
		ETag:         info.ETag,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
		Metadata:     info.UserMetadata,
	}
}
