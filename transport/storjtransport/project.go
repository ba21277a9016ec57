package storjtransport

import (
	"context"
	"io"

	"storj.io/uplink"
)

// Project is the subset of an uplink project used by the transport.
// Iterators and part uploads are flattened so that tests can fake them.
type Project interface {
	CreateBucket(ctx context.Context, bucket string) (*uplink.Bucket, error)
	StatBucket(ctx context.Context, bucket string) (*uplink.Bucket, error)
	DeleteBucket(ctx context.Context, bucket string) (*uplink.Bucket, error)
	ListObjects(ctx context.Context, bucket string, opts *uplink.ListObjectsOptions) ObjectIterator
	StatObject(ctx context.Context, bucket, key string) (*uplink.Object, error)
	DownloadObject(ctx context.Context, bucket, key string, opts *uplink.DownloadOptions) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, bucket, key string) (*uplink.Object, error)
	BeginUpload(ctx context.Context, bucket, key string, opts *uplink.UploadOptions) (uplink.UploadInfo, error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber uint32, data []byte, etag []byte) (*uplink.Part, error)
	CommitUpload(ctx context.Context, bucket, key, uploadID string, opts *uplink.CommitUploadOptions) (*uplink.Object, error)
	AbortUpload(ctx context.Context, bucket, key, uploadID string) error
	Close() error
}

// ObjectIterator is implemented by *uplink.ObjectIterator.
type ObjectIterator interface {
	Next() bool
	Item() *uplink.Object
	Err() error
}

// uplinkProject adapts *uplink.Project to Project.
type uplinkProject struct {
	p *uplink.Project
}

// OpenProject parses an access grant and opens the project it grants.
func OpenProject(ctx context.Context, accessGrant string) (Project, error) {
	access, err := uplink.ParseAccess(accessGrant)
	if err != nil {
		return nil, err
	}
	p, err := uplink.OpenProject(ctx, access)
	if err != nil {
		return nil, err
	}
	return &uplinkProject{p: p}, nil
}

func (u *uplinkProject) CreateBucket(ctx context.Context, bucket string) (*uplink.Bucket, error) {
	return u.p.CreateBucket(ctx, bucket)
}

func (u *uplinkProject) StatBucket(ctx context.Context, bucket string) (*uplink.Bucket, error) {
	return u.p.StatBucket(ctx, bucket)
}

func (u *uplinkProject) DeleteBucket(ctx context.Context, bucket string) (*uplink.Bucket, error) {
	return u.p.DeleteBucket(ctx, bucket)
}

func (u *uplinkProject) ListObjects(ctx context.Context, bucket string, opts *uplink.ListObjectsOptions) ObjectIterator {
	return u.p.ListObjects(ctx, bucket, opts)
}

func (u *uplinkProject) StatObject(ctx context.Context, bucket, key string) (*uplink.Object, error) {
	return u.p.StatObject(ctx, bucket, key)
}

func (u *uplinkProject) DownloadObject(
	ctx context.Context,
	bucket, key string,
	opts *uplink.DownloadOptions,
) (io.ReadCloser, error) {
	d, err := u.p.DownloadObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (u *uplinkProject) DeleteObject(ctx context.Context, bucket, key string) (*uplink.Object, error) {
	return u.p.DeleteObject(ctx, bucket, key)
}

func (u *uplinkProject) BeginUpload(
	ctx context.Context,
	bucket, key string,
	opts *uplink.UploadOptions,
) (uplink.UploadInfo, error) {
	return u.p.BeginUpload(ctx, bucket, key, opts)
}

func (u *uplinkProject) UploadPart(
	ctx context.Context,
	bucket, key, uploadID string,
	partNumber uint32,
	data []byte,
	etag []byte,
) (*uplink.Part, error) {
	part, err := u.p.UploadPart(ctx, bucket, key, uploadID, partNumber)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		_ = part.Abort()
		return nil, err
	}
	if err := part.SetETag(etag); err != nil {
		_ = part.Abort()
		return nil, err
	}
	if err := part.Commit(); err != nil {
		return nil, err
	}
	return part.Info(), nil
}

func (u *uplinkProject) CommitUpload(
	ctx context.Context,
	bucket, key, uploadID string,
	opts *uplink.CommitUploadOptions,
) (*uplink.Object, error) {
	return u.p.CommitUpload(ctx, bucket, key, uploadID, opts)
}

func (u *uplinkProject) AbortUpload(ctx context.Context, bucket, key, uploadID string) error {
	return u.p.AbortUpload(ctx, bucket, key, uploadID)
}

func (u *uplinkProject) Close() error {
	return u.p.Close()
}
