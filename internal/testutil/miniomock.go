package testutil

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
)

// MockMinioCore is a mock of the minio Core API used by miniotransport.
// An unset function field returns a zero value and no error.
type MockMinioCore struct {
	MakeBucketFunc              func(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	BucketExistsFunc            func(ctx context.Context, bucket string) (bool, error)
	RemoveBucketFunc            func(ctx context.Context, bucket string) error
	ListObjectsV2Func           func(bucket, prefix, startAfter, token, delimiter string, maxKeys int) (minio.ListBucketV2Result, error)
	StatObjectFunc              func(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObjectFunc               func(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	RemoveObjectFunc            func(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	NewMultipartUploadFunc      func(ctx context.Context, bucket, key string, opts minio.PutObjectOptions) (string, error)
	PutObjectPartFunc           func(ctx context.Context, bucket, key, uploadID string, part int, data io.Reader, size int64, opts minio.PutObjectPartOptions) (minio.ObjectPart, error)
	CompleteMultipartUploadFunc func(ctx context.Context, bucket, key, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	AbortMultipartUploadFunc    func(ctx context.Context, bucket, key, uploadID string) error
}

// MakeBucket mocks Client.MakeBucket.
func (m *MockMinioCore) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	if m.MakeBucketFunc != nil {
		return m.MakeBucketFunc(ctx, bucket, opts)
	}
	return nil
}

// BucketExists mocks Client.BucketExists. It reports true when unset.
func (m *MockMinioCore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if m.BucketExistsFunc != nil {
		return m.BucketExistsFunc(ctx, bucket)
	}
	return true, nil
}

// RemoveBucket mocks Client.RemoveBucket.
func (m *MockMinioCore) RemoveBucket(ctx context.Context, bucket string) error {
	if m.RemoveBucketFunc != nil {
		return m.RemoveBucketFunc(ctx, bucket)
	}
	return nil
}

// ListObjectsV2 mocks Core.ListObjectsV2. It returns an empty page when unset.
func (m *MockMinioCore) ListObjectsV2(
	bucket, prefix, startAfter, token, delimiter string,
	maxKeys int,
) (minio.ListBucketV2Result, error) {
	if m.ListObjectsV2Func != nil {
		return m.ListObjectsV2Func(bucket, prefix, startAfter, token, delimiter, maxKeys)
	}
	return minio.ListBucketV2Result{Name: bucket}, nil
}

// StatObject mocks Client.StatObject.
func (m *MockMinioCore) StatObject(
	ctx context.Context,
	bucket, key string,
	opts minio.StatObjectOptions,
) (minio.ObjectInfo, error) {
	if m.StatObjectFunc != nil {
		return m.StatObjectFunc(ctx, bucket, key, opts)
	}
	return minio.ObjectInfo{Key: key}, nil
}

// GetObject mocks Core.GetObject.
func (m *MockMinioCore) GetObject(
	ctx context.Context,
	bucket, key string,
	opts minio.GetObjectOptions,
) (io.ReadCloser, minio.ObjectInfo, http.Header, error) {
	if m.GetObjectFunc != nil {
		body, err := m.GetObjectFunc(ctx, bucket, key, opts)
		return body, minio.ObjectInfo{}, nil, err
	}
	return io.NopCloser(bytes.NewReader(nil)), minio.ObjectInfo{}, nil, nil
}

// RemoveObject mocks Client.RemoveObject.
func (m *MockMinioCore) RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error {
	if m.RemoveObjectFunc != nil {
		return m.RemoveObjectFunc(ctx, bucket, key, opts)
	}
	return nil
}

// NewMultipartUpload mocks Core.NewMultipartUpload.
func (m *MockMinioCore) NewMultipartUpload(
	ctx context.Context,
	bucket, key string,
	opts minio.PutObjectOptions,
) (string, error) {
	if m.NewMultipartUploadFunc != nil {
		return m.NewMultipartUploadFunc(ctx, bucket, key, opts)
	}
	return "upload-id", nil
}

// PutObjectPart mocks Core.PutObjectPart.
func (m *MockMinioCore) PutObjectPart(
	ctx context.Context,
	bucket, key, uploadID string,
	part int,
	data io.Reader,
	size int64,
	opts minio.PutObjectPartOptions,
) (minio.ObjectPart, error) {
	if m.PutObjectPartFunc != nil {
		return m.PutObjectPartFunc(ctx, bucket, key, uploadID, part, data, size, opts)
	}
	return minio.ObjectPart{PartNumber: part, Size: size}, nil
}

// CompleteMultipartUpload mocks Core.CompleteMultipartUpload.
func (m *MockMinioCore) CompleteMultipartUpload(
	ctx context.Context,
	bucket, key, uploadID string,
	parts []minio.CompletePart,
	opts minio.PutObjectOptions,
) (minio.UploadInfo, error) {
	if m.CompleteMultipartUploadFunc != nil {
		return m.CompleteMultipartUploadFunc(ctx, bucket, key, uploadID, parts, opts)
	}
	return minio.UploadInfo{Bucket: bucket, Key: key}, nil
}

// AbortMultipartUpload mocks Core.AbortMultipartUpload.
func (m *MockMinioCore) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	if m.AbortMultipartUploadFunc != nil {
		return m.AbortMultipartUploadFunc(ctx, bucket, key, uploadID)
	}
	return nil
}
