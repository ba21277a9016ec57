// Package s3transport implements transport.Transport on Amazon S3 and
// S3-compatible services using aws-sdk-go-v2.
//
// Part checksums are sent to S3 (CRC32C or SHA-256) so the service rejects
// corrupted parts. The whole-object digest is stored as the user metadata
// entry "objstore-digest" when it is known at CreateMultipartUpload time,
// because S3 cannot change metadata when a multipart upload completes.
package s3transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport"
)

// MinPartSize is the smallest part S3 accepts for every part but the last.
const MinPartSize int64 = 5 << 20

// Transport implements transport.Transport on S3.
//
// Thread Safety: a Transport is safe for concurrent use; the SDK client is.
type Transport struct {
	client      S3API
	region      string
	minPartSize int64
}

var (
	_ transport.Transport       = (*Transport)(nil)
	_ transport.PartSizeLimiter = (*Transport)(nil)
)

// New creates a Transport around an S3 client.
func New(client S3API, opts ...Option) *Transport {
	t := &Transport{
		client:      client,
		minPartSize: MinPartSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MinPartSize implements transport.PartSizeLimiter.
func (t *Transport) MinPartSize() int64 {
	return t.minPartSize
}

// CreateContainer implements transport.Transport.
func (t *Transport) CreateContainer(ctx context.Context, name string) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	// us-east-1 rejects an explicit location constraint
	if t.region != "" && t.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(t.region),
		}
	}
	_, err := t.client.CreateBucket(ctx, input)
	return convertAWSError("CreateBucket", name, "", err)
}

// HeadContainer implements transport.Transport. S3 does not report a creation date here.
func (t *Transport) HeadContainer(ctx context.Context, name string) (*objtypes.Container, error) {
	if _, err := t.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)}); err != nil {
		return nil, convertAWSError("HeadBucket", name, "", err)
	}
	return &objtypes.Container{Name: name, State: objtypes.ContainerPresent}, nil
}

// DeleteContainer implements transport.Transport.
func (t *Transport) DeleteContainer(ctx context.Context, name string) error {
	_, err := t.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
	return convertAWSError("DeleteBucket", name, "", err)
}

// ListObjects implements transport.Transport.
func (t *Transport) ListObjects(ctx context.Context, req transport.ListRequest) (*transport.ListPage, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(req.Container)}
	if req.Prefix != "" {
		input.Prefix = aws.String(req.Prefix)
	}
	if req.Token != "" {
		input.ContinuationToken = aws.String(req.Token)
	}
	if req.PageSize > 0 {
		input.MaxKeys = aws.Int32(int32(min(req.PageSize, 1000)))
	}

	out, err := t.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, convertAWSError("ListObjectsV2", req.Container, "", err)
	}

	page := &transport.ListPage{Objects: make([]objtypes.ObjectDescriptor, 0, len(out.Contents))}
	for _, obj := range out.Contents {
		page.Objects = append(page.Objects, objtypes.ObjectDescriptor{
			Container:    req.Container,
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         aws.ToString(obj.ETag),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

// HeadObject implements transport.Transport.
func (t *Transport) HeadObject(ctx context.Context, container, key string) (*objtypes.ObjectDescriptor, error) {
	out, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, convertAWSError("HeadObject", container, key, err)
	}
	return &objtypes.ObjectDescriptor{
		Container:    container,
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		Digest:       transport.MetadataDigest(out.Metadata),
		ETag:         aws.ToString(out.ETag),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
		Metadata:     out.Metadata,
	}, nil
}

// GetObjectRange implements transport.Transport.
func (t *Transport) GetObjectRange(ctx context.Context, container, key string, offset, length int64) (io.ReadCloser, error) {
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)),
	})
	if err != nil {
		return nil, convertAWSError("GetObject", container, key, err)
	}
	return out.Body, nil
}

// DeleteObject implements transport.Transport. S3 reports success for missing keys.
func (t *Transport) DeleteObject(ctx context.Context, container, key string) error {
	_, err := t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	return convertAWSError("DeleteObject", container, key, err)
}

// CreateMultipartUpload implements transport.Transport.
func (t *Transport) CreateMultipartUpload(ctx context.Context, req transport.CreateMultipartRequest) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(req.Container),
		Key:      aws.String(req.Key),
		Metadata: req.Metadata,
	}
	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}
	if alg, ok := checksumAlgorithm(req.ChecksumAlgorithm); ok {
		input.ChecksumAlgorithm = alg
	}

	out, err := t.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", convertAWSError("CreateMultipartUpload", req.Container, req.Key, err)
	}
	if aws.ToString(out.UploadId) == "" {
		return "", objerrors.NewObjectError("CreateMultipartUpload", req.Container, req.Key,
			&objerrors.TransportError{Op: "CreateMultipartUpload", StatusCode: http.StatusInternalServerError, Err: fmt.Errorf("empty upload id")})
	}
	return aws.ToString(out.UploadId), nil
}

// UploadPart implements transport.Transport.
func (t *Transport) UploadPart(ctx context.Context, req transport.UploadPartRequest) (*transport.PartResult, error) {
	input := &s3.UploadPartInput{
		Bucket:        aws.String(req.Container),
		Key:           aws.String(req.Key),
		UploadId:      aws.String(req.UploadID),
		PartNumber:    aws.Int32(int32(req.PartNumber)),
		Body:          bytes.NewReader(req.Body),
		ContentLength: aws.Int64(int64(len(req.Body))),
	}
	if alg, ok := checksumAlgorithm(req.Checksum.Algorithm); ok && !req.Checksum.IsZero() {
		input.ChecksumAlgorithm = alg
		encoded := base64.StdEncoding.EncodeToString(req.Checksum.Sum)
		switch alg {
		case types.ChecksumAlgorithmCrc32c:
			input.ChecksumCRC32C = aws.String(encoded)
		case types.ChecksumAlgorithmSha256:
			input.ChecksumSHA256 = aws.String(encoded)
		}
	}

	out, err := t.client.UploadPart(ctx, input)
	if err != nil {
		return nil, convertAWSError("UploadPart", req.Container, req.Key, err)
	}
	return &transport.PartResult{
		PartNumber: req.PartNumber,
		ETag:       aws.ToString(out.ETag),
		Checksum:   req.Checksum,
	}, nil
}

// CompleteMultipartUpload implements transport.Transport. req.Metadata is
// not applied; S3 fixes metadata when the upload is created.
func (t *Transport) CompleteMultipartUpload(ctx context.Context, req transport.CompleteMultipartRequest) (*objtypes.ObjectDescriptor, error) {
	parts := make([]types.CompletedPart, len(req.Parts))
	for i, p := range req.Parts {
		parts[i] = types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(int32(p.PartNumber)),
		}
		if p.Checksum.IsZero() {
			continue
		}
		encoded := base64.StdEncoding.EncodeToString(p.Checksum.Sum)
		switch p.Checksum.Algorithm {
		case objtypes.ChecksumCRC32C:
			parts[i].ChecksumCRC32C = aws.String(encoded)
		case objtypes.ChecksumSHA256:
			parts[i].ChecksumSHA256 = aws.String(encoded)
		}
	}

	out, err := t.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(req.Container),
		Key:             aws.String(req.Key),
		UploadId:        aws.String(req.UploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return nil, convertAWSError("CompleteMultipartUpload", req.Container, req.Key, err)
	}
	return &objtypes.ObjectDescriptor{
		Container: req.Container,
		Key:       req.Key,
		Size:      req.Size,
		Digest:    req.Digest,
		ETag:      aws.ToString(out.ETag),
	}, nil
}

// AbortMultipartUpload implements transport.Transport. An upload that is already gone is not an error.
func (t *Transport) AbortMultipartUpload(ctx context.Context, container, key, uploadID string) error {
	_, err := t.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(container),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		var noSuchUpload *types.NoSuchUpload
		if errors.As(err, &noSuchUpload) {
			return nil
		}
		return convertAWSError("AbortMultipartUpload", container, key, err)
	}
	return nil
}

// checksumAlgorithm maps a part checksum algorithm onto one S3 can verify.
func checksumAlgorithm(alg objtypes.ChecksumAlgorithm) (types.ChecksumAlgorithm, bool) {
	switch alg {
	case objtypes.ChecksumCRC32C:
		return types.ChecksumAlgorithmCrc32c, true
	case objtypes.ChecksumSHA256:
		return types.ChecksumAlgorithmSha256, true
	default:
		return "", false
	}
}
