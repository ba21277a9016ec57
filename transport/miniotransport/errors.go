package miniotransport

import (
	"net/http"

	"github.com/minio/minio-go/v7"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
)

// translateError maps a minio error response onto the objstore taxonomy.
func translateError(op, container, key string, err error) error {
	if err == nil {
		return nil
	}

	resp := minio.ToErrorResponse(err)
	var sentinel error
	switch resp.Code {
	case "NoSuchBucket", "NoSuchKey", "NotFound":
		sentinel = objerrors.ErrNotFound
	case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
		sentinel = objerrors.ErrAlreadyExists
	case "BucketNotEmpty":
		sentinel = objerrors.ErrContainerNotEmpty
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		sentinel = objerrors.ErrAccessDenied
	case "BadDigest", "XAmzContentSHA256Mismatch", "InvalidDigest":
		sentinel = objerrors.ErrChecksumMismatch
	case "InvalidBucketName":
		sentinel = objerrors.ErrInvalidContainerName
	}
	if sentinel == nil {
		switch resp.StatusCode {
		case http.StatusNotFound:
			sentinel = objerrors.ErrNotFound
		case http.StatusForbidden:
			sentinel = objerrors.ErrAccessDenied
		}
	}
	if sentinel != nil {
		return objerrors.NewObjectError(op, container, key, sentinel).WithMessage(err.Error())
	}

	return objerrors.NewObjectError(op, container, key, &objerrors.TransportError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Code:       resp.Code,
		Err:        err,
	})
}
