package s3transport

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
)

// convertAWSError maps an SDK error onto the objstore taxonomy. Known
// conditions become sentinels; everything else becomes a TransportError
// carrying the HTTP status and provider code so the retry policy can
// classify it.
func convertAWSError(op, container, key string, err error) error {
	if err == nil {
		return nil
	}

	var (
		noSuchBucket  *types.NoSuchBucket
		noSuchKey     *types.NoSuchKey
		notFound      *types.NotFound
		alreadyExists *types.BucketAlreadyExists
		alreadyOwned  *types.BucketAlreadyOwnedByYou
	)
	switch {
	case errors.As(err, &noSuchBucket), errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return objerrors.NewObjectError(op, container, key, objerrors.ErrNotFound).WithMessage(err.Error())
	case errors.As(err, &alreadyExists), errors.As(err, &alreadyOwned):
		return objerrors.NewObjectError(op, container, key, objerrors.ErrAlreadyExists).WithMessage(err.Error())
	}

	te := &objerrors.TransportError{Op: op, Err: err}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		te.Code = apiErr.ErrorCode()
		switch te.Code {
		case "NoSuchBucket", "NoSuchKey", "NotFound":
			return objerrors.NewObjectError(op, container, key, objerrors.ErrNotFound).WithMessage(apiErr.ErrorMessage())
		case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			return objerrors.NewObjectError(op, container, key, objerrors.ErrAlreadyExists).WithMessage(apiErr.ErrorMessage())
		case "BucketNotEmpty":
			return objerrors.NewObjectError(op, container, key, objerrors.ErrContainerNotEmpty).WithMessage(apiErr.ErrorMessage())
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return objerrors.NewObjectError(op, container, key, objerrors.ErrAccessDenied).WithMessage(apiErr.ErrorMessage())
		case "BadDigest", "InvalidDigest", "XAmzContentChecksumMismatch":
			return objerrors.NewObjectError(op, container, key, objerrors.ErrChecksumMismatch).WithMessage(apiErr.ErrorMessage())
		case "InvalidBucketName":
			return objerrors.NewObjectError(op, container, key, objerrors.ErrInvalidContainerName).WithMessage(apiErr.ErrorMessage())
		}
	}

	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		te.StatusCode = statusErr.HTTPStatusCode()
		switch te.StatusCode {
		case 404:
			return objerrors.NewObjectError(op, container, key, objerrors.ErrNotFound).WithMessage(err.Error())
		case 403:
			return objerrors.NewObjectError(op, container, key, objerrors.ErrAccessDenied).WithMessage(err.Error())
		}
	}

	return objerrors.NewObjectError(op, container, key, te)
}
