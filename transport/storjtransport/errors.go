package storjtransport

import (
	"errors"
	"net/http"

	"storj.io/uplink"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
)

// translateError maps uplink errors onto the objstore taxonomy.
func translateError(op, container, key string, err error) error {
	if err == nil {
		return nil
	}

	var sentinel error
	switch {
	case errors.Is(err, uplink.ErrBucketNotFound), errors.Is(err, uplink.ErrObjectNotFound):
		sentinel = objerrors.ErrNotFound
	case errors.Is(err, uplink.ErrBucketAlreadyExists):
		sentinel = objerrors.ErrAlreadyExists
	case errors.Is(err, uplink.ErrBucketNotEmpty):
		sentinel = objerrors.ErrContainerNotEmpty
	case errors.Is(err, uplink.ErrPermissionDenied):
		sentinel = objerrors.ErrAccessDenied
	case errors.Is(err, uplink.ErrBucketNameInvalid):
		sentinel = objerrors.ErrInvalidContainerName
	case errors.Is(err, uplink.ErrObjectKeyInvalid):
		sentinel = objerrors.ErrInvalidObjectKey
	}
	if sentinel != nil {
		return objerrors.NewObjectError(op, container, key, sentinel).WithMessage(err.Error())
	}

	status := 0
	switch {
	case errors.Is(err, uplink.ErrTooManyRequests):
		status = http.StatusTooManyRequests
	case errors.Is(err, uplink.ErrBandwidthLimitExceeded),
		errors.Is(err, uplink.ErrStorageLimitExceeded),
		errors.Is(err, uplink.ErrSegmentsLimitExceeded):
		status = http.StatusForbidden
	case errors.Is(err, uplink.ErrUploadIDInvalid), errors.Is(err, uplink.ErrUploadDone):
		status = http.StatusBadRequest
	}
	return objerrors.NewObjectError(op, container, key, &objerrors.TransportError{
		Op:         op,
		StatusCode: status,
		Err:        err,
	})
}
