package objstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
)

// baseOSFS is the host filesystem with paths used as given, relative paths
// resolving against the working directory.
type baseOSFS struct {
	osfs.ChrootOS
}

func newBaseOSFS() billy.Filesystem {
	return &baseOSFS{}
}

// Chroot returns a filesystem rooted at path.
//
//nolint:ireturn // billy.Filesystem is an interface; signature is dictated by upstream.
func (b *baseOSFS) Chroot(path string) (billy.Filesystem, error) {
	return osfs.New(path), nil
}

// Root returns the root path for this filesystem.
func (b *baseOSFS) Root() string {
	return "/"
}

// UploadFile uploads the file at path as container/key. The size comes from
// the file; the content type from WithContentType, the path's extension, or
// the file's leading bytes.
//
// Example:
//
//	desc, err := client.UploadFile(ctx, "reports", "2024/q1.pdf", "/tmp/q1.pdf",
//	    objstore.WithMetadata(map[string]string{"owner": "finance"}),
//	)
func (c *Client) UploadFile(
	ctx context.Context,
	container, key, path string,
	opts ...objtypes.TransferOption,
) (*objtypes.ObjectDescriptor, error) {
	if path == "" {
		return nil, objerrors.NewObjectError("uploadFile", container, key, objerrors.ErrInvalidInput).
			WithMessage("file path cannot be empty")
	}

	info, err := c.fs.Stat(path)
	if err != nil {
		return nil, objerrors.NewObjectError("uploadFile", container, key, err)
	}
	if info.IsDir() {
		return nil, objerrors.NewObjectError("uploadFile", container, key, objerrors.ErrInvalidInput).
			WithMessage("file path points to a directory, not a file")
	}

	f, err := c.fs.Open(path)
	if err != nil {
		return nil, objerrors.NewObjectError("uploadFile", container, key, err)
	}
	defer f.Close()

	// the file's extension is a better hint than the key's
	opts = append([]objtypes.TransferOption{WithSize(info.Size()), withPathContentType(path)}, opts...)
	return c.UploadObject(ctx, container, key, f, opts...)
}

// withPathContentType sets the content type from path's extension, if known.
func withPathContentType(path string) objtypes.TransferOption {
	return func(cfg *objtypes.TransferOptionConfig) {
		if contentType, _, _ := detectContentType(path, nil, 0, ""); contentType != DefaultContentType {
			cfg.ContentType = contentType
		}
	}
}

// DownloadFile downloads container/key to path, creating parent directories.
// The data is written to a temporary file in the same directory and renamed
// over path only after the digest is verified, so path never holds a
// partial or corrupt object.
func (c *Client) DownloadFile(
	ctx context.Context,
	container, key, path string,
	opts ...objtypes.TransferOption,
) error {
	if path == "" {
		return objerrors.NewObjectError("downloadFile", container, key, objerrors.ErrInvalidInput).
			WithMessage("file path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		return objerrors.NewObjectError("downloadFile", container, key, err)
	}
	tmp, err := c.fs.TempFile(dir, "."+filepath.Base(path)+".objstore-")
	if err != nil {
		return objerrors.NewObjectError("downloadFile", container, key, err)
	}

	err = c.DownloadObject(ctx, container, key, tmp, opts...)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = objerrors.NewObjectError("downloadFile", container, key, closeErr)
	}
	if err == nil {
		if renameErr := c.fs.Rename(tmp.Name(), path); renameErr != nil {
			err = objerrors.NewObjectError("downloadFile", container, key, renameErr)
		}
	}
	if err != nil {
		if rmErr := c.fs.Remove(tmp.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			c.logger.WarnContext(ctx, "failed to remove temporary download file",
				"path", tmp.Name(),
				"error", rmErr,
			)
		}
		return err
	}
	return nil
}
