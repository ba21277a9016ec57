// Package fstransport stores containers and objects on a go-billy filesystem.
//
// It backs local development (osfs) and tests (memfs). Layout under the root:
//
//	<container>/container.json           container record
//	<container>/objects/<sha256(key)>    object bytes
//	<container>/meta/<sha256(key)>.json  object record, including the key
//	.uploads/<upload id>/upload.json     pending multipart upload
//	.uploads/<upload id>/part-NNNNN      uploaded parts
//
// Objects are addressed by the SHA-256 of their key so that keys such as
// "a" and "a/b" can coexist and long keys fit in a file name.
package fstransport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/checksum"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport"
)

const uploadsDir = ".uploads"

type containerRecord struct {
	CreatedAt time.Time `json:"created_at"`
}

type objectRecord struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ETag         string            `json:"etag"`
	ContentType  string            `json:"content_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	UploadID     string            `json:"upload_id,omitempty"`
}

type uploadRecord struct {
	Container   string            `json:"container"`
	Key         string            `json:"key"`
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Transport implements transport.Transport on a billy.Filesystem.
//
// Thread Safety: all filesystem access is serialized by an internal mutex.
type Transport struct {
	fs  billy.Filesystem
	mu  sync.Mutex
	now func() time.Time
}

var _ transport.Transport = (*Transport)(nil)

// New creates a Transport rooted at fs.
func New(fs billy.Filesystem) *Transport {
	return &Transport{fs: fs, now: time.Now}
}

// NewOS creates a Transport rooted at a directory on the local disk.
func NewOS(root string) *Transport {
	return New(osfs.New(root))
}

// NewMemory creates a Transport backed by an in-memory filesystem.
func NewMemory() *Transport {
	return New(memfs.New())
}

func objectID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func objectPath(container, key string) string {
	return path.Join(container, "objects", objectID(key))
}

func metaPath(container, key string) string {
	return path.Join(container, "meta", objectID(key)+".json")
}

func uploadPath(id string, elem ...string) string {
	return path.Join(append([]string{uploadsDir, id}, elem...)...)
}

func (t *Transport) exists(p string) (bool, error) {
	_, err := t.fs.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %q: %w", p, err)
	}
}

func (t *Transport) readJSON(p string, v any) error {
	data, err := util.ReadFile(t.fs, p)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (t *Transport) writeJSON(p string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return util.WriteFile(t.fs, p, data, 0o644)
}

func (t *Transport) requireContainer(op, name string) error {
	ok, err := t.exists(path.Join(name, "container.json"))
	if err != nil {
		return objerrors.NewContainerError(op, name, err)
	}
	if !ok {
		return objerrors.NewContainerError(op, name, objerrors.ErrNotFound)
	}
	return nil
}

// CreateContainer implements transport.Transport.
func (t *Transport) CreateContainer(_ context.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.requireContainer("CreateContainer", name); err == nil {
		return objerrors.NewContainerError("CreateContainer", name, objerrors.ErrAlreadyExists)
	} else if !objerrors.IsNotFound(err) {
		return err
	}

	for _, dir := range []string{"objects", "meta"} {
		if err := t.fs.MkdirAll(path.Join(name, dir), 0o755); err != nil {
			return objerrors.NewContainerError("CreateContainer", name, err)
		}
	}
	if err := t.writeJSON(path.Join(name, "container.json"), containerRecord{CreatedAt: t.now().UTC()}); err != nil {
		return objerrors.NewContainerError("CreateContainer", name, err)
	}
	return nil
}

// HeadContainer implements transport.Transport.
func (t *Transport) HeadContainer(_ context.Context, name string) (*objtypes.Container, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.requireContainer("HeadContainer", name); err != nil {
		return nil, err
	}
	var rec containerRecord
	if err := t.readJSON(path.Join(name, "container.json"), &rec); err != nil {
		return nil, objerrors.NewContainerError("HeadContainer", name, err)
	}
	return &objtypes.Container{Name: name, CreatedAt: rec.CreatedAt, State: objtypes.ContainerPresent}, nil
}

// DeleteContainer implements transport.Transport.
func (t *Transport) DeleteContainer(_ context.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.requireContainer("DeleteContainer", name); err != nil {
		return err
	}
	entries, err := t.fs.ReadDir(path.Join(name, "meta"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return objerrors.NewContainerError("DeleteContainer", name, err)
	}
	if len(entries) > 0 {
		return objerrors.NewContainerError("DeleteContainer", name, objerrors.ErrContainerNotEmpty)
	}
	if err := util.RemoveAll(t.fs, name); err != nil {
		return objerrors.NewContainerError("DeleteContainer", name, err)
	}
	return nil
}

// ListObjects implements transport.Transport. The continuation token is the last key returned.
func (t *Transport) ListObjects(_ context.Context, req transport.ListRequest) (*transport.ListPage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.requireContainer("ListObjects", req.Container); err != nil {
		return nil, err
	}
	entries, err := t.fs.ReadDir(path.Join(req.Container, "meta"))
	if err != nil {
		return nil, objerrors.NewContainerError("ListObjects", req.Container, err)
	}

	records := make([]objectRecord, 0, len(entries))
	for _, e := range entries {
		var rec objectRecord
		if err := t.readJSON(path.Join(req.Container, "meta", e.Name()), &rec); err != nil {
			return nil, objerrors.NewContainerError("ListObjects", req.Container, err)
		}
		if strings.HasPrefix(rec.Key, req.Prefix) && rec.Key > req.Token {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })

	page := &transport.ListPage{}
	if req.PageSize > 0 && len(records) > req.PageSize {
		records = records[:req.PageSize]
		page.NextToken = records[len(records)-1].Key
	}
	for _, rec := range records {
		page.Objects = append(page.Objects, rec.descriptor(req.Container))
	}
	return page, nil
}

// HeadObject implements transport.Transport.
func (t *Transport) HeadObject(_ context.Context, container, key string) (*objtypes.ObjectDescriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.headLocked("HeadObject", container, key)
	if err != nil {
		return nil, err
	}
	d := rec.descriptor(container)
	return &d, nil
}

func (t *Transport) headLocked(op, container, key string) (*objectRecord, error) {
	if err := t.requireContainer(op, container); err != nil {
		return nil, err
	}
	var rec objectRecord
	if err := t.readJSON(metaPath(container, key), &rec); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, objerrors.NewObjectError(op, container, key, objerrors.ErrNotFound)
		}
		return nil, objerrors.NewObjectError(op, container, key, err)
	}
	return &rec, nil
}

// GetObjectRange implements transport.Transport.
func (t *Transport) GetObjectRange(_ context.Context, container, key string, offset, length int64) (io.ReadCloser, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.headLocked("GetObjectRange", container, key)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 || offset+length > rec.Size {
		return nil, &objerrors.TransportError{
			Op:         "GetObjectRange",
			StatusCode: 416,
			Code:       "InvalidRange",
			Err:        fmt.Errorf("range %d+%d outside object of %d bytes", offset, length, rec.Size),
		}
	}

	// Read the range under the lock so a concurrent overwrite cannot tear it.
	f, err := t.fs.Open(objectPath(container, key))
	if err != nil {
		return nil, objerrors.NewObjectError("GetObjectRange", container, key, err)
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, objerrors.NewObjectError("GetObjectRange", container, key, err)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, objerrors.NewObjectError("GetObjectRange", container, key, err)
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

// DeleteObject implements transport.Transport.
func (t *Transport) DeleteObject(_ context.Context, container, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.requireContainer("DeleteObject", container); err != nil {
		return err
	}
	for _, p := range []string{metaPath(container, key), objectPath(container, key)} {
		if err := t.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return objerrors.NewObjectError("DeleteObject", container, key, err)
		}
	}
	return nil
}

// CreateMultipartUpload implements transport.Transport.
func (t *Transport) CreateMultipartUpload(_ context.Context, req transport.CreateMultipartRequest) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.requireContainer("CreateMultipartUpload", req.Container); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := t.fs.MkdirAll(uploadPath(id), 0o755); err != nil {
		return "", objerrors.NewObjectError("CreateMultipartUpload", req.Container, req.Key, err)
	}
	rec := uploadRecord{
		Container:   req.Container,
		Key:         req.Key,
		ContentType: req.ContentType,
		Metadata:    req.Metadata,
	}
	if err := t.writeJSON(uploadPath(id, "upload.json"), rec); err != nil {
		return "", objerrors.NewObjectError("CreateMultipartUpload", req.Container, req.Key, err)
	}
	return id, nil
}

// UploadPart implements transport.Transport. A part whose bytes do not match
// req.Checksum is rejected with ErrChecksumMismatch and not stored.
func (t *Transport) UploadPart(_ context.Context, req transport.UploadPartRequest) (*transport.PartResult, error) {
	if !req.Checksum.IsZero() {
		engine, err := checksum.New(req.Checksum.Algorithm)
		if err != nil {
			return nil, err
		}
		if actual := engine.DigestChunk(req.Body); !checksum.Verify(req.Checksum, actual) {
			return nil, objerrors.NewObjectError("UploadPart", req.Container, req.Key, objerrors.ErrChecksumMismatch).
				WithMessage(fmt.Sprintf("part %d: expected %s, received %s", req.PartNumber, req.Checksum, actual))
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.uploadLocked("UploadPart", req.UploadID); err != nil {
		return nil, err
	}
	if err := util.WriteFile(t.fs, uploadPath(req.UploadID, partName(req.PartNumber)), req.Body, 0o644); err != nil {
		return nil, objerrors.NewObjectError("UploadPart", req.Container, req.Key, err)
	}
	return &transport.PartResult{
		PartNumber: req.PartNumber,
		ETag:       etag(req.Body),
		Checksum:   req.Checksum,
	}, nil
}

func (t *Transport) uploadLocked(op, id string) (*uploadRecord, error) {
	var rec uploadRecord
	if err := t.readJSON(uploadPath(id, "upload.json"), &rec); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &objerrors.TransportError{Op: op, StatusCode: 404, Code: "NoSuchUpload", Err: fmt.Errorf("upload %s not found", id)}
		}
		return nil, &objerrors.TransportError{Op: op, Err: err}
	}
	return &rec, nil
}

// CompleteMultipartUpload implements transport.Transport. Completing an
// upload that was already completed returns the stored object.
func (t *Transport) CompleteMultipartUpload(_ context.Context, req transport.CompleteMultipartRequest) (*objtypes.ObjectDescriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	up, err := t.uploadLocked("CompleteMultipartUpload", req.UploadID)
	if err != nil {
		if existing, herr := t.headLocked("CompleteMultipartUpload", req.Container, req.Key); herr == nil && existing.UploadID == req.UploadID {
			d := existing.descriptor(req.Container)
			return &d, nil
		}
		return nil, err
	}

	var data bytes.Buffer
	etags := make([]byte, 0, len(req.Parts)*sha256.Size)
	for i, p := range req.Parts {
		if p.PartNumber != i+1 {
			return nil, &objerrors.TransportError{Op: "CompleteMultipartUpload", StatusCode: 400, Code: "InvalidPartOrder",
				Err: fmt.Errorf("part %d listed at position %d", p.PartNumber, i)}
		}
		body, err := util.ReadFile(t.fs, uploadPath(req.UploadID, partName(p.PartNumber)))
		if err != nil || etag(body) != p.ETag {
			return nil, &objerrors.TransportError{Op: "CompleteMultipartUpload", StatusCode: 400, Code: "InvalidPart",
				Err: fmt.Errorf("part %d missing or modified", p.PartNumber)}
		}
		data.Write(body)
		sum, _ := hex.DecodeString(p.ETag)
		etags = append(etags, sum...)
	}

	metadata := make(map[string]string, len(up.Metadata)+len(req.Metadata))
	for k, v := range up.Metadata {
		metadata[k] = v
	}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	combined := sha256.Sum256(etags)
	rec := objectRecord{
		Key:          req.Key,
		Size:         int64(data.Len()),
		ETag:         fmt.Sprintf("%s-%d", hex.EncodeToString(combined[:]), len(req.Parts)),
		ContentType:  up.ContentType,
		Metadata:     metadata,
		LastModified: t.now().UTC(),
		UploadID:     req.UploadID,
	}

	if err := util.WriteFile(t.fs, objectPath(req.Container, req.Key), data.Bytes(), 0o644); err != nil {
		return nil, objerrors.NewObjectError("CompleteMultipartUpload", req.Container, req.Key, err)
	}
	if err := t.writeJSON(metaPath(req.Container, req.Key), rec); err != nil {
		return nil, objerrors.NewObjectError("CompleteMultipartUpload", req.Container, req.Key, err)
	}
	if err := util.RemoveAll(t.fs, uploadPath(req.UploadID)); err != nil {
		return nil, objerrors.NewObjectError("CompleteMultipartUpload", req.Container, req.Key, err)
	}

	d := rec.descriptor(req.Container)
	return &d, nil
}

// AbortMultipartUpload implements transport.Transport.
func (t *Transport) AbortMultipartUpload(_ context.Context, container, key, uploadID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := util.RemoveAll(t.fs, uploadPath(uploadID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return objerrors.NewObjectError("AbortMultipartUpload", container, key, err)
	}
	return nil
}

// PendingUploads returns the ids of multipart uploads that were neither completed nor aborted.
func (t *Transport) PendingUploads() ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, err := t.fs.ReadDir(uploadsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

func (r objectRecord) descriptor(container string) objtypes.ObjectDescriptor {
	return objtypes.ObjectDescriptor{
		Container:    container,
		Key:          r.Key,
		Size:         r.Size,
		Digest:       transport.MetadataDigest(r.Metadata),
		ETag:         r.ETag,
		ContentType:  r.ContentType,
		LastModified: r.LastModified,
		Metadata:     r.Metadata,
	}
}

func partName(n int) string {
	return fmt.Sprintf("part-%05d", n)
}

func etag(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
