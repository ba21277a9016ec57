package storjtransport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"storj.io/uplink"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/checksum"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport"
)

// fakeProject is an in-memory Project.
type fakeProject struct {
	mu      sync.Mutex
	buckets map[string]map[string]*fakeObject
	uploads map[string]map[uint32][]byte
	nextID  int
	commits []*uplink.CommitUploadOptions
}

type fakeObject struct {
	data   []byte
	custom uplink.CustomMetadata
}

func newFakeProject() *fakeProject {
	return &fakeProject{
		buckets: map[string]map[string]*fakeObject{},
		uploads: map[string]map[uint32][]byte{},
	}
}

func (f *fakeProject) CreateBucket(_ context.Context, bucket string) (*uplink.Bucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buckets[bucket]; ok {
		return &uplink.Bucket{Name: bucket}, fmt.Errorf("create: %w", uplink.ErrBucketAlreadyExists)
	}
	f.buckets[bucket] = map[string]*fakeObject{}
	return &uplink.Bucket{Name: bucket, Created: time.Now()}, nil
}

func (f *fakeProject) StatBucket(_ context.Context, bucket string) (*uplink.Bucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buckets[bucket]; !ok {
		return nil, fmt.Errorf("stat: %w", uplink.ErrBucketNotFound)
	}
	return &uplink.Bucket{Name: bucket}, nil
}

func (f *fakeProject) DeleteBucket(_ context.Context, bucket string) (*uplink.Bucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	objs, ok := f.buckets[bucket]
	if !ok {
		return nil, uplink.ErrBucketNotFound
	}
	if len(objs) > 0 {
		return nil, uplink.ErrBucketNotEmpty
	}
	delete(f.buckets, bucket)
	return &uplink.Bucket{Name: bucket}, nil
}

type sliceIterator struct {
	items []*uplink.Object
	pos   int
	err   error
}

func (s *sliceIterator) Next() bool {
	if s.err != nil || s.pos >= len(s.items) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceIterator) Item() *uplink.Object { return s.items[s.pos-1] }
func (s *sliceIterator) Err() error           { return s.err }

func (f *fakeProject) ListObjects(_ context.Context, bucket string, opts *uplink.ListObjectsOptions) ObjectIterator {
	f.mu.Lock()
	defer f.mu.Unlock()
	objs, ok := f.buckets[bucket]
	if !ok {
		return &sliceIterator{err: uplink.ErrBucketNotFound}
	}
	if opts.Prefix != "" && opts.Prefix[len(opts.Prefix)-1] != '/' {
		return &sliceIterator{err: fmt.Errorf("prefix must end with slash")}
	}
	keys := make([]string, 0, len(objs))
	for k := range objs {
		if strings.HasPrefix(k, opts.Prefix) {
			keys = append(keys, k)
		}
	}
	// a satellite with key encryption lists in encrypted-key order
	sort.Slice(keys, func(i, j int) bool { return encryptedKey(keys[i]) < encryptedKey(keys[j]) })

	it := &sliceIterator{}
	for _, k := range keys {
		if opts.Cursor != "" && encryptedKey(k) <= encryptedKey(opts.Prefix+opts.Cursor) {
			continue
		}
		it.items = append(it.items, f.object(k, objs[k]))
	}
	return it
}

func encryptedKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (f *fakeProject) object(key string, o *fakeObject) *uplink.Object {
	return &uplink.Object{
		Key:    key,
		System: uplink.SystemMetadata{ContentLength: int64(len(o.data))},
		Custom: o.custom,
	}
}

func (f *fakeProject) StatObject(_ context.Context, bucket, key string) (*uplink.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.buckets[bucket][key]
	if !ok {
		return nil, uplink.ErrObjectNotFound
	}
	return f.object(key, o), nil
}

func (f *fakeProject) DownloadObject(
	_ context.Context,
	bucket, key string,
	opts *uplink.DownloadOptions,
) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.buckets[bucket][key]
	if !ok {
		return nil, uplink.ErrObjectNotFound
	}
	end := min(opts.Offset+opts.Length, int64(len(o.data)))
	return io.NopCloser(bytes.NewReader(o.data[opts.Offset:end])), nil
}

func (f *fakeProject) DeleteObject(_ context.Context, bucket, key string) (*uplink.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buckets[bucket][key]; !ok {
		return nil, uplink.ErrObjectNotFound
	}
	delete(f.buckets[bucket], key)
	return &uplink.Object{Key: key}, nil
}

func (f *fakeProject) BeginUpload(_ context.Context, bucket, key string, _ *uplink.UploadOptions) (uplink.UploadInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buckets[bucket]; !ok {
		return uplink.UploadInfo{}, uplink.ErrBucketNotFound
	}
	f.nextID++
	id := fmt.Sprintf("upload-%d", f.nextID)
	f.uploads[id] = map[uint32][]byte{}
	return uplink.UploadInfo{UploadID: id, Key: key}, nil
}

func (f *fakeProject) UploadPart(
	_ context.Context,
	_, _, uploadID string,
	partNumber uint32,
	data []byte,
	etag []byte,
) (*uplink.Part, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts, ok := f.uploads[uploadID]
	if !ok {
		return nil, uplink.ErrUploadIDInvalid
	}
	parts[partNumber] = bytes.Clone(data)
	return &uplink.Part{PartNumber: partNumber, Size: int64(len(data)), ETag: etag}, nil
}

func (f *fakeProject) CommitUpload(
	_ context.Context,
	bucket, key, uploadID string,
	opts *uplink.CommitUploadOptions,
) (*uplink.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts, ok := f.uploads[uploadID]
	if !ok {
		return nil, uplink.ErrUploadIDInvalid
	}
	numbers := make([]int, 0, len(parts))
	for n := range parts {
		numbers = append(numbers, int(n))
	}
	sort.Ints(numbers)
	var data []byte
	for _, n := range numbers {
		data = append(data, parts[uint32(n)]...)
	}
	o := &fakeObject{data: data, custom: opts.CustomMetadata}
	f.buckets[bucket][key] = o
	delete(f.uploads, uploadID)
	f.commits = append(f.commits, opts)
	return f.object(key, o), nil
}

func (f *fakeProject) AbortUpload(_ context.Context, _, _, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.uploads[uploadID]; !ok {
		return uplink.ErrUploadIDInvalid
	}
	delete(f.uploads, uploadID)
	return nil
}

func (f *fakeProject) Close() error { return nil }

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		sentinel  error
		wantClass retry.Class
	}{
		{name: "bucket not found", err: uplink.ErrBucketNotFound, sentinel: objerrors.ErrNotFound},
		{name: "object not found", err: fmt.Errorf("wrapped: %w", uplink.ErrObjectNotFound), sentinel: objerrors.ErrNotFound},
		{name: "bucket exists", err: uplink.ErrBucketAlreadyExists, sentinel: objerrors.ErrAlreadyExists},
		{name: "bucket not empty", err: uplink.ErrBucketNotEmpty, sentinel: objerrors.ErrContainerNotEmpty},
		{name: "permission denied", err: uplink.ErrPermissionDenied, sentinel: objerrors.ErrAccessDenied},
		{name: "invalid bucket name", err: uplink.ErrBucketNameInvalid, sentinel: objerrors.ErrInvalidContainerName},
		{name: "too many requests", err: uplink.ErrTooManyRequests, wantClass: retry.Retryable},
		{name: "bandwidth limit", err: uplink.ErrBandwidthLimitExceeded, wantClass: retry.Fatal},
		{name: "unknown", err: fmt.Errorf("dial failed"), wantClass: retry.Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translateError("Op", "bucket", "key", tt.err)
			require.Error(t, err)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
				assert.Equal(t, retry.Fatal, retry.Classify(err))
				return
			}
			var te *objerrors.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.wantClass, retry.Classify(err))
		})
	}

	assert.NoError(t, translateError("Op", "bucket", "key", nil))
}

func TestTransport_Containers(t *testing.T) {
	tr := New(newFakeProject())
	ctx := context.Background()

	require.NoError(t, tr.CreateContainer(ctx, "docs"))
	assert.True(t, objerrors.IsAlreadyExists(tr.CreateContainer(ctx, "docs")))

	c, err := tr.HeadContainer(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", c.Name)
	assert.Equal(t, objtypes.ContainerPresent, c.State)

	_, err = tr.HeadContainer(ctx, "missing")
	assert.True(t, objerrors.IsNotFound(err))

	require.NoError(t, tr.DeleteContainer(ctx, "docs"))
	assert.True(t, objerrors.IsNotFound(tr.DeleteContainer(ctx, "docs")))
}

func upload(t *testing.T, tr *Transport, container, key string, parts ...string) *objtypes.ObjectDescriptor {
	t.Helper()
	ctx := context.Background()
	engine := checksum.MustNew(objtypes.ChecksumSHA256)

	id, err := tr.CreateMultipartUpload(ctx, transport.CreateMultipartRequest{
		Container:   container,
		Key:         key,
		ContentType: "text/plain",
		Metadata:    map[string]string{"owner": "ops"},
	})
	require.NoError(t, err)

	var results []transport.PartResult
	var all []byte
	for i, p := range parts {
		res, err := tr.UploadPart(ctx, transport.UploadPartRequest{
			Container:  container,
			Key:        key,
			UploadID:   id,
			PartNumber: i + 1,
			Body:       []byte(p),
			Checksum:   engine.DigestChunk([]byte(p)),
		})
		require.NoError(t, err)
		results = append(results, *res)
		all = append(all, p...)
	}

	d, err := tr.CompleteMultipartUpload(ctx, transport.CompleteMultipartRequest{
		Container: container,
		Key:       key,
		UploadID:  id,
		Parts:     results,
		Size:      int64(len(all)),
		Digest:    engine.DigestChunk(all),
	})
	require.NoError(t, err)
	return d
}

func TestTransport_MultipartRoundTrip(t *testing.T) {
	fake := newFakeProject()
	tr := New(fake)
	ctx := context.Background()
	require.NoError(t, tr.CreateContainer(ctx, "docs"))

	d := upload(t, tr, "docs", "greeting.txt", "hello ", "storj ", "world")
	digest := checksum.MustNew(objtypes.ChecksumSHA256).DigestChunk([]byte("hello storj world"))
	assert.Equal(t, int64(17), d.Size)
	assert.Equal(t, digest, d.Digest)
	assert.Equal(t, "text/plain", d.ContentType)
	assert.Equal(t, "ops", d.Metadata["owner"])

	head, err := tr.HeadObject(ctx, "docs", "greeting.txt")
	require.NoError(t, err)
	assert.Equal(t, digest, head.Digest)

	body, err := tr.GetObjectRange(ctx, "docs", "greeting.txt", 6, 5)
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "storj", string(data))

	body, err = tr.GetObjectRange(ctx, "docs", "greeting.txt", 17, 0)
	require.NoError(t, err)
	data, err = io.ReadAll(body)
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = tr.GetObjectRange(ctx, "docs", "missing", 0, 1)
	assert.True(t, objerrors.IsNotFound(err))

	require.NoError(t, tr.DeleteObject(ctx, "docs", "greeting.txt"))
	require.NoError(t, tr.DeleteObject(ctx, "docs", "greeting.txt"))
	_, err = tr.HeadObject(ctx, "docs", "greeting.txt")
	assert.True(t, objerrors.IsNotFound(err))
}

func TestTransport_AbortMultipartUpload(t *testing.T) {
	fake := newFakeProject()
	tr := New(fake)
	ctx := context.Background()
	require.NoError(t, tr.CreateContainer(ctx, "docs"))

	id, err := tr.CreateMultipartUpload(ctx, transport.CreateMultipartRequest{Container: "docs", Key: "k"})
	require.NoError(t, err)

	require.NoError(t, tr.AbortMultipartUpload(ctx, "docs", "k", id))
	require.NoError(t, tr.AbortMultipartUpload(ctx, "docs", "k", id))

	_, err = tr.UploadPart(ctx, transport.UploadPartRequest{Container: "docs", Key: "k", UploadID: id, PartNumber: 1, Body: []byte("x")})
	require.Error(t, err)
	assert.Equal(t, retry.Fatal, retry.Classify(err))
}

func TestTransport_ListObjects(t *testing.T) {
	tr := New(newFakeProject())
	ctx := context.Background()
	require.NoError(t, tr.CreateContainer(ctx, "docs"))
	for _, k := range []string{"logs/a", "logs/b", "logs/c", "logs2/d", "other"} {
		upload(t, tr, "docs", k, k)
	}

	var keys []string
	token := ""
	pages := 0
	for {
		page, err := tr.ListObjects(ctx, transport.ListRequest{Container: "docs", Prefix: "logs", Token: token, PageSize: 2})
		require.NoError(t, err)
		pages++
		for _, o := range page.Objects {
			keys = append(keys, o.Key)
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}
	assert.ElementsMatch(t, []string{"logs/a", "logs/b", "logs/c", "logs2/d"}, keys)
	assert.Equal(t, 2, pages)

	page, err := tr.ListObjects(ctx, transport.ListRequest{Container: "docs", Prefix: "logs/"})
	require.NoError(t, err)
	assert.Len(t, page.Objects, 3)

	_, err = tr.ListObjects(ctx, transport.ListRequest{Container: "missing"})
	assert.True(t, objerrors.IsNotFound(err))
}

func TestTransport_MinPartSize(t *testing.T) {
	assert.Equal(t, MinPartSize, New(newFakeProject()).MinPartSize())
}

func TestNewFromAccessGrant_Empty(t *testing.T) {
	_, err := NewFromAccessGrant(context.Background(), "")
	assert.True(t, objerrors.IsInvalidInput(err))
}

func TestTransport_ListObjects_UnsortedPages(t *testing.T) {
	tr := New(newFakeProject())
	ctx := context.Background()
	require.NoError(t, tr.CreateContainer(ctx, "bulk"))

	var want []string
	for i := range 25 {
		k := fmt.Sprintf("items/%02d", i)
		want = append(want, k)
		upload(t, tr, "bulk", k, k)
	}

	tests := []struct {
		name     string
		prefix   string
		pageSize int
	}{
		{name: "directory prefix", prefix: "items/", pageSize: 2},
		{name: "larger pages", prefix: "items/", pageSize: 7},
		{name: "no prefix", prefix: "", pageSize: 3},
		{name: "single page", prefix: "items", pageSize: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := map[string]int{}
			var keys []string
			token := ""
			for {
				page, err := tr.ListObjects(ctx, transport.ListRequest{
					Container: "bulk",
					Prefix:    tt.prefix,
					Token:     token,
					PageSize:  tt.pageSize,
				})
				require.NoError(t, err)
				for _, o := range page.Objects {
					seen[o.Key]++
					keys = append(keys, o.Key)
				}
				if page.NextToken == "" {
					break
				}
				token = page.NextToken
			}

			assert.ElementsMatch(t, want, keys)
			for k, n := range seen {
				assert.Equal(t, 1, n, "key %s listed more than once", k)
			}
		})
	}
}
