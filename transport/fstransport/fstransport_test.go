package fstransport

import (
	"context"
	"io"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/checksum"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport"
)

func putObject(t *testing.T, tr *Transport, container, key string, parts ...[]byte) *objtypes.ObjectDescriptor {
	t.Helper()
	ctx := context.Background()
	crc := checksum.MustNew(objtypes.ChecksumCRC32C)

	id, err := tr.CreateMultipartUpload(ctx, transport.CreateMultipartRequest{Container: container, Key: key, ContentType: "text/plain"})
	require.NoError(t, err)

	var results []transport.PartResult
	var size int64
	for i, body := range parts {
		res, err := tr.UploadPart(ctx, transport.UploadPartRequest{
			Container:  container,
			Key:        key,
			UploadID:   id,
			PartNumber: i + 1,
			Body:       body,
			Checksum:   crc.DigestChunk(body),
		})
		require.NoError(t, err)
		results = append(results, *res)
		size += int64(len(body))
	}

	desc, err := tr.CompleteMultipartUpload(ctx, transport.CompleteMultipartRequest{
		Container: container,
		Key:       key,
		UploadID:  id,
		Parts:     results,
		Size:      size,
	})
	require.NoError(t, err)
	return desc
}

func readRange(t *testing.T, tr *Transport, container, key string, offset, length int64) []byte {
	t.Helper()
	rc, err := tr.GetObjectRange(context.Background(), container, key, offset, length)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func TestTransport_Containers(t *testing.T) {
	ctx := context.Background()
	tr := New(memfs.New())

	require.NoError(t, tr.CreateContainer(ctx, "photos"))

	err := tr.CreateContainer(ctx, "photos")
	assert.True(t, objerrors.IsAlreadyExists(err))

	c, err := tr.HeadContainer(ctx, "photos")
	require.NoError(t, err)
	assert.Equal(t, "photos", c.Name)
	assert.Equal(t, objtypes.ContainerPresent, c.State)
	assert.False(t, c.CreatedAt.IsZero())

	_, err = tr.HeadContainer(ctx, "missing")
	assert.True(t, objerrors.IsNotFound(err))

	putObject(t, tr, "photos", "a.txt", []byte("a"))
	err = tr.DeleteContainer(ctx, "photos")
	assert.ErrorIs(t, err, objerrors.ErrContainerNotEmpty)

	require.NoError(t, tr.DeleteObject(ctx, "photos", "a.txt"))
	require.NoError(t, tr.DeleteContainer(ctx, "photos"))

	_, err = tr.HeadContainer(ctx, "photos")
	assert.True(t, objerrors.IsNotFound(err))
	assert.True(t, objerrors.IsNotFound(tr.DeleteContainer(ctx, "photos")))
}

func TestTransport_MultipartRoundTrip(t *testing.T) {
	tr := NewOS(t.TempDir())
	require.NoError(t, tr.CreateContainer(context.Background(), "docs"))

	desc := putObject(t, tr, "docs", "dir/report.txt", []byte("hello "), []byte("world"))
	assert.Equal(t, int64(11), desc.Size)
	assert.Equal(t, "text/plain", desc.ContentType)
	assert.Contains(t, desc.ETag, "-2")

	assert.Equal(t, []byte("hello world"), readRange(t, tr, "docs", "dir/report.txt", 0, 11))
	assert.Equal(t, []byte("world"), readRange(t, tr, "docs", "dir/report.txt", 6, 5))
	assert.Empty(t, readRange(t, tr, "docs", "dir/report.txt", 11, 0))

	head, err := tr.HeadObject(context.Background(), "docs", "dir/report.txt")
	require.NoError(t, err)
	assert.Equal(t, desc.ETag, head.ETag)

	pending, err := tr.PendingUploads()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTransport_GetObjectRange_Errors(t *testing.T) {
	tr := NewMemory()
	require.NoError(t, tr.CreateContainer(context.Background(), "docs"))
	putObject(t, tr, "docs", "k", []byte("0123456789"))

	tests := []struct {
		name           string
		key            string
		offset, length int64
		wantNotFound   bool
	}{
		{name: "past end", key: "k", offset: 5, length: 6},
		{name: "negative offset", key: "k", offset: -1, length: 2},
		{name: "missing object", key: "nope", offset: 0, length: 1, wantNotFound: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.GetObjectRange(context.Background(), "docs", tt.key, tt.offset, tt.length)
			require.Error(t, err)
			if tt.wantNotFound {
				assert.True(t, objerrors.IsNotFound(err))
				return
			}
			var te *objerrors.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, 416, te.StatusCode)
		})
	}
}

func TestTransport_UploadPart_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	tr := NewMemory()
	require.NoError(t, tr.CreateContainer(ctx, "docs"))

	id, err := tr.CreateMultipartUpload(ctx, transport.CreateMultipartRequest{Container: "docs", Key: "k"})
	require.NoError(t, err)

	crc := checksum.MustNew(objtypes.ChecksumCRC32C)
	_, err = tr.UploadPart(ctx, transport.UploadPartRequest{
		Container:  "docs",
		Key:        "k",
		UploadID:   id,
		PartNumber: 1,
		Body:       []byte("corrupted"),
		Checksum:   crc.DigestChunk([]byte("original")),
	})
	assert.True(t, objerrors.IsChecksumMismatch(err))
}

func TestTransport_Complete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		mutate   func(parts []transport.PartResult) []transport.PartResult
		wantCode string
	}{
		{
			name: "out of order",
			mutate: func(parts []transport.PartResult) []transport.PartResult {
				return []transport.PartResult{parts[1], parts[0]}
			},
			wantCode: "InvalidPartOrder",
		},
		{
			name: "wrong etag",
			mutate: func(parts []transport.PartResult) []transport.PartResult {
				parts[0].ETag = "00"
				return parts
			},
			wantCode: "InvalidPart",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewMemory()
			require.NoError(t, tr.CreateContainer(ctx, "docs"))
			id, err := tr.CreateMultipartUpload(ctx, transport.CreateMultipartRequest{Container: "docs", Key: "k"})
			require.NoError(t, err)

			var parts []transport.PartResult
			for i, body := range [][]byte{[]byte("ab"), []byte("cd")} {
				res, err := tr.UploadPart(ctx, transport.UploadPartRequest{Container: "docs", Key: "k", UploadID: id, PartNumber: i + 1, Body: body})
				require.NoError(t, err)
				parts = append(parts, *res)
			}

			_, err = tr.CompleteMultipartUpload(ctx, transport.CompleteMultipartRequest{
				Container: "docs", Key: "k", UploadID: id, Parts: tt.mutate(parts),
			})
			var te *objerrors.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.wantCode, te.Code)

			_, err = tr.HeadObject(ctx, "docs", "k")
			assert.True(t, objerrors.IsNotFound(err))
		})
	}
}

func TestTransport_CompleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tr := NewMemory()
	require.NoError(t, tr.CreateContainer(ctx, "docs"))

	id, err := tr.CreateMultipartUpload(ctx, transport.CreateMultipartRequest{Container: "docs", Key: "k"})
	require.NoError(t, err)
	res, err := tr.UploadPart(ctx, transport.UploadPartRequest{Container: "docs", Key: "k", UploadID: id, PartNumber: 1, Body: []byte("x")})
	require.NoError(t, err)

	req := transport.CompleteMultipartRequest{Container: "docs", Key: "k", UploadID: id, Parts: []transport.PartResult{*res}}
	first, err := tr.CompleteMultipartUpload(ctx, req)
	require.NoError(t, err)
	second, err := tr.CompleteMultipartUpload(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ETag, second.ETag)
}

func TestTransport_AbortRemovesParts(t *testing.T) {
	ctx := context.Background()
	tr := NewMemory()
	require.NoError(t, tr.CreateContainer(ctx, "docs"))

	id, err := tr.CreateMultipartUpload(ctx, transport.CreateMultipartRequest{Container: "docs", Key: "k"})
	require.NoError(t, err)
	_, err = tr.UploadPart(ctx, transport.UploadPartRequest{Container: "docs", Key: "k", UploadID: id, PartNumber: 1, Body: []byte("x")})
	require.NoError(t, err)

	pending, err := tr.PendingUploads()
	require.NoError(t, err)
	assert.Equal(t, []string{id}, pending)

	require.NoError(t, tr.AbortMultipartUpload(ctx, "docs", "k", id))
	require.NoError(t, tr.AbortMultipartUpload(ctx, "docs", "k", id))

	pending, err = tr.PendingUploads()
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = tr.UploadPart(ctx, transport.UploadPartRequest{Container: "docs", Key: "k", UploadID: id, PartNumber: 2, Body: []byte("y")})
	var te *objerrors.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "NoSuchUpload", te.Code)
}

func TestTransport_ListObjects(t *testing.T) {
	ctx := context.Background()
	tr := NewMemory()
	require.NoError(t, tr.CreateContainer(ctx, "docs"))
	for _, k := range []string{"b/2", "a/1", "b/1", "c"} {
		putObject(t, tr, "docs", k, []byte(k))
	}

	page, err := tr.ListObjects(ctx, transport.ListRequest{Container: "docs"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "b/1", "b/2", "c"}, keysOf(page.Objects))
	assert.Empty(t, page.NextToken)

	page, err = tr.ListObjects(ctx, transport.ListRequest{Container: "docs", Prefix: "b/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b/1", "b/2"}, keysOf(page.Objects))

	page, err = tr.ListObjects(ctx, transport.ListRequest{Container: "docs", PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "b/1", "b/2"}, keysOf(page.Objects))
	assert.Equal(t, "b/2", page.NextToken)

	page, err = tr.ListObjects(ctx, transport.ListRequest{Container: "docs", PageSize: 3, Token: page.NextToken})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, keysOf(page.Objects))
	assert.Empty(t, page.NextToken)

	_, err = tr.ListObjects(ctx, transport.ListRequest{Container: "missing"})
	assert.True(t, objerrors.IsNotFound(err))
}

func TestTransport_DeleteObjectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tr := NewMemory()
	require.NoError(t, tr.CreateContainer(ctx, "docs"))
	putObject(t, tr, "docs", "k", []byte("v"))

	require.NoError(t, tr.DeleteObject(ctx, "docs", "k"))
	require.NoError(t, tr.DeleteObject(ctx, "docs", "k"))

	_, err := tr.HeadObject(ctx, "docs", "k")
	assert.True(t, objerrors.IsNotFound(err))
}

func TestTransport_MetadataDigest(t *testing.T) {
	ctx := context.Background()
	tr := NewMemory()
	require.NoError(t, tr.CreateContainer(ctx, "docs"))

	d := checksum.MustNew(objtypes.ChecksumSHA256).DigestChunk([]byte("v"))
	id, err := tr.CreateMultipartUpload(ctx, transport.CreateMultipartRequest{Container: "docs", Key: "k"})
	require.NoError(t, err)
	res, err := tr.UploadPart(ctx, transport.UploadPartRequest{Container: "docs", Key: "k", UploadID: id, PartNumber: 1, Body: []byte("v")})
	require.NoError(t, err)
	_, err = tr.CompleteMultipartUpload(ctx, transport.CompleteMultipartRequest{
		Container: "docs", Key: "k", UploadID: id,
		Parts:    []transport.PartResult{*res},
		Metadata: transport.WithDigest(map[string]string{"owner": "ci"}, d),
	})
	require.NoError(t, err)

	head, err := tr.HeadObject(ctx, "docs", "k")
	require.NoError(t, err)
	assert.Equal(t, d, head.Digest)
	assert.Equal(t, "ci", head.Metadata["owner"])
}

func keysOf(objs []objtypes.ObjectDescriptor) []string {
	keys := make([]string, len(objs))
	for i, o := range objs {
		keys[i] = o.Key
	}
	return keys
}
