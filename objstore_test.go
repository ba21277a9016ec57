package objstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport/fstransport"
)

const testContainer = "reports"

func newTestClient(t *testing.T, opts ...objtypes.Option) (*Client, *testutil.MockTransport, *fstransport.Transport) {
	t.Helper()
	inner := fstransport.NewMemory()
	mock := testutil.NewMockTransport(inner)
	base := []objtypes.Option{
		WithMaxChunkBytes(16),
		WithMaxParallelism(4),
		WithMaxAttempts(3),
		WithBackoff(time.Millisecond, 2*time.Millisecond),
	}
	client, err := New(mock, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.CreateContainer(context.Background(), testContainer))
	return client, mock, inner
}

func sha256Digest(data []byte) objtypes.Digest {
	sum := sha256.Sum256(data)
	return objtypes.Digest{Algorithm: objtypes.ChecksumSHA256, Sum: sum[:]}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    []objtypes.Option
		wantErr bool
	}{
		{name: "defaults"},
		{name: "tuned", opts: []objtypes.Option{WithMaxParallelism(16), WithChunkRetryBudget(2)}},
		{name: "zero parallelism", opts: []objtypes.Option{WithMaxParallelism(0)}, wantErr: true},
		{name: "zero attempts", opts: []objtypes.Option{WithMaxAttempts(0)}, wantErr: true},
		{name: "max backoff below base", opts: []objtypes.Option{WithBackoff(time.Second, time.Millisecond)}, wantErr: true},
		{name: "unknown checksum", opts: []objtypes.Option{WithChecksumAlgorithm("md5")}, wantErr: true},
		{name: "negative deadline", opts: []objtypes.Option{WithSessionDeadline(-time.Second)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(fstransport.NewMemory(), tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, objerrors.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.NoError(t, client.Close())
			assert.NoError(t, client.Close())
		})
	}

	_, err := New(nil)
	assert.True(t, objerrors.IsInvalidInput(err))
}

func TestNew_Defaults(t *testing.T) {
	client, err := New(fstransport.NewMemory())
	require.NoError(t, err)
	assert.Equal(t, objtypes.DefaultConfiguration(), client.Configuration())
}

func TestClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client, _, inner := newTestClient(t)
	data := testutil.NewTestDataGenerator(7).Bytes(100)

	progress := &testutil.MockProgressTracker{}
	desc, err := client.UploadObject(ctx, testContainer, "data/blob.bin", bytes.NewReader(data),
		WithMetadata(map[string]string{"owner": "ops"}),
		WithProgress(progress),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), desc.Size)
	assert.Equal(t, sha256Digest(data), desc.Digest)

	_, transferred, total, completed, _ := progress.Snapshot()
	assert.Equal(t, int64(len(data)), transferred)
	assert.Equal(t, int64(len(data)), total)
	assert.True(t, completed)

	stat, err := client.StatObject(ctx, testContainer, "data/blob.bin")
	require.NoError(t, err)
	assert.Equal(t, sha256Digest(data), stat.Digest)
	assert.Equal(t, "ops", stat.Metadata["owner"])

	var out bytes.Buffer
	require.NoError(t, client.DownloadObject(ctx, testContainer, "data/blob.bin", &out))
	assert.Equal(t, data, out.Bytes())

	pending, err := inner.PendingUploads()
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, client.DeleteObject(ctx, testContainer, "data/blob.bin"))
	require.NoError(t, client.DeleteObject(ctx, testContainer, "data/blob.bin"))
	_, err = client.StatObject(ctx, testContainer, "data/blob.bin")
	assert.True(t, objerrors.IsNotFound(err))
}

func TestClient_StartUpload_Handle(t *testing.T) {
	ctx := context.Background()
	client, mock, _ := newTestClient(t)
	data := bytes.Repeat([]byte("x"), 64)

	h, err := client.StartUpload(ctx, testContainer, "handle.bin", bytes.NewReader(data))
	require.NoError(t, err)
	assert.NotEmpty(t, h.ID())

	desc, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, objtypes.SessionComplete, h.State())
	assert.Len(t, h.Chunks(), 4)
	assert.Equal(t, int64(64), h.Transferred())
	assert.Equal(t, int64(64), desc.Size)
	assert.Equal(t, 4, mock.Calls("UploadPart"))

	var out bytes.Buffer
	dh, err := client.StartDownload(ctx, testContainer, "handle.bin", &out, WithParallelism(2), WithChunkSize(32))
	require.NoError(t, err)
	_, err = dh.Wait(ctx)
	require.NoError(t, err)
	assert.Len(t, dh.Chunks(), 2)
	assert.Equal(t, data, out.Bytes())
}

func TestClient_UploadValidation(t *testing.T) {
	ctx := context.Background()
	client, mock, _ := newTestClient(t)

	tests := []struct {
		name      string
		container string
		key       string
		src       io.Reader
		opts      []objtypes.TransferOption
		sentinel  error
	}{
		{name: "bad container", container: "-x-", key: "k", src: strings.NewReader("a"), sentinel: objerrors.ErrInvalidContainerName},
		{name: "empty key", container: testContainer, key: "", src: strings.NewReader("a"), sentinel: objerrors.ErrInvalidObjectKey},
		{name: "traversal key", container: testContainer, key: "../etc/passwd", src: strings.NewReader("a"), sentinel: objerrors.ErrInvalidObjectKey},
		{name: "nil source", container: testContainer, key: "k", src: nil, sentinel: objerrors.ErrInvalidInput},
		{
			name: "reserved metadata", container: testContainer, key: "k", src: strings.NewReader("a"),
			opts: []objtypes.TransferOption{WithMetadata(map[string]string{objtypes.DigestMetadataKey: "x"})}, sentinel: objerrors.ErrInvalidInput,
		},
		{
			name: "bad content type", container: testContainer, key: "k", src: strings.NewReader("a"),
			opts: []objtypes.TransferOption{WithContentType("not a type")}, sentinel: objerrors.ErrInvalidInput,
		},
		{name: "unknown size", container: testContainer, key: "k", src: io.LimitReader(strings.NewReader("abc"), 3), sentinel: objerrors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.UploadObject(ctx, tt.container, tt.key, tt.src, tt.opts...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
	assert.Zero(t, mock.Calls("CreateMultipartUpload"))
}

func TestClient_UploadExpectedDigest(t *testing.T) {
	ctx := context.Background()
	client, mock, _ := newTestClient(t)
	data := []byte("digest checked payload")

	desc, err := client.UploadObject(ctx, testContainer, "ok.bin", bytes.NewReader(data),
		WithExpectedDigest(sha256Digest(data)))
	require.NoError(t, err)
	assert.Equal(t, sha256Digest(data), desc.Digest)

	_, err = client.UploadObject(ctx, testContainer, "bad.bin", bytes.NewReader(data),
		WithExpectedDigest(sha256Digest([]byte("something else"))))
	require.Error(t, err)
	assert.True(t, objerrors.IsChecksumMismatch(err))
	assert.Equal(t, 1, mock.Calls("AbortMultipartUpload"))

	_, err = client.StatObject(ctx, testContainer, "bad.bin")
	assert.True(t, objerrors.IsNotFound(err))
}

func TestClient_UploadWithSizeTruncated(t *testing.T) {
	client, _, _ := newTestClient(t)

	_, err := client.UploadObject(context.Background(), testContainer, "short.bin",
		io.LimitReader(strings.NewReader("only ten b"), 10), WithSize(40))
	require.Error(t, err)
	assert.ErrorIs(t, err, objerrors.ErrStreamTruncated)
}

func TestClient_UploadWithSizeTooSmall(t *testing.T) {
	ctx := context.Background()
	client, _, _ := newTestClient(t)

	_, err := client.UploadObject(ctx, testContainer, "long.bin",
		strings.NewReader(strings.Repeat("x", 40)), WithSize(20))
	require.Error(t, err)
	assert.True(t, objerrors.IsInvalidInput(err))

	_, err = client.StatObject(ctx, testContainer, "long.bin")
	assert.True(t, objerrors.IsNotFound(err))
}

func TestClient_DownloadErrors(t *testing.T) {
	ctx := context.Background()
	client, _, _ := newTestClient(t)

	err := client.DownloadObject(ctx, testContainer, "missing.bin", io.Discard)
	assert.True(t, objerrors.IsNotFound(err))

	err = client.DownloadObject(ctx, testContainer, "k", nil)
	assert.True(t, objerrors.IsInvalidInput(err))

	_, err = client.UploadObject(ctx, testContainer, "k", strings.NewReader("payload"))
	require.NoError(t, err)
	err = client.DownloadObject(ctx, testContainer, "k", io.Discard, WithExpectedDigest(sha256Digest([]byte("other"))))
	assert.True(t, objerrors.IsChecksumMismatch(err))
}

func TestClient_Containers(t *testing.T) {
	ctx := context.Background()
	client, _, _ := newTestClient(t)

	// idempotent
	require.NoError(t, client.CreateContainer(ctx, testContainer))

	exists, err := client.ContainerExists(ctx, testContainer)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = client.UploadObject(ctx, testContainer, "a.txt", strings.NewReader("a"))
	require.NoError(t, err)

	err = client.DeleteContainer(ctx, testContainer)
	assert.ErrorIs(t, err, objerrors.ErrContainerNotEmpty)

	require.NoError(t, client.DeleteContainer(ctx, testContainer, WithForce()))

	err = client.DeleteContainer(ctx, testContainer)
	assert.True(t, objerrors.IsNotFound(err))
	assert.NoError(t, client.DeleteContainer(ctx, testContainer, WithIgnoreMissing()))
}

func TestClient_ListObjects(t *testing.T) {
	ctx := context.Background()
	client, mock, _ := newTestClient(t)
	for _, k := range []string{"2024/b", "2024/a", "2023/z", "readme"} {
		_, err := client.UploadObject(ctx, testContainer, k, strings.NewReader(k))
		require.NoError(t, err)
	}

	var keys []string
	for obj, err := range client.ListObjects(ctx, testContainer, WithPrefix("2024/"), WithPageSize(1)) {
		require.NoError(t, err)
		keys = append(keys, obj.Key)
	}
	assert.Equal(t, []string{"2024/a", "2024/b"}, keys)
	assert.GreaterOrEqual(t, mock.Calls("ListObjects"), 2)

	n := 0
	for _, err := range client.ListObjects(ctx, testContainer) {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 4, n)
}

func TestClient_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	client, _, _ := newTestClient(t, WithMetricsRegisterer(reg))

	_, err := client.UploadObject(context.Background(), testContainer, "m.bin", strings.NewReader("metered"))
	require.NoError(t, err)

	n, err := promtest.GatherAndCount(reg, "objstore_sessions_total", "objstore_attempts_total", "objstore_bytes_total")
	require.NoError(t, err)
	assert.Positive(t, n)

	// a second client on the same registry reuses the collectors
	_, err = New(fstransport.NewMemory(), WithMetricsRegisterer(reg))
	assert.NoError(t, err)
}

type sizedReader struct {
	io.Reader
	size int64
}

func (s sizedReader) Size() int64 { return s.size }

func TestSourceSize(t *testing.T) {
	partial := bytes.NewReader([]byte("0123456789"))
	_, _ = partial.Read(make([]byte, 4))

	f, err := os.CreateTemp(t.TempDir(), "src")
	require.NoError(t, err)
	_, err = f.WriteString("file contents")
	require.NoError(t, err)
	_, err = f.Seek(5, io.SeekStart)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	tests := []struct {
		name     string
		src      io.Reader
		declared int64
		want     int64
		wantErr  bool
	}{
		{name: "declared wins", src: strings.NewReader("abc"), declared: 10, want: 10},
		{name: "declared zero", src: strings.NewReader("abc"), declared: 0, want: 0},
		{name: "strings reader", src: strings.NewReader("abc"), declared: -1, want: 3},
		{name: "buffer", src: bytes.NewBufferString("abcd"), declared: -1, want: 4},
		{name: "partially read reader", src: partial, declared: -1, want: 6},
		{name: "seeker from offset", src: f, declared: -1, want: 8},
		{name: "size method", src: sizedReader{Reader: strings.NewReader(""), size: 42}, declared: -1, want: 42},
		{name: "unknown", src: io.LimitReader(strings.NewReader("abc"), 3), declared: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sourceSize(tt.src, tt.declared)
			if tt.wantErr {
				assert.True(t, objerrors.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectContentType(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

	tests := []struct {
		name     string
		key      string
		data     []byte
		explicit string
		want     string
	}{
		{name: "explicit", key: "a.json", data: []byte("{}"), explicit: "text/csv", want: "text/csv"},
		{name: "extension", key: "config.json", data: []byte("{}"), want: "application/json"},
		{name: "sniffed", key: "image", data: png, want: "image/png"},
		{name: "empty", key: "empty", data: nil, want: DefaultContentType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, r, err := detectContentType(tt.key, bytes.NewReader(tt.data), int64(len(tt.data)), tt.explicit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// sniffed bytes are replayed
			all, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, len(tt.data), len(all))
		})
	}

	got, _, err := detectContentType("notes", strings.NewReader("plain words"), 11, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "text/plain"), got)
}

func TestClient_ContentTypeStored(t *testing.T) {
	ctx := context.Background()
	client, _, _ := newTestClient(t)

	desc, err := client.UploadObject(ctx, testContainer, "page.html", strings.NewReader("<html></html>"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(desc.ContentType, "text/html"), desc.ContentType)

	desc, err = client.UploadObject(ctx, testContainer, "raw", strings.NewReader("%PDF-1.4 rest of file"))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", desc.ContentType)
}

func TestBaseOSFS(t *testing.T) {
	fs := newBaseOSFS()
	dir := t.TempDir()
	p := filepath.Join(dir, "f.txt")

	f, err := fs.Create(p)
	require.NoError(t, err)
	_, err = f.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
	assert.Equal(t, "/", fs.Root())
}
