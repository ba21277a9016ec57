package objstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport/fstransport"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		env      map[string]string
		validate func(t *testing.T, fc *FileConfig)
		wantErr  string
	}{
		{
			name: "yaml with defaults",
			file: "objstore.yaml",
			content: `
maxChunkBytes: 1048576
maxParallelism: 8
backend:
  type: fs
  fs:
    root: /var/lib/objects
`,
			validate: func(t *testing.T, fc *FileConfig) {
				assert.Equal(t, int64(1<<20), fc.MaxChunkBytes)
				assert.Equal(t, 8, fc.MaxParallelism)
				assert.Equal(t, DefaultFileConfig().MaxAttempts, fc.MaxAttempts)
				assert.Equal(t, "sha256", fc.ChecksumAlgorithm)
				assert.Equal(t, BackendFS, fc.Backend.Type)
				assert.Equal(t, "/var/lib/objects", fc.Backend.FS.Root)
			},
		},
		{
			name:    "json",
			file:    "objstore.json",
			content: `{"maxAttempts": 2, "backend": {"type": "minio", "minio": {"endpoint": "localhost:9000", "secure": true}}}`,
			validate: func(t *testing.T, fc *FileConfig) {
				assert.Equal(t, 2, fc.MaxAttempts)
				assert.Equal(t, "localhost:9000", fc.Backend.MinIO.Endpoint)
				assert.True(t, fc.Backend.MinIO.Secure)
			},
		},
		{
			name:    "environment overrides",
			file:    "objstore.yaml",
			content: "maxParallelism: 2\nbackend:\n  type: s3\n",
			env: map[string]string{
				"OBJSTORE_MAXPARALLELISM":    "9",
				"OBJSTORE_BACKEND_S3_REGION": "eu-west-1",
			},
			validate: func(t *testing.T, fc *FileConfig) {
				assert.Equal(t, 9, fc.MaxParallelism)
				assert.Equal(t, "eu-west-1", fc.Backend.S3.Region)
			},
		},
		{
			name:    "zero parallelism",
			file:    "objstore.yaml",
			content: "maxParallelism: 0\nbackend:\n  type: fs\n",
			wantErr: "MaxParallelism",
		},
		{
			name:    "missing backend type",
			file:    "objstore.yaml",
			content: "maxAttempts: 3\n",
			wantErr: "Type",
		},
		{
			name:    "unknown backend type",
			file:    "objstore.yaml",
			content: "backend:\n  type: azure\n",
			wantErr: "Type",
		},
		{
			name:    "minio without endpoint",
			file:    "objstore.yaml",
			content: "backend:\n  type: minio\n",
			wantErr: "Endpoint",
		},
		{
			name:    "storj without access grant",
			file:    "objstore.yaml",
			content: "backend:\n  type: storj\n",
			wantErr: "AccessGrant",
		},
		{
			name:    "bad checksum",
			file:    "objstore.yaml",
			content: "checksumAlgorithm: md5\nbackend:\n  type: fs\n",
			wantErr: "ChecksumAlgorithm",
		},
		{
			name:    "max backoff below base",
			file:    "objstore.yaml",
			content: "baseBackoffMs: 500\nmaxBackoffMs: 100\nbackend:\n  type: fs\n",
			wantErr: "MaxBackoffMs",
		},
		{
			name:    "malformed yaml",
			file:    "objstore.yaml",
			content: "maxParallelism: [\n",
			wantErr: "read",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			fc, err := LoadConfig(writeConfig(t, tt.file, tt.content))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, objerrors.IsInvalidInput(err))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.validate(t, fc)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, objerrors.IsInvalidInput(err))
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	t.Setenv("OBJSTORE_BACKEND_TYPE", "fs")
	t.Setenv("OBJSTORE_LISTPAGESIZE", "50")

	fc, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, BackendFS, fc.Backend.Type)
	assert.Equal(t, 50, fc.ListPageSize)
}

func TestFileConfig_Configuration(t *testing.T) {
	fc := DefaultFileConfig()
	assert.Equal(t, objtypes.DefaultConfiguration(), fc.Configuration())

	fc.BaseBackoffMs = 250
	fc.CallTimeoutMs = 1500
	fc.SessionDeadlineMs = 60000
	cfg := fc.Configuration()
	assert.Equal(t, 250*time.Millisecond, cfg.BaseBackoff)
	assert.Equal(t, 1500*time.Millisecond, cfg.CallTimeout)
	assert.Equal(t, time.Minute, cfg.SessionDeadline)
}

func TestOpenTransport(t *testing.T) {
	ctx := context.Background()

	mem, err := OpenTransport(ctx, BackendConfig{Type: BackendFS})
	require.NoError(t, err)
	assert.IsType(t, &fstransport.Transport{}, mem)

	root := t.TempDir()
	disk, err := OpenTransport(ctx, BackendConfig{Type: BackendFS, FS: FSBackend{Root: root}})
	require.NoError(t, err)
	require.NoError(t, disk.CreateContainer(ctx, "archive"))
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	minio, err := OpenTransport(ctx, BackendConfig{Type: BackendMinIO, MinIO: MinIOBackend{Endpoint: "localhost:9000"}})
	require.NoError(t, err)
	assert.NotNil(t, minio)

	tests := []struct {
		name string
		cfg  BackendConfig
	}{
		{name: "empty type", cfg: BackendConfig{}},
		{name: "unknown type", cfg: BackendConfig{Type: "azure"}},
		{name: "minio without endpoint", cfg: BackendConfig{Type: BackendMinIO}},
		{name: "storj without grant", cfg: BackendConfig{Type: BackendStorj}},
		{name: "s3 bad endpoint", cfg: BackendConfig{Type: BackendS3, S3: S3Backend{Endpoint: "not a url"}}},
		{name: "s3 key without secret", cfg: BackendConfig{Type: BackendS3, S3: S3Backend{AccessKeyID: "AKIA"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OpenTransport(ctx, tt.cfg)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, objerrors.IsInvalidInput(err))
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	path := writeConfig(t, "objstore.yaml", strings.Join([]string{
		"maxChunkBytes: 32",
		"maxParallelism: 2",
		"backend:",
		"  type: fs",
		"  fs:",
		"    root: " + root,
	}, "\n"))

	client, err := NewFromConfig(ctx, path, WithMaxAttempts(2))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	cfg := client.Configuration()
	assert.Equal(t, int64(32), cfg.MaxChunkBytes)
	assert.Equal(t, 2, cfg.MaxParallelism)
	assert.Equal(t, 2, cfg.MaxAttempts)

	require.NoError(t, client.CreateContainer(ctx, "backups"))
	desc, err := client.UploadObject(ctx, "backups", "db.dump", strings.NewReader(strings.Repeat("row\n", 40)))
	require.NoError(t, err)
	assert.Equal(t, int64(160), desc.Size)

	var out strings.Builder
	require.NoError(t, client.DownloadObject(ctx, "backups", "db.dump", &out))
	assert.Equal(t, strings.Repeat("row\n", 40), out.String())

	_, err = NewFromConfig(ctx, path, WithMaxParallelism(-1))
	assert.True(t, objerrors.IsInvalidInput(err))
}

func TestNewFromConfig_DefaultPath(t *testing.T) {
	home := t.TempDir()
	// runs after the environment is restored
	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_CONFIG_HOME", home)
	xdg.Reload()

	assert.Empty(t, DefaultConfigPath())

	dir := filepath.Join(home, "objstore")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("listPageSize: 7\nbackend:\n  type: fs\n"), 0o600))

	assert.Equal(t, filepath.Join(dir, "config.yaml"), DefaultConfigPath())

	client, err := NewFromConfig(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	assert.Equal(t, 7, client.Configuration().ListPageSize)
}
