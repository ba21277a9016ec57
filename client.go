package objstore

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/go-git/go-billy/v5"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/container"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/transfer"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport"
)

// Handle tracks a running upload or download.
type Handle = transfer.Handle

// Client is an object storage client bound to one transport.
//
// Thread Safety: a Client is safe for concurrent use. Each transfer runs in
// its own session with its own workers.
type Client struct {
	transport  transport.Transport
	containers *container.Manager
	transfers  *transfer.Coordinator
	cfg        objtypes.Configuration

	// fs backs UploadFile and DownloadFile
	fs     billy.Filesystem
	logger *slog.Logger

	// owned is closed by Close when the client opened the transport itself
	owned     io.Closer
	closeOnce sync.Once
	closeErr  error
}

// New creates a client on top of t.
//
// Example:
//
//	client, err := objstore.New(fstransport.NewOS("/var/lib/objects"),
//	    objstore.WithMaxChunkBytes(8<<20),
//	    objstore.WithLogger(logger),
//	)
func New(t transport.Transport, opts ...objtypes.Option) (*Client, error) {
	if t == nil {
		return nil, objerrors.NewError("client initialization", objerrors.ErrInvalidInput).
			WithMessage("transport cannot be nil")
	}

	cfg := &objtypes.ClientConfig{Configuration: objtypes.DefaultConfiguration()}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := validate("client initialization", cfg.Configuration); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var recorder *metrics.Recorder
	policyOpts := []retry.Option{retry.WithLogger(logger)}
	if cfg.MetricsRegisterer != nil {
		var err error
		recorder, err = metrics.NewRecorder(cfg.MetricsRegisterer)
		if err != nil {
			return nil, objerrors.NewError("client initialization", err)
		}
		policyOpts = append(policyOpts, retry.WithObserver(recorder))
	}

	policy := retry.New(retry.Config{
		MaxAttempts: cfg.MaxAttempts,
		BaseBackoff: cfg.BaseBackoff,
		MaxBackoff:  cfg.MaxBackoff,
		CallTimeout: cfg.CallTimeout,
	}, policyOpts...)

	filesystem := cfg.Filesystem
	if filesystem == nil {
		filesystem = newBaseOSFS()
	}

	return &Client{
		transport:  t,
		containers: container.New(t, policy, cfg.Configuration, container.WithLogger(logger)),
		transfers: transfer.New(t, policy, cfg.Configuration,
			transfer.WithLogger(logger),
			transfer.WithMetrics(recorder),
		),
		cfg:    cfg.Configuration,
		fs:     filesystem,
		logger: logger,
	}, nil
}

// NewFromConfig loads a configuration file (see LoadConfig), opens the
// configured backend and creates a client on it. An empty path falls back to
// DefaultConfigPath. Options are applied after the file settings and
// override them.
func NewFromConfig(ctx context.Context, path string, opts ...objtypes.Option) (*Client, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	fc, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	t, err := OpenTransport(ctx, fc.Backend)
	if err != nil {
		return nil, err
	}

	base := fc.Configuration()
	all := append([]objtypes.Option{func(c *objtypes.ClientConfig) { c.Configuration = base }}, opts...)
	c, err := New(t, all...)
	if err != nil {
		if closer, ok := t.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, err
	}
	if closer, ok := t.(io.Closer); ok {
		c.owned = closer
	}
	return c, nil
}

// Configuration returns the effective configuration.
func (c *Client) Configuration() objtypes.Configuration {
	return c.cfg
}

// Close releases the transport when the client opened it. Transfers still
// running are not waited for. Close is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.owned != nil {
			c.closeErr = c.owned.Close()
		}
	})
	return c.closeErr
}
