// Package container implements container and object lifecycle operations:
// everything that is a single request rather than a chunked transfer.
package container

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport"
)

// Manager runs container and object operations through the retry policy.
// Calls run on the caller's goroutine.
type Manager struct {
	transport transport.Transport
	retry     *retry.Policy
	cache     *existenceCache
	pageSize  int
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Manager.
func New(t transport.Transport, policy *retry.Policy, cfg objtypes.Configuration, opts ...Option) *Manager {
	m := &Manager{
		transport: t,
		retry:     policy,
		cache:     newExistenceCache(cfg.ContainerCacheTTL),
		pageSize:  cfg.ListPageSize,
		logger:    slog.New(slog.DiscardHandler),
	}
	if m.pageSize <= 0 {
		m.pageSize = objtypes.DefaultListPageSize
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateContainer creates name. A container that already exists is not an error.
func (m *Manager) CreateContainer(ctx context.Context, name string) error {
	if err := validation.ValidateContainerName(name); err != nil {
		return err
	}

	err := m.retry.Execute(ctx, "CreateContainer", func(ctx context.Context) error {
		return m.transport.CreateContainer(ctx, name)
	})
	switch {
	case err == nil:
		m.logger.InfoContext(ctx, "container created", "container", name)
	case objerrors.IsAlreadyExists(err):
		m.logger.DebugContext(ctx, "container already exists", "container", name)
	default:
		return wrapContainer("createContainer", name, err)
	}

	m.cache.set(name, true)
	return nil
}

// DeleteContainer deletes name. With Force every object in the container is
// deleted first; with IgnoreMissing a missing container is not an error.
func (m *Manager) DeleteContainer(ctx context.Context, name string, opts objtypes.DeleteContainerOptionConfig) error {
	if err := validation.ValidateContainerName(name); err != nil {
		return err
	}

	if opts.Force {
		if err := m.emptyContainer(ctx, name); err != nil {
			if objerrors.IsNotFound(err) && opts.IgnoreMissing {
				m.cache.set(name, false)
				return nil
			}
			return err
		}
	}

	err := m.retry.Execute(ctx, "DeleteContainer", func(ctx context.Context) error {
		return m.transport.DeleteContainer(ctx, name)
	})
	m.cache.forget(name)
	if err != nil {
		if objerrors.IsNotFound(err) && opts.IgnoreMissing {
			m.cache.set(name, false)
			return nil
		}
		return wrapContainer("deleteContainer", name, err)
	}

	m.cache.set(name, false)
	m.logger.InfoContext(ctx, "container deleted", "container", name, "force", opts.Force)
	return nil
}

func (m *Manager) emptyContainer(ctx context.Context, name string) error {
	deleted := 0
	// Keys are collected first so deletions do not shift the listing under the cursor.
	var keys []string
	for obj, err := range m.ListObjects(ctx, name, objtypes.ListOptionConfig{}) {
		if err != nil {
			return err
		}
		keys = append(keys, obj.Key)
	}
	for _, key := range keys {
		if err := m.DeleteObject(ctx, name, key); err != nil {
			return err
		}
		deleted++
	}
	if deleted > 0 {
		m.logger.InfoContext(ctx, "container emptied", "container", name, "objects", deleted)
	}
	return nil
}

// ContainerExists reports whether name exists, trusting a recent answer for the cache TTL.
func (m *Manager) ContainerExists(ctx context.Context, name string) (bool, error) {
	if err := validation.ValidateContainerName(name); err != nil {
		return false, err
	}
	if present, ok := m.cache.get(name); ok {
		return present, nil
	}

	_, err := retry.Do(ctx, m.retry, "HeadContainer", func(ctx context.Context) (*objtypes.Container, error) {
		return m.transport.HeadContainer(ctx, name)
	})
	switch {
	case err == nil:
		m.cache.set(name, true)
		return true, nil
	case objerrors.IsNotFound(err):
		m.cache.set(name, false)
		return false, nil
	default:
		return false, wrapContainer("containerExists", name, err)
	}
}

// ListObjects returns the objects in container whose keys start with
// opts.Prefix, in the backend's listing order. opts.PageSize overrides the
// configured page size.
//
// Pages are fetched lazily as the sequence is consumed, and every range over
// the sequence starts again from the first page. An error is yielded once
// and ends the sequence.
func (m *Manager) ListObjects(
	ctx context.Context,
	container string,
	opts objtypes.ListOptionConfig,
) iter.Seq2[objtypes.ObjectDescriptor, error] {
	return func(yield func(objtypes.ObjectDescriptor, error) bool) {
		if err := validation.ValidateContainerName(container); err != nil {
			yield(objtypes.ObjectDescriptor{}, err)
			return
		}

		pageSize := opts.PageSize
		if pageSize <= 0 {
			pageSize = m.pageSize
		}

		token := ""
		for {
			req := transport.ListRequest{
				Container: container,
				Prefix:    opts.Prefix,
				Token:     token,
				PageSize:  pageSize,
			}
			page, err := retry.Do(ctx, m.retry, "ListObjects", func(ctx context.Context) (*transport.ListPage, error) {
				return m.transport.ListObjects(ctx, req)
			})
			if err != nil {
				yield(objtypes.ObjectDescriptor{}, wrapContainer("listObjects", container, err))
				return
			}

			for _, obj := range page.Objects {
				if !yield(obj, nil) {
					return
				}
			}
			if page.NextToken == "" || page.NextToken == token {
				return
			}
			token = page.NextToken
		}
	}
}

// DeleteObject deletes key. Deleting an object that does not exist succeeds.
func (m *Manager) DeleteObject(ctx context.Context, container, key string) error {
	if err := validateObject(container, key); err != nil {
		return err
	}

	err := m.retry.Execute(ctx, "DeleteObject", func(ctx context.Context) error {
		return m.transport.DeleteObject(ctx, container, key)
	})
	if err != nil && !objerrors.IsNotFound(err) {
		return wrapObject("deleteObject", container, key, err)
	}
	m.logger.DebugContext(ctx, "object deleted", "container", container, "key", key)
	return nil
}

// StatObject returns the stored descriptor of key.
func (m *Manager) StatObject(ctx context.Context, container, key string) (*objtypes.ObjectDescriptor, error) {
	if err := validateObject(container, key); err != nil {
		return nil, err
	}

	desc, err := retry.Do(ctx, m.retry, "HeadObject", func(ctx context.Context) (*objtypes.ObjectDescriptor, error) {
		return m.transport.HeadObject(ctx, container, key)
	})
	if err != nil {
		return nil, wrapObject("statObject", container, key, err)
	}
	return desc, nil
}

func validateObject(container, key string) error {
	if err := validation.ValidateContainerName(container); err != nil {
		return err
	}
	return validation.ValidateObjectKey(key)
}

// wrapContainer keeps errors that already carry an objstore.Error and wraps the rest.
func wrapContainer(op, container string, err error) error {
	var e *objerrors.Error
	if errors.As(err, &e) {
		return err
	}
	return objerrors.NewContainerError(op, container, err)
}

func wrapObject(op, container, key string, err error) error {
	var e *objerrors.Error
	if errors.As(err, &e) {
		return err
	}
	return objerrors.NewObjectError(op, container, key, err)
}
