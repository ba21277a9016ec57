// Package testutil provides test utilities and mocks for objstore packages.
// This package is internal and should only be used for testing within the module.
package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport"
)

// MockTransport wraps a real transport and lets tests replace or observe any call.
// A nil function field delegates to Inner. Every call is counted, and
// UploadPart / GetObjectRange calls are tracked per chunk so tests can
// assert that no chunk is ever in flight twice at the same time.
type MockTransport struct {
	Inner transport.Transport

	CreateContainerFunc         func(ctx context.Context, name string) error
	HeadContainerFunc           func(ctx context.Context, name string) (*objtypes.Container, error)
	DeleteContainerFunc         func(ctx context.Context, name string) error
	ListObjectsFunc             func(ctx context.Context, req transport.ListRequest) (*transport.ListPage, error)
	HeadObjectFunc              func(ctx context.Context, container, key string) (*objtypes.ObjectDescriptor, error)
	GetObjectRangeFunc          func(ctx context.Context, container, key string, offset, length int64) (io.ReadCloser, error)
	DeleteObjectFunc            func(ctx context.Context, container, key string) error
	CreateMultipartUploadFunc   func(ctx context.Context, req transport.CreateMultipartRequest) (string, error)
	UploadPartFunc              func(ctx context.Context, req transport.UploadPartRequest) (*transport.PartResult, error)
	CompleteMultipartUploadFunc func(ctx context.Context, req transport.CompleteMultipartRequest) (*objtypes.ObjectDescriptor, error)
	AbortMultipartUploadFunc    func(ctx context.Context, container, key, uploadID string) error

	mu        sync.Mutex
	calls     map[string]int
	chunkHits map[string]map[int64]int
	inFlight  map[string]map[int64]int
	overlaps  int
	active    int
	peak      int
}

var _ transport.Transport = (*MockTransport)(nil)

// NewMockTransport wraps inner.
func NewMockTransport(inner transport.Transport) *MockTransport {
	return &MockTransport{Inner: inner}
}

func (m *MockTransport) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

// enter marks chunk id as in flight and returns the matching exit func.
func (m *MockTransport) enter(op string, id int64) func() {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	if m.chunkHits == nil {
		m.chunkHits = make(map[string]map[int64]int)
		m.inFlight = make(map[string]map[int64]int)
	}
	if m.chunkHits[op] == nil {
		m.chunkHits[op] = make(map[int64]int)
		m.inFlight[op] = make(map[int64]int)
	}
	m.calls[op]++
	m.chunkHits[op][id]++
	m.inFlight[op][id]++
	if m.inFlight[op][id] > 1 {
		m.overlaps++
	}
	m.active++
	if m.active > m.peak {
		m.peak = m.active
	}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		m.inFlight[op][id]--
		m.active--
		m.mu.Unlock()
	}
}

// Calls returns how many times op was called.
func (m *MockTransport) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// PartCalls returns how many UploadPart calls were made for a part number.
func (m *MockTransport) PartCalls(part int64) int {
	return m.chunkCalls("UploadPart", part)
}

// RangeCalls returns how many GetObjectRange calls were made at a byte offset.
func (m *MockTransport) RangeCalls(offset int64) int {
	return m.chunkCalls("GetObjectRange", offset)
}

func (m *MockTransport) chunkCalls(op string, id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunkHits[op][id]
}

// DistinctChunks returns the number of distinct chunks op was called for.
func (m *MockTransport) DistinctChunks(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunkHits[op])
}

// Overlaps returns how many times a chunk call started while the same chunk
// was already in flight for the same operation.
func (m *MockTransport) Overlaps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlaps
}

// PeakConcurrency returns the largest number of chunk calls in flight at once.
func (m *MockTransport) PeakConcurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// CreateContainer mocks transport.Transport.CreateContainer.
func (m *MockTransport) CreateContainer(ctx context.Context, name string) error {
	m.record("CreateContainer")
	if m.CreateContainerFunc != nil {
		return m.CreateContainerFunc(ctx, name)
	}
	return m.Inner.CreateContainer(ctx, name)
}

// HeadContainer mocks transport.Transport.HeadContainer.
func (m *MockTransport) HeadContainer(ctx context.Context, name string) (*objtypes.Container, error) {
	m.record("HeadContainer")
	if m.HeadContainerFunc != nil {
		return m.HeadContainerFunc(ctx, name)
	}
	return m.Inner.HeadContainer(ctx, name)
}

// DeleteContainer mocks transport.Transport.DeleteContainer.
func (m *MockTransport) DeleteContainer(ctx context.Context, name string) error {
	m.record("DeleteContainer")
	if m.DeleteContainerFunc != nil {
		return m.DeleteContainerFunc(ctx, name)
	}
	return m.Inner.DeleteContainer(ctx, name)
}

// ListObjects mocks transport.Transport.ListObjects.
func (m *MockTransport) ListObjects(ctx context.Context, req transport.ListRequest) (*transport.ListPage, error) {
	m.record("ListObjects")
	if m.ListObjectsFunc != nil {
		return m.ListObjectsFunc(ctx, req)
	}
	return m.Inner.ListObjects(ctx, req)
}

// HeadObject mocks transport.Transport.HeadObject.
func (m *MockTransport) HeadObject(ctx context.Context, container, key string) (*objtypes.ObjectDescriptor, error) {
	m.record("HeadObject")
	if m.HeadObjectFunc != nil {
		return m.HeadObjectFunc(ctx, container, key)
	}
	return m.Inner.HeadObject(ctx, container, key)
}

// GetObjectRange mocks transport.Transport.GetObjectRange.
func (m *MockTransport) GetObjectRange(ctx context.Context, container, key string, offset, length int64) (io.ReadCloser, error) {
	defer m.enter("GetObjectRange", offset)()
	if m.GetObjectRangeFunc != nil {
		return m.GetObjectRangeFunc(ctx, container, key, offset, length)
	}
	return m.Inner.GetObjectRange(ctx, container, key, offset, length)
}

// DeleteObject mocks transport.Transport.DeleteObject.
func (m *MockTransport) DeleteObject(ctx context.Context, container, key string) error {
	m.record("DeleteObject")
	if m.DeleteObjectFunc != nil {
		return m.DeleteObjectFunc(ctx, container, key)
	}
	return m.Inner.DeleteObject(ctx, container, key)
}

// CreateMultipartUpload mocks transport.Transport.CreateMultipartUpload.
func (m *MockTransport) CreateMultipartUpload(ctx context.Context, req transport.CreateMultipartRequest) (string, error) {
	m.record("CreateMultipartUpload")
	if m.CreateMultipartUploadFunc != nil {
		return m.CreateMultipartUploadFunc(ctx, req)
	}
	return m.Inner.CreateMultipartUpload(ctx, req)
}

// UploadPart mocks transport.Transport.UploadPart.
func (m *MockTransport) UploadPart(ctx context.Context, req transport.UploadPartRequest) (*transport.PartResult, error) {
	defer m.enter("UploadPart", int64(req.PartNumber))()
	if m.UploadPartFunc != nil {
		return m.UploadPartFunc(ctx, req)
	}
	return m.Inner.UploadPart(ctx, req)
}

// CompleteMultipartUpload mocks transport.Transport.CompleteMultipartUpload.
func (m *MockTransport) CompleteMultipartUpload(ctx context.Context, req transport.CompleteMultipartRequest) (*objtypes.ObjectDescriptor, error) {
	m.record("CompleteMultipartUpload")
	if m.CompleteMultipartUploadFunc != nil {
		return m.CompleteMultipartUploadFunc(ctx, req)
	}
	return m.Inner.CompleteMultipartUpload(ctx, req)
}

// AbortMultipartUpload mocks transport.Transport.AbortMultipartUpload.
func (m *MockTransport) AbortMultipartUpload(ctx context.Context, container, key, uploadID string) error {
	m.record("AbortMultipartUpload")
	if m.AbortMultipartUploadFunc != nil {
		return m.AbortMultipartUploadFunc(ctx, container, key, uploadID)
	}
	return m.Inner.AbortMultipartUpload(ctx, container, key, uploadID)
}
