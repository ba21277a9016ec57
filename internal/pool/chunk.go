// Package pool recycles chunk buffers between transfer sessions.
//
// Every session of the same chunk size draws from the same pool, so a
// long-running client that moves many objects allocates only a handful of
// chunk-sized buffers.
package pool

import (
	"sync"
)

// ChunkPool hands out byte slices with capacity for exactly one chunk.
// Pools are keyed by chunk size and created lazily.
type ChunkPool struct {
	mu    sync.Mutex
	pools map[int64]*sync.Pool
}

// NewChunkPool creates an empty ChunkPool.
func NewChunkPool() *ChunkPool {
	return &ChunkPool{pools: make(map[int64]*sync.Pool)}
}

func (cp *ChunkPool) poolFor(size int64) *sync.Pool {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	p, ok := cp.pools[size]
	if !ok {
		p = &sync.Pool{
			New: func() any {
				buf := make([]byte, 0, size)
				return &buf
			},
		}
		cp.pools[size] = p
	}
	return p
}

// Get returns a buffer of length n backed by a pooled slice of capacity chunkSize.
// A request larger than chunkSize is allocated directly and never pooled.
// The caller must call Put with the same chunkSize once the buffer is no longer referenced.
func (cp *ChunkPool) Get(chunkSize, n int64) []byte {
	if chunkSize <= 0 || n > chunkSize {
		return make([]byte, n)
	}
	bufPtr := cp.poolFor(chunkSize).Get().(*[]byte)
	return (*bufPtr)[:n]
}

// Put returns a buffer obtained from Get. Buffers whose capacity does not match
// chunkSize are dropped.
func (cp *ChunkPool) Put(chunkSize int64, buf []byte) {
	if chunkSize <= 0 || int64(cap(buf)) != chunkSize {
		return
	}
	buf = buf[:0]
	cp.poolFor(chunkSize).Put(&buf)
}

// Sizes returns the chunk sizes that currently have a pool.
func (cp *ChunkPool) Sizes() []int64 {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	sizes := make([]int64, 0, len(cp.pools))
	for s := range cp.pools {
		sizes = append(sizes, s)
	}
	return sizes
}
