package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkPool_Get(t *testing.T) {
	cp := NewChunkPool()

	buf := cp.Get(1024, 100)
	require.Len(t, buf, 100)
	assert.Equal(t, 1024, cap(buf))

	cp.Put(1024, buf)
	assert.ElementsMatch(t, []int64{1024}, cp.Sizes())
}

func TestChunkPool_FullChunk(t *testing.T) {
	cp := NewChunkPool()

	buf := cp.Get(64, 64)
	assert.Len(t, buf, 64)
	assert.Equal(t, 64, cap(buf))
	cp.Put(64, buf)
}

func TestChunkPool_OversizedRequest(t *testing.T) {
	cp := NewChunkPool()

	buf := cp.Get(16, 32)
	assert.Len(t, buf, 32)

	// Not pooled: capacity does not match
	cp.Put(16, buf)
	assert.Empty(t, cp.Sizes())
}

func TestChunkPool_ZeroLength(t *testing.T) {
	cp := NewChunkPool()

	buf := cp.Get(0, 0)
	assert.Empty(t, buf)
	cp.Put(0, buf)
	assert.Empty(t, cp.Sizes())
}

func TestChunkPool_Concurrent(t *testing.T) {
	cp := NewChunkPool()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			size := int64(128 * (i%4 + 1))
			for j := 0; j < 100; j++ {
				buf := cp.Get(size, size/2)
				buf[0] = byte(j)
				cp.Put(size, buf)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, cp.Sizes(), 4)
}
