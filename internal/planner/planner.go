// Package planner splits an object into a deterministic list of chunks.
package planner

import (
	"fmt"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
)

// Plan is the chunk layout of one object transfer.
type Plan struct {
	// Key is the object key being transferred
	Key string

	// TotalSize is the object size in bytes
	TotalSize int64

	// ChunkSize is the length of every chunk except possibly the last
	ChunkSize int64

	// Parallelism is the number of workers the plan needs
	Parallelism int

	// Chunks is the ordered chunk list; indices are contiguous from zero
	Chunks []objtypes.ChunkDescriptor
}

// Build plans a transfer of totalSize bytes. The same inputs always yield the same plan.
// A zero-size object is planned as a single zero-length chunk so that an
// empty object still produces exactly one part.
func Build(key string, totalSize, maxChunkBytes int64, maxParallelism int) (*Plan, error) {
	if totalSize < 0 {
		return nil, invalid(key, fmt.Sprintf("total size %d is negative", totalSize))
	}
	if maxChunkBytes < 1 {
		return nil, invalid(key, fmt.Sprintf("max chunk bytes %d must be positive", maxChunkBytes))
	}
	if maxParallelism < 1 {
		return nil, invalid(key, fmt.Sprintf("max parallelism %d must be positive", maxParallelism))
	}

	chunkSize := min(maxChunkBytes, totalSize)
	count := 1
	if totalSize > 0 {
		count = int((totalSize + chunkSize - 1) / chunkSize)
	}

	chunks := make([]objtypes.ChunkDescriptor, count)
	var offset int64
	for i := range chunks {
		length := min(chunkSize, totalSize-offset)
		chunks[i] = objtypes.ChunkDescriptor{
			Key:    key,
			Index:  i,
			Offset: offset,
			Length: length,
			State:  objtypes.ChunkPending,
		}
		offset += length
	}

	return &Plan{
		Key:         key,
		TotalSize:   totalSize,
		ChunkSize:   chunkSize,
		Parallelism: min(maxParallelism, count),
		Chunks:      chunks,
	}, nil
}

func invalid(key, msg string) error {
	return objerrors.NewError("plan", objerrors.ErrInvalidInput).WithKey(key).WithMessage(msg)
}
