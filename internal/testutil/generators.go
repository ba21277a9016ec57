package testutil

import (
	"fmt"
	"math/rand"
)

// TestDataGenerator provides deterministic test payloads.
type TestDataGenerator struct {
	rand *rand.Rand
}

// NewTestDataGenerator creates a new test data generator with a seeded random source.
func NewTestDataGenerator(seed int64) *TestDataGenerator {
	return &TestDataGenerator{
		rand: rand.New(rand.NewSource(seed)),
	}
}

// Bytes returns n pseudo-random bytes.
func (g *TestDataGenerator) Bytes(n int) []byte {
	b := make([]byte, n)
	_, _ = g.rand.Read(b)
	return b
}

// ContainerName returns a valid, unique-looking container name.
func (g *TestDataGenerator) ContainerName(prefix string) string {
	return fmt.Sprintf("%s-%08x", prefix, g.rand.Uint32())
}

// Keys returns count keys of the form <prefix>object-NNNN.bin.
func (g *TestDataGenerator) Keys(count int, prefix string) []string {
	keys := make([]string, count)
	for i := range keys {
		keys[i] = fmt.Sprintf("%sobject-%04d.bin", prefix, i)
	}
	return keys
}
