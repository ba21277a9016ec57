package testutil

import "sync"

// MockProgressTracker is a mock implementation of ProgressTracker for testing.
// It is safe for concurrent use because upload workers report progress in parallel.
type MockProgressTracker struct {
	mu               sync.Mutex
	updates          int
	bytesTransferred int64
	totalBytes       int64
	completed        bool
	lastError        error
}

// Update records a progress update.
func (m *MockProgressTracker) Update(bytesTransferred, totalBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if bytesTransferred > m.bytesTransferred {
		m.bytesTransferred = bytesTransferred
	}
	m.totalBytes = totalBytes
}

// Complete marks the operation as complete.
func (m *MockProgressTracker) Complete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = true
}

// Error records an error.
func (m *MockProgressTracker) Error(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = err
}

// Snapshot returns the recorded state.
func (m *MockProgressTracker) Snapshot() (updates int, transferred, total int64, completed bool, lastErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates, m.bytesTransferred, m.totalBytes, m.completed, m.lastError
}
