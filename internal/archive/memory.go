package archive

import (
	"context"
	"fmt"
	"sync"
)

// MemoryArchive is an in-memory implementation of the blob archive.
// Useful for tests and throwaway runs; contents are lost on exit.
type MemoryArchive struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{blobs: make(map[string][]byte)}
}

// Put stores content under its hash. Storing the same hash again is a
// no-op: blobs are immutable once written.
func (a *MemoryArchive) Put(_ context.Context, sha string, content []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.blobs[sha]; ok {
		return nil
	}
	stored := make([]byte, len(content))
	copy(stored, content)
	a.blobs[sha] = stored
	return nil
}

// Get retrieves content by hash.
func (a *MemoryArchive) Get(_ context.Context, sha string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	content, ok := a.blobs[sha]
	if !ok {
		return nil, fmt.Errorf("content not found: %s", sha)
	}
	out := make([]byte, len(content))
	copy(out, content)
	return out, nil
}

// Len returns the number of stored blobs.
func (a *MemoryArchive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.blobs)
}
