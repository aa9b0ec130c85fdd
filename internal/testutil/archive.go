package testutil

import (
	"classmirror/internal/archive"
)

// NewTestArchive creates a new in-memory blob archive for testing.
func NewTestArchive() *archive.MemoryArchive {
	return archive.NewMemoryArchive()
}
