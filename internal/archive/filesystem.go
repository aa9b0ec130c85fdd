package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSystemArchive stores blobs as files under a root directory, one
// file per content hash:
//
//	<root>/
//	  <sha[:2]>/
//	    <sha>
//
// The two-character fan-out keeps directories small for large classes.
type FileSystemArchive struct {
	root string
}

// NewFileSystemArchive creates a filesystem archive rooted at the given
// path.
func NewFileSystemArchive(root string) (*FileSystemArchive, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating archive root: %w", err)
	}
	return &FileSystemArchive{root: root}, nil
}

func (a *FileSystemArchive) blobPath(sha string) string {
	prefix := sha
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join(a.root, prefix, sha)
}

// Put stores content under its hash. An existing blob is left untouched.
func (a *FileSystemArchive) Put(_ context.Context, sha string, content []byte) error {
	dest := a.blobPath(sha)

	if _, err := os.Stat(dest); err == nil {
		return nil // already archived
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	// Write to a temp file and rename so a crash never leaves a partial
	// blob addressable by its hash.
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+sha+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing blob: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming blob into place: %w", err)
	}
	return nil
}

// Get retrieves content by hash.
func (a *FileSystemArchive) Get(_ context.Context, sha string) ([]byte, error) {
	content, err := os.ReadFile(a.blobPath(sha))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("content not found: %s", sha)
		}
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	return content, nil
}
