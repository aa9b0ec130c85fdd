package archive

import (
	"context"
	"fmt"

	"classmirror/internal/config"
	"classmirror/internal/sync"
)

// NewArchiveFromConfig creates an Archive implementation based on the
// archive config type. Type "none" (or empty) returns nil: blob
// mirroring is disabled.
func NewArchiveFromConfig(ctx context.Context, cfg config.ArchiveConfig) (sync.Archive, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryArchive(), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem archive requires root to be set")
		}
		return NewFileSystemArchive(cfg.Root)
	case "s3":
		return NewS3Archive(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
