package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"classmirror/internal/model"
)

// downloadContents ensures every distinct content hash referenced by the
// batch has a file_content row, fetching blob bytes at most once per hash.
//
// Hashes already stored are skipped up front; when nothing is missing the
// whole step is a no-op with no network calls. Otherwise commits are
// walked oldest-first, and for each commit still owed at least one missing
// path, the repository tree is listed once — anchored at the current head,
// not at the historical commit — to locate the blobs. Paths outside the
// downloadable allow-list get a placeholder row with no content so the
// hash is still marked known.
//
// Each row is committed immediately after creation. A failure aborts the
// step, but rows already written persist and are skipped on retry.
func (s *Service) downloadContents(ctx context.Context, repo RemoteRepo, commits []*RemoteCommit, changes []FileChange) error {
	incoming := make(map[string]struct{})
	for _, change := range changes {
		incoming[change.File.SHA] = struct{}{}
	}
	if len(incoming) == 0 {
		return nil
	}

	shas := make([]string, 0, len(incoming))
	for sha := range incoming {
		shas = append(shas, sha)
	}
	existing, err := s.db.ExistingContentSHAs(ctx, shas)
	if err != nil {
		return fmt.Errorf("checking stored content: %w", err)
	}

	missing := make(map[string]struct{})
	for sha := range incoming {
		if _, ok := existing[sha]; !ok {
			missing[sha] = struct{}{}
		}
	}
	if len(missing) == 0 {
		return nil
	}

	s.logger.Info("downloading files", "repo", repo.FullName(), "count", len(missing))

	// Hashes handled during this run, seeded with what storage already
	// has: a hash touched by multiple paths or commits is fetched once.
	seen := make(map[string]struct{}, len(existing))
	for sha := range existing {
		seen[sha] = struct{}{}
	}

	for i := len(commits) - 1; i >= 0; i-- {
		commit := commits[i]

		paths := make(map[string]struct{})
		for _, change := range changes {
			if change.Commit != commit {
				continue
			}
			if _, ok := missing[change.File.SHA]; ok {
				paths[change.File.Path] = struct{}{}
			}
		}
		if len(paths) == 0 {
			continue
		}

		tree, err := s.provider.GetHeadTree(ctx, repo)
		if err != nil {
			return &SourceError{Op: "listing tree for " + repo.FullName(), Err: err}
		}

		for _, entry := range tree {
			if _, wanted := paths[entry.Path]; !wanted {
				continue
			}
			if _, done := seen[entry.SHA]; done {
				continue
			}

			s.logger.Info("downloading", "repo", repo.FullName(), "path", entry.Path, "sha", entry.SHA)

			content := &model.FileContent{SHA: entry.SHA}
			if s.downloadablePath(entry.Path) {
				blob, err := s.provider.GetBlob(ctx, repo, entry.SHA)
				if err != nil {
					return &SourceError{Op: "downloading " + repo.FullName() + "/" + entry.Path, Err: err}
				}
				content.Content = blob.Content
				content.ContentType = contentTypeForPath(entry.Path)
			}

			if err := s.db.CreateFileContent(ctx, content); err != nil {
				return fmt.Errorf("storing content %s: %w", entry.SHA, err)
			}
			if s.archive != nil && content.Content != nil {
				if err := s.archive.Put(ctx, entry.SHA, content.Content); err != nil {
					return fmt.Errorf("archiving content %s: %w", entry.SHA, err)
				}
			}
			seen[entry.SHA] = struct{}{}
		}
	}

	return nil
}

// downloadablePath reports whether the path's extension is on the
// content-fetch allow-list.
func (s *Service) downloadablePath(path string) bool {
	for _, ext := range s.opts.downloadableExtensions() {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// contentTypeForPath tags downloaded content by its path extension.
func contentTypeForPath(path string) string {
	switch filepath.Ext(path) {
	case ".ipynb":
		return "application/x-ipynb+json"
	case ".py":
		return "text/x-python"
	case ".md":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	default:
		return ""
	}
}
