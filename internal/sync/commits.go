package sync

import (
	"context"
	"errors"
	"io"
)

// fetchNewCommits drains the provider's commit iterator for repo,
// excluding commits whose sha is already known, and truncates to the
// commit limit when one is set. The result keeps the source's order
// (newest first). Pure read: nothing is persisted here.
func (s *Service) fetchNewCommits(ctx context.Context, repo RemoteRepo, window FetchWindow, known map[string]struct{}) ([]*RemoteCommit, error) {
	iter, err := s.provider.ListCommits(ctx, repo, window)
	if err != nil {
		return nil, &SourceError{Op: "listing commits for " + repo.FullName(), Err: err}
	}
	defer iter.Close()

	var commits []*RemoteCommit
	for {
		commit, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &SourceError{Op: "listing commits for " + repo.FullName(), Err: err}
		}
		if _, ok := known[commit.SHA]; ok {
			continue
		}
		commits = append(commits, commit)
		// Keep the most recent N: a prefix of the newest-first sequence.
		if s.opts.CommitLimit > 0 && len(commits) >= s.opts.CommitLimit {
			break
		}
	}
	return commits, nil
}
