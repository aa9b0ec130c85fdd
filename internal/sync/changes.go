package sync

// mergeBotLogin is the platform identity attached to merges performed in
// the GitHub web UI. Such commits count as the owner's own work.
const mergeBotLogin = "web-flow"

// FileChange pairs a file touched in the batch with the commit that
// touched it.
type FileChange struct {
	Commit *RemoteCommit
	File   RemoteFile
}

// collectFileChanges reduces a newest-first commit batch to one entry per
// distinct (repository, path): the path's last committer within the batch.
//
// Commits are walked oldest to newest so a later touch overwrites an
// earlier one in the map — last writer wins within this sync batch.
// Unless allAuthors is set, only commits passing the ownership filter are
// considered, and changes without a content hash (deletions, renames) are
// always skipped. Output order is the first-touch order of each path,
// which keeps runs deterministic.
func collectFileChanges(repo RemoteRepo, commits []*RemoteCommit, allAuthors bool) []FileChange {
	type pathKey struct {
		repo string
		path string
	}

	latest := make(map[pathKey]FileChange)
	var order []pathKey

	for i := len(commits) - 1; i >= 0; i-- {
		commit := commits[i]
		if !allAuthors && !ownCommit(repo, commit) {
			continue
		}
		for _, file := range commit.Files {
			if file.SHA == "" {
				continue
			}
			key := pathKey{repo: repo.FullName(), path: file.Path}
			if _, seen := latest[key]; !seen {
				order = append(order, key)
			}
			latest[key] = FileChange{Commit: commit, File: file}
		}
	}

	changes := make([]FileChange, 0, len(latest))
	for _, key := range order {
		changes = append(changes, latest[key])
	}
	return changes
}

// ownCommit reports whether the commit appears to be from the repo owner:
// attributed to the owner, unattributed, or made by the platform merge bot.
func ownCommit(repo RemoteRepo, commit *RemoteCommit) bool {
	switch commit.AuthorLogin {
	case "", repo.Owner.Login, mergeBotLogin:
		return true
	}
	return false
}
