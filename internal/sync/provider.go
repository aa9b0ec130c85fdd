package sync

import (
	"context"
	"time"
)

// RemoteUser is an account as reported by the source.
type RemoteUser struct {
	Login     string
	Name      string
	AvatarURL string
}

// RemoteRepo is a repository handle at the source.
type RemoteRepo struct {
	Owner RemoteUser
	Name  string
}

// FullName returns the source-side "owner/name" identifier.
func (r RemoteRepo) FullName() string { return r.Owner.Login + "/" + r.Name }

// RemoteFile is one file touched by a commit. SHA is empty for changes
// that carry no content (deletions, renames without a blob).
type RemoteFile struct {
	Path string
	SHA  string
}

// RemoteCommit is a commit descriptor as returned by the source.
// AuthorLogin is empty when the commit is unattributed.
type RemoteCommit struct {
	SHA         string
	AuthorLogin string
	CommitDate  time.Time
	Files       []RemoteFile
}

// TreeEntry is one blob in a repository tree listing.
type TreeEntry struct {
	Path string
	SHA  string
}

// Blob is downloaded file content, already decoded.
type Blob struct {
	SHA     string
	Content []byte
}

// CommitIter is a lazy, finite, single-pass sequence of commits in the
// order the source returns them (newest first). Next returns io.EOF when
// the sequence is exhausted. Close releases any underlying resources and
// is safe to call more than once.
type CommitIter interface {
	Next() (*RemoteCommit, error)
	Close() error
}

// FetchWindow is the lower bound for a commit fetch, produced by the
// watermark resolver and consumed verbatim by the commit fetcher.
// A nil Since means no bound: fetch the entire history.
type FetchWindow struct {
	Since *time.Time
}

// SourceProvider is the capability interface over the remote source.
// All listings are finite; implementations may page lazily.
type SourceProvider interface {
	// GetRepo resolves an "owner/name" identifier.
	GetRepo(ctx context.Context, fullName string) (*RemoteRepo, error)

	// ListForks returns the forks of repo, excluding any whose owner login
	// is in ignoreLogins.
	ListForks(ctx context.Context, repo RemoteRepo, ignoreLogins map[string]struct{}) ([]RemoteRepo, error)

	// ListCommits returns a newest-first iterator over repo's commits,
	// restricted to those at or after window.Since when it is set.
	ListCommits(ctx context.Context, repo RemoteRepo, window FetchWindow) (CommitIter, error)

	// GetHeadTree returns the recursive tree listing at the repository's
	// current head.
	GetHeadTree(ctx context.Context, repo RemoteRepo) ([]TreeEntry, error)

	// GetBlob downloads the blob with the given content hash.
	GetBlob(ctx context.Context, repo RemoteRepo, sha string) (*Blob, error)

	// ListTeamMembers returns the members of all teams in the organization.
	ListTeamMembers(ctx context.Context, org string) ([]RemoteUser, error)
}
