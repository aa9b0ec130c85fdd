package sync

import (
	"context"
	"time"

	"classmirror/internal/model"
)

// Database is the storage interface for the sync engine. Upsert methods
// are idempotent batch operations keyed by the record's natural key:
// running the same batch twice leaves the store unchanged. Nothing is
// ever deleted.
type Database interface {
	// User operations

	// FindUsersByLogins returns the users whose login is in logins.
	// Unknown logins are simply absent from the result.
	FindUsersByLogins(ctx context.Context, logins []string) ([]model.User, error)

	// UpsertUsers inserts or updates users keyed by login.
	UpsertUsers(ctx context.Context, users []model.User) error

	// AddOrganizationMembers records membership of the given users in the
	// organization account. Existing memberships are kept.
	AddOrganizationMembers(ctx context.Context, orgID int64, memberIDs []int64) error

	// Repo operations

	// ListRepos returns every repository record.
	ListRepos(ctx context.Context) ([]model.Repo, error)

	// FindRepoByFullName resolves a repository by its owner's login and
	// name. Returns nil when no such repository is registered.
	FindRepoByFullName(ctx context.Context, ownerLogin, name string) (*model.Repo, error)

	// UpsertRepos inserts or updates repositories keyed by (owner, name).
	// The refresh watermark is not touched; only SetRepoRefreshedAt
	// advances it.
	UpsertRepos(ctx context.Context, repos []model.Repo) error

	// SetRepoRefreshedAt advances a repository's refresh watermark.
	SetRepoRefreshedAt(ctx context.Context, repoID int64, refreshedAt time.Time) error

	// Commit operations

	// CommitSHAs returns the set of commit hashes already recorded for
	// the repository.
	CommitSHAs(ctx context.Context, repoID int64) (map[string]struct{}, error)

	// UpsertCommits inserts commits keyed by (repo, sha); existing rows
	// are left as-is (commits are append-only).
	UpsertCommits(ctx context.Context, commits []model.Commit) error

	// FileCommit operations

	// LatestFileModTime returns the newest file modification timestamp
	// across all repositories owned by ownerLogin, or nil when none exist.
	LatestFileModTime(ctx context.Context, ownerLogin string) (*time.Time, error)

	// UpsertFileCommits inserts or updates file states keyed by
	// (repo, path).
	UpsertFileCommits(ctx context.Context, fileCommits []model.FileCommit) error

	// FileContent operations

	// ExistingContentSHAs returns the subset of shas that already have a
	// content row.
	ExistingContentSHAs(ctx context.Context, shas []string) (map[string]struct{}, error)

	// CreateFileContent inserts a single content row and commits it
	// immediately, so partial progress survives a later failure.
	CreateFileContent(ctx context.Context, content *model.FileContent) error

	// Sync run tracking

	CreateSyncRun(ctx context.Context, run *model.SyncRun) error
	FinishSyncRun(ctx context.Context, id int64, status string, finishedAt time.Time) error
	ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error)

	// Close closes the underlying connection.
	Close() error
}

// Archive is an optional content-addressed blob mirror fed by the content
// downloader. Put is idempotent: storing the same sha twice is a no-op.
type Archive interface {
	Put(ctx context.Context, sha string, content []byte) error
	Get(ctx context.Context, sha string) ([]byte, error)
}
