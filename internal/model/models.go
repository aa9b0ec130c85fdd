package model

import "time"

// Role classifies a user account as it relates to the classroom.
type Role string

const (
	RoleStudent      Role = "student"
	RoleInstructor   Role = "instructor"
	RoleOrganization Role = "organization"
)

// User is a mirrored GitHub account. Rows are created and updated by the
// sync, never deleted.
type User struct {
	ID        int64
	Login     string // unique
	Fullname  string
	AvatarURL string
	Role      Role
}

// Repo is a mirrored repository. A non-nil SourceID marks it as a fork of
// that repository; nil means it is the root "source" repo. RefreshedAt is
// the sync watermark: commits before it are assumed already captured.
type Repo struct {
	ID          int64
	OwnerID     int64
	SourceID    *int64
	Name        string // unique per owner
	RefreshedAt *time.Time
}

// IsFork reports whether the repository was forked from a source repo.
func (r *Repo) IsFork() bool { return r.SourceID != nil }

// Commit is one commit in a repository's history, unique per (repo, sha).
// Append-only: rows are inserted once and never updated.
type Commit struct {
	ID         int64
	RepoID     int64
	SHA        string
	CommitDate time.Time
}

// FileCommit records the latest known content hash for a (repo, path),
// unique per that pair and overwritten as newer commits touch the path.
// ModTime is denormalized from the commit that produced it.
type FileCommit struct {
	ID      int64
	RepoID  int64
	Path    string
	ModTime time.Time
	SHA     string
}

// FileContent is the content-addressed blob store, keyed by sha. Content
// is nil for paths outside the downloadable allow-list: the hash is still
// recorded so the sync knows not to fetch it again. Rows are immutable.
type FileContent struct {
	ID          int64
	SHA         string // unique
	ContentType string
	Content     []byte // nil = placeholder, content never fetched
}

// Assignment is a single assignment file within the source repo.
type Assignment struct {
	ID     int64
	RepoID int64
	Path   string // unique per repo
	Name   string
}

// AssignmentQuestion is one question within an assignment, ordered by
// position (unique per assignment).
type AssignmentQuestion struct {
	ID           int64
	AssignmentID int64
	Position     int64
	QuestionName string
	NotebookData []byte
}

// AssignmentQuestionResponse is one student's submission for a question,
// unique per (question, user).
type AssignmentQuestionResponse struct {
	ID           int64
	QuestionID   int64
	UserID       int64
	Status       string
	NotebookData []byte
}

// SyncRun records one invocation of a mutating CLI command.
type SyncRun struct {
	ID         int64
	RunID      string // uuid, correlates with log lines
	Operation  string
	Parameters string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
}
