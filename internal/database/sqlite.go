package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"classmirror/internal/database/migrations"
	"classmirror/internal/model"
	"classmirror/internal/sync"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLiteDatabase implements the sync.Database interface using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection. The caller is
// responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite connection with the
// appropriate PRAGMAs. Exported for tools and tests that need a properly
// configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward
	// compatibility).
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return db, nil
}

// User operations

func (s *SQLiteDatabase) FindUsersByLogins(ctx context.Context, logins []string) ([]model.User, error) {
	if len(logins) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT id, login, fullname, avatar_url, role FROM user WHERE login IN (%s)`,
		placeholders(len(logins)))
	rows, err := s.db.QueryContext(ctx, query, stringArgs(logins)...)
	if err != nil {
		return nil, fmt.Errorf("finding users by login: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Login, &u.Fullname, &u.AvatarURL, &u.Role); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpsertUsers inserts or updates identity records keyed by login. An
// empty incoming fullname or avatar does not clobber a stored one.
func (s *SQLiteDatabase) UpsertUsers(ctx context.Context, users []model.User) error {
	const query = `
		INSERT INTO user (login, fullname, avatar_url, role)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (login) DO UPDATE SET
			fullname = CASE WHEN excluded.fullname != '' THEN excluded.fullname ELSE user.fullname END,
			avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE user.avatar_url END,
			role = excluded.role`

	rows := make([][]any, len(users))
	for i, u := range users {
		rows[i] = []any{u.Login, u.Fullname, u.AvatarURL, u.Role}
	}
	return s.execBatch(ctx, "upserting users", query, rows)
}

func (s *SQLiteDatabase) AddOrganizationMembers(ctx context.Context, orgID int64, memberIDs []int64) error {
	const query = `
		INSERT INTO organization_user (organization_id, user_id)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING`

	rows := make([][]any, len(memberIDs))
	for i, id := range memberIDs {
		rows[i] = []any{orgID, id}
	}
	return s.execBatch(ctx, "adding organization members", query, rows)
}

// OrganizationMemberIDs returns the user ids recorded as members of the
// organization account.
func (s *SQLiteDatabase) OrganizationMemberIDs(ctx context.Context, orgID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM organization_user WHERE organization_id = ? ORDER BY user_id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing organization members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Repo operations

func (s *SQLiteDatabase) ListRepos(ctx context.Context) ([]model.Repo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, source_id, name, refreshed_at FROM repo ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}
	defer rows.Close()

	var repos []model.Repo
	for rows.Next() {
		repo, err := scanRepo(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

func (s *SQLiteDatabase) FindRepoByFullName(ctx context.Context, ownerLogin, name string) (*model.Repo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.owner_id, r.source_id, r.name, r.refreshed_at
		FROM repo r
		JOIN user u ON u.id = r.owner_id
		WHERE u.login = ? AND r.name = ?`, ownerLogin, name)

	repo, err := scanRepo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // not registered
		}
		return nil, err
	}
	return &repo, nil
}

// UpsertRepos inserts or updates repositories keyed by (owner, name).
// Only the source reference is updated on conflict; the refresh watermark
// is advanced exclusively by SetRepoRefreshedAt.
func (s *SQLiteDatabase) UpsertRepos(ctx context.Context, repos []model.Repo) error {
	const query = `
		INSERT INTO repo (owner_id, name, source_id)
		VALUES (?, ?, ?)
		ON CONFLICT (owner_id, name) DO UPDATE SET
			source_id = excluded.source_id`

	rows := make([][]any, len(repos))
	for i, r := range repos {
		rows[i] = []any{r.OwnerID, r.Name, nullInt64(r.SourceID)}
	}
	return s.execBatch(ctx, "upserting repositories", query, rows)
}

func (s *SQLiteDatabase) SetRepoRefreshedAt(ctx context.Context, repoID int64, refreshedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE repo SET refreshed_at = ? WHERE id = ?`, refreshedAt, repoID)
	if err != nil {
		return mapError("updating refresh watermark", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating refresh watermark: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("repository %d: %w", repoID, sync.ErrNotFound)
	}
	return nil
}

// Commit operations

func (s *SQLiteDatabase) CommitSHAs(ctx context.Context, repoID int64) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sha FROM "commit" WHERE repo_id = ?`, repoID)
	if err != nil {
		return nil, fmt.Errorf("listing commit shas: %w", err)
	}
	defer rows.Close()

	shas := make(map[string]struct{})
	for rows.Next() {
		var sha string
		if err := rows.Scan(&sha); err != nil {
			return nil, fmt.Errorf("scanning commit sha: %w", err)
		}
		shas[sha] = struct{}{}
	}
	return shas, rows.Err()
}

// UpsertCommits inserts commits keyed by (repo, sha). Commits are
// append-only, so a conflicting row is left untouched.
func (s *SQLiteDatabase) UpsertCommits(ctx context.Context, commits []model.Commit) error {
	const query = `
		INSERT INTO "commit" (repo_id, sha, commit_date)
		VALUES (?, ?, ?)
		ON CONFLICT (repo_id, sha) DO NOTHING`

	rows := make([][]any, len(commits))
	for i, c := range commits {
		rows[i] = []any{c.RepoID, c.SHA, c.CommitDate}
	}
	return s.execBatch(ctx, "recording commits", query, rows)
}

// ListCommits returns a repository's commits, newest first.
func (s *SQLiteDatabase) ListCommits(ctx context.Context, repoID int64) ([]model.Commit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_id, sha, commit_date
		FROM "commit" WHERE repo_id = ?
		ORDER BY commit_date DESC, id DESC`, repoID)
	if err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}
	defer rows.Close()

	var commits []model.Commit
	for rows.Next() {
		var c model.Commit
		if err := rows.Scan(&c.ID, &c.RepoID, &c.SHA, &c.CommitDate); err != nil {
			return nil, fmt.Errorf("scanning commit: %w", err)
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

// FileCommit operations

func (s *SQLiteDatabase) LatestFileModTime(ctx context.Context, ownerLogin string) (*time.Time, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fc.mod_time
		FROM file_commit fc
		JOIN repo r ON r.id = fc.repo_id
		JOIN user u ON u.id = r.owner_id
		WHERE u.login = ?
		ORDER BY fc.mod_time DESC
		LIMIT 1`, ownerLogin)

	var modTime time.Time
	if err := row.Scan(&modTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // no file history yet
		}
		return nil, fmt.Errorf("finding latest file mod time: %w", err)
	}
	return &modTime, nil
}

func (s *SQLiteDatabase) UpsertFileCommits(ctx context.Context, fileCommits []model.FileCommit) error {
	const query = `
		INSERT INTO file_commit (repo_id, path, mod_time, sha)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (repo_id, path) DO UPDATE SET
			mod_time = excluded.mod_time,
			sha = excluded.sha`

	rows := make([][]any, len(fileCommits))
	for i, fc := range fileCommits {
		rows[i] = []any{fc.RepoID, fc.Path, fc.ModTime, fc.SHA}
	}
	return s.execBatch(ctx, "upserting file commits", query, rows)
}

// ListFileCommits returns a repository's file states ordered by path.
func (s *SQLiteDatabase) ListFileCommits(ctx context.Context, repoID int64) ([]model.FileCommit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repo_id, path, mod_time, sha
		FROM file_commit WHERE repo_id = ?
		ORDER BY path`, repoID)
	if err != nil {
		return nil, fmt.Errorf("listing file commits: %w", err)
	}
	defer rows.Close()

	var fileCommits []model.FileCommit
	for rows.Next() {
		var fc model.FileCommit
		if err := rows.Scan(&fc.ID, &fc.RepoID, &fc.Path, &fc.ModTime, &fc.SHA); err != nil {
			return nil, fmt.Errorf("scanning file commit: %w", err)
		}
		fileCommits = append(fileCommits, fc)
	}
	return fileCommits, rows.Err()
}

// FileContent operations

func (s *SQLiteDatabase) ExistingContentSHAs(ctx context.Context, shas []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})

	// Keep each IN list well under SQLite's bound-parameter limit.
	const chunkSize = 500
	for start := 0; start < len(shas); start += chunkSize {
		end := min(start+chunkSize, len(shas))
		chunk := shas[start:end]

		query := fmt.Sprintf(
			`SELECT sha FROM file_content WHERE sha IN (%s)`, placeholders(len(chunk)))
		rows, err := s.db.QueryContext(ctx, query, stringArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("finding stored content shas: %w", err)
		}
		for rows.Next() {
			var sha string
			if err := rows.Scan(&sha); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning content sha: %w", err)
			}
			existing[sha] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return existing, nil
}

// CreateFileContent inserts a single content row. Autocommit makes each
// blob durable on its own, so partial progress survives a later failure.
func (s *SQLiteDatabase) CreateFileContent(ctx context.Context, content *model.FileContent) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO file_content (sha, content_type, content)
		VALUES (?, ?, ?)`,
		content.SHA, nullString(content.ContentType), content.Content)
	if err != nil {
		return mapError("creating file content", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("creating file content: %w", err)
	}
	content.ID = id
	return nil
}

// FindFileContentBySHA returns a content row, or nil when the hash is
// unknown.
func (s *SQLiteDatabase) FindFileContentBySHA(ctx context.Context, sha string) (*model.FileContent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, sha, content_type, content FROM file_content WHERE sha = ?`, sha)

	var (
		content     model.FileContent
		contentType sql.NullString
	)
	if err := row.Scan(&content.ID, &content.SHA, &contentType, &content.Content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding file content: %w", err)
	}
	content.ContentType = contentType.String
	return &content, nil
}

// Sync run tracking

func (s *SQLiteDatabase) CreateSyncRun(ctx context.Context, run *model.SyncRun) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_run (run_id, operation, parameters, started_at, status)
		VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.Operation, run.Parameters, run.StartedAt, run.Status)
	if err != nil {
		return mapError("creating sync run", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("creating sync run: %w", err)
	}
	run.ID = id
	return nil
}

func (s *SQLiteDatabase) FinishSyncRun(ctx context.Context, id int64, status string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_run SET finished_at = ?, status = ? WHERE id = ?`,
		finishedAt, status, id)
	if err != nil {
		return fmt.Errorf("finishing sync run: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, operation, parameters, started_at, finished_at, status
		FROM sync_run
		ORDER BY id DESC
		LIMIT ?`, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	defer rows.Close()

	var runs []model.SyncRun
	for rows.Next() {
		var (
			run      model.SyncRun
			finished sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.RunID, &run.Operation, &run.Parameters,
			&run.StartedAt, &finished, &run.Status); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteDatabase) Path() string { return s.path }

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// execBatch runs one statement per row inside a single transaction. This
// is the upsert engine's execution path: the statements carry an
// ON CONFLICT clause keyed by the record's natural key, so replaying a
// batch is a no-op.
func (s *SQLiteDatabase) execBatch(ctx context.Context, op, query string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: starting transaction: %w", op, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%s: preparing statement: %w", op, err)
	}
	defer stmt.Close()

	for _, args := range rows {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return mapError(op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: committing: %w", op, err)
	}
	return nil
}

// mapError surfaces constraint violations as integrity errors; they
// indicate a logic defect in a batch and are never retried.
func mapError(op string, err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		return &sync.IntegrityError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepo(row rowScanner) (model.Repo, error) {
	var (
		repo      model.Repo
		sourceID  sql.NullInt64
		refreshed sql.NullTime
	)
	if err := row.Scan(&repo.ID, &repo.OwnerID, &sourceID, &repo.Name, &refreshed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Repo{}, err
		}
		return model.Repo{}, fmt.Errorf("scanning repository: %w", err)
	}
	if sourceID.Valid {
		id := sourceID.Int64
		repo.SourceID = &id
	}
	if refreshed.Valid {
		t := refreshed.Time
		repo.RefreshedAt = &t
	}
	return repo, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

// Compile-time check that SQLiteDatabase implements sync.Database.
var _ sync.Database = (*SQLiteDatabase)(nil)
