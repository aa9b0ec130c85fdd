package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"classmirror/internal/archive"
	"classmirror/internal/config"
	"classmirror/internal/database"
	"classmirror/internal/github"
	"classmirror/internal/model"
	"classmirror/internal/sync"
)

// MirrorApp is the application layer between the CLI and the sync
// engine. It constructs all dependencies from config, exposes
// high-level operations, and manages the DB lifecycle on Close.
type MirrorApp struct {
	cfg     *config.Config
	db      *database.SQLiteDatabase
	archive sync.Archive
	run     *model.SyncRun
	logger  *slogAdapter
	logFile *os.File
	clock   sync.Clock
}

// NewMirrorApp creates a fully wired MirrorApp from the given config.
// operation identifies the CLI command being run (e.g. "Sync",
// "History"); parameters carries its arguments for the run record.
// The caller must call Close when done.
func NewMirrorApp(ctx context.Context, cfg *config.Config, operation, parameters string) (*MirrorApp, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	arc, err := archive.NewArchiveFromConfig(ctx, cfg.Archive)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	runID := uuid.NewString()
	logger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	return &MirrorApp{
		cfg:     cfg,
		db:      db,
		archive: arc,
		run: &model.SyncRun{
			RunID:      runID,
			Operation:  operation,
			Parameters: parameters,
			Status:     "success",
		},
		logger:  &slogAdapter{l: logger},
		logFile: logFile,
		clock:   sync.RealClock{},
	}, nil
}

// persistRun saves the sync run to the database, giving it an
// auto-increment ID. This should only be called for DB-mutating
// commands.
func (a *MirrorApp) persistRun(ctx context.Context) error {
	if a.run.ID != 0 {
		return nil // already persisted
	}
	a.run.StartedAt = a.clock.Now().UTC()
	if err := a.db.CreateSyncRun(ctx, a.run); err != nil {
		return fmt.Errorf("persisting sync run: %w", err)
	}
	return nil
}

// Sync runs one full synchronization pass against the given source
// repository ("owner/name"), then derives assignment rows from the
// mirrored notebooks. Sync options are read from the environment.
func (a *MirrorApp) Sync(ctx context.Context, sourceFullName, token string) error {
	if token == "" {
		return &sync.ConfigError{Msg: "no API token: set GITHUB_API_TOKEN or github.token in the config file"}
	}

	opts, err := config.OptionsFromEnv()
	if err != nil {
		return &sync.ConfigError{Msg: err.Error()}
	}

	if err := a.persistRun(ctx); err != nil {
		return err
	}

	provider := github.NewProvider(ctx, token)
	svc := sync.NewService(a.db, provider, a.archive, a.logger, a.clock, opts)

	if err := svc.Sync(ctx, sourceFullName); err != nil {
		a.run.Status = "error"
		return err
	}

	if err := a.refreshAssignments(ctx, sourceFullName); err != nil {
		a.run.Status = "error"
		return err
	}
	return nil
}

// refreshAssignments rebuilds the assignment table from the source
// repository's mirrored notebook files.
func (a *MirrorApp) refreshAssignments(ctx context.Context, sourceFullName string) error {
	ownerLogin, repoName, _ := strings.Cut(sourceFullName, "/")
	repo, err := a.db.FindRepoByFullName(ctx, ownerLogin, repoName)
	if err != nil {
		return fmt.Errorf("looking up %s: %w", sourceFullName, err)
	}
	if repo == nil {
		return fmt.Errorf("looking up %s: %w", sourceFullName, sync.ErrNotFound)
	}

	if err := a.db.RefreshAssignments(ctx, repo.ID); err != nil {
		return fmt.Errorf("refreshing assignments: %w", err)
	}

	assignments, err := a.db.ListAssignments(ctx, repo.ID)
	if err != nil {
		return fmt.Errorf("listing assignments: %w", err)
	}
	a.logger.Info("assignments refreshed", "repo", sourceFullName, "count", len(assignments))
	return nil
}

// GetHistory returns the most recent sync runs.
func (a *MirrorApp) GetHistory(ctx context.Context, limit int) ([]model.SyncRun, error) {
	return a.db.ListSyncRuns(ctx, limit)
}

// GetAssignments returns the assignment rows derived for the given
// source repository.
func (a *MirrorApp) GetAssignments(ctx context.Context, sourceFullName string) ([]model.Assignment, error) {
	ownerLogin, repoName, ok := strings.Cut(sourceFullName, "/")
	if !ok || ownerLogin == "" || repoName == "" {
		return nil, &sync.ConfigError{Msg: fmt.Sprintf("source repository must be owner/name, got %q", sourceFullName)}
	}
	repo, err := a.db.FindRepoByFullName(ctx, ownerLogin, repoName)
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", sourceFullName, err)
	}
	if repo == nil {
		return nil, fmt.Errorf("looking up %s: %w", sourceFullName, sync.ErrNotFound)
	}
	return a.db.ListAssignments(ctx, repo.ID)
}

// Close finalizes the run record and closes all resources. Runs that
// were never persisted (read-only commands) only close the database.
func (a *MirrorApp) Close() error {
	var firstErr error

	if a.run.ID != 0 {
		finishedAt := a.clock.Now().UTC()
		if err := a.db.FinishSyncRun(context.Background(), a.run.ID, a.run.Status, finishedAt); err != nil {
			firstErr = fmt.Errorf("finishing sync run: %w", err)
		}
	}

	if err := a.db.Close(); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("closing database: %w", err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
