package database_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"classmirror/internal/database"
	"classmirror/internal/model"
	"classmirror/internal/sync"
	"classmirror/internal/testutil"
)

func sha(marker string) string {
	return marker + strings.Repeat("0", 40-len(marker))
}

// seedUser upserts a user and returns the stored record.
func seedUser(t *testing.T, db *database.SQLiteDatabase, login string, role model.Role) model.User {
	t.Helper()
	ctx := context.Background()
	if err := db.UpsertUsers(ctx, []model.User{{Login: login, Role: role}}); err != nil {
		t.Fatalf("UpsertUsers(%s) error = %v", login, err)
	}
	users, err := db.FindUsersByLogins(ctx, []string{login})
	if err != nil || len(users) != 1 {
		t.Fatalf("FindUsersByLogins(%s) = %v, %v", login, users, err)
	}
	return users[0]
}

// seedRepo upserts a repo for the user and returns the stored record.
func seedRepo(t *testing.T, db *database.SQLiteDatabase, owner model.User, name string) model.Repo {
	t.Helper()
	ctx := context.Background()
	if err := db.UpsertRepos(ctx, []model.Repo{{OwnerID: owner.ID, Name: name}}); err != nil {
		t.Fatalf("UpsertRepos(%s) error = %v", name, err)
	}
	repo, err := db.FindRepoByFullName(ctx, owner.Login, name)
	if err != nil || repo == nil {
		t.Fatalf("FindRepoByFullName(%s/%s) = %v, %v", owner.Login, name, repo, err)
	}
	return *repo
}

func TestSQLiteDatabase_UpsertUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("updates role on conflict", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)

		seedUser(t, db, "alice", model.RoleStudent)
		if err := db.UpsertUsers(ctx, []model.User{{Login: "alice", Role: model.RoleInstructor}}); err != nil {
			t.Fatalf("UpsertUsers() error = %v", err)
		}

		users, err := db.FindUsersByLogins(ctx, []string{"alice"})
		if err != nil {
			t.Fatalf("FindUsersByLogins() error = %v", err)
		}
		if len(users) != 1 {
			t.Fatalf("users = %d, want 1", len(users))
		}
		if users[0].Role != model.RoleInstructor {
			t.Errorf("role = %q, want instructor", users[0].Role)
		}
	})

	t.Run("empty fields do not clobber stored values", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)

		err := db.UpsertUsers(ctx, []model.User{
			{Login: "alice", Fullname: "Alice Liddell", AvatarURL: "https://a/alice", Role: model.RoleStudent},
		})
		if err != nil {
			t.Fatalf("UpsertUsers() error = %v", err)
		}

		// A later listing without profile details keeps what we have.
		err = db.UpsertUsers(ctx, []model.User{{Login: "alice", Role: model.RoleStudent}})
		if err != nil {
			t.Fatalf("second UpsertUsers() error = %v", err)
		}

		users, _ := db.FindUsersByLogins(ctx, []string{"alice"})
		if users[0].Fullname != "Alice Liddell" {
			t.Errorf("fullname = %q, want preserved", users[0].Fullname)
		}
		if users[0].AvatarURL != "https://a/alice" {
			t.Errorf("avatar = %q, want preserved", users[0].AvatarURL)
		}
	})

	t.Run("unknown logins are absent from lookups", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		seedUser(t, db, "alice", model.RoleStudent)

		users, err := db.FindUsersByLogins(ctx, []string{"alice", "ghost"})
		if err != nil {
			t.Fatalf("FindUsersByLogins() error = %v", err)
		}
		if len(users) != 1 {
			t.Errorf("users = %d, want 1", len(users))
		}
	})
}

func TestSQLiteDatabase_OrganizationMembers(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t)

	org := seedUser(t, db, "classorg", model.RoleOrganization)
	carol := seedUser(t, db, "carol", model.RoleInstructor)

	if err := db.AddOrganizationMembers(ctx, org.ID, []int64{carol.ID}); err != nil {
		t.Fatalf("AddOrganizationMembers() error = %v", err)
	}
	// Replays keep existing memberships.
	if err := db.AddOrganizationMembers(ctx, org.ID, []int64{carol.ID}); err != nil {
		t.Fatalf("second AddOrganizationMembers() error = %v", err)
	}

	ids, err := db.OrganizationMemberIDs(ctx, org.ID)
	if err != nil {
		t.Fatalf("OrganizationMemberIDs() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != carol.ID {
		t.Errorf("member ids = %v, want [%d]", ids, carol.ID)
	}
}

func TestSQLiteDatabase_UpsertRepos(t *testing.T) {
	ctx := context.Background()

	t.Run("is idempotent by owner and name", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		alice := seedUser(t, db, "alice", model.RoleStudent)

		seedRepo(t, db, alice, "hw1")
		seedRepo(t, db, alice, "hw1")

		repos, err := db.ListRepos(ctx)
		if err != nil {
			t.Fatalf("ListRepos() error = %v", err)
		}
		if len(repos) != 1 {
			t.Errorf("repos = %d, want 1", len(repos))
		}
	})

	t.Run("conflict updates the source reference", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		org := seedUser(t, db, "classorg", model.RoleOrganization)
		alice := seedUser(t, db, "alice", model.RoleStudent)

		source := seedRepo(t, db, org, "hw1")
		fork := seedRepo(t, db, alice, "hw1")
		if fork.SourceID != nil {
			t.Fatal("fresh repo has a source reference")
		}

		err := db.UpsertRepos(ctx, []model.Repo{
			{OwnerID: alice.ID, Name: "hw1", SourceID: &source.ID},
		})
		if err != nil {
			t.Fatalf("UpsertRepos() error = %v", err)
		}

		got, _ := db.FindRepoByFullName(ctx, "alice", "hw1")
		if got.SourceID == nil || *got.SourceID != source.ID {
			t.Errorf("source_id = %v, want %d", got.SourceID, source.ID)
		}
	})

	t.Run("conflict leaves the watermark alone", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		alice := seedUser(t, db, "alice", model.RoleStudent)
		repo := seedRepo(t, db, alice, "hw1")

		refreshed := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
		if err := db.SetRepoRefreshedAt(ctx, repo.ID, refreshed); err != nil {
			t.Fatalf("SetRepoRefreshedAt() error = %v", err)
		}

		seedRepo(t, db, alice, "hw1")

		got, _ := db.FindRepoByFullName(ctx, "alice", "hw1")
		if got.RefreshedAt == nil || !got.RefreshedAt.Equal(refreshed) {
			t.Errorf("refreshed_at = %v, want %v", got.RefreshedAt, refreshed)
		}
	})

	t.Run("watermark update on a missing repo reports not found", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)

		err := db.SetRepoRefreshedAt(ctx, 999, time.Now())
		if !errors.Is(err, sync.ErrNotFound) {
			t.Errorf("SetRepoRefreshedAt(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("unregistered repo resolves to nil", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)

		repo, err := db.FindRepoByFullName(ctx, "ghost", "hw1")
		if err != nil {
			t.Fatalf("FindRepoByFullName() error = %v", err)
		}
		if repo != nil {
			t.Errorf("repo = %+v, want nil", repo)
		}
	})
}

func TestSQLiteDatabase_Commits(t *testing.T) {
	ctx := context.Background()

	t.Run("replayed commits are recorded once", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		alice := seedUser(t, db, "alice", model.RoleStudent)
		repo := seedRepo(t, db, alice, "hw1")

		batch := []model.Commit{
			{RepoID: repo.ID, SHA: sha("c1"), CommitDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		}
		if err := db.UpsertCommits(ctx, batch); err != nil {
			t.Fatalf("UpsertCommits() error = %v", err)
		}
		if err := db.UpsertCommits(ctx, batch); err != nil {
			t.Fatalf("second UpsertCommits() error = %v", err)
		}

		shas, err := db.CommitSHAs(ctx, repo.ID)
		if err != nil {
			t.Fatalf("CommitSHAs() error = %v", err)
		}
		if len(shas) != 1 {
			t.Errorf("commit shas = %d, want 1", len(shas))
		}
	})

	t.Run("malformed hash violates integrity", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		alice := seedUser(t, db, "alice", model.RoleStudent)
		repo := seedRepo(t, db, alice, "hw1")

		err := db.UpsertCommits(ctx, []model.Commit{
			{RepoID: repo.ID, SHA: "short", CommitDate: time.Now()},
		})
		var integrity *sync.IntegrityError
		if !errors.As(err, &integrity) {
			t.Errorf("UpsertCommits(short sha) error = %v, want IntegrityError", err)
		}
	})

	t.Run("commit for an unknown repo violates integrity", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)

		err := db.UpsertCommits(ctx, []model.Commit{
			{RepoID: 999, SHA: sha("c1"), CommitDate: time.Now()},
		})
		var integrity *sync.IntegrityError
		if !errors.As(err, &integrity) {
			t.Errorf("UpsertCommits(bad repo) error = %v, want IntegrityError", err)
		}
	})
}

func TestSQLiteDatabase_FileCommits(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert replaces the path's state", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		alice := seedUser(t, db, "alice", model.RoleStudent)
		repo := seedRepo(t, db, alice, "hw1")

		first := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
		second := first.Add(48 * time.Hour)

		err := db.UpsertFileCommits(ctx, []model.FileCommit{
			{RepoID: repo.ID, Path: "hw1.ipynb", ModTime: first, SHA: sha("b1")},
		})
		if err != nil {
			t.Fatalf("UpsertFileCommits() error = %v", err)
		}
		err = db.UpsertFileCommits(ctx, []model.FileCommit{
			{RepoID: repo.ID, Path: "hw1.ipynb", ModTime: second, SHA: sha("b2")},
		})
		if err != nil {
			t.Fatalf("second UpsertFileCommits() error = %v", err)
		}

		files, err := db.ListFileCommits(ctx, repo.ID)
		if err != nil {
			t.Fatalf("ListFileCommits() error = %v", err)
		}
		if len(files) != 1 {
			t.Fatalf("file states = %d, want 1", len(files))
		}
		if files[0].SHA != sha("b2") || !files[0].ModTime.Equal(second) {
			t.Errorf("file state = %+v, want sha b2 at %v", files[0], second)
		}
	})

	t.Run("latest mod time spans the owner's repos", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		alice := seedUser(t, db, "alice", model.RoleStudent)
		hw1 := seedRepo(t, db, alice, "hw1")
		hw2 := seedRepo(t, db, alice, "hw2")

		older := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
		newer := older.Add(24 * time.Hour)
		db.UpsertFileCommits(ctx, []model.FileCommit{
			{RepoID: hw1.ID, Path: "a.md", ModTime: older, SHA: sha("b1")},
			{RepoID: hw2.ID, Path: "b.md", ModTime: newer, SHA: sha("b2")},
		})

		latest, err := db.LatestFileModTime(ctx, "alice")
		if err != nil {
			t.Fatalf("LatestFileModTime() error = %v", err)
		}
		if latest == nil || !latest.Equal(newer) {
			t.Errorf("latest = %v, want %v", latest, newer)
		}
	})

	t.Run("no file history yields nil", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)

		latest, err := db.LatestFileModTime(ctx, "ghost")
		if err != nil {
			t.Fatalf("LatestFileModTime() error = %v", err)
		}
		if latest != nil {
			t.Errorf("latest = %v, want nil", latest)
		}
	})
}

func TestSQLiteDatabase_FileContents(t *testing.T) {
	ctx := context.Background()

	t.Run("stores content and placeholder rows", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)

		full := &model.FileContent{SHA: sha("b1"), ContentType: "text/markdown", Content: []byte("# hi")}
		if err := db.CreateFileContent(ctx, full); err != nil {
			t.Fatalf("CreateFileContent() error = %v", err)
		}
		if full.ID == 0 {
			t.Error("content row id not assigned")
		}

		placeholder := &model.FileContent{SHA: sha("b2")}
		if err := db.CreateFileContent(ctx, placeholder); err != nil {
			t.Fatalf("CreateFileContent(placeholder) error = %v", err)
		}

		got, err := db.FindFileContentBySHA(ctx, sha("b2"))
		if err != nil {
			t.Fatalf("FindFileContentBySHA() error = %v", err)
		}
		if got.Content != nil || got.ContentType != "" {
			t.Errorf("placeholder = %+v, want empty content and type", got)
		}
	})

	t.Run("duplicate hash violates integrity", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)

		if err := db.CreateFileContent(ctx, &model.FileContent{SHA: sha("b1")}); err != nil {
			t.Fatalf("CreateFileContent() error = %v", err)
		}
		err := db.CreateFileContent(ctx, &model.FileContent{SHA: sha("b1")})
		var integrity *sync.IntegrityError
		if !errors.As(err, &integrity) {
			t.Errorf("duplicate CreateFileContent() error = %v, want IntegrityError", err)
		}
	})

	t.Run("existing hash lookup handles large sets", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)

		stored := &model.FileContent{SHA: sha("b1")}
		if err := db.CreateFileContent(ctx, stored); err != nil {
			t.Fatalf("CreateFileContent() error = %v", err)
		}

		// Well past the query chunk size.
		shas := make([]string, 0, 1201)
		shas = append(shas, sha("b1"))
		for i := 0; i < 1200; i++ {
			shas = append(shas, sha(strings.Repeat("f", 10)+itoa(i)))
		}

		existing, err := db.ExistingContentSHAs(ctx, shas)
		if err != nil {
			t.Fatalf("ExistingContentSHAs() error = %v", err)
		}
		if len(existing) != 1 {
			t.Errorf("existing = %d, want 1", len(existing))
		}
		if _, ok := existing[sha("b1")]; !ok {
			t.Error("stored hash missing from result")
		}
	})
}

// itoa formats i with zero padding so generated hashes stay 40 chars.
func itoa(i int) string {
	digits := "0123456789"
	out := []byte{
		digits[i/1000%10], digits[i/100%10], digits[i/10%10], digits[i%10],
	}
	return string(out)
}

func TestSQLiteDatabase_SyncRuns(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestDatabase(t)

	started := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	run := &model.SyncRun{
		RunID:      "11111111-2222-3333-4444-555555555555",
		Operation:  "Sync",
		Parameters: "classorg/hw1",
		StartedAt:  started,
		Status:     "success",
	}
	if err := db.CreateSyncRun(ctx, run); err != nil {
		t.Fatalf("CreateSyncRun() error = %v", err)
	}
	if run.ID == 0 {
		t.Fatal("run id not assigned")
	}

	finished := started.Add(time.Minute)
	if err := db.FinishSyncRun(ctx, run.ID, "error", finished); err != nil {
		t.Fatalf("FinishSyncRun() error = %v", err)
	}

	runs, err := db.ListSyncRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListSyncRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	got := runs[0]
	if got.Status != "error" {
		t.Errorf("status = %q, want error", got.Status)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("finished_at = %v, want %v", got.FinishedAt, finished)
	}
	if got.RunID != run.RunID {
		t.Errorf("run_id = %q, want %q", got.RunID, run.RunID)
	}
}
