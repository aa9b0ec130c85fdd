package sync

import (
	"context"
	"fmt"
	"strings"

	"classmirror/internal/model"
)

// Service is the sync orchestrator. It sequences, per repository:
// resolve watermark → fetch commits → extract file changes → download
// content → upsert file states → record commits and advance the
// watermark. Across the repository set it processes the source repo
// first, then its forks, strictly one at a time.
type Service struct {
	db       Database
	provider SourceProvider
	archive  Archive // optional; nil disables blob mirroring
	logger   Logger
	clock    Clock
	opts     Options

	// Per-run lookup caches so stages resolve foreign keys without
	// re-querying. Owned by the Service; no process-wide state.
	users map[string]model.User
	repos map[repoKey]model.Repo
}

type repoKey struct {
	ownerID int64
	name    string
}

// NewService creates a Service with the provided collaborators.
// archive may be nil.
func NewService(db Database, provider SourceProvider, archive Archive, logger Logger, clock Clock, opts Options) *Service {
	return &Service{
		db:       db,
		provider: provider,
		archive:  archive,
		logger:   logger,
		clock:    clock,
		opts:     opts,
		users:    make(map[string]model.User),
		repos:    make(map[repoKey]model.Repo),
	}
}

// Sync performs one full synchronization pass for the source repository
// identified as "owner/name" and its forks. Fail-fast: the first
// mid-pipeline failure aborts the run; previously committed state stays
// valid and the next run resumes from it.
func (s *Service) Sync(ctx context.Context, sourceFullName string) error {
	ownerLogin, repoName, ok := strings.Cut(sourceFullName, "/")
	if !ok || ownerLogin == "" || repoName == "" {
		return &ConfigError{Msg: fmt.Sprintf("source repository must be owner/name, got %q", sourceFullName)}
	}

	// A repository already registered locally must be a source, not a
	// fork. An unregistered one is fine: this pass registers it.
	local, err := s.db.FindRepoByFullName(ctx, ownerLogin, repoName)
	if err != nil {
		return fmt.Errorf("looking up %s: %w", sourceFullName, err)
	}
	if local != nil && local.IsFork() {
		return &ConfigError{Msg: fmt.Sprintf("%s is a fork; sync its source repository instead", sourceFullName)}
	}

	source, err := s.provider.GetRepo(ctx, sourceFullName)
	if err != nil {
		return &SourceError{Op: "resolving " + sourceFullName, Err: err}
	}

	s.logger.Info("reading organization members", "org", ownerLogin)
	members, err := s.provider.ListTeamMembers(ctx, ownerLogin)
	if err != nil {
		return &SourceError{Op: "listing team members of " + ownerLogin, Err: err}
	}
	instructors := make(map[string]struct{}, len(members))
	for _, m := range members {
		instructors[m.Login] = struct{}{}
	}

	s.logger.Info("reading forks", "repo", source.FullName())
	forks, err := s.provider.ListForks(ctx, *source, instructors)
	if err != nil {
		return &SourceError{Op: "listing forks of " + source.FullName(), Err: err}
	}
	forks = s.filterForks(forks)

	// Identity records first so foreign keys resolve.
	if err := s.saveUsers(ctx, []RemoteUser{source.Owner}, model.RoleOrganization); err != nil {
		return err
	}
	staff := make([]RemoteUser, 0, len(members))
	for _, m := range members {
		if m.Login != source.Owner.Login {
			staff = append(staff, m)
		}
	}
	if err := s.saveUsers(ctx, staff, model.RoleInstructor); err != nil {
		return err
	}
	if err := s.saveMembership(ctx, source.Owner.Login, staff); err != nil {
		return err
	}

	owners := make([]RemoteUser, 0, len(forks))
	for _, fork := range forks {
		owners = append(owners, fork.Owner)
	}
	s.logger.Info("updating students", "count", len(owners))
	if err := s.saveUsers(ctx, owners, model.RoleStudent); err != nil {
		return err
	}

	if err := s.saveRepos(ctx, *source, forks); err != nil {
		return err
	}

	repos := append([]RemoteRepo{*source}, forks...)
	if s.opts.RepoLimit > 0 && len(repos) > s.opts.RepoLimit {
		repos = repos[:s.opts.RepoLimit]
	}

	for i, remote := range repos {
		s.logger.Info("updating repository",
			"repo", remote.FullName(), "index", i+1, "total", len(repos))
		// The source repo has no single owning student, so its commits
		// are synced regardless of author.
		allAuthors := remote.FullName() == source.FullName()
		if err := s.syncRepo(ctx, remote, allAuthors); err != nil {
			return fmt.Errorf("syncing %s: %w", remote.FullName(), err)
		}
	}

	return nil
}

// syncRepo runs the per-repository pipeline. Each stage is gated on the
// previous one succeeding. When the fetch yields zero new commits the
// download and file-state stages are skipped, but the watermark is still
// advanced so a quiet repository is not re-scanned from a stale bound.
func (s *Service) syncRepo(ctx context.Context, remote RemoteRepo, allAuthors bool) error {
	repo, err := s.lookupRepo(remote)
	if err != nil {
		return err
	}

	timestamp := s.clock.Now().UTC()

	window, err := s.resolveWatermark(ctx, &repo, remote.Owner.Login)
	if err != nil {
		return err
	}

	known := make(map[string]struct{})
	if !s.opts.Reprocess {
		known, err = s.db.CommitSHAs(ctx, repo.ID)
		if err != nil {
			return fmt.Errorf("loading known commits: %w", err)
		}
	}

	commits, err := s.fetchNewCommits(ctx, remote, window, known)
	if err != nil {
		return err
	}
	if len(commits) > 0 || len(known) > 0 {
		s.logger.Info("commit scan", "repo", remote.FullName(),
			"new", len(commits), "known", len(known))
	}

	changes := collectFileChanges(remote, commits, allAuthors)
	s.logger.Info("processing file commits", "repo", remote.FullName(), "count", len(changes))

	if len(commits) > 0 {
		if err := s.downloadContents(ctx, remote, commits, changes); err != nil {
			return err
		}

		fileCommits := make([]model.FileCommit, 0, len(changes))
		for _, change := range changes {
			fileCommits = append(fileCommits, model.FileCommit{
				RepoID:  repo.ID,
				Path:    change.File.Path,
				ModTime: change.Commit.CommitDate,
				SHA:     change.File.SHA,
			})
		}
		if err := s.db.UpsertFileCommits(ctx, fileCommits); err != nil {
			return fmt.Errorf("updating file commits: %w", err)
		}
	}

	records := make([]model.Commit, 0, len(commits))
	for _, commit := range commits {
		records = append(records, model.Commit{
			RepoID:     repo.ID,
			SHA:        commit.SHA,
			CommitDate: commit.CommitDate,
		})
	}
	if err := s.db.UpsertCommits(ctx, records); err != nil {
		return fmt.Errorf("recording commits: %w", err)
	}
	if err := s.db.SetRepoRefreshedAt(ctx, repo.ID, timestamp); err != nil {
		return fmt.Errorf("advancing watermark: %w", err)
	}

	return nil
}

// filterForks applies the user allow-list, when one is configured.
func (s *Service) filterForks(forks []RemoteRepo) []RemoteRepo {
	if len(s.opts.UserFilter) == 0 {
		return forks
	}
	allowed := make(map[string]struct{}, len(s.opts.UserFilter))
	for _, login := range s.opts.UserFilter {
		allowed[login] = struct{}{}
	}
	kept := forks[:0]
	for _, fork := range forks {
		if _, ok := allowed[fork.Owner.Login]; ok {
			kept = append(kept, fork)
		}
	}
	return kept
}

// saveUsers upserts identity records keyed by login and refreshes the
// per-run identity cache with the stored rows.
func (s *Service) saveUsers(ctx context.Context, accounts []RemoteUser, role model.Role) error {
	if len(accounts) == 0 {
		return nil
	}

	users := make([]model.User, 0, len(accounts))
	logins := make([]string, 0, len(accounts))
	for _, account := range accounts {
		users = append(users, model.User{
			Login:     account.Login,
			Fullname:  account.Name,
			AvatarURL: account.AvatarURL,
			Role:      role,
		})
		logins = append(logins, account.Login)
	}
	if err := s.db.UpsertUsers(ctx, users); err != nil {
		return fmt.Errorf("updating users: %w", err)
	}

	saved, err := s.db.FindUsersByLogins(ctx, logins)
	if err != nil {
		return fmt.Errorf("reloading users: %w", err)
	}
	for _, user := range saved {
		s.users[user.Login] = user
	}
	return nil
}

// saveMembership links instructor accounts to the organization user.
func (s *Service) saveMembership(ctx context.Context, orgLogin string, members []RemoteUser) error {
	if len(members) == 0 {
		return nil
	}
	org, err := s.lookupUser(orgLogin)
	if err != nil {
		return err
	}
	memberIDs := make([]int64, 0, len(members))
	for _, member := range members {
		user, err := s.lookupUser(member.Login)
		if err != nil {
			return err
		}
		memberIDs = append(memberIDs, user.ID)
	}
	if err := s.db.AddOrganizationMembers(ctx, org.ID, memberIDs); err != nil {
		return fmt.Errorf("updating organization members: %w", err)
	}
	return nil
}

// saveRepos upserts the source repository first, then the forks pointing
// at it, and rebuilds the per-run repo cache.
func (s *Service) saveRepos(ctx context.Context, source RemoteRepo, forks []RemoteRepo) error {
	s.logger.Info("updating repositories", "count", len(forks)+1)

	owner, err := s.lookupUser(source.Owner.Login)
	if err != nil {
		return err
	}
	if err := s.db.UpsertRepos(ctx, []model.Repo{{OwnerID: owner.ID, Name: source.Name}}); err != nil {
		return fmt.Errorf("updating source repository: %w", err)
	}

	sourceRepo, err := s.db.FindRepoByFullName(ctx, source.Owner.Login, source.Name)
	if err != nil {
		return fmt.Errorf("reloading source repository: %w", err)
	}
	if sourceRepo == nil {
		return fmt.Errorf("source repository %s: %w", source.FullName(), ErrNotFound)
	}

	records := make([]model.Repo, 0, len(forks))
	for _, fork := range forks {
		forkOwner, err := s.lookupUser(fork.Owner.Login)
		if err != nil {
			return err
		}
		records = append(records, model.Repo{
			OwnerID:  forkOwner.ID,
			Name:     fork.Name,
			SourceID: &sourceRepo.ID,
		})
	}
	if err := s.db.UpsertRepos(ctx, records); err != nil {
		return fmt.Errorf("updating forks: %w", err)
	}

	repos, err := s.db.ListRepos(ctx)
	if err != nil {
		return fmt.Errorf("loading repositories: %w", err)
	}
	for _, repo := range repos {
		s.repos[repoKey{ownerID: repo.OwnerID, name: repo.Name}] = repo
	}
	return nil
}

func (s *Service) lookupUser(login string) (model.User, error) {
	user, ok := s.users[login]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", login, ErrNotFound)
	}
	return user, nil
}

func (s *Service) lookupRepo(remote RemoteRepo) (model.Repo, error) {
	owner, err := s.lookupUser(remote.Owner.Login)
	if err != nil {
		return model.Repo{}, err
	}
	repo, ok := s.repos[repoKey{ownerID: owner.ID, name: remote.Name}]
	if !ok {
		return model.Repo{}, fmt.Errorf("repository %s: %w", remote.FullName(), ErrNotFound)
	}
	return repo, nil
}
