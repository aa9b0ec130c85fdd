// Package github implements the sync.SourceProvider capability interface
// over the GitHub REST API.
package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	gogithub "github.com/google/go-github/v51/github"
	"golang.org/x/oauth2"

	"classmirror/internal/sync"
)

// Provider is a GitHub-backed source data provider.
type Provider struct {
	client *gogithub.Client
}

// NewProvider creates a Provider authenticated with the given API token.
func NewProvider(ctx context.Context, token string) *Provider {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Provider{client: gogithub.NewClient(oauth2.NewClient(ctx, ts))}
}

// NewProviderWithClient wraps an existing client. Used by tests that
// point the client at a stub server.
func NewProviderWithClient(client *gogithub.Client) *Provider {
	return &Provider{client: client}
}

func (p *Provider) GetRepo(ctx context.Context, fullName string) (*sync.RemoteRepo, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok {
		return nil, fmt.Errorf("malformed repository name %q", fullName)
	}

	repo, _, err := p.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("getting repository %s: %w", fullName, err)
	}
	remote := toRemoteRepo(repo)
	return &remote, nil
}

func (p *Provider) ListForks(ctx context.Context, repo sync.RemoteRepo, ignoreLogins map[string]struct{}) ([]sync.RemoteRepo, error) {
	opts := &gogithub.RepositoryListForksOptions{
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}

	var forks []sync.RemoteRepo
	for {
		page, resp, err := p.client.Repositories.ListForks(ctx, repo.Owner.Login, repo.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("listing forks of %s: %w", repo.FullName(), err)
		}
		for _, fork := range page {
			login := fork.GetOwner().GetLogin()
			if _, ignored := ignoreLogins[login]; ignored {
				continue
			}
			forks = append(forks, toRemoteRepo(fork))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return forks, nil
}

// ListCommits returns a lazy iterator over the repository's commits,
// newest first. Pages are fetched on demand, and each commit's file list
// is resolved with a per-commit detail request as the iterator advances.
func (p *Provider) ListCommits(ctx context.Context, repo sync.RemoteRepo, window sync.FetchWindow) (sync.CommitIter, error) {
	opts := &gogithub.CommitsListOptions{
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	if window.Since != nil {
		opts.Since = *window.Since
	}
	return &commitIter{
		ctx:      ctx,
		provider: p,
		repo:     repo,
		opts:     opts,
	}, nil
}

type commitIter struct {
	ctx      context.Context
	provider *Provider
	repo     sync.RemoteRepo
	opts     *gogithub.CommitsListOptions
	buf      []*gogithub.RepositoryCommit
	done     bool
}

func (it *commitIter) Next() (*sync.RemoteCommit, error) {
	for len(it.buf) == 0 {
		if it.done {
			return nil, io.EOF
		}
		page, resp, err := it.provider.client.Repositories.ListCommits(
			it.ctx, it.repo.Owner.Login, it.repo.Name, it.opts)
		if err != nil {
			return nil, fmt.Errorf("listing commits of %s: %w", it.repo.FullName(), err)
		}
		it.buf = page
		if resp.NextPage == 0 {
			it.done = true
		} else {
			it.opts.Page = resp.NextPage
		}
	}

	head := it.buf[0]
	it.buf = it.buf[1:]

	// The listing omits file changes; a per-commit request carries them.
	detail, _, err := it.provider.client.Repositories.GetCommit(
		it.ctx, it.repo.Owner.Login, it.repo.Name, head.GetSHA(), nil)
	if err != nil {
		return nil, fmt.Errorf("getting commit %s: %w", head.GetSHA(), err)
	}

	commit := &sync.RemoteCommit{
		SHA:         detail.GetSHA(),
		AuthorLogin: detail.GetAuthor().GetLogin(),
		CommitDate:  detail.GetCommit().GetAuthor().GetDate().Time,
	}
	for _, file := range detail.Files {
		commit.Files = append(commit.Files, sync.RemoteFile{
			Path: file.GetFilename(),
			SHA:  file.GetSHA(),
		})
	}
	return commit, nil
}

func (it *commitIter) Close() error {
	it.buf = nil
	it.done = true
	return nil
}

func (p *Provider) GetHeadTree(ctx context.Context, repo sync.RemoteRepo) ([]sync.TreeEntry, error) {
	tree, _, err := p.client.Git.GetTree(ctx, repo.Owner.Login, repo.Name, "HEAD", true)
	if err != nil {
		return nil, fmt.Errorf("getting tree of %s: %w", repo.FullName(), err)
	}

	var entries []sync.TreeEntry
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		entries = append(entries, sync.TreeEntry{
			Path: entry.GetPath(),
			SHA:  entry.GetSHA(),
		})
	}
	return entries, nil
}

func (p *Provider) GetBlob(ctx context.Context, repo sync.RemoteRepo, sha string) (*sync.Blob, error) {
	blob, _, err := p.client.Git.GetBlob(ctx, repo.Owner.Login, repo.Name, sha)
	if err != nil {
		return nil, fmt.Errorf("getting blob %s: %w", sha, err)
	}

	content := []byte(blob.GetContent())
	if blob.GetEncoding() == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(
			strings.ReplaceAll(blob.GetContent(), "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("decoding blob %s: %w", sha, err)
		}
		content = decoded
	}
	return &sync.Blob{SHA: sha, Content: content}, nil
}

// ListTeamMembers returns the members of all teams in the organization,
// de-duplicated by login.
func (p *Provider) ListTeamMembers(ctx context.Context, org string) ([]sync.RemoteUser, error) {
	teamOpts := &gogithub.ListOptions{PerPage: 100}

	var teams []*gogithub.Team
	for {
		page, resp, err := p.client.Teams.ListTeams(ctx, org, teamOpts)
		if err != nil {
			return nil, fmt.Errorf("listing teams of %s: %w", org, err)
		}
		teams = append(teams, page...)
		if resp.NextPage == 0 {
			break
		}
		teamOpts.Page = resp.NextPage
	}

	seen := make(map[string]struct{})
	var members []sync.RemoteUser
	for _, team := range teams {
		memberOpts := &gogithub.TeamListTeamMembersOptions{
			ListOptions: gogithub.ListOptions{PerPage: 100},
		}
		for {
			page, resp, err := p.client.Teams.ListTeamMembersBySlug(ctx, org, team.GetSlug(), memberOpts)
			if err != nil {
				return nil, fmt.Errorf("listing members of team %s/%s: %w", org, team.GetSlug(), err)
			}
			for _, member := range page {
				login := member.GetLogin()
				if _, ok := seen[login]; ok {
					continue
				}
				seen[login] = struct{}{}
				members = append(members, sync.RemoteUser{
					Login:     login,
					AvatarURL: member.GetAvatarURL(),
				})
			}
			if resp.NextPage == 0 {
				break
			}
			memberOpts.Page = resp.NextPage
		}
	}
	return members, nil
}

func toRemoteRepo(repo *gogithub.Repository) sync.RemoteRepo {
	owner := repo.GetOwner()
	return sync.RemoteRepo{
		Owner: sync.RemoteUser{
			Login:     owner.GetLogin(),
			Name:      owner.GetName(),
			AvatarURL: owner.GetAvatarURL(),
		},
		Name: repo.GetName(),
	}
}

// Compile-time check that Provider implements sync.SourceProvider.
var _ sync.SourceProvider = (*Provider)(nil)
