package testutil

import (
	"context"
	"fmt"
	"io"
	"strings"

	"classmirror/internal/sync"
)

// FakeRepo is the in-memory state of one remote repository.
type FakeRepo struct {
	Repo    sync.RemoteRepo
	Commits []sync.RemoteCommit // newest first
	Tree    []sync.TreeEntry
	Blobs   map[string][]byte // keyed by content sha
}

// FakeProvider is an in-memory sync.SourceProvider with a finite commit
// graph. Tests populate it via AddRepo/AddFork and inspect the call
// counters for dedup assertions.
type FakeProvider struct {
	Repos   map[string]*FakeRepo         // keyed by "owner/name"
	Forks   map[string][]string          // source full name -> fork full names
	Members map[string][]sync.RemoteUser // org login -> team members

	BlobFetches map[string]int // sha -> GetBlob calls
	TreeFetches map[string]int // full name -> GetHeadTree calls

	Windows map[string][]sync.FetchWindow // full name -> ListCommits windows
}

// NewFakeProvider creates an empty FakeProvider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		Repos:       make(map[string]*FakeRepo),
		Forks:       make(map[string][]string),
		Members:     make(map[string][]sync.RemoteUser),
		BlobFetches: make(map[string]int),
		TreeFetches: make(map[string]int),
		Windows:     make(map[string][]sync.FetchWindow),
	}
}

// AddRepo registers a repository and returns its state for population.
func (p *FakeProvider) AddRepo(ownerLogin, name string) *FakeRepo {
	r := &FakeRepo{
		Repo: sync.RemoteRepo{
			Owner: sync.RemoteUser{Login: ownerLogin},
			Name:  name,
		},
		Blobs: make(map[string][]byte),
	}
	p.Repos[r.Repo.FullName()] = r
	return r
}

// AddFork registers a fork of the given source repository.
func (p *FakeProvider) AddFork(sourceFullName, ownerLogin string) *FakeRepo {
	_, name, _ := strings.Cut(sourceFullName, "/")
	fork := p.AddRepo(ownerLogin, name)
	p.Forks[sourceFullName] = append(p.Forks[sourceFullName], fork.Repo.FullName())
	return fork
}

func (p *FakeProvider) lookup(fullName string) (*FakeRepo, error) {
	r, ok := p.Repos[fullName]
	if !ok {
		return nil, fmt.Errorf("unknown repository %s", fullName)
	}
	return r, nil
}

func (p *FakeProvider) GetRepo(_ context.Context, fullName string) (*sync.RemoteRepo, error) {
	r, err := p.lookup(fullName)
	if err != nil {
		return nil, err
	}
	repo := r.Repo
	return &repo, nil
}

func (p *FakeProvider) ListForks(_ context.Context, repo sync.RemoteRepo, ignoreLogins map[string]struct{}) ([]sync.RemoteRepo, error) {
	var forks []sync.RemoteRepo
	for _, fullName := range p.Forks[repo.FullName()] {
		fork, err := p.lookup(fullName)
		if err != nil {
			return nil, err
		}
		if _, ignored := ignoreLogins[fork.Repo.Owner.Login]; ignored {
			continue
		}
		forks = append(forks, fork.Repo)
	}
	return forks, nil
}

func (p *FakeProvider) ListCommits(_ context.Context, repo sync.RemoteRepo, window sync.FetchWindow) (sync.CommitIter, error) {
	r, err := p.lookup(repo.FullName())
	if err != nil {
		return nil, err
	}
	p.Windows[repo.FullName()] = append(p.Windows[repo.FullName()], window)

	var commits []sync.RemoteCommit
	for _, c := range r.Commits {
		if window.Since != nil && c.CommitDate.Before(*window.Since) {
			continue
		}
		commits = append(commits, c)
	}
	return &sliceIter{commits: commits}, nil
}

func (p *FakeProvider) GetHeadTree(_ context.Context, repo sync.RemoteRepo) ([]sync.TreeEntry, error) {
	r, err := p.lookup(repo.FullName())
	if err != nil {
		return nil, err
	}
	p.TreeFetches[repo.FullName()]++
	return append([]sync.TreeEntry{}, r.Tree...), nil
}

func (p *FakeProvider) GetBlob(_ context.Context, repo sync.RemoteRepo, sha string) (*sync.Blob, error) {
	r, err := p.lookup(repo.FullName())
	if err != nil {
		return nil, err
	}
	content, ok := r.Blobs[sha]
	if !ok {
		return nil, fmt.Errorf("unknown blob %s in %s", sha, repo.FullName())
	}
	p.BlobFetches[sha]++
	return &sync.Blob{SHA: sha, Content: append([]byte{}, content...)}, nil
}

func (p *FakeProvider) ListTeamMembers(_ context.Context, org string) ([]sync.RemoteUser, error) {
	return append([]sync.RemoteUser{}, p.Members[org]...), nil
}

// sliceIter yields a fixed slice of commits, then io.EOF.
type sliceIter struct {
	commits []sync.RemoteCommit
	pos     int
}

func (it *sliceIter) Next() (*sync.RemoteCommit, error) {
	if it.pos >= len(it.commits) {
		return nil, io.EOF
	}
	c := it.commits[it.pos]
	it.pos++
	return &c, nil
}

func (it *sliceIter) Close() error { return nil }

var _ sync.SourceProvider = (*FakeProvider)(nil)
