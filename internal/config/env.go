package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"classmirror/internal/sync"
)

// Environment variables recognized as operator-facing sync knobs.
const (
	EnvRepoLimit              = "REPO_LIMIT"
	EnvCommitLimit            = "COMMIT_LIMIT"
	EnvUserFilter             = "USER_FILTER"
	EnvReprocessCommits       = "REPROCESS_COMMITS"
	EnvDownloadableExtensions = "DOWNLOADABLE_EXTENSIONS"
	EnvGitHubToken            = "GITHUB_API_TOKEN"
)

// OptionsFromEnv builds sync options from the process environment.
func OptionsFromEnv() (sync.Options, error) {
	return OptionsFromEnviron(os.Getenv)
}

// OptionsFromEnviron builds sync options from the given lookup function.
// Unset or empty variables leave the corresponding option at its zero
// value (unlimited / all users / incremental / default extensions).
func OptionsFromEnviron(getenv func(string) string) (sync.Options, error) {
	var opts sync.Options

	repoLimit, err := intEnv(getenv, EnvRepoLimit)
	if err != nil {
		return sync.Options{}, err
	}
	opts.RepoLimit = repoLimit

	commitLimit, err := intEnv(getenv, EnvCommitLimit)
	if err != nil {
		return sync.Options{}, err
	}
	opts.CommitLimit = commitLimit

	opts.UserFilter = splitList(getenv(EnvUserFilter))
	opts.Reprocess = boolEnv(getenv(EnvReprocessCommits))
	opts.DownloadableExtensions = splitList(getenv(EnvDownloadableExtensions))

	return opts, nil
}

func intEnv(getenv func(string) string, key string) (int, error) {
	raw := getenv(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q: %w", key, raw, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", key, n)
	}
	return n, nil
}

func boolEnv(raw string) bool {
	switch raw {
	case "", "0", "false", "False":
		return false
	}
	return true
}

// splitList parses a comma-separated list, dropping empty elements.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
