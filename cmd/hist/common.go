package main

import (
	"os"
	"strings"

	"github.com/odvcencio/hist/pkg/repo"
)

// resolveAuthor picks the committer identity: an explicit --author wins,
// then [user] from config.toml, then $USER.
func resolveAuthor(r *repo.Repo, override string) string {
	if override != "" {
		return override
	}
	if cfg, err := r.ReadConfig(); err == nil {
		if author := cfg.Author(); author != "" {
			return author
		}
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

// currentBranchName returns the checked-out branch, or "HEAD" when
// detached or unreadable.
func currentBranchName(r *repo.Repo) string {
	head, err := r.Head()
	if err == nil && strings.HasPrefix(head, "refs/heads/") {
		return strings.TrimPrefix(head, "refs/heads/")
	}
	return "HEAD"
}
