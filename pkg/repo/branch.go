package repo

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/hist/pkg/object"
)

// validateBranchName rejects names that would escape refs/heads/ or
// produce unreadable ref files.
func validateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("branch name is empty")
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("invalid branch name %q", name)
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, " \t\n~^:?*[\\") {
		return fmt.Errorf("invalid branch name %q", name)
	}
	return nil
}

// CreateBranch creates a new branch pointing at the given target hash.
// Returns ErrBranchExists if the name is taken.
func (r *Repo) CreateBranch(name string, target object.Hash) error {
	if err := validateBranchName(name); err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	refName := "refs/heads/" + name
	if err := r.UpdateRefCAS(refName, target, ""); err != nil {
		if errors.Is(err, ErrRefCASMismatch) {
			return fmt.Errorf("create branch %q: %w", name, ErrBranchExists)
		}
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// MoveBranch force-moves an existing branch to target. Returns
// ErrBranchNotFound when the branch does not exist.
func (r *Repo) MoveBranch(name string, target object.Hash) error {
	refName := "refs/heads/" + name
	if _, err := r.ResolveRef(refName); err != nil {
		return fmt.Errorf("move branch %q: %w", name, ErrBranchNotFound)
	}
	if err := r.UpdateRefCAS(refName, target); err != nil {
		return fmt.Errorf("move branch %q: %w", name, err)
	}
	return nil
}

// DeleteBranch removes the branch ref. The checked-out branch cannot be
// deleted. Without force, a branch whose tip is not reachable from HEAD
// or any other branch is refused with ErrUnmergedBranch.
func (r *Repo) DeleteBranch(name string, force bool) error {
	current, err := r.CurrentBranch()
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if current == name {
		return fmt.Errorf("delete branch %q: %w", name, ErrDeleteCurrentBranch)
	}

	refName := "refs/heads/" + name
	tip, err := r.ResolveRef(refName)
	if err != nil {
		return fmt.Errorf("delete branch %q: %w", name, ErrBranchNotFound)
	}

	if !force {
		merged, err := r.branchTipMerged(name, tip)
		if err != nil {
			return fmt.Errorf("delete branch %q: %w", name, err)
		}
		if !merged {
			return fmt.Errorf("delete branch %q: %w", name, ErrUnmergedBranch)
		}
	}

	if err := r.DeleteRef(refName); err != nil {
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	return nil
}

// branchTipMerged reports whether tip is reachable from HEAD or from any
// other branch, i.e. deleting the branch loses no commits.
func (r *Repo) branchTipMerged(name string, tip object.Hash) (bool, error) {
	if headHash, err := r.ResolveRef("HEAD"); err == nil && headHash != "" {
		ok, err := r.IsAncestor(tip, headHash)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	branches, err := r.ListBranches()
	if err != nil {
		return false, err
	}
	for _, b := range branches {
		if b == name {
			continue
		}
		h, err := r.ResolveRef("refs/heads/" + b)
		if err != nil {
			continue
		}
		ok, err := r.IsAncestor(tip, h)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ListBranches returns all branch names sorted alphabetically, including
// slash-nested names.
func (r *Repo) ListBranches() ([]string, error) {
	refs, err := r.ListRefs("heads")
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}

	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, strings.TrimPrefix(name, "heads/"))
	}
	sort.Strings(names)
	return names, nil
}

// CurrentBranch reads HEAD and returns the branch name if HEAD is a
// symbolic ref (e.g. "ref: refs/heads/main" yields "main"). If HEAD is
// detached it returns "".
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}

	const prefix = "refs/heads/"
	if strings.HasPrefix(head, prefix) {
		return strings.TrimPrefix(head, prefix), nil
	}

	return "", nil
}
