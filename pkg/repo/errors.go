package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/hist/pkg/object"
)

var (
	// ErrNotARepository is returned by Open when no .hist directory is
	// found in the start path or any of its parents.
	ErrNotARepository = errors.New("not a hist repository")

	// ErrRepositoryExists is returned by Init when the target already
	// contains a .hist directory.
	ErrRepositoryExists = errors.New("repository already exists")

	// ErrUnresolvableRef is returned by Resolve when a revision string
	// matches no hash, branch, tag, or HEAD form.
	ErrUnresolvableRef = errors.New("unknown revision")

	// ErrBranchExists is returned when creating a branch whose name is taken.
	ErrBranchExists = errors.New("branch already exists")

	// ErrBranchNotFound is returned when a named branch does not exist.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrDeleteCurrentBranch is returned when deleting the checked-out branch.
	ErrDeleteCurrentBranch = errors.New("cannot delete the current branch")

	// ErrUnmergedBranch is returned when deleting a branch whose tip is
	// not reachable from HEAD or any other branch and force was not given.
	ErrUnmergedBranch = errors.New("branch is not fully merged")

	// ErrTagExists is returned when creating a tag whose name is taken.
	ErrTagExists = errors.New("tag already exists")

	// ErrTagNotFound is returned when a named tag does not exist.
	ErrTagNotFound = errors.New("tag not found")

	// ErrNothingToCommit is returned when the staged tree is empty or
	// identical to the parent commit's tree.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrUnmergedPaths is returned when committing while conflict entries
	// remain in the index.
	ErrUnmergedPaths = errors.New("unmerged paths present")

	// ErrUncommittedChanges is returned when an operation would overwrite
	// local modifications in the index or worktree.
	ErrUncommittedChanges = errors.New("uncommitted changes present")

	// ErrNoCommonAncestor is returned when two commits share no history.
	ErrNoCommonAncestor = errors.New("no common ancestor")

	// ErrOperationInProgress is returned when a merge or rebase state file
	// exists and the requested command is not part of finishing it.
	ErrOperationInProgress = errors.New("operation in progress")

	// ErrNoOperationInProgress is returned by continue/abort when there is
	// nothing to continue or abort.
	ErrNoOperationInProgress = errors.New("no operation in progress")

	// ErrRefCASMismatch is returned when a compare-and-swap ref update
	// observes a different current value than expected.
	ErrRefCASMismatch = errors.New("ref compare-and-swap mismatch")

	// ErrRefUpdatedButReflogAppendFailed marks a ref update that committed
	// even though its reflog entry could not be written.
	ErrRefUpdatedButReflogAppendFailed = errors.New("ref updated but reflog append failed")
)

// ConflictError reports a merge or rebase stopped on conflicts. The
// operation state is persisted; the caller resolves the listed paths and
// runs the matching continue, or aborts.
type ConflictError struct {
	Op     string      // "merge" or "rebase"
	Commit object.Hash // commit being merged or replayed
	Paths  []string    // conflicted paths, sorted
}

func (e *ConflictError) Error() string {
	if e.Commit == "" {
		return fmt.Sprintf("%s: conflicts in %s", e.Op, strings.Join(e.Paths, ", "))
	}
	return fmt.Sprintf("%s: conflicts in %s (commit %s)",
		e.Op, strings.Join(e.Paths, ", "), e.Commit.Short())
}

// RefUpdateReflogError indicates the ref file update succeeded, but
// appending the corresponding reflog entry failed.
type RefUpdateReflogError struct {
	Ref     string
	OldHash object.Hash
	NewHash object.Hash
	Err     error
}

func (e *RefUpdateReflogError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf(
		"update ref %q: %s (old=%s new=%s): %v",
		e.Ref,
		ErrRefUpdatedButReflogAppendFailed,
		e.OldHash,
		e.NewHash,
		e.Err,
	)
}

func (e *RefUpdateReflogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *RefUpdateReflogError) Is(target error) bool {
	return target == ErrRefUpdatedButReflogAppendFailed
}
