package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/hist/pkg/object"
)

// Switch checks out the named branch: the index and working tree are
// loaded from its tip commit and HEAD becomes symbolic to it. Switching
// to the branch already checked out is a no-op.
func (r *Repo) Switch(name string) error {
	if err := r.requireNoOperation("switch"); err != nil {
		return err
	}

	refPath := "refs/heads/" + name
	targetHash, err := r.ResolveRef(refPath)
	if err != nil {
		return fmt.Errorf("switch %q: %w", name, ErrBranchNotFound)
	}

	head, err := r.Head()
	if err != nil {
		return fmt.Errorf("switch: %w", err)
	}
	if head == refPath {
		return nil
	}

	return r.checkoutCommit(targetHash, refPath, "switch: "+name)
}

// SwitchCreate creates a branch at startRev (HEAD when empty) and checks
// it out.
func (r *Repo) SwitchCreate(name, startRev string) error {
	if err := r.requireNoOperation("switch"); err != nil {
		return err
	}

	start := startRev
	if start == "" {
		start = "HEAD"
	}
	startHash, err := r.Resolve(start)
	if err != nil {
		return fmt.Errorf("switch: %w", err)
	}
	if err := r.CreateBranch(name, startHash); err != nil {
		return fmt.Errorf("switch: %w", err)
	}

	return r.checkoutCommit(startHash, "refs/heads/"+name, "switch: "+name)
}

// SwitchDetach checks out an arbitrary commit with a detached HEAD.
func (r *Repo) SwitchDetach(rev string) error {
	if err := r.requireNoOperation("switch"); err != nil {
		return err
	}

	targetHash, err := r.Resolve(rev)
	if err != nil {
		return fmt.Errorf("switch: %w", err)
	}

	return r.checkoutCommit(targetHash, "", "switch: detach "+targetHash.Short())
}

// checkoutCommit loads the target commit's tree into the index and
// working tree, then points HEAD at symbolicRef (or directly at the
// commit when symbolicRef is empty). When the target commit equals the
// current HEAD commit the content load is skipped, so moving between
// refs at the same commit carries local changes along.
func (r *Repo) checkoutCommit(targetHash object.Hash, symbolicRef, reason string) error {
	oldHash, _ := r.ResolveRef("HEAD")

	commit, err := r.Store.ReadCommit(targetHash)
	if err != nil {
		return fmt.Errorf("checkout: read commit %s: %w", targetHash.Short(), err)
	}

	if oldHash != targetHash {
		targetFiles, err := r.FlattenTree(commit.TreeHash)
		if err != nil {
			return fmt.Errorf("checkout: flatten target tree: %w", err)
		}
		if err := r.ensureCleanForTarget("checkout", targetFiles); err != nil {
			return err
		}
		if err := r.checkUntrackedOverwrites(targetFiles); err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
		if err := r.materializeFiles(targetFiles); err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
	}

	if symbolicRef != "" {
		if err := r.setHead(symbolicRef, false); err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
	} else {
		if err := r.setHead(string(targetHash), true); err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
	}

	if err := r.appendReflog("HEAD", oldHash, targetHash, reason); err != nil {
		return &RefUpdateReflogError{
			Ref:     "HEAD",
			OldHash: oldHash,
			NewHash: targetHash,
			Err:     err,
		}
	}

	r.log.WithFields(logrus.Fields{
		"target": targetHash.Short(),
		"ref":    symbolicRef,
	}).Debug("checked out")
	return nil
}

// ensureClean verifies that the index matches HEAD and the working tree
// matches the index. Untracked files do not count as dirt; they are only
// rejected when an operation would overwrite them.
func (r *Repo) ensureClean(op string) error {
	entries, err := r.Status()
	if err != nil {
		return fmt.Errorf("%s: check status: %w", op, err)
	}

	for _, e := range entries {
		if e.IndexStatus == StatusUntracked && e.WorkStatus == StatusUntracked {
			continue
		}
		if e.IndexStatus != StatusClean || e.WorkStatus != StatusClean {
			return fmt.Errorf("%s: %q has uncommitted changes: %w", op, e.Path, ErrUncommittedChanges)
		}
	}
	return nil
}

// ensureCleanForTarget rejects only changes that loading the target tree
// would silently discard. A staged or worktree version of a path whose
// content and mode already match the target's version carries through
// the checkout; any other local change fails it. Conflicted entries
// never carry.
func (r *Repo) ensureCleanForTarget(op string, targetFiles []TreeFileEntry) error {
	entries, err := r.Status()
	if err != nil {
		return fmt.Errorf("%s: check status: %w", op, err)
	}

	target := make(map[string]TreeFileEntry, len(targetFiles))
	for _, tf := range targetFiles {
		target[tf.Path] = tf
	}

	stg, err := r.ReadStaging()
	if err != nil {
		return fmt.Errorf("%s: read staging: %w", op, err)
	}

	for _, e := range entries {
		if e.IndexStatus == StatusUntracked && e.WorkStatus == StatusUntracked {
			continue
		}
		if e.IndexStatus == StatusClean && e.WorkStatus == StatusClean {
			continue
		}
		if e.IndexStatus == StatusConflict || e.WorkStatus == StatusConflict {
			return fmt.Errorf("%s: %q has unresolved conflicts: %w", op, e.Path, ErrUncommittedChanges)
		}

		tf, inTarget := target[e.Path]
		se := stg.Entries[e.Path]

		if e.IndexStatus != StatusClean {
			// The staged version is discarded unless the target holds it.
			switch {
			case se == nil:
				if inTarget {
					return fmt.Errorf("%s: %q has uncommitted changes: %w", op, e.Path, ErrUncommittedChanges)
				}
			case !inTarget || se.BlobHash != tf.BlobHash || normalizeFileMode(se.Mode) != normalizeFileMode(tf.Mode):
				return fmt.Errorf("%s: %q has uncommitted changes: %w", op, e.Path, ErrUncommittedChanges)
			}
		}

		if e.WorkStatus != StatusClean {
			absPath := filepath.Join(r.RootDir, filepath.FromSlash(e.Path))
			info, statErr := os.Stat(absPath)
			if statErr != nil {
				// Deleted from the worktree; only a target that also
				// lacks the path contains that change.
				if inTarget {
					return fmt.Errorf("%s: %q has uncommitted changes: %w", op, e.Path, ErrUncommittedChanges)
				}
				continue
			}
			workHash, hashErr := r.hashWorktreeBlob(e.Path, absPath, info)
			if hashErr != nil {
				return fmt.Errorf("%s: read %q: %w", op, e.Path, hashErr)
			}
			if !inTarget || workHash != tf.BlobHash || modeFromFileInfo(info) != normalizeFileMode(tf.Mode) {
				return fmt.Errorf("%s: %q has uncommitted changes: %w", op, e.Path, ErrUncommittedChanges)
			}
		}
	}
	return nil
}
