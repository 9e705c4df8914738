package repo

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/hist/pkg/object"
)

// CherryPick applies the change a single commit introduced as a new
// commit on HEAD. The pick is one replay step: a three-way merge with
// the picked commit's first parent as base, HEAD as ours, and the
// commit itself as theirs. The new commit keeps the original author and
// message but is stamped with the pick time.
//
// Merge commits cannot be picked; their patch is ambiguous without a
// mainline. A pick whose change is already present fails with
// ErrNothingToCommit. Conflicts suspend the pick: marker files in the
// worktree, three stage hashes per conflicted index entry, persisted
// state, and a *ConflictError naming the commit and paths; the caller
// resolves and runs CherryPickContinue, or CherryPickAbort.
func (r *Repo) CherryPick(revision string) (object.Hash, error) {
	if err := r.requireNoOperation("cherry-pick"); err != nil {
		return "", err
	}

	targetHash, err := r.Resolve(revision)
	if err != nil {
		return "", fmt.Errorf("cherry-pick: %q: %w", revision, err)
	}
	headHash, err := r.ResolveRef("HEAD")
	if err != nil || headHash == "" {
		return "", fmt.Errorf("cherry-pick: HEAD has no commit: %w", ErrUnresolvableRef)
	}

	target, err := r.Store.ReadCommit(targetHash)
	if err != nil {
		return "", fmt.Errorf("cherry-pick: read commit %s: %w", targetHash.Short(), err)
	}
	if len(target.Parents) > 1 {
		return "", fmt.Errorf("cherry-pick: %s is a merge commit", targetHash.Short())
	}

	if err := r.ensureClean("cherry-pick"); err != nil {
		return "", err
	}

	head, err := r.Store.ReadCommit(headHash)
	if err != nil {
		return "", fmt.Errorf("cherry-pick: read head commit: %w", err)
	}

	var baseFiles []TreeFileEntry
	if len(target.Parents) == 1 {
		parentCommit, err := r.Store.ReadCommit(target.Parents[0])
		if err != nil {
			return "", fmt.Errorf("cherry-pick: read parent of %s: %w", targetHash.Short(), err)
		}
		baseFiles, err = r.FlattenTree(parentCommit.TreeHash)
		if err != nil {
			return "", fmt.Errorf("cherry-pick: flatten parent tree: %w", err)
		}
	}
	oursFiles, err := r.FlattenTree(head.TreeHash)
	if err != nil {
		return "", fmt.Errorf("cherry-pick: flatten head tree: %w", err)
	}
	theirsFiles, err := r.FlattenTree(target.TreeHash)
	if err != nil {
		return "", fmt.Errorf("cherry-pick: flatten commit tree: %w", err)
	}

	labels := r.mergeLabels(targetHash.Short())
	outcome, err := r.mergeTrees(baseFiles, oursFiles, theirsFiles, labels)
	if err != nil {
		return "", fmt.Errorf("cherry-pick: %w", err)
	}

	if err := r.checkUntrackedOverwrites(outcome.untrackedWrites); err != nil {
		return "", fmt.Errorf("cherry-pick: %w", err)
	}

	if outcome.report.HasConflicts {
		if err := r.materializeReplayConflict(outcome); err != nil {
			return "", fmt.Errorf("cherry-pick: %w", err)
		}
		if err := r.writeOpState(&OpState{
			Op: OpCherryPick,
			CherryPick: &CherryPickState{
				TargetHash: targetHash,
				OursHash:   headHash,
			},
		}); err != nil {
			return "", fmt.Errorf("cherry-pick: %w", err)
		}

		conflictPaths := make([]string, 0, len(outcome.conflicted))
		for _, cf := range outcome.conflicted {
			conflictPaths = append(conflictPaths, cf.path)
		}
		sort.Strings(conflictPaths)

		r.log.WithFields(logrus.Fields{
			"commit":    targetHash.Short(),
			"conflicts": outcome.report.TotalConflicts,
		}).Debug("cherry-pick stopped on conflicts")

		return "", &ConflictError{Op: "cherry-pick", Commit: targetHash, Paths: conflictPaths}
	}

	newTreeHash, err := r.writeMergedTree(outcome)
	if err != nil {
		return "", fmt.Errorf("cherry-pick: %w", err)
	}
	if newTreeHash == head.TreeHash {
		return "", fmt.Errorf("cherry-pick: %s is already applied: %w", targetHash.Short(), ErrNothingToCommit)
	}

	newHash, err := r.Store.WriteCommit(&object.CommitObj{
		TreeHash:  newTreeHash,
		Parents:   []object.Hash{headHash},
		Author:    target.Author,
		Timestamp: time.Now().Unix(),
		Message:   target.Message,
	})
	if err != nil {
		return "", fmt.Errorf("cherry-pick: write commit: %w", err)
	}

	targetFiles, err := r.FlattenTree(newTreeHash)
	if err != nil {
		return "", fmt.Errorf("cherry-pick: flatten new tree: %w", err)
	}
	if err := r.materializeFiles(targetFiles); err != nil {
		return "", fmt.Errorf("cherry-pick: %w", err)
	}
	if err := r.advanceHead(newHash, headHash); err != nil {
		return "", fmt.Errorf("cherry-pick: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"picked": targetHash.Short(),
		"commit": newHash.Short(),
	}).Debug("cherry-pick committed")
	return newHash, nil
}

// CherryPickContinue commits a cherry-pick previously suspended on
// conflicts from the resolved index. A resolution that reproduces
// HEAD's tree fails with ErrNothingToCommit and leaves the pick
// suspended; abort is the way out of an emptied pick.
func (r *Repo) CherryPickContinue() (object.Hash, error) {
	st, err := r.readOpState()
	if err != nil {
		return "", fmt.Errorf("cherry-pick continue: %w", err)
	}
	if st.Op != OpCherryPick || st.CherryPick == nil {
		return "", fmt.Errorf("cherry-pick continue: %w", ErrNoOperationInProgress)
	}
	cst := st.CherryPick

	stg, err := r.ReadStaging()
	if err != nil {
		return "", fmt.Errorf("cherry-pick continue: %w", err)
	}
	if stg.HasConflicts() {
		return "", fmt.Errorf("cherry-pick continue: %w: %s", ErrUnmergedPaths, strings.Join(stg.ConflictPaths(), ", "))
	}

	target, err := r.Store.ReadCommit(cst.TargetHash)
	if err != nil {
		return "", fmt.Errorf("cherry-pick continue: read commit: %w", err)
	}
	ours, err := r.Store.ReadCommit(cst.OursHash)
	if err != nil {
		return "", fmt.Errorf("cherry-pick continue: read head commit: %w", err)
	}
	treeHash, err := r.BuildTree(stg)
	if err != nil {
		return "", fmt.Errorf("cherry-pick continue: %w", err)
	}
	if treeHash == ours.TreeHash {
		return "", fmt.Errorf("cherry-pick continue: resolution leaves HEAD unchanged: %w", ErrNothingToCommit)
	}

	newHash, err := r.Store.WriteCommit(&object.CommitObj{
		TreeHash:  treeHash,
		Parents:   []object.Hash{cst.OursHash},
		Author:    target.Author,
		Timestamp: time.Now().Unix(),
		Message:   target.Message,
	})
	if err != nil {
		return "", fmt.Errorf("cherry-pick continue: write commit: %w", err)
	}
	if err := r.advanceHead(newHash, cst.OursHash); err != nil {
		return "", fmt.Errorf("cherry-pick continue: %w", err)
	}
	if err := r.clearOpState(); err != nil {
		return "", err
	}

	r.log.WithField("commit", newHash.Short()).Debug("cherry-pick continued to completion")
	return newHash, nil
}

// CherryPickAbort discards a suspended cherry-pick: the index and
// worktree are restored to the HEAD commit, which never moved.
func (r *Repo) CherryPickAbort() error {
	st, err := r.readOpState()
	if err != nil {
		return fmt.Errorf("cherry-pick abort: %w", err)
	}
	if st.Op != OpCherryPick || st.CherryPick == nil {
		return fmt.Errorf("cherry-pick abort: %w", ErrNoOperationInProgress)
	}

	ours, err := r.Store.ReadCommit(st.CherryPick.OursHash)
	if err != nil {
		return fmt.Errorf("cherry-pick abort: read commit: %w", err)
	}
	if err := r.materializeTree(ours.TreeHash); err != nil {
		return fmt.Errorf("cherry-pick abort: %w", err)
	}
	if err := r.clearOpState(); err != nil {
		return err
	}

	r.log.Debug("cherry-pick aborted")
	return nil
}
