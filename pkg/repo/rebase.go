package repo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/hist/pkg/diff3"
	"github.com/odvcencio/hist/pkg/object"
)

// RebaseReport is the overall result of a rebase.
type RebaseReport struct {
	Replayed        []object.Hash // replacement commits, oldest first
	NewHead         object.Hash
	FastForward     bool // HEAD was behind upstream and simply caught up
	AlreadyUpToDate bool // upstream already reachable from HEAD
}

// Rebase replays the current branch's own commits onto upstream: every
// commit reachable from HEAD but not from upstream is re-applied, in
// order, as a patch against the running rebase head. The branch pointer
// moves only once, to the final replayed commit, so an abort at any
// point has nothing to rewind.
//
// A clean replay ends with the branch on the new chain and the worktree
// and index at its tip. A conflicted step materializes the partial
// result with conflict markers, persists the rebase state, and returns
// the report with a *ConflictError naming the commit and paths; the
// caller resolves, stages, and runs RebaseContinue, or RebaseAbort.
//
// Commits whose patch is already present upstream are skipped rather
// than replayed as empty commits.
func (r *Repo) Rebase(upstream string) (*RebaseReport, error) {
	if err := r.requireNoOperation("rebase"); err != nil {
		return nil, err
	}

	upstreamHash, err := r.Resolve(upstream)
	if err != nil {
		return nil, fmt.Errorf("rebase: upstream %q: %w", upstream, err)
	}
	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return nil, fmt.Errorf("rebase: resolve HEAD: %w", err)
	}

	if upstreamHash == headHash {
		return &RebaseReport{AlreadyUpToDate: true, NewHead: headHash}, nil
	}

	baseHash, err := r.FindMergeBase(headHash, upstreamHash)
	if err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	if baseHash == "" {
		return nil, fmt.Errorf("rebase: %q shares no history with HEAD: %w", upstream, ErrNoCommonAncestor)
	}
	if baseHash == upstreamHash {
		// Upstream is already an ancestor of HEAD.
		return &RebaseReport{AlreadyUpToDate: true, NewHead: headHash}, nil
	}

	if err := r.ensureClean("rebase"); err != nil {
		return nil, err
	}

	if baseHash == headHash {
		// HEAD is strictly behind upstream: catch up, nothing to replay.
		upstreamCommit, err := r.Store.ReadCommit(upstreamHash)
		if err != nil {
			return nil, fmt.Errorf("rebase: read upstream commit: %w", err)
		}
		targetFiles, err := r.FlattenTree(upstreamCommit.TreeHash)
		if err != nil {
			return nil, fmt.Errorf("rebase: flatten upstream tree: %w", err)
		}
		if err := r.checkUntrackedOverwrites(targetFiles); err != nil {
			return nil, fmt.Errorf("rebase: %w", err)
		}
		if err := r.materializeFiles(targetFiles); err != nil {
			return nil, fmt.Errorf("rebase: %w", err)
		}
		if err := r.advanceHead(upstreamHash, headHash); err != nil {
			return nil, fmt.Errorf("rebase: %w", err)
		}
		r.log.WithField("head", upstreamHash.Short()).Debug("fast-forward rebase")
		return &RebaseReport{FastForward: true, NewHead: upstreamHash}, nil
	}

	commits, err := r.rebaseCommitList(headHash, upstreamHash)
	if err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}

	branchRef := ""
	if head, err := r.Head(); err == nil && strings.HasPrefix(head, "refs/") {
		branchRef = head
	}

	st := &RebaseState{
		BranchRef:      branchRef,
		OrigBranchHash: headHash,
		UpstreamHash:   upstreamHash,
		RunningHead:    upstreamHash,
		Remaining:      commits,
	}

	r.log.WithFields(logrus.Fields{
		"upstream": upstreamHash.Short(),
		"commits":  len(commits),
	}).Debug("rebase started")

	return r.replayCommits(st, &RebaseReport{})
}

// RebaseContinue resumes a rebase suspended on conflicts: the resolved
// index becomes the replayed commit for the suspended step, then the
// remaining commits replay as usual.
func (r *Repo) RebaseContinue() (*RebaseReport, error) {
	st, err := r.readOpState()
	if err != nil {
		return nil, fmt.Errorf("rebase continue: %w", err)
	}
	if st.Op != OpRebase || st.Rebase == nil {
		return nil, fmt.Errorf("rebase continue: %w", ErrNoOperationInProgress)
	}
	rst := st.Rebase
	if rst.CurrentHash == "" {
		return nil, fmt.Errorf("rebase continue: state has no commit in flight")
	}

	stg, err := r.ReadStaging()
	if err != nil {
		return nil, fmt.Errorf("rebase continue: %w", err)
	}
	if stg.HasConflicts() {
		return nil, fmt.Errorf("rebase continue: %w: %s", ErrUnmergedPaths, strings.Join(stg.ConflictPaths(), ", "))
	}

	commit, err := r.Store.ReadCommit(rst.CurrentHash)
	if err != nil {
		return nil, fmt.Errorf("rebase continue: read commit: %w", err)
	}
	running, err := r.Store.ReadCommit(rst.RunningHead)
	if err != nil {
		return nil, fmt.Errorf("rebase continue: read running head: %w", err)
	}
	treeHash, err := r.BuildTree(stg)
	if err != nil {
		return nil, fmt.Errorf("rebase continue: %w", err)
	}

	// Commits replayed before the conflict stay in the completion report.
	report := &RebaseReport{Replayed: append([]object.Hash(nil), rst.Replayed...)}
	if treeHash == running.TreeHash {
		// The resolution dropped the whole patch.
		r.log.WithField("commit", rst.CurrentHash.Short()).Debug("skipping emptied commit")
	} else {
		newHash, err := r.Store.WriteCommit(&object.CommitObj{
			TreeHash:  treeHash,
			Parents:   []object.Hash{rst.RunningHead},
			Author:    commit.Author,
			Timestamp: commit.Timestamp,
			Message:   commit.Message,
		})
		if err != nil {
			return nil, fmt.Errorf("rebase continue: write commit: %w", err)
		}
		report.Replayed = append(report.Replayed, newHash)
		rst.Replayed = append(rst.Replayed, newHash)
		rst.RunningHead = newHash
	}
	rst.CurrentHash = ""

	return r.replayCommits(rst, report)
}

// RebaseAbort discards a suspended rebase. The branch pointer never
// moved, so only the index and worktree are restored to the original
// branch tip.
func (r *Repo) RebaseAbort() error {
	st, err := r.readOpState()
	if err != nil {
		return fmt.Errorf("rebase abort: %w", err)
	}
	if st.Op != OpRebase || st.Rebase == nil {
		return fmt.Errorf("rebase abort: %w", ErrNoOperationInProgress)
	}

	orig, err := r.Store.ReadCommit(st.Rebase.OrigBranchHash)
	if err != nil {
		return fmt.Errorf("rebase abort: read commit: %w", err)
	}
	if err := r.materializeTree(orig.TreeHash); err != nil {
		return fmt.Errorf("rebase abort: %w", err)
	}
	if err := r.clearOpState(); err != nil {
		return err
	}

	r.log.Debug("rebase aborted")
	return nil
}

// replayCommits applies st.Remaining onto st.RunningHead one commit at
// a time. Each step is a three-way merge: the commit's first parent is
// the base, the running head is ours, the commit itself is theirs.
func (r *Repo) replayCommits(st *RebaseState, report *RebaseReport) (*RebaseReport, error) {
	for len(st.Remaining) > 0 {
		c := st.Remaining[0]
		rest := st.Remaining[1:]

		commit, err := r.Store.ReadCommit(c)
		if err != nil {
			return nil, fmt.Errorf("rebase: read commit %s: %w", c.Short(), err)
		}
		running, err := r.Store.ReadCommit(st.RunningHead)
		if err != nil {
			return nil, fmt.Errorf("rebase: read running head: %w", err)
		}

		var baseFiles []TreeFileEntry
		if len(commit.Parents) > 0 {
			parentCommit, err := r.Store.ReadCommit(commit.Parents[0])
			if err != nil {
				return nil, fmt.Errorf("rebase: read parent of %s: %w", c.Short(), err)
			}
			baseFiles, err = r.FlattenTree(parentCommit.TreeHash)
			if err != nil {
				return nil, fmt.Errorf("rebase: flatten parent tree: %w", err)
			}
		}
		oursFiles, err := r.FlattenTree(running.TreeHash)
		if err != nil {
			return nil, fmt.Errorf("rebase: flatten running tree: %w", err)
		}
		theirsFiles, err := r.FlattenTree(commit.TreeHash)
		if err != nil {
			return nil, fmt.Errorf("rebase: flatten commit tree: %w", err)
		}

		labels := diff3.Labels{Ours: "HEAD", Theirs: c.Short()}
		outcome, err := r.mergeTrees(baseFiles, oursFiles, theirsFiles, labels)
		if err != nil {
			return nil, fmt.Errorf("rebase: replay %s: %w", c.Short(), err)
		}

		if outcome.report.HasConflicts {
			st.CurrentHash = c
			st.Remaining = rest

			if err := r.materializeReplayConflict(outcome); err != nil {
				return nil, fmt.Errorf("rebase: %w", err)
			}
			if err := r.writeOpState(&OpState{Op: OpRebase, Rebase: st}); err != nil {
				return nil, fmt.Errorf("rebase: %w", err)
			}

			conflictPaths := make([]string, 0, len(outcome.conflicted))
			for _, cf := range outcome.conflicted {
				conflictPaths = append(conflictPaths, cf.path)
			}
			sort.Strings(conflictPaths)

			r.log.WithFields(logrus.Fields{
				"commit":    c.Short(),
				"conflicts": outcome.report.TotalConflicts,
			}).Debug("rebase stopped on conflicts")

			report.NewHead = st.RunningHead
			return report, &ConflictError{Op: "rebase", Commit: c, Paths: conflictPaths}
		}

		newTreeHash, err := r.writeMergedTree(outcome)
		if err != nil {
			return nil, fmt.Errorf("rebase: replay %s: %w", c.Short(), err)
		}

		if newTreeHash == running.TreeHash {
			// Patch already present upstream.
			st.Remaining = rest
			r.log.WithField("commit", c.Short()).Debug("skipping already-applied commit")
			continue
		}

		newHash, err := r.Store.WriteCommit(&object.CommitObj{
			TreeHash:  newTreeHash,
			Parents:   []object.Hash{st.RunningHead},
			Author:    commit.Author,
			Timestamp: commit.Timestamp,
			Message:   commit.Message,
		})
		if err != nil {
			return nil, fmt.Errorf("rebase: write replayed commit: %w", err)
		}

		report.Replayed = append(report.Replayed, newHash)
		st.Replayed = append(st.Replayed, newHash)
		st.RunningHead = newHash
		st.Remaining = rest
	}

	return r.finishRebase(st, report)
}

// finishRebase moves the branch to the replayed chain and checks out
// its tip. This is the only ref move of the whole operation.
func (r *Repo) finishRebase(st *RebaseState, report *RebaseReport) (*RebaseReport, error) {
	finalCommit, err := r.Store.ReadCommit(st.RunningHead)
	if err != nil {
		return nil, fmt.Errorf("rebase: read final commit: %w", err)
	}
	targetFiles, err := r.FlattenTree(finalCommit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("rebase: flatten final tree: %w", err)
	}
	if err := r.checkUntrackedOverwrites(targetFiles); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	if err := r.materializeFiles(targetFiles); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	if err := r.advanceHead(st.RunningHead, st.OrigBranchHash); err != nil {
		return nil, fmt.Errorf("rebase: %w", err)
	}
	if err := r.clearOpState(); err != nil {
		return nil, err
	}

	report.NewHead = st.RunningHead
	r.log.WithFields(logrus.Fields{
		"head":     st.RunningHead.Short(),
		"replayed": len(report.Replayed),
	}).Debug("rebase finished")
	return report, nil
}

// materializeReplayConflict brings the worktree and index to a partial
// replay state: every merged path is written out (conflicted ones with
// markers) and the conflicted entries keep their three stage hashes in
// the index. Shared by rebase steps and cherry-pick.
func (r *Repo) materializeReplayConflict(outcome *treeMergeOutcome) error {
	target := make([]TreeFileEntry, 0, len(outcome.merged))
	for _, mf := range outcome.merged {
		blobHash, err := r.Store.WriteBlob(&object.Blob{Data: mf.content})
		if err != nil {
			return fmt.Errorf("write blob %q: %w", mf.path, err)
		}
		target = append(target, TreeFileEntry{Path: mf.path, BlobHash: blobHash, Mode: mf.mode})
	}

	if err := r.checkUntrackedOverwrites(target); err != nil {
		return err
	}
	if err := r.materializeFiles(target); err != nil {
		return err
	}
	return r.stageConflictState(outcome.conflicted, nil)
}

// writeMergedTree stores blobs for every merged file and builds the
// resulting tree.
func (r *Repo) writeMergedTree(outcome *treeMergeOutcome) (object.Hash, error) {
	stg := &Staging{Entries: make(map[string]*StagingEntry, len(outcome.merged))}
	for _, mf := range outcome.merged {
		blobHash, err := r.Store.WriteBlob(&object.Blob{Data: mf.content})
		if err != nil {
			return "", fmt.Errorf("write blob %q: %w", mf.path, err)
		}
		stg.Entries[mf.path] = &StagingEntry{
			Path:     mf.path,
			BlobHash: blobHash,
			Mode:     mf.mode,
		}
	}
	return r.BuildTree(stg)
}

// rebaseCommitList returns the commits reachable from branchHash but
// not from upstreamHash, oldest first. Ascending generation is a
// topological order since a parent's generation is strictly below its
// child's; timestamp and hash break ties deterministically.
func (r *Repo) rebaseCommitList(branchHash, upstreamHash object.Hash) ([]object.Hash, error) {
	state := r.getMergeTraversalState()

	upstreamSet, err := r.ancestrySet(state, upstreamHash)
	if err != nil {
		return nil, err
	}

	maxSteps, _ := mergeBaseTraversalLimits()
	var commits []object.Hash
	visited := map[object.Hash]struct{}{branchHash: {}}
	queue := []object.Hash{branchHash}
	steps := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		steps++
		if steps > maxSteps {
			return nil, mergeBaseStepsLimitError(maxSteps)
		}
		if _, ok := upstreamSet[cur]; ok {
			continue
		}
		commits = append(commits, cur)

		commit, err := state.readCommit(r, cur)
		if err != nil {
			return nil, err
		}
		for _, p := range commit.Parents {
			if p == "" {
				continue
			}
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			queue = append(queue, p)
		}
	}

	type orderedCommit struct {
		hash       object.Hash
		generation uint64
		timestamp  int64
	}
	ordered := make([]orderedCommit, 0, len(commits))
	for _, h := range commits {
		g, err := state.generation(r, h)
		if err != nil {
			return nil, err
		}
		c, err := state.readCommit(r, h)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, orderedCommit{hash: h, generation: g, timestamp: c.Timestamp})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].generation != ordered[j].generation {
			return ordered[i].generation < ordered[j].generation
		}
		if ordered[i].timestamp != ordered[j].timestamp {
			return ordered[i].timestamp < ordered[j].timestamp
		}
		return ordered[i].hash < ordered[j].hash
	})

	out := make([]object.Hash, len(ordered))
	for i, oc := range ordered {
		out[i] = oc.hash
	}
	return out, nil
}

// ancestrySet collects every commit reachable from the given commit,
// itself included.
func (r *Repo) ancestrySet(state *mergeBaseTraversalState, from object.Hash) (map[object.Hash]struct{}, error) {
	maxSteps, _ := mergeBaseTraversalLimits()
	set := map[object.Hash]struct{}{from: {}}
	queue := []object.Hash{from}
	steps := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		steps++
		if steps > maxSteps {
			return nil, mergeBaseStepsLimitError(maxSteps)
		}

		commit, err := state.readCommit(r, cur)
		if err != nil {
			return nil, err
		}
		for _, p := range commit.Parents {
			if p == "" {
				continue
			}
			if _, seen := set[p]; seen {
				continue
			}
			set[p] = struct{}{}
			queue = append(queue, p)
		}
	}
	return set, nil
}
