package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/hist/pkg/diff3"
	"github.com/odvcencio/hist/pkg/object"
)

// FileMergeReport records the merge outcome for a single file.
type FileMergeReport struct {
	Path          string
	Status        string // "clean", "conflict", "added", "deleted"
	ConflictCount int
}

// MergeReport is the overall result of a repository-level merge.
type MergeReport struct {
	Files           []FileMergeReport
	HasConflicts    bool
	TotalConflicts  int
	MergeCommit     object.Hash // set if auto-committed (clean merge)
	FastForward     bool        // branch pointer moved, no commit created
	AlreadyUpToDate bool        // theirs was already reachable from HEAD
}

type mergeConflictState struct {
	path       string
	baseHash   object.Hash
	oursHash   object.Hash
	theirsHash object.Hash
	mode       string
}

// Merge merges the named branch into the current HEAD.
//
// Degenerate cases resolve without touching history: if the branch is
// already reachable from HEAD the merge is a no-op, and if HEAD is an
// ancestor of the branch the current branch fast-forwards. Disjoint
// histories fail with ErrNoCommonAncestor.
//
// Otherwise each path in the base, ours, and theirs trees is merged
// three-way. A clean merge writes the result to the worktree, stages
// it, and commits with both parents. Conflicts leave marker files in
// the worktree, record the three stages per conflicted path in the
// index, persist the merge state, and return the report together with
// a *ConflictError; the caller resolves and runs MergeContinue, or
// MergeAbort.
func (r *Repo) Merge(branchName, author string) (*MergeReport, error) {
	branchHash, err := r.ResolveRef("refs/heads/" + branchName)
	if err != nil {
		return nil, fmt.Errorf("merge: branch %q: %w", branchName, ErrBranchNotFound)
	}
	return r.MergeCommit(branchHash, branchName, author)
}

// MergeCommit merges an arbitrary commit into the current HEAD.
// theirsName labels the incoming side in conflict markers, the
// suspended-merge state, and the merge commit message; Merge passes the
// branch name, pull passes the remote-tracking name.
func (r *Repo) MergeCommit(theirsHash object.Hash, theirsName, author string) (*MergeReport, error) {
	if err := r.requireNoOperation("merge"); err != nil {
		return nil, err
	}

	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return nil, fmt.Errorf("merge: resolve HEAD: %w", err)
	}

	if theirsHash == headHash {
		return &MergeReport{AlreadyUpToDate: true}, nil
	}

	baseHash, err := r.FindMergeBase(headHash, theirsHash)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if baseHash == "" {
		return nil, fmt.Errorf("merge: %q shares no history with HEAD: %w", theirsName, ErrNoCommonAncestor)
	}
	if baseHash == theirsHash {
		// Theirs is already an ancestor of ours.
		return &MergeReport{AlreadyUpToDate: true}, nil
	}

	if err := r.ensureClean("merge"); err != nil {
		return nil, err
	}

	theirsCommit, err := r.Store.ReadCommit(theirsHash)
	if err != nil {
		return nil, fmt.Errorf("merge: read incoming commit: %w", err)
	}

	if baseHash == headHash {
		// Ours is an ancestor of theirs: fast-forward.
		targetFiles, err := r.FlattenTree(theirsCommit.TreeHash)
		if err != nil {
			return nil, fmt.Errorf("merge: flatten incoming tree: %w", err)
		}
		if err := r.checkUntrackedOverwrites(targetFiles); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		if err := r.materializeFiles(targetFiles); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		if err := r.advanceHead(theirsHash, headHash); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		r.log.WithFields(logrus.Fields{
			"theirs": theirsName,
			"head":   theirsHash.Short(),
		}).Debug("fast-forward merge")
		return &MergeReport{FastForward: true}, nil
	}

	headCommit, err := r.Store.ReadCommit(headHash)
	if err != nil {
		return nil, fmt.Errorf("merge: read head commit: %w", err)
	}
	baseCommit, err := r.Store.ReadCommit(baseHash)
	if err != nil {
		return nil, fmt.Errorf("merge: read base commit: %w", err)
	}

	oursFiles, err := r.FlattenTree(headCommit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("merge: flatten ours tree: %w", err)
	}
	theirsFiles, err := r.FlattenTree(theirsCommit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("merge: flatten theirs tree: %w", err)
	}
	baseFiles, err := r.FlattenTree(baseCommit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("merge: flatten base tree: %w", err)
	}

	labels := r.mergeLabels(theirsName)

	outcome, err := r.mergeTrees(baseFiles, oursFiles, theirsFiles, labels)
	if err != nil {
		return nil, err
	}

	// Paths the merge writes without ours tracking them may collide
	// with untracked files.
	if err := r.checkUntrackedOverwrites(outcome.untrackedWrites); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	for _, mf := range outcome.merged {
		if err := r.writeWorktreeFile(mf.path, mf.content, mf.mode); err != nil {
			return nil, fmt.Errorf("merge: write %q: %w", mf.path, err)
		}
	}
	for _, path := range outcome.deleted {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("merge: remove %q: %w", path, err)
		}
		removeEmptyParents(r.RootDir, filepath.Dir(absPath))
	}

	report := outcome.report

	if !report.HasConflicts {
		var pathsToAdd []string
		for _, mf := range outcome.merged {
			pathsToAdd = append(pathsToAdd, mf.path)
		}
		if len(pathsToAdd) > 0 {
			if err := r.Add(pathsToAdd); err != nil {
				return nil, fmt.Errorf("merge: stage: %w", err)
			}
		}
		if len(outcome.deleted) > 0 {
			stg, err := r.ReadStaging()
			if err != nil {
				return nil, fmt.Errorf("merge: read staging: %w", err)
			}
			for _, p := range outcome.deleted {
				delete(stg.Entries, p)
			}
			if err := r.WriteStaging(stg); err != nil {
				return nil, fmt.Errorf("merge: write staging: %w", err)
			}
		}

		mergeHash, err := r.commitMerge(
			fmt.Sprintf("Merge '%s'", theirsName),
			author,
			headHash,
			theirsHash,
		)
		if err != nil {
			return nil, fmt.Errorf("merge: commit: %w", err)
		}
		report.MergeCommit = mergeHash
		r.log.WithFields(logrus.Fields{
			"theirs": theirsName,
			"commit": mergeHash.Short(),
		}).Debug("merge committed")
		return report, nil
	}

	if err := r.stageConflictState(outcome.conflicted, outcome.deleted); err != nil {
		return nil, fmt.Errorf("merge: stage conflicts: %w", err)
	}
	if err := r.writeOpState(&OpState{
		Op: OpMerge,
		Merge: &MergeState{
			OursHash:   headHash,
			TheirsHash: theirsHash,
			TheirsName: theirsName,
			BaseHash:   baseHash,
		},
	}); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	conflictPaths := make([]string, 0, len(outcome.conflicted))
	for _, cf := range outcome.conflicted {
		conflictPaths = append(conflictPaths, cf.path)
	}
	sort.Strings(conflictPaths)

	r.log.WithFields(logrus.Fields{
		"theirs":    theirsName,
		"conflicts": report.TotalConflicts,
	}).Debug("merge stopped on conflicts")

	return report, &ConflictError{Op: "merge", Paths: conflictPaths}
}

// MergeContinue commits a merge previously suspended on conflicts. All
// conflicted index entries must have been resolved by re-staging.
func (r *Repo) MergeContinue(author string) (object.Hash, error) {
	st, err := r.readOpState()
	if err != nil {
		return "", fmt.Errorf("merge continue: %w", err)
	}
	if st.Op != OpMerge || st.Merge == nil {
		return "", fmt.Errorf("merge continue: %w", ErrNoOperationInProgress)
	}

	stg, err := r.ReadStaging()
	if err != nil {
		return "", fmt.Errorf("merge continue: %w", err)
	}
	if stg.HasConflicts() {
		return "", fmt.Errorf("merge continue: %w: %s", ErrUnmergedPaths, strings.Join(stg.ConflictPaths(), ", "))
	}

	mergeHash, err := r.commitMerge(
		fmt.Sprintf("Merge '%s'", st.Merge.TheirsName),
		author,
		st.Merge.OursHash,
		st.Merge.TheirsHash,
	)
	if err != nil {
		return "", fmt.Errorf("merge continue: %w", err)
	}
	if err := r.clearOpState(); err != nil {
		return "", err
	}

	r.log.WithField("commit", mergeHash.Short()).Debug("merge continued to completion")
	return mergeHash, nil
}

// MergeAbort discards a suspended merge: the index and worktree are
// restored to the HEAD commit. No refs moved during the merge, so
// nothing else needs rewinding.
func (r *Repo) MergeAbort() error {
	st, err := r.readOpState()
	if err != nil {
		return fmt.Errorf("merge abort: %w", err)
	}
	if st.Op != OpMerge || st.Merge == nil {
		return fmt.Errorf("merge abort: %w", ErrNoOperationInProgress)
	}

	oursCommit, err := r.Store.ReadCommit(st.Merge.OursHash)
	if err != nil {
		return fmt.Errorf("merge abort: read commit: %w", err)
	}
	if err := r.materializeTree(oursCommit.TreeHash); err != nil {
		return fmt.Errorf("merge abort: %w", err)
	}
	if err := r.clearOpState(); err != nil {
		return err
	}

	r.log.Debug("merge aborted")
	return nil
}

// mergeLabels names the conflict-marker sides after the branches being
// merged. Detached HEAD falls back to "HEAD".
func (r *Repo) mergeLabels(theirsName string) diff3.Labels {
	oursName, err := r.CurrentBranch()
	if err != nil || oursName == "" {
		oursName = "HEAD"
	}
	return diff3.Labels{Ours: oursName, Theirs: theirsName}
}

type mergedFile struct {
	path    string
	content []byte
	mode    string
}

// treeMergeOutcome accumulates the per-path results of merging two
// flattened trees against their base.
type treeMergeOutcome struct {
	report          *MergeReport
	merged          []mergedFile
	conflicted      []mergeConflictState
	deleted         []string
	untrackedWrites []TreeFileEntry // written paths that ours does not track
}

// mergeTrees merges every path present in any of the three flattened
// trees:
//
//	base ours theirs   action
//	  x    x    x      three-way content merge
//	  -    x    x      same blob: take it; else merge with empty base
//	  x    x    -      theirs deleted: clean if ours unchanged, else conflict
//	  x    -    x      ours deleted: clean if theirs unchanged, else conflict
//	  -    x    -      ours added: keep
//	  -    -    x      theirs added: add
//	  x    -    -      both deleted: delete
func (r *Repo) mergeTrees(baseFiles, oursFiles, theirsFiles []TreeFileEntry, labels diff3.Labels) (*treeMergeOutcome, error) {
	baseMap := indexByPath(baseFiles)
	oursMap := indexByPath(oursFiles)
	theirsMap := indexByPath(theirsFiles)

	allPaths := collectAllPaths(baseMap, oursMap, theirsMap)

	out := &treeMergeOutcome{report: &MergeReport{}}
	report := out.report

	for _, path := range allPaths {
		_, inBase := baseMap[path]
		_, inOurs := oursMap[path]
		_, inTheirs := theirsMap[path]

		switch {
		case inBase && inOurs && inTheirs:
			fr, content, err := r.mergeThreeWay(path, baseMap[path], oursMap[path], theirsMap[path], labels)
			if err != nil {
				return nil, fmt.Errorf("merge file %q: %w", path, err)
			}
			report.Files = append(report.Files, fr)
			if fr.Status == "conflict" {
				report.HasConflicts = true
				report.TotalConflicts += fr.ConflictCount
				out.conflicted = append(out.conflicted, mergeConflictState{
					path:       path,
					baseHash:   baseMap[path].BlobHash,
					oursHash:   oursMap[path].BlobHash,
					theirsHash: theirsMap[path].BlobHash,
					mode:       normalizeFileMode(oursMap[path].Mode),
				})
			}
			out.merged = append(out.merged, mergedFile{
				path:    path,
				content: content,
				mode:    normalizeFileMode(oursMap[path].Mode),
			})

		case !inBase && inOurs && inTheirs:
			// Added on both sides.
			if oursMap[path].BlobHash == theirsMap[path].BlobHash {
				content, err := r.readBlobData(oursMap[path].BlobHash)
				if err != nil {
					return nil, fmt.Errorf("merge read %q: %w", path, err)
				}
				report.Files = append(report.Files, FileMergeReport{
					Path:   path,
					Status: "clean",
				})
				out.merged = append(out.merged, mergedFile{
					path:    path,
					content: content,
					mode:    normalizeFileMode(oursMap[path].Mode),
				})
				continue
			}

			oursData, err := r.readBlobData(oursMap[path].BlobHash)
			if err != nil {
				return nil, fmt.Errorf("merge read ours %q: %w", path, err)
			}
			theirsData, err := r.readBlobData(theirsMap[path].BlobHash)
			if err != nil {
				return nil, fmt.Errorf("merge read theirs %q: %w", path, err)
			}
			fr, content := mergeFileContents(path, nil, oursData, theirsData, labels)
			report.Files = append(report.Files, fr)
			if fr.Status == "conflict" {
				report.HasConflicts = true
				report.TotalConflicts += fr.ConflictCount
				out.conflicted = append(out.conflicted, mergeConflictState{
					path:       path,
					baseHash:   "",
					oursHash:   oursMap[path].BlobHash,
					theirsHash: theirsMap[path].BlobHash,
					mode:       normalizeFileMode(oursMap[path].Mode),
				})
			}
			out.merged = append(out.merged, mergedFile{
				path:    path,
				content: content,
				mode:    normalizeFileMode(oursMap[path].Mode),
			})

		case inBase && inOurs && !inTheirs:
			// Deleted by theirs.
			if oursMap[path].BlobHash == baseMap[path].BlobHash {
				report.Files = append(report.Files, FileMergeReport{
					Path:   path,
					Status: "deleted",
				})
				out.deleted = append(out.deleted, path)
				continue
			}

			// Delete-vs-modify stays a conflict so the edit is not lost.
			oursData, err := r.readBlobData(oursMap[path].BlobHash)
			if err != nil {
				return nil, fmt.Errorf("merge read ours %q: %w", path, err)
			}
			content := diff3.RenderConflict(oursData, nil, labels)
			report.Files = append(report.Files, FileMergeReport{
				Path:          path,
				Status:        "conflict",
				ConflictCount: 1,
			})
			report.HasConflicts = true
			report.TotalConflicts++
			out.merged = append(out.merged, mergedFile{
				path:    path,
				content: content,
				mode:    normalizeFileMode(oursMap[path].Mode),
			})
			out.conflicted = append(out.conflicted, mergeConflictState{
				path:       path,
				baseHash:   baseMap[path].BlobHash,
				oursHash:   oursMap[path].BlobHash,
				theirsHash: "",
				mode:       normalizeFileMode(oursMap[path].Mode),
			})

		case inBase && !inOurs && inTheirs:
			// Deleted by ours.
			if theirsMap[path].BlobHash == baseMap[path].BlobHash {
				report.Files = append(report.Files, FileMergeReport{
					Path:   path,
					Status: "deleted",
				})
				out.deleted = append(out.deleted, path)
				continue
			}

			theirsData, err := r.readBlobData(theirsMap[path].BlobHash)
			if err != nil {
				return nil, fmt.Errorf("merge read theirs %q: %w", path, err)
			}
			content := diff3.RenderConflict(nil, theirsData, labels)
			report.Files = append(report.Files, FileMergeReport{
				Path:          path,
				Status:        "conflict",
				ConflictCount: 1,
			})
			report.HasConflicts = true
			report.TotalConflicts++
			out.merged = append(out.merged, mergedFile{
				path:    path,
				content: content,
				mode:    normalizeFileMode(theirsMap[path].Mode),
			})
			out.conflicted = append(out.conflicted, mergeConflictState{
				path:       path,
				baseHash:   baseMap[path].BlobHash,
				oursHash:   "",
				theirsHash: theirsMap[path].BlobHash,
				mode:       normalizeFileMode(theirsMap[path].Mode),
			})
			// Ours dropped the path from tracking, so the marker write
			// must not clobber an unrelated untracked file.
			out.untrackedWrites = append(out.untrackedWrites, TreeFileEntry{
				Path:     path,
				BlobHash: object.HashObject(object.TypeBlob, content),
				Mode:     normalizeFileMode(theirsMap[path].Mode),
			})

		case !inBase && inOurs && !inTheirs:
			// New in ours only: keep as-is.
			content, err := r.readBlobData(oursMap[path].BlobHash)
			if err != nil {
				return nil, fmt.Errorf("merge read %q: %w", path, err)
			}
			report.Files = append(report.Files, FileMergeReport{
				Path:   path,
				Status: "added",
			})
			out.merged = append(out.merged, mergedFile{
				path:    path,
				content: content,
				mode:    normalizeFileMode(oursMap[path].Mode),
			})

		case !inBase && !inOurs && inTheirs:
			// New in theirs only: add.
			content, err := r.readBlobData(theirsMap[path].BlobHash)
			if err != nil {
				return nil, fmt.Errorf("merge read %q: %w", path, err)
			}
			report.Files = append(report.Files, FileMergeReport{
				Path:   path,
				Status: "added",
			})
			out.merged = append(out.merged, mergedFile{
				path:    path,
				content: content,
				mode:    normalizeFileMode(theirsMap[path].Mode),
			})
			out.untrackedWrites = append(out.untrackedWrites, theirsMap[path])

		case inBase && !inOurs && !inTheirs:
			// Deleted on both sides.
			report.Files = append(report.Files, FileMergeReport{
				Path:   path,
				Status: "deleted",
			})
			out.deleted = append(out.deleted, path)
		}
	}

	return out, nil
}

// stageConflictState records merge results in the index: conflicted
// paths keep their marker-file blob plus the three stage hashes, and
// deleted paths leave the index.
func (r *Repo) stageConflictState(conflicted []mergeConflictState, deletedPaths []string) error {
	stg, err := r.ReadStaging()
	if err != nil {
		return fmt.Errorf("read staging: %w", err)
	}

	for _, p := range deletedPaths {
		delete(stg.Entries, p)
	}

	for _, cf := range conflicted {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(cf.path))
		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("stat conflicted file %q: %w", cf.path, err)
		}
		data, err := os.ReadFile(absPath)
		if err != nil {
			return fmt.Errorf("read conflicted file %q: %w", cf.path, err)
		}

		blobHash, err := r.Store.WriteBlob(&object.Blob{Data: data})
		if err != nil {
			return fmt.Errorf("write conflicted blob %q: %w", cf.path, err)
		}

		stg.Entries[cf.path] = &StagingEntry{
			Path:           cf.path,
			BlobHash:       blobHash,
			Mode:           normalizeFileMode(cf.mode),
			Conflict:       true,
			BaseBlobHash:   cf.baseHash,
			OursBlobHash:   cf.oursHash,
			TheirsBlobHash: cf.theirsHash,
			ModTime:        info.ModTime().UnixNano(),
			Size:           info.Size(),
		}
	}

	if err := r.WriteStaging(stg); err != nil {
		return fmt.Errorf("write staging: %w", err)
	}
	return nil
}

// commitMerge creates a commit with two parents from the current index.
// Unlike Commit it takes explicit parent hashes instead of deriving
// them from HEAD.
func (r *Repo) commitMerge(message, author string, parent1, parent2 object.Hash) (object.Hash, error) {
	stg, err := r.ReadStaging()
	if err != nil {
		return "", fmt.Errorf("merge commit: %w", err)
	}
	if len(stg.Entries) == 0 {
		return "", fmt.Errorf("merge commit: nothing staged")
	}

	treeHash, err := r.BuildTree(stg)
	if err != nil {
		return "", fmt.Errorf("merge commit: %w", err)
	}

	commitHash, err := r.Store.WriteCommit(&object.CommitObj{
		TreeHash:  treeHash,
		Parents:   []object.Hash{parent1, parent2},
		Author:    author,
		Timestamp: time.Now().Unix(),
		Message:   message,
	})
	if err != nil {
		return "", fmt.Errorf("merge commit: write: %w", err)
	}

	if err := r.advanceHead(commitHash, parent1); err != nil {
		return "", fmt.Errorf("merge commit: %w", err)
	}
	return commitHash, nil
}

// mergeThreeWay merges a file present in base, ours, and theirs.
func (r *Repo) mergeThreeWay(path string, base, ours, theirs TreeFileEntry, labels diff3.Labels) (FileMergeReport, []byte, error) {
	// Identical blobs need no merge.
	if ours.BlobHash == theirs.BlobHash {
		content, err := r.readBlobData(ours.BlobHash)
		if err != nil {
			return FileMergeReport{}, nil, err
		}
		return FileMergeReport{Path: path, Status: "clean"}, content, nil
	}

	// One side unchanged from base: take the other.
	if ours.BlobHash == base.BlobHash {
		content, err := r.readBlobData(theirs.BlobHash)
		if err != nil {
			return FileMergeReport{}, nil, err
		}
		return FileMergeReport{Path: path, Status: "clean"}, content, nil
	}
	if theirs.BlobHash == base.BlobHash {
		content, err := r.readBlobData(ours.BlobHash)
		if err != nil {
			return FileMergeReport{}, nil, err
		}
		return FileMergeReport{Path: path, Status: "clean"}, content, nil
	}

	// Both sides changed: full three-way merge.
	baseData, err := r.readBlobData(base.BlobHash)
	if err != nil {
		return FileMergeReport{}, nil, err
	}
	oursData, err := r.readBlobData(ours.BlobHash)
	if err != nil {
		return FileMergeReport{}, nil, err
	}
	theirsData, err := r.readBlobData(theirs.BlobHash)
	if err != nil {
		return FileMergeReport{}, nil, err
	}

	fr, content := mergeFileContents(path, baseData, oursData, theirsData, labels)
	return fr, content, nil
}

// mergeFileContents runs the line-level merge engine on raw contents.
func mergeFileContents(path string, base, ours, theirs []byte, labels diff3.Labels) (FileMergeReport, []byte) {
	result := diff3.Merge(base, ours, theirs, labels)

	fr := FileMergeReport{
		Path:          path,
		ConflictCount: result.ConflictCount,
	}
	if result.HasConflicts {
		fr.Status = "conflict"
	} else {
		fr.Status = "clean"
	}
	return fr, result.Merged
}

// readBlobData reads a blob from the store and returns its raw data.
func (r *Repo) readBlobData(h object.Hash) ([]byte, error) {
	blob, err := r.Store.ReadBlob(h)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", h, err)
	}
	return blob.Data, nil
}

// indexByPath creates a map from file path to TreeFileEntry.
func indexByPath(entries []TreeFileEntry) map[string]TreeFileEntry {
	m := make(map[string]TreeFileEntry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return m
}

// collectAllPaths returns a sorted, deduplicated list of all file paths
// across three file maps.
func collectAllPaths(base, ours, theirs map[string]TreeFileEntry) []string {
	seen := make(map[string]bool)
	for p := range base {
		seen[p] = true
	}
	for p := range ours {
		seen[p] = true
	}
	for p := range theirs {
		seen[p] = true
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
