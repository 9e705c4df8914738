package repo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/hist/pkg/diff"
	"github.com/odvcencio/hist/pkg/object"
)

// TreeSnapshot flattens a tree into a diffable snapshot. An empty hash
// yields an empty snapshot.
func (r *Repo) TreeSnapshot(treeHash object.Hash) (diff.Snapshot, error) {
	snap := make(diff.Snapshot)
	if treeHash == "" {
		return snap, nil
	}
	files, err := r.FlattenTree(treeHash)
	if err != nil {
		return nil, fmt.Errorf("tree snapshot: %w", err)
	}
	for _, f := range files {
		snap[f.Path] = diff.Entry{Hash: f.BlobHash, Mode: normalizeFileMode(f.Mode)}
	}
	return snap, nil
}

// CommitSnapshot flattens a commit's tree into a diffable snapshot.
func (r *Repo) CommitSnapshot(commitHash object.Hash) (diff.Snapshot, error) {
	commit, err := r.Store.ReadCommit(commitHash)
	if err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}
	return r.TreeSnapshot(commit.TreeHash)
}

// IndexSnapshot reduces the staging area to a diffable snapshot.
func (r *Repo) IndexSnapshot() (diff.Snapshot, error) {
	stg, err := r.ReadStaging()
	if err != nil {
		return nil, fmt.Errorf("index snapshot: %w", err)
	}
	snap := make(diff.Snapshot, len(stg.Entries))
	for path, se := range stg.Entries {
		snap[path] = diff.Entry{Hash: se.BlobHash, Mode: normalizeFileMode(se.Mode)}
	}
	return snap, nil
}

// WorktreeSnapshot hashes the working copy of every indexed path;
// paths missing from the worktree are simply absent from the snapshot.
// Files whose stat still matches the index reuse the staged blob hash
// without re-reading. Content hashed here but not present in the store
// is returned alongside so a BlobLoader can serve it.
func (r *Repo) WorktreeSnapshot() (diff.Snapshot, map[object.Hash][]byte, error) {
	stg, err := r.ReadStaging()
	if err != nil {
		return nil, nil, fmt.Errorf("worktree snapshot: %w", err)
	}

	snap := make(diff.Snapshot, len(stg.Entries))
	extra := make(map[object.Hash][]byte)

	for path, se := range stg.Entries {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		info, err := os.Stat(absPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, nil, fmt.Errorf("worktree snapshot: stat %q: %w", path, err)
		}
		workMode := modeFromFileInfo(info)

		if stagingStatMatchesWorktree(se, info, workMode) {
			snap[path] = diff.Entry{Hash: se.BlobHash, Mode: workMode}
			continue
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, nil, fmt.Errorf("worktree snapshot: read %q: %w", path, err)
		}
		h := object.HashObject(object.TypeBlob, data)
		if !r.Store.Has(h) {
			extra[h] = data
		}
		snap[path] = diff.Entry{Hash: h, Mode: workMode}
	}

	return snap, extra, nil
}

// BlobLoader returns a loader that reads blob content from the store,
// consulting extra first for content hashed but never stored. extra may
// be nil.
func (r *Repo) BlobLoader(extra map[object.Hash][]byte) diff.BlobLoader {
	return func(h object.Hash) ([]byte, error) {
		if data, ok := extra[h]; ok {
			return data, nil
		}
		return r.readBlobData(h)
	}
}

// DiffWorktree compares the index against the working tree: the changes
// a plain add would pick up.
func (r *Repo) DiffWorktree() ([]diff.Change, diff.BlobLoader, error) {
	before, err := r.IndexSnapshot()
	if err != nil {
		return nil, nil, err
	}
	after, extra, err := r.WorktreeSnapshot()
	if err != nil {
		return nil, nil, err
	}
	return diff.Compare(before, after), r.BlobLoader(extra), nil
}

// DiffStaged compares HEAD's tree against the index: what the next
// commit would record. An unborn HEAD diffs against an empty tree.
func (r *Repo) DiffStaged() ([]diff.Change, diff.BlobLoader, error) {
	before := make(diff.Snapshot)
	headHash, err := r.ResolveRef("HEAD")
	if err == nil && headHash != "" {
		before, err = r.CommitSnapshot(headHash)
		if err != nil {
			return nil, nil, err
		}
	}
	after, err := r.IndexSnapshot()
	if err != nil {
		return nil, nil, err
	}
	return diff.Compare(before, after), r.BlobLoader(nil), nil
}

// DiffCommits compares the trees of two commits.
func (r *Repo) DiffCommits(a, b object.Hash) ([]diff.Change, diff.BlobLoader, error) {
	before, err := r.CommitSnapshot(a)
	if err != nil {
		return nil, nil, err
	}
	after, err := r.CommitSnapshot(b)
	if err != nil {
		return nil, nil, err
	}
	return diff.Compare(before, after), r.BlobLoader(nil), nil
}

// DiffCommitWorktree compares a commit's tree against the working tree,
// scoped to indexed paths like WorktreeSnapshot.
func (r *Repo) DiffCommitWorktree(commitHash object.Hash) ([]diff.Change, diff.BlobLoader, error) {
	before, err := r.CommitSnapshot(commitHash)
	if err != nil {
		return nil, nil, err
	}
	after, extra, err := r.WorktreeSnapshot()
	if err != nil {
		return nil, nil, err
	}
	return diff.Compare(before, after), r.BlobLoader(extra), nil
}
