package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RestoreStaged unstages paths by restoring index entries to their HEAD
// versions.
//
// Behavior:
//   - If a path exists in HEAD, its staging entry is reset to HEAD's
//     blob/mode (clearing any conflict flag).
//   - If a path does not exist in HEAD, its staging entry is removed.
//   - If no paths are provided, the entire index is reset to HEAD.
//
// RestoreStaged does not modify the working tree.
func (r *Repo) RestoreStaged(paths []string) error {
	stg, err := r.ReadStaging()
	if err != nil {
		return fmt.Errorf("restore --staged: %w", err)
	}

	headEntries, err := r.headTreeFileEntryMap()
	if err != nil {
		return fmt.Errorf("restore --staged: %w", err)
	}

	all := make(map[string]struct{}, len(stg.Entries)+len(headEntries))
	for p := range stg.Entries {
		all[p] = struct{}{}
	}
	for p := range headEntries {
		all[p] = struct{}{}
	}

	targets, err := r.resolveRestoreTargets(paths, all)
	if err != nil {
		return fmt.Errorf("restore --staged: %w", err)
	}

	for _, p := range targets {
		if headEntry, ok := headEntries[p]; ok {
			// Zeroed stat fields force status to hash-check this path, so a
			// worktree copy differing from HEAD is not stat-matched as clean.
			stg.Entries[p] = &StagingEntry{
				Path:     p,
				BlobHash: headEntry.BlobHash,
				Mode:     normalizeFileMode(headEntry.Mode),
				ModTime:  0,
				Size:     -1,
			}
			continue
		}
		delete(stg.Entries, p)
	}

	if err := r.WriteStaging(stg); err != nil {
		return fmt.Errorf("restore --staged: %w", err)
	}
	r.invalidateStatusCache()
	return nil
}

// RestoreWorktree overwrites working-tree files with their staged
// versions and refreshes their stat-cache entries. If no paths are
// provided, every staged file is restored.
func (r *Repo) RestoreWorktree(paths []string) error {
	stg, err := r.ReadStaging()
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	all := make(map[string]struct{}, len(stg.Entries))
	for p := range stg.Entries {
		all[p] = struct{}{}
	}

	targets, err := r.resolveRestoreTargets(paths, all)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	for _, p := range targets {
		se := stg.Entries[p]
		blob, err := r.Store.ReadBlob(se.BlobHash)
		if err != nil {
			return fmt.Errorf("restore: read blob for %q: %w", p, err)
		}
		if err := r.writeWorktreeFile(p, blob.Data, se.Mode); err != nil {
			return fmt.Errorf("restore: %w", err)
		}

		absPath := filepath.Join(r.RootDir, filepath.FromSlash(p))
		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("restore: stat %q: %w", p, err)
		}
		se.ModTime = info.ModTime().UnixNano()
		se.Size = info.Size()
	}

	if err := r.WriteStaging(stg); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	r.invalidateStatusCache()
	return nil
}

func (r *Repo) headTreeFileEntryMap() (map[string]TreeFileEntry, error) {
	result := make(map[string]TreeFileEntry)

	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return result, nil
	}
	commit, err := r.Store.ReadCommit(headHash)
	if err != nil {
		return nil, fmt.Errorf("read HEAD commit: %w", err)
	}
	entries, err := r.FlattenTree(commit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("flatten HEAD tree: %w", err)
	}
	for _, e := range entries {
		result[e.Path] = e
	}
	return result, nil
}

// resolveRestoreTargets expands the given paths against the candidate
// set: each path matches itself or, as a directory prefix, everything
// beneath it. No paths means every candidate.
func (r *Repo) resolveRestoreTargets(paths []string, all map[string]struct{}) ([]string, error) {
	if len(paths) == 0 {
		return sortedPathSet(all), nil
	}

	targets := make(map[string]struct{})
	for _, raw := range paths {
		rel, err := r.repoRelPath(raw)
		if err != nil {
			return nil, err
		}
		rel = filepath.ToSlash(filepath.Clean(strings.TrimSpace(rel)))
		if rel == "" || rel == "." {
			for p := range all {
				targets[p] = struct{}{}
			}
			continue
		}

		matched := false
		if _, ok := all[rel]; ok {
			targets[rel] = struct{}{}
			matched = true
		}

		prefix := rel + "/"
		for p := range all {
			if strings.HasPrefix(p, prefix) {
				targets[p] = struct{}{}
				matched = true
			}
		}

		if !matched {
			return nil, fmt.Errorf("path %q did not match any entries", raw)
		}
	}

	return sortedPathSet(targets), nil
}

func sortedPathSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
