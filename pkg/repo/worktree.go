package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/hist/pkg/object"
)

// materializeTree syncs the working directory and the staging area to the
// given tree: tracked files the tree lacks are removed, every tree file
// is written out, and the index is rebuilt with fresh stat-cache fields.
// Untracked files are left alone.
func (r *Repo) materializeTree(treeHash object.Hash) error {
	targetFiles, err := r.FlattenTree(treeHash)
	if err != nil {
		return fmt.Errorf("materialize tree: %w", err)
	}
	return r.materializeFiles(targetFiles)
}

func (r *Repo) materializeFiles(targetFiles []TreeFileEntry) error {
	targetMap := make(map[string]TreeFileEntry, len(targetFiles))
	for _, f := range targetFiles {
		targetMap[f.Path] = f
	}

	// Remove tracked files the target does not have.
	for path := range r.trackedFiles() {
		if _, keep := targetMap[path]; keep {
			continue
		}
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(absPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("materialize: remove %q: %w", path, err)
		}
		removeEmptyParents(r.RootDir, filepath.Dir(absPath))
	}

	// Write target files and rebuild the index from them.
	stg := &Staging{Entries: make(map[string]*StagingEntry, len(targetFiles))}
	for _, f := range targetFiles {
		blob, err := r.Store.ReadBlob(f.BlobHash)
		if err != nil {
			return fmt.Errorf("materialize: read blob for %q: %w", f.Path, err)
		}
		if err := r.writeWorktreeFile(f.Path, blob.Data, f.Mode); err != nil {
			return fmt.Errorf("materialize: %w", err)
		}

		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))
		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("materialize: stat %q: %w", f.Path, err)
		}
		stg.Entries[f.Path] = &StagingEntry{
			Path:     f.Path,
			BlobHash: f.BlobHash,
			Mode:     normalizeFileMode(f.Mode),
			ModTime:  info.ModTime().UnixNano(),
			Size:     info.Size(),
		}
	}
	if err := r.WriteStaging(stg); err != nil {
		return fmt.Errorf("materialize: %w", err)
	}
	r.invalidateStatusCache()
	return nil
}

// writeWorktreeFile writes content to a repo-relative path, creating
// parent directories as needed.
func (r *Repo) writeWorktreeFile(relPath string, content []byte, mode string) error {
	absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("mkdir for %q: %w", relPath, err)
	}
	if err := os.WriteFile(absPath, content, filePermFromMode(mode)); err != nil {
		return fmt.Errorf("write %q: %w", relPath, err)
	}
	return nil
}

// trackedFiles returns the set of all currently tracked file paths,
// merging the HEAD tree with the staging index.
func (r *Repo) trackedFiles() map[string]bool {
	files := make(map[string]bool)

	for path := range r.headTreeEntries() {
		files[path] = true
	}

	stg, err := r.ReadStaging()
	if err == nil {
		for path := range stg.Entries {
			files[path] = true
		}
	}

	return files
}

// checkUntrackedOverwrites fails when materializing the target files
// would clobber an untracked file whose content differs from the target.
func (r *Repo) checkUntrackedOverwrites(targetFiles []TreeFileEntry) error {
	tracked := r.trackedFiles()
	for _, f := range targetFiles {
		if tracked[f.Path] {
			continue
		}
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))
		data, err := os.ReadFile(absPath)
		if err != nil {
			continue
		}
		if object.HashObject(object.TypeBlob, data) != f.BlobHash {
			return fmt.Errorf("untracked file %q would be overwritten: %w", f.Path, ErrUncommittedChanges)
		}
	}
	return nil
}

// removeEmptyParents removes empty directories from dir upward, stopping
// at (and never removing) root.
func removeEmptyParents(root, dir string) {
	for {
		if dir == root || !strings.HasPrefix(dir, root) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		os.Remove(dir)
		dir = filepath.Dir(dir)
	}
}
