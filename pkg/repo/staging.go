package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/hist/pkg/object"
)

// StagingEntry records the staged state of a single file.
//
// ModTime and Size form a stat cache: when they match the on-disk file,
// status can skip re-hashing the content. For a path in conflict after a
// merge or rebase, Conflict is set and the three stage hashes record the
// versions the conflict was built from; BlobHash then holds the
// marker-file content until the path is re-staged.
type StagingEntry struct {
	Path     string      `json:"path"`
	BlobHash object.Hash `json:"blob_hash"`
	Mode     string      `json:"mode"`
	ModTime  int64       `json:"mod_time"`
	Size     int64       `json:"size"`

	Conflict       bool        `json:"conflict,omitempty"`
	BaseBlobHash   object.Hash `json:"base_blob_hash,omitempty"`
	OursBlobHash   object.Hash `json:"ours_blob_hash,omitempty"`
	TheirsBlobHash object.Hash `json:"theirs_blob_hash,omitempty"`
}

// Staging holds the full staging area (index) for a hist repository.
type Staging struct {
	Entries map[string]*StagingEntry `json:"entries"`
}

// ConflictPaths returns the sorted paths of all conflict-flagged entries.
func (s *Staging) ConflictPaths() []string {
	var paths []string
	for path, se := range s.Entries {
		if se.Conflict {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// HasConflicts reports whether any entry is conflict-flagged.
func (s *Staging) HasConflicts() bool {
	for _, se := range s.Entries {
		if se.Conflict {
			return true
		}
	}
	return false
}

// indexPath returns the filesystem path to the staging index file.
func (r *Repo) indexPath() string {
	return filepath.Join(r.HistDir, "index")
}

// ReadStaging loads the staging area from .hist/index. If the file does
// not exist, an empty Staging is returned (no error).
func (r *Repo) ReadStaging() (*Staging, error) {
	data, err := os.ReadFile(r.indexPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Staging{Entries: make(map[string]*StagingEntry)}, nil
		}
		return nil, fmt.Errorf("read staging: %w", err)
	}

	var stg Staging
	if err := json.Unmarshal(data, &stg); err != nil {
		return nil, fmt.Errorf("read staging: unmarshal: %w", err)
	}
	if stg.Entries == nil {
		stg.Entries = make(map[string]*StagingEntry)
	}
	return &stg, nil
}

// WriteStaging atomically writes the staging area to .hist/index.
func (r *Repo) WriteStaging(s *Staging) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("write staging: marshal: %w", err)
	}

	// Atomic write via temp file + rename.
	tmp, err := os.CreateTemp(r.HistDir, ".index-tmp-*")
	if err != nil {
		return fmt.Errorf("write staging: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write staging: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write staging: close: %w", err)
	}

	if err := os.Rename(tmpName, r.indexPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write staging: rename: %w", err)
	}
	return nil
}

// Add stages the given paths. Each path is resolved relative to the repo
// root. Directories are walked recursively with ignore filtering; files
// named directly are staged even when an ignore pattern matches them.
//
// A tracked path that no longer exists on disk has its removal staged.
// Staging a conflicted path clears its conflict flag, which is how merge
// and rebase conflicts are marked resolved.
func (r *Repo) Add(paths []string) error {
	stg, err := r.ReadStaging()
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	ic := NewIgnoreChecker(r.RootDir)

	for _, p := range paths {
		relPath, err := r.repoRelPath(p)
		if err != nil {
			return fmt.Errorf("add: resolve path %q: %w", p, err)
		}

		if strings.ContainsAny(relPath, "*?[") {
			if err := r.addGlob(stg, ic, p, relPath); err != nil {
				return err
			}
			continue
		}

		absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
		info, err := os.Stat(absPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				if removed := stageRemovals(stg, relPath); removed {
					continue
				}
			}
			return fmt.Errorf("add: %q did not match any files", p)
		}

		if info.IsDir() {
			if err := r.addTree(stg, ic, relPath); err != nil {
				return fmt.Errorf("add: %w", err)
			}
			continue
		}

		if err := r.stageFile(stg, relPath, info); err != nil {
			return fmt.Errorf("add: %w", err)
		}
	}

	if err := r.WriteStaging(stg); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	r.invalidateStatusCache()
	return nil
}

// addGlob expands a glob pathspec against the working tree and stages
// every match. Directory matches are walked like explicit directories.
func (r *Repo) addGlob(stg *Staging, ic *IgnoreChecker, spec, relPattern string) error {
	matches, err := filepath.Glob(filepath.Join(r.RootDir, filepath.FromSlash(relPattern)))
	if err != nil {
		return fmt.Errorf("add: bad pattern %q: %w", spec, err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("add: %q did not match any files", spec)
	}

	for _, m := range matches {
		rel, err := filepath.Rel(r.RootDir, m)
		if err != nil {
			return fmt.Errorf("add: %w", err)
		}
		rel = filepath.ToSlash(rel)
		if rel == MetaDirName || strings.HasPrefix(rel, MetaDirName+"/") {
			continue
		}

		info, err := os.Stat(m)
		if err != nil {
			return fmt.Errorf("add: stat %q: %w", rel, err)
		}
		if info.IsDir() {
			if err := r.addTree(stg, ic, rel); err != nil {
				return fmt.Errorf("add: %w", err)
			}
			continue
		}
		if ic.IsIgnored(rel) {
			continue
		}
		if err := r.stageFile(stg, rel, info); err != nil {
			return fmt.Errorf("add: %w", err)
		}
	}
	return nil
}

// addTree walks a directory and stages every non-ignored file under it.
// Tracked files inside the directory that were deleted from disk have
// their removal staged as well.
func (r *Repo) addTree(stg *Staging, ic *IgnoreChecker, relDir string) error {
	absDir := filepath.Join(r.RootDir, filepath.FromSlash(relDir))
	if relDir == "." {
		absDir = r.RootDir
	}

	seen := make(map[string]bool)
	err := filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(r.RootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if ic.IsIgnored(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		seen[rel] = true
		return r.stageFile(stg, rel, info)
	})
	if err != nil {
		return fmt.Errorf("walk %q: %w", relDir, err)
	}

	prefix := relDir + "/"
	for path := range stg.Entries {
		inScope := relDir == "." || path == relDir || len(path) > len(prefix) && path[:len(prefix)] == prefix
		if inScope && !seen[path] {
			stageRemovals(stg, path)
		}
	}
	return nil
}

// stageFile writes the file content as a blob and records the staging
// entry with refreshed stat-cache fields.
func (r *Repo) stageFile(stg *Staging, relPath string, info os.FileInfo) error {
	absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
	content, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("read %q: %w", relPath, err)
	}

	blobHash, err := r.Store.WriteBlob(&object.Blob{Data: content})
	if err != nil {
		return fmt.Errorf("write blob %q: %w", relPath, err)
	}

	stg.Entries[relPath] = &StagingEntry{
		Path:     relPath,
		BlobHash: blobHash,
		Mode:     modeFromFileInfo(info),
		ModTime:  info.ModTime().UnixNano(),
		Size:     info.Size(),
	}
	return nil
}

// stageRemovals drops relPath from the staging area if tracked, reporting
// whether an entry was removed. Dropping a conflicted entry counts as
// resolving it by deletion.
func stageRemovals(stg *Staging, relPath string) bool {
	if _, ok := stg.Entries[relPath]; !ok {
		return false
	}
	delete(stg.Entries, relPath)
	return true
}

// Remove unstages the given tracked paths and, unless cached is set,
// deletes them from the working tree.
func (r *Repo) Remove(paths []string, cached bool) error {
	stg, err := r.ReadStaging()
	if err != nil {
		return fmt.Errorf("rm: %w", err)
	}

	for _, p := range paths {
		relPath, err := r.repoRelPath(p)
		if err != nil {
			return fmt.Errorf("rm: resolve path %q: %w", p, err)
		}
		if _, tracked := stg.Entries[relPath]; !tracked {
			return fmt.Errorf("rm: %q is not tracked", relPath)
		}
		delete(stg.Entries, relPath)

		if cached {
			continue
		}
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
		if err := os.Remove(absPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("rm: remove %q: %w", relPath, err)
		}
		removeEmptyParents(r.RootDir, filepath.Dir(absPath))
	}

	if err := r.WriteStaging(stg); err != nil {
		return fmt.Errorf("rm: %w", err)
	}
	r.invalidateStatusCache()
	return nil
}

// loadStagingFromTree replaces the staging contents with the flattened
// entries of the given tree. Stat-cache fields are zeroed so the next
// status re-hashes each path against the working tree.
func (r *Repo) loadStagingFromTree(treeHash object.Hash) (*Staging, error) {
	stg := &Staging{Entries: make(map[string]*StagingEntry)}
	if treeHash == "" {
		return stg, nil
	}

	files, err := r.FlattenTree(treeHash)
	if err != nil {
		return nil, fmt.Errorf("load staging from tree: %w", err)
	}
	for _, f := range files {
		stg.Entries[f.Path] = &StagingEntry{
			Path:     f.Path,
			BlobHash: f.BlobHash,
			Mode:     normalizeFileMode(f.Mode),
			ModTime:  0,
			Size:     -1,
		}
	}
	return stg, nil
}

// repoRelPath converts a path (absolute, or relative to CWD) into a path
// relative to the repository root. If the path is already relative and
// does not resolve inside the repo root, it is assumed to already be
// repo-relative.
func (r *Repo) repoRelPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(r.RootDir, p)
		if err != nil {
			return "", fmt.Errorf("cannot make %q relative to %q: %w", p, r.RootDir, err)
		}
		return filepath.ToSlash(rel), nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	abs := filepath.Join(cwd, p)
	rel, err := filepath.Rel(r.RootDir, abs)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	// If the relative path escapes the root, p is outside the repo; treat
	// the original p as already repo-relative.
	if len(rel) >= 2 && rel[:2] == ".." {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	return filepath.ToSlash(rel), nil
}
