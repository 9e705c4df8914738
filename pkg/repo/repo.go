// Package repo implements repository operations on top of the object
// store: the staging index, refs and HEAD, commits, branches and tags,
// status, merge, and rebase. All repository metadata lives under the
// .hist directory at the worktree root.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/hist/pkg/object"
)

// MetaDirName is the repository metadata directory created at the
// worktree root.
const MetaDirName = ".hist"

// DefaultBranch is the branch HEAD points at in a fresh repository.
const DefaultBranch = "main"

// Repo represents an opened hist repository.
type Repo struct {
	RootDir string        // working directory root
	HistDir string        // .hist/ directory
	Store   *object.Store // content-addressed object store

	log logrus.FieldLogger

	mergeTraversalStateOnce sync.Once
	mergeTraversalState     *mergeBaseTraversalState

	// In-memory blob-hash cache for status. Entries are keyed by path and
	// validated against the file's current mtime and size; any operation
	// that rewrites the index or worktree drops the whole cache.
	statusHashCacheMu sync.Mutex
	statusHashCache   map[string]statusHashCacheEntry
	statusBlobHasher  func([]byte) object.Hash
}

func newRepo(root string) *Repo {
	histDir := filepath.Join(root, MetaDirName)
	return &Repo{
		RootDir: root,
		HistDir: histDir,
		Store:   object.NewStore(histDir),
		log:     logrus.WithFields(logrus.Fields{"repo": filepath.Base(root)}),
	}
}

func (r *Repo) getMergeTraversalState() *mergeBaseTraversalState {
	r.mergeTraversalStateOnce.Do(func() {
		r.mergeTraversalState = newMergeBaseTraversalState()
	})
	return r.mergeTraversalState
}

// Init creates a new hist repository at path: the .hist/ directory with
// objects/, refs/, logs/, and a HEAD pointing at an unborn main branch.
// Returns ErrRepositoryExists if .hist/ is already present.
func Init(path string) (*Repo, error) {
	histDir := filepath.Join(path, MetaDirName)

	if _, err := os.Stat(histDir); err == nil {
		return nil, fmt.Errorf("init %s: %w", histDir, ErrRepositoryExists)
	}

	dirs := []string{
		filepath.Join(histDir, "objects"),
		filepath.Join(histDir, "refs", "heads"),
		filepath.Join(histDir, "refs", "tags"),
		filepath.Join(histDir, "refs", "remotes"),
		filepath.Join(histDir, "logs", "refs", "heads"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	headPath := filepath.Join(histDir, "HEAD")
	if err := os.WriteFile(headPath, []byte("ref: refs/heads/"+DefaultBranch+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}

	r := newRepo(path)
	r.log.Debug("initialized empty repository")
	return r, nil
}

// Open searches upward from path for a .hist/ directory and opens the
// repository. Returns ErrNotARepository if none is found.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		histDir := filepath.Join(cur, MetaDirName)
		info, err := os.Stat(histDir)
		if err == nil && info.IsDir() {
			return newRepo(cur), nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open %s: %w", path, ErrNotARepository)
		}
		cur = parent
	}
}

// Head reads .hist/HEAD. If the content starts with "ref: ", it returns
// the ref path (e.g., "refs/heads/main"). Otherwise it returns the raw
// content as a detached hash string.
func (r *Repo) Head() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.HistDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	content := strings.TrimRight(string(data), "\n")

	if strings.HasPrefix(content, "ref: ") {
		return strings.TrimPrefix(content, "ref: "), nil
	}
	return content, nil
}

// setHead points HEAD at a branch ref or, when detach is true, directly
// at a commit hash.
func (r *Repo) setHead(target string, detach bool) error {
	content := "ref: " + target + "\n"
	if detach {
		content = target + "\n"
	}
	if err := os.WriteFile(filepath.Join(r.HistDir, "HEAD"), []byte(content), 0o644); err != nil {
		return fmt.Errorf("set HEAD: %w", err)
	}
	return nil
}
