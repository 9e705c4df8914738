// Package remote moves objects and refs between hist repositories. A
// remote is another repository on the local filesystem, named in config
// with its worktree path as the URL. Push, fetch, pull, and clone copy
// missing objects store to store; bundles serialize a ref closure into
// a single compressed file for offline exchange.
package remote

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/hist/pkg/object"
	"github.com/odvcencio/hist/pkg/repo"
)

// ErrNonFastForward rejects a push that would discard commits present
// on the remote branch. Force overrides it.
var ErrNonFastForward = errors.New("non-fast-forward update rejected")

// PushReport summarizes a push.
type PushReport struct {
	Remote         string
	Branch         string
	Old            object.Hash // remote tip before the push, "" for a new branch
	New            object.Hash
	ObjectsWritten int
	UpToDate       bool
}

// BranchUpdate records one remote-tracking ref move during a fetch.
type BranchUpdate struct {
	Branch string      // short branch name
	Old    object.Hash // "" when the tracking ref is new
	New    object.Hash
}

// FetchReport summarizes a fetch.
type FetchReport struct {
	Remote         string
	ObjectsWritten int
	Updated        []BranchUpdate // tracking refs that moved, sorted by branch
}

// PullReport pairs the fetch outcome with the merge of the
// remote-tracking ref.
type PullReport struct {
	Fetch *FetchReport
	Merge *repo.MergeReport
}

// CloneReport summarizes a clone.
type CloneReport struct {
	Branch string // branch checked out, "" when the source had no branches
	Fetch  *FetchReport
}

// Push copies the local branch head and its missing history into the
// named remote and advances the remote's branch ref. A remote branch
// that moved away from local history is refused with ErrNonFastForward
// unless force is set. The local remote-tracking ref follows on success.
func Push(r *repo.Repo, remoteName, branch string, force bool) (*PushReport, error) {
	refName := "refs/heads/" + branch
	newTip, err := r.ResolveRef(refName)
	if err != nil {
		return nil, fmt.Errorf("push: branch %q: %w", branch, repo.ErrBranchNotFound)
	}

	rr, err := openRemote(r, remoteName)
	if err != nil {
		return nil, fmt.Errorf("push: %w", err)
	}

	oldTip, err := rr.ResolveRef(refName)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("push: read remote branch %q: %w", branch, err)
	}

	trackingRef := trackingRefName(remoteName, branch)
	report := &PushReport{Remote: remoteName, Branch: branch, Old: oldTip, New: newTip}

	if oldTip == newTip {
		report.UpToDate = true
		if err := r.UpdateRef(trackingRef, newTip); err != nil {
			return nil, fmt.Errorf("push: update tracking ref: %w", err)
		}
		return report, nil
	}

	if oldTip != "" && !force {
		// The ancestry walk reads the remote tip's history, so it must
		// be in the local store first.
		if _, err := CopyMissingObjects(rr.Store, r.Store, []object.Hash{oldTip}); err != nil {
			return nil, fmt.Errorf("push: fetch remote tip: %w", err)
		}
		ok, err := r.IsAncestor(oldTip, newTip)
		if err != nil {
			return nil, fmt.Errorf("push: ancestry check: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("push %q: remote is at %s: %w", branch, oldTip.Short(), ErrNonFastForward)
		}
	}

	written, err := CopyMissingObjects(r.Store, rr.Store, []object.Hash{newTip})
	if err != nil {
		return nil, fmt.Errorf("push: %w", err)
	}
	report.ObjectsWritten = written

	if err := rr.UpdateRefCAS(refName, newTip, oldTip); err != nil {
		return nil, fmt.Errorf("push: update remote branch: %w", err)
	}
	if err := r.UpdateRef(trackingRef, newTip); err != nil {
		return nil, fmt.Errorf("push: update tracking ref: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"remote":  remoteName,
		"branch":  branch,
		"objects": written,
		"tip":     newTip.Short(),
	}).Debug("pushed")
	return report, nil
}

// Fetch copies every branch head of the named remote, plus all missing
// history, into the local store and moves refs/remotes/<name>/<branch>
// to match. Local branches and the worktree stay untouched.
func Fetch(r *repo.Repo, remoteName string) (*FetchReport, error) {
	rr, err := openRemote(r, remoteName)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return fetchFrom(r, remoteName, rr)
}

func fetchFrom(r *repo.Repo, remoteName string, rr *repo.Repo) (*FetchReport, error) {
	heads, err := rr.ListRefs("heads")
	if err != nil {
		return nil, fmt.Errorf("fetch: list remote branches: %w", err)
	}

	roots := make([]object.Hash, 0, len(heads))
	for _, h := range heads {
		roots = append(roots, h)
	}
	written, err := CopyMissingObjects(rr.Store, r.Store, roots)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	report := &FetchReport{Remote: remoteName, ObjectsWritten: written}

	names := make([]string, 0, len(heads))
	for name := range heads {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		branch := strings.TrimPrefix(name, "heads/")
		ref := trackingRefName(remoteName, branch)
		newHash := heads[name]

		oldHash, err := r.ResolveRef(ref)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("fetch: read %q: %w", ref, err)
		}
		if oldHash == newHash {
			continue
		}
		if err := r.UpdateRef(ref, newHash); err != nil {
			return nil, fmt.Errorf("fetch: update %q: %w", ref, err)
		}
		report.Updated = append(report.Updated, BranchUpdate{Branch: branch, Old: oldHash, New: newHash})
	}

	logrus.WithFields(logrus.Fields{
		"remote":   remoteName,
		"objects":  written,
		"branches": len(report.Updated),
	}).Debug("fetched")
	return report, nil
}

// Pull fetches the named remote and merges its branch into the current
// HEAD via the remote-tracking ref. branch defaults to the current
// branch. On merge conflicts the report comes back together with the
// *repo.ConflictError, and merge continue/abort take over from there.
func Pull(r *repo.Repo, remoteName, branch, author string) (*PullReport, error) {
	if branch == "" {
		cur, err := r.CurrentBranch()
		if err != nil {
			return nil, fmt.Errorf("pull: %w", err)
		}
		if cur == "" {
			return nil, fmt.Errorf("pull: HEAD is detached, name a branch")
		}
		branch = cur
	}

	fr, err := Fetch(r, remoteName)
	if err != nil {
		return nil, fmt.Errorf("pull: %w", err)
	}
	report := &PullReport{Fetch: fr}

	theirsHash, err := r.ResolveRef(trackingRefName(remoteName, branch))
	if err != nil {
		return nil, fmt.Errorf("pull: remote %q has no branch %q: %w", remoteName, branch, repo.ErrBranchNotFound)
	}

	// A repository with no commits yet adopts the remote branch outright.
	headHash, headErr := r.ResolveRef("HEAD")
	if headErr != nil || headHash == "" {
		if err := checkoutFetchedBranch(r, branch, theirsHash); err != nil {
			return nil, fmt.Errorf("pull: %w", err)
		}
		report.Merge = &repo.MergeReport{FastForward: true}
		return report, nil
	}

	mr, err := r.MergeCommit(theirsHash, remoteName+"/"+branch, author)
	report.Merge = mr
	return report, err
}

// Clone initializes a repository at dstPath, configures srcPath as its
// remote, fetches everything, and checks out the source's current
// branch. remoteName defaults to "origin". A source without branches
// yields an empty repository with the remote configured.
func Clone(srcPath, dstPath, remoteName string) (*repo.Repo, *CloneReport, error) {
	if remoteName == "" {
		remoteName = "origin"
	}

	src, err := repo.Open(srcPath)
	if err != nil {
		return nil, nil, fmt.Errorf("clone: %w", err)
	}
	if err := requireRepoRoot(src, srcPath); err != nil {
		return nil, nil, fmt.Errorf("clone: %w", err)
	}

	r, err := repo.Init(dstPath)
	if err != nil {
		return nil, nil, fmt.Errorf("clone: %w", err)
	}
	if err := r.SetRemote(remoteName, srcPath); err != nil {
		return nil, nil, fmt.Errorf("clone: %w", err)
	}

	fr, err := fetchFrom(r, remoteName, src)
	if err != nil {
		return nil, nil, fmt.Errorf("clone: %w", err)
	}
	report := &CloneReport{Fetch: fr}

	branch, ok, err := chooseCloneBranch(r, src, remoteName)
	if err != nil {
		return nil, nil, fmt.Errorf("clone: %w", err)
	}
	if !ok {
		return r, report, nil
	}

	tip, err := r.ResolveRef(trackingRefName(remoteName, branch))
	if err != nil {
		return nil, nil, fmt.Errorf("clone: resolve branch %q: %w", branch, err)
	}
	if err := checkoutFetchedBranch(r, branch, tip); err != nil {
		return nil, nil, fmt.Errorf("clone: %w", err)
	}
	report.Branch = branch

	logrus.WithFields(logrus.Fields{
		"source": srcPath,
		"branch": branch,
	}).Debug("cloned")
	return r, report, nil
}

// checkoutFetchedBranch materializes a fetched commit and attaches HEAD
// to a fresh local branch at it. Switch treats moving to the branch
// HEAD already names as a no-op, so the content loads through a
// detached checkout first.
func checkoutFetchedBranch(r *repo.Repo, branch string, tip object.Hash) error {
	if err := r.SwitchDetach(string(tip)); err != nil {
		return err
	}
	if err := r.CreateBranch(branch, tip); err != nil {
		return err
	}
	return r.Switch(branch)
}

// chooseCloneBranch picks the branch a fresh clone checks out: the
// source's current branch when fetched, then the default branch, then
// the lexicographically first head.
func chooseCloneBranch(r *repo.Repo, src *repo.Repo, remoteName string) (string, bool, error) {
	heads, err := r.ListRefs("remotes/" + remoteName)
	if err != nil {
		return "", false, err
	}
	if len(heads) == 0 {
		return "", false, nil
	}

	exists := func(branch string) bool {
		_, ok := heads["remotes/"+remoteName+"/"+branch]
		return ok
	}

	if cur, err := src.CurrentBranch(); err == nil && cur != "" && exists(cur) {
		return cur, true, nil
	}
	if exists(repo.DefaultBranch) {
		return repo.DefaultBranch, true, nil
	}

	names := make([]string, 0, len(heads))
	for name := range heads {
		names = append(names, strings.TrimPrefix(name, "remotes/"+remoteName+"/"))
	}
	sort.Strings(names)
	return names[0], true, nil
}

// openRemote resolves a configured remote name to its repository. The
// configured URL must name the remote's worktree root.
func openRemote(r *repo.Repo, name string) (*repo.Repo, error) {
	url, err := r.RemoteURL(name)
	if err != nil {
		return nil, err
	}
	rr, err := repo.Open(url)
	if err != nil {
		return nil, fmt.Errorf("remote %q at %s: %w", name, url, err)
	}
	if err := requireRepoRoot(rr, url); err != nil {
		return nil, fmt.Errorf("remote %q: %w", name, err)
	}
	return rr, nil
}

// requireRepoRoot rejects paths that reach a repository only through a
// parent directory; remote URLs must point at the root itself.
func requireRepoRoot(rr *repo.Repo, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if rr.RootDir != abs {
		return fmt.Errorf("%s is not a repository root", path)
	}
	return nil
}

func trackingRefName(remoteName, branch string) string {
	return "refs/remotes/" + remoteName + "/" + branch
}
