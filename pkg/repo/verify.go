package repo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/hist/pkg/object"
)

// FsckReport summarizes a repository integrity check.
type FsckReport struct {
	Objects      int           // readable loose objects in the store
	Corrupt      []object.Hash // objects whose content no longer matches their address
	Reachable    int           // objects reachable from refs and HEAD
	Unreachable  int           // readable objects nothing references
	DanglingRefs []string      // refs naming objects missing from the store
}

// Fsck checks the object store and the ref graph: every loose object
// must still hash to its address, and every ref must point at a stored
// object. Reachability is only walked when the store is uncorrupted,
// since the walk has to parse the objects it crosses.
func (r *Repo) Fsck() (*FsckReport, error) {
	vr, err := r.Store.Verify()
	if err != nil {
		return nil, fmt.Errorf("fsck: %w", err)
	}

	report := &FsckReport{
		Objects: vr.Objects,
		Corrupt: vr.Corrupt,
	}

	refs, err := r.ListRefs("")
	if err != nil {
		return nil, fmt.Errorf("fsck: %w", err)
	}

	var roots []object.Hash
	for name, h := range refs {
		if h == "" || !r.Store.Has(h) {
			report.DanglingRefs = append(report.DanglingRefs, "refs/"+name)
			continue
		}
		roots = append(roots, h)
	}

	head, err := r.Head()
	if err != nil {
		return nil, fmt.Errorf("fsck: %w", err)
	}
	if head != "" && !strings.HasPrefix(head, "refs/") {
		h := object.Hash(head)
		if r.Store.Has(h) {
			roots = append(roots, h)
		} else {
			report.DanglingRefs = append(report.DanglingRefs, "HEAD")
		}
	}
	sort.Strings(report.DanglingRefs)

	if len(vr.Corrupt) > 0 {
		return report, nil
	}

	reachable, err := r.Store.ReachableSet(roots)
	if err != nil {
		return nil, fmt.Errorf("fsck: %w", err)
	}
	report.Reachable = len(reachable)
	report.Unreachable = report.Objects - report.Reachable

	return report, nil
}

// VerifyCommit checks the SSH signature embedded in a commit and
// returns the signing key's SHA-256 fingerprint. Unsigned commits fail
// with object.ErrNoSignature.
func (r *Repo) VerifyCommit(commitHash object.Hash) (string, error) {
	commit, err := r.Store.ReadCommit(commitHash)
	if err != nil {
		return "", fmt.Errorf("verify commit: %w", err)
	}
	fingerprint, err := object.VerifyCommitSignature(commit)
	if err != nil {
		return "", fmt.Errorf("verify commit %s: %w", commitHash.Short(), err)
	}
	return fingerprint, nil
}
