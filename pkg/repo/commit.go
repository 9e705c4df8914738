package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/hist/pkg/object"
)

// CommitSigner signs canonical commit payload bytes and returns an encoded
// signature string to be persisted in CommitObj.Signature.
type CommitSigner func(payload []byte) (string, error)

// Commit creates a new commit from the current staging area.
func (r *Repo) Commit(message, author string) (object.Hash, error) {
	return r.CommitWithSigner(message, author, nil)
}

// CommitWithSigner creates a new commit, signing it when signer is
// provided.
//
//  1. Read staging; reject conflicted entries and no-op commits
//  2. BuildTree from staging
//  3. Resolve HEAD to get parent commit hash (if any)
//  4. Create CommitObj with tree hash, parent, author, timestamp, message
//  5. Write commit to store
//  6. Advance the current branch ref (or detached HEAD) to the new hash
func (r *Repo) CommitWithSigner(message, author string, signer CommitSigner) (object.Hash, error) {
	if err := r.requireNoOperation("commit"); err != nil {
		return "", err
	}

	stg, err := r.ReadStaging()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if stg.HasConflicts() {
		return "", fmt.Errorf("commit: %w: %s", ErrUnmergedPaths, strings.Join(stg.ConflictPaths(), ", "))
	}

	var parents []object.Hash
	parentHash, err := r.ResolveRef("HEAD")
	if err == nil && parentHash != "" {
		parents = append(parents, parentHash)
	}
	// HEAD resolution fails before the first commit; that's fine.

	if len(stg.Entries) == 0 && parentHash == "" {
		return "", fmt.Errorf("commit: %w", ErrNothingToCommit)
	}

	treeHash, err := r.BuildTree(stg)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	// An index identical to the parent's tree has nothing to record.
	if parentHash != "" {
		parent, err := r.Store.ReadCommit(parentHash)
		if err != nil {
			return "", fmt.Errorf("commit: read parent %s: %w", parentHash.Short(), err)
		}
		if parent.TreeHash == treeHash {
			return "", fmt.Errorf("commit: %w", ErrNothingToCommit)
		}
	}

	commitObj := &object.CommitObj{
		TreeHash:  treeHash,
		Parents:   parents,
		Author:    author,
		Timestamp: time.Now().Unix(),
		Message:   message,
	}
	commitHash, err := r.writeCommit(commitObj, signer)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	if err := r.advanceHead(commitHash, parentHash); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	r.invalidateStatusCache()

	r.log.WithField("commit", commitHash.Short()).Debug("created commit")
	return commitHash, nil
}

// CommitAmend rewrites the HEAD commit in place: the replacement keeps
// the old commit's parents, author, and timestamp, but takes its tree
// from the current staging area and its message from the argument (empty
// keeps the old message). The branch pointer moves to the replacement;
// the old commit stays in the store.
func (r *Repo) CommitAmend(message string, signer CommitSigner) (object.Hash, error) {
	if err := r.requireNoOperation("commit"); err != nil {
		return "", err
	}

	stg, err := r.ReadStaging()
	if err != nil {
		return "", fmt.Errorf("amend: %w", err)
	}
	if stg.HasConflicts() {
		return "", fmt.Errorf("amend: %w: %s", ErrUnmergedPaths, strings.Join(stg.ConflictPaths(), ", "))
	}

	oldHash, err := r.ResolveRef("HEAD")
	if err != nil || oldHash == "" {
		return "", fmt.Errorf("amend: no commit to amend: %w", ErrUnresolvableRef)
	}
	old, err := r.Store.ReadCommit(oldHash)
	if err != nil {
		return "", fmt.Errorf("amend: read %s: %w", oldHash.Short(), err)
	}

	treeHash, err := r.BuildTree(stg)
	if err != nil {
		return "", fmt.Errorf("amend: %w", err)
	}
	if message == "" {
		message = old.Message
	}

	commitObj := &object.CommitObj{
		TreeHash:  treeHash,
		Parents:   old.Parents,
		Author:    old.Author,
		Timestamp: old.Timestamp,
		Message:   message,
	}
	commitHash, err := r.writeCommit(commitObj, signer)
	if err != nil {
		return "", fmt.Errorf("amend: %w", err)
	}

	if err := r.advanceHead(commitHash, oldHash); err != nil {
		return "", fmt.Errorf("amend: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"old": oldHash.Short(),
		"new": commitHash.Short(),
	}).Debug("amended commit")
	return commitHash, nil
}

// writeCommit signs (when a signer is given) and stores a commit object.
func (r *Repo) writeCommit(commitObj *object.CommitObj, signer CommitSigner) (object.Hash, error) {
	if signer != nil {
		payload := object.CommitSigningPayload(commitObj)
		signature, err := signer(payload)
		if err != nil {
			return "", fmt.Errorf("sign commit: %w", err)
		}
		commitObj.Signature = signature
	}
	h, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("write commit: %w", err)
	}
	return h, nil
}

// advanceHead moves the checked-out branch (or detached HEAD) from
// oldHash to newHash. Branch moves use a CAS against oldHash so a
// concurrent move is detected rather than overwritten.
func (r *Repo) advanceHead(newHash, oldHash object.Hash) error {
	head, err := r.Head()
	if err != nil {
		return fmt.Errorf("read HEAD: %w", err)
	}

	if strings.HasPrefix(head, "refs/") {
		var updateErr error
		if oldHash == "" {
			updateErr = r.UpdateRefCAS(head, newHash)
		} else {
			updateErr = r.UpdateRefCAS(head, newHash, oldHash)
		}
		if updateErr != nil {
			return fmt.Errorf("update ref %q: %w", head, updateErr)
		}
		return nil
	}

	// Detached HEAD: update HEAD directly with a CAS against the old hash.
	if err := r.UpdateRefCAS("HEAD", newHash, oldHash); err != nil {
		return fmt.Errorf("update detached HEAD: %w", err)
	}
	return nil
}

// LogEntry pairs a commit with its hash for history display.
type LogEntry struct {
	Hash   object.Hash
	Commit *object.CommitObj
}

// Log walks the commit history starting from the given hash, following
// first-parent links, returning up to limit commits in
// reverse-chronological order (newest first). A non-positive limit means
// no limit.
func (r *Repo) Log(start object.Hash, limit int) ([]LogEntry, error) {
	var entries []LogEntry
	current := start

	for current != "" && (limit <= 0 || len(entries) < limit) {
		c, err := r.Store.ReadCommit(current)
		if err != nil {
			// A missing commit ends the walk; verify reports corruption.
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, object.ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("log: read commit %s: %w", current, err)
		}
		entries = append(entries, LogEntry{Hash: current, Commit: c})

		if len(c.Parents) == 0 {
			break
		}
		current = c.Parents[0]
	}

	return entries, nil
}

// LogPath is Log restricted to commits that touch one file: a commit is
// kept when the blob at the path differs from its first parent's, or
// when the path appears or disappears there.
func (r *Repo) LogPath(path string, start object.Hash, limit int) ([]LogEntry, error) {
	relPath, err := r.repoRelPath(path)
	if err != nil {
		return nil, fmt.Errorf("log: resolve path %q: %w", path, err)
	}
	relPath = filepath.ToSlash(filepath.Clean(relPath))

	var entries []LogEntry
	current := start

	var (
		cur      *object.CommitObj
		curEntry object.TreeEntry
		curHas   bool
	)

	for current != "" && (limit <= 0 || len(entries) < limit) {
		if cur == nil {
			c, err := r.Store.ReadCommit(current)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) || errors.Is(err, object.ErrNotFound) {
					break
				}
				return nil, fmt.Errorf("log: read commit %s: %w", current, err)
			}
			cur = c
			curEntry, curHas, err = r.treeEntryAtPath(cur.TreeHash, relPath)
			if err != nil {
				return nil, fmt.Errorf("log: %w", err)
			}
		}

		if len(cur.Parents) == 0 {
			if curHas {
				entries = append(entries, LogEntry{Hash: current, Commit: cur})
			}
			break
		}

		parentHash := cur.Parents[0]
		parent, err := r.Store.ReadCommit(parentHash)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, object.ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("log: read commit %s: %w", parentHash, err)
		}
		parentEntry, parentHas, err := r.treeEntryAtPath(parent.TreeHash, relPath)
		if err != nil {
			return nil, fmt.Errorf("log: %w", err)
		}

		if curHas != parentHas || (curHas && curEntry.BlobHash != parentEntry.BlobHash) {
			entries = append(entries, LogEntry{Hash: current, Commit: cur})
		}

		current = parentHash
		cur = parent
		curEntry, curHas = parentEntry, parentHas
	}

	return entries, nil
}
