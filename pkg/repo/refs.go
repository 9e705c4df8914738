package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/odvcencio/hist/pkg/object"
)

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// ResolveRef resolves a ref name to an object hash.
//
// Resolution order:
//  1. If name is "HEAD", read HEAD. If HEAD is symbolic, resolve the target ref.
//  2. If name starts with "refs/", read .hist/<name>.
//  3. Otherwise, try "refs/heads/<name>".
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	if name == "HEAD" {
		head, err := r.Head()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(head, "refs/") {
			return r.ResolveRef(head)
		}
		// Detached HEAD: the value is a hash.
		return object.Hash(head), nil
	}

	var refPath string
	if strings.HasPrefix(name, "refs/") {
		refPath = filepath.Join(r.HistDir, filepath.FromSlash(name))
	} else {
		refPath = filepath.Join(r.HistDir, "refs", "heads", filepath.FromSlash(name))
	}

	data, err := os.ReadFile(refPath)
	if err != nil {
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}
	return object.Hash(strings.TrimRight(string(data), "\n")), nil
}

// Resolve turns a revision string into a commit hash. Accepted forms:
//
//   - "HEAD"
//   - a full 64-character hash
//   - a branch name, a tag name (annotated tags dereference to their
//     target), or a remote-tracking name like "origin/main"
//   - a unique hex prefix of at least 4 characters
//
// Any form may carry trailing ancestry operators: "^" and "^N" select a
// parent, "~N" walks N first-parent steps. Operators chain left to right.
func (r *Repo) Resolve(rev string) (object.Hash, error) {
	rev = strings.TrimSpace(rev)
	if rev == "" {
		return "", fmt.Errorf("resolve: empty revision: %w", ErrUnresolvableRef)
	}

	base := rev
	ops := ""
	if i := strings.IndexAny(rev, "^~"); i >= 0 {
		base = rev[:i]
		ops = rev[i:]
	}

	h, err := r.resolveBase(base)
	if err != nil {
		return "", err
	}
	if ops == "" {
		return h, nil
	}
	return r.walkAncestry(h, ops, rev)
}

func (r *Repo) resolveBase(base string) (object.Hash, error) {
	if base == "" {
		return "", fmt.Errorf("resolve: empty revision base: %w", ErrUnresolvableRef)
	}

	if base == "HEAD" {
		h, err := r.ResolveRef("HEAD")
		if err != nil || h == "" {
			return "", fmt.Errorf("resolve HEAD: %w", ErrUnresolvableRef)
		}
		return h, nil
	}

	// Full hash.
	if object.IsHexHash(base) {
		h := object.Hash(strings.ToLower(base))
		if r.Store.Has(h) {
			return h, nil
		}
		return "", fmt.Errorf("resolve %q: %w", base, ErrUnresolvableRef)
	}

	// Refs take priority over hash prefixes, mirroring the usual revision
	// resolution order: branch, tag, remote-tracking, explicit ref path.
	if h, err := r.ResolveRef("refs/heads/" + base); err == nil {
		return h, nil
	}
	if h, err := r.ResolveRef("refs/tags/" + base); err == nil {
		return r.derefTag(h)
	}
	if h, err := r.ResolveRef("refs/remotes/" + base); err == nil {
		return h, nil
	}
	if strings.HasPrefix(base, "refs/") {
		if h, err := r.ResolveRef(base); err == nil {
			return r.derefTag(h)
		}
	}

	// Abbreviated hash.
	if object.IsHexPrefix(base) {
		h, err := r.Store.ResolvePrefix(strings.ToLower(base))
		if err == nil {
			return h, nil
		}
	}

	return "", fmt.Errorf("resolve %q: %w", base, ErrUnresolvableRef)
}

// derefTag follows annotated tag objects until a non-tag object is
// reached. Hashes that do not name a tag object pass through unchanged.
func (r *Repo) derefTag(h object.Hash) (object.Hash, error) {
	for {
		objType, data, err := r.Store.Read(h)
		if err != nil {
			// Refs may point at objects not yet fetched; leave as-is.
			return h, nil
		}
		if objType != object.TypeTag {
			return h, nil
		}
		tag, err := object.UnmarshalTag(data)
		if err != nil {
			return "", fmt.Errorf("deref tag %s: %w", h, err)
		}
		h = tag.TargetHash
	}
}

// walkAncestry applies a chain of ^/~ operators to a starting commit.
func (r *Repo) walkAncestry(h object.Hash, ops, rev string) (object.Hash, error) {
	for len(ops) > 0 {
		op := ops[0]
		ops = ops[1:]

		// Consume an optional number following the operator.
		digits := 0
		for digits < len(ops) && ops[digits] >= '0' && ops[digits] <= '9' {
			digits++
		}
		n := 1
		if digits > 0 {
			parsed, err := strconv.Atoi(ops[:digits])
			if err != nil {
				return "", fmt.Errorf("resolve %q: %w", rev, ErrUnresolvableRef)
			}
			n = parsed
			ops = ops[digits:]
		}

		switch op {
		case '^':
			c, err := r.Store.ReadCommit(h)
			if err != nil {
				return "", fmt.Errorf("resolve %q: read commit %s: %w", rev, h.Short(), err)
			}
			if n < 1 || n > len(c.Parents) {
				return "", fmt.Errorf("resolve %q: commit %s has no parent %d: %w", rev, h.Short(), n, ErrUnresolvableRef)
			}
			h = c.Parents[n-1]
		case '~':
			for i := 0; i < n; i++ {
				c, err := r.Store.ReadCommit(h)
				if err != nil {
					return "", fmt.Errorf("resolve %q: read commit %s: %w", rev, h.Short(), err)
				}
				if len(c.Parents) == 0 {
					return "", fmt.Errorf("resolve %q: commit %s has no parent: %w", rev, h.Short(), ErrUnresolvableRef)
				}
				h = c.Parents[0]
			}
		default:
			return "", fmt.Errorf("resolve %q: %w", rev, ErrUnresolvableRef)
		}
	}
	return h, nil
}

// UpdateRef writes a hash to the named ref file under .hist/. Parent
// directories are created as needed.
func (r *Repo) UpdateRef(name string, h object.Hash) error {
	return r.UpdateRefCAS(name, h)
}

// UpdateRefCAS writes a hash to the named ref file under .hist/ using
// lockfile + rename atomic semantics. If expectedOld is provided, the
// update only succeeds when the current ref hash matches it.
//
// Reflog append happens after the ref rename; if reflog append fails, the
// ref update remains committed and a RefUpdateReflogError is returned.
func (r *Repo) UpdateRefCAS(name string, h object.Hash, expectedOld ...object.Hash) error {
	if len(expectedOld) > 1 {
		return fmt.Errorf("update ref %q: expected at most one old hash", name)
	}
	hasExpectedOld := len(expectedOld) == 1
	wantOldHash := object.Hash("")
	if hasExpectedOld {
		wantOldHash = expectedOld[0]
	}

	refPath := filepath.Join(r.HistDir, filepath.FromSlash(name))

	dir := filepath.Dir(refPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	oldHash, err := readRefHash(refPath)
	if err != nil {
		return fmt.Errorf("update ref %q: read old hash: %w", name, err)
	}
	if hasExpectedOld && oldHash != wantOldHash {
		return fmt.Errorf(
			"update ref %q: %w (expected %s, found %s)",
			name,
			ErrRefCASMismatch,
			wantOldHash,
			oldHash,
		)
	}

	if _, err := lockFile.WriteString(string(h) + "\n"); err != nil {
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("update ref %q: sync: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	cleanupLock = false

	if err := r.appendReflog(name, oldHash, h, "update"); err != nil {
		return &RefUpdateReflogError{
			Ref:     name,
			OldHash: oldHash,
			NewHash: h,
			Err:     err,
		}
	}

	return nil
}

// DeleteRef removes a ref file. Missing refs are reported via fs errors.
func (r *Repo) DeleteRef(name string) error {
	refPath := filepath.Join(r.HistDir, filepath.FromSlash(name))
	if err := os.Remove(refPath); err != nil {
		return fmt.Errorf("delete ref %q: %w", name, err)
	}
	return nil
}

// ListRefs lists references under .hist/refs.
// Names are returned relative to refs root, e.g. "heads/main", "tags/v1".
func (r *Repo) ListRefs(prefix string) (map[string]object.Hash, error) {
	root := filepath.Join(r.HistDir, "refs")
	dir := root
	if strings.TrimSpace(prefix) != "" {
		dir = filepath.Join(root, filepath.FromSlash(prefix))
	}

	refs := make(map[string]object.Hash)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".lock") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		refs[name] = object.Hash(strings.TrimSpace(string(data)))
		return nil
	})
	if os.IsNotExist(err) {
		return refs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

func readRefHash(refPath string) (object.Hash, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}
