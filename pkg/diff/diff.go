// Package diff compares flattened repository snapshots and renders the
// result as unified diff text.
package diff

import (
	"sort"

	"github.com/odvcencio/hist/pkg/object"
)

// ChangeType classifies what happened to a path between two snapshots.
type ChangeType int

const (
	Added    ChangeType = iota // Path exists only in the after snapshot.
	Deleted                    // Path exists only in the before snapshot.
	Modified                   // Path exists in both but blob or mode differs.
)

func (t ChangeType) String() string {
	switch t {
	case Added:
		return "added"
	case Deleted:
		return "deleted"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

// Entry is one file in a snapshot: its blob hash and file mode.
type Entry struct {
	Hash object.Hash
	Mode string
}

// Snapshot maps repository-relative paths to entries. Flattened commit
// trees, the index, and worktree scans all reduce to this shape, so any
// two of them can be compared.
type Snapshot map[string]Entry

// Change records a single path-level difference between two snapshots.
type Change struct {
	Type ChangeType
	Path string
	Old  Entry // zero value for Added
	New  Entry // zero value for Deleted
}

// Compare diffs two snapshots and returns the changes sorted by path.
// A path counts as modified when either its blob hash or its mode
// differs between the sides.
func Compare(before, after Snapshot) []Change {
	paths := make([]string, 0, len(before)+len(after))
	seen := make(map[string]bool, len(before)+len(after))
	for p := range before {
		paths = append(paths, p)
		seen[p] = true
	}
	for p := range after {
		if !seen[p] {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	var changes []Change
	for _, p := range paths {
		oldEntry, inBefore := before[p]
		newEntry, inAfter := after[p]

		switch {
		case !inBefore:
			changes = append(changes, Change{Type: Added, Path: p, New: newEntry})
		case !inAfter:
			changes = append(changes, Change{Type: Deleted, Path: p, Old: oldEntry})
		case oldEntry.Hash != newEntry.Hash || oldEntry.Mode != newEntry.Mode:
			changes = append(changes, Change{Type: Modified, Path: p, Old: oldEntry, New: newEntry})
		}
	}

	return changes
}
