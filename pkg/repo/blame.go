package repo

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/odvcencio/hist/pkg/diff3"
	"github.com/odvcencio/hist/pkg/object"
)

// BlameLine attributes one line of a file to the commit that introduced
// it.
type BlameLine struct {
	CommitHash object.Hash
	Author     string
	Timestamp  int64
	LineNo     int    // 1-based position in the blamed revision
	Text       string // line content without the trailing newline
	Boundary   bool   // walk stopped at the scan limit, not at the true origin
}

// Blame attributes every line of the file at HEAD to the commit that
// introduced it. The walk follows first-parent history: a line is
// carried backward through each commit whose diff leaves it untouched
// and pinned on the first commit where the parent's version of the file
// has no counterpart for it.
//
// A positive limit caps the number of commits scanned; lines older than
// the cap are attributed to the oldest commit reached and marked
// Boundary. A non-positive limit scans to the root.
func (r *Repo) Blame(path string, limit int) ([]BlameLine, error) {
	relPath, err := r.repoRelPath(path)
	if err != nil {
		return nil, fmt.Errorf("blame: resolve path %q: %w", path, err)
	}
	relPath = filepath.ToSlash(filepath.Clean(relPath))
	if relPath == "." || strings.TrimSpace(relPath) == "" || strings.HasPrefix(relPath, "..") {
		return nil, fmt.Errorf("blame: path %q is outside the repository", path)
	}

	headHash, err := r.ResolveRef("HEAD")
	if err != nil || headHash == "" {
		return nil, fmt.Errorf("blame: HEAD has no commit: %w", ErrUnresolvableRef)
	}
	head, err := r.Store.ReadCommit(headHash)
	if err != nil {
		return nil, fmt.Errorf("blame: read commit %s: %w", headHash.Short(), err)
	}

	entry, found, err := r.treeEntryAtPath(head.TreeHash, relPath)
	if err != nil {
		return nil, fmt.Errorf("blame: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("blame: %q is not tracked at HEAD", relPath)
	}
	blob, err := r.Store.ReadBlob(entry.BlobHash)
	if err != nil {
		return nil, fmt.Errorf("blame: read blob %s: %w", entry.BlobHash.Short(), err)
	}

	lines := splitFileLines(blob.Data)
	result := make([]BlameLine, len(lines))
	for i, text := range lines {
		result[i] = BlameLine{LineNo: i + 1, Text: text}
	}

	// slot[i] tracks where final line i sits in the version under
	// inspection; -1 once the line has been attributed.
	slot := make([]int, len(lines))
	for i := range slot {
		slot[i] = i
	}
	attributedTo := make([]object.Hash, len(lines))
	boundary := make([]bool, len(lines))
	remaining := len(lines)

	commits := map[object.Hash]*object.CommitObj{headHash: head}

	curHash := headHash
	cur := head
	curBlob := entry.BlobHash
	curLines := lines
	scanned := 0

	for remaining > 0 {
		scanned++

		if len(cur.Parents) == 0 {
			// The root commit introduced everything still unattributed.
			for i, s := range slot {
				if s >= 0 {
					attributedTo[i] = curHash
					slot[i] = -1
				}
			}
			break
		}

		parentHash := cur.Parents[0]
		parent, err := r.Store.ReadCommit(parentHash)
		if err != nil {
			return nil, fmt.Errorf("blame: read commit %s: %w", parentHash.Short(), err)
		}
		commits[parentHash] = parent

		parentEntry, parentHas, err := r.treeEntryAtPath(parent.TreeHash, relPath)
		if err != nil {
			return nil, fmt.Errorf("blame: %w", err)
		}
		if !parentHas {
			// The file first appears in this commit.
			for i, s := range slot {
				if s >= 0 {
					attributedTo[i] = curHash
					slot[i] = -1
				}
			}
			break
		}

		if parentEntry.BlobHash != curBlob {
			parentBlob, err := r.Store.ReadBlob(parentEntry.BlobHash)
			if err != nil {
				return nil, fmt.Errorf("blame: read blob %s: %w", parentEntry.BlobHash.Short(), err)
			}
			parentLines := splitFileLines(parentBlob.Data)
			origins := lineOrigins(parentLines, curLines)

			for i, s := range slot {
				if s < 0 {
					continue
				}
				if pIdx, ok := origins[s]; ok {
					// Untouched here: keep following it into the parent.
					slot[i] = pIdx
					continue
				}
				attributedTo[i] = curHash
				slot[i] = -1
				remaining--
			}
			curLines = parentLines
		}

		if remaining > 0 && limit > 0 && scanned >= limit {
			// Scan cap reached: pin what is left on the parent.
			for i, s := range slot {
				if s >= 0 {
					attributedTo[i] = parentHash
					boundary[i] = true
					slot[i] = -1
				}
			}
			break
		}

		curHash = parentHash
		cur = parent
		curBlob = parentEntry.BlobHash
	}

	for i := range result {
		c := commits[attributedTo[i]]
		result[i].CommitHash = attributedTo[i]
		result[i].Author = c.Author
		result[i].Timestamp = c.Timestamp
		result[i].Boundary = boundary[i]
	}
	return result, nil
}

// lineOrigins maps each child line index to the parent line index it was
// copied from, per the shortest edit script. Lines the script inserts
// have no origin and are absent from the map.
func lineOrigins(parent, child []string) map[int]int {
	ops := diff3.MyersDiff(parent, child)
	origins := make(map[int]int)

	pIdx, cIdx := 0, 0
	for _, op := range ops {
		switch op.Type {
		case diff3.Equal:
			origins[cIdx] = pIdx
			pIdx++
			cIdx++
		case diff3.Delete:
			pIdx++
		case diff3.Insert:
			cIdx++
		}
	}
	return origins
}

// splitFileLines splits file content into lines. A trailing newline does
// not produce an extra empty line.
func splitFileLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
