package diff

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/odvcencio/hist/pkg/object"
)

// BlobLoader fetches file content by blob hash. Callers diffing the
// worktree back it with a loader that falls through to the scanned file
// contents for blobs not yet written to the store.
type BlobLoader func(object.Hash) ([]byte, error)

const zeroShortHash = "00000000"

// FormatUnified renders changes as unified diff text with 3 lines of
// context, one file section per change:
//
//	diff --hist a/path b/path
//	index 1a2b3c4d..5e6f7a8b 100644
//	--- a/path
//	+++ b/path
//	@@ -1,3 +1,3 @@
//	 ...
//
// Added files show "new file mode", deleted files "deleted file mode",
// and mode-only changes "old mode"/"new mode" header lines. Binary
// content produces a placeholder instead of hunks.
func FormatUnified(changes []Change, load BlobLoader) (string, error) {
	var b strings.Builder

	for _, c := range changes {
		fmt.Fprintf(&b, "diff --hist a/%s b/%s\n", c.Path, c.Path)

		var oldContent, newContent []byte
		var err error

		switch c.Type {
		case Added:
			fmt.Fprintf(&b, "new file mode %s\n", c.New.Mode)
			fmt.Fprintf(&b, "index %s..%s\n", zeroShortHash, c.New.Hash.Short())
			newContent, err = load(c.New.Hash)
			if err != nil {
				return "", fmt.Errorf("loading %s: %w", c.Path, err)
			}

		case Deleted:
			fmt.Fprintf(&b, "deleted file mode %s\n", c.Old.Mode)
			fmt.Fprintf(&b, "index %s..%s\n", c.Old.Hash.Short(), zeroShortHash)
			oldContent, err = load(c.Old.Hash)
			if err != nil {
				return "", fmt.Errorf("loading %s: %w", c.Path, err)
			}

		case Modified:
			if c.Old.Mode != c.New.Mode {
				fmt.Fprintf(&b, "old mode %s\n", c.Old.Mode)
				fmt.Fprintf(&b, "new mode %s\n", c.New.Mode)
				fmt.Fprintf(&b, "index %s..%s\n", c.Old.Hash.Short(), c.New.Hash.Short())
			} else {
				fmt.Fprintf(&b, "index %s..%s %s\n", c.Old.Hash.Short(), c.New.Hash.Short(), c.New.Mode)
			}
			oldContent, err = load(c.Old.Hash)
			if err != nil {
				return "", fmt.Errorf("loading %s: %w", c.Path, err)
			}
			newContent, err = load(c.New.Hash)
			if err != nil {
				return "", fmt.Errorf("loading %s: %w", c.Path, err)
			}
		}

		if isBinary(oldContent) || isBinary(newContent) {
			fmt.Fprintf(&b, "Binary files a/%s and b/%s differ\n", c.Path, c.Path)
			continue
		}

		fromLabel := "a/" + c.Path
		toLabel := "b/" + c.Path
		if c.Type == Added {
			fromLabel = "/dev/null"
		}
		if c.Type == Deleted {
			toLabel = "/dev/null"
		}

		ud := difflib.UnifiedDiff{
			A:        contentLines(oldContent),
			B:        contentLines(newContent),
			FromFile: fromLabel,
			ToFile:   toLabel,
			Context:  3,
		}
		text, err := difflib.GetUnifiedDiffString(ud)
		if err != nil {
			return "", fmt.Errorf("diffing %s: %w", c.Path, err)
		}
		b.WriteString(text)
		if text != "" && !strings.HasSuffix(text, "\n") {
			b.WriteByte('\n')
		}
	}

	return b.String(), nil
}

// contentLines splits content for difflib, keeping line terminators.
// Empty content must become an empty slice, not a phantom blank line.
func contentLines(content []byte) []string {
	if len(content) == 0 {
		return []string{}
	}
	return difflib.SplitLines(string(content))
}

// isBinary applies the usual NUL-byte heuristic over the first 8000
// bytes of content.
func isBinary(content []byte) bool {
	probe := content
	if len(probe) > 8000 {
		probe = probe[:8000]
	}
	return bytes.IndexByte(probe, 0) >= 0
}
