package diff

import (
	"fmt"
	"strings"
	"testing"

	"github.com/odvcencio/hist/pkg/object"
)

func hashOf(content string) object.Hash {
	return object.HashObject(object.TypeBlob, []byte(content))
}

func snapshotOf(files map[string]string) Snapshot {
	s := make(Snapshot, len(files))
	for p, content := range files {
		s[p] = Entry{Hash: hashOf(content), Mode: object.TreeModeFile}
	}
	return s
}

// loaderFor backs a BlobLoader with the union of the given file sets.
func loaderFor(sets ...map[string]string) BlobLoader {
	byHash := make(map[object.Hash][]byte)
	for _, files := range sets {
		for _, content := range files {
			byHash[hashOf(content)] = []byte(content)
		}
	}
	return func(h object.Hash) ([]byte, error) {
		content, ok := byHash[h]
		if !ok {
			return nil, fmt.Errorf("no content for %s", h)
		}
		return content, nil
	}
}

func TestCompare_Added(t *testing.T) {
	before := snapshotOf(map[string]string{"a.txt": "a\n"})
	after := snapshotOf(map[string]string{"a.txt": "a\n", "b.txt": "b\n"})

	changes := Compare(before, after)

	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1: %v", len(changes), changes)
	}
	c := changes[0]
	if c.Type != Added || c.Path != "b.txt" {
		t.Errorf("change = {%v %q}, want {Added %q}", c.Type, c.Path, "b.txt")
	}
	if c.New.Hash != hashOf("b\n") {
		t.Errorf("New.Hash = %s, want hash of new content", c.New.Hash)
	}
	if c.Old.Hash != "" {
		t.Errorf("Old.Hash = %s, want empty for Added", c.Old.Hash)
	}
}

func TestCompare_Deleted(t *testing.T) {
	before := snapshotOf(map[string]string{"a.txt": "a\n", "b.txt": "b\n"})
	after := snapshotOf(map[string]string{"a.txt": "a\n"})

	changes := Compare(before, after)

	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1: %v", len(changes), changes)
	}
	if changes[0].Type != Deleted || changes[0].Path != "b.txt" {
		t.Errorf("change = {%v %q}, want {Deleted %q}", changes[0].Type, changes[0].Path, "b.txt")
	}
}

func TestCompare_Modified(t *testing.T) {
	before := snapshotOf(map[string]string{"a.txt": "old\n"})
	after := snapshotOf(map[string]string{"a.txt": "new\n"})

	changes := Compare(before, after)

	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1: %v", len(changes), changes)
	}
	c := changes[0]
	if c.Type != Modified {
		t.Errorf("Type = %v, want Modified", c.Type)
	}
	if c.Old.Hash == c.New.Hash {
		t.Error("Old and New hashes should differ for modified content")
	}
}

func TestCompare_ModeOnlyChange(t *testing.T) {
	h := hashOf("#!/bin/sh\n")
	before := Snapshot{"run.sh": {Hash: h, Mode: object.TreeModeFile}}
	after := Snapshot{"run.sh": {Hash: h, Mode: object.TreeModeExecutable}}

	changes := Compare(before, after)

	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	if changes[0].Type != Modified {
		t.Errorf("Type = %v, want Modified for mode-only change", changes[0].Type)
	}
}

func TestCompare_Unchanged(t *testing.T) {
	s := snapshotOf(map[string]string{"a.txt": "same\n", "b.txt": "same2\n"})

	if changes := Compare(s, s); len(changes) != 0 {
		t.Errorf("got %d changes for identical snapshots, want 0: %v", len(changes), changes)
	}
}

func TestCompare_SortedByPath(t *testing.T) {
	before := snapshotOf(map[string]string{"m.txt": "m\n"})
	after := snapshotOf(map[string]string{
		"z.txt": "z\n",
		"a.txt": "a\n",
		"m.txt": "changed\n",
	})

	changes := Compare(before, after)

	got := make([]string, len(changes))
	for i, c := range changes {
		got[i] = c.Path
	}
	want := []string{"a.txt", "m.txt", "z.txt"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("paths = %v, want %v", got, want)
	}
}

func TestCompare_BothEmpty(t *testing.T) {
	if changes := Compare(Snapshot{}, Snapshot{}); len(changes) != 0 {
		t.Errorf("got %d changes for empty snapshots, want 0", len(changes))
	}
}

func TestFormatUnified_Modified(t *testing.T) {
	beforeFiles := map[string]string{"greet.txt": "hello\nworld\n"}
	afterFiles := map[string]string{"greet.txt": "hello\nthere\n"}

	changes := Compare(snapshotOf(beforeFiles), snapshotOf(afterFiles))
	out, err := FormatUnified(changes, loaderFor(beforeFiles, afterFiles))
	if err != nil {
		t.Fatalf("FormatUnified failed: %v", err)
	}

	wantParts := []string{
		"diff --hist a/greet.txt b/greet.txt",
		"index " + hashOf("hello\nworld\n").Short() + ".." + hashOf("hello\nthere\n").Short() + " " + object.TreeModeFile,
		"--- a/greet.txt",
		"+++ b/greet.txt",
		"-world",
		"+there",
		" hello",
	}
	for _, part := range wantParts {
		if !strings.Contains(out, part) {
			t.Errorf("output missing %q:\n%s", part, out)
		}
	}
}

func TestFormatUnified_Added(t *testing.T) {
	afterFiles := map[string]string{"new.txt": "fresh\n"}

	changes := Compare(Snapshot{}, snapshotOf(afterFiles))
	out, err := FormatUnified(changes, loaderFor(afterFiles))
	if err != nil {
		t.Fatalf("FormatUnified failed: %v", err)
	}

	wantParts := []string{
		"new file mode " + object.TreeModeFile,
		"index 00000000.." + hashOf("fresh\n").Short(),
		"--- /dev/null",
		"+++ b/new.txt",
		"+fresh",
	}
	for _, part := range wantParts {
		if !strings.Contains(out, part) {
			t.Errorf("output missing %q:\n%s", part, out)
		}
	}
}

func TestFormatUnified_Deleted(t *testing.T) {
	beforeFiles := map[string]string{"old.txt": "stale\n"}

	changes := Compare(snapshotOf(beforeFiles), Snapshot{})
	out, err := FormatUnified(changes, loaderFor(beforeFiles))
	if err != nil {
		t.Fatalf("FormatUnified failed: %v", err)
	}

	wantParts := []string{
		"deleted file mode " + object.TreeModeFile,
		"index " + hashOf("stale\n").Short() + "..00000000",
		"--- a/old.txt",
		"+++ /dev/null",
		"-stale",
	}
	for _, part := range wantParts {
		if !strings.Contains(out, part) {
			t.Errorf("output missing %q:\n%s", part, out)
		}
	}
}

func TestFormatUnified_ModeChange(t *testing.T) {
	content := "#!/bin/sh\necho hi\n"
	h := hashOf(content)
	before := Snapshot{"run.sh": {Hash: h, Mode: object.TreeModeFile}}
	after := Snapshot{"run.sh": {Hash: h, Mode: object.TreeModeExecutable}}

	changes := Compare(before, after)
	out, err := FormatUnified(changes, loaderFor(map[string]string{"run.sh": content}))
	if err != nil {
		t.Fatalf("FormatUnified failed: %v", err)
	}

	if !strings.Contains(out, "old mode "+object.TreeModeFile) {
		t.Errorf("output missing old mode line:\n%s", out)
	}
	if !strings.Contains(out, "new mode "+object.TreeModeExecutable) {
		t.Errorf("output missing new mode line:\n%s", out)
	}
	// Identical content: headers only, no hunks.
	if strings.Contains(out, "@@") {
		t.Errorf("unexpected hunks for mode-only change:\n%s", out)
	}
}

func TestFormatUnified_Binary(t *testing.T) {
	beforeFiles := map[string]string{"bin.dat": "a\x00b"}
	afterFiles := map[string]string{"bin.dat": "a\x00c"}

	changes := Compare(snapshotOf(beforeFiles), snapshotOf(afterFiles))
	out, err := FormatUnified(changes, loaderFor(beforeFiles, afterFiles))
	if err != nil {
		t.Fatalf("FormatUnified failed: %v", err)
	}

	if !strings.Contains(out, "Binary files a/bin.dat and b/bin.dat differ") {
		t.Errorf("output missing binary placeholder:\n%s", out)
	}
	if strings.Contains(out, "@@") {
		t.Errorf("unexpected hunks for binary change:\n%s", out)
	}
}

func TestFormatUnified_MultipleFilesInPathOrder(t *testing.T) {
	beforeFiles := map[string]string{"b.txt": "b1\n"}
	afterFiles := map[string]string{"a.txt": "a\n", "b.txt": "b2\n"}

	changes := Compare(snapshotOf(beforeFiles), snapshotOf(afterFiles))
	out, err := FormatUnified(changes, loaderFor(beforeFiles, afterFiles))
	if err != nil {
		t.Fatalf("FormatUnified failed: %v", err)
	}

	aIdx := strings.Index(out, "diff --hist a/a.txt")
	bIdx := strings.Index(out, "diff --hist a/b.txt")
	if aIdx < 0 || bIdx < 0 {
		t.Fatalf("missing file sections:\n%s", out)
	}
	if aIdx > bIdx {
		t.Errorf("a.txt section should precede b.txt:\n%s", out)
	}
}
