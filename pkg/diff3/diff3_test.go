package diff3

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// MyersDiff
// ---------------------------------------------------------------------------

func TestMyersDiff_Basic(t *testing.T) {
	a := []string{"a", "b", "c"}
	b := []string{"a", "x", "c"}

	ops := MyersDiff(a, b)

	// We expect: Equal "a", Delete "b", Insert "x", Equal "c"
	wantTypes := []DiffType{Equal, Delete, Insert, Equal}
	wantLines := []string{"a", "b", "x", "c"}

	if len(ops) != len(wantTypes) {
		t.Fatalf("got %d ops, want %d: %v", len(ops), len(wantTypes), ops)
	}
	for i, op := range ops {
		if op.Type != wantTypes[i] || op.Line != wantLines[i] {
			t.Errorf("op[%d] = {%v, %q}, want {%v, %q}",
				i, op.Type, op.Line, wantTypes[i], wantLines[i])
		}
	}
}

func TestMyersDiff_EmptyToNonEmpty(t *testing.T) {
	ops := MyersDiff(nil, []string{"a", "b"})
	for _, op := range ops {
		if op.Type != Insert {
			t.Errorf("expected all Insert ops, got %v", op)
		}
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(ops))
	}
}

func TestMyersDiff_NonEmptyToEmpty(t *testing.T) {
	ops := MyersDiff([]string{"a", "b"}, nil)
	for _, op := range ops {
		if op.Type != Delete {
			t.Errorf("expected all Delete ops, got %v", op)
		}
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(ops))
	}
}

func TestMyersDiff_Identical(t *testing.T) {
	a := []string{"a", "b", "c"}
	ops := MyersDiff(a, a)
	for _, op := range ops {
		if op.Type != Equal {
			t.Errorf("expected all Equal ops, got %v", op)
		}
	}
}

func TestMyersDiff_RoundTrip(t *testing.T) {
	a := []string{"one", "two", "three", "four"}
	b := []string{"one", "2", "three", "3.5", "four", "five"}

	ops := MyersDiff(a, b)

	// Applying the script to a must reproduce b.
	var got []string
	for _, op := range ops {
		if op.Type != Delete {
			got = append(got, op.Line)
		}
	}
	if strings.Join(got, "|") != strings.Join(b, "|") {
		t.Errorf("applied script = %v, want %v", got, b)
	}
}

// ---------------------------------------------------------------------------
// Clean merge — ours adds lines at top, theirs adds lines at bottom
// ---------------------------------------------------------------------------

func TestMerge_CleanTopBottom(t *testing.T) {
	base := []byte("line1\nline2\nline3\n")
	ours := []byte("new-top\nline1\nline2\nline3\n")
	theirs := []byte("line1\nline2\nline3\nnew-bottom\n")

	r := Merge(base, ours, theirs, Labels{})

	if r.HasConflicts {
		t.Fatal("expected clean merge, got conflicts")
	}

	want := "new-top\nline1\nline2\nline3\nnew-bottom\n"
	if string(r.Merged) != want {
		t.Errorf("merged =\n%s\nwant =\n%s", r.Merged, want)
	}
}

// ---------------------------------------------------------------------------
// One-sided changes
// ---------------------------------------------------------------------------

func TestMerge_OursOnly(t *testing.T) {
	base := []byte("aaa\nbbb\nccc\n")
	ours := []byte("aaa\nBBB\nccc\n")
	theirs := []byte("aaa\nbbb\nccc\n") // same as base

	r := Merge(base, ours, theirs, Labels{})

	if r.HasConflicts {
		t.Fatal("expected clean merge, got conflicts")
	}
	want := "aaa\nBBB\nccc\n"
	if string(r.Merged) != want {
		t.Errorf("merged =\n%s\nwant =\n%s", r.Merged, want)
	}
}

func TestMerge_TheirsOnly(t *testing.T) {
	base := []byte("aaa\nbbb\nccc\n")
	ours := []byte("aaa\nbbb\nccc\n") // same as base
	theirs := []byte("aaa\nBBB\nccc\n")

	r := Merge(base, ours, theirs, Labels{})

	if r.HasConflicts {
		t.Fatal("expected clean merge, got conflicts")
	}
	want := "aaa\nBBB\nccc\n"
	if string(r.Merged) != want {
		t.Errorf("merged =\n%s\nwant =\n%s", r.Merged, want)
	}
}

// ---------------------------------------------------------------------------
// Conflict — both change same line differently
// ---------------------------------------------------------------------------

func TestMerge_Conflict(t *testing.T) {
	base := []byte("aaa\nbbb\nccc\n")
	ours := []byte("aaa\nOURS\nccc\n")
	theirs := []byte("aaa\nTHEIRS\nccc\n")

	r := Merge(base, ours, theirs, Labels{})

	if !r.HasConflicts {
		t.Fatal("expected conflicts, got clean merge")
	}
	if r.ConflictCount != 1 {
		t.Errorf("ConflictCount = %d, want 1", r.ConflictCount)
	}

	// Default labels appear in the markers.
	if !bytes.Contains(r.Merged, []byte("<<<<<<< ours\n")) {
		t.Error("merged output missing <<<<<<< ours marker")
	}
	if !bytes.Contains(r.Merged, []byte("=======\n")) {
		t.Error("merged output missing ======= marker")
	}
	if !bytes.Contains(r.Merged, []byte(">>>>>>> theirs\n")) {
		t.Error("merged output missing >>>>>>> theirs marker")
	}

	hasConflictHunk := false
	for _, h := range r.Hunks {
		if h.Type == HunkConflict {
			hasConflictHunk = true
			if len(h.Merged) == 0 {
				t.Error("conflict hunk has empty Merged block")
			}
		}
	}
	if !hasConflictHunk {
		t.Error("expected at least one HunkConflict in Hunks")
	}
}

func TestMerge_ConflictLabels(t *testing.T) {
	base := []byte("x\n")
	ours := []byte("left\n")
	theirs := []byte("right\n")

	r := Merge(base, ours, theirs, Labels{Ours: "main", Theirs: "feature"})

	if !r.HasConflicts {
		t.Fatal("expected conflicts, got clean merge")
	}
	want := "<<<<<<< main\nleft\n=======\nright\n>>>>>>> feature\n"
	if string(r.Merged) != want {
		t.Errorf("merged =\n%s\nwant =\n%s", r.Merged, want)
	}
}

// ---------------------------------------------------------------------------
// Both make identical change — no conflict
// ---------------------------------------------------------------------------

func TestMerge_IdenticalChange(t *testing.T) {
	base := []byte("aaa\nbbb\nccc\n")
	ours := []byte("aaa\nSAME\nccc\n")
	theirs := []byte("aaa\nSAME\nccc\n")

	r := Merge(base, ours, theirs, Labels{})

	if r.HasConflicts {
		t.Fatal("expected clean merge when both sides make the same change")
	}
	want := "aaa\nSAME\nccc\n"
	if string(r.Merged) != want {
		t.Errorf("merged =\n%s\nwant =\n%s", r.Merged, want)
	}
}

// ---------------------------------------------------------------------------
// Non-overlapping inserts in different parts of file — clean merge
// ---------------------------------------------------------------------------

func TestMerge_NonOverlappingInserts(t *testing.T) {
	base := []byte("aaa\nbbb\nccc\nddd\neee\n")
	ours := []byte("aaa\nOUR-INSERT\nbbb\nccc\nddd\neee\n")
	theirs := []byte("aaa\nbbb\nccc\nddd\nTHEIR-INSERT\neee\n")

	r := Merge(base, ours, theirs, Labels{})

	if r.HasConflicts {
		t.Fatalf("expected clean merge, got conflicts:\n%s", r.Merged)
	}

	want := "aaa\nOUR-INSERT\nbbb\nccc\nddd\nTHEIR-INSERT\neee\n"
	if string(r.Merged) != want {
		t.Errorf("merged =\n%s\nwant =\n%s", r.Merged, want)
	}
}

// ---------------------------------------------------------------------------
// Overlapping multi-chunk regions stay aligned
// ---------------------------------------------------------------------------

func TestMerge_StraddlingChange(t *testing.T) {
	// Ours rewrites lines 2-3 as one block that straddles two unchanged
	// chunks on theirs' side; theirs separately changes line 4. The spans
	// do not overlap, so both edits land cleanly.
	base := []byte("a\nb\nc\nd\ne\n")
	ours := []byte("a\nBC\nd\ne\n")
	theirs := []byte("a\nb\nc\nD\ne\n")

	r := Merge(base, ours, theirs, Labels{})

	if r.HasConflicts {
		t.Fatalf("expected clean merge, got conflicts:\n%s", r.Merged)
	}
	want := "a\nBC\nD\ne\n"
	if string(r.Merged) != want {
		t.Errorf("merged =\n%s\nwant =\n%s", r.Merged, want)
	}
}

func TestMerge_AdjacentChangesBothSides(t *testing.T) {
	// Ours replaces b..c, theirs replaces c..d. The regions overlap on c,
	// so this is one conflict over the combined span, not two.
	base := []byte("a\nb\nc\nd\ne\n")
	ours := []byte("a\nX\nd\ne\n")
	theirs := []byte("a\nb\nY\ne\n")

	r := Merge(base, ours, theirs, Labels{})

	if !r.HasConflicts {
		t.Fatalf("expected conflict, got clean merge:\n%s", r.Merged)
	}
	if r.ConflictCount != 1 {
		t.Errorf("ConflictCount = %d, want 1", r.ConflictCount)
	}
	// No base line may leak out duplicated around the conflict block.
	if got := bytes.Count(r.Merged, []byte("d\n")); got > 1 {
		t.Errorf("line %q appears %d times in output:\n%s", "d", got, r.Merged)
	}
}

// ---------------------------------------------------------------------------
// Delete vs modify — conflict
// ---------------------------------------------------------------------------

func TestMerge_DeleteVsModify(t *testing.T) {
	base := []byte("aaa\nbbb\nccc\n")
	ours := []byte("aaa\nccc\n")            // deleted "bbb"
	theirs := []byte("aaa\nBBB-MOD\nccc\n") // modified "bbb"

	r := Merge(base, ours, theirs, Labels{})

	if !r.HasConflicts {
		t.Fatal("expected conflict when one side deletes and the other modifies")
	}
}

// ---------------------------------------------------------------------------
// Empty inputs
// ---------------------------------------------------------------------------

func TestMerge_EmptyBase(t *testing.T) {
	base := []byte("")
	ours := []byte("hello\n")
	theirs := []byte("world\n")

	r := Merge(base, ours, theirs, Labels{})

	// Both sides added content to an empty base — this is a conflict
	// since both inserted at the same position.
	if !r.HasConflicts {
		t.Fatal("expected conflict when both sides add to empty base")
	}
}

func TestMerge_EmptyBaseIdenticalAdds(t *testing.T) {
	r := Merge(nil, []byte("hello\n"), []byte("hello\n"), Labels{})

	if r.HasConflicts {
		t.Fatal("expected clean merge when both sides add identical content")
	}
	if string(r.Merged) != "hello\n" {
		t.Errorf("merged = %q, want %q", r.Merged, "hello\n")
	}
}

func TestMerge_EmptyOurs(t *testing.T) {
	base := []byte("aaa\nbbb\n")
	ours := []byte("")
	theirs := []byte("aaa\nbbb\n") // same as base

	r := Merge(base, ours, theirs, Labels{})

	if r.HasConflicts {
		t.Fatal("expected clean merge")
	}
	// Ours deleted everything, theirs unchanged → take ours.
	if string(r.Merged) != "" {
		t.Errorf("merged = %q, want empty", r.Merged)
	}
}

func TestMerge_EmptyTheirs(t *testing.T) {
	base := []byte("aaa\nbbb\n")
	ours := []byte("aaa\nbbb\n") // same as base
	theirs := []byte("")

	r := Merge(base, ours, theirs, Labels{})

	if r.HasConflicts {
		t.Fatal("expected clean merge")
	}
	if string(r.Merged) != "" {
		t.Errorf("merged = %q, want empty", r.Merged)
	}
}

func TestMerge_AllEmpty(t *testing.T) {
	r := Merge([]byte{}, []byte{}, []byte{}, Labels{})
	if r.HasConflicts {
		t.Fatal("expected clean merge for all-empty inputs")
	}
	if len(r.Merged) != 0 {
		t.Errorf("expected empty merged, got %q", r.Merged)
	}
}

// ---------------------------------------------------------------------------
// RenderConflict
// ---------------------------------------------------------------------------

func TestRenderConflict(t *testing.T) {
	out := RenderConflict([]byte("kept\n"), []byte("gone"), Labels{Ours: "main", Theirs: "topic"})

	want := "<<<<<<< main\nkept\n=======\ngone\n>>>>>>> topic\n"
	if string(out) != want {
		t.Errorf("rendered =\n%s\nwant =\n%s", out, want)
	}
}

func TestRenderConflict_DefaultLabels(t *testing.T) {
	out := RenderConflict(nil, []byte("b\n"), Labels{})

	want := "<<<<<<< ours\n=======\nb\n>>>>>>> theirs\n"
	if string(out) != want {
		t.Errorf("rendered =\n%s\nwant =\n%s", out, want)
	}
}

// ---------------------------------------------------------------------------
// Large file performance sanity check
// ---------------------------------------------------------------------------

func TestMerge_LargeFile(t *testing.T) {
	var baseBuf, oursBuf, theirsBuf strings.Builder
	const n = 2000

	for i := 0; i < n; i++ {
		line := fmt.Sprintf("line-%04d\n", i)
		baseBuf.WriteString(line)
		oursBuf.WriteString(line)
		theirsBuf.WriteString(line)
	}

	// Ours changes line 100.
	oursLines := strings.Split(oursBuf.String(), "\n")
	oursLines[100] = "OURS-CHANGED"
	oursContent := []byte(strings.Join(oursLines, "\n"))

	// Theirs changes line 1900.
	theirsLines := strings.Split(theirsBuf.String(), "\n")
	theirsLines[1900] = "THEIRS-CHANGED"
	theirsContent := []byte(strings.Join(theirsLines, "\n"))

	base := []byte(baseBuf.String())

	start := time.Now()
	r := Merge(base, oursContent, theirsContent, Labels{})
	elapsed := time.Since(start)

	if r.HasConflicts {
		t.Fatal("expected clean merge for non-overlapping changes")
	}

	if elapsed > 5*time.Second {
		t.Fatalf("merge took %v, expected < 5s for %d lines", elapsed, n)
	}

	if !bytes.Contains(r.Merged, []byte("OURS-CHANGED")) {
		t.Error("merged output missing OURS-CHANGED")
	}
	if !bytes.Contains(r.Merged, []byte("THEIRS-CHANGED")) {
		t.Error("merged output missing THEIRS-CHANGED")
	}
}
