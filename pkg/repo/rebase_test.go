package repo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/odvcencio/hist/pkg/object"
)

func commitFile(t *testing.T, r *Repo, relPath, content, message string) object.Hash {
	t.Helper()

	writeWorktreeFile(t, r, relPath, content)
	if err := r.Add([]string{relPath}); err != nil {
		t.Fatalf("Add %s: %v", relPath, err)
	}
	h, err := r.Commit(message, "test-author")
	if err != nil {
		t.Fatalf("Commit %q: %v", message, err)
	}
	return h
}

// Three commits on feature, one non-overlapping commit on main: rebasing
// feature onto main replays all three as new commits rooted at the main
// tip, leaves the originals in the store, and lands the worktree on the
// combined content.
func TestRebase_LinearizesOntoUpstream(t *testing.T) {
	r, _ := setupMergeRepo(t)

	mainTip := commitFile(t, r, "upstream.txt", "upstream change\n", "main adds upstream.txt")

	if err := r.Switch("feature"); err != nil {
		t.Fatalf("Switch(feature): %v", err)
	}
	orig1 := commitFile(t, r, "f1.txt", "one\n", "feature 1")
	orig2 := commitFile(t, r, "f2.txt", "two\n", "feature 2")
	orig3 := commitFile(t, r, "f3.txt", "three\n", "feature 3")

	report, err := r.Rebase("main")
	if err != nil {
		t.Fatalf("Rebase(main): %v", err)
	}
	if report.AlreadyUpToDate || report.FastForward {
		t.Fatalf("expected full replay, got report %+v", report)
	}
	if len(report.Replayed) != 3 {
		t.Fatalf("replayed %d commits, want 3", len(report.Replayed))
	}
	if report.NewHead != report.Replayed[2] {
		t.Fatalf("NewHead = %q, want last replayed %q", report.NewHead, report.Replayed[2])
	}

	// Branch pointer moved to the replayed chain.
	featureTip, err := r.ResolveRef("refs/heads/feature")
	if err != nil {
		t.Fatalf("ResolveRef(feature): %v", err)
	}
	if featureTip != report.NewHead {
		t.Fatalf("feature tip = %q, want %q", featureTip, report.NewHead)
	}

	// The replayed chain is rooted at the main tip and preserves order
	// and messages.
	wantMessages := []string{"feature 1", "feature 2", "feature 3"}
	parent := mainTip
	for i, h := range report.Replayed {
		c, err := r.Store.ReadCommit(h)
		if err != nil {
			t.Fatalf("ReadCommit(replayed %d): %v", i, err)
		}
		if len(c.Parents) != 1 || c.Parents[0] != parent {
			t.Fatalf("replayed[%d] parents = %v, want [%s]", i, c.Parents, parent)
		}
		if c.Message != wantMessages[i] {
			t.Fatalf("replayed[%d] message = %q, want %q", i, c.Message, wantMessages[i])
		}
		parent = h
	}

	// Originals stay untouched in the store.
	for _, h := range []object.Hash{orig1, orig2, orig3} {
		if _, err := r.Store.ReadCommit(h); err != nil {
			t.Fatalf("original commit %s unreadable after rebase: %v", h.Short(), err)
		}
	}

	// Worktree has both sides.
	for _, name := range []string{"upstream.txt", "f1.txt", "f2.txt", "f3.txt"} {
		if _, err := os.Stat(filepath.Join(r.RootDir, name)); err != nil {
			t.Fatalf("expected %s in worktree after rebase: %v", name, err)
		}
	}

	// No transient state left behind.
	op, err := r.CurrentOperation()
	if err != nil {
		t.Fatalf("CurrentOperation: %v", err)
	}
	if op != OpNone {
		t.Fatalf("operation after rebase = %q, want none", op)
	}
}

func TestRebase_AlreadyUpToDate(t *testing.T) {
	r, _ := setupMergeRepo(t)

	if err := r.Switch("feature"); err != nil {
		t.Fatalf("Switch(feature): %v", err)
	}
	tip := commitFile(t, r, "f.txt", "feature\n", "feature ahead")

	// main is an ancestor of feature; nothing to replay.
	report, err := r.Rebase("main")
	if err != nil {
		t.Fatalf("Rebase(main): %v", err)
	}
	if !report.AlreadyUpToDate {
		t.Fatalf("expected AlreadyUpToDate, got %+v", report)
	}
	if report.NewHead != tip {
		t.Fatalf("NewHead = %q, want unchanged tip %q", report.NewHead, tip)
	}
}

func TestRebase_FastForwardWhenBehind(t *testing.T) {
	r, _ := setupMergeRepo(t)

	mainTip := commitFile(t, r, "ahead.txt", "ahead\n", "main moves ahead")

	// feature is strictly behind main.
	if err := r.Switch("feature"); err != nil {
		t.Fatalf("Switch(feature): %v", err)
	}

	report, err := r.Rebase("main")
	if err != nil {
		t.Fatalf("Rebase(main): %v", err)
	}
	if !report.FastForward {
		t.Fatalf("expected fast-forward, got %+v", report)
	}
	if report.NewHead != mainTip {
		t.Fatalf("NewHead = %q, want %q", report.NewHead, mainTip)
	}

	featureTip, err := r.ResolveRef("refs/heads/feature")
	if err != nil {
		t.Fatalf("ResolveRef(feature): %v", err)
	}
	if featureTip != mainTip {
		t.Fatalf("feature tip = %q, want %q", featureTip, mainTip)
	}
	if _, err := os.Stat(filepath.Join(r.RootDir, "ahead.txt")); err != nil {
		t.Fatalf("expected ahead.txt after fast-forward: %v", err)
	}
}

func TestRebase_ConflictThenContinue(t *testing.T) {
	r, _ := setupMergeRepo(t)

	commitFile(t, r, "main.go", "package main\n\nfunc A() { println(\"upstream\") }\n", "upstream change")

	if err := r.Switch("feature"); err != nil {
		t.Fatalf("Switch(feature): %v", err)
	}
	commitFile(t, r, "main.go", "package main\n\nfunc A() { println(\"feature\") }\n", "feature change")

	report, err := r.Rebase("main")
	var confErr *ConflictError
	if !errors.As(err, &confErr) {
		t.Fatalf("Rebase error = %v, want *ConflictError", err)
	}
	if confErr.Op != "rebase" {
		t.Fatalf("ConflictError.Op = %q, want %q", confErr.Op, "rebase")
	}
	if len(confErr.Paths) != 1 || confErr.Paths[0] != "main.go" {
		t.Fatalf("ConflictError.Paths = %v, want [main.go]", confErr.Paths)
	}
	if confErr.Commit == "" {
		t.Fatal("ConflictError.Commit should name the conflicting commit")
	}
	if report == nil {
		t.Fatal("expected partial report alongside conflict error")
	}

	op, err := r.CurrentOperation()
	if err != nil {
		t.Fatalf("CurrentOperation: %v", err)
	}
	if op != OpRebase {
		t.Fatalf("operation = %q, want %q", op, OpRebase)
	}

	// The branch pointer must not have moved while suspended.
	stg, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging: %v", err)
	}
	entry := stg.Entries["main.go"]
	if entry == nil || !entry.Conflict {
		t.Fatalf("expected conflicted staging entry for main.go, got %+v", entry)
	}

	// Resolve and continue.
	resolution := "package main\n\nfunc A() { println(\"both\") }\n"
	writeWorktreeFile(t, r, "main.go", resolution)
	if err := r.Add([]string{"main.go"}); err != nil {
		t.Fatalf("Add resolution: %v", err)
	}

	contReport, err := r.RebaseContinue()
	if err != nil {
		t.Fatalf("RebaseContinue: %v", err)
	}
	if len(contReport.Replayed) != 1 {
		t.Fatalf("continue replayed %d commits, want 1", len(contReport.Replayed))
	}
	if contReport.NewHead != contReport.Replayed[0] {
		t.Fatalf("NewHead = %q, want %q", contReport.NewHead, contReport.Replayed[0])
	}

	featureTip, err := r.ResolveRef("refs/heads/feature")
	if err != nil {
		t.Fatalf("ResolveRef(feature): %v", err)
	}
	if featureTip != contReport.NewHead {
		t.Fatalf("feature tip = %q, want %q", featureTip, contReport.NewHead)
	}

	data, err := os.ReadFile(filepath.Join(r.RootDir, "main.go"))
	if err != nil {
		t.Fatalf("read main.go: %v", err)
	}
	if string(data) != resolution {
		t.Fatalf("main.go after continue = %q, want %q", data, resolution)
	}

	op, err = r.CurrentOperation()
	if err != nil {
		t.Fatalf("CurrentOperation: %v", err)
	}
	if op != OpNone {
		t.Fatalf("operation after continue = %q, want none", op)
	}
}

func TestRebase_AbortRestoresPreRebaseState(t *testing.T) {
	r, _ := setupMergeRepo(t)

	commitFile(t, r, "main.go", "package main\n\nfunc A() { println(\"upstream\") }\n", "upstream change")

	if err := r.Switch("feature"); err != nil {
		t.Fatalf("Switch(feature): %v", err)
	}
	featureContent := "package main\n\nfunc A() { println(\"feature\") }\n"
	origTip := commitFile(t, r, "main.go", featureContent, "feature change")

	_, err := r.Rebase("main")
	var confErr *ConflictError
	if !errors.As(err, &confErr) {
		t.Fatalf("Rebase error = %v, want *ConflictError", err)
	}

	if err := r.RebaseAbort(); err != nil {
		t.Fatalf("RebaseAbort: %v", err)
	}

	tip, err := r.ResolveRef("refs/heads/feature")
	if err != nil {
		t.Fatalf("ResolveRef(feature): %v", err)
	}
	if tip != origTip {
		t.Fatalf("feature tip after abort = %q, want original %q", tip, origTip)
	}

	data, err := os.ReadFile(filepath.Join(r.RootDir, "main.go"))
	if err != nil {
		t.Fatalf("read main.go: %v", err)
	}
	if string(data) != featureContent {
		t.Fatalf("main.go after abort = %q, want %q", data, featureContent)
	}

	stg, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging: %v", err)
	}
	if stg.HasConflicts() {
		t.Fatal("staging still has conflicts after abort")
	}

	op, err := r.CurrentOperation()
	if err != nil {
		t.Fatalf("CurrentOperation: %v", err)
	}
	if op != OpNone {
		t.Fatalf("operation after abort = %q, want none", op)
	}
}

func TestRebase_DisjointHistoriesFail(t *testing.T) {
	r, _ := setupMergeRepo(t)

	treeHash, err := r.Store.WriteTree(&object.TreeObj{})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	orphan, err := r.Store.WriteCommit(&object.CommitObj{
		TreeHash:  treeHash,
		Author:    "test-author",
		Timestamp: time.Now().Unix(),
		Message:   "orphan root",
	})
	if err != nil {
		t.Fatalf("WriteCommit(orphan): %v", err)
	}
	if err := r.CreateBranch("orphan", orphan); err != nil {
		t.Fatalf("CreateBranch(orphan): %v", err)
	}

	_, err = r.Rebase("orphan")
	if !errors.Is(err, ErrNoCommonAncestor) {
		t.Fatalf("Rebase onto orphan = %v, want ErrNoCommonAncestor", err)
	}

	op, opErr := r.CurrentOperation()
	if opErr != nil {
		t.Fatalf("CurrentOperation: %v", opErr)
	}
	if op != OpNone {
		t.Fatalf("fatal rebase error left transient state %q", op)
	}
}

func TestRebase_DirtyWorktreeRejected(t *testing.T) {
	r, _ := setupMergeRepo(t)

	commitFile(t, r, "upstream.txt", "upstream\n", "main adds upstream.txt")

	if err := r.Switch("feature"); err != nil {
		t.Fatalf("Switch(feature): %v", err)
	}
	commitFile(t, r, "f.txt", "feature\n", "feature change")
	writeWorktreeFile(t, r, "f.txt", "dirty edit\n")

	_, err := r.Rebase("main")
	if !errors.Is(err, ErrUncommittedChanges) {
		t.Fatalf("Rebase with dirty worktree = %v, want ErrUncommittedChanges", err)
	}
}

// A commit replayed cleanly before the conflicting step must still
// appear in the report RebaseContinue returns: the replayed chain is
// [clean replay, resolved replay], oldest first.
func TestRebaseContinue_ReportIncludesPreConflictReplays(t *testing.T) {
	r, _ := setupMergeRepo(t)

	mainTip := commitFile(t, r, "main.go", "package main\n\nfunc A() { println(\"upstream\") }\n", "upstream change")

	if err := r.Switch("feature"); err != nil {
		t.Fatalf("Switch(feature): %v", err)
	}
	commitFile(t, r, "clean.txt", "clean\n", "feature clean addition")
	commitFile(t, r, "main.go", "package main\n\nfunc A() { println(\"feature\") }\n", "feature conflicting change")

	report, err := r.Rebase("main")
	var confErr *ConflictError
	if !errors.As(err, &confErr) {
		t.Fatalf("Rebase error = %v, want *ConflictError", err)
	}
	if len(report.Replayed) != 1 {
		t.Fatalf("partial report replayed %d commits, want 1 (the clean addition)", len(report.Replayed))
	}
	cleanReplay := report.Replayed[0]

	resolution := "package main\n\nfunc A() { println(\"both\") }\n"
	writeWorktreeFile(t, r, "main.go", resolution)
	if err := r.Add([]string{"main.go"}); err != nil {
		t.Fatalf("Add resolution: %v", err)
	}

	contReport, err := r.RebaseContinue()
	if err != nil {
		t.Fatalf("RebaseContinue: %v", err)
	}
	if len(contReport.Replayed) != 2 {
		t.Fatalf("continue replayed %d commits, want 2", len(contReport.Replayed))
	}
	if contReport.Replayed[0] != cleanReplay {
		t.Fatalf("Replayed[0] = %q, want pre-conflict replay %q", contReport.Replayed[0], cleanReplay)
	}
	if contReport.NewHead != contReport.Replayed[1] {
		t.Fatalf("NewHead = %q, want last replayed %q", contReport.NewHead, contReport.Replayed[1])
	}

	// The chain is parented clean-replay on upstream, resolution on
	// clean-replay.
	first, err := r.Store.ReadCommit(contReport.Replayed[0])
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if len(first.Parents) != 1 || first.Parents[0] != mainTip {
		t.Fatalf("first replay parents = %v, want [%s]", first.Parents, mainTip)
	}
	second, err := r.Store.ReadCommit(contReport.Replayed[1])
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if len(second.Parents) != 1 || second.Parents[0] != cleanReplay {
		t.Fatalf("second replay parents = %v, want [%s]", second.Parents, cleanReplay)
	}
}
