package remote

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/hist/pkg/repo"
)

func TestBundle_RoundTrip(t *testing.T) {
	src := initRepo(t)
	first := commitFile(t, src, "a.txt", "one\n", "first")
	second := commitFile(t, src, "a.txt", "two\n", "second")
	if err := src.CreateBranch("feature", first); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	tagHash, err := src.CreateAnnotatedTag("v1", first, "tester <tester@example.com>", "release one", false)
	if err != nil {
		t.Fatalf("CreateAnnotatedTag: %v", err)
	}

	path := filepath.Join(t.TempDir(), "all.bundle")
	info, err := CreateBundle(src, path, nil)
	if err != nil {
		t.Fatalf("CreateBundle: %v", err)
	}

	wantRefs := map[string]struct{}{
		"refs/heads/feature": {},
		"refs/heads/main":    {},
		"refs/tags/v1":       {},
	}
	if len(info.Refs) != len(wantRefs) {
		t.Fatalf("bundled %d refs, want %d: %+v", len(info.Refs), len(wantRefs), info.Refs)
	}
	for _, ref := range info.Refs {
		if _, ok := wantRefs[ref.Name]; !ok {
			t.Errorf("unexpected bundled ref %q", ref.Name)
		}
	}
	// Two commits with one blob and one tree each, plus the tag object.
	if info.Objects != 7 {
		t.Errorf("bundled %d objects, want 7", info.Objects)
	}

	fresh := initRepo(t)
	got, err := Unbundle(fresh, path)
	if err != nil {
		t.Fatalf("Unbundle: %v", err)
	}
	if got.Objects != 7 {
		t.Errorf("ingested %d objects, want 7", got.Objects)
	}
	if len(got.Refs) != len(info.Refs) {
		t.Fatalf("reported %d refs, want %d", len(got.Refs), len(info.Refs))
	}
	if !fresh.Store.Has(first) || !fresh.Store.Has(second) || !fresh.Store.Has(tagHash) {
		t.Error("store is missing bundled objects")
	}
	if _, err := fresh.Store.ReadCommit(second); err != nil {
		t.Errorf("ReadCommit after unbundle: %v", err)
	}

	// Everything already present: re-ingesting writes nothing.
	again, err := Unbundle(fresh, path)
	if err != nil {
		t.Fatalf("repeat Unbundle: %v", err)
	}
	if again.Objects != 0 {
		t.Errorf("repeat unbundle wrote %d objects, want 0", again.Objects)
	}
}

func TestCreateBundle_NamedRefs(t *testing.T) {
	src := initRepo(t)
	first := commitFile(t, src, "a.txt", "one\n", "first")
	commitFile(t, src, "a.txt", "two\n", "second")
	tagHash, err := src.CreateAnnotatedTag("v1", first, "tester <tester@example.com>", "release one", false)
	if err != nil {
		t.Fatalf("CreateAnnotatedTag: %v", err)
	}

	path := filepath.Join(t.TempDir(), "tag.bundle")
	info, err := CreateBundle(src, path, []string{"v1"})
	if err != nil {
		t.Fatalf("CreateBundle: %v", err)
	}
	if len(info.Refs) != 1 || info.Refs[0].Name != "refs/tags/v1" {
		t.Fatalf("Refs = %+v, want refs/tags/v1", info.Refs)
	}
	// The table keeps the tag object, not its target commit.
	if info.Refs[0].Hash != tagHash {
		t.Errorf("ref hash = %q, want tag object %q", info.Refs[0].Hash, tagHash)
	}
	// Tag object, first commit, its tree, its blob.
	if info.Objects != 4 {
		t.Errorf("bundled %d objects, want 4", info.Objects)
	}

	fresh := initRepo(t)
	if _, err := Unbundle(fresh, path); err != nil {
		t.Fatalf("Unbundle: %v", err)
	}
	if !fresh.Store.Has(tagHash) || !fresh.Store.Has(first) {
		t.Error("tag closure missing after unbundle")
	}
}

func TestCreateBundle_UnknownRef(t *testing.T) {
	src := initRepo(t)
	commitFile(t, src, "a.txt", "one\n", "first")

	if _, err := CreateBundle(src, filepath.Join(t.TempDir(), "x.bundle"), []string{"nope"}); !errors.Is(err, repo.ErrUnresolvableRef) {
		t.Fatalf("CreateBundle err = %v, want ErrUnresolvableRef", err)
	}
}

func TestCreateBundle_EmptyRepository(t *testing.T) {
	src := initRepo(t)

	if _, err := CreateBundle(src, filepath.Join(t.TempDir(), "x.bundle"), nil); err == nil {
		t.Fatal("bundling an empty repository succeeded")
	}
}

func TestUnbundle_RejectsGarbage(t *testing.T) {
	r := initRepo(t)
	path := filepath.Join(t.TempDir(), "garbage.bundle")
	if err := os.WriteFile(path, []byte("this is not a bundle"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Unbundle(r, path); err == nil {
		t.Fatal("unbundling garbage succeeded")
	}
}

func TestUnbundle_TruncatedStream(t *testing.T) {
	src := initRepo(t)
	commitFile(t, src, "a.txt", "one\n", "first")

	path := filepath.Join(t.TempDir(), "trunc.bundle")
	if _, err := CreateBundle(src, path, nil); err != nil {
		t.Fatalf("CreateBundle: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	if err := os.WriteFile(path, data[:len(data)/2], 0o644); err != nil {
		t.Fatalf("truncate bundle: %v", err)
	}

	fresh := initRepo(t)
	if _, err := Unbundle(fresh, path); err == nil {
		t.Fatal("unbundling a truncated stream succeeded")
	}
}
