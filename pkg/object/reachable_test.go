package object

import "testing"

func TestReachableSetFollowsCommitGraph(t *testing.T) {
	s := tempStore(t)

	blobHash, err := s.WriteBlob(&Blob{Data: []byte("file content")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	subtreeHash, err := s.WriteTree(&TreeObj{Entries: []TreeEntry{
		{Name: "nested.txt", Mode: TreeModeFile, BlobHash: blobHash},
	}})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	rootTreeHash, err := s.WriteTree(&TreeObj{Entries: []TreeEntry{
		{Name: "dir", IsDir: true, SubtreeHash: subtreeHash},
	}})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	parentHash, err := s.WriteCommit(&CommitObj{
		TreeHash:  rootTreeHash,
		Author:    "Dev <dev@example.com>",
		Timestamp: 1,
		Message:   "root",
	})
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	tipHash, err := s.WriteCommit(&CommitObj{
		TreeHash:  rootTreeHash,
		Parents:   []Hash{parentHash},
		Author:    "Dev <dev@example.com>",
		Timestamp: 2,
		Message:   "tip",
	})
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	tagHash, err := s.WriteTag(&TagObj{
		TargetHash: tipHash,
		Tagger:     "Dev <dev@example.com>",
		Timestamp:  3,
		Message:    "v1",
	})
	if err != nil {
		t.Fatalf("WriteTag: %v", err)
	}

	set, err := s.ReachableSet([]Hash{tagHash})
	if err != nil {
		t.Fatalf("ReachableSet: %v", err)
	}

	for _, h := range []Hash{tagHash, tipHash, parentHash, rootTreeHash, subtreeHash, blobHash} {
		if _, ok := set[h]; !ok {
			t.Errorf("ReachableSet missing %s", h.Short())
		}
	}
	if len(set) != 6 {
		t.Errorf("ReachableSet size: got %d, want 6", len(set))
	}
}

func TestReachableSetIgnoresMissingRoots(t *testing.T) {
	s := tempStore(t)
	set, err := s.ReachableSet([]Hash{
		Hash("0000000000000000000000000000000000000000000000000000000000000000"),
		"",
	})
	if err != nil {
		t.Fatalf("ReachableSet: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("ReachableSet: got %d entries, want 0", len(set))
	}
}
