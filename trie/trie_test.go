package trie

import (
	"path/filepath"
	"testing"

	"github.com/Jantoko/alephium/kvstore"
	"github.com/Jantoko/alephium/primitives"
)

func openTestTrie(t *testing.T) *Store {
	t.Helper()
	db, err := kvstore.Open(filepath.Join(t.TempDir(), "trie"))
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestTrie(t)
	k1 := primitives.Keccak256([]byte("key-one"))
	k2 := primitives.Keccak256([]byte("key-two"))

	root, err := s.Put(Empty, k1, []byte("value-one"))
	if err != nil {
		t.Fatalf("Put k1: %v", err)
	}
	root, err = s.Put(root, k2, []byte("value-two"))
	if err != nil {
		t.Fatalf("Put k2: %v", err)
	}

	v1, ok, err := s.Get(root, k1)
	if err != nil || !ok {
		t.Fatalf("Get k1: ok=%v err=%v", ok, err)
	}
	if string(v1) != "value-one" {
		t.Errorf("Get k1 = %q, want value-one", v1)
	}

	v2, ok, err := s.Get(root, k2)
	if err != nil || !ok {
		t.Fatalf("Get k2: ok=%v err=%v", ok, err)
	}
	if string(v2) != "value-two" {
		t.Errorf("Get k2 = %q, want value-two", v2)
	}
}

func TestStructuralSharingPreservesOldRoot(t *testing.T) {
	s := openTestTrie(t)
	k1 := primitives.Keccak256([]byte("stable-key"))
	k2 := primitives.Keccak256([]byte("changing-key"))

	oldRoot, err := s.Put(Empty, k1, []byte("v1"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	newRoot, err := s.Put(oldRoot, k2, []byte("v2"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if oldRoot == newRoot {
		t.Fatalf("expected distinct roots after a second Put")
	}

	v, ok, err := s.Get(oldRoot, k1)
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("old root's key lost: ok=%v err=%v v=%q", ok, err, v)
	}
	_, ok, err = s.Get(oldRoot, k2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("old root should not see key written after it was captured")
	}
}

func TestGetMissingKeyReturnsFalse(t *testing.T) {
	s := openTestTrie(t)
	_, ok, err := s.Get(Empty, primitives.Keccak256([]byte("nope")))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected miss on empty trie")
	}
}

func TestPruneRemovesUnreachableNodes(t *testing.T) {
	s := openTestTrie(t)
	k := primitives.Keccak256([]byte("prune-key"))
	root1, err := s.Put(Empty, k, []byte("v1"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	root2, err := s.Put(root1, k, []byte("v2"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := s.Prune(root1, []primitives.Hash{root2}); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	_, ok, err := s.Get(root2, k)
	if err != nil || !ok {
		t.Fatalf("kept root should still resolve: ok=%v err=%v", ok, err)
	}
}
