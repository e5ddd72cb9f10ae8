package kvstore

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestBucketKeyPrefixesWithColumnFamily(t *testing.T) {
	b := NewBucket(CFBlock)
	k := b.Key([]byte("abc"))
	if k[0] != byte(CFBlock) {
		t.Fatalf("expected key to start with the column family byte %d, got %d", CFBlock, k[0])
	}
	if !bytes.Equal(k[1:], []byte("abc")) {
		t.Fatalf("expected the rest of the key to be unchanged, got %q", k[1:])
	}
}

func TestLevelStorePutGetDelete(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Fatalf("Get returned %q, want %q", got, "v")
	}

	if err := store.Delete([]byte("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get([]byte("k")); !IsNotFoundError(err) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLevelStoreGetMissingKeyIsNotFound(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if _, err := store.Get([]byte("missing")); !IsNotFoundError(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLevelStoreBatchIsAtomicOnSuccess(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Put([]byte("a"), []byte("old")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	err = store.Batch([]BatchOp{
		{Key: []byte("a"), Value: []byte("new")},
		{Key: []byte("b"), Value: []byte("fresh")},
	})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	for k, want := range map[string]string{"a": "new", "b": "fresh"} {
		got, err := store.Get([]byte(k))
		if err != nil {
			t.Fatalf("Get(%q): %v", k, err)
		}
		if string(got) != want {
			t.Fatalf("Get(%q) = %q, want %q", k, got, want)
		}
	}
}
