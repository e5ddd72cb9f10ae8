// Package kvstore is the default implementation of §6's KVStore
// collaborator: get/put/delete/batch over a single goleveldb handle, with
// column families simulated as single-byte key prefixes the way the
// RocksDB layout's postfix scheme is described in §6. Core packages depend
// only on the Store interface; this package is the one place goleveldb is
// imported, mirroring how the teacher's dbaccess package is the sole
// consumer of database2's driver.
package kvstore

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
)

// ColumnFamily is a single-byte key prefix standing in for a RocksDB
// column family (§6: All, Block, Header, Trie, Log, PendingTx, ReadyTx,
// Broker).
type ColumnFamily byte

// The column families the core persists state under (§6).
const (
	CFAll ColumnFamily = iota
	CFBlock
	CFHeader
	CFTrie
	CFLog
	CFPendingTx
	CFReadyTx
	CFBroker
	CFHeight
	CFChainState
)

// Bucket scopes keys to one column family, mirroring the teacher's
// database2.MakeBucket/Key pattern.
type Bucket struct {
	cf ColumnFamily
}

// NewBucket returns a Bucket for the given column family.
func NewBucket(cf ColumnFamily) Bucket {
	return Bucket{cf: cf}
}

// Key prefixes k with the bucket's column family byte.
func (b Bucket) Key(k []byte) []byte {
	out := make([]byte, 1+len(k))
	out[0] = byte(b.cf)
	copy(out[1:], k)
	return out
}

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kvstore: key not found")

// IsNotFoundError reports whether err wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// BatchOp is one write in an atomic Batch.
type BatchOp struct {
	Key    []byte
	Value  []byte // ignored when Delete is set
	Delete bool
}

// Store is the KVStore collaborator interface named in §6.
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Batch(ops []BatchOp) error
	Close() error
}

// LevelStore is the default Store, backed by goleveldb.
type LevelStore struct {
	db *leveldb.DB
}

// Open opens (creating if necessary) a goleveldb database at path.
func Open(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening kvstore at %s", path)
	}
	return &LevelStore{db: db}, nil
}

// Get returns the value stored at key, or ErrNotFound.
func (s *LevelStore) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, ldberrors.ErrNotFound) {
			return nil, errors.WithStack(ErrNotFound)
		}
		return nil, errors.Wrap(err, "kvstore get")
	}
	return v, nil
}

// Put writes key -> value.
func (s *LevelStore) Put(key, value []byte) error {
	if err := s.db.Put(key, value, nil); err != nil {
		return errors.Wrap(err, "kvstore put")
	}
	return nil
}

// Delete removes key, if present.
func (s *LevelStore) Delete(key []byte) error {
	if err := s.db.Delete(key, nil); err != nil {
		return errors.Wrap(err, "kvstore delete")
	}
	return nil
}

// Batch commits every op atomically. Partial failure aborts the whole
// batch and leaves the store untouched (§5).
func (s *LevelStore) Batch(ops []BatchOp) error {
	batch := new(leveldb.Batch)
	for _, op := range ops {
		if op.Delete {
			batch.Delete(op.Key)
		} else {
			batch.Put(op.Key, op.Value)
		}
	}
	if err := s.db.Write(batch, nil); err != nil {
		return errors.Wrap(err, "kvstore batch commit")
	}
	return nil
}

// Close releases the underlying goleveldb handle.
func (s *LevelStore) Close() error {
	return s.db.Close()
}
