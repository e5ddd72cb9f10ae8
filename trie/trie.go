// Package trie implements the content-addressed Sparse Merkle Trie node
// store named in §4: Get/Put over a kvstore-backed node table with
// structural sharing (an update only rewrites the nodes on its path to the
// root, every sibling subtree is reused by reference) and an explicit
// Prune reachability sweep per Design Notes §9's "explicit garbage
// epochs" note.
package trie

import (
	"github.com/Jantoko/alephium/kvstore"
	"github.com/Jantoko/alephium/primitives"
	"github.com/pkg/errors"
)

var trieBucket = kvstore.NewBucket(kvstore.CFTrie)

// Depth is the number of bits consumed from a key to reach a leaf: one bit
// per level of a binary Merkle trie over a 32-byte key space.
const Depth = primitives.HashSize * 8

// node is the wire/storage representation of one trie node.
type node struct {
	isLeaf bool
	value  []byte          // leaf only
	left   primitives.Hash  // internal only
	right  primitives.Hash  // internal only
}

func (n *node) encode() []byte {
	if n.isLeaf {
		return append([]byte{1}, n.value...)
	}
	buf := make([]byte, 1+2*primitives.HashSize)
	buf[0] = 0
	copy(buf[1:], n.left[:])
	copy(buf[1+primitives.HashSize:], n.right[:])
	return buf
}

func decodeNode(b []byte) (*node, error) {
	if len(b) == 0 {
		return nil, errors.New("trie: empty node encoding")
	}
	if b[0] == 1 {
		return &node{isLeaf: true, value: append([]byte{}, b[1:]...)}, nil
	}
	if len(b) != 1+2*primitives.HashSize {
		return nil, errors.New("trie: malformed internal node")
	}
	left, err := primitives.HashFromBytes(b[1 : 1+primitives.HashSize])
	if err != nil {
		return nil, err
	}
	right, err := primitives.HashFromBytes(b[1+primitives.HashSize:])
	if err != nil {
		return nil, err
	}
	return &node{left: left, right: right}, nil
}

func hashNode(n *node) primitives.Hash {
	return primitives.Blake2b(n.encode())
}

// Store is a content-addressed trie node table over a kvstore.Store.
type Store struct {
	db kvstore.Store
}

// New wraps db as a trie Store.
func New(db kvstore.Store) *Store {
	return &Store{db: db}
}

// Empty is the canonical empty-subtree root, used as the initial root of a
// freshly created trie.
var Empty = primitives.ZeroHash

func (s *Store) load(hash primitives.Hash) (*node, error) {
	if hash == Empty {
		return nil, nil
	}
	v, err := s.db.Get(trieBucket.Key(hash[:]))
	if err != nil {
		return nil, err
	}
	return decodeNode(v)
}

func (s *Store) store(n *node) (primitives.Hash, error) {
	h := hashNode(n)
	if err := s.db.Put(trieBucket.Key(h[:]), n.encode()); err != nil {
		return primitives.Hash{}, errors.Wrap(err, "trie: writing node")
	}
	return h, nil
}

// Get looks up key under root, returning (value, true) if present.
func (s *Store) Get(root primitives.Hash, key primitives.Hash) ([]byte, bool, error) {
	cur := root
	for depth := 0; depth <= Depth; depth++ {
		n, err := s.load(cur)
		if err != nil {
			if kvstore.IsNotFoundError(err) {
				return nil, false, nil
			}
			return nil, false, err
		}
		if n == nil {
			return nil, false, nil
		}
		if n.isLeaf {
			return n.value, true, nil
		}
		if depth == Depth {
			break
		}
		if bitAt(key, depth) == 0 {
			cur = n.left
		} else {
			cur = n.right
		}
	}
	// Reached full depth without a leaf: treat as absent.
	return nil, false, nil
}

// Put writes key -> value under root, returning the new root. The old root
// and every subtree unaffected by this key remain untouched and reachable
// (structural sharing): only the O(Depth) nodes on the path to key are
// rewritten.
func (s *Store) Put(root primitives.Hash, key primitives.Hash, value []byte) (primitives.Hash, error) {
	return s.putAt(root, key, value, 0)
}

func (s *Store) putAt(cur primitives.Hash, key primitives.Hash, value []byte, depth int) (primitives.Hash, error) {
	if depth == Depth {
		leaf := &node{isLeaf: true, value: value}
		return s.store(leaf)
	}
	n, err := s.load(cur)
	if err != nil && !kvstore.IsNotFoundError(err) {
		return primitives.Hash{}, err
	}
	if n == nil {
		// Empty subtree: build a fresh path straight to a leaf.
		if depth == Depth-1 {
			leaf := &node{isLeaf: true, value: value}
			leafHash, err := s.store(leaf)
			if err != nil {
				return primitives.Hash{}, err
			}
			return s.internalFor(key, depth, leafHash)
		}
		childRoot, err := s.putAt(Empty, key, value, depth+1)
		if err != nil {
			return primitives.Hash{}, err
		}
		return s.internalFor(key, depth, childRoot)
	}
	if n.isLeaf {
		// Overwrite in place: this key already terminates here.
		leaf := &node{isLeaf: true, value: value}
		return s.store(leaf)
	}
	left, right := n.left, n.right
	if bitAt(key, depth) == 0 {
		newLeft, err := s.putAt(left, key, value, depth+1)
		if err != nil {
			return primitives.Hash{}, err
		}
		left = newLeft
	} else {
		newRight, err := s.putAt(right, key, value, depth+1)
		if err != nil {
			return primitives.Hash{}, err
		}
		right = newRight
	}
	return s.store(&node{left: left, right: right})
}

// internalFor builds the single internal node at depth whose child on
// key's bit is childRoot and whose other child is empty.
func (s *Store) internalFor(key primitives.Hash, depth int, childRoot primitives.Hash) (primitives.Hash, error) {
	n := &node{}
	if bitAt(key, depth) == 0 {
		n.left, n.right = childRoot, Empty
	} else {
		n.left, n.right = Empty, childRoot
	}
	return s.store(n)
}

func bitAt(key primitives.Hash, depth int) byte {
	byteIdx := depth / 8
	bitIdx := 7 - uint(depth%8)
	return (key[byteIdx] >> bitIdx) & 1
}

// Prune removes every node reachable from root that is not also reachable
// from any root in keep, per Design Notes §9's explicit-garbage-epoch
// model: pruning is never implicit or automatic, a caller decides which
// roots are still live and asks for the rest back.
func (s *Store) Prune(root primitives.Hash, keep []primitives.Hash) error {
	live := map[primitives.Hash]struct{}{}
	for _, k := range keep {
		if err := s.collect(k, live); err != nil {
			return err
		}
	}
	doomed := map[primitives.Hash]struct{}{}
	if err := s.collectInto(root, live, doomed); err != nil {
		return err
	}
	var ops []kvstore.BatchOp
	for h := range doomed {
		hc := h
		ops = append(ops, kvstore.BatchOp{Key: trieBucket.Key(hc[:]), Delete: true})
	}
	if len(ops) == 0 {
		return nil
	}
	return s.db.Batch(ops)
}

func (s *Store) collect(root primitives.Hash, out map[primitives.Hash]struct{}) error {
	return s.collectInto(root, nil, out)
}

// collectInto walks root's reachable node set, skipping anything already
// in skip (a live set), and adding everything else to out.
func (s *Store) collectInto(root primitives.Hash, skip, out map[primitives.Hash]struct{}) error {
	if root == Empty {
		return nil
	}
	if _, already := out[root]; already {
		return nil
	}
	if skip != nil {
		if _, isLive := skip[root]; isLive {
			return nil
		}
	}
	n, err := s.load(root)
	if err != nil {
		if kvstore.IsNotFoundError(err) {
			return nil
		}
		return err
	}
	out[root] = struct{}{}
	if n == nil || n.isLeaf {
		return nil
	}
	if err := s.collectInto(n.left, skip, out); err != nil {
		return err
	}
	return s.collectInto(n.right, skip, out)
}
