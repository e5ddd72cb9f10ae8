// Package store is the persistence layer named in §4: an append-only
// block/header store plus a chain-state cursor, grounded on
// blockdag/dagio.go's block-index persistence and dbaccess's
// per-concern accessor pattern (one small file per responsibility rather
// than one big DAO).
package store

import (
	"bytes"
	"encoding/binary"

	"github.com/Jantoko/alephium/blockflow"
	"github.com/Jantoko/alephium/chainindex"
	"github.com/Jantoko/alephium/kvstore"
	"github.com/Jantoko/alephium/primitives"
	"github.com/pkg/errors"
)

var (
	blockBucket      = kvstore.NewBucket(kvstore.CFBlock)
	headerBucket     = kvstore.NewBucket(kvstore.CFHeader)
	heightBucket     = kvstore.NewBucket(kvstore.CFHeight)
	chainStateBucket = kvstore.NewBucket(kvstore.CFChainState)
)

// ChainStore persists blocks, headers, and chain tip state over a
// kvstore.Store. One ChainStore serves every chain in a deployment; keys
// are scoped per chain by the chainindex flat index (§4).
type ChainStore struct {
	db         kvstore.Store
	groupCount int
	numDeps    int
}

// New wraps db as a ChainStore for a deployment with the given group
// count. numDeps is the per-header dependency count (config.NumDepsPerBlock).
func New(db kvstore.Store, groupCount, numDeps int) *ChainStore {
	return &ChainStore{db: db, groupCount: groupCount, numDeps: numDeps}
}

func heightKey(ci chainindex.ChainIndex, height uint64, groupCount int) []byte {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(ci.Flatten(groupCount)))
	binary.BigEndian.PutUint64(buf[4:12], height)
	return buf[:]
}

// PutBlock persists a full block (body + header) and records its height
// index entry. A broker that only tracks ci as headers-only should call
// PutHeader instead (§4, §3 RelatesTo).
func (s *ChainStore) PutBlock(ci chainindex.ChainIndex, height uint64, block *blockflow.Block) error {
	buf := &bytes.Buffer{}
	if err := block.Encode(buf); err != nil {
		return errors.Wrap(err, "store: encoding block")
	}
	hash := block.Hash()
	ops := []kvstore.BatchOp{
		{Key: blockBucket.Key(hash[:]), Value: buf.Bytes()},
		{Key: headerBucket.Key(hash[:]), Value: encodeHeader(&block.Header)},
		{Key: heightBucket.Key(heightKey(ci, height, s.groupCount)), Value: hash[:]},
	}
	if err := s.db.Batch(ops); err != nil {
		return errors.Wrap(err, "store: committing block")
	}
	return nil
}

// PutHeader persists only a block's header, for chains this broker does
// not relate to (§3 RelatesTo, §4).
func (s *ChainStore) PutHeader(ci chainindex.ChainIndex, height uint64, header *blockflow.BlockHeader) error {
	hash := header.Hash()
	ops := []kvstore.BatchOp{
		{Key: headerBucket.Key(hash[:]), Value: encodeHeader(header)},
		{Key: heightBucket.Key(heightKey(ci, height, s.groupCount)), Value: hash[:]},
	}
	if err := s.db.Batch(ops); err != nil {
		return errors.Wrap(err, "store: committing header")
	}
	return nil
}

func encodeHeader(h *blockflow.BlockHeader) []byte {
	buf := &bytes.Buffer{}
	_ = h.Encode(buf)
	return buf.Bytes()
}

// GetBlock returns the full block for hash, or kvstore.ErrNotFound.
func (s *ChainStore) GetBlock(hash primitives.Hash) (*blockflow.Block, error) {
	v, err := s.db.Get(blockBucket.Key(hash[:]))
	if err != nil {
		return nil, err
	}
	block, err := blockflow.DecodeBlock(bytes.NewReader(v), s.numDeps)
	if err != nil {
		return nil, errors.Wrap(err, "store: decoding block")
	}
	return block, nil
}

// GetHeader returns the header for hash, or kvstore.ErrNotFound.
func (s *ChainStore) GetHeader(hash primitives.Hash) (*blockflow.BlockHeader, error) {
	v, err := s.db.Get(headerBucket.Key(hash[:]))
	if err != nil {
		return nil, err
	}
	header, err := blockflow.DecodeBlockHeader(bytes.NewReader(v), s.numDeps)
	if err != nil {
		return nil, errors.Wrap(err, "store: decoding header")
	}
	return header, nil
}

// GetHashAtHeight returns the hash stored at (ci, height), or kvstore.ErrNotFound.
func (s *ChainStore) GetHashAtHeight(ci chainindex.ChainIndex, height uint64) (primitives.Hash, error) {
	v, err := s.db.Get(heightBucket.Key(heightKey(ci, height, s.groupCount)))
	if err != nil {
		return primitives.Hash{}, err
	}
	return primitives.HashFromBytes(v)
}

// ChainState is the persisted tip-set cursor for one chain (§4).
type ChainState struct {
	Tips []primitives.Hash
}

func (cs *ChainState) encode() []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.BigEndian, uint32(len(cs.Tips)))
	for _, h := range cs.Tips {
		buf.Write(h[:])
	}
	return buf.Bytes()
}

func decodeChainState(v []byte) (*ChainState, error) {
	if len(v) < 4 {
		return nil, errors.New("store: truncated chain state")
	}
	count := binary.BigEndian.Uint32(v[:4])
	v = v[4:]
	if len(v) != int(count)*primitives.HashSize {
		return nil, errors.New("store: malformed chain state")
	}
	cs := &ChainState{Tips: make([]primitives.Hash, count)}
	for i := range cs.Tips {
		h, err := primitives.HashFromBytes(v[i*primitives.HashSize : (i+1)*primitives.HashSize])
		if err != nil {
			return nil, err
		}
		cs.Tips[i] = h
	}
	return cs, nil
}

// PutChainState persists ci's current tip set.
func (s *ChainStore) PutChainState(ci chainindex.ChainIndex, cs *ChainState) error {
	key := chainStateBucket.Key(flattenKey(ci, s.groupCount))
	if err := s.db.Put(key, cs.encode()); err != nil {
		return errors.Wrap(err, "store: writing chain state")
	}
	return nil
}

// GetChainState returns ci's persisted tip set, or kvstore.ErrNotFound.
func (s *ChainStore) GetChainState(ci chainindex.ChainIndex) (*ChainState, error) {
	v, err := s.db.Get(chainStateBucket.Key(flattenKey(ci, s.groupCount)))
	if err != nil {
		return nil, err
	}
	return decodeChainState(v)
}

func flattenKey(ci chainindex.ChainIndex, groupCount int) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(ci.Flatten(groupCount)))
	return buf[:]
}

// Close releases the underlying kvstore handle.
func (s *ChainStore) Close() error {
	return s.db.Close()
}
