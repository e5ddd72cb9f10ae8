package store

import (
	"path/filepath"
	"testing"

	"github.com/Jantoko/alephium/blockflow"
	"github.com/Jantoko/alephium/chainindex"
	"github.com/Jantoko/alephium/kvstore"
	"github.com/Jantoko/alephium/primitives"
)

func openTestStore(t *testing.T, groupCount, numDeps int) *ChainStore {
	t.Helper()
	db, err := kvstore.Open(filepath.Join(t.TempDir(), "chainstore"))
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, groupCount, numDeps)
}

func TestPutGetBlockRoundTrip(t *testing.T) {
	s := openTestStore(t, 2, 4)
	ci := chainindex.ChainIndex{From: 0, To: 0}
	block := &blockflow.Block{
		Header: blockflow.BlockHeader{
			BlockDeps:    make(blockflow.BlockDeps, 4),
			TxMerkleRoot: primitives.Keccak256([]byte("tx-root")),
			Target:       primitives.Hash{0xff},
		},
	}
	if err := s.PutBlock(ci, 1, block); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	got, err := s.GetBlock(block.Hash())
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if got.Hash() != block.Hash() {
		t.Fatalf("round-tripped block hash mismatch")
	}

	hash, err := s.GetHashAtHeight(ci, 1)
	if err != nil {
		t.Fatalf("GetHashAtHeight: %v", err)
	}
	if hash != block.Hash() {
		t.Fatalf("height index mismatch")
	}
}

func TestChainStateRoundTrip(t *testing.T) {
	s := openTestStore(t, 2, 4)
	ci := chainindex.ChainIndex{From: 1, To: 0}
	cs := &ChainState{Tips: []primitives.Hash{
		primitives.Keccak256([]byte("a")),
		primitives.Keccak256([]byte("b")),
	}}
	if err := s.PutChainState(ci, cs); err != nil {
		t.Fatalf("PutChainState: %v", err)
	}
	got, err := s.GetChainState(ci)
	if err != nil {
		t.Fatalf("GetChainState: %v", err)
	}
	if len(got.Tips) != 2 || got.Tips[0] != cs.Tips[0] || got.Tips[1] != cs.Tips[1] {
		t.Fatalf("chain state round trip mismatch: %+v", got)
	}
}

func TestGetBlockNotFound(t *testing.T) {
	s := openTestStore(t, 2, 4)
	_, err := s.GetBlock(primitives.Keccak256([]byte("missing")))
	if !kvstore.IsNotFoundError(err) {
		t.Fatalf("GetBlock error = %v, want ErrNotFound", err)
	}
}
