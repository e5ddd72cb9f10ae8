package miner

import (
	"crypto/rand"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/Jantoko/alephium/blockflow"
	"github.com/Jantoko/alephium/chainindex"
	"github.com/Jantoko/alephium/clock"
	"github.com/Jantoko/alephium/config"
	"github.com/Jantoko/alephium/handlers"
	"github.com/Jantoko/alephium/kvstore"
	"github.com/Jantoko/alephium/logs"
	"github.com/Jantoko/alephium/primitives"
	"github.com/Jantoko/alephium/store"
)

func testLogger() logs.Logger {
	backend := logs.NewBackend([]*logs.BackendWriter{logs.NewAllLevelsBackendWriter(io.Discard)})
	return backend.Logger("TEST")
}

type fixedRng struct{ v uint64 }

func (f fixedRng) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(f.v >> (8 * uint(i%8)))
	}
	return len(p), nil
}
func (f fixedRng) Uint64() (uint64, error) { return f.v, nil }

func mustKeyInGroup(t *testing.T, groupCount int, group chainindex.Group) primitives.PublicKey {
	t.Helper()
	for i := 0; i < 10000; i++ {
		pub, _, err := primitives.GenerateKeyPair(rand.Reader)
		if err != nil {
			t.Fatalf("GenerateKeyPair: %v", err)
		}
		if chainindex.Group(primitives.PublicKeyToGroupIndex(pub, groupCount)) == group {
			return pub
		}
	}
	t.Fatalf("could not find a key in group %d after many tries", group)
	return primitives.PublicKey{}
}

func allOnesHash() primitives.Hash {
	var h primitives.Hash
	for i := range h {
		h[i] = 0xff
	}
	return h
}

func TestFairMinerMinesAcceptedBlock(t *testing.T) {
	cfg := config.NodeConfig{
		GroupCount:            1,
		Broker:                config.BrokerConfig{From: 0, Until: 1},
		MainGroup:             0,
		BlockTargetTime:       time.Second,
		MaxMiningTarget:       allOnesHash(),
		NumZerosAtLeastInHash: 0,
		RetargetWindowSize:    4,
		NonceStep:             1 << 16,
		MaxOrphanBlocks:       16,
		TipsPruneInterval:     100,
		CallGas:               1,
	}
	indices := chainindex.All(cfg.GroupCount)
	genesis := make([]*blockflow.BlockHeader, len(indices))
	for i, ci := range indices {
		genesis[i] = &blockflow.BlockHeader{
			TxMerkleRoot: primitives.Keccak256([]byte("genesis"), []byte{byte(ci.From)}, []byte{byte(ci.To)}),
			Target:       allOnesHash(),
		}
	}
	flowCore, err := blockflow.New(cfg, genesis, nil)
	if err != nil {
		t.Fatalf("blockflow.New: %v", err)
	}
	db, err := kvstore.Open(filepath.Join(t.TempDir(), "miner"))
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	defer db.Close()
	chainStore := store.New(db, cfg.GroupCount, cfg.NumDepsPerBlock())
	flow := handlers.NewFlowHandler(cfg, flowCore, chainStore, nil, testLogger(), clock.NewTestClock(0))
	flow.Start()
	defer flow.Stop()

	pub := mustKeyInGroup(t, cfg.GroupCount, cfg.MainGroup)
	fm := New(cfg, flow, clock.NewTestClock(0), fixedRng{v: 0}, pub)
	fm.Start()
	defer fm.Stop()

	ci := chainindex.ChainIndex{From: 0, To: 0}
	deadline := time.After(2 * time.Second)
	for {
		if tip, err := flowCore.BestTip(ci); err == nil && tip != genesis[0].Hash() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("miner did not find a block within the deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// TestFairMinerStatsCountEveryNonceTried exercises the §4.4/§8 fairness
// property directly: Stats must accumulate on every nonce scanned, not
// just on blocks found, so two chains given equal dispatch opportunity
// report nonce counts within nonceStep of each other even though an
// impossible target means neither ever finds a block. Slices are driven
// synchronously (bypassing the sub-miners' goroutines) to keep the
// round-robin opportunity exactly equal and the assertion deterministic.
func TestFairMinerStatsCountEveryNonceTried(t *testing.T) {
	cfg := config.NodeConfig{
		GroupCount:            2,
		Broker:                config.BrokerConfig{From: 0, Until: 2},
		MainGroup:             0,
		BlockTargetTime:       time.Second,
		MaxMiningTarget:       primitives.Hash{}, // all-zero: no nonce can meet it
		NumZerosAtLeastInHash: 0,
		RetargetWindowSize:    4,
		NonceStep:             50,
		MaxOrphanBlocks:       16,
		TipsPruneInterval:     100,
		CallGas:               1,
	}
	indices := chainindex.All(cfg.GroupCount)
	genesis := make([]*blockflow.BlockHeader, len(indices))
	for i, ci := range indices {
		genesis[i] = &blockflow.BlockHeader{
			TxMerkleRoot: primitives.Keccak256([]byte("genesis"), []byte{byte(ci.From)}, []byte{byte(ci.To)}),
			Target:       primitives.Hash{},
		}
	}
	flowCore, err := blockflow.New(cfg, genesis, nil)
	if err != nil {
		t.Fatalf("blockflow.New: %v", err)
	}
	db, err := kvstore.Open(filepath.Join(t.TempDir(), "miner-fairness"))
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	defer db.Close()
	chainStore := store.New(db, cfg.GroupCount, cfg.NumDepsPerBlock())
	flow := handlers.NewFlowHandler(cfg, flowCore, chainStore, nil, testLogger(), clock.NewTestClock(0))

	pub := mustKeyInGroup(t, cfg.GroupCount, cfg.MainGroup)
	fm := New(cfg, flow, clock.NewTestClock(0), fixedRng{v: 0}, pub)

	const rounds = 3
	for r := 0; r < rounds; r++ {
		for _, sm := range fm.miners {
			if err := sm.mineOneSlice(); err != nil {
				t.Fatalf("mineOneSlice: %v", err)
			}
		}
	}

	snap := fm.Stats().Snapshot()
	want := uint64(rounds) * cfg.NonceStep
	counts := make(map[chainindex.ChainIndex]uint64, len(fm.miners))
	for _, sm := range fm.miners {
		got := snap[sm.ci]
		if got != want {
			t.Fatalf("Stats()[%s] = %d, want %d (every scanned nonce should count, not just blocks found)", sm.ci, got, want)
		}
		counts[sm.ci] = got
	}
	var min, max uint64
	first := true
	for _, c := range counts {
		if first || c < min {
			min = c
		}
		if first || c > max {
			max = c
		}
		first = false
	}
	if max-min > cfg.NonceStep {
		t.Fatalf("miningCount spread %d exceeds nonceStep %d", max-min, cfg.NonceStep)
	}
}
