// Package miner implements the fair miner named in §4.4: one coordinator
// that runs one sub-miner per chain a node's main group originates,
// partitioning the nonce space between them so no single chain starves
// the others of hashpower. Grounded on blockdag/mining.go's
// BlockForMining/NextCoinbaseFromAddress for template construction and on
// the teacher's MedianTimeSource/Clock use for block timestamps.
package miner

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Jantoko/alephium/blockflow"
	"github.com/Jantoko/alephium/chainindex"
	"github.com/Jantoko/alephium/clock"
	"github.com/Jantoko/alephium/config"
	"github.com/Jantoko/alephium/handlers"
	"github.com/Jantoko/alephium/logger"
	"github.com/Jantoko/alephium/logs"
	"github.com/Jantoko/alephium/primitives"
	"github.com/Jantoko/alephium/rng"
	"github.com/pkg/errors"
)

// Template is a block ready for nonce search: every field but the nonce
// is already fixed.
type Template struct {
	ChainIndex chainindex.ChainIndex
	Header     blockflow.BlockHeader
	Block      *blockflow.Block
}

// BuildTemplate fetches the current best deps and retargeted difficulty
// for ci and assembles a Template with a coinbase-only body. Callers that
// want to include pending transactions should append to the returned
// Template.Block.Transactions before mining it.
func BuildTemplate(flow *handlers.FlowHandler, cfg config.NodeConfig, ci chainindex.ChainIndex, clk clock.Clock, coinbase *blockflow.Transaction) (*Template, error) {
	deps, err := flow.GetBestDeps(ci)
	if err != nil {
		return nil, errors.Wrap(err, "miner: building deps")
	}
	target, err := flow.NextTarget(ci)
	if err != nil {
		return nil, errors.Wrap(err, "miner: computing target")
	}
	txs := []*blockflow.Transaction{}
	if coinbase != nil {
		txs = append(txs, coinbase)
	}
	ms := clk.NowMillis()
	header := blockflow.BlockHeader{
		BlockDeps:    deps,
		TxMerkleRoot: blockflow.TxMerkleRoot(txs),
		Timestamp:    blockflow.Timestamp{Seconds: ms / 1000, Nanos: (ms % 1000) * 1_000_000},
		Target:       target,
	}
	return &Template{
		ChainIndex: ci,
		Header:     header,
		Block:      &blockflow.Block{Header: header, Transactions: txs},
	}, nil
}

// CoinbaseFor builds a single-output coinbase transaction paying pub's
// group, the way blockdag.NextCoinbaseFromAddress builds the teacher's
// reward transaction, simplified to this spec's TxOutput shape (§4.4).
func CoinbaseFor(pub primitives.PublicKey, amount uint64) *blockflow.Transaction {
	return &blockflow.Transaction{
		Unsigned: blockflow.UnsignedTx{
			Outputs: []blockflow.TxOutput{{Amount: amount, LockupScript: pub[:]}},
		},
	}
}

// Stats reports how many nonces a FairMiner has tried per target chain —
// the fairness bookkeeping named in §4.4: the testable property
// |miningCount(i) - miningCount(j)| <= nonceStep is about nonce-scan
// opportunity, not about which chain happened to win a block through PoW
// luck, so every nonce scanned counts here, whether or not it produced a
// valid block.
type Stats struct {
	mu     sync.Mutex
	nonces map[chainindex.ChainIndex]uint64
}

func newStats() *Stats { return &Stats{nonces: map[chainindex.ChainIndex]uint64{}} }

func (s *Stats) addTried(ci chainindex.ChainIndex, n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[ci] += n
}

// Snapshot returns a copy of the per-chain nonces-tried counts.
func (s *Stats) Snapshot() map[chainindex.ChainIndex]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[chainindex.ChainIndex]uint64, len(s.nonces))
	for k, v := range s.nonces {
		out[k] = v
	}
	return out
}

// FairMiner runs one subMiner per chain originating from cfg.MainGroup,
// round-robining hashpower across them by giving each an equal nonce-step
// budget per round rather than letting one chain's subMiner run
// unbounded while others starve (§4.4).
type FairMiner struct {
	cfg   config.NodeConfig
	flow  *handlers.FlowHandler
	clk   clock.Clock
	rnd   rng.Rng
	pub   primitives.PublicKey
	log   logs.Logger
	stats *Stats

	miners  []*subMiner
	wg      sync.WaitGroup
	running int32
}

// New builds a FairMiner paying rewards to pub, which must belong to
// cfg.MainGroup — enforced here the way dagconfig.mustRegister panics on
// invalid network parameters, since a misconfigured payout address would
// silently misdirect every block reward.
func New(cfg config.NodeConfig, flow *handlers.FlowHandler, clk clock.Clock, rnd rng.Rng, pub primitives.PublicKey) *FairMiner {
	if g := primitives.PublicKeyToGroupIndex(pub, cfg.GroupCount); chainindex.Group(g) != cfg.MainGroup {
		panic(errors.Errorf("miner: payout key belongs to group %d, node's main group is %d", g, cfg.MainGroup))
	}
	fm := &FairMiner{
		cfg:   cfg,
		flow:  flow,
		clk:   clk,
		rnd:   rnd,
		pub:   pub,
		log:   logger.Subsystem("MINR"),
		stats: newStats(),
	}
	for to := 0; to < cfg.GroupCount; to++ {
		ci := chainindex.ChainIndex{From: cfg.MainGroup, To: chainindex.Group(to)}
		fm.miners = append(fm.miners, newSubMiner(fm, ci))
	}
	return fm
}

// Stats returns the coordinator's fairness bookkeeping.
func (fm *FairMiner) Stats() *Stats { return fm.stats }

// Start launches every sub-miner's goroutine.
func (fm *FairMiner) Start() {
	if !atomic.CompareAndSwapInt32(&fm.running, 0, 1) {
		return
	}
	for _, sm := range fm.miners {
		fm.wg.Add(1)
		go func(sm *subMiner) {
			defer fm.wg.Done()
			sm.run()
		}(sm)
	}
}

// Stop signals every sub-miner to exit and waits for them to finish their
// current nonce slice.
func (fm *FairMiner) Stop() {
	if !atomic.CompareAndSwapInt32(&fm.running, 1, 0) {
		return
	}
	for _, sm := range fm.miners {
		close(sm.stop)
	}
	fm.wg.Wait()
	for _, sm := range fm.miners {
		sm.stop = make(chan struct{})
	}
}

// subMiner scans a bounded nonce range against one chain's current
// template, reporting back to the coordinator between slices so no chain
// monopolizes CPU (§4.4).
type subMiner struct {
	fm *FairMiner
	ci chainindex.ChainIndex

	stop chan struct{}
}

func newSubMiner(fm *FairMiner, ci chainindex.ChainIndex) *subMiner {
	return &subMiner{fm: fm, ci: ci, stop: make(chan struct{})}
}

func (sm *subMiner) run() {
	for {
		select {
		case <-sm.stop:
			return
		default:
		}
		if err := sm.mineOneSlice(); err != nil {
			sm.fm.log.Errorf("mining %s: %v", sm.ci, err)
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// mineOneSlice builds a fresh template and scans up to cfg.NonceStep
// nonces before returning control to run(), so every chain gets an equal
// slice before any one of them gets another. It returns early once a nonce
// meets the target or the miner is stopped.
func (sm *subMiner) mineOneSlice() error {
	coinbase := CoinbaseFor(sm.fm.pub, 1)
	tmpl, err := BuildTemplate(sm.fm.flow, sm.fm.cfg, sm.ci, sm.fm.clk, coinbase)
	if err != nil {
		return err
	}
	start, err := sm.fm.rnd.Uint64()
	if err != nil {
		return errors.Wrap(err, "miner: drawing nonce start")
	}
	header := tmpl.Header
	for i := uint64(0); i < sm.fm.cfg.NonceStep; i++ {
		select {
		case <-sm.stop:
			return nil
		default:
		}
		nonceVal := start + i
		var nonce [32]byte
		for b := 0; b < 8; b++ {
			nonce[31-b] = byte(nonceVal >> (8 * b))
		}
		header.Nonce = nonce
		hash := header.Hash()
		sm.fm.stats.addTried(sm.ci, 1)
		if blockflow.MeetsTarget(hash, header.Target) {
			block := &blockflow.Block{Header: header, Transactions: tmpl.Block.Transactions}
			result, err := sm.fm.flow.AddBlock(sm.ci, block)
			if err != nil {
				return err
			}
			if result == blockflow.AddResultAccepted {
				sm.fm.log.Infof("mined block %s on %s", block.Hash(), sm.ci)
			}
			return nil
		}
	}
	return nil
}
