package blockflow

import (
	"time"

	"github.com/Jantoko/alephium/chainindex"
	"github.com/Jantoko/alephium/config"
	"github.com/Jantoko/alephium/eventbus"
	"github.com/Jantoko/alephium/primitives"
	"github.com/pkg/errors"
)

// BlockAdded is published on the event bus whenever add() accepts a new
// block into the DAG (§6).
type BlockAdded struct {
	ChainIndex chainindex.ChainIndex
	Hash       primitives.Hash
	Weight     uint64
}

// EventName implements eventbus.Event.
func (BlockAdded) EventName() string { return "blockflow.BlockAdded" }

// AddResult reports the outcome of Add.
type AddResult int

const (
	// AddResultAccepted means the block extended the DAG as a new tip.
	AddResultAccepted AddResult = iota
	// AddResultOrphan means a dependency was unknown; the block is buffered.
	AddResultOrphan
	// AddResultDuplicate means the block (by hash) is already known.
	AddResultDuplicate
)

var (
	// ErrUnknownChain is returned for a ChainIndex a deployment doesn't have.
	ErrUnknownChain = errors.New("blockflow: unknown chain index")
	// ErrInvalidPoW is returned when a block's hash doesn't meet its target.
	ErrInvalidPoW = errors.New("blockflow: hash does not meet target")
	// ErrNonMonotonicTimestamp is returned when a block's timestamp doesn't
	// strictly follow its intra-chain parent's (§4.1 invariant (d)).
	ErrNonMonotonicTimestamp = errors.New("blockflow: timestamp not after intra-chain parent")
	// ErrInconsistentDeps is returned when a block's BlockDeps reference two
	// mutually unrelated forks of the same chain (§4.1 invariant (b)).
	ErrInconsistentDeps = errors.New("blockflow: cross-chain deps are inconsistent")
	// ErrWrongDepCount is returned when BlockDeps isn't NumDepsPerBlock long.
	ErrWrongDepCount = errors.New("blockflow: wrong number of block dependencies")
)

// BlockFlow is the G² grid of per-chain DAGs plus the bounded orphan
// buffer, the single collaborator protocol/manager.go-style component every
// handler in the mesh calls into (§4.1, §5). Reads of chain state take each
// Chain's own lock; Add also updates the orphan buffer, which has no lock,
// so Add is not safe to call from several goroutines at once. The flow
// handler is its sole caller (§5).
type BlockFlow struct {
	cfg    config.NodeConfig
	chains []*Chain // indexed by ChainIndex.Flatten(cfg.GroupCount)
	bus    *eventbus.Bus

	orphans *orphanBuffer
}

// New builds a BlockFlow over one genesis header per chain, in the
// canonical order returned by chainindex.All.
func New(cfg config.NodeConfig, genesisHeaders []*BlockHeader, bus *eventbus.Bus) (*BlockFlow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "blockflow: invalid config")
	}
	indices := chainindex.All(cfg.GroupCount)
	if len(genesisHeaders) != len(indices) {
		return nil, errors.Errorf("blockflow: need %d genesis headers, got %d", len(indices), len(genesisHeaders))
	}
	chains := make([]*Chain, len(indices))
	for i, ci := range indices {
		chains[i] = NewChain(ci, genesisHeaders[i])
	}
	return &BlockFlow{
		cfg:     cfg,
		chains:  chains,
		bus:     bus,
		orphans: newOrphanBuffer(cfg.MaxOrphanBlocks),
	}, nil
}

// chain returns the Chain for ci, or nil if out of range.
func (bf *BlockFlow) chain(ci chainindex.ChainIndex) *Chain {
	flat := ci.Flatten(bf.cfg.GroupCount)
	if flat < 0 || flat >= len(bf.chains) {
		return nil
	}
	return bf.chains[flat]
}

// Weight returns the weight of hash on chain ci (§4.1 invariant (a)).
func (bf *BlockFlow) Weight(ci chainindex.ChainIndex, hash primitives.Hash) (uint64, error) {
	c := bf.chain(ci)
	if c == nil {
		return 0, ErrUnknownChain
	}
	w, ok := c.Weight(hash)
	if !ok {
		return 0, errors.Errorf("blockflow: unknown hash %s on chain %s", hash, ci)
	}
	return w, nil
}

// resolve finds the node for hash on any chain, returning nil if unknown.
func (bf *BlockFlow) resolve(hash primitives.Hash) *blockNode {
	for _, c := range bf.chains {
		if n := c.getNode(hash); n != nil {
			return n
		}
	}
	return nil
}

// GetBestDeps computes the BlockDeps a new block mined on ci right now
// should carry: the best (highest-weight, lexicographically-tie-broken)
// tip of every other chain, each checked for cross-chain consistency
// against the deps already chosen, falling back to a lower-weight or
// genesis tip when the current best conflicts (§4.1 invariant (b)).
func (bf *BlockFlow) GetBestDeps(ci chainindex.ChainIndex) (BlockDeps, error) {
	own := bf.chain(ci)
	if own == nil {
		return nil, ErrUnknownChain
	}
	indices := chainindex.All(bf.cfg.GroupCount)
	chosen := make([]*blockNode, 0, len(indices))
	for _, other := range indices {
		if other == ci {
			continue
		}
		c := bf.chain(other)
		candidates := c.orderedTips()
		picked := pickConsistent(candidates, chosen)
		if picked == nil {
			return nil, errors.Errorf("blockflow: no consistent tip found for chain %s", other)
		}
		chosen = append(chosen, picked)
	}
	intraCandidates := own.orderedTips()
	intraTip := pickConsistent(intraCandidates, chosen)
	if intraTip == nil {
		return nil, errors.Errorf("blockflow: no consistent intra-chain tip for chain %s", ci)
	}
	deps := make(BlockDeps, 0, bf.cfg.NumDepsPerBlock())
	for _, n := range chosen {
		deps = append(deps, n.hash)
	}
	deps = append(deps, intraTip.hash)
	return deps, nil
}

// pickConsistent returns the best candidate (candidates is already ordered
// best-first) that is pairwise-consistent with everything in chosen,
// falling back down the list.
func pickConsistent(candidates []*blockNode, chosen []*blockNode) *blockNode {
	for _, cand := range candidates {
		if consistentWithAll(cand, chosen) {
			return cand
		}
	}
	return nil
}

// consistentWithAll checks cand against every already-chosen node: for any
// pair on the same chain reachable from either side's ancestor set, one
// must be an ancestor-or-self of the other.
func consistentWithAll(cand *blockNode, chosen []*blockNode) bool {
	for _, other := range chosen {
		if !consistentPair(cand, other) {
			return false
		}
	}
	return true
}

// consistentPair reports whether a and b's views of the DAG agree: for
// every chain both have an opinion about (directly or through ancestry),
// the two opinions must lie on the same fork line.
func consistentPair(a, b *blockNode) bool {
	if a.hash == b.hash {
		return true
	}
	if a.chainIndex == b.chainIndex {
		return isAncestorOf(a, b) || isAncestorOf(b, a)
	}
	// Check whether a's ancestry holds an opinion about b's chain (or
	// vice versa) that conflicts with b (or a) directly.
	if anc, ok := a.ancestorSet[b.hash]; ok {
		_ = anc
		return true
	}
	if anc, ok := b.ancestorSet[a.hash]; ok {
		_ = anc
		return true
	}
	for _, anc := range a.ancestorSet {
		if anc.chainIndex == b.chainIndex {
			if !(isAncestorOf(anc, b) || isAncestorOf(b, anc)) {
				return false
			}
		}
	}
	for _, anc := range b.ancestorSet {
		if anc.chainIndex == a.chainIndex {
			if !(isAncestorOf(anc, a) || isAncestorOf(a, anc)) {
				return false
			}
		}
	}
	return true
}

// Add validates and inserts block into chain ci. Unknown dependencies
// buffer the block as an orphan instead of failing outright (§4.1).
func (bf *BlockFlow) Add(ci chainindex.ChainIndex, block *Block) (AddResult, error) {
	c := bf.chain(ci)
	if c == nil {
		return 0, ErrUnknownChain
	}
	hash := block.Hash()
	if c.Has(hash) {
		return AddResultDuplicate, nil
	}
	if len(block.Header.BlockDeps) != bf.cfg.NumDepsPerBlock() {
		return 0, ErrWrongDepCount
	}
	if !MeetsTarget(hash, block.Header.Target) {
		return 0, ErrInvalidPoW
	}

	depNodes := make([]*blockNode, len(block.Header.BlockDeps))
	for i, h := range block.Header.BlockDeps {
		n := bf.resolve(h)
		if n == nil {
			bf.orphans.add(ci, block)
			return AddResultOrphan, nil
		}
		depNodes[i] = n
	}
	intraParent := depNodes[len(depNodes)-1]
	if intraParent.chainIndex != ci {
		return 0, errors.New("blockflow: intra-chain parent dep is on the wrong chain")
	}
	if !intraParent.isGenesis {
		parentHeader := intraParent.header
		if !afterTimestamp(block.Header.Timestamp, parentHeader.Timestamp) {
			return 0, ErrNonMonotonicTimestamp
		}
	}
	for i := 0; i < len(depNodes)-1; i++ {
		if !consistentWithAll(depNodes[i], depNodes[:i]) {
			return 0, ErrInconsistentDeps
		}
	}

	node := newNode(ci, &block.Header, intraParent, depNodes)
	c.addNode(node)

	if bf.bus != nil {
		bf.bus.Publish(BlockAdded{ChainIndex: ci, Hash: hash, Weight: node.weight})
	}
	bf.orphans.resolve(hash, bf)
	return AddResultAccepted, nil
}

// PruneTips runs tip-set pruning across every chain: dominated tips (not
// the chain's current best) older than cfg.TipsPruneDuration() relative to
// nowMillis are discarded from the tip set, so getBestDeps stops offering
// them as candidates (§4.1). Returns the total number of tips discarded.
func (bf *BlockFlow) PruneTips(nowMillis int64) int {
	maxAgeMillis := bf.cfg.TipsPruneDuration().Milliseconds()
	total := 0
	for _, c := range bf.chains {
		total += c.pruneTips(nowMillis, maxAgeMillis)
	}
	return total
}

// MeetsTarget reports whether hash, interpreted as a big-endian integer,
// is numerically strictly less than target (§4.3).
func MeetsTarget(hash, target primitives.Hash) bool {
	for i := 0; i < primitives.HashSize; i++ {
		if hash[i] < target[i] {
			return true
		}
		if hash[i] > target[i] {
			return false
		}
	}
	return false
}

// afterTimestamp reports whether t strictly follows parent.
func afterTimestamp(t, parent Timestamp) bool {
	if t.Seconds != parent.Seconds {
		return t.Seconds > parent.Seconds
	}
	return t.Nanos > parent.Nanos
}

// GroupCount returns the node's configured group count, the dimension of
// the G² chain grid.
func (bf *BlockFlow) GroupCount() int { return bf.cfg.GroupCount }

// Has reports whether hash is known on chain ci.
func (bf *BlockFlow) Has(ci chainindex.ChainIndex, hash primitives.Hash) (bool, error) {
	c := bf.chain(ci)
	if c == nil {
		return false, ErrUnknownChain
	}
	return c.Has(hash), nil
}

// Height returns hash's intra-chain height on ci.
func (bf *BlockFlow) Height(ci chainindex.ChainIndex, hash primitives.Hash) (uint64, error) {
	c := bf.chain(ci)
	if c == nil {
		return 0, ErrUnknownChain
	}
	h, ok := c.height(hash)
	if !ok {
		return 0, errors.Errorf("blockflow: unknown hash %s on chain %s", hash, ci)
	}
	return h, nil
}

// BestTip returns the current best tip hash of ci.
func (bf *BlockFlow) BestTip(ci chainindex.ChainIndex) (primitives.Hash, error) {
	c := bf.chain(ci)
	if c == nil {
		return primitives.ZeroHash, ErrUnknownChain
	}
	n := c.BestTip()
	if n == nil {
		return primitives.ZeroHash, errors.New("blockflow: chain has no tips")
	}
	return n.hash, nil
}

// GetSyncLocators builds one exponential-step locator per chain, walking
// back from each chain's best tip toward genesis doubling the stride each
// step, grounded on the teacher's syncmanager.createBlockLocator (§4.2).
func (bf *BlockFlow) GetSyncLocators() [][]primitives.Hash {
	out := make([][]primitives.Hash, len(bf.chains))
	for i, c := range bf.chains {
		tip := c.BestTip()
		if tip == nil {
			out[i] = nil
			continue
		}
		locator := []primitives.Hash{tip.hash}
		cur := tip
		step := uint64(1)
		for !cur.isGenesis {
			var target uint64
			if cur.intraHeight < step {
				target = 0
			} else {
				target = cur.intraHeight - step
			}
			cur = walkToHeight(cur, target)
			locator = append(locator, cur.hash)
			if cur.isGenesis {
				break
			}
			step *= 2
		}
		out[i] = locator
	}
	return out
}

// walkToHeight follows intra-chain parent pointers from n down to height,
// stopping early at genesis.
func walkToHeight(n *blockNode, height uint64) *blockNode {
	for !n.isGenesis && n.intraHeight > height {
		n = n.intraParent
	}
	return n
}

// GetSyncInventories returns, for each chain, the hashes on the local best
// chain from the tip down to, but not including, the first hash of
// locators[i] met on that walk, oldest first - the blocks a peer with that
// locator is missing (§4.2). When the walk meets no locator hash, the list
// runs down to and includes genesis.
func (bf *BlockFlow) GetSyncInventories(locators [][]primitives.Hash) [][]primitives.Hash {
	out := make([][]primitives.Hash, len(bf.chains))
	for i, c := range bf.chains {
		tip := c.BestTip()
		if tip == nil {
			continue
		}
		var known *blockNode
		if i < len(locators) {
			for _, h := range locators[i] {
				if n := c.getNode(h); n != nil {
					known = n
					break
				}
			}
		}
		var chain []primitives.Hash
		cur := tip
		for cur != nil && (known == nil || cur.hash != known.hash) {
			chain = append([]primitives.Hash{cur.hash}, chain...)
			if cur.isGenesis {
				break
			}
			cur = cur.intraParent
		}
		out[i] = chain
	}
	return out
}

// orphanBuffer is a bounded FIFO-evicting holding pen for blocks whose
// dependencies aren't known yet, ported from blockdag's
// orphans/prevOrphans/newestOrphan trio (§4.1).
type orphanBuffer struct {
	capacity int
	order    []primitives.Hash
	blocks   map[primitives.Hash]orphanEntry
}

type orphanEntry struct {
	chainIndex chainindex.ChainIndex
	block      *Block
	addedAt    time.Time
}

func newOrphanBuffer(capacity int) *orphanBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &orphanBuffer{
		capacity: capacity,
		blocks:   map[primitives.Hash]orphanEntry{},
	}
}

func (o *orphanBuffer) add(ci chainindex.ChainIndex, block *Block) {
	hash := block.Hash()
	if _, exists := o.blocks[hash]; exists {
		return
	}
	if len(o.order) >= o.capacity {
		oldest := o.order[0]
		o.order = o.order[1:]
		delete(o.blocks, oldest)
	}
	o.order = append(o.order, hash)
	o.blocks[hash] = orphanEntry{chainIndex: ci, block: block}
}

// resolve retries every buffered orphan once newHash becomes known,
// recursively re-adding any that now succeed (their own acceptance may
// unblock further orphans).
func (o *orphanBuffer) resolve(newHash primitives.Hash, bf *BlockFlow) {
	for {
		progressed := false
		for _, hash := range append([]primitives.Hash{}, o.order...) {
			entry, ok := o.blocks[hash]
			if !ok {
				continue
			}
			stillMissing := false
			for _, dep := range entry.block.Header.BlockDeps {
				if bf.resolve(dep) == nil {
					stillMissing = true
					break
				}
			}
			if stillMissing {
				continue
			}
			o.remove(hash)
			result, err := bf.Add(entry.chainIndex, entry.block)
			if err == nil && result == AddResultAccepted {
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

func (o *orphanBuffer) remove(hash primitives.Hash) {
	delete(o.blocks, hash)
	for i, h := range o.order {
		if h == hash {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}
