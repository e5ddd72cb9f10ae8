package blockflow

import (
	"sync"

	"github.com/Jantoko/alephium/chainindex"
	"github.com/Jantoko/alephium/primitives"
)

// blockNode is the in-memory index entry for one block on one chain,
// mirroring blockdag's blockNode/index split: the header lives here, the
// full block body (if retained under this node's broker config) lives in
// the store (§4).
type blockNode struct {
	hash        primitives.Hash
	header      *BlockHeader
	chainIndex  chainindex.ChainIndex
	intraParent *blockNode // nil only for genesis
	intraHeight uint64
	isGenesis   bool

	// ancestorSet is the transitive closure of this node's BlockDeps,
	// excluding the node itself and genesis nodes. weight is its size + 1.
	// Computed once at construction and never mutated afterward, since
	// the DAG is append-only (§4.1).
	ancestorSet map[primitives.Hash]*blockNode
	weight      uint64
}

// newGenesisNode builds the zero-weight root of one chain.
func newGenesisNode(ci chainindex.ChainIndex, header *BlockHeader) *blockNode {
	return &blockNode{
		hash:        header.Hash(),
		header:      header,
		chainIndex:  ci,
		isGenesis:   true,
		ancestorSet: map[primitives.Hash]*blockNode{},
	}
}

// newNode builds a non-genesis node from its resolved intra-parent and the
// full set of resolved dependency nodes (cross-chain tips plus the
// intra-parent itself). weight is 1 + the number of distinct non-genesis
// ancestors reachable through deps (§4.1 invariant (a)/(c)).
func newNode(ci chainindex.ChainIndex, header *BlockHeader, intraParent *blockNode, deps []*blockNode) *blockNode {
	n := &blockNode{
		hash:        header.Hash(),
		header:      header,
		chainIndex:  ci,
		intraParent: intraParent,
		intraHeight: intraParent.intraHeight + 1,
		ancestorSet: map[primitives.Hash]*blockNode{},
	}
	for _, dep := range deps {
		for h, anc := range dep.ancestorSet {
			n.ancestorSet[h] = anc
		}
		if !dep.isGenesis {
			n.ancestorSet[dep.hash] = dep
		}
	}
	n.weight = uint64(len(n.ancestorSet)) + 1
	return n
}

// isAncestorOf reports whether n is on the same chain as other and is an
// ancestor-or-self of other, walking intra-chain parent pointers.
func isAncestorOf(n, other *blockNode) bool {
	if n.chainIndex != other.chainIndex {
		return false
	}
	if n.isGenesis {
		return true
	}
	if n.intraHeight > other.intraHeight {
		return false
	}
	cur := other
	for cur != nil && !cur.isGenesis && cur.intraHeight > n.intraHeight {
		cur = cur.intraParent
	}
	if cur == nil {
		return false
	}
	return cur.hash == n.hash
}

// Chain holds one (from,to) grid cell's DAG: every known node keyed by
// hash, plus the current tip set (nodes with no known child yet). Multiple
// tips mean an unresolved fork on this chain (§3).
type Chain struct {
	mu     sync.RWMutex
	index  chainindex.ChainIndex
	nodes  map[primitives.Hash]*blockNode
	tips   map[primitives.Hash]*blockNode
	parent map[primitives.Hash]primitives.Hash // hash -> intra-chain parent hash, for children-tracking
}

// NewChain creates an empty chain seeded with its genesis header.
func NewChain(ci chainindex.ChainIndex, genesisHeader *BlockHeader) *Chain {
	g := newGenesisNode(ci, genesisHeader)
	c := &Chain{
		index:  ci,
		nodes:  map[primitives.Hash]*blockNode{g.hash: g},
		tips:   map[primitives.Hash]*blockNode{g.hash: g},
		parent: map[primitives.Hash]primitives.Hash{},
	}
	return c
}

// Genesis returns this chain's genesis hash.
func (c *Chain) Genesis() primitives.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for h, n := range c.nodes {
		if n.isGenesis {
			return h
		}
	}
	return primitives.ZeroHash
}

// getNode returns the node for hash, or nil. It takes the chain's read lock
// itself.
func (c *Chain) getNode(hash primitives.Hash) *blockNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nodes[hash]
}

// Has reports whether hash is a known node on this chain.
func (c *Chain) Has(hash primitives.Hash) bool {
	return c.getNode(hash) != nil
}

// Weight returns the weight of hash, and whether it is known.
func (c *Chain) Weight(hash primitives.Hash) (uint64, bool) {
	n := c.getNode(hash)
	if n == nil {
		return 0, false
	}
	return n.weight, true
}

// BestTip returns the chain's current best tip: maximum weight, ties broken
// by the lexicographically smaller hash (§4.1 invariant (b)).
func (c *Chain) BestTip() *blockNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return bestOf(c.tips)
}

// bestOf picks the highest-weight node, tie-broken by lexicographically
// smallest hash, from a set of candidates. Returns nil on an empty set.
func bestOf(candidates map[primitives.Hash]*blockNode) *blockNode {
	var best *blockNode
	for _, n := range candidates {
		if best == nil || n.weight > best.weight || (n.weight == best.weight && n.hash.Less(best.hash)) {
			best = n
		}
	}
	return best
}

// orderedTips returns every current tip, ordered best-first by the same
// rule as BestTip, for getBestDeps' fallback search.
func (c *Chain) orderedTips() []*blockNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*blockNode, 0, len(c.tips))
	for _, n := range c.tips {
		out = append(out, n)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			a, b := out[j-1], out[j]
			if a.weight > b.weight || (a.weight == b.weight && a.hash.Less(b.hash)) {
				break
			}
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// addNode inserts a fully constructed node and updates the tip set: the
// node's intra-parent is no longer a tip (unless some other child already
// claimed that), and the node itself becomes a tip.
func (c *Chain) addNode(n *blockNode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[n.hash] = n
	if n.intraParent != nil {
		delete(c.tips, n.intraParent.hash)
	}
	c.tips[n.hash] = n
}

// height reports the intra-chain height of hash, for locator construction.
func (c *Chain) height(hash primitives.Hash) (uint64, bool) {
	n := c.getNode(hash)
	if n == nil {
		return 0, false
	}
	return n.intraHeight, true
}

// pruneTips discards every tip dominated by a heavier sibling tip (weight
// strictly less than the chain's current best) whose timestamp predates
// nowMillis-maxAgeMillis. The best tip itself is never discarded, since
// getBestDeps must always have a tip to offer (§4.1's tip-set pruning
// rule).
func (c *Chain) pruneTips(nowMillis, maxAgeMillis int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	best := bestOf(c.tips)
	if best == nil {
		return 0
	}
	pruned := 0
	for hash, n := range c.tips {
		if hash == best.hash || n.weight >= best.weight {
			continue
		}
		ageMillis := nowMillis - timestampMillis(n.header.Timestamp)
		if ageMillis < maxAgeMillis {
			continue
		}
		delete(c.tips, hash)
		pruned++
	}
	return pruned
}

func timestampMillis(t Timestamp) int64 {
	return t.Seconds*1000 + t.Nanos/1_000_000
}
