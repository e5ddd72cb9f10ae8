// Package config defines the immutable NodeConfig value threaded explicitly
// through every BlockFlow constructor (Design Notes §9): no package-level
// globals carry deployment parameters.
package config

import (
	"time"

	"github.com/Jantoko/alephium/chainindex"
	"github.com/pkg/errors"
)

// BrokerConfig identifies the contiguous range of groups [From, Until) a
// broker owns. relatesTo(chainIndex) = chainIndex.From ∈ range ∨
// chainIndex.To ∈ range (§3).
type BrokerConfig struct {
	From  chainindex.Group
	Until chainindex.Group
}

// RelatesTo reports whether the broker stores full blocks (true) or only
// headers (false) for chainIndex.
func (b BrokerConfig) RelatesTo(ci chainindex.ChainIndex) bool {
	return b.owns(ci.From) || b.owns(ci.To)
}

func (b BrokerConfig) owns(g chainindex.Group) bool {
	return g >= b.From && g < b.Until
}

// NodeConfig is the single immutable configuration value every BlockFlow
// subsystem is constructed with. There are no other sources of
// configuration in the core (Design Notes §9).
type NodeConfig struct {
	// GroupCount is G, the number of groups (and sqrt of the chain count).
	GroupCount int

	// Broker identifies which chains this node stores full blocks for.
	Broker BrokerConfig

	// MainGroup is the group the local fair miner mines on behalf of.
	MainGroup chainindex.Group

	// BlockTargetTime is the desired average time between blocks on a
	// single chain, used by the retargeter and tip-pruning interval.
	BlockTargetTime time.Duration

	// MaxMiningTarget bounds the easiest allowed PoW target (§4.3).
	MaxMiningTarget [32]byte

	// NumZerosAtLeastInHash is the difficulty floor: every produced hash
	// must have at least this many leading zero bits (§4.3).
	NumZerosAtLeastInHash int

	// RetargetWindowSize is the number of recent blocks the sliding-window
	// retargeter looks at (§4.3, Open Question - fixed per network here).
	RetargetWindowSize int

	// NonceStep bounds how many consecutive nonces a sub-miner scans per
	// slice before reporting back to the coordinator (§4.4).
	NonceStep uint64

	// MaxOrphanBlocks bounds the BlockFlow orphan buffer (§4.1).
	MaxOrphanBlocks int

	// TipsPruneInterval is, in blocks, how often tip pruning runs (§4.1).
	TipsPruneInterval uint64

	// CallGas is the gas cost charged for CallLocal/CallExternal (§4.6).
	CallGas uint64
}

// Validate checks internal consistency of a NodeConfig. It is called once,
// at construction time, by every subsystem that accepts a NodeConfig.
func (c NodeConfig) Validate() error {
	if c.GroupCount <= 0 {
		return errors.New("config: GroupCount must be positive")
	}
	if int(c.MainGroup) < 0 || int(c.MainGroup) >= c.GroupCount {
		return errors.Errorf("config: MainGroup %d out of range [0,%d)", c.MainGroup, c.GroupCount)
	}
	if int(c.Broker.From) < 0 || int(c.Broker.Until) > c.GroupCount || c.Broker.From >= c.Broker.Until {
		return errors.Errorf("config: invalid broker range [%d,%d) for group count %d", c.Broker.From, c.Broker.Until, c.GroupCount)
	}
	if c.BlockTargetTime <= 0 {
		return errors.New("config: BlockTargetTime must be positive")
	}
	if c.NonceStep == 0 {
		return errors.New("config: NonceStep must be positive")
	}
	if c.RetargetWindowSize <= 0 {
		return errors.New("config: RetargetWindowSize must be positive")
	}
	return nil
}

// NumDepsPerBlock is G²: one parent hash per other chain (G²−1 of them)
// plus the intra-chain parent, in canonical row-major order with the
// intra-chain parent last (§3, DESIGN.md "full-mesh deps").
func (c NodeConfig) NumDepsPerBlock() int {
	return c.GroupCount*c.GroupCount
}

// TipsPruneDuration is the age a dominated tip must reach before tip-set
// pruning discards it: the configured block-target-time scaled by the
// pruning cadence (§4.1). Derived rather than stored, the same way
// NumDepsPerBlock is derived from GroupCount rather than carried as its own
// field.
func (c NodeConfig) TipsPruneDuration() time.Duration {
	return c.BlockTargetTime * time.Duration(c.TipsPruneInterval)
}
