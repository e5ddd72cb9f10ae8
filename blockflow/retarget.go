package blockflow

import (
	"math/big"

	"github.com/Jantoko/alephium/chainindex"
	"github.com/Jantoko/alephium/primitives"
)

// NextTarget computes the PoW target a block mined on ci right now should
// use: the sliding-window average of the last RetargetWindowSize
// intra-chain block intervals, scaled against BlockTargetTime, capped at
// maxTarget (the smaller of MaxMiningTarget and floorTarget) (§4.3).
func (bf *BlockFlow) NextTarget(ci chainindex.ChainIndex) (primitives.Hash, error) {
	c := bf.chain(ci)
	if c == nil {
		return primitives.Hash{}, ErrUnknownChain
	}
	tip := c.BestTip()
	if tip == nil || tip.isGenesis {
		return maxTarget(bf.cfg.MaxMiningTarget, bf.cfg.NumZerosAtLeastInHash), nil
	}

	window := bf.cfg.RetargetWindowSize
	samples := make([]*blockNode, 0, window)
	cur := tip
	for i := 0; i < window && !cur.isGenesis; i++ {
		samples = append(samples, cur)
		cur = cur.intraParent
	}
	if len(samples) < 2 {
		return bytesToHash(tip.header.Target), nil
	}

	oldest := samples[len(samples)-1]
	newest := samples[0]
	actualNanos := timestampDeltaNanos(newest.header.Timestamp, oldest.header.Timestamp)
	intervals := int64(len(samples) - 1)
	if actualNanos <= 0 || intervals <= 0 {
		return bytesToHash(tip.header.Target), nil
	}
	expectedNanos := bf.cfg.BlockTargetTime.Nanoseconds() * intervals

	prevTarget := new(big.Int).SetBytes(tip.header.Target[:])
	next := new(big.Int).Mul(prevTarget, big.NewInt(actualNanos))
	next.Div(next, big.NewInt(expectedNanos))

	capHash := maxTarget(bf.cfg.MaxMiningTarget, bf.cfg.NumZerosAtLeastInHash)
	ceiling := new(big.Int).SetBytes(capHash[:])
	if next.Cmp(ceiling) > 0 {
		next.Set(ceiling)
	}
	return bigIntToHash(next), nil
}

func timestampDeltaNanos(newer, older Timestamp) int64 {
	return (newer.Seconds-older.Seconds)*1e9 + (newer.Nanos - older.Nanos)
}

// floorTarget is the difficulty floor: 2^(256-zeros) - 1, i.e. the largest
// value whose top `zeros` bits are all clear, and so the easiest target that
// still forces `zeros` leading zero bits.
func floorTarget(zeros int) *big.Int {
	if zeros <= 0 {
		return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	}
	if zeros >= 256 {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(256-zeros)), big.NewInt(1))
}

// maxTarget returns the easiest allowed target: min(MaxMiningTarget, floorTarget(zeros)).
func maxTarget(maxMiningTarget [32]byte, zeros int) primitives.Hash {
	cap := new(big.Int).SetBytes(maxMiningTarget[:])
	floor := floorTarget(zeros)
	if floor.Cmp(cap) < 0 {
		return bigIntToHash(floor)
	}
	return bytesToHash(maxMiningTarget)
}

func bytesToHash(b [32]byte) primitives.Hash {
	return primitives.Hash(b)
}

func bigIntToHash(v *big.Int) primitives.Hash {
	var h primitives.Hash
	b := v.Bytes()
	if len(b) > primitives.HashSize {
		b = b[len(b)-primitives.HashSize:]
	}
	copy(h[primitives.HashSize-len(b):], b)
	return h
}
