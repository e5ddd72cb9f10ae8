package vm

import "github.com/Jantoko/alephium/primitives"

// AlphTokenID is the sentinel token identifier for the native asset,
// distinguished from user-issued tokens (keyed by contract address) in
// the same way Alephium's native ALPH is distinguished from token IDs.
var AlphTokenID = primitives.ZeroHash

// BalanceState is the payable-call balance bookkeeping of §4.6: a caller
// "approves" some amount into a callee's "remaining", and the invariant
// is that approved+remaining is conserved across a call tree absent an
// explicit burn (not modeled here; nothing in §4.6 names a burn opcode).
type BalanceState struct {
	Approved  map[primitives.Hash]uint64
	Remaining map[primitives.Hash]uint64
}

// NewBalanceState returns an empty balance state.
func NewBalanceState() *BalanceState {
	return &BalanceState{
		Approved:  map[primitives.Hash]uint64{},
		Remaining: map[primitives.Hash]uint64{},
	}
}

// Total sums approved+remaining for token, for conservation checks in
// tests.
func (b *BalanceState) Total(token primitives.Hash) uint64 {
	return b.Approved[token] + b.Remaining[token]
}

// approve moves amount from remaining into approved, ready to be
// consumed by the next payable call (OpApprove).
func (b *BalanceState) approve(token primitives.Hash, amount uint64) error {
	if b.Remaining[token] < amount {
		return newExecErr(ErrEmptyBalanceForPayableMethod, "insufficient remaining balance for token %s", token)
	}
	b.Remaining[token] -= amount
	b.Approved[token] += amount
	return nil
}

// consumeApproved drains every approved token into a brand new
// BalanceState's remaining, for entering a payable method (§4.6:
// "Entering a payable method consumes approved into the callee's
// remaining").
func (b *BalanceState) consumeApproved() (*BalanceState, error) {
	any := false
	for _, amt := range b.Approved {
		if amt > 0 {
			any = true
			break
		}
	}
	if !any {
		return nil, newExecErr(ErrEmptyBalanceForPayableMethod, "no approved balance for payable method")
	}
	callee := NewBalanceState()
	for token, amt := range b.Approved {
		callee.Remaining[token] = amt
		b.Approved[token] = 0
	}
	return callee, nil
}

// pullContractAsset adds a contract's on-chain asset into remaining, the
// additional pull §4.6 specifies for contract-owned (CallExternal)
// payable methods. The asset amount is supplied by the caller's
// AssetSource; a nil source means no on-chain asset is pulled.
func (b *BalanceState) pullContractAsset(token primitives.Hash, amount uint64) {
	b.Remaining[token] += amount
}
