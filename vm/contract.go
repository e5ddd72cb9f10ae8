package vm

import "github.com/Jantoko/alephium/primitives"

// Method is one function's compiled body: a flat instruction stream plus
// the flattened slot counts the compiler computed for it (§4.7:
// argsLength/localsLength/returnLength count flattened array slots, not
// source-level parameters).
type Method struct {
	IsPublic     bool
	IsPayable    bool
	ArgsLength   int
	LocalsLength int
	ReturnLength int
	Instrs       []Instr
}

// Contract is a deployed TxContract: its flattened field storage plus
// its method table (§4.7's FuncDef.id -> SimpleFunc).
type Contract struct {
	ID      primitives.Hash
	Fields  []Val
	Methods []*Method
}

// Script is a compiled TxScript: only Methods[0] is callable as an
// entrypoint (the compiler enforces "first method pub, rest private";
// the VM doesn't re-check source-level visibility beyond IsPublic).
type Script struct {
	Methods []*Method
}

// ContractLoader resolves a contract address to its compiled code and
// field storage, the way CallExternal needs to "pop address; load
// contract" (§4.6 pseudocode). World-state storage itself lives outside
// this package (trie/store); callers inject a loader backed by it.
type ContractLoader interface {
	LoadContract(addr primitives.Hash) (*Contract, error)
}
