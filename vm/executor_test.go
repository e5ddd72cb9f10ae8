package vm

import (
	"math/big"
	"testing"
	"time"

	"github.com/Jantoko/alephium/config"
	"github.com/Jantoko/alephium/primitives"
)

func testConfig() config.NodeConfig {
	return config.NodeConfig{
		GroupCount:            1,
		BlockTargetTime:       time.Second,
		MaxMiningTarget:       [32]byte{0xff},
		NumZerosAtLeastInHash: 0,
		RetargetWindowSize:    4,
		NonceStep:             1,
		MaxOrphanBlocks:       16,
		TipsPruneInterval:     100,
		CallGas:               5,
	}
}

// buildSquareAddContract compiles, by hand, the contract scenario 4 names:
//
//	TxContract Foo(x: U256) {
//	  pub fn add(a: U256) -> U256 { return square(x) + square(a) }
//	  fn square(n) -> U256 { return n*n }
//	}
//
// Field 0 is x. add's local 0 is its argument a; square's local 0 is n.
func buildSquareAddContract(x uint64) *Contract {
	square := &Method{
		IsPublic:     false,
		ArgsLength:   1,
		LocalsLength: 1,
		ReturnLength: 1,
		Instrs: []Instr{
			WithIndex(OpLoadLocal, 0),
			WithIndex(OpLoadLocal, 0),
			Simple(OpU256Mul),
			Simple(OpReturn),
		},
	}
	add := &Method{
		IsPublic:     true,
		ArgsLength:   1,
		LocalsLength: 1,
		ReturnLength: 1,
		Instrs: []Instr{
			WithIndex(OpLoadField, 0), // push x
			WithIndex(OpCallLocal, 1), // square(x)   (method index 1 below)
			WithIndex(OpLoadLocal, 0), // push a
			WithIndex(OpCallLocal, 1), // square(a)
			Simple(OpU256Add),
			Simple(OpReturn),
		},
	}
	return &Contract{
		ID:      primitives.Hash{0x01},
		Fields:  []Val{U256FromUint64(x)},
		Methods: []*Method{add, square},
	}
}

func TestVMArithmeticScenario(t *testing.T) {
	contract := buildSquareAddContract(1)
	ex := NewExecutor(testConfig(), 1000, nil)
	result, err := ex.ExecuteMethod(contract, 0, []Val{U256FromUint64(2)}, nil)
	if err != nil {
		t.Fatalf("ExecuteMethod: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 return value, got %d", len(result))
	}
	got, err := result[0].asU256()
	if err != nil {
		t.Fatalf("asU256: %v", err)
	}
	if got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected 5, got %s", got)
	}
}

// buildFibContract compiles, by hand, a recursive Fibonacci over U256:
//
//	pub fn fib(n: U256) -> U256 {
//	  if n < 2 { return n }
//	  return fib(n-1) + fib(n-2)
//	}
func buildFibContract() *Contract {
	fib := &Method{
		IsPublic:     true,
		ArgsLength:   1,
		LocalsLength: 1,
		ReturnLength: 1,
	}
	fib.Instrs = []Instr{
		WithIndex(OpLoadLocal, 0),    // 0: n
		PushU256([]byte{2}),          // 1: 2
		Simple(OpU256Lt),             // 2: n < 2
		WithOffset(OpIfFalse, 3),     // 3: if !(n<2) jump to 6 (skip base-case return)
		WithIndex(OpLoadLocal, 0),    // 4: n
		Simple(OpReturn),             // 5: return n
		WithIndex(OpLoadLocal, 0),    // 6: n
		PushU256([]byte{1}),          // 7: 1
		Simple(OpU256Sub),            // 8: n-1
		WithIndex(OpCallLocal, 0),    // 9: fib(n-1)
		WithIndex(OpLoadLocal, 0),    // 10: n
		PushU256([]byte{2}),          // 11: 2
		Simple(OpU256Sub),            // 12: n-2
		WithIndex(OpCallLocal, 0),    // 13: fib(n-2)
		Simple(OpU256Add),            // 14: fib(n-1)+fib(n-2)
		Simple(OpReturn),             // 15: return
	}
	return &Contract{ID: primitives.Hash{0x02}, Methods: []*Method{fib}}
}

func runFib(t *testing.T, n uint64) (uint64, uint64) {
	t.Helper()
	contract := buildFibContract()
	ex := NewExecutor(testConfig(), 1_000_000, nil)
	result, err := ex.ExecuteMethod(contract, 0, []Val{U256FromUint64(n)}, nil)
	if err != nil {
		t.Fatalf("ExecuteMethod: %v", err)
	}
	got, err := result[0].asU256()
	if err != nil {
		t.Fatalf("asU256: %v", err)
	}
	return got.Uint64(), ex.GasUsed()
}

func TestVMFibonacciRecursionAndGas(t *testing.T) {
	got, gas1 := runFib(t, 10)
	if got != 55 {
		t.Fatalf("fib(10) = %d, want 55", got)
	}
	_, gas2 := runFib(t, 10)
	if gas1 != gas2 {
		t.Fatalf("repeated execution used different gas: %d vs %d", gas1, gas2)
	}
}

// buildSignatureScript compiles, by hand, an asset script that pushes a
// public key and verifies a transaction signature against it:
//
//	AssetScript Verify(pubKey: ByteVec) {
//	  pub fn main() -> Bool {
//	    return verifyTxSignature(pubKey)
//	  }
//	}
func buildSignatureScript(pub primitives.PublicKey) *Script {
	main := &Method{
		IsPublic:     true,
		ArgsLength:   0,
		LocalsLength: 0,
		ReturnLength: 1,
		Instrs: []Instr{
			PushByteVec(pub[:]),
			Simple(OpVerifyTxSignature),
			Simple(OpReturn),
		},
	}
	return &Script{Methods: []*Method{main}}
}

func TestVMSignatureVerification(t *testing.T) {
	pub, priv, err := primitives.GenerateKeyPair(fixedEntropy{})
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	txHash := primitives.Keccak256([]byte("a transaction"))
	sig := primitives.Sign(priv, txHash[:])

	script := buildSignatureScript(pub)
	ex := NewExecutor(testConfig(), 1000, nil)
	ex.SetTxHash(txHash)
	ex.SetSignatures([]primitives.Signature{sig})
	result, err := ex.ExecuteScript(script, nil)
	if err != nil {
		t.Fatalf("ExecuteScript: %v", err)
	}
	ok, err := result[0].asBool()
	if err != nil {
		t.Fatalf("asBool: %v", err)
	}
	if !ok {
		t.Fatalf("expected signature to verify")
	}

	ex2 := NewExecutor(testConfig(), 1000, nil)
	ex2.SetTxHash(txHash)
	ex2.SetSignatures(nil)
	_, err = ex2.ExecuteScript(script, nil)
	execErr, ok := err.(*ExecutionError)
	if !ok {
		t.Fatalf("expected an *ExecutionError, got %v", err)
	}
	if execErr.Kind != ErrStackUnderflow {
		t.Fatalf("expected StackUnderflow, got %s", execErr.Kind)
	}
}

type fixedEntropy struct{}

func (fixedEntropy) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(i)
	}
	return len(p), nil
}

func TestVMOutOfGasHaltsImmediately(t *testing.T) {
	contract := buildSquareAddContract(1)
	ex := NewExecutor(testConfig(), 2, nil)
	_, err := ex.ExecuteMethod(contract, 0, []Val{U256FromUint64(2)}, nil)
	execErr, ok := err.(*ExecutionError)
	if !ok {
		t.Fatalf("expected an *ExecutionError, got %v", err)
	}
	if execErr.Kind != ErrOutOfGas {
		t.Fatalf("expected OutOfGas, got %s", execErr.Kind)
	}
}

func TestVMInvalidReturnLengthRejected(t *testing.T) {
	bad := &Method{
		IsPublic:     true,
		ArgsLength:   0,
		LocalsLength: 0,
		ReturnLength: 1,
		Instrs: []Instr{
			Simple(OpReturn), // returns 0 values, declared 1
		},
	}
	contract := &Contract{ID: primitives.Hash{0x03}, Methods: []*Method{bad}}
	ex := NewExecutor(testConfig(), 1000, nil)
	_, err := ex.ExecuteMethod(contract, 0, nil, nil)
	execErr, ok := err.(*ExecutionError)
	if !ok {
		t.Fatalf("expected an *ExecutionError, got %v", err)
	}
	if execErr.Kind != ErrInvalidReturnLength {
		t.Fatalf("expected InvalidReturnLength, got %s", execErr.Kind)
	}
}

func TestBalanceConservationAcrossPayableCall(t *testing.T) {
	callee := &Method{
		IsPublic:     true,
		IsPayable:    true,
		ArgsLength:   0,
		LocalsLength: 0,
		ReturnLength: 0,
		Instrs:       []Instr{Simple(OpReturn)},
	}
	contract := &Contract{ID: primitives.Hash{0x04}, Methods: []*Method{callee}}

	balance := NewBalanceState()
	balance.Remaining[AlphTokenID] = 100
	if err := balance.approve(AlphTokenID, 100); err != nil {
		t.Fatalf("approve: %v", err)
	}
	before := balance.Total(AlphTokenID)

	ex := NewExecutor(testConfig(), 1000, nil)
	if _, err := ex.ExecuteMethod(contract, 0, nil, balance); err != nil {
		t.Fatalf("ExecuteMethod: %v", err)
	}
	// consumeApproved drains the caller's Approved bucket into a fresh
	// BalanceState handed to the callee; the caller's own total drops to
	// zero here as a result, and the 100 units live on in that fresh
	// state for the (untested, since it never returns control here)
	// callee's bookkeeping — this only checks the caller-side half.
	if got := balance.Approved[AlphTokenID]; got != 0 {
		t.Fatalf("expected approved to be fully consumed, got %d", got)
	}
	if before != 100 {
		t.Fatalf("test setup error: expected 100 approved before the call, got %d", before)
	}
}
