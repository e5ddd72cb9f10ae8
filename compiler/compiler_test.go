package compiler

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Jantoko/alephium/config"
	"github.com/Jantoko/alephium/primitives"
	"github.com/Jantoko/alephium/vm"
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

func mustCompile(t *testing.T, src string) *Output {
	t.Helper()
	out, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return out
}

func compileErr(t *testing.T, src string) *CompileError {
	t.Helper()
	_, err := Compile(src)
	if err == nil {
		t.Fatalf("expected a compile error, got none")
	}
	cerr, ok := err.(*CompileError)
	if !ok {
		t.Fatalf("expected a *CompileError, got %T: %v", err, err)
	}
	return cerr
}

// TestCompileArithmeticScenario mirrors vm's hand-assembled
// buildSquareAddContract scenario, but through the real source-to-bytecode
// pipeline: add(a) = square(x) + square(a), with x a field.
func TestCompileArithmeticScenario(t *testing.T) {
	src := `
TxContract Foo(x: U256) {
    pub fn add(a: U256) -> U256 {
        return square(x) + square(a)
    }

    fn square(n: U256) -> U256 {
        return n * n
    }
}
`
	out := mustCompile(t, src)
	tmpl, ok := out.Contracts["Foo"]
	if !ok {
		t.Fatalf("expected a Foo contract template")
	}
	contract, err := tmpl.Instantiate(primitives.Hash{0x01}, []vm.Val{vm.U256FromUint64(1)})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	ex := vm.NewExecutor(testConfig(), 1000, nil)
	result, err := ex.ExecuteMethod(contract, 0, []vm.Val{vm.U256FromUint64(2)}, nil)
	if err != nil {
		t.Fatalf("ExecuteMethod: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected 1 return value, got %d", len(result))
	}
	if got := result[0].Int.Uint64(); got != 5 {
		t.Fatalf("add(2) with x=1: got %d, want 5", got)
	}
}

// TestCompileFibonacciRecursion mirrors vm's buildFibContract scenario,
// exercising if-without-else codegen and recursive local calls.
func TestCompileFibonacciRecursion(t *testing.T) {
	src := `
TxContract Fib() {
    pub fn fib(n: U256) -> U256 {
        if n < 2 {
            return n
        }
        return fib(n-1) + fib(n-2)
    }
}
`
	out := mustCompile(t, src)
	tmpl := out.Contracts["Fib"]
	contract, err := tmpl.Instantiate(primitives.Hash{0x02}, nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	ex := vm.NewExecutor(testConfig(), 1_000_000, nil)
	result, err := ex.ExecuteMethod(contract, 0, []vm.Val{vm.U256FromUint64(10)}, nil)
	if err != nil {
		t.Fatalf("ExecuteMethod: %v", err)
	}
	if got := result[0].Int.Uint64(); got != 55 {
		t.Fatalf("fib(10) = %d, want 55", got)
	}
}

// TestCompileIfElseAndWhile exercises both branch shapes in one pass: an
// if/else and a while loop summing up to n.
func TestCompileIfElseAndWhile(t *testing.T) {
	src := `
TxContract Sum() {
    pub fn sumTo(n: U256) -> U256 {
        let total = 0
        let i = 0
        while i < n {
            total = total + i
            i = i + 1
        }
        if total == 0 {
            return 0
        } else {
            return total
        }
    }
}
`
	out := mustCompile(t, src)
	tmpl := out.Contracts["Sum"]
	contract, err := tmpl.Instantiate(primitives.Hash{0x03}, nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	ex := vm.NewExecutor(testConfig(), 100_000, nil)
	result, err := ex.ExecuteMethod(contract, 0, []vm.Val{vm.U256FromUint64(5)}, nil)
	if err != nil {
		t.Fatalf("ExecuteMethod: %v", err)
	}
	if got := result[0].Int.Uint64(); got != 10 {
		t.Fatalf("sumTo(5) = %d, want 10 (0+1+2+3+4)", got)
	}
}

func TestCompileDuplicateFunctionID(t *testing.T) {
	src := `
TxContract Dup() {
    pub fn foo() -> Bool {
        return true
    }

    fn foo() -> Bool {
        return false
    }
}
`
	cerr := compileErr(t, src)
	if cerr.Kind != ErrDuplicate {
		t.Fatalf("expected Duplicate, got %s", cerr.Kind)
	}
}

func TestCompileArrayEqualityUnsupported(t *testing.T) {
	src := `
TxContract ArrEq() {
    pub fn eq(a: [U256; 2], b: [U256; 2]) -> Bool {
        return a == b
    }
}
`
	cerr := compileErr(t, src)
	if cerr.Kind != ErrUnsupportedArrayOp {
		t.Fatalf("expected UnsupportedArrayOp, got %s", cerr.Kind)
	}
}

func TestCompileDynamicIndexUnsupported(t *testing.T) {
	src := `
TxContract DynIdx() {
    pub fn get(a: [U256; 4], i: U256) -> U256 {
        return a[i]
    }
}
`
	cerr := compileErr(t, src)
	if cerr.Kind != ErrUnsupportedArrayOp {
		t.Fatalf("expected UnsupportedArrayOp, got %s", cerr.Kind)
	}
}

func TestCompileScriptRestrictionViolation(t *testing.T) {
	src := `
TxScript Bad() {
    fn helper() -> Bool {
        return true
    }

    pub fn main() -> Bool {
        return helper()
    }
}
`
	cerr := compileErr(t, src)
	if cerr.Kind != ErrType {
		t.Fatalf("expected Type, got %s", cerr.Kind)
	}
}

// TestCompileBranchOffsetOverflow forces an if-branch body past the
// single-byte offset limit and checks it is rejected as OutOfRange.
func TestCompileBranchOffsetOverflow(t *testing.T) {
	var body strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&body, "a = a + 1\n")
	}
	src := fmt.Sprintf(`
TxContract BigIf() {
    pub fn f(a: U256) -> U256 {
        if a == a {
%s        }
        return a
    }
}
`, body.String())
	cerr := compileErr(t, src)
	if cerr.Kind != ErrOutOfRange {
		t.Fatalf("expected OutOfRange, got %s", cerr.Kind)
	}
}

// TestCompileDeterminism checks the "Deterministic codegen" property:
// compiling identical source twice yields byte-identical instructions.
func TestCompileDeterminism(t *testing.T) {
	src := `
TxContract Fib() {
    pub fn fib(n: U256) -> U256 {
        if n < 2 {
            return n
        }
        return fib(n-1) + fib(n-2)
    }
}
`
	out1 := mustCompile(t, src)
	out2 := mustCompile(t, src)
	m1 := out1.Contracts["Fib"].Methods[0]
	m2 := out2.Contracts["Fib"].Methods[0]
	if !reflect.DeepEqual(m1.Instrs, m2.Instrs) {
		t.Fatalf("expected identical instruction streams across compilations")
	}
}

func TestCompileExternalCallAddressPushedLast(t *testing.T) {
	src := `
TxContract Counter() {
    pub fn get() -> U256 {
        return 7
    }
}

TxContract Caller() {
    pub fn callGet(c: Counter) -> U256 {
        return c.get()
    }
}
`
	out := mustCompile(t, src)
	tmpl, ok := out.Contracts["Caller"]
	if !ok {
		t.Fatalf("expected a Caller contract template")
	}
	m := tmpl.Methods[0]
	if len(m.Instrs) == 0 || m.Instrs[len(m.Instrs)-2].Op != vm.OpCallExternal {
		t.Fatalf("expected CallExternal as the second-to-last instruction, got %+v", m.Instrs)
	}
	// The receiver (the only Address-typed operand) must be loaded
	// immediately before the CallExternal dispatch, since
	// dispatchCallExternal pops the callee address off the top first.
	if m.Instrs[len(m.Instrs)-3].Op != vm.OpLoadLocal {
		t.Fatalf("expected the receiver load to immediately precede CallExternal, got %+v", m.Instrs)
	}
}
