// Package vm implements the §4.6 virtual machine: a frame-stack executor
// over one shared operand stack, grounded on txscript/engine.go's Engine
// (scriptIdx/scriptOff program counter, dstack, executeOpcode dispatch),
// generalized per Design Notes §9 from Bitcoin Script's single flat
// script to a call tree of frames sharing one operand stack.
package vm

import (
	"github.com/Jantoko/alephium/config"
	"github.com/Jantoko/alephium/primitives"
	"github.com/pkg/errors"
)

// AssetSource answers how much on-chain asset a contract currently
// holds, for CallExternal's additional pull into a payable method's
// balance (§4.6).
type AssetSource interface {
	ContractAsset(addr primitives.Hash) (amount uint64, ok bool)
}

// Frame is one activation record (§4.6's "Frame" glossary entry):
// everything but the shared operand stack pointer is private to it.
type Frame struct {
	method     *Method
	pc         int
	locals     []Val
	contract   *Contract
	stackFloor int
	balance    *BalanceState
}

// Executor runs one call tree to completion, charging gas per
// instruction and reporting every fault as an *ExecutionError (§9).
type Executor struct {
	cfg    config.NodeConfig
	gas    *GasMeter
	stack  *OperandStack
	frames []*Frame

	signatures []primitives.Signature
	txHash     primitives.Hash
	loader     ContractLoader
	assets     AssetSource
}

// NewExecutor builds an Executor with gasLimit gas and loader for
// resolving CallExternal addresses (nil is fine for stateless scripts
// that never call out to another contract).
func NewExecutor(cfg config.NodeConfig, gasLimit uint64, loader ContractLoader) *Executor {
	return &Executor{
		cfg:   cfg,
		gas:   NewGasMeter(gasLimit),
		stack: NewOperandStack(),
		loader: loader,
	}
}

// SetSignatures installs the pre-pushed signature stack OpVerifyTxSignature
// draws from (§8 scenario 6).
func (e *Executor) SetSignatures(sigs []primitives.Signature) { e.signatures = sigs }

// SetTxHash installs the message OpVerifyTxSignature checks signatures
// against.
func (e *Executor) SetTxHash(h primitives.Hash) { e.txHash = h }

// SetAssetSource installs the contract-asset lookup CallExternal uses
// for payable methods.
func (e *Executor) SetAssetSource(src AssetSource) { e.assets = src }

// GasUsed returns the total gas charged so far (§8's conservation
// property).
func (e *Executor) GasUsed() uint64 { return e.gas.Used() }

// GasRemaining returns unspent gas.
func (e *Executor) GasRemaining() uint64 { return e.gas.Remaining() }

// ExecuteScript runs script's entrypoint (Methods[0]) with args as its
// initial locals (§4.7: a TxScript's first method is the only callable
// entrypoint).
func (e *Executor) ExecuteScript(script *Script, args []Val) ([]Val, error) {
	if len(script.Methods) == 0 {
		return nil, newExecErr(ErrInvalidMethodIndex, "script has no methods")
	}
	method := script.Methods[0]
	if len(args) != method.ArgsLength {
		return nil, errors.Errorf("vm: script entrypoint expects %d args, got %d", method.ArgsLength, len(args))
	}
	frame, err := e.enterMethod(nil, method, args, nil)
	if err != nil {
		return nil, err
	}
	e.frames = append(e.frames, frame)
	return e.run()
}

// ExecuteMethod runs one public method of an already-loaded contract
// directly, the entrypoint scenarios 4 and 5 use to invoke a compiled
// contract without going through a script.
func (e *Executor) ExecuteMethod(contract *Contract, methodIdx int, args []Val, balance *BalanceState) ([]Val, error) {
	if methodIdx < 0 || methodIdx >= len(contract.Methods) {
		return nil, newExecErr(ErrInvalidMethodIndex, "method index %d out of range", methodIdx)
	}
	method := contract.Methods[methodIdx]
	if !method.IsPublic {
		return nil, newExecErr(ErrExternalPrivateMethodCall, "method %d is private", methodIdx)
	}
	if len(args) != method.ArgsLength {
		return nil, errors.Errorf("vm: method %d expects %d args, got %d", methodIdx, method.ArgsLength, len(args))
	}
	frame, err := e.enterMethod(contract, method, args, balance)
	if err != nil {
		return nil, err
	}
	e.frames = append(e.frames, frame)
	return e.run()
}

// enterMethod builds the Frame for method, handling the payable-balance
// consumption of §4.6: entering a payable method drains the caller's
// approved balance into the callee's remaining, additionally pulling a
// contract's on-chain asset when the callee owns one.
func (e *Executor) enterMethod(contract *Contract, method *Method, args []Val, callerBalance *BalanceState) (*Frame, error) {
	locals := make([]Val, method.LocalsLength)
	copy(locals, args)

	var balance *BalanceState
	if method.IsPayable {
		if callerBalance == nil {
			return nil, newExecErr(ErrEmptyBalanceForPayableMethod, "no balance state supplied for payable method")
		}
		b, err := callerBalance.consumeApproved()
		if err != nil {
			return nil, err
		}
		if contract != nil && e.assets != nil {
			if amt, ok := e.assets.ContractAsset(contract.ID); ok {
				b.pullContractAsset(AlphTokenID, amt)
			}
		}
		balance = b
	}
	return &Frame{
		method:     method,
		contract:   contract,
		locals:     locals,
		stackFloor: e.stack.Len(),
		balance:    balance,
	}, nil
}

func (e *Executor) currentFrame() *Frame {
	if len(e.frames) == 0 {
		return nil
	}
	return e.frames[len(e.frames)-1]
}

// run drives the dispatch loop of §4.6's pseudocode: charge gas, then
// branch on whether the instruction is a call, a return, a jump, or
// anything else.
func (e *Executor) run() ([]Val, error) {
	for {
		frame := e.currentFrame()
		if frame == nil {
			return nil, errors.New("vm: no active frame")
		}
		pcMax := len(frame.method.Instrs)
		if frame.pc == pcMax {
			result, done, err := e.doReturn(frame)
			if err != nil {
				return nil, err
			}
			if done {
				return result, nil
			}
			continue
		}
		if frame.pc > pcMax || frame.pc < 0 {
			return nil, newExecErr(ErrPcOverflow, "pc %d exceeds max %d", frame.pc, pcMax)
		}
		instr := frame.method.Instrs[frame.pc]
		if err := e.gas.Charge(instrGasCost(instr.Op, e.cfg.CallGas)); err != nil {
			return nil, err
		}
		switch instr.Op {
		case OpCallLocal:
			if err := e.dispatchCallLocal(frame, instr); err != nil {
				return nil, err
			}
		case OpCallExternal:
			if err := e.dispatchCallExternal(frame, instr); err != nil {
				return nil, err
			}
		case OpReturn:
			result, done, err := e.doReturn(frame)
			if err != nil {
				return nil, err
			}
			if done {
				return result, nil
			}
		case OpJump, OpIfTrue, OpIfFalse:
			if err := e.dispatchBranch(frame, instr); err != nil {
				return nil, err
			}
		default:
			if err := e.execOne(frame, instr); err != nil {
				return nil, err
			}
			frame.pc++
		}
	}
}

// dispatchCallLocal pops the callee's arguments off the shared stack and
// pushes a new frame for one of the current contract's own methods.
func (e *Executor) dispatchCallLocal(frame *Frame, instr Instr) error {
	frame.pc++
	if frame.contract == nil {
		return newExecErr(ErrInvalidMethodIndex, "CallLocal outside a contract context")
	}
	idx := int(instr.ImmByte())
	if idx < 0 || idx >= len(frame.contract.Methods) {
		return newExecErr(ErrInvalidMethodIndex, "local method index %d out of range", idx)
	}
	callee := frame.contract.Methods[idx]
	args, err := e.stack.PopN(callee.ArgsLength)
	if err != nil {
		return err
	}
	var callerBalance *BalanceState
	if callee.IsPayable {
		callerBalance = frame.balance
	}
	next, err := e.enterMethod(frame.contract, callee, args, callerBalance)
	if err != nil {
		return err
	}
	e.frames = append(e.frames, next)
	return nil
}

// dispatchCallExternal pops a contract address off the stack, loads it
// via the ContractLoader, then pops arguments and pushes a new frame for
// one of its methods (§4.6 pseudocode: "pop address; load contract").
func (e *Executor) dispatchCallExternal(frame *Frame, instr Instr) error {
	frame.pc++
	idx := int(instr.ImmByte())
	addrVal, err := e.stack.Pop()
	if err != nil {
		return err
	}
	addr, err := addrVal.asAddress()
	if err != nil {
		return err
	}
	if e.loader == nil {
		return newExecErr(ErrInvalidContractAddress, "no contract loader configured")
	}
	contract, err := e.loader.LoadContract(addr)
	if err != nil {
		return newExecErr(ErrInvalidContractAddress, "loading contract %s: %v", addr, err)
	}
	if idx < 0 || idx >= len(contract.Methods) {
		return newExecErr(ErrInvalidMethodIndex, "external method index %d out of range", idx)
	}
	callee := contract.Methods[idx]
	if !callee.IsPublic {
		return newExecErr(ErrExternalPrivateMethodCall, "method %d of %s is private", idx, addr)
	}
	args, err := e.stack.PopN(callee.ArgsLength)
	if err != nil {
		return err
	}
	var callerBalance *BalanceState
	if callee.IsPayable {
		callerBalance = frame.balance
	}
	next, err := e.enterMethod(contract, callee, args, callerBalance)
	if err != nil {
		return err
	}
	e.frames = append(e.frames, next)
	return nil
}

// doReturn validates that exactly method.ReturnLength values were
// produced above the frame's stack floor, then pops the frame. The
// values themselves stay on the shared stack for the caller (§9:
// "returnTo becomes increment sp on parent"). done is true once the last
// frame in the call tree returns.
func (e *Executor) doReturn(frame *Frame) (result []Val, done bool, err error) {
	produced := e.stack.Len() - frame.stackFloor
	if produced != frame.method.ReturnLength {
		return nil, false, newExecErr(ErrInvalidReturnLength, "method returned %d values, want %d", produced, frame.method.ReturnLength)
	}
	e.frames = e.frames[:len(e.frames)-1]
	if len(e.frames) == 0 {
		result, err = e.stack.PopN(frame.method.ReturnLength)
		if err != nil {
			return nil, false, err
		}
		return result, true, nil
	}
	return nil, false, nil
}

// dispatchBranch runs Jump/IfTrue/IfFalse. Per §4.6's "offsetPC bounds-
// checks pc in [0, pcMax)", a taken branch whose target lies outside
// [0, pcMax) is InvalidInstrOffset; a branch that is not taken does not
// check its target.
func (e *Executor) dispatchBranch(frame *Frame, instr Instr) error {
	switch instr.Op {
	case OpJump:
		return e.offsetPC(frame, instr.ImmOffset())
	case OpIfTrue:
		cond, err := e.popBool()
		if err != nil {
			return err
		}
		if cond {
			return e.offsetPC(frame, instr.ImmOffset())
		}
		frame.pc++
		return nil
	case OpIfFalse:
		cond, err := e.popBool()
		if err != nil {
			return err
		}
		if !cond {
			return e.offsetPC(frame, instr.ImmOffset())
		}
		frame.pc++
		return nil
	default:
		return newExecErr(ErrInvalidType, "not a branch opcode")
	}
}

func (e *Executor) popBool() (bool, error) {
	v, err := e.stack.Pop()
	if err != nil {
		return false, err
	}
	return v.asBool()
}

func (e *Executor) offsetPC(frame *Frame, delta int) error {
	newPC := frame.pc + delta
	if newPC < 0 || newPC >= len(frame.method.Instrs) {
		return newExecErr(ErrInvalidInstrOffset, "branch target %d out of range [0,%d)", newPC, len(frame.method.Instrs))
	}
	frame.pc = newPC
	return nil
}
