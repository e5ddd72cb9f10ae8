package vm

import (
	"math/big"

	"github.com/Jantoko/alephium/primitives"
)

// execOne runs every opcode that isn't a call, return, or branch (those
// are handled directly in run()/dispatchBranch, since they touch the
// frame stack itself rather than just the operand stack).
func (e *Executor) execOne(frame *Frame, instr Instr) error {
	switch instr.Op {
	case OpPushBool:
		return e.stack.Push(BoolVal(instr.ImmByte() != 0))
	case OpPushI256:
		return e.stack.Push(I256Val(i256FromTwosComplementBytes(instr.Imm)))
	case OpPushU256:
		return e.stack.Push(U256Val(new(big.Int).SetBytes(instr.Imm)))
	case OpPushByteVec:
		return e.stack.Push(ByteVecVal(instr.Imm))
	case OpPushAddress:
		h, err := primitives.HashFromBytes(instr.Imm)
		if err != nil {
			return newExecErr(ErrInvalidType, "push address: %v", err)
		}
		return e.stack.Push(AddressVal(h))

	case OpPop:
		_, err := e.stack.Pop()
		return err
	case OpDup:
		v, err := e.stack.Peek()
		if err != nil {
			return err
		}
		return e.stack.Push(v)
	case OpSwap:
		vs, err := e.stack.PopN(2)
		if err != nil {
			return err
		}
		if err := e.stack.Push(vs[1]); err != nil {
			return err
		}
		return e.stack.Push(vs[0])

	case OpI256Add, OpI256Sub, OpI256Mul, OpI256Div, OpI256Mod,
		OpI256Eq, OpI256Neq, OpI256Lt, OpI256Le, OpI256Gt, OpI256Ge:
		return e.execI256Binary(instr.Op)

	case OpU256Add, OpU256Sub, OpU256Mul, OpU256Div, OpU256Mod,
		OpU256Eq, OpU256Neq, OpU256Lt, OpU256Le, OpU256Gt, OpU256Ge:
		return e.execU256Binary(instr.Op)

	case OpBoolAnd, OpBoolOr, OpBoolNot, OpBoolEq, OpBoolNeq:
		return e.execBool(instr.Op)

	case OpByteVecConcat, OpByteVecEq, OpByteVecNeq, OpByteVecSize, OpByteVecSlice:
		return e.execByteVec(instr.Op)

	case OpU256ToByteVec:
		v, err := e.popU256()
		if err != nil {
			return err
		}
		return e.stack.Push(ByteVecVal(leftPad32(v.Bytes())))
	case OpByteVecToU256:
		b, err := e.popByteVec()
		if err != nil {
			return err
		}
		v := new(big.Int).SetBytes(b)
		if err := checkU256(v); err != nil {
			return err
		}
		return e.stack.Push(U256Val(v))
	case OpU256ToI256:
		v, err := e.popU256()
		if err != nil {
			return err
		}
		if err := checkI256(v); err != nil {
			return err
		}
		return e.stack.Push(I256Val(v))
	case OpI256ToU256:
		v, err := e.popI256()
		if err != nil {
			return err
		}
		if err := checkU256(v); err != nil {
			return err
		}
		return e.stack.Push(U256Val(v))
	case OpAddressToByteVec:
		a, err := e.popAddress()
		if err != nil {
			return err
		}
		return e.stack.Push(ByteVecVal(a[:]))
	case OpByteVecToAddress:
		b, err := e.popByteVec()
		if err != nil {
			return err
		}
		h, err := primitives.HashFromBytes(b)
		if err != nil {
			return newExecErr(ErrInvalidType, "bytevec to address: %v", err)
		}
		return e.stack.Push(AddressVal(h))
	case OpAddressEq:
		vs, err := e.stack.PopN(2)
		if err != nil {
			return err
		}
		a, err := vs[0].asAddress()
		if err != nil {
			return err
		}
		b, err := vs[1].asAddress()
		if err != nil {
			return err
		}
		return e.stack.Push(BoolVal(a == b))

	case OpLoadLocal:
		idx := int(instr.ImmByte())
		if idx < 0 || idx >= len(frame.locals) {
			return newExecErr(ErrInvalidLocalIndex, "local index %d out of range", idx)
		}
		return e.stack.Push(frame.locals[idx])
	case OpStoreLocal:
		idx := int(instr.ImmByte())
		if idx < 0 || idx >= len(frame.locals) {
			return newExecErr(ErrInvalidLocalIndex, "local index %d out of range", idx)
		}
		v, err := e.stack.Pop()
		if err != nil {
			return err
		}
		frame.locals[idx] = v
		return nil
	case OpLoadField:
		idx := int(instr.ImmByte())
		if frame.contract == nil || idx < 0 || idx >= len(frame.contract.Fields) {
			return newExecErr(ErrInvalidFieldIndex, "field index %d out of range", idx)
		}
		return e.stack.Push(frame.contract.Fields[idx])
	case OpStoreField:
		idx := int(instr.ImmByte())
		if frame.contract == nil || idx < 0 || idx >= len(frame.contract.Fields) {
			return newExecErr(ErrInvalidFieldIndex, "field index %d out of range", idx)
		}
		v, err := e.stack.Pop()
		if err != nil {
			return err
		}
		if frame.contract.Fields[idx].Kind != v.Kind {
			return newExecErr(ErrInvalidFieldType, "field %d expects %s, got %s", idx, frame.contract.Fields[idx].Kind, v.Kind)
		}
		frame.contract.Fields[idx] = v
		return nil

	case OpEmitEvent:
		// No-op at the core VM layer (§4.6): pop the declared argument
		// count and discard, leaving the hook for an external indexer.
		argCount := int(instr.Imm[1])
		_, err := e.stack.PopN(argCount)
		return err

	case OpBlake2bHash:
		b, err := e.popByteVec()
		if err != nil {
			return err
		}
		return e.stack.Push(ByteVecVal(hashSlice(primitives.Blake2b(b))))
	case OpKeccak256Hash:
		b, err := e.popByteVec()
		if err != nil {
			return err
		}
		return e.stack.Push(ByteVecVal(hashSlice(primitives.Keccak256(b))))
	case OpVerifyTxSignature:
		return e.execVerifyTxSignature()

	case OpApprove:
		return e.execApprove(frame)
	case OpTransferAlph:
		amount, err := e.popU256()
		if err != nil {
			return err
		}
		return e.execTransfer(frame, AlphTokenID, amount.Uint64())
	case OpTransferToken:
		return e.execTransferToken(frame)

	case OpSelfAddress:
		if frame.contract == nil {
			return newExecErr(ErrInvalidContractAddress, "SelfAddress outside a contract context")
		}
		return e.stack.Push(AddressVal(frame.contract.ID))
	case OpCallerAddress:
		if len(e.frames) < 2 {
			return newExecErr(ErrInvalidContractAddress, "CallerAddress has no caller")
		}
		caller := e.frames[len(e.frames)-2]
		if caller.contract == nil {
			return newExecErr(ErrInvalidContractAddress, "caller is not a contract")
		}
		return e.stack.Push(AddressVal(caller.contract.ID))

	default:
		return newExecErr(ErrInvalidType, "unknown opcode %d", instr.Op)
	}
}

func hashSlice(h primitives.Hash) []byte { return append([]byte{}, h[:]...) }

// i256FromTwosComplementBytes decodes a full 32-byte two's complement
// encoding as negative when its sign bit is set; shorter immediates (the
// compiler's small-literal encoding) are always non-negative magnitudes.
func i256FromTwosComplementBytes(b []byte) *big.Int {
	v := new(big.Int).SetBytes(b)
	if len(b) == 32 && b[0]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	return v
}

func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func (e *Executor) popU256() (*big.Int, error) {
	v, err := e.stack.Pop()
	if err != nil {
		return nil, err
	}
	return v.asU256()
}

func (e *Executor) popI256() (*big.Int, error) {
	v, err := e.stack.Pop()
	if err != nil {
		return nil, err
	}
	return v.asI256()
}

func (e *Executor) popByteVec() ([]byte, error) {
	v, err := e.stack.Pop()
	if err != nil {
		return nil, err
	}
	return v.asByteVec()
}

func (e *Executor) popAddress() (primitives.Hash, error) {
	v, err := e.stack.Pop()
	if err != nil {
		return primitives.Hash{}, err
	}
	return v.asAddress()
}

func (e *Executor) execI256Binary(op Op) error {
	vs, err := e.stack.PopN(2)
	if err != nil {
		return err
	}
	a, err := vs[0].asI256()
	if err != nil {
		return err
	}
	b, err := vs[1].asI256()
	if err != nil {
		return err
	}
	switch op {
	case OpI256Eq:
		return e.stack.Push(BoolVal(a.Cmp(b) == 0))
	case OpI256Neq:
		return e.stack.Push(BoolVal(a.Cmp(b) != 0))
	case OpI256Lt:
		return e.stack.Push(BoolVal(a.Cmp(b) < 0))
	case OpI256Le:
		return e.stack.Push(BoolVal(a.Cmp(b) <= 0))
	case OpI256Gt:
		return e.stack.Push(BoolVal(a.Cmp(b) > 0))
	case OpI256Ge:
		return e.stack.Push(BoolVal(a.Cmp(b) >= 0))
	}
	var result *big.Int
	switch op {
	case OpI256Add:
		result = new(big.Int).Add(a, b)
	case OpI256Sub:
		result = new(big.Int).Sub(a, b)
	case OpI256Mul:
		result = new(big.Int).Mul(a, b)
	case OpI256Div:
		if b.Sign() == 0 {
			return newExecErr(ErrArithmeticOverflow, "I256 division by zero")
		}
		result = new(big.Int).Quo(a, b)
	case OpI256Mod:
		if b.Sign() == 0 {
			return newExecErr(ErrArithmeticOverflow, "I256 modulo by zero")
		}
		result = new(big.Int).Rem(a, b)
	}
	if err := checkI256(result); err != nil {
		return err
	}
	return e.stack.Push(I256Val(result))
}

func (e *Executor) execU256Binary(op Op) error {
	vs, err := e.stack.PopN(2)
	if err != nil {
		return err
	}
	a, err := vs[0].asU256()
	if err != nil {
		return err
	}
	b, err := vs[1].asU256()
	if err != nil {
		return err
	}
	switch op {
	case OpU256Eq:
		return e.stack.Push(BoolVal(a.Cmp(b) == 0))
	case OpU256Neq:
		return e.stack.Push(BoolVal(a.Cmp(b) != 0))
	case OpU256Lt:
		return e.stack.Push(BoolVal(a.Cmp(b) < 0))
	case OpU256Le:
		return e.stack.Push(BoolVal(a.Cmp(b) <= 0))
	case OpU256Gt:
		return e.stack.Push(BoolVal(a.Cmp(b) > 0))
	case OpU256Ge:
		return e.stack.Push(BoolVal(a.Cmp(b) >= 0))
	}
	var result *big.Int
	switch op {
	case OpU256Add:
		result = new(big.Int).Add(a, b)
	case OpU256Sub:
		result = new(big.Int).Sub(a, b)
	case OpU256Mul:
		result = new(big.Int).Mul(a, b)
	case OpU256Div:
		if b.Sign() == 0 {
			return newExecErr(ErrArithmeticOverflow, "U256 division by zero")
		}
		result = new(big.Int).Quo(a, b)
	case OpU256Mod:
		if b.Sign() == 0 {
			return newExecErr(ErrArithmeticOverflow, "U256 modulo by zero")
		}
		result = new(big.Int).Rem(a, b)
	}
	if err := checkU256(result); err != nil {
		return err
	}
	return e.stack.Push(U256Val(result))
}

func (e *Executor) execBool(op Op) error {
	if op == OpBoolNot {
		v, err := e.stack.Pop()
		if err != nil {
			return err
		}
		b, err := v.asBool()
		if err != nil {
			return err
		}
		return e.stack.Push(BoolVal(!b))
	}
	vs, err := e.stack.PopN(2)
	if err != nil {
		return err
	}
	a, err := vs[0].asBool()
	if err != nil {
		return err
	}
	b, err := vs[1].asBool()
	if err != nil {
		return err
	}
	switch op {
	case OpBoolAnd:
		return e.stack.Push(BoolVal(a && b))
	case OpBoolOr:
		return e.stack.Push(BoolVal(a || b))
	case OpBoolEq:
		return e.stack.Push(BoolVal(a == b))
	case OpBoolNeq:
		return e.stack.Push(BoolVal(a != b))
	}
	return newExecErr(ErrInvalidType, "unreachable bool op")
}

func (e *Executor) execByteVec(op Op) error {
	switch op {
	case OpByteVecSize:
		v, err := e.stack.Pop()
		if err != nil {
			return err
		}
		b, err := v.asByteVec()
		if err != nil {
			return err
		}
		return e.stack.Push(U256FromUint64(uint64(len(b))))
	case OpByteVecSlice:
		vs, err := e.stack.PopN(3)
		if err != nil {
			return err
		}
		b, err := vs[0].asByteVec()
		if err != nil {
			return err
		}
		start, err := vs[1].asU256()
		if err != nil {
			return err
		}
		end, err := vs[2].asU256()
		if err != nil {
			return err
		}
		s, en := start.Uint64(), end.Uint64()
		if s > en || en > uint64(len(b)) {
			return newExecErr(ErrInvalidType, "bytevec slice [%d:%d] out of range for length %d", s, en, len(b))
		}
		return e.stack.Push(ByteVecVal(b[s:en]))
	}
	vs, err := e.stack.PopN(2)
	if err != nil {
		return err
	}
	a, err := vs[0].asByteVec()
	if err != nil {
		return err
	}
	b, err := vs[1].asByteVec()
	if err != nil {
		return err
	}
	switch op {
	case OpByteVecConcat:
		out := make([]byte, 0, len(a)+len(b))
		out = append(out, a...)
		out = append(out, b...)
		return e.stack.Push(ByteVecVal(out))
	case OpByteVecEq:
		return e.stack.Push(BoolVal(ByteVecVal(a).Equal(ByteVecVal(b))))
	case OpByteVecNeq:
		return e.stack.Push(BoolVal(!ByteVecVal(a).Equal(ByteVecVal(b))))
	}
	return newExecErr(ErrInvalidType, "unreachable bytevec op")
}

// execVerifyTxSignature pops a pubkey ByteVec off the operand stack and
// the next signature off the dedicated pre-pushed signature stack,
// verifying it against the executor's tx hash (§8 scenario 6: an empty
// signature stack is a StackUnderflow, the same error kind an empty
// operand stack would give, since both are "nothing left to consume").
func (e *Executor) execVerifyTxSignature() error {
	pubBytes, err := e.popByteVec()
	if err != nil {
		return err
	}
	if len(e.signatures) == 0 {
		return newExecErr(ErrStackUnderflow, "no signatures remaining")
	}
	sig := e.signatures[0]
	e.signatures = e.signatures[1:]
	if len(pubBytes) != primitives.PublicKeySize {
		return newExecErr(ErrInvalidType, "expected a %d-byte public key", primitives.PublicKeySize)
	}
	var pub primitives.PublicKey
	copy(pub[:], pubBytes)
	ok := primitives.Verify(pub, e.txHash[:], sig)
	return e.stack.Push(BoolVal(ok))
}

// execApprove pops a token address and amount, moving that much from the
// current frame's remaining balance into approved, ready to be consumed
// by the next payable call (§4.6).
func (e *Executor) execApprove(frame *Frame) error {
	if frame.balance == nil {
		return newExecErr(ErrEmptyBalanceForPayableMethod, "Approve outside a payable method")
	}
	vs, err := e.stack.PopN(2)
	if err != nil {
		return err
	}
	token, err := vs[0].asAddress()
	if err != nil {
		return err
	}
	amount, err := vs[1].asU256()
	if err != nil {
		return err
	}
	return frame.balance.approve(token, amount.Uint64())
}

func (e *Executor) execTransfer(frame *Frame, token primitives.Hash, amount uint64) error {
	if frame.balance == nil {
		return newExecErr(ErrEmptyBalanceForPayableMethod, "Transfer outside a payable method")
	}
	if frame.balance.Remaining[token] < amount {
		return newExecErr(ErrEmptyBalanceForPayableMethod, "insufficient remaining balance to transfer")
	}
	frame.balance.Remaining[token] -= amount
	return nil
}

func (e *Executor) execTransferToken(frame *Frame) error {
	vs, err := e.stack.PopN(2)
	if err != nil {
		return err
	}
	token, err := vs[0].asAddress()
	if err != nil {
		return err
	}
	amount, err := vs[1].asU256()
	if err != nil {
		return err
	}
	return e.execTransfer(frame, token, amount.Uint64())
}
