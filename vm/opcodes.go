package vm

// Op is one VM instruction opcode (§4.6's "≈60 opcodes").
type Op byte

const (
	// Constants.
	OpPushBool Op = iota
	OpPushI256
	OpPushU256
	OpPushByteVec
	OpPushAddress

	// Stack manipulation.
	OpPop
	OpDup
	OpSwap

	// Signed arithmetic and comparisons.
	OpI256Add
	OpI256Sub
	OpI256Mul
	OpI256Div
	OpI256Mod
	OpI256Eq
	OpI256Neq
	OpI256Lt
	OpI256Le
	OpI256Gt
	OpI256Ge

	// Unsigned arithmetic and comparisons.
	OpU256Add
	OpU256Sub
	OpU256Mul
	OpU256Div
	OpU256Mod
	OpU256Eq
	OpU256Neq
	OpU256Lt
	OpU256Le
	OpU256Gt
	OpU256Ge

	// Boolean logic.
	OpBoolAnd
	OpBoolOr
	OpBoolNot
	OpBoolEq
	OpBoolNeq

	// ByteVec operations.
	OpByteVecConcat
	OpByteVecEq
	OpByteVecNeq
	OpByteVecSize
	OpByteVecSlice

	// Conversions.
	OpU256ToByteVec
	OpByteVecToU256
	OpU256ToI256
	OpI256ToU256
	OpAddressToByteVec
	OpByteVecToAddress
	OpAddressEq

	// Control flow. Offsets are single-byte signed deltas from the
	// instruction's own index (§4.6: "offsets are single-byte signed,
	// bounded by 0xff").
	OpJump
	OpIfTrue
	OpIfFalse

	// Local/field storage.
	OpLoadLocal
	OpStoreLocal
	OpLoadField
	OpStoreField

	// Calls and return.
	OpCallLocal
	OpCallExternal
	OpReturn

	// Events (no-op at this layer; §4.6's external-indexing hook).
	OpEmitEvent

	// Crypto primitives.
	OpBlake2bHash
	OpKeccak256Hash
	OpVerifyTxSignature

	// Balance/asset operations (stateful, payable methods only).
	OpApprove
	OpTransferAlph
	OpTransferToken

	// Context accessors.
	OpSelfAddress
	OpCallerAddress

	opCount // sentinel; not a real opcode
)

// Instr is one decoded instruction: an opcode plus its immediate
// operand, interpreted per-opcode (push payload, a branch offset, a
// local/field/method index, or nothing).
type Instr struct {
	Op  Op
	Imm []byte
}

// ImmByte returns the instruction's single-byte immediate (index or
// offset opcodes), or 0 if there isn't one.
func (i Instr) ImmByte() byte {
	if len(i.Imm) == 0 {
		return 0
	}
	return i.Imm[0]
}

// ImmOffset interprets the single-byte immediate as a signed branch
// offset (§4.6).
func (i Instr) ImmOffset() int {
	return int(int8(i.ImmByte()))
}

// Helper constructors for hand-assembling instruction sequences (used
// directly by tests, and by the compiler's codegen package).

func PushBool(b bool) Instr {
	v := byte(0)
	if b {
		v = 1
	}
	return Instr{Op: OpPushBool, Imm: []byte{v}}
}

func PushI256(imm []byte) Instr { return Instr{Op: OpPushI256, Imm: imm} }
func PushU256(imm []byte) Instr { return Instr{Op: OpPushU256, Imm: imm} }
func PushByteVec(b []byte) Instr {
	return Instr{Op: OpPushByteVec, Imm: append([]byte{}, b...)}
}
func PushAddress(addr []byte) Instr { return Instr{Op: OpPushAddress, Imm: append([]byte{}, addr...)} }

func Simple(op Op) Instr                { return Instr{Op: op} }
func WithIndex(op Op, idx byte) Instr   { return Instr{Op: op, Imm: []byte{idx}} }
func WithOffset(op Op, offset int8) Instr {
	return Instr{Op: op, Imm: []byte{byte(offset)}}
}
func EmitEvent(idx, argCount byte) Instr {
	return Instr{Op: OpEmitEvent, Imm: []byte{idx, argCount}}
}
