package vm

// GasMeter tracks remaining gas, charged before every instruction
// executes (§4.6: "charged before execution; underflow ⇒ OutOfGas,
// halting immediately").
type GasMeter struct {
	remaining uint64
	used      uint64
}

// NewGasMeter returns a meter with limit gas available.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{remaining: limit}
}

// Charge deducts amount, returning ErrOutOfGas if that would underflow.
func (g *GasMeter) Charge(amount uint64) error {
	if amount > g.remaining {
		return newExecErr(ErrOutOfGas, "need %d gas, have %d", amount, g.remaining)
	}
	g.remaining -= amount
	g.used += amount
	return nil
}

// Remaining returns the gas left.
func (g *GasMeter) Remaining() uint64 { return g.remaining }

// Used returns the total gas charged so far (§8's gas-conservation
// property: this must equal the sum of per-instruction costs on the
// executed path).
func (g *GasMeter) Used() uint64 { return g.used }

// instrGasCost is the per-opcode base cost table. Arithmetic and boolean
// ops are cheap; hashing and signature verification cost more, the way
// the teacher's own OP_CHECKSIG/OP_HASH160 weigh heavier than OP_ADD in
// MaxOpsPerScript-style accounting (txscript/opcode.go).
func instrGasCost(op Op, callGas uint64) uint64 {
	switch op {
	case OpCallLocal, OpCallExternal:
		return callGas
	case OpBlake2bHash, OpKeccak256Hash:
		return 10
	case OpVerifyTxSignature:
		return 20
	case OpByteVecConcat, OpByteVecSlice:
		return 3
	default:
		return 1
	}
}
