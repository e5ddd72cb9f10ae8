package vm

import (
	"math/big"

	"github.com/Jantoko/alephium/primitives"
)

// Kind tags which alternative of the Val union is populated (§4.6's
// primitive type set plus FixedSizeArray's scalar element types).
type Kind int

const (
	KindBool Kind = iota
	KindI256
	KindU256
	KindByteVec
	KindAddress
)

// String names a Kind for error messages.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "Bool"
	case KindI256:
		return "I256"
	case KindU256:
		return "U256"
	case KindByteVec:
		return "ByteVec"
	case KindAddress:
		return "Address"
	default:
		return "Unknown"
	}
}

var (
	u256Max = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	i256Min = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	i256Max = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
)

// Val is a single VM stack/local/field slot: a tagged union over the
// primitive types named in §4.6. Only the field matching Kind is
// meaningful.
type Val struct {
	Kind    Kind
	Bool    bool
	Int     *big.Int
	Bytes   []byte
	Address primitives.Hash
}

// BoolVal builds a Bool Val.
func BoolVal(b bool) Val { return Val{Kind: KindBool, Bool: b} }

// I256Val builds a signed 256-bit Val. The caller is responsible for the
// value already being in range; arithmetic opcodes check range
// themselves via checkI256.
func I256Val(v *big.Int) Val { return Val{Kind: KindI256, Int: new(big.Int).Set(v)} }

// U256Val builds an unsigned 256-bit Val.
func U256Val(v *big.Int) Val { return Val{Kind: KindU256, Int: new(big.Int).Set(v)} }

// I256FromInt64 is a convenience constructor for small literals.
func I256FromInt64(v int64) Val { return I256Val(big.NewInt(v)) }

// U256FromUint64 is a convenience constructor for small literals.
func U256FromUint64(v uint64) Val { return U256Val(new(big.Int).SetUint64(v)) }

// ByteVecVal builds a ByteVec Val, copying b.
func ByteVecVal(b []byte) Val {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Val{Kind: KindByteVec, Bytes: cp}
}

// AddressVal builds an Address Val.
func AddressVal(addr primitives.Hash) Val { return Val{Kind: KindAddress, Address: addr} }

func checkU256(v *big.Int) error {
	if v.Sign() < 0 || v.Cmp(u256Max) > 0 {
		return newExecErr(ErrArithmeticOverflow, "U256 value %s out of range", v)
	}
	return nil
}

func checkI256(v *big.Int) error {
	if v.Cmp(i256Min) < 0 || v.Cmp(i256Max) > 0 {
		return newExecErr(ErrArithmeticOverflow, "I256 value %s out of range", v)
	}
	return nil
}

func (v Val) asBool() (bool, error) {
	if v.Kind != KindBool {
		return false, newExecErr(ErrInvalidType, "expected Bool, got %s", v.Kind)
	}
	return v.Bool, nil
}

func (v Val) asI256() (*big.Int, error) {
	if v.Kind != KindI256 {
		return nil, newExecErr(ErrInvalidType, "expected I256, got %s", v.Kind)
	}
	return v.Int, nil
}

func (v Val) asU256() (*big.Int, error) {
	if v.Kind != KindU256 {
		return nil, newExecErr(ErrInvalidType, "expected U256, got %s", v.Kind)
	}
	return v.Int, nil
}

func (v Val) asByteVec() ([]byte, error) {
	if v.Kind != KindByteVec {
		return nil, newExecErr(ErrInvalidType, "expected ByteVec, got %s", v.Kind)
	}
	return v.Bytes, nil
}

func (v Val) asAddress() (primitives.Hash, error) {
	if v.Kind != KindAddress {
		return primitives.Hash{}, newExecErr(ErrInvalidType, "expected Address, got %s", v.Kind)
	}
	return v.Address, nil
}

// Equal reports value equality within the same Kind. Mixed-kind
// comparisons are a compile-time error (§4.7) and never reach here.
func (v Val) Equal(other Val) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == other.Bool
	case KindI256, KindU256:
		return v.Int.Cmp(other.Int) == 0
	case KindByteVec:
		if len(v.Bytes) != len(other.Bytes) {
			return false
		}
		for i := range v.Bytes {
			if v.Bytes[i] != other.Bytes[i] {
				return false
			}
		}
		return true
	case KindAddress:
		return v.Address == other.Address
	default:
		return false
	}
}
