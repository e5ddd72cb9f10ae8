package compiler

import "fmt"

// Type is a resolved §4.7 type: a primitive, a FixedSizeArray, or a
// Contract(typeId).
type Type interface {
	String() string
	// flattenLength is flattenTypeLength(t): the product of array
	// dimensions times 1 for scalars (§4.7).
	flattenLength() int
	Equal(other Type) bool
}

// PrimKind enumerates §4.7's five scalar primitives.
type PrimKind int

const (
	TBool PrimKind = iota
	TI256
	TU256
	TByteVec
	TAddress
)

func (k PrimKind) String() string {
	switch k {
	case TBool:
		return "Bool"
	case TI256:
		return "I256"
	case TU256:
		return "U256"
	case TByteVec:
		return "ByteVec"
	case TAddress:
		return "Address"
	default:
		return "?"
	}
}

// PrimType is one of the five scalar types.
type PrimType struct{ Kind PrimKind }

func (p PrimType) flattenLength() int { return 1 }
func (p PrimType) String() string     { return p.Kind.String() }
func (p PrimType) Equal(other Type) bool {
	o, ok := other.(PrimType)
	return ok && o.Kind == p.Kind
}

// ArrayType is FixedSizeArray(baseType, size); nested arrays are a
// FixedSizeArray whose Elem is itself an ArrayType.
type ArrayType struct {
	Elem Type
	Size int
}

func (a ArrayType) flattenLength() int { return a.Size * a.Elem.flattenLength() }
func (a ArrayType) String() string     { return fmt.Sprintf("[%s; %d]", a.Elem, a.Size) }
func (a ArrayType) Equal(other Type) bool {
	o, ok := other.(ArrayType)
	return ok && o.Size == a.Size && o.Elem.Equal(a.Elem)
}

// ContractType is Contract(typeId): represented at runtime as a single
// Address slot (§4.6's AddressVal).
type ContractType struct{ TypeID string }

func (c ContractType) flattenLength() int { return 1 }
func (c ContractType) String() string     { return "Contract(" + c.TypeID + ")" }
func (c ContractType) Equal(other Type) bool {
	o, ok := other.(ContractType)
	return ok && o.TypeID == c.TypeID
}

// flattenTypeLength is §4.7's named function, a package-level helper for
// the scope and codegen code that needs a flattened slot count.
func flattenTypeLength(t Type) int { return t.flattenLength() }

// resolveType turns a parsed TypeExpr into a Type, resolving named
// contract types against the program's own declarations.
func resolveType(te TypeExpr, contractNames map[string]bool) (Type, error) {
	if te.Elem != nil {
		elem, err := resolveType(*te.Elem, contractNames)
		if err != nil {
			return nil, err
		}
		if te.Size <= 0 {
			return nil, newCompileErr(ErrType, te.Pos, "array size must be positive")
		}
		return ArrayType{Elem: elem, Size: te.Size}, nil
	}
	switch te.Name {
	case "Bool":
		return PrimType{Kind: TBool}, nil
	case "I256":
		return PrimType{Kind: TI256}, nil
	case "U256":
		return PrimType{Kind: TU256}, nil
	case "ByteVec":
		return PrimType{Kind: TByteVec}, nil
	case "Address":
		return PrimType{Kind: TAddress}, nil
	default:
		if contractNames[te.Name] {
			return ContractType{TypeID: te.Name}, nil
		}
		return nil, newCompileErr(ErrType, te.Pos, "unknown type %q", te.Name)
	}
}
