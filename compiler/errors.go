package compiler

import "fmt"

// CompileErrorKind is §7's exhaustive CompileError taxonomy.
type CompileErrorKind int

const (
	ErrParse CompileErrorKind = iota
	ErrType
	ErrDuplicate
	ErrOutOfRange
	ErrUnsupportedArrayOp
)

func (k CompileErrorKind) String() string {
	switch k {
	case ErrParse:
		return "Parse"
	case ErrType:
		return "Type"
	case ErrDuplicate:
		return "Duplicate"
	case ErrOutOfRange:
		return "OutOfRange"
	case ErrUnsupportedArrayOp:
		return "UnsupportedArrayOp"
	default:
		return "Unknown"
	}
}

// CompileError is always surfaced with a source Position (§7) and never
// reaches the VM: Compile returns one of these instead of partial bytecode.
type CompileError struct {
	Kind CompileErrorKind
	Pos  Position
	Msg  string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s error at %s: %s", e.Kind, e.Pos, e.Msg)
}

func newCompileErr(kind CompileErrorKind, pos Position, format string, args ...interface{}) *CompileError {
	return &CompileError{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
