package compiler

import "math/big"

// TypeExpr is a parsed, unresolved type: either a name (a primitive or a
// contract type id) or an array of Size copies of Elem.
type TypeExpr struct {
	Name string
	Elem *TypeExpr
	Size int
	Pos  Position
}

// Param is a typed name: a field, a function parameter, or an event field.
type Param struct {
	Name string
	Type TypeExpr
	Pos  Position
}

// FuncDecl is one `fn`/`pub fn`/`pub payable fn` definition.
type FuncDecl struct {
	Name        string
	Pub         bool
	Payable     bool
	Params      []Param
	ReturnTypes []TypeExpr
	Body        []Stmt
	Pos         Position
}

// EventDecl is one `event Name(field: Type, ...)` declaration (§4.7).
type EventDecl struct {
	Name   string
	Fields []Param
	Pos    Position
}

// DeclKind distinguishes the three top-level forms §4.7 names.
type DeclKind int

const (
	DeclContract DeclKind = iota
	DeclScript
	DeclAssetScript
)

// ContractDecl is one TxContract/TxScript/AssetScript top-level form.
// Fields holds the constructor parameter list: a TxContract's persistent
// storage, or a TxScript/AssetScript's per-invocation template arguments.
type ContractDecl struct {
	Name    string
	Kind    DeclKind
	Fields  []Param
	Events  []EventDecl
	Methods []FuncDecl
	Pos     Position
}

// Program is a whole compilation unit: every contract/script it declares,
// so that external calls between sibling TxContracts in the same unit can
// be resolved without a separate interface-file mechanism.
type Program struct {
	Decls []*ContractDecl
}

// Stmt is one statement in a function body.
type Stmt interface{ stmtPos() Position }

type LetStmt struct {
	Name  string
	Value Expr
	Pos   Position
}

func (s *LetStmt) stmtPos() Position { return s.Pos }

type AssignStmt struct {
	Target Expr
	Value  Expr
	Pos    Position
}

func (s *AssignStmt) stmtPos() Position { return s.Pos }

type ExprStmt struct {
	X   Expr
	Pos Position
}

func (s *ExprStmt) stmtPos() Position { return s.Pos }

type ReturnStmt struct {
	Values []Expr
	Pos    Position
}

func (s *ReturnStmt) stmtPos() Position { return s.Pos }

type IfStmt struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
	Pos  Position
}

func (s *IfStmt) stmtPos() Position { return s.Pos }

type WhileStmt struct {
	Cond Expr
	Body []Stmt
	Pos  Position
}

func (s *WhileStmt) stmtPos() Position { return s.Pos }

type EmitStmt struct {
	Event string
	Args  []Expr
	Pos   Position
}

func (s *EmitStmt) stmtPos() Position { return s.Pos }

// Expr is one expression node.
type Expr interface{ exprPos() Position }

type Ident struct {
	Name string
	Pos  Position
}

func (e *Ident) exprPos() Position { return e.Pos }

type IntLit struct {
	Value *big.Int
	Pos   Position
}

func (e *IntLit) exprPos() Position { return e.Pos }

type BoolLit struct {
	Value bool
	Pos   Position
}

func (e *BoolLit) exprPos() Position { return e.Pos }

type ByteVecLit struct {
	Value []byte
	Pos   Position
}

func (e *ByteVecLit) exprPos() Position { return e.Pos }

type UnaryExpr struct {
	Op  TokenKind
	X   Expr
	Pos Position
}

func (e *UnaryExpr) exprPos() Position { return e.Pos }

type BinaryExpr struct {
	Op   TokenKind
	X, Y Expr
	Pos  Position
}

func (e *BinaryExpr) exprPos() Position { return e.Pos }

// IndexExpr is a[i][j]...; §4.7 requires every index to be a compile-time
// constant (dynamic indexing is an explicit non-goal).
type IndexExpr struct {
	X       Expr
	Indices []Expr
	Pos     Position
}

func (e *IndexExpr) exprPos() Position { return e.Pos }

// CallExpr is a local call (Receiver == nil) or an external call
// (Receiver.Method(Args), §4.6's CallExternal).
type CallExpr struct {
	Receiver Expr
	Method   string
	Args     []Expr
	Pos      Position
}

func (e *CallExpr) exprPos() Position { return e.Pos }

// ArrayRepeatLit is `[e; n]`: n duplicated copies of e's flattened slots.
type ArrayRepeatLit struct {
	Elem  Expr
	Count int
	Pos   Position
}

func (e *ArrayRepeatLit) exprPos() Position { return e.Pos }

// ArrayListLit is `[a, b, c]`: the concatenation of each element's
// flattened slots.
type ArrayListLit struct {
	Elems []Expr
	Pos   Position
}

func (e *ArrayListLit) exprPos() Position { return e.Pos }
