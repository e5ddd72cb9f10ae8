package compiler

import (
	"math/big"

	"github.com/Jantoko/alephium/vm"
)

// funcGen generates one method body. It re-derives types as it walks the
// already-checked AST (§4.7's "type-check" and "codegen" stages share one
// walk here: which opcode family to emit is itself a function of operand
// type, so keeping them as two fully independent passes would mean
// recomputing every type twice for no benefit).
type funcGen struct {
	cp     *checkedProgram
	cc     *checkedContract
	cf     *checkedFunc
	locals *scope
	instrs []vm.Instr
}

func (g *funcGen) emit(i vm.Instr) int {
	g.instrs = append(g.instrs, i)
	return len(g.instrs) - 1
}

// genFunc compiles one function to a vm.Method.
func genFunc(cp *checkedProgram, cc *checkedContract, cf *checkedFunc) (*vm.Method, error) {
	g := &funcGen{cp: cp, cc: cc, cf: cf, locals: newScope()}
	for i, p := range cf.decl.Params {
		if _, err := g.locals.declare(p.Name, cf.paramTypes[i], p.Pos); err != nil {
			return nil, err
		}
	}
	for _, stmt := range cf.decl.Body {
		if err := g.genStmt(stmt); err != nil {
			return nil, err
		}
	}
	if g.locals.slotCount() > 255 {
		return nil, newCompileErr(ErrOutOfRange, cf.decl.Pos, "%s has too many locals (max 255)", cf.decl.Name)
	}
	argsLength, returnLength := 0, 0
	for _, t := range cf.paramTypes {
		argsLength += flattenTypeLength(t)
	}
	for _, t := range cf.returnTypes {
		returnLength += flattenTypeLength(t)
	}
	return &vm.Method{
		IsPublic:     cf.decl.Pub,
		IsPayable:    cf.decl.Payable,
		ArgsLength:   argsLength,
		LocalsLength: g.locals.slotCount(),
		ReturnLength: returnLength,
		Instrs:       g.instrs,
	}, nil
}

// --- statements ---

func (g *funcGen) genStmt(stmt Stmt) error {
	switch s := stmt.(type) {
	case *LetStmt:
		t, err := g.genExpr(s.Value, nil)
		if err != nil {
			return err
		}
		ref, err := g.locals.declare(s.Name, t, s.Pos)
		if err != nil {
			return err
		}
		g.storeRangeTo(ref.Start, flattenTypeLength(t), true)
		return nil

	case *AssignStmt:
		return g.genAssign(s)

	case *ExprStmt:
		if call, ok := s.X.(*CallExpr); ok {
			types, err := g.genCallMulti(call)
			if err != nil {
				return err
			}
			g.popTypes(types)
			return nil
		}
		t, err := g.genExpr(s.X, nil)
		if err != nil {
			return err
		}
		for i := 0; i < flattenTypeLength(t); i++ {
			g.emit(vm.Simple(vm.OpPop))
		}
		return nil

	case *ReturnStmt:
		return g.genReturn(s)
	case *IfStmt:
		return g.genIf(s)
	case *WhileStmt:
		return g.genWhile(s)
	case *EmitStmt:
		return g.genEmit(s)
	}
	return newCompileErr(ErrParse, Position{}, "unsupported statement")
}

func (g *funcGen) popTypes(types []Type) {
	for _, t := range types {
		for i := 0; i < flattenTypeLength(t); i++ {
			g.emit(vm.Simple(vm.OpPop))
		}
	}
}

func (g *funcGen) genAssign(s *AssignStmt) error {
	switch target := s.Target.(type) {
	case *Ident:
		ref, local, err := g.resolveIdentRef(target)
		if err != nil {
			return err
		}
		vt, err := g.genExpr(s.Value, ref.Type)
		if err != nil {
			return err
		}
		if !vt.Equal(ref.Type) {
			return newCompileErr(ErrType, s.Pos, "cannot assign %s to %s", vt, ref.Type)
		}
		g.storeRangeTo(ref.Start, flattenTypeLength(ref.Type), local)
		return nil
	case *IndexExpr:
		start, local, elemType, err := g.resolveIndexRef(target)
		if err != nil {
			return err
		}
		vt, err := g.genExpr(s.Value, elemType)
		if err != nil {
			return err
		}
		if !vt.Equal(elemType) {
			return newCompileErr(ErrType, s.Pos, "cannot assign %s to %s", vt, elemType)
		}
		g.storeOne(start, local)
		return nil
	}
	return newCompileErr(ErrType, s.Pos, "invalid assignment target")
}

func (g *funcGen) genReturn(s *ReturnStmt) error {
	want := g.cf.returnTypes
	if len(s.Values) == 1 {
		if call, ok := s.Values[0].(*CallExpr); ok {
			types, err := g.genCallMulti(call)
			if err != nil {
				return err
			}
			if !typesEqual(types, want) {
				return newCompileErr(ErrType, s.Pos, "return type mismatch for %s", call.Method)
			}
			g.emit(vm.Simple(vm.OpReturn))
			return nil
		}
	}
	if len(s.Values) != len(want) {
		return newCompileErr(ErrType, s.Pos, "expected %d return values, got %d", len(want), len(s.Values))
	}
	for i, v := range s.Values {
		t, err := g.genExpr(v, want[i])
		if err != nil {
			return err
		}
		if !t.Equal(want[i]) {
			return newCompileErr(ErrType, v.exprPos(), "return value %d: expected %s, got %s", i, want[i], t)
		}
	}
	g.emit(vm.Simple(vm.OpReturn))
	return nil
}

// genIf follows §4.7's codegen recipe: {condIR, ifBody, Jump(elseLen),
// elseBody} via IfFalse(offset), or IfTrue if the condition is Not(x).
func (g *funcGen) genIf(s *IfStmt) error {
	branchOp := vm.OpIfFalse
	cond := s.Cond
	if u, ok := s.Cond.(*UnaryExpr); ok && u.Op == TokNot {
		branchOp = vm.OpIfTrue
		cond = u.X
	}
	t, err := g.genExpr(cond, PrimType{Kind: TBool})
	if err != nil {
		return err
	}
	if !isPrim(t, TBool) {
		return newCompileErr(ErrType, s.Pos, "if condition must be Bool, got %s", t)
	}
	branchIdx := g.emit(vm.Instr{Op: branchOp})
	for _, st := range s.Then {
		if err := g.genStmt(st); err != nil {
			return err
		}
	}
	var jumpIdx int
	hasElse := len(s.Else) > 0
	if hasElse {
		jumpIdx = g.emit(vm.Instr{Op: vm.OpJump})
	}
	if err := g.patchOffset(branchIdx, len(g.instrs)); err != nil {
		return err
	}
	for _, st := range s.Else {
		if err := g.genStmt(st); err != nil {
			return err
		}
	}
	if hasElse {
		if err := g.patchOffset(jumpIdx, len(g.instrs)); err != nil {
			return err
		}
	}
	return nil
}

// genWhile follows §4.7's recipe: {condIR, body, Jump(-whileLen)}, with
// an IfFalse exit branch over the body (mirroring genIf's shape).
func (g *funcGen) genWhile(s *WhileStmt) error {
	loopStart := len(g.instrs)
	t, err := g.genExpr(s.Cond, PrimType{Kind: TBool})
	if err != nil {
		return err
	}
	if !isPrim(t, TBool) {
		return newCompileErr(ErrType, s.Pos, "while condition must be Bool, got %s", t)
	}
	exitIdx := g.emit(vm.Instr{Op: vm.OpIfFalse})
	for _, st := range s.Body {
		if err := g.genStmt(st); err != nil {
			return err
		}
	}
	backIdx := g.emit(vm.Instr{Op: vm.OpJump})
	if err := g.patchOffset(backIdx, loopStart); err != nil {
		return err
	}
	if err := g.patchOffset(exitIdx, len(g.instrs)); err != nil {
		return err
	}
	return nil
}

func (g *funcGen) genEmit(s *EmitStmt) error {
	ev, ok := g.cc.events[s.Event]
	if !ok {
		return newCompileErr(ErrType, s.Pos, "undefined event %q", s.Event)
	}
	if len(s.Args) != len(ev.fieldTypes) {
		return newCompileErr(ErrType, s.Pos, "event %q expects %d args, got %d", s.Event, len(ev.fieldTypes), len(s.Args))
	}
	argSlots := 0
	for i, a := range s.Args {
		t, err := g.genExpr(a, ev.fieldTypes[i])
		if err != nil {
			return err
		}
		if !t.Equal(ev.fieldTypes[i]) {
			return newCompileErr(ErrType, a.exprPos(), "event %q arg %d: expected %s, got %s", s.Event, i, ev.fieldTypes[i], t)
		}
		argSlots += flattenTypeLength(t)
	}
	idx := -1
	for i, ed := range g.cc.decl.Events {
		if ed.Name == s.Event {
			idx = i
			break
		}
	}
	if argSlots > 255 || idx > 255 {
		return newCompileErr(ErrOutOfRange, s.Pos, "event %q has too many args", s.Event)
	}
	g.emit(vm.EmitEvent(byte(idx), byte(argSlots)))
	return nil
}

// patchOffset computes the branch delta (per DESIGN.md's resolution: the
// offset is relative to the branch instruction's own un-incremented pc)
// and rejects anything outside a signed byte (§4.7: "Too many instrs for
// branches").
func (g *funcGen) patchOffset(instrIdx, targetIdx int) error {
	delta := targetIdx - instrIdx
	if delta < -128 || delta > 127 {
		return newCompileErr(ErrOutOfRange, Position{}, "too many instrs for branches")
	}
	g.instrs[instrIdx].Imm = []byte{byte(int8(delta))}
	return nil
}

// --- lvalues / slot access ---

func (g *funcGen) resolveIdentRef(e *Ident) (ArrayRef, bool, error) {
	if ref, ok := g.locals.lookup(e.Name); ok {
		return ref, true, nil
	}
	if ref, ok := g.cc.fields.lookup(e.Name); ok {
		return ref, false, nil
	}
	return ArrayRef{}, false, newCompileErr(ErrType, e.Pos, "undefined identifier %q", e.Name)
}

// resolveIndexRef decomposes a[i][j]... into a single flattened slot,
// per §4.7: "Multidimensional access decomposes indexes statically" and
// "dynamic indexing explicitly unsupported". Partial indexing (fewer
// indices than the array's dimension count) is also unsupported here.
func (g *funcGen) resolveIndexRef(e *IndexExpr) (start int, local bool, elemType Type, err error) {
	ident, ok := e.X.(*Ident)
	if !ok {
		return 0, false, nil, newCompileErr(ErrUnsupportedArrayOp, e.Pos, "index target must be a plain array name")
	}
	ref, local, err := g.resolveIdentRef(ident)
	if err != nil {
		return 0, false, nil, err
	}
	cur := ref.Type
	offset := 0
	for _, idxExpr := range e.Indices {
		arr, ok := cur.(ArrayType)
		if !ok {
			return 0, false, nil, newCompileErr(ErrUnsupportedArrayOp, e.Pos, "too many indices for %q", ident.Name)
		}
		lit, ok := idxExpr.(*IntLit)
		if !ok {
			return 0, false, nil, newCompileErr(ErrUnsupportedArrayOp, idxExpr.exprPos(), "array index must be a compile-time constant")
		}
		idx := int(lit.Value.Int64())
		if idx < 0 || idx >= arr.Size {
			return 0, false, nil, newCompileErr(ErrOutOfRange, idxExpr.exprPos(), "index %d out of range [0,%d)", idx, arr.Size)
		}
		offset += idx * arr.Elem.flattenLength()
		cur = arr.Elem
	}
	if _, stillArray := cur.(ArrayType); stillArray {
		return 0, false, nil, newCompileErr(ErrUnsupportedArrayOp, e.Pos, "partial array indexing is unsupported")
	}
	return ref.Start + offset, local, cur, nil
}

func (g *funcGen) loadRange(ref ArrayRef, local bool) {
	n := flattenTypeLength(ref.Type)
	for i := 0; i < n; i++ {
		g.loadOne(ref.Start+i, local)
	}
}

func (g *funcGen) loadOne(slot int, local bool) {
	if local {
		g.emit(vm.WithIndex(vm.OpLoadLocal, byte(slot)))
	} else {
		g.emit(vm.WithIndex(vm.OpLoadField, byte(slot)))
	}
}

func (g *funcGen) storeOne(slot int, local bool) {
	if local {
		g.emit(vm.WithIndex(vm.OpStoreLocal, byte(slot)))
	} else {
		g.emit(vm.WithIndex(vm.OpStoreField, byte(slot)))
	}
}

// storeRangeTo stores n values off the top of the stack into consecutive
// slots [start, start+n), highest slot first since the last-pushed value
// sits on top (§4.7's "slot-wise copy").
func (g *funcGen) storeRangeTo(start, n int, local bool) {
	for i := n - 1; i >= 0; i-- {
		g.storeOne(start+i, local)
	}
}

// --- expressions ---

// typeOfExpr resolves expr's type without emitting any instructions, used
// to disambiguate which concrete type an ambiguous integer literal
// sibling should take in a binary expression. A nil, nil result means the
// expression is itself ambiguous (a bare integer literal).
func (g *funcGen) typeOfExpr(expr Expr) (Type, error) {
	switch e := expr.(type) {
	case *IntLit:
		return nil, nil
	case *BoolLit:
		return PrimType{Kind: TBool}, nil
	case *ByteVecLit:
		return PrimType{Kind: TByteVec}, nil
	case *Ident:
		ref, _, err := g.resolveIdentRef(e)
		if err != nil {
			return nil, err
		}
		return ref.Type, nil
	case *UnaryExpr:
		if e.Op == TokNot {
			return PrimType{Kind: TBool}, nil
		}
		return g.typeOfExpr(e.X)
	case *BinaryExpr:
		switch e.Op {
		case TokEq, TokNeq, TokLt, TokLe, TokGt, TokGe, TokAndAnd, TokOrOr:
			return PrimType{Kind: TBool}, nil
		default:
			xt, err := g.typeOfExpr(e.X)
			if err != nil {
				return nil, err
			}
			if xt != nil {
				return xt, nil
			}
			return g.typeOfExpr(e.Y)
		}
	case *IndexExpr:
		_, _, elemType, err := g.resolveIndexRef(e)
		return elemType, err
	case *CallExpr:
		_, fn, err := g.resolveCall(e)
		if err != nil {
			return nil, err
		}
		if len(fn.returnTypes) != 1 {
			return nil, newCompileErr(ErrType, e.Pos, "call to %q used as a value must return exactly one value", e.Method)
		}
		return fn.returnTypes[0], nil
	case *ArrayRepeatLit:
		elemT, err := g.typeOfExpr(e.Elem)
		if err != nil || elemT == nil {
			return nil, err
		}
		return ArrayType{Elem: elemT, Size: e.Count}, nil
	case *ArrayListLit:
		if len(e.Elems) == 0 {
			return nil, newCompileErr(ErrType, e.Pos, "empty array literal")
		}
		elemT, err := g.typeOfExpr(e.Elems[0])
		if err != nil || elemT == nil {
			return nil, err
		}
		return ArrayType{Elem: elemT, Size: len(e.Elems)}, nil
	}
	return nil, newCompileErr(ErrParse, expr.exprPos(), "unsupported expression")
}

// genExpr emits code that pushes expr's value (flattenTypeLength(result)
// values, for array-typed results) and returns its resolved Type. expected
// disambiguates a bare integer literal's I256-vs-U256 kind; pass nil when
// there's no context.
func (g *funcGen) genExpr(expr Expr, expected Type) (Type, error) {
	switch e := expr.(type) {
	case *IntLit:
		return g.genIntLit(e, expected)
	case *BoolLit:
		g.emit(vm.PushBool(e.Value))
		return PrimType{Kind: TBool}, nil
	case *ByteVecLit:
		g.emit(vm.PushByteVec(e.Value))
		return PrimType{Kind: TByteVec}, nil
	case *Ident:
		ref, local, err := g.resolveIdentRef(e)
		if err != nil {
			return nil, err
		}
		g.loadRange(ref, local)
		return ref.Type, nil
	case *UnaryExpr:
		return g.genUnary(e)
	case *BinaryExpr:
		return g.genBinary(e)
	case *IndexExpr:
		start, local, elemType, err := g.resolveIndexRef(e)
		if err != nil {
			return nil, err
		}
		g.loadOne(start, local)
		return elemType, nil
	case *CallExpr:
		return g.genCallSingle(e)
	case *ArrayRepeatLit:
		return g.genArrayRepeat(e, expected)
	case *ArrayListLit:
		return g.genArrayList(e, expected)
	}
	return nil, newCompileErr(ErrParse, expr.exprPos(), "unsupported expression")
}

func (g *funcGen) genIntLit(e *IntLit, expected Type) (Type, error) {
	kind := TU256
	if pt, ok := expected.(PrimType); ok && (pt.Kind == TI256 || pt.Kind == TU256) {
		kind = pt.Kind
	} else if e.Value.Sign() < 0 {
		kind = TI256
	}
	if kind == TI256 {
		if e.Value.Cmp(i256MinCompiler) < 0 || e.Value.Cmp(i256MaxCompiler) > 0 {
			return nil, newCompileErr(ErrOutOfRange, e.Pos, "I256 literal %s out of range", e.Value)
		}
		g.emit(vm.PushI256(encodeI256(e.Value)))
		return PrimType{Kind: TI256}, nil
	}
	if e.Value.Sign() < 0 {
		return nil, newCompileErr(ErrType, e.Pos, "negative literal is not a valid U256")
	}
	if e.Value.Cmp(u256MaxCompiler) > 0 {
		return nil, newCompileErr(ErrOutOfRange, e.Pos, "U256 literal %s out of range", e.Value)
	}
	g.emit(vm.PushU256(e.Value.Bytes()))
	return PrimType{Kind: TU256}, nil
}

func (g *funcGen) genUnary(e *UnaryExpr) (Type, error) {
	if e.Op == TokNot {
		t, err := g.genExpr(e.X, PrimType{Kind: TBool})
		if err != nil {
			return nil, err
		}
		if !isPrim(t, TBool) {
			return nil, newCompileErr(ErrType, e.Pos, "! requires Bool, got %s", t)
		}
		g.emit(vm.Simple(vm.OpBoolNot))
		return t, nil
	}
	g.emit(vm.PushI256(encodeI256(big.NewInt(0))))
	t, err := g.genExpr(e.X, PrimType{Kind: TI256})
	if err != nil {
		return nil, err
	}
	if !isPrim(t, TI256) {
		return nil, newCompileErr(ErrType, e.Pos, "unary - requires I256, got %s", t)
	}
	g.emit(vm.Simple(vm.OpI256Sub))
	return t, nil
}

func (g *funcGen) resolveBinaryOperandTypes(x, y Expr) (Type, Type, error) {
	xt, err := g.typeOfExpr(x)
	if err != nil {
		return nil, nil, err
	}
	yt, err := g.typeOfExpr(y)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case xt == nil && yt == nil:
		return PrimType{Kind: TU256}, PrimType{Kind: TU256}, nil
	case xt == nil:
		return yt, yt, nil
	case yt == nil:
		return xt, xt, nil
	default:
		return xt, yt, nil
	}
}

func (g *funcGen) genBinary(e *BinaryExpr) (Type, error) {
	xExpected, yExpected, err := g.resolveBinaryOperandTypes(e.X, e.Y)
	if err != nil {
		return nil, err
	}
	xt, err := g.genExpr(e.X, xExpected)
	if err != nil {
		return nil, err
	}
	yt, err := g.genExpr(e.Y, yExpected)
	if err != nil {
		return nil, err
	}
	if !xt.Equal(yt) {
		return nil, newCompileErr(ErrType, e.Pos, "operand type mismatch: %s vs %s", xt, yt)
	}

	switch e.Op {
	case TokAndAnd, TokOrOr:
		if !isPrim(xt, TBool) {
			return nil, newCompileErr(ErrType, e.Pos, "&&/|| require Bool operands, got %s", xt)
		}
		if e.Op == TokAndAnd {
			g.emit(vm.Simple(vm.OpBoolAnd))
		} else {
			g.emit(vm.Simple(vm.OpBoolOr))
		}
		return PrimType{Kind: TBool}, nil

	case TokEq, TokNeq:
		if isPrim(xt, TAddress) {
			g.emit(vm.Simple(vm.OpAddressEq))
			if e.Op == TokNeq {
				g.emit(vm.Simple(vm.OpBoolNot))
			}
			return PrimType{Kind: TBool}, nil
		}
		if _, isArr := xt.(ArrayType); isArr {
			return nil, newCompileErr(ErrUnsupportedArrayOp, e.Pos, "array equality is not defined")
		}
		op, err := equalityOp(xt, e.Op)
		if err != nil {
			return nil, newCompileErr(ErrType, e.Pos, "%v", err)
		}
		g.emit(vm.Simple(op))
		return PrimType{Kind: TBool}, nil

	case TokLt, TokLe, TokGt, TokGe:
		pt, ok := xt.(PrimType)
		if !ok || (pt.Kind != TI256 && pt.Kind != TU256) {
			return nil, newCompileErr(ErrType, e.Pos, "relational operators require I256 or U256 operands, got %s", xt)
		}
		g.emit(vm.Simple(relOp(pt.Kind, e.Op)))
		return PrimType{Kind: TBool}, nil

	case TokPlus, TokMinus, TokStar, TokSlash, TokPercent:
		pt, ok := xt.(PrimType)
		if !ok || (pt.Kind != TI256 && pt.Kind != TU256) {
			return nil, newCompileErr(ErrType, e.Pos, "arithmetic operators require I256 or U256 operands, got %s", xt)
		}
		g.emit(vm.Simple(arithOp(pt.Kind, e.Op)))
		return xt, nil
	}
	return nil, newCompileErr(ErrType, e.Pos, "unsupported operator")
}

func equalityOp(xt Type, op TokenKind) (vm.Op, error) {
	pt, ok := xt.(PrimType)
	if !ok {
		return 0, newCompileErr(ErrType, Position{}, "unsupported operand type for equality: %s", xt)
	}
	switch pt.Kind {
	case TBool:
		if op == TokEq {
			return vm.OpBoolEq, nil
		}
		return vm.OpBoolNeq, nil
	case TI256:
		if op == TokEq {
			return vm.OpI256Eq, nil
		}
		return vm.OpI256Neq, nil
	case TU256:
		if op == TokEq {
			return vm.OpU256Eq, nil
		}
		return vm.OpU256Neq, nil
	case TByteVec:
		if op == TokEq {
			return vm.OpByteVecEq, nil
		}
		return vm.OpByteVecNeq, nil
	}
	return 0, newCompileErr(ErrType, Position{}, "unsupported operand type for equality: %s", xt)
}

func arithOp(kind PrimKind, op TokenKind) vm.Op {
	if kind == TI256 {
		switch op {
		case TokPlus:
			return vm.OpI256Add
		case TokMinus:
			return vm.OpI256Sub
		case TokStar:
			return vm.OpI256Mul
		case TokSlash:
			return vm.OpI256Div
		default:
			return vm.OpI256Mod
		}
	}
	switch op {
	case TokPlus:
		return vm.OpU256Add
	case TokMinus:
		return vm.OpU256Sub
	case TokStar:
		return vm.OpU256Mul
	case TokSlash:
		return vm.OpU256Div
	default:
		return vm.OpU256Mod
	}
}

func relOp(kind PrimKind, op TokenKind) vm.Op {
	if kind == TI256 {
		switch op {
		case TokLt:
			return vm.OpI256Lt
		case TokLe:
			return vm.OpI256Le
		case TokGt:
			return vm.OpI256Gt
		default:
			return vm.OpI256Ge
		}
	}
	switch op {
	case TokLt:
		return vm.OpU256Lt
	case TokLe:
		return vm.OpU256Le
	case TokGt:
		return vm.OpU256Gt
	default:
		return vm.OpU256Ge
	}
}

func (g *funcGen) genArrayRepeat(e *ArrayRepeatLit, expected Type) (Type, error) {
	if e.Count <= 0 {
		return nil, newCompileErr(ErrType, e.Pos, "array repeat count must be positive")
	}
	var elemExpected Type
	if at, ok := expected.(ArrayType); ok {
		elemExpected = at.Elem
	}
	var elemType Type
	for i := 0; i < e.Count; i++ {
		t, err := g.genExpr(e.Elem, elemExpected)
		if err != nil {
			return nil, err
		}
		if elemType == nil {
			elemType = t
		} else if !t.Equal(elemType) {
			return nil, newCompileErr(ErrType, e.Pos, "array repeat element type mismatch")
		}
	}
	return ArrayType{Elem: elemType, Size: e.Count}, nil
}

func (g *funcGen) genArrayList(e *ArrayListLit, expected Type) (Type, error) {
	if len(e.Elems) == 0 {
		return nil, newCompileErr(ErrType, e.Pos, "empty array literal")
	}
	var elemExpected Type
	if at, ok := expected.(ArrayType); ok {
		elemExpected = at.Elem
	}
	var elemType Type
	for _, el := range e.Elems {
		t, err := g.genExpr(el, elemExpected)
		if err != nil {
			return nil, err
		}
		if elemType == nil {
			elemType = t
		} else if !t.Equal(elemType) {
			return nil, newCompileErr(ErrType, e.Pos, "array literal element type mismatch")
		}
	}
	return ArrayType{Elem: elemType, Size: len(e.Elems)}, nil
}

// --- calls ---

func (g *funcGen) resolveCall(e *CallExpr) (*checkedContract, *checkedFunc, error) {
	if e.Receiver == nil {
		fn, ok := g.cc.funcs[e.Method]
		if !ok {
			return nil, nil, newCompileErr(ErrType, e.Pos, "undefined function %q", e.Method)
		}
		return g.cc, fn, nil
	}
	rt, err := g.typeOfExpr(e.Receiver)
	if err != nil {
		return nil, nil, err
	}
	ct, ok := rt.(ContractType)
	if !ok {
		return nil, nil, newCompileErr(ErrType, e.Pos, "external call receiver must be a contract address, got %s", rt)
	}
	callee, ok := g.cp.contracts[ct.TypeID]
	if !ok {
		return nil, nil, newCompileErr(ErrType, e.Pos, "unknown contract %q", ct.TypeID)
	}
	fn, ok := callee.funcs[e.Method]
	if !ok {
		return nil, nil, newCompileErr(ErrType, e.Pos, "contract %q has no method %q", ct.TypeID, e.Method)
	}
	if !fn.decl.Pub {
		return nil, nil, newCompileErr(ErrType, e.Pos, "method %q of %q is private", e.Method, ct.TypeID)
	}
	return callee, fn, nil
}

// genCallArgsAndDispatch pushes args (in declared order) then, for an
// external call, the callee address on top — CallExternal's pseudocode
// pops the address first, so it must be pushed last.
func (g *funcGen) genCallArgsAndDispatch(e *CallExpr, callee *checkedContract, fn *checkedFunc) error {
	if len(e.Args) != len(fn.paramTypes) {
		return newCompileErr(ErrType, e.Pos, "%q expects %d args, got %d", e.Method, len(fn.paramTypes), len(e.Args))
	}
	for i, a := range e.Args {
		t, err := g.genExpr(a, fn.paramTypes[i])
		if err != nil {
			return err
		}
		if !t.Equal(fn.paramTypes[i]) {
			return newCompileErr(ErrType, a.exprPos(), "argument %d to %q: expected %s, got %s", i, e.Method, fn.paramTypes[i], t)
		}
	}
	isExternal := e.Receiver != nil
	if isExternal {
		rt, err := g.genExpr(e.Receiver, ContractType{TypeID: callee.decl.Name})
		if err != nil {
			return err
		}
		if _, ok := rt.(ContractType); !ok {
			return newCompileErr(ErrType, e.Pos, "call receiver must be a contract address, got %s", rt)
		}
	}
	if fn.index > 255 {
		return newCompileErr(ErrOutOfRange, e.Pos, "method index %d out of range", fn.index)
	}
	if isExternal {
		g.emit(vm.WithIndex(vm.OpCallExternal, byte(fn.index)))
	} else {
		g.emit(vm.WithIndex(vm.OpCallLocal, byte(fn.index)))
	}
	return nil
}

func (g *funcGen) genCallSingle(e *CallExpr) (Type, error) {
	callee, fn, err := g.resolveCall(e)
	if err != nil {
		return nil, err
	}
	if len(fn.returnTypes) != 1 {
		return nil, newCompileErr(ErrType, e.Pos, "call to %q used as a value must return exactly one value", e.Method)
	}
	if err := g.genCallArgsAndDispatch(e, callee, fn); err != nil {
		return nil, err
	}
	return fn.returnTypes[0], nil
}

func (g *funcGen) genCallMulti(e *CallExpr) ([]Type, error) {
	callee, fn, err := g.resolveCall(e)
	if err != nil {
		return nil, err
	}
	if err := g.genCallArgsAndDispatch(e, callee, fn); err != nil {
		return nil, err
	}
	return fn.returnTypes, nil
}

// --- helpers ---

func isPrim(t Type, k PrimKind) bool {
	pt, ok := t.(PrimType)
	return ok && pt.Kind == k
}

func typesEqual(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

var (
	i256MinCompiler = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	i256MaxCompiler = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	u256MaxCompiler = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// encodeI256 renders v as the 32-byte two's complement encoding
// vm.i256FromTwosComplementBytes expects back.
func encodeI256(v *big.Int) []byte {
	if v.Sign() >= 0 {
		return leftPad32(v.Bytes())
	}
	mod := new(big.Int).Lsh(big.NewInt(1), 256)
	mod.Add(mod, v)
	return leftPad32(mod.Bytes())
}

func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
