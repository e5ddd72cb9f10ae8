package compiler

import "math/big"

// parser is a recursive-descent parser over the lexer's token stream.
// There is no example-repo precedent for a free-text grammar parser in the
// pack (see DESIGN.md); the recursive-descent shape itself follows the
// general structure of every hand-written parser in the Go ecosystem
// (e.g. go/parser), not any one pack file.
type parser struct {
	lx   *lexer
	tok  Token
	peek *Token
}

func newParser(src string) (*parser, error) {
	p := &parser{lx: newLexer(src)}
	if err := p.nextToken(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) nextToken() error {
	if p.peek != nil {
		p.tok = *p.peek
		p.peek = nil
		return nil
	}
	t, err := p.lx.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) expect(kind TokenKind, what string) (Token, error) {
	if p.tok.Kind != kind {
		return Token{}, newCompileErr(ErrParse, p.tok.Pos, "expected %s, got %q", what, p.tok.Text)
	}
	t := p.tok
	if err := p.nextToken(); err != nil {
		return Token{}, err
	}
	return t, nil
}

func (p *parser) at(kind TokenKind) bool { return p.tok.Kind == kind }

// parseProgram parses a whole compilation unit: zero or more
// TxContract/TxScript/AssetScript declarations.
func parseProgram(src string) (*Program, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	prog := &Program{}
	for !p.at(TokEOF) {
		decl, err := p.parseDecl()
		if err != nil {
			return nil, err
		}
		prog.Decls = append(prog.Decls, decl)
	}
	return prog, nil
}

func (p *parser) parseDecl() (*ContractDecl, error) {
	pos := p.tok.Pos
	var kind DeclKind
	switch p.tok.Kind {
	case TokTxContract:
		kind = DeclContract
	case TokTxScript:
		kind = DeclScript
	case TokAssetScript:
		kind = DeclAssetScript
	default:
		return nil, newCompileErr(ErrParse, pos, "expected TxContract, TxScript, or AssetScript, got %q", p.tok.Text)
	}
	if err := p.nextToken(); err != nil {
		return nil, err
	}
	name, err := p.expect(TokIdent, "declaration name")
	if err != nil {
		return nil, err
	}
	var fields []Param
	if p.at(TokLParen) {
		fields, err = p.parseParamList()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	decl := &ContractDecl{Name: name.Text, Kind: kind, Fields: fields, Pos: pos}
	for !p.at(TokRBrace) {
		if p.at(TokEvent) {
			ev, err := p.parseEvent()
			if err != nil {
				return nil, err
			}
			decl.Events = append(decl.Events, *ev)
			continue
		}
		fn, err := p.parseFunc()
		if err != nil {
			return nil, err
		}
		decl.Methods = append(decl.Methods, *fn)
	}
	if _, err := p.expect(TokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *parser) parseEvent() (*EventDecl, error) {
	pos := p.tok.Pos
	if err := p.nextToken(); err != nil {
		return nil, err
	}
	name, err := p.expect(TokIdent, "event name")
	if err != nil {
		return nil, err
	}
	fields, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokSemicolon, "';'"); err != nil {
		return nil, err
	}
	return &EventDecl{Name: name.Text, Fields: fields, Pos: pos}, nil
}

func (p *parser) parseParamList() ([]Param, error) {
	if _, err := p.expect(TokLParen, "'('"); err != nil {
		return nil, err
	}
	var params []Param
	for !p.at(TokRParen) {
		if len(params) > 0 {
			if _, err := p.expect(TokComma, "','"); err != nil {
				return nil, err
			}
		}
		namePos := p.tok.Pos
		name, err := p.expect(TokIdent, "parameter name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon, "':'"); err != nil {
			return nil, err
		}
		typ, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		params = append(params, Param{Name: name.Text, Type: typ, Pos: namePos})
	}
	if _, err := p.expect(TokRParen, "')'"); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *parser) parseTypeExpr() (TypeExpr, error) {
	pos := p.tok.Pos
	if p.at(TokLBracket) {
		if err := p.nextToken(); err != nil {
			return TypeExpr{}, err
		}
		elem, err := p.parseTypeExpr()
		if err != nil {
			return TypeExpr{}, err
		}
		if _, err := p.expect(TokSemicolon, "';'"); err != nil {
			return TypeExpr{}, err
		}
		sizeTok, err := p.expect(TokIntLit, "array size")
		if err != nil {
			return TypeExpr{}, err
		}
		if _, err := p.expect(TokRBracket, "']'"); err != nil {
			return TypeExpr{}, err
		}
		size := int(parseBigInt(sizeTok.Text).Int64())
		return TypeExpr{Elem: &elem, Size: size, Pos: pos}, nil
	}
	name, err := p.expect(TokIdent, "type name")
	if err != nil {
		return TypeExpr{}, err
	}
	return TypeExpr{Name: name.Text, Pos: pos}, nil
}

func (p *parser) parseFunc() (*FuncDecl, error) {
	pos := p.tok.Pos
	fn := &FuncDecl{Pos: pos}
	for p.at(TokPub) || p.at(TokPayable) {
		if p.at(TokPub) {
			fn.Pub = true
		} else {
			fn.Payable = true
		}
		if err := p.nextToken(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokFn, "'fn'"); err != nil {
		return nil, err
	}
	name, err := p.expect(TokIdent, "function name")
	if err != nil {
		return nil, err
	}
	fn.Name = name.Text
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	fn.Params = params
	if p.at(TokArrow) {
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		rt, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		fn.ReturnTypes = append(fn.ReturnTypes, rt)
		for p.at(TokComma) {
			if err := p.nextToken(); err != nil {
				return nil, err
			}
			rt, err := p.parseTypeExpr()
			if err != nil {
				return nil, err
			}
			fn.ReturnTypes = append(fn.ReturnTypes, rt)
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

func (p *parser) parseBlock() ([]Stmt, error) {
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for !p.at(TokRBrace) {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	if _, err := p.expect(TokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *parser) parseStmt() (Stmt, error) {
	pos := p.tok.Pos
	// A statement's trailing ';' is optional.
	optSemi := func() error {
		if p.at(TokSemicolon) {
			return p.nextToken()
		}
		return nil
	}
	switch p.tok.Kind {
	case TokLet:
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		name, err := p.expect(TokIdent, "let-bound name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokAssign, "'='"); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := optSemi(); err != nil {
			return nil, err
		}
		return &LetStmt{Name: name.Text, Value: val, Pos: pos}, nil

	case TokReturn:
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		var vals []Expr
		if !p.at(TokSemicolon) && !p.at(TokRBrace) {
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
			for p.at(TokComma) {
				if err := p.nextToken(); err != nil {
					return nil, err
				}
				v, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				vals = append(vals, v)
			}
		}
		if err := optSemi(); err != nil {
			return nil, err
		}
		return &ReturnStmt{Values: vals, Pos: pos}, nil

	case TokIf:
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		then, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		var els []Stmt
		if p.at(TokElse) {
			if err := p.nextToken(); err != nil {
				return nil, err
			}
			els, err = p.parseBlock()
			if err != nil {
				return nil, err
			}
		}
		return &IfStmt{Cond: cond, Then: then, Else: els, Pos: pos}, nil

	case TokWhile:
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &WhileStmt{Cond: cond, Body: body, Pos: pos}, nil

	case TokEmit:
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		name, err := p.expect(TokIdent, "event name")
		if err != nil {
			return nil, err
		}
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		if err := optSemi(); err != nil {
			return nil, err
		}
		return &EmitStmt{Event: name.Text, Args: args, Pos: pos}, nil

	default:
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.at(TokAssign) {
			if err := p.nextToken(); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := optSemi(); err != nil {
				return nil, err
			}
			return &AssignStmt{Target: x, Value: val, Pos: pos}, nil
		}
		if err := optSemi(); err != nil {
			return nil, err
		}
		return &ExprStmt{X: x, Pos: pos}, nil
	}
}

func (p *parser) parseArgList() ([]Expr, error) {
	if _, err := p.expect(TokLParen, "'('"); err != nil {
		return nil, err
	}
	var args []Expr
	for !p.at(TokRParen) {
		if len(args) > 0 {
			if _, err := p.expect(TokComma, "','"); err != nil {
				return nil, err
			}
		}
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	if _, err := p.expect(TokRParen, "')'"); err != nil {
		return nil, err
	}
	return args, nil
}

// Operator precedence, lowest to highest: || , && , equality, relational,
// additive, multiplicative, unary, postfix (call/index).
func (p *parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (Expr, error) {
	x, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(TokOrOr) {
		pos := p.tok.Pos
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		y, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{Op: TokOrOr, X: x, Y: y, Pos: pos}
	}
	return x, nil
}

func (p *parser) parseAnd() (Expr, error) {
	x, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.at(TokAndAnd) {
		pos := p.tok.Pos
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		y, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{Op: TokAndAnd, X: x, Y: y, Pos: pos}
	}
	return x, nil
}

func (p *parser) parseEquality() (Expr, error) {
	x, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.at(TokEq) || p.at(TokNeq) {
		op, pos := p.tok.Kind, p.tok.Pos
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		y, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{Op: op, X: x, Y: y, Pos: pos}
	}
	return x, nil
}

func (p *parser) parseRelational() (Expr, error) {
	x, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.at(TokLt) || p.at(TokLe) || p.at(TokGt) || p.at(TokGe) {
		op, pos := p.tok.Kind, p.tok.Pos
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		y, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{Op: op, X: x, Y: y, Pos: pos}
	}
	return x, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	x, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(TokPlus) || p.at(TokMinus) {
		op, pos := p.tok.Kind, p.tok.Pos
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		y, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{Op: op, X: x, Y: y, Pos: pos}
	}
	return x, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(TokStar) || p.at(TokSlash) || p.at(TokPercent) {
		op, pos := p.tok.Kind, p.tok.Pos
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{Op: op, X: x, Y: y, Pos: pos}
	}
	return x, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.at(TokMinus) || p.at(TokNot) {
		op, pos := p.tok.Kind, p.tok.Pos
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if op == TokMinus {
			if lit, ok := x.(*IntLit); ok {
				return &IntLit{Value: new(big.Int).Neg(lit.Value), Pos: pos}, nil
			}
		}
		return &UnaryExpr{Op: op, X: x, Pos: pos}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.at(TokLBracket):
			pos := p.tok.Pos
			var indices []Expr
			for p.at(TokLBracket) {
				if err := p.nextToken(); err != nil {
					return nil, err
				}
				idx, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				if _, err := p.expect(TokRBracket, "']'"); err != nil {
					return nil, err
				}
				indices = append(indices, idx)
			}
			x = &IndexExpr{X: x, Indices: indices, Pos: pos}
		case p.at(TokDot):
			pos := p.tok.Pos
			if err := p.nextToken(); err != nil {
				return nil, err
			}
			name, err := p.expect(TokIdent, "method name")
			if err != nil {
				return nil, err
			}
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			x = &CallExpr{Receiver: x, Method: name.Text, Args: args, Pos: pos}
		default:
			return x, nil
		}
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	pos := p.tok.Pos
	switch p.tok.Kind {
	case TokIntLit:
		v := parseBigInt(p.tok.Text)
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		return &IntLit{Value: v, Pos: pos}, nil
	case TokByteVecLit:
		v := parseHexBytes(p.tok.Text)
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		return &ByteVecLit{Value: v, Pos: pos}, nil
	case TokTrue:
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		return &BoolLit{Value: true, Pos: pos}, nil
	case TokFalse:
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		return &BoolLit{Value: false, Pos: pos}, nil
	case TokLParen:
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, "')'"); err != nil {
			return nil, err
		}
		return x, nil
	case TokLBracket:
		return p.parseArrayLit()
	case TokIdent:
		name := p.tok.Text
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		if p.at(TokLParen) {
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			return &CallExpr{Method: name, Args: args, Pos: pos}, nil
		}
		return &Ident{Name: name, Pos: pos}, nil
	}
	return nil, newCompileErr(ErrParse, pos, "unexpected token %q in expression", p.tok.Text)
}

func (p *parser) parseArrayLit() (Expr, error) {
	pos := p.tok.Pos
	if err := p.nextToken(); err != nil {
		return nil, err
	}
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.at(TokSemicolon) {
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		n, err := p.expect(TokIntLit, "array repeat count")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRBracket, "']'"); err != nil {
			return nil, err
		}
		return &ArrayRepeatLit{Elem: first, Count: int(parseBigInt(n.Text).Int64()), Pos: pos}, nil
	}
	elems := []Expr{first}
	for p.at(TokComma) {
		if err := p.nextToken(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	if _, err := p.expect(TokRBracket, "']'"); err != nil {
		return nil, err
	}
	return &ArrayListLit{Elems: elems, Pos: pos}, nil
}
