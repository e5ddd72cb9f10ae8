package compiler

// checkedEvent is a built §4.7 EventInfo: an event's declared field types,
// checked against at every `emit` site.
type checkedEvent struct {
	fieldTypes []Type
}

// checkedFunc is one FuncDef resolved to a function-table entry
// (§4.7: "FuncDef.id -> SimpleFunc"), plus its resolved parameter and
// return types.
type checkedFunc struct {
	decl        *FuncDecl
	index       int
	paramTypes  []Type
	returnTypes []Type
}

// checkedContract is one TxContract/TxScript/AssetScript with its field
// scope, function table, and event table fully resolved — the §4.7
// "type-check" stage proper, built once up front so that sibling
// contracts and forward-referenced functions resolve without a second
// declaration order pass.
type checkedContract struct {
	decl      *ContractDecl
	fields    *scope
	fieldList []Type // in declaration order, parallel to fields.order
	funcs     map[string]*checkedFunc
	funcOrder []string
	events    map[string]*checkedEvent
}

// checkedProgram is every contract in a compilation unit, keyed by name,
// so CallExternal targets and Contract(typeId) parameters resolve against
// siblings declared in the same source.
type checkedProgram struct {
	contracts map[string]*checkedContract
	order     []string
}

func buildProgram(prog *Program) (*checkedProgram, error) {
	names := map[string]bool{}
	for _, d := range prog.Decls {
		names[d.Name] = true
	}

	cp := &checkedProgram{contracts: map[string]*checkedContract{}}
	for _, d := range prog.Decls {
		if _, dup := cp.contracts[d.Name]; dup {
			return nil, newCompileErr(ErrDuplicate, d.Pos, "declaration %q already defined", d.Name)
		}
		cc, err := buildContract(d, names)
		if err != nil {
			return nil, err
		}
		cp.contracts[d.Name] = cc
		cp.order = append(cp.order, d.Name)
	}
	return cp, nil
}

func buildContract(d *ContractDecl, contractNames map[string]bool) (*checkedContract, error) {
	cc := &checkedContract{
		decl:   d,
		fields: newScope(),
		funcs:  map[string]*checkedFunc{},
		events: map[string]*checkedEvent{},
	}
	for _, f := range d.Fields {
		t, err := resolveType(f.Type, contractNames)
		if err != nil {
			return nil, err
		}
		if _, err := cc.fields.declare(f.Name, t, f.Pos); err != nil {
			return nil, err
		}
		cc.fieldList = append(cc.fieldList, t)
	}

	for _, ev := range d.Events {
		if _, dup := cc.events[ev.Name]; dup {
			return nil, newCompileErr(ErrDuplicate, ev.Pos, "event %q already defined in %s", ev.Name, d.Name)
		}
		var fieldTypes []Type
		for _, f := range ev.Fields {
			t, err := resolveType(f.Type, contractNames)
			if err != nil {
				return nil, err
			}
			fieldTypes = append(fieldTypes, t)
		}
		cc.events[ev.Name] = &checkedEvent{fieldTypes: fieldTypes}
	}

	for i, fn := range d.Methods {
		if _, dup := cc.funcs[fn.Name]; dup {
			return nil, newCompileErr(ErrDuplicate, fn.Pos, "function id %q already defined in %s", fn.Name, d.Name)
		}
		var paramTypes, returnTypes []Type
		for _, p := range fn.Params {
			t, err := resolveType(p.Type, contractNames)
			if err != nil {
				return nil, err
			}
			paramTypes = append(paramTypes, t)
		}
		for _, rt := range fn.ReturnTypes {
			t, err := resolveType(rt, contractNames)
			if err != nil {
				return nil, err
			}
			returnTypes = append(returnTypes, t)
		}
		fnCopy := fn
		cf := &checkedFunc{decl: &fnCopy, index: i, paramTypes: paramTypes, returnTypes: returnTypes}
		cc.funcs[fn.Name] = cf
		cc.funcOrder = append(cc.funcOrder, fn.Name)
	}

	if d.Kind == DeclScript || d.Kind == DeclAssetScript {
		if len(cc.funcOrder) == 0 {
			return nil, newCompileErr(ErrType, d.Pos, "%s %s declares no entrypoint method", declKindName(d.Kind), d.Name)
		}
		for i, name := range cc.funcOrder {
			fn := cc.funcs[name]
			wantPub := i == 0
			if fn.decl.Pub != wantPub {
				if wantPub {
					return nil, newCompileErr(ErrType, fn.decl.Pos, "%s's first method %q must be pub", d.Name, name)
				}
				return nil, newCompileErr(ErrType, fn.decl.Pos, "%s method %q must be private", d.Name, name)
			}
		}
	}

	return cc, nil
}

func declKindName(k DeclKind) string {
	switch k {
	case DeclContract:
		return "TxContract"
	case DeclScript:
		return "TxScript"
	default:
		return "AssetScript"
	}
}
