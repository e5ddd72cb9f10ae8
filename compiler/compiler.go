// Package compiler implements §4.7's pipeline (parse → AST → type-check →
// codegen) for the TxScript/TxContract/AssetScript source language,
// targeting the vm package's bytecode. There is no example-repo precedent
// for a free-text language compiler anywhere in the pack; the nearest is
// txscript's own script assembler (parseScriptAndVerifySize), which
// assembles already-disassembled opcodes rather than parsing source text,
// so the lexer/parser/codegen shape here is hand-written rather than
// grounded on a specific pack file (see DESIGN.md).
package compiler

import (
	"github.com/Jantoko/alephium/primitives"
	"github.com/Jantoko/alephium/vm"
	"github.com/pkg/errors"
)

// ContractTemplate is one compiled TxContract: its method table plus the
// declared (unflattened) field types, ready to be instantiated with
// concrete field values at deployment time.
type ContractTemplate struct {
	Name       string
	FieldTypes []Type
	slotCount  int
	Methods    []*vm.Method
}

// Instantiate builds a deployable vm.Contract from flattened field slot
// values (one per flattened storage slot, matching OpLoadField/StoreField
// indices — not one per declared field).
func (t *ContractTemplate) Instantiate(id primitives.Hash, fieldSlots []vm.Val) (*vm.Contract, error) {
	if len(fieldSlots) != t.slotCount {
		return nil, errors.Errorf("compiler: %s expects %d field slots, got %d", t.Name, t.slotCount, len(fieldSlots))
	}
	fields := make([]vm.Val, len(fieldSlots))
	copy(fields, fieldSlots)
	return &vm.Contract{ID: id, Fields: fields, Methods: t.Methods}, nil
}

// Output is everything one compilation unit produces: a compiled
// template per TxContract, and a ready-to-run *vm.Script per
// TxScript/AssetScript (scripts carry no persistent field storage, so
// they need no separate instantiation step — ExecuteScript takes their
// template args directly as ExecuteScript's args parameter).
type Output struct {
	Contracts map[string]*ContractTemplate
	Scripts   map[string]*vm.Script
}

// Compile runs the full pipeline over src and returns every top-level
// declaration it contains, or the first CompileError encountered.
func Compile(src string) (*Output, error) {
	prog, err := parseProgram(src)
	if err != nil {
		return nil, err
	}
	cp, err := buildProgram(prog)
	if err != nil {
		return nil, err
	}

	out := &Output{Contracts: map[string]*ContractTemplate{}, Scripts: map[string]*vm.Script{}}
	for _, name := range cp.order {
		cc := cp.contracts[name]
		methods := make([]*vm.Method, len(cc.funcOrder))
		for _, fname := range cc.funcOrder {
			cf := cc.funcs[fname]
			m, err := genFunc(cp, cc, cf)
			if err != nil {
				return nil, err
			}
			methods[cf.index] = m
		}
		if cc.decl.Kind == DeclContract {
			out.Contracts[name] = &ContractTemplate{
				Name:       name,
				FieldTypes: cc.fieldList,
				slotCount:  cc.fields.slotCount(),
				Methods:    methods,
			}
		} else {
			out.Scripts[name] = &vm.Script{Methods: methods}
		}
	}
	return out, nil
}
