package ast

import (
	"quill/internal/source"
)

// Param is a named function parameter.
type Param struct {
	Name source.StringID
	Type TypeRefID
	Span source.Span
}

// Fn is a free function or a method (Owner set). Trait method signatures
// carry NoStmtID bodies.
type Fn struct {
	Name  source.StringID
	Span  source.Span
	Owner DeclID // NoDeclID for free functions

	Params []Param
	Result TypeRefID // NoTypeRefID means Unit
	Body   StmtID

	Requires []ExprID
	Ensures  []ExprID

	// Raises marks functions that may leave an error in the execution
	// context's error slot.
	Raises bool
	// Public and Mutating drive class invariant instrumentation: invariants
	// run after every public mutating method.
	Public   bool
	Mutating bool
}

type Fns struct {
	Arena *Arena[Fn]
}

func NewFns(capHint uint) *Fns {
	return &Fns{Arena: NewArena[Fn](capHint)}
}

func (f *Fns) New(fn Fn) FnID {
	return FnID(f.Arena.Allocate(fn))
}

func (f *Fns) Get(id FnID) *Fn {
	return f.Arena.Get(uint32(id))
}
