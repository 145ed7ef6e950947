package ast

import (
	"quill/internal/source"
)

// TypeRefKind enumerates syntactic type forms. Resolution to semantic types
// happens in sema.
type TypeRefKind uint8

const (
	TypeRefInvalid TypeRefKind = iota
	TypeRefNamed
	TypeRefArray
	TypeRefMap
	TypeRefNullable
	TypeRefFn
	TypeRefChannel
	TypeRefTask
)

// TypeRef is a syntactic type reference as written in the source.
type TypeRef struct {
	Kind TypeRefKind
	Span source.Span

	Name   source.StringID // TypeRefNamed
	Elem   TypeRefID       // array/nullable/channel/task element
	Key    TypeRefID       // map key
	Value  TypeRefID       // map value
	Params []TypeRefID     // fn parameters
	Ret    TypeRefID       // fn result
}

type TypeRefs struct {
	Arena *Arena[TypeRef]
}

func NewTypeRefs(capHint uint) *TypeRefs {
	return &TypeRefs{Arena: NewArena[TypeRef](capHint)}
}

func (t *TypeRefs) New(tr TypeRef) TypeRefID {
	return TypeRefID(t.Arena.Allocate(tr))
}

func (t *TypeRefs) Get(id TypeRefID) *TypeRef {
	return t.Arena.Get(uint32(id))
}
