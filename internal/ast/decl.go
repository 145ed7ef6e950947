package ast

import (
	"quill/internal/source"
)

// DeclKind enumerates top-level declaration kinds.
type DeclKind uint8

const (
	DeclInvalid DeclKind = iota
	DeclClass
	DeclEnum
	DeclTrait
	DeclApp
	DeclError
)

func (k DeclKind) String() string {
	switch k {
	case DeclClass:
		return "class"
	case DeclEnum:
		return "enum"
	case DeclTrait:
		return "trait"
	case DeclApp:
		return "app"
	case DeclError:
		return "error"
	default:
		return "invalid"
	}
}

// DepScope controls how often the injector constructs an injectable class.
type DepScope uint8

const (
	// ScopeTransient rebuilds the instance at every injection site.
	ScopeTransient DepScope = iota
	// ScopeSingleton builds the instance once at app startup and shares it.
	ScopeSingleton
)

// Field is a named, typed member of a class, app, or error declaration.
type Field struct {
	Name source.StringID
	Type TypeRefID
	Span source.Span
}

// Variant is one enum alternative, optionally carrying a payload.
type Variant struct {
	Name    source.StringID
	Payload TypeRefID // NoTypeRefID for plain variants
	Span    source.Span
}

// Decl is a top-level declaration. Variant fields are populated per Kind;
// the rest stay zero.
type Decl struct {
	Kind DeclKind
	Name source.StringID
	Span source.Span

	Fields     []Field     // class, app, error
	Variants   []Variant   // enum
	Methods    []FnID      // class, app, trait (trait methods have no body)
	Deps       []TypeRefID // class: bracketed constructor dependencies
	Scope      DepScope    // class: injection scope
	Traits     []TypeRefID // class: implemented traits
	Invariants []ExprID    // class: contract invariants
}

type Decls struct {
	Arena *Arena[Decl]
}

func NewDecls(capHint uint) *Decls {
	return &Decls{Arena: NewArena[Decl](capHint)}
}

func (d *Decls) New(decl Decl) DeclID {
	return DeclID(d.Arena.Allocate(decl))
}

func (d *Decls) Get(id DeclID) *Decl {
	return d.Arena.Get(uint32(id))
}
