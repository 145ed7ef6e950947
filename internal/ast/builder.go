package ast

import (
	"quill/internal/source"
)

// Module lists the top-level declarations and free functions of one
// compilation unit in declaration order.
type Module struct {
	Decls []DeclID
	Funcs []FnID
}

// Tree owns every node of one parsed compilation unit. The external parser
// produces it (directly or through the artifact codec); the checker reads it
// and never mutates it.
type Tree struct {
	Strings  *source.Interner
	Decls    *Decls
	Fns      *Fns
	Stmts    *Stmts
	Exprs    *Exprs
	TypeRefs *TypeRefs
	Module   Module
}

type Hints struct{ Decls, Fns, Stmts, Exprs, TypeRefs uint }

// Builder constructs a Tree. Used by the artifact codec and by tests that
// assemble syntax trees by hand.
type Builder struct {
	Tree *Tree
}

func NewBuilder(hints Hints, strings *source.Interner) *Builder {
	if hints.Decls == 0 {
		hints.Decls = 1 << 5
	}
	if hints.Fns == 0 {
		hints.Fns = 1 << 6
	}
	if hints.Stmts == 0 {
		hints.Stmts = 1 << 8
	}
	if hints.Exprs == 0 {
		hints.Exprs = 1 << 8
	}
	if hints.TypeRefs == 0 {
		hints.TypeRefs = 1 << 6
	}
	if strings == nil {
		strings = source.NewInterner()
	}
	return &Builder{
		Tree: &Tree{
			Strings:  strings,
			Decls:    NewDecls(hints.Decls),
			Fns:      NewFns(hints.Fns),
			Stmts:    NewStmts(hints.Stmts),
			Exprs:    NewExprs(hints.Exprs),
			TypeRefs: NewTypeRefs(hints.TypeRefs),
		},
	}
}

func (b *Builder) Intern(s string) source.StringID {
	return b.Tree.Strings.Intern(s)
}

func (b *Builder) NewDecl(decl Decl) DeclID {
	id := b.Tree.Decls.New(decl)
	b.Tree.Module.Decls = append(b.Tree.Module.Decls, id)
	return id
}

func (b *Builder) NewFn(fn Fn) FnID {
	id := b.Tree.Fns.New(fn)
	if !fn.Owner.IsValid() {
		b.Tree.Module.Funcs = append(b.Tree.Module.Funcs, id)
	}
	return id
}

// AttachMethod records a method on its owner declaration.
func (b *Builder) AttachMethod(owner DeclID, fn FnID) {
	d := b.Tree.Decls.Get(owner)
	if d == nil {
		return
	}
	d.Methods = append(d.Methods, fn)
}

func (b *Builder) NewStmt(stmt Stmt) StmtID {
	return b.Tree.Stmts.New(stmt)
}

func (b *Builder) NewExpr(expr Expr) ExprID {
	return b.Tree.Exprs.New(expr)
}

func (b *Builder) NewTypeRef(tr TypeRef) TypeRefID {
	return b.Tree.TypeRefs.New(tr)
}

// Named is a shortcut for a named type reference.
func (b *Builder) Named(name string, span source.Span) TypeRefID {
	return b.NewTypeRef(TypeRef{Kind: TypeRefNamed, Name: b.Intern(name), Span: span})
}
