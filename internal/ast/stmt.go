package ast

import (
	"quill/internal/source"
)

type StmtKind uint8

const (
	StmtInvalid StmtKind = iota
	StmtBlock
	StmtLet
	StmtAssign
	StmtExpr
	StmtReturn
	StmtIf
	StmtWhile
	StmtBreak
	StmtContinue
	StmtMatch
	StmtRaise
)

// MatchArm is one arm of a match statement. Variant == NoStringID marks the
// wildcard arm.
type MatchArm struct {
	Variant source.StringID
	Bind    source.StringID // payload binding, NoStringID when absent
	Body    StmtID
	Span    source.Span
}

// Stmt is a statement node. Variant fields are populated per Kind.
type Stmt struct {
	Kind StmtKind
	Span source.Span

	Stmts []StmtID // block

	Name  source.StringID // let
	Type  TypeRefID       // let: optional annotation
	Value ExprID          // let, assign, return, raise

	Target ExprID // assign

	Expr ExprID // expr statement

	HasValue bool // return

	Cond ExprID // if, while
	Then StmtID // if
	Else StmtID // if: NoStmtID when absent
	Body StmtID // while

	Scrutinee ExprID     // match
	Arms      []MatchArm // match
}

type Stmts struct {
	Arena *Arena[Stmt]
}

func NewStmts(capHint uint) *Stmts {
	return &Stmts{Arena: NewArena[Stmt](capHint)}
}

func (s *Stmts) New(stmt Stmt) StmtID {
	return StmtID(s.Arena.Allocate(stmt))
}

func (s *Stmts) Get(id StmtID) *Stmt {
	return s.Arena.Get(uint32(id))
}
