package ast

import (
	"quill/internal/source"
)

type ExprKind uint8

const (
	ExprInvalid ExprKind = iota
	ExprIdent
	ExprLit
	ExprBinary
	ExprUnary
	ExprCall
	ExprField
	ExprIndex
	ExprInterp
	ExprNew
	ExprVariant
	ExprSpawn
	ExprCatch
	ExprUnwrap
	ExprHasValue
	ExprChanMake
	ExprChanSend
	ExprChanRecv
)

type ExprBinaryOp uint8

const (
	BinAdd ExprBinaryOp = iota
	BinSub
	BinMul
	BinDiv
	BinEq
	BinNe
	BinLt
	BinGt
	BinLe
	BinGe
	BinLogicalAnd
	BinLogicalOr
	BinBitAnd
	BinBitOr
	BinBitXor
	BinShl
	BinShr
)

func (op ExprBinaryOp) String() string {
	switch op {
	case BinAdd:
		return "+"
	case BinSub:
		return "-"
	case BinMul:
		return "*"
	case BinDiv:
		return "/"
	case BinEq:
		return "=="
	case BinNe:
		return "!="
	case BinLt:
		return "<"
	case BinGt:
		return ">"
	case BinLe:
		return "<="
	case BinGe:
		return ">="
	case BinLogicalAnd:
		return "&&"
	case BinLogicalOr:
		return "||"
	case BinBitAnd:
		return "&"
	case BinBitOr:
		return "|"
	case BinBitXor:
		return "^"
	case BinShl:
		return "<<"
	case BinShr:
		return ">>"
	default:
		return "?"
	}
}

type ExprUnaryOp uint8

const (
	UnNeg ExprUnaryOp = iota
	UnNot
	UnBitNot
)

func (op ExprUnaryOp) String() string {
	switch op {
	case UnNeg:
		return "-"
	case UnNot:
		return "!"
	case UnBitNot:
		return "~"
	default:
		return "?"
	}
}

type LitKind uint8

const (
	LitInt LitKind = iota
	LitFloat
	LitBool
	LitString
	LitByte
	LitNone
)

// InterpPart is one segment of an interpolated string literal. Expr ==
// NoExprID marks a plain text segment.
type InterpPart struct {
	Text string
	Expr ExprID
}

// Expr is an expression node. Variant fields are populated per Kind.
type Expr struct {
	Kind ExprKind
	Span source.Span

	Name source.StringID // ident, field access, variant name

	Lit      LitKind // literal
	IntVal   int64
	FloatVal float64
	BoolVal  bool
	StrVal   string
	ByteVal  byte

	BinOp ExprBinaryOp // binary
	UnOp  ExprUnaryOp  // unary
	Left  ExprID
	Right ExprID

	Operand ExprID // unary, unwrap, has-value, spawn

	Callee ExprID   // call
	Args   []ExprID // call, new
	// Propagate marks `call()!`: forward the callee's error state to the
	// caller's own error slot and return early.
	Propagate bool

	Object ExprID // field, index
	Index  ExprID // index

	Parts []InterpPart // interpolation

	Type TypeRefID // new (class), variant (enum), channel make element

	Payload ExprID // variant payload

	Guarded  ExprID          // catch
	ErrName  source.StringID // catch binding
	Fallback ExprID          // catch

	Channel  ExprID // send/recv
	Value    ExprID // send
	Capacity ExprID // channel make, NoExprID for unbounded
}

type Exprs struct {
	Arena *Arena[Expr]
}

func NewExprs(capHint uint) *Exprs {
	return &Exprs{Arena: NewArena[Expr](capHint)}
}

func (e *Exprs) New(expr Expr) ExprID {
	return ExprID(e.Arena.Allocate(expr))
}

func (e *Exprs) Get(id ExprID) *Expr {
	return e.Arena.Get(uint32(id))
}
