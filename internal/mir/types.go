// Package mir is the mid-level IR: functions of basic blocks in explicit
// control flow, with error propagation, contracts, injection, and the
// runtime contract spelled out as instructions. Lowering consumes the typed
// tree; the backends consume this.
package mir

import (
	"quill/internal/source"
	"quill/internal/types"
)

type FuncID int32
type BlockID int32
type LocalID int32
type GlobalID int32

const (
	NoFuncID   FuncID   = -1
	NoBlockID  BlockID  = -1
	NoLocalID  LocalID  = -1
	NoGlobalID GlobalID = -1
)

// Local is one virtual register or stack slot. Params come first in
// Func.Locals.
type Local struct {
	Name string
	Type types.TypeID
	Span source.Span
	// Pointer marks locals the collector must see in stack maps.
	Pointer bool
}

// OperandKind distinguishes operand sources.
type OperandKind uint8

const (
	OperandConst OperandKind = iota
	OperandLocal
	OperandGlobal
)

// Operand is a value read: a constant, a local, or a module global.
type Operand struct {
	Kind   OperandKind
	Type   types.TypeID
	Const  Const
	Local  LocalID
	Global GlobalID
}

// ConstKind distinguishes constant kinds.
type ConstKind uint8

const (
	ConstUnit ConstKind = iota
	ConstInt
	ConstFloat
	ConstBool
	ConstByte
	ConstString
	ConstNone
)

// Const is an immediate value. Strings refer into the module's string data.
type Const struct {
	Kind  ConstKind
	Int   int64
	Float float64
	Bool  bool
	Byte  byte
	Str   string
}

// ConstIntOperand builds an integer immediate.
func ConstIntOperand(v int64, t types.TypeID) Operand {
	return Operand{Kind: OperandConst, Type: t, Const: Const{Kind: ConstInt, Int: v}}
}

// LocalOperand reads a local.
func LocalOperand(l LocalID, t types.TypeID) Operand {
	return Operand{Kind: OperandLocal, Type: t, Local: l}
}

// GlobalOperand reads a module global (a singleton instance slot).
func GlobalOperand(g GlobalID, t types.TypeID) Operand {
	return Operand{Kind: OperandGlobal, Type: t, Global: g}
}
