package types

import (
	"fmt"

	"quill/internal/ast"
)

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates all supported kinds of types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUnit
	KindInt
	KindFloat
	KindBool
	KindString
	KindByte
	KindArray
	KindMap
	KindStruct
	KindEnum
	KindTrait
	KindError
	KindFn
	KindNullable
	KindTask
	KindChannel
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnit:
		return "unit"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindByte:
		return "byte"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindStruct:
		return "class"
	case KindEnum:
		return "enum"
	case KindTrait:
		return "trait"
	case KindError:
		return "error"
	case KindFn:
		return "fn"
	case KindNullable:
		return "nullable"
	case KindTask:
		return "task"
	case KindChannel:
		return "channel"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Type is a compact descriptor for any supported type. Nominal kinds
// (struct, enum, trait, error) are identified by their declaration; all
// other kinds compare structurally through the interner.
type Type struct {
	Kind Kind
	Elem TypeID     // array/nullable/task/channel element, map value
	Key  TypeID     // map key
	Decl ast.DeclID // nominal declaration identity
	Sig  uint32     // fn signature index
}

// Descriptor helpers ---------------------------------------------------------

// MakeArray describes Array(elem).
func MakeArray(elem TypeID) Type {
	return Type{Kind: KindArray, Elem: elem}
}

// MakeMap describes Map(key, value).
func MakeMap(key, value TypeID) Type {
	return Type{Kind: KindMap, Key: key, Elem: value}
}

// MakeTask describes Task(elem), the handle produced by spawn.
func MakeTask(elem TypeID) Type {
	return Type{Kind: KindTask, Elem: elem}
}

// MakeChannel describes Channel(elem).
func MakeChannel(elem TypeID) Type {
	return Type{Kind: KindChannel, Elem: elem}
}

// IsPrimitive reports whether the kind belongs to the primitive category
// (numeric, bool, string, byte).
func (k Kind) IsPrimitive() bool {
	switch k {
	case KindInt, KindFloat, KindBool, KindString, KindByte:
		return true
	}
	return false
}

// IsNumeric reports whether the kind supports arithmetic and unary minus.
func (k Kind) IsNumeric() bool {
	return k == KindInt || k == KindFloat
}

// IsNominal reports whether identity is declaration-based.
func (k Kind) IsNominal() bool {
	switch k {
	case KindStruct, KindEnum, KindTrait, KindError:
		return true
	}
	return false
}
