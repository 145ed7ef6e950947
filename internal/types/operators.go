package types

import (
	"quill/internal/ast"
)

// Family is a bitmask of primitive kinds an operator accepts. Composite and
// nullable kinds never belong to a family: nullability blocks operator use
// until the value is unwrapped.
type Family uint8

const (
	FamilyInt Family = 1 << iota
	FamilyFloat
	FamilyBool
	FamilyString
	FamilyByte
)

const (
	// FamilyNumeric covers arithmetic operand kinds. Byte is deliberately
	// excluded: bytes compare but do not compute.
	FamilyNumeric = FamilyInt | FamilyFloat
	// FamilyPrimitive covers every comparable primitive kind.
	FamilyPrimitive = FamilyInt | FamilyFloat | FamilyBool | FamilyString | FamilyByte
)

// FamilyOf maps a kind to its operator family. Zero means the kind never
// participates in built-in operators.
func FamilyOf(k Kind) Family {
	switch k {
	case KindInt:
		return FamilyInt
	case KindFloat:
		return FamilyFloat
	case KindBool:
		return FamilyBool
	case KindString:
		return FamilyString
	case KindByte:
		return FamilyByte
	default:
		return 0
	}
}

// BinaryResult selects how a binary operator's result type derives from its
// operands.
type BinaryResult uint8

const (
	// BinaryResultOperand yields the shared operand type.
	BinaryResultOperand BinaryResult = iota
	// BinaryResultBool always yields Bool.
	BinaryResultBool
)

// BinarySpec describes one acceptance rule for a binary operator: both
// operands must share a type whose family intersects Operands.
type BinarySpec struct {
	Operands Family
	Result   BinaryResult
}

// BinarySpecs returns the acceptance rules for an operator. Both operands
// must have the same type; mixed numeric widths are a type mismatch, there
// is no implicit widening.
func BinarySpecs(op ast.ExprBinaryOp) []BinarySpec {
	switch op {
	case ast.BinAdd:
		// The only arithmetic operator defined on strings.
		return []BinarySpec{{Operands: FamilyNumeric | FamilyString, Result: BinaryResultOperand}}
	case ast.BinSub, ast.BinMul, ast.BinDiv:
		return []BinarySpec{{Operands: FamilyNumeric, Result: BinaryResultOperand}}
	case ast.BinEq, ast.BinNe, ast.BinLt, ast.BinGt, ast.BinLe, ast.BinGe:
		return []BinarySpec{{Operands: FamilyPrimitive, Result: BinaryResultBool}}
	case ast.BinLogicalAnd, ast.BinLogicalOr:
		return []BinarySpec{{Operands: FamilyBool, Result: BinaryResultBool}}
	case ast.BinBitAnd, ast.BinBitOr, ast.BinBitXor, ast.BinShl, ast.BinShr:
		return []BinarySpec{{Operands: FamilyInt, Result: BinaryResultOperand}}
	default:
		return nil
	}
}

// UnarySpec describes the operand family a unary operator accepts.
type UnarySpec struct {
	Operand Family
}

// UnarySpecs returns the acceptance rule for a unary operator.
func UnarySpecs(op ast.ExprUnaryOp) []UnarySpec {
	switch op {
	case ast.UnNeg:
		return []UnarySpec{{Operand: FamilyNumeric}}
	case ast.UnNot:
		return []UnarySpec{{Operand: FamilyBool}}
	case ast.UnBitNot:
		return []UnarySpec{{Operand: FamilyInt}}
	default:
		return nil
	}
}
