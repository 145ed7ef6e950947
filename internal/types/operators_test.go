package types

import (
	"testing"

	"quill/internal/ast"
)

func TestBinaryAddAcceptsStrings(t *testing.T) {
	specs := BinarySpecs(ast.BinAdd)
	if len(specs) != 1 {
		t.Fatalf("expected single spec for +")
	}
	if specs[0].Operands&FamilyString == 0 {
		t.Fatalf("+ must accept strings, got %+v", specs[0])
	}
	if specs[0].Result != BinaryResultOperand {
		t.Fatalf("+ must yield the operand type")
	}
}

func TestBinarySubRejectsStrings(t *testing.T) {
	for _, op := range []ast.ExprBinaryOp{ast.BinSub, ast.BinMul, ast.BinDiv} {
		specs := BinarySpecs(op)
		if len(specs) != 1 {
			t.Fatalf("expected single spec for %v", op)
		}
		if specs[0].Operands&FamilyString != 0 {
			t.Fatalf("%v must not accept strings", op)
		}
	}
}

func TestComparisonsYieldBool(t *testing.T) {
	for _, op := range []ast.ExprBinaryOp{ast.BinEq, ast.BinNe, ast.BinLt, ast.BinGt, ast.BinLe, ast.BinGe} {
		specs := BinarySpecs(op)
		if len(specs) != 1 || specs[0].Result != BinaryResultBool {
			t.Fatalf("%v must yield Bool", op)
		}
	}
}

func TestBitwiseIntOnly(t *testing.T) {
	for _, op := range []ast.ExprBinaryOp{ast.BinBitAnd, ast.BinBitOr, ast.BinBitXor, ast.BinShl, ast.BinShr} {
		specs := BinarySpecs(op)
		if len(specs) != 1 || specs[0].Operands != FamilyInt {
			t.Fatalf("%v must be Int-only", op)
		}
	}
}

func TestUnarySpecs(t *testing.T) {
	if UnarySpecs(ast.UnNeg)[0].Operand != FamilyNumeric {
		t.Fatalf("- must accept numeric only")
	}
	if UnarySpecs(ast.UnNot)[0].Operand != FamilyBool {
		t.Fatalf("! must accept Bool only")
	}
	if UnarySpecs(ast.UnBitNot)[0].Operand != FamilyInt {
		t.Fatalf("~ must accept Int only")
	}
}

func TestInterpolatableClosedList(t *testing.T) {
	yes := []Kind{KindInt, KindFloat, KindBool, KindString, KindByte}
	for _, k := range yes {
		if !Interpolatable(k) {
			t.Fatalf("%v must be interpolatable", k)
		}
	}
	no := []Kind{KindStruct, KindArray, KindMap, KindEnum, KindTask, KindNullable, KindTrait, KindFn, KindChannel, KindError, KindUnit}
	for _, k := range no {
		if Interpolatable(k) {
			t.Fatalf("%v must not be interpolatable", k)
		}
	}
}

func TestNullableHasNoFamily(t *testing.T) {
	if FamilyOf(KindNullable) != 0 {
		t.Fatalf("nullable values never participate in operators directly")
	}
}
