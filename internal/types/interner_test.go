package types

import (
	"testing"

	"quill/internal/ast"
)

func TestInternDeduplicates(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()

	a1 := in.Intern(MakeArray(b.Int))
	a2 := in.Intern(MakeArray(b.Int))
	if a1 != a2 {
		t.Fatalf("expected identical TypeID for Array(Int), got %d and %d", a1, a2)
	}

	m1 := in.Intern(MakeMap(b.String, b.Int))
	m2 := in.Intern(MakeMap(b.Int, b.String))
	if m1 == m2 {
		t.Fatalf("Map(String,Int) and Map(Int,String) must differ")
	}
}

func TestNullableNeverNests(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()

	n1 := in.MakeNullable(b.Int)
	n2 := in.MakeNullable(n1)
	if n1 != n2 {
		t.Fatalf("Nullable(Nullable(Int)) must collapse, got %d and %d", n1, n2)
	}

	tt := in.MustLookup(n2)
	if tt.Kind != KindNullable || tt.Elem != b.Int {
		t.Fatalf("unexpected descriptor %+v", tt)
	}
}

func TestNominalIdentityByDecl(t *testing.T) {
	in := NewInterner()

	c1 := in.RegisterNominal(KindStruct, ast.DeclID(1), 0)
	c1again := in.RegisterNominal(KindStruct, ast.DeclID(1), 0)
	c2 := in.RegisterNominal(KindStruct, ast.DeclID(2), 0)

	if c1 != c1again {
		t.Fatalf("same decl must intern to same TypeID")
	}
	if c1 == c2 {
		t.Fatalf("distinct decls must intern to distinct TypeIDs")
	}
}

func TestFnSignatureRoundTrip(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()

	f1 := in.MakeFn([]TypeID{b.Int, b.String}, b.Bool)
	f2 := in.MakeFn([]TypeID{b.Int, b.String}, b.Bool)
	if f1 != f2 {
		t.Fatalf("identical signatures must share a TypeID")
	}

	sig, ok := in.FnSignature(f1)
	if !ok || sig.Ret != b.Bool || len(sig.Params) != 2 {
		t.Fatalf("signature lookup failed: %+v ok=%v", sig, ok)
	}
}
