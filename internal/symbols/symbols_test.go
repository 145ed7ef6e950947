package symbols

import (
	"testing"

	"quill/internal/ast"
	"quill/internal/source"
)

func TestDeclareCollisionAcrossKinds(t *testing.T) {
	strings := source.NewInterner()
	name := strings.Intern("MyApp")

	tbl := NewTable(8)
	first, ok := tbl.Declare(Symbol{Name: name, Kind: SymbolClass, Decl: ast.DeclID(1)})
	if !ok {
		t.Fatalf("first declaration must succeed")
	}

	// Same name, different declaration kind: still a collision.
	second, ok := tbl.Declare(Symbol{Name: name, Kind: SymbolApp, Decl: ast.DeclID(2)})
	if ok {
		t.Fatalf("cross-kind name reuse must be rejected")
	}
	if second != first {
		t.Fatalf("collision must report the original symbol, got %d want %d", second, first)
	}

	if got := tbl.Get(first); got == nil || got.Kind != SymbolClass {
		t.Fatalf("original symbol must survive the collision")
	}
}

func TestLookup(t *testing.T) {
	strings := source.NewInterner()
	tbl := NewTable(4)

	id, _ := tbl.Declare(Symbol{Name: strings.Intern("helper"), Kind: SymbolFunction, Fn: ast.FnID(3)})
	got, ok := tbl.Lookup(strings.Intern("helper"))
	if !ok || got != id {
		t.Fatalf("lookup failed: ok=%v got=%d want=%d", ok, got, id)
	}
	if _, ok := tbl.Lookup(strings.Intern("missing")); ok {
		t.Fatalf("missing name must not resolve")
	}
}
