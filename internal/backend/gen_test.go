package backend

import (
	"bytes"
	"testing"

	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/layout"
	"quill/internal/mir"
	"quill/internal/rt"
	"quill/internal/sema"
	"quill/internal/source"
)

// emitHarness assembles a tree, checks and lowers it, and emits native code.
type emitHarness struct {
	t   *testing.T
	b   *ast.Builder
	bag *diag.Bag
}

func newEmitHarness(t *testing.T) *emitHarness {
	t.Helper()
	return &emitHarness{
		t:   t,
		b:   ast.NewBuilder(ast.Hints{}, nil),
		bag: diag.NewBag(64),
	}
}

func (h *emitHarness) emit(arch Arch) *Object {
	h.t.Helper()
	rep := diag.BagReporter{Bag: h.bag}
	sem := sema.Check(h.b.Tree, sema.Options{Reporter: rep})
	if h.bag.HasErrors() {
		h.t.Fatalf("checker reported errors: %+v", h.bag.Items())
	}
	mod := mir.Lower(h.b.Tree, sem, mir.Options{Reporter: rep})
	if h.bag.HasErrors() {
		h.t.Fatalf("lowering reported defects: %+v", h.bag.Items())
	}

	target := layout.X86_64LinuxGNU()
	if arch == ArchARM64 {
		target = layout.AArch64LinuxGNU()
	}
	obj, err := Emit(mod, Options{
		Arch:     arch,
		Types:    sem.Types,
		Layout:   layout.New(target, sem.Types),
		Reporter: rep,
	})
	if err != nil {
		h.t.Fatalf("emission failed: %v (%+v)", err, h.bag.Items())
	}
	return obj
}

func (h *emitHarness) block(stmts ...ast.StmtID) ast.StmtID {
	return h.b.NewStmt(ast.Stmt{Kind: ast.StmtBlock, Stmts: stmts})
}

func (h *emitHarness) exprStmt(e ast.ExprID) ast.StmtID {
	return h.b.NewStmt(ast.Stmt{Kind: ast.StmtExpr, Expr: e})
}

func (h *emitHarness) intLit(v int64) ast.ExprID {
	return h.b.NewExpr(ast.Expr{Kind: ast.ExprLit, Lit: ast.LitInt, IntVal: v})
}

func (h *emitHarness) ident(name string) ast.ExprID {
	return h.b.NewExpr(ast.Expr{Kind: ast.ExprIdent, Name: h.b.Intern(name)})
}

func findFunc(obj *Object, name string) (Sym, bool) {
	for _, s := range obj.Funcs {
		if s.Name == name {
			return s, true
		}
	}
	return Sym{}, false
}

func findDataSym(obj *Object, name string) (Sym, bool) {
	for _, s := range obj.DataSyms {
		if s.Name == name {
			return s, true
		}
	}
	return Sym{}, false
}

func callsSymbol(obj *Object, name string) bool {
	for _, r := range obj.Relocs {
		if r.Kind == RelocCall && r.Symbol == name {
			return true
		}
	}
	return false
}

func archesUnderTest() []Arch { return []Arch{ArchAMD64, ArchARM64} }

// buildApp assembles a unit with two singletons, an app consuming them, a
// string literal in main, and a spawned free function.
func (h *emitHarness) buildApp() {
	ret := h.b.NewStmt(ast.Stmt{Kind: ast.StmtReturn, HasValue: true, Value: h.intLit(1)})
	h.b.NewFn(ast.Fn{
		Name: h.b.Intern("g"), Result: h.b.Named("Int", source.Span{}), Body: h.block(ret),
	})

	h.b.NewDecl(ast.Decl{
		Kind: ast.DeclClass, Name: h.b.Intern("Store"), Scope: ast.ScopeSingleton,
	})
	h.b.NewDecl(ast.Decl{
		Kind: ast.DeclClass, Name: h.b.Intern("Svc"), Scope: ast.ScopeSingleton,
		Deps: []ast.TypeRefID{h.b.Named("Store", source.Span{})},
	})
	appID := h.b.NewDecl(ast.Decl{
		Kind: ast.DeclApp, Name: h.b.Intern("App"),
		Deps: []ast.TypeRefID{h.b.Named("Svc", source.Span{})},
	})

	lit := h.b.NewExpr(ast.Expr{Kind: ast.ExprLit, Lit: ast.LitString, StrVal: "hi"})
	let := h.b.NewStmt(ast.Stmt{Kind: ast.StmtLet, Name: h.b.Intern("m"), Value: lit})
	call := h.b.NewExpr(ast.Expr{Kind: ast.ExprCall, Callee: h.ident("g")})
	spawn := h.b.NewExpr(ast.Expr{Kind: ast.ExprSpawn, Operand: call})

	mainFn := h.b.NewFn(ast.Fn{
		Name: h.b.Intern("main"), Owner: appID,
		Body: h.block(let, h.exprStmt(spawn)),
	})
	h.b.AttachMethod(appID, mainFn)
}

func TestEmitAppProducesAllSymbols(t *testing.T) {
	for _, arch := range archesUnderTest() {
		h := newEmitHarness(t)
		h.buildApp()
		obj := h.emit(arch)

		for _, name := range []string{mir.EntryName, "App.main", "g", "g$spawn"} {
			s, ok := findFunc(obj, name)
			if !ok {
				t.Fatalf("%s: no function symbol %q", arch, name)
			}
			if s.Size <= 0 {
				t.Fatalf("%s: empty body for %q", arch, name)
			}
		}
		if len(obj.Globals) != 2 ||
			obj.Globals[0] != "quill.g.Store" || obj.Globals[1] != "quill.g.Svc" {
			t.Fatalf("%s: singleton cells: %+v", arch, obj.Globals)
		}
	}
}

func TestEmitRuntimeCallsAreRelocated(t *testing.T) {
	for _, arch := range archesUnderTest() {
		h := newEmitHarness(t)
		h.buildApp()
		obj := h.emit(arch)

		for _, sym := range []string{rt.SymAlloc, rt.SymStrLit, rt.SymTaskSpawn} {
			if !callsSymbol(obj, sym) {
				t.Fatalf("%s: no call relocation against %s", arch, sym)
			}
		}
	}
}

func TestEmitStringLiteralLandsInData(t *testing.T) {
	for _, arch := range archesUnderTest() {
		h := newEmitHarness(t)
		h.buildApp()
		obj := h.emit(arch)

		s, ok := findDataSym(obj, "quill.str.0")
		if !ok {
			t.Fatalf("%s: string literal data symbol missing", arch)
		}
		if got := obj.Data[s.Offset : s.Offset+s.Size]; !bytes.Equal(got, []byte("hi")) {
			t.Fatalf("%s: literal payload: %q", arch, got)
		}
	}
}

func TestEmitEntryCarriesStackMaps(t *testing.T) {
	for _, arch := range archesUnderTest() {
		h := newEmitHarness(t)
		h.buildApp()
		obj := h.emit(arch)

		var entry *StackMap
		for i := range obj.StackMaps {
			if obj.StackMaps[i].Func == mir.EntryName {
				entry = &obj.StackMaps[i]
			}
		}
		if entry == nil {
			t.Fatalf("%s: the entry function allocates and must carry a stack map", arch)
		}
		// Three allocations at least: Store, Svc, the app instance.
		if len(entry.Sites) < 3 {
			t.Fatalf("%s: expected sites for every allocation, got %d", arch, len(entry.Sites))
		}
		live := 0
		for _, site := range entry.Sites {
			live += len(site.Pointers)
		}
		if live == 0 {
			t.Fatalf("%s: singletons stay live across construction, maps are empty", arch)
		}
	}
}

func TestEmitVTableSlotsRelocateToMethods(t *testing.T) {
	for _, arch := range archesUnderTest() {
		h := newEmitHarness(t)

		traitID := h.b.NewDecl(ast.Decl{Kind: ast.DeclTrait, Name: h.b.Intern("Greeter")})
		sig := h.b.NewFn(ast.Fn{Name: h.b.Intern("greet"), Owner: traitID})
		h.b.AttachMethod(traitID, sig)

		engID := h.b.NewDecl(ast.Decl{
			Kind: ast.DeclClass, Name: h.b.Intern("Eng"),
			Traits: []ast.TypeRefID{h.b.Named("Greeter", source.Span{})},
		})
		greet := h.b.NewFn(ast.Fn{Name: h.b.Intern("greet"), Owner: engID, Body: h.block()})
		h.b.AttachMethod(engID, greet)

		appID := h.b.NewDecl(ast.Decl{
			Kind: ast.DeclApp, Name: h.b.Intern("App"),
			Deps: []ast.TypeRefID{h.b.Named("Greeter", source.Span{})},
		})
		mainFn := h.b.NewFn(ast.Fn{Name: h.b.Intern("main"), Owner: appID, Body: h.block()})
		h.b.AttachMethod(appID, mainFn)

		obj := h.emit(arch)

		vt, ok := findDataSym(obj, "quill.vt.Eng$Greeter")
		if !ok {
			t.Fatalf("%s: vtable data symbol missing", arch)
		}
		if vt.Size != 8 {
			t.Fatalf("%s: one-slot vtable must be 8 bytes, got %d", arch, vt.Size)
		}
		if len(obj.DataRelocs) != 1 {
			t.Fatalf("%s: expected one data relocation, got %+v", arch, obj.DataRelocs)
		}
		dr := obj.DataRelocs[0]
		if dr.Kind != RelocAddr || dr.Offset != vt.Offset || dr.Symbol != "Eng.greet" {
			t.Fatalf("%s: vtable slot relocation: %+v", arch, dr)
		}
	}
}

func TestEmitDeterministicAcrossRuns(t *testing.T) {
	build := func() *Object {
		h := newEmitHarness(t)
		h.buildApp()
		return h.emit(ArchAMD64)
	}
	a, b := build(), build()
	if !bytes.Equal(a.Text, b.Text) {
		t.Fatal("text differs between identical inputs")
	}
	if !bytes.Equal(a.Data, b.Data) {
		t.Fatal("data differs between identical inputs")
	}
}
