package mir

import (
	"strings"
	"testing"

	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/rt"
	"quill/internal/sema"
	"quill/internal/source"
)

// harness assembles syntax trees by hand, checks them, and lowers them.
type harness struct {
	t   *testing.T
	b   *ast.Builder
	bag *diag.Bag
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		t:   t,
		b:   ast.NewBuilder(ast.Hints{}, nil),
		bag: diag.NewBag(64),
	}
}

// lower runs the checker and the lowerer, requiring both to come out clean,
// and validates the result.
func (h *harness) lower() *Module {
	h.t.Helper()
	sem := sema.Check(h.b.Tree, sema.Options{Reporter: diag.BagReporter{Bag: h.bag}})
	if h.bag.HasErrors() {
		h.t.Fatalf("checker reported errors: %+v", h.bag.Items())
	}
	mod := Lower(h.b.Tree, sem, Options{Reporter: diag.BagReporter{Bag: h.bag}})
	if h.bag.HasErrors() {
		h.t.Fatalf("lowering reported defects: %+v", h.bag.Items())
	}
	if !Validate(mod, diag.BagReporter{Bag: h.bag}) {
		h.t.Fatalf("lowered module fails validation: %+v", h.bag.Items())
	}
	return mod
}

func (h *harness) fn(m *Module, name string) *Func {
	h.t.Helper()
	for i := range m.Funcs {
		if m.Funcs[i].Name == name {
			return &m.Funcs[i]
		}
	}
	h.t.Fatalf("no lowered function named %q", name)
	return nil
}

func (h *harness) block(stmts ...ast.StmtID) ast.StmtID {
	return h.b.NewStmt(ast.Stmt{Kind: ast.StmtBlock, Stmts: stmts})
}

func (h *harness) exprStmt(e ast.ExprID) ast.StmtID {
	return h.b.NewStmt(ast.Stmt{Kind: ast.StmtExpr, Expr: e})
}

func (h *harness) intLit(v int64) ast.ExprID {
	return h.b.NewExpr(ast.Expr{Kind: ast.ExprLit, Lit: ast.LitInt, IntVal: v})
}

func (h *harness) strLit(s string) ast.ExprID {
	return h.b.NewExpr(ast.Expr{Kind: ast.ExprLit, Lit: ast.LitString, StrVal: s})
}

func (h *harness) boolLit(v bool) ast.ExprID {
	return h.b.NewExpr(ast.Expr{Kind: ast.ExprLit, Lit: ast.LitBool, BoolVal: v})
}

func (h *harness) ident(name string) ast.ExprID {
	return h.b.NewExpr(ast.Expr{Kind: ast.ExprIdent, Name: h.b.Intern(name)})
}

func (h *harness) freeFn(name string, body ...ast.StmtID) ast.FnID {
	return h.b.NewFn(ast.Fn{Name: h.b.Intern(name), Body: h.block(body...)})
}

// findInstrs collects every instruction of a kind across all blocks.
func findInstrs(f *Func, kind InstrKind) []*Instr {
	var out []*Instr
	for bi := range f.Blocks {
		for ii := range f.Blocks[bi].Instrs {
			if f.Blocks[bi].Instrs[ii].Kind == kind {
				out = append(out, &f.Blocks[bi].Instrs[ii])
			}
		}
	}
	return out
}

func countTerms(f *Func, kind TermKind) int {
	n := 0
	for bi := range f.Blocks {
		if f.Blocks[bi].Term.Kind == kind {
			n++
		}
	}
	return n
}

func TestIfStatementSplitsControlFlow(t *testing.T) {
	h := newHarness(t)
	ret := h.b.NewStmt(ast.Stmt{Kind: ast.StmtReturn})
	ifStmt := h.b.NewStmt(ast.Stmt{
		Kind: ast.StmtIf, Cond: h.boolLit(true), Then: h.block(ret),
	})
	h.freeFn("f", ifStmt)

	mod := h.lower()
	f := h.fn(mod, "f")

	entry := f.Block(f.Entry)
	if entry.Term.Kind != TermIf {
		t.Fatalf("entry must end in a branch, got %v", entry.Term.Kind)
	}
	if got := f.Block(entry.Term.If.Then).Term.Kind; got != TermReturn {
		t.Fatalf("then block must return, got %v", got)
	}
	// No else arm: the false edge lands on the join, which falls off the end
	// of a Unit function and returns implicitly.
	if got := f.Block(entry.Term.If.Else).Term.Kind; got != TermReturn {
		t.Fatalf("join block must return implicitly, got %v", got)
	}
}

func TestWhileLoopWithBreak(t *testing.T) {
	h := newHarness(t)
	brk := h.b.NewStmt(ast.Stmt{Kind: ast.StmtBreak})
	loop := h.b.NewStmt(ast.Stmt{
		Kind: ast.StmtWhile, Cond: h.boolLit(true), Body: h.block(brk),
	})
	h.freeFn("f", loop)

	mod := h.lower()
	f := h.fn(mod, "f")

	entry := f.Block(f.Entry)
	if entry.Term.Kind != TermGoto {
		t.Fatalf("entry must jump to the loop head, got %v", entry.Term.Kind)
	}
	head := f.Block(entry.Term.Goto.Target)
	if head.Term.Kind != TermIf {
		t.Fatalf("loop head must branch on the condition, got %v", head.Term.Kind)
	}
	body := f.Block(head.Term.If.Then)
	if body.Term.Kind != TermGoto || body.Term.Goto.Target != head.Term.If.Else {
		t.Fatalf("break must jump to the loop exit, got %+v", body.Term)
	}
	if got := f.Block(head.Term.If.Else).Term.Kind; got != TermReturn {
		t.Fatalf("loop exit must return, got %v", got)
	}
}

func TestMatchLowersToTagSwitch(t *testing.T) {
	h := newHarness(t)
	intRef := h.b.Named("Int", source.Span{})
	h.b.NewDecl(ast.Decl{
		Kind: ast.DeclEnum, Name: h.b.Intern("Color"),
		Variants: []ast.Variant{
			{Name: h.b.Intern("Red")},
			{Name: h.b.Intern("Green"), Payload: intRef},
		},
	})
	scrut := h.b.NewExpr(ast.Expr{
		Kind: ast.ExprVariant, Type: h.b.Named("Color", source.Span{}),
		Name: h.b.Intern("Green"), Payload: h.intLit(4),
	})
	match := h.b.NewStmt(ast.Stmt{
		Kind: ast.StmtMatch, Scrutinee: scrut,
		Arms: []ast.MatchArm{
			{Variant: h.b.Intern("Green"), Bind: h.b.Intern("v"), Body: h.exprStmt(h.ident("v"))},
			{Body: h.block()},
		},
	})
	h.freeFn("f", match)

	mod := h.lower()
	f := h.fn(mod, "f")

	var sw *SwitchTagTerm
	for bi := range f.Blocks {
		if f.Blocks[bi].Term.Kind == TermSwitchTag {
			sw = &f.Blocks[bi].Term.SwitchTag
		}
	}
	if sw == nil {
		t.Fatal("match must lower to a tag switch")
	}
	if len(sw.Cases) != 1 || sw.Cases[0].Tag != 1 {
		t.Fatalf("Green is tag 1, got cases %+v", sw.Cases)
	}
	payloads := findInstrs(f, InstrEnumPayload)
	if len(payloads) != 1 || payloads[0].Enum.Tag != 1 {
		t.Fatalf("binder arm must extract the tag-1 payload, got %+v", payloads)
	}
	if name := f.Locals[payloads[0].Enum.Dst].Name; name != "v" {
		t.Fatalf("payload binder must be named v, got %q", name)
	}
}

func TestRaiseSetsErrorSlotAndExits(t *testing.T) {
	h := newHarness(t)
	h.b.NewDecl(ast.Decl{Kind: ast.DeclError, Name: h.b.Intern("Boom")})
	boom := h.b.NewExpr(ast.Expr{Kind: ast.ExprNew, Type: h.b.Named("Boom", source.Span{})})
	raise := h.b.NewStmt(ast.Stmt{Kind: ast.StmtRaise, Value: boom})
	h.b.NewFn(ast.Fn{Name: h.b.Intern("f"), Raises: true, Body: h.block(raise)})

	mod := h.lower()
	f := h.fn(mod, "f")

	if len(findInstrs(f, InstrAlloc)) != 1 {
		t.Fatal("error construction must allocate")
	}
	if len(findInstrs(f, InstrErrSet)) != 1 {
		t.Fatal("raise must store into the error slot")
	}
	if f.Block(f.Entry).Term.Kind != TermErrorReturn {
		t.Fatalf("raise must exit through the error return, got %v", f.Block(f.Entry).Term.Kind)
	}
}

func TestPropagationSharesOneErrorExit(t *testing.T) {
	h := newHarness(t)
	h.b.NewFn(ast.Fn{Name: h.b.Intern("g"), Raises: true, Body: h.block()})
	callG := func() ast.ExprID {
		return h.b.NewExpr(ast.Expr{Kind: ast.ExprCall, Callee: h.ident("g"), Propagate: true})
	}
	h.b.NewFn(ast.Fn{
		Name: h.b.Intern("f"), Raises: true,
		Body: h.block(h.exprStmt(callG()), h.exprStmt(callG())),
	})

	mod := h.lower()
	f := h.fn(mod, "f")

	if got := countTerms(f, TermErrorReturn); got != 1 {
		t.Fatalf("both propagations must share one error exit, got %d", got)
	}
	var errBlock BlockID = NoBlockID
	for bi := range f.Blocks {
		if f.Blocks[bi].Term.Kind == TermErrorReturn {
			errBlock = BlockID(bi)
		}
	}
	branches := 0
	for bi := range f.Blocks {
		if f.Blocks[bi].Term.Kind == TermIf {
			branches++
			if f.Blocks[bi].Term.If.Then != errBlock {
				t.Fatalf("error branch must target the shared exit, got %+v", f.Blocks[bi].Term.If)
			}
		}
	}
	if branches != 2 {
		t.Fatalf("each propagated call tests the flag once, got %d branches", branches)
	}
}

func TestCatchBindsErrorAndJoins(t *testing.T) {
	h := newHarness(t)
	ret := h.b.NewStmt(ast.Stmt{Kind: ast.StmtReturn, HasValue: true, Value: h.intLit(1)})
	h.b.NewFn(ast.Fn{
		Name: h.b.Intern("g"), Raises: true,
		Result: h.b.Named("Int", source.Span{}), Body: h.block(ret),
	})
	guarded := h.b.NewExpr(ast.Expr{Kind: ast.ExprCall, Callee: h.ident("g")})
	catch := h.b.NewExpr(ast.Expr{
		Kind: ast.ExprCatch, Guarded: guarded,
		ErrName: h.b.Intern("e"), Fallback: h.intLit(0),
	})
	let := h.b.NewStmt(ast.Stmt{Kind: ast.StmtLet, Name: h.b.Intern("x"), Value: catch})
	h.freeFn("f", let)

	mod := h.lower()
	f := h.fn(mod, "f")

	takes := findInstrs(f, InstrErrTake)
	if len(takes) != 1 {
		t.Fatalf("the handler must take the error exactly once, got %d", len(takes))
	}
	bound := f.Locals[takes[0].Err.Dst]
	if bound.Name != "e" || !bound.Pointer {
		t.Fatalf("the error binder must be a pointer local named e, got %+v", bound)
	}
	if len(findInstrs(f, InstrErrFlag)) != 1 {
		t.Fatal("catch must test the error flag once")
	}
	if len(findInstrs(f, InstrErrClear)) != 0 {
		t.Fatal("a binding catch must not clear the slot, taking already does")
	}
}

func TestCatchWithoutBinderClearsSlot(t *testing.T) {
	h := newHarness(t)
	ret := h.b.NewStmt(ast.Stmt{Kind: ast.StmtReturn, HasValue: true, Value: h.intLit(1)})
	h.b.NewFn(ast.Fn{
		Name: h.b.Intern("g"), Raises: true,
		Result: h.b.Named("Int", source.Span{}), Body: h.block(ret),
	})
	guarded := h.b.NewExpr(ast.Expr{Kind: ast.ExprCall, Callee: h.ident("g")})
	catch := h.b.NewExpr(ast.Expr{Kind: ast.ExprCatch, Guarded: guarded, Fallback: h.intLit(0)})
	let := h.b.NewStmt(ast.Stmt{Kind: ast.StmtLet, Name: h.b.Intern("x"), Value: catch})
	h.freeFn("f", let)

	mod := h.lower()
	f := h.fn(mod, "f")

	if len(findInstrs(f, InstrErrClear)) != 1 {
		t.Fatal("a discarding catch must clear the error slot")
	}
	if len(findInstrs(f, InstrErrTake)) != 0 {
		t.Fatal("no binder means no take")
	}
}

func TestStringConcatenationUsesRuntime(t *testing.T) {
	h := newHarness(t)
	add := h.b.NewExpr(ast.Expr{
		Kind: ast.ExprBinary, BinOp: ast.BinAdd,
		Left: h.strLit("a"), Right: h.strLit("b"),
	})
	h.freeFn("f", h.exprStmt(add))

	mod := h.lower()
	f := h.fn(mod, "f")

	for _, call := range findInstrs(f, InstrCall) {
		if call.Call.Callee.Kind == CalleeRuntime && call.Call.Callee.Name == rt.SymStrConcat {
			return
		}
	}
	t.Fatal("string + must call the concat runtime symbol")
}

func TestSpawnLowersToTask(t *testing.T) {
	h := newHarness(t)
	ret := h.b.NewStmt(ast.Stmt{Kind: ast.StmtReturn, HasValue: true, Value: h.intLit(1)})
	h.b.NewFn(ast.Fn{
		Name: h.b.Intern("g"), Result: h.b.Named("Int", source.Span{}), Body: h.block(ret),
	})
	call := h.b.NewExpr(ast.Expr{Kind: ast.ExprCall, Callee: h.ident("g")})
	spawn := h.b.NewExpr(ast.Expr{Kind: ast.ExprSpawn, Operand: call})
	h.freeFn("f", h.exprStmt(spawn))

	mod := h.lower()
	f := h.fn(mod, "f")

	spawns := findInstrs(f, InstrSpawn)
	if len(spawns) != 1 || spawns[0].Spawn.Name != "g" {
		t.Fatalf("spawn must capture the target function, got %+v", spawns)
	}
	if !f.Locals[spawns[0].Spawn.Dst].Pointer {
		t.Fatal("a task handle is a GC reference")
	}
}

func TestEntryConstructsSingletonsInDependencyOrder(t *testing.T) {
	h := newHarness(t)
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
	mainFn := h.b.NewFn(ast.Fn{Name: h.b.Intern("main"), Owner: appID, Body: h.block()})
	h.b.AttachMethod(appID, mainFn)

	mod := h.lower()
	if mod.Entry == NoFuncID {
		t.Fatal("an app unit must synthesize an entry function")
	}
	if len(mod.Globals) != 2 || mod.Globals[0].Name != "Store" || mod.Globals[1].Name != "Svc" {
		t.Fatalf("singleton globals must follow construction order, got %+v", mod.Globals)
	}

	entry := mod.Func(mod.Entry)
	if entry.Name != EntryName {
		t.Fatalf("entry function name: got %q", entry.Name)
	}
	instrs := entry.Block(entry.Entry).Instrs

	var sets, callAt = 0, -1
	for i := range instrs {
		switch instrs[i].Kind {
		case InstrGlobalSet:
			sets++
			if callAt >= 0 {
				t.Fatal("singletons must be constructed before main runs")
			}
		case InstrCall:
			callAt = i
			if instrs[i].Call.Callee.Name != "App.main" {
				t.Fatalf("entry must call App.main, got %q", instrs[i].Call.Callee.Name)
			}
		}
	}
	if sets != 2 {
		t.Fatalf("expected two singleton stores, got %d", sets)
	}
	if callAt < 0 {
		t.Fatal("entry never calls main")
	}

	// Svc's dependency slot is filled from the Store global, the app's from
	// the Svc global.
	globalFills := 0
	for i := range instrs {
		if instrs[i].Kind == InstrFieldSet && instrs[i].FieldSet.Value.Kind == OperandGlobal {
			globalFills++
		}
	}
	if globalFills != 2 {
		t.Fatalf("singleton dependencies must be read from globals, got %d fills", globalFills)
	}
}

func TestTraitBoundDependencyBuildsVTable(t *testing.T) {
	h := newHarness(t)
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

	mod := h.lower()
	if len(mod.VTables) != 1 {
		t.Fatalf("one (class, trait) pair means one vtable, got %d", len(mod.VTables))
	}
	vt := mod.VTables[0]
	if vt.Name != "Eng$Greeter" {
		t.Fatalf("vtable name: got %q", vt.Name)
	}
	if len(vt.Slots) != 1 || vt.Slots[0] != greet {
		t.Fatalf("slot 0 must be Eng.greet, got %+v", vt.Slots)
	}

	entry := mod.Func(mod.Entry)
	if len(findInstrs(entry, InstrTraitMake)) != 1 {
		t.Fatal("injecting a trait dependency must build a fat reference")
	}
}

func TestTraitMethodCallDispatchesThroughSlot(t *testing.T) {
	h := newHarness(t)
	traitID := h.b.NewDecl(ast.Decl{Kind: ast.DeclTrait, Name: h.b.Intern("Greeter")})
	sig := h.b.NewFn(ast.Fn{Name: h.b.Intern("greet"), Owner: traitID})
	h.b.AttachMethod(traitID, sig)

	callee := h.b.NewExpr(ast.Expr{
		Kind: ast.ExprField, Object: h.ident("t"), Name: h.b.Intern("greet"),
	})
	call := h.b.NewExpr(ast.Expr{Kind: ast.ExprCall, Callee: callee})
	h.b.NewFn(ast.Fn{
		Name:   h.b.Intern("f"),
		Params: []ast.Param{{Name: h.b.Intern("t"), Type: h.b.Named("Greeter", source.Span{})}},
		Body:   h.block(h.exprStmt(call)),
	})

	mod := h.lower()
	f := h.fn(mod, "f")

	calls := findInstrs(f, InstrCall)
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %d", len(calls))
	}
	if calls[0].Call.Callee.Kind != CalleeTraitSlot || calls[0].Call.Callee.Slot != 0 {
		t.Fatalf("trait method must dispatch through slot 0, got %+v", calls[0].Call.Callee)
	}
}

func TestChannelOperationsLower(t *testing.T) {
	h := newHarness(t)
	mk := h.b.NewExpr(ast.Expr{Kind: ast.ExprChanMake, Type: h.b.Named("Int", source.Span{})})
	let := h.b.NewStmt(ast.Stmt{Kind: ast.StmtLet, Name: h.b.Intern("c"), Value: mk})
	send := h.b.NewExpr(ast.Expr{Kind: ast.ExprChanSend, Channel: h.ident("c"), Value: h.intLit(7)})
	h.freeFn("f", let, h.exprStmt(send))

	mod := h.lower()
	f := h.fn(mod, "f")

	if len(findInstrs(f, InstrChanMake)) != 1 {
		t.Fatal("channel construction must lower to a make")
	}
	if len(findInstrs(f, InstrChanSend)) != 1 {
		t.Fatal("send must lower to a channel send")
	}
}

func TestDumpFuncRendersBlocks(t *testing.T) {
	h := newHarness(t)
	ret := h.b.NewStmt(ast.Stmt{Kind: ast.StmtReturn, HasValue: true, Value: h.intLit(3)})
	h.b.NewFn(ast.Fn{
		Name: h.b.Intern("f"), Result: h.b.Named("Int", source.Span{}), Body: h.block(ret),
	})

	mod := h.lower()
	text := DumpFunc(h.fn(mod, "f"))
	for _, want := range []string{"fn f", "b0:", "return"} {
		if !strings.Contains(text, want) {
			t.Fatalf("dump missing %q:\n%s", want, text)
		}
	}
}
