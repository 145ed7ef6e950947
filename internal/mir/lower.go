package mir

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/sema"
	"quill/internal/source"
)

// Options configure lowering.
type Options struct {
	Reporter diag.Reporter
}

// EntryName is the symbol of the synthesized startup function.
const EntryName = "quill.start"

// Lower translates a checked tree into MIR. It assumes the checker reported
// no errors; anything inconsistent it finds anyway is a compiler defect and
// reported under the lowering code range.
func Lower(tree *ast.Tree, sem *sema.Result, opts Options) *Module {
	lo := &lowerer{
		tree:      tree,
		sem:       sem,
		mod:       NewModule(),
		reporter:  opts.Reporter,
		singleton: make(map[ast.DeclID]GlobalID),
	}

	lo.collectSingletons()

	for _, declID := range tree.Module.Decls {
		decl := tree.Decls.Get(declID)
		if decl == nil || sem.Broken[declID] {
			continue
		}
		for _, fnID := range decl.Methods {
			fn := tree.Fns.Get(fnID)
			if fn == nil || !fn.Body.IsValid() {
				continue
			}
			lo.lowerFn(fnID, fn, declID)
		}
	}
	for _, fnID := range tree.Module.Funcs {
		fn := tree.Fns.Get(fnID)
		if fn == nil {
			continue
		}
		lo.lowerFn(fnID, fn, ast.NoDeclID)
	}

	lo.synthesizeEntry()
	return lo.mod
}

type lowerer struct {
	tree     *ast.Tree
	sem      *sema.Result
	mod      *Module
	reporter diag.Reporter

	singleton map[ast.DeclID]GlobalID
}

func (lo *lowerer) defect(span source.Span, msg string) {
	if lo.reporter == nil {
		return
	}
	lo.reporter.Report(diag.LowInternal, diag.SevError, span, msg, nil)
}

func (lo *lowerer) name(id source.StringID) string {
	s, _ := lo.tree.Strings.Lookup(id)
	return s
}

// mangle derives the link name of a function.
func (lo *lowerer) mangle(fn *ast.Fn) string {
	if fn.Owner.IsValid() {
		owner := lo.tree.Decls.Get(fn.Owner)
		return lo.name(owner.Name) + "." + lo.name(fn.Name)
	}
	return lo.name(fn.Name)
}

// collectSingletons allocates one module global per singleton-scoped class,
// in construction order so indices match startup sequence.
func (lo *lowerer) collectSingletons() {
	if lo.sem.Graph == nil {
		return
	}
	for _, declID := range lo.sem.Graph.Order {
		node, ok := lo.sem.Graph.Node(declID)
		if !ok || node.Scope != ast.ScopeSingleton {
			continue
		}
		decl := lo.tree.Decls.Get(declID)
		typ, _ := lo.sem.Types.NominalType(declID)
		id := GlobalID(len(lo.mod.Globals))
		lo.mod.Globals = append(lo.mod.Globals, Global{
			Name: lo.name(decl.Name),
			Decl: declID,
			Type: typ,
		})
		lo.singleton[declID] = id
	}
}

// ensureVTable registers the dispatch table of a (class, trait) pair,
// matching trait method names against the class's methods.
func (lo *lowerer) ensureVTable(class, trait ast.DeclID) int {
	if idx, ok := lo.mod.VTableFor(class, trait); ok {
		return idx
	}
	classDecl := lo.tree.Decls.Get(class)
	traitDecl := lo.tree.Decls.Get(trait)
	vt := VTable{
		Name:  fmt.Sprintf("%s$%s", lo.name(classDecl.Name), lo.name(traitDecl.Name)),
		Class: class,
		Trait: trait,
	}
	for _, traitFnID := range traitDecl.Methods {
		traitFn := lo.tree.Fns.Get(traitFnID)
		slot := ast.NoFnID
		for _, fnID := range classDecl.Methods {
			if fn := lo.tree.Fns.Get(fnID); fn != nil && fn.Name == traitFn.Name {
				slot = fnID
				break
			}
		}
		if slot == ast.NoFnID {
			lo.defect(classDecl.Span, fmt.Sprintf(
				"class %s implements %s but lacks method %s",
				lo.name(classDecl.Name), lo.name(traitDecl.Name), lo.name(traitFn.Name)))
		}
		vt.Slots = append(vt.Slots, slot)
	}
	lo.mod.VTables = append(lo.mod.VTables, vt)
	return len(lo.mod.VTables) - 1
}

// synthesizeEntry builds the startup function: singletons constructed in
// dependency order, then the app instance, then its main method.
func (lo *lowerer) synthesizeEntry() {
	var appDecl ast.DeclID
	for _, declID := range lo.tree.Module.Decls {
		decl := lo.tree.Decls.Get(declID)
		if decl != nil && decl.Kind == ast.DeclApp && !lo.sem.Broken[declID] {
			appDecl = declID
			break
		}
	}
	if !appDecl.IsValid() || lo.sem.Graph == nil {
		return
	}

	f := lo.mod.NewFunc(Func{
		Fn:     ast.NoFnID,
		Name:   EntryName,
		Result: lo.sem.Types.Builtins().Unit,
	})
	fl := &fnLowerer{lowerer: lo, f: f}
	f.Entry = f.NewBlock()
	fl.cur = f.Entry

	for _, declID := range lo.sem.Graph.Order {
		gid, ok := lo.singleton[declID]
		if !ok {
			continue
		}
		inst := fl.construct(declID)
		fl.emit(Instr{Kind: InstrGlobalSet, GlobalSet: GlobalSetInstr{Global: gid, Value: inst}})
	}

	appInst := fl.construct(appDecl)

	app := lo.tree.Decls.Get(appDecl)
	mainName := lo.tree.Strings.Intern("main")
	for _, fnID := range app.Methods {
		fn := lo.tree.Fns.Get(fnID)
		if fn == nil || fn.Name != mainName {
			continue
		}
		fl.emit(Instr{Kind: InstrCall, Call: CallInstr{
			Callee:   Callee{Kind: CalleeFn, Fn: fnID, Name: lo.mangle(fn)},
			Args:     []Operand{appInst},
			CanRaise: fn.Raises,
		}})
		break
	}
	f.Terminate(fl.cur, Terminator{Kind: TermReturn})
	lo.mod.Entry = f.ID
}
