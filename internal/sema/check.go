// Package sema implements semantic analysis: declaration collection and
// validation, expression typing, and dependency-injection graph resolution.
// The checker never mutates the syntax tree; everything it learns lands in
// the Result.
package sema

import (
	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/source"
	"quill/internal/symbols"
	"quill/internal/types"
)

// Options configure a semantic pass over a tree.
type Options struct {
	Reporter diag.Reporter
	Types    *types.Interner
}

// Result stores semantic artefacts produced by the checker. It is the typed
// program: the syntax tree plus every annotation lowering needs.
type Result struct {
	Types   *types.Interner
	Symbols *symbols.Table

	// ExprTypes annotates every checked expression with its type.
	ExprTypes map[ast.ExprID]types.TypeID
	// LetTypes records the declared or inferred type of each let binding.
	LetTypes map[ast.StmtID]types.TypeID
	// FnTypes records the resolved function type of every function.
	FnTypes map[ast.FnID]types.TypeID
	// CallTargets resolves direct call expressions to their callee.
	CallTargets map[ast.ExprID]ast.FnID
	// TraitSlots resolves trait-object method calls to a dispatch-table
	// slot (the method's index in the trait declaration).
	TraitSlots map[ast.ExprID]int
	// Graph is the resolved dependency-injection graph.
	Graph *DepGraph
	// Broken marks declarations with structural errors; their dependents
	// are excluded from further checking to avoid diagnostic cascades.
	Broken map[ast.DeclID]bool
}

// Check performs semantic analysis over one compilation unit. Diagnostics go
// to opts.Reporter; the returned Result is complete only when no error
// diagnostic was reported.
func Check(tree *ast.Tree, opts Options) *Result {
	res := &Result{
		ExprTypes:   make(map[ast.ExprID]types.TypeID),
		LetTypes:    make(map[ast.StmtID]types.TypeID),
		FnTypes:     make(map[ast.FnID]types.TypeID),
		CallTargets: make(map[ast.ExprID]ast.FnID),
		TraitSlots:  make(map[ast.ExprID]int),
		Broken:      make(map[ast.DeclID]bool),
	}
	if opts.Types != nil {
		res.Types = opts.Types
	} else {
		res.Types = types.NewInterner()
	}
	res.Symbols = symbols.NewTable(16)
	if tree == nil {
		return res
	}

	tc := &typeChecker{
		tree:     tree,
		reporter: opts.Reporter,
		types:    res.Types,
		result:   res,
		methods:  make(map[ast.DeclID]map[source.StringID]ast.FnID),
		refCache: make(map[ast.TypeRefID]types.TypeID),
	}
	tc.run()
	return res
}

type typeChecker struct {
	tree     *ast.Tree
	reporter diag.Reporter
	types    *types.Interner
	result   *Result

	// methods indexes decl methods by name for member resolution.
	methods map[ast.DeclID]map[source.StringID]ast.FnID
	// refCache memoizes type-reference resolution so repeated uses of one
	// reference resolve once and diagnose once.
	refCache map[ast.TypeRefID]types.TypeID

	// scopes is the lexical environment of the function body being
	// checked. scopes[0] holds parameters and self.
	scopes    []map[source.StringID]types.TypeID
	currentFn *ast.Fn
	loopDepth int
}

func (tc *typeChecker) run() {
	tc.collectDecls()
	tc.resolveMembers()
	tc.validateApps()
	tc.result.Graph = tc.resolveDependencies()
	tc.checkBodies()
}

func (tc *typeChecker) report(code diag.Code, span source.Span, msg string) {
	if tc.reporter == nil {
		return
	}
	tc.reporter.Report(code, diag.SevError, span, msg, nil)
}

func (tc *typeChecker) reportNote(code diag.Code, span source.Span, msg string, noteSpan source.Span, note string) {
	if tc.reporter == nil {
		return
	}
	tc.reporter.Report(code, diag.SevError, span, msg, []diag.Note{{Span: noteSpan, Msg: note}})
}

// scope helpers --------------------------------------------------------------

func (tc *typeChecker) pushScope() {
	tc.scopes = append(tc.scopes, make(map[source.StringID]types.TypeID, 8))
}

func (tc *typeChecker) popScope() {
	tc.scopes = tc.scopes[:len(tc.scopes)-1]
}

func (tc *typeChecker) bind(name source.StringID, typ types.TypeID) {
	if len(tc.scopes) == 0 {
		tc.pushScope()
	}
	tc.scopes[len(tc.scopes)-1][name] = typ
}

func (tc *typeChecker) lookupLocal(name source.StringID) (types.TypeID, bool) {
	for i := len(tc.scopes) - 1; i >= 0; i-- {
		if t, ok := tc.scopes[i][name]; ok {
			return t, true
		}
	}
	return types.NoTypeID, false
}
