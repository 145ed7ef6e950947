package sema

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/types"
)

// typeCall resolves a call expression: a free function, a method on a class,
// app, error, or trait object, or a function-typed local. Direct targets are
// recorded in CallTargets; trait-object calls record the dispatch slot.
func (tc *typeChecker) typeCall(id ast.ExprID, e *ast.Expr) types.TypeID {
	callee := tc.tree.Exprs.Get(e.Callee)
	if callee == nil {
		return types.NoTypeID
	}

	switch callee.Kind {
	case ast.ExprField:
		return tc.typeMethodCall(id, e, callee)
	case ast.ExprIdent:
		// Free function first; fall through to fn-typed locals.
		if _, isLocal := tc.lookupLocal(callee.Name); !isLocal {
			if symID, ok := tc.result.Symbols.Lookup(callee.Name); ok {
				sym := tc.result.Symbols.Get(symID)
				if sym.Fn.IsValid() {
					fn := tc.tree.Fns.Get(sym.Fn)
					tc.result.CallTargets[id] = sym.Fn
					return tc.checkDirectCall(id, e, fn)
				}
			}
		}
	}

	// Anything else must evaluate to a function type.
	ct := tc.typeExpr(e.Callee)
	if ct == types.NoTypeID {
		return types.NoTypeID
	}
	sig, ok := tc.types.FnSignature(ct)
	if !ok {
		tc.report(diag.SemaNotCallable, e.Span,
			fmt.Sprintf("%s is not callable", tc.typeLabel(ct)))
		return types.NoTypeID
	}
	if e.Propagate {
		// Indirect callees carry no raises marker; '!' cannot be proven
		// meaningful, so it is rejected outright.
		tc.report(diag.SemaPropagateNoRaise, e.Span,
			"'!' requires a direct call to a raising function")
	}
	tc.checkArgs(e, sig.Params, "function")
	return sig.Ret
}

func (tc *typeChecker) typeMethodCall(id ast.ExprID, e *ast.Expr, callee *ast.Expr) types.TypeID {
	recv := tc.typeExpr(callee.Object)
	if recv == types.NoTypeID {
		return types.NoTypeID
	}
	tt := tc.types.MustLookup(recv)

	switch tt.Kind {
	case types.KindStruct, types.KindError:
		fnID, ok := tc.methods[tt.Decl][callee.Name]
		if !ok {
			tc.report(diag.SemaUnknownMethod, callee.Span,
				fmt.Sprintf("%s has no method '%s'", tc.typeLabel(recv), tc.name(callee.Name)))
			return types.NoTypeID
		}
		tc.result.CallTargets[id] = fnID
		return tc.checkDirectCall(id, e, tc.tree.Fns.Get(fnID))

	case types.KindTrait:
		decl := tc.tree.Decls.Get(tt.Decl)
		if decl == nil {
			return types.NoTypeID
		}
		for slot, fnID := range decl.Methods {
			fn := tc.tree.Fns.Get(fnID)
			if fn == nil || fn.Name != callee.Name {
				continue
			}
			tc.result.TraitSlots[id] = slot
			return tc.checkDirectCall(id, e, fn)
		}
		tc.report(diag.SemaUnknownMethod, callee.Span,
			fmt.Sprintf("%s has no method '%s'", tc.typeLabel(recv), tc.name(callee.Name)))
		return types.NoTypeID

	case types.KindTask:
		// Task<T> exposes await() -> T, lowered to a runtime call.
		if tc.name(callee.Name) == "await" {
			if len(e.Args) != 0 {
				tc.report(diag.SemaBadArgumentCount, e.Span, "await takes no arguments")
			}
			return tt.Elem
		}
		tc.report(diag.SemaUnknownMethod, callee.Span,
			fmt.Sprintf("%s has no method '%s'", tc.typeLabel(recv), tc.name(callee.Name)))
		return types.NoTypeID

	default:
		tc.report(diag.SemaUnknownMethod, callee.Span,
			fmt.Sprintf("%s has no methods", tc.typeLabel(recv)))
		return types.NoTypeID
	}
}

// checkDirectCall validates arguments against a resolved function and
// enforces the error-propagation rules for `!`.
func (tc *typeChecker) checkDirectCall(id ast.ExprID, e *ast.Expr, fn *ast.Fn) types.TypeID {
	if fn == nil {
		return types.NoTypeID
	}

	params := make([]types.TypeID, 0, len(fn.Params))
	for _, p := range fn.Params {
		params = append(params, tc.resolveTypeRef(p.Type))
	}
	tc.checkArgs(e, params, fmt.Sprintf("'%s'", tc.name(fn.Name)))

	if e.Propagate {
		if !fn.Raises {
			tc.report(diag.SemaPropagateNoRaise, e.Span,
				fmt.Sprintf("'%s' cannot raise, '!' has no effect", tc.name(fn.Name)))
		} else if tc.currentFn == nil || !tc.currentFn.Raises {
			tc.report(diag.SemaPropagateNoRaise, e.Span,
				"'!' propagates an error, the enclosing function must be marked raises")
		}
	}
	return tc.fnResult(fn)
}

func (tc *typeChecker) checkArgs(e *ast.Expr, params []types.TypeID, what string) {
	if len(e.Args) != len(params) {
		tc.report(diag.SemaBadArgumentCount, e.Span,
			fmt.Sprintf("%s takes %d arguments, got %d", what, len(params), len(e.Args)))
	}
	n := len(e.Args)
	if len(params) < n {
		n = len(params)
	}
	for i := 0; i < n; i++ {
		at := tc.typeExpr(e.Args[i])
		if at == types.NoTypeID || params[i] == types.NoTypeID {
			continue
		}
		if !tc.assignable(params[i], at) {
			span := tc.tree.Exprs.Get(e.Args[i]).Span
			tc.report(diag.SemaTypeMismatch, span,
				fmt.Sprintf("%s: argument %d must be %s, got %s",
					diag.MsgTypeMismatch, i+1, tc.typeLabel(params[i]), tc.typeLabel(at)))
		}
	}
	// Evaluate surplus arguments so their own errors still surface.
	for i := n; i < len(e.Args); i++ {
		tc.typeExpr(e.Args[i])
	}
}
