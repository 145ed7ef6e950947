package sema

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/source"
	"quill/internal/types"
)

// checkBodies type-checks every function body, method contracts, and class
// invariants. Bodies of broken declarations are skipped entirely.
func (tc *typeChecker) checkBodies() {
	for _, declID := range tc.tree.Module.Decls {
		if tc.result.Broken[declID] {
			continue
		}
		decl := tc.tree.Decls.Get(declID)
		if decl == nil {
			continue
		}
		tc.checkInvariants(declID, decl)
		for _, fnID := range decl.Methods {
			tc.checkFn(fnID, declID)
		}
	}
	for _, fnID := range tc.tree.Module.Funcs {
		tc.checkFn(fnID, ast.NoDeclID)
	}
}

// checkInvariants requires every class invariant to be a Bool over self.
func (tc *typeChecker) checkInvariants(declID ast.DeclID, decl *ast.Decl) {
	if len(decl.Invariants) == 0 {
		return
	}
	selfType, _ := tc.types.NominalType(declID)
	tc.pushScope()
	tc.bind(tc.tree.Strings.Intern("self"), selfType)
	for _, inv := range decl.Invariants {
		tc.checkContractExpr(inv)
	}
	tc.popScope()
}

func (tc *typeChecker) checkContractExpr(id ast.ExprID) {
	t := tc.typeExpr(id)
	if t == types.NoTypeID {
		return
	}
	if t != tc.types.Builtins().Bool {
		span := tc.tree.Exprs.Get(id).Span
		tc.report(diag.SemaContractNotBool, span,
			fmt.Sprintf("contract clause must be Bool, got %s", tc.typeLabel(t)))
	}
}

func (tc *typeChecker) checkFn(fnID ast.FnID, owner ast.DeclID) {
	fn := tc.tree.Fns.Get(fnID)
	if fn == nil || !fn.Body.IsValid() {
		// Trait method signatures have no body; nothing to check here.
		return
	}

	tc.currentFn = fn
	tc.loopDepth = 0
	tc.scopes = tc.scopes[:0]
	tc.pushScope()

	if owner.IsValid() {
		if selfType, ok := tc.types.NominalType(owner); ok {
			tc.bind(tc.tree.Strings.Intern("self"), selfType)
		}
	}
	for _, p := range fn.Params {
		tc.bind(p.Name, tc.resolveTypeRef(p.Type))
	}

	for _, req := range fn.Requires {
		tc.checkContractExpr(req)
	}
	// Ensures clauses see the return value as 'result'.
	if len(fn.Ensures) > 0 {
		tc.pushScope()
		tc.bind(tc.tree.Strings.Intern("result"), tc.fnResult(fn))
		for _, ens := range fn.Ensures {
			tc.checkContractExpr(ens)
		}
		tc.popScope()
	}

	tc.checkStmt(fn.Body)

	tc.popScope()
	tc.currentFn = nil
}

func (tc *typeChecker) checkStmt(id ast.StmtID) {
	if !id.IsValid() {
		return
	}
	s := tc.tree.Stmts.Get(id)
	if s == nil {
		return
	}

	switch s.Kind {
	case ast.StmtBlock:
		tc.pushScope()
		for _, inner := range s.Stmts {
			tc.checkStmt(inner)
		}
		tc.popScope()

	case ast.StmtLet:
		vt := tc.typeExpr(s.Value)
		declared := vt
		if s.Type.IsValid() {
			declared = tc.resolveTypeRef(s.Type)
			if declared != types.NoTypeID && vt != types.NoTypeID && !tc.assignable(declared, vt) {
				tc.report(diag.SemaTypeMismatch, s.Span,
					fmt.Sprintf("%s: '%s' is declared %s, got %s", diag.MsgTypeMismatch,
						tc.name(s.Name), tc.typeLabel(declared), tc.typeLabel(vt)))
			}
		} else if vt == tc.noneType() {
			// `let x = none` has no element type to infer from.
			tc.report(diag.SemaTypeMismatch, s.Span,
				fmt.Sprintf("%s: 'none' needs a nullable type annotation", diag.MsgTypeMismatch))
			declared = types.NoTypeID
		}
		tc.bind(s.Name, declared)
		tc.result.LetTypes[id] = declared

	case ast.StmtAssign:
		tt := tc.typeExpr(s.Target)
		vt := tc.typeExpr(s.Value)
		if tt != types.NoTypeID && vt != types.NoTypeID && !tc.assignable(tt, vt) {
			tc.report(diag.SemaTypeMismatch, s.Span,
				fmt.Sprintf("%s: cannot assign %s to %s", diag.MsgTypeMismatch,
					tc.typeLabel(vt), tc.typeLabel(tt)))
		}

	case ast.StmtExpr:
		tc.typeExpr(s.Expr)

	case ast.StmtReturn:
		want := tc.fnResult(tc.currentFn)
		if !s.HasValue {
			if want != types.NoTypeID && want != tc.types.Builtins().Unit {
				tc.report(diag.SemaReturnMismatch, s.Span,
					fmt.Sprintf("%s: function returns %s, got no value",
						diag.MsgTypeMismatch, tc.typeLabel(want)))
			}
			return
		}
		got := tc.typeExpr(s.Value)
		if got != types.NoTypeID && want != types.NoTypeID && !tc.assignable(want, got) {
			tc.report(diag.SemaReturnMismatch, s.Span,
				fmt.Sprintf("%s: function returns %s, got %s",
					diag.MsgTypeMismatch, tc.typeLabel(want), tc.typeLabel(got)))
		}

	case ast.StmtIf:
		tc.checkCondition(s.Cond)
		tc.checkStmt(s.Then)
		tc.checkStmt(s.Else)

	case ast.StmtWhile:
		tc.checkCondition(s.Cond)
		tc.loopDepth++
		tc.checkStmt(s.Body)
		tc.loopDepth--

	case ast.StmtBreak, ast.StmtContinue:
		if tc.loopDepth == 0 {
			tc.report(diag.SemaError, s.Span, "break and continue require an enclosing loop")
		}

	case ast.StmtMatch:
		tc.checkMatch(s)

	case ast.StmtRaise:
		vt := tc.typeExpr(s.Value)
		if vt != types.NoTypeID && tc.types.MustLookup(vt).Kind != types.KindError {
			tc.report(diag.SemaRaiseNotError, s.Span,
				fmt.Sprintf("raise operand must be an error value, got %s", tc.typeLabel(vt)))
		}
		if tc.currentFn != nil && !tc.currentFn.Raises {
			tc.report(diag.SemaRaiseNotError, s.Span,
				"raising function must be marked raises")
		}
	}
}

func (tc *typeChecker) checkCondition(id ast.ExprID) {
	t := tc.typeExpr(id)
	if t == types.NoTypeID || t == tc.types.Builtins().Bool {
		return
	}
	span := tc.tree.Exprs.Get(id).Span
	tc.report(diag.SemaConditionNotBool, span,
		fmt.Sprintf("%s: condition must be Bool, got %s", diag.MsgTypeMismatch, tc.typeLabel(t)))
}

// checkMatch validates a match over an enum scrutinee: every named arm must
// be a variant of the enum, payload binders get the payload type, and the
// wildcard arm accepts anything. A match consisting of only the wildcard is
// valid.
func (tc *typeChecker) checkMatch(s *ast.Stmt) {
	st := tc.typeExpr(s.Scrutinee)
	var info *types.NominalInfo
	if st != types.NoTypeID {
		if tc.types.MustLookup(st).Kind != types.KindEnum {
			tc.report(diag.SemaTypeMismatch, s.Span,
				fmt.Sprintf("%s: match scrutinee must be an enum, got %s",
					diag.MsgTypeMismatch, tc.typeLabel(st)))
		} else {
			info, _ = tc.types.Info(st)
		}
	}

	for _, arm := range s.Arms {
		if arm.Variant == source.NoStringID {
			tc.checkStmt(arm.Body)
			continue
		}
		var payload types.TypeID
		found := info == nil
		if info != nil {
			found = false
			for _, v := range info.Variants {
				if v.Name == arm.Variant {
					payload = v.Payload
					found = true
					break
				}
			}
		}
		if !found {
			tc.report(diag.SemaUnknownVariant, arm.Span,
				fmt.Sprintf("%s has no variant '%s'", tc.typeLabel(st), tc.name(arm.Variant)))
		}
		if arm.Bind != source.NoStringID {
			if found && payload == types.NoTypeID {
				tc.report(diag.SemaVariantNoPayload, arm.Span,
					fmt.Sprintf("variant '%s' carries no data", tc.name(arm.Variant)))
			}
			tc.pushScope()
			tc.bind(arm.Bind, payload)
			tc.checkStmt(arm.Body)
			tc.popScope()
			continue
		}
		tc.checkStmt(arm.Body)
	}
}
