package sema

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/source"
	"quill/internal/types"
)

// noneType is the type of the bare `none` literal before it meets a nullable
// context: a Nullable with no element. It is assignable to every nullable
// type and to nothing else.
func (tc *typeChecker) noneType() types.TypeID {
	return tc.types.Intern(types.Type{Kind: types.KindNullable, Elem: types.NoTypeID})
}

// typeLabel renders a type for diagnostics.
func (tc *typeChecker) typeLabel(id types.TypeID) string {
	if id == types.NoTypeID {
		return "<error>"
	}
	tt := tc.types.MustLookup(id)
	switch tt.Kind {
	case types.KindUnit:
		return "Unit"
	case types.KindInt:
		return "Int"
	case types.KindFloat:
		return "Float"
	case types.KindBool:
		return "Bool"
	case types.KindString:
		return "String"
	case types.KindByte:
		return "Byte"
	case types.KindArray:
		return "[" + tc.typeLabel(tt.Elem) + "]"
	case types.KindMap:
		return "{" + tc.typeLabel(tt.Key) + ": " + tc.typeLabel(tt.Elem) + "}"
	case types.KindNullable:
		if tt.Elem == types.NoTypeID {
			return "none"
		}
		return tc.typeLabel(tt.Elem) + "?"
	case types.KindTask:
		return "Task<" + tc.typeLabel(tt.Elem) + ">"
	case types.KindChannel:
		return "Channel<" + tc.typeLabel(tt.Elem) + ">"
	case types.KindFn:
		sig, ok := tc.types.FnSignature(id)
		if !ok {
			return "fn"
		}
		s := "fn("
		for i, p := range sig.Params {
			if i > 0 {
				s += ", "
			}
			s += tc.typeLabel(p)
		}
		return s + ") -> " + tc.typeLabel(sig.Ret)
	case types.KindStruct, types.KindEnum, types.KindTrait, types.KindError:
		if info, ok := tc.types.Info(id); ok {
			return tc.name(info.Name)
		}
		return tt.Kind.String()
	}
	return tt.Kind.String()
}

// assignable reports whether a value of type src may initialize a slot of
// type dst. Identity aside, three implicit steps exist: `none` into any
// nullable, T into T?, and a class into a trait it implements. Mir detects
// the last two by comparing the recorded types and inserts the wrap.
func (tc *typeChecker) assignable(dst, src types.TypeID) bool {
	if dst == types.NoTypeID || src == types.NoTypeID {
		return true // already diagnosed upstream
	}
	if dst == src {
		return true
	}
	dt := tc.types.MustLookup(dst)
	if dt.Kind == types.KindNullable {
		if src == tc.noneType() {
			return true
		}
		if dt.Elem == src {
			return true
		}
	}
	if dt.Kind == types.KindTrait {
		st := tc.types.MustLookup(src)
		if st.Kind == types.KindStruct && tc.implementsTrait(st.Decl, dst) {
			return true
		}
	}
	return false
}

func (tc *typeChecker) implementsTrait(classDecl ast.DeclID, trait types.TypeID) bool {
	decl := tc.tree.Decls.Get(classDecl)
	if decl == nil {
		return false
	}
	for _, tr := range decl.Traits {
		if tc.resolveTypeRef(tr) == trait {
			return true
		}
	}
	return false
}

// typeExpr computes and records the type of an expression. On error it
// reports once and returns NoTypeID; enclosing expressions treat NoTypeID
// operands as already diagnosed and stay silent.
func (tc *typeChecker) typeExpr(id ast.ExprID) types.TypeID {
	if !id.IsValid() {
		return types.NoTypeID
	}
	t := tc.typeExprUncached(id)
	tc.result.ExprTypes[id] = t
	return t
}

func (tc *typeChecker) typeExprUncached(id ast.ExprID) types.TypeID {
	e := tc.tree.Exprs.Get(id)
	if e == nil {
		return types.NoTypeID
	}
	b := tc.types.Builtins()

	switch e.Kind {
	case ast.ExprIdent:
		if t, ok := tc.lookupLocal(e.Name); ok {
			return t
		}
		if symID, ok := tc.result.Symbols.Lookup(e.Name); ok {
			sym := tc.result.Symbols.Get(symID)
			if sym.Fn.IsValid() {
				return tc.result.FnTypes[sym.Fn]
			}
		}
		tc.report(diag.SemaUnresolvedName, e.Span,
			fmt.Sprintf("unresolved name '%s'", tc.name(e.Name)))
		return types.NoTypeID

	case ast.ExprLit:
		switch e.Lit {
		case ast.LitInt:
			return b.Int
		case ast.LitFloat:
			return b.Float
		case ast.LitBool:
			return b.Bool
		case ast.LitString:
			return b.String
		case ast.LitByte:
			return b.Byte
		case ast.LitNone:
			return tc.noneType()
		}
		return types.NoTypeID

	case ast.ExprBinary:
		return tc.typeBinary(e)

	case ast.ExprUnary:
		return tc.typeUnary(e)

	case ast.ExprCall:
		return tc.typeCall(id, e)

	case ast.ExprField:
		return tc.typeField(e)

	case ast.ExprIndex:
		return tc.typeIndex(e)

	case ast.ExprInterp:
		for _, part := range e.Parts {
			if !part.Expr.IsValid() {
				continue
			}
			pt := tc.typeExpr(part.Expr)
			if pt == types.NoTypeID {
				continue
			}
			kind := tc.types.MustLookup(pt).Kind
			if !types.Interpolatable(kind) {
				span := tc.tree.Exprs.Get(part.Expr).Span
				tc.report(diag.SemaCannotInterpolate, span,
					fmt.Sprintf("%s value of type %s", diag.MsgCannotInterpolate, tc.typeLabel(pt)))
			}
		}
		return b.String

	case ast.ExprNew:
		return tc.typeNew(e)

	case ast.ExprVariant:
		return tc.typeVariant(e)

	case ast.ExprSpawn:
		op := tc.tree.Exprs.Get(e.Operand)
		if op == nil || op.Kind != ast.ExprCall {
			tc.report(diag.SemaError, e.Span, "spawn operand must be a call")
			return types.NoTypeID
		}
		rt := tc.typeExpr(e.Operand)
		if rt == types.NoTypeID {
			return types.NoTypeID
		}
		return tc.types.Intern(types.MakeTask(rt))

	case ast.ExprCatch:
		return tc.typeCatch(e)

	case ast.ExprUnwrap:
		ot := tc.typeExpr(e.Operand)
		if ot == types.NoTypeID {
			return types.NoTypeID
		}
		tt := tc.types.MustLookup(ot)
		if tt.Kind != types.KindNullable || tt.Elem == types.NoTypeID {
			tc.report(diag.SemaTypeMismatch, e.Span,
				fmt.Sprintf("%s: cannot unwrap non-nullable %s", diag.MsgTypeMismatch, tc.typeLabel(ot)))
			return types.NoTypeID
		}
		return tt.Elem

	case ast.ExprHasValue:
		ot := tc.typeExpr(e.Operand)
		if ot == types.NoTypeID {
			return types.NoTypeID
		}
		if tc.types.MustLookup(ot).Kind != types.KindNullable {
			tc.report(diag.SemaTypeMismatch, e.Span,
				fmt.Sprintf("%s: presence test requires a nullable operand, got %s",
					diag.MsgTypeMismatch, tc.typeLabel(ot)))
			return types.NoTypeID
		}
		return b.Bool

	case ast.ExprChanMake:
		elem := tc.resolveTypeRef(e.Type)
		if elem == types.NoTypeID {
			return types.NoTypeID
		}
		if e.Capacity.IsValid() {
			ct := tc.typeExpr(e.Capacity)
			if ct != types.NoTypeID && ct != b.Int {
				tc.report(diag.SemaTypeMismatch, e.Span,
					fmt.Sprintf("%s: channel capacity must be Int, got %s",
						diag.MsgTypeMismatch, tc.typeLabel(ct)))
			}
		}
		return tc.types.Intern(types.MakeChannel(elem))

	case ast.ExprChanSend:
		ct := tc.typeExpr(e.Channel)
		vt := tc.typeExpr(e.Value)
		if ct == types.NoTypeID {
			return types.NoTypeID
		}
		tt := tc.types.MustLookup(ct)
		if tt.Kind != types.KindChannel {
			tc.report(diag.SemaTypeMismatch, e.Span,
				fmt.Sprintf("%s: send target must be a channel, got %s",
					diag.MsgTypeMismatch, tc.typeLabel(ct)))
			return types.NoTypeID
		}
		if vt != types.NoTypeID && !tc.assignable(tt.Elem, vt) {
			tc.report(diag.SemaTypeMismatch, e.Span,
				fmt.Sprintf("%s: channel carries %s, got %s",
					diag.MsgTypeMismatch, tc.typeLabel(tt.Elem), tc.typeLabel(vt)))
		}
		return b.Unit

	case ast.ExprChanRecv:
		ct := tc.typeExpr(e.Channel)
		if ct == types.NoTypeID {
			return types.NoTypeID
		}
		tt := tc.types.MustLookup(ct)
		if tt.Kind != types.KindChannel {
			tc.report(diag.SemaTypeMismatch, e.Span,
				fmt.Sprintf("%s: receive source must be a channel, got %s",
					diag.MsgTypeMismatch, tc.typeLabel(ct)))
			return types.NoTypeID
		}
		return tt.Elem
	}
	return types.NoTypeID
}

func (tc *typeChecker) typeBinary(e *ast.Expr) types.TypeID {
	lt := tc.typeExpr(e.Left)
	rt := tc.typeExpr(e.Right)
	if lt == types.NoTypeID || rt == types.NoTypeID {
		return types.NoTypeID
	}
	if lt != rt {
		tc.report(diag.SemaTypeMismatch, e.Span,
			fmt.Sprintf("%s: operator '%s' requires equal operand types, got %s and %s",
				diag.MsgTypeMismatch, e.BinOp, tc.typeLabel(lt), tc.typeLabel(rt)))
		return types.NoTypeID
	}
	kind := tc.types.MustLookup(lt).Kind
	family := types.FamilyOf(kind)
	for _, spec := range types.BinarySpecs(e.BinOp) {
		if family&spec.Operands == 0 {
			continue
		}
		if spec.Result == types.BinaryResultBool {
			return tc.types.Builtins().Bool
		}
		return lt
	}
	tc.report(diag.SemaTypeMismatch, e.Span,
		fmt.Sprintf("%s: operator '%s' is not defined on %s",
			diag.MsgTypeMismatch, e.BinOp, tc.typeLabel(lt)))
	return types.NoTypeID
}

func (tc *typeChecker) typeUnary(e *ast.Expr) types.TypeID {
	ot := tc.typeExpr(e.Operand)
	if ot == types.NoTypeID {
		return types.NoTypeID
	}
	kind := tc.types.MustLookup(ot).Kind
	family := types.FamilyOf(kind)
	for _, spec := range types.UnarySpecs(e.UnOp) {
		if family&spec.Operand != 0 {
			return ot
		}
	}
	tc.report(diag.SemaTypeMismatch, e.Span,
		fmt.Sprintf("%s: operator '%s' is not defined on %s",
			diag.MsgTypeMismatch, e.UnOp, tc.typeLabel(ot)))
	return types.NoTypeID
}

func (tc *typeChecker) typeField(e *ast.Expr) types.TypeID {
	ot := tc.typeExpr(e.Object)
	if ot == types.NoTypeID {
		return types.NoTypeID
	}
	tt := tc.types.MustLookup(ot)
	switch tt.Kind {
	case types.KindStruct, types.KindError:
		info, ok := tc.types.Info(ot)
		if !ok {
			return types.NoTypeID
		}
		for _, f := range info.Fields {
			if f.Name == e.Name {
				return f.Type
			}
		}
		tc.report(diag.SemaUnknownField, e.Span,
			fmt.Sprintf("%s has no field '%s'", tc.typeLabel(ot), tc.name(e.Name)))
		return types.NoTypeID
	default:
		tc.report(diag.SemaUnknownField, e.Span,
			fmt.Sprintf("%s has no fields", tc.typeLabel(ot)))
		return types.NoTypeID
	}
}

func (tc *typeChecker) typeIndex(e *ast.Expr) types.TypeID {
	ot := tc.typeExpr(e.Object)
	it := tc.typeExpr(e.Index)
	if ot == types.NoTypeID {
		return types.NoTypeID
	}
	b := tc.types.Builtins()
	tt := tc.types.MustLookup(ot)
	switch tt.Kind {
	case types.KindArray:
		if it != types.NoTypeID && it != b.Int {
			tc.report(diag.SemaTypeMismatch, e.Span,
				fmt.Sprintf("%s: array index must be Int, got %s",
					diag.MsgTypeMismatch, tc.typeLabel(it)))
		}
		return tt.Elem
	case types.KindMap:
		if it != types.NoTypeID && it != tt.Key {
			tc.report(diag.SemaTypeMismatch, e.Span,
				fmt.Sprintf("%s: map key is %s, got %s",
					diag.MsgTypeMismatch, tc.typeLabel(tt.Key), tc.typeLabel(it)))
		}
		return tt.Elem
	case types.KindString:
		if it != types.NoTypeID && it != b.Int {
			tc.report(diag.SemaTypeMismatch, e.Span,
				fmt.Sprintf("%s: string index must be Int, got %s",
					diag.MsgTypeMismatch, tc.typeLabel(it)))
		}
		return b.String
	default:
		tc.report(diag.SemaNotIndexable, e.Span,
			fmt.Sprintf("%s cannot be indexed", tc.typeLabel(ot)))
		return types.NoTypeID
	}
}

func (tc *typeChecker) typeNew(e *ast.Expr) types.TypeID {
	typ := tc.resolveTypeRef(e.Type)
	if typ == types.NoTypeID {
		return types.NoTypeID
	}
	tt := tc.types.MustLookup(typ)
	// Classes and error types are constructible; apps are instantiated by the
	// runtime only.
	if (tt.Kind != types.KindStruct && tt.Kind != types.KindError) || tc.isAppDecl(tt.Decl) {
		tc.report(diag.SemaError, e.Span,
			fmt.Sprintf("%s cannot be constructed with new", tc.typeLabel(typ)))
		return types.NoTypeID
	}
	info, ok := tc.types.Info(typ)
	if !ok {
		return types.NoTypeID
	}
	// Initializers cover the declared fields only; injected dependency
	// slots are filled by the injector, never by the caller.
	declared := len(tc.tree.Decls.Get(tt.Decl).Fields)
	if len(e.Args) != declared {
		tc.report(diag.SemaBadArgumentCount, e.Span,
			fmt.Sprintf("%s has %d fields, got %d initializers",
				tc.typeLabel(typ), declared, len(e.Args)))
		return typ
	}
	for i, arg := range e.Args {
		at := tc.typeExpr(arg)
		if at == types.NoTypeID {
			continue
		}
		if !tc.assignable(info.Fields[i].Type, at) {
			span := tc.tree.Exprs.Get(arg).Span
			tc.report(diag.SemaTypeMismatch, span,
				fmt.Sprintf("%s: field '%s' is %s, got %s", diag.MsgTypeMismatch,
					tc.name(info.Fields[i].Name), tc.typeLabel(info.Fields[i].Type), tc.typeLabel(at)))
		}
	}
	return typ
}

func (tc *typeChecker) isAppDecl(declID ast.DeclID) bool {
	decl := tc.tree.Decls.Get(declID)
	return decl != nil && decl.Kind == ast.DeclApp
}

func (tc *typeChecker) typeVariant(e *ast.Expr) types.TypeID {
	typ := tc.resolveTypeRef(e.Type)
	if typ == types.NoTypeID {
		return types.NoTypeID
	}
	if tc.types.MustLookup(typ).Kind != types.KindEnum {
		tc.report(diag.SemaError, e.Span,
			fmt.Sprintf("%s is not an enum", tc.typeLabel(typ)))
		return types.NoTypeID
	}
	info, ok := tc.types.Info(typ)
	if !ok {
		return types.NoTypeID
	}
	for _, v := range info.Variants {
		if v.Name != e.Name {
			continue
		}
		switch {
		case v.Payload == types.NoTypeID && e.Payload.IsValid():
			tc.report(diag.SemaVariantNoPayload, e.Span,
				fmt.Sprintf("variant '%s' carries no data", tc.name(e.Name)))
		case v.Payload != types.NoTypeID && !e.Payload.IsValid():
			tc.report(diag.SemaBadArgumentCount, e.Span,
				fmt.Sprintf("variant '%s' requires a %s payload",
					tc.name(e.Name), tc.typeLabel(v.Payload)))
		case v.Payload != types.NoTypeID:
			pt := tc.typeExpr(e.Payload)
			if pt != types.NoTypeID && !tc.assignable(v.Payload, pt) {
				span := tc.tree.Exprs.Get(e.Payload).Span
				tc.report(diag.SemaTypeMismatch, span,
					fmt.Sprintf("%s: variant '%s' carries %s, got %s", diag.MsgTypeMismatch,
						tc.name(e.Name), tc.typeLabel(v.Payload), tc.typeLabel(pt)))
			}
		}
		return typ
	}
	tc.report(diag.SemaUnknownVariant, e.Span,
		fmt.Sprintf("%s has no variant '%s'", tc.typeLabel(typ), tc.name(e.Name)))
	return types.NoTypeID
}

// errorTop is the type bound to a catch binder: some error value, of a
// declaration unknown at compile time.
func (tc *typeChecker) errorTop() types.TypeID {
	return tc.types.Intern(types.Type{Kind: types.KindError})
}

func (tc *typeChecker) typeCatch(e *ast.Expr) types.TypeID {
	guarded := tc.tree.Exprs.Get(e.Guarded)
	if guarded == nil || guarded.Kind != ast.ExprCall {
		tc.report(diag.SemaError, e.Span, "catch guards a call")
		return types.NoTypeID
	}
	gt := tc.typeExpr(e.Guarded)

	if fnID, ok := tc.result.CallTargets[e.Guarded]; ok {
		if fn := tc.tree.Fns.Get(fnID); fn != nil && !fn.Raises {
			tc.report(diag.SemaPropagateNoRaise, e.Span,
				fmt.Sprintf("'%s' cannot raise", tc.name(fn.Name)))
		}
	}

	var ft types.TypeID
	if e.ErrName != source.NoStringID {
		tc.pushScope()
		tc.bind(e.ErrName, tc.errorTop())
		ft = tc.typeExpr(e.Fallback)
		tc.popScope()
	} else {
		ft = tc.typeExpr(e.Fallback)
	}

	if gt == types.NoTypeID {
		return ft
	}
	if ft != types.NoTypeID && !tc.assignable(gt, ft) {
		span := tc.tree.Exprs.Get(e.Fallback).Span
		tc.report(diag.SemaTypeMismatch, span,
			fmt.Sprintf("%s: fallback must yield %s, got %s",
				diag.MsgTypeMismatch, tc.typeLabel(gt), tc.typeLabel(ft)))
	}
	return gt
}
