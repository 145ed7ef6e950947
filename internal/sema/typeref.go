package sema

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/symbols"
	"quill/internal/types"
)

// builtinTypeNames maps source spellings of primitive types. Resolution
// checks these before the symbol table, so user declarations can never
// shadow a primitive.
var builtinTypeNames = map[string]func(types.Builtins) types.TypeID{
	"Unit":   func(b types.Builtins) types.TypeID { return b.Unit },
	"Int":    func(b types.Builtins) types.TypeID { return b.Int },
	"Float":  func(b types.Builtins) types.TypeID { return b.Float },
	"Bool":   func(b types.Builtins) types.TypeID { return b.Bool },
	"String": func(b types.Builtins) types.TypeID { return b.String },
	"Byte":   func(b types.Builtins) types.TypeID { return b.Byte },
}

// resolveTypeRef maps a syntactic type reference to a semantic TypeID,
// reporting unresolved names. Returns NoTypeID on failure; callers treat
// that as "already diagnosed" and stay silent.
func (tc *typeChecker) resolveTypeRef(ref ast.TypeRefID) types.TypeID {
	if !ref.IsValid() {
		return types.NoTypeID
	}
	if t, ok := tc.refCache[ref]; ok {
		return t
	}
	t := tc.resolveTypeRefUncached(ref)
	tc.refCache[ref] = t
	return t
}

func (tc *typeChecker) resolveTypeRefUncached(ref ast.TypeRefID) types.TypeID {
	tr := tc.tree.TypeRefs.Get(ref)
	if tr == nil {
		return types.NoTypeID
	}

	switch tr.Kind {
	case ast.TypeRefNamed:
		name := tc.name(tr.Name)
		if mk, ok := builtinTypeNames[name]; ok {
			return mk(tc.types.Builtins())
		}
		symID, ok := tc.result.Symbols.Lookup(tr.Name)
		if !ok {
			tc.report(diag.SemaUnresolvedType, tr.Span,
				fmt.Sprintf("unresolved type name '%s'", name))
			return types.NoTypeID
		}
		sym := tc.result.Symbols.Get(symID)
		if sym.Kind == symbols.SymbolFunction || !sym.Decl.IsValid() {
			tc.report(diag.SemaUnresolvedType, tr.Span,
				fmt.Sprintf("'%s' is not a type", name))
			return types.NoTypeID
		}
		typ, ok := tc.types.NominalType(sym.Decl)
		if !ok {
			return types.NoTypeID
		}
		return typ

	case ast.TypeRefArray:
		elem := tc.resolveTypeRef(tr.Elem)
		if elem == types.NoTypeID {
			return types.NoTypeID
		}
		return tc.types.Intern(types.MakeArray(elem))

	case ast.TypeRefMap:
		key := tc.resolveTypeRef(tr.Key)
		value := tc.resolveTypeRef(tr.Value)
		if key == types.NoTypeID || value == types.NoTypeID {
			return types.NoTypeID
		}
		return tc.types.Intern(types.MakeMap(key, value))

	case ast.TypeRefNullable:
		// T?? is spelled in source but normalizes to T?.
		elem := tc.resolveTypeRef(tr.Elem)
		if elem == types.NoTypeID {
			return types.NoTypeID
		}
		return tc.types.MakeNullable(elem)

	case ast.TypeRefFn:
		params := make([]types.TypeID, 0, len(tr.Params))
		ok := true
		for _, p := range tr.Params {
			pt := tc.resolveTypeRef(p)
			if pt == types.NoTypeID {
				ok = false
			}
			params = append(params, pt)
		}
		ret := tc.types.Builtins().Unit
		if tr.Ret.IsValid() {
			ret = tc.resolveTypeRef(tr.Ret)
			if ret == types.NoTypeID {
				ok = false
			}
		}
		if !ok {
			return types.NoTypeID
		}
		return tc.types.MakeFn(params, ret)

	case ast.TypeRefChannel:
		elem := tc.resolveTypeRef(tr.Elem)
		if elem == types.NoTypeID {
			return types.NoTypeID
		}
		return tc.types.Intern(types.MakeChannel(elem))

	case ast.TypeRefTask:
		elem := tc.resolveTypeRef(tr.Elem)
		if elem == types.NoTypeID {
			return types.NoTypeID
		}
		return tc.types.Intern(types.MakeTask(elem))
	}
	return types.NoTypeID
}
