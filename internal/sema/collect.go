package sema

import (
	"fmt"

	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/source"
	"quill/internal/symbols"
	"quill/internal/types"
)

// collectDecls walks top-level declarations in source order and populates the
// symbol table. Name reuse across any two top-level entities is a collision;
// the first declaration wins and the duplicate is marked broken.
func (tc *typeChecker) collectDecls() {
	for _, declID := range tc.tree.Module.Decls {
		decl := tc.tree.Decls.Get(declID)
		if decl == nil {
			continue
		}
		sym := symbols.Symbol{
			Name: decl.Name,
			Kind: symbolKindFor(decl.Kind),
			Span: decl.Span,
			Decl: declID,
		}
		existing, ok := tc.result.Symbols.Declare(sym)
		if !ok {
			prev := tc.result.Symbols.Get(existing)
			tc.reportNote(diag.SemaAlreadyDeclared, decl.Span,
				fmt.Sprintf("'%s' %s", tc.name(decl.Name), diag.MsgAlreadyDeclared),
				prev.Span, fmt.Sprintf("previous declaration as %s", prev.Kind))
			tc.result.Broken[declID] = true
			continue
		}

		typ := tc.registerNominal(declID, decl)
		tc.result.Symbols.SetType(existing, typ)

		// Method name index, built once and shared by call resolution.
		idx := make(map[source.StringID]ast.FnID, len(decl.Methods))
		for _, fnID := range decl.Methods {
			fn := tc.tree.Fns.Get(fnID)
			if fn == nil {
				continue
			}
			if _, taken := idx[fn.Name]; taken {
				tc.report(diag.SemaAlreadyDeclared, fn.Span,
					fmt.Sprintf("method '%s' %s", tc.name(fn.Name), diag.MsgAlreadyDeclared))
				continue
			}
			idx[fn.Name] = fnID
		}
		tc.methods[declID] = idx
	}

	for _, fnID := range tc.tree.Module.Funcs {
		fn := tc.tree.Fns.Get(fnID)
		if fn == nil {
			continue
		}
		sym := symbols.Symbol{
			Name: fn.Name,
			Kind: symbols.SymbolFunction,
			Span: fn.Span,
			Fn:   fnID,
		}
		if existing, ok := tc.result.Symbols.Declare(sym); !ok {
			prev := tc.result.Symbols.Get(existing)
			tc.reportNote(diag.SemaAlreadyDeclared, fn.Span,
				fmt.Sprintf("'%s' %s", tc.name(fn.Name), diag.MsgAlreadyDeclared),
				prev.Span, fmt.Sprintf("previous declaration as %s", prev.Kind))
		}
	}
}

func (tc *typeChecker) registerNominal(declID ast.DeclID, decl *ast.Decl) types.TypeID {
	switch decl.Kind {
	case ast.DeclClass, ast.DeclApp:
		return tc.types.RegisterNominal(types.KindStruct, declID, decl.Name)
	case ast.DeclEnum:
		return tc.types.RegisterNominal(types.KindEnum, declID, decl.Name)
	case ast.DeclTrait:
		return tc.types.RegisterNominal(types.KindTrait, declID, decl.Name)
	case ast.DeclError:
		return tc.types.RegisterNominal(types.KindError, declID, decl.Name)
	}
	return types.NoTypeID
}

func symbolKindFor(k ast.DeclKind) symbols.SymbolKind {
	switch k {
	case ast.DeclClass:
		return symbols.SymbolClass
	case ast.DeclEnum:
		return symbols.SymbolEnum
	case ast.DeclTrait:
		return symbols.SymbolTrait
	case ast.DeclApp:
		return symbols.SymbolApp
	case ast.DeclError:
		return symbols.SymbolError
	default:
		return symbols.SymbolInvalid
	}
}

// resolveMembers resolves field, variant, and method signature types for
// every surviving declaration. A declaration whose members do not resolve is
// marked broken so its dependents do not cascade.
func (tc *typeChecker) resolveMembers() {
	for _, declID := range tc.tree.Module.Decls {
		if tc.result.Broken[declID] {
			continue
		}
		decl := tc.tree.Decls.Get(declID)
		if decl == nil {
			continue
		}
		typ, _ := tc.types.NominalType(declID)

		switch decl.Kind {
		case ast.DeclClass, ast.DeclApp, ast.DeclError:
			fields := make([]types.FieldInfo, 0, len(decl.Fields)+len(decl.Deps))
			ok := true
			for _, f := range decl.Fields {
				ft := tc.resolveTypeRef(f.Type)
				if ft == types.NoTypeID {
					ok = false
					continue
				}
				fields = append(fields, types.FieldInfo{Name: f.Name, Type: ft})
			}
			// Injected dependencies live in hidden slots after the declared
			// fields. The '#' in the synthesized name keeps them out of
			// reach of source-level field access.
			for i, dep := range decl.Deps {
				dt := tc.resolveTypeRef(dep)
				if dt == types.NoTypeID {
					ok = false
					continue
				}
				name := tc.tree.Strings.Intern(fmt.Sprintf("#dep%d", i))
				fields = append(fields, types.FieldInfo{Name: name, Type: dt})
			}
			if !ok {
				tc.result.Broken[declID] = true
				continue
			}
			tc.types.SetFields(typ, fields)

		case ast.DeclEnum:
			variants := make([]types.VariantInfo, 0, len(decl.Variants))
			ok := true
			for _, v := range decl.Variants {
				payload := types.NoTypeID
				if v.Payload.IsValid() {
					payload = tc.resolveTypeRef(v.Payload)
					if payload == types.NoTypeID {
						ok = false
						continue
					}
				}
				variants = append(variants, types.VariantInfo{Name: v.Name, Payload: payload})
			}
			if !ok {
				tc.result.Broken[declID] = true
				continue
			}
			tc.types.SetVariants(typ, variants)
		}
	}

	// Method and free-function signatures resolve after all nominals exist,
	// so forward references between declarations work.
	for _, declID := range tc.tree.Module.Decls {
		decl := tc.tree.Decls.Get(declID)
		if decl == nil {
			continue
		}
		for _, fnID := range decl.Methods {
			tc.resolveFnType(fnID)
		}
	}
	for _, fnID := range tc.tree.Module.Funcs {
		tc.resolveFnType(fnID)
	}
}

func (tc *typeChecker) resolveFnType(fnID ast.FnID) {
	fn := tc.tree.Fns.Get(fnID)
	if fn == nil {
		return
	}
	params := make([]types.TypeID, 0, len(fn.Params))
	for _, p := range fn.Params {
		params = append(params, tc.resolveTypeRef(p.Type))
	}
	ret := tc.types.Builtins().Unit
	if fn.Result.IsValid() {
		if r := tc.resolveTypeRef(fn.Result); r != types.NoTypeID {
			ret = r
		}
	}
	tc.result.FnTypes[fnID] = tc.types.MakeFn(params, ret)
}

// fnResult returns the resolved result type of a function, Unit when the
// signature carries none.
func (tc *typeChecker) fnResult(fn *ast.Fn) types.TypeID {
	if !fn.Result.IsValid() {
		return tc.types.Builtins().Unit
	}
	return tc.resolveTypeRef(fn.Result)
}

// validateApps enforces the app entry-point contract: every app declares a
// 'main' method.
func (tc *typeChecker) validateApps() {
	for _, declID := range tc.tree.Module.Decls {
		if tc.result.Broken[declID] {
			continue
		}
		decl := tc.tree.Decls.Get(declID)
		if decl == nil || decl.Kind != ast.DeclApp {
			continue
		}
		main := tc.tree.Strings.Intern("main")
		if _, ok := tc.methods[declID][main]; !ok {
			tc.report(diag.SemaAppMissingMain, decl.Span, diag.MsgAppMissingMain)
		}
	}
}

func (tc *typeChecker) name(id source.StringID) string {
	s, _ := tc.tree.Strings.Lookup(id)
	return s
}
