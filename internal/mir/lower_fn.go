package mir

import (
	"quill/internal/ast"
	"quill/internal/rt"
	"quill/internal/source"
	"quill/internal/types"
)

// fnLowerer carries per-function lowering state.
type fnLowerer struct {
	*lowerer

	fn    *ast.Fn
	owner ast.DeclID
	f     *Func
	cur   BlockID

	scopes    []map[source.StringID]LocalID
	selfLocal LocalID

	// errBlock is the shared early exit for `!` propagation, created on
	// first use. The error is already in the slot when control reaches it.
	errBlock BlockID

	breakTargets    []BlockID
	continueTargets []BlockID
}

func (fl *fnLowerer) emit(in Instr) {
	fl.f.Emit(fl.cur, in)
}

func (fl *fnLowerer) terminate(t Terminator) {
	fl.f.Terminate(fl.cur, t)
}

func (fl *fnLowerer) startBlock() BlockID {
	b := fl.f.NewBlock()
	fl.cur = b
	return b
}

func (fl *fnLowerer) tmp(t types.TypeID) LocalID {
	return fl.f.NewLocal(Local{Type: t, Pointer: fl.isPointer(t)})
}

// isPointer reports whether values of a type carry GC references the stack
// maps must cover.
func (fl *fnLowerer) isPointer(t types.TypeID) bool {
	tt, ok := fl.sem.Types.Lookup(t)
	if !ok {
		return false
	}
	switch tt.Kind {
	case types.KindStruct, types.KindError, types.KindString, types.KindArray,
		types.KindMap, types.KindChannel, types.KindTask, types.KindTrait:
		return true
	case types.KindNullable:
		return fl.isPointer(tt.Elem)
	}
	return false
}

func (fl *fnLowerer) pushScope() {
	fl.scopes = append(fl.scopes, make(map[source.StringID]LocalID, 8))
}

func (fl *fnLowerer) popScope() {
	fl.scopes = fl.scopes[:len(fl.scopes)-1]
}

func (fl *fnLowerer) bind(name source.StringID, l LocalID) {
	fl.scopes[len(fl.scopes)-1][name] = l
}

func (fl *fnLowerer) lookup(name source.StringID) (LocalID, bool) {
	for i := len(fl.scopes) - 1; i >= 0; i-- {
		if l, ok := fl.scopes[i][name]; ok {
			return l, true
		}
	}
	return NoLocalID, false
}

// lowerFn lowers one function body into a fresh Func.
func (lo *lowerer) lowerFn(fnID ast.FnID, fn *ast.Fn, owner ast.DeclID) {
	result := lo.sem.Types.Builtins().Unit
	if sig, ok := lo.sem.Types.FnSignature(lo.sem.FnTypes[fnID]); ok {
		result = sig.Ret
	}

	f := lo.mod.NewFunc(Func{
		Fn:     fnID,
		Name:   lo.mangle(fn),
		Span:   fn.Span,
		Result: result,
		Raises: fn.Raises,
	})
	fl := &fnLowerer{
		lowerer:   lo,
		fn:        fn,
		owner:     owner,
		f:         f,
		selfLocal: NoLocalID,
		errBlock:  NoBlockID,
	}

	f.Entry = f.NewBlock()
	fl.cur = f.Entry
	fl.pushScope()

	if owner.IsValid() {
		selfType, _ := lo.sem.Types.NominalType(owner)
		fl.selfLocal = f.NewLocal(Local{Name: "self", Type: selfType, Pointer: true})
		fl.bind(lo.tree.Strings.Intern("self"), fl.selfLocal)
	}
	sig, _ := lo.sem.Types.FnSignature(lo.sem.FnTypes[fnID])
	for i, p := range fn.Params {
		pt := types.NoTypeID
		if i < len(sig.Params) {
			pt = sig.Params[i]
		}
		l := f.NewLocal(Local{Name: lo.name(p.Name), Type: pt, Span: p.Span, Pointer: fl.isPointer(pt)})
		fl.bind(p.Name, l)
	}
	f.ParamCount = len(f.Locals)

	// Entry contracts.
	for i, req := range fn.Requires {
		cond := fl.lowerExpr(req)
		fl.emit(Instr{Kind: InstrAssert, Assert: AssertInstr{
			Cond: cond, Kind: rt.ContractRequires, FnName: f.Name, Clause: i,
		}})
	}

	fl.lowerStmt(fn.Body)

	// A body that falls off the end returns Unit implicitly; value-returning
	// functions can only reach here through dead paths.
	if !fl.f.Block(fl.cur).Terminated() {
		if result == lo.sem.Types.Builtins().Unit {
			fl.emitReturn(false, Operand{})
		} else {
			fl.terminate(Terminator{Kind: TermUnreachable})
		}
	}
	fl.popScope()
}

// emitReturn runs exit contracts and terminates with a return. Ensures
// clauses see the return value as 'result'; invariants run after public
// mutating methods.
func (fl *fnLowerer) emitReturn(hasValue bool, val Operand) {
	if len(fl.fn.Ensures) > 0 {
		fl.pushScope()
		if hasValue {
			resultLocal := fl.tmp(val.Type)
			fl.emit(Instr{Kind: InstrAssign, Assign: AssignInstr{
				Dst: resultLocal, Src: RValue{Kind: RValueUse, Use: val},
			}})
			fl.bind(fl.tree.Strings.Intern("result"), resultLocal)
		}
		for i, ens := range fl.fn.Ensures {
			cond := fl.lowerExpr(ens)
			fl.emit(Instr{Kind: InstrAssert, Assert: AssertInstr{
				Cond: cond, Kind: rt.ContractEnsures, FnName: fl.f.Name, Clause: i,
			}})
		}
		fl.popScope()
	}

	if fl.owner.IsValid() && fl.fn.Public && fl.fn.Mutating {
		owner := fl.tree.Decls.Get(fl.owner)
		for i, inv := range owner.Invariants {
			cond := fl.lowerExpr(inv)
			fl.emit(Instr{Kind: InstrAssert, Assert: AssertInstr{
				Cond: cond, Kind: rt.ContractInvariant, FnName: fl.f.Name, Clause: i,
			}})
		}
	}

	fl.terminate(Terminator{Kind: TermReturn, Return: ReturnTerm{HasValue: hasValue, Value: val}})
}

// propagationTarget returns the shared error-exit block, terminating it with
// an error return on first use.
func (fl *fnLowerer) propagationTarget() BlockID {
	if fl.errBlock != NoBlockID {
		return fl.errBlock
	}
	saved := fl.cur
	fl.errBlock = fl.startBlock()
	fl.terminate(Terminator{Kind: TermErrorReturn})
	fl.cur = saved
	return fl.errBlock
}

// construct builds an instance of an injectable class: a zeroed allocation
// with dependency slots filled from the graph. Declared fields start zeroed;
// injectable classes initialize state in their methods.
func (fl *fnLowerer) construct(declID ast.DeclID) Operand {
	decl := fl.tree.Decls.Get(declID)
	typ, _ := fl.sem.Types.NominalType(declID)
	dst := fl.tmp(typ)
	fl.emit(Instr{Kind: InstrAlloc, Alloc: AllocInstr{Dst: dst, Object: typ}})
	fl.fillDeps(declID, decl, dst, typ)
	return LocalOperand(dst, typ)
}

// fillDeps stores one operand per bracketed dependency into the hidden
// trailing slots of an instance.
func (fl *fnLowerer) fillDeps(declID ast.DeclID, decl *ast.Decl, dst LocalID, typ types.TypeID) {
	if len(decl.Deps) == 0 {
		return
	}
	node, ok := fl.sem.Graph.Node(declID)
	if !ok {
		fl.defect(decl.Span, "missing dependency node for class")
		return
	}
	info, _ := fl.sem.Types.Info(typ)
	declared := len(decl.Fields)
	for i, provider := range node.Deps {
		if !provider.IsValid() || declared+i >= len(info.Fields) {
			continue
		}
		slotType := info.Fields[declared+i].Type

		var dep Operand
		if gid, ok := fl.singleton[provider]; ok {
			ptype, _ := fl.sem.Types.NominalType(provider)
			dep = GlobalOperand(gid, ptype)
		} else {
			dep = fl.construct(provider)
		}
		dep = fl.coerce(slotType, dep)
		fl.emit(Instr{Kind: InstrFieldSet, FieldSet: FieldSetInstr{
			Object: LocalOperand(dst, typ), Field: declared + i, Value: dep,
		}})
	}
}

// coerce inserts the implicit representation changes the checker allowed:
// wrapping T into T?, none into a concrete nullable, and a class into a
// trait reference.
func (fl *fnLowerer) coerce(dst types.TypeID, src Operand) Operand {
	if dst == types.NoTypeID || src.Type == dst {
		return src
	}
	dt, ok := fl.sem.Types.Lookup(dst)
	if !ok {
		return src
	}

	if dt.Kind == types.KindNullable {
		out := fl.tmp(dst)
		if src.Kind == OperandConst && src.Const.Kind == ConstNone {
			fl.emit(Instr{Kind: InstrNullNone, Null: NullInstr{Dst: out}})
		} else if src.Type == dt.Elem {
			fl.emit(Instr{Kind: InstrNullMake, Null: NullInstr{Dst: out, Value: src}})
		} else {
			return src
		}
		return LocalOperand(out, dst)
	}

	if dt.Kind == types.KindTrait {
		st, ok := fl.sem.Types.Lookup(src.Type)
		if ok && st.Kind == types.KindStruct {
			fl.ensureVTable(st.Decl, dt.Decl)
			out := fl.tmp(dst)
			fl.emit(Instr{Kind: InstrTraitMake, Trait: TraitMakeInstr{
				Dst: out, Value: src, Class: st.Decl, Trait: dt.Decl,
			}})
			return LocalOperand(out, dst)
		}
	}
	return src
}

// fieldIndex resolves a field name to its slot index in a nominal type.
func (fl *fnLowerer) fieldIndex(objType types.TypeID, name source.StringID) (int, types.TypeID) {
	info, ok := fl.sem.Types.Info(objType)
	if !ok {
		return -1, types.NoTypeID
	}
	for i, f := range info.Fields {
		if f.Name == name {
			return i, f.Type
		}
	}
	return -1, types.NoTypeID
}

// variantTag resolves a variant name to its tag.
func (fl *fnLowerer) variantTag(enumType types.TypeID, name source.StringID) (int, types.TypeID) {
	info, ok := fl.sem.Types.Info(enumType)
	if !ok {
		return -1, types.NoTypeID
	}
	for i, v := range info.Variants {
		if v.Name == name {
			return i, v.Payload
		}
	}
	return -1, types.NoTypeID
}
