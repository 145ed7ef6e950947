package mir

import (
	"quill/internal/ast"
	"quill/internal/rt"
	"quill/internal/source"
	"quill/internal/types"
)

func (fl *fnLowerer) lowerCall(id ast.ExprID, e *ast.Expr) Operand {
	callee := fl.tree.Exprs.Get(e.Callee)
	resType := fl.exprType(id)

	// Direct targets resolved by the checker.
	if fnID, ok := fl.sem.CallTargets[id]; ok {
		fn := fl.tree.Fns.Get(fnID)
		var args []Operand
		if fn.Owner.IsValid() {
			args = append(args, fl.lowerExpr(callee.Object))
		}
		args = fl.lowerArgs(args, e.Args, fl.sem.FnTypes[fnID])

		return fl.emitCall(e, CallInstr{
			Callee:   Callee{Kind: CalleeFn, Fn: fnID, Name: fl.mangle(fn)},
			Args:     args,
			CanRaise: fn.Raises,
		}, resType)
	}

	// Trait-object dispatch.
	if slot, ok := fl.sem.TraitSlots[id]; ok {
		obj := fl.lowerExpr(callee.Object)
		args := []Operand{obj}
		tt, _ := fl.sem.Types.Lookup(obj.Type)
		traitDecl := fl.tree.Decls.Get(tt.Decl)
		var raises bool
		if slot < len(traitDecl.Methods) {
			if fn := fl.tree.Fns.Get(traitDecl.Methods[slot]); fn != nil {
				args = fl.lowerArgs(args, e.Args, fl.sem.FnTypes[traitDecl.Methods[slot]])
				raises = fn.Raises
			}
		}
		return fl.emitCall(e, CallInstr{
			Callee:   Callee{Kind: CalleeTraitSlot, Slot: slot, Object: obj},
			Args:     args,
			CanRaise: raises,
		}, resType)
	}

	// Task await.
	if callee.Kind == ast.ExprField {
		objType := fl.exprType(callee.Object)
		if tt, ok := fl.sem.Types.Lookup(objType); ok && tt.Kind == types.KindTask {
			task := fl.lowerExpr(callee.Object)
			return fl.emitCall(e, CallInstr{
				Callee: Callee{Kind: CalleeRuntime, Name: rt.SymTaskAwait},
				Args:   []Operand{task},
			}, resType)
		}
	}

	// Function-typed value.
	fnVal := fl.lowerExpr(e.Callee)
	var args []Operand
	args = fl.lowerArgs(args, e.Args, fnVal.Type)
	return fl.emitCall(e, CallInstr{
		Callee: Callee{Kind: CalleeValue, Object: fnVal},
		Args:   args,
	}, resType)
}

// lowerArgs lowers call arguments, coercing each into its parameter type.
func (fl *fnLowerer) lowerArgs(args []Operand, exprs []ast.ExprID, fnType types.TypeID) []Operand {
	sig, ok := fl.sem.Types.FnSignature(fnType)
	for i, argExpr := range exprs {
		val := fl.lowerExpr(argExpr)
		if ok && i < len(sig.Params) {
			val = fl.coerce(sig.Params[i], val)
		}
		args = append(args, val)
	}
	return args
}

// emitCall finishes a call: destination, error-flag branch for `!`, and the
// result operand.
func (fl *fnLowerer) emitCall(e *ast.Expr, call CallInstr, resType types.TypeID) Operand {
	b := fl.sem.Types.Builtins()
	unit := resType == types.NoTypeID || resType == b.Unit
	if !unit {
		call.HasDst = true
		call.Dst = fl.tmp(resType)
	}
	fl.emit(Instr{Kind: InstrCall, Call: call})

	if e.Propagate && call.CanRaise {
		flag := fl.tmp(b.Bool)
		fl.emit(Instr{Kind: InstrErrFlag, Err: ErrInstr{Dst: flag}})
		contB := fl.f.NewBlock()
		fl.terminate(Terminator{Kind: TermIf, If: IfTerm{
			Cond: LocalOperand(flag, b.Bool),
			Then: fl.propagationTarget(),
			Else: contB,
		}})
		fl.cur = contB
	}

	if unit {
		return Operand{Kind: OperandConst, Type: b.Unit}
	}
	return LocalOperand(call.Dst, resType)
}

func (fl *fnLowerer) lowerSpawn(id ast.ExprID, e *ast.Expr) Operand {
	call := fl.tree.Exprs.Get(e.Operand)
	taskType := fl.exprType(id)

	fnID, ok := fl.sem.CallTargets[e.Operand]
	if !ok {
		fl.defect(e.Span, "spawn of unresolved call survived checking")
		return Operand{}
	}
	fn := fl.tree.Fns.Get(fnID)

	var args []Operand
	if fn.Owner.IsValid() {
		callee := fl.tree.Exprs.Get(call.Callee)
		args = append(args, fl.lowerExpr(callee.Object))
	}
	args = fl.lowerArgs(args, call.Args, fl.sem.FnTypes[fnID])

	dst := fl.tmp(taskType)
	fl.emit(Instr{Kind: InstrSpawn, Spawn: SpawnInstr{
		Dst: dst, Fn: fnID, Name: fl.mangle(fn), Args: args,
	}})
	return LocalOperand(dst, taskType)
}

/// lowerCatch runs the guarded call, then splits on the error flag: the
// handler takes the error (clearing the slot), binds it, and produces the
// fallback; the normal path uses the call's result. Both paths meet in one
// destination local.
func (fl *fnLowerer) lowerCatch(id ast.ExprID, e *ast.Expr) Operand {
	b := fl.sem.Types.Builtins()
	resType := fl.exprType(id)
	dst := fl.tmp(resType)

	val := fl.lowerExpr(e.Guarded)

	flag := fl.tmp(b.Bool)
	fl.emit(Instr{Kind: InstrErrFlag, Err: ErrInstr{Dst: flag}})

	handlerB := fl.f.NewBlock()
	okB := fl.f.NewBlock()
	joinB := fl.f.NewBlock()
	fl.terminate(Terminator{Kind: TermIf, If: IfTerm{
		Cond: LocalOperand(flag, b.Bool), Then: handlerB, Else: okB,
	}})

	fl.cur = okB
	fl.emit(Instr{Kind: InstrAssign, Assign: AssignInstr{
		Dst: dst, Src: RValue{Kind: RValueUse, Use: fl.coerce(resType, val)},
	}})
	fl.terminate(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: joinB}})

	fl.cur = handlerB
	fl.pushScope()
	if e.ErrName != source.NoStringID {
		errType := fl.sem.Types.Intern(types.Type{Kind: types.KindError})
		errLocal := fl.f.NewLocal(Local{
			Name: fl.name(e.ErrName), Type: errType, Pointer: true,
		})
		fl.emit(Instr{Kind: InstrErrTake, Err: ErrInstr{Dst: errLocal}})
		fl.bind(e.ErrName, errLocal)
	} else {
		fl.emit(Instr{Kind: InstrErrClear})
	}
	fallback := fl.coerce(resType, fl.lowerExpr(e.Fallback))
	fl.emit(Instr{Kind: InstrAssign, Assign: AssignInstr{
		Dst: dst, Src: RValue{Kind: RValueUse, Use: fallback},
	}})
	fl.popScope()
	fl.terminate(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: joinB}})

	fl.cur = joinB
	return LocalOperand(dst, resType)
}
