package mir

import (
	"quill/internal/ast"
	"quill/internal/rt"
	"quill/internal/source"
	"quill/internal/types"
)

func (fl *fnLowerer) lowerStmt(id ast.StmtID) {
	if !id.IsValid() {
		return
	}
	s := fl.tree.Stmts.Get(id)
	if s == nil {
		return
	}

	switch s.Kind {
	case ast.StmtBlock:
		fl.pushScope()
		for _, inner := range s.Stmts {
			if fl.f.Block(fl.cur).Terminated() {
				break // statements after return/raise are dead
			}
			fl.lowerStmt(inner)
		}
		fl.popScope()

	case ast.StmtLet:
		declared := fl.sem.LetTypes[id]
		val := fl.lowerExpr(s.Value)
		val = fl.coerce(declared, val)
		l := fl.f.NewLocal(Local{
			Name: fl.name(s.Name), Type: declared, Span: s.Span,
			Pointer: fl.isPointer(declared),
		})
		fl.emit(Instr{Kind: InstrAssign, Assign: AssignInstr{
			Dst: l, Src: RValue{Kind: RValueUse, Use: val},
		}})
		fl.bind(s.Name, l)

	case ast.StmtAssign:
		fl.lowerAssign(s)

	case ast.StmtExpr:
		fl.lowerExpr(s.Expr)

	case ast.StmtReturn:
		if !s.HasValue {
			fl.emitReturn(false, Operand{})
			return
		}
		val := fl.lowerExpr(s.Value)
		val = fl.coerce(fl.f.Result, val)
		fl.emitReturn(true, val)

	case ast.StmtIf:
		fl.lowerIf(s)

	case ast.StmtWhile:
		fl.lowerWhile(s)

	case ast.StmtBreak:
		fl.terminate(Terminator{Kind: TermGoto, Goto: GotoTerm{
			Target: fl.breakTargets[len(fl.breakTargets)-1],
		}})

	case ast.StmtContinue:
		fl.terminate(Terminator{Kind: TermGoto, Goto: GotoTerm{
			Target: fl.continueTargets[len(fl.continueTargets)-1],
		}})

	case ast.StmtMatch:
		fl.lowerMatch(s)

	case ast.StmtRaise:
		val := fl.lowerExpr(s.Value)
		fl.emit(Instr{Kind: InstrErrSet, Err: ErrInstr{Value: val}})
		fl.terminate(Terminator{Kind: TermErrorReturn})
	}
}

func (fl *fnLowerer) lowerAssign(s *ast.Stmt) {
	target := fl.tree.Exprs.Get(s.Target)
	val := fl.lowerExpr(s.Value)

	switch target.Kind {
	case ast.ExprIdent:
		l, ok := fl.lookup(target.Name)
		if !ok {
			fl.defect(target.Span, "assignment to unresolved local")
			return
		}
		val = fl.coerce(fl.f.Locals[l].Type, val)
		fl.emit(Instr{Kind: InstrAssign, Assign: AssignInstr{
			Dst: l, Src: RValue{Kind: RValueUse, Use: val},
		}})

	case ast.ExprField:
		obj := fl.lowerExpr(target.Object)
		idx, ft := fl.fieldIndex(obj.Type, target.Name)
		if idx < 0 {
			fl.defect(target.Span, "assignment to unresolved field")
			return
		}
		val = fl.coerce(ft, val)
		fl.emit(Instr{Kind: InstrFieldSet, FieldSet: FieldSetInstr{
			Object: obj, Field: idx, Value: val,
		}})

	case ast.ExprIndex:
		obj := fl.lowerExpr(target.Object)
		idx := fl.lowerExpr(target.Index)
		tt, _ := fl.sem.Types.Lookup(obj.Type)
		sym := rt.SymArrSet
		if tt.Kind == types.KindMap {
			sym = rt.SymMapSet
			idx = fl.coerce(tt.Key, idx)
		}
		val = fl.coerce(tt.Elem, val)
		fl.emit(Instr{Kind: InstrCall, Call: CallInstr{
			Callee: Callee{Kind: CalleeRuntime, Name: sym},
			Args:   []Operand{obj, idx, val},
		}})

	default:
		fl.defect(s.Span, "unsupported assignment target")
	}
}

func (fl *fnLowerer) lowerIf(s *ast.Stmt) {
	cond := fl.lowerExpr(s.Cond)
	thenB := fl.f.NewBlock()
	joinB := fl.f.NewBlock()
	elseB := joinB
	if s.Else.IsValid() {
		elseB = fl.f.NewBlock()
	}
	fl.terminate(Terminator{Kind: TermIf, If: IfTerm{Cond: cond, Then: thenB, Else: elseB}})

	fl.cur = thenB
	fl.lowerStmt(s.Then)
	if !fl.f.Block(fl.cur).Terminated() {
		fl.terminate(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: joinB}})
	}

	if s.Else.IsValid() {
		fl.cur = elseB
		fl.lowerStmt(s.Else)
		if !fl.f.Block(fl.cur).Terminated() {
			fl.terminate(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: joinB}})
		}
	}
	fl.cur = joinB
}

func (fl *fnLowerer) lowerWhile(s *ast.Stmt) {
	headB := fl.f.NewBlock()
	bodyB := fl.f.NewBlock()
	exitB := fl.f.NewBlock()

	fl.terminate(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: headB}})

	fl.cur = headB
	cond := fl.lowerExpr(s.Cond)
	fl.terminate(Terminator{Kind: TermIf, If: IfTerm{Cond: cond, Then: bodyB, Else: exitB}})

	fl.breakTargets = append(fl.breakTargets, exitB)
	fl.continueTargets = append(fl.continueTargets, headB)
	fl.cur = bodyB
	fl.lowerStmt(s.Body)
	if !fl.f.Block(fl.cur).Terminated() {
		fl.terminate(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: headB}})
	}
	fl.breakTargets = fl.breakTargets[:len(fl.breakTargets)-1]
	fl.continueTargets = fl.continueTargets[:len(fl.continueTargets)-1]

	fl.cur = exitB
}

func (fl *fnLowerer) lowerMatch(s *ast.Stmt) {
	scrut := fl.lowerExpr(s.Scrutinee)
	b := fl.sem.Types.Builtins()

	tag := fl.tmp(b.Int)
	fl.emit(Instr{Kind: InstrEnumTag, Enum: EnumInstr{Dst: tag, Value: scrut}})

	joinB := fl.f.NewBlock()
	term := SwitchTagTerm{Value: LocalOperand(tag, b.Int), Default: joinB}

	type armPlan struct {
		arm   *ast.MatchArm
		block BlockID
		tag   int
	}
	var plans []armPlan
	for i := range s.Arms {
		arm := &s.Arms[i]
		block := fl.f.NewBlock()
		if arm.Variant == source.NoStringID {
			term.Default = block
			plans = append(plans, armPlan{arm: arm, block: block, tag: -1})
			continue
		}
		tagVal, _ := fl.variantTag(scrut.Type, arm.Variant)
		term.Cases = append(term.Cases, SwitchTagCase{Tag: tagVal, Target: block})
		plans = append(plans, armPlan{arm: arm, block: block, tag: tagVal})
	}
	fl.terminate(Terminator{Kind: TermSwitchTag, SwitchTag: term})

	for _, plan := range plans {
		fl.cur = plan.block
		fl.pushScope()
		if plan.arm.Bind != source.NoStringID && plan.tag >= 0 {
			_, payload := fl.variantTag(scrut.Type, plan.arm.Variant)
			l := fl.f.NewLocal(Local{
				Name: fl.name(plan.arm.Bind), Type: payload,
				Pointer: fl.isPointer(payload),
			})
			fl.emit(Instr{Kind: InstrEnumPayload, Enum: EnumInstr{
				Dst: l, Value: scrut, Tag: plan.tag,
			}})
			fl.bind(plan.arm.Bind, l)
		}
		fl.lowerStmt(plan.arm.Body)
		if !fl.f.Block(fl.cur).Terminated() {
			fl.terminate(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: joinB}})
		}
		fl.popScope()
	}
	fl.cur = joinB
}
