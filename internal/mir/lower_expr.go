package mir

import (
	"quill/internal/ast"
	"quill/internal/rt"
	"quill/internal/source"
	"quill/internal/types"
)

func (fl *fnLowerer) exprType(id ast.ExprID) types.TypeID {
	return fl.sem.ExprTypes[id]
}

// lowerExpr translates one expression into instructions and returns the
// operand holding its value.
func (fl *fnLowerer) lowerExpr(id ast.ExprID) Operand {
	if !id.IsValid() {
		return Operand{}
	}
	e := fl.tree.Exprs.Get(id)
	if e == nil {
		return Operand{}
	}
	b := fl.sem.Types.Builtins()

	switch e.Kind {
	case ast.ExprIdent:
		if l, ok := fl.lookup(e.Name); ok {
			return LocalOperand(l, fl.f.Locals[l].Type)
		}
		fl.defect(e.Span, "unresolved identifier survived checking")
		return Operand{}

	case ast.ExprLit:
		return fl.lowerLit(e, b)

	case ast.ExprBinary:
		return fl.lowerBinary(id, e)

	case ast.ExprUnary:
		operand := fl.lowerExpr(e.Operand)
		dst := fl.tmp(fl.exprType(id))
		fl.emit(Instr{Kind: InstrAssign, Assign: AssignInstr{
			Dst: dst, Src: RValue{Kind: RValueUnary, UnOp: e.UnOp, Left: operand},
		}})
		return LocalOperand(dst, fl.exprType(id))

	case ast.ExprCall:
		return fl.lowerCall(id, e)

	case ast.ExprField:
		obj := fl.lowerExpr(e.Object)
		idx, ft := fl.fieldIndex(obj.Type, e.Name)
		if idx < 0 {
			fl.defect(e.Span, "unresolved field survived checking")
			return Operand{}
		}
		dst := fl.tmp(ft)
		fl.emit(Instr{Kind: InstrFieldGet, FieldGet: FieldGetInstr{
			Dst: dst, Object: obj, Field: idx,
		}})
		return LocalOperand(dst, ft)

	case ast.ExprIndex:
		return fl.lowerIndex(id, e)

	case ast.ExprInterp:
		return fl.lowerInterp(e, b)

	case ast.ExprNew:
		return fl.lowerNew(id, e)

	case ast.ExprVariant:
		return fl.lowerVariant(id, e)

	case ast.ExprSpawn:
		return fl.lowerSpawn(id, e)

	case ast.ExprCatch:
		return fl.lowerCatch(id, e)

	case ast.ExprUnwrap:
		operand := fl.lowerExpr(e.Operand)
		dst := fl.tmp(fl.exprType(id))
		fl.emit(Instr{Kind: InstrNullUnwrap, Null: NullInstr{Dst: dst, Value: operand}})
		return LocalOperand(dst, fl.exprType(id))

	case ast.ExprHasValue:
		operand := fl.lowerExpr(e.Operand)
		dst := fl.tmp(b.Bool)
		fl.emit(Instr{Kind: InstrNullFlag, Null: NullInstr{Dst: dst, Value: operand}})
		return LocalOperand(dst, b.Bool)

	case ast.ExprChanMake:
		chType := fl.exprType(id)
		tt, _ := fl.sem.Types.Lookup(chType)
		capacity := ConstIntOperand(0, b.Int)
		if e.Capacity.IsValid() {
			capacity = fl.lowerExpr(e.Capacity)
		}
		dst := fl.tmp(chType)
		fl.emit(Instr{Kind: InstrChanMake, Chan: ChanInstr{
			Dst: dst, Elem: tt.Elem, Capacity: capacity,
		}})
		return LocalOperand(dst, chType)

	case ast.ExprChanSend:
		ch := fl.lowerExpr(e.Channel)
		tt, _ := fl.sem.Types.Lookup(ch.Type)
		val := fl.coerce(tt.Elem, fl.lowerExpr(e.Value))
		fl.emit(Instr{Kind: InstrChanSend, Chan: ChanInstr{Channel: ch, Value: val}})
		return Operand{Kind: OperandConst, Type: b.Unit}

	case ast.ExprChanRecv:
		ch := fl.lowerExpr(e.Channel)
		tt, _ := fl.sem.Types.Lookup(ch.Type)
		dst := fl.tmp(tt.Elem)
		fl.emit(Instr{Kind: InstrChanRecv, Chan: ChanInstr{Dst: dst, Channel: ch}})
		return LocalOperand(dst, tt.Elem)
	}
	return Operand{}
}

func (fl *fnLowerer) lowerLit(e *ast.Expr, b types.Builtins) Operand {
	switch e.Lit {
	case ast.LitInt:
		return Operand{Kind: OperandConst, Type: b.Int, Const: Const{Kind: ConstInt, Int: e.IntVal}}
	case ast.LitFloat:
		return Operand{Kind: OperandConst, Type: b.Float, Const: Const{Kind: ConstFloat, Float: e.FloatVal}}
	case ast.LitBool:
		return Operand{Kind: OperandConst, Type: b.Bool, Const: Const{Kind: ConstBool, Bool: e.BoolVal}}
	case ast.LitString:
		return fl.stringLit(e.StrVal)
	case ast.LitByte:
		return Operand{Kind: OperandConst, Type: b.Byte, Const: Const{Kind: ConstByte, Byte: e.ByteVal}}
	case ast.LitNone:
		return Operand{Kind: OperandConst, Const: Const{Kind: ConstNone}}
	}
	return Operand{}
}

// stringLit materializes a literal through the runtime so every string value
// the code handles is a heap reference. The literal bytes stay constant in
// the call operand; the backend places them in read-only data.
func (fl *fnLowerer) stringLit(s string) Operand {
	b := fl.sem.Types.Builtins()
	dst := fl.tmp(b.String)
	fl.emit(Instr{Kind: InstrCall, Call: CallInstr{
		HasDst: true, Dst: dst,
		Callee: Callee{Kind: CalleeRuntime, Name: rt.SymStrLit},
		Args: []Operand{{
			Kind: OperandConst, Type: b.String,
			Const: Const{Kind: ConstString, Str: s},
		}},
	}})
	return LocalOperand(dst, b.String)
}

func (fl *fnLowerer) lowerBinary(id ast.ExprID, e *ast.Expr) Operand {
	b := fl.sem.Types.Builtins()

	if e.BinOp == ast.BinLogicalAnd || e.BinOp == ast.BinLogicalOr {
		return fl.lowerShortCircuit(e)
	}

	left := fl.lowerExpr(e.Left)
	right := fl.lowerExpr(e.Right)
	resType := fl.exprType(id)

	// String operators route through the runtime.
	if left.Type == b.String {
		return fl.lowerStringBinary(e.BinOp, left, right)
	}

	dst := fl.tmp(resType)
	fl.emit(Instr{Kind: InstrAssign, Assign: AssignInstr{
		Dst: dst, Src: RValue{Kind: RValueBinary, Op: e.BinOp, Left: left, Right: right},
	}})
	return LocalOperand(dst, resType)
}

func (fl *fnLowerer) lowerStringBinary(op ast.ExprBinaryOp, left, right Operand) Operand {
	b := fl.sem.Types.Builtins()
	call := func(sym string, resType types.TypeID) Operand {
		dst := fl.tmp(resType)
		fl.emit(Instr{Kind: InstrCall, Call: CallInstr{
			HasDst: true, Dst: dst,
			Callee: Callee{Kind: CalleeRuntime, Name: sym},
			Args:   []Operand{left, right},
		}})
		return LocalOperand(dst, resType)
	}

	switch op {
	case ast.BinAdd:
		return call(rt.SymStrConcat, b.String)
	case ast.BinEq:
		return call(rt.SymStrEq, b.Bool)
	case ast.BinNe:
		eq := call(rt.SymStrEq, b.Bool)
		dst := fl.tmp(b.Bool)
		fl.emit(Instr{Kind: InstrAssign, Assign: AssignInstr{
			Dst: dst, Src: RValue{Kind: RValueUnary, UnOp: ast.UnNot, Left: eq},
		}})
		return LocalOperand(dst, b.Bool)
	default:
		// Ordered comparisons: compare to zero.
		cmp := call(rt.SymStrCmp, b.Int)
		dst := fl.tmp(b.Bool)
		fl.emit(Instr{Kind: InstrAssign, Assign: AssignInstr{
			Dst: dst, Src: RValue{
				Kind: RValueBinary, Op: op,
				Left: cmp, Right: ConstIntOperand(0, b.Int),
			},
		}})
		return LocalOperand(dst, b.Bool)
	}
}

// lowerShortCircuit gives && and || their control-flow semantics.
func (fl *fnLowerer) lowerShortCircuit(e *ast.Expr) Operand {
	b := fl.sem.Types.Builtins()
	dst := fl.tmp(b.Bool)

	left := fl.lowerExpr(e.Left)
	rightB := fl.f.NewBlock()
	shortB := fl.f.NewBlock()
	joinB := fl.f.NewBlock()

	if e.BinOp == ast.BinLogicalAnd {
		fl.terminate(Terminator{Kind: TermIf, If: IfTerm{Cond: left, Then: rightB, Else: shortB}})
	} else {
		fl.terminate(Terminator{Kind: TermIf, If: IfTerm{Cond: left, Then: shortB, Else: rightB}})
	}

	fl.cur = rightB
	right := fl.lowerExpr(e.Right)
	fl.emit(Instr{Kind: InstrAssign, Assign: AssignInstr{
		Dst: dst, Src: RValue{Kind: RValueUse, Use: right},
	}})
	fl.terminate(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: joinB}})

	fl.cur = shortB
	shortVal := e.BinOp == ast.BinLogicalOr
	fl.emit(Instr{Kind: InstrAssign, Assign: AssignInstr{
		Dst: dst, Src: RValue{Kind: RValueUse, Use: Operand{
			Kind: OperandConst, Type: b.Bool, Const: Const{Kind: ConstBool, Bool: shortVal},
		}},
	}})
	fl.terminate(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: joinB}})

	fl.cur = joinB
	return LocalOperand(dst, b.Bool)
}

func (fl *fnLowerer) lowerIndex(id ast.ExprID, e *ast.Expr) Operand {
	obj := fl.lowerExpr(e.Object)
	idx := fl.lowerExpr(e.Index)
	tt, _ := fl.sem.Types.Lookup(obj.Type)

	sym := rt.SymArrGet
	switch tt.Kind {
	case types.KindMap:
		sym = rt.SymMapGet
		idx = fl.coerce(tt.Key, idx)
	case types.KindString:
		sym = rt.SymStrIndex
	}

	resType := fl.exprType(id)
	dst := fl.tmp(resType)
	fl.emit(Instr{Kind: InstrCall, Call: CallInstr{
		HasDst: true, Dst: dst,
		Callee: Callee{Kind: CalleeRuntime, Name: sym},
		Args:   []Operand{obj, idx},
	}})
	return LocalOperand(dst, resType)
}

// lowerInterp folds an interpolated string into a chain of conversions and
// concatenations.
func (fl *fnLowerer) lowerInterp(e *ast.Expr, b types.Builtins) Operand {
	var acc Operand
	first := true

	appendPart := func(part Operand) {
		if first {
			acc = part
			first = false
			return
		}
		dst := fl.tmp(b.String)
		fl.emit(Instr{Kind: InstrCall, Call: CallInstr{
			HasDst: true, Dst: dst,
			Callee: Callee{Kind: CalleeRuntime, Name: rt.SymStrConcat},
			Args:   []Operand{acc, part},
		}})
		acc = LocalOperand(dst, b.String)
	}

	for _, part := range e.Parts {
		if !part.Expr.IsValid() {
			if part.Text == "" {
				continue
			}
			appendPart(fl.stringLit(part.Text))
			continue
		}
		val := fl.lowerExpr(part.Expr)
		appendPart(fl.stringify(val, b))
	}
	if first {
		return fl.stringLit("")
	}
	return acc
}

// stringify converts an interpolatable primitive to its textual form.
func (fl *fnLowerer) stringify(val Operand, b types.Builtins) Operand {
	var sym string
	switch val.Type {
	case b.String:
		return val
	case b.Int:
		sym = rt.SymStrFromInt
	case b.Float:
		sym = rt.SymStrFromFloat
	case b.Bool:
		sym = rt.SymStrFromBool
	case b.Byte:
		sym = rt.SymStrFromByte
	default:
		fl.defect(source.Span{}, "non-interpolatable value survived checking")
		return fl.stringLit("")
	}
	dst := fl.tmp(b.String)
	fl.emit(Instr{Kind: InstrCall, Call: CallInstr{
		HasDst: true, Dst: dst,
		Callee: Callee{Kind: CalleeRuntime, Name: sym},
		Args:   []Operand{val},
	}})
	return LocalOperand(dst, b.String)
}

func (fl *fnLowerer) lowerNew(id ast.ExprID, e *ast.Expr) Operand {
	typ := fl.exprType(id)
	tt, ok := fl.sem.Types.Lookup(typ)
	if !ok || (tt.Kind != types.KindStruct && tt.Kind != types.KindError) {
		fl.defect(e.Span, "new of non-constructible type survived checking")
		return Operand{}
	}
	decl := fl.tree.Decls.Get(tt.Decl)
	info, _ := fl.sem.Types.Info(typ)

	dst := fl.tmp(typ)
	fl.emit(Instr{Kind: InstrAlloc, Alloc: AllocInstr{Dst: dst, Object: typ}})

	for i, arg := range e.Args {
		if i >= len(info.Fields) {
			break
		}
		val := fl.coerce(info.Fields[i].Type, fl.lowerExpr(arg))
		fl.emit(Instr{Kind: InstrFieldSet, FieldSet: FieldSetInstr{
			Object: LocalOperand(dst, typ), Field: i, Value: val,
		}})
	}
	fl.fillDeps(tt.Decl, decl, dst, typ)
	return LocalOperand(dst, typ)
}

func (fl *fnLowerer) lowerVariant(id ast.ExprID, e *ast.Expr) Operand {
	typ := fl.exprType(id)
	tag, payloadType := fl.variantTag(typ, e.Name)
	if tag < 0 {
		fl.defect(e.Span, "unresolved variant survived checking")
		return Operand{}
	}
	in := EnumInstr{Tag: tag}
	if e.Payload.IsValid() {
		in.HasPayload = true
		in.Payload = fl.coerce(payloadType, fl.lowerExpr(e.Payload))
	}
	dst := fl.tmp(typ)
	in.Dst = dst
	fl.emit(Instr{Kind: InstrEnumMake, Enum: in})
	return LocalOperand(dst, typ)
}
