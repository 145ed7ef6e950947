package backend

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"quill/internal/abi"
	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/layout"
	"quill/internal/mir"
	"quill/internal/rt"
	"quill/internal/types"
)

// generator walks one module's functions and drives an asm encoder. Every
// local gets a frame slot at a negative FP displacement; scalars move
// through slot loads and stores, aggregates through sized chunk copies.
type generator struct {
	mod    *mir.Module
	types  *types.Interner
	layout *layout.Engine
	conv   *abi.Convention
	obj    *Object
	opts   Options
	asm    asm
	failed bool

	dataSyms map[string]bool
	strSyms  map[string]string
	strCount int
	spawned  map[ast.FnID]bool

	// Per-function state.
	f        *mir.Func
	slots    []int
	frame    int
	hasSret  bool
	sretDisp int
	blockOff []int
	fixups   []blockFixup
	sites    []StackMapSite
	live     map[uint64][]mir.LocalID
	curLive  []mir.LocalID
	hasLive  bool
}

type blockFixup struct {
	p      patch
	target mir.BlockID
}

func siteKey(b mir.BlockID, instr int) uint64 {
	return uint64(b)<<32 | uint64(uint32(instr))
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// slotSpan is the frame footprint of a value: at least one 8-byte slot.
func slotSpan(size int) int {
	if size < 8 {
		return 8
	}
	return alignUp(size, 8)
}

func (g *generator) valSize(t types.TypeID) int {
	if t == types.NoTypeID {
		return 0
	}
	l, err := g.layout.Of(t)
	if err != nil {
		g.report(diag.CGInternal, err.Error())
		return 0
	}
	return l.Size
}

func (g *generator) isFloat(t types.TypeID) bool {
	tt, ok := g.types.Lookup(t)
	return ok && tt.Kind == types.KindFloat
}

func (g *generator) abiSlot(t types.TypeID) abi.Slot {
	if t == types.NoTypeID {
		return abi.Slot{}
	}
	l, err := g.layout.Of(t)
	if err != nil {
		g.report(diag.CGInternal, err.Error())
		return abi.Slot{}
	}
	return abi.Slot{Size: l.Size, Align: l.Align, Float: g.isFloat(t)}
}

// assignFrame places every local below the frame pointer. Multi-slot values
// land on a 16-byte boundary so pair loads stay aligned.
func (g *generator) assignFrame(f *mir.Func) {
	g.slots = make([]int, len(f.Locals))
	off := 0
	for i := range f.Locals {
		span := slotSpan(g.valSize(f.Locals[i].Type))
		off -= span
		if span > 8 {
			off &^= 15
		}
		g.slots[i] = off
	}
	g.hasSret = g.valSize(f.Result) > 16
	if g.hasSret {
		off -= 8
		g.sretDisp = off
	}
	g.frame = alignUp(-off, 16)
}

func (g *generator) genFunc(f *mir.Func) {
	g.f = f
	g.assignFrame(f)
	g.sites = nil
	g.fixups = nil
	g.blockOff = make([]int, len(f.Blocks))
	g.live = make(map[uint64][]mir.LocalID)
	for _, sp := range mir.Safepoints(f) {
		g.live[siteKey(sp.Block, sp.Instr)] = sp.Live
	}

	start := g.asm.offset()
	g.asm.prologue(g.frame)
	g.spillParams(f)

	for bi := range f.Blocks {
		g.blockOff[bi] = g.asm.offset()
		b := &f.Blocks[bi]
		for ii := range b.Instrs {
			g.curLive, g.hasLive = nil, false
			if live, ok := g.live[siteKey(mir.BlockID(bi), ii)]; ok {
				g.curLive, g.hasLive = live, true
			}
			g.genInstr(&b.Instrs[ii])
		}
		g.curLive, g.hasLive = nil, false
		g.genTerm(&b.Term)
	}
	for _, fx := range g.fixups {
		g.asm.patchTo(fx.p, g.blockOff[fx.target])
	}

	g.obj.Funcs = append(g.obj.Funcs, Sym{
		Name: f.Name, Offset: start, Size: g.asm.offset() - start,
	})
	if len(g.sites) > 0 {
		g.obj.StackMaps = append(g.obj.StackMaps, StackMap{Func: f.Name, Sites: g.sites})
	}
}

// recordSite logs the stack map for the safepoint just emitted: the offset
// past the call and the FP displacement of every live pointer word. Nullable
// and enum slots point at their payload, not the flag or tag.
func (g *generator) recordSite() {
	if !g.hasLive {
		return
	}
	var ptrs []int
	for _, l := range g.curLive {
		disp := g.slots[l]
		tl, err := g.layout.Of(g.f.Locals[l].Type)
		if err != nil {
			continue
		}
		ptrs = append(ptrs, disp+tl.PayloadOffset)
	}
	g.sites = append(g.sites, StackMapSite{Offset: g.asm.offset(), Pointers: ptrs})
}

// spillParams stores incoming arguments into their frame slots so the body
// can treat every local uniformly.
func (g *generator) spillParams(f *mir.Func) {
	params := make([]abi.Slot, 0, f.ParamCount)
	for i := 0; i < f.ParamCount; i++ {
		params = append(params, g.abiSlot(f.Locals[i].Type))
	}
	asg := g.conv.Assign(params, g.abiSlot(f.Result))

	sA, sB, _ := g.asm.scratch()
	fp := g.asm.frameReg()

	if asg.RetByRef {
		g.asm.storeSlot(g.conv.IntArgRegs[asg.Ret.Reg], g.sretDisp)
	}
	for i, loc := range asg.Args {
		disp := g.slots[i]
		size := g.valSize(f.Locals[i].Type)
		if size == 0 {
			continue
		}
		switch {
		case loc.InReg && loc.ByRef:
			g.copyMem(fp, disp, g.conv.IntArgRegs[loc.Reg], 0, size, sA)
		case loc.InReg && loc.Class == abi.ClassFloat:
			g.asm.fstoreSlot(g.conv.FloatArgRegs[loc.Reg], disp)
		case loc.InReg:
			g.asm.storeSlot(g.conv.IntArgRegs[loc.Reg], disp)
			if loc.Pair >= 0 {
				g.asm.storeSlot(g.conv.IntArgRegs[loc.Pair], disp+8)
			}
		case loc.ByRef:
			// Incoming stack args sit above the saved FP and return address.
			g.asm.loadSlot(sA, 16+loc.Offset)
			g.copyMem(fp, disp, sA, 0, size, sB)
		default:
			g.copyMem(fp, disp, fp, 16+loc.Offset, size, sA)
		}
	}
}

// chunkSizes splits a copy into 8/4/1-byte moves.
func chunkSizes(size int) []int {
	var out []int
	for size >= 8 {
		out = append(out, 8)
		size -= 8
	}
	for size >= 4 {
		out = append(out, 4)
		size -= 4
	}
	for size >= 1 {
		out = append(out, 1)
		size--
	}
	return out
}

func (g *generator) copyMem(dstBase string, dstOff int, srcBase string, srcOff, size int, via string) {
	o := 0
	for _, c := range chunkSizes(size) {
		g.asm.loadMem(via, srcBase, srcOff+o, c)
		g.asm.storeMem(via, dstBase, dstOff+o, c)
		o += c
	}
}

func (g *generator) zeroMem(base string, off, size int, via string) {
	g.asm.movImm(via, 0)
	o := 0
	for _, c := range chunkSizes(size) {
		g.asm.storeMem(via, base, off+o, c)
		o += c
	}
}

func constBits(c mir.Const) int64 {
	switch c.Kind {
	case mir.ConstInt:
		return c.Int
	case mir.ConstFloat:
		return int64(math.Float64bits(c.Float))
	case mir.ConstBool:
		if c.Bool {
			return 1
		}
		return 0
	case mir.ConstByte:
		return int64(c.Byte)
	}
	return 0
}

// loadOp materializes a scalar operand (at most 8 bytes) into an integer
// register. Globals are singleton cells holding one pointer.
func (g *generator) loadOp(op mir.Operand, dst string) {
	switch op.Kind {
	case mir.OperandLocal:
		g.asm.loadSlot(dst, g.slots[op.Local])
	case mir.OperandGlobal:
		g.asm.addrOfSym(dst, globalSymbol(g.mod.Globals[op.Global].Name))
		g.asm.loadMem(dst, dst, 0, 8)
	default:
		g.asm.movImm(dst, constBits(op.Const))
	}
}

func (g *generator) loadFloatOp(op mir.Operand, dst string) {
	if op.Kind == mir.OperandLocal {
		g.asm.floadSlot(dst, g.slots[op.Local])
		return
	}
	sA, _, _ := g.asm.scratch()
	g.loadOp(op, sA)
	g.asm.fmovToFloat(dst, sA)
}

func (g *generator) genInstr(in *mir.Instr) {
	switch in.Kind {
	case mir.InstrAssign:
		g.genAssign(&in.Assign)
	case mir.InstrCall:
		g.genCall(&in.Call)
	case mir.InstrAlloc:
		g.genAlloc(&in.Alloc)
	case mir.InstrFieldGet:
		g.genFieldGet(&in.FieldGet)
	case mir.InstrFieldSet:
		g.genFieldSet(&in.FieldSet)
	case mir.InstrGlobalSet:
		g.genGlobalSet(&in.GlobalSet)
	case mir.InstrNullMake, mir.InstrNullNone, mir.InstrNullFlag, mir.InstrNullUnwrap:
		g.genNull(in.Kind, &in.Null)
	case mir.InstrEnumMake, mir.InstrEnumTag, mir.InstrEnumPayload:
		g.genEnum(in.Kind, &in.Enum)
	case mir.InstrTraitMake:
		g.genTraitMake(&in.Trait)
	case mir.InstrErrSet:
		g.emitCall([]callArg{g.opArg(in.Err.Value)}, false, 0,
			func() { g.asm.callSym(rt.SymErrSet) })
	case mir.InstrErrFlag, mir.InstrErrTake:
		sym := rt.SymErrFlag
		if in.Kind == mir.InstrErrTake {
			sym = rt.SymErrTake
		}
		g.emitCall(nil, true, in.Err.Dst, func() { g.asm.callSym(sym) })
	case mir.InstrErrClear:
		g.emitCall(nil, false, 0, func() { g.asm.callSym(rt.SymErrClear) })
	case mir.InstrAssert:
		g.genAssert(&in.Assert)
	case mir.InstrSpawn:
		g.genSpawn(&in.Spawn)
	case mir.InstrChanMake:
		g.genChanMake(&in.Chan)
	case mir.InstrChanSend:
		g.emitCall([]callArg{g.opArg(in.Chan.Channel), g.opArg(in.Chan.Value)},
			false, 0, func() { g.asm.callSym(rt.SymChanSend) })
	case mir.InstrChanRecv:
		g.emitCall([]callArg{g.opArg(in.Chan.Channel)}, true, in.Chan.Dst,
			func() { g.asm.callSym(rt.SymChanRecv) })
	default:
		g.report(diag.CGUnsupportedInst, fmt.Sprintf("instruction kind %d", in.Kind))
	}
}

var binConds = map[ast.ExprBinaryOp]cond{
	ast.BinEq: condEq, ast.BinNe: condNe,
	ast.BinLt: condLt, ast.BinLe: condLe,
	ast.BinGt: condGt, ast.BinGe: condGe,
}

func (g *generator) genAssign(a *mir.AssignInstr) {
	sA, sB, sC := g.asm.scratch()
	fp := g.asm.frameReg()
	dstDisp := g.slots[a.Dst]
	dstType := g.f.Locals[a.Dst].Type

	switch a.Src.Kind {
	case mir.RValueUse:
		size := g.valSize(dstType)
		if size > 8 {
			if a.Src.Use.Kind != mir.OperandLocal {
				g.report(diag.CGInternal, "aggregate use of a non-local operand")
				return
			}
			g.copyMem(fp, dstDisp, fp, g.slots[a.Src.Use.Local], size, sA)
			return
		}
		g.loadOp(a.Src.Use, sA)
		g.asm.storeSlot(sA, dstDisp)

	case mir.RValueBinary:
		if g.isFloat(a.Src.Left.Type) {
			g.genFloatBinary(a, dstDisp)
			return
		}
		g.loadOp(a.Src.Left, sA)
		g.loadOp(a.Src.Right, sB)
		switch a.Src.Op {
		case ast.BinAdd:
			g.asm.add(sA, sB)
		case ast.BinSub:
			g.asm.sub(sA, sB)
		case ast.BinMul:
			g.asm.mul(sA, sB)
		case ast.BinDiv:
			g.asm.div(sA, sB, sC)
		case ast.BinBitAnd:
			g.asm.and(sA, sB)
		case ast.BinBitOr:
			g.asm.or(sA, sB)
		case ast.BinBitXor:
			g.asm.xor(sA, sB)
		case ast.BinShl:
			g.asm.shl(sA, sB)
		case ast.BinShr:
			g.asm.shr(sA, sB)
		default:
			c, ok := binConds[a.Src.Op]
			if !ok {
				g.report(diag.CGUnsupportedInst, "binary operator survived lowering")
				return
			}
			g.asm.cmpSet(c, sA, sA, sB)
		}
		g.asm.storeSlot(sA, dstDisp)

	case mir.RValueUnary:
		if g.isFloat(a.Src.Left.Type) {
			fA, _ := g.asm.fscratch()
			g.loadFloatOp(a.Src.Left, fA)
			g.asm.fneg(fA)
			g.asm.fstoreSlot(fA, dstDisp)
			return
		}
		g.loadOp(a.Src.Left, sA)
		switch a.Src.UnOp {
		case ast.UnNeg:
			g.asm.neg(sA)
		case ast.UnNot:
			g.asm.movImm(sB, 1)
			g.asm.xor(sA, sB)
		case ast.UnBitNot:
			g.asm.not(sA)
		}
		g.asm.storeSlot(sA, dstDisp)
	}
}

func (g *generator) genFloatBinary(a *mir.AssignInstr, dstDisp int) {
	sA, _, _ := g.asm.scratch()
	fA, fB := g.asm.fscratch()
	g.loadFloatOp(a.Src.Left, fA)
	g.loadFloatOp(a.Src.Right, fB)
	switch a.Src.Op {
	case ast.BinAdd:
		g.asm.fadd(fA, fB)
	case ast.BinSub:
		g.asm.fsub(fA, fB)
	case ast.BinMul:
		g.asm.fmul(fA, fB)
	case ast.BinDiv:
		g.asm.fdiv(fA, fB)
	default:
		c, ok := binConds[a.Src.Op]
		if !ok {
			g.report(diag.CGUnsupportedInst, "float operator survived lowering")
			return
		}
		g.asm.fcmpSet(c, sA, fA, fB)
		g.asm.storeSlot(sA, dstDisp)
		return
	}
	g.asm.fstoreSlot(fA, dstDisp)
}

// callArg is one staged call argument. Exactly one source is set: an
// operand, a raw 8-byte frame word at disp, or the address of a data
// symbol.
type callArg struct {
	op   mir.Operand
	slot abi.Slot

	raw     bool
	rawDisp int
	sym     string
}

func (g *generator) opArg(op mir.Operand) callArg {
	return callArg{op: op, slot: g.abiSlot(op.Type)}
}

func wordArg() abi.Slot { return abi.Slot{Size: 8, Align: 8} }

// emitCall stages arguments per the convention, invokes, records the
// safepoint, and stores the result. invoke must not touch the staged
// argument registers; indirect targets live in the third scratch register,
// which staging never uses.
func (g *generator) emitCall(args []callArg, hasDst bool, dst mir.LocalID, invoke func()) {
	slots := make([]abi.Slot, len(args))
	for i := range args {
		slots[i] = args[i].slot
	}
	var retType types.TypeID
	if hasDst {
		retType = g.f.Locals[dst].Type
	}
	retSlot := g.abiSlot(retType)
	asg := g.conv.Assign(slots, retSlot)

	// By-reference arguments get caller-owned copies above the argument
	// area.
	extra := 0
	copyOff := make([]int, len(args))
	for i, loc := range asg.Args {
		if loc.ByRef {
			copyOff[i] = asg.StackBytes + extra
			extra += alignUp(args[i].slot.Size, 16)
		}
	}
	total := asg.StackBytes + alignUp(extra, 16)
	if total > 0 {
		g.asm.stackAdjust(total)
	}

	sA, sB, _ := g.asm.scratch()
	fp := g.asm.frameReg()

	for i, loc := range asg.Args {
		if !loc.ByRef {
			continue
		}
		if args[i].op.Kind != mir.OperandLocal {
			g.report(diag.CGInternal, "by-reference argument is not a local")
			continue
		}
		g.asm.leaStack(sA, copyOff[i])
		g.copyMem(sA, 0, fp, g.slots[args[i].op.Local], args[i].slot.Size, sB)
	}

	// Stack arguments.
	for i, loc := range asg.Args {
		if loc.InReg || args[i].slot.Size == 0 {
			continue
		}
		switch {
		case loc.ByRef:
			g.asm.leaStack(sA, copyOff[i])
			g.asm.storeStackArg(sA, loc.Offset)
		case args[i].slot.Size > 8:
			disp := g.slots[args[i].op.Local]
			g.asm.loadSlot(sA, disp)
			g.asm.storeStackArg(sA, loc.Offset)
			g.asm.loadSlot(sA, disp+8)
			g.asm.storeStackArg(sA, loc.Offset+8)
		default:
			g.loadArgWord(args[i], sA)
			g.asm.storeStackArg(sA, loc.Offset)
		}
	}

	if asg.RetByRef {
		g.asm.leaSlot(g.conv.IntArgRegs[asg.Ret.Reg], g.slots[dst])
	}

	// Register arguments.
	for i, loc := range asg.Args {
		if !loc.InReg {
			continue
		}
		switch {
		case loc.ByRef:
			g.asm.leaStack(g.conv.IntArgRegs[loc.Reg], copyOff[i])
		case loc.Class == abi.ClassFloat:
			g.loadFloatOp(args[i].op, g.conv.FloatArgRegs[loc.Reg])
		case loc.Pair >= 0:
			disp := g.slots[args[i].op.Local]
			g.asm.loadSlot(g.conv.IntArgRegs[loc.Reg], disp)
			g.asm.loadSlot(g.conv.IntArgRegs[loc.Pair], disp+8)
		default:
			g.loadArgWord(args[i], g.conv.IntArgRegs[loc.Reg])
		}
	}

	invoke()
	g.recordSite()
	if total > 0 {
		g.asm.stackAdjust(-total)
	}

	if !hasDst {
		return
	}
	size := retSlot.Size
	switch {
	case size == 0 || asg.RetByRef:
	case retSlot.Float:
		g.asm.fstoreSlot(g.asm.fretReg(), g.slots[dst])
	case size <= 8:
		g.asm.storeSlot(g.asm.retReg(), g.slots[dst])
	default:
		g.asm.storeSlot(g.asm.retReg(), g.slots[dst])
		g.asm.storeSlot(g.asm.retReg2(), g.slots[dst]+8)
	}
}

func (g *generator) loadArgWord(a callArg, dst string) {
	switch {
	case a.sym != "":
		g.asm.addrOfSym(dst, a.sym)
	case a.raw:
		g.asm.loadSlot(dst, a.rawDisp)
	default:
		g.loadOp(a.op, dst)
	}
}

func (g *generator) genCall(c *mir.CallInstr) {
	if c.Callee.Kind == mir.CalleeRuntime && c.Callee.Name == rt.SymStrLit {
		g.genStrLit(c)
		return
	}

	args := make([]callArg, 0, len(c.Args))
	for _, a := range c.Args {
		args = append(args, g.opArg(a))
	}

	switch c.Callee.Kind {
	case mir.CalleeFn, mir.CalleeRuntime:
		name := c.Callee.Name
		g.emitCall(args, c.HasDst, c.Dst, func() { g.asm.callSym(name) })

	case mir.CalleeTraitSlot:
		if c.Callee.Object.Kind != mir.OperandLocal || len(args) == 0 {
			g.report(diag.CGInternal, "trait call without a fat reference local")
			return
		}
		fatDisp := g.slots[c.Callee.Object.Local]
		// Slot pointer out of the dispatch table, held in the third scratch
		// register across staging.
		_, _, sC := g.asm.scratch()
		g.asm.loadSlot(sC, fatDisp+8)
		g.asm.loadMem(sC, sC, c.Callee.Slot*8, 8)
		// The receiver is the fat reference's data word, not the 16-byte
		// aggregate itself.
		args[0] = callArg{raw: true, rawDisp: fatDisp, slot: wordArg()}
		g.emitCall(args, c.HasDst, c.Dst, func() { g.asm.callReg(sC) })

	case mir.CalleeValue:
		_, _, sC := g.asm.scratch()
		g.loadOp(c.Callee.Object, sC)
		g.emitCall(args, c.HasDst, c.Dst, func() { g.asm.callReg(sC) })
	}
}

// genStrLit interns the literal bytes in read-only data and calls the
// runtime with (bytesPtr, len).
func (g *generator) genStrLit(c *mir.CallInstr) {
	if len(c.Args) != 1 || c.Args[0].Const.Kind != mir.ConstString {
		g.report(diag.CGInternal, "string literal call without a constant operand")
		return
	}
	s := c.Args[0].Const.Str
	sym, ok := g.strSyms[s]
	if !ok {
		sym = fmt.Sprintf("quill.str.%d", g.strCount)
		g.strCount++
		g.strSyms[s] = sym
		g.addData(sym, []byte(s))
	}
	b := g.types.Builtins()
	args := []callArg{
		{sym: sym, slot: wordArg()},
		g.opArg(mir.ConstIntOperand(int64(len(s)), b.Int)),
	}
	g.emitCall(args, c.HasDst, c.Dst, func() { g.asm.callSym(rt.SymStrLit) })
}

// genAlloc calls the runtime allocator with the body size and the trace map
// naming every pointer offset inside the body.
func (g *generator) genAlloc(a *mir.AllocInstr) {
	obj, err := g.layout.ObjectOf(a.Object)
	if err != nil {
		g.report(diag.CGInternal, err.Error())
		return
	}
	sym := fmt.Sprintf("quill.tm.%d", a.Object)
	if !g.dataSyms[sym] {
		payload := make([]byte, 0, 16+8*len(obj.PointerOffsets))
		payload = binary.LittleEndian.AppendUint64(payload, uint64(obj.Size))
		payload = binary.LittleEndian.AppendUint64(payload, uint64(len(obj.PointerOffsets)))
		for _, off := range obj.PointerOffsets {
			payload = binary.LittleEndian.AppendUint64(payload, uint64(off))
		}
		g.addData(sym, payload)
	}

	b := g.types.Builtins()
	args := []callArg{
		g.opArg(mir.ConstIntOperand(int64(obj.Size), b.Int)),
		{sym: sym, slot: wordArg()},
	}
	g.emitCall(args, true, a.Dst, func() { g.asm.callSym(rt.SymAlloc) })
}

func (g *generator) fieldSlot(objType types.TypeID, idx int) (layout.FieldSlot, bool) {
	obj, err := g.layout.ObjectOf(objType)
	if err != nil {
		g.report(diag.CGInternal, err.Error())
		return layout.FieldSlot{}, false
	}
	if idx < 0 || idx >= len(obj.Fields) {
		g.report(diag.CGInternal, fmt.Sprintf("field index %d out of range", idx))
		return layout.FieldSlot{}, false
	}
	return obj.Fields[idx], true
}

func (g *generator) genFieldGet(fg *mir.FieldGetInstr) {
	f, ok := g.fieldSlot(fg.Object.Type, fg.Field)
	if !ok {
		return
	}
	sA, sB, _ := g.asm.scratch()
	fp := g.asm.frameReg()
	g.loadOp(fg.Object, sA)
	switch f.Size {
	case 0:
	case 1, 4, 8:
		g.asm.loadMem(sB, sA, f.Offset, f.Size)
		g.asm.storeSlot(sB, g.slots[fg.Dst])
	default:
		g.copyMem(fp, g.slots[fg.Dst], sA, f.Offset, f.Size, sB)
	}
}

func (g *generator) genFieldSet(fs *mir.FieldSetInstr) {
	f, ok := g.fieldSlot(fs.Object.Type, fs.Field)
	if !ok {
		return
	}
	sA, sB, _ := g.asm.scratch()
	fp := g.asm.frameReg()
	g.loadOp(fs.Object, sA)
	switch {
	case f.Size == 0:
	case f.Size == 1 || f.Size == 4 || f.Size == 8:
		g.loadOp(fs.Value, sB)
		g.asm.storeMem(sB, sA, f.Offset, f.Size)
	default:
		if fs.Value.Kind != mir.OperandLocal {
			g.report(diag.CGInternal, "aggregate field store of a non-local operand")
			return
		}
		g.copyMem(sA, f.Offset, fp, g.slots[fs.Value.Local], f.Size, sB)
	}
}

func (g *generator) genGlobalSet(gs *mir.GlobalSetInstr) {
	sA, sB, _ := g.asm.scratch()
	g.asm.addrOfSym(sA, globalSymbol(g.mod.Globals[gs.Global].Name))
	g.loadOp(gs.Value, sB)
	g.asm.storeMem(sB, sA, 0, 8)
}

func (g *generator) genNull(kind mir.InstrKind, n *mir.NullInstr) {
	sA, sB, _ := g.asm.scratch()
	fp := g.asm.frameReg()
	dstDisp := g.slots[n.Dst]
	dstType := g.f.Locals[n.Dst].Type

	switch kind {
	case mir.InstrNullMake:
		tl, err := g.layout.Of(dstType)
		if err != nil {
			g.report(diag.CGInternal, err.Error())
			return
		}
		g.asm.movImm(sA, 1)
		g.asm.storeMem(sA, fp, dstDisp, 1)
		size := g.valSize(n.Value.Type)
		switch {
		case size == 0:
		case size == 1 || size == 4 || size == 8:
			g.loadOp(n.Value, sA)
			g.asm.storeMem(sA, fp, dstDisp+tl.PayloadOffset, size)
		default:
			g.copyMem(fp, dstDisp+tl.PayloadOffset, fp, g.slots[n.Value.Local], size, sA)
		}

	case mir.InstrNullNone:
		g.zeroMem(fp, dstDisp, g.valSize(dstType), sA)

	case mir.InstrNullFlag:
		g.asm.loadMem(sA, fp, g.slots[n.Value.Local], 1)
		g.asm.storeSlot(sA, dstDisp)

	case mir.InstrNullUnwrap:
		srcDisp := g.slots[n.Value.Local]
		g.asm.loadMem(sA, fp, srcDisp, 1)
		ok := g.asm.branchNonZero(sA)
		g.asm.callSym(rt.SymNullFail)
		g.asm.trap()
		g.asm.patchTo(ok, g.asm.offset())
		src, err := g.layout.Of(n.Value.Type)
		if err != nil {
			g.report(diag.CGInternal, err.Error())
			return
		}
		size := g.valSize(dstType)
		switch {
		case size == 0:
		case size == 1 || size == 4 || size == 8:
			g.asm.loadMem(sB, fp, srcDisp+src.PayloadOffset, size)
			g.asm.storeSlot(sB, dstDisp)
		default:
			g.copyMem(fp, dstDisp, fp, srcDisp+src.PayloadOffset, size, sB)
		}
	}
}

func (g *generator) genEnum(kind mir.InstrKind, e *mir.EnumInstr) {
	sA, _, _ := g.asm.scratch()
	fp := g.asm.frameReg()
	dstDisp := g.slots[e.Dst]
	dstType := g.f.Locals[e.Dst].Type

	switch kind {
	case mir.InstrEnumMake:
		tl, err := g.layout.Of(dstType)
		if err != nil {
			g.report(diag.CGInternal, err.Error())
			return
		}
		// Zero first so padding and unused payload bytes stay deterministic.
		g.zeroMem(fp, dstDisp, tl.Size, sA)
		g.asm.movImm(sA, int64(e.Tag))
		g.asm.storeMem(sA, fp, dstDisp, 4)
		if !e.HasPayload {
			return
		}
		size := g.valSize(e.Payload.Type)
		switch {
		case size == 0:
		case size == 1 || size == 4 || size == 8:
			g.loadOp(e.Payload, sA)
			g.asm.storeMem(sA, fp, dstDisp+tl.PayloadOffset, size)
		default:
			g.copyMem(fp, dstDisp+tl.PayloadOffset, fp, g.slots[e.Payload.Local], size, sA)
		}

	case mir.InstrEnumTag:
		g.asm.loadMem(sA, fp, g.slots[e.Value.Local], 4)
		g.asm.storeSlot(sA, dstDisp)

	case mir.InstrEnumPayload:
		src, err := g.layout.Of(e.Value.Type)
		if err != nil {
			g.report(diag.CGInternal, err.Error())
			return
		}
		srcDisp := g.slots[e.Value.Local]
		size := g.valSize(dstType)
		switch {
		case size == 0:
		case size == 1 || size == 4 || size == 8:
			g.asm.loadMem(sA, fp, srcDisp+src.PayloadOffset, size)
			g.asm.storeSlot(sA, dstDisp)
		default:
			g.copyMem(fp, dstDisp, fp, srcDisp+src.PayloadOffset, size, sA)
		}
	}
}

func (g *generator) genTraitMake(tm *mir.TraitMakeInstr) {
	idx, ok := g.mod.VTableFor(tm.Class, tm.Trait)
	if !ok {
		g.report(diag.CGInternal, "trait construction without a dispatch table")
		return
	}
	sA, _, _ := g.asm.scratch()
	fp := g.asm.frameReg()
	dstDisp := g.slots[tm.Dst]
	g.loadOp(tm.Value, sA)
	g.asm.storeMem(sA, fp, dstDisp, 8)
	g.asm.addrOfSym(sA, vtableSymbol(g.mod.VTables[idx].Name))
	g.asm.storeMem(sA, fp, dstDisp+8, 8)
}

// genAssert branches over the fatal path when the clause holds.
func (g *generator) genAssert(a *mir.AssertInstr) {
	sA, _, _ := g.asm.scratch()
	g.loadOp(a.Cond, sA)
	ok := g.asm.branchNonZero(sA)

	nameSym := "quill.fn." + a.FnName
	if !g.dataSyms[nameSym] {
		g.addData(nameSym, append([]byte(a.FnName), 0))
	}
	g.asm.movImm(g.conv.IntArgRegs[0], int64(a.Kind))
	g.asm.addrOfSym(g.conv.IntArgRegs[1], nameSym)
	g.asm.movImm(g.conv.IntArgRegs[2], int64(a.Clause))
	g.asm.callSym(rt.SymContractFail)
	g.asm.trap()
	g.asm.patchTo(ok, g.asm.offset())
}

// spawnBlock packs the target's parameters into a contiguous block: each
// value 8-aligned at its slot span. Returns per-parameter offsets and the
// 16-aligned total.
func (g *generator) spawnBlock(target *mir.Func) ([]int, int) {
	offs := make([]int, target.ParamCount)
	off := 0
	for i := 0; i < target.ParamCount; i++ {
		offs[i] = off
		off += slotSpan(g.valSize(target.Locals[i].Type))
	}
	return offs, alignUp(off, 16)
}

// genSpawn copies the arguments into a stack block and hands the runtime a
// thunk that unpacks it. The runtime copies the block before returning.
func (g *generator) genSpawn(s *mir.SpawnInstr) {
	target := g.mod.Func(g.mod.ByFn[s.Fn])
	if target == nil {
		g.report(diag.CGInternal, "spawn of an unlowered function")
		return
	}
	if g.valSize(target.Result) > 16 {
		g.report(diag.CGUnsupportedInst, "spawn of a function returning a large aggregate")
		return
	}
	g.spawned[s.Fn] = true

	offs, blockSize := g.spawnBlock(target)
	if blockSize > 0 {
		g.asm.stackAdjust(blockSize)
	}
	sA, sB, _ := g.asm.scratch()
	fp := g.asm.frameReg()
	for i, arg := range s.Args {
		size := g.valSize(arg.Type)
		switch {
		case size == 0:
		case size <= 8:
			g.loadOp(arg, sA)
			g.asm.storeStackArg(sA, offs[i])
		default:
			g.asm.leaStack(sA, offs[i])
			g.copyMem(sA, 0, fp, g.slots[arg.Local], size, sB)
		}
	}

	g.asm.addrOfSym(g.conv.IntArgRegs[0], spawnThunkSymbol(target.Name))
	g.asm.leaStack(g.conv.IntArgRegs[1], 0)
	g.asm.callSym(rt.SymTaskSpawn)
	g.recordSite()
	if blockSize > 0 {
		g.asm.stackAdjust(-blockSize)
	}
	g.asm.storeSlot(g.asm.retReg(), g.slots[s.Dst])
}

func (g *generator) genChanMake(c *mir.ChanInstr) {
	b := g.types.Builtins()
	elemSize := g.valSize(c.Elem)
	args := []callArg{
		g.opArg(mir.ConstIntOperand(int64(elemSize), b.Int)),
		g.opArg(c.Capacity),
	}
	g.emitCall(args, true, c.Dst, func() { g.asm.callSym(rt.SymChanNew) })
}

func (g *generator) genTerm(t *mir.Terminator) {
	sA, sB, sC := g.asm.scratch()
	switch t.Kind {
	case mir.TermGoto:
		g.branchTo(t.Goto.Target)
	case mir.TermIf:
		g.loadOp(t.If.Cond, sA)
		p := g.asm.branchNonZero(sA)
		g.fixups = append(g.fixups, blockFixup{p, t.If.Then})
		g.branchTo(t.If.Else)
	case mir.TermSwitchTag:
		g.loadOp(t.SwitchTag.Value, sA)
		for _, cs := range t.SwitchTag.Cases {
			g.asm.movImm(sB, int64(cs.Tag))
			g.asm.cmpSet(condEq, sC, sA, sB)
			p := g.asm.branchNonZero(sC)
			g.fixups = append(g.fixups, blockFixup{p, cs.Target})
		}
		g.branchTo(t.SwitchTag.Default)
	case mir.TermReturn:
		g.genReturn(&t.Return)
	case mir.TermErrorReturn:
		// The result slot is not written; the caller checks the error flag.
		g.asm.movImm(g.asm.retReg(), 0)
		g.asm.epilogue()
	case mir.TermUnreachable:
		g.asm.trap()
	default:
		g.report(diag.CGInternal, "unterminated block reached emission")
	}
}

func (g *generator) branchTo(b mir.BlockID) {
	p := g.asm.jump()
	g.fixups = append(g.fixups, blockFixup{p, b})
}

func (g *generator) genReturn(r *mir.ReturnTerm) {
	if r.HasValue {
		sA, sB, _ := g.asm.scratch()
		fp := g.asm.frameReg()
		size := g.valSize(g.f.Result)
		switch {
		case size == 0:
		case g.hasSret:
			g.asm.loadSlot(sA, g.sretDisp)
			if r.Value.Kind == mir.OperandLocal {
				g.copyMem(sA, 0, fp, g.slots[r.Value.Local], size, sB)
			}
			// The destination pointer also comes back in the return register.
			g.asm.loadSlot(g.asm.retReg(), g.sretDisp)
		case g.isFloat(g.f.Result):
			g.loadFloatOp(r.Value, g.asm.fretReg())
		case size <= 8:
			g.loadOp(r.Value, g.asm.retReg())
		default:
			disp := g.slots[r.Value.Local]
			g.asm.loadSlot(g.asm.retReg(), disp)
			g.asm.loadSlot(g.asm.retReg2(), disp+8)
		}
	}
	g.asm.epilogue()
}

// emitVTables lays out one table per (class, trait) pair: 8-byte cells in
// trait method order, each patched to a function address at link time.
func (g *generator) emitVTables() {
	for i := range g.mod.VTables {
		vt := &g.mod.VTables[i]
		sym := vtableSymbol(vt.Name)
		payload := make([]byte, 8*len(vt.Slots))
		g.addData(sym, payload)

		base := g.dataOffsetOf(sym)
		for si, fnID := range vt.Slots {
			target := g.mod.Func(g.mod.ByFn[fnID])
			if target == nil {
				g.report(diag.CGBadRelocation, fmt.Sprintf("dispatch slot %d of %s has no function", si, vt.Name))
				continue
			}
			g.obj.DataRelocs = append(g.obj.DataRelocs, Reloc{
				Kind: RelocAddr, Offset: base + si*8, Symbol: target.Name,
			})
		}
	}
}

func (g *generator) dataOffsetOf(sym string) int {
	for i := range g.obj.DataSyms {
		if g.obj.DataSyms[i].Name == sym {
			return g.obj.DataSyms[i].Offset
		}
	}
	return 0
}

// emitSpawnThunks emits one adapter per spawned function: it receives the
// packed argument block in the first integer register, unpacks each value
// into its ABI location, and tail-calls through a plain call so the
// target's return value flows back to the runtime.
func (g *generator) emitSpawnThunks() {
	ids := make([]ast.FnID, 0, len(g.spawned))
	for id := range g.spawned {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		target := g.mod.Func(g.mod.ByFn[id])
		if target == nil {
			continue
		}
		g.genSpawnThunk(target)
	}
}

func (g *generator) genSpawnThunk(target *mir.Func) {
	start := g.asm.offset()
	g.asm.prologue(0)

	sA, _, sC := g.asm.scratch()
	g.asm.movRegReg(sC, g.conv.IntArgRegs[0])

	params := make([]abi.Slot, 0, target.ParamCount)
	for i := 0; i < target.ParamCount; i++ {
		params = append(params, g.abiSlot(target.Locals[i].Type))
	}
	asg := g.conv.Assign(params, g.abiSlot(target.Result))
	offs, _ := g.spawnBlock(target)

	if asg.StackBytes > 0 {
		g.asm.stackAdjust(asg.StackBytes)
	}
	// Stack arguments first; register staging would clobber the scratch
	// loads otherwise.
	for i, loc := range asg.Args {
		if loc.InReg || params[i].Size == 0 {
			continue
		}
		switch {
		case loc.ByRef:
			g.asm.movRegReg(sA, sC)
			g.asm.addImm(sA, int64(offs[i]))
			g.asm.storeStackArg(sA, loc.Offset)
		case params[i].Size > 8:
			g.asm.loadMem(sA, sC, offs[i], 8)
			g.asm.storeStackArg(sA, loc.Offset)
			g.asm.loadMem(sA, sC, offs[i]+8, 8)
			g.asm.storeStackArg(sA, loc.Offset+8)
		default:
			g.asm.loadMem(sA, sC, offs[i], 8)
			g.asm.storeStackArg(sA, loc.Offset)
		}
	}
	for i, loc := range asg.Args {
		if !loc.InReg || params[i].Size == 0 {
			continue
		}
		switch {
		case loc.ByRef:
			reg := g.conv.IntArgRegs[loc.Reg]
			g.asm.movRegReg(reg, sC)
			g.asm.addImm(reg, int64(offs[i]))
		case loc.Class == abi.ClassFloat:
			g.asm.loadMem(sA, sC, offs[i], 8)
			g.asm.fmovToFloat(g.conv.FloatArgRegs[loc.Reg], sA)
		case loc.Pair >= 0:
			g.asm.loadMem(g.conv.IntArgRegs[loc.Reg], sC, offs[i], 8)
			g.asm.loadMem(g.conv.IntArgRegs[loc.Pair], sC, offs[i]+8, 8)
		default:
			g.asm.loadMem(g.conv.IntArgRegs[loc.Reg], sC, offs[i], 8)
		}
	}

	g.asm.callSym(target.Name)
	if asg.StackBytes > 0 {
		g.asm.stackAdjust(-asg.StackBytes)
	}
	g.asm.epilogue()

	g.obj.Funcs = append(g.obj.Funcs, Sym{
		Name: spawnThunkSymbol(target.Name), Offset: start, Size: g.asm.offset() - start,
	})
}
