package mir

import (
	"fmt"

	"quill/internal/diag"
	"quill/internal/source"
)

// Validate checks structural IR invariants: every block sealed, every
// branch target and local reference in range. Violations are compiler
// defects, reported under the lowering code range. Returns true when the
// module is well formed.
func Validate(m *Module, reporter diag.Reporter) bool {
	v := &validator{mod: m, reporter: reporter, ok: true}
	for i := range m.Funcs {
		v.validateFunc(&m.Funcs[i])
	}
	return v.ok
}

type validator struct {
	mod      *Module
	reporter diag.Reporter
	ok       bool
}

func (v *validator) report(code diag.Code, msg string) {
	v.ok = false
	if v.reporter == nil {
		return
	}
	v.reporter.Report(code, diag.SevError, source.Span{}, msg, nil)
}

func (v *validator) validateFunc(f *Func) {
	if f.Entry == NoBlockID || int(f.Entry) >= len(f.Blocks) {
		v.report(diag.LowBadBlockRef, fmt.Sprintf("%s: invalid entry block", f.Name))
		return
	}
	for bi := range f.Blocks {
		b := &f.Blocks[bi]
		if !b.Terminated() {
			v.report(diag.LowUnterminated, fmt.Sprintf("%s: block b%d unterminated", f.Name, bi))
			continue
		}
		for ii := range b.Instrs {
			v.validateInstr(f, &b.Instrs[ii])
		}
		v.validateTerm(f, &b.Term)
	}
}

func (v *validator) checkBlock(f *Func, id BlockID) {
	if id == NoBlockID || int(id) >= len(f.Blocks) {
		v.report(diag.LowBadBlockRef, fmt.Sprintf("%s: branch to unknown block b%d", f.Name, id))
	}
}

func (v *validator) checkLocal(f *Func, id LocalID) {
	if id == NoLocalID || int(id) >= len(f.Locals) {
		v.report(diag.LowBadLocalRef, fmt.Sprintf("%s: reference to unknown local l%d", f.Name, id))
	}
}

func (v *validator) checkOperand(f *Func, op Operand) {
	switch op.Kind {
	case OperandLocal:
		v.checkLocal(f, op.Local)
	case OperandGlobal:
		if op.Global == NoGlobalID || int(op.Global) >= len(v.mod.Globals) {
			v.report(diag.LowBadLocalRef, fmt.Sprintf("%s: reference to unknown global g%d", f.Name, op.Global))
		}
	}
}

func (v *validator) validateInstr(f *Func, in *Instr) {
	switch in.Kind {
	case InstrAssign:
		v.checkLocal(f, in.Assign.Dst)
		v.checkOperand(f, in.Assign.Src.Use)
		if in.Assign.Src.Kind == RValueBinary {
			v.checkOperand(f, in.Assign.Src.Left)
			v.checkOperand(f, in.Assign.Src.Right)
		}
		if in.Assign.Src.Kind == RValueUnary {
			v.checkOperand(f, in.Assign.Src.Left)
		}
	case InstrCall:
		if in.Call.HasDst {
			v.checkLocal(f, in.Call.Dst)
		}
		for _, a := range in.Call.Args {
			v.checkOperand(f, a)
		}
	case InstrAlloc:
		v.checkLocal(f, in.Alloc.Dst)
	case InstrFieldGet:
		v.checkLocal(f, in.FieldGet.Dst)
		v.checkOperand(f, in.FieldGet.Object)
	case InstrFieldSet:
		v.checkOperand(f, in.FieldSet.Object)
		v.checkOperand(f, in.FieldSet.Value)
	case InstrGlobalSet:
		if int(in.GlobalSet.Global) >= len(v.mod.Globals) {
			v.report(diag.LowBadLocalRef, fmt.Sprintf("%s: store to unknown global", f.Name))
		}
		v.checkOperand(f, in.GlobalSet.Value)
	case InstrNullMake, InstrNullFlag, InstrNullUnwrap:
		v.checkLocal(f, in.Null.Dst)
		v.checkOperand(f, in.Null.Value)
	case InstrNullNone:
		v.checkLocal(f, in.Null.Dst)
	case InstrEnumMake, InstrEnumTag, InstrEnumPayload:
		v.checkLocal(f, in.Enum.Dst)
	case InstrTraitMake:
		v.checkLocal(f, in.Trait.Dst)
		v.checkOperand(f, in.Trait.Value)
	case InstrErrSet:
		v.checkOperand(f, in.Err.Value)
	case InstrErrFlag, InstrErrTake:
		v.checkLocal(f, in.Err.Dst)
	case InstrAssert:
		v.checkOperand(f, in.Assert.Cond)
	case InstrSpawn:
		v.checkLocal(f, in.Spawn.Dst)
		for _, a := range in.Spawn.Args {
			v.checkOperand(f, a)
		}
	case InstrChanMake:
		v.checkLocal(f, in.Chan.Dst)
	case InstrChanSend:
		v.checkOperand(f, in.Chan.Channel)
		v.checkOperand(f, in.Chan.Value)
	case InstrChanRecv:
		v.checkLocal(f, in.Chan.Dst)
		v.checkOperand(f, in.Chan.Channel)
	}
}

func (v *validator) validateTerm(f *Func, t *Terminator) {
	switch t.Kind {
	case TermGoto:
		v.checkBlock(f, t.Goto.Target)
	case TermIf:
		v.checkOperand(f, t.If.Cond)
		v.checkBlock(f, t.If.Then)
		v.checkBlock(f, t.If.Else)
	case TermSwitchTag:
		v.checkOperand(f, t.SwitchTag.Value)
		seen := make(map[int]bool, len(t.SwitchTag.Cases))
		for _, c := range t.SwitchTag.Cases {
			if seen[c.Tag] {
				v.report(diag.LowInternal, fmt.Sprintf("%s: duplicate switch tag %d", f.Name, c.Tag))
			}
			seen[c.Tag] = true
			v.checkBlock(f, c.Target)
		}
		v.checkBlock(f, t.SwitchTag.Default)
	case TermReturn:
		if t.Return.HasValue {
			v.checkOperand(f, t.Return.Value)
		}
	case TermErrorReturn, TermUnreachable:
	}
}
