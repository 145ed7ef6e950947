package mir

import (
	"fmt"
	"strings"
)

// DumpFunc renders a function as readable text, for golden tests and the
// CLI's IR dump flag. The format is stable but not parsed back.
func DumpFunc(f *Func) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "fn %s", f.Name)
	if f.Raises {
		sb.WriteString(" raises")
	}
	fmt.Fprintf(&sb, " {\n")
	for bi := range f.Blocks {
		b := &f.Blocks[bi]
		fmt.Fprintf(&sb, "b%d:\n", bi)
		for ii := range b.Instrs {
			fmt.Fprintf(&sb, "  %s\n", formatInstr(&b.Instrs[ii]))
		}
		fmt.Fprintf(&sb, "  %s\n", formatTerm(&b.Term))
	}
	sb.WriteString("}\n")
	return sb.String()
}

func formatOperand(o Operand) string {
	switch o.Kind {
	case OperandLocal:
		return fmt.Sprintf("l%d", o.Local)
	case OperandGlobal:
		return fmt.Sprintf("g%d", o.Global)
	default:
		switch o.Const.Kind {
		case ConstInt:
			return fmt.Sprintf("%d", o.Const.Int)
		case ConstFloat:
			return fmt.Sprintf("%g", o.Const.Float)
		case ConstBool:
			return fmt.Sprintf("%t", o.Const.Bool)
		case ConstByte:
			return fmt.Sprintf("0x%02x", o.Const.Byte)
		case ConstString:
			return fmt.Sprintf("%q", o.Const.Str)
		case ConstNone:
			return "none"
		default:
			return "unit"
		}
	}
}

func formatCallee(c *Callee) string {
	switch c.Kind {
	case CalleeFn:
		return c.Name
	case CalleeRuntime:
		return "@" + c.Name
	case CalleeTraitSlot:
		return fmt.Sprintf("%s.slot[%d]", formatOperand(c.Object), c.Slot)
	default:
		return "(" + formatOperand(c.Object) + ")"
	}
}

func formatInstr(in *Instr) string {
	switch in.Kind {
	case InstrAssign:
		src := in.Assign.Src
		switch src.Kind {
		case RValueBinary:
			return fmt.Sprintf("l%d = %s %s %s", in.Assign.Dst,
				formatOperand(src.Left), src.Op, formatOperand(src.Right))
		case RValueUnary:
			return fmt.Sprintf("l%d = %s%s", in.Assign.Dst, src.UnOp, formatOperand(src.Left))
		default:
			return fmt.Sprintf("l%d = %s", in.Assign.Dst, formatOperand(src.Use))
		}
	case InstrCall:
		var args []string
		for _, a := range in.Call.Args {
			args = append(args, formatOperand(a))
		}
		call := fmt.Sprintf("call %s(%s)", formatCallee(&in.Call.Callee), strings.Join(args, ", "))
		if in.Call.HasDst {
			return fmt.Sprintf("l%d = %s", in.Call.Dst, call)
		}
		return call
	case InstrAlloc:
		return fmt.Sprintf("l%d = alloc t%d", in.Alloc.Dst, in.Alloc.Object)
	case InstrFieldGet:
		return fmt.Sprintf("l%d = %s.f%d", in.FieldGet.Dst, formatOperand(in.FieldGet.Object), in.FieldGet.Field)
	case InstrFieldSet:
		return fmt.Sprintf("%s.f%d = %s", formatOperand(in.FieldSet.Object), in.FieldSet.Field, formatOperand(in.FieldSet.Value))
	case InstrGlobalSet:
		return fmt.Sprintf("g%d = %s", in.GlobalSet.Global, formatOperand(in.GlobalSet.Value))
	case InstrNullMake:
		return fmt.Sprintf("l%d = some %s", in.Null.Dst, formatOperand(in.Null.Value))
	case InstrNullNone:
		return fmt.Sprintf("l%d = none", in.Null.Dst)
	case InstrNullFlag:
		return fmt.Sprintf("l%d = has %s", in.Null.Dst, formatOperand(in.Null.Value))
	case InstrNullUnwrap:
		return fmt.Sprintf("l%d = unwrap %s", in.Null.Dst, formatOperand(in.Null.Value))
	case InstrEnumMake:
		if in.Enum.HasPayload {
			return fmt.Sprintf("l%d = enum tag=%d %s", in.Enum.Dst, in.Enum.Tag, formatOperand(in.Enum.Payload))
		}
		return fmt.Sprintf("l%d = enum tag=%d", in.Enum.Dst, in.Enum.Tag)
	case InstrEnumTag:
		return fmt.Sprintf("l%d = tag %s", in.Enum.Dst, formatOperand(in.Enum.Value))
	case InstrEnumPayload:
		return fmt.Sprintf("l%d = payload[%d] %s", in.Enum.Dst, in.Enum.Tag, formatOperand(in.Enum.Value))
	case InstrTraitMake:
		return fmt.Sprintf("l%d = trait %s", in.Trait.Dst, formatOperand(in.Trait.Value))
	case InstrErrSet:
		return fmt.Sprintf("err.set %s", formatOperand(in.Err.Value))
	case InstrErrFlag:
		return fmt.Sprintf("l%d = err.flag", in.Err.Dst)
	case InstrErrTake:
		return fmt.Sprintf("l%d = err.take", in.Err.Dst)
	case InstrErrClear:
		return "err.clear"
	case InstrAssert:
		return fmt.Sprintf("assert %s kind=%d clause=%d", formatOperand(in.Assert.Cond), in.Assert.Kind, in.Assert.Clause)
	case InstrSpawn:
		var args []string
		for _, a := range in.Spawn.Args {
			args = append(args, formatOperand(a))
		}
		return fmt.Sprintf("l%d = spawn %s(%s)", in.Spawn.Dst, in.Spawn.Name, strings.Join(args, ", "))
	case InstrChanMake:
		return fmt.Sprintf("l%d = chan cap=%s", in.Chan.Dst, formatOperand(in.Chan.Capacity))
	case InstrChanSend:
		return fmt.Sprintf("send %s <- %s", formatOperand(in.Chan.Channel), formatOperand(in.Chan.Value))
	case InstrChanRecv:
		return fmt.Sprintf("l%d = recv %s", in.Chan.Dst, formatOperand(in.Chan.Channel))
	}
	return "nop"
}

func formatTerm(t *Terminator) string {
	switch t.Kind {
	case TermGoto:
		return fmt.Sprintf("goto b%d", t.Goto.Target)
	case TermIf:
		return fmt.Sprintf("if %s then b%d else b%d", formatOperand(t.If.Cond), t.If.Then, t.If.Else)
	case TermSwitchTag:
		var cases []string
		for _, c := range t.SwitchTag.Cases {
			cases = append(cases, fmt.Sprintf("%d->b%d", c.Tag, c.Target))
		}
		return fmt.Sprintf("switch %s [%s] default b%d",
			formatOperand(t.SwitchTag.Value), strings.Join(cases, " "), t.SwitchTag.Default)
	case TermReturn:
		if t.Return.HasValue {
			return "return " + formatOperand(t.Return.Value)
		}
		return "return"
	case TermErrorReturn:
		return "error.return"
	case TermUnreachable:
		return "unreachable"
	}
	return "<unterminated>"
}
