package mir

import (
	"testing"

	"quill/internal/diag"
	"quill/internal/types"
)

func requireCode(t *testing.T, bag *diag.Bag, code diag.Code) {
	t.Helper()
	for _, d := range bag.Items() {
		if d.Code == code {
			return
		}
	}
	t.Fatalf("expected diagnostic code %v, got %+v", code, bag.Items())
}

func TestValidateFlagsUnterminatedBlock(t *testing.T) {
	m := NewModule()
	f := m.NewFunc(Func{Name: "f"})
	f.Entry = f.NewBlock()

	bag := diag.NewBag(8)
	if Validate(m, diag.BagReporter{Bag: bag}) {
		t.Fatal("an unterminated block must fail validation")
	}
	requireCode(t, bag, diag.LowUnterminated)
}

func TestValidateFlagsBranchOutOfRange(t *testing.T) {
	m := NewModule()
	f := m.NewFunc(Func{Name: "f"})
	f.Entry = f.NewBlock()
	f.Terminate(f.Entry, Terminator{Kind: TermGoto, Goto: GotoTerm{Target: BlockID(5)}})

	bag := diag.NewBag(8)
	if Validate(m, diag.BagReporter{Bag: bag}) {
		t.Fatal("a dangling branch target must fail validation")
	}
	requireCode(t, bag, diag.LowBadBlockRef)
}

func TestValidateFlagsUnknownLocal(t *testing.T) {
	m := NewModule()
	f := m.NewFunc(Func{Name: "f"})
	f.Entry = f.NewBlock()
	f.Emit(f.Entry, Instr{Kind: InstrAssign, Assign: AssignInstr{
		Dst: LocalID(3),
		Src: RValue{Kind: RValueUse, Use: Operand{Kind: OperandConst}},
	}})
	f.Terminate(f.Entry, Terminator{Kind: TermReturn})

	bag := diag.NewBag(8)
	if Validate(m, diag.BagReporter{Bag: bag}) {
		t.Fatal("a reference to an unallocated local must fail validation")
	}
	requireCode(t, bag, diag.LowBadLocalRef)
}

func TestValidateFlagsDuplicateSwitchTags(t *testing.T) {
	m := NewModule()
	f := m.NewFunc(Func{Name: "f"})
	f.Entry = f.NewBlock()
	done := f.NewBlock()
	f.Terminate(done, Terminator{Kind: TermReturn})
	f.Terminate(f.Entry, Terminator{Kind: TermSwitchTag, SwitchTag: SwitchTagTerm{
		Value: ConstIntOperand(0, types.NoTypeID),
		Cases: []SwitchTagCase{
			{Tag: 1, Target: done},
			{Tag: 1, Target: done},
		},
		Default: done,
	}})

	bag := diag.NewBag(8)
	if Validate(m, diag.BagReporter{Bag: bag}) {
		t.Fatal("duplicate switch tags must fail validation")
	}
	requireCode(t, bag, diag.LowInternal)
}

func TestValidateAcceptsWellFormedFunction(t *testing.T) {
	m := NewModule()
	f := m.NewFunc(Func{Name: "f"})
	f.Entry = f.NewBlock()
	l := f.NewLocal(Local{Name: "x"})
	f.Emit(f.Entry, Instr{Kind: InstrAssign, Assign: AssignInstr{
		Dst: l,
		Src: RValue{Kind: RValueUse, Use: ConstIntOperand(1, types.NoTypeID)},
	}})
	f.Terminate(f.Entry, Terminator{Kind: TermReturn, Return: ReturnTerm{
		HasValue: true, Value: LocalOperand(l, types.NoTypeID),
	}})

	bag := diag.NewBag(8)
	if !Validate(m, diag.BagReporter{Bag: bag}) {
		t.Fatalf("well-formed function must validate, got %+v", bag.Items())
	}
}
