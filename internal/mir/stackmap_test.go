package mir

import (
	"testing"

	"quill/internal/types"
)

func ptrLocal(f *Func, name string) LocalID {
	return f.NewLocal(Local{Name: name, Pointer: true})
}

func requireLive(t *testing.T, p Safepoint, want ...LocalID) {
	t.Helper()
	if len(p.Live) != len(want) {
		t.Fatalf("safepoint b%d/%d: live %v, want %v", p.Block, p.Instr, p.Live, want)
	}
	for i := range want {
		if p.Live[i] != want[i] {
			t.Fatalf("safepoint b%d/%d: live %v, want %v", p.Block, p.Instr, p.Live, want)
		}
	}
}

func TestSafepointsTrackPointerLocals(t *testing.T) {
	f := &Func{Name: "f"}
	f.Entry = f.NewBlock()
	p := ptrLocal(f, "p")
	q := ptrLocal(f, "q")
	n := f.NewLocal(Local{Name: "n"}) // scalar, never in a map

	f.Emit(f.Entry, Instr{Kind: InstrAlloc, Alloc: AllocInstr{Dst: p}})
	f.Emit(f.Entry, Instr{Kind: InstrAlloc, Alloc: AllocInstr{Dst: q}})
	f.Emit(f.Entry, Instr{Kind: InstrCall, Call: CallInstr{
		Callee: Callee{Kind: CalleeRuntime, Name: "use"},
		Args:   []Operand{LocalOperand(p, types.NoTypeID), LocalOperand(n, types.NoTypeID)},
	}})
	f.Terminate(f.Entry, Terminator{Kind: TermReturn, Return: ReturnTerm{
		HasValue: true, Value: LocalOperand(q, types.NoTypeID),
	}})

	points := Safepoints(f)
	if len(points) != 3 {
		t.Fatalf("expected 3 safepoints, got %d: %+v", len(points), points)
	}
	// After the first alloc only p exists; after the second both; across the
	// call only q survives to the return.
	requireLive(t, points[0], p)
	requireLive(t, points[1], p, q)
	requireLive(t, points[2], q)
}

func TestSafepointLivenessCrossesBlocks(t *testing.T) {
	f := &Func{Name: "f"}
	f.Entry = f.NewBlock()
	exit := f.NewBlock()
	p := ptrLocal(f, "p")

	f.Emit(f.Entry, Instr{Kind: InstrAlloc, Alloc: AllocInstr{Dst: p}})
	f.Terminate(f.Entry, Terminator{Kind: TermGoto, Goto: GotoTerm{Target: exit}})

	f.Emit(exit, Instr{Kind: InstrCall, Call: CallInstr{
		Callee: Callee{Kind: CalleeRuntime, Name: "collect"},
	}})
	f.Terminate(exit, Terminator{Kind: TermReturn, Return: ReturnTerm{
		HasValue: true, Value: LocalOperand(p, types.NoTypeID),
	}})

	points := Safepoints(f)
	if len(points) != 2 {
		t.Fatalf("expected 2 safepoints, got %d", len(points))
	}
	// p is defined in the entry block and consumed by the return in the
	// successor, so it must be live at both safepoints.
	requireLive(t, points[0], p)
	requireLive(t, points[1], p)
}

func TestSafepointIgnoresDeadPointer(t *testing.T) {
	f := &Func{Name: "f"}
	f.Entry = f.NewBlock()
	p := ptrLocal(f, "p")

	f.Emit(f.Entry, Instr{Kind: InstrAlloc, Alloc: AllocInstr{Dst: p}})
	f.Emit(f.Entry, Instr{Kind: InstrCall, Call: CallInstr{
		Callee: Callee{Kind: CalleeRuntime, Name: "collect"},
	}})
	f.Terminate(f.Entry, Terminator{Kind: TermReturn})

	points := Safepoints(f)
	if len(points) != 2 {
		t.Fatalf("expected 2 safepoints, got %d", len(points))
	}
	// Nothing reads p after its allocation: it is dead at both safepoints.
	requireLive(t, points[0])
	requireLive(t, points[1])
}
