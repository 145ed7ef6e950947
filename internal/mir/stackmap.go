package mir

import "slices"

// Safepoints are the instructions that can trigger a collection: heap
// allocations and calls. For each one, the collector needs to know which
// pointer-typed locals are live across it. Liveness is a standard backward
// dataflow over the block graph; only pointer locals are tracked.

// Safepoint names one instruction inside a function and the pointer locals
// live across it. The backend turns local IDs into frame offsets when it
// assigns slots.
type Safepoint struct {
	Block BlockID
	Instr int
	Live  []LocalID
}

// isSafepoint reports whether an instruction can trigger a collection.
func isSafepoint(in *Instr) bool {
	switch in.Kind {
	case InstrAlloc, InstrCall, InstrSpawn, InstrChanMake,
		InstrChanSend, InstrChanRecv:
		return true
	}
	return false
}

type localSet map[LocalID]struct{}

func (s localSet) clone() localSet {
	out := make(localSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

func (s localSet) addAll(other localSet) bool {
	changed := false
	for k := range other {
		if _, ok := s[k]; !ok {
			s[k] = struct{}{}
			changed = true
		}
	}
	return changed
}

// Safepoints computes the stack-map input for one function: every
// safepoint with its live pointer locals, ordered by block then
// instruction.
func Safepoints(f *Func) []Safepoint {
	liveOut := make([]localSet, len(f.Blocks))
	for i := range liveOut {
		liveOut[i] = make(localSet)
	}

	// Iterate to fixpoint. Block counts are small; no worklist needed.
	for changed := true; changed; {
		changed = false
		for bi := len(f.Blocks) - 1; bi >= 0; bi-- {
			b := &f.Blocks[bi]
			for _, succ := range successors(&b.Term) {
				liveIn := blockLiveIn(f, &f.Blocks[succ], liveOut[succ])
				if liveOut[bi].addAll(liveIn) {
					changed = true
				}
			}
		}
	}

	var out []Safepoint
	for bi := range f.Blocks {
		b := &f.Blocks[bi]
		live := liveOut[bi].clone()
		termUses(&b.Term, func(l LocalID) {
			if f.Locals[l].Pointer {
				live[l] = struct{}{}
			}
		})
		// Walk instructions backwards, recording at each safepoint the set
		// live after it.
		points := make([]Safepoint, 0, 2)
		for ii := len(b.Instrs) - 1; ii >= 0; ii-- {
			in := &b.Instrs[ii]
			if isSafepoint(in) {
				points = append(points, Safepoint{
					Block: BlockID(bi), Instr: ii, Live: sortedLocals(live),
				})
			}
			if def, ok := instrDef(in); ok {
				delete(live, def)
			}
			instrUses(in, func(l LocalID) {
				if f.Locals[l].Pointer {
					live[l] = struct{}{}
				}
			})
		}
		for i := len(points) - 1; i >= 0; i-- {
			out = append(out, points[i])
		}
	}
	return out
}

// blockLiveIn computes a block's live-in set from its live-out set.
func blockLiveIn(f *Func, b *Block, liveOut localSet) localSet {
	live := liveOut.clone()
	termUses(&b.Term, func(l LocalID) {
		if f.Locals[l].Pointer {
			live[l] = struct{}{}
		}
	})
	for ii := len(b.Instrs) - 1; ii >= 0; ii-- {
		in := &b.Instrs[ii]
		if def, ok := instrDef(in); ok {
			delete(live, def)
		}
		instrUses(in, func(l LocalID) {
			if f.Locals[l].Pointer {
				live[l] = struct{}{}
			}
		})
	}
	return live
}

func successors(t *Terminator) []BlockID {
	switch t.Kind {
	case TermGoto:
		return []BlockID{t.Goto.Target}
	case TermIf:
		return []BlockID{t.If.Then, t.If.Else}
	case TermSwitchTag:
		out := make([]BlockID, 0, len(t.SwitchTag.Cases)+1)
		for _, c := range t.SwitchTag.Cases {
			out = append(out, c.Target)
		}
		return append(out, t.SwitchTag.Default)
	}
	return nil
}

// instrDef returns the local an instruction writes, if any.
func instrDef(in *Instr) (LocalID, bool) {
	switch in.Kind {
	case InstrAssign:
		return in.Assign.Dst, true
	case InstrCall:
		if in.Call.HasDst {
			return in.Call.Dst, true
		}
	case InstrAlloc:
		return in.Alloc.Dst, true
	case InstrFieldGet:
		return in.FieldGet.Dst, true
	case InstrNullMake, InstrNullNone, InstrNullFlag, InstrNullUnwrap:
		return in.Null.Dst, true
	case InstrEnumMake, InstrEnumTag, InstrEnumPayload:
		return in.Enum.Dst, true
	case InstrTraitMake:
		return in.Trait.Dst, true
	case InstrErrFlag, InstrErrTake:
		return in.Err.Dst, true
	case InstrSpawn:
		return in.Spawn.Dst, true
	case InstrChanMake, InstrChanRecv:
		return in.Chan.Dst, true
	}
	return NoLocalID, false
}

// instrUses visits every local an instruction reads.
func instrUses(in *Instr, visit func(LocalID)) {
	op := func(o Operand) {
		if o.Kind == OperandLocal {
			visit(o.Local)
		}
	}
	switch in.Kind {
	case InstrAssign:
		op(in.Assign.Src.Use)
		op(in.Assign.Src.Left)
		op(in.Assign.Src.Right)
	case InstrCall:
		op(in.Call.Callee.Object)
		for _, a := range in.Call.Args {
			op(a)
		}
	case InstrFieldGet:
		op(in.FieldGet.Object)
	case InstrFieldSet:
		op(in.FieldSet.Object)
		op(in.FieldSet.Value)
	case InstrGlobalSet:
		op(in.GlobalSet.Value)
	case InstrNullMake, InstrNullFlag, InstrNullUnwrap:
		op(in.Null.Value)
	case InstrEnumMake:
		op(in.Enum.Payload)
	case InstrEnumTag, InstrEnumPayload:
		op(in.Enum.Value)
	case InstrTraitMake:
		op(in.Trait.Value)
	case InstrErrSet:
		op(in.Err.Value)
	case InstrAssert:
		op(in.Assert.Cond)
	case InstrSpawn:
		for _, a := range in.Spawn.Args {
			op(a)
		}
	case InstrChanMake:
		op(in.Chan.Capacity)
	case InstrChanSend:
		op(in.Chan.Channel)
		op(in.Chan.Value)
	case InstrChanRecv:
		op(in.Chan.Channel)
	}
}

func termUses(t *Terminator, visit func(LocalID)) {
	op := func(o Operand) {
		if o.Kind == OperandLocal {
			visit(o.Local)
		}
	}
	switch t.Kind {
	case TermIf:
		op(t.If.Cond)
	case TermSwitchTag:
		op(t.SwitchTag.Value)
	case TermReturn:
		if t.Return.HasValue {
			op(t.Return.Value)
		}
	}
}

func sortedLocals(s localSet) []LocalID {
	out := make([]LocalID, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}
