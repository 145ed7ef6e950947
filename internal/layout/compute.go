package layout

import (
	"fmt"

	"quill/internal/types"
)

// computeState tracks in-flight enum computations to catch inline recursion.
// Classes never recurse here: a class-typed value is a reference.
type computeState struct {
	stack []types.TypeID
	index map[types.TypeID]int
}

func (e *Engine) compute(id types.TypeID, state *computeState) (TypeLayout, error) {
	if id == types.NoTypeID || e.Types == nil {
		return TypeLayout{Size: 0, Align: 1}, nil
	}
	tt, ok := e.Types.Lookup(id)
	if !ok {
		return TypeLayout{Size: 0, Align: 1}, nil
	}

	switch tt.Kind {
	case types.KindUnit:
		return TypeLayout{Size: 0, Align: 1}, nil

	case types.KindBool, types.KindByte:
		return TypeLayout{Size: 1, Align: 1}, nil

	case types.KindInt, types.KindFloat:
		return TypeLayout{Size: 8, Align: 8}, nil

	case types.KindString, types.KindArray, types.KindMap,
		types.KindChannel, types.KindTask, types.KindError,
		types.KindStruct:
		// Heap references, one machine word. Class and error values are
		// always behind a pointer the collector traces.
		return TypeLayout{
			Size:    e.Target.PtrSize,
			Align:   e.Target.PtrAlign,
			Pointer: true,
		}, nil

	case types.KindFn:
		return TypeLayout{Size: e.Target.PtrSize, Align: e.Target.PtrAlign}, nil

	case types.KindTrait:
		// Fat reference: data pointer plus dispatch table pointer.
		return TypeLayout{
			Size:    2 * e.Target.PtrSize,
			Align:   e.Target.PtrAlign,
			Pointer: true,
		}, nil

	case types.KindNullable:
		return e.computeNullable(tt, state)

	case types.KindEnum:
		return e.computeEnum(id, state)
	}
	return TypeLayout{Size: 0, Align: 1}, nil
}

// computeNullable places the presence flag at byte zero and the payload at
// its natural alignment; the total size rounds up to the payload alignment.
func (e *Engine) computeNullable(tt types.Type, state *computeState) (TypeLayout, error) {
	payload, err := e.compute(tt.Elem, state)
	if err != nil {
		return TypeLayout{Size: 0, Align: 1}, err
	}
	align := payload.Align
	if align < 1 {
		align = 1
	}
	offset := alignUp(1, align)
	return TypeLayout{
		Size:          alignUp(offset+payload.Size, align),
		Align:         align,
		PayloadOffset: offset,
		Pointer:       payload.Pointer,
	}, nil
}

// computeEnum lays out a tagged union: a 4-byte tag followed by the largest
// payload at the maximal payload alignment. Payloads embed inline, so an
// enum transitively containing itself has no finite size and is an error.
func (e *Engine) computeEnum(id types.TypeID, state *computeState) (TypeLayout, error) {
	if at, ok := state.index[id]; ok {
		return TypeLayout{Size: 0, Align: 1},
			fmt.Errorf("layout: recursive enum payload (cycle of %d types)", len(state.stack)-at)
	}
	state.index[id] = len(state.stack)
	state.stack = append(state.stack, id)
	defer func() {
		state.stack = state.stack[:len(state.stack)-1]
		delete(state.index, id)
	}()

	info, ok := e.Types.Info(id)
	if !ok {
		return TypeLayout{Size: 0, Align: 1}, nil
	}

	const tagSize = 4
	align := tagSize
	maxPayload := 0
	hasPtr := false
	for _, v := range info.Variants {
		if v.Payload == types.NoTypeID {
			continue
		}
		pl, err := e.compute(v.Payload, state)
		if err != nil {
			return TypeLayout{Size: 0, Align: 1}, err
		}
		if pl.Align > align {
			align = pl.Align
		}
		if pl.Size > maxPayload {
			maxPayload = pl.Size
		}
		hasPtr = hasPtr || pl.Pointer
	}

	payloadOffset := alignUp(tagSize, align)
	return TypeLayout{
		Size:          alignUp(payloadOffset+maxPayload, align),
		Align:         align,
		PayloadOffset: payloadOffset,
		TagSize:       tagSize,
		Pointer:       hasPtr,
	}, nil
}
