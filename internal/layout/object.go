package layout

import (
	"quill/internal/source"
	"quill/internal/types"
)

// FieldSlot is one field inside a heap object body.
type FieldSlot struct {
	Name    source.StringID
	Type    types.TypeID
	Offset  int
	Size    int
	Pointer bool
}

// ObjectLayout is the heap body of a class or error instance: fields in
// declaration order at their natural alignment, total size rounded up to
// the strictest field alignment. The allocator prepends its own header;
// offsets here are relative to the object payload.
type ObjectLayout struct {
	Type   types.TypeID
	Size   int
	Align  int
	Fields []FieldSlot

	// PointerOffsets lists every GC reference inside the body, for the
	// allocator's trace maps.
	PointerOffsets []int
}

// ObjectOf computes the heap body layout for a nominal struct or error type.
func (e *Engine) ObjectOf(t types.TypeID) (ObjectLayout, error) {
	obj := ObjectLayout{Type: t, Align: 1}
	info, ok := e.Types.Info(t)
	if !ok {
		return obj, nil
	}

	offset := 0
	for _, f := range info.Fields {
		fl, err := e.Of(f.Type)
		if err != nil {
			return obj, err
		}
		offset = alignUp(offset, fl.Align)
		slot := FieldSlot{
			Name:    f.Name,
			Type:    f.Type,
			Offset:  offset,
			Size:    fl.Size,
			Pointer: fl.Pointer,
		}
		obj.Fields = append(obj.Fields, slot)
		if fl.Pointer {
			obj.PointerOffsets = append(obj.PointerOffsets, offset)
		}
		if fl.Align > obj.Align {
			obj.Align = fl.Align
		}
		offset += fl.Size
	}
	obj.Size = alignUp(offset, obj.Align)
	return obj, nil
}

// FieldOffset finds a field slot by name.
func (o *ObjectLayout) FieldOffset(name source.StringID) (FieldSlot, bool) {
	for _, f := range o.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSlot{}, false
}
