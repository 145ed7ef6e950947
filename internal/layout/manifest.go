package layout

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"quill/internal/abi"
	"quill/internal/source"
)

// manifestSchemaVersion guards against stale cached manifests after layout
// rule changes.
const manifestSchemaVersion = 2

// FieldRecord is one field in a serialized object layout.
type FieldRecord struct {
	Name    string `msgpack:"name"`
	Offset  int    `msgpack:"offset"`
	Size    int    `msgpack:"size"`
	Pointer bool   `msgpack:"ptr"`
}

// ObjectRecord is one class or error body in the manifest.
type ObjectRecord struct {
	Name           string        `msgpack:"name"`
	Size           int           `msgpack:"size"`
	Align          int           `msgpack:"align"`
	Fields         []FieldRecord `msgpack:"fields"`
	PointerOffsets []int         `msgpack:"ptr_offsets"`
}

// ArgRecord places one parameter or the result of a function: the register
// file, the assigned register(s), or the call-SP-relative stack offset.
type ArgRecord struct {
	Class string `msgpack:"class"`          // "int" or "float"
	Reg   string `msgpack:"reg,omitempty"`  // empty when the value travels on the stack
	Reg2  string `msgpack:"reg2,omitempty"` // second register of a 9..16-byte pair
	ByRef bool   `msgpack:"byref,omitempty"`
	Stack int    `msgpack:"stack"`
	Size  int    `msgpack:"size"`
}

// FnRecord is one function signature in the manifest: the link name plus the
// calling-convention placement of every parameter and the result.
type FnRecord struct {
	Name       string      `msgpack:"name"`
	Convention string      `msgpack:"conv"`
	Params     []ArgRecord `msgpack:"params"`
	// Ret is zero-valued for unit results. When RetByRef is set it names the
	// register carrying the hidden destination pointer.
	Ret        ArgRecord `msgpack:"ret"`
	RetByRef   bool      `msgpack:"ret_byref,omitempty"`
	StackBytes int       `msgpack:"stack_bytes"`
}

// Manifest is the target-specific layout summary the driver persists next
// to emitted objects. The runtime startup code and debug tooling read it;
// the build cache keys on it.
type Manifest struct {
	Schema    int            `msgpack:"schema"`
	Triple    string         `msgpack:"triple"`
	Objects   []ObjectRecord `msgpack:"objects"`
	Functions []FnRecord     `msgpack:"functions"`
}

// NewManifest starts an empty manifest for a target.
func NewManifest(target Target) *Manifest {
	return &Manifest{Schema: manifestSchemaVersion, Triple: target.Triple}
}

// AddObject appends a computed object layout under its source-level name.
// fieldName resolves interned field names; the tree's string interner
// provides it.
func (m *Manifest) AddObject(name string, obj ObjectLayout, fieldName func(source.StringID) string) {
	rec := ObjectRecord{
		Name:           name,
		Size:           obj.Size,
		Align:          obj.Align,
		PointerOffsets: obj.PointerOffsets,
	}
	for _, f := range obj.Fields {
		fr := FieldRecord{
			Offset:  f.Offset,
			Size:    f.Size,
			Pointer: f.Pointer,
		}
		if fieldName != nil {
			fr.Name = fieldName(f.Name)
		}
		rec.Fields = append(rec.Fields, fr)
	}
	m.Objects = append(m.Objects, rec)
}

// AddFunction appends a function's ABI signature: conv.Assign places the
// parameter and result slots, and the record names the resolved registers.
func (m *Manifest) AddFunction(name string, conv *abi.Convention, params []abi.Slot, ret abi.Slot) {
	asg := conv.Assign(params, ret)
	rec := FnRecord{
		Name:       name,
		Convention: conv.Name,
		RetByRef:   asg.RetByRef,
		StackBytes: asg.StackBytes,
	}
	for i, loc := range asg.Args {
		rec.Params = append(rec.Params, argRecord(conv, loc, params[i].Size))
	}
	if ret.Size > 0 {
		rec.Ret = retRecord(conv, asg.Ret, ret.Size)
	}
	m.Functions = append(m.Functions, rec)
}

func argRecord(conv *abi.Convention, loc abi.Loc, size int) ArgRecord {
	rec := ArgRecord{Class: "int", ByRef: loc.ByRef, Size: size}
	regs := conv.IntArgRegs
	if loc.Class == abi.ClassFloat {
		rec.Class = "float"
		regs = conv.FloatArgRegs
	}
	if loc.InReg {
		rec.Reg = regs[loc.Reg]
		if loc.Pair >= 0 {
			rec.Reg2 = regs[loc.Pair]
		}
	} else {
		rec.Stack = loc.Offset
	}
	return rec
}

func retRecord(conv *abi.Convention, loc abi.Loc, size int) ArgRecord {
	if loc.ByRef {
		// Hidden destination pointer in the first integer argument register.
		return ArgRecord{Class: "int", Reg: conv.IntArgRegs[loc.Reg], ByRef: true, Size: size}
	}
	if loc.Class == abi.ClassFloat {
		return ArgRecord{Class: "float", Reg: conv.FloatRetReg, Size: size}
	}
	rec := ArgRecord{Class: "int", Reg: conv.IntRetReg, Size: size}
	if loc.Pair >= 0 {
		rec.Reg2 = conv.IntRetReg2
	}
	return rec
}

// Encode serializes the manifest.
func (m *Manifest) Encode() ([]byte, error) {
	return msgpack.Marshal(m)
}

// DecodeManifest deserializes and validates a manifest.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("layout: decode manifest: %w", err)
	}
	if m.Schema != manifestSchemaVersion {
		return nil, fmt.Errorf("layout: manifest schema %d, want %d", m.Schema, manifestSchemaVersion)
	}
	return &m, nil
}
