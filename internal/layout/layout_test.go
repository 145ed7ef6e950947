package layout

import (
	"testing"

	"quill/internal/abi"
	"quill/internal/ast"
	"quill/internal/source"
	"quill/internal/types"
)

func newEngine(t *testing.T) (*Engine, *types.Interner) {
	t.Helper()
	in := types.NewInterner()
	return New(X86_64LinuxGNU(), in), in
}

func TestPrimitiveSizes(t *testing.T) {
	e, in := newEngine(t)
	b := in.Builtins()

	cases := []struct {
		id    types.TypeID
		size  int
		align int
	}{
		{b.Unit, 0, 1},
		{b.Bool, 1, 1},
		{b.Byte, 1, 1},
		{b.Int, 8, 8},
		{b.Float, 8, 8},
		{b.String, 8, 8},
	}
	for _, c := range cases {
		l, err := e.Of(c.id)
		if err != nil {
			t.Fatalf("layout failed: %v", err)
		}
		if l.Size != c.size || l.Align != c.align {
			t.Fatalf("type %d: got %d/%d want %d/%d", c.id, l.Size, l.Align, c.size, c.align)
		}
	}
}

func TestNullableFlagAtZero(t *testing.T) {
	e, in := newEngine(t)
	b := in.Builtins()

	l, err := e.Of(in.MakeNullable(b.Int))
	if err != nil {
		t.Fatalf("layout failed: %v", err)
	}
	// Flag byte, then the Int at its natural 8-byte alignment.
	if l.PayloadOffset != 8 || l.Size != 16 || l.Align != 8 {
		t.Fatalf("Int? layout off=%d size=%d align=%d", l.PayloadOffset, l.Size, l.Align)
	}

	lb, err := e.Of(in.MakeNullable(b.Byte))
	if err != nil {
		t.Fatalf("layout failed: %v", err)
	}
	if lb.PayloadOffset != 1 || lb.Size != 2 || lb.Align != 1 {
		t.Fatalf("Byte? layout off=%d size=%d align=%d", lb.PayloadOffset, lb.Size, lb.Align)
	}
}

func TestClassIsReference(t *testing.T) {
	e, in := newEngine(t)
	strings := source.NewInterner()

	cls := in.RegisterNominal(types.KindStruct, ast.DeclID(1), strings.Intern("Node"))
	l, err := e.Of(cls)
	if err != nil {
		t.Fatalf("layout failed: %v", err)
	}
	if l.Size != 8 || !l.Pointer {
		t.Fatalf("class values must be traced references, got %+v", l)
	}
}

func TestObjectBodyOffsets(t *testing.T) {
	e, in := newEngine(t)
	strings := source.NewInterner()
	b := in.Builtins()

	cls := in.RegisterNominal(types.KindStruct, ast.DeclID(1), strings.Intern("Rec"))
	in.SetFields(cls, []types.FieldInfo{
		{Name: strings.Intern("flag"), Type: b.Bool},
		{Name: strings.Intern("count"), Type: b.Int},
		{Name: strings.Intern("label"), Type: b.String},
	})

	obj, err := e.ObjectOf(cls)
	if err != nil {
		t.Fatalf("object layout failed: %v", err)
	}
	// Declaration order with natural alignment: bool at 0, padding, Int at
	// 8, String reference at 16.
	want := []int{0, 8, 16}
	for i, f := range obj.Fields {
		if f.Offset != want[i] {
			t.Fatalf("field %d at offset %d, want %d", i, f.Offset, want[i])
		}
	}
	if obj.Size != 24 || obj.Align != 8 {
		t.Fatalf("body size=%d align=%d", obj.Size, obj.Align)
	}
	if len(obj.PointerOffsets) != 1 || obj.PointerOffsets[0] != 16 {
		t.Fatalf("only the String slot is a reference, got %v", obj.PointerOffsets)
	}
}

func TestEnumTagAndPayload(t *testing.T) {
	e, in := newEngine(t)
	strings := source.NewInterner()
	b := in.Builtins()

	enum := in.RegisterNominal(types.KindEnum, ast.DeclID(2), strings.Intern("Shape"))
	in.SetVariants(enum, []types.VariantInfo{
		{Name: strings.Intern("Point")},
		{Name: strings.Intern("Circle"), Payload: b.Int},
	})

	l, err := e.Of(enum)
	if err != nil {
		t.Fatalf("layout failed: %v", err)
	}
	if l.TagSize != 4 || l.PayloadOffset != 8 || l.Size != 16 || l.Align != 8 {
		t.Fatalf("enum layout %+v", l)
	}
}

func TestPlainEnumIsJustTag(t *testing.T) {
	e, in := newEngine(t)
	strings := source.NewInterner()

	enum := in.RegisterNominal(types.KindEnum, ast.DeclID(3), strings.Intern("Color"))
	in.SetVariants(enum, []types.VariantInfo{
		{Name: strings.Intern("Red")},
		{Name: strings.Intern("Green")},
	})

	l, err := e.Of(enum)
	if err != nil {
		t.Fatalf("layout failed: %v", err)
	}
	if l.Size != 4 || l.Align != 4 {
		t.Fatalf("payload-free enum must be tag-sized, got %+v", l)
	}
}

func TestRecursiveEnumPayloadRejected(t *testing.T) {
	e, in := newEngine(t)
	strings := source.NewInterner()

	enum := in.RegisterNominal(types.KindEnum, ast.DeclID(4), strings.Intern("Loop"))
	in.SetVariants(enum, []types.VariantInfo{
		{Name: strings.Intern("Self"), Payload: enum},
	})

	if _, err := e.Of(enum); err == nil {
		t.Fatalf("self-embedding enum must fail layout")
	}
}

func TestManifestRoundTrip(t *testing.T) {
	e, in := newEngine(t)
	strings := source.NewInterner()
	b := in.Builtins()

	cls := in.RegisterNominal(types.KindStruct, ast.DeclID(1), strings.Intern("Rec"))
	in.SetFields(cls, []types.FieldInfo{
		{Name: strings.Intern("count"), Type: b.Int},
	})
	obj, err := e.ObjectOf(cls)
	if err != nil {
		t.Fatalf("object layout failed: %v", err)
	}

	m := NewManifest(e.Target)
	m.AddObject("Rec", obj, strings.MustLookup)

	data, err := m.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := DecodeManifest(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Triple != e.Target.Triple || len(got.Objects) != 1 {
		t.Fatalf("manifest round trip mangled: %+v", got)
	}
	if got.Objects[0].Fields[0].Name != "count" {
		t.Fatalf("field names must survive: %+v", got.Objects[0])
	}
}

func TestManifestFunctionAssignments(t *testing.T) {
	m := NewManifest(X86_64LinuxGNU())
	m.AddFunction("blend", abi.SysVAMD64(),
		[]abi.Slot{
			{Size: 8, Align: 8},              // scalar int
			{Size: 8, Align: 8, Float: true}, // scalar float
			{Size: 16, Align: 8},             // register pair
			{Size: 24, Align: 8},             // by reference
		},
		abi.Slot{Size: 24, Align: 8}, // hidden sret pointer
	)

	data, err := m.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := DecodeManifest(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(got.Functions) != 1 {
		t.Fatalf("function records must survive: %+v", got)
	}

	fn := got.Functions[0]
	if fn.Name != "blend" || fn.Convention != "sysv-amd64" {
		t.Fatalf("record header: %+v", fn)
	}
	if !fn.RetByRef || fn.Ret.Reg != "rdi" || !fn.Ret.ByRef {
		t.Fatalf("oversized result must ride a hidden rdi pointer: %+v", fn.Ret)
	}
	want := []ArgRecord{
		{Class: "int", Reg: "rsi", Size: 8},
		{Class: "float", Reg: "xmm0", Size: 8},
		{Class: "int", Reg: "rdx", Reg2: "rcx", Size: 16},
		{Class: "int", Reg: "r8", ByRef: true, Size: 24},
	}
	if len(fn.Params) != len(want) {
		t.Fatalf("param count: %+v", fn.Params)
	}
	for i, w := range want {
		if fn.Params[i] != w {
			t.Errorf("param %d: got %+v want %+v", i, fn.Params[i], w)
		}
	}
	if fn.StackBytes != 0 {
		t.Errorf("all-register call needs no argument area, got %d", fn.StackBytes)
	}
}

func TestManifestPairReturnNamesBothRegisters(t *testing.T) {
	m := NewManifest(X86_64LinuxGNU())
	m.AddFunction("split", abi.SysVAMD64(), nil, abi.Slot{Size: 16, Align: 8})

	fn := m.Functions[0]
	if fn.RetByRef {
		t.Fatalf("16-byte result fits a register pair: %+v", fn)
	}
	if fn.Ret.Reg != "rax" || fn.Ret.Reg2 != "rdx" {
		t.Fatalf("pair result registers: %+v", fn.Ret)
	}
}
