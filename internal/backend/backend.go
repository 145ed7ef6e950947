// Package backend turns lowered MIR into native machine code for x86-64 and
// AArch64 Linux. Output is a relocatable Object: one text blob, function
// symbols, relocations against runtime and module symbols, GC stack maps,
// and the read-only data the code references (string literals, trace maps,
// vtables).
package backend

import (
	"fmt"

	"quill/internal/abi"
	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/layout"
	"quill/internal/mir"
	"quill/internal/source"
	"quill/internal/types"
)

// Arch selects the instruction encoder.
type Arch uint8

const (
	ArchAMD64 Arch = iota
	ArchARM64
)

func (a Arch) String() string {
	if a == ArchARM64 {
		return "arm64"
	}
	return "amd64"
}

// RelocKind enumerates the fixups the linker stage resolves.
type RelocKind uint8

const (
	// RelocCall patches a call site: rel32 on amd64, a bl imm26 word on
	// arm64.
	RelocCall RelocKind = iota
	// RelocAddr patches an absolute 64-bit address materialization: the
	// imm64 of a movabs on amd64, a movz/movk group of four words on arm64.
	RelocAddr
)

// Reloc is one fixup in the text section.
type Reloc struct {
	Kind   RelocKind
	Offset int
	Symbol string
}

// Sym names a range of the text or data section.
type Sym struct {
	Name   string
	Offset int
	Size   int
}

// StackMapSite records the live GC references at one safepoint: the code
// offset just past the safepoint instruction (the return address, for
// calls) and the frame-pointer-relative offsets of every live pointer slot.
type StackMapSite struct {
	Offset   int
	Pointers []int
}

// StackMap is the per-function safepoint table.
type StackMap struct {
	Func  string
	Sites []StackMapSite
}

// Object is one emitted compilation unit.
type Object struct {
	Arch Arch

	Text   []byte
	Funcs  []Sym
	Relocs []Reloc

	// Data holds read-only payloads: string literal bytes, allocation trace
	// maps, vtables. DataSyms names them; RelocAddr fixups reference them by
	// symbol exactly like runtime functions. DataRelocs patch 8-byte cells
	// inside Data itself (vtable slots holding function addresses).
	Data       []byte
	DataSyms   []Sym
	DataRelocs []Reloc

	// Globals lists the zero-initialized singleton cells, 8 bytes each.
	Globals []string

	StackMaps []StackMap
}

// Options configure emission.
type Options struct {
	Arch     Arch
	Types    *types.Interner
	Layout   *layout.Engine
	Reporter diag.Reporter
}

// Emit generates machine code for every function of a module.
func Emit(m *mir.Module, opts Options) (*Object, error) {
	conv := abi.SysVAMD64()
	if opts.Arch == ArchARM64 {
		conv = abi.AAPCS64()
	}

	g := &generator{
		mod:    m,
		types:  opts.Types,
		layout: opts.Layout,
		conv:   conv,
		obj:    &Object{Arch: opts.Arch},
		opts:   opts,

		dataSyms: make(map[string]bool),
		strSyms:  make(map[string]string),
		spawned:  make(map[ast.FnID]bool),
	}
	switch opts.Arch {
	case ArchAMD64:
		g.asm = newAmd64(&g.obj.Text, g.obj)
	case ArchARM64:
		g.asm = newArm64(&g.obj.Text, g.obj)
	default:
		return nil, fmt.Errorf("unsupported architecture %d", opts.Arch)
	}

	for i := range m.Globals {
		g.obj.Globals = append(g.obj.Globals, globalSymbol(m.Globals[i].Name))
	}
	g.emitVTables()

	for i := range m.Funcs {
		g.genFunc(&m.Funcs[i])
	}
	g.emitSpawnThunks()

	if g.failed {
		return nil, fmt.Errorf("code generation failed for %s", opts.Arch)
	}
	return g.obj, nil
}

func (g *generator) report(code diag.Code, msg string) {
	g.failed = true
	if g.opts.Reporter == nil {
		return
	}
	g.opts.Reporter.Report(code, diag.SevError, source.Span{}, msg, nil)
}

func globalSymbol(name string) string  { return "quill.g." + name }
func vtableSymbol(name string) string  { return "quill.vt." + name }
func spawnThunkSymbol(fn string) string { return fn + "$spawn" }

// addData appends a read-only blob under a symbol, 8-byte aligned, and
// returns the symbol. Duplicate symbols keep the first payload.
func (g *generator) addData(sym string, payload []byte) string {
	if g.dataSyms[sym] {
		return sym
	}
	g.dataSyms[sym] = true
	for len(g.obj.Data)%8 != 0 {
		g.obj.Data = append(g.obj.Data, 0)
	}
	g.obj.DataSyms = append(g.obj.DataSyms, Sym{
		Name: sym, Offset: len(g.obj.Data), Size: len(payload),
	})
	g.obj.Data = append(g.obj.Data, payload...)
	return sym
}
