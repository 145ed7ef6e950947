package backend

import "encoding/binary"

// arm64 encodes AArch64 instruction words into the text buffer. Frame
// access uses the unscaled ldur/stur forms; offsets beyond their range go
// through x16, the platform scratch register.
type arm64 struct {
	text    *[]byte
	obj     *Object
	patches []arm64Patch
}

type arm64Patch struct {
	pos  int
	cbnz bool
}

func newArm64(text *[]byte, obj *Object) *arm64 {
	return &arm64{text: text, obj: obj}
}

const (
	arm64FP = 29
	arm64LR = 30
	arm64SP = 31
	arm64T1 = 16 // address scratch
)

func arm64Reg(name string) int {
	if name == "sp" {
		return arm64SP
	}
	n := 0
	for _, c := range name[1:] {
		n = n*10 + int(c-'0')
	}
	return n
}

func (a *arm64) offset() int { return len(*a.text) }

func (a *arm64) word(w uint32) {
	*a.text = binary.LittleEndian.AppendUint32(*a.text, w)
}

func (a *arm64) prologue(frame int) {
	a.word(0xA9BF7BFD) // stp x29, x30, [sp, #-16]!
	a.word(0x910003FD) // mov x29, sp
	a.spImm(frame, true)
}

func (a *arm64) epilogue() {
	a.word(0x910003BF) // mov sp, x29
	a.word(0xA8C17BFD) // ldp x29, x30, [sp], #16
	a.word(0xD65F03C0) // ret
}

// spImm adjusts sp by a positive amount, chunked to the imm12 range.
func (a *arm64) spImm(n int, down bool) {
	for n > 0 {
		chunk := n
		if chunk > 0xFFF {
			chunk = 0xFFF
		}
		op := uint32(0x91000000) // add sp, sp, #imm
		if down {
			op = 0xD1000000 // sub
		}
		a.word(op | uint32(chunk)<<10 | uint32(arm64SP)<<5 | uint32(arm64SP))
		n -= chunk
	}
}

func (a *arm64) movRegReg(dst, src string) {
	d, s := arm64Reg(dst), arm64Reg(src)
	if dst == "sp" || src == "sp" {
		// orr cannot name sp; use add #0.
		a.word(0x91000000 | uint32(s)<<5 | uint32(d))
		return
	}
	a.word(0xAA0003E0 | uint32(s)<<16 | uint32(d))
}

// movImm always emits the full movz/movk group so addrOfSym patches have a
// fixed shape.
func (a *arm64) movImm(dst string, v int64) {
	d := uint32(arm64Reg(dst))
	u := uint64(v)
	a.word(0xD2800000 | uint32(u&0xFFFF)<<5 | d)         // movz
	a.word(0xF2A00000 | uint32(u>>16&0xFFFF)<<5 | d)     // movk lsl 16
	a.word(0xF2C00000 | uint32(u>>32&0xFFFF)<<5 | d)     // movk lsl 32
	a.word(0xF2E00000 | uint32(u>>48&0xFFFF)<<5 | d)     // movk lsl 48
}

func (a *arm64) addImm(dst string, v int64) {
	a.regImm(arm64Reg(dst), arm64Reg(dst), v)
}

// regImm computes dst = src +/- imm, chunked to the imm12 range.
func (a *arm64) regImm(dst, src int, v int64) {
	op := uint32(0x91000000) // add
	n := v
	if v < 0 {
		op = 0xD1000000 // sub
		n = -v
	}
	first := true
	for n > 0 || first {
		chunk := n
		if chunk > 0xFFF {
			chunk = 0xFFF
		}
		base := src
		if !first {
			base = dst
		}
		a.word(op | uint32(chunk)<<10 | uint32(base)<<5 | uint32(dst))
		n -= chunk
		first = false
	}
}

// memBase resolves a base+offset pair into one reachable by the unscaled
// forms, routing big offsets through x16.
func (a *arm64) memBase(base, off int) (int, int) {
	if off >= -256 && off <= 255 {
		return base, off
	}
	a.regImm(arm64T1, base, int64(off))
	return arm64T1, 0
}

func imm9(off int) uint32 { return uint32(off&0x1FF) << 12 }

func (a *arm64) loadSlot(dst string, disp int)  { a.loadMem(dst, "x29", disp, 8) }
func (a *arm64) storeSlot(src string, disp int) { a.storeMem(src, "x29", disp, 8) }

func (a *arm64) leaSlot(dst string, disp int) {
	a.regImm(arm64Reg(dst), arm64FP, int64(disp))
}

func (a *arm64) loadMem(dst, base string, off, size int) {
	d := uint32(arm64Reg(dst))
	b, o := a.memBase(arm64Reg(base), off)
	switch size {
	case 8:
		a.word(0xF8400000 | imm9(o) | uint32(b)<<5 | d) // ldur x
	case 4:
		a.word(0xB8400000 | imm9(o) | uint32(b)<<5 | d) // ldur w
	case 1:
		a.word(0x38400000 | imm9(o) | uint32(b)<<5 | d) // ldurb
	}
}

func (a *arm64) storeMem(src, base string, off, size int) {
	s := uint32(arm64Reg(src))
	b, o := a.memBase(arm64Reg(base), off)
	switch size {
	case 8:
		a.word(0xF8000000 | imm9(o) | uint32(b)<<5 | s) // stur x
	case 4:
		a.word(0xB8000000 | imm9(o) | uint32(b)<<5 | s) // stur w
	case 1:
		a.word(0x38000000 | imm9(o) | uint32(b)<<5 | s) // sturb
	}
}

func (a *arm64) rrr(op uint32, dst, src string) {
	d := uint32(arm64Reg(dst))
	a.word(op | uint32(arm64Reg(src))<<16 | d<<5 | d)
}

func (a *arm64) add(dst, src string) { a.rrr(0x8B000000, dst, src) }
func (a *arm64) sub(dst, src string) { a.rrr(0xCB000000, dst, src) }
func (a *arm64) mul(dst, src string) { a.rrr(0x9B007C00, dst, src) } // madd, xzr addend
func (a *arm64) div(dst, src, scratch string) {
	a.rrr(0x9AC00C00, dst, src) // sdiv
}
func (a *arm64) and(dst, src string) { a.rrr(0x8A000000, dst, src) }
func (a *arm64) or(dst, src string)  { a.rrr(0xAA000000, dst, src) }
func (a *arm64) xor(dst, src string) { a.rrr(0xCA000000, dst, src) }
func (a *arm64) shl(dst, src string) { a.rrr(0x9AC02000, dst, src) } // lslv
func (a *arm64) shr(dst, src string) { a.rrr(0x9AC02800, dst, src) } // asrv

func (a *arm64) neg(dst string) {
	d := uint32(arm64Reg(dst))
	a.word(0xCB000000 | d<<16 | uint32(arm64SP)<<5 | d) // sub dst, xzr, dst
}

func (a *arm64) not(dst string) {
	d := uint32(arm64Reg(dst))
	a.word(0xAA200000 | d<<16 | uint32(arm64SP)<<5 | d) // orn dst, xzr, dst
}

var arm64Conds = map[cond]uint32{
	condEq: 0x0, condNe: 0x1,
	condLt: 0xB, condLe: 0xD,
	condGt: 0xC, condGe: 0xA,
}

// Float comparisons use the unordered-false condition codes.
var arm64FConds = map[cond]uint32{
	condEq: 0x0, condNe: 0x1,
	condLt: 0x4, condLe: 0x9, // mi, ls
	condGt: 0xC, condGe: 0xA,
}

func (a *arm64) cset(dst string, cc uint32) {
	// cset is csinc from xzr under the inverted condition.
	a.word(0x9A9F07E0 | (cc^1)<<12 | uint32(arm64Reg(dst)))
}

func (a *arm64) cmpSet(c cond, dst, x, y string) {
	a.word(0xEB00001F | uint32(arm64Reg(y))<<16 | uint32(arm64Reg(x))<<5) // subs xzr, x, y
	a.cset(dst, arm64Conds[c])
}

func (a *arm64) fmovToFloat(dst, src string) {
	a.word(0x9E670000 | uint32(arm64Reg(src))<<5 | uint32(arm64Reg(dst)))
}

func (a *arm64) floadSlot(dst string, disp int) {
	d := uint32(arm64Reg(dst))
	b, o := a.memBase(arm64FP, disp)
	a.word(0xFC400000 | imm9(o) | uint32(b)<<5 | d) // ldur d
}

func (a *arm64) fstoreSlot(src string, disp int) {
	s := uint32(arm64Reg(src))
	b, o := a.memBase(arm64FP, disp)
	a.word(0xFC000000 | imm9(o) | uint32(b)<<5 | s) // stur d
}

func (a *arm64) frr(op uint32, dst, src string) {
	d := uint32(arm64Reg(dst))
	a.word(op | uint32(arm64Reg(src))<<16 | d<<5 | d)
}

func (a *arm64) fadd(dst, src string) { a.frr(0x1E602800, dst, src) }
func (a *arm64) fsub(dst, src string) { a.frr(0x1E603800, dst, src) }
func (a *arm64) fmul(dst, src string) { a.frr(0x1E600800, dst, src) }
func (a *arm64) fdiv(dst, src string) { a.frr(0x1E601800, dst, src) }

func (a *arm64) fneg(dst string) {
	d := uint32(arm64Reg(dst))
	a.word(0x1E614000 | d<<5 | d)
}

func (a *arm64) fcmpSet(c cond, dst, x, y string) {
	a.word(0x1E602000 | uint32(arm64Reg(y))<<16 | uint32(arm64Reg(x))<<5) // fcmp
	a.cset(dst, arm64FConds[c])
}

func (a *arm64) jump() patch {
	a.patches = append(a.patches, arm64Patch{pos: len(*a.text)})
	a.word(0x14000000) // b
	return patch(len(a.patches) - 1)
}

func (a *arm64) branchNonZero(reg string) patch {
	a.patches = append(a.patches, arm64Patch{pos: len(*a.text), cbnz: true})
	a.word(0xB5000000 | uint32(arm64Reg(reg))) // cbnz
	return patch(len(a.patches) - 1)
}

func (a *arm64) patchTo(p patch, target int) {
	pp := a.patches[p]
	rel := uint32((target - pp.pos) / 4)
	w := binary.LittleEndian.Uint32((*a.text)[pp.pos:])
	if pp.cbnz {
		w |= (rel & 0x7FFFF) << 5
	} else {
		w |= rel & 0x03FFFFFF
	}
	binary.LittleEndian.PutUint32((*a.text)[pp.pos:], w)
}

func (a *arm64) callSym(name string) {
	a.obj.Relocs = append(a.obj.Relocs, Reloc{
		Kind: RelocCall, Offset: len(*a.text), Symbol: name,
	})
	a.word(0x94000000) // bl
}

func (a *arm64) callReg(reg string) {
	a.word(0xD63F0000 | uint32(arm64Reg(reg))<<5) // blr
}

func (a *arm64) addrOfSym(dst, name string) {
	a.obj.Relocs = append(a.obj.Relocs, Reloc{
		Kind: RelocAddr, Offset: len(*a.text), Symbol: name,
	})
	a.movImm(dst, 0)
}

func (a *arm64) stackAdjust(n int) {
	if n > 0 {
		a.spImm(n, true)
	} else if n < 0 {
		a.spImm(-n, false)
	}
}

func (a *arm64) storeStackArg(src string, off int) { a.storeMem(src, "sp", off, 8) }

func (a *arm64) leaStack(dst string, off int) {
	a.regImm(arm64Reg(dst), arm64SP, int64(off))
}

func (a *arm64) trap() { a.word(0xD4200000) } // brk #0

func (a *arm64) frameReg() string { return "x29" }

func (a *arm64) scratch() (string, string, string) { return "x9", "x10", "x11" }
func (a *arm64) fscratch() (string, string)        { return "d16", "d17" }
func (a *arm64) retReg() string                    { return "x0" }
func (a *arm64) retReg2() string                   { return "x1" }
func (a *arm64) fretReg() string                   { return "v0" }
