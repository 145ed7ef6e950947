package backend

import "encoding/binary"

// amd64 encodes x86-64 instructions straight into the text buffer. Memory
// operands always use disp32 addressing; branch targets are patched as
// rel32.
type amd64 struct {
	text    *[]byte
	obj     *Object
	patches []int // rel32 positions
}

func newAmd64(text *[]byte, obj *Object) *amd64 {
	return &amd64{text: text, obj: obj}
}

var amd64Regs = map[string]int{
	"rax": 0, "rcx": 1, "rdx": 2, "rbx": 3,
	"rsp": 4, "rbp": 5, "rsi": 6, "rdi": 7,
	"r8": 8, "r9": 9, "r10": 10, "r11": 11,
	"r12": 12, "r13": 13, "r14": 14, "r15": 15,
}

func amd64Reg(name string) int {
	if n, ok := amd64Regs[name]; ok {
		return n
	}
	// xmmN
	n := 0
	for _, c := range name[3:] {
		n = n*10 + int(c-'0')
	}
	return n
}

func (a *amd64) offset() int { return len(*a.text) }

func (a *amd64) emit(bs ...byte) {
	*a.text = append(*a.text, bs...)
}

func (a *amd64) emit32(v uint32) {
	*a.text = binary.LittleEndian.AppendUint32(*a.text, v)
}

func (a *amd64) emit64(v uint64) {
	*a.text = binary.LittleEndian.AppendUint64(*a.text, v)
}

// rex builds a REX prefix. w selects 64-bit width; r and b extend the
// ModRM reg and rm fields.
func rex(w bool, r, b int) byte {
	p := byte(0x40)
	if w {
		p |= 8
	}
	if r >= 8 {
		p |= 4
	}
	if b >= 8 {
		p |= 1
	}
	return p
}

// modRM emits ModRM (and SIB for rsp-family bases) with a disp32 memory
// operand.
func (a *amd64) memOperand(reg, base, disp int) {
	a.emit(byte(0x80 | (reg&7)<<3 | base&7))
	if base&7 == 4 {
		a.emit(0x24)
	}
	a.emit32(uint32(int32(disp)))
}

func (a *amd64) regOperand(reg, rm int) {
	a.emit(byte(0xC0 | (reg&7)<<3 | rm&7))
}

// rr emits a REX.W two-register instruction: opcode bytes then ModRM with
// reg=src-field, rm=dst-field following the /r store direction.
func (a *amd64) rr(reg, rm int, opcode ...byte) {
	a.emit(rex(true, reg, rm))
	a.emit(opcode...)
	a.regOperand(reg, rm)
}

func (a *amd64) prologue(frame int) {
	a.emit(0x55)             // push rbp
	a.emit(0x48, 0x89, 0xE5) // mov rbp, rsp
	if frame > 0 {
		a.emit(0x48, 0x81, 0xEC) // sub rsp, imm32
		a.emit32(uint32(frame))
	}
}

func (a *amd64) epilogue() {
	a.emit(0x48, 0x89, 0xEC) // mov rsp, rbp
	a.emit(0x5D)             // pop rbp
	a.emit(0xC3)             // ret
}

func (a *amd64) movRegReg(dst, src string) {
	a.rr(amd64Reg(src), amd64Reg(dst), 0x89)
}

func (a *amd64) movImm(dst string, v int64) {
	d := amd64Reg(dst)
	a.emit(rex(true, 0, d), 0xB8|byte(d&7)) // movabs
	a.emit64(uint64(v))
}

func (a *amd64) addImm(dst string, v int64) {
	d := amd64Reg(dst)
	a.emit(rex(true, 0, d), 0x81)
	a.regOperand(0, d)
	a.emit32(uint32(int32(v)))
}

func (a *amd64) loadSlot(dst string, disp int) { a.loadMem(dst, "rbp", disp, 8) }
func (a *amd64) storeSlot(src string, disp int) { a.storeMem(src, "rbp", disp, 8) }

func (a *amd64) leaSlot(dst string, disp int) {
	d := amd64Reg(dst)
	a.emit(rex(true, d, amd64Regs["rbp"]), 0x8D)
	a.memOperand(d, amd64Regs["rbp"], disp)
}

func (a *amd64) loadMem(dst, base string, off, size int) {
	d, b := amd64Reg(dst), amd64Reg(base)
	switch size {
	case 8:
		a.emit(rex(true, d, b), 0x8B)
	case 4:
		// 32-bit loads zero-extend.
		if d >= 8 || b >= 8 {
			a.emit(rex(false, d, b))
		}
		a.emit(0x8B)
	case 1:
		a.emit(rex(true, d, b), 0x0F, 0xB6) // movzx
	}
	a.memOperand(d, b, off)
}

func (a *amd64) storeMem(src, base string, off, size int) {
	s, b := amd64Reg(src), amd64Reg(base)
	switch size {
	case 8:
		a.emit(rex(true, s, b), 0x89)
	case 4:
		if s >= 8 || b >= 8 {
			a.emit(rex(false, s, b))
		}
		a.emit(0x89)
	case 1:
		// REX keeps sil/dil addressable as byte registers.
		a.emit(rex(false, s, b), 0x88)
	}
	a.memOperand(s, b, off)
}

func (a *amd64) add(dst, src string) { a.rr(amd64Reg(src), amd64Reg(dst), 0x01) }
func (a *amd64) sub(dst, src string) { a.rr(amd64Reg(src), amd64Reg(dst), 0x29) }

func (a *amd64) mul(dst, src string) {
	// imul has reg=dst ordering.
	a.rr(amd64Reg(dst), amd64Reg(src), 0x0F, 0xAF)
}

// div is signed division through rax/rdx; rdx is clobbered.
func (a *amd64) div(dst, src, scratch string) {
	a.movRegReg(scratch, src)
	if dst != "rax" {
		a.movRegReg("rax", dst)
	}
	a.emit(0x48, 0x99) // cqo
	sc := amd64Reg(scratch)
	a.emit(rex(true, 0, sc), 0xF7)
	a.regOperand(7, sc) // idiv
	if dst != "rax" {
		a.movRegReg(dst, "rax")
	}
}

func (a *amd64) and(dst, src string) { a.rr(amd64Reg(src), amd64Reg(dst), 0x21) }
func (a *amd64) or(dst, src string)  { a.rr(amd64Reg(src), amd64Reg(dst), 0x09) }
func (a *amd64) xor(dst, src string) { a.rr(amd64Reg(src), amd64Reg(dst), 0x31) }

// Shifts go through cl; rcx is clobbered.
func (a *amd64) shl(dst, src string) { a.shiftCL(dst, src, 4) }
func (a *amd64) shr(dst, src string) { a.shiftCL(dst, src, 7) } // arithmetic

func (a *amd64) shiftCL(dst, src string, ext int) {
	if src != "rcx" {
		a.movRegReg("rcx", src)
	}
	d := amd64Reg(dst)
	a.emit(rex(true, 0, d), 0xD3)
	a.regOperand(ext, d)
}

func (a *amd64) neg(dst string) {
	d := amd64Reg(dst)
	a.emit(rex(true, 0, d), 0xF7)
	a.regOperand(3, d)
}

func (a *amd64) not(dst string) {
	d := amd64Reg(dst)
	a.emit(rex(true, 0, d), 0xF7)
	a.regOperand(2, d)
}

var amd64SetCC = map[cond]byte{
	condEq: 0x94, condNe: 0x95,
	condLt: 0x9C, condLe: 0x9E,
	condGt: 0x9F, condGe: 0x9D,
}

func (a *amd64) cmpSet(c cond, dst, x, y string) {
	a.rr(amd64Reg(y), amd64Reg(x), 0x39) // cmp x, y
	a.setAndExtend(amd64SetCC[c], dst)
}

func (a *amd64) setAndExtend(setcc byte, dst string) {
	d := amd64Reg(dst)
	a.emit(rex(false, 0, d), 0x0F, setcc)
	a.regOperand(0, d)
	a.emit(rex(true, d, d), 0x0F, 0xB6) // movzx dst, dstb
	a.regOperand(d, d)
}

func (a *amd64) fmovToFloat(dst, src string) {
	x, s := amd64Reg(dst), amd64Reg(src)
	a.emit(0x66, rex(true, x, s), 0x0F, 0x6E) // movq xmm, r64
	a.regOperand(x, s)
}

func (a *amd64) floadSlot(dst string, disp int) {
	x := amd64Reg(dst)
	a.emit(0xF2)
	if x >= 8 {
		a.emit(rex(false, x, 0))
	}
	a.emit(0x0F, 0x10) // movsd xmm, m64
	a.memOperand(x, amd64Regs["rbp"], disp)
}

func (a *amd64) fstoreSlot(src string, disp int) {
	x := amd64Reg(src)
	a.emit(0xF2)
	if x >= 8 {
		a.emit(rex(false, x, 0))
	}
	a.emit(0x0F, 0x11)
	a.memOperand(x, amd64Regs["rbp"], disp)
}

func (a *amd64) fop(opcode byte, dst, src string) {
	d, s := amd64Reg(dst), amd64Reg(src)
	a.emit(0xF2)
	if d >= 8 || s >= 8 {
		a.emit(rex(false, d, s))
	}
	a.emit(0x0F, opcode)
	a.regOperand(d, s)
}

func (a *amd64) fadd(dst, src string) { a.fop(0x58, dst, src) }
func (a *amd64) fsub(dst, src string) { a.fop(0x5C, dst, src) }
func (a *amd64) fmul(dst, src string) { a.fop(0x59, dst, src) }
func (a *amd64) fdiv(dst, src string) { a.fop(0x5E, dst, src) }

// fneg flips the sign bit through the third integer scratch register.
func (a *amd64) fneg(dst string) {
	x := amd64Reg(dst)
	tmp := amd64Regs["r11"]
	a.emit(0x66, rex(true, x, tmp), 0x0F, 0x7E) // movq r64, xmm
	a.regOperand(x, tmp)
	a.emit(rex(true, 0, tmp), 0x0F, 0xBA) // btc tmp, 63
	a.regOperand(7, tmp)
	a.emit(63)
	a.emit(0x66, rex(true, x, tmp), 0x0F, 0x6E) // movq xmm, r64
	a.regOperand(x, tmp)
}

func (a *amd64) ucomisd(x, y string) {
	d, s := amd64Reg(x), amd64Reg(y)
	a.emit(0x66)
	if d >= 8 || s >= 8 {
		a.emit(rex(false, d, s))
	}
	a.emit(0x0F, 0x2E)
	a.regOperand(d, s)
}

// fcmpSet uses the unsigned condition codes ucomisd sets; ordered
// comparisons swap operands so unordered inputs come out false.
func (a *amd64) fcmpSet(c cond, dst, x, y string) {
	switch c {
	case condLt:
		a.ucomisd(y, x)
		a.setAndExtend(0x97, dst) // seta
	case condLe:
		a.ucomisd(y, x)
		a.setAndExtend(0x93, dst) // setae
	case condGt:
		a.ucomisd(x, y)
		a.setAndExtend(0x97, dst)
	case condGe:
		a.ucomisd(x, y)
		a.setAndExtend(0x93, dst)
	case condNe:
		a.ucomisd(x, y)
		a.setAndExtend(0x95, dst)
	default:
		a.ucomisd(x, y)
		a.setAndExtend(0x94, dst)
	}
}

func (a *amd64) newPatch() patch {
	a.patches = append(a.patches, len(*a.text))
	a.emit32(0)
	return patch(len(a.patches) - 1)
}

func (a *amd64) jump() patch {
	a.emit(0xE9)
	return a.newPatch()
}

func (a *amd64) branchNonZero(reg string) patch {
	r := amd64Reg(reg)
	a.emit(rex(true, r, r), 0x85) // test reg, reg
	a.regOperand(r, r)
	a.emit(0x0F, 0x85) // jnz rel32
	return a.newPatch()
}

func (a *amd64) patchTo(p patch, target int) {
	pos := a.patches[p]
	rel := int32(target - (pos + 4))
	binary.LittleEndian.PutUint32((*a.text)[pos:], uint32(rel))
}

func (a *amd64) callSym(name string) {
	a.emit(0xE8)
	a.obj.Relocs = append(a.obj.Relocs, Reloc{
		Kind: RelocCall, Offset: len(*a.text), Symbol: name,
	})
	a.emit32(0)
}

func (a *amd64) callReg(reg string) {
	r := amd64Reg(reg)
	if r >= 8 {
		a.emit(rex(false, 0, r))
	}
	a.emit(0xFF)
	a.regOperand(2, r)
}

func (a *amd64) addrOfSym(dst, name string) {
	d := amd64Reg(dst)
	a.emit(rex(true, 0, d), 0xB8|byte(d&7))
	a.obj.Relocs = append(a.obj.Relocs, Reloc{
		Kind: RelocAddr, Offset: len(*a.text), Symbol: name,
	})
	a.emit64(0)
}

func (a *amd64) stackAdjust(n int) {
	if n == 0 {
		return
	}
	a.emit(0x48, 0x81)
	if n > 0 {
		a.regOperand(5, amd64Regs["rsp"]) // sub rsp, imm32
		a.emit32(uint32(n))
	} else {
		a.regOperand(0, amd64Regs["rsp"]) // add rsp, imm32
		a.emit32(uint32(-n))
	}
}

func (a *amd64) storeStackArg(src string, off int) { a.storeMem(src, "rsp", off, 8) }

func (a *amd64) leaStack(dst string, off int) {
	d := amd64Reg(dst)
	a.emit(rex(true, d, amd64Regs["rsp"]), 0x8D)
	a.memOperand(d, amd64Regs["rsp"], off)
}

func (a *amd64) trap() { a.emit(0x0F, 0x0B) } // ud2

func (a *amd64) frameReg() string { return "rbp" }

func (a *amd64) scratch() (string, string, string) { return "rax", "r10", "r11" }
func (a *amd64) fscratch() (string, string)        { return "xmm14", "xmm15" }
func (a *amd64) retReg() string                    { return "rax" }
func (a *amd64) retReg2() string                   { return "rdx" }
func (a *amd64) fretReg() string                   { return "xmm0" }
