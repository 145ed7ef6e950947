package backend

// patch identifies an unresolved branch emitted by an encoder, resolved with
// patchTo once the target offset is known.
type patch int

// cond is the comparison outcome an encoder materializes as 0/1.
type cond uint8

const (
	condEq cond = iota
	condNe
	condLt
	condLe
	condGt
	condGe
)

// asm is the per-architecture encoder surface the generator drives. Register
// operands are convention names ("rdi", "x0", "xmm1", "v0"); slot
// displacements are frame-pointer relative, negative for locals and positive
// for incoming stack arguments.
type asm interface {
	offset() int

	prologue(frame int)
	epilogue()

	movRegReg(dst, src string)
	movImm(dst string, v int64)
	addImm(dst string, v int64)

	loadSlot(dst string, disp int)
	storeSlot(src string, disp int)
	leaSlot(dst string, disp int)

	// Sized memory access through a base register. Sub-8 loads zero-extend.
	loadMem(dst, base string, off, size int)
	storeMem(src, base string, off, size int)

	add(dst, src string)
	sub(dst, src string)
	mul(dst, src string)
	// div computes dst/src, clobbering scratch.
	div(dst, src, scratch string)
	and(dst, src string)
	or(dst, src string)
	xor(dst, src string)
	shl(dst, src string)
	shr(dst, src string)
	neg(dst string)
	not(dst string)
	cmpSet(c cond, dst, a, b string)

	fmovToFloat(dst, src string)
	floadSlot(dst string, disp int)
	fstoreSlot(src string, disp int)
	fadd(dst, src string)
	fsub(dst, src string)
	fmul(dst, src string)
	fdiv(dst, src string)
	fneg(dst string)
	// fcmpSet writes the outcome into an integer register.
	fcmpSet(c cond, dst, a, b string)

	jump() patch
	branchNonZero(reg string) patch
	patchTo(p patch, target int)

	callSym(name string)
	callReg(reg string)
	addrOfSym(dst, name string)

	stackAdjust(n int)
	storeStackArg(src string, off int)
	leaStack(dst string, off int)
	trap()

	frameReg() string

	// Scratch registers, disjoint from every argument register.
	scratch() (string, string, string)
	fscratch() (string, string)
	retReg() string
	// retReg2 carries the second half of a 9..16-byte aggregate result.
	retReg2() string
	fretReg() string
}
