// Package abi assigns argument and result locations for the native calling
// conventions the backends honor: System V AMD64 and AAPCS64. The backend
// maps the register indices produced here onto machine encodings.
package abi

// Class separates the two register files.
type Class uint8

const (
	ClassInt Class = iota
	ClassFloat
)

// Loc places one argument or the result.
type Loc struct {
	Class Class
	// InReg: Reg indexes the convention's argument register table for the
	// class (0 = rdi or x0, xmm0 or v0). Pair holds the second register of
	// a two-register aggregate, -1 otherwise.
	InReg bool
	Reg   int
	Pair  int
	// ByRef: the value is too large for registers and a pointer to a
	// caller-owned copy travels in Reg instead.
	ByRef bool
	// Offset is the stack offset relative to the call SP when !InReg.
	Offset int
}

// Slot describes one value the convention must place.
type Slot struct {
	Size  int
	Align int
	Float bool
}

// Assignment is the full placement of one call signature.
type Assignment struct {
	Args []Loc
	Ret  Loc
	// RetByRef: the result does not fit registers; the caller passes a
	// hidden destination pointer in the first integer argument register.
	RetByRef bool
	// StackBytes is the argument area size, rounded to the convention's
	// stack alignment.
	StackBytes int
}

// Convention is one platform calling convention. Register tables hold
// backend-neutral indices; names are for diagnostics and IR dumps.
type Convention struct {
	Name string

	IntArgRegs   []string
	FloatArgRegs []string
	IntRetReg    string
	// IntRetReg2 carries the high half of a 9..16-byte result.
	IntRetReg2  string
	FloatRetReg string

	StackAlign int
}

// SysVAMD64 returns the System V AMD64 convention used on x86-64 Linux.
func SysVAMD64() *Convention {
	return &Convention{
		Name:         "sysv-amd64",
		IntArgRegs:   []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"},
		FloatArgRegs: []string{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7"},
		IntRetReg:    "rax",
		IntRetReg2:   "rdx",
		FloatRetReg:  "xmm0",
		StackAlign:   16,
	}
}

// AAPCS64 returns the ARM 64-bit procedure call standard used on AArch64
// Linux.
func AAPCS64() *Convention {
	return &Convention{
		Name:         "aapcs64",
		IntArgRegs:   []string{"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7"},
		FloatArgRegs: []string{"v0", "v1", "v2", "v3", "v4", "v5", "v6", "v7"},
		IntRetReg:    "x0",
		IntRetReg2:   "x1",
		FloatRetReg:  "v0",
		StackAlign:   16,
	}
}

// Assign places every parameter and the result. Values up to 8 bytes take
// one register, 9..16 bytes take a register pair, anything larger travels
// by reference. Float scalars use the float file; every aggregate uses the
// integer file.
func (c *Convention) Assign(params []Slot, ret Slot) Assignment {
	var out Assignment
	nextInt, nextFloat := 0, 0
	stack := 0

	if ret.Size > 16 {
		// Hidden destination pointer consumes the first integer register.
		out.RetByRef = true
		out.Ret = Loc{Class: ClassInt, InReg: true, Reg: nextInt, Pair: -1, ByRef: true}
		nextInt++
	} else if ret.Size > 0 {
		if ret.Float {
			out.Ret = Loc{Class: ClassFloat, InReg: true, Reg: 0, Pair: -1}
		} else {
			pair := -1
			if ret.Size > 8 {
				pair = 1
			}
			out.Ret = Loc{Class: ClassInt, InReg: true, Reg: 0, Pair: pair}
		}
	} else {
		out.Ret = Loc{Pair: -1}
	}

	for _, p := range params {
		loc := Loc{Pair: -1}
		switch {
		case p.Size == 0:
			// Unit-typed arguments occupy nothing.

		case p.Float && p.Size <= 8:
			if nextFloat < len(c.FloatArgRegs) {
				loc = Loc{Class: ClassFloat, InReg: true, Reg: nextFloat, Pair: -1}
				nextFloat++
			} else {
				stack = alignUp(stack, max(p.Align, 8))
				loc = Loc{Class: ClassFloat, Offset: stack, Pair: -1}
				stack += 8
			}

		case p.Size <= 8:
			if nextInt < len(c.IntArgRegs) {
				loc = Loc{Class: ClassInt, InReg: true, Reg: nextInt, Pair: -1}
				nextInt++
			} else {
				stack = alignUp(stack, max(p.Align, 8))
				loc = Loc{Class: ClassInt, Offset: stack, Pair: -1}
				stack += 8
			}

		case p.Size <= 16:
			if nextInt+1 < len(c.IntArgRegs) {
				loc = Loc{Class: ClassInt, InReg: true, Reg: nextInt, Pair: nextInt + 1}
				nextInt += 2
			} else {
				// An aggregate never splits between registers and stack.
				nextInt = len(c.IntArgRegs)
				stack = alignUp(stack, max(p.Align, 8))
				loc = Loc{Class: ClassInt, Offset: stack, Pair: -1}
				stack += 16
			}

		default:
			// By reference: the pointer itself follows scalar rules.
			if nextInt < len(c.IntArgRegs) {
				loc = Loc{Class: ClassInt, InReg: true, Reg: nextInt, Pair: -1, ByRef: true}
				nextInt++
			} else {
				stack = alignUp(stack, 8)
				loc = Loc{Class: ClassInt, Offset: stack, Pair: -1, ByRef: true}
				stack += 8
			}
		}
		out.Args = append(out.Args, loc)
	}

	out.StackBytes = alignUp(stack, c.StackAlign)
	return out
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
