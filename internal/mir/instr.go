package mir

import (
	"quill/internal/ast"
	"quill/internal/types"
)

// InstrKind enumerates instruction kinds.
type InstrKind uint8

const (
	// InstrAssign evaluates an rvalue into a local.
	InstrAssign InstrKind = iota
	// InstrCall invokes a function, a runtime entry point, a trait-object
	// slot, or a function-typed value. Calls are safepoints.
	InstrCall
	// InstrAlloc allocates a heap object body for a class or error. A
	// safepoint.
	InstrAlloc
	// InstrFieldGet and InstrFieldSet access heap object fields by index.
	InstrFieldGet
	InstrFieldSet
	// InstrGlobalSet stores into a module global (singleton slot).
	InstrGlobalSet
	// Nullable composition: wrap, the empty value, the presence flag, and
	// the trapping unwrap.
	InstrNullMake
	InstrNullNone
	InstrNullFlag
	InstrNullUnwrap
	// Enum composition: build a tagged value, read its tag, read a payload.
	InstrEnumMake
	InstrEnumTag
	InstrEnumPayload
	// InstrTraitMake builds a fat reference from a class instance and the
	// dispatch table of a (class, trait) pair.
	InstrTraitMake
	// Error slot access, lowered onto the runtime contract.
	InstrErrSet
	InstrErrFlag
	InstrErrTake
	InstrErrClear
	// InstrAssert checks a contract clause and terminates on failure.
	// Failures are fatal, never catchable.
	InstrAssert
	// InstrSpawn starts a task running a function with captured arguments.
	InstrSpawn
	// Channel operations, lowered onto the runtime contract.
	InstrChanMake
	InstrChanSend
	InstrChanRecv
)

// Instr is one MIR instruction; the variant matching Kind is populated.
type Instr struct {
	Kind InstrKind

	Assign    AssignInstr
	Call      CallInstr
	Alloc     AllocInstr
	FieldGet  FieldGetInstr
	FieldSet  FieldSetInstr
	GlobalSet GlobalSetInstr
	Null      NullInstr
	Enum      EnumInstr
	Trait     TraitMakeInstr
	Err       ErrInstr
	Assert    AssertInstr
	Spawn     SpawnInstr
	Chan      ChanInstr
}

// RValueKind distinguishes assignable right-hand sides.
type RValueKind uint8

const (
	RValueUse RValueKind = iota
	RValueBinary
	RValueUnary
)

// RValue is the right-hand side of an assignment.
type RValue struct {
	Kind RValueKind

	Use   Operand
	Op    ast.ExprBinaryOp
	UnOp  ast.ExprUnaryOp
	Left  Operand
	Right Operand
}

type AssignInstr struct {
	Dst LocalID
	Src RValue
}

// CalleeKind distinguishes call targets.
type CalleeKind uint8

const (
	// CalleeFn is a direct call to a compiled function.
	CalleeFn CalleeKind = iota
	// CalleeRuntime is a call into the fixed runtime contract.
	CalleeRuntime
	// CalleeTraitSlot loads a slot out of a fat reference's dispatch table.
	CalleeTraitSlot
	// CalleeValue calls through a function-typed operand.
	CalleeValue
)

type Callee struct {
	Kind CalleeKind
	Fn   ast.FnID
	Name string // mangled or runtime symbol
	Slot int    // trait dispatch slot
	// Object is the fat reference for trait calls, the operand for value
	// calls.
	Object Operand
}

type CallInstr struct {
	HasDst bool
	Dst    LocalID
	Callee Callee
	Args   []Operand
	// CanRaise: the callee may set the error slot; the caller decides what
	// to do with the flag right after.
	CanRaise bool
}

type AllocInstr struct {
	Dst    LocalID
	Object types.TypeID // the nominal type whose body is allocated
}

type FieldGetInstr struct {
	Dst    LocalID
	Object Operand
	Field  int
}

type FieldSetInstr struct {
	Object Operand
	Field  int
	Value  Operand
}

type GlobalSetInstr struct {
	Global GlobalID
	Value  Operand
}

// NullInstr serves the four nullable kinds: Make wraps Value, None builds
// the empty value, Flag reads presence, Unwrap extracts or traps.
type NullInstr struct {
	Dst   LocalID
	Value Operand
}

// EnumInstr serves the three enum kinds. Make builds tag + optional
// payload; Tag reads the tag; Payload reads the payload slot of a value
// whose tag is already established.
type EnumInstr struct {
	Dst        LocalID
	Value      Operand
	Tag        int
	HasPayload bool
	Payload    Operand
}

type TraitMakeInstr struct {
	Dst   LocalID
	Value Operand
	Class ast.DeclID
	Trait ast.DeclID
}

// ErrInstr serves the error slot kinds: Set stores Value, Flag reads into
// Dst, Take moves the error into Dst and clears, Clear resets.
type ErrInstr struct {
	Dst   LocalID
	Value Operand
}

// AssertInstr checks Cond and calls the fatal contract handler with the
// clause identity when it is false.
type AssertInstr struct {
	Cond   Operand
	Kind   int // rt.ContractRequires, rt.ContractEnsures, rt.ContractInvariant
	FnName string
	Clause int
}

type SpawnInstr struct {
	Dst  LocalID
	Fn   ast.FnID
	Name string
	Args []Operand
}

// ChanInstr serves the channel kinds: Make creates (Elem sized, Capacity),
// Send writes Value, Recv reads into Dst.
type ChanInstr struct {
	Dst      LocalID
	Channel  Operand
	Value    Operand
	Elem     types.TypeID
	Capacity Operand
}
