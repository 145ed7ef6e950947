package mir

import (
	"quill/internal/ast"
	"quill/internal/source"
	"quill/internal/types"
)

type Block struct {
	ID     BlockID
	Instrs []Instr
	Term   Terminator
}

func (b *Block) Terminated() bool {
	if b == nil {
		return true
	}
	return b.Term.Kind != TermNone
}

// Func is one lowered function. Params occupy Locals[0:ParamCount].
type Func struct {
	ID   FuncID
	Fn   ast.FnID
	Name string
	Span source.Span

	Result     types.TypeID
	Raises     bool
	ParamCount int

	Locals []Local
	Blocks []Block
	Entry  BlockID
}

// NewLocal appends a local and returns its ID.
func (f *Func) NewLocal(l Local) LocalID {
	id := LocalID(len(f.Locals))
	f.Locals = append(f.Locals, l)
	return id
}

// NewBlock appends an empty, unterminated block.
func (f *Func) NewBlock() BlockID {
	id := BlockID(len(f.Blocks))
	f.Blocks = append(f.Blocks, Block{ID: id})
	return id
}

// Block returns the block for an ID.
func (f *Func) Block(id BlockID) *Block {
	if id == NoBlockID || int(id) >= len(f.Blocks) {
		return nil
	}
	return &f.Blocks[id]
}

// Emit appends an instruction to a block. Emitting into a terminated block
// is a lowering bug and panics.
func (f *Func) Emit(b BlockID, in Instr) {
	blk := f.Block(b)
	if blk.Terminated() {
		panic("mir: emit into terminated block")
	}
	blk.Instrs = append(blk.Instrs, in)
}

// Terminate seals a block.
func (f *Func) Terminate(b BlockID, t Terminator) {
	blk := f.Block(b)
	if blk.Terminated() {
		panic("mir: block terminated twice")
	}
	blk.Term = t
}
