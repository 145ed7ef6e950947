package mir

import (
	"quill/internal/ast"
	"quill/internal/types"
)

// Global is one module-level slot: a singleton instance created once at
// startup in dependency order.
type Global struct {
	Name string
	Decl ast.DeclID
	Type types.TypeID
}

// VTable is the dispatch table emitted for one (class, trait) pair. Slots
// follow the trait's method declaration order.
type VTable struct {
	Name  string
	Class ast.DeclID
	Trait ast.DeclID
	Slots []ast.FnID
}

// Module is one lowered compilation unit.
type Module struct {
	Funcs   []Func
	Globals []Global
	VTables []VTable

	// ByFn finds the lowered function for a syntax-tree function.
	ByFn map[ast.FnID]FuncID
	// Entry is the synthesized startup function: singleton construction in
	// dependency order, then the app's main. NoFuncID when the unit has no
	// app.
	Entry FuncID
}

// NewModule builds an empty module.
func NewModule() *Module {
	return &Module{ByFn: make(map[ast.FnID]FuncID), Entry: NoFuncID}
}

// NewFunc appends a function shell and returns it for filling.
func (m *Module) NewFunc(f Func) *Func {
	f.ID = FuncID(len(m.Funcs))
	f.Entry = NoBlockID
	m.Funcs = append(m.Funcs, f)
	if f.Fn != ast.NoFnID {
		m.ByFn[f.Fn] = f.ID
	}
	return &m.Funcs[f.ID]
}

// Func returns the function for an ID.
func (m *Module) Func(id FuncID) *Func {
	if id == NoFuncID || int(id) >= len(m.Funcs) {
		return nil
	}
	return &m.Funcs[id]
}

// VTableFor finds the dispatch table index of a (class, trait) pair.
func (m *Module) VTableFor(class, trait ast.DeclID) (int, bool) {
	for i := range m.VTables {
		if m.VTables[i].Class == class && m.VTables[i].Trait == trait {
			return i, true
		}
	}
	return 0, false
}
