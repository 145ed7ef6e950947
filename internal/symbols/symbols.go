// Package symbols maintains the module-level name table: every top-level
// declaration and free function gets a symbol, and name reuse is detected
// across declaration kinds, not just within one kind.
package symbols

import (
	"fmt"

	"fortio.org/safecast"

	"quill/internal/ast"
	"quill/internal/source"
	"quill/internal/types"
)

// SymbolID identifies a symbol in the table. Zero is invalid.
type SymbolID uint32

const NoSymbolID SymbolID = 0

func (id SymbolID) IsValid() bool { return id != NoSymbolID }

// SymbolKind classifies the semantic meaning of a symbol.
type SymbolKind uint8

const (
	SymbolInvalid SymbolKind = iota
	SymbolClass
	SymbolEnum
	SymbolTrait
	SymbolApp
	SymbolError
	SymbolFunction
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolClass:
		return "class"
	case SymbolEnum:
		return "enum"
	case SymbolTrait:
		return "trait"
	case SymbolApp:
		return "app"
	case SymbolError:
		return "error"
	case SymbolFunction:
		return "function"
	default:
		return "invalid"
	}
}

// Symbol describes one named top-level entity.
type Symbol struct {
	Name source.StringID
	Kind SymbolKind
	Span source.Span
	Decl ast.DeclID // declarations
	Fn   ast.FnID   // free functions
	Type types.TypeID
}

// Table aggregates the symbol arena and the name index.
type Table struct {
	symbols []Symbol
	byName  map[source.StringID]SymbolID
}

// NewTable builds a fresh table with an optional capacity hint.
func NewTable(capHint uint) *Table {
	symCap, err := safecast.Conv[uint32](capHint)
	if err != nil {
		panic(fmt.Errorf("symbol capacity overflow: %w", err))
	}
	return &Table{
		symbols: make([]Symbol, 1, symCap+1), // index 0 reserved
		byName:  make(map[source.StringID]SymbolID, capHint),
	}
}

// Declare inserts a symbol. When the name is taken by any earlier top-level
// symbol of any kind, the existing SymbolID is returned with ok=false and
// nothing is inserted.
func (t *Table) Declare(sym Symbol) (SymbolID, bool) {
	if existing, taken := t.byName[sym.Name]; taken {
		return existing, false
	}
	id := SymbolID(len(t.symbols))
	t.symbols = append(t.symbols, sym)
	t.byName[sym.Name] = id
	return id, true
}

// Lookup finds a symbol by name.
func (t *Table) Lookup(name source.StringID) (SymbolID, bool) {
	id, ok := t.byName[name]
	return id, ok
}

// Get returns the symbol for an ID.
func (t *Table) Get(id SymbolID) *Symbol {
	if !id.IsValid() || int(id) >= len(t.symbols) {
		return nil
	}
	return &t.symbols[id]
}

// SetType records the resolved semantic type of a symbol.
func (t *Table) SetType(id SymbolID, typ types.TypeID) {
	if s := t.Get(id); s != nil {
		s.Type = typ
	}
}

// Len returns the number of declared symbols.
func (t *Table) Len() int {
	return len(t.symbols) - 1
}
