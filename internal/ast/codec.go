package ast

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"quill/internal/source"
)

// Artifact schema version. Bump on any wire-visible node change; loading a
// mismatched artifact is an error, never a silent reinterpretation.
const artifactSchemaVersion uint16 = 1

// wireTree is the msgpack shape of a serialized syntax tree as produced by
// the external parser.
type wireTree struct {
	Schema   uint16
	Strings  []string
	Decls    []Decl
	Fns      []Fn
	Stmts    []Stmt
	Exprs    []Expr
	TypeRefs []TypeRef
	Module   Module
}

// EncodeTree serializes a Tree into the parser artifact format.
func EncodeTree(w io.Writer, tree *Tree) error {
	if tree == nil {
		return fmt.Errorf("ast: nil tree")
	}
	wt := wireTree{
		Schema:   artifactSchemaVersion,
		Strings:  tree.Strings.Snapshot(),
		Decls:    tree.Decls.Arena.Slice(),
		Fns:      tree.Fns.Arena.Slice(),
		Stmts:    tree.Stmts.Arena.Slice(),
		Exprs:    tree.Exprs.Arena.Slice(),
		TypeRefs: tree.TypeRefs.Arena.Slice(),
		Module:   tree.Module,
	}
	return msgpack.NewEncoder(w).Encode(&wt)
}

// DecodeTree loads a parser artifact.
func DecodeTree(r io.Reader) (*Tree, error) {
	var wt wireTree
	if err := msgpack.NewDecoder(r).Decode(&wt); err != nil {
		return nil, fmt.Errorf("ast: decode artifact: %w", err)
	}
	if wt.Schema != artifactSchemaVersion {
		return nil, fmt.Errorf("ast: artifact schema %d, compiler expects %d", wt.Schema, artifactSchemaVersion)
	}
	return &Tree{
		Strings:  source.NewInternerFromSnapshot(wt.Strings),
		Decls:    &Decls{Arena: NewArenaFromSlice(wt.Decls)},
		Fns:      &Fns{Arena: NewArenaFromSlice(wt.Fns)},
		Stmts:    &Stmts{Arena: NewArenaFromSlice(wt.Stmts)},
		Exprs:    &Exprs{Arena: NewArenaFromSlice(wt.Exprs)},
		TypeRefs: &TypeRefs{Arena: NewArenaFromSlice(wt.TypeRefs)},
		Module:   wt.Module,
	}, nil
}
