// Package layout computes the memory layout of every type for a specific
// target: value sizes and alignments, heap object shapes for classes and
// errors, and the tag/payload placement of enums and nullables.
package layout

import (
	"quill/internal/types"
)

// TypeLayout is the ABI layout of one type for a specific Target.
type TypeLayout struct {
	Size  int
	Align int

	// Nullable-only: where the payload starts. The presence flag is always
	// byte zero.
	PayloadOffset int

	// Enum-only.
	TagSize int

	// Pointer reports whether values of this type are GC references the
	// collector must see in stack maps.
	Pointer bool
}

// Engine computes and caches layouts.
type Engine struct {
	Target Target
	Types  *types.Interner

	cache map[types.TypeID]cacheEntry
}

type cacheEntry struct {
	layout TypeLayout
	err    error
}

// New creates an Engine for the given target.
func New(target Target, typesIn *types.Interner) *Engine {
	return &Engine{
		Target: target,
		Types:  typesIn,
		cache:  make(map[types.TypeID]cacheEntry, 64),
	}
}

// Of computes and caches the layout of a type.
func (e *Engine) Of(t types.TypeID) (TypeLayout, error) {
	if cached, ok := e.cache[t]; ok {
		return cached.layout, cached.err
	}
	state := &computeState{index: make(map[types.TypeID]int, 8)}
	l, err := e.compute(t, state)
	e.cache[t] = cacheEntry{layout: l, err: err}
	return l, err
}

// SizeOf returns the value size of a type in bytes.
func (e *Engine) SizeOf(t types.TypeID) (int, error) {
	l, err := e.Of(t)
	return l.Size, err
}

// AlignOf returns the alignment requirement of a type in bytes.
func (e *Engine) AlignOf(t types.TypeID) (int, error) {
	l, err := e.Of(t)
	return l.Align, err
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
