package ast

type Arena[T any] struct {
	data []T
}

// NewArena allocates an arena whose backing slice has capacity capHint.
func NewArena[T any](capHint uint) *Arena[T] {
	return &Arena[T]{
		data: make([]T, 0, capHint),
	}
}

// Allocate stores the value and returns its 1-based index. Index 0 is
// reserved for the No*ID sentinels.
func (a *Arena[T]) Allocate(value T) uint32 {
	a.data = append(a.data, value)
	return uint32(len(a.data))
}

func (a *Arena[T]) Get(index uint32) *T {
	if index == 0 || int(index) > len(a.data) {
		return nil
	}
	return &a.data[index-1]
}

// Slice returns the backing storage. Read-only.
func (a *Arena[T]) Slice() []T {
	return a.data
}

func (a *Arena[T]) Len() uint32 {
	return uint32(len(a.data))
}

// NewArenaFromSlice wraps decoded storage (artifact loading).
func NewArenaFromSlice[T any](data []T) *Arena[T] {
	return &Arena[T]{data: data}
}
