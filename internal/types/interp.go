package types

// Interpolatable reports whether a value of the given kind may appear inside
// a string interpolation. The list is closed: only primitive-category kinds
// with a defined textual representation qualify. Nullable wrappers are
// rejected even when the underlying type would qualify, and any new
// composite category defaults to rejected.
func Interpolatable(k Kind) bool {
	switch k {
	case KindInt, KindFloat, KindBool, KindString, KindByte:
		return true
	default:
		return false
	}
}
