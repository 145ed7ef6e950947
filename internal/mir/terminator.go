package mir

type TermKind uint8

const (
	// TermNone marks a block still under construction. Validation rejects
	// it.
	TermNone TermKind = iota
	TermGoto
	TermIf
	TermSwitchTag
	TermReturn
	// TermErrorReturn leaves the function with the error slot set; the
	// result slot is not written.
	TermErrorReturn
	TermUnreachable
)

type Terminator struct {
	Kind TermKind

	Goto      GotoTerm
	If        IfTerm
	SwitchTag SwitchTagTerm
	Return    ReturnTerm
}

type GotoTerm struct {
	Target BlockID
}

type IfTerm struct {
	Cond Operand
	Then BlockID
	Else BlockID
}

type SwitchTagCase struct {
	Tag    int
	Target BlockID
}

// SwitchTagTerm branches on an enum tag. Default receives tags no case
// names, including the wildcard arm of a match.
type SwitchTagTerm struct {
	Value   Operand
	Cases   []SwitchTagCase
	Default BlockID
}

type ReturnTerm struct {
	HasValue bool
	Value    Operand
}
