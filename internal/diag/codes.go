package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Semantic diagnostics (3000-3999).
	SemaInfo               Code = 3000
	SemaError              Code = 3001
	SemaTypeMismatch       Code = 3002
	SemaCannotInterpolate  Code = 3003
	SemaAlreadyDeclared    Code = 3004
	SemaUnresolvedName     Code = 3005
	SemaUnresolvedType     Code = 3006
	SemaUnknownField       Code = 3007
	SemaUnknownVariant     Code = 3008
	SemaUnknownMethod      Code = 3009
	SemaNotIndexable       Code = 3010
	SemaBadArgumentCount   Code = 3011
	SemaAppMissingMain     Code = 3012
	SemaNotCallable        Code = 3013
	SemaReturnMismatch     Code = 3014
	SemaConditionNotBool   Code = 3015
	SemaMissingBinding     Code = 3016
	SemaAmbiguousBinding   Code = 3017
	SemaDependencyCycle    Code = 3018
	SemaVariantNoPayload   Code = 3019
	SemaPropagateNoRaise   Code = 3020
	SemaContractNotBool    Code = 3021
	SemaRaiseNotError      Code = 3022
	SemaNullableNotChecked Code = 3023

	// IR lowering defects (4000-4999). These indicate compiler bugs, never
	// user errors, and are surfaced as internal errors rather than printed
	// alongside user diagnostics.
	LowInfo          Code = 4000
	LowInternal      Code = 4001
	LowUnterminated  Code = 4002
	LowBadBlockRef   Code = 4003
	LowBadLocalRef   Code = 4004
	LowTypeConfusion Code = 4005

	// Code generation defects (5000-5999).
	CGInfo            Code = 5000
	CGInternal        Code = 5001
	CGUnsupportedInst Code = 5002
	CGBadRelocation   Code = 5003

	// I/O errors (6000-6999).
	IOLoadFileError Code = 6001
	IOBadArtifact   Code = 6002
)

// Canonical user-facing messages. Tooling matches on these strings; do not
// reword them.
const (
	MsgTypeMismatch      = "type mismatch"
	MsgCannotInterpolate = "cannot interpolate"
	MsgAppMissingMain    = "app must have a 'main' method"
	MsgAlreadyDeclared   = "already declared"
)

var codeDescription = map[Code]string{
	UnknownCode:            "Unknown error",
	SemaInfo:               "Semantic information",
	SemaError:              "Semantic error",
	SemaTypeMismatch:       "Type mismatch",
	SemaCannotInterpolate:  "Value cannot be interpolated into a string",
	SemaAlreadyDeclared:    "Name is already declared",
	SemaUnresolvedName:     "Unresolved name",
	SemaUnresolvedType:     "Unresolved type name",
	SemaUnknownField:       "Unknown field",
	SemaUnknownVariant:     "Unknown enum variant",
	SemaUnknownMethod:      "Unknown method",
	SemaNotIndexable:       "Type cannot be indexed",
	SemaBadArgumentCount:   "Wrong number of arguments",
	SemaAppMissingMain:     "App declaration lacks a 'main' method",
	SemaNotCallable:        "Expression is not callable",
	SemaReturnMismatch:     "Return type mismatch",
	SemaConditionNotBool:   "Condition must be Bool",
	SemaMissingBinding:     "No injectable binding for dependency",
	SemaAmbiguousBinding:   "Ambiguous injectable binding for dependency",
	SemaDependencyCycle:    "Dependency injection cycle",
	SemaVariantNoPayload:   "Enum variant carries no data",
	SemaPropagateNoRaise:   "Callee cannot raise, '!' has no effect",
	SemaContractNotBool:    "Contract clause must be Bool",
	SemaRaiseNotError:      "Raise operand must be an error value",
	SemaNullableNotChecked: "Nullable value used without unwrap",
	LowInfo:                "Lowering information",
	LowInternal:            "Internal lowering failure",
	LowUnterminated:        "Unterminated basic block",
	LowBadBlockRef:         "Branch to unknown block",
	LowBadLocalRef:         "Reference to unknown local",
	LowTypeConfusion:       "Inconsistent types in IR",
	CGInfo:                 "Code generation information",
	CGInternal:             "Internal code generation failure",
	CGUnsupportedInst:      "Unsupported instruction for target",
	CGBadRelocation:        "Invalid relocation",
	IOLoadFileError:        "I/O load file error",
	IOBadArtifact:          "Malformed syntax-tree artifact",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("SEM%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("LOW%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("CG%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("IO%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
