package ast

type (
	DeclID    uint32
	FnID      uint32
	StmtID    uint32
	ExprID    uint32
	TypeRefID uint32
)

const (
	NoDeclID    DeclID    = 0
	NoFnID      FnID      = 0
	NoStmtID    StmtID    = 0
	NoExprID    ExprID    = 0
	NoTypeRefID TypeRefID = 0
)

func (id DeclID) IsValid() bool    { return id != NoDeclID }
func (id FnID) IsValid() bool      { return id != NoFnID }
func (id StmtID) IsValid() bool    { return id != NoStmtID }
func (id ExprID) IsValid() bool    { return id != NoExprID }
func (id TypeRefID) IsValid() bool { return id != NoTypeRefID }
