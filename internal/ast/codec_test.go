package ast

import (
	"bytes"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"quill/internal/source"
)

func buildUnit(t *testing.T) *Tree {
	t.Helper()
	b := NewBuilder(Hints{}, nil)

	classID := b.NewDecl(Decl{Kind: DeclClass, Name: b.Intern("Counter")})
	lit := b.NewExpr(Expr{Kind: ExprLit, Lit: LitInt, IntVal: 41})
	one := b.NewExpr(Expr{Kind: ExprLit, Lit: LitInt, IntVal: 1})
	sum := b.NewExpr(Expr{Kind: ExprBinary, BinOp: BinAdd, Left: lit, Right: one})
	ret := b.NewStmt(Stmt{Kind: StmtReturn, HasValue: true, Value: sum})
	body := b.NewStmt(Stmt{Kind: StmtBlock, Stmts: []StmtID{ret}})
	fn := b.NewFn(Fn{
		Name:   b.Intern("next"),
		Owner:  classID,
		Result: b.Named("Int", source.Span{}),
		Body:   body,
	})
	b.AttachMethod(classID, fn)
	return b.Tree
}

func TestTreeRoundTrip(t *testing.T) {
	tree := buildUnit(t)

	var buf bytes.Buffer
	if err := EncodeTree(&buf, tree); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeTree(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(got.Module.Decls) != 1 {
		t.Fatalf("module decls: %d", len(got.Module.Decls))
	}
	decl := got.Decls.Get(got.Module.Decls[0])
	if decl == nil || decl.Kind != DeclClass {
		t.Fatalf("decl did not survive: %+v", decl)
	}
	if got.Strings.MustLookup(decl.Name) != "Counter" {
		t.Errorf("name = %q", got.Strings.MustLookup(decl.Name))
	}
	if len(decl.Methods) != 1 {
		t.Fatalf("methods: %d", len(decl.Methods))
	}
	fn := got.Fns.Get(decl.Methods[0])
	if fn == nil || got.Strings.MustLookup(fn.Name) != "next" {
		t.Fatalf("method did not survive: %+v", fn)
	}
	body := got.Stmts.Get(fn.Body)
	if body == nil || body.Kind != StmtBlock || len(body.Stmts) != 1 {
		t.Fatalf("body did not survive: %+v", body)
	}
	ret := got.Stmts.Get(body.Stmts[0])
	if ret == nil || ret.Kind != StmtReturn || !ret.HasValue {
		t.Fatalf("return did not survive: %+v", ret)
	}
	sum := got.Exprs.Get(ret.Value)
	if sum == nil || sum.Kind != ExprBinary || sum.BinOp != BinAdd {
		t.Fatalf("expression did not survive: %+v", sum)
	}
	if lhs := got.Exprs.Get(sum.Left); lhs == nil || lhs.IntVal != 41 {
		t.Fatalf("operand did not survive: %+v", lhs)
	}
}

func TestDecodeTreeRejectsWrongSchema(t *testing.T) {
	wt := wireTree{Schema: artifactSchemaVersion + 1}
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(&wt); err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeTree(&buf); err == nil {
		t.Fatal("schema mismatch must be rejected")
	}
}

func TestDecodeTreeRejectsGarbage(t *testing.T) {
	if _, err := DecodeTree(bytes.NewReader([]byte("not an artifact"))); err == nil {
		t.Fatal("garbage input must be rejected")
	}
}

func TestEncodeTreeRejectsNil(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeTree(&buf, nil); err == nil {
		t.Fatal("nil tree must be rejected")
	}
}
