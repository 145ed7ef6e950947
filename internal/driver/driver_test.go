package driver

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"quill/internal/ast"
	"quill/internal/diag"
	"quill/internal/layout"
	"quill/internal/mir"
)

// writeArtifact assembles a small valid unit (an app whose main binds a
// string literal) and encodes it as a .qast file.
func writeArtifact(t *testing.T, dir, name string) string {
	t.Helper()
	b := ast.NewBuilder(ast.Hints{}, nil)

	appID := b.NewDecl(ast.Decl{Kind: ast.DeclApp, Name: b.Intern("App")})
	lit := b.NewExpr(ast.Expr{Kind: ast.ExprLit, Lit: ast.LitString, StrVal: "hi"})
	let := b.NewStmt(ast.Stmt{Kind: ast.StmtLet, Name: b.Intern("m"), Value: lit})
	body := b.NewStmt(ast.Stmt{Kind: ast.StmtBlock, Stmts: []ast.StmtID{let}})
	mainFn := b.NewFn(ast.Fn{Name: b.Intern("main"), Owner: appID, Body: body})
	b.AttachMethod(appID, mainFn)

	var buf bytes.Buffer
	if err := ast.EncodeTree(&buf, b.Tree); err != nil {
		t.Fatalf("encoding artifact: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing artifact: %v", err)
	}
	return path
}

// writeBrokenArtifact encodes a unit with a type error: an app without a
// main method.
func writeBrokenArtifact(t *testing.T, dir, name string) string {
	t.Helper()
	b := ast.NewBuilder(ast.Hints{}, nil)
	b.NewDecl(ast.Decl{Kind: ast.DeclApp, Name: b.Intern("App")})

	var buf bytes.Buffer
	if err := ast.EncodeTree(&buf, b.Tree); err != nil {
		t.Fatalf("encoding artifact: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing artifact: %v", err)
	}
	return path
}

func TestCompileArtifactProducesObjectAndManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "app.qast")

	res, err := CompileArtifact(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if res.Bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %+v", res.Bag.Items())
	}
	if res.Object == nil || len(res.Object.Text) == 0 {
		t.Fatal("no object emitted")
	}
	if len(res.Manifest) == 0 {
		t.Fatal("no layout manifest emitted")
	}
	if res.Cached {
		t.Fatal("first compile cannot be a cache hit")
	}
}

func TestManifestCarriesFunctionSignatures(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "app.qast")

	res, err := CompileArtifact(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	m, err := layout.DecodeManifest(res.Manifest)
	if err != nil {
		t.Fatalf("decode manifest: %v", err)
	}

	byName := make(map[string]layout.FnRecord, len(m.Functions))
	for _, fn := range m.Functions {
		byName[fn.Name] = fn
	}
	main, ok := byName["App.main"]
	if !ok {
		t.Fatalf("no signature for App.main: %+v", m.Functions)
	}
	if main.Convention != "sysv-amd64" {
		t.Errorf("convention: %+v", main)
	}
	// The receiver is the sole parameter: one pointer in the first register.
	if len(main.Params) != 1 || main.Params[0].Reg != "rdi" || main.Params[0].Size != 8 {
		t.Errorf("receiver placement: %+v", main.Params)
	}
	entry, ok := byName[mir.EntryName]
	if !ok {
		t.Fatalf("no signature for the startup function: %+v", m.Functions)
	}
	if len(entry.Params) != 0 || entry.Ret.Reg != "" {
		t.Errorf("startup signature: %+v", entry)
	}
}

func TestCompileArtifactCheckOnlyStopsBeforeEmit(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "app.qast")

	res, err := CompileArtifact(context.Background(), path, Options{CheckOnly: true})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Bag.HasErrors() {
		t.Fatalf("unexpected diagnostics: %+v", res.Bag.Items())
	}
	if res.Object != nil || res.Manifest != nil {
		t.Fatal("check mode must not emit")
	}
}

func TestCompileArtifactReportsCheckerDiagnostics(t *testing.T) {
	dir := t.TempDir()
	path := writeBrokenArtifact(t, dir, "broken.qast")

	res, err := CompileArtifact(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !res.Bag.HasErrors() {
		t.Fatal("expected a diagnostic for an app without main")
	}
	found := false
	for _, d := range res.Bag.Items() {
		if d.Message == diag.MsgAppMissingMain {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing canonical message, got %+v", res.Bag.Items())
	}
	if res.Object != nil {
		t.Fatal("diagnostics must stop emission")
	}
}

func TestCompileArtifactRejectsCorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "junk.qast")
	if err := os.WriteFile(path, []byte("not msgpack"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := CompileArtifact(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !res.Bag.HasErrors() {
		t.Fatal("expected a diagnostic for a corrupt artifact")
	}
	if res.Bag.Items()[0].Code != diag.IOBadArtifact {
		t.Fatalf("wrong code: %+v", res.Bag.Items()[0])
	}
}

func TestCompileArtifactMissingFileIsDiagnosed(t *testing.T) {
	res, err := CompileArtifact(context.Background(), filepath.Join(t.TempDir(), "nope.qast"), Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !res.Bag.HasErrors() || res.Bag.Items()[0].Code != diag.IOLoadFileError {
		t.Fatalf("expected a load diagnostic, got %+v", res.Bag.Items())
	}
}

func TestCompileDirOrdersResultsByPath(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "b.qast")
	writeArtifact(t, dir, "a.qast")

	results, err := CompileDir(context.Background(), dir, Options{Jobs: 2})
	if err != nil {
		t.Fatalf("compile dir: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected two results, got %d", len(results))
	}
	if filepath.Base(results[0].Path) != "a.qast" || filepath.Base(results[1].Path) != "b.qast" {
		t.Fatalf("results out of order: %s, %s", results[0].Path, results[1].Path)
	}
	for _, r := range results {
		if r.Object == nil {
			t.Fatalf("%s: no object", r.Path)
		}
	}
}

func TestDiskCacheHitOnSecondCompile(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "app.qast")
	cache, err := OpenDiskCacheAt(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{Cache: cache}

	first, err := CompileArtifact(context.Background(), path, opts)
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Fatal("cold cache cannot hit")
	}

	second, err := CompileArtifact(context.Background(), path, opts)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached {
		t.Fatal("unchanged artifact must hit the cache")
	}
	if !bytes.Equal(first.Object.Text, second.Object.Text) {
		t.Fatal("cached text differs from compiled text")
	}
	if !bytes.Equal(first.Manifest, second.Manifest) {
		t.Fatal("cached manifest differs from compiled manifest")
	}
}

func TestDiskCacheKeyDependsOnTargetAndContent(t *testing.T) {
	a := ArtifactKey([]byte("unit"), "x86_64-linux-gnu")
	b := ArtifactKey([]byte("unit"), "aarch64-linux-gnu")
	c := ArtifactKey([]byte("unit2"), "x86_64-linux-gnu")
	if a == b {
		t.Fatal("key must vary with target")
	}
	if a == c {
		t.Fatal("key must vary with content")
	}
}

func TestProgressEventsReachDone(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "app.qast")

	var stages []Stage
	_, err := CompileArtifact(context.Background(), path, Options{
		Progress: func(ev Event) { stages = append(stages, ev.Stage) },
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []Stage{StageDecode, StageCheck, StageLower, StageEmit, StageDone}
	if len(stages) != len(want) {
		t.Fatalf("stage sequence: %v", stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stage %d: got %v want %v", i, stages[i], want[i])
		}
	}
}

func TestTargetSelection(t *testing.T) {
	for _, name := range []string{"", "x86_64-linux-gnu", "amd64", "aarch64-linux-gnu", "arm64"} {
		if _, _, err := targetFor(name); err != nil {
			t.Fatalf("%q: %v", name, err)
		}
	}
	if _, _, err := targetFor("riscv64"); err == nil {
		t.Fatal("unknown target must be rejected")
	}
}
