package source

import (
	"testing"
)

func TestAddVirtualAndResolve(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("test.ql", []byte("let x = 1\nlet y = 2\n"))

	f := fs.Get(id)
	if f == nil {
		t.Fatalf("expected file for id %d", id)
	}
	if f.Flags&FileVirtual == 0 {
		t.Fatalf("expected virtual flag")
	}

	// "let y" starts at offset 10, second line.
	start, end := fs.Resolve(Span{File: id, Start: 10, End: 15})
	if start.Line != 2 || start.Col != 1 {
		t.Fatalf("start = %+v, want 2:1", start)
	}
	if end.Line != 2 || end.Col != 6 {
		t.Fatalf("end = %+v, want 2:6", end)
	}
}

func TestResolveFirstLine(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("one.ql", []byte("app A {}"))

	start, _ := fs.Resolve(Span{File: id, Start: 0, End: 3})
	if start.Line != 1 || start.Col != 1 {
		t.Fatalf("start = %+v, want 1:1", start)
	}
}

func TestNormalizeCRLF(t *testing.T) {
	out, changed := normalizeCRLF([]byte("a\r\nb\rc"))
	if !changed {
		t.Fatalf("expected change")
	}
	if string(out) != "a\nb\rc" {
		t.Fatalf("got %q", out)
	}
}

func TestInternerStableIDs(t *testing.T) {
	in := NewInterner()
	a := in.Intern("main")
	b := in.Intern("main")
	if a != b {
		t.Fatalf("expected stable ID, got %d and %d", a, b)
	}
	if s := in.MustLookup(a); s != "main" {
		t.Fatalf("lookup = %q", s)
	}
	if in.Intern("") != NoStringID {
		t.Fatalf("empty string must map to NoStringID")
	}
}
