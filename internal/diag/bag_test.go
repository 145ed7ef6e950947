package diag

import (
	"testing"

	"quill/internal/source"
)

func TestBagCapAndErrors(t *testing.T) {
	b := NewBag(2)
	if !b.Add(NewError(SemaTypeMismatch, source.Span{}, MsgTypeMismatch)) {
		t.Fatalf("first add must succeed")
	}
	if !b.Add(New(SevWarning, SemaInfo, source.Span{}, "note")) {
		t.Fatalf("second add must succeed")
	}
	if b.Add(NewError(SemaError, source.Span{}, "overflow")) {
		t.Fatalf("cap must reject the third diagnostic")
	}
	if !b.HasErrors() {
		t.Fatalf("expected HasErrors")
	}
}

func TestBagSortDeterministic(t *testing.T) {
	b := NewBag(8)
	b.Add(NewError(SemaAlreadyDeclared, source.Span{File: 1, Start: 20, End: 25}, MsgAlreadyDeclared))
	b.Add(NewError(SemaTypeMismatch, source.Span{File: 0, Start: 5, End: 6}, MsgTypeMismatch))
	b.Add(NewError(SemaCannotInterpolate, source.Span{File: 0, Start: 1, End: 2}, MsgCannotInterpolate))
	b.Sort()

	items := b.Items()
	if items[0].Code != SemaCannotInterpolate || items[1].Code != SemaTypeMismatch || items[2].Code != SemaAlreadyDeclared {
		t.Fatalf("unexpected order: %v %v %v", items[0].Code, items[1].Code, items[2].Code)
	}
}

func TestBagDedup(t *testing.T) {
	sp := source.Span{File: 0, Start: 3, End: 9}
	b := NewBag(8)
	b.Add(NewError(SemaTypeMismatch, sp, MsgTypeMismatch))
	b.Add(NewError(SemaTypeMismatch, sp, MsgTypeMismatch))
	b.Dedup()
	if b.Len() != 1 {
		t.Fatalf("expected 1 after dedup, got %d", b.Len())
	}
}

func TestCodeID(t *testing.T) {
	if got := SemaTypeMismatch.ID(); got != "SEM3002" {
		t.Fatalf("ID = %q", got)
	}
	if got := LowInternal.ID(); got != "LOW4001" {
		t.Fatalf("ID = %q", got)
	}
}
