package backend

import (
	"bytes"
	"testing"
)

func newAmd64ForTest() (*amd64, *Object) {
	obj := &Object{Arch: ArchAMD64}
	return newAmd64(&obj.Text, obj), obj
}

func wantBytes(t *testing.T, got, want []byte) {
	t.Helper()
	if !bytes.Equal(got, want) {
		t.Fatalf("encoding mismatch:\n got % x\nwant % x", got, want)
	}
}

func TestAmd64Frame(t *testing.T) {
	a, _ := newAmd64ForTest()
	a.prologue(32)
	a.epilogue()
	wantBytes(t, *a.text, []byte{
		0x55,             // push rbp
		0x48, 0x89, 0xE5, // mov rbp, rsp
		0x48, 0x81, 0xEC, 0x20, 0x00, 0x00, 0x00, // sub rsp, 32
		0x48, 0x89, 0xEC, // mov rsp, rbp
		0x5D, // pop rbp
		0xC3, // ret
	})
}

func TestAmd64Moves(t *testing.T) {
	a, _ := newAmd64ForTest()
	a.movRegReg("rdi", "rax")
	a.movImm("rax", 7)
	wantBytes(t, *a.text, []byte{
		0x48, 0x89, 0xC7, // mov rdi, rax
		0x48, 0xB8, 0x07, 0, 0, 0, 0, 0, 0, 0, // movabs rax, 7
	})
}

func TestAmd64SlotAccess(t *testing.T) {
	a, _ := newAmd64ForTest()
	a.loadSlot("rax", -8)
	a.storeSlot("r10", -16)
	wantBytes(t, *a.text, []byte{
		0x48, 0x8B, 0x85, 0xF8, 0xFF, 0xFF, 0xFF, // mov rax, [rbp-8]
		0x4C, 0x89, 0x95, 0xF0, 0xFF, 0xFF, 0xFF, // mov [rbp-16], r10
	})
}

func TestAmd64StackArgsUseSIB(t *testing.T) {
	a, _ := newAmd64ForTest()
	a.storeStackArg("rax", 8)
	a.leaStack("rdi", 8)
	wantBytes(t, *a.text, []byte{
		0x48, 0x89, 0x84, 0x24, 0x08, 0, 0, 0, // mov [rsp+8], rax
		0x48, 0x8D, 0xBC, 0x24, 0x08, 0, 0, 0, // lea rdi, [rsp+8]
	})
}

func TestAmd64Arithmetic(t *testing.T) {
	a, _ := newAmd64ForTest()
	a.add("rax", "r10")
	a.sub("rax", "r10")
	a.mul("rax", "r10")
	wantBytes(t, *a.text, []byte{
		0x4C, 0x01, 0xD0, // add rax, r10
		0x4C, 0x29, 0xD0, // sub rax, r10
		0x49, 0x0F, 0xAF, 0xC2, // imul rax, r10
	})
}

func TestAmd64Compare(t *testing.T) {
	a, _ := newAmd64ForTest()
	a.cmpSet(condEq, "rax", "rax", "r10")
	wantBytes(t, *a.text, []byte{
		0x4C, 0x39, 0xD0, // cmp rax, r10
		0x40, 0x0F, 0x94, 0xC0, // sete al
		0x48, 0x0F, 0xB6, 0xC0, // movzx rax, al
	})
}

func TestAmd64BranchPatching(t *testing.T) {
	a, _ := newAmd64ForTest()
	p := a.jump()
	a.patchTo(p, 0)
	// rel32 is relative to the end of the instruction.
	wantBytes(t, *a.text, []byte{0xE9, 0xFB, 0xFF, 0xFF, 0xFF})

	a, _ = newAmd64ForTest()
	p = a.branchNonZero("rax")
	a.patchTo(p, a.offset())
	wantBytes(t, *a.text, []byte{
		0x48, 0x85, 0xC0, // test rax, rax
		0x0F, 0x85, 0x00, 0x00, 0x00, 0x00, // jnz +0
	})
}

func TestAmd64CallRelocations(t *testing.T) {
	a, obj := newAmd64ForTest()
	a.callSym("quill_rt_alloc")
	a.addrOfSym("rdi", "quill.str.0")

	wantBytes(t, (*a.text)[:5], []byte{0xE8, 0, 0, 0, 0})
	if len(obj.Relocs) != 2 {
		t.Fatalf("expected two relocations, got %d", len(obj.Relocs))
	}
	call := obj.Relocs[0]
	if call.Kind != RelocCall || call.Offset != 1 || call.Symbol != "quill_rt_alloc" {
		t.Fatalf("call relocation: %+v", call)
	}
	addr := obj.Relocs[1]
	if addr.Kind != RelocAddr || addr.Offset != 7 || addr.Symbol != "quill.str.0" {
		t.Fatalf("addr relocation: %+v", addr)
	}
}

func TestAmd64FloatOps(t *testing.T) {
	a, _ := newAmd64ForTest()
	a.fmovToFloat("xmm0", "rax")
	a.floadSlot("xmm0", -8)
	a.fadd("xmm0", "xmm1")
	wantBytes(t, *a.text, []byte{
		0x66, 0x48, 0x0F, 0x6E, 0xC0, // movq xmm0, rax
		0xF2, 0x0F, 0x10, 0x85, 0xF8, 0xFF, 0xFF, 0xFF, // movsd xmm0, [rbp-8]
		0xF2, 0x0F, 0x58, 0xC1, // addsd xmm0, xmm1
	})
}

func TestAmd64Trap(t *testing.T) {
	a, _ := newAmd64ForTest()
	a.trap()
	wantBytes(t, *a.text, []byte{0x0F, 0x0B})
}
