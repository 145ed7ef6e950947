package types

import (
	"fmt"
	"strings"

	"fortio.org/safecast"

	"quill/internal/ast"
	"quill/internal/source"
)

// Builtins stores TypeIDs for primitive types.
type Builtins struct {
	Invalid TypeID
	Unit    TypeID
	Int     TypeID
	Float   TypeID
	Bool    TypeID
	String  TypeID
	Byte    TypeID
}

// FieldInfo is a resolved struct/error field.
type FieldInfo struct {
	Name source.StringID
	Type TypeID
}

// VariantInfo is a resolved enum variant. Payload == NoTypeID for plain
// variants.
type VariantInfo struct {
	Name    source.StringID
	Payload TypeID
}

// NominalInfo carries the resolved shape of a nominal type.
type NominalInfo struct {
	Decl     ast.DeclID
	Name     source.StringID
	Fields   []FieldInfo   // struct, error
	Variants []VariantInfo // enum
}

// FnSig is the parameter/result shape of a function type.
type FnSig struct {
	Params []TypeID
	Ret    TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
// Nominal types intern by declaration identity.
type Interner struct {
	types    []Type
	index    map[typeKey]TypeID
	builtins Builtins

	nominal  map[ast.DeclID]TypeID
	infos    map[TypeID]*NominalInfo
	fnSigs   []FnSig
	fnSigIdx map[string]uint32
}

// NewInterner constructs an interner seeded with built-in primitives.
func NewInterner() *Interner {
	in := &Interner{
		index:    make(map[typeKey]TypeID, 64),
		nominal:  make(map[ast.DeclID]TypeID, 16),
		infos:    make(map[TypeID]*NominalInfo, 16),
		fnSigIdx: make(map[string]uint32, 8),
	}
	in.builtins.Invalid = in.internRaw(Type{Kind: KindInvalid})
	in.builtins.Unit = in.Intern(Type{Kind: KindUnit})
	in.builtins.Int = in.Intern(Type{Kind: KindInt})
	in.builtins.Float = in.Intern(Type{Kind: KindFloat})
	in.builtins.Bool = in.Intern(Type{Kind: KindBool})
	in.builtins.String = in.Intern(Type{Kind: KindString})
	in.builtins.Byte = in.Intern(Type{Kind: KindByte})
	return in
}

// Builtins returns TypeIDs for primitive types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Intern ensures the provided descriptor has a stable TypeID.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	key := typeKey(t)
	if id, ok := in.index[key]; ok {
		return id
	}
	return in.internRaw(t)
}

func (in *Interner) internRaw(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	in.index[typeKey(t)] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

// MakeNullable interns Nullable(elem). Nullability never nests: wrapping an
// already-nullable type returns it unchanged.
func (in *Interner) MakeNullable(elem TypeID) TypeID {
	if elem == NoTypeID {
		return NoTypeID
	}
	if tt, ok := in.Lookup(elem); ok && tt.Kind == KindNullable {
		return elem
	}
	return in.Intern(Type{Kind: KindNullable, Elem: elem})
}

// RegisterNominal interns the nominal type for a declaration, allocating it
// on first use. Shape information is attached later via SetFields and
// SetVariants once the checker has resolved member types.
func (in *Interner) RegisterNominal(kind Kind, decl ast.DeclID, name source.StringID) TypeID {
	if !kind.IsNominal() {
		panic(fmt.Errorf("types: RegisterNominal with %v", kind))
	}
	if id, ok := in.nominal[decl]; ok {
		return id
	}
	id := in.Intern(Type{Kind: kind, Decl: decl})
	in.nominal[decl] = id
	in.infos[id] = &NominalInfo{Decl: decl, Name: name}
	return id
}

// NominalType returns the TypeID registered for a declaration.
func (in *Interner) NominalType(decl ast.DeclID) (TypeID, bool) {
	id, ok := in.nominal[decl]
	return id, ok
}

// Info returns the nominal shape for a struct/enum/trait/error TypeID.
func (in *Interner) Info(id TypeID) (*NominalInfo, bool) {
	info, ok := in.infos[id]
	return info, ok
}

// SetFields records resolved struct/error fields.
func (in *Interner) SetFields(id TypeID, fields []FieldInfo) {
	if info, ok := in.infos[id]; ok {
		info.Fields = fields
	}
}

// SetVariants records resolved enum variants.
func (in *Interner) SetVariants(id TypeID, variants []VariantInfo) {
	if info, ok := in.infos[id]; ok {
		info.Variants = variants
	}
}

// MakeFn interns a function type.
func (in *Interner) MakeFn(params []TypeID, ret TypeID) TypeID {
	var sb strings.Builder
	for _, p := range params {
		fmt.Fprintf(&sb, "%d,", p)
	}
	fmt.Fprintf(&sb, "->%d", ret)
	key := sb.String()

	sig, ok := in.fnSigIdx[key]
	if !ok {
		lenSigs, err := safecast.Conv[uint32](len(in.fnSigs))
		if err != nil {
			panic(fmt.Errorf("len(fnSigs) overflow: %w", err))
		}
		sig = lenSigs
		in.fnSigs = append(in.fnSigs, FnSig{Params: params, Ret: ret})
		in.fnSigIdx[key] = sig
	}
	return in.Intern(Type{Kind: KindFn, Sig: sig})
}

// FnSignature returns the signature of a function type.
func (in *Interner) FnSignature(id TypeID) (FnSig, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindFn || int(tt.Sig) >= len(in.fnSigs) {
		return FnSig{}, false
	}
	return in.fnSigs[tt.Sig], true
}

type typeKey struct {
	Kind Kind
	Elem TypeID
	Key  TypeID
	Decl ast.DeclID
	Sig  uint32
}
