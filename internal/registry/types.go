package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCorruptMetadata = errors.New("corrupt metadata")
	ErrVersionMismatch = errors.New("metadata version mismatch")
)

// DefKind values follow the scale-info TypeDef discriminants.
type DefKind uint8

const (
	KindComposite DefKind = iota
	KindVariant
	KindSequence
	KindArray
	KindTuple
	KindPrimitive
	KindCompact
	KindBitSequence
)

func (k DefKind) String() string {
	switch k {
	case KindComposite:
		return "composite"
	case KindVariant:
		return "variant"
	case KindSequence:
		return "sequence"
	case KindArray:
		return "array"
	case KindTuple:
		return "tuple"
	case KindPrimitive:
		return "primitive"
	case KindCompact:
		return "compact"
	case KindBitSequence:
		return "bitsequence"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

type Primitive uint8

const (
	PrimBool Primitive = iota
	PrimChar
	PrimStr
	PrimU8
	PrimU16
	PrimU32
	PrimU64
	PrimU128
	PrimU256
	PrimI8
	PrimI16
	PrimI32
	PrimI64
	PrimI128
	PrimI256
)

var primitiveNames = [...]string{
	"bool", "char", "str", "u8", "u16", "u32", "u64", "u128", "u256",
	"i8", "i16", "i32", "i64", "i128", "i256",
}

func (p Primitive) String() string {
	if int(p) < len(primitiveNames) {
		return primitiveNames[p]
	}
	return fmt.Sprintf("primitive(%d)", uint8(p))
}

// Width returns the encoded byte width of fixed-size primitives, 0 for str.
func (p Primitive) Width() int {
	switch p {
	case PrimBool, PrimU8, PrimI8:
		return 1
	case PrimU16, PrimI16:
		return 2
	case PrimChar, PrimU32, PrimI32:
		return 4
	case PrimU64, PrimI64:
		return 8
	case PrimU128, PrimI128:
		return 16
	case PrimU256, PrimI256:
		return 32
	default:
		return 0
	}
}

// Field is a composite or variant member. Name is empty for tuple-like fields.
type Field struct {
	Name     string
	TypeID   uint32
	TypeName string
}

type Variant struct {
	Name   string
	Index  uint8
	Fields []Field
}

type TypeParam struct {
	Name    string
	TypeID  uint32
	HasType bool
}

// TypeDef describes the shape of one registry entry. Only the members that
// belong to Kind are meaningful.
type TypeDef struct {
	Kind      DefKind
	Fields    []Field
	Variants  []Variant
	Elem      uint32
	Len       uint32
	Tuple     []uint32
	Primitive Primitive
	BitStore  uint32
	BitOrder  uint32
}

// VariantByIndex finds the variant whose discriminant equals idx. Indices are
// not guaranteed to be contiguous.
func (d *TypeDef) VariantByIndex(idx uint8) (*Variant, bool) {
	for i := range d.Variants {
		if d.Variants[i].Index == idx {
			return &d.Variants[i], true
		}
	}
	return nil, false
}

func (d *TypeDef) VariantByName(name string) (*Variant, bool) {
	for i := range d.Variants {
		if d.Variants[i].Name == name {
			return &d.Variants[i], true
		}
	}
	return nil, false
}

type Type struct {
	ID     uint32
	Path   []string
	Params []TypeParam
	Def    TypeDef
}

// Param returns the type id bound to a generic parameter name.
func (t *Type) Param(name string) (uint32, bool) {
	for _, p := range t.Params {
		if p.Name == name && p.HasType {
			return p.TypeID, true
		}
	}
	return 0, false
}

func (t *Type) PathString() string {
	return strings.Join(t.Path, "::")
}
