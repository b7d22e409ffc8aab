// Package decoder walks a type registry to decode SCALE payloads whose
// schema is only known at runtime.
package decoder

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"unicode/utf8"

	"paraScope/internal/registry"
	"paraScope/internal/scale"
)

var (
	ErrUnknownVariant         = errors.New("unknown variant")
	ErrUnsupportedBitSequence = errors.New("unsupported bit sequence")
	ErrCorruptPayload         = errors.New("corrupt payload")
)

// MaxDepth bounds type nesting during a walk.
const MaxDepth = 256

// Visitor receives every leaf of a walk. path is reused between calls and
// data borrows the input, so both must be copied to be retained.
type Visitor func(path []string, data []byte, typeID uint32) error

// walker is shared by value and visitor mode. In value mode build is set and
// every step returns its subtree; in visitor mode leaves go to visit.
type walker struct {
	reg   *registry.Registry
	cur   *scale.Cursor
	path  []string
	depth int
	build bool
	visit Visitor
}

// Decode reads one value of type id and returns its tree.
func Decode(reg *registry.Registry, id uint32, c *scale.Cursor) (Value, error) {
	w := &walker{reg: reg, cur: c, build: true}
	return w.walk(id)
}

// Walk reads one value of type id and reports its leaves to visit.
func Walk(reg *registry.Registry, id uint32, c *scale.Cursor, visit Visitor) error {
	w := &walker{reg: reg, cur: c, visit: visit}
	_, err := w.walk(id)
	return err
}

// Skip consumes one value of type id.
func Skip(reg *registry.Registry, id uint32, c *scale.Cursor) error {
	w := &walker{reg: reg, cur: c}
	_, err := w.walk(id)
	return err
}

func (w *walker) push(seg string) { w.path = append(w.path, seg) }
func (w *walker) pop()            { w.path = w.path[:len(w.path)-1] }

func (w *walker) leaf(data []byte, id uint32) error {
	if w.visit == nil {
		return nil
	}
	return w.visit(w.path, data, id)
}

func (w *walker) walk(id uint32) (Value, error) {
	if w.depth >= MaxDepth {
		return Value{}, fmt.Errorf("type %d nested deeper than %d: %w", id, MaxDepth, ErrCorruptPayload)
	}
	w.depth++
	defer func() { w.depth-- }()

	t, err := w.reg.Resolve(id)
	if err != nil {
		return Value{}, err
	}
	d := &t.Def
	switch d.Kind {
	case registry.KindComposite:
		return w.composite(id, d.Fields)
	case registry.KindVariant:
		return w.variant(t)
	case registry.KindSequence:
		n, err := w.cur.ReadCompactU64()
		if err != nil {
			return Value{}, fmt.Errorf("sequence length: %w", err)
		}
		return w.elements(id, d.Elem, n)
	case registry.KindArray:
		return w.elements(id, d.Elem, uint64(d.Len))
	case registry.KindTuple:
		return w.tuple(id, d.Tuple)
	case registry.KindPrimitive:
		return w.primitive(id, d.Primitive)
	case registry.KindCompact:
		return w.compact(id, d.Elem)
	case registry.KindBitSequence:
		return w.bits(id, d)
	default:
		return Value{}, fmt.Errorf("type %d has %s: %w", id, d.Kind, registry.ErrCorruptMetadata)
	}
}

func (w *walker) composite(id uint32, fields []registry.Field) (Value, error) {
	var obj Value
	if w.build {
		obj = Object(id)
	}
	if err := w.fields(&obj, fields); err != nil {
		return Value{}, err
	}
	return obj, nil
}

// fields decodes members left to right. Unnamed members are keyed by their
// position.
func (w *walker) fields(obj *Value, fields []registry.Field) error {
	for i, f := range fields {
		name := f.Name
		if name == "" {
			name = strconv.Itoa(i)
		}
		w.push(name)
		v, err := w.walk(f.TypeID)
		w.pop()
		if err != nil {
			return err
		}
		if w.build {
			obj.Fields = append(obj.Fields, Field{Name: name, Value: v})
		}
	}
	return nil
}

func (w *walker) variant(t *registry.Type) (Value, error) {
	tag, err := w.cur.ReadU8()
	if err != nil {
		return Value{}, fmt.Errorf("%s discriminant: %w", t.PathString(), err)
	}
	v, ok := t.Def.VariantByIndex(tag)
	if !ok {
		return Value{}, fmt.Errorf("%s index %d: %w", t.PathString(), tag, ErrUnknownVariant)
	}
	w.push(v.Name)
	inner := Value{Kind: KindObject}
	err = w.fields(&inner, v.Fields)
	w.pop()
	if err != nil {
		return Value{}, err
	}
	if !w.build {
		return Value{}, nil
	}
	return Object(t.ID, Field{Name: v.Name, Value: inner}), nil
}

func (w *walker) elements(id, elem uint32, n uint64) (Value, error) {
	if w.reg.IsU8(elem) {
		if n > uint64(w.cur.Len()) {
			return Value{}, fmt.Errorf("byte run of %d, %d left: %w", n, w.cur.Len(), scale.ErrEndOfInput)
		}
		b, err := w.cur.ReadBytes(int(n))
		if err != nil {
			return Value{}, err
		}
		if err := w.leaf(b, id); err != nil {
			return Value{}, err
		}
		return Scale(b), nil
	}

	// Each element takes at least one byte, so a length beyond the input is
	// truncation rather than a huge run of empty values.
	if n > uint64(w.cur.Len()) {
		return Value{}, fmt.Errorf("%d elements, %d bytes left: %w", n, w.cur.Len(), scale.ErrEndOfInput)
	}
	var obj Value
	if w.build {
		obj = Value{Kind: KindObject, Fields: make([]Field, 0, n+1)}
		obj.Fields = append(obj.Fields, Field{Name: TypeKey, Value: U32(id)})
	}
	for i := uint64(0); i < n; i++ {
		name := strconv.FormatUint(i, 10)
		before := w.cur.Len()
		w.push(name)
		v, err := w.walk(elem)
		w.pop()
		if err != nil {
			return Value{}, err
		}
		if w.cur.Len() >= before {
			return Value{}, fmt.Errorf("element %d of type %d consumed nothing: %w", i, elem, ErrCorruptPayload)
		}
		if w.build {
			obj.Fields = append(obj.Fields, Field{Name: name, Value: v})
		}
	}
	return obj, nil
}

func (w *walker) tuple(id uint32, ids []uint32) (Value, error) {
	var obj Value
	if w.build {
		obj = Object(id)
	}
	for i, elem := range ids {
		name := strconv.Itoa(i)
		w.push(name)
		v, err := w.walk(elem)
		w.pop()
		if err != nil {
			return Value{}, err
		}
		if w.build {
			obj.Fields = append(obj.Fields, Field{Name: name, Value: v})
		}
	}
	return obj, nil
}

func (w *walker) primitive(id uint32, p registry.Primitive) (Value, error) {
	if p == registry.PrimStr {
		b, err := w.cur.ReadLengthPrefixed()
		if err != nil {
			return Value{}, fmt.Errorf("str: %w", err)
		}
		if !utf8.Valid(b) {
			return Value{}, fmt.Errorf("str is not utf-8: %w", scale.ErrInvalidEncoding)
		}
		if err := w.leaf(b, id); err != nil {
			return Value{}, err
		}
		return Str(b), nil
	}

	width := p.Width()
	if width == 0 {
		return Value{}, fmt.Errorf("primitive %s: %w", p, registry.ErrCorruptMetadata)
	}
	b, err := w.cur.ReadBytes(width)
	if err != nil {
		return Value{}, fmt.Errorf("%s: %w", p, err)
	}
	if err := w.leaf(b, id); err != nil {
		return Value{}, err
	}
	if !w.build && p != registry.PrimBool && p != registry.PrimChar {
		return Value{}, nil
	}
	return primitiveValue(p, b)
}

func primitiveValue(p registry.Primitive, b []byte) (Value, error) {
	switch p {
	case registry.PrimBool:
		switch b[0] {
		case 0:
			return Bool(false), nil
		case 1:
			return Bool(true), nil
		}
		return Value{}, fmt.Errorf("bool byte 0x%02x: %w", b[0], scale.ErrInvalidEncoding)
	case registry.PrimChar:
		r := rune(leUint(b))
		if !utf8.ValidRune(r) {
			return Value{}, fmt.Errorf("char %#x: %w", uint32(r), scale.ErrInvalidEncoding)
		}
		return Value{Kind: KindChar, Char: r}, nil
	case registry.PrimU8:
		return Value{Kind: KindU8, Uint: leUint(b)}, nil
	case registry.PrimU16:
		return Value{Kind: KindU16, Uint: leUint(b)}, nil
	case registry.PrimU32:
		return Value{Kind: KindU32, Uint: leUint(b)}, nil
	case registry.PrimU64:
		return Value{Kind: KindU64, Uint: leUint(b)}, nil
	case registry.PrimU128:
		return Value{Kind: KindU128, Big: leBig(b, false)}, nil
	case registry.PrimU256:
		return Value{Kind: KindU256, Big: leBig(b, false)}, nil
	case registry.PrimI8:
		return Value{Kind: KindI8, Int: int64(int8(b[0]))}, nil
	case registry.PrimI16:
		return Value{Kind: KindI16, Int: int64(int16(leUint(b)))}, nil
	case registry.PrimI32:
		return Value{Kind: KindI32, Int: int64(int32(leUint(b)))}, nil
	case registry.PrimI64:
		return Value{Kind: KindI64, Int: int64(leUint(b))}, nil
	case registry.PrimI128:
		return Value{Kind: KindI128, Big: leBig(b, true)}, nil
	case registry.PrimI256:
		return Value{Kind: KindI256, Big: leBig(b, true)}, nil
	}
	return Value{}, fmt.Errorf("primitive %s: %w", p, registry.ErrCorruptMetadata)
}

// compact reports the raw encoding as the leaf. Value mode narrows it to the
// width of the wrapped integer.
func (w *walker) compact(id, elem uint32) (Value, error) {
	p, err := w.compactTarget(elem)
	if err != nil {
		return Value{}, err
	}
	raw, err := w.cur.ReadCompactBytes()
	if err != nil {
		return Value{}, fmt.Errorf("compact: %w", err)
	}
	if err := w.leaf(raw, id); err != nil {
		return Value{}, err
	}
	if !w.build {
		return Value{}, nil
	}
	return compactValue(p, raw)
}

// compactTarget resolves through single-field wrappers to the integer
// primitive a compact encodes.
func (w *walker) compactTarget(id uint32) (registry.Primitive, error) {
	for i := 0; i < MaxDepth; i++ {
		t, err := w.reg.Resolve(id)
		if err != nil {
			return 0, err
		}
		switch {
		case t.Def.Kind == registry.KindPrimitive:
			return t.Def.Primitive, nil
		case t.Def.Kind == registry.KindComposite && len(t.Def.Fields) == 1:
			id = t.Def.Fields[0].TypeID
		case t.Def.Kind == registry.KindTuple && len(t.Def.Tuple) == 1:
			id = t.Def.Tuple[0]
		default:
			return 0, fmt.Errorf("compact over %s %s: %w", t.Def.Kind, t.PathString(), registry.ErrCorruptMetadata)
		}
	}
	return 0, fmt.Errorf("compact wrapper chain too deep: %w", registry.ErrCorruptMetadata)
}

func compactValue(p registry.Primitive, raw []byte) (Value, error) {
	switch p {
	case registry.PrimU8, registry.PrimU16, registry.PrimU32, registry.PrimU64:
		v, err := scale.CompactU64(raw)
		if err != nil {
			return Value{}, err
		}
		if bits := uint(p.Width() * 8); bits < 64 && v>>bits != 0 {
			return Value{}, fmt.Errorf("compact %d overflows %s: %w", v, p, scale.ErrInvalidEncoding)
		}
		k := map[registry.Primitive]Kind{
			registry.PrimU8: KindU8, registry.PrimU16: KindU16,
			registry.PrimU32: KindU32, registry.PrimU64: KindU64,
		}[p]
		return Value{Kind: k, Uint: v}, nil
	case registry.PrimU128:
		v, err := scale.CompactU128(raw)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindU128, Big: v.Big()}, nil
	case registry.PrimU256:
		if raw[0]&0b11 == 0b11 {
			return Value{Kind: KindU256, Big: leBig(raw[1:], false)}, nil
		}
		v, err := scale.CompactU64(raw)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindU256, Big: new(big.Int).SetUint64(v)}, nil
	}
	return Value{}, fmt.Errorf("compact %s: %w", p, scale.ErrInvalidEncoding)
}

// bits decodes a bit vector stored in u8 words: compact bit count followed
// by ceil(n/8) bytes. Wider stores are rejected.
func (w *walker) bits(id uint32, d *registry.TypeDef) (Value, error) {
	if !w.reg.IsU8(d.BitStore) {
		return Value{}, fmt.Errorf("bit store type %d: %w", d.BitStore, ErrUnsupportedBitSequence)
	}
	n, err := w.cur.ReadCompactU64()
	if err != nil {
		return Value{}, fmt.Errorf("bit count: %w", err)
	}
	size := (n + 7) / 8
	if size > uint64(w.cur.Len()) {
		return Value{}, fmt.Errorf("%d bits, %d bytes left: %w", n, w.cur.Len(), scale.ErrEndOfInput)
	}
	b, err := w.cur.ReadBytes(int(size))
	if err != nil {
		return Value{}, err
	}
	if err := w.leaf(b, id); err != nil {
		return Value{}, err
	}
	return Scale(b), nil
}

func leUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func leBig(b []byte, signed bool) *big.Int {
	be := make([]byte, len(b))
	for i := range b {
		be[len(b)-1-i] = b[i]
	}
	v := new(big.Int).SetBytes(be)
	if signed && len(b) > 0 && b[len(b)-1]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	return v
}
