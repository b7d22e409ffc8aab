package decoder

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"paraScope/internal/registry"
	"paraScope/internal/registry/registrytest"
	"paraScope/internal/scale"
)

func TestPrimitiveRoundTrip(t *testing.T) {
	minus2_128 := new(big.Int).Neg(big.NewInt(2))
	u128 := new(big.Int).Lsh(big.NewInt(1), 100)

	cases := []struct {
		prim registry.Primitive
		data []byte
		want func(Value) bool
	}{
		{registry.PrimBool, []byte{1}, func(v Value) bool { return v.Kind == KindBool && v.Bool }},
		{registry.PrimChar, scale.AppendU32(nil, 'ß'), func(v Value) bool { return v.Kind == KindChar && v.Char == 'ß' }},
		{registry.PrimStr, scale.AppendString(nil, "dot"), func(v Value) bool { return v.Kind == KindStr && string(v.Bytes) == "dot" }},
		{registry.PrimU8, []byte{0xfe}, func(v Value) bool { return v.Kind == KindU8 && v.Uint == 0xfe }},
		{registry.PrimU16, scale.AppendU16(nil, 0xbeef), func(v Value) bool { return v.Kind == KindU16 && v.Uint == 0xbeef }},
		{registry.PrimU32, scale.AppendU32(nil, 0xdeadbeef), func(v Value) bool { return v.Kind == KindU32 && v.Uint == 0xdeadbeef }},
		{registry.PrimU64, scale.AppendU64(nil, 1<<63), func(v Value) bool { return v.Kind == KindU64 && v.Uint == 1<<63 }},
		{registry.PrimU128, leBytes(u128, 16), func(v Value) bool { return v.Kind == KindU128 && v.Big.Cmp(u128) == 0 }},
		{registry.PrimU256, leBytes(u128, 32), func(v Value) bool { return v.Kind == KindU256 && v.Big.Cmp(u128) == 0 }},
		{registry.PrimI8, []byte{0xff}, func(v Value) bool { return v.Kind == KindI8 && v.Int == -1 }},
		{registry.PrimI16, scale.AppendU16(nil, 0xfffe), func(v Value) bool { return v.Kind == KindI16 && v.Int == -2 }},
		{registry.PrimI32, scale.AppendU32(nil, 0xfffffffd), func(v Value) bool { return v.Kind == KindI32 && v.Int == -3 }},
		{registry.PrimI64, scale.AppendU64(nil, 0xfffffffffffffffc), func(v Value) bool { return v.Kind == KindI64 && v.Int == -4 }},
		{registry.PrimI128, []byte{0xfe, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			func(v Value) bool { return v.Kind == KindI128 && v.Big.Cmp(minus2_128) == 0 }},
	}
	for _, tc := range cases {
		b := registrytest.NewBuilder()
		id := b.Prim(tc.prim)
		c := scale.NewCursor(tc.data)
		v, err := Decode(b.Registry(), id, c)
		if err != nil {
			t.Fatalf("%s: decode: %v", tc.prim, err)
		}
		if !tc.want(v) {
			t.Fatalf("%s: unexpected value %+v", tc.prim, v)
		}
		if !c.Empty() {
			t.Fatalf("%s: %d bytes left", tc.prim, c.Len())
		}
	}
}

func leBytes(v *big.Int, width int) []byte {
	be := v.Bytes()
	out := make([]byte, width)
	for i := range be {
		out[i] = be[len(be)-1-i]
	}
	return out
}

func TestInvalidPrimitives(t *testing.T) {
	b := registrytest.NewBuilder()
	boolID := b.Prim(registry.PrimBool)
	strID := b.Prim(registry.PrimStr)
	reg := b.Registry()

	if _, err := Decode(reg, boolID, scale.NewCursor([]byte{2})); !errors.Is(err, scale.ErrInvalidEncoding) {
		t.Fatalf("bool 2: expected invalid encoding, got %v", err)
	}
	if _, err := Decode(reg, strID, scale.NewCursor([]byte{0x04, 0xff})); !errors.Is(err, scale.ErrInvalidEncoding) {
		t.Fatalf("bad utf-8: expected invalid encoding, got %v", err)
	}
	if _, err := Decode(reg, strID, scale.NewCursor([]byte{0x08, 'a'})); !errors.Is(err, scale.ErrEndOfInput) {
		t.Fatalf("short str: expected end of input, got %v", err)
	}
}

func collect(t *testing.T, reg *registry.Registry, id uint32, data []byte) []Leaf {
	t.Helper()
	leaves, err := Leaves(reg, id, scale.NewCursor(data))
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return leaves
}

func TestCompositeFieldOrder(t *testing.T) {
	b := registrytest.NewBuilder()
	u8 := b.Prim(registry.PrimU8)
	u32 := b.Prim(registry.PrimU32)
	str := b.Prim(registry.PrimStr)
	id := b.Composite(nil, registrytest.F("a", u8), registrytest.F("b", u32), registrytest.U(str))

	data := []byte{7}
	data = scale.AppendU32(data, 9)
	data = scale.AppendString(data, "x")
	leaves := collect(t, b.Registry(), id, data)

	want := []string{"a", "b", "2"}
	if len(leaves) != len(want) {
		t.Fatalf("leaves: %+v", leaves)
	}
	for i, l := range leaves {
		if l.Path != want[i] {
			t.Fatalf("leaf %d path %q, want %q", i, l.Path, want[i])
		}
	}
	if string(leaves[2].Data) != "x" || leaves[2].TypeID != str {
		t.Fatalf("str leaf: %+v", leaves[2])
	}
}

func TestVariantReportsSelectedOnly(t *testing.T) {
	b := registrytest.NewBuilder()
	u8 := b.Prim(registry.PrimU8)
	u16 := b.Prim(registry.PrimU16)
	id := b.Variant(registrytest.Path("demo", "Choice"),
		registrytest.V("First", 0, registrytest.F("x", u8)),
		registrytest.V("Second", 5, registrytest.F("y", u16), registrytest.F("z", u8)),
	)
	data := []byte{5}
	data = scale.AppendU16(data, 300)
	data = append(data, 1)

	leaves := collect(t, b.Registry(), id, data)
	if len(leaves) != 2 || leaves[0].Path != "Second.y" || leaves[1].Path != "Second.z" {
		t.Fatalf("leaves: %+v", leaves)
	}

	v, err := Decode(b.Registry(), id, scale.NewCursor(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	name, inner, ok := v.Variant()
	if !ok || name != "Second" {
		t.Fatalf("variant: %q %v", name, ok)
	}
	if y, _ := inner.Get("y"); y.Uint != 300 {
		t.Fatalf("y = %d", y.Uint)
	}
	if ty, ok := v.TypeID(); !ok || ty != id {
		t.Fatalf("type id %d %v", ty, ok)
	}
}

func TestUnknownVariant(t *testing.T) {
	b := registrytest.NewBuilder()
	id := b.Variant(registrytest.Path("demo", "E"), registrytest.V("A", 0), registrytest.V("C", 2))
	if _, err := Decode(b.Registry(), id, scale.NewCursor([]byte{1})); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("expected unknown variant, got %v", err)
	}
}

func TestSequenceCallbacks(t *testing.T) {
	b := registrytest.NewBuilder()
	u8 := b.Prim(registry.PrimU8)
	u16 := b.Prim(registry.PrimU16)
	bytesID := b.Sequence(u8)
	wordsID := b.Sequence(u16)
	reg := b.Registry()

	leaves := collect(t, reg, bytesID, []byte{0x14, 1, 2, 3, 4, 5})
	if len(leaves) != 1 || len(leaves[0].Data) != 5 || leaves[0].Path != "" {
		t.Fatalf("u8 sequence leaves: %+v", leaves)
	}

	data := scale.AppendCompact(nil, 3)
	for _, w := range []uint16{1, 2, 3} {
		data = scale.AppendU16(data, w)
	}
	leaves = collect(t, reg, wordsID, data)
	if len(leaves) != 3 {
		t.Fatalf("u16 sequence leaves: %+v", leaves)
	}
	for i, l := range leaves {
		if l.Path != string(rune('0'+i)) || len(l.Data) != 2 {
			t.Fatalf("leaf %d: %+v", i, l)
		}
	}
}

func TestArrayHasNoPrefix(t *testing.T) {
	b := registrytest.NewBuilder()
	u8 := b.Prim(registry.PrimU8)
	id := b.Array(4, u8)
	c := scale.NewCursor([]byte{9, 8, 7, 6, 5})
	v, err := Decode(b.Registry(), id, c)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Kind != KindScale || len(v.Bytes) != 4 || c.Len() != 1 {
		t.Fatalf("array value %+v, left %d", v, c.Len())
	}
}

func TestForwardProgress(t *testing.T) {
	b := registrytest.NewBuilder()
	unit := b.Tuple()
	units := b.Sequence(unit)
	if _, err := Decode(b.Registry(), units, scale.NewCursor([]byte{0x08, 0, 0})); !errors.Is(err, ErrCorruptPayload) {
		t.Fatalf("expected corrupt payload, got %v", err)
	}

	loop := b.Reserve()
	b.Set(loop, registrytest.Path("demo", "Loop"), registry.TypeDef{
		Kind:   registry.KindComposite,
		Fields: []registry.Field{registrytest.F("next", loop)},
	})
	if _, err := Decode(b.Registry(), loop, scale.NewCursor([]byte{1})); !errors.Is(err, ErrCorruptPayload) {
		t.Fatalf("expected corrupt payload for self reference, got %v", err)
	}
}

func TestSequenceLengthBeyondInput(t *testing.T) {
	b := registrytest.NewBuilder()
	u32 := b.Prim(registry.PrimU32)
	id := b.Sequence(u32)
	data := scale.AppendCompact(nil, 1<<30)
	if _, err := Decode(b.Registry(), id, scale.NewCursor(data)); !errors.Is(err, scale.ErrEndOfInput) {
		t.Fatalf("expected end of input, got %v", err)
	}
}

func TestBitSequence(t *testing.T) {
	b := registrytest.NewBuilder()
	u8 := b.Prim(registry.PrimU8)
	u32 := b.Prim(registry.PrimU32)
	order := b.Variant(registrytest.Path("bitvec", "order", "Lsb0"))
	bytewise := b.BitSequence(u8, order)
	wordwise := b.BitSequence(u32, order)
	reg := b.Registry()

	c := scale.NewCursor([]byte{0x28, 0xff, 0x03, 0xaa})
	v, err := Decode(reg, bytewise, c)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Kind != KindScale || len(v.Bytes) != 2 || c.Len() != 1 {
		t.Fatalf("bits %+v left %d", v, c.Len())
	}

	if _, err := Decode(reg, wordwise, scale.NewCursor([]byte{0x04, 1, 0, 0, 0})); !errors.Is(err, ErrUnsupportedBitSequence) {
		t.Fatalf("expected unsupported bit sequence, got %v", err)
	}
}

func TestCompactValues(t *testing.T) {
	b := registrytest.NewBuilder()
	u8 := b.Prim(registry.PrimU8)
	u64 := b.Prim(registry.PrimU64)
	u128 := b.Prim(registry.PrimU128)
	perbill := b.Composite(registrytest.Path("sp_arithmetic", "Perbill"), registrytest.U(b.Prim(registry.PrimU32)))
	c8 := b.Compact(u8)
	c64 := b.Compact(u64)
	c128 := b.Compact(u128)
	cPerbill := b.Compact(perbill)
	reg := b.Registry()

	ms := uint64(1_650_000_000_000)
	raw := scale.AppendCompact(nil, ms)
	if raw[0] != 0x0b {
		t.Fatalf("unexpected compact prefix %#x", raw[0])
	}
	v, err := Decode(reg, c64, scale.NewCursor(raw))
	if err != nil || v.Kind != KindU64 || v.Uint != ms {
		t.Fatalf("compact u64: %+v %v", v, err)
	}

	leaves := collect(t, reg, c64, raw)
	if len(leaves) != 1 || len(leaves[0].Data) != len(raw) {
		t.Fatalf("compact leaf must be the raw encoding: %+v", leaves)
	}

	v, err = Decode(reg, c128, scale.NewCursor(scale.AppendCompact(nil, 42)))
	if err != nil || v.Kind != KindU128 || v.Big.Int64() != 42 {
		t.Fatalf("compact u128: %+v %v", v, err)
	}
	v, err = Decode(reg, cPerbill, scale.NewCursor(scale.AppendCompact(nil, 500)))
	if err != nil || v.Kind != KindU32 || v.Uint != 500 {
		t.Fatalf("compact perbill: %+v %v", v, err)
	}
	if _, err := Decode(reg, c8, scale.NewCursor(scale.AppendCompact(nil, 300))); !errors.Is(err, scale.ErrInvalidEncoding) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestFlattenLocation(t *testing.T) {
	rt := registrytest.NewRuntime()
	reg := rt.Metadata.Registry
	loc, ok := reg.FindByPath("xcm", "VersionedMultiLocation")
	if !ok {
		t.Fatalf("fixture has no VersionedMultiLocation")
	}
	// V2 { parents: 0, interior: X1(Parachain(1000)) }
	data := []byte{0x02, 0x00, 0x01, 0x00, 0xa1, 0x0f}
	v, err := Decode(reg, loc, scale.NewCursor(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	flat := FlattenMap(&v)
	para, ok := flat["V2.0.interior.X1.0.Parachain.0"]
	if !ok || para.Kind != KindU32 || para.Uint != 1000 {
		t.Fatalf("flattened %v", flat)
	}
	for path := range flat {
		if strings.Contains(path, TypeKey) {
			t.Fatalf("reserved key leaked into %q", path)
		}
	}
	pairs := Flatten(&v)
	if len(pairs) != 2 || pairs[0].Path != "V2.0.parents" {
		t.Fatalf("pairs: %+v", pairs)
	}

	got, err := Project(reg, loc, scale.NewCursor(data), "V2.0.interior.X1.0.Parachain.0", "V1.0.parents")
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("projection: %+v", got)
	}
	if leaf := got["V2.0.interior.X1.0.Parachain.0"]; len(leaf.Data) != 2 {
		t.Fatalf("projected leaf: %+v", leaf)
	}
}

func TestValueJSON(t *testing.T) {
	b := registrytest.NewBuilder()
	u8 := b.Prim(registry.PrimU8)
	u128 := b.Prim(registry.PrimU128)
	id := b.Composite(nil, registrytest.F("z", b.Sequence(u8)), registrytest.F("a", u128))

	data := append([]byte{0x08, 0xab, 0xcd}, leBytes(big.NewInt(7), 16)...)
	v, err := Decode(b.Registry(), id, scale.NewCursor(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, err := v.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"_ty":` + itoa(id) + `,"z":"0xabcd","a":"7"}`
	if string(out) != want {
		t.Fatalf("json %s, want %s", out, want)
	}
}

func itoa(v uint32) string {
	x := U32(v)
	return x.Text()
}
