package scale

import (
	"errors"
	"testing"
)

func TestFixedWidthLittleEndian(t *testing.T) {
	c := NewCursor([]byte{
		0x2a,
		0x34, 0x12,
		0x78, 0x56, 0x34, 0x12,
		0x01, 0, 0, 0, 0, 0, 0, 0x80,
		0x02, 0, 0, 0, 0, 0, 0, 0, 0x01, 0, 0, 0, 0, 0, 0, 0,
	})

	u8, err := c.ReadU8()
	if err != nil || u8 != 0x2a {
		t.Fatalf("u8: %d %v", u8, err)
	}
	u16, err := c.ReadU16()
	if err != nil || u16 != 0x1234 {
		t.Fatalf("u16: %x %v", u16, err)
	}
	u32, err := c.ReadU32()
	if err != nil || u32 != 0x12345678 {
		t.Fatalf("u32: %x %v", u32, err)
	}
	u64, err := c.ReadU64()
	if err != nil || u64 != 0x8000000000000001 {
		t.Fatalf("u64: %x %v", u64, err)
	}
	u128, err := c.ReadU128()
	if err != nil || u128.Lo != 2 || u128.Hi != 1 {
		t.Fatalf("u128: %+v %v", u128, err)
	}
	if u128.String() != "18446744073709551618" {
		t.Fatalf("u128 string: %s", u128.String())
	}
	if !c.Empty() {
		t.Fatalf("expected cursor to be drained, %d left", c.Len())
	}
}

func TestUnderflowDoesNotAdvance(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3})
	if _, err := c.ReadU32(); !errors.Is(err, ErrEndOfInput) {
		t.Fatalf("expected end of input, got %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("cursor moved on failure: %d", c.Len())
	}
}

func TestReadBool(t *testing.T) {
	c := NewCursor([]byte{0, 1, 2})
	v, err := c.ReadBool()
	if err != nil || v {
		t.Fatalf("false: %v %v", v, err)
	}
	v, err = c.ReadBool()
	if err != nil || !v {
		t.Fatalf("true: %v %v", v, err)
	}
	if _, err := c.ReadBool(); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected invalid encoding, got %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("invalid bool consumed input")
	}
}

func TestReadBytesBorrows(t *testing.T) {
	buf := []byte{9, 8, 7, 6}
	c := NewCursor(buf)
	b, err := c.ReadBytes(2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	buf[0] = 1
	if b[0] != 1 {
		t.Fatalf("ReadBytes copied instead of borrowing")
	}
	if _, err := c.ReadBytes(3); !errors.Is(err, ErrEndOfInput) {
		t.Fatalf("expected end of input, got %v", err)
	}
}

func TestCompactModes(t *testing.T) {
	cases := []struct {
		value uint64
		size  int
	}{
		{0, 1},
		{63, 1},
		{64, 2},
		{16383, 2},
		{16384, 4},
		{1<<30 - 1, 4},
		{1 << 30, 5},
		{1_700_000_000_000, 7},
		{^uint64(0), 9},
	}
	for _, tc := range cases {
		enc := AppendCompact(nil, tc.value)
		if len(enc) != tc.size {
			t.Fatalf("value %d: size %d, want %d", tc.value, len(enc), tc.size)
		}
		c := NewCursor(enc)
		n, err := c.CompactLen()
		if err != nil || n != tc.size {
			t.Fatalf("value %d: compact len %d %v", tc.value, n, err)
		}
		got, err := c.ReadCompactU64()
		if err != nil {
			t.Fatalf("value %d: %v", tc.value, err)
		}
		if got != tc.value {
			t.Fatalf("value %d: decoded %d", tc.value, got)
		}
		if !c.Empty() {
			t.Fatalf("value %d: %d bytes left", tc.value, c.Len())
		}
	}
}

func TestCompactU32Overflow(t *testing.T) {
	encoded := AppendCompact(nil, 1<<32)
	c := NewCursor(encoded)
	if _, err := c.ReadCompactU32(); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if c.Len() != len(encoded) {
		t.Fatalf("cursor moved on overflow")
	}
}

func TestCompactU128(t *testing.T) {
	raw := []byte{0b11 | (12 << 2)}
	raw = append(raw, 0xff, 0, 0, 0, 0, 0, 0, 0, 0x01, 0, 0, 0, 0, 0, 0, 0)
	c := NewCursor(raw)
	v, err := c.ReadCompactU128()
	if err != nil {
		t.Fatalf("compact u128: %v", err)
	}
	if v.Lo != 0xff || v.Hi != 1 {
		t.Fatalf("compact u128: %+v", v)
	}
}

func TestLengthPrefixed(t *testing.T) {
	enc := AppendLengthPrefixed(nil, []byte("hello"))
	enc = append(enc, 0xee)
	c := NewCursor(enc)
	b, err := c.ReadLengthPrefixed()
	if err != nil || string(b) != "hello" {
		t.Fatalf("length prefixed: %q %v", b, err)
	}
	if c.Len() != 1 {
		t.Fatalf("trailing byte lost")
	}

	short := NewCursor([]byte{0x10, 1})
	if _, err := short.ReadLengthPrefixed(); !errors.Is(err, ErrEndOfInput) {
		t.Fatalf("expected end of input, got %v", err)
	}
	if short.Len() != 2 {
		t.Fatalf("cursor moved on failure")
	}
}
