package scale

import (
	"encoding/binary"
	"fmt"
)

// CompactLen returns the encoded size of the compact integer at the cursor
// without consuming it.
func (c *Cursor) CompactLen() (int, error) {
	if len(c.data) < 1 {
		return 0, ErrEndOfInput
	}
	var n int
	switch c.data[0] & 0b11 {
	case 0b00:
		n = 1
	case 0b01:
		n = 2
	case 0b10:
		n = 4
	default:
		n = 1 + int(c.data[0]>>2) + 4
	}
	if n > len(c.data) {
		return 0, fmt.Errorf("compact needs %d bytes, %d left: %w", n, len(c.data), ErrEndOfInput)
	}
	return n, nil
}

// ReadCompactBytes borrows the raw encoding of the next compact integer.
func (c *Cursor) ReadCompactBytes() ([]byte, error) {
	n, err := c.CompactLen()
	if err != nil {
		return nil, err
	}
	return c.ReadBytes(n)
}

func (c *Cursor) ReadCompactU64() (uint64, error) {
	raw, err := c.peekCompact()
	if err != nil {
		return 0, err
	}
	v, err := compactU64(raw)
	if err != nil {
		return 0, err
	}
	c.data = c.data[len(raw):]
	return v, nil
}

func (c *Cursor) ReadCompactU32() (uint32, error) {
	raw, err := c.peekCompact()
	if err != nil {
		return 0, err
	}
	v, err := compactU64(raw)
	if err != nil {
		return 0, err
	}
	if v > 0xffffffff {
		return 0, fmt.Errorf("compact %d overflows u32: %w", v, ErrInvalidEncoding)
	}
	c.data = c.data[len(raw):]
	return uint32(v), nil
}

func (c *Cursor) ReadCompactU128() (Uint128, error) {
	raw, err := c.peekCompact()
	if err != nil {
		return Uint128{}, err
	}
	v, err := CompactU128(raw)
	if err != nil {
		return Uint128{}, err
	}
	c.data = c.data[len(raw):]
	return v, nil
}

// ReadLengthPrefixed reads a compact length L and borrows the L bytes after it.
func (c *Cursor) ReadLengthPrefixed() ([]byte, error) {
	start := c.data
	n, err := c.ReadCompactU32()
	if err != nil {
		return nil, err
	}
	out, err := c.ReadBytes(int(n))
	if err != nil {
		c.data = start
		return nil, err
	}
	return out, nil
}

func (c *Cursor) peekCompact() ([]byte, error) {
	n, err := c.CompactLen()
	if err != nil {
		return nil, err
	}
	return c.data[:n], nil
}

// CompactU64 decodes a complete raw compact encoding.
func CompactU64(raw []byte) (uint64, error) {
	return compactU64(raw)
}

func compactU64(raw []byte) (uint64, error) {
	if len(raw) == 0 {
		return 0, ErrEndOfInput
	}
	switch raw[0] & 0b11 {
	case 0b00:
		return uint64(raw[0] >> 2), nil
	case 0b01:
		if len(raw) < 2 {
			return 0, ErrEndOfInput
		}
		return uint64(binary.LittleEndian.Uint16(raw) >> 2), nil
	case 0b10:
		if len(raw) < 4 {
			return 0, ErrEndOfInput
		}
		return uint64(binary.LittleEndian.Uint32(raw) >> 2), nil
	}
	n := int(raw[0]>>2) + 4
	if len(raw) < 1+n {
		return 0, ErrEndOfInput
	}
	body := raw[1 : 1+n]
	for _, b := range body[min(n, 8):] {
		if b != 0 {
			return 0, fmt.Errorf("compact overflows u64: %w", ErrInvalidEncoding)
		}
	}
	var v uint64
	for i := min(n, 8) - 1; i >= 0; i-- {
		v = v<<8 | uint64(body[i])
	}
	return v, nil
}

// CompactU128 decodes a complete raw compact encoding into 128 bits.
func CompactU128(raw []byte) (Uint128, error) {
	if len(raw) == 0 {
		return Uint128{}, ErrEndOfInput
	}
	if raw[0]&0b11 != 0b11 {
		v, err := compactU64(raw)
		return Uint128{Lo: v}, err
	}
	n := int(raw[0]>>2) + 4
	if len(raw) < 1+n {
		return Uint128{}, ErrEndOfInput
	}
	body := raw[1 : 1+n]
	if n > 16 {
		for _, b := range body[16:] {
			if b != 0 {
				return Uint128{}, fmt.Errorf("compact overflows u128: %w", ErrInvalidEncoding)
			}
		}
		body = body[:16]
	}
	var buf [16]byte
	copy(buf[:], body)
	return Uint128{
		Lo: binary.LittleEndian.Uint64(buf[:8]),
		Hi: binary.LittleEndian.Uint64(buf[8:]),
	}, nil
}

// AppendCompact appends the compact encoding of v to dst.
func AppendCompact(dst []byte, v uint64) []byte {
	switch {
	case v < 1<<6:
		return append(dst, byte(v<<2))
	case v < 1<<14:
		return binary.LittleEndian.AppendUint16(dst, uint16(v<<2|0b01))
	case v < 1<<30:
		return binary.LittleEndian.AppendUint32(dst, uint32(v<<2|0b10))
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	n := 8
	for n > 4 && buf[n-1] == 0 {
		n--
	}
	dst = append(dst, byte((n-4)<<2|0b11))
	return append(dst, buf[:n]...)
}

// AppendLengthPrefixed appends a compact length followed by data.
func AppendLengthPrefixed(dst, data []byte) []byte {
	dst = AppendCompact(dst, uint64(len(data)))
	return append(dst, data...)
}

func AppendU16(dst []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(dst, v)
}

func AppendU32(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

func AppendU64(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

func AppendString(dst []byte, s string) []byte {
	dst = AppendCompact(dst, uint64(len(s)))
	return append(dst, s...)
}
