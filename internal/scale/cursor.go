package scale

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrEndOfInput      = errors.New("end of input")
	ErrInvalidEncoding = errors.New("invalid encoding")
)

// Cursor reads little-endian values from a byte slice. Every read either
// advances by the exact consumed length or fails without moving.
type Cursor struct {
	data []byte
}

func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Len returns the number of unread bytes.
func (c *Cursor) Len() int {
	return len(c.data)
}

// Remaining returns the unread bytes as a borrow of the input.
func (c *Cursor) Remaining() []byte {
	return c.data
}

func (c *Cursor) Empty() bool {
	return len(c.data) == 0
}

// ReadBytes borrows the next n bytes.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("read %d bytes: %w", n, ErrInvalidEncoding)
	}
	if n > len(c.data) {
		return nil, fmt.Errorf("read %d bytes, %d left: %w", n, len(c.data), ErrEndOfInput)
	}
	out := c.data[:n:n]
	c.data = c.data[n:]
	return out, nil
}

func (c *Cursor) Skip(n int) error {
	_, err := c.ReadBytes(n)
	return err
}

func (c *Cursor) ReadU8() (uint8, error) {
	if len(c.data) < 1 {
		return 0, ErrEndOfInput
	}
	v := c.data[0]
	c.data = c.data[1:]
	return v, nil
}

func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) ReadU64() (uint64, error) {
	b, err := c.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *Cursor) ReadU128() (Uint128, error) {
	b, err := c.ReadBytes(16)
	if err != nil {
		return Uint128{}, err
	}
	return Uint128{
		Lo: binary.LittleEndian.Uint64(b[:8]),
		Hi: binary.LittleEndian.Uint64(b[8:]),
	}, nil
}

// ReadBool accepts exactly 0x00 or 0x01.
func (c *Cursor) ReadBool() (bool, error) {
	if len(c.data) < 1 {
		return false, ErrEndOfInput
	}
	switch c.data[0] {
	case 0:
		c.data = c.data[1:]
		return false, nil
	case 1:
		c.data = c.data[1:]
		return true, nil
	default:
		return false, fmt.Errorf("bool byte 0x%02x: %w", c.data[0], ErrInvalidEncoding)
	}
}

// ReadOption reads an option tag and reports whether a value follows.
func (c *Cursor) ReadOption() (bool, error) {
	return c.ReadBool()
}

// Uint128 is an unsigned 128-bit integer split into two words.
type Uint128 struct {
	Lo uint64
	Hi uint64
}

func (u Uint128) Big() *big.Int {
	v := new(big.Int).SetUint64(u.Hi)
	v.Lsh(v, 64)
	return v.Or(v, new(big.Int).SetUint64(u.Lo))
}

func (u Uint128) String() string {
	return u.Big().String()
}
