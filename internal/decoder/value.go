package decoder

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TypeKey is the reserved object key carrying the registry type id.
const TypeKey = "_ty"

type Kind uint8

const (
	KindObject Kind = iota
	KindBool
	KindStr
	KindScale
	KindChar
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindU256
	KindI8
	KindI16
	KindI32
	KindI64
	KindI128
	KindI256
)

var kindNames = [...]string{
	"object", "bool", "str", "scale", "char",
	"u8", "u16", "u32", "u64", "u128", "u256",
	"i8", "i16", "i32", "i64", "i128", "i256",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is one node of a decoded tree. Str and Scale hold borrows of the
// input buffer and stay valid as long as that buffer is not modified.
type Value struct {
	Kind   Kind
	Fields []Field
	Bool   bool
	Bytes  []byte
	Uint   uint64
	Int    int64
	Big    *big.Int
	Char   rune
}

// Field is a named member of an object. Order is decode order.
type Field struct {
	Name  string
	Value Value
}

func Object(typeID uint32, fields ...Field) Value {
	obj := Value{Kind: KindObject, Fields: make([]Field, 0, len(fields)+1)}
	obj.Fields = append(obj.Fields, Field{Name: TypeKey, Value: U32(typeID)})
	obj.Fields = append(obj.Fields, fields...)
	return obj
}

func U8(v uint8) Value   { return Value{Kind: KindU8, Uint: uint64(v)} }
func U16(v uint16) Value { return Value{Kind: KindU16, Uint: uint64(v)} }
func U32(v uint32) Value { return Value{Kind: KindU32, Uint: uint64(v)} }
func U64(v uint64) Value { return Value{Kind: KindU64, Uint: v} }
func Bool(v bool) Value  { return Value{Kind: KindBool, Bool: v} }
func Str(b []byte) Value { return Value{Kind: KindStr, Bytes: b} }

// Scale wraps an undecoded byte run, such as a u8 sequence.
func Scale(b []byte) Value { return Value{Kind: KindScale, Bytes: b} }

func (v *Value) IsObject() bool {
	return v.Kind == KindObject
}

// TypeID returns the reserved type id of an object.
func (v *Value) TypeID() (uint32, bool) {
	ty, ok := v.Get(TypeKey)
	if !ok || ty.Kind != KindU32 {
		return 0, false
	}
	return uint32(ty.Uint), true
}

// Get returns the direct member called name.
func (v *Value) Get(name string) (*Value, bool) {
	if v.Kind != KindObject {
		return nil, false
	}
	for i := range v.Fields {
		if v.Fields[i].Name == name {
			return &v.Fields[i].Value, true
		}
	}
	return nil, false
}

// Lookup walks a dotted path such as "V2.0.interior".
func (v *Value) Lookup(path string) (*Value, bool) {
	cur := v
	if path == "" {
		return cur, true
	}
	for _, seg := range strings.Split(path, ".") {
		next, ok := cur.Get(seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Members returns the object fields without the reserved type key.
func (v *Value) Members() []Field {
	if v.Kind != KindObject {
		return nil
	}
	if len(v.Fields) > 0 && v.Fields[0].Name == TypeKey {
		return v.Fields[1:]
	}
	return v.Fields
}

// Variant returns the selected variant name and its field object for a
// value decoded from a variant type.
func (v *Value) Variant() (string, *Value, bool) {
	m := v.Members()
	if len(m) != 1 || m[0].Value.Kind != KindObject {
		return "", nil, false
	}
	return m[0].Name, &m[0].Value, true
}

// Uint64 converts any unsigned kind that fits in 64 bits.
func (v *Value) Uint64() (uint64, bool) {
	switch v.Kind {
	case KindU8, KindU16, KindU32, KindU64:
		return v.Uint, true
	case KindU128, KindU256:
		if v.Big != nil && v.Big.IsUint64() {
			return v.Big.Uint64(), true
		}
	}
	return 0, false
}

// Raw returns the borrowed bytes of Str and Scale values.
func (v *Value) Raw() ([]byte, bool) {
	if v.Kind == KindStr || v.Kind == KindScale {
		return v.Bytes, true
	}
	return nil, false
}

// Text renders a leaf the way it appears in flattened output.
func (v *Value) Text() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindStr:
		return string(v.Bytes)
	case KindScale:
		return hexutil.Encode(v.Bytes)
	case KindChar:
		return string(v.Char)
	case KindU8, KindU16, KindU32, KindU64:
		return strconv.FormatUint(v.Uint, 10)
	case KindI8, KindI16, KindI32, KindI64:
		return strconv.FormatInt(v.Int, 10)
	case KindU128, KindU256, KindI128, KindI256:
		if v.Big == nil {
			return "0"
		}
		return v.Big.String()
	case KindObject:
		b, _ := v.MarshalJSON()
		return string(b)
	}
	return ""
}

// MarshalJSON keeps object member order. Byte runs are 0x hex and integers
// wider than 64 bits are decimal strings.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) writeJSON(buf *bytes.Buffer) error {
	switch v.Kind {
	case KindObject:
		buf.WriteByte('{')
		for i := range v.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(v.Fields[i].Name)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := v.Fields[i].Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindU8, KindU16, KindU32, KindU64, KindI8, KindI16, KindI32, KindI64, KindBool:
		buf.WriteString(v.Text())
	default:
		s, err := json.Marshal(v.Text())
		if err != nil {
			return err
		}
		buf.Write(s)
	}
	return nil
}
