package registry

import (
	"bytes"
	"fmt"

	"paraScope/internal/scale"
)

// MetadataMagic prefixes every metadata envelope ("meta" little-endian).
var MetadataMagic = []byte("meta")

// CurrentVersion is the only metadata format this package decodes.
const CurrentVersion = 14

// Metadata is the decoded envelope: the type registry plus the descriptors the
// extrinsic and storage layers need.
type Metadata struct {
	Version     uint8
	Registry    *Registry
	Pallets     []Pallet
	Extrinsic   ExtrinsicInfo
	RuntimeType uint32
}

type ExtrinsicInfo struct {
	TypeID           uint32
	Version          uint8
	SignedExtensions []SignedExtension
}

// SignedExtension names the payload types a signed extrinsic carries for one
// extension: Extra is encoded in the extrinsic, AdditionalSigned only in the
// signing payload.
type SignedExtension struct {
	Identifier       string
	Extra            uint32
	AdditionalSigned uint32
}

type Pallet struct {
	Name      string
	Index     uint8
	Storage   *PalletStorage
	CallType  uint32
	HasCalls  bool
	EventType uint32
	HasEvents bool
	ErrorType uint32
	HasErrors bool
	Constants []Constant
}

type PalletStorage struct {
	Prefix  string
	Entries []StorageEntry
}

type StorageEntry struct {
	Name     string
	Optional bool
	Map      bool
	Hashers  []uint8
	KeyType  uint32
	Value    uint32
	Default  []byte
}

type Constant struct {
	Name   string
	TypeID uint32
	Value  []byte
}

// Pallet returns the pallet with the given name.
func (m *Metadata) Pallet(name string) (*Pallet, bool) {
	for i := range m.Pallets {
		if m.Pallets[i].Name == name {
			return &m.Pallets[i], true
		}
	}
	return nil, false
}

func (m *Metadata) PalletByIndex(idx uint8) (*Pallet, bool) {
	for i := range m.Pallets {
		if m.Pallets[i].Index == idx {
			return &m.Pallets[i], true
		}
	}
	return nil, false
}

// DecodeMetadata parses a metadata envelope. The payload may be the bare
// envelope or the length-prefixed opaque blob returned by runtime calls.
func DecodeMetadata(data []byte) (*Metadata, error) {
	if !bytes.HasPrefix(data, MetadataMagic) {
		inner, err := scale.NewCursor(data).ReadLengthPrefixed()
		if err != nil || !bytes.HasPrefix(inner, MetadataMagic) {
			return nil, fmt.Errorf("missing metadata magic: %w", ErrCorruptMetadata)
		}
		data = inner
	}

	c := scale.NewCursor(data[len(MetadataMagic):])
	version, err := c.ReadU8()
	if err != nil {
		return nil, corrupt("version", err)
	}
	if version != CurrentVersion {
		return nil, fmt.Errorf("metadata v%d, want v%d: %w", version, CurrentVersion, ErrVersionMismatch)
	}

	types, err := readTypes(c)
	if err != nil {
		return nil, err
	}
	pallets, err := readPallets(c)
	if err != nil {
		return nil, err
	}
	ext, err := readExtrinsic(c)
	if err != nil {
		return nil, err
	}
	runtimeType, err := c.ReadCompactU32()
	if err != nil {
		return nil, corrupt("runtime type", err)
	}

	md := &Metadata{
		Version:     version,
		Registry:    New(types),
		Pallets:     pallets,
		Extrinsic:   ext,
		RuntimeType: runtimeType,
	}
	if err := md.validate(); err != nil {
		return nil, err
	}
	return md, nil
}

// validate checks that every referenced type id resolves.
func (m *Metadata) validate() error {
	check := func(id uint32) error {
		_, err := m.Registry.Resolve(id)
		return err
	}
	for _, t := range m.Registry.types {
		var refs []uint32
		switch t.Def.Kind {
		case KindComposite:
			for _, f := range t.Def.Fields {
				refs = append(refs, f.TypeID)
			}
		case KindVariant:
			for _, v := range t.Def.Variants {
				for _, f := range v.Fields {
					refs = append(refs, f.TypeID)
				}
			}
		case KindSequence, KindArray, KindCompact:
			refs = append(refs, t.Def.Elem)
		case KindTuple:
			refs = append(refs, t.Def.Tuple...)
		case KindBitSequence:
			refs = append(refs, t.Def.BitStore, t.Def.BitOrder)
		}
		for _, id := range refs {
			if err := check(id); err != nil {
				return fmt.Errorf("type %d (%s): %w", t.ID, t.PathString(), err)
			}
		}
	}
	for _, ext := range m.Extrinsic.SignedExtensions {
		if err := check(ext.Extra); err != nil {
			return fmt.Errorf("signed extension %s: %w", ext.Identifier, err)
		}
	}
	return nil
}

func corrupt(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCorruptMetadata, what, err)
}

func readString(c *scale.Cursor) (string, error) {
	b, err := c.ReadLengthPrefixed()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readOptionalString(c *scale.Cursor) (string, error) {
	some, err := c.ReadOption()
	if err != nil || !some {
		return "", err
	}
	return readString(c)
}

func readStrings(c *scale.Cursor) ([]string, error) {
	n, err := c.ReadCompactU32()
	if err != nil {
		return nil, err
	}
	if int(n) > c.Len() {
		return nil, scale.ErrEndOfInput
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := readString(c)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func skipDocs(c *scale.Cursor) error {
	_, err := readStrings(c)
	return err
}

func readCount(c *scale.Cursor) (uint32, error) {
	n, err := c.ReadCompactU32()
	if err != nil {
		return 0, err
	}
	if int(n) > c.Len() {
		return 0, fmt.Errorf("count %d exceeds %d bytes left: %w", n, c.Len(), scale.ErrEndOfInput)
	}
	return n, nil
}

func readTypes(c *scale.Cursor) ([]Type, error) {
	n, err := readCount(c)
	if err != nil {
		return nil, corrupt("type count", err)
	}
	types := make([]Type, 0, n)
	for i := uint32(0); i < n; i++ {
		t, err := readType(c)
		if err != nil {
			return nil, corrupt(fmt.Sprintf("type #%d", i), err)
		}
		types = append(types, t)
	}
	return types, nil
}

func readType(c *scale.Cursor) (Type, error) {
	var t Type
	var err error
	if t.ID, err = c.ReadCompactU32(); err != nil {
		return t, err
	}
	if t.Path, err = readStrings(c); err != nil {
		return t, err
	}

	np, err := readCount(c)
	if err != nil {
		return t, err
	}
	for i := uint32(0); i < np; i++ {
		var p TypeParam
		if p.Name, err = readString(c); err != nil {
			return t, err
		}
		if p.HasType, err = c.ReadOption(); err != nil {
			return t, err
		}
		if p.HasType {
			if p.TypeID, err = c.ReadCompactU32(); err != nil {
				return t, err
			}
		}
		t.Params = append(t.Params, p)
	}

	if t.Def, err = readTypeDef(c); err != nil {
		return t, err
	}
	return t, skipDocs(c)
}

func readTypeDef(c *scale.Cursor) (TypeDef, error) {
	var d TypeDef
	tag, err := c.ReadU8()
	if err != nil {
		return d, err
	}
	d.Kind = DefKind(tag)
	switch d.Kind {
	case KindComposite:
		d.Fields, err = readFields(c)
	case KindVariant:
		var n uint32
		if n, err = readCount(c); err != nil {
			return d, err
		}
		for i := uint32(0); i < n; i++ {
			var v Variant
			if v.Name, err = readString(c); err != nil {
				return d, err
			}
			if v.Fields, err = readFields(c); err != nil {
				return d, err
			}
			if v.Index, err = c.ReadU8(); err != nil {
				return d, err
			}
			if err = skipDocs(c); err != nil {
				return d, err
			}
			d.Variants = append(d.Variants, v)
		}
	case KindSequence, KindCompact:
		d.Elem, err = c.ReadCompactU32()
	case KindArray:
		if d.Len, err = c.ReadU32(); err != nil {
			return d, err
		}
		d.Elem, err = c.ReadCompactU32()
	case KindTuple:
		var n uint32
		if n, err = readCount(c); err != nil {
			return d, err
		}
		for i := uint32(0); i < n; i++ {
			id, err := c.ReadCompactU32()
			if err != nil {
				return d, err
			}
			d.Tuple = append(d.Tuple, id)
		}
	case KindPrimitive:
		var p uint8
		if p, err = c.ReadU8(); err != nil {
			return d, err
		}
		if p > uint8(PrimI256) {
			return d, fmt.Errorf("primitive tag %d: %w", p, scale.ErrInvalidEncoding)
		}
		d.Primitive = Primitive(p)
	case KindBitSequence:
		if d.BitStore, err = c.ReadCompactU32(); err != nil {
			return d, err
		}
		d.BitOrder, err = c.ReadCompactU32()
	default:
		return d, fmt.Errorf("type def tag %d: %w", tag, scale.ErrInvalidEncoding)
	}
	return d, err
}

func readFields(c *scale.Cursor) ([]Field, error) {
	n, err := readCount(c)
	if err != nil {
		return nil, err
	}
	fields := make([]Field, 0, n)
	for i := uint32(0); i < n; i++ {
		var f Field
		if f.Name, err = readOptionalString(c); err != nil {
			return nil, err
		}
		if f.TypeID, err = c.ReadCompactU32(); err != nil {
			return nil, err
		}
		if f.TypeName, err = readOptionalString(c); err != nil {
			return nil, err
		}
		if err = skipDocs(c); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func readOptionalType(c *scale.Cursor) (uint32, bool, error) {
	some, err := c.ReadOption()
	if err != nil || !some {
		return 0, false, err
	}
	id, err := c.ReadCompactU32()
	return id, err == nil, err
}

func readPallets(c *scale.Cursor) ([]Pallet, error) {
	n, err := readCount(c)
	if err != nil {
		return nil, corrupt("pallet count", err)
	}
	pallets := make([]Pallet, 0, n)
	for i := uint32(0); i < n; i++ {
		p, err := readPallet(c)
		if err != nil {
			return nil, corrupt(fmt.Sprintf("pallet #%d", i), err)
		}
		pallets = append(pallets, p)
	}
	return pallets, nil
}

func readPallet(c *scale.Cursor) (Pallet, error) {
	var p Pallet
	var err error
	if p.Name, err = readString(c); err != nil {
		return p, err
	}

	hasStorage, err := c.ReadOption()
	if err != nil {
		return p, err
	}
	if hasStorage {
		if p.Storage, err = readStorage(c); err != nil {
			return p, err
		}
	}
	if p.CallType, p.HasCalls, err = readOptionalType(c); err != nil {
		return p, err
	}
	if p.EventType, p.HasEvents, err = readOptionalType(c); err != nil {
		return p, err
	}

	nc, err := readCount(c)
	if err != nil {
		return p, err
	}
	for i := uint32(0); i < nc; i++ {
		var k Constant
		if k.Name, err = readString(c); err != nil {
			return p, err
		}
		if k.TypeID, err = c.ReadCompactU32(); err != nil {
			return p, err
		}
		if k.Value, err = c.ReadLengthPrefixed(); err != nil {
			return p, err
		}
		if err = skipDocs(c); err != nil {
			return p, err
		}
		p.Constants = append(p.Constants, k)
	}

	if p.ErrorType, p.HasErrors, err = readOptionalType(c); err != nil {
		return p, err
	}
	p.Index, err = c.ReadU8()
	return p, err
}

func readStorage(c *scale.Cursor) (*PalletStorage, error) {
	prefix, err := readString(c)
	if err != nil {
		return nil, err
	}
	n, err := readCount(c)
	if err != nil {
		return nil, err
	}
	s := &PalletStorage{Prefix: prefix}
	for i := uint32(0); i < n; i++ {
		var e StorageEntry
		if e.Name, err = readString(c); err != nil {
			return nil, err
		}
		modifier, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		e.Optional = modifier == 0
		kind, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		switch kind {
		case 0:
			if e.Value, err = c.ReadCompactU32(); err != nil {
				return nil, err
			}
		case 1:
			e.Map = true
			nh, err := readCount(c)
			if err != nil {
				return nil, err
			}
			hashers, err := c.ReadBytes(int(nh))
			if err != nil {
				return nil, err
			}
			e.Hashers = hashers
			if e.KeyType, err = c.ReadCompactU32(); err != nil {
				return nil, err
			}
			if e.Value, err = c.ReadCompactU32(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("storage entry kind %d: %w", kind, scale.ErrInvalidEncoding)
		}
		if e.Default, err = c.ReadLengthPrefixed(); err != nil {
			return nil, err
		}
		if err = skipDocs(c); err != nil {
			return nil, err
		}
		s.Entries = append(s.Entries, e)
	}
	return s, nil
}

func readExtrinsic(c *scale.Cursor) (ExtrinsicInfo, error) {
	var ext ExtrinsicInfo
	var err error
	if ext.TypeID, err = c.ReadCompactU32(); err != nil {
		return ext, corrupt("extrinsic type", err)
	}
	if ext.Version, err = c.ReadU8(); err != nil {
		return ext, corrupt("extrinsic version", err)
	}
	n, err := readCount(c)
	if err != nil {
		return ext, corrupt("signed extensions", err)
	}
	for i := uint32(0); i < n; i++ {
		var se SignedExtension
		if se.Identifier, err = readString(c); err != nil {
			return ext, corrupt("signed extension", err)
		}
		if se.Extra, err = c.ReadCompactU32(); err != nil {
			return ext, corrupt("signed extension", err)
		}
		if se.AdditionalSigned, err = c.ReadCompactU32(); err != nil {
			return ext, corrupt("signed extension", err)
		}
		ext.SignedExtensions = append(ext.SignedExtensions, se)
	}
	return ext, nil
}
