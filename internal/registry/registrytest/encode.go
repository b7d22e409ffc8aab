package registrytest

import (
	"paraScope/internal/registry"
	"paraScope/internal/scale"
)

// EncodeMetadata serializes md in the v14 envelope layout.
func EncodeMetadata(md *registry.Metadata) []byte {
	out := append([]byte{}, registry.MetadataMagic...)
	out = append(out, md.Version)

	types := md.Registry.Types()
	out = scale.AppendCompact(out, uint64(len(types)))
	for _, t := range types {
		out = appendType(out, t)
	}

	out = scale.AppendCompact(out, uint64(len(md.Pallets)))
	for _, p := range md.Pallets {
		out = appendPallet(out, p)
	}

	out = scale.AppendCompact(out, uint64(md.Extrinsic.TypeID))
	out = append(out, md.Extrinsic.Version)
	out = scale.AppendCompact(out, uint64(len(md.Extrinsic.SignedExtensions)))
	for _, se := range md.Extrinsic.SignedExtensions {
		out = scale.AppendString(out, se.Identifier)
		out = scale.AppendCompact(out, uint64(se.Extra))
		out = scale.AppendCompact(out, uint64(se.AdditionalSigned))
	}
	return scale.AppendCompact(out, uint64(md.RuntimeType))
}

func appendStrings(out []byte, ss []string) []byte {
	out = scale.AppendCompact(out, uint64(len(ss)))
	for _, s := range ss {
		out = scale.AppendString(out, s)
	}
	return out
}

func appendOptionalString(out []byte, s string) []byte {
	if s == "" {
		return append(out, 0)
	}
	return scale.AppendString(append(out, 1), s)
}

func appendOptionalType(out []byte, id uint32, ok bool) []byte {
	if !ok {
		return append(out, 0)
	}
	return scale.AppendCompact(append(out, 1), uint64(id))
}

func appendFields(out []byte, fields []registry.Field) []byte {
	out = scale.AppendCompact(out, uint64(len(fields)))
	for _, f := range fields {
		out = appendOptionalString(out, f.Name)
		out = scale.AppendCompact(out, uint64(f.TypeID))
		out = appendOptionalString(out, f.TypeName)
		out = append(out, 0) // docs
	}
	return out
}

func appendType(out []byte, t registry.Type) []byte {
	out = scale.AppendCompact(out, uint64(t.ID))
	out = appendStrings(out, t.Path)
	out = scale.AppendCompact(out, uint64(len(t.Params)))
	for _, p := range t.Params {
		out = scale.AppendString(out, p.Name)
		out = appendOptionalType(out, p.TypeID, p.HasType)
	}

	d := t.Def
	out = append(out, byte(d.Kind))
	switch d.Kind {
	case registry.KindComposite:
		out = appendFields(out, d.Fields)
	case registry.KindVariant:
		out = scale.AppendCompact(out, uint64(len(d.Variants)))
		for _, v := range d.Variants {
			out = scale.AppendString(out, v.Name)
			out = appendFields(out, v.Fields)
			out = append(out, v.Index, 0)
		}
	case registry.KindSequence, registry.KindCompact:
		out = scale.AppendCompact(out, uint64(d.Elem))
	case registry.KindArray:
		out = scale.AppendU32(out, d.Len)
		out = scale.AppendCompact(out, uint64(d.Elem))
	case registry.KindTuple:
		out = scale.AppendCompact(out, uint64(len(d.Tuple)))
		for _, id := range d.Tuple {
			out = scale.AppendCompact(out, uint64(id))
		}
	case registry.KindPrimitive:
		out = append(out, byte(d.Primitive))
	case registry.KindBitSequence:
		out = scale.AppendCompact(out, uint64(d.BitStore))
		out = scale.AppendCompact(out, uint64(d.BitOrder))
	}
	return append(out, 0) // docs
}

func appendPallet(out []byte, p registry.Pallet) []byte {
	out = scale.AppendString(out, p.Name)
	if p.Storage == nil {
		out = append(out, 0)
	} else {
		out = append(out, 1)
		out = scale.AppendString(out, p.Storage.Prefix)
		out = scale.AppendCompact(out, uint64(len(p.Storage.Entries)))
		for _, e := range p.Storage.Entries {
			out = scale.AppendString(out, e.Name)
			if e.Optional {
				out = append(out, 0)
			} else {
				out = append(out, 1)
			}
			if e.Map {
				out = append(out, 1)
				out = scale.AppendLengthPrefixed(out, e.Hashers)
				out = scale.AppendCompact(out, uint64(e.KeyType))
				out = scale.AppendCompact(out, uint64(e.Value))
			} else {
				out = append(out, 0)
				out = scale.AppendCompact(out, uint64(e.Value))
			}
			out = scale.AppendLengthPrefixed(out, e.Default)
			out = append(out, 0)
		}
	}
	out = appendOptionalType(out, p.CallType, p.HasCalls)
	out = appendOptionalType(out, p.EventType, p.HasEvents)
	out = scale.AppendCompact(out, uint64(len(p.Constants)))
	for _, k := range p.Constants {
		out = scale.AppendString(out, k.Name)
		out = scale.AppendCompact(out, uint64(k.TypeID))
		out = scale.AppendLengthPrefixed(out, k.Value)
		out = append(out, 0)
	}
	out = appendOptionalType(out, p.ErrorType, p.HasErrors)
	return append(out, p.Index)
}
