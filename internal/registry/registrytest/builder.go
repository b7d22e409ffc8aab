// Package registrytest builds type registries and metadata payloads for tests.
package registrytest

import (
	"paraScope/internal/registry"
)

// Builder assigns sequential type ids in insertion order.
type Builder struct {
	types []registry.Type
	prims map[registry.Primitive]uint32
}

func NewBuilder() *Builder {
	return &Builder{prims: make(map[registry.Primitive]uint32)}
}

// Reserve allocates an id whose definition is filled in later with Set, for
// recursive types.
func (b *Builder) Reserve() uint32 {
	id := uint32(len(b.types))
	b.types = append(b.types, registry.Type{ID: id})
	return id
}

func (b *Builder) Set(id uint32, path []string, def registry.TypeDef, params ...registry.TypeParam) {
	b.types[id] = registry.Type{ID: id, Path: path, Def: def, Params: params}
}

func (b *Builder) Add(path []string, def registry.TypeDef, params ...registry.TypeParam) uint32 {
	id := b.Reserve()
	b.Set(id, path, def, params...)
	return id
}

func (b *Builder) Prim(p registry.Primitive) uint32 {
	if id, ok := b.prims[p]; ok {
		return id
	}
	id := b.Add(nil, registry.TypeDef{Kind: registry.KindPrimitive, Primitive: p})
	b.prims[p] = id
	return id
}

func (b *Builder) Composite(path []string, fields ...registry.Field) uint32 {
	return b.Add(path, registry.TypeDef{Kind: registry.KindComposite, Fields: fields})
}

func (b *Builder) Variant(path []string, variants ...registry.Variant) uint32 {
	return b.Add(path, registry.TypeDef{Kind: registry.KindVariant, Variants: variants})
}

func (b *Builder) Sequence(elem uint32) uint32 {
	return b.Add(nil, registry.TypeDef{Kind: registry.KindSequence, Elem: elem})
}

func (b *Builder) Array(n uint32, elem uint32) uint32 {
	return b.Add(nil, registry.TypeDef{Kind: registry.KindArray, Len: n, Elem: elem})
}

func (b *Builder) Tuple(ids ...uint32) uint32 {
	return b.Add(nil, registry.TypeDef{Kind: registry.KindTuple, Tuple: ids})
}

func (b *Builder) Compact(elem uint32) uint32 {
	return b.Add(nil, registry.TypeDef{Kind: registry.KindCompact, Elem: elem})
}

func (b *Builder) BitSequence(store, order uint32) uint32 {
	return b.Add(nil, registry.TypeDef{Kind: registry.KindBitSequence, BitStore: store, BitOrder: order})
}

func (b *Builder) Types() []registry.Type {
	return b.types
}

func (b *Builder) Registry() *registry.Registry {
	return registry.New(b.types)
}

// F is a named field.
func F(name string, id uint32) registry.Field {
	return registry.Field{Name: name, TypeID: id}
}

// U is an unnamed field.
func U(id uint32) registry.Field {
	return registry.Field{TypeID: id}
}

func V(name string, index uint8, fields ...registry.Field) registry.Variant {
	return registry.Variant{Name: name, Index: index, Fields: fields}
}

func P(name string, id uint32) registry.TypeParam {
	return registry.TypeParam{Name: name, TypeID: id, HasType: true}
}

func Path(segments ...string) []string {
	return segments
}
