package registry

import (
	"fmt"
	"strings"
)

// Registry is the flat, immutable catalog of type definitions decoded from
// one metadata payload. It is safe for concurrent readers.
type Registry struct {
	types []Type
	index map[uint32]int
}

// New builds a registry from types in first-seen order.
func New(types []Type) *Registry {
	r := &Registry{
		types: types,
		index: make(map[uint32]int, len(types)),
	}
	for i, t := range types {
		if _, dup := r.index[t.ID]; dup {
			continue
		}
		r.index[t.ID] = i
	}
	return r
}

func (r *Registry) Len() int {
	return len(r.types)
}

// Types returns the entries in first-seen order. Callers must not mutate them.
func (r *Registry) Types() []Type {
	return r.types
}

// Resolve returns the type with the given id.
func (r *Registry) Resolve(id uint32) (*Type, error) {
	i, ok := r.index[id]
	if !ok {
		return nil, fmt.Errorf("type %d not in registry: %w", id, ErrCorruptMetadata)
	}
	return &r.types[i], nil
}

// FindByPath returns the first type whose path exactly equals segments.
func (r *Registry) FindByPath(segments ...string) (uint32, bool) {
	for i := range r.types {
		if pathEquals(r.types[i].Path, segments) {
			return r.types[i].ID, true
		}
	}
	return 0, false
}

// EventRoot returns the outer runtime event enum.
func (r *Registry) EventRoot() (uint32, error) {
	return r.runtimeRoot("Event", "RuntimeEvent")
}

// CallRoot returns the outer runtime call enum.
func (r *Registry) CallRoot() (uint32, error) {
	return r.runtimeRoot("Call", "RuntimeCall")
}

func (r *Registry) runtimeRoot(names ...string) (uint32, error) {
	for i := range r.types {
		p := r.types[i].Path
		if len(p) != 2 || !strings.HasSuffix(p[0], "_runtime") {
			continue
		}
		for _, name := range names {
			if p[1] == name {
				return r.types[i].ID, nil
			}
		}
	}
	return 0, fmt.Errorf("no runtime %s type: %w", strings.Join(names, "/"), ErrCorruptMetadata)
}

// IsU8 reports whether id resolves to the u8 primitive.
func (r *Registry) IsU8(id uint32) bool {
	t, err := r.Resolve(id)
	if err != nil {
		return false
	}
	return t.Def.Kind == KindPrimitive && t.Def.Primitive == PrimU8
}

func pathEquals(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
