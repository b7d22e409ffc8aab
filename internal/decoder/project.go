package decoder

import (
	"strings"

	"paraScope/internal/registry"
	"paraScope/internal/scale"
)

// Leaf is a borrowed slice of the input reported at a dotted path.
type Leaf struct {
	Path   string
	Data   []byte
	TypeID uint32
}

// Project walks one value of type id and keeps the leaves whose dotted path
// is in paths. Paths match segment for segment; the returned data borrows the
// input.
func Project(reg *registry.Registry, id uint32, c *scale.Cursor, paths ...string) (map[string]Leaf, error) {
	want := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		want[p] = struct{}{}
	}
	got := make(map[string]Leaf, len(paths))
	err := Walk(reg, id, c, func(path []string, data []byte, typeID uint32) error {
		key := strings.Join(path, ".")
		if _, ok := want[key]; ok {
			got[key] = Leaf{Path: key, Data: data, TypeID: typeID}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return got, nil
}

// Leaves collects every leaf of one value in walk order.
func Leaves(reg *registry.Registry, id uint32, c *scale.Cursor) ([]Leaf, error) {
	var out []Leaf
	err := Walk(reg, id, c, func(path []string, data []byte, typeID uint32) error {
		out = append(out, Leaf{Path: strings.Join(path, "."), Data: data, TypeID: typeID})
		return nil
	})
	return out, err
}
