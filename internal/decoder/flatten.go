package decoder

import "strings"

// Pair is one leaf of a flattened tree.
type Pair struct {
	Path  string
	Value *Value
}

// Flatten lists the leaves of v under dotted paths in member order. The
// reserved type key is skipped and empty objects produce no entry.
func Flatten(v *Value) []Pair {
	var out []Pair
	flatten(v, nil, func(path []string, leaf *Value) {
		out = append(out, Pair{Path: strings.Join(path, "."), Value: leaf})
	})
	return out
}

// FlattenMap is Flatten keyed by path.
func FlattenMap(v *Value) map[string]*Value {
	out := make(map[string]*Value)
	flatten(v, nil, func(path []string, leaf *Value) {
		out[strings.Join(path, ".")] = leaf
	})
	return out
}

func flatten(v *Value, path []string, emit func([]string, *Value)) {
	if v.Kind != KindObject {
		emit(path, v)
		return
	}
	for i := range v.Fields {
		f := &v.Fields[i]
		if f.Name == TypeKey {
			continue
		}
		flatten(&f.Value, append(path, f.Name), emit)
	}
}
