package grid

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
)

// HyperSpaceField is the field name reported by hyper space parse errors.
const HyperSpaceField = "hyper_parameters"

// HyperSpace maps parameter paths to the values a search tries for them.
type HyperSpace struct {
	paths  []string
	values map[string][]any
}

// NewHyperSpace builds a space from values. Every path needs at least one value.
func NewHyperSpace(values map[string][]any) (HyperSpace, error) {
	s := HyperSpace{values: make(map[string][]any, len(values))}
	for path, vs := range values {
		if len(vs) == 0 {
			return HyperSpace{}, fmt.Errorf("%w: no values for hyper-parameter %q", domain.ErrConfigInvalid, path)
		}
		s.paths = append(s.paths, path)
		s.values[path] = append([]any(nil), vs...)
	}
	sort.Strings(s.paths)
	return s, nil
}

// ParseHyperSpace decodes a JSON object of path to value list, for example
//
//	{"estimator.lambda": [0, 0.1, 1], "scale.center": [true, false]}
//
// A scalar is a single-value list.
func ParseHyperSpace(raw string) (HyperSpace, error) {
	if !gjson.Valid(raw) {
		return HyperSpace{}, &domain.ConfigError{Field: HyperSpaceField, Raw: raw, Err: errors.New("invalid JSON")}
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return HyperSpace{}, &domain.ConfigError{Field: HyperSpaceField, Raw: raw, Err: fmt.Errorf("expected a JSON object, got %s", parsed.Type)}
	}

	values := make(map[string][]any)
	var err error
	parsed.ForEach(func(key, value gjson.Result) bool {
		path := key.String()
		if !value.IsArray() {
			values[path] = []any{value.Value()}
			return true
		}
		items := value.Array()
		if len(items) == 0 {
			err = &domain.ConfigError{Field: HyperSpaceField, Raw: raw, Err: fmt.Errorf("no values for %q", path)}
			return false
		}
		for _, item := range items {
			values[path] = append(values[path], item.Value())
		}
		return true
	})
	if err != nil {
		return HyperSpace{}, err
	}
	return NewHyperSpace(values)
}

// Paths returns the searched paths in sorted order.
func (s HyperSpace) Paths() []string {
	return append([]string(nil), s.paths...)
}

// Values returns the values tried for path.
func (s HyperSpace) Values(path string) []any {
	return append([]any(nil), s.values[path]...)
}

// Size returns the number of combinations.
func (s HyperSpace) Size() int {
	n := 1
	for _, p := range s.paths {
		n *= len(s.values[p])
	}
	return n
}

// Combinations enumerates the cartesian product. The last path varies fastest.
func (s HyperSpace) Combinations() []map[string]any {
	out := make([]map[string]any, 0, s.Size())
	idx := make([]int, len(s.paths))
	for {
		combo := make(map[string]any, len(s.paths))
		for i, p := range s.paths {
			combo[p] = s.values[p][idx[i]]
		}
		out = append(out, combo)

		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(s.values[s.paths[i]]) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return out
		}
	}
}
