// Package params implements the typed, named parameter tables backing
// transformer and estimator configuration.
package params

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
)

// Kind is the value type of a parameter.
type Kind int

const (
	Float Kind = iota
	Int
	Bool
	String
	Strings
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Strings:
		return "strings"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Spec declares one parameter.
type Spec struct {
	Name    string
	Kind    Kind
	Default any
	// Hyper marks the parameter as searchable by a grid.
	Hyper bool
	// Validate runs after coercion.
	Validate func(v any) error
}

// Table holds parameter values in declaration order.
type Table struct {
	order  []string
	specs  map[string]Spec
	values map[string]any
}

// NewTable builds a table populated with the declared defaults.
// It panics on a default that does not coerce, which is a programming error.
func NewTable(specs ...Spec) *Table {
	t := &Table{
		specs:  make(map[string]Spec, len(specs)),
		values: make(map[string]any, len(specs)),
	}
	for _, s := range specs {
		v, err := Coerce(s.Kind, s.Default)
		if err != nil {
			panic(fmt.Sprintf("params: default for %s: %v", s.Name, err))
		}
		t.order = append(t.order, s.Name)
		t.specs[s.Name] = s
		t.values[s.Name] = v
	}
	return t
}

// Names returns the declared parameter names in order.
func (t *Table) Names() []string {
	return append([]string(nil), t.order...)
}

// Has reports whether name is declared.
func (t *Table) Has(name string) bool {
	_, ok := t.specs[name]
	return ok
}

// IsHyper reports whether name is declared and searchable.
func (t *Table) IsHyper(name string) bool {
	s, ok := t.specs[name]
	return ok && s.Hyper
}

// Get returns the current value of name.
func (t *Table) Get(name string) (any, error) {
	if !t.Has(name) {
		return nil, fmt.Errorf("%w: no parameter %q", domain.ErrConfigInvalid, name)
	}
	v := t.values[name]
	if ss, ok := v.([]string); ok {
		return append([]string(nil), ss...), nil
	}
	return v, nil
}

// Set coerces and validates value before storing it.
func (t *Table) Set(name string, value any) error {
	s, ok := t.specs[name]
	if !ok {
		return fmt.Errorf("%w: no parameter %q", domain.ErrConfigInvalid, name)
	}
	v, err := Coerce(s.Kind, value)
	if err == nil && s.Validate != nil {
		err = s.Validate(v)
	}
	if err != nil {
		return &domain.ParameterError{Name: name, Raw: fmt.Sprint(value), Err: err}
	}
	t.values[name] = v
	return nil
}

// Apply sets every entry of values in name order, stopping at the first error.
func (t *Table) Apply(values map[string]any) error {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := t.Set(name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

// Float returns a float parameter, or zero.
func (t *Table) Float(name string) float64 {
	v, _ := t.values[name].(float64)
	return v
}

// Int returns an int parameter, or zero.
func (t *Table) Int(name string) int {
	v, _ := t.values[name].(int)
	return v
}

// Bool returns a bool parameter, or false.
func (t *Table) Bool(name string) bool {
	v, _ := t.values[name].(bool)
	return v
}

// String returns a string parameter, or "".
func (t *Table) String(name string) string {
	v, _ := t.values[name].(string)
	return v
}

// Strings returns a copy of a list parameter.
func (t *Table) Strings(name string) []string {
	v, _ := t.values[name].([]string)
	return append([]string(nil), v...)
}

// Clone returns an independent copy.
func (t *Table) Clone() *Table {
	c := &Table{
		order:  t.order,
		specs:  t.specs,
		values: make(map[string]any, len(t.values)),
	}
	for k, v := range t.values {
		if ss, ok := v.([]string); ok {
			v = append([]string(nil), ss...)
		}
		c.values[k] = v
	}
	return c
}

// WriteTo folds every parameter into d in declaration order, skipping the
// names in exclude.
func (t *Table) WriteTo(d *xxhash.Digest, exclude ...string) {
	skip := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		skip[name] = struct{}{}
	}
	for _, name := range t.order {
		if _, ok := skip[name]; ok {
			continue
		}
		_, _ = d.WriteString(name)
		_, _ = d.WriteString("=")
		_, _ = d.WriteString(Format(t.values[name]))
		_, _ = d.WriteString(";")
	}
}

// Checksum hashes the table contents.
func (t *Table) Checksum(exclude ...string) uint64 {
	d := xxhash.New()
	t.WriteTo(d, exclude...)
	return d.Sum64()
}

// Format renders a coerced value canonically.
func Format(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return strconv.Quote(x)
	case []string:
		quoted := make([]string, len(x))
		for i, s := range x {
			quoted[i] = strconv.Quote(s)
		}
		return "[" + strings.Join(quoted, ",") + "]"
	case nil:
		return "null"
	default:
		return fmt.Sprint(x)
	}
}

var errWrongType = errors.New("wrong type")

// Coerce converts loosely typed input, such as decoded JSON or command-line
// text, to the Go type of kind.
func Coerce(kind Kind, v any) (any, error) {
	switch kind {
	case Float:
		return toFloat(v)
	case Int:
		return toInt(v)
	case Bool:
		return toBool(v)
	case String:
		switch x := v.(type) {
		case nil:
			return "", nil
		case string:
			return x, nil
		case fmt.Stringer:
			return x.String(), nil
		}
	case Strings:
		return toStrings(v)
	}
	return nil, fmt.Errorf("%w: expected %s, got %T", errWrongType, kind, v)
}

func toFloat(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return 0.0, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number: %w", err)
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: expected float, got %T", errWrongType, v)
}

func toInt(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("expected an integer, got %v", x)
		}
		return int(x), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return nil, fmt.Errorf("expected an integer: %w", err)
		}
		return i, nil
	}
	return nil, fmt.Errorf("%w: expected int, got %T", errWrongType, v)
}

func toBool(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return nil, fmt.Errorf("expected a boolean: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: expected bool, got %T", errWrongType, v)
}

func toStrings(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return append([]string{}, x...), nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: expected list of strings, found %T", errWrongType, item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		out := []string{}
		for _, part := range strings.Split(x, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: expected list of strings, got %T", errWrongType, v)
}
