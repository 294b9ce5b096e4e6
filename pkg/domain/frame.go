package domain

import (
	"fmt"
	"math"
)

// Key identifies a frame or a model in a key-addressed store.
type Key string

// String returns the key as a plain string.
func (k Key) String() string {
	return string(k)
}

// Frame is a handle over named numeric columns. Missing values are NaN.
//
// The handle is shared by reference; the content may be replaced by the owner.
// Column slices may be shared between frames derived from one another, so
// transformers must never write into a column they did not allocate.
type Frame struct {
	key    Key
	origin Key
	names  []string
	vecs   [][]float64
}

// NewFrame builds a frame. All columns must have the same length and names must be unique.
func NewFrame(key Key, names []string, vecs [][]float64) (*Frame, error) {
	if len(names) != len(vecs) {
		return nil, fmt.Errorf("%w: %d names for %d columns", ErrInvalidFrame, len(names), len(vecs))
	}
	seen := make(map[string]struct{}, len(names))
	rows := -1
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("%w: column %d has no name", ErrInvalidFrame, i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidFrame, name)
		}
		seen[name] = struct{}{}
		if rows >= 0 && len(vecs[i]) != rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, expected %d", ErrInvalidFrame, name, len(vecs[i]), rows)
		}
		rows = len(vecs[i])
	}
	return &Frame{
		key:   key,
		names: append([]string(nil), names...),
		vecs:  append([][]float64(nil), vecs...),
	}, nil
}

// Key returns the frame key; anonymous frames have an empty key.
func (f *Frame) Key() Key {
	return f.key
}

// SetKey assigns the frame identity. Trackers use it to name anonymous frames.
func (f *Frame) SetKey(key Key) {
	f.key = key
}

// Origin returns the key of the frame a pipeline run started from, if any.
func (f *Frame) Origin() Key {
	return f.origin
}

// SetOrigin records the key of the frame this frame was derived from.
func (f *Frame) SetOrigin(origin Key) {
	f.origin = origin
}

// WithKey returns a new frame under key sharing this frame's columns.
func (f *Frame) WithKey(key Key) *Frame {
	return &Frame{
		key:    key,
		origin: f.origin,
		names:  append([]string(nil), f.names...),
		vecs:   append([][]float64(nil), f.vecs...),
	}
}

// Names returns a copy of the column names.
func (f *Frame) Names() []string {
	return append([]string(nil), f.names...)
}

// Vecs returns the columns in name order. The slice is a copy, the columns are not.
func (f *Frame) Vecs() [][]float64 {
	return append([][]float64(nil), f.vecs...)
}

// NumCols returns the number of columns.
func (f *Frame) NumCols() int {
	return len(f.names)
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int {
	if len(f.vecs) == 0 {
		return 0
	}
	return len(f.vecs[0])
}

// Index returns the position of the named column or -1.
func (f *Frame) Index(name string) int {
	for i, n := range f.names {
		if n == name {
			return i
		}
	}
	return -1
}

// Vec returns the named column.
func (f *Frame) Vec(name string) ([]float64, bool) {
	idx := f.Index(name)
	if idx < 0 {
		return nil, false
	}
	return f.vecs[idx], true
}

// MustVec returns the named column or an ErrColumnNotFound error.
func (f *Frame) MustVec(name string) ([]float64, error) {
	v, ok := f.Vec(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q in frame %q", ErrColumnNotFound, name, f.key)
	}
	return v, nil
}

// Row copies row i into dst, growing it when needed.
func (f *Frame) Row(i int, dst []float64) []float64 {
	if cap(dst) < len(f.vecs) {
		dst = make([]float64, len(f.vecs))
	}
	dst = dst[:len(f.vecs)]
	for c, v := range f.vecs {
		dst[c] = v[i]
	}
	return dst
}

// IsNA reports whether v is a missing value.
func IsNA(v float64) bool {
	return math.IsNaN(v)
}
