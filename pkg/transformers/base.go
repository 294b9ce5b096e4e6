// Package transformers provides the built-in frame transformers.
package transformers

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/params"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

// Parameter names shared by the built-in transformers.
const (
	ParamRoles   = "roles"
	ParamColumns = "columns"
)

// base carries the identity and parameters common to every built-in transformer.
//
// The parameter table is configuration. Fitting snapshots it, and a fitted
// transformer reads the snapshot only, so later SetParameter calls change its
// checksum and clones but never its transform.
type base struct {
	id    string
	kind  string
	table *params.Table
	fit   *snapshot
}

type snapshot struct {
	mu    sync.RWMutex
	table *params.Table
}

func newBase(id, kind string, roles domain.RoleSet, specs ...params.Spec) base {
	names := make([]string, 0, 3)
	for _, r := range roles.List() {
		names = append(names, r.String())
	}
	specs = append([]params.Spec{{
		Name:     ParamRoles,
		Kind:     params.Strings,
		Default:  names,
		Validate: validateRoles,
	}}, specs...)
	return base{id: id, kind: kind, table: params.NewTable(specs...), fit: &snapshot{}}
}

func validateRoles(v any) error {
	names := v.([]string)
	if len(names) == 0 {
		return errors.New("at least one role is required")
	}
	for _, name := range names {
		if _, err := domain.ParseRole(name); err != nil {
			return err
		}
	}
	return nil
}

func (b *base) clone() base {
	return base{id: b.id, kind: b.kind, table: b.table.Clone(), fit: &snapshot{}}
}

// freeze snapshots the current parameters as the fitted settings.
func (b *base) freeze() *params.Table {
	frozen := b.table.Clone()
	b.fit.mu.Lock()
	b.fit.table = frozen
	b.fit.mu.Unlock()
	return frozen
}

func (b *base) thaw() {
	b.fit.mu.Lock()
	b.fit.table = nil
	b.fit.mu.Unlock()
}

// settings returns the fitted snapshot, or the live table before fitting.
func (b *base) settings() *params.Table {
	b.fit.mu.RLock()
	defer b.fit.mu.RUnlock()
	if b.fit.table != nil {
		return b.fit.table
	}
	return b.table
}

// ID returns the transformer id.
func (b *base) ID() string {
	return b.id
}

// Kind returns the registry kind.
func (b *base) Kind() string {
	return b.kind
}

// Roles returns the frame roles the transformer applies to.
func (b *base) Roles() domain.RoleSet {
	var set domain.RoleSet
	for _, name := range b.settings().Strings(ParamRoles) {
		if r, err := domain.ParseRole(name); err == nil {
			set |= domain.Roles(r)
		}
	}
	return set
}

// GetParameter returns a parameter value.
func (b *base) GetParameter(name string) (any, error) {
	return b.table.Get(name)
}

// SetParameter sets a parameter value.
func (b *base) SetParameter(name string, value any) error {
	return b.table.Set(name, value)
}

// HasParameter reports whether name is a parameter.
func (b *base) HasParameter(name string) bool {
	return b.table.Has(name)
}

// Checksum hashes the kind and the parameters, never the id.
func (b *base) Checksum() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(b.kind)
	_, _ = d.WriteString(":")
	b.table.WriteTo(d)
	return d.Sum64()
}

// selectColumns returns the configured columns, or every column of fr except
// the response when none are configured.
func (b *base) selectColumns(settings *params.Table, fr *domain.Frame, pc runtime.PipelineContext) ([]string, error) {
	cols := settings.Strings(ParamColumns)
	if len(cols) == 0 {
		response := ""
		if pc != nil {
			response = pc.ResponseColumn()
		}
		for _, name := range fr.Names() {
			if name != response {
				cols = append(cols, name)
			}
		}
		return cols, nil
	}
	for _, c := range cols {
		if fr.Index(c) < 0 {
			return nil, fmt.Errorf("%w: %q in frame %q", domain.ErrColumnNotFound, c, fr.Key())
		}
	}
	return cols, nil
}

func (b *base) notFitted() error {
	return fmt.Errorf("%w: %s %q", domain.ErrNotFitted, b.kind, b.id)
}

func outputKey(fr *domain.Frame, id string, pc runtime.PipelineContext) domain.Key {
	if pc != nil {
		return pc.NewKey(id)
	}
	return domain.Key(fmt.Sprintf("%s_%s", fr.Key(), id))
}

// applyParams builds a transformer through its parameter table.
func applyParams[T runtime.Transformer](t T, values map[string]any) (runtime.Transformer, error) {
	for _, name := range sortedNames(values) {
		if err := t.SetParameter(name, values[name]); err != nil {
			return nil, err
		}
	}
	return t, nil
}
