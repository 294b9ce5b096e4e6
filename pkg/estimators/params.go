// Package estimators provides the built-in regression estimators.
package estimators

import (
	"errors"

	"github.com/cespare/xxhash/v2"

	"github.com/yanorepuser4/h2o-3/pkg/params"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

// Parameter names shared by the built-in estimators.
const (
	ParamResponseColumn = "response_column"
	ParamIgnoredColumns = "ignored_columns"
)

// Params is the configuration of a built-in estimator.
type Params struct {
	algo  string
	table *params.Table
}

var _ runtime.EstimatorParams = (*Params)(nil)

func newParams(algo string, specs ...params.Spec) *Params {
	specs = append([]params.Spec{
		{Name: ParamResponseColumn, Kind: params.String},
		{Name: ParamIgnoredColumns, Kind: params.Strings},
	}, specs...)
	return &Params{algo: algo, table: params.NewTable(specs...)}
}

// Algo returns the algorithm name.
func (p *Params) Algo() string {
	return p.algo
}

// GetParameter returns a parameter value.
func (p *Params) GetParameter(name string) (any, error) {
	return p.table.Get(name)
}

// SetParameter sets a parameter value.
func (p *Params) SetParameter(name string, value any) error {
	return p.table.Set(name, value)
}

// HasParameter reports whether name is a parameter.
func (p *Params) HasParameter(name string) bool {
	return p.table.Has(name)
}

// IsValidHyperParameter reports whether a grid may search name.
func (p *Params) IsValidHyperParameter(name string) bool {
	return p.table.IsHyper(name)
}

// Checksum hashes the algorithm and every parameter.
func (p *Params) Checksum() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(p.algo)
	_, _ = d.WriteString(":")
	p.table.WriteTo(d)
	return d.Sum64()
}

// Clone returns an independent copy.
func (p *Params) Clone() runtime.EstimatorParams {
	return &Params{algo: p.algo, table: p.table.Clone()}
}

func nonNegative(v any) error {
	if v.(float64) < 0 {
		return errors.New("must be non-negative")
	}
	return nil
}
