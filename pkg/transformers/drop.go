package transformers

import (
	"context"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/params"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

// KindDrop is the registry kind of ColumnDropper.
const KindDrop = "drop"

// ColumnDropper removes columns. Columns absent from the frame are ignored.
type ColumnDropper struct {
	base
}

// NewColumnDropper creates a dropper applying to every role.
func NewColumnDropper(id string, columns ...string) *ColumnDropper {
	d := &ColumnDropper{
		base: newBase(id, KindDrop, domain.AllRoles,
			params.Spec{Name: ParamColumns, Kind: params.Strings},
		),
	}
	if len(columns) > 0 {
		_ = d.table.Set(ParamColumns, columns)
	}
	return d
}

// Prepare fixes the dropped columns for the lifetime of the fit.
func (d *ColumnDropper) Prepare(context.Context, *domain.Frame, runtime.PipelineContext) error {
	d.freeze()
	return nil
}

// Transform returns fr without the configured columns.
func (d *ColumnDropper) Transform(_ context.Context, fr *domain.Frame, _ domain.Role, pc runtime.PipelineContext) (*domain.Frame, error) {
	drop := make(map[string]struct{})
	for _, c := range d.settings().Strings(ParamColumns) {
		drop[c] = struct{}{}
	}
	names := fr.Names()
	vecs := fr.Vecs()
	keptNames := make([]string, 0, len(names))
	keptVecs := make([][]float64, 0, len(vecs))
	for i, name := range names {
		if _, ok := drop[name]; ok {
			continue
		}
		keptNames = append(keptNames, name)
		keptVecs = append(keptVecs, vecs[i])
	}
	return domain.NewFrame(outputKey(fr, d.id, pc), keptNames, keptVecs)
}

// Cleanup forgets the fitted settings.
func (d *ColumnDropper) Cleanup(context.Context) error {
	d.thaw()
	return nil
}

// Clone returns a copy.
func (d *ColumnDropper) Clone() runtime.Transformer {
	return &ColumnDropper{base: d.clone()}
}
