package transformers

import (
	"context"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/params"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

// KindMissingFilter is the registry kind of MissingRowFilter.
const KindMissingFilter = "filter.missing"

// MissingRowFilter drops rows with a missing value in any of the configured
// columns. It applies to training frames only unless configured otherwise,
// since scoring must return one prediction per input row.
type MissingRowFilter struct {
	base
}

// NewMissingRowFilter creates a filter applying to training frames.
func NewMissingRowFilter(id string) *MissingRowFilter {
	return &MissingRowFilter{
		base: newBase(id, KindMissingFilter, domain.Roles(domain.RoleTraining),
			params.Spec{Name: ParamColumns, Kind: params.Strings},
		),
	}
}

// Prepare fixes the checked columns and roles for the lifetime of the fit.
func (f *MissingRowFilter) Prepare(context.Context, *domain.Frame, runtime.PipelineContext) error {
	f.freeze()
	return nil
}

// Transform returns the complete rows of fr.
func (f *MissingRowFilter) Transform(_ context.Context, fr *domain.Frame, _ domain.Role, pc runtime.PipelineContext) (*domain.Frame, error) {
	cols := f.settings().Strings(ParamColumns)
	if len(cols) == 0 {
		cols = fr.Names()
	}
	checked := make([][]float64, 0, len(cols))
	for _, c := range cols {
		vec, err := fr.MustVec(c)
		if err != nil {
			return nil, err
		}
		checked = append(checked, vec)
	}

	keep := make([]int, 0, fr.NumRows())
	for r := 0; r < fr.NumRows(); r++ {
		complete := true
		for _, vec := range checked {
			if domain.IsNA(vec[r]) {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, r)
		}
	}

	vecs := fr.Vecs()
	for i, vec := range vecs {
		out := make([]float64, len(keep))
		for j, r := range keep {
			out[j] = vec[r]
		}
		vecs[i] = out
	}
	return domain.NewFrame(outputKey(fr, f.id, pc), fr.Names(), vecs)
}

// Cleanup forgets the fitted settings.
func (f *MissingRowFilter) Cleanup(context.Context) error {
	f.thaw()
	return nil
}

// Clone returns a copy.
func (f *MissingRowFilter) Clone() runtime.Transformer {
	return &MissingRowFilter{base: f.clone()}
}
