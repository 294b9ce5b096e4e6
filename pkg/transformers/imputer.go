package transformers

import (
	"context"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/params"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

// KindImputer is the registry kind of MeanImputer.
const KindImputer = "imputer"

// MeanImputer replaces missing values with the training mean of their column.
type MeanImputer struct {
	base

	mu    sync.RWMutex
	means map[string]float64
}

// NewMeanImputer creates an unfitted imputer applying to every role.
func NewMeanImputer(id string) *MeanImputer {
	return &MeanImputer{
		base: newBase(id, KindImputer, domain.AllRoles,
			params.Spec{Name: ParamColumns, Kind: params.Strings},
		),
	}
}

// Prepare learns the column means from train. A column without observed
// values imputes zero.
func (m *MeanImputer) Prepare(_ context.Context, train *domain.Frame, pc runtime.PipelineContext) error {
	cols, err := m.selectColumns(m.freeze(), train, pc)
	if err != nil {
		return err
	}
	means := make(map[string]float64, len(cols))
	for _, c := range cols {
		vec, _ := train.Vec(c)
		values := nonMissing(vec)
		if len(values) == 0 {
			means[c] = 0
			continue
		}
		means[c] = stat.Mean(values, nil)
	}

	m.mu.Lock()
	m.means = means
	m.mu.Unlock()
	return nil
}

// Transform returns a frame without missing values in the fitted columns.
// Columns without missing values are shared with the input.
func (m *MeanImputer) Transform(_ context.Context, fr *domain.Frame, _ domain.Role, pc runtime.PipelineContext) (*domain.Frame, error) {
	m.mu.RLock()
	means := m.means
	m.mu.RUnlock()
	if means == nil {
		return nil, m.notFitted()
	}

	names := fr.Names()
	vecs := fr.Vecs()
	for i, name := range names {
		mean, ok := means[name]
		if !ok || !hasMissing(vecs[i]) {
			continue
		}
		out := make([]float64, len(vecs[i]))
		for r, v := range vecs[i] {
			if domain.IsNA(v) {
				v = mean
			}
			out[r] = v
		}
		vecs[i] = out
	}
	for name := range means {
		if fr.Index(name) < 0 {
			return nil, fmt.Errorf("%w: fitted column %q missing from frame %q", domain.ErrColumnNotFound, name, fr.Key())
		}
	}
	return domain.NewFrame(outputKey(fr, m.id, pc), names, vecs)
}

// Cleanup drops the fitted means.
func (m *MeanImputer) Cleanup(context.Context) error {
	m.mu.Lock()
	m.means = nil
	m.mu.Unlock()
	m.thaw()
	return nil
}

// Clone returns an unfitted copy.
func (m *MeanImputer) Clone() runtime.Transformer {
	return &MeanImputer{base: m.clone()}
}

func hasMissing(vec []float64) bool {
	for _, v := range vec {
		if domain.IsNA(v) {
			return true
		}
	}
	return false
}
