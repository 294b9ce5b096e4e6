package transformers

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/params"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

// KindScaler is the registry kind of StandardScaler.
const KindScaler = "scaler"

// StandardScaler centers and scales numeric columns with statistics learnt on
// the training frame. Missing values are left missing.
type StandardScaler struct {
	base

	mu     sync.RWMutex
	fitted map[string]moments
	center bool
	scale  bool
}

type moments struct {
	mean, sd float64
}

// NewStandardScaler creates an unfitted scaler applying to every role.
func NewStandardScaler(id string) *StandardScaler {
	return &StandardScaler{
		base: newBase(id, KindScaler, domain.AllRoles,
			params.Spec{Name: ParamColumns, Kind: params.Strings},
			params.Spec{Name: "center", Kind: params.Bool, Default: true},
			params.Spec{Name: "scale", Kind: params.Bool, Default: true},
		),
	}
}

// Prepare learns column means and standard deviations from train.
func (s *StandardScaler) Prepare(_ context.Context, train *domain.Frame, pc runtime.PipelineContext) error {
	settings := s.freeze()
	cols, err := s.selectColumns(settings, train, pc)
	if err != nil {
		return err
	}
	fitted := make(map[string]moments, len(cols))
	for _, c := range cols {
		vec, _ := train.Vec(c)
		values := nonMissing(vec)
		if len(values) == 0 {
			fitted[c] = moments{mean: 0, sd: 1}
			continue
		}
		mean, sd := stat.MeanStdDev(values, nil)
		if len(values) < 2 || sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		fitted[c] = moments{mean: mean, sd: sd}
	}

	s.mu.Lock()
	s.fitted = fitted
	s.center, s.scale = settings.Bool("center"), settings.Bool("scale")
	s.mu.Unlock()
	return nil
}

// Transform returns a frame with the fitted columns standardised.
func (s *StandardScaler) Transform(_ context.Context, fr *domain.Frame, _ domain.Role, pc runtime.PipelineContext) (*domain.Frame, error) {
	s.mu.RLock()
	fitted, center, scale := s.fitted, s.center, s.scale
	s.mu.RUnlock()
	if fitted == nil {
		return nil, s.notFitted()
	}

	names := fr.Names()
	vecs := fr.Vecs()
	for i, name := range names {
		m, ok := fitted[name]
		if !ok {
			continue
		}
		out := make([]float64, len(vecs[i]))
		for r, v := range vecs[i] {
			if center {
				v -= m.mean
			}
			if scale {
				v /= m.sd
			}
			out[r] = v
		}
		vecs[i] = out
	}
	for name := range fitted {
		if fr.Index(name) < 0 {
			return nil, fmt.Errorf("%w: fitted column %q missing from frame %q", domain.ErrColumnNotFound, name, fr.Key())
		}
	}
	return domain.NewFrame(outputKey(fr, s.id, pc), names, vecs)
}

// Cleanup drops the fitted statistics.
func (s *StandardScaler) Cleanup(context.Context) error {
	s.mu.Lock()
	s.fitted = nil
	s.mu.Unlock()
	s.thaw()
	return nil
}

// Clone returns an unfitted copy.
func (s *StandardScaler) Clone() runtime.Transformer {
	return &StandardScaler{base: s.clone()}
}

// Moments returns the fitted mean and standard deviation of column.
func (s *StandardScaler) Moments(column string) (mean, sd float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.fitted[column]
	return m.mean, m.sd, ok
}

func nonMissing(vec []float64) []float64 {
	out := make([]float64, 0, len(vec))
	for _, v := range vec {
		if !domain.IsNA(v) {
			out = append(out, v)
		}
	}
	return out
}
