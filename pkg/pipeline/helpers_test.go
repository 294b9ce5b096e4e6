package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/params"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

var errStage = errors.New("stage exploded")

// callLog records stage activity across clones of stub transformers.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// shiftTransformer adds delta to column. Prepare records the training mean of
// column, which Transform subtracts when center is set.
type shiftTransformer struct {
	id     string
	roles  domain.RoleSet
	table  *params.Table
	failOn domain.Role
	log    *callLog

	mu      sync.Mutex
	fitted  bool
	mean    float64
	cleaned int
}

func newShift(id string, delta float64, log *callLog) *shiftTransformer {
	s := &shiftTransformer{
		id:    id,
		roles: domain.AllRoles,
		table: params.NewTable(
			params.Spec{Name: "column", Kind: params.String, Default: "x"},
			params.Spec{Name: "delta", Kind: params.Float, Default: delta},
			params.Spec{Name: "center", Kind: params.Bool},
		),
		log: log,
	}
	return s
}

func (s *shiftTransformer) ID() string            { return s.id }
func (s *shiftTransformer) Kind() string          { return "shift" }
func (s *shiftTransformer) Roles() domain.RoleSet { return s.roles }

func (s *shiftTransformer) GetParameter(name string) (any, error) { return s.table.Get(name) }
func (s *shiftTransformer) SetParameter(name string, v any) error { return s.table.Set(name, v) }
func (s *shiftTransformer) HasParameter(name string) bool         { return s.table.Has(name) }
func (s *shiftTransformer) Checksum() uint64                      { return s.table.Checksum() }

func (s *shiftTransformer) Prepare(_ context.Context, train *domain.Frame, _ runtime.PipelineContext) error {
	vec, err := train.MustVec(s.table.String("column"))
	if err != nil {
		return err
	}
	sum := 0.0
	for _, v := range vec {
		sum += v
	}
	s.mu.Lock()
	s.fitted = true
	s.mean = sum / float64(len(vec))
	s.mu.Unlock()
	if s.log != nil {
		s.log.add("%s:prepare", s.id)
	}
	return nil
}

func (s *shiftTransformer) Transform(_ context.Context, fr *domain.Frame, role domain.Role, pc runtime.PipelineContext) (*domain.Frame, error) {
	if s.log != nil {
		s.log.add("%s:%s", s.id, role)
	}
	if s.failOn != 0 && s.failOn == role {
		return nil, errStage
	}
	s.mu.Lock()
	fitted, mean := s.fitted, s.mean
	s.mu.Unlock()
	if !fitted {
		return nil, domain.ErrNotFitted
	}

	column := s.table.String("column")
	delta := s.table.Float("delta")
	if !s.table.Bool("center") {
		mean = 0
	}
	names := fr.Names()
	vecs := fr.Vecs()
	idx := fr.Index(column)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrColumnNotFound, column)
	}
	out := make([]float64, len(vecs[idx]))
	for i, v := range vecs[idx] {
		out[i] = v - mean + delta
	}
	vecs[idx] = out
	return domain.NewFrame(pc.NewKey(s.id), names, vecs)
}

func (s *shiftTransformer) Cleanup(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = false
	s.cleaned++
	return nil
}

func (s *shiftTransformer) Clone() runtime.Transformer {
	return &shiftTransformer{
		id:     s.id,
		roles:  s.roles,
		table:  s.table.Clone(),
		failOn: s.failOn,
		log:    s.log,
	}
}

func (s *shiftTransformer) cleanups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleaned
}

// stubEstimatorParams configures stubEstimator.
type stubEstimatorParams struct {
	table *params.Table
}

func newStubEstimatorParams() *stubEstimatorParams {
	return &stubEstimatorParams{table: params.NewTable(
		params.Spec{Name: "response_column", Kind: params.String},
		params.Spec{Name: "bias", Kind: params.Float, Hyper: true},
		params.Spec{Name: "fail", Kind: params.Bool},
	)}
}

func (p *stubEstimatorParams) Algo() string                          { return "stub" }
func (p *stubEstimatorParams) GetParameter(name string) (any, error) { return p.table.Get(name) }
func (p *stubEstimatorParams) SetParameter(name string, v any) error { return p.table.Set(name, v) }
func (p *stubEstimatorParams) HasParameter(name string) bool         { return p.table.Has(name) }
func (p *stubEstimatorParams) IsValidHyperParameter(name string) bool {
	return p.table.IsHyper(name)
}
func (p *stubEstimatorParams) Checksum() uint64 { return p.table.Checksum() }
func (p *stubEstimatorParams) Clone() runtime.EstimatorParams {
	return &stubEstimatorParams{table: p.table.Clone()}
}

// stubEstimator predicts x + bias.
type stubEstimator struct {
	params *stubEstimatorParams
	stores runtime.Stores
}

func (e *stubEstimator) Train(_ context.Context, in runtime.TrainInput) (runtime.Model, error) {
	if e.params.table.Bool("fail") {
		return nil, errors.New("training diverged")
	}
	m := &stubModel{
		key:      in.Key,
		bias:     e.params.table.Float("bias"),
		response: e.params.table.String("response_column"),
		stores:   e.stores,
	}
	m.training = m.metrics(in.Train)
	if in.Valid != nil {
		m.validation = m.metrics(in.Valid)
	}
	return m, nil
}

type stubModel struct {
	key        domain.Key
	bias       float64
	response   string
	stores     runtime.Stores
	training   *domain.ModelMetrics
	validation *domain.ModelMetrics
	removed    bool

	// scoreErr fails Score after the predictions are stored.
	scoreErr error
}

func (m *stubModel) Key() domain.Key                         { return m.key }
func (m *stubModel) Algo() string                            { return "stub" }
func (m *stubModel) TrainingMetrics() *domain.ModelMetrics   { return m.training }
func (m *stubModel) ValidationMetrics() *domain.ModelMetrics { return m.validation }

func (m *stubModel) predict(fr *domain.Frame) ([]float64, error) {
	x, err := fr.MustVec("x")
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v + m.bias
	}
	return out, nil
}

func (m *stubModel) metrics(fr *domain.Frame) *domain.ModelMetrics {
	preds, err := m.predict(fr)
	if err != nil {
		return nil
	}
	y, ok := fr.Vec(m.response)
	if !ok {
		return nil
	}
	sq := 0.0
	for i, p := range preds {
		sq += (p - y[i]) * (p - y[i])
	}
	mm := &domain.ModelMetrics{
		ModelKey: m.key,
		FrameKey: fr.Key(),
		Values:   map[string]float64{domain.MetricMSE: sq / float64(len(preds))},
	}
	_ = m.stores.Metrics.Put(mm)
	return mm
}

func (m *stubModel) Score(_ context.Context, fr *domain.Frame, dest domain.Key, computeMetrics bool) (*domain.Frame, error) {
	preds, err := m.predict(fr)
	if err != nil {
		return nil, err
	}
	out, err := domain.NewFrame(dest, []string{"predict"}, [][]float64{preds})
	if err != nil {
		return nil, err
	}
	if err := m.stores.Frames.Put(out); err != nil {
		return nil, err
	}
	if m.scoreErr != nil {
		return nil, m.scoreErr
	}
	if computeMetrics {
		m.metrics(fr)
	}
	return out, nil
}

func (m *stubModel) Remove(context.Context, bool) error {
	m.removed = true
	m.stores.Metrics.RemoveModel(m.key)
	return nil
}

func newStubRegistry() *Registry {
	r := NewRegistry()
	r.RegisterEstimator("stub", "v1", EstimatorFactory{
		NewParams: func() runtime.EstimatorParams { return newStubEstimatorParams() },
		NewEstimator: func(p runtime.EstimatorParams, stores runtime.Stores) (runtime.Estimator, error) {
			return &stubEstimator{params: p.(*stubEstimatorParams), stores: stores}, nil
		},
	})
	return r
}

func mustFrame(t *testing.T, key domain.Key, names []string, vecs ...[]float64) *domain.Frame {
	t.Helper()
	fr, err := domain.NewFrame(key, names, vecs)
	require.NoError(t, err)
	return fr
}

func column(t *testing.T, fr *domain.Frame, name string) []float64 {
	t.Helper()
	v, ok := fr.Vec(name)
	require.True(t, ok, "column %q", name)
	return v
}

// trainFrame has x = 1..4 and y = x + 1.
func trainFrame(t *testing.T) *domain.Frame {
	return mustFrame(t, "train", []string{"x", "y"}, []float64{1, 2, 3, 4}, []float64{2, 3, 4, 5})
}

type countingObserver struct {
	mu       sync.Mutex
	tracked  int
	released int
	kept     int
}

func (o *countingObserver) FrameTracked(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tracked++
}

func (o *countingObserver) FrameReleased(kept bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.released++
	if kept {
		o.kept++
	}
}
