package domain

import (
	"sort"
	"time"
)

// Metric names reported by regression estimators.
const (
	MetricMSE  = "mse"
	MetricRMSE = "rmse"
	MetricMAE  = "mae"
	MetricR2   = "r2"
	MetricNObs = "nobs"
)

// ModelMetrics summarises how a model performed on one frame.
// Metrics are addressed by the (model, frame) pair they were computed for.
type ModelMetrics struct {
	ModelKey    Key
	FrameKey    Key
	Description string
	Values      map[string]float64
	CreatedAt   time.Time
}

// Value returns a named metric.
func (m *ModelMetrics) Value(name string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m.Values[name]
	return v, ok
}

// Names returns the metric names in sorted order.
func (m *ModelMetrics) Names() []string {
	names := make([]string, 0, len(m.Values))
	for k := range m.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// CloneFor returns a deep copy attributed to another model and frame.
func (m *ModelMetrics) CloneFor(model, frame Key) *ModelMetrics {
	if m == nil {
		return nil
	}
	values := make(map[string]float64, len(m.Values))
	for k, v := range m.Values {
		values[k] = v
	}
	return &ModelMetrics{
		ModelKey:    model,
		FrameKey:    frame,
		Description: m.Description,
		Values:      values,
		CreatedAt:   m.CreatedAt,
	}
}

// MetricBuilder accumulates per-row predictions and produces model metrics.
type MetricBuilder interface {
	PerRow(preds []float64, actual []float64, weight, offset float64)
	MakeModelMetrics(model, frame Key) *ModelMetrics
}
