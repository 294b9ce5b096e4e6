package estimators

import (
	"context"
	"fmt"
	"math"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

// PredictColumn names the prediction column of scored frames.
const PredictColumn = "predict"

// predictor maps a feature row to a prediction.
type predictor func(row []float64) float64

// RegressionModel is a fitted single-output regression model.
type RegressionModel struct {
	key      domain.Key
	algo     string
	response string
	features []string
	predict  predictor
	stores   runtime.Stores

	trainingMetrics   *domain.ModelMetrics
	validationMetrics *domain.ModelMetrics
}

var _ runtime.Model = (*RegressionModel)(nil)

// Key returns the model key.
func (m *RegressionModel) Key() domain.Key {
	return m.key
}

// Algo returns the algorithm name.
func (m *RegressionModel) Algo() string {
	return m.algo
}

// Features returns the feature columns in model order.
func (m *RegressionModel) Features() []string {
	return append([]string(nil), m.features...)
}

// TrainingMetrics returns the metrics computed on the training frame.
func (m *RegressionModel) TrainingMetrics() *domain.ModelMetrics {
	return m.trainingMetrics
}

// ValidationMetrics returns the metrics computed on the validation frame.
func (m *RegressionModel) ValidationMetrics() *domain.ModelMetrics {
	return m.validationMetrics
}

// Score predicts every row of fr into a single-column frame stored under dest.
// Rows with a missing feature predict NaN. Metrics require the response column
// and are skipped without it.
func (m *RegressionModel) Score(_ context.Context, fr *domain.Frame, dest domain.Key, computeMetrics bool) (*domain.Frame, error) {
	preds, err := m.predictFrame(fr)
	if err != nil {
		return nil, err
	}
	out, err := domain.NewFrame(dest, []string{PredictColumn}, [][]float64{preds})
	if err != nil {
		return nil, err
	}
	if err := m.stores.Frames.Put(out); err != nil {
		return nil, fmt.Errorf("store predictions: %w", err)
	}

	if computeMetrics {
		if mm, ok := m.metricsFor(fr, preds); ok {
			if err := m.stores.Metrics.Put(mm); err != nil {
				m.stores.Frames.Remove(dest)
				return nil, fmt.Errorf("store metrics: %w", err)
			}
		}
	}
	return out, nil
}

func (m *RegressionModel) predictFrame(fr *domain.Frame) ([]float64, error) {
	cols := make([][]float64, len(m.features))
	for i, name := range m.features {
		vec, err := fr.MustVec(name)
		if err != nil {
			return nil, err
		}
		cols[i] = vec
	}
	preds := make([]float64, fr.NumRows())
	row := make([]float64, len(cols))
	for r := range preds {
		missing := false
		for i, col := range cols {
			row[i] = col[r]
			missing = missing || domain.IsNA(col[r])
		}
		if missing {
			preds[r] = math.NaN()
			continue
		}
		preds[r] = m.predict(row)
	}
	return preds, nil
}

func (m *RegressionModel) metricsFor(fr *domain.Frame, preds []float64) (*domain.ModelMetrics, bool) {
	actual, ok := fr.Vec(m.response)
	if !ok || fr.Key() == "" {
		return nil, false
	}
	var b RegressionMetricBuilder
	for r, p := range preds {
		b.PerRow([]float64{p}, []float64{actual[r]}, 1, 0)
	}
	return b.MakeModelMetrics(m.key, fr.Key()), true
}

// Remove deletes the model and its metrics from the stores.
func (m *RegressionModel) Remove(context.Context, bool) error {
	m.stores.Metrics.RemoveModel(m.key)
	m.stores.Models.Remove(m.key)
	return nil
}
