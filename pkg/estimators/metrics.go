package estimators

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
)

// RegressionMetricBuilder accumulates predictions and actual values of a
// regression model. Rows with a missing prediction or actual value are skipped.
type RegressionMetricBuilder struct {
	preds   []float64
	actuals []float64
	weights []float64
}

var _ domain.MetricBuilder = (*RegressionMetricBuilder)(nil)

// PerRow records one row. Only the first prediction and actual value are used.
func (b *RegressionMetricBuilder) PerRow(preds, actual []float64, weight, offset float64) {
	if len(preds) == 0 || len(actual) == 0 || weight == 0 {
		return
	}
	p, a := preds[0]+offset, actual[0]
	if domain.IsNA(p) || domain.IsNA(a) {
		return
	}
	b.preds = append(b.preds, p)
	b.actuals = append(b.actuals, a)
	b.weights = append(b.weights, weight)
}

// MakeModelMetrics summarises the recorded rows.
func (b *RegressionMetricBuilder) MakeModelMetrics(model, frame domain.Key) *domain.ModelMetrics {
	values := map[string]float64{domain.MetricNObs: float64(len(b.preds))}
	if len(b.preds) > 0 {
		var sq, abs, wsum float64
		for i, p := range b.preds {
			diff := p - b.actuals[i]
			sq += b.weights[i] * diff * diff
			abs += b.weights[i] * math.Abs(diff)
			wsum += b.weights[i]
		}
		mse := sq / wsum
		values[domain.MetricMSE] = mse
		values[domain.MetricRMSE] = math.Sqrt(mse)
		values[domain.MetricMAE] = abs / wsum
		values[domain.MetricR2] = stat.RSquaredFrom(b.preds, b.actuals, b.weights)
	}
	return &domain.ModelMetrics{
		ModelKey:    model,
		FrameKey:    frame,
		Description: "regression",
		Values:      values,
		CreatedAt:   time.Now(),
	}
}
