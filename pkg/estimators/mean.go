package estimators

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

// AlgoMean is the registry name of the mean baseline.
const AlgoMean = "mean"

// NewMeanParams returns the mean baseline configuration.
func NewMeanParams() *Params {
	return newParams(AlgoMean)
}

// Mean predicts the training mean of the response for every row.
type Mean struct {
	params *Params
	stores runtime.Stores
}

// NewMean creates the estimator.
func NewMean(p *Params, stores runtime.Stores) *Mean {
	return &Mean{params: p, stores: stores}
}

// Train computes the response mean over the rows where it is present.
func (e *Mean) Train(_ context.Context, in runtime.TrainInput) (runtime.Model, error) {
	response := e.params.table.String(ParamResponseColumn)
	vec, err := requireResponse(in.Train, response)
	if err != nil {
		return nil, err
	}
	values := make([]float64, 0, len(vec))
	for _, v := range vec {
		if !domain.IsNA(v) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: response %q has no values", domain.ErrInvalidFrame, response)
	}
	mean := stat.Mean(values, nil)

	model := &RegressionModel{
		key:      in.Key,
		algo:     AlgoMean,
		response: response,
		stores:   e.stores,
		predict:  func([]float64) float64 { return mean },
	}
	if err := model.attachMetrics(in); err != nil {
		return nil, err
	}
	return model, nil
}
