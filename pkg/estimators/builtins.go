package estimators

import (
	"fmt"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

// RegisterBuiltins registers the built-in estimators with r.
func RegisterBuiltins(r *pipeline.Registry) {
	r.RegisterEstimator(AlgoLinReg, "v1", pipeline.EstimatorFactory{
		NewParams: func() runtime.EstimatorParams { return NewLinRegParams() },
		NewEstimator: func(p runtime.EstimatorParams, stores runtime.Stores) (runtime.Estimator, error) {
			lp, err := asParams(p, AlgoLinReg)
			if err != nil {
				return nil, err
			}
			return NewLinReg(lp, stores), nil
		},
	}, "glm", "linear_regression", "ridge")
	r.RegisterEstimator(AlgoMean, "v1", pipeline.EstimatorFactory{
		NewParams: func() runtime.EstimatorParams { return NewMeanParams() },
		NewEstimator: func(p runtime.EstimatorParams, stores runtime.Stores) (runtime.Estimator, error) {
			mp, err := asParams(p, AlgoMean)
			if err != nil {
				return nil, err
			}
			return NewMean(mp, stores), nil
		},
	}, "baseline")
}

func asParams(p runtime.EstimatorParams, algo string) (*Params, error) {
	bp, ok := p.(*Params)
	if !ok || bp.algo != algo {
		return nil, fmt.Errorf("%w: %T is not a %s configuration", domain.ErrConfigInvalid, p, algo)
	}
	return bp, nil
}
