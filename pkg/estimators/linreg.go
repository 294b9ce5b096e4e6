package estimators

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/params"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

// AlgoLinReg is the registry name of the ridge linear regression.
const AlgoLinReg = "linreg"

// NewLinRegParams returns the default linear regression configuration.
// lambda is the L2 penalty, never applied to the intercept.
func NewLinRegParams() *Params {
	return newParams(AlgoLinReg,
		params.Spec{Name: "lambda", Kind: params.Float, Default: 0.0, Hyper: true, Validate: nonNegative},
		params.Spec{Name: "intercept", Kind: params.Bool, Default: true, Hyper: true},
	)
}

// LinReg fits a ridge regression by solving the normal equations.
type LinReg struct {
	params *Params
	stores runtime.Stores
}

// NewLinReg creates the estimator.
func NewLinReg(p *Params, stores runtime.Stores) *LinReg {
	return &LinReg{params: p, stores: stores}
}

// Train fits the coefficients on the complete rows of in.Train.
func (e *LinReg) Train(_ context.Context, in runtime.TrainInput) (runtime.Model, error) {
	ds, err := newDataset(in.Train, e.params)
	if err != nil {
		return nil, err
	}
	if len(ds.rows) == 0 {
		return nil, fmt.Errorf("%w: no complete rows in frame %q", domain.ErrInvalidFrame, in.Train.Key())
	}

	intercept := e.params.table.Bool("intercept")
	lambda := e.params.table.Float("lambda")
	p := len(ds.features)
	offset := 0
	if intercept {
		offset = 1
	}

	x := mat.NewDense(len(ds.rows), p+offset, nil)
	y := mat.NewVecDense(len(ds.rows), nil)
	for i, r := range ds.rows {
		if intercept {
			x.Set(i, 0, 1)
		}
		for j, v := range r.x {
			x.Set(i, j+offset, v)
		}
		y.SetVec(i, r.y)
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for j := offset; j < p+offset; j++ {
		xtx.Set(j, j, xtx.At(j, j)+lambda)
	}
	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		// an ill-conditioned but finite system still yields a usable solution
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, fmt.Errorf("%w: solve normal equations: %v", domain.ErrInvalidFrame, err)
		}
	}

	coef := make([]float64, p)
	for j := range coef {
		coef[j] = beta.AtVec(j + offset)
	}
	b0 := 0.0
	if intercept {
		b0 = beta.AtVec(0)
	}

	model := &RegressionModel{
		key:      in.Key,
		algo:     AlgoLinReg,
		response: ds.response,
		features: ds.features,
		stores:   e.stores,
		predict: func(row []float64) float64 {
			return b0 + mat.Dot(mat.NewVecDense(len(coef), coef), mat.NewVecDense(len(row), row))
		},
	}
	if err := model.attachMetrics(in); err != nil {
		return nil, err
	}
	return model, nil
}

// Coefficients returns the intercept followed by one coefficient per feature
// of a model trained by LinReg.
func Coefficients(m runtime.Model) ([]float64, bool) {
	rm, ok := m.(*RegressionModel)
	if !ok || rm.algo != AlgoLinReg {
		return nil, false
	}
	zero := make([]float64, len(rm.features))
	out := []float64{rm.predict(zero)}
	for j := range rm.features {
		unit := make([]float64, len(rm.features))
		unit[j] = 1
		out = append(out, rm.predict(unit)-out[0])
	}
	return out, true
}
