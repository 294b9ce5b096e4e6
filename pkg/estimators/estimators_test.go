package estimators

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

func mustFrame(t *testing.T, key domain.Key, names []string, vecs ...[]float64) *domain.Frame {
	t.Helper()
	fr, err := domain.NewFrame(key, names, vecs)
	require.NoError(t, err)
	return fr
}

func trainLine(t *testing.T, stores runtime.Stores) runtime.Model {
	t.Helper()
	p := NewLinRegParams()
	require.NoError(t, p.SetParameter(ParamResponseColumn, "y"))

	train := mustFrame(t, "train", []string{"x", "y"}, []float64{0, 1, 2, 3, math.NaN()}, []float64{1, 3, 5, 7, 100})
	model, err := NewLinReg(p, stores).Train(context.Background(), runtime.TrainInput{Key: "line", Train: train})
	require.NoError(t, err)
	return model
}

func TestLinRegFitsExactLine(t *testing.T) {
	stores := runtime.NewMemoryStores()
	model := trainLine(t, stores)

	coef, ok := Coefficients(model)
	require.True(t, ok)
	require.Len(t, coef, 2)
	assert.InDelta(t, 1.0, coef[0], 1e-9)
	assert.InDelta(t, 2.0, coef[1], 1e-9)

	mm := model.TrainingMetrics()
	require.NotNil(t, mm)
	assert.Equal(t, domain.Key("train"), mm.FrameKey)
	r2, _ := mm.Value(domain.MetricR2)
	assert.InDelta(t, 1.0, r2, 1e-9)
	nobs, _ := mm.Value(domain.MetricNObs)
	assert.Equal(t, 4.0, nobs, "the incomplete row is skipped")

	_, stored := stores.Metrics.Get("line", "train")
	assert.True(t, stored)
	assert.Nil(t, model.ValidationMetrics())
}

func TestLinRegRidgeShrinks(t *testing.T) {
	stores := runtime.NewMemoryStores()
	p := NewLinRegParams()
	require.NoError(t, p.SetParameter(ParamResponseColumn, "y"))
	require.NoError(t, p.SetParameter("lambda", 100.0))
	require.NoError(t, p.SetParameter("intercept", false))

	train := mustFrame(t, "train", []string{"x", "y"}, []float64{1, 2, 3}, []float64{2, 4, 6})
	model, err := NewLinReg(p, stores).Train(context.Background(), runtime.TrainInput{Key: "ridge", Train: train})
	require.NoError(t, err)

	coef, _ := Coefficients(model)
	assert.Equal(t, 0.0, coef[0])
	// (x'x + lambda) b = x'y  =>  b = 28 / 114
	assert.InDelta(t, 28.0/114.0, coef[1], 1e-9)

	require.Error(t, p.SetParameter("lambda", -1.0))
}

func TestLinRegRequiresResponse(t *testing.T) {
	stores := runtime.NewMemoryStores()
	train := mustFrame(t, "train", []string{"x", "y"}, []float64{1}, []float64{2})

	_, err := NewLinReg(NewLinRegParams(), stores).Train(context.Background(), runtime.TrainInput{Key: "m", Train: train})
	require.ErrorIs(t, err, domain.ErrConfigInvalid)

	p := NewLinRegParams()
	require.NoError(t, p.SetParameter(ParamResponseColumn, "z"))
	_, err = NewLinReg(p, stores).Train(context.Background(), runtime.TrainInput{Key: "m", Train: train})
	require.ErrorIs(t, err, domain.ErrColumnNotFound)
}

func TestRegressionModelScore(t *testing.T) {
	ctx := context.Background()
	stores := runtime.NewMemoryStores()
	model := trainLine(t, stores)

	test := mustFrame(t, "test", []string{"x", "y"}, []float64{4, math.NaN()}, []float64{9, 0})
	out, err := model.Score(ctx, test, "preds", true)
	require.NoError(t, err)
	assert.Equal(t, []string{PredictColumn}, out.Names())
	preds, _ := out.Vec(PredictColumn)
	assert.InDelta(t, 9.0, preds[0], 1e-9)
	assert.True(t, math.IsNaN(preds[1]))

	_, ok := stores.Frames.Get("preds")
	assert.True(t, ok)
	mm, ok := stores.Metrics.Get("line", "test")
	require.True(t, ok)
	nobs, _ := mm.Value(domain.MetricNObs)
	assert.Equal(t, 1.0, nobs)

	noResponse := mustFrame(t, "bare", []string{"x"}, []float64{1})
	_, err = model.Score(ctx, noResponse, "bare_preds", true)
	require.NoError(t, err)
	_, ok = stores.Metrics.Get("line", "bare")
	assert.False(t, ok)

	_, err = model.Score(ctx, mustFrame(t, "other", []string{"w"}, []float64{1}), "p", false)
	require.ErrorIs(t, err, domain.ErrColumnNotFound)
}

func TestRegressionModelRemove(t *testing.T) {
	stores := runtime.NewMemoryStores()
	model := trainLine(t, stores)
	require.NoError(t, stores.Models.Put(model))

	require.NoError(t, model.Remove(context.Background(), true))
	_, ok := stores.Models.Get("line")
	assert.False(t, ok)
	assert.Empty(t, stores.Metrics.ForModel("line"))
}

func TestMeanBaseline(t *testing.T) {
	stores := runtime.NewMemoryStores()
	p := NewMeanParams()
	require.NoError(t, p.SetParameter(ParamResponseColumn, "y"))

	train := mustFrame(t, "train", []string{"y"}, []float64{1, 2, 3, math.NaN()})
	valid := mustFrame(t, "valid", []string{"y"}, []float64{2, 2})
	model, err := NewMean(p, stores).Train(context.Background(), runtime.TrainInput{Key: "base", Train: train, Valid: valid})
	require.NoError(t, err)

	out, err := model.Score(context.Background(), valid, "vp", false)
	require.NoError(t, err)
	preds, _ := out.Vec(PredictColumn)
	assert.Equal(t, []float64{2, 2}, preds)

	mse, _ := model.ValidationMetrics().Value(domain.MetricMSE)
	assert.Equal(t, 0.0, mse)
}

func TestRegressionMetricBuilder(t *testing.T) {
	var b RegressionMetricBuilder
	b.PerRow([]float64{1}, []float64{1}, 1, 0)
	b.PerRow([]float64{2}, []float64{4}, 1, 0)
	b.PerRow([]float64{math.NaN()}, []float64{4}, 1, 0)
	b.PerRow([]float64{5}, []float64{4}, 0, 0)

	mm := b.MakeModelMetrics("m", "f")
	assert.Equal(t, domain.Key("m"), mm.ModelKey)
	mse, _ := mm.Value(domain.MetricMSE)
	mae, _ := mm.Value(domain.MetricMAE)
	nobs, _ := mm.Value(domain.MetricNObs)
	assert.Equal(t, 2.0, mse)
	assert.Equal(t, 1.0, mae)
	assert.Equal(t, 2.0, nobs)

	var empty RegressionMetricBuilder
	_, ok := empty.MakeModelMetrics("m", "f").Value(domain.MetricMSE)
	assert.False(t, ok)
}

func TestParamsChecksumAndHyper(t *testing.T) {
	a, b := NewLinRegParams(), NewLinRegParams()
	assert.Equal(t, a.Checksum(), b.Checksum())
	assert.NotEqual(t, a.Checksum(), NewMeanParams().Checksum())

	require.NoError(t, b.SetParameter("lambda", 0.1))
	assert.NotEqual(t, a.Checksum(), b.Checksum())

	assert.True(t, a.IsValidHyperParameter("lambda"))
	assert.False(t, a.IsValidHyperParameter(ParamResponseColumn))
	assert.False(t, a.IsValidHyperParameter("nope"))

	clone := b.Clone()
	require.NoError(t, clone.SetParameter("lambda", 0.2))
	v, _ := b.GetParameter("lambda")
	assert.Equal(t, 0.1, v)
}

func TestRegisterBuiltins(t *testing.T) {
	r := pipeline.NewRegistry()
	RegisterBuiltins(r)
	assert.Equal(t, []string{"linreg@v1", "mean@v1"}, r.EstimatorAlgos())

	p, err := r.NewEstimatorParams("glm")
	require.NoError(t, err)
	assert.Equal(t, AlgoLinReg, p.Algo())

	est, err := r.NewEstimator(p, runtime.NewMemoryStores())
	require.NoError(t, err)
	assert.IsType(t, &LinReg{}, est)

	_, err = r.NewEstimatorParams("xgboost")
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
}
