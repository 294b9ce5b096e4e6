package pipeline

import (
	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

// Output holds what training produced: the fitted transformers, the fitted
// estimator and the estimator's metrics re-attributed to the pipeline.
type Output struct {
	transformers      []runtime.Transformer
	estimator         runtime.Model
	trainingMetrics   *domain.ModelMetrics
	validationMetrics *domain.ModelMetrics
}

func newOutput(transformers []runtime.Transformer, estimator runtime.Model) *Output {
	return &Output{
		transformers: append([]runtime.Transformer(nil), transformers...),
		estimator:    estimator,
	}
}

// sync mirrors the estimator's metrics, keyed to the pipeline model and the
// caller's frames rather than the transformed frames the estimator saw.
// Cross-validation metrics are not mirrored.
func (o *Output) sync(pipelineKey domain.Key, train, valid *domain.Frame) {
	if o.estimator == nil {
		return
	}
	if mm := o.estimator.TrainingMetrics(); mm != nil && train != nil {
		o.trainingMetrics = mm.CloneFor(pipelineKey, train.Key())
	}
	if mm := o.estimator.ValidationMetrics(); mm != nil && valid != nil {
		o.validationMetrics = mm.CloneFor(pipelineKey, valid.Key())
	}
}

// Transformers returns the fitted transformers in order.
func (o *Output) Transformers() []runtime.Transformer {
	return append([]runtime.Transformer(nil), o.transformers...)
}

// Estimator returns the fitted estimator, or nil for a transform-only pipeline.
func (o *Output) Estimator() runtime.Model {
	return o.estimator
}

// TrainingMetrics returns the mirrored training metrics.
func (o *Output) TrainingMetrics() *domain.ModelMetrics {
	return o.trainingMetrics
}

// ValidationMetrics returns the mirrored validation metrics.
func (o *Output) ValidationMetrics() *domain.ModelMetrics {
	return o.validationMetrics
}
