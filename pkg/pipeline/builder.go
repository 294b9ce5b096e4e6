package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
	"github.com/yanorepuser4/h2o-3/pkg/telemetry"
)

// Option configures a Builder and the models it trains.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	observer TrackerObserver
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTrackerObserver reports tracked and released frames to observer.
func WithTrackerObserver(observer TrackerObserver) Option {
	return func(o *options) {
		o.observer = observer
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Builder trains pipeline models.
type Builder struct {
	params   *Parameters
	registry *Registry
	stores   runtime.Stores
	opts     options
}

// NewBuilder validates params and creates a builder.
func NewBuilder(params *Parameters, registry *Registry, stores runtime.Stores, opts ...Option) (*Builder, error) {
	if params == nil {
		return nil, fmt.Errorf("%w: nil parameters", domain.ErrConfigInvalid)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.Estimator != nil && registry == nil {
		return nil, fmt.Errorf("%w: a registry is required to train estimator %q", domain.ErrConfigInvalid, params.Estimator.Algo())
	}
	return &Builder{
		params:   params,
		registry: registry,
		stores:   stores,
		opts:     buildOptions(opts),
	}, nil
}

// Train fits the transformers on train, trains the estimator on the
// transformed frames and stores the resulting pipeline model. Transformers are
// fitted on clones; the builder's parameters are not modified. Every
// intermediate frame is released before Train returns.
func (b *Builder) Train(ctx context.Context, train, valid *domain.Frame) (model *Model, err error) {
	if train == nil {
		return nil, fmt.Errorf("%w: nil training frame", domain.ErrInvalidFrame)
	}

	params := b.params.Clone()
	if params.EstimatorKeyGen == nil {
		params.EstimatorKeyGen = DefaultEstimatorKeyGen
	}
	if params.ModelID == "" {
		params.ModelID = NewModelKey("pipeline")
	}
	if err := propagateBaseParams(params); err != nil {
		return nil, err
	}
	key := params.ModelID

	start := time.Now()
	tracer := otel.Tracer(telemetry.TracerName)
	ctx, span := tracer.Start(ctx, "pipeline.train", trace.WithAttributes(
		attribute.String("pipeline.key", key.String()),
		attribute.String("frame.key", train.Key().String()),
		attribute.Int("pipeline.transformers", len(params.Transformers)),
	))
	defer span.End()

	pc := newScopedContext(params, b.stores.Frames, scopeConfig{
		label:     key.String(),
		operation: "train",
		input:     train,
		train:     train,
		valid:     valid,
		observer:  b.opts.observer,
	})
	defer func() {
		pc.Release()
		removed, kept := pc.ReleaseStats()
		telemetry.RecordReleaseEvent(span, removed, kept)
		b.opts.logger.Debug("training context released", "pipeline", key, "removed", removed, "kept", kept)
		outcome := telemetry.OutcomeSuccess
		if err != nil {
			outcome = telemetry.OutcomeFailure
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		telemetry.RecordModelMetrics(ctx, telemetry.ModelMetrics{
			PipelineKey: key.String(),
			Operation:   "train",
			Outcome:     outcome,
			Duration:    time.Since(start),
		})
	}()

	chain := NewChain(params.Transformers...).WithLogger(b.opts.logger)
	estimator, err := Transform(ctx, chain, keyed(pc, train, "train"), domain.RoleTraining, pc, b.trainingCompleter(chain, key))
	if err != nil {
		return nil, err
	}

	if estimator != nil {
		if err := b.stores.Models.Put(estimator); err != nil {
			return nil, fmt.Errorf("store estimator %q: %w", estimator.Key(), err)
		}
	}

	output := newOutput(params.Transformers, estimator)
	output.sync(key, train, valid)
	if estimator != nil {
		// the delegate's entries point at transformed frames released below
		for _, mm := range []*domain.ModelMetrics{estimator.TrainingMetrics(), estimator.ValidationMetrics()} {
			if mm != nil && mm.FrameKey != train.Key() && (valid == nil || mm.FrameKey != valid.Key()) {
				b.stores.Metrics.Remove(mm.ModelKey, mm.FrameKey)
			}
		}
	}

	model = &Model{
		key:    key,
		params: params,
		output: output,
		stores: b.stores,
		opts:   b.opts,
	}
	for _, mm := range []*domain.ModelMetrics{output.TrainingMetrics(), output.ValidationMetrics()} {
		if mm != nil {
			model.AddModelMetrics(mm)
		}
	}
	if err := b.stores.Models.Put(model); err != nil {
		return nil, fmt.Errorf("store pipeline %q: %w", key, err)
	}

	b.opts.logger.Info("pipeline trained",
		"pipeline", key,
		"transformers", len(params.Transformers),
		"estimator", estimatorKey(estimator),
		"duration", time.Since(start),
	)
	return model, nil
}

// trainingCompleter transforms the validation frame with the now fitted stages
// and trains the estimator on the results.
func (b *Builder) trainingCompleter(chain *Chain, key domain.Key) Completer[runtime.Model] {
	return func(ctx context.Context, fr *domain.Frame, pc *Context) (runtime.Model, error) {
		params := pc.Parameters()
		if params.Estimator == nil {
			return nil, nil
		}

		var valid *domain.Frame
		if v := pc.ValidationFrame(); v != nil {
			out, err := chain.Transform(ctx, keyed(pc, v, "valid"), domain.RoleValidation, pc)
			if err != nil {
				return nil, fmt.Errorf("validation frame: %w", err)
			}
			valid = out
		}

		estimator, err := b.registry.NewEstimator(params.Estimator, b.stores)
		if err != nil {
			return nil, err
		}
		model, err := estimator.Train(ctx, runtime.TrainInput{
			Key:   params.EstimatorKeyGen.Make(key),
			Train: fr,
			Valid: valid,
		})
		if err != nil {
			return nil, fmt.Errorf("estimator %q: %w", params.Estimator.Algo(), err)
		}
		return model, nil
	}
}

// keyed returns fr, or a tracked keyed copy when fr is anonymous, so that
// downstream stages and the estimator always see a named frame.
func keyed(pc *Context, fr *domain.Frame, stage string) *domain.Frame {
	if fr.Key() != "" {
		return fr
	}
	return pc.Track(fr.WithKey(pc.NewKey(stage)))
}

// propagateBaseParams copies the pipeline-level settings that were given onto
// the estimator, for the ones it declares.
func propagateBaseParams(p *Parameters) error {
	if p.Estimator == nil {
		return nil
	}
	fields := []struct {
		name  string
		value any
		set   bool
	}{
		{ParamResponseColumn, p.ResponseColumn, p.ResponseColumn != ""},
		{ParamIgnoredColumns, p.IgnoredColumns, len(p.IgnoredColumns) > 0},
		{ParamSeed, int(p.Seed), p.Seed >= 0},
	}
	for _, f := range fields {
		if !f.set || !p.Estimator.HasParameter(f.name) {
			continue
		}
		if err := p.Estimator.SetParameter(f.name, f.value); err != nil {
			return pathError(f.name, err)
		}
	}
	return nil
}

func estimatorKey(m runtime.Model) string {
	if m == nil {
		return ""
	}
	return m.Key().String()
}
