package pipeline

import (
	"context"
	"errors"
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

// Completer is the terminal step of a chain run. It receives the output of the
// last applicable stage.
type Completer[R any] func(ctx context.Context, fr *domain.Frame, pc *Context) (R, error)

// Chain is a fixed, ordered sequence of transformers. A chain holds no per-call
// state and may be reused for any number of calls.
type Chain struct {
	transformers []runtime.Transformer
	logger       *slog.Logger
}

// NewChain creates a chain over a copy of transformers.
func NewChain(transformers ...runtime.Transformer) *Chain {
	return &Chain{
		transformers: append([]runtime.Transformer(nil), transformers...),
		logger:       slog.Default(),
	}
}

// WithLogger sets the logger used for stage logs.
func (c *Chain) WithLogger(logger *slog.Logger) *Chain {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Len returns the number of stages.
func (c *Chain) Len() int {
	return len(c.transformers)
}

// Transformers returns the stages in order.
func (c *Chain) Transformers() []runtime.Transformer {
	return append([]runtime.Transformer(nil), c.transformers...)
}

// Transform runs the applicable stages of chain over fr and hands the last
// frame to complete. Stage i+1 starts only once stage i returned. Every stage
// output is tracked by pc. During training, stages that learn from data are
// prepared on the frame they receive before transforming it, whether or not
// they apply to training frames.
//
// The first failing stage aborts the run; its error is returned wrapped with the
// transformer id and complete is not called.
func Transform[R any](ctx context.Context, chain *Chain, fr *domain.Frame, role domain.Role, pc *Context, complete Completer[R]) (R, error) {
	var zero R
	if fr == nil {
		return zero, fmt.Errorf("%w: nil frame", domain.ErrInvalidFrame)
	}

	tracer := otel.Tracer(telemetry.TracerName)
	current := fr
	for _, t := range chain.transformers {
		next, err := chain.runStage(ctx, tracer, t, current, role, pc)
		if err != nil {
			return zero, err
		}
		current = next
	}

	return complete(ctx, current, pc)
}

func (c *Chain) runStage(ctx context.Context, tracer trace.Tracer, t runtime.Transformer, fr *domain.Frame, role domain.Role, pc *Context) (*domain.Frame, error) {
	applies := t.Roles().Contains(role)
	preparer, prepares := t.(runtime.Preparer)
	prepares = prepares && role == domain.RoleTraining

	metrics := telemetry.StageMetrics{
		PipelineKey:   pc.label,
		TransformerID: t.ID(),
		Role:          role.String(),
		Outcome:       telemetry.OutcomeSkipped,
	}
	if !applies && !prepares {
		telemetry.RecordStageMetrics(ctx, metrics)
		return fr, nil
	}

	stageCtx, span := tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(
		attribute.String("transformer.id", t.ID()),
		attribute.String("transformer.kind", t.Kind()),
		attribute.String("frame.role", role.String()),
		attribute.String("frame.key", fr.Key().String()),
	))
	defer span.End()

	start := time.Now()
	out, err := c.stage(stageCtx, t, preparer, prepares, applies, fr, role, pc)
	metrics.Duration = time.Since(start)
	switch {
	case err != nil:
		metrics.Outcome = telemetry.OutcomeFailure
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case applies:
		metrics.Outcome = telemetry.OutcomeSuccess
	}
	span.SetAttributes(attribute.String("stage.outcome", metrics.Outcome))
	telemetry.RecordStageMetrics(stageCtx, metrics)

	if err != nil {
		c.logger.Debug("transformer stage failed", "transformer", t.ID(), "role", role.String(), "error", err)
		return nil, fmt.Errorf("transformer %q: %w", t.ID(), err)
	}
	c.logger.Debug("transformer stage complete",
		"transformer", t.ID(),
		"role", role.String(),
		"duration", metrics.Duration,
	)
	return out, nil
}

func (c *Chain) stage(ctx context.Context, t runtime.Transformer, preparer runtime.Preparer, prepares, applies bool, fr *domain.Frame, role domain.Role, pc *Context) (*domain.Frame, error) {
	if prepares {
		if err := preparer.Prepare(ctx, fr, pc); err != nil {
			return nil, fmt.Errorf("prepare: %w", err)
		}
	}
	if !applies {
		return fr, nil
	}
	out, err := t.Transform(ctx, fr, role, pc)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("transform returned no frame")
	}
	return pc.Track(out), nil
}

// Transform runs the chain and returns the last frame.
func (c *Chain) Transform(ctx context.Context, fr *domain.Frame, role domain.Role, pc *Context) (*domain.Frame, error) {
	return Transform(ctx, c, fr, role, pc, passThrough)
}

// Prepare fits every stage on the context's training frame without completing.
func (c *Chain) Prepare(ctx context.Context, pc *Context) error {
	train := pc.TrainingFrame()
	if train == nil {
		return fmt.Errorf("%w: no training frame to prepare on", domain.ErrInvalidFrame)
	}
	_, err := c.Transform(ctx, train, domain.RoleTraining, pc)
	return err
}

func passThrough(_ context.Context, fr *domain.Frame, _ *Context) (*domain.Frame, error) {
	return fr, nil
}
