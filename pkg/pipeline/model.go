package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
	"github.com/yanorepuser4/h2o-3/pkg/telemetry"
)

// Algo is the algorithm name reported by pipeline models.
const Algo = "pipeline"

// Model is a fitted pipeline. Score calls may run concurrently; each runs in
// its own context over the immutable fitted transformers.
type Model struct {
	key    domain.Key
	params *Parameters
	output *Output
	stores runtime.Stores
	opts   options

	mu      sync.Mutex
	metrics []*domain.ModelMetrics
}

var _ runtime.Model = (*Model)(nil)

// Key returns the pipeline model key.
func (m *Model) Key() domain.Key {
	return m.key
}

// Algo returns "pipeline".
func (m *Model) Algo() string {
	return Algo
}

// Parameters returns a copy of the parameters the model was trained with.
// Changing the copy does not affect the fitted model.
func (m *Model) Parameters() *Parameters {
	return m.params.Clone()
}

// Output returns the training output.
func (m *Model) Output() *Output {
	return m.output
}

// TrainingMetrics returns the estimator's training metrics attributed to the pipeline.
func (m *Model) TrainingMetrics() *domain.ModelMetrics {
	return m.output.TrainingMetrics()
}

// ValidationMetrics returns the estimator's validation metrics attributed to the pipeline.
func (m *Model) ValidationMetrics() *domain.ModelMetrics {
	return m.output.ValidationMetrics()
}

// ModelMetrics returns every metric attached to the model, in attachment order.
func (m *Model) ModelMetrics() []*domain.ModelMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ModelMetrics(nil), m.metrics...)
}

// AddModelMetrics attaches mm, replacing metrics previously attached for the same frame.
func (m *Model) AddModelMetrics(mm *domain.ModelMetrics) {
	if mm == nil {
		return
	}
	m.mu.Lock()
	replaced := false
	for i, existing := range m.metrics {
		if existing.FrameKey == mm.FrameKey && mm.FrameKey != "" {
			m.metrics[i] = mm
			replaced = true
			break
		}
	}
	if !replaced {
		m.metrics = append(m.metrics, mm)
	}
	m.mu.Unlock()

	if mm.FrameKey != "" {
		if err := m.stores.Metrics.Put(mm); err != nil {
			m.opts.logger.Warn("failed to store pipeline metrics", "pipeline", m.key, "frame", mm.FrameKey, "error", err)
		}
	}
}

// Score runs fr through the fitted transformers and the fitted estimator and
// stores the result under dest; an empty dest gets a generated key. A nil frame
// yields a nil result without doing anything. For a transform-only pipeline the
// result is the last transformed frame under dest.
//
// With computeMetrics, the estimator's metrics for the transformed frame are
// attached to the pipeline, keyed by the caller's frame. Every intermediate
// frame is released before Score returns, on success and failure alike; the
// returned frame belongs to the caller.
func (m *Model) Score(ctx context.Context, fr *domain.Frame, dest domain.Key, computeMetrics bool) (result *domain.Frame, err error) {
	if fr == nil {
		return nil, nil
	}
	if dest == "" {
		dest = derivedKey(m.key, "predictions")
	}

	start := time.Now()
	tracer := otel.Tracer(telemetry.TracerName)
	ctx, span := tracer.Start(ctx, "pipeline.score", trace.WithAttributes(
		attribute.String("pipeline.key", m.key.String()),
		attribute.String("frame.key", fr.Key().String()),
		attribute.String("frame.destination", dest.String()),
		attribute.Bool("metrics.compute", computeMetrics),
	))
	defer span.End()

	pc := newScopedContext(m.params, m.stores.Frames, scopeConfig{
		label:     m.key.String(),
		operation: "score",
		input:     fr,
		observer:  m.opts.observer,
	})
	defer func() {
		pc.Release(result)
		removed, kept := pc.ReleaseStats()
		telemetry.RecordReleaseEvent(span, removed, kept)
		outcome := telemetry.OutcomeSuccess
		if err != nil {
			outcome = telemetry.OutcomeFailure
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		telemetry.RecordModelMetrics(ctx, telemetry.ModelMetrics{
			PipelineKey: m.key.String(),
			Operation:   "score",
			Outcome:     outcome,
			Duration:    time.Since(start),
		})
	}()

	input := keyed(pc, fr, "input")

	chain := NewChain(m.output.Transformers()...).WithLogger(m.opts.logger)
	result, err = Transform(ctx, chain, input, domain.RoleScoring, pc, m.scoringCompleter(fr, dest, computeMetrics))
	if err != nil {
		return nil, err
	}

	m.opts.logger.Debug("pipeline scored", "pipeline", m.key, "frame", fr.Key(), "destination", dest, "duration", time.Since(start))
	return result, nil
}

func (m *Model) scoringCompleter(original *domain.Frame, dest domain.Key, computeMetrics bool) Completer[*domain.Frame] {
	return func(ctx context.Context, last *domain.Frame, _ *Context) (*domain.Frame, error) {
		estimator := m.output.Estimator()
		if estimator == nil {
			out := last.WithKey(dest)
			if err := m.stores.Frames.Put(out); err != nil {
				return nil, fmt.Errorf("store %q: %w", dest, err)
			}
			return out, nil
		}

		previous, existed := m.stores.Frames.Get(dest)
		out, err := estimator.Score(ctx, last, dest, computeMetrics)
		if err == nil && out == nil {
			err = fmt.Errorf("%w: no prediction frame", domain.ErrInvalidFrame)
		}
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			if current, ok := m.stores.Frames.Get(dest); ok && (!existed || current != previous) {
				m.stores.Frames.Remove(dest)
			}
			return nil, fmt.Errorf("estimator %q: %w", estimator.Key(), err)
		}
		if computeMetrics {
			if mm, ok := m.stores.Metrics.Get(estimator.Key(), last.Key()); ok {
				m.AddModelMetrics(mm.CloneFor(m.key, original.Key()))
				if last != original {
					m.stores.Metrics.Remove(estimator.Key(), last.Key())
				}
			}
		}
		return out, nil
	}
}

// ScoreAll scores frames concurrently. Results are keyed "<destPrefix>_<i>",
// or generated when destPrefix is empty. If any call fails, the results that
// were produced are removed and the first error is returned.
func (m *Model) ScoreAll(ctx context.Context, frames []*domain.Frame, destPrefix string, computeMetrics bool) ([]*domain.Frame, error) {
	results := make([]*domain.Frame, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	for i, fr := range frames {
		var dest domain.Key
		if destPrefix != "" {
			dest = domain.Key(fmt.Sprintf("%s_%d", destPrefix, i))
		}
		g.Go(func() error {
			out, err := m.Score(gctx, fr, dest, computeMetrics)
			if err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, out := range results {
			if out != nil {
				m.stores.Frames.Remove(out.Key())
			}
		}
		return nil, err
	}
	return results, nil
}

// Remove deletes the model and its metrics. With cascade, every fitted
// transformer is cleaned up and the fitted estimator is removed too; without
// it, they are left to whoever else references them.
func (m *Model) Remove(ctx context.Context, cascade bool) error {
	var errs []error
	if cascade {
		for _, t := range m.output.Transformers() {
			if err := t.Cleanup(ctx); err != nil {
				m.opts.logger.Warn("transformer cleanup failed", "pipeline", m.key, "transformer", t.ID(), "error", err)
				errs = append(errs, fmt.Errorf("cleanup transformer %q: %w", t.ID(), err))
			}
		}
		if estimator := m.output.Estimator(); estimator != nil {
			if err := estimator.Remove(ctx, true); err != nil {
				errs = append(errs, fmt.Errorf("remove estimator %q: %w", estimator.Key(), err))
			}
			m.stores.Models.Remove(estimator.Key())
		}
	}

	m.stores.Metrics.RemoveModel(m.key)
	m.stores.Models.Remove(m.key)

	m.mu.Lock()
	m.metrics = nil
	m.mu.Unlock()

	m.opts.logger.Info("pipeline removed", "pipeline", m.key, "cascade", cascade)
	return errors.Join(errs...)
}

// Score0 is not supported: a pipeline cannot score a raw row because its
// transformers operate on whole frames. It always panics.
func (m *Model) Score0(row []float64, preds []float64) []float64 {
	panic(&domain.UnsupportedOperationError{Op: "score0", Reason: "pipeline can not score on raw data"})
}

// MakeMetricBuilder is not supported: a pipeline delegates metrics to its
// estimator. It always panics.
func (m *Model) MakeMetricBuilder(domains []string) domain.MetricBuilder {
	panic(&domain.UnsupportedOperationError{Op: "make metric builder", Reason: "pipeline delegates metrics computation to its estimator"})
}
