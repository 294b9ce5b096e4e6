package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Stage outcomes reported by RecordStageMetrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// TracerName is the instrumentation scope used for pipeline spans.
const TracerName = "h2o.pipeline"

var (
	metricsOnce           sync.Once
	metricsInitErr        error
	stageExecutionCount   metric.Int64Counter
	stageLatencyHist      metric.Float64Histogram
	modelOperationCount   metric.Int64Counter
	modelOperationLatency metric.Float64Histogram
)

// StageMetrics captures the fields needed to record one transformer stage execution.
type StageMetrics struct {
	PipelineKey   string
	TransformerID string
	Role          string
	Outcome       string
	Duration      time.Duration
}

// ModelMetrics captures one train or score call of a pipeline model.
type ModelMetrics struct {
	PipelineKey string
	Operation   string
	Outcome     string
	Duration    time.Duration
}

// RecordStageMetrics emits counters and histograms that describe stage execution behaviour.
func RecordStageMetrics(ctx context.Context, m StageMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("pipeline.key", m.PipelineKey),
		attribute.String("transformer.id", m.TransformerID),
		attribute.String("frame.role", m.Role),
		attribute.String("stage.outcome", m.Outcome),
	}

	stageExecutionCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	if m.Duration > 0 {
		stageLatencyHist.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
}

// RecordModelMetrics emits the train/score call counters of a pipeline model.
func RecordModelMetrics(ctx context.Context, m ModelMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("pipeline.key", m.PipelineKey),
		attribute.String("model.operation", m.Operation),
		attribute.String("model.outcome", m.Outcome),
	}

	modelOperationCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	if m.Duration > 0 {
		modelOperationLatency.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(TracerName)

		stageExecutionCount, metricsInitErr = meter.Int64Counter(
			"pipeline.stage.executions_total",
			metric.WithDescription("Transformer stage executions partitioned by role and outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		stageLatencyHist, metricsInitErr = meter.Float64Histogram(
			"pipeline.stage.duration_ms",
			metric.WithDescription("Observed transformer stage latency"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		modelOperationCount, metricsInitErr = meter.Int64Counter(
			"pipeline.model.operations_total",
			metric.WithDescription("Pipeline train and score calls partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		modelOperationLatency, metricsInitErr = meter.Float64Histogram(
			"pipeline.model.duration_ms",
			metric.WithDescription("Observed pipeline train and score latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}

// RecordReleaseEvent attaches the outcome of an execution context teardown to span.
func RecordReleaseEvent(span trace.Span, released, kept int) {
	if span == nil || !span.IsRecording() {
		return
	}

	span.AddEvent("context.release", trace.WithAttributes(
		attribute.Int("frames.released", released),
		attribute.Int("frames.kept", kept),
	))
}
