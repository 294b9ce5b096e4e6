package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
	"github.com/yanorepuser4/h2o-3/pkg/storage"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("tracer provider shutdown: %v", err)
		}
	})
	return recorder
}

func trainingContext(store storage.FrameStore, train *domain.Frame, transformers ...runtime.Transformer) *Context {
	return newScopedContext(NewParameters(nil, transformers...), store, scopeConfig{
		label:     "test",
		operation: "train",
		input:     train,
		train:     train,
	})
}

func TestTransformRunsStagesInOrder(t *testing.T) {
	log := &callLog{}
	a, b := newShift("a", 1, log), newShift("b", 10, log)
	chain := NewChain(a, b)
	train := trainFrame(t)
	store := storage.NewFrameStore()
	pc := trainingContext(store, train, a, b)

	var seen *domain.Frame
	out, err := Transform(context.Background(), chain, train, domain.RoleTraining, pc,
		func(_ context.Context, fr *domain.Frame, _ *Context) (int, error) {
			seen = fr
			return fr.NumRows(), nil
		})
	require.NoError(t, err)
	assert.Equal(t, 4, out)
	assert.Equal(t, []string{"a:prepare", "a:training", "b:prepare", "b:training"}, log.list())
	assert.Equal(t, []float64{12, 13, 14, 15}, column(t, seen, "x"))
	assert.Equal(t, []float64{1, 2, 3, 4}, column(t, train, "x"), "the input is never modified")
	assert.Equal(t, domain.Key("train"), seen.Origin())
	assert.Equal(t, 2, store.Len())

	pc.Release()
	assert.Zero(t, store.Len())
}

func TestTransformSkipsStagesOutsideTheirRoles(t *testing.T) {
	log := &callLog{}
	a, b := newShift("a", 1, log), newShift("b", 10, log)
	b.roles = domain.Roles(domain.RoleTraining)
	chain := NewChain(a, b)
	train := trainFrame(t)
	pc := trainingContext(storage.NewFrameStore(), train, a, b)
	defer pc.Release()

	require.NoError(t, chain.Prepare(context.Background(), pc))

	scoring := mustFrame(t, "test", []string{"x"}, []float64{5})
	out, err := chain.Transform(context.Background(), scoring, domain.RoleScoring, pc)
	require.NoError(t, err)
	assert.Equal(t, []float64{6}, column(t, out, "x"))
	assert.Equal(t, []string{"a:prepare", "a:training", "b:prepare", "b:training", "a:scoring"}, log.list())
}

func TestTransformPreparesStagesThatDoNotApplyToTraining(t *testing.T) {
	log := &callLog{}
	a := newShift("a", 0, log)
	a.roles = domain.Roles(domain.RoleScoring)
	require.NoError(t, a.SetParameter("center", true))
	chain := NewChain(a)
	train := trainFrame(t)
	pc := trainingContext(storage.NewFrameStore(), train, a)
	defer pc.Release()

	out, err := chain.Transform(context.Background(), train, domain.RoleTraining, pc)
	require.NoError(t, err)
	assert.Same(t, train, out)
	assert.Equal(t, []string{"a:prepare"}, log.list())

	scored, err := chain.Transform(context.Background(), mustFrame(t, "test", []string{"x"}, []float64{2.5, 4.5}), domain.RoleScoring, pc)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2}, column(t, scored, "x"), "the training mean is removed")
}

func TestTransformEmptyChainCompletesOnInput(t *testing.T) {
	train := trainFrame(t)
	pc := trainingContext(storage.NewFrameStore(), train)
	defer pc.Release()

	out, err := NewChain().Transform(context.Background(), train, domain.RoleTraining, pc)
	require.NoError(t, err)
	assert.Same(t, train, out)
}

func TestTransformStopsAtFirstFailure(t *testing.T) {
	log := &callLog{}
	a, b, c := newShift("a", 1, log), newShift("b", 1, log), newShift("c", 1, log)
	b.failOn = domain.RoleTraining
	chain := NewChain(a, b, c)
	train := trainFrame(t)
	store := storage.NewFrameStore()
	pc := trainingContext(store, train, a, b, c)

	completed := false
	_, err := Transform(context.Background(), chain, train, domain.RoleTraining, pc,
		func(context.Context, *domain.Frame, *Context) (struct{}, error) {
			completed = true
			return struct{}{}, nil
		})
	require.ErrorIs(t, err, errStage)
	assert.Contains(t, err.Error(), `transformer "b"`)
	assert.False(t, completed)
	assert.Equal(t, []string{"a:prepare", "a:training", "b:prepare", "b:training"}, log.list())

	pc.Release()
	assert.Zero(t, store.Len(), "intermediates are released after a failure")
}

type failingPreparer struct {
	*shiftTransformer
}

func (f failingPreparer) Prepare(context.Context, *domain.Frame, runtime.PipelineContext) error {
	return errors.New("no variance")
}

func TestTransformWrapsPrepareFailures(t *testing.T) {
	s := failingPreparer{newShift("a", 0, nil)}
	train := trainFrame(t)
	pc := trainingContext(storage.NewFrameStore(), train, s)
	defer pc.Release()

	_, err := NewChain(s).Transform(context.Background(), train, domain.RoleTraining, pc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `transformer "a": prepare: no variance`)
}

type nilTransformer struct {
	*shiftTransformer
}

func (n nilTransformer) Transform(context.Context, *domain.Frame, domain.Role, runtime.PipelineContext) (*domain.Frame, error) {
	return nil, nil
}

func TestTransformRejectsMissingOutput(t *testing.T) {
	s := nilTransformer{newShift("a", 0, nil)}
	train := trainFrame(t)
	pc := trainingContext(storage.NewFrameStore(), train, s)
	defer pc.Release()

	_, err := NewChain(s).Transform(context.Background(), train, domain.RoleTraining, pc)
	assert.ErrorContains(t, err, "transform returned no frame")
}

func TestTransformRejectsNilFrame(t *testing.T) {
	pc := trainingContext(storage.NewFrameStore(), nil)
	_, err := NewChain().Transform(context.Background(), nil, domain.RoleScoring, pc)
	assert.ErrorIs(t, err, domain.ErrInvalidFrame)
}

func TestChainPrepareRequiresTrainingFrame(t *testing.T) {
	pc := newScopedContext(nil, storage.NewFrameStore(), scopeConfig{operation: "score"})
	err := NewChain(newShift("a", 0, nil)).Prepare(context.Background(), pc)
	assert.ErrorIs(t, err, domain.ErrInvalidFrame)
}

func TestTransformEmitsStageSpans(t *testing.T) {
	recorder := setupTestTracer(t)

	a, b := newShift("a", 1, nil), newShift("b", 1, nil)
	b.roles = domain.Roles(domain.RoleScoring)
	c := newShift("c", 1, nil)
	c.failOn = domain.RoleTraining
	train := trainFrame(t)
	pc := trainingContext(storage.NewFrameStore(), train, a, b, c)
	defer pc.Release()

	_, err := NewChain(a, b, c).Transform(context.Background(), train, domain.RoleTraining, pc)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3, "prepared stages get a span even when they do not apply")

	outcomes := map[string]string{}
	for _, span := range spans {
		assert.Equal(t, "pipeline.stage", span.Name())
		var id, outcome string
		for _, kv := range span.Attributes() {
			switch kv.Key {
			case attribute.Key("transformer.id"):
				id = kv.Value.AsString()
			case attribute.Key("stage.outcome"):
				outcome = kv.Value.AsString()
			}
		}
		outcomes[id] = outcome
		if id == "c" {
			assert.Equal(t, codes.Error, span.Status().Code)
		}
	}
	assert.Equal(t, map[string]string{"a": "success", "b": "skipped", "c": "failure"}, outcomes)
}
