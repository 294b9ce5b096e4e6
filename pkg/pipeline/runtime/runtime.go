// Package runtime defines the contracts shared by the pipeline core, the
// transformers it chains and the estimators it delegates to, keeping algorithm
// code decoupled from execution mechanics.
package runtime

import (
	"context"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/storage"
)

// Parameterized exposes named, dynamically typed parameters.
type Parameterized interface {
	GetParameter(name string) (any, error)
	SetParameter(name string, value any) error
	HasParameter(name string) bool
}

// PipelineContext is the view of an execution context handed to transformers.
type PipelineContext interface {
	// Track registers an intermediate frame for release when the call ends.
	Track(fr *domain.Frame) *domain.Frame
	// NewKey derives a unique key for a frame produced by stage.
	NewKey(stage string) domain.Key
	// TrainingFrame is the caller's training frame, nil when scoring.
	TrainingFrame() *domain.Frame
	// ValidationFrame is the caller's validation frame, if any.
	ValidationFrame() *domain.Frame
	// ResponseColumn names the column the estimator predicts, if known.
	ResponseColumn() string
}

// Transformer is one frame-to-frame stage of a pipeline.
//
// Transform must not mutate its input frame or any column it did not allocate.
// A transformer that does not apply to a role is skipped by the chain and never
// called with that role.
type Transformer interface {
	Parameterized
	ID() string
	Kind() string
	Roles() domain.RoleSet
	Transform(ctx context.Context, fr *domain.Frame, role domain.Role, pc PipelineContext) (*domain.Frame, error)
	Cleanup(ctx context.Context) error
	// Clone returns an unfitted copy with the same id and parameters.
	Clone() Transformer
}

// Preparer is implemented by transformers that learn state from training data.
type Preparer interface {
	Prepare(ctx context.Context, train *domain.Frame, pc PipelineContext) error
}

// Checksummer is implemented by anything contributing to a parameters checksum.
type Checksummer interface {
	Checksum() uint64
}

// EstimatorParams configures an estimator.
type EstimatorParams interface {
	Parameterized
	Checksummer
	Algo() string
	IsValidHyperParameter(name string) bool
	Clone() EstimatorParams
}

// TrainInput carries the frames an estimator learns from.
type TrainInput struct {
	Key   domain.Key
	Train *domain.Frame
	Valid *domain.Frame
}

// Estimator trains a model from already transformed frames.
type Estimator interface {
	Train(ctx context.Context, in TrainInput) (Model, error)
}

// Model is a fitted predictive model.
type Model interface {
	Key() domain.Key
	Algo() string
	// Score predicts over fr, storing the result under dest. When computeMetrics
	// is set, metrics keyed by (model, fr) are placed in the metrics store.
	Score(ctx context.Context, fr *domain.Frame, dest domain.Key, computeMetrics bool) (*domain.Frame, error)
	TrainingMetrics() *domain.ModelMetrics
	ValidationMetrics() *domain.ModelMetrics
	Remove(ctx context.Context, cascade bool) error
}

// ModelStore holds fitted models by key.
type ModelStore = storage.Store[Model]

// Stores bundles the key-addressed stores a pipeline and its estimators share.
type Stores struct {
	Frames  storage.FrameStore
	Models  ModelStore
	Metrics storage.MetricsStore
}

// NewMemoryStores creates in-memory stores.
func NewMemoryStores() Stores {
	return Stores{
		Frames:  storage.NewFrameStore(),
		Models:  storage.NewMemoryStore[Model](),
		Metrics: storage.NewMemoryMetricsStore(),
	}
}
