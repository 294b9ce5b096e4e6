package pipeline

import (
	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
	"github.com/yanorepuser4/h2o-3/pkg/storage"
)

// Context is the execution context of one train or score call. It is never
// shared between calls.
type Context struct {
	params  *Parameters
	tracker FrameTracker
	keys    *ConsistentKeyTracker
	scope   *ScopeTracker
	label   string
	train   *domain.Frame
	valid   *domain.Frame
}

var _ runtime.PipelineContext = (*Context)(nil)

// NewContext creates a context over params using tracker.
func NewContext(params *Parameters, tracker FrameTracker) *Context {
	c := &Context{params: params, tracker: tracker}
	c.keys, _ = tracker.(*ConsistentKeyTracker)
	c.scope, _ = tracker.(*ScopeTracker)
	return c
}

// scopeConfig describes a scoped context.
type scopeConfig struct {
	label     string
	operation string
	input     *domain.Frame
	train     *domain.Frame
	valid     *domain.Frame
	observer  TrackerObserver
}

// newScopedContext builds the context used by train and score calls: tracked
// frames keep the input's identity and are removed from store on release. The
// caller's frames are never touched.
func newScopedContext(params *Parameters, store storage.FrameStore, cfg scopeConfig) *Context {
	keys := NewConsistentKeyTracker(cfg.input, cfg.train, cfg.valid)
	scope := NewScopeTracker(store, ScopeOptions{
		Safe:      []*domain.Frame{cfg.input, cfg.train, cfg.valid},
		Operation: cfg.operation,
		Observer:  cfg.observer,
	})
	return &Context{
		params:  params,
		tracker: NewCompositeTracker(keys, scope),
		keys:    keys,
		scope:   scope,
		label:   cfg.label,
		train:   cfg.train,
		valid:   cfg.valid,
	}
}

// Parameters returns the pipeline configuration driving the call.
func (c *Context) Parameters() *Parameters {
	return c.params
}

// Transformers returns the transformer sequence of the configuration.
func (c *Context) Transformers() []runtime.Transformer {
	if c.params == nil {
		return nil
	}
	return append([]runtime.Transformer(nil), c.params.Transformers...)
}

// EstimatorParams returns the estimator configuration, or nil.
func (c *Context) EstimatorParams() runtime.EstimatorParams {
	if c.params == nil {
		return nil
	}
	return c.params.Estimator
}

// Track registers an intermediate frame.
func (c *Context) Track(fr *domain.Frame) *domain.Frame {
	return c.tracker.Track(fr)
}

// Release releases tracked frames except the survivors.
func (c *Context) Release(except ...*domain.Frame) {
	c.tracker.Release(except...)
}

// ReleaseStats reports what the scoped release did. Contexts without a scope
// tracker report zeros.
func (c *Context) ReleaseStats() (removed, kept int) {
	if c.scope == nil {
		return 0, 0
	}
	return c.scope.Stats()
}

// NewKey derives a unique frame key for stage.
func (c *Context) NewKey(stage string) domain.Key {
	if c.keys != nil {
		return c.keys.NewKey(stage)
	}
	return derivedKey("", stage)
}

// TrainingFrame returns the caller's training frame; nil when scoring.
func (c *Context) TrainingFrame() *domain.Frame {
	return c.train
}

// ValidationFrame returns the caller's validation frame, if any.
func (c *Context) ValidationFrame() *domain.Frame {
	return c.valid
}

// ResponseColumn returns the pipeline response column, falling back to the
// estimator's own setting.
func (c *Context) ResponseColumn() string {
	if c.params == nil {
		return ""
	}
	if c.params.ResponseColumn != "" {
		return c.params.ResponseColumn
	}
	if c.params.Estimator != nil && c.params.Estimator.HasParameter(ParamResponseColumn) {
		if v, err := c.params.Estimator.GetParameter(ParamResponseColumn); err == nil {
			s, _ := v.(string)
			return s
		}
	}
	return ""
}
