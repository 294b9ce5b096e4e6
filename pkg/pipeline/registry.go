package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

// TransformerFactory builds a transformer with the given id and parameters.
type TransformerFactory func(id string, params map[string]any) (runtime.Transformer, error)

// EstimatorFactory builds estimator configurations and estimators of one algorithm.
type EstimatorFactory struct {
	NewParams    func() runtime.EstimatorParams
	NewEstimator func(params runtime.EstimatorParams, stores runtime.Stores) (runtime.Estimator, error)
}

// Metadata describes a resolved registry entry.
type Metadata struct {
	Kind      string
	Version   string
	Canonical string
}

// factoryTable stores canonical entries and alias mappings.
type factoryTable[F any] struct {
	entries map[string]F
	aliases map[string]string
}

func newFactoryTable[F any]() *factoryTable[F] {
	return &factoryTable[F]{
		entries: make(map[string]F),
		aliases: make(map[string]string),
	}
}

func parseKind(raw string) (string, string) {
	kind, version, _ := strings.Cut(strings.TrimSpace(raw), "@")
	return kind, version
}

func canonicalKey(kind, version string) string {
	kind = strings.TrimSpace(kind)
	version = strings.TrimSpace(version)
	if version == "" {
		return kind
	}
	return kind + "@" + version
}

func (t *factoryTable[F]) register(kind, version string, entry F, aliases ...string) {
	canonical := canonicalKey(kind, version)
	t.entries[canonical] = entry
	for _, alias := range aliases {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		t.aliases[alias] = canonical
	}
	if _, exists := t.aliases[kind]; !exists {
		t.aliases[kind] = canonical
	}
}

func (t *factoryTable[F]) resolve(raw string) (F, Metadata, bool) {
	kind, version := parseKind(raw)
	canonical := canonicalKey(kind, version)
	if entry, ok := t.entries[canonical]; ok {
		return entry, Metadata{Kind: kind, Version: version, Canonical: canonical}, true
	}
	if alias, ok := t.aliases[raw]; ok {
		if entry, ok := t.entries[alias]; ok {
			k, v := parseKind(alias)
			return entry, Metadata{Kind: k, Version: v, Canonical: alias}, true
		}
	}
	if version == "" {
		if alias, ok := t.aliases[kind]; ok {
			if entry, ok := t.entries[alias]; ok {
				k, v := parseKind(alias)
				return entry, Metadata{Kind: k, Version: v, Canonical: alias}, true
			}
		}
	}
	var zero F
	return zero, Metadata{}, false
}

func (t *factoryTable[F]) names() []string {
	names := make([]string, 0, len(t.entries))
	for k := range t.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Registry maps transformer kinds and estimator algorithms to factories.
// Builtins are registered explicitly at startup.
type Registry struct {
	mu           sync.RWMutex
	transformers *factoryTable[TransformerFactory]
	estimators   *factoryTable[EstimatorFactory]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		transformers: newFactoryTable[TransformerFactory](),
		estimators:   newFactoryTable[EstimatorFactory](),
	}
}

// RegisterTransformer registers factory under kind@version and aliases.
func (r *Registry) RegisterTransformer(kind, version string, factory TransformerFactory, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transformers.register(kind, version, factory, aliases...)
}

// RegisterEstimator registers factory under algo@version and aliases.
func (r *Registry) RegisterEstimator(algo, version string, factory EstimatorFactory, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.estimators.register(algo, version, factory, aliases...)
}

// NewTransformer builds a transformer of the given kind.
func (r *Registry) NewTransformer(kind, id string, params map[string]any) (runtime.Transformer, error) {
	r.mu.RLock()
	factory, meta, ok := r.transformers.resolve(kind)
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown transformer type %q", domain.ErrConfigInvalid, kind)
	}
	t, err := factory(id, params)
	if err != nil {
		return nil, fmt.Errorf("transformer %q (%s): %w", id, meta.Canonical, err)
	}
	return t, nil
}

// NewEstimatorParams builds a default configuration for algo.
func (r *Registry) NewEstimatorParams(algo string) (runtime.EstimatorParams, error) {
	r.mu.RLock()
	factory, _, ok := r.estimators.resolve(algo)
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown estimator %q", domain.ErrConfigInvalid, algo)
	}
	return factory.NewParams(), nil
}

// NewEstimator builds the estimator configured by params.
func (r *Registry) NewEstimator(params runtime.EstimatorParams, stores runtime.Stores) (runtime.Estimator, error) {
	r.mu.RLock()
	factory, _, ok := r.estimators.resolve(params.Algo())
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown estimator %q", domain.ErrConfigInvalid, params.Algo())
	}
	return factory.NewEstimator(params, stores)
}

// TransformerKinds lists the canonical transformer keys.
func (r *Registry) TransformerKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transformers.names()
}

// EstimatorAlgos lists the canonical estimator keys.
func (r *Registry) EstimatorAlgos() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.estimators.names()
}
