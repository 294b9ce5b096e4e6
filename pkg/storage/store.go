// Package storage provides the key-addressed stores that own frames, fitted models
// and model metrics outside of any single pipeline call.
package storage

import (
	"github.com/yanorepuser4/h2o-3/pkg/domain"
)

// Keyed is anything addressable by a domain key.
type Keyed interface {
	Key() domain.Key
}

// Store is a key-addressed collection. Remove is idempotent: removing an absent
// key is not an error, so independent releases of one key never conflict.
type Store[T Keyed] interface {
	Put(value T) error
	Get(key domain.Key) (T, bool)
	Remove(key domain.Key) bool
	Len() int
	Keys() []domain.Key
}

// FrameStore holds frames by key.
type FrameStore = Store[*domain.Frame]

// MetricsStore holds model metrics addressed by (model, frame).
type MetricsStore interface {
	Put(metrics *domain.ModelMetrics) error
	Get(model, frame domain.Key) (*domain.ModelMetrics, bool)
	Remove(model, frame domain.Key) bool
	RemoveModel(model domain.Key) int
	ForModel(model domain.Key) []*domain.ModelMetrics
}
