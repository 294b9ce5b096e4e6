package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
)

type metricsKey struct {
	model domain.Key
	frame domain.Key
}

// MemoryMetricsStore is an in-memory implementation of MetricsStore.
type MemoryMetricsStore struct {
	mu      sync.RWMutex
	metrics map[metricsKey]*domain.ModelMetrics
}

// NewMemoryMetricsStore creates a new MemoryMetricsStore.
func NewMemoryMetricsStore() *MemoryMetricsStore {
	return &MemoryMetricsStore{
		metrics: make(map[metricsKey]*domain.ModelMetrics),
	}
}

// Put stores metrics under their (model, frame) pair.
func (s *MemoryMetricsStore) Put(metrics *domain.ModelMetrics) error {
	if metrics == nil {
		return fmt.Errorf("cannot store nil metrics")
	}
	if metrics.ModelKey == "" || metrics.FrameKey == "" {
		return fmt.Errorf("metrics must reference a model and a frame (model=%q, frame=%q)", metrics.ModelKey, metrics.FrameKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[metricsKey{model: metrics.ModelKey, frame: metrics.FrameKey}] = metrics
	return nil
}

// Get retrieves the metrics computed for model on frame.
func (s *MemoryMetricsStore) Get(model, frame domain.Key) (*domain.ModelMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metrics[metricsKey{model: model, frame: frame}]
	return m, ok
}

// Remove deletes the metrics for (model, frame) and reports whether they existed.
func (s *MemoryMetricsStore) Remove(model, frame domain.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := metricsKey{model: model, frame: frame}
	if _, ok := s.metrics[k]; !ok {
		return false
	}
	delete(s.metrics, k)
	return true
}

// RemoveModel deletes every metric attributed to model and returns how many were removed.
func (s *MemoryMetricsStore) RemoveModel(model domain.Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k := range s.metrics {
		if k.model == model {
			delete(s.metrics, k)
			removed++
		}
	}
	return removed
}

// ForModel returns the metrics attributed to model ordered by frame key.
func (s *MemoryMetricsStore) ForModel(model domain.Key) []*domain.ModelMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ModelMetrics
	for k, m := range s.metrics {
		if k.model == model {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FrameKey < out[j].FrameKey })
	return out
}
