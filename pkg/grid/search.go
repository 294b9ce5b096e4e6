// Package grid trains one pipeline per combination of hyper-parameter values.
package grid

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline"
	pruntime "github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
	"github.com/yanorepuser4/h2o-3/pkg/telemetry"
)

// TrainObserver is notified of every training run.
type TrainObserver interface {
	RecordTrain(err error, duration time.Duration)
}

// Config configures a Searcher.
type Config struct {
	Registry *pipeline.Registry
	Stores   pruntime.Stores
	// Parallelism bounds concurrent training runs; zero means GOMAXPROCS.
	Parallelism int
	Logger      *slog.Logger
	Observer    TrainObserver
	Options     []pipeline.Option
}

// Searcher runs grid searches.
type Searcher struct {
	cfg Config
}

// NewSearcher creates a searcher.
func NewSearcher(cfg Config) *Searcher {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.GOMAXPROCS(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Searcher{cfg: cfg}
}

// Entry is one combination of the search.
type Entry struct {
	Key      domain.Key
	Values   map[string]any
	Checksum uint64
	Model    *pipeline.Model
	Err      error
}

// Result collects the outcome of a search in enumeration order.
type Result struct {
	Models   []Entry
	Failures []Entry
	// Duplicates counts combinations skipped because an earlier one had the
	// same effective configuration.
	Duplicates int
}

// Search trains base with every combination of space. Every path must be a
// valid hyper-parameter of base. A combination that cannot be applied or
// trained is recorded as a failure; the search continues. The returned error
// is reserved for invalid input and cancellation.
func (s *Searcher) Search(ctx context.Context, base *pipeline.Parameters, space HyperSpace, train, valid *domain.Frame) (*Result, error) {
	if base == nil {
		return nil, fmt.Errorf("%w: nil parameters", domain.ErrConfigInvalid)
	}
	for _, path := range space.Paths() {
		if !base.IsValidHyperParameter(path) {
			return nil, fmt.Errorf("%w: %q is not a hyper-parameter of the pipeline", domain.ErrConfigInvalid, path)
		}
	}

	prefix := base.ModelID
	if prefix == "" {
		prefix = pipeline.NewModelKey("grid")
	}

	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "grid.search", trace.WithAttributes(
		attribute.String("grid.key", prefix.String()),
		attribute.StringSlice("grid.paths", space.Paths()),
		attribute.Int("grid.size", space.Size()),
	))
	defer span.End()

	result := &Result{}
	var (
		entries []Entry
		params  []*pipeline.Parameters
		seen    = make(map[uint64]struct{})
	)
	for i, combo := range space.Combinations() {
		entry := Entry{Key: domain.Key(fmt.Sprintf("%s_model_%d", prefix, i)), Values: combo}
		p, err := apply(base, combo)
		if err != nil {
			entry.Err = err
			result.Failures = append(result.Failures, entry)
			continue
		}
		entry.Checksum = p.Checksum()
		if _, dup := seen[entry.Checksum]; dup {
			result.Duplicates++
			continue
		}
		seen[entry.Checksum] = struct{}{}
		p.ModelID = entry.Key
		entries = append(entries, entry)
		params = append(params, p)
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)
	for i := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				entries[i].Err = err
				return nil
			}
			entries[i].Model, entries[i].Err = s.train(ctx, params[i], train, valid)
			return nil
		})
	}
	_ = g.Wait()

	for _, e := range entries {
		if e.Err != nil {
			result.Failures = append(result.Failures, e)
			continue
		}
		result.Models = append(result.Models, e)
	}
	span.SetAttributes(
		attribute.Int("grid.models", len(result.Models)),
		attribute.Int("grid.failures", len(result.Failures)),
	)
	s.cfg.Logger.Info("grid search finished",
		"grid", prefix,
		"models", len(result.Models),
		"failures", len(result.Failures),
		"duplicates", result.Duplicates,
	)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Searcher) train(ctx context.Context, params *pipeline.Parameters, train, valid *domain.Frame) (*pipeline.Model, error) {
	start := time.Now()
	builder, err := pipeline.NewBuilder(params, s.cfg.Registry, s.cfg.Stores, append([]pipeline.Option{pipeline.WithLogger(s.cfg.Logger)}, s.cfg.Options...)...)
	if err != nil {
		return nil, err
	}
	model, err := builder.Train(ctx, train, valid)
	if s.cfg.Observer != nil {
		s.cfg.Observer.RecordTrain(err, time.Since(start))
	}
	if err != nil {
		s.cfg.Logger.Warn("grid model failed", "model", params.ModelID, "error", err)
	}
	return model, err
}

// apply sets combo on a clone of base, in path order.
func apply(base *pipeline.Parameters, combo map[string]any) (*pipeline.Parameters, error) {
	p := base.Clone()
	for _, path := range sortedPaths(combo) {
		if err := p.SetParameter(path, combo[path]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Best returns the model with the best value of metric, preferring validation
// metrics over training metrics. r2 is maximised, every other metric minimised.
func (r *Result) Best(metric string) (Entry, bool) {
	var (
		best  Entry
		score float64
		found bool
	)
	for _, e := range r.Models {
		v, ok := metricValue(e.Model, metric)
		if !ok || math.IsNaN(v) {
			continue
		}
		if metric == domain.MetricR2 {
			v = -v
		}
		if !found || v < score {
			best, score, found = e, v, true
		}
	}
	return best, found
}

func metricValue(m *pipeline.Model, metric string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	if mm := m.ValidationMetrics(); mm != nil {
		return mm.Value(metric)
	}
	return m.TrainingMetrics().Value(metric)
}

func sortedPaths(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
