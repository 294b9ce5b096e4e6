package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics exported by the pipeline CLI.
type Collector struct {
	framesTracked  *prometheus.CounterVec
	framesReleased *prometheus.CounterVec
	framesLive     prometheus.Gauge

	scoreRequests *prometheus.CounterVec
	scoreDuration *prometheus.HistogramVec

	trainRuns     *prometheus.CounterVec
	trainDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewCollector creates a collector registered on its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		framesTracked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_frames_tracked_total",
				Help: "Intermediate frames registered with an execution context",
			},
			[]string{"stage"},
		),

		framesReleased: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_frames_released_total",
				Help: "Tracked frames removed from the frame store on context teardown",
			},
			[]string{"outcome"},
		),

		framesLive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_frames_live",
				Help: "Tracked frames not yet released",
			},
		),

		scoreRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_score_requests_total",
				Help: "Score calls by pipeline model and status",
			},
			[]string{"model", "status"},
		),

		scoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_score_duration_seconds",
				Help:    "Score call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),

		trainRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_train_runs_total",
				Help: "Pipeline training runs by status",
			},
			[]string{"status"},
		),

		trainDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_train_duration_seconds",
				Help:    "Pipeline training latency in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		c.framesTracked,
		c.framesReleased,
		c.framesLive,
		c.scoreRequests,
		c.scoreDuration,
		c.trainRuns,
		c.trainDuration,
	)

	return c
}

// FrameTracked records a frame registered for cleanup.
func (c *Collector) FrameTracked(stage string) {
	c.framesTracked.WithLabelValues(stage).Inc()
	c.framesLive.Inc()
}

// FrameReleased records a tracked frame leaving the context. kept is true for
// frames the caller asked to keep alive.
func (c *Collector) FrameReleased(kept bool) {
	outcome := "removed"
	if kept {
		outcome = "kept"
	}
	c.framesReleased.WithLabelValues(outcome).Inc()
	c.framesLive.Dec()
}

// RecordScore records a score call.
func (c *Collector) RecordScore(model string, err error, duration time.Duration) {
	c.scoreRequests.WithLabelValues(model, status(err)).Inc()
	c.scoreDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordTrain records a training run.
func (c *Collector) RecordTrain(err error, duration time.Duration) {
	c.trainRuns.WithLabelValues(status(err)).Inc()
	c.trainDuration.Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
