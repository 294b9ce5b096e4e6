// Package main is the entry point for the h2o-pipeline binary.
// It trains, scores and grid-searches pipeline models over CSV frames.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yanorepuser4/h2o-3/pkg/config"
	"github.com/yanorepuser4/h2o-3/pkg/estimators"
	"github.com/yanorepuser4/h2o-3/pkg/logging"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
	"github.com/yanorepuser4/h2o-3/pkg/telemetry"
	"github.com/yanorepuser4/h2o-3/pkg/transformers"
)

const serviceVersion = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for h2o-pipeline
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "h2o-pipeline",
		Short: "Train and score transformer/estimator pipelines",
		Long: `Trains a pipeline of frame transformers followed by an estimator and scores
frames with the result.

The pipeline is declared in YAML:

  model_id: houses
  response_column: price
  transformers:
    - id: impute
      type: mean_imputer
    - id: scale
      type: standard_scaler
  estimator:
    algo: glm
    params:
      lambda: 0.1

Example:
  h2o-pipeline train --pipeline houses.yaml --train train.csv --score test.csv --out preds`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to configuration file (YAML)")
	flags.StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (text, json)")
	flags.String("otlp-endpoint", "", "OTLP gRPC endpoint for traces")
	flags.String("metrics-addr", "", "Address serving Prometheus metrics while the command runs")

	rootCmd.AddCommand(newTrainCmd(), newGridCmd(), newKindsCmd())
	return rootCmd
}

// app holds what every subcommand needs.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *pipeline.Registry
	stores    runtime.Stores
	collector *telemetry.Collector

	shutdown []func(context.Context) error
}

// newApp loads configuration, applies flag overrides and starts telemetry.
// Callers must run close.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		registry:  newRegistry(),
		stores:    runtime.NewMemoryStores(),
		collector: telemetry.NewCollector(),
	}

	shutdownTracing, err := telemetry.SetupProvider(cmd.Context(), telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: serviceVersion,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        cfg.Telemetry.Headers,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	a.shutdown = append(a.shutdown, shutdownTracing)

	if cfg.Metrics.Address != "" {
		server, addr, err := startMetricsServer(cfg.Metrics.Address, a.collector, logger)
		if err != nil {
			_ = a.close()
			return nil, err
		}
		logger.Info("Metrics server listening", "addr", addr.String())
		a.shutdown = append(a.shutdown, server.Shutdown)
	}
	return a, nil
}

func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		if err := a.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *app) options() []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithTrackerObserver(a.collector),
	}
}

func newRegistry() *pipeline.Registry {
	r := pipeline.NewRegistry()
	transformers.RegisterBuiltins(r)
	estimators.RegisterBuiltins(r)
	return r
}

// loadConfig reads the configuration file; flags that were set override it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	overrides := []struct {
		flag   string
		target *string
	}{
		{"log-level", &cfg.Logging.Level},
		{"log-format", &cfg.Logging.Format},
		{"otlp-endpoint", &cfg.Telemetry.OTLPEndpoint},
		{"metrics-addr", &cfg.Metrics.Address},
	}
	for _, o := range overrides {
		if !cmd.Flags().Changed(o.flag) {
			continue
		}
		v, err := cmd.Flags().GetString(o.flag)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", o.flag, err)
		}
		*o.target = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func startMetricsServer(addr string, collector *telemetry.Collector, logger *slog.Logger) (*http.Server, net.Addr, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", otelhttp.NewHandler(collector.Handler(), "h2o.metrics"))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to bind metrics listener %s: %w", addr, err)
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return server, listener.Addr(), nil
}

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the registered transformer kinds and estimator algorithms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := newRegistry()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "transformers:")
			for _, k := range r.TransformerKinds() {
				fmt.Fprintf(out, "  %s\n", k)
			}
			fmt.Fprintln(out, "estimators:")
			for _, a := range r.EstimatorAlgos() {
				fmt.Fprintf(out, "  %s\n", a)
			}
			return nil
		},
	}
}
