// Package config provides process configuration and the pipeline specification format.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the process configuration of the pipeline CLI.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Grid      GridConfig      `yaml:"grid"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string            `yaml:"otlp_endpoint"`
	Insecure     bool              `yaml:"insecure"`
	ServiceName  string            `yaml:"service_name"`
	SampleRatio  float64           `yaml:"sample_ratio"`
	Headers      map[string]string `yaml:"headers,omitempty"`
}

// MetricsConfig holds configuration for the Prometheus endpoint.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// PipelineConfig points at the pipeline specification.
type PipelineConfig struct {
	File string `yaml:"file"`
}

// GridConfig holds grid search settings.
type GridConfig struct {
	Parallelism int `yaml:"parallelism"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "h2o-pipeline",
			SampleRatio: 1,
		},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // config file path is chosen by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("H2O_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("H2O_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	if val := os.Getenv("H2O_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("H2O_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}

	if val := os.Getenv("H2O_METRICS_ADDR"); val != "" {
		cfg.Metrics.Address = val
	}

	if val := os.Getenv("H2O_PIPELINE_FILE"); val != "" {
		cfg.Pipeline.File = val
	}

	if val := os.Getenv("H2O_GRID_PARALLELISM"); val != "" {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("H2O_GRID_PARALLELISM: %w", err)
		}
		cfg.Grid.Parallelism = n
	}
	return nil
}

// Validate checks and normalises the configuration.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry configuration: %w", err)
	}

	if err := c.Grid.Validate(); err != nil {
		return fmt.Errorf("grid configuration: %w", err)
	}

	return nil
}

// Validate performs validation of logging configuration
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}
	if strings.TrimSpace(c.Format) == "" {
		c.Format = "text"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}

	format := strings.TrimSpace(strings.ToLower(c.Format))
	switch format {
	case "text", "json":
		c.Format = format
	default:
		return fmt.Errorf("invalid log format %q, supported formats: text, json", c.Format)
	}
	return nil
}

// Validate performs validation of telemetry configuration
func (c *TelemetryConfig) Validate() error {
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("sample_ratio must be within [0, 1], got %v", c.SampleRatio)
	}
	return nil
}

// Validate performs validation of grid configuration
func (c *GridConfig) Validate() error {
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative, got %d", c.Parallelism)
	}
	return nil
}
