package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline"
)

// PipelineSpec is the declarative form of a pipeline.
type PipelineSpec struct {
	ModelID             string            `yaml:"model_id,omitempty"`
	ResponseColumn      string            `yaml:"response_column,omitempty"`
	IgnoredColumns      []string          `yaml:"ignored_columns,omitempty"`
	Seed                *int64            `yaml:"seed,omitempty"`
	EstimatorKeyPattern string            `yaml:"estimator_key_pattern,omitempty"`
	Transformers        []TransformerSpec `yaml:"transformers"`
	Estimator           *EstimatorSpec    `yaml:"estimator,omitempty"`
}

// TransformerSpec declares one transformer.
type TransformerSpec struct {
	ID     string         `yaml:"id"`
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params,omitempty"`
}

// EstimatorSpec declares the estimator. ParamsJSON is applied after Params.
type EstimatorSpec struct {
	Algo       string         `yaml:"algo"`
	Params     map[string]any `yaml:"params,omitempty"`
	ParamsJSON string         `yaml:"params_json,omitempty"`
}

// SpecError reports an invalid pipeline specification.
type SpecError struct {
	Path   string
	Reason error
}

func (e SpecError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("pipeline spec: %v", e.Reason)
	}
	return fmt.Sprintf("pipeline spec %s: %v", e.Path, e.Reason)
}

func (e SpecError) Unwrap() error {
	return e.Reason
}

// LoadPipelineSpec reads a YAML pipeline specification.
func LoadPipelineSpec(path string) (*PipelineSpec, error) {
	//nolint:gosec // spec path is chosen by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline spec %s: %w", path, err)
	}
	spec, err := ParsePipelineSpec(data)
	if err != nil {
		return nil, SpecError{Path: path, Reason: err}
	}
	return spec, nil
}

// ParsePipelineSpec decodes and validates a YAML pipeline specification.
func ParsePipelineSpec(data []byte) (*PipelineSpec, error) {
	var spec PipelineSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks the structure of the specification. Parameter values are
// checked by ToParameters.
func (s *PipelineSpec) Validate() error {
	seen := make(map[string]int, len(s.Transformers))
	for i, t := range s.Transformers {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("%w: transformers[%d] has no id", domain.ErrConfigInvalid, i)
		}
		if strings.TrimSpace(t.Type) == "" {
			return fmt.Errorf("%w: transformer %q has no type", domain.ErrConfigInvalid, t.ID)
		}
		if j, dup := seen[t.ID]; dup {
			return fmt.Errorf("%w: transformers[%d] and transformers[%d] share id %q", domain.ErrConfigInvalid, j, i, t.ID)
		}
		seen[t.ID] = i
	}
	if s.Estimator != nil && strings.TrimSpace(s.Estimator.Algo) == "" {
		return fmt.Errorf("%w: estimator has no algo", domain.ErrConfigInvalid)
	}
	return nil
}

// ToParameters builds pipeline parameters, resolving transformer types and the
// estimator algorithm through registry.
func (s *PipelineSpec) ToParameters(registry *pipeline.Registry) (*pipeline.Parameters, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	params := pipeline.NewParameters(nil)
	for _, ts := range s.Transformers {
		t, err := registry.NewTransformer(ts.Type, ts.ID, ts.Params)
		if err != nil {
			return nil, err
		}
		params.Transformers = append(params.Transformers, t)
	}

	if s.Estimator != nil {
		est, err := registry.NewEstimatorParams(s.Estimator.Algo)
		if err != nil {
			return nil, err
		}
		params.Estimator = est
		for _, name := range sortedNames(s.Estimator.Params) {
			path := pipeline.EstimatorSegment + "." + name
			if err := params.SetParameter(path, s.Estimator.Params[name]); err != nil {
				return nil, err
			}
		}
		if s.Estimator.ParamsJSON != "" {
			if err := params.SetEstimatorParams(s.Estimator.ParamsJSON); err != nil {
				return nil, err
			}
		}
	}

	params.ModelID = domain.Key(s.ModelID)
	params.ResponseColumn = s.ResponseColumn
	params.IgnoredColumns = append([]string(nil), s.IgnoredColumns...)
	if s.Seed != nil {
		params.Seed = *s.Seed
	}
	if s.EstimatorKeyPattern != "" {
		if err := params.SetParameter(pipeline.ParamEstimatorKeyPattern, s.EstimatorKeyPattern); err != nil {
			return nil, err
		}
	}
	return params, params.Validate()
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
