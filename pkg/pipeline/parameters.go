package pipeline

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/tidwall/gjson"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/params"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

// NoEstimatorChecksum is folded into the checksum of a transform-only pipeline.
const NoEstimatorChecksum uint64 = 47

// Pipeline-level parameter names.
const (
	ParamModelID             = "model_id"
	ParamResponseColumn      = "response_column"
	ParamIgnoredColumns      = "ignored_columns"
	ParamSeed                = "seed"
	ParamEstimatorKeyPattern = "estimator_key_pattern"
	ParamEstimatorParams     = "estimator_params"
)

// Parameters configures a pipeline.
type Parameters struct {
	ModelID        domain.Key
	ResponseColumn string
	IgnoredColumns []string
	Seed           int64

	// Transformers run in order in front of the estimator.
	Transformers []runtime.Transformer
	// Estimator is nil for a transform-only pipeline.
	Estimator runtime.EstimatorParams
	// EstimatorKeyGen names the fitted estimator from the pipeline key.
	EstimatorKeyGen KeyGen

	estimatorParamsRaw string
}

// NewParameters creates parameters with the default estimator key generator.
func NewParameters(estimator runtime.EstimatorParams, transformers ...runtime.Transformer) *Parameters {
	return &Parameters{
		Transformers:    transformers,
		Estimator:       estimator,
		EstimatorKeyGen: DefaultEstimatorKeyGen,
		Seed:            -1,
	}
}

func (p *Parameters) router() Router {
	return NewRouter(p.Transformers)
}

// GetParameter reads the parameter at path.
func (p *Parameters) GetParameter(path string) (any, error) {
	target, err := p.router().Resolve(path)
	if err != nil {
		return nil, err
	}
	switch target.Kind {
	case TargetEstimator:
		if p.Estimator == nil {
			return nil, nil
		}
		v, err := p.Estimator.GetParameter(target.Field)
		return v, pathError(path, err)
	case TargetTransformer:
		v, err := target.Transformer.GetParameter(target.Field)
		return v, pathError(path, err)
	default:
		return p.getOwn(path, target.Field)
	}
}

// SetParameter writes the parameter at path.
func (p *Parameters) SetParameter(path string, value any) error {
	target, err := p.router().Resolve(path)
	if err != nil {
		return err
	}
	switch target.Kind {
	case TargetEstimator:
		if p.Estimator == nil {
			return &domain.AddressingError{Path: path, Reason: "pipeline has no estimator"}
		}
		return pathError(path, p.Estimator.SetParameter(target.Field, value))
	case TargetTransformer:
		return pathError(path, target.Transformer.SetParameter(target.Field, value))
	default:
		return p.setOwn(path, target.Field, value)
	}
}

// HasParameter reports whether path resolves to an existing parameter.
func (p *Parameters) HasParameter(path string) bool {
	target, err := p.router().Resolve(path)
	if err != nil {
		return false
	}
	switch target.Kind {
	case TargetEstimator:
		return p.Estimator != nil && p.Estimator.HasParameter(target.Field)
	case TargetTransformer:
		return target.Transformer.HasParameter(target.Field)
	default:
		return isOwnParameter(target.Field)
	}
}

// IsValidHyperParameter reports whether a grid may search over path. Any
// declared transformer parameter is searchable; estimator parameters must be
// declared searchable by the estimator. Unresolvable paths are not errors here.
func (p *Parameters) IsValidHyperParameter(path string) bool {
	target, err := p.router().Resolve(path)
	if err != nil {
		return false
	}
	switch target.Kind {
	case TargetEstimator:
		return p.Estimator != nil && p.Estimator.IsValidHyperParameter(target.Field)
	case TargetTransformer:
		return target.Transformer.HasParameter(target.Field)
	default:
		return target.Field == ParamSeed
	}
}

func pathError(path string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("parameter %q: %w", path, err)
}

func isOwnParameter(name string) bool {
	switch name {
	case ParamModelID, ParamResponseColumn, ParamIgnoredColumns, ParamSeed, ParamEstimatorKeyPattern, ParamEstimatorParams:
		return true
	}
	return false
}

func (p *Parameters) getOwn(path, name string) (any, error) {
	switch name {
	case ParamModelID:
		return string(p.ModelID), nil
	case ParamResponseColumn:
		return p.ResponseColumn, nil
	case ParamIgnoredColumns:
		return append([]string(nil), p.IgnoredColumns...), nil
	case ParamSeed:
		return p.Seed, nil
	case ParamEstimatorKeyPattern:
		if pk, ok := p.EstimatorKeyGen.(PatternKeyGen); ok {
			return string(pk), nil
		}
		return "", nil
	case ParamEstimatorParams:
		return p.estimatorParamsRaw, nil
	}
	return nil, &domain.AddressingError{Path: path}
}

func (p *Parameters) setOwn(path, name string, value any) error {
	switch name {
	case ParamModelID:
		v, err := coerce(name, params.String, value)
		if err != nil {
			return err
		}
		p.ModelID = domain.Key(v.(string))
	case ParamResponseColumn:
		v, err := coerce(name, params.String, value)
		if err != nil {
			return err
		}
		p.ResponseColumn = v.(string)
	case ParamIgnoredColumns:
		v, err := coerce(name, params.Strings, value)
		if err != nil {
			return err
		}
		p.IgnoredColumns = v.([]string)
	case ParamSeed:
		v, err := coerce(name, params.Int, value)
		if err != nil {
			return err
		}
		p.Seed = int64(v.(int))
	case ParamEstimatorKeyPattern:
		v, err := coerce(name, params.String, value)
		if err != nil {
			return err
		}
		pattern := v.(string)
		if !strings.Contains(pattern, keyPlaceholder) {
			return &domain.ParameterError{Name: name, Raw: pattern, Err: errors.New("pattern must contain " + keyPlaceholder)}
		}
		p.EstimatorKeyGen = PatternKeyGen(pattern)
	case ParamEstimatorParams:
		raw, ok := value.(string)
		if !ok {
			return &domain.ParameterError{Name: name, Raw: fmt.Sprint(value), Err: errors.New("expected JSON text")}
		}
		return p.SetEstimatorParams(raw)
	default:
		return &domain.AddressingError{Path: path}
	}
	return nil
}

func coerce(name string, kind params.Kind, value any) (any, error) {
	v, err := params.Coerce(kind, value)
	if err != nil {
		return nil, &domain.ParameterError{Name: name, Raw: fmt.Sprint(value), Err: err}
	}
	return v, nil
}

// SetEstimatorParams applies a JSON object of estimator parameters. A payload
// that does not parse fails with a ConfigError carrying the raw text, and
// leaves the estimator untouched.
func (p *Parameters) SetEstimatorParams(raw string) error {
	values, err := ParseNestedParams(ParamEstimatorParams, raw)
	if err != nil {
		return err
	}
	if p.Estimator == nil {
		return &domain.AddressingError{Path: ParamEstimatorParams, Reason: "pipeline has no estimator"}
	}
	staged := p.Estimator.Clone()
	for _, name := range sortedKeys(values) {
		if err := staged.SetParameter(name, values[name]); err != nil {
			return pathError(EstimatorSegment+"."+name, err)
		}
	}
	p.Estimator = staged
	p.estimatorParamsRaw = raw
	return nil
}

// ParseNestedParams decodes a JSON object of parameter values. Numbers decode
// as float64, arrays as []any.
func ParseNestedParams(field, raw string) (map[string]any, error) {
	if !gjson.Valid(raw) {
		return nil, &domain.ConfigError{Field: field, Raw: raw, Err: errors.New("invalid JSON")}
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return nil, &domain.ConfigError{Field: field, Raw: raw, Err: fmt.Errorf("expected a JSON object, got %s", parsed.Type)}
	}
	out := make(map[string]any)
	parsed.ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = value.Value()
		return true
	})
	return out, nil
}

// Clone returns parameters whose transformers and estimator configuration are
// independent copies. Cloned transformers are unfitted.
func (p *Parameters) Clone() *Parameters {
	c := *p
	c.IgnoredColumns = append([]string(nil), p.IgnoredColumns...)
	if p.Transformers != nil {
		c.Transformers = make([]runtime.Transformer, len(p.Transformers))
		for i, t := range p.Transformers {
			c.Transformers[i] = t.Clone()
		}
	}
	if p.Estimator != nil {
		c.Estimator = p.Estimator.Clone()
	}
	return &c
}

// Validate checks the transformer sequence.
func (p *Parameters) Validate() error {
	seen := make(map[string]int, len(p.Transformers))
	for i, t := range p.Transformers {
		if t == nil {
			return fmt.Errorf("%w: transformer %d is nil", domain.ErrConfigInvalid, i)
		}
		id := t.ID()
		if id == "" {
			return fmt.Errorf("%w: transformer %d has no id", domain.ErrConfigInvalid, i)
		}
		if id == EstimatorSegment {
			return fmt.Errorf("%w: transformer id %q is reserved", domain.ErrConfigInvalid, id)
		}
		if j, dup := seen[id]; dup {
			return fmt.Errorf("%w: transformers %d and %d share id %q", domain.ErrConfigInvalid, j, i, id)
		}
		seen[id] = i
	}
	return nil
}

// Checksum identifies the effective configuration. The base part covers the
// pipeline-level fields that affect training plus the content of every
// transformer, never their ids or generated names. It is XORed with the
// estimator checksum, or NoEstimatorChecksum when there is no estimator.
func (p *Parameters) Checksum() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(ParamResponseColumn + "=" + p.ResponseColumn + ";")
	_, _ = d.WriteString(ParamIgnoredColumns + "=" + strings.Join(p.IgnoredColumns, ",") + ";")
	_, _ = d.WriteString(ParamSeed + "=" + fmt.Sprint(p.Seed) + ";")

	var buf [8]byte
	for _, t := range p.Transformers {
		_, _ = d.WriteString(t.Kind())
		if c, ok := t.(runtime.Checksummer); ok {
			binary.LittleEndian.PutUint64(buf[:], c.Checksum())
			_, _ = d.Write(buf[:])
		}
		_, _ = d.WriteString(";")
	}

	base := d.Sum64()
	if p.Estimator == nil {
		return base ^ NoEstimatorChecksum
	}
	return base ^ p.Estimator.Checksum()
}
