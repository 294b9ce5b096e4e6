package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressingErrorNamesPath(t *testing.T) {
	err := error(&AddressingError{Path: "transformers[9].x", Reason: "index out of range"})
	require.ErrorIs(t, err, ErrAddressing)
	assert.Contains(t, err.Error(), "transformers[9].x")
}

func TestConfigErrorEmbedsRawValue(t *testing.T) {
	err := error(&ConfigError{Field: "estimator_params", Raw: "{bad json", Err: errors.New("invalid json")})
	require.ErrorIs(t, err, ErrConfigInvalid)
	assert.Contains(t, err.Error(), "bad json")
	assert.Contains(t, err.Error(), "estimator_params")

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "{bad json", cfgErr.Raw)
}

func TestUnsupportedOperationError(t *testing.T) {
	err := error(&UnsupportedOperationError{Op: "score0", Reason: "pipeline can not score on raw data"})
	require.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, errors.Is(err, ErrAddressing))
}

func TestModelMetricsCloneFor(t *testing.T) {
	mm := &ModelMetrics{ModelKey: "est", FrameKey: "tmp", Values: map[string]float64{MetricMSE: 1.5}}
	clone := mm.CloneFor("pipe", "input")

	assert.Equal(t, Key("pipe"), clone.ModelKey)
	assert.Equal(t, Key("input"), clone.FrameKey)

	clone.Values[MetricMSE] = 9
	v, _ := mm.Value(MetricMSE)
	assert.Equal(t, 1.5, v)

	var nilMetrics *ModelMetrics
	assert.Nil(t, nilMetrics.CloneFor("a", "b"))
}

func TestParameterErrorNamesValue(t *testing.T) {
	err := error(&ParameterError{Name: "lambda", Raw: "lots", Err: errors.New("not a number")})
	require.ErrorIs(t, err, ErrConfigInvalid)
	assert.Equal(t, `invalid value "lots" for parameter lambda: not a number`, err.Error())
}
