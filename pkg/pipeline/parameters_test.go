package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
	"github.com/yanorepuser4/h2o-3/pkg/pipeline/runtime"
)

func newTestParameters() *Parameters {
	return NewParameters(newStubEstimatorParams(), newShift("a", 1, nil), newShift("b", 2, nil))
}

func TestParametersRouting(t *testing.T) {
	p := newTestParameters()

	require.NoError(t, p.SetParameter("a.delta", 5.0))
	require.NoError(t, p.SetParameter("transformers[1].delta", 7))
	require.NoError(t, p.SetParameter("_estimator.bias", "0.5"))
	require.NoError(t, p.SetParameter("seed", 42))

	v, err := p.GetParameter("transformers[0].delta")
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)

	v, err = p.GetParameter("transformers[b].delta")
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	v, err = p.GetParameter("estimator.bias")
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	v, err = p.GetParameter("_seed")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	assert.True(t, p.HasParameter("b.center"))
	assert.True(t, p.HasParameter("estimator.fail"))
	assert.True(t, p.HasParameter("response_column"))
	assert.False(t, p.HasParameter("estimator.nope"))
	assert.False(t, p.HasParameter("c.delta"))
	assert.False(t, p.HasParameter("nope"))
}

func TestParametersUnresolvablePaths(t *testing.T) {
	p := newTestParameters()

	for _, path := range []string{"c.delta", "transformers[2].delta", "transformers[].delta"} {
		_, err := p.GetParameter(path)
		assert.ErrorIs(t, err, domain.ErrAddressing, path)
		assert.ErrorIs(t, p.SetParameter(path, 1), domain.ErrAddressing, path)
	}

	_, err := p.GetParameter("unknown_field")
	assert.ErrorIs(t, err, domain.ErrAddressing)
}

func TestParametersRejectsBadValues(t *testing.T) {
	p := newTestParameters()

	err := p.SetParameter("a.delta", "lots")
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
	var perr *domain.ParameterError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "delta", perr.Name)
	assert.Contains(t, err.Error(), `"a.delta"`)

	err = p.SetParameter("estimator_key_pattern", "no_placeholder")
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ParamEstimatorKeyPattern, perr.Name)

	require.NoError(t, p.SetParameter("estimator_key_pattern", "{0}_glm"))
	v, err := p.GetParameter("estimator_key_pattern")
	require.NoError(t, err)
	assert.Equal(t, "{0}_glm", v)
	assert.Equal(t, domain.Key("p1_glm"), p.EstimatorKeyGen.Make("p1"))
}

func TestParametersWithoutEstimator(t *testing.T) {
	p := NewParameters(nil, newShift("a", 1, nil))

	v, err := p.GetParameter("estimator.bias")
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.ErrorIs(t, p.SetParameter("estimator.bias", 1.0), domain.ErrAddressing)
	assert.False(t, p.HasParameter("estimator.bias"))
	assert.False(t, p.IsValidHyperParameter("estimator.bias"))
	assert.ErrorIs(t, p.SetEstimatorParams(`{"bias": 1}`), domain.ErrAddressing)
}

func TestParametersIsValidHyperParameter(t *testing.T) {
	p := newTestParameters()

	assert.True(t, p.IsValidHyperParameter("estimator.bias"))
	assert.False(t, p.IsValidHyperParameter("estimator.fail"))
	assert.True(t, p.IsValidHyperParameter("a.delta"))
	assert.True(t, p.IsValidHyperParameter("transformers[1].center"))
	assert.False(t, p.IsValidHyperParameter("a.nope"))
	assert.True(t, p.IsValidHyperParameter("seed"))
	assert.False(t, p.IsValidHyperParameter("model_id"))
	assert.False(t, p.IsValidHyperParameter("transformers[9].delta"))
}

func TestSetEstimatorParams(t *testing.T) {
	p := newTestParameters()
	original := p.Estimator

	require.NoError(t, p.SetEstimatorParams(`{"bias": 2.5, "fail": false}`))
	v, err := p.GetParameter("estimator.bias")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)
	raw, err := p.GetParameter(ParamEstimatorParams)
	require.NoError(t, err)
	assert.Equal(t, `{"bias": 2.5, "fail": false}`, raw)

	ov, err := original.GetParameter("bias")
	require.NoError(t, err)
	assert.Equal(t, 0.0, ov, "the previous configuration is not modified")
}

func TestSetEstimatorParamsRejectsInvalidJSON(t *testing.T) {
	p := newTestParameters()
	before := p.Estimator

	for _, raw := range []string{`{"bias": `, `[1, 2]`, `"text"`} {
		err := p.SetParameter(ParamEstimatorParams, raw)
		require.ErrorIs(t, err, domain.ErrConfigInvalid, raw)
		var cerr *domain.ConfigError
		require.ErrorAs(t, err, &cerr, raw)
		assert.Equal(t, raw, cerr.Raw)
		assert.Contains(t, err.Error(), raw)
	}

	err := p.SetEstimatorParams(`{"bias": 1, "fail": "maybe"}`)
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
	assert.Same(t, before, p.Estimator, "a rejected payload leaves the estimator untouched")
	v, _ := p.GetParameter("estimator.bias")
	assert.Equal(t, 0.0, v)
}

func TestParseNestedParams(t *testing.T) {
	values, err := ParseNestedParams("x", `{"a": 1, "b": [1, "two"], "c": {"d": true}, "e": null}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, values["a"])
	assert.Equal(t, []any{1.0, "two"}, values["b"])
	assert.Equal(t, map[string]any{"d": true}, values["c"])
	assert.Contains(t, values, "e")
	assert.Nil(t, values["e"])
}

func TestParametersValidate(t *testing.T) {
	tests := []struct {
		name         string
		transformers []runtime.Transformer
		wantErr      bool
	}{
		{"empty", nil, false},
		{"distinct", []runtime.Transformer{newShift("a", 0, nil), newShift("b", 0, nil)}, false},
		{"duplicate", []runtime.Transformer{newShift("a", 0, nil), newShift("a", 0, nil)}, true},
		{"reserved", []runtime.Transformer{newShift(EstimatorSegment, 0, nil)}, true},
		{"no id", []runtime.Transformer{newShift("", 0, nil)}, true},
		{"nil", []runtime.Transformer{nil}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewParameters(nil, tt.transformers...).Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrConfigInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParametersCloneIsIndependent(t *testing.T) {
	p := newTestParameters()
	p.IgnoredColumns = []string{"z"}
	c := p.Clone()

	require.NoError(t, c.SetParameter("a.delta", 100))
	require.NoError(t, c.SetParameter("estimator.bias", 3))
	c.IgnoredColumns[0] = "changed"

	v, _ := p.GetParameter("a.delta")
	assert.Equal(t, 1.0, v)
	v, _ = p.GetParameter("estimator.bias")
	assert.Equal(t, 0.0, v)
	assert.Equal(t, []string{"z"}, p.IgnoredColumns)
	assert.NotSame(t, p.Transformers[0], c.Transformers[0])
}

func TestParametersChecksum(t *testing.T) {
	base := newTestParameters()
	sum := base.Checksum()

	t.Run("ignores ids and generated names", func(t *testing.T) {
		p := NewParameters(newStubEstimatorParams(), newShift("first", 1, nil), newShift("second", 2, nil))
		p.ModelID = "somewhere_else"
		p.EstimatorKeyGen = PatternKeyGen("{0}_other")
		assert.Equal(t, sum, p.Checksum())
	})

	t.Run("transformer content", func(t *testing.T) {
		p := newTestParameters()
		require.NoError(t, p.SetParameter("b.center", true))
		assert.NotEqual(t, sum, p.Checksum())
	})

	t.Run("transformer order", func(t *testing.T) {
		p := NewParameters(newStubEstimatorParams(), newShift("b", 2, nil), newShift("a", 1, nil))
		assert.NotEqual(t, sum, p.Checksum())
	})

	t.Run("estimator parameter", func(t *testing.T) {
		p := newTestParameters()
		require.NoError(t, p.SetParameter("estimator.bias", 0.25))
		assert.NotEqual(t, sum, p.Checksum())
	})

	t.Run("pipeline fields", func(t *testing.T) {
		p := newTestParameters()
		p.ResponseColumn = "y"
		assert.NotEqual(t, sum, p.Checksum())
	})

	t.Run("no estimator", func(t *testing.T) {
		withEst := newTestParameters()
		without := NewParameters(nil, newShift("a", 1, nil), newShift("b", 2, nil))
		estimatorPart := withEst.Estimator.Checksum()
		assert.Equal(t, withEst.Checksum()^estimatorPart, without.Checksum()^NoEstimatorChecksum)
	})
}

func TestParametersChecksumProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 4).Draw(rt, "n")
		deltas := rapid.SliceOfN(rapid.Float64Range(-10, 10), n, n).Draw(rt, "deltas")
		bias := rapid.Float64Range(-5, 5).Draw(rt, "bias")

		build := func(prefix string) *Parameters {
			transformers := make([]runtime.Transformer, n)
			for i, d := range deltas {
				transformers[i] = newShift(prefix+string(rune('a'+i)), d, nil)
			}
			est := newStubEstimatorParams()
			require.NoError(rt, est.SetParameter("bias", bias))
			return NewParameters(est, transformers...)
		}

		p1, p2 := build("x_"), build("y_")
		p2.ModelID = domain.Key(rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "model_id"))
		assert.Equal(rt, p1.Checksum(), p2.Checksum())
		assert.Equal(rt, p1.Checksum(), p1.Clone().Checksum())
	})
}
