package gate

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateScores_PairMirrors(t *testing.T) {
	err := ValidateScores("detector", map[string]any{FieldHuman: 95.0, FieldAI: 0.05})
	require.NoError(t, err)
}

func TestValidateScores_PairInverted(t *testing.T) {
	err := ValidateScores("detector", map[string]any{FieldHuman: 95.0, FieldAI: 0.95})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScoreInconsistency))

	var si *ScoreInconsistency
	require.True(t, errors.As(err, &si))
	assert.Equal(t, "detector", si.Boundary)
	assert.Equal(t, "human_score/ai_score", si.Field)
	assert.Equal(t, 95.0, si.Values[FieldHuman])
	assert.Equal(t, 0.95, si.Values[FieldAI])
	assert.Contains(t, err.Error(), "detector")
}

func TestValidateScores_PairWithinTolerance(t *testing.T) {
	require.NoError(t, ValidateScores("b", map[string]any{FieldHuman: 80.0, FieldAI: 0.21}))
	require.Error(t, ValidateScores("b", map[string]any{FieldHuman: 80.0, FieldAI: 0.23}))
}

func TestValidateScores_Ranges(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		ok     bool
	}{
		{"human-high", map[string]any{FieldHuman: 100.5}, false},
		{"human-negative", map[string]any{FieldHuman: -1}, false},
		{"ai-above-one", map[string]any{FieldAI: 1.2}, false},
		{"overall-ok", map[string]any{FieldOverall: 7}, true},
		{"overall-high", map[string]any{FieldOverall: 11.0}, false},
		{"subjective-ok", map[string]any{FieldSubjective: float32(9.5)}, true},
		{"dimension-15", map[string]any{"overall_realism": 15.0}, false},
		{"json-number", map[string]any{FieldHuman: json.Number("42")}, true},
		{"string-value", map[string]any{FieldOverall: "8"}, false},
		{"nil-value", map[string]any{FieldOverall: nil}, false},
		{"nan", map[string]any{FieldOverall: math.NaN()}, false},
		{"unknown-field-ignored", map[string]any{"word_count": 9000}, true},
		{"empty", map[string]any{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScores("test", tt.fields)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrScoreInconsistency)
			}
		})
	}
}

func TestCheckPair(t *testing.T) {
	assert.NoError(t, CheckPair("winston", 30, 0.7))
	assert.ErrorIs(t, CheckPair("winston", 30, 0.3), ErrScoreInconsistency)
}

type fakeScores map[string]any

func (f fakeScores) ScoreFields() map[string]any { return f }

func TestGuard(t *testing.T) {
	out, err := Guard("exit", func() (fakeScores, error) {
		return fakeScores{FieldOverall: 8.0}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 8.0, out[FieldOverall])

	out, err = Guard("exit", func() (fakeScores, error) {
		return fakeScores{FieldHuman: 95.0, FieldAI: 0.95}, nil
	})
	assert.ErrorIs(t, err, ErrScoreInconsistency)
	assert.Nil(t, out)

	boom := errors.New("boom")
	_, err = Guard("exit", func() (fakeScores, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestGateDecide(t *testing.T) {
	g := NewGate(DefaultGateConfig())

	d := g.Decide(7.0, true)
	assert.True(t, d.Passed)
	assert.Equal(t, "accept", d.Action)

	d = g.Decide(6.9, true)
	assert.False(t, d.Passed)
	assert.Equal(t, "reject", d.Action)

	d = g.Decide(0, false)
	assert.False(t, d.Passed)
	assert.Contains(t, d.Reason, "no overall score")
}
