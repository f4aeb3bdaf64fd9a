package gate

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var scoreInconsistenciesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "adaptive_score_inconsistencies_total",
	Help: "Score consistency violations caught at validated boundaries",
}, []string{"boundary", "field"})

// #region validate
// ValidateScores checks every known score field present in fields: it must be
// numeric and inside its range, and a human/ai pair must agree within
// PairTolerance. Fields it does not know are ignored. Values are never clamped.
func ValidateScores(boundary string, fields map[string]any) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	nums := make(map[string]float64, len(keys))
	for _, k := range keys {
		b, known := fieldBounds[k]
		if !known {
			continue
		}
		v, ok := toFloat(fields[k])
		if !ok {
			return inconsistency(boundary, k, fields, fmt.Sprintf("non-numeric value %v (%T)", fields[k], fields[k]))
		}
		if v < b.lo || v > b.hi {
			return inconsistency(boundary, k, fields, fmt.Sprintf("%.4g outside [%g, %g]", v, b.lo, b.hi))
		}
		nums[k] = v
	}

	human, hasHuman := nums[FieldHuman]
	ai, hasAI := nums[FieldAI]
	if hasHuman && hasAI {
		expected := (100 - human) / 100
		if math.Abs(ai-expected) > PairTolerance+1e-9 {
			return inconsistency(boundary, FieldHuman+"/"+FieldAI, fields,
				fmt.Sprintf("ai_score %.4f does not mirror human_score %.2f (expected %.4f)", ai, human, expected))
		}
	}
	return nil
}

// CheckPair validates an externally sourced human/ai pair, e.g. a third-party
// detector response, before it is trusted.
func CheckPair(boundary string, human, ai float64) error {
	return ValidateScores(boundary, map[string]any{FieldHuman: human, FieldAI: ai})
}

// Guard runs fn and validates its result on the way out.
func Guard[T ScoreSource](boundary string, fn func() (T, error)) (T, error) {
	out, err := fn()
	if err != nil {
		return out, err
	}
	if err := ValidateScores(boundary, out.ScoreFields()); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// #endregion validate

// #region gate
// Gate turns a scalar score into an accept/reject decision.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Threshold returns the configured pass threshold.
func (g *Gate) Threshold() float64 {
	return g.config.PassThreshold
}

// Decide compares score with the threshold. A missing score is a reject.
func (g *Gate) Decide(score float64, present bool) GateDecision {
	th := g.config.PassThreshold
	if !present {
		return GateDecision{
			Action:    "reject",
			Threshold: th,
			Reason:    "no overall score to compare against threshold",
		}
	}
	if score >= th {
		return GateDecision{
			Action:    "accept",
			Passed:    true,
			Score:     score,
			Threshold: th,
			Reason:    fmt.Sprintf("score %.2f >= threshold %.2f", score, th),
		}
	}
	return GateDecision{
		Action:    "reject",
		Score:     score,
		Threshold: th,
		Reason:    fmt.Sprintf("score %.2f below threshold %.2f", score, th),
	}
}

// #endregion gate

// #region helpers
func inconsistency(boundary, field string, fields map[string]any, reason string) error {
	scoreInconsistenciesTotal.WithLabelValues(boundary, field).Inc()
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, known := fieldBounds[k]; known {
			values[k] = v
		}
	}
	return &ScoreInconsistency{
		Boundary: boundary,
		Field:    field,
		Values:   values,
		Reason:   reason,
	}
}

// toFloat accepts any Go numeric kind or json.Number. NaN and Inf are rejected.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// #endregion helpers
