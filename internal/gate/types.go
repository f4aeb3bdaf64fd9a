package gate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// #region field-names
// Score field names recognised at a validated boundary.
const (
	FieldHuman      = "human_score"
	FieldAI         = "ai_score"
	FieldSubjective = "subjective_score"
	FieldOverall    = "overall_score"
)

// PairTolerance is the allowed drift between ai_score and (100-human_score)/100.
const PairTolerance = 0.01

type bound struct {
	lo, hi float64
}

// fieldBounds lists every range-checked field. The six dimension names match
// the judge rubric dimensions carried by eval.EvaluationResult.
var fieldBounds = map[string]bound{
	FieldHuman:                {0, 100},
	FieldAI:                   {0, 1},
	FieldSubjective:           {0, 10},
	FieldOverall:              {0, 10},
	"overall_realism":         {0, 10},
	"voice_authenticity":      {0, 10},
	"tonal_consistency":       {0, 10},
	"technical_accessibility": {0, 10},
	"natural_imperfection":    {0, 10},
	"conversational_flow":     {0, 10},
	"realism_score":           {0, 100},
}

// #endregion field-names

// #region score-inconsistency
// ErrScoreInconsistency matches every *ScoreInconsistency via errors.Is.
var ErrScoreInconsistency = errors.New("score inconsistency")

// ScoreInconsistency reports a numeric invariant violated at a boundary.
// It is never retried: it points at a scoring bug, not a transient failure.
type ScoreInconsistency struct {
	Boundary string
	Field    string
	Values   map[string]any
	Reason   string
}

func (e *ScoreInconsistency) Error() string {
	keys := make([]string, 0, len(e.Values))
	for k := range e.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Values[k]))
	}
	return fmt.Sprintf("score inconsistency at %s: %s: %s [%s]",
		e.Boundary, e.Field, e.Reason, strings.Join(parts, " "))
}

// Is lets errors.Is(err, ErrScoreInconsistency) match.
func (e *ScoreInconsistency) Is(target error) bool {
	return target == ErrScoreInconsistency
}

// #endregion score-inconsistency

// #region score-source
// ScoreSource is anything that can expose its scores for boundary checks.
type ScoreSource interface {
	ScoreFields() map[string]any
}

// #endregion score-source

// #region gate-config
// GateConfig holds the pass/fail threshold on the 0-10 judge scale.
type GateConfig struct {
	PassThreshold float64
}

// DefaultGateConfig returns the default acceptance bar.
func DefaultGateConfig() GateConfig {
	return GateConfig{PassThreshold: 7.0}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of the pass/fail gate.
type GateDecision struct {
	Action    string // "accept" | "reject"
	Passed    bool
	Score     float64
	Threshold float64
	Reason    string
}

// #endregion gate-decision
