package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// #region dimensions
// Dimension names one of the six judge rubric scores (0-10).
type Dimension string

const (
	OverallRealism         Dimension = "overall_realism"
	VoiceAuthenticity      Dimension = "voice_authenticity"
	TonalConsistency       Dimension = "tonal_consistency"
	TechnicalAccessibility Dimension = "technical_accessibility"
	NaturalImperfection    Dimension = "natural_imperfection"
	ConversationalFlow     Dimension = "conversational_flow"
)

// Dimensions lists every rubric dimension in report order.
var Dimensions = []Dimension{
	OverallRealism,
	VoiceAuthenticity,
	TonalConsistency,
	TechnicalAccessibility,
	NaturalImperfection,
	ConversationalFlow,
}

// #endregion dimensions

// #region detections
// DetectionKind names one of the four judge detection lists.
type DetectionKind string

const (
	TechnicalJargonIssues DetectionKind = "technical_jargon_issues"
	AITendencies          DetectionKind = "ai_tendencies"
	TheatricalPhrases     DetectionKind = "theatrical_phrases"
	FormulaicStructures   DetectionKind = "formulaic_structures"
)

// DetectionKinds lists every detection list in report order.
var DetectionKinds = []DetectionKind{
	TechnicalJargonIssues,
	AITendencies,
	TheatricalPhrases,
	FormulaicStructures,
}

// #endregion detections

// #region evaluation-result
// ResultFields is the mutable input used to build an EvaluationResult.
type ResultFields struct {
	Scores     map[Dimension]float64
	Detections map[DetectionKind][]string
	Narrative  string
	Passed     bool
	Raw        string
}

// EvaluationResult is the structured form of one judge response. It cannot be
// changed after construction; accessors hand out copies.
type EvaluationResult struct {
	scores     map[Dimension]float64
	detections map[DetectionKind][]string
	narrative  string
	passed     bool
	raw        string
}

// NewResult copies f into an immutable EvaluationResult.
func NewResult(f ResultFields) EvaluationResult {
	r := EvaluationResult{
		scores:     make(map[Dimension]float64, len(f.Scores)),
		detections: make(map[DetectionKind][]string, len(f.Detections)),
		narrative:  f.Narrative,
		passed:     f.Passed,
		raw:        f.Raw,
	}
	for d, v := range f.Scores {
		r.scores[d] = v
	}
	for k, items := range f.Detections {
		r.detections[k] = append([]string(nil), items...)
	}
	return r
}

// Score returns a dimension score and whether the judge reported it.
func (r EvaluationResult) Score(d Dimension) (float64, bool) {
	v, ok := r.scores[d]
	return v, ok
}

// Scores returns a copy of every reported dimension score.
func (r EvaluationResult) Scores() map[Dimension]float64 {
	out := make(map[Dimension]float64, len(r.scores))
	for d, v := range r.scores {
		out[d] = v
	}
	return out
}

// Detections returns a copy of one detection list. Nil means empty.
func (r EvaluationResult) Detections(k DetectionKind) []string {
	items := r.detections[k]
	if len(items) == 0 {
		return nil
	}
	return append([]string(nil), items...)
}

// Issues flattens every detection list in DetectionKinds order.
func (r EvaluationResult) Issues() []string {
	var out []string
	for _, k := range DetectionKinds {
		out = append(out, r.detections[k]...)
	}
	return out
}

func (r EvaluationResult) Narrative() string { return r.narrative }
func (r EvaluationResult) Passed() bool      { return r.passed }

// Raw returns the unmodified judge text, kept for audit.
func (r EvaluationResult) Raw() string { return r.raw }

// RealismScore returns overall realism on the 0-100 scale used by the
// attempt store and threshold suggestions.
func (r EvaluationResult) RealismScore() (float64, bool) {
	v, ok := r.scores[OverallRealism]
	return v * 10, ok
}

// ScoreFields exposes the reported scores for gate.ValidateScores.
func (r EvaluationResult) ScoreFields() map[string]any {
	out := make(map[string]any, len(r.scores)+1)
	for d, v := range r.scores {
		out[string(d)] = v
	}
	if v, ok := r.scores[OverallRealism]; ok {
		out["overall_score"] = v
	}
	return out
}

// MarshalJSON renders the result for CLI output and audit rows.
func (r EvaluationResult) MarshalJSON() ([]byte, error) {
	scores := make(map[string]float64, len(r.scores))
	for d, v := range r.scores {
		scores[string(d)] = v
	}
	dets := make(map[string][]string, len(DetectionKinds))
	for _, k := range DetectionKinds {
		items := r.detections[k]
		if items == nil {
			items = []string{}
		}
		dets[string(k)] = items
	}
	return json.Marshal(struct {
		Scores     map[string]float64  `json:"scores"`
		Detections map[string][]string `json:"detections"`
		Narrative  string              `json:"narrative"`
		Passed     bool                `json:"passed"`
	}{scores, dets, r.narrative, r.passed})
}

// #endregion evaluation-result

// #region parse-config
// ParseConfig controls the pass/fail fallback of the parser.
type ParseConfig struct {
	// PassThreshold is compared with overall_realism when the judge gives no
	// explicit Pass/Fail label.
	PassThreshold float64
	// MissingOverallDefault, when set, is used as overall_realism if the judge
	// omits it. Nil leaves it unset and the fallback verdict fails.
	MissingOverallDefault *float64
}

// DefaultParseConfig returns the default parser settings.
func DefaultParseConfig() ParseConfig {
	return ParseConfig{PassThreshold: 7.0}
}

// ParseReport records what the parser could not find. Nothing in it is fatal.
type ParseReport struct {
	Missing    []string // labels never seen
	Unparsed   []string // labels seen without a usable value
	PassSource string   // "label" | "threshold"
	Defaulted  bool     // overall_realism came from MissingOverallDefault
}

// #endregion parse-config

// #region judge
// JudgeRequest is what the evaluator sends to the judge model.
type JudgeRequest struct {
	Prompt        string
	ItemName      string
	ComponentType string
}

// Judge calls the judge model and returns its free text.
type Judge interface {
	Judge(ctx context.Context, req JudgeRequest) (string, error)
}

// JudgeFunc adapts a function to Judge.
type JudgeFunc func(ctx context.Context, req JudgeRequest) (string, error)

func (f JudgeFunc) Judge(ctx context.Context, req JudgeRequest) (string, error) {
	return f(ctx, req)
}

// ErrJudgeCall matches every *JudgeCallError via errors.Is.
var ErrJudgeCall = errors.New("judge call failed")

// JudgeCallError wraps a failed judge call. No fallback score is produced.
type JudgeCallError struct {
	Item string
	Err  error
}

func (e *JudgeCallError) Error() string {
	return fmt.Sprintf("judge call failed for %q: %v", e.Item, e.Err)
}

func (e *JudgeCallError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrJudgeCall) match.
func (e *JudgeCallError) Is(target error) bool { return target == ErrJudgeCall }

// #endregion judge

// #region request
// Hints are the learned avoidance/success patterns embedded in the prompt.
type Hints struct {
	AvoidPhrases        []string
	AvoidTendencies     []string
	CharacteristicVerbs []string
	TargetRealism       float64
}

// Request describes one piece of content to evaluate.
type Request struct {
	Content       string
	ItemName      string
	ComponentType string
	Context       string
	Hints         Hints
}

// #endregion request
