package orchestrator

// #region imports
import (
	"github.com/danielpatrickdp/adaptive-eval/internal/eval"
	"github.com/danielpatrickdp/adaptive-eval/internal/store"
)

// #endregion

// #region config

// Config tunes the feedback loop.
type Config struct {
	PassThreshold   float64 // overall_realism, 0-10
	MinPatternUses  int     // patterns below this are not recommended
	TopPatterns     int
	LearningEnabled bool
}

// DefaultConfig returns the standard loop settings.
func DefaultConfig() Config {
	return Config{
		PassThreshold:   7.0,
		MinPatternUses:  3,
		TopPatterns:     3,
		LearningEnabled: true,
	}
}

// #endregion

// #region plan

// Plan is everything a caller needs before generating content for a key.
type Plan struct {
	Category           string
	Context            string
	Tunables           store.Tunables
	Learned            bool    // Tunables came from learned_defaults
	SuggestedThreshold float64 // realism, 0-100
	GuidanceScale      float64
	Patterns           []string
	Hints              eval.Hints
}

// #endregion

// #region outcome

// Outcome is one evaluated attempt and the caller's accept/reject decision.
// Attempt carries the generation parameters; its validation fields are
// filled from Evaluation.
type Outcome struct {
	Evaluation      eval.EvaluationResult
	Content         string
	Accepted        bool
	Attempt         store.GenerationAttempt
	TemplateVersion string
}

// RecordResult reports what RecordOutcome wrote.
type RecordResult struct {
	AttemptID string
	Defaults  *store.LearnedDefaults // set when a success updated learned defaults
	Learned   bool                   // false when the kill switch is on
}

// #endregion
