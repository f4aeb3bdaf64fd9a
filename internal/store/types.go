package store

import (
	"errors"
	"fmt"
	"time"
)

// #region errors
// ErrPersistence matches every storage failure. These are always surfaced to
// the caller; a lost row is a lost learning signal.
var ErrPersistence = errors.New("persistence failure")

// PersistenceError records which store operation failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
// #endregion errors

// #region attempt
// GenerationAttempt is one append-only record of a generate-and-evaluate cycle.
type GenerationAttempt struct {
	ID            string
	Timestamp     time.Time
	Material      string
	Category      string
	Context       string
	ComponentType string

	// Generation parameters
	GuidanceScale       float64
	Uniformity          float64
	ViewMode            string
	AgingWeight         float64
	ContaminationWeight float64
	PromptLength        int
	PromptTruncated     bool
	FeedbackApplied     bool
	PatternsUsed        []string
	TemplateName        string

	// Validation results. Nil scores were not reported.
	RealismScore  *float64 // 0-100
	HumanScore    *float64 // 0-100
	AIScore       *float64 // 0-1
	PassThreshold float64
	Passed        bool
	Issues        []string

	// Outcome
	AttemptNumber int
	RetryCount    int
	FinalSuccess  bool

	ArtifactPath     string
	ArtifactMetadata map[string]any
	Notes            string
}

// attemptRow is the column form of GenerationAttempt.
type attemptRow struct {
	ID                  string   `db:"id"`
	Timestamp           string   `db:"timestamp"`
	Material            string   `db:"material"`
	Category            string   `db:"category"`
	Context             string   `db:"context"`
	ComponentType       string   `db:"component_type"`
	GuidanceScale       float64  `db:"guidance_scale"`
	Uniformity          float64  `db:"uniformity"`
	ViewMode            string   `db:"view_mode"`
	AgingWeight         float64  `db:"aging_weight"`
	ContaminationWeight float64  `db:"contamination_weight"`
	PromptLength        int      `db:"prompt_length"`
	PromptTruncated     bool     `db:"prompt_truncated"`
	FeedbackApplied     bool     `db:"feedback_applied"`
	PatternsUsed        string   `db:"patterns_used"`
	TemplateName        string   `db:"template_name"`
	RealismScore        *float64 `db:"realism_score"`
	HumanScore          *float64 `db:"human_score"`
	AIScore             *float64 `db:"ai_score"`
	PassThreshold       float64  `db:"pass_threshold"`
	Passed              bool     `db:"passed"`
	Issues              string   `db:"issues"`
	AttemptNumber       int      `db:"attempt_number"`
	RetryCount          int      `db:"retry_count"`
	FinalSuccess        bool     `db:"final_success"`
	ArtifactPath        string   `db:"artifact_path"`
	ArtifactMetadata    string   `db:"artifact_metadata"`
	Notes               string   `db:"notes"`
}
// #endregion attempt

// #region learned-defaults
// Tunables are the generation parameters learned per (category, context).
type Tunables struct {
	GuidanceScale       float64 `yaml:"guidance_scale" db:"guidance_scale" validate:"gt=0,lte=30"`
	Uniformity          float64 `yaml:"uniformity" db:"uniformity" validate:"gte=0,lte=1"`
	ViewMode            string  `yaml:"view_mode" db:"view_mode" validate:"required"`
	PassThreshold       float64 `yaml:"pass_threshold" db:"pass_threshold" validate:"gte=0,lte=100"`
	AgingWeight         float64 `yaml:"aging_weight" db:"aging_weight" validate:"gte=0,lte=1"`
	ContaminationWeight float64 `yaml:"contamination_weight" db:"contamination_weight" validate:"gte=0,lte=1"`
}

// LearnedDefaults is the adaptively tuned parameter set for one key.
type LearnedDefaults struct {
	Category string
	Context  string
	Tunables
	SampleCount  int
	SuccessCount int
	AvgScore     float64
	LastUpdated  time.Time
}

type defaultsRow struct {
	Category string `db:"category"`
	Context  string `db:"context"`
	Tunables
	SampleCount  int     `db:"sample_count"`
	SuccessCount int     `db:"success_count"`
	AvgScore     float64 `db:"avg_score"`
	LastUpdated  string  `db:"last_updated"`
}

// DefaultsKey identifies a learned_defaults row.
type DefaultsKey struct {
	Category string
	Context  string
}

// SuccessObservation is one passing attempt folded into learned defaults.
// Nil weights leave the stored value unchanged.
type SuccessObservation struct {
	Category            string
	Context             string
	GuidanceScale       float64
	Score               float64
	AgingWeight         *float64
	ContaminationWeight *float64
}
// #endregion learned-defaults

// #region pattern-effectiveness
// PatternKey identifies a pattern_effectiveness row.
type PatternKey struct {
	PatternID string
	Category  string
	Context   string
}

// PatternStats is one ranked pattern.
type PatternStats struct {
	PatternID    string  `db:"pattern_id"`
	Category     string  `db:"category"`
	Context      string  `db:"context"`
	TotalUses    int     `db:"total_uses"`
	SuccessCount int     `db:"success_count"`
	ScoreSum     float64 `db:"score_sum"`
	AvgScore     float64 `db:"avg_score"`
	SuccessRate  float64 `db:"-"`
}
// #endregion pattern-effectiveness

// #region templates
// TemplateKey identifies a prompt_templates row.
type TemplateKey struct {
	Name    string
	Version string
}

// TemplateUsage is one use of a prompt template.
type TemplateUsage struct {
	Name    string
	Version string
	Content string
	Passed  bool
	Score   float64
}

// TemplateStat summarizes a prompt template's effectiveness.
type TemplateStat struct {
	Name         string  `db:"template_name"`
	Version      string  `db:"version"`
	UsageCount   int     `db:"usage_count"`
	SuccessCount int     `db:"success_count"`
	AvgScore     float64 `db:"avg_score"`
	SuccessRate  float64 `db:"-"`
}
// #endregion templates

// #region analytics
// CategoryStats aggregates attempts for one category.
type CategoryStats struct {
	Category     string
	Total        int
	Passed       int
	SuccessRate  float64 // percent
	AvgRealism   float64
	AvgGuidance  float64
	AvgRetries   float64
	CommonIssues []IssueCount
}

// IssueCount is one entry of a violation frequency ranking.
type IssueCount struct {
	Issue string
	Count int
}

// GroupStats aggregates one side of a before/after comparison.
type GroupStats struct {
	Attempts    int
	Passed      int
	SuccessRate float64 // percent
	AvgRealism  float64
}

// Comparison splits attempts on a boolean generation parameter.
type Comparison struct {
	Without GroupStats
	With    GroupStats
}

// Improvement is the success rate difference in percentage points.
func (c Comparison) Improvement() float64 {
	return c.With.SuccessRate - c.Without.SuccessRate
}
// #endregion analytics
