package patterns

import "time"

// #region knowledge-base
// KnowledgeBase is the on-disk pattern store shared by every evaluation in
// the process. It is rewritten in full after each update.
type KnowledgeBase struct {
	TotalEvaluations  int             `json:"total_evaluations"`
	TheatricalPhrases PhraseTiers     `json:"theatrical_phrases"`
	AITendencies      TendencyCounts  `json:"ai_tendencies"`
	SuccessPatterns   SuccessPatterns `json:"success_patterns"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// PhraseTiers holds append-only avoidance phrases per penalty tier.
type PhraseTiers struct {
	HighPenalty   []string `json:"high_penalty"`
	MediumPenalty []string `json:"medium_penalty"`
}

// TendencyCounts counts how often each AI tendency caused a rejection.
type TendencyCounts struct {
	Common map[string]int `json:"common"`
}

// SuccessPatterns are smoothed statistics of accepted content.
type SuccessPatterns struct {
	AvgRealismScore     float64  `json:"avg_realism_score"` // 0-100
	AvgVoiceScore       float64  `json:"avg_voice_score"`   // 0-10
	AvgWordCount        float64  `json:"avg_word_count"`
	SampleCount         int      `json:"sample_count"`
	CharacteristicVerbs []string `json:"characteristic_verbs"`
}

// #endregion knowledge-base

// #region read-contracts
// Penalty tier names used in AvoidancePatterns.PenaltyWeights.
const (
	TierHigh   = "high_penalty"
	TierMedium = "medium_penalty"
)

// AvoidancePatterns is what the prompt builder reads to steer away from
// rejected output.
type AvoidancePatterns struct {
	Phrases        []string
	Tendencies     []string
	PenaltyWeights map[string]float64
}

// SuccessHints is what the prompt builder reads to steer toward accepted output.
type SuccessHints struct {
	CharacteristicVerbs []string
	AvgRealismScore     float64
	AvgVoiceScore       float64
	AvgWordCount        float64
	SampleCount         int
}

// #endregion read-contracts

// #region learner-config
// LearnerConfig holds the knowledge base location and learning limits.
type LearnerConfig struct {
	Path           string
	Alpha          float64 // EMA factor for success averages
	MaxPhraseWords int     // longer detections are not learned as phrases
	MaxPhraseLen   int
	MaxVerbs       int
	TopTendencies  int
}

// DefaultLearnerConfig returns the standard limits for a knowledge base at path.
func DefaultLearnerConfig(path string) LearnerConfig {
	return LearnerConfig{
		Path:           path,
		Alpha:          0.1,
		MaxPhraseWords: 6,
		MaxPhraseLen:   80,
		MaxVerbs:       24,
		TopTendencies:  10,
	}
}

// #endregion learner-config

// #region defaults
var penaltyWeights = map[string]float64{
	TierHigh:   1.0,
	TierMedium: 0.5,
}

// seedPhrases start the medium tier of a fresh knowledge base.
var seedPhrases = []string{
	"it's worth noting",
	"let's dive in",
	"delve into",
	"a testament to",
	"game-changer",
	"in today's fast-paced world",
	"stands as a",
	"truly remarkable",
	"in conclusion",
	"when it comes to",
}

// verbLexicon is the closed set of verbs tracked as characteristic of
// accepted content.
var verbLexicon = map[string]bool{
	"absorbs": true, "bends": true, "chips": true, "conducts": true,
	"corrodes": true, "cracks": true, "cuts": true, "darkens": true,
	"dents": true, "expands": true, "fades": true, "feels": true,
	"handles": true, "hardens": true, "holds": true, "machines": true,
	"oxidizes": true, "polishes": true, "reflects": true, "resists": true,
	"scratches": true, "shines": true, "shrinks": true, "softens": true,
	"stains": true, "warps": true, "wears": true, "weathers": true,
	"withstands": true, "yellows": true,
}

// DefaultKnowledgeBase returns the knowledge base used when no file exists
// or the file cannot be read.
func DefaultKnowledgeBase() KnowledgeBase {
	return KnowledgeBase{
		TheatricalPhrases: PhraseTiers{
			HighPenalty:   []string{},
			MediumPenalty: append([]string(nil), seedPhrases...),
		},
		AITendencies: TendencyCounts{Common: map[string]int{}},
		SuccessPatterns: SuccessPatterns{
			CharacteristicVerbs: []string{},
		},
	}
}

// #endregion defaults
