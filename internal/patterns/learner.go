package patterns

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/danielpatrickdp/adaptive-eval/internal/eval"
	"github.com/danielpatrickdp/adaptive-eval/internal/update"
)

var learnerUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "adaptive_pattern_learner_updates_total",
	Help: "Pattern knowledge base updates by outcome",
}, []string{"outcome"})

// #region learner
// Learner owns the pattern knowledge base. One mutex covers load, mutation
// and the full-file rewrite, so concurrent workers never interleave writes.
type Learner struct {
	mu     sync.Mutex
	config LearnerConfig
	kb     *KnowledgeBase
	logger *slog.Logger
	now    func() time.Time
}

// NewLearner creates a learner. The file is read lazily on first use.
func NewLearner(config LearnerConfig, logger *slog.Logger) *Learner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Learner{config: config, logger: logger, now: time.Now}
}

// Update folds one evaluation outcome into the knowledge base and rewrites
// the file. Rejections teach avoidance; acceptances move the success averages.
func (l *Learner) Update(res eval.EvaluationResult, content string, accepted bool, componentType, itemName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := cloneKnowledgeBase(*l.loadLocked())
	next.TotalEvaluations++

	if accepted {
		l.learnSuccess(&next, res, content)
	} else {
		l.learnRejection(&next, res)
	}
	next.UpdatedAt = l.now().UTC()

	if err := l.persistLocked(next); err != nil {
		learnerUpdatesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("persist knowledge base: %w", err)
	}
	l.kb = &next

	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	learnerUpdatesTotal.WithLabelValues(outcome).Inc()
	l.logger.Debug("pattern knowledge base updated",
		"item", itemName,
		"component", componentType,
		"outcome", outcome,
		"total_evaluations", next.TotalEvaluations,
	)
	return nil
}

func (l *Learner) learnRejection(kb *KnowledgeBase, res eval.EvaluationResult) {
	for _, t := range res.Detections(eval.AITendencies) {
		key := strings.ToLower(strings.TrimSpace(t))
		if len(key) < 3 || key == "none" {
			continue
		}
		kb.AITendencies.Common[key]++
	}
	for _, p := range res.Detections(eval.TheatricalPhrases) {
		phrase := strings.TrimSpace(p)
		if phrase == "" || len(phrase) > l.config.MaxPhraseLen || len(strings.Fields(phrase)) > l.config.MaxPhraseWords {
			continue
		}
		if containsFold(kb.TheatricalPhrases.HighPenalty, phrase) || containsFold(kb.TheatricalPhrases.MediumPenalty, phrase) {
			continue
		}
		kb.TheatricalPhrases.HighPenalty = append(kb.TheatricalPhrases.HighPenalty, phrase)
	}
}

func (l *Learner) learnSuccess(kb *KnowledgeBase, res eval.EvaluationResult, content string) {
	sp := &kb.SuccessPatterns
	n := sp.SampleCount
	if realism, ok := res.RealismScore(); ok {
		sp.AvgRealismScore = update.Running{Value: sp.AvgRealismScore, Count: n}.Observe(realism, l.config.Alpha).Value
	}
	if voice, ok := res.Score(eval.VoiceAuthenticity); ok {
		sp.AvgVoiceScore = update.Running{Value: sp.AvgVoiceScore, Count: n}.Observe(voice, l.config.Alpha).Value
	}
	words := float64(len(strings.Fields(content)))
	sp.AvgWordCount = update.Running{Value: sp.AvgWordCount, Count: n}.Observe(words, l.config.Alpha).Value
	sp.SampleCount++

	for _, verb := range findVerbs(content) {
		if len(sp.CharacteristicVerbs) >= l.config.MaxVerbs {
			break
		}
		if !containsFold(sp.CharacteristicVerbs, verb) {
			sp.CharacteristicVerbs = append(sp.CharacteristicVerbs, verb)
		}
	}
}

// #endregion learner

// #region read-contracts
// AvoidancePatterns returns phrases from both tiers without duplicates, the
// most frequent tendencies, and the tier weights.
func (l *Learner) AvoidancePatterns() AvoidancePatterns {
	l.mu.Lock()
	defer l.mu.Unlock()
	kb := l.loadLocked()

	var phrases []string
	for _, p := range append(append([]string(nil), kb.TheatricalPhrases.HighPenalty...), kb.TheatricalPhrases.MediumPenalty...) {
		if !containsFold(phrases, p) {
			phrases = append(phrases, p)
		}
	}

	type tc struct {
		name  string
		count int
	}
	counts := make([]tc, 0, len(kb.AITendencies.Common))
	for name, c := range kb.AITendencies.Common {
		counts = append(counts, tc{name, c})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].name < counts[j].name
	})
	var tendencies []string
	for i, c := range counts {
		if i >= l.config.TopTendencies {
			break
		}
		tendencies = append(tendencies, c.name)
	}

	weights := make(map[string]float64, len(penaltyWeights))
	for k, v := range penaltyWeights {
		weights[k] = v
	}
	return AvoidancePatterns{Phrases: phrases, Tendencies: tendencies, PenaltyWeights: weights}
}

// SuccessPatterns returns the smoothed statistics of accepted content.
func (l *Learner) SuccessPatterns() SuccessHints {
	l.mu.Lock()
	defer l.mu.Unlock()
	sp := l.loadLocked().SuccessPatterns
	return SuccessHints{
		CharacteristicVerbs: append([]string(nil), sp.CharacteristicVerbs...),
		AvgRealismScore:     sp.AvgRealismScore,
		AvgVoiceScore:       sp.AvgVoiceScore,
		AvgWordCount:        sp.AvgWordCount,
		SampleCount:         sp.SampleCount,
	}
}

// Hints packages both read contracts as evaluation prompt hints.
func (l *Learner) Hints() eval.Hints {
	avoid := l.AvoidancePatterns()
	success := l.SuccessPatterns()
	return eval.Hints{
		AvoidPhrases:        avoid.Phrases,
		AvoidTendencies:     avoid.Tendencies,
		CharacteristicVerbs: success.CharacteristicVerbs,
		TargetRealism:       success.AvgRealismScore,
	}
}

// Snapshot returns a deep copy of the current knowledge base.
func (l *Learner) Snapshot() KnowledgeBase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneKnowledgeBase(*l.loadLocked())
}

// #endregion read-contracts

// #region persistence
// loadLocked reads the file once. A missing or unreadable file degrades to
// DefaultKnowledgeBase: it only affects future prompt hints.
func (l *Learner) loadLocked() *KnowledgeBase {
	if l.kb != nil {
		return l.kb
	}
	kb := DefaultKnowledgeBase()
	data, err := os.ReadFile(l.config.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		l.logger.Info("pattern knowledge base not found, using defaults", "path", l.config.Path)
	case err != nil:
		l.logger.Warn("pattern knowledge base unreadable, using defaults", "path", l.config.Path, "error", err)
	default:
		var loaded KnowledgeBase
		if err := json.Unmarshal(data, &loaded); err != nil {
			l.logger.Warn("pattern knowledge base corrupt, using defaults", "path", l.config.Path, "error", err)
		} else {
			kb = normalize(loaded)
		}
	}
	l.kb = &kb
	return l.kb
}

// persistLocked rewrites the whole file via temp file and rename.
func (l *Learner) persistLocked(kb KnowledgeBase) error {
	data, err := json.MarshalIndent(kb, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	dir := filepath.Dir(l.config.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".patterns-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, l.config.Path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	success = true
	return nil
}

// #endregion persistence

// #region helpers
func normalize(kb KnowledgeBase) KnowledgeBase {
	if kb.TheatricalPhrases.HighPenalty == nil {
		kb.TheatricalPhrases.HighPenalty = []string{}
	}
	if kb.TheatricalPhrases.MediumPenalty == nil {
		kb.TheatricalPhrases.MediumPenalty = []string{}
	}
	if kb.AITendencies.Common == nil {
		kb.AITendencies.Common = map[string]int{}
	}
	if kb.SuccessPatterns.CharacteristicVerbs == nil {
		kb.SuccessPatterns.CharacteristicVerbs = []string{}
	}
	return kb
}

func cloneKnowledgeBase(kb KnowledgeBase) KnowledgeBase {
	out := kb
	out.TheatricalPhrases.HighPenalty = append([]string{}, kb.TheatricalPhrases.HighPenalty...)
	out.TheatricalPhrases.MediumPenalty = append([]string{}, kb.TheatricalPhrases.MediumPenalty...)
	out.SuccessPatterns.CharacteristicVerbs = append([]string{}, kb.SuccessPatterns.CharacteristicVerbs...)
	out.AITendencies.Common = make(map[string]int, len(kb.AITendencies.Common))
	for k, v := range kb.AITendencies.Common {
		out.AITendencies.Common[k] = v
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, x := range list {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}

// findVerbs returns lexicon verbs in order of first appearance.
func findVerbs(content string) []string {
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	seen := make(map[string]bool)
	var out []string
	for _, w := range words {
		if verbLexicon[w] && !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// #endregion helpers
