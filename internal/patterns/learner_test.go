package patterns

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-eval/internal/eval"
)

func newTestLearner(t *testing.T) (*Learner, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kb", "patterns.json")
	return NewLearner(DefaultLearnerConfig(path), nil), path
}

func rejected(tendencies, phrases []string) eval.EvaluationResult {
	return eval.NewResult(eval.ResultFields{
		Scores: map[eval.Dimension]float64{eval.OverallRealism: 4},
		Detections: map[eval.DetectionKind][]string{
			eval.AITendencies:      tendencies,
			eval.TheatricalPhrases: phrases,
		},
	})
}

func accepted(overall, voice float64) eval.EvaluationResult {
	return eval.NewResult(eval.ResultFields{
		Scores: map[eval.Dimension]float64{
			eval.OverallRealism:    overall,
			eval.VoiceAuthenticity: voice,
		},
		Passed: true,
	})
}

func TestLearner_MissingFileUsesDefaults(t *testing.T) {
	l, path := newTestLearner(t)
	snap := l.Snapshot()
	assert.Equal(t, 0, snap.TotalEvaluations)
	assert.Equal(t, seedPhrases, snap.TheatricalPhrases.MediumPenalty)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "reading must not create the file")
}

func TestLearner_RejectionLearnsAvoidance(t *testing.T) {
	l, _ := newTestLearner(t)
	res := rejected(
		[]string{"Hedging", "symmetrical lists", "ok"},
		[]string{"a true marvel", "Truly Remarkable", "this phrase is far too long to be a reusable pattern at all"},
	)
	require.NoError(t, l.Update(res, "text", false, "caption", "steel"))

	snap := l.Snapshot()
	assert.Equal(t, 1, snap.TotalEvaluations)
	assert.Equal(t, map[string]int{"hedging": 1, "symmetrical lists": 1}, snap.AITendencies.Common)
	// "Truly Remarkable" is already seeded in the medium tier.
	assert.Equal(t, []string{"a true marvel"}, snap.TheatricalPhrases.HighPenalty)
	assert.Equal(t, 0, snap.SuccessPatterns.SampleCount)
}

func TestLearner_PhrasesNotDuplicated(t *testing.T) {
	l, _ := newTestLearner(t)
	require.NoError(t, l.Update(rejected(nil, []string{"a true marvel"}), "", false, "caption", "steel"))
	require.NoError(t, l.Update(rejected(nil, []string{"A True Marvel"}), "", false, "caption", "steel"))

	snap := l.Snapshot()
	assert.Equal(t, []string{"a true marvel"}, snap.TheatricalPhrases.HighPenalty)
	assert.Equal(t, 2, snap.TotalEvaluations)
}

func TestLearner_AcceptanceMovesAverages(t *testing.T) {
	l, _ := newTestLearner(t)
	content := "Brass polishes to a warm glow and darkens where hands touch it."
	require.NoError(t, l.Update(accepted(8, 9), content, true, "caption", "brass"))

	sp := l.SuccessPatterns()
	assert.Equal(t, 1, sp.SampleCount)
	assert.InDelta(t, 80.0, sp.AvgRealismScore, 1e-9)
	assert.InDelta(t, 9.0, sp.AvgVoiceScore, 1e-9)
	assert.InDelta(t, 12.0, sp.AvgWordCount, 1e-9)
	assert.Equal(t, []string{"polishes", "darkens"}, sp.CharacteristicVerbs)

	require.NoError(t, l.Update(accepted(6, 9), "Steel holds an edge.", true, "caption", "steel"))
	sp = l.SuccessPatterns()
	assert.Equal(t, 2, sp.SampleCount)
	// 80*0.9 + 60*0.1
	assert.InDelta(t, 78.0, sp.AvgRealismScore, 1e-9)
	assert.Equal(t, []string{"polishes", "darkens", "holds"}, sp.CharacteristicVerbs)
	assert.Empty(t, l.Snapshot().AITendencies.Common)
}

func TestLearner_VerbsCapped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.json")
	cfg := DefaultLearnerConfig(path)
	cfg.MaxVerbs = 2
	l := NewLearner(cfg, nil)

	require.NoError(t, l.Update(accepted(8, 8), "it bends, cracks, warps and fades", true, "caption", "oak"))
	assert.Equal(t, []string{"bends", "cracks"}, l.SuccessPatterns().CharacteristicVerbs)
}

func TestLearner_AvoidancePatternsOrdering(t *testing.T) {
	l, _ := newTestLearner(t)
	require.NoError(t, l.Update(rejected([]string{"hedging", "lists"}, []string{"a true marvel"}), "", false, "caption", "a"))
	require.NoError(t, l.Update(rejected([]string{"lists"}, nil), "", false, "caption", "b"))
	require.NoError(t, l.Update(rejected([]string{"lists", "buzzwords"}, nil), "", false, "caption", "c"))

	ap := l.AvoidancePatterns()
	assert.Equal(t, []string{"lists", "buzzwords", "hedging"}, ap.Tendencies)
	assert.Equal(t, "a true marvel", ap.Phrases[0])
	assert.Len(t, ap.Phrases, len(seedPhrases)+1)
	assert.Equal(t, 1.0, ap.PenaltyWeights[TierHigh])
	assert.Equal(t, 0.5, ap.PenaltyWeights[TierMedium])

	hints := l.Hints()
	assert.Equal(t, ap.Phrases, hints.AvoidPhrases)
	assert.Equal(t, ap.Tendencies, hints.AvoidTendencies)
}

func TestLearner_PersistsAcrossInstances(t *testing.T) {
	l, path := newTestLearner(t)
	require.NoError(t, l.Update(rejected([]string{"hedging"}, []string{"a true marvel"}), "", false, "caption", "steel"))
	require.NoError(t, l.Update(accepted(9, 8), "Copper oxidizes green.", true, "caption", "copper"))

	reloaded := NewLearner(DefaultLearnerConfig(path), nil)
	assert.Equal(t, l.Snapshot(), reloaded.Snapshot())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLearner_CorruptFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	l := NewLearner(DefaultLearnerConfig(path), nil)
	assert.Equal(t, 0, l.Snapshot().TotalEvaluations)

	require.NoError(t, l.Update(rejected([]string{"hedging"}, nil), "", false, "caption", "steel"))
	reloaded := NewLearner(DefaultLearnerConfig(path), nil)
	assert.Equal(t, 1, reloaded.Snapshot().TotalEvaluations)
}

func TestLearner_PartialFileNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"total_evaluations": 4}`), 0o644))

	l := NewLearner(DefaultLearnerConfig(path), nil)
	require.NoError(t, l.Update(rejected([]string{"hedging"}, []string{"a true marvel"}), "", false, "caption", "steel"))

	snap := l.Snapshot()
	assert.Equal(t, 5, snap.TotalEvaluations)
	assert.Equal(t, 1, snap.AITendencies.Common["hedging"])
}

func TestLearner_SnapshotIsDeepCopy(t *testing.T) {
	l, _ := newTestLearner(t)
	require.NoError(t, l.Update(rejected([]string{"hedging"}, nil), "", false, "caption", "steel"))

	snap := l.Snapshot()
	snap.AITendencies.Common["hedging"] = 99
	snap.TheatricalPhrases.MediumPenalty[0] = "changed"

	again := l.Snapshot()
	assert.Equal(t, 1, again.AITendencies.Common["hedging"])
	assert.Equal(t, seedPhrases[0], again.TheatricalPhrases.MediumPenalty[0])
}

func TestLearner_ConcurrentUpdatesNotLost(t *testing.T) {
	l, path := newTestLearner(t)
	const workers = 16

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				assert.NoError(t, l.Update(rejected([]string{"hedging"}, nil), "", false, "caption", "steel"))
			} else {
				assert.NoError(t, l.Update(accepted(8, 8), "Iron rusts.", true, "caption", "iron"))
			}
		}(i)
	}
	wg.Wait()

	reloaded := NewLearner(DefaultLearnerConfig(path), nil).Snapshot()
	assert.Equal(t, workers, reloaded.TotalEvaluations)
	assert.Equal(t, workers/2, reloaded.AITendencies.Common["hedging"])
	assert.Equal(t, workers/2, reloaded.SuccessPatterns.SampleCount)
}

func TestLearner_PersistFailureKeepsState(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// parent of the knowledge base path is a regular file
	l := NewLearner(DefaultLearnerConfig(filepath.Join(blocker, "patterns.json")), nil)
	err := l.Update(rejected([]string{"hedging"}, nil), "", false, "caption", "steel")
	require.Error(t, err)
	assert.Equal(t, 0, l.Snapshot().TotalEvaluations)
}
