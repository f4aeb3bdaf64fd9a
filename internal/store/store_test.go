package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-eval/internal/gate"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func f64(v float64) *float64 { return &v }

func attempt(category, contextName string, passed bool, realism float64) GenerationAttempt {
	return GenerationAttempt{
		Material:      "aluminum",
		Category:      category,
		Context:       contextName,
		ComponentType: "caption",
		GuidanceScale: 7.5,
		RealismScore:  f64(realism),
		PassThreshold: 75,
		Passed:        passed,
		AttemptNumber: 1,
	}
}

func TestLogAttempt_RoundTrip(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	a := attempt("metal", "outdoor", true, 82)
	a.HumanScore = f64(95)
	a.AIScore = f64(0.05)
	a.PatternsUsed = []string{"sensory-open", "contrast"}
	a.Issues = []string{"slightly formal"}
	a.PromptTruncated = true
	a.ArtifactMetadata = map[string]any{"seed": "42"}
	a.Notes = "first run"

	id, err := s.LogAttempt(ctx, a)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.RecentAttempts(ctx, "metal", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	r := got[0]
	assert.Equal(t, id, r.ID)
	assert.False(t, r.Timestamp.IsZero())
	assert.Equal(t, "UTC", r.Timestamp.Location().String())
	assert.Equal(t, []string{"sensory-open", "contrast"}, r.PatternsUsed)
	assert.Equal(t, []string{"slightly formal"}, r.Issues)
	assert.True(t, r.PromptTruncated)
	assert.False(t, r.FeedbackApplied)
	require.NotNil(t, r.RealismScore)
	assert.Equal(t, 82.0, *r.RealismScore)
	assert.Equal(t, 0.05, *r.AIScore)
	assert.Equal(t, "42", r.ArtifactMetadata["seed"])
	assert.Equal(t, "first run", r.Notes)
}

func TestLogAttempt_UniqueIDs(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	ids := map[string]bool{}
	for i := 0; i < 10; i++ {
		id, err := s.LogAttempt(ctx, attempt("metal", "outdoor", false, 50))
		require.NoError(t, err)
		ids[id] = true
	}
	assert.Len(t, ids, 10)
}

func TestLogAttempt_RejectsInvertedScores(t *testing.T) {
	s := tempStore(t)
	a := attempt("metal", "outdoor", true, 82)
	a.HumanScore = f64(95)
	a.AIScore = f64(0.95)

	_, err := s.LogAttempt(context.Background(), a)
	require.ErrorIs(t, err, gate.ErrScoreInconsistency)
	assert.NotErrorIs(t, err, ErrPersistence)

	got, err := s.RecentAttempts(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, got, "rejected attempt must not be written")
}

func TestLogAttempt_RejectsOutOfRangeRealism(t *testing.T) {
	s := tempStore(t)
	_, err := s.LogAttempt(context.Background(), attempt("metal", "outdoor", true, 850))
	assert.ErrorIs(t, err, gate.ErrScoreInconsistency)
}

func TestLogAttempt_PersistenceFailureSurfaced(t *testing.T) {
	s := tempStore(t)
	require.NoError(t, s.Close())

	_, err := s.LogAttempt(context.Background(), attempt("metal", "outdoor", true, 80))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)

	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "log attempt", pe.Op)
}

func TestLogAttempt_Concurrent(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	const workers = 20

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.LogAttempt(ctx, attempt("metal", "outdoor", i%2 == 0, 70))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	cs, err := s.CategoryStats(ctx, "metal")
	require.NoError(t, err)
	assert.Equal(t, workers, cs.Total)
	assert.Equal(t, workers/2, cs.Passed)
}

func TestRecentAttempts_NewestFirst(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	first, err := s.LogAttempt(ctx, attempt("metal", "outdoor", false, 50))
	require.NoError(t, err)
	second, err := s.LogAttempt(ctx, attempt("wood", "indoor", true, 90))
	require.NoError(t, err)

	got, err := s.RecentAttempts(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second, got[0].ID)
	assert.Equal(t, first, got[1].ID)

	got, err = s.RecentAttempts(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
