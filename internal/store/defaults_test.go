package store

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLearnedDefaults_UnseenNeverFabricated(t *testing.T) {
	s := tempStore(t)
	_, ok, err := s.LearnedDefaults(context.Background(), "metal", "outdoor")
	require.NoError(t, err)
	assert.False(t, ok)

	tun, learned, err := s.ResolveDefaults(context.Background(), "metal", "outdoor")
	require.NoError(t, err)
	assert.False(t, learned)
	assert.Equal(t, DefaultSeedTable().Lookup("metal", "outdoor"), tun)
}

func TestSeedDefaults_Idempotent(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	table := DefaultSeedTable()

	n, err := s.SeedDefaults(ctx, table, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "wildcard entries are not seeded")

	n, err = s.SeedDefaults(ctx, table, false)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	rec, ok, err := s.LearnedDefaults(ctx, "metal", "outdoor")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 8.0, rec.GuidanceScale)
	assert.Equal(t, 0, rec.SampleCount)
}

func TestSeedDefaults_ForceKeepsCounters(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	_, err := s.UpdateLearnedDefaultsFromSuccess(ctx, SuccessObservation{Category: "metal", Context: "outdoor", GuidanceScale: 9, Score: 85})
	require.NoError(t, err)
	_, err = s.UpdateLearnedDefaultsFromSuccess(ctx, SuccessObservation{Category: "metal", Context: "outdoor", GuidanceScale: 9, Score: 85})
	require.NoError(t, err)

	table := SeedTable{{Category: "metal", Context: "outdoor", Tunables: Tunables{GuidanceScale: 6, Uniformity: 0.1, ViewMode: "wide", PassThreshold: 70}}}

	n, err := s.SeedDefaults(ctx, table, false)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	rec, _, err := s.LearnedDefaults(ctx, "metal", "outdoor")
	require.NoError(t, err)
	assert.Equal(t, 9.0, rec.GuidanceScale)

	n, err = s.SeedDefaults(ctx, table, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	rec, _, err = s.LearnedDefaults(ctx, "metal", "outdoor")
	require.NoError(t, err)
	assert.Equal(t, 6.0, rec.GuidanceScale)
	assert.Equal(t, "wide", rec.ViewMode)
	assert.Equal(t, 2, rec.SampleCount)
	assert.Equal(t, 2, rec.SuccessCount)
	assert.InDelta(t, 85.0, rec.AvgScore, 1e-9)
}

func TestUpdateLearnedDefaults_FreshKey(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	aging := 0.9

	rec, err := s.UpdateLearnedDefaultsFromSuccess(ctx, SuccessObservation{
		Category: "metal", Context: "outdoor", GuidanceScale: 9.5, Score: 88, AgingWeight: &aging,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.SampleCount)
	assert.Equal(t, 1, rec.SuccessCount)
	assert.Equal(t, 9.5, rec.GuidanceScale)
	assert.Equal(t, 0.9, rec.AgingWeight)
	assert.Equal(t, 88.0, rec.AvgScore)

	fallback := DefaultSeedTable().Lookup("metal", "outdoor")
	assert.Equal(t, fallback.Uniformity, rec.Uniformity)
	assert.Equal(t, fallback.ContaminationWeight, rec.ContaminationWeight)

	stored, ok, err := s.LearnedDefaults(ctx, "metal", "outdoor")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Tunables, stored.Tunables)
	assert.False(t, stored.LastUpdated.IsZero())
}

func TestUpdateLearnedDefaults_EMA(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	obs := SuccessObservation{Category: "metal", Context: "outdoor", GuidanceScale: 10, Score: 80}
	_, err := s.UpdateLearnedDefaultsFromSuccess(ctx, obs)
	require.NoError(t, err)

	obs.GuidanceScale = 6
	obs.Score = 100
	rec, err := s.UpdateLearnedDefaultsFromSuccess(ctx, obs)
	require.NoError(t, err)
	assert.InDelta(t, 10*0.85+6*0.15, rec.GuidanceScale, 1e-9)
	assert.InDelta(t, 80*0.85+100*0.15, rec.AvgScore, 1e-9)
	assert.Equal(t, 2, rec.SampleCount)
}

func TestUpdateLearnedDefaults_BoundedAndConverges(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	_, err := s.UpdateLearnedDefaultsFromSuccess(ctx, SuccessObservation{Category: "wood", Context: "indoor", GuidanceScale: 4, Score: 70})
	require.NoError(t, err)

	prev := 4.0
	const target = 8.0
	samples := 1
	for i := 0; i < 20; i++ {
		rec, err := s.UpdateLearnedDefaultsFromSuccess(ctx, SuccessObservation{Category: "wood", Context: "indoor", GuidanceScale: target, Score: 70})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rec.GuidanceScale, math.Min(prev, target))
		assert.LessOrEqual(t, rec.GuidanceScale, math.Max(prev, target))
		assert.Equal(t, samples+1, rec.SampleCount)
		samples = rec.SampleCount
		prev = rec.GuidanceScale
	}
	// 4 * 0.85^20 from the target
	assert.InDelta(t, target, prev, 0.2)
}

func TestUpdateLearnedDefaults_SeededRowStartsScoreHistory(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	_, err := s.SeedDefaults(ctx, DefaultSeedTable(), false)
	require.NoError(t, err)

	rec, err := s.UpdateLearnedDefaultsFromSuccess(ctx, SuccessObservation{Category: "metal", Context: "outdoor", GuidanceScale: 10, Score: 90})
	require.NoError(t, err)
	assert.InDelta(t, 8.0*0.85+10*0.15, rec.GuidanceScale, 1e-9)
	assert.Equal(t, 90.0, rec.AvgScore)
	assert.Equal(t, 1, rec.SampleCount)
}

func TestSeedTable_Lookup(t *testing.T) {
	table := DefaultSeedTable()
	assert.Equal(t, 8.0, table.Lookup("metal", "outdoor").GuidanceScale)
	assert.Equal(t, 7.0, table.Lookup("wood", "anything").GuidanceScale)
	assert.Equal(t, FallbackTunables, table.Lookup("glass", "outdoor"))
}

func TestLoadSeedTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
defaults:
  - category: ceramic
    context: indoor
    guidance_scale: 6.5
    uniformity: 0.8
    view_mode: closeup
    pass_threshold: 70
    aging_weight: 0.1
    contamination_weight: 0.05
`), 0o644))

	table, err := LoadSeedTable(path)
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, "ceramic", table[0].Category)
	assert.Equal(t, 6.5, table[0].GuidanceScale)
	assert.Equal(t, "closeup", table[0].ViewMode)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
defaults:
  - category: ceramic
    context: indoor
    guidance_scale: 6.5
    uniformity: 3
    view_mode: closeup
`), 0o644))
	_, err = LoadSeedTable(bad)
	assert.Error(t, err)

	_, err = LoadSeedTable(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
