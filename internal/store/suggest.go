package store

import (
	"context"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// #region constants
const (
	// DefaultSuggestedThreshold is returned until enough passing samples exist.
	DefaultSuggestedThreshold = 75.0
	// ThresholdFloor is the lowest threshold ever suggested.
	ThresholdFloor = 60.0
	// MinThresholdSamples passing attempts are needed before suggesting a threshold.
	MinThresholdSamples = 5
	// MinGuidanceSamples passing attempts are needed before suggesting a guidance scale.
	MinGuidanceSamples = 3
)
// #endregion constants

// #region threshold
// SuggestedThreshold returns the 25th percentile realism score among passing
// attempts for a key, floored at ThresholdFloor.
func (s *Store) SuggestedThreshold(ctx context.Context, category, contextName string) (float64, error) {
	var scores []float64
	err := s.db.SelectContext(ctx, &scores, `
		SELECT realism_score FROM generation_attempts
		WHERE category = ? AND context = ? AND passed = 1 AND realism_score IS NOT NULL`,
		category, contextName)
	if err != nil {
		return 0, persistErr("suggested threshold", err)
	}
	return suggestThreshold(scores), nil
}

func suggestThreshold(scores []float64) float64 {
	if len(scores) < MinThresholdSamples {
		return DefaultSuggestedThreshold
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	return math.Max(sorted[len(sorted)/4], ThresholdFloor)
}
// #endregion threshold

// #region guidance
// OptimalGuidanceScale returns the mean guidance scale of passing attempts in
// a category. It reports false until MinGuidanceSamples exist.
func (s *Store) OptimalGuidanceScale(ctx context.Context, category string) (float64, bool, error) {
	var scales []float64
	err := s.db.SelectContext(ctx, &scales, `
		SELECT guidance_scale FROM generation_attempts
		WHERE category = ? AND passed = 1 AND guidance_scale > 0`, category)
	if err != nil {
		return 0, false, persistErr("optimal guidance scale", err)
	}
	if len(scales) < MinGuidanceSamples {
		return 0, false, nil
	}
	mean, err := stats.Mean(scales)
	if err != nil {
		return 0, false, persistErr("optimal guidance scale", err)
	}
	return mean, true, nil
}
// #endregion guidance
