package update

// #region ema
// EMA folds obs into prev: prev*(1-alpha) + obs*alpha.
func EMA(prev, obs, alpha float64) float64 {
	return prev*(1-alpha) + obs*alpha
}

// Observe folds obs into r. The first observation seeds the value directly.
func (r Running) Observe(obs, alpha float64) Running {
	if r.Count == 0 {
		return Running{Value: obs, Count: 1}
	}
	return Running{Value: EMA(r.Value, obs, alpha), Count: r.Count + 1}
}

// #endregion ema

// #region tally
// Record adds one use and its score. Successes only move on a pass.
func (t Tally) Record(passed bool, score float64) Tally {
	t.Uses++
	if passed {
		t.Successes++
	}
	t.ScoreSum += score
	return t
}

// SuccessRate returns successes/uses, or 0 with no uses.
func (t Tally) SuccessRate() float64 {
	if t.Uses == 0 {
		return 0
	}
	return float64(t.Successes) / float64(t.Uses)
}

// AvgScore returns the mean score per use, or 0 with no uses.
func (t Tally) AvgScore() float64 {
	if t.Uses == 0 {
		return 0
	}
	return t.ScoreSum / float64(t.Uses)
}

// #endregion tally
