package update

// #region alphas
// Fixed smoothing factors, one per learned series.
const (
	// KnowledgeBaseAlpha smooths the pattern knowledge base success averages.
	KnowledgeBaseAlpha = 0.1
	// DefaultsAlpha smooths learned generation defaults.
	DefaultsAlpha = 0.15
)

// #endregion alphas

// #region running
// Running is a smoothed value with the number of observations folded into it.
type Running struct {
	Value float64
	Count int
}

// #endregion running

// #region tally
// Tally counts uses and successes and keeps a score sum for averaging.
type Tally struct {
	Uses      int
	Successes int
	ScoreSum  float64
}

// #endregion tally
