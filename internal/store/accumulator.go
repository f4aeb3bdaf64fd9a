package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/danielpatrickdp/adaptive-eval/internal/update"
)

// #region accumulator
// accumulator is a keyed read-modify-write over one table: load the current
// value, fold an observation into it with a pure merge, write it back. All
// keys passed to apply share one transaction.
type accumulator[K comparable, V any, O any] struct {
	op     string
	load   func(ctx context.Context, tx *sqlx.Tx, key K) (V, bool, error)
	merge  func(key K, prev V, found bool, obs O) V
	upsert func(ctx context.Context, tx *sqlx.Tx, key K, v V, now time.Time) error
}

func (a *accumulator[K, V, O]) apply(ctx context.Context, db *sqlx.DB, keys []K, obs O) ([]V, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, persistErr(a.op, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		prev, found, err := a.load(ctx, tx, k)
		if err != nil {
			return nil, persistErr(a.op, fmt.Errorf("load: %w", err))
		}
		next := a.merge(k, prev, found, obs)
		if err := a.upsert(ctx, tx, k, next, now); err != nil {
			return nil, persistErr(a.op, fmt.Errorf("upsert: %w", err))
		}
		out = append(out, next)
	}
	if err := tx.Commit(); err != nil {
		return nil, persistErr(a.op, fmt.Errorf("commit: %w", err))
	}
	return out, nil
}

// getOptional runs a single-row query; no row is (zero, false, nil).
func getOptional[T any](ctx context.Context, tx *sqlx.Tx, query string, args ...any) (T, bool, error) {
	var v T
	err := tx.GetContext(ctx, &v, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}
// #endregion accumulator

// #region states
// defaultsState is the accumulated value of a learned_defaults row.
type defaultsState struct {
	Tunables
	SampleCount  int     `db:"sample_count"`
	SuccessCount int     `db:"success_count"`
	AvgScore     float64 `db:"avg_score"`
}

// tallyState is the accumulated value of a counter row.
type tallyState struct {
	update.Tally
	Content string
}

type tallyRow struct {
	Uses      int     `db:"uses"`
	Successes int     `db:"successes"`
	ScoreSum  float64 `db:"score_sum"`
	Content   string  `db:"content"`
}

// outcome is a single pass/fail observation with its score.
type outcome struct {
	Passed bool
	Score  float64
}
// #endregion states

// #region defaults-accumulator
func newDefaultsAccumulator(fallback func(category, contextName string) Tunables) *accumulator[DefaultsKey, defaultsState, SuccessObservation] {
	return &accumulator[DefaultsKey, defaultsState, SuccessObservation]{
		op: "update learned defaults",
		load: func(ctx context.Context, tx *sqlx.Tx, k DefaultsKey) (defaultsState, bool, error) {
			return getOptional[defaultsState](ctx, tx, `
				SELECT guidance_scale, uniformity, view_mode, pass_threshold,
				       aging_weight, contamination_weight, sample_count, success_count, avg_score
				FROM learned_defaults WHERE category = ? AND context = ?`, k.Category, k.Context)
		},
		merge: func(k DefaultsKey, prev defaultsState, found bool, obs SuccessObservation) defaultsState {
			return mergeSuccess(fallback(k.Category, k.Context), prev, found, obs)
		},
		upsert: func(ctx context.Context, tx *sqlx.Tx, k DefaultsKey, v defaultsState, now time.Time) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO learned_defaults (
					category, context, guidance_scale, uniformity, view_mode, pass_threshold,
					aging_weight, contamination_weight, sample_count, success_count, avg_score, last_updated
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(category, context) DO UPDATE SET
					guidance_scale = excluded.guidance_scale,
					uniformity = excluded.uniformity,
					view_mode = excluded.view_mode,
					pass_threshold = excluded.pass_threshold,
					aging_weight = excluded.aging_weight,
					contamination_weight = excluded.contamination_weight,
					sample_count = excluded.sample_count,
					success_count = excluded.success_count,
					avg_score = excluded.avg_score,
					last_updated = excluded.last_updated`,
				k.Category, k.Context, v.GuidanceScale, v.Uniformity, v.ViewMode, v.PassThreshold,
				v.AgingWeight, v.ContaminationWeight, v.SampleCount, v.SuccessCount, v.AvgScore,
				now.Format(timeLayout),
			)
			return err
		},
	}
}

// mergeSuccess folds one passing observation into a learned_defaults value.
// An unseen key starts from the observation, with unobserved tunables taken
// from fallback.
func mergeSuccess(fallback Tunables, prev defaultsState, found bool, obs SuccessObservation) defaultsState {
	const alpha = update.DefaultsAlpha
	if !found {
		t := fallback
		t.GuidanceScale = obs.GuidanceScale
		if obs.AgingWeight != nil {
			t.AgingWeight = *obs.AgingWeight
		}
		if obs.ContaminationWeight != nil {
			t.ContaminationWeight = *obs.ContaminationWeight
		}
		return defaultsState{Tunables: t, SampleCount: 1, SuccessCount: 1, AvgScore: obs.Score}
	}

	next := prev
	next.GuidanceScale = update.EMA(prev.GuidanceScale, obs.GuidanceScale, alpha)
	if obs.AgingWeight != nil {
		next.AgingWeight = update.EMA(prev.AgingWeight, *obs.AgingWeight, alpha)
	}
	if obs.ContaminationWeight != nil {
		next.ContaminationWeight = update.EMA(prev.ContaminationWeight, *obs.ContaminationWeight, alpha)
	}
	// A seeded row has no score history yet.
	next.AvgScore = update.Running{Value: prev.AvgScore, Count: prev.SampleCount}.Observe(obs.Score, alpha).Value
	next.SampleCount++
	next.SuccessCount++
	return next
}
// #endregion defaults-accumulator

// #region pattern-accumulator
func newPatternAccumulator() *accumulator[PatternKey, tallyState, outcome] {
	return &accumulator[PatternKey, tallyState, outcome]{
		op: "update pattern effectiveness",
		load: func(ctx context.Context, tx *sqlx.Tx, k PatternKey) (tallyState, bool, error) {
			row, found, err := getOptional[tallyRow](ctx, tx, `
				SELECT total_uses AS uses, success_count AS successes, score_sum, '' AS content
				FROM pattern_effectiveness
				WHERE pattern_id = ? AND category = ? AND context = ?`, k.PatternID, k.Category, k.Context)
			return row.state(), found, err
		},
		merge: func(_ PatternKey, prev tallyState, _ bool, obs outcome) tallyState {
			prev.Tally = prev.Tally.Record(obs.Passed, obs.Score)
			return prev
		},
		upsert: func(ctx context.Context, tx *sqlx.Tx, k PatternKey, v tallyState, now time.Time) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO pattern_effectiveness (
					pattern_id, category, context, total_uses, success_count, score_sum, avg_score, last_updated
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(pattern_id, category, context) DO UPDATE SET
					total_uses = excluded.total_uses,
					success_count = excluded.success_count,
					score_sum = excluded.score_sum,
					avg_score = excluded.avg_score,
					last_updated = excluded.last_updated`,
				k.PatternID, k.Category, k.Context, v.Uses, v.Successes, v.ScoreSum, v.AvgScore(),
				now.Format(timeLayout),
			)
			return err
		},
	}
}
// #endregion pattern-accumulator

// #region template-accumulator
func newTemplateAccumulator() *accumulator[TemplateKey, tallyState, TemplateUsage] {
	return &accumulator[TemplateKey, tallyState, TemplateUsage]{
		op: "record template usage",
		load: func(ctx context.Context, tx *sqlx.Tx, k TemplateKey) (tallyState, bool, error) {
			row, found, err := getOptional[tallyRow](ctx, tx, `
				SELECT usage_count AS uses, success_count AS successes, score_sum, content
				FROM prompt_templates WHERE template_name = ? AND version = ?`, k.Name, k.Version)
			return row.state(), found, err
		},
		merge: func(_ TemplateKey, prev tallyState, _ bool, obs TemplateUsage) tallyState {
			prev.Tally = prev.Tally.Record(obs.Passed, obs.Score)
			if obs.Content != "" {
				prev.Content = obs.Content
			}
			return prev
		},
		upsert: func(ctx context.Context, tx *sqlx.Tx, k TemplateKey, v tallyState, now time.Time) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO prompt_templates (
					template_name, version, content, usage_count, success_count, score_sum, avg_score, last_updated
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(template_name, version) DO UPDATE SET
					content = excluded.content,
					usage_count = excluded.usage_count,
					success_count = excluded.success_count,
					score_sum = excluded.score_sum,
					avg_score = excluded.avg_score,
					last_updated = excluded.last_updated`,
				k.Name, k.Version, v.Content, v.Uses, v.Successes, v.ScoreSum, v.AvgScore(),
				now.Format(timeLayout),
			)
			return err
		},
	}
}

func (r tallyRow) state() tallyState {
	return tallyState{
		Tally:   update.Tally{Uses: r.Uses, Successes: r.Successes, ScoreSum: r.ScoreSum},
		Content: r.Content,
	}
}
// #endregion template-accumulator
