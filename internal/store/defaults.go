package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// #region get-defaults
// LearnedDefaults returns the learned row for a key. An unseen key returns
// false; callers use Fallback instead.
func (s *Store) LearnedDefaults(ctx context.Context, category, contextName string) (LearnedDefaults, bool, error) {
	var row defaultsRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM learned_defaults WHERE category = ? AND context = ?`, category, contextName)
	if errors.Is(err, sql.ErrNoRows) {
		return LearnedDefaults{}, false, nil
	}
	if err != nil {
		return LearnedDefaults{}, false, persistErr("get learned defaults", err)
	}
	rec, err := row.record()
	if err != nil {
		return LearnedDefaults{}, false, persistErr("get learned defaults", err)
	}
	return rec, true, nil
}

// AllLearnedDefaults lists every learned row ordered by key.
func (s *Store) AllLearnedDefaults(ctx context.Context) ([]LearnedDefaults, error) {
	var rows []defaultsRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM learned_defaults ORDER BY category, context`); err != nil {
		return nil, persistErr("list learned defaults", err)
	}
	out := make([]LearnedDefaults, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, persistErr("list learned defaults", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ResolveDefaults returns the learned tunables for a key, or the fallback
// table's when the key is unseen.
func (s *Store) ResolveDefaults(ctx context.Context, category, contextName string) (Tunables, bool, error) {
	rec, ok, err := s.LearnedDefaults(ctx, category, contextName)
	if err != nil {
		return Tunables{}, false, err
	}
	if !ok {
		return s.Fallback(category, contextName), false, nil
	}
	return rec.Tunables, true, nil
}

func (r defaultsRow) record() (LearnedDefaults, error) {
	ts, err := time.Parse(timeLayout, r.LastUpdated)
	if err != nil {
		return LearnedDefaults{}, fmt.Errorf("parse last_updated: %w", err)
	}
	return LearnedDefaults{
		Category:     r.Category,
		Context:      r.Context,
		Tunables:     r.Tunables,
		SampleCount:  r.SampleCount,
		SuccessCount: r.SuccessCount,
		AvgScore:     r.AvgScore,
		LastUpdated:  ts,
	}, nil
}
// #endregion get-defaults

// #region seed
// SeedDefaults inserts the concrete entries of table and returns the number
// of rows modified. Without force an existing row is never touched. With
// force the tunables are overwritten and the counters kept.
func (s *Store) SeedDefaults(ctx context.Context, table SeedTable, force bool) (int, error) {
	query := `
		INSERT INTO learned_defaults (
			category, context, guidance_scale, uniformity, view_mode, pass_threshold,
			aging_weight, contamination_weight, sample_count, success_count, avg_score, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, ?)
		ON CONFLICT(category, context) DO NOTHING`
	if force {
		query = `
		INSERT INTO learned_defaults (
			category, context, guidance_scale, uniformity, view_mode, pass_threshold,
			aging_weight, contamination_weight, sample_count, success_count, avg_score, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, ?)
		ON CONFLICT(category, context) DO UPDATE SET
			guidance_scale = excluded.guidance_scale,
			uniformity = excluded.uniformity,
			view_mode = excluded.view_mode,
			pass_threshold = excluded.pass_threshold,
			aging_weight = excluded.aging_weight,
			contamination_weight = excluded.contamination_weight,
			last_updated = excluded.last_updated`
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, persistErr("seed defaults", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(timeLayout)
	modified := 0
	for _, e := range table.concrete() {
		res, err := tx.ExecContext(ctx, query,
			e.Category, e.Context, e.GuidanceScale, e.Uniformity, e.ViewMode, e.PassThreshold,
			e.AgingWeight, e.ContaminationWeight, now,
		)
		if err != nil {
			return 0, persistErr("seed defaults", fmt.Errorf("%s/%s: %w", e.Category, e.Context, err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, persistErr("seed defaults", err)
		}
		modified += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, persistErr("seed defaults", fmt.Errorf("commit: %w", err))
	}

	s.logger.Info("learned defaults seeded", "entries", len(table), "modified", modified, "force", force)
	return modified, nil
}
// #endregion seed

// #region update-defaults
// UpdateLearnedDefaultsFromSuccess folds a passing attempt's parameters into
// the learned row for its key. Failed attempts must not be passed here.
func (s *Store) UpdateLearnedDefaultsFromSuccess(ctx context.Context, obs SuccessObservation) (LearnedDefaults, error) {
	key := DefaultsKey{Category: obs.Category, Context: obs.Context}
	out, err := s.defaults.apply(ctx, s.db, []DefaultsKey{key}, obs)
	if err != nil {
		s.logger.Error("learned defaults not updated", "category", obs.Category, "context", obs.Context, "error", err)
		return LearnedDefaults{}, err
	}
	v := out[0]
	s.logger.Debug("learned defaults updated",
		"category", obs.Category,
		"context", obs.Context,
		"guidance_scale", v.GuidanceScale,
		"sample_count", v.SampleCount,
	)
	return LearnedDefaults{
		Category:     obs.Category,
		Context:      obs.Context,
		Tunables:     v.Tunables,
		SampleCount:  v.SampleCount,
		SuccessCount: v.SuccessCount,
		AvgScore:     v.AvgScore,
	}, nil
}
// #endregion update-defaults
