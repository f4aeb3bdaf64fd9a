package store

import (
	"context"
	"sort"
	"strings"
)

// #region pattern-effectiveness
// UpdatePatternEffectiveness counts one use of every pattern in patternsUsed.
// Successes only move when passed. Blank and repeated ids are counted once.
func (s *Store) UpdatePatternEffectiveness(ctx context.Context, patternsUsed []string, category, contextName string, passed bool, score float64) error {
	seen := make(map[string]bool, len(patternsUsed))
	keys := make([]PatternKey, 0, len(patternsUsed))
	for _, p := range patternsUsed {
		id := strings.TrimSpace(p)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, PatternKey{PatternID: id, Category: category, Context: contextName})
	}
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.patterns.apply(ctx, s.db, keys, outcome{Passed: passed, Score: score}); err != nil {
		s.logger.Error("pattern effectiveness not updated", "category", category, "context", contextName, "error", err)
		return err
	}
	return nil
}

// PatternRanking returns patterns for a key ordered by success rate, then
// average score. Patterns used fewer than minUses times are left out.
func (s *Store) PatternRanking(ctx context.Context, category, contextName string, minUses int) ([]PatternStats, error) {
	var rows []PatternStats
	err := s.db.SelectContext(ctx, &rows, `
		SELECT pattern_id, category, context, total_uses, success_count, score_sum, avg_score
		FROM pattern_effectiveness
		WHERE category = ? AND context = ? AND total_uses >= ?`, category, contextName, minUses)
	if err != nil {
		return nil, persistErr("pattern ranking", err)
	}
	for i := range rows {
		if rows[i].TotalUses > 0 {
			rows[i].SuccessRate = float64(rows[i].SuccessCount) / float64(rows[i].TotalUses)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SuccessRate != rows[j].SuccessRate {
			return rows[i].SuccessRate > rows[j].SuccessRate
		}
		if rows[i].AvgScore != rows[j].AvgScore {
			return rows[i].AvgScore > rows[j].AvgScore
		}
		return rows[i].PatternID < rows[j].PatternID
	})
	return rows, nil
}
// #endregion pattern-effectiveness

// #region templates
// RecordTemplateUsage counts one use of a prompt template version.
func (s *Store) RecordTemplateUsage(ctx context.Context, u TemplateUsage) error {
	if u.Name == "" {
		return nil
	}
	if u.Version == "" {
		u.Version = "1"
	}
	_, err := s.templates.apply(ctx, s.db, []TemplateKey{{Name: u.Name, Version: u.Version}}, u)
	return err
}

// TemplateStats lists template versions by success rate, then average score.
func (s *Store) TemplateStats(ctx context.Context) ([]TemplateStat, error) {
	var rows []TemplateStat
	err := s.db.SelectContext(ctx, &rows, `
		SELECT template_name, version, usage_count, success_count, avg_score
		FROM prompt_templates`)
	if err != nil {
		return nil, persistErr("template stats", err)
	}
	for i := range rows {
		if rows[i].UsageCount > 0 {
			rows[i].SuccessRate = float64(rows[i].SuccessCount) / float64(rows[i].UsageCount)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SuccessRate != rows[j].SuccessRate {
			return rows[i].SuccessRate > rows[j].SuccessRate
		}
		if rows[i].AvgScore != rows[j].AvgScore {
			return rows[i].AvgScore > rows[j].AvgScore
		}
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].Version < rows[j].Version
	})
	return rows, nil
}
// #endregion templates
