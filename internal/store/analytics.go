package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
)

// topIssues is how many issues CategoryStats reports.
const topIssues = 5

// #region projection
// outcomeRow is the slice of an attempt the aggregations read.
type outcomeRow struct {
	Passed          bool     `db:"passed"`
	RealismScore    *float64 `db:"realism_score"`
	GuidanceScale   float64  `db:"guidance_scale"`
	RetryCount      int      `db:"retry_count"`
	FeedbackApplied bool     `db:"feedback_applied"`
	PromptTruncated bool     `db:"prompt_truncated"`
	Issues          string   `db:"issues"`
}

// outcomes loads the aggregation projection. An empty category reads every
// category.
func (s *Store) outcomes(ctx context.Context, op, category string) ([]outcomeRow, error) {
	var rows []outcomeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT passed, realism_score, guidance_scale, retry_count,
		       feedback_applied, prompt_truncated, issues
		FROM generation_attempts
		WHERE (? = '' OR category = ?)`, category, category)
	if err != nil {
		return nil, persistErr(op, err)
	}
	return rows, nil
}

// Categories lists every category with at least one attempt.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	var out []string
	if err := s.db.SelectContext(ctx, &out, `
		SELECT DISTINCT category FROM generation_attempts ORDER BY category`); err != nil {
		return nil, persistErr("categories", err)
	}
	return out, nil
}
// #endregion projection

// #region category-stats
// CategoryStats summarizes every attempt logged for a category.
func (s *Store) CategoryStats(ctx context.Context, category string) (CategoryStats, error) {
	rows, err := s.outcomes(ctx, "category stats", category)
	if err != nil {
		return CategoryStats{}, err
	}
	cs := CategoryStats{Category: category, Total: len(rows)}
	var realism, guidance, retries []float64
	for _, r := range rows {
		if r.Passed {
			cs.Passed++
		}
		if r.RealismScore != nil {
			realism = append(realism, *r.RealismScore)
		}
		if r.GuidanceScale > 0 {
			guidance = append(guidance, r.GuidanceScale)
		}
		retries = append(retries, float64(r.RetryCount))
	}
	cs.SuccessRate = percent(cs.Passed, cs.Total)
	cs.AvgRealism = mean(realism)
	cs.AvgGuidance = mean(guidance)
	cs.AvgRetries = mean(retries)

	issues, err := countIssues(rows)
	if err != nil {
		return CategoryStats{}, persistErr("category stats", err)
	}
	if len(issues) > topIssues {
		issues = issues[:topIssues]
	}
	cs.CommonIssues = issues
	return cs, nil
}
// #endregion category-stats

// #region violations
// ViolationFrequency ranks reported issues by how many attempts raised them.
// A limit of zero or less returns every issue.
func (s *Store) ViolationFrequency(ctx context.Context, category string, limit int) ([]IssueCount, error) {
	rows, err := s.outcomes(ctx, "violation frequency", category)
	if err != nil {
		return nil, err
	}
	issues, err := countIssues(rows)
	if err != nil {
		return nil, persistErr("violation frequency", err)
	}
	if limit > 0 && len(issues) > limit {
		issues = issues[:limit]
	}
	return issues, nil
}

// countIssues groups issues case-insensitively and keeps the first spelling.
func countIssues(rows []outcomeRow) ([]IssueCount, error) {
	counts := make(map[string]*IssueCount)
	for _, r := range rows {
		var issues []string
		if err := json.Unmarshal([]byte(r.Issues), &issues); err != nil {
			return nil, fmt.Errorf("unmarshal issues: %w", err)
		}
		for _, issue := range issues {
			text := strings.TrimSpace(issue)
			if text == "" {
				continue
			}
			key := strings.ToLower(text)
			if c, ok := counts[key]; ok {
				c.Count++
				continue
			}
			counts[key] = &IssueCount{Issue: text, Count: 1}
		}
	}
	out := make([]IssueCount, 0, len(counts))
	for _, c := range counts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Issue < out[j].Issue
	})
	return out, nil
}
// #endregion violations

// #region comparisons
// FeedbackComparison splits attempts on whether learned feedback was applied
// to the prompt.
func (s *Store) FeedbackComparison(ctx context.Context, category string) (Comparison, error) {
	rows, err := s.outcomes(ctx, "feedback comparison", category)
	if err != nil {
		return Comparison{}, err
	}
	return compare(rows, func(r outcomeRow) bool { return r.FeedbackApplied }), nil
}

// TruncationImpact splits attempts on whether the prompt was truncated.
func (s *Store) TruncationImpact(ctx context.Context, category string) (Comparison, error) {
	rows, err := s.outcomes(ctx, "truncation impact", category)
	if err != nil {
		return Comparison{}, err
	}
	return compare(rows, func(r outcomeRow) bool { return r.PromptTruncated }), nil
}

func compare(rows []outcomeRow, with func(outcomeRow) bool) Comparison {
	var withRows, withoutRows []outcomeRow
	for _, r := range rows {
		if with(r) {
			withRows = append(withRows, r)
		} else {
			withoutRows = append(withoutRows, r)
		}
	}
	return Comparison{Without: group(withoutRows), With: group(withRows)}
}

func group(rows []outcomeRow) GroupStats {
	g := GroupStats{Attempts: len(rows)}
	var realism []float64
	for _, r := range rows {
		if r.Passed {
			g.Passed++
		}
		if r.RealismScore != nil {
			realism = append(realism, *r.RealismScore)
		}
	}
	g.SuccessRate = percent(g.Passed, g.Attempts)
	g.AvgRealism = mean(realism)
	return g
}
// #endregion comparisons

// #region helpers
func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// mean is 0 for no data.
func mean(xs []float64) float64 {
	m, err := stats.Mean(xs)
	if err != nil {
		return 0
	}
	return m
}
// #endregion helpers
