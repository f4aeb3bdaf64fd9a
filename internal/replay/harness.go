package replay

import (
	"github.com/danielpatrickdp/adaptive-eval/internal/eval"
	"github.com/danielpatrickdp/adaptive-eval/internal/gate"
)

// #region types
// ReplayResult captures the outcome of replaying one judge response through
// parse, validation and decision.
type ReplayResult struct {
	CaseID string
	Action string // "accept" | "reject" | "inconsistent"
	Reason string

	Evaluation eval.EvaluationResult
	Report     eval.ParseReport

	// nil when validation rejected the scores
	Decision *gate.GateDecision
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalCases   int
	Accepts      int
	Rejects      int
	Inconsistent int
	Incomplete   int // responses with missing or unparsed labels
}

// Mismatch is a case whose replayed action differs from the recorded one.
type Mismatch struct {
	CaseID   string
	Expected string
	Got      string
}

// #endregion types

// #region replay
// Replay re-parses recorded judge responses with config and decides each one
// the way the live loop does. Operates entirely in memory.
func Replay(cases []FixtureCase, config eval.ParseConfig) []ReplayResult {
	g := gate.NewGate(gate.GateConfig{PassThreshold: config.PassThreshold})
	results := make([]ReplayResult, 0, len(cases))

	for _, c := range cases {
		res, report := eval.Parse(c.Response, config)
		r := ReplayResult{CaseID: c.CaseID, Evaluation: res, Report: report}

		// 1. Validate
		if err := gate.ValidateScores("replay", res.ScoreFields()); err != nil {
			r.Action = "inconsistent"
			r.Reason = err.Error()
			results = append(results, r)
			continue
		}

		// 2. Decide
		d := eval.Decide(g, res)
		r.Action = d.Action
		r.Reason = d.Reason
		r.Decision = &d
		results = append(results, r)
	}
	return results
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{TotalCases: len(results)}
	for _, r := range results {
		switch r.Action {
		case "accept":
			s.Accepts++
		case "reject":
			s.Rejects++
		case "inconsistent":
			s.Inconsistent++
		}
		if len(r.Report.Missing) > 0 || len(r.Report.Unparsed) > 0 {
			s.Incomplete++
		}
	}
	return s
}

// Compare lists results whose action differs from the expected one. Cases
// without an expectation are skipped.
func Compare(results []ReplayResult, expected []FixtureExpectedResult) []Mismatch {
	want := make(map[string]string, len(expected))
	for _, e := range expected {
		want[e.CaseID] = e.Action
	}
	var out []Mismatch
	for _, r := range results {
		exp, ok := want[r.CaseID]
		if !ok || exp == r.Action {
			continue
		}
		out = append(out, Mismatch{CaseID: r.CaseID, Expected: exp, Got: r.Action})
	}
	return out
}

// #endregion replay
