package replay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/adaptive-eval/internal/eval"
	"github.com/danielpatrickdp/adaptive-eval/internal/logging"
)

// helper: a complete judge response with the given overall score and verdict.
func response(overall, verdict string) string {
	return "**Overall Realism (0-10)**: " + overall + "\n" +
		"**Voice Authenticity (0-10)**: 7\n" +
		"**Reasoning**: fine.\n" +
		"AI Tendencies: none\n" +
		"**Pass/Fail**: " + verdict
}

// 1. Explicit verdicts decide each case.
func TestReplay_Verdicts(t *testing.T) {
	cases := []FixtureCase{
		{CaseID: "c1", ItemName: "steel", Response: response("8", "PASS")},
		{CaseID: "c2", ItemName: "oak", Response: response("5", "FAIL")},
	}
	results := Replay(cases, eval.DefaultParseConfig())

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Action != "accept" {
		t.Errorf("c1: expected accept, got %s", results[0].Action)
	}
	if results[1].Action != "reject" {
		t.Errorf("c2: expected reject, got %s", results[1].Action)
	}
	if results[0].Decision == nil || results[0].Decision.Score != 8 {
		t.Errorf("c1: expected decision with score 8, got %+v", results[0].Decision)
	}
}

// 2. Without a verdict label the threshold decides, so a new threshold can flip cases.
func TestReplay_ThresholdChangeFlipsCase(t *testing.T) {
	cases := []FixtureCase{{CaseID: "c1", Response: "**Overall Realism (0-10)**: 7.5"}}

	cfg := eval.DefaultParseConfig()
	if got := Replay(cases, cfg)[0].Action; got != "accept" {
		t.Errorf("threshold 7: expected accept, got %s", got)
	}
	cfg.PassThreshold = 8
	if got := Replay(cases, cfg)[0].Action; got != "reject" {
		t.Errorf("threshold 8: expected reject, got %s", got)
	}
}

// 3. Out-of-range scores are caught, not decided.
func TestReplay_InconsistentScores(t *testing.T) {
	cases := []FixtureCase{{CaseID: "c1", Response: response("12", "PASS")}}
	r := Replay(cases, eval.DefaultParseConfig())[0]
	if r.Action != "inconsistent" {
		t.Errorf("expected inconsistent, got %s", r.Action)
	}
	if r.Decision != nil {
		t.Error("expected no decision for inconsistent scores")
	}
}

// 4. Missing overall fails safe unless a default is configured.
func TestReplay_MissingOverall(t *testing.T) {
	cases := []FixtureCase{{CaseID: "c1", Response: "**Reasoning**: no scores given"}}
	r := Replay(cases, eval.DefaultParseConfig())[0]
	if r.Action != "reject" {
		t.Errorf("expected reject, got %s", r.Action)
	}

	def := 8.0
	fc := FixtureConfig{MissingOverallDefault: &def}
	r = Replay(cases, fc.ToParseConfig())[0]
	if r.Action != "accept" {
		t.Errorf("expected accept with default overall, got %s", r.Action)
	}
	if !r.Report.Defaulted {
		t.Error("expected report to mark the default")
	}
}

func TestSummarizeAndCompare(t *testing.T) {
	cases := []FixtureCase{
		{CaseID: "c1", Response: response("8", "PASS")},
		{CaseID: "c2", Response: response("5", "FAIL")},
		{CaseID: "c3", Response: response("12", "PASS")},
		{CaseID: "c4", Response: "**Overall Realism (0-10)**: 9"},
	}
	results := Replay(cases, eval.DefaultParseConfig())

	s := Summarize(results)
	if s.TotalCases != 4 || s.Accepts != 2 || s.Rejects != 1 || s.Inconsistent != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
	// none of these responses lists every label
	if s.Incomplete != 4 {
		t.Errorf("expected 4 incomplete responses, got %d", s.Incomplete)
	}

	mismatches := Compare(results, []FixtureExpectedResult{
		{CaseID: "c1", Action: "accept"},
		{CaseID: "c2", Action: "accept"},
		{CaseID: "c3", Action: "accept"},
	})
	if len(mismatches) != 2 {
		t.Fatalf("expected 2 mismatches, got %d: %+v", len(mismatches), mismatches)
	}
	if mismatches[0] != (Mismatch{CaseID: "c2", Expected: "accept", Got: "reject"}) {
		t.Errorf("unexpected mismatch %+v", mismatches[0])
	}
}

func TestFixture_RoundTripFromAudit(t *testing.T) {
	overall := 8.0
	entries := []logging.AuditEntry{
		{AttemptID: "a1", ItemName: "steel", RawText: response("8", "PASS"), OverallScore: &overall, Passed: true, Decision: "accept", CreatedAt: time.Now()},
		{ItemName: "oak", Decision: "error", Reason: "timeout"},
		{ItemName: "oak", RawText: response("5", "FAIL"), Decision: "reject"},
	}
	f := FromAudit("exported", FixtureConfig{PassThreshold: 7}, entries)
	if len(f.Cases) != 2 {
		t.Fatalf("expected judge failures to be skipped, got %d cases", len(f.Cases))
	}
	if f.Cases[1].CaseID != "case-3" {
		t.Errorf("expected generated id case-3, got %s", f.Cases[1].CaseID)
	}

	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := WriteFixture(path, f); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Description != "exported" || len(loaded.ExpectedResults) != 2 {
		t.Errorf("unexpected fixture %+v", loaded)
	}

	results := Replay(loaded.Cases, loaded.Config.ToParseConfig())
	if m := Compare(results, loaded.ExpectedResults); len(m) != 0 {
		t.Errorf("expected exported decisions to replay cleanly, got %+v", m)
	}
}

func TestLoadFixture_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadFixture(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFixture(bad); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
