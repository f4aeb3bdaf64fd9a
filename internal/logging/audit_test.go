package logging

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1) // one :memory: database per connection
	_, err = db.Exec(`CREATE TABLE evaluation_audit (
		attempt_id     TEXT,
		item_name      TEXT NOT NULL,
		component_type TEXT,
		raw_text       TEXT NOT NULL,
		overall_score  REAL,
		passed         INTEGER NOT NULL,
		decision       TEXT NOT NULL,
		reason         TEXT,
		created_at     TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-evaluation-tests
func TestLogEvaluation_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	overall := 8.5
	entry := AuditEntry{
		AttemptID:     "a1",
		ItemName:      "aluminum",
		ComponentType: "caption",
		RawText:       "**Overall Realism (0-10)**: 8.5\n**Pass/Fail**: PASS",
		OverallScore:  &overall,
		Passed:        true,
		Decision:      "accept",
		Reason:        "above threshold",
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogEvaluation(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM evaluation_audit").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var raw, decision string
	var score float64
	var passed bool
	db.QueryRow("SELECT raw_text, decision, overall_score, passed FROM evaluation_audit").Scan(&raw, &decision, &score, &passed)
	if raw != entry.RawText {
		t.Errorf("raw text not preserved: %q", raw)
	}
	if decision != "accept" {
		t.Errorf("expected decision 'accept', got %q", decision)
	}
	if score != 8.5 {
		t.Errorf("expected overall 8.5, got %f", score)
	}
	if !passed {
		t.Error("expected passed")
	}
}

func TestLogEvaluation_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	err := LogEvaluation(db, AuditEntry{ItemName: "steel", RawText: "x", Decision: "reject"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM evaluation_audit").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogEvaluation_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	err := LogEvaluation(db, AuditEntry{ItemName: "steel", RawText: "", Decision: "error"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var attemptID, component, reason sql.NullString
	var overall sql.NullFloat64
	db.QueryRow("SELECT attempt_id, component_type, reason, overall_score FROM evaluation_audit").Scan(
		&attemptID, &component, &reason, &overall,
	)
	if attemptID.Valid {
		t.Error("expected NULL attempt_id for empty string")
	}
	if component.Valid {
		t.Error("expected NULL component_type for empty string")
	}
	if reason.Valid {
		t.Error("expected NULL reason for empty string")
	}
	if overall.Valid {
		t.Error("expected NULL overall_score when unset")
	}
}

func TestLogEvaluation_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	err := LogEvaluation(db, AuditEntry{ItemName: "steel", RawText: "x", Decision: "accept"})
	if err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-evaluation-tests

// #region list-evaluations-tests
func TestListEvaluations_LastNInOrder(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	overall := 6.0
	for i, item := range []string{"steel", "oak", "granite"} {
		entry := AuditEntry{ItemName: item, RawText: "raw " + item, Decision: "reject", CreatedAt: time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC)}
		if i == 2 {
			entry.OverallScore = &overall
			entry.Passed = true
			entry.Decision = "accept"
			entry.AttemptID = "a3"
		}
		if err := LogEvaluation(db, entry); err != nil {
			t.Fatalf("log %s: %v", item, err)
		}
	}

	got, err := ListEvaluations(db, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ItemName != "oak" || got[1].ItemName != "granite" {
		t.Errorf("expected oak then granite, got %s then %s", got[0].ItemName, got[1].ItemName)
	}
	if got[0].OverallScore != nil {
		t.Error("expected nil overall for oak")
	}
	last := got[1]
	if last.OverallScore == nil || *last.OverallScore != 6.0 {
		t.Errorf("expected overall 6.0, got %v", last.OverallScore)
	}
	if !last.Passed || last.Decision != "accept" || last.AttemptID != "a3" {
		t.Errorf("unexpected entry: %+v", last)
	}
	if last.RawText != "raw granite" {
		t.Errorf("raw text not preserved: %q", last.RawText)
	}
	if !last.CreatedAt.Equal(time.Date(2026, 1, 1, 0, 2, 0, 0, time.UTC)) {
		t.Errorf("unexpected created_at %v", last.CreatedAt)
	}
}

// #endregion list-evaluations-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	result := nullIfEmpty("")
	if result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	result := nullIfEmpty("hello")
	if result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests
