package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-evaluation
// LogEvaluation writes an audit entry to the evaluation_audit table.
func LogEvaluation(db *sql.DB, entry AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var overall interface{}
	if entry.OverallScore != nil {
		overall = *entry.OverallScore
	}

	_, err := db.Exec(
		`INSERT INTO evaluation_audit (attempt_id, item_name, component_type, raw_text, overall_score, passed, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullIfEmpty(entry.AttemptID),
		entry.ItemName,
		nullIfEmpty(entry.ComponentType),
		entry.RawText,
		overall,
		entry.Passed,
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log evaluation: %w", err)
	}
	return nil
}
// #endregion log-evaluation

// #region list-evaluations
// ListEvaluations returns the last n audit entries in the order they were
// written. Judge failures are included; filter on Decision to skip them.
func ListEvaluations(db *sql.DB, n int) ([]AuditEntry, error) {
	rows, err := db.Query(
		`SELECT attempt_id, item_name, component_type, raw_text, overall_score, passed, decision, reason, created_at FROM (
			SELECT rowid AS seq, * FROM evaluation_audit ORDER BY rowid DESC LIMIT ?
		) sub ORDER BY seq ASC`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e                                AuditEntry
			attemptID, componentType, reason sql.NullString
			overall                          sql.NullFloat64
			createdAt                        string
		)
		if err := rows.Scan(&attemptID, &e.ItemName, &componentType, &e.RawText, &overall, &e.Passed, &e.Decision, &reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		e.AttemptID = attemptID.String
		e.ComponentType = componentType.String
		e.Reason = reason.String
		if overall.Valid {
			v := overall.Float64
			e.OverallScore = &v
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}
	return out, nil
}
// #endregion list-evaluations

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
