package logging

import "time"

// #region audit-entry
// AuditEntry is a single row in the evaluation_audit table. RawText keeps the
// judge response exactly as received.
type AuditEntry struct {
	AttemptID     string
	ItemName      string
	ComponentType string
	RawText       string
	OverallScore  *float64
	Passed        bool
	Decision      string // "accept" | "reject" | "error"
	Reason        string
	CreatedAt     time.Time
}
// #endregion audit-entry

// #region logger-config
// Format selects the slog handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)
// #endregion logger-config
