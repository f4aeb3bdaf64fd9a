package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/adaptive-eval/internal/gate"
)

var attemptsLoggedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "adaptive_attempts_logged_total",
	Help: "Generation attempts written to the attempt log",
}, []string{"category", "passed"})

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS generation_attempts (
	id                   TEXT PRIMARY KEY,
	timestamp            TEXT NOT NULL,
	material             TEXT NOT NULL,
	category             TEXT NOT NULL,
	context              TEXT NOT NULL,
	component_type       TEXT NOT NULL DEFAULT '',
	guidance_scale       REAL NOT NULL DEFAULT 0,
	uniformity           REAL NOT NULL DEFAULT 0,
	view_mode            TEXT NOT NULL DEFAULT '',
	aging_weight         REAL NOT NULL DEFAULT 0,
	contamination_weight REAL NOT NULL DEFAULT 0,
	prompt_length        INTEGER NOT NULL DEFAULT 0,
	prompt_truncated     INTEGER NOT NULL DEFAULT 0,
	feedback_applied     INTEGER NOT NULL DEFAULT 0,
	patterns_used        TEXT NOT NULL DEFAULT '[]',
	template_name        TEXT NOT NULL DEFAULT '',
	realism_score        REAL,
	human_score          REAL,
	ai_score             REAL,
	pass_threshold       REAL NOT NULL DEFAULT 0,
	passed               INTEGER NOT NULL,
	issues               TEXT NOT NULL DEFAULT '[]',
	attempt_number       INTEGER NOT NULL DEFAULT 1,
	retry_count          INTEGER NOT NULL DEFAULT 0,
	final_success        INTEGER NOT NULL DEFAULT 0,
	artifact_path        TEXT NOT NULL DEFAULT '',
	artifact_metadata    TEXT NOT NULL DEFAULT '{}',
	notes                TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_attempts_key ON generation_attempts(category, context, passed);
CREATE INDEX IF NOT EXISTS idx_attempts_time ON generation_attempts(timestamp);

CREATE TABLE IF NOT EXISTS learned_defaults (
	category             TEXT NOT NULL,
	context              TEXT NOT NULL,
	guidance_scale       REAL NOT NULL,
	uniformity           REAL NOT NULL,
	view_mode            TEXT NOT NULL,
	pass_threshold       REAL NOT NULL,
	aging_weight         REAL NOT NULL,
	contamination_weight REAL NOT NULL,
	sample_count         INTEGER NOT NULL DEFAULT 0,
	success_count        INTEGER NOT NULL DEFAULT 0,
	avg_score            REAL NOT NULL DEFAULT 0,
	last_updated         TEXT NOT NULL,
	UNIQUE (category, context)
);

CREATE TABLE IF NOT EXISTS pattern_effectiveness (
	pattern_id    TEXT NOT NULL,
	category      TEXT NOT NULL,
	context       TEXT NOT NULL,
	total_uses    INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0,
	score_sum     REAL NOT NULL DEFAULT 0,
	avg_score     REAL NOT NULL DEFAULT 0,
	last_updated  TEXT NOT NULL,
	UNIQUE (pattern_id, category, context)
);

CREATE TABLE IF NOT EXISTS prompt_templates (
	template_name TEXT NOT NULL,
	version       TEXT NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	usage_count   INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0,
	score_sum     REAL NOT NULL DEFAULT 0,
	avg_score     REAL NOT NULL DEFAULT 0,
	last_updated  TEXT NOT NULL,
	UNIQUE (template_name, version)
);

CREATE TABLE IF NOT EXISTS evaluation_audit (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	attempt_id     TEXT,
	item_name      TEXT NOT NULL,
	component_type TEXT,
	raw_text       TEXT NOT NULL,
	overall_score  REAL,
	passed         INTEGER NOT NULL,
	decision       TEXT NOT NULL,
	reason         TEXT,
	created_at     TEXT NOT NULL
);
`
// #endregion schema

// #region store-struct
// Store persists generation attempts and the parameters learned from them.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger

	mu       sync.RWMutex
	fallback SeedTable

	defaults  *accumulator[DefaultsKey, defaultsState, SuccessObservation]
	patterns  *accumulator[PatternKey, tallyState, outcome]
	templates *accumulator[TemplateKey, tallyState, TemplateUsage]
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection: pragmas stick and in-memory databases stay shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger, fallback: DefaultSeedTable()}
	s.defaults = newDefaultsAccumulator(s.Fallback)
	s.patterns = newPatternAccumulator()
	s.templates = newTemplateAccumulator()
	return s, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db.DB
}
// #endregion db-accessor

// #region fallback
// SetFallback replaces the static table used when a key has no learned row.
func (s *Store) SetFallback(table SeedTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = table
}

// Fallback returns the static tunables for a key.
func (s *Store) Fallback(category, contextName string) Tunables {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fallback.Lookup(category, contextName)
}
// #endregion fallback

// #region log-attempt
// LogAttempt appends one attempt and returns its id. Scores are validated
// before anything is written.
func (s *Store) LogAttempt(ctx context.Context, a GenerationAttempt) (string, error) {
	fields := map[string]any{}
	if a.RealismScore != nil {
		fields["realism_score"] = *a.RealismScore
	}
	if a.HumanScore != nil {
		fields[gate.FieldHuman] = *a.HumanScore
	}
	if a.AIScore != nil {
		fields[gate.FieldAI] = *a.AIScore
	}
	if err := gate.ValidateScores("log_attempt", fields); err != nil {
		return "", err
	}

	a.ID = uuid.New().String()
	a.Timestamp = time.Now().UTC()
	row, err := toAttemptRow(a)
	if err != nil {
		return "", persistErr("log attempt", err)
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO generation_attempts (
			id, timestamp, material, category, context, component_type,
			guidance_scale, uniformity, view_mode, aging_weight, contamination_weight,
			prompt_length, prompt_truncated, feedback_applied, patterns_used, template_name,
			realism_score, human_score, ai_score, pass_threshold, passed, issues,
			attempt_number, retry_count, final_success,
			artifact_path, artifact_metadata, notes
		) VALUES (
			:id, :timestamp, :material, :category, :context, :component_type,
			:guidance_scale, :uniformity, :view_mode, :aging_weight, :contamination_weight,
			:prompt_length, :prompt_truncated, :feedback_applied, :patterns_used, :template_name,
			:realism_score, :human_score, :ai_score, :pass_threshold, :passed, :issues,
			:attempt_number, :retry_count, :final_success,
			:artifact_path, :artifact_metadata, :notes
		)`, row)
	if err != nil {
		s.logger.Error("attempt not logged", "material", a.Material, "category", a.Category, "error", err)
		return "", persistErr("log attempt", err)
	}

	attemptsLoggedTotal.WithLabelValues(a.Category, fmt.Sprint(a.Passed)).Inc()
	s.logger.Debug("attempt logged",
		"id", a.ID,
		"material", a.Material,
		"category", a.Category,
		"context", a.Context,
		"passed", a.Passed,
	)
	return a.ID, nil
}
// #endregion log-attempt

// #region recent
// RecentAttempts returns the newest attempts first. An empty category lists
// every category.
func (s *Store) RecentAttempts(ctx context.Context, category string, limit int) ([]GenerationAttempt, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []attemptRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM generation_attempts
		WHERE (? = '' OR category = ?)
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?`, category, category, limit)
	if err != nil {
		return nil, persistErr("recent attempts", err)
	}
	out := make([]GenerationAttempt, 0, len(rows))
	for _, r := range rows {
		a, err := fromAttemptRow(r)
		if err != nil {
			return nil, persistErr("recent attempts", err)
		}
		out = append(out, a)
	}
	return out, nil
}
// #endregion recent

// #region row-mapping
func toAttemptRow(a GenerationAttempt) (attemptRow, error) {
	patterns, err := json.Marshal(nonNil(a.PatternsUsed))
	if err != nil {
		return attemptRow{}, fmt.Errorf("marshal patterns: %w", err)
	}
	issues, err := json.Marshal(nonNil(a.Issues))
	if err != nil {
		return attemptRow{}, fmt.Errorf("marshal issues: %w", err)
	}
	meta := []byte("{}")
	if len(a.ArtifactMetadata) > 0 {
		if meta, err = json.Marshal(a.ArtifactMetadata); err != nil {
			return attemptRow{}, fmt.Errorf("marshal artifact metadata: %w", err)
		}
	}
	return attemptRow{
		ID:                  a.ID,
		Timestamp:           a.Timestamp.Format(timeLayout),
		Material:            a.Material,
		Category:            a.Category,
		Context:             a.Context,
		ComponentType:       a.ComponentType,
		GuidanceScale:       a.GuidanceScale,
		Uniformity:          a.Uniformity,
		ViewMode:            a.ViewMode,
		AgingWeight:         a.AgingWeight,
		ContaminationWeight: a.ContaminationWeight,
		PromptLength:        a.PromptLength,
		PromptTruncated:     a.PromptTruncated,
		FeedbackApplied:     a.FeedbackApplied,
		PatternsUsed:        string(patterns),
		TemplateName:        a.TemplateName,
		RealismScore:        a.RealismScore,
		HumanScore:          a.HumanScore,
		AIScore:             a.AIScore,
		PassThreshold:       a.PassThreshold,
		Passed:              a.Passed,
		Issues:              string(issues),
		AttemptNumber:       a.AttemptNumber,
		RetryCount:          a.RetryCount,
		FinalSuccess:        a.FinalSuccess,
		ArtifactPath:        a.ArtifactPath,
		ArtifactMetadata:    string(meta),
		Notes:               a.Notes,
	}, nil
}

func fromAttemptRow(r attemptRow) (GenerationAttempt, error) {
	ts, err := time.Parse(timeLayout, r.Timestamp)
	if err != nil {
		return GenerationAttempt{}, fmt.Errorf("parse timestamp: %w", err)
	}
	a := GenerationAttempt{
		ID:                  r.ID,
		Timestamp:           ts,
		Material:            r.Material,
		Category:            r.Category,
		Context:             r.Context,
		ComponentType:       r.ComponentType,
		GuidanceScale:       r.GuidanceScale,
		Uniformity:          r.Uniformity,
		ViewMode:            r.ViewMode,
		AgingWeight:         r.AgingWeight,
		ContaminationWeight: r.ContaminationWeight,
		PromptLength:        r.PromptLength,
		PromptTruncated:     r.PromptTruncated,
		FeedbackApplied:     r.FeedbackApplied,
		TemplateName:        r.TemplateName,
		RealismScore:        r.RealismScore,
		HumanScore:          r.HumanScore,
		AIScore:             r.AIScore,
		PassThreshold:       r.PassThreshold,
		Passed:              r.Passed,
		AttemptNumber:       r.AttemptNumber,
		RetryCount:          r.RetryCount,
		FinalSuccess:        r.FinalSuccess,
		ArtifactPath:        r.ArtifactPath,
		Notes:               r.Notes,
	}
	if err := json.Unmarshal([]byte(r.PatternsUsed), &a.PatternsUsed); err != nil {
		return GenerationAttempt{}, fmt.Errorf("unmarshal patterns: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Issues), &a.Issues); err != nil {
		return GenerationAttempt{}, fmt.Errorf("unmarshal issues: %w", err)
	}
	if r.ArtifactMetadata != "" && r.ArtifactMetadata != "{}" {
		if err := json.Unmarshal([]byte(r.ArtifactMetadata), &a.ArtifactMetadata); err != nil {
			return GenerationAttempt{}, fmt.Errorf("unmarshal artifact metadata: %w", err)
		}
	}
	return a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
// #endregion row-mapping
