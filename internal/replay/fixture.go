package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-eval/internal/eval"
	"github.com/danielpatrickdp/adaptive-eval/internal/logging"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: recorded
// judge responses and the decisions they produced at the time.
type Fixture struct {
	Description     string                  `json:"description"`
	Config          FixtureConfig           `json:"config"`
	Cases           []FixtureCase           `json:"cases"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureConfig mirrors eval.ParseConfig with JSON tags.
type FixtureConfig struct {
	PassThreshold         float64  `json:"pass_threshold"`
	MissingOverallDefault *float64 `json:"missing_overall_default,omitempty"`
}

// FixtureCase is one recorded judge response.
type FixtureCase struct {
	CaseID        string `json:"case_id"`
	ItemName      string `json:"item_name"`
	ComponentType string `json:"component_type,omitempty"`
	Response      string `json:"response"`
}

// FixtureExpectedResult captures the expected action per case.
type FixtureExpectedResult struct {
	CaseID string `json:"case_id"`
	Action string `json:"action"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// FromAudit builds a fixture from audit log entries. Judge failures carry no
// response to replay and are skipped.
func FromAudit(description string, config FixtureConfig, entries []logging.AuditEntry) *Fixture {
	f := &Fixture{Description: description, Config: config}
	for i, e := range entries {
		if e.Decision == "error" || e.RawText == "" {
			continue
		}
		id := e.AttemptID
		if id == "" {
			id = fmt.Sprintf("case-%d", i+1)
		}
		f.Cases = append(f.Cases, FixtureCase{
			CaseID:        id,
			ItemName:      e.ItemName,
			ComponentType: e.ComponentType,
			Response:      e.RawText,
		})
		f.ExpectedResults = append(f.ExpectedResults, FixtureExpectedResult{CaseID: id, Action: e.Decision})
	}
	return f
}

// ToParseConfig converts a FixtureConfig to a parser config. A zero threshold
// keeps the default.
func (fc *FixtureConfig) ToParseConfig() eval.ParseConfig {
	cfg := eval.DefaultParseConfig()
	if fc.PassThreshold > 0 {
		cfg.PassThreshold = fc.PassThreshold
	}
	cfg.MissingOverallDefault = fc.MissingOverallDefault
	return cfg
}

// #endregion fixture-loader
