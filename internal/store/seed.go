package store

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// #region seed-table
// Wildcard matches any category or context in a seed entry.
const Wildcard = "*"

// SeedEntry is one row of the static defaults table.
type SeedEntry struct {
	Category string `yaml:"category" validate:"required"`
	Context  string `yaml:"context" validate:"required"`
	Tunables `yaml:",inline"`
}

// SeedTable is the static defaults used to seed learned_defaults and to fill
// tunables for keys with no learned row.
type SeedTable []SeedEntry

type seedFile struct {
	Defaults SeedTable `yaml:"defaults"`
}

// FallbackTunables apply when no seed entry matches.
var FallbackTunables = Tunables{
	GuidanceScale:       7.5,
	Uniformity:          0.5,
	ViewMode:            "closeup",
	PassThreshold:       75,
	AgingWeight:         0.3,
	ContaminationWeight: 0.2,
}

// DefaultSeedTable returns the built-in table.
func DefaultSeedTable() SeedTable {
	return SeedTable{
		{Category: "metal", Context: "outdoor", Tunables: Tunables{GuidanceScale: 8.0, Uniformity: 0.4, ViewMode: "closeup", PassThreshold: 75, AgingWeight: 0.5, ContaminationWeight: 0.3}},
		{Category: "metal", Context: "indoor", Tunables: Tunables{GuidanceScale: 7.5, Uniformity: 0.6, ViewMode: "closeup", PassThreshold: 75, AgingWeight: 0.2, ContaminationWeight: 0.2}},
		{Category: "wood", Context: Wildcard, Tunables: Tunables{GuidanceScale: 7.0, Uniformity: 0.5, ViewMode: "contextual", PassThreshold: 72, AgingWeight: 0.4, ContaminationWeight: 0.1}},
		{Category: "stone", Context: Wildcard, Tunables: Tunables{GuidanceScale: 7.0, Uniformity: 0.7, ViewMode: "contextual", PassThreshold: 72, AgingWeight: 0.3, ContaminationWeight: 0.2}},
	}
}

// Lookup returns the most specific match: exact key, then category with a
// wildcard context, then FallbackTunables.
func (t SeedTable) Lookup(category, contextName string) Tunables {
	var categoryMatch *Tunables
	for i := range t {
		e := &t[i]
		if e.Category != category {
			continue
		}
		if e.Context == contextName {
			return e.Tunables
		}
		if e.Context == Wildcard && categoryMatch == nil {
			categoryMatch = &e.Tunables
		}
	}
	if categoryMatch != nil {
		return *categoryMatch
	}
	return FallbackTunables
}

// concrete drops wildcard entries; only concrete keys are seeded.
func (t SeedTable) concrete() SeedTable {
	out := make(SeedTable, 0, len(t))
	for _, e := range t {
		if e.Category == Wildcard || e.Context == Wildcard {
			continue
		}
		out = append(out, e)
	}
	return out
}
// #endregion seed-table

// #region load
// LoadSeedTable reads a YAML defaults table:
//
//	defaults:
//	  - category: metal
//	    context: outdoor
//	    guidance_scale: 8.0
//	    ...
func LoadSeedTable(path string) (SeedTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	v := validator.New()
	for i, e := range f.Defaults {
		if err := v.Struct(e); err != nil {
			return nil, fmt.Errorf("seed entry %d (%s/%s): %w", i, e.Category, e.Context, err)
		}
	}
	return f.Defaults, nil
}
// #endregion load
