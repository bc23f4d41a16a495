package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Canonical matchable field names, exactly as they appear in the
// reference table headers.
const (
	FieldCountries   = "Countries Visited"
	FieldAnatomy     = "Anatomy Involvement"
	FieldVector      = "Vector Exposure"
	FieldSymptoms    = "Symptoms"
	FieldDuration    = "Duration of Illness"
	FieldAnimal      = "Animal Contact Type"
	FieldBloodFilm   = "Blood Film Result"
	FieldImmune      = "Immune Status"
	FieldLFT         = "Liver Function Tests"
	FieldNeuro       = "Neurological Involvement"
	FieldEosinophil  = "Eosinophilia"
	FieldFever       = "Fever"
	FieldDiarrhea    = "Diarrhea"
	FieldBloody      = "Bloody Diarrhea"
	FieldStool       = "Stool Cysts or Ova"
	FieldAnemia      = "Anemia"
	FieldIgE         = "High IgE Level"
	FieldCystImaging = "Cysts on Imaging"
)

// RuleKind selects the comparison rule applied to a matchable field.
type RuleKind string

const (
	// RuleMatchAny awards full credit iff any finding token appears in
	// the reference token set.
	RuleMatchAny RuleKind = "match_any"
	// RuleVector is match_any plus unconditional credit when the finding
	// is exactly the single "other(including unknown)" token.
	RuleVector RuleKind = "vector"
	// RuleProportional splits the weight evenly across the finding
	// tokens and credits each one present in the reference set.
	RuleProportional RuleKind = "proportional"
	// RulePresence is the asymmetric negative/positive rule: a negative
	// finding against an all-positive reference row costs the penalty, a
	// positive finding against a row with any non-negative entry earns
	// the full weight.
	RulePresence RuleKind = "presence"
	// RuleVariableOrMatch awards full credit when the reference set
	// contains "variable" or the finding token itself.
	RuleVariableOrMatch RuleKind = "variable_or_match"
)

// FieldRule binds one matchable field to its weight and comparison rule.
type FieldRule struct {
	Field   string   `yaml:"field"`
	Weight  float64  `yaml:"weight"`
	Kind    RuleKind `yaml:"kind"`
	Penalty float64  `yaml:"penalty,omitempty"`
}

// RuleSet is the versioned scoring rule table. Rule revisions are data
// changes: edit the YAML, bump the version.
type RuleSet struct {
	Version string      `yaml:"version"`
	Fields  []FieldRule `yaml:"fields"`
}

// DefaultRuleSet returns the current production rule table. The weights
// sum to 113, the fixed likelihood denominator.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		Version: "v3",
		Fields: []FieldRule{
			{Field: FieldCountries, Weight: 5, Kind: RuleMatchAny},
			{Field: FieldAnatomy, Weight: 5, Kind: RuleMatchAny},
			{Field: FieldVector, Weight: 8, Kind: RuleVector},
			{Field: FieldSymptoms, Weight: 10, Kind: RuleProportional},
			{Field: FieldDuration, Weight: 5, Kind: RuleMatchAny},
			{Field: FieldAnimal, Weight: 8, Kind: RuleMatchAny},
			{Field: FieldBloodFilm, Weight: 15, Kind: RulePresence, Penalty: 10},
			{Field: FieldImmune, Weight: 2, Kind: RuleMatchAny},
			{Field: FieldLFT, Weight: 5, Kind: RuleVariableOrMatch},
			{Field: FieldNeuro, Weight: 5, Kind: RuleVariableOrMatch},
			{Field: FieldEosinophil, Weight: 5, Kind: RuleVariableOrMatch},
			{Field: FieldFever, Weight: 5, Kind: RuleVariableOrMatch},
			{Field: FieldDiarrhea, Weight: 5, Kind: RuleVariableOrMatch},
			{Field: FieldBloody, Weight: 5, Kind: RuleVariableOrMatch},
			{Field: FieldStool, Weight: 5, Kind: RuleVariableOrMatch},
			{Field: FieldAnemia, Weight: 5, Kind: RuleVariableOrMatch},
			{Field: FieldIgE, Weight: 5, Kind: RuleVariableOrMatch},
			{Field: FieldCystImaging, Weight: 10, Kind: RulePresence, Penalty: 5},
		},
	}
}

// TotalWeight returns the fixed likelihood denominator: the sum of every
// field weight, regardless of which fields the caller populated.
func (rs *RuleSet) TotalWeight() float64 {
	var sum float64
	for _, f := range rs.Fields {
		sum += f.Weight
	}
	return sum
}

// MatchableFields returns the field names in table order.
func (rs *RuleSet) MatchableFields() []string {
	fields := make([]string, 0, len(rs.Fields))
	for _, f := range rs.Fields {
		fields = append(fields, f.Field)
	}
	return fields
}

// Validate checks the rule table for structural problems.
func (rs *RuleSet) Validate() error {
	if rs.Version == "" {
		return fmt.Errorf("rule set has no version")
	}
	if len(rs.Fields) == 0 {
		return fmt.Errorf("rule set %s has no fields", rs.Version)
	}

	seen := make(map[string]bool, len(rs.Fields))
	for _, f := range rs.Fields {
		if f.Field == "" {
			return fmt.Errorf("rule set %s has a rule with an empty field name", rs.Version)
		}
		if seen[f.Field] {
			return fmt.Errorf("rule set %s lists field %q twice", rs.Version, f.Field)
		}
		seen[f.Field] = true

		if f.Weight <= 0 {
			return fmt.Errorf("field %q has non-positive weight %.2f", f.Field, f.Weight)
		}

		switch f.Kind {
		case RuleMatchAny, RuleVector, RuleProportional, RuleVariableOrMatch:
			if f.Penalty != 0 {
				return fmt.Errorf("field %q: penalty is only valid for %s rules", f.Field, RulePresence)
			}
		case RulePresence:
			if f.Penalty <= 0 {
				return fmt.Errorf("field %q: %s rule requires a positive penalty", f.Field, RulePresence)
			}
		default:
			return fmt.Errorf("field %q has unknown rule kind %q", f.Field, f.Kind)
		}
	}

	if rs.TotalWeight() <= 0 {
		return fmt.Errorf("rule set %s has zero total weight", rs.Version)
	}

	return nil
}

// LoadRuleSet loads and validates a rule table from a YAML file.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("rules validation failed: %w", err)
	}

	return &rs, nil
}

// DefaultRulesPath returns the default rule table location.
func DefaultRulesPath() string {
	return filepath.Join("config", "rules.yaml")
}
