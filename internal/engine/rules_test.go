package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRuleSet_Valid(t *testing.T) {
	rs := DefaultRuleSet()
	require.NoError(t, rs.Validate())

	// The fixed likelihood denominator.
	assert.Equal(t, 113.0, rs.TotalWeight())
	assert.Len(t, rs.Fields, 18)
}

func TestRuleSet_ValidateRejectsBadTables(t *testing.T) {
	cases := []struct {
		name string
		rs   RuleSet
	}{
		{"no version", RuleSet{Fields: []FieldRule{{Field: "X", Weight: 1, Kind: RuleMatchAny}}}},
		{"no fields", RuleSet{Version: "v1"}},
		{"duplicate field", RuleSet{Version: "v1", Fields: []FieldRule{
			{Field: "X", Weight: 1, Kind: RuleMatchAny},
			{Field: "X", Weight: 2, Kind: RuleMatchAny},
		}}},
		{"zero weight", RuleSet{Version: "v1", Fields: []FieldRule{
			{Field: "X", Weight: 0, Kind: RuleMatchAny},
		}}},
		{"unknown kind", RuleSet{Version: "v1", Fields: []FieldRule{
			{Field: "X", Weight: 1, Kind: "fuzzy"},
		}}},
		{"presence without penalty", RuleSet{Version: "v1", Fields: []FieldRule{
			{Field: "X", Weight: 1, Kind: RulePresence},
		}}},
		{"penalty on match rule", RuleSet{Version: "v1", Fields: []FieldRule{
			{Field: "X", Weight: 1, Kind: RuleMatchAny, Penalty: 2},
		}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.rs.Validate())
		})
	}
}

func TestLoadRuleSet_FromYAML(t *testing.T) {
	content := `version: v3-test
fields:
  - field: Countries Visited
    weight: 5
    kind: match_any
  - field: Blood Film Result
    weight: 15
    kind: presence
    penalty: 10
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rs, err := LoadRuleSet(path)
	require.NoError(t, err)
	assert.Equal(t, "v3-test", rs.Version)
	assert.Equal(t, 20.0, rs.TotalWeight())
	assert.Equal(t, RulePresence, rs.Fields[1].Kind)
	assert.Equal(t, 10.0, rs.Fields[1].Penalty)
}

func TestLoadRuleSet_MissingFile(t *testing.T) {
	_, err := LoadRuleSet(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
