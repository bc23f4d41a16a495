package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindingsRecord_TokensNormalization(t *testing.T) {
	findings := FindingsRecord{
		FieldSymptoms:  {"  Fever ", "UNKNOWN", "", "Rash"},
		FieldCountries: {UnsetSentinel},
		FieldFever:     {"Choose..."},
	}

	assert.Equal(t, []string{"fever", "rash"}, findings.Tokens(FieldSymptoms))
	assert.Empty(t, findings.Tokens(FieldCountries))
	assert.Empty(t, findings.Tokens(FieldFever))
	assert.Empty(t, findings.Tokens(FieldAnemia)) // missing key entirely
}

func TestFieldValue_UnmarshalWrapsSingletons(t *testing.T) {
	var findings FindingsRecord
	payload := `{
		"Symptoms": ["Fever", "Rash"],
		"Blood Film Result": "Negative"
	}`
	require.NoError(t, json.Unmarshal([]byte(payload), &findings))

	assert.Equal(t, FieldValue{"Fever", "Rash"}, findings[FieldSymptoms])
	assert.Equal(t, FieldValue{"Negative"}, findings[FieldBloodFilm])

	var bad FindingsRecord
	err := json.Unmarshal([]byte(`{"Symptoms": 42}`), &bad)
	assert.Error(t, err)
}

func TestNewFindings_FromLooseYAMLValues(t *testing.T) {
	findings, err := NewFindings(map[string]interface{}{
		"Symptoms":          []interface{}{"Fever", "Rash"},
		"Blood Film Result": "Negative",
		"Anemia":            nil,
	})
	require.NoError(t, err)

	assert.Equal(t, FieldValue{"Fever", "Rash"}, findings[FieldSymptoms])
	assert.Equal(t, FieldValue{"Negative"}, findings[FieldBloodFilm])
	assert.Empty(t, findings.Tokens(FieldAnemia))

	_, err = NewFindings(map[string]interface{}{"Symptoms": []interface{}{1, 2}})
	assert.Error(t, err)

	_, err = NewFindings(map[string]interface{}{"Symptoms": 3.14})
	assert.Error(t, err)
}

func TestFindingsRecord_Populated(t *testing.T) {
	rules := DefaultRuleSet()

	findings := FindingsRecord{
		FieldSymptoms:  {"Fever"},
		FieldCountries: {"Unknown"},
		"Not A Field":  {"x"},
	}
	assert.Equal(t, 1, findings.Populated(rules))
	assert.Equal(t, 0, FindingsRecord{}.Populated(rules))
}
