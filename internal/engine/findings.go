package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UnsetSentinel is the explicit "not provided" marker accepted from
// callers alongside the UI placeholder strings.
const UnsetSentinel = "__unset__"

// Tokens with special meaning in the comparison rules.
const (
	TokenNegative    = "negative"
	TokenVariable    = "variable"
	TokenVectorOther = "other(including unknown)"
)

// Placeholder strings that mean "no selection". The engine folds all of
// them into the single canonical unset representation (an empty token
// list) so the rules never see raw UI values.
var placeholders = map[string]bool{
	"":            true,
	"unknown":     true,
	"choose…":     true,
	"choose...":   true,
	UnsetSentinel: true,
}

// FieldValue is the list of tokens selected for one matchable field.
// It unmarshals from either a JSON array or a bare string, wrapping
// singletons defensively instead of failing.
type FieldValue []string

func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*v = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*v = FieldValue{single}
		return nil
	}

	return fmt.Errorf("field value must be a string or list of strings, got %s", string(data))
}

// FindingsRecord maps matchable field names to the caller's selections.
// Missing fields are treated as unset.
type FindingsRecord map[string]FieldValue

// NewFindings builds a findings record from loosely typed input (e.g. a
// decoded YAML document), wrapping bare values into one-element lists.
func NewFindings(raw map[string]interface{}) (FindingsRecord, error) {
	findings := make(FindingsRecord, len(raw))
	for field, value := range raw {
		switch v := value.(type) {
		case nil:
			findings[field] = nil
		case string:
			findings[field] = FieldValue{v}
		case []string:
			findings[field] = FieldValue(v)
		case []interface{}:
			tokens := make(FieldValue, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("field %q: list entries must be strings, got %T", field, item)
				}
				tokens = append(tokens, s)
			}
			findings[field] = tokens
		default:
			return nil, fmt.Errorf("field %q: unsupported value type %T", field, value)
		}
	}
	return findings, nil
}

// Tokens returns the normalized tokens for a field: trimmed, lowercased,
// with placeholder values removed. An empty result means the field is
// unset and must be skipped by the scorer.
func (f FindingsRecord) Tokens(field string) []string {
	raw, ok := f[field]
	if !ok {
		return nil
	}

	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if placeholders[t] {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// Populated reports how many matchable fields from the rule set carry at
// least one real token.
func (f FindingsRecord) Populated(rules *RuleSet) int {
	count := 0
	for _, rule := range rules.Fields {
		if len(f.Tokens(rule.Field)) > 0 {
			count++
		}
	}
	return count
}
