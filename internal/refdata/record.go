package refdata

import (
	"sort"
	"strings"
	"time"
)

// GroupUnassigned is the sentinel group id for records whose Group
// column is empty or not an integer.
const GroupUnassigned = -1

// Record is one reference table row: a parasite species/variant and its
// semicolon-joined categorical profile fields.
type Record struct {
	Parasite string `json:"parasite"`
	Group    int    `json:"group"`
	Subtype  string `json:"subtype"`
	KeyTest  string `json:"key_test"`

	// Fields maps canonical matchable field names to their raw
	// semicolon-joined values. A missing key is an empty token set.
	Fields map[string]string `json:"fields"`
}

// SplitTokens splits a semicolon-joined field value into trimmed,
// lowercased tokens, dropping empties.
func SplitTokens(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		tokens = append(tokens, p)
	}
	return tokens
}

// TokenSet returns the reference token set for a field.
func (r Record) TokenSet(field string) []string {
	return SplitTokens(r.Fields[field])
}

// Has reports whether the field's token set contains the given
// (already lowercased) token.
func (r Record) Has(field, token string) bool {
	for _, t := range r.TokenSet(field) {
		if t == token {
			return true
		}
	}
	return false
}

// Table is one immutable load of the reference data. Readers share a
// *Table snapshot; reloads swap the whole pointer, never mutate.
type Table struct {
	Records     []Record
	Fingerprint string
	Source      string
	LoadedAt    time.Time
}

// Options returns the sorted distinct tokens per matchable field across
// the whole table, preserving the first-seen spelling (trimmed but not
// lowercased) so the presentation layer can show readable labels.
func (t *Table) Options(fields []string) map[string][]string {
	out := make(map[string][]string, len(fields))
	for _, field := range fields {
		seen := make(map[string]bool)
		var values []string
		for _, rec := range t.Records {
			for _, part := range strings.Split(rec.Fields[field], ";") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				key := strings.ToLower(part)
				if seen[key] {
					continue
				}
				seen[key] = true
				values = append(values, part)
			}
		}
		sort.Slice(values, func(i, j int) bool {
			return strings.ToLower(values[i]) < strings.ToLower(values[j])
		})
		out[field] = values
	}
	return out
}
