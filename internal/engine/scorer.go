package engine

import (
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/paraid/paraid/internal/refdata"
)

// ScoredCandidate is one ranked diagnosis: a reference row with its raw
// score and the two normalized percentages.
type ScoredCandidate struct {
	Parasite string `json:"parasite"`
	Group    int    `json:"group"`
	Subtype  string `json:"subtype,omitempty"`
	KeyTest  string `json:"key_test,omitempty"`

	// Score is the raw weighted sum; penalties can drive it negative.
	Score float64 `json:"score"`
	// Likelihood is Score over the fixed full-profile weight sum, as a
	// percentage. The denominator never shrinks when fields are skipped.
	Likelihood float64 `json:"likelihood_pct"`
	// Confidence is Score over the weights of only the populated
	// fields: how well the entered findings alone fit this row.
	Confidence float64 `json:"confidence_pct"`

	Rank int `json:"rank"`
	// Row indexes the scored snapshot's record for reasoning lookups.
	Row int `json:"-"`
}

// Scorer ranks reference records against a findings record. It is a
// pure function of its inputs: no state beyond the rule table, safe for
// concurrent use.
type Scorer struct {
	rules *RuleSet
}

// NewScorer creates a scorer over the given rule table, falling back to
// the default table when nil.
func NewScorer(rules *RuleSet) *Scorer {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	return &Scorer{rules: rules}
}

// Rules returns the scorer's rule table.
func (s *Scorer) Rules() *RuleSet {
	return s.rules
}

// Score evaluates every reference record against the findings and
// returns candidates sorted descending by likelihood. Ties keep their
// reference-table order. An empty table yields an empty result.
func (s *Scorer) Score(records []refdata.Record, findings FindingsRecord) []ScoredCandidate {
	total := s.rules.TotalWeight()

	candidates := make([]ScoredCandidate, 0, len(records))
	for i, rec := range records {
		if rec.Parasite == "" {
			log.Warn().Int("row", i).Msg("Skipping reference record without identity")
			continue
		}

		score, entered := s.scoreRecord(rec, findings)

		confidence := 0.0
		if entered > 0 {
			confidence = round2(score / entered * 100)
		}

		candidates = append(candidates, ScoredCandidate{
			Parasite:   rec.Parasite,
			Group:      rec.Group,
			Subtype:    rec.Subtype,
			KeyTest:    rec.KeyTest,
			Score:      score,
			Likelihood: round2(score / total * 100),
			Confidence: confidence,
			Row:        i,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Likelihood > candidates[j].Likelihood
	})
	for i := range candidates {
		candidates[i].Rank = i + 1
	}

	return candidates
}

// scoreRecord accumulates the weighted credit for one record and the
// adaptive denominator (summed weights of populated fields).
func (s *Scorer) scoreRecord(rec refdata.Record, findings FindingsRecord) (score, entered float64) {
	for _, rule := range s.rules.Fields {
		tokens := findings.Tokens(rule.Field)
		if len(tokens) == 0 {
			// Unset: no credit, no penalty, no denominator weight.
			continue
		}
		entered += rule.Weight
		score += fieldCredit(rule, tokens, rec)
	}
	return score, entered
}

// fieldCredit applies one field rule. tokens is non-empty and already
// normalized.
func fieldCredit(rule FieldRule, tokens []string, rec refdata.Record) float64 {
	switch rule.Kind {
	case RuleMatchAny:
		if matchAny(tokens, rec, rule.Field) {
			return rule.Weight
		}
		return 0

	case RuleVector:
		// A lone "other" is uninformative but consistent with any row.
		if len(tokens) == 1 && tokens[0] == TokenVectorOther {
			return rule.Weight
		}
		if matchAny(tokens, rec, rule.Field) {
			return rule.Weight
		}
		return 0

	case RuleProportional:
		matches := 0
		for _, t := range tokens {
			if rec.Has(rule.Field, t) {
				matches++
			}
		}
		return rule.Weight / float64(len(tokens)) * float64(matches)

	case RulePresence:
		// Single-select: only the first token counts.
		if tokens[0] == TokenNegative {
			if !rec.Has(rule.Field, TokenNegative) {
				// Reference implies a positive result the caller did
				// not observe.
				return -rule.Penalty
			}
			return 0
		}
		for _, t := range rec.TokenSet(rule.Field) {
			if t != TokenNegative {
				return rule.Weight
			}
		}
		return 0

	case RuleVariableOrMatch:
		if rec.Has(rule.Field, TokenVariable) || rec.Has(rule.Field, tokens[0]) {
			return rule.Weight
		}
		return 0
	}

	return 0
}

func matchAny(tokens []string, rec refdata.Record, field string) bool {
	for _, t := range tokens {
		if rec.Has(field, t) {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
