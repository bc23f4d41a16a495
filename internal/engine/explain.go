package engine

import (
	"fmt"
	"strings"

	"github.com/paraid/paraid/internal/refdata"
)

// reasonFields is the fixed subset of fields worth calling out in the
// textual reasoning shown next to a candidate.
var reasonFields = []string{
	FieldVector,
	FieldAnatomy,
	FieldCountries,
	FieldEosinophil,
	FieldBloodFilm,
	FieldCystImaging,
}

// Reasons explains which notable findings this reference row is
// consistent with. Pure function over one record and the findings; the
// scoring contract does not depend on it.
func Reasons(rec refdata.Record, findings FindingsRecord) []string {
	var reasons []string
	for _, field := range reasonFields {
		tokens := findings.Tokens(field)
		if len(tokens) == 0 {
			continue
		}
		var matched []string
		for _, t := range tokens {
			if rec.Has(field, t) {
				matched = append(matched, t)
			}
		}
		if len(matched) > 0 {
			reasons = append(reasons, fmt.Sprintf("%s consistent with %s", field, strings.Join(matched, ", ")))
		}
	}
	return reasons
}
