package engine

import "sort"

// GroupSummary collects the candidates sharing a Group identifier.
// Likelihood is the group's representative value: its top member.
type GroupSummary struct {
	Group      int               `json:"group"`
	Likelihood float64           `json:"likelihood_pct"`
	Members    []ScoredCandidate `json:"members"`
}

// GroupCandidates partitions ranked candidates by group and orders the
// groups by their top member's likelihood. Candidates must already be
// sorted descending, as returned by Score; each group's members keep
// that order, so Members[0] is always the representative.
func GroupCandidates(candidates []ScoredCandidate) []GroupSummary {
	index := make(map[int]int)
	var groups []GroupSummary

	for _, c := range candidates {
		i, ok := index[c.Group]
		if !ok {
			i = len(groups)
			index[c.Group] = i
			groups = append(groups, GroupSummary{Group: c.Group, Likelihood: c.Likelihood})
		}
		groups[i].Members = append(groups[i].Members, c)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Likelihood > groups[j].Likelihood
	})

	return groups
}
