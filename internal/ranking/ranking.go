// Package ranking orders scored candidates and splits them into the final
// shortlist.
package ranking

import (
	"sort"

	"github.com/recruitai/screening-agent/internal/models"
)

// Rank sorts candidates and partitions them into selected and not-selected
// groups. Reviewed candidates outrank unreviewed ones regardless of score;
// within each group higher total wins, with semantic similarity as the tie
// breaker. Rejected candidates must be filtered out before calling Rank.
func Rank(candidates []models.Candidate, topN int) (selected, notSelected []models.Candidate) {
	ranked := make([]models.Candidate, len(candidates))
	for i, c := range candidates {
		ranked[i] = c.Clone()
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Reviewed != b.Reviewed {
			return a.Reviewed
		}
		if a.Breakdown.Total != b.Breakdown.Total {
			return a.Breakdown.Total > b.Breakdown.Total
		}
		return a.Similarity > b.Similarity
	})

	if topN < 0 {
		topN = 0
	}
	cut := topN
	if cut > len(ranked) {
		cut = len(ranked)
	}

	selected = ranked[:cut]
	notSelected = ranked[cut:]
	for i := range selected {
		selected[i].Status = models.CandidateSelected
	}
	for i := range notSelected {
		notSelected[i].Status = models.CandidateNotSelected
	}
	return selected, notSelected
}
