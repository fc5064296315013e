package curation

import (
	"sort"

	"gramkeeper/internal/scraper"
)

// Select ranks scored candidates and applies both caps. The sort is
// stable, so candidates with equal scores keep scrape order (profile
// iteration order, then intra-profile order). Both caps are hard limits:
// admitting fewer candidates than either cap is a normal outcome.
func Select(candidates []scraper.Candidate) []scraper.Candidate {
	ranked := make([]scraper.Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	perProfile := make(map[string]int)
	selected := make([]scraper.Candidate, 0, len(ranked))
	for _, c := range ranked {
		if perProfile[c.ProfileHandle] >= PerProfileCap {
			continue
		}
		selected = append(selected, c)
		perProfile[c.ProfileHandle]++
	}

	if len(selected) > GlobalCap {
		selected = selected[:GlobalCap]
	}
	return selected
}
