// Package curation implements the scoring, selection, and orchestration
// of curation runs: scraping every enabled profile, scoring candidates,
// enriching eligible ones with AI comment suggestions in the background,
// and persisting the selected set.
package curation

import (
	"math"
	"time"

	"gramkeeper/internal/scraper"
)

const (
	// LookbackWindow is the maximum post age eligible for curation.
	LookbackWindow = 24 * time.Hour

	// MinComments is the minimum comment count for a post to qualify.
	MinComments = 3

	// PerProfileCap is the maximum curated posts admitted per profile.
	PerProfileCap = 5

	// GlobalCap is the maximum curated posts admitted per run.
	GlobalCap = 30
)

// Score maps a candidate to a desirability score. Zero means excluded:
// posts outside the lookback window or below the comment threshold never
// enter selection. Within the window, fresher and more-discussed posts
// score higher, with the likes term dropped entirely when the like count
// is absent or zero.
func Score(c scraper.Candidate, now time.Time) float64 {
	if c.PostedAt.IsZero() {
		return 0
	}
	hoursAgo := now.Sub(c.PostedAt).Hours()
	if hoursAgo > LookbackWindow.Hours() {
		return 0
	}
	if c.CommentCount < MinComments {
		return 0
	}

	engagement := 2 * math.Log(1+float64(c.CommentCount))
	if likes := c.Likes(); likes > 0 {
		engagement += math.Log(1 + float64(likes))
	}
	recency := math.Max(0, 1-hoursAgo/24)

	return engagement * (0.7 + 0.9*recency)
}
