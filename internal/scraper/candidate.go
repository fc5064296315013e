// Package scraper intercepts a profile's timeline feed from the network
// layer of a live browser page and normalizes it into candidate posts.
// The remote platform's response shape is not contractually stable, so
// everything here fails soft: a missing or malformed feed yields an empty
// candidate list, never an error that aborts a run.
package scraper

import (
	"fmt"
	"time"
)

// MediaType mirrors the remote platform's media_type codes.
type MediaType int

const (
	MediaImage    MediaType = 1
	MediaVideo    MediaType = 2
	MediaCarousel MediaType = 8
)

// String returns a human-readable media type name.
func (m MediaType) String() string {
	switch m {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	case MediaCarousel:
		return "carousel"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// minValidPostTime is the sentinel floor for post timestamps. Epoch-zero
// and other implausible dates observed upstream all land before 2010.
var minValidPostTime = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

// Candidate is a post observed during scraping, before scoring and
// selection. It lives only for the duration of one curation run.
type Candidate struct {
	Shortcode            string
	PostedAt             time.Time
	CommentCount         int
	LikeCount            *int // nil when the platform withholds the count
	MediaType            MediaType
	Caption              string
	AccessibilityCaption string
	MediaURLs            []string
	Username             string
	HasLiked             bool

	// Derived during a run, not present at scrape time.
	ProfileHandle     string
	Score             float64
	SuggestedComments []string
	AIScore           *int

	// Merged from a previously curated record with the same shortcode,
	// used by the enrichment eligibility gate.
	Seen        bool
	UserComment string
}

// PostURL returns the canonical URL for the candidate's post page.
func (c Candidate) PostURL() string {
	return fmt.Sprintf("https://www.instagram.com/p/%s/", c.Shortcode)
}

// ProfileURL returns the canonical URL for a profile handle.
func ProfileURL(handle string) string {
	return fmt.Sprintf("https://www.instagram.com/%s/", handle)
}

// Likes returns the like count, treating an absent count as zero.
func (c Candidate) Likes() int {
	if c.LikeCount == nil {
		return 0
	}
	return *c.LikeCount
}
