package curation

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"gramkeeper/internal/ai"
	"gramkeeper/internal/logging"
	"gramkeeper/internal/scraper"
)

// Suggester requests comment suggestions for one post. Implementations
// may return (nil, nil) when no enrichment is available; the run treats
// nil and error the same way, as "no enrichment", never as a failure.
type Suggester interface {
	SuggestComments(ctx context.Context, handle, caption string, imageURLs []string) (*ai.Suggestion, error)
}

// enrichConcurrency bounds parallel suggestion requests per profile.
const enrichConcurrency = 4

// EnrichEligible reports whether a candidate qualifies for AI
// enrichment: not already liked, a still frame to analyze (video is
// excluded), not marked seen by the user, and no suggestions carried
// over from an earlier curation of the same post.
func EnrichEligible(c scraper.Candidate) bool {
	if c.HasLiked || c.Seen {
		return false
	}
	if c.MediaType != scraper.MediaImage && c.MediaType != scraper.MediaCarousel {
		return false
	}
	return len(c.SuggestedComments) == 0
}

// enrichProfile requests suggestions for every eligible candidate of one
// profile, concurrently. Individual failures are counted, not
// propagated per-candidate; the returned error summarizes them so the
// caller can mark the profile's task as partially enriched.
func (r *Runner) enrichProfile(ctx context.Context, handle string, cands []*scraper.Candidate) error {
	log := logging.Get(logging.CategoryAI)

	var eg errgroup.Group
	eg.SetLimit(enrichConcurrency)

	var mu sync.Mutex
	var failed int
	var firstErr error

	requested := 0
	for _, c := range cands {
		if !EnrichEligible(*c) {
			continue
		}
		requested++
		c := c
		eg.Go(func() error {
			sugg, err := r.Suggest.SuggestComments(ctx, handle, c.Caption, c.MediaURLs)
			if err != nil {
				log.Warn("suggestion request for %s failed: %v", c.Shortcode, err)
				mu.Lock()
				failed++
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return nil
			}
			if sugg == nil {
				log.Debug("no enrichment available for %s", c.Shortcode)
				return nil
			}
			c.SuggestedComments = sugg.Comments
			score := sugg.Score
			c.AIScore = &score
			return nil
		})
	}
	_ = eg.Wait()

	log.Info("profile %s: enriched %d/%d eligible candidates", handle, requested-failed, requested)
	if failed > 0 {
		return fmt.Errorf("%d of %d suggestion requests failed: %w", failed, requested, firstErr)
	}
	return nil
}
