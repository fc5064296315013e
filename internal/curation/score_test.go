package curation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gramkeeper/internal/scraper"
)

func candidateAt(age time.Duration, comments int, likes *int, now time.Time) scraper.Candidate {
	return scraper.Candidate{
		Shortcode:    "SC",
		PostedAt:     now.Add(-age),
		CommentCount: comments,
		LikeCount:    likes,
	}
}

func TestScoreFormula(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	likes := 100

	c := candidateAt(6*time.Hour, 10, &likes, now)
	got := Score(c, now)

	engagement := 2*math.Log(11) + math.Log(101)
	recency := 1 - 6.0/24
	want := engagement * (0.7 + 0.9*recency)
	assert.InDelta(t, want, got, 1e-9)
}

func TestScoreDropsLikesTermWhenAbsent(t *testing.T) {
	now := time.Now()

	zero := 0
	withZero := Score(candidateAt(time.Hour, 10, &zero, now), now)
	withNil := Score(candidateAt(time.Hour, 10, nil, now), now)
	assert.InDelta(t, withZero, withNil, 1e-9)

	one := 1
	withLikes := Score(candidateAt(time.Hour, 10, &one, now), now)
	assert.Greater(t, withLikes, withNil)
}

func TestScoreExcludesOutsideLookback(t *testing.T) {
	now := time.Now()
	likes := 500

	assert.Zero(t, Score(candidateAt(25*time.Hour, 50, &likes, now), now))
	assert.Positive(t, Score(candidateAt(23*time.Hour, 50, &likes, now), now))
}

func TestScoreExcludesBelowCommentThreshold(t *testing.T) {
	now := time.Now()

	assert.Zero(t, Score(candidateAt(time.Hour, MinComments-1, nil, now), now))
	assert.Positive(t, Score(candidateAt(time.Hour, MinComments, nil, now), now))
}

func TestScoreExcludesZeroPostedAt(t *testing.T) {
	assert.Zero(t, Score(scraper.Candidate{CommentCount: 99}, time.Now()))
}

func TestScoreFresherBeatsStalerAtEqualEngagement(t *testing.T) {
	now := time.Now()

	fresh := Score(candidateAt(1*time.Hour, 20, nil, now), now)
	stale := Score(candidateAt(20*time.Hour, 20, nil, now), now)
	assert.Greater(t, fresh, stale)
}

func TestScoreMoreDiscussedBeatsLessAtEqualAge(t *testing.T) {
	now := time.Now()

	busy := Score(candidateAt(time.Hour, 40, nil, now), now)
	quiet := Score(candidateAt(time.Hour, 5, nil, now), now)
	assert.Greater(t, busy, quiet)
}
