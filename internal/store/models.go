package store

import (
	"errors"
	"time"

	"gramkeeper/internal/scraper"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Profile is a tracked account. Read at the start of every run to build
// the profile list.
type Profile struct {
	ID           int64  `json:"id"`
	Handle       string `json:"handle"`
	Enabled      bool   `json:"enabled"`
	TotalCurated int    `json:"totalCurated"`
	LikedCurated int    `json:"likedCurated"`
}

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// Run is one end-to-end execution of the curation pipeline.
type Run struct {
	ID         int64      `json:"id"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Status     string     `json:"status"`
	Message    string     `json:"message,omitempty"`
}

// Post is a curated post record. Identity (shortcode) is globally unique
// across runs: re-curating the same post updates the record in place,
// preserving the user-interaction fields.
type Post struct {
	Shortcode            string            `json:"shortcode"`
	RunID                int64             `json:"runId"`
	ProfileHandle        string            `json:"profileHandle"`
	PostURL              string            `json:"postUrl"`
	PostedAt             time.Time         `json:"postedAt"`
	CommentCount         int               `json:"commentCount"`
	LikeCount            *int              `json:"likeCount,omitempty"`
	Score                float64           `json:"score"`
	AIScore              *int              `json:"aiScore,omitempty"`
	IsCurated            bool              `json:"isCurated"`
	MediaType            scraper.MediaType `json:"mediaType"`
	Caption              string            `json:"caption,omitempty"`
	AccessibilityCaption string            `json:"accessibilityCaption,omitempty"`
	HasLiked             bool              `json:"hasLiked"`
	Username             string            `json:"username,omitempty"`
	UserComment          string            `json:"userComment,omitempty"`
	SuggestedComments    []string          `json:"suggestedComments,omitempty"`
	MediaURLs            []string          `json:"mediaUrls,omitempty"`
	Seen                 bool              `json:"seen"`

	// Joined from the owning run for read endpoints.
	RunDate   *time.Time `json:"runDate,omitempty"`
	RunStatus string     `json:"runStatus,omitempty"`
}

// Subscription is one push-notification delivery target.
type Subscription struct {
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh,omitempty"`
	Auth      string    `json:"auth,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
