package scraper

import (
	"encoding/json"
	"time"

	"gramkeeper/internal/logging"
)

// The timeline feed arrives as a GraphQL-style connection. Only the
// fields we consume are declared; everything else is ignored. Captions
// have drifted between two locations over time, so both are declared and
// tried in order.
type timelinePayload struct {
	Data struct {
		Connection *timelineConnection `json:"xdt_api__v1__feed__user_timeline_graphql_connection"`
	} `json:"data"`
}

type timelineConnection struct {
	Edges []timelineEdge `json:"edges"`
}

type timelineEdge struct {
	Node *timelineNode `json:"node"`
}

type timelineNode struct {
	Code                 string         `json:"code"`
	Shortcode            string         `json:"shortcode"`
	TakenAt              int64          `json:"taken_at"`
	CommentCount         int            `json:"comment_count"`
	LikeCount            *int           `json:"like_count"`
	EdgeLikedBy          *countEdge     `json:"edge_liked_by"`
	MediaType            int            `json:"media_type"`
	Caption              *captionNode   `json:"caption"`
	EdgeMediaToCaption   *captionEdges  `json:"edge_media_to_caption"`
	AccessibilityCaption string         `json:"accessibility_caption"`
	User                 *timelineUser  `json:"user"`
	HasLiked             bool           `json:"has_liked"`
	ImageVersions        *imageVersions `json:"image_versions2"`
	CarouselMedia        []carouselItem `json:"carousel_media"`
	DisplayURL           string         `json:"display_url"`
}

type countEdge struct {
	Count int `json:"count"`
}

type captionNode struct {
	Text string `json:"text"`
}

type captionEdges struct {
	Edges []struct {
		Node captionNode `json:"node"`
	} `json:"edges"`
}

type timelineUser struct {
	Username string `json:"username"`
}

type imageVersions struct {
	Candidates []imageCandidate `json:"candidates"`
}

type imageCandidate struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type carouselItem struct {
	ImageVersions *imageVersions `json:"image_versions2"`
	DisplayURL    string         `json:"display_url"`
}

// decodeTimeline reports whether raw is a timeline feed payload with at
// least the connection envelope present.
func decodeTimeline(raw []byte) (*timelinePayload, bool) {
	var payload timelinePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}
	if payload.Data.Connection == nil {
		return nil, false
	}
	return &payload, true
}

// parseTimeline converts a decoded feed payload into candidates.
// Malformed edges are skipped and logged, never returned as errors.
func parseTimeline(payload *timelinePayload, handle string) []Candidate {
	log := logging.Get(logging.CategoryScraper)
	candidates := make([]Candidate, 0, len(payload.Data.Connection.Edges))

	for i, edge := range payload.Data.Connection.Edges {
		node := edge.Node
		if node == nil {
			log.Debug("profile %s: edge %d has no node, skipping", handle, i)
			continue
		}

		shortcode := node.Code
		if shortcode == "" {
			shortcode = node.Shortcode
		}
		if shortcode == "" {
			log.Debug("profile %s: edge %d has no shortcode, skipping", handle, i)
			continue
		}

		// Epoch-zero and pre-2010 dates are upstream sentinels for
		// "unknown"; such posts never reach scoring.
		if node.TakenAt <= 0 {
			log.Debug("profile %s: post %s has no timestamp, dropping", handle, shortcode)
			continue
		}
		postedAt := time.Unix(node.TakenAt, 0).UTC()
		if postedAt.Before(minValidPostTime) {
			log.Debug("profile %s: post %s has implausible date %s, dropping", handle, shortcode, postedAt)
			continue
		}

		likeCount := node.LikeCount
		if likeCount == nil && node.EdgeLikedBy != nil {
			n := node.EdgeLikedBy.Count
			likeCount = &n
		}

		mediaType := MediaType(node.MediaType)
		if node.MediaType == 0 {
			mediaType = MediaImage
		}

		c := Candidate{
			Shortcode:            shortcode,
			PostedAt:             postedAt,
			CommentCount:         node.CommentCount,
			LikeCount:            likeCount,
			MediaType:            mediaType,
			Caption:              extractCaption(node),
			AccessibilityCaption: node.AccessibilityCaption,
			MediaURLs:            extractMediaURLs(node),
			HasLiked:             node.HasLiked,
		}
		if node.User != nil {
			c.Username = node.User.Username
		}
		candidates = append(candidates, c)
	}

	return candidates
}

// extractCaption tries the two known caption locations in order.
func extractCaption(node *timelineNode) string {
	if node.Caption != nil && node.Caption.Text != "" {
		return node.Caption.Text
	}
	if node.EdgeMediaToCaption != nil && len(node.EdgeMediaToCaption.Edges) > 0 {
		return node.EdgeMediaToCaption.Edges[0].Node.Text
	}
	return ""
}

// extractMediaURLs returns one URL per media item: the carousel children
// for a multi-item post, otherwise the post itself.
func extractMediaURLs(node *timelineNode) []string {
	if len(node.CarouselMedia) > 0 {
		urls := make([]string, 0, len(node.CarouselMedia))
		for _, item := range node.CarouselMedia {
			if url := bestResolution(item.ImageVersions, item.DisplayURL); url != "" {
				urls = append(urls, url)
			}
		}
		return urls
	}
	if url := bestResolution(node.ImageVersions, node.DisplayURL); url != "" {
		return []string{url}
	}
	return nil
}

// bestResolution picks the candidate image with the largest area,
// falling back to the direct display URL when no sized candidates exist.
func bestResolution(versions *imageVersions, fallback string) string {
	if versions == nil || len(versions.Candidates) == 0 {
		return fallback
	}
	best := versions.Candidates[0]
	bestArea := best.Width * best.Height
	for _, cand := range versions.Candidates[1:] {
		if area := cand.Width * cand.Height; area > bestArea {
			best = cand
			bestArea = area
		}
	}
	if best.URL == "" {
		return fallback
	}
	return best.URL
}
