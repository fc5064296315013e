package scraper

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func decodeValid(t *testing.T, raw string) *timelinePayload {
	t.Helper()
	payload, ok := decodeTimeline([]byte(raw))
	if !ok {
		t.Fatalf("decodeTimeline rejected valid payload")
	}
	return payload
}

func wrapEdges(edges string) string {
	return fmt.Sprintf(`{"data":{"xdt_api__v1__feed__user_timeline_graphql_connection":{"edges":[%s]}}}`, edges)
}

func TestDecodeTimelineRejectsForeignShapes(t *testing.T) {
	cases := []string{
		``,
		`not json`,
		`{}`,
		`{"data":{}}`,
		`{"data":{"user":{"id":"1"}}}`,
	}
	for _, raw := range cases {
		if _, ok := decodeTimeline([]byte(raw)); ok {
			t.Errorf("decodeTimeline accepted %q", raw)
		}
	}
}

func TestParseTimelineBasicFields(t *testing.T) {
	takenAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	raw := wrapEdges(fmt.Sprintf(`{"node":{
		"code":"AbC123",
		"taken_at":%d,
		"comment_count":7,
		"like_count":42,
		"media_type":1,
		"caption":{"text":"golden hour"},
		"accessibility_caption":"a beach at sunset",
		"user":{"username":"leia"},
		"has_liked":true,
		"image_versions2":{"candidates":[
			{"url":"https://cdn/img-small","width":320,"height":320},
			{"url":"https://cdn/img-big","width":1080,"height":1350},
			{"url":"https://cdn/img-mid","width":640,"height":800}
		]}
	}}`, takenAt.Unix()))

	got := parseTimeline(decodeValid(t, raw), "leia")
	if len(got) != 1 {
		t.Fatalf("parsed %d candidates, want 1", len(got))
	}

	likes := 42
	want := Candidate{
		Shortcode:            "AbC123",
		PostedAt:             takenAt,
		CommentCount:         7,
		LikeCount:            &likes,
		MediaType:            MediaImage,
		Caption:              "golden hour",
		AccessibilityCaption: "a beach at sunset",
		MediaURLs:            []string{"https://cdn/img-big"},
		Username:             "leia",
		HasLiked:             true,
	}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Errorf("candidate mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTimelineCaptionFallback(t *testing.T) {
	raw := wrapEdges(`{"node":{
		"shortcode":"legacy1",
		"taken_at":1750000000,
		"edge_media_to_caption":{"edges":[{"node":{"text":"from the legacy location"}}]}
	}}`)

	got := parseTimeline(decodeValid(t, raw), "x")
	if len(got) != 1 {
		t.Fatalf("parsed %d candidates, want 1", len(got))
	}
	if got[0].Caption != "from the legacy location" {
		t.Errorf("caption = %q, want legacy location text", got[0].Caption)
	}
	if got[0].Shortcode != "legacy1" {
		t.Errorf("shortcode = %q, want legacy1 (shortcode field fallback)", got[0].Shortcode)
	}
}

func TestParseTimelineDropsImplausibleDates(t *testing.T) {
	raw := wrapEdges(
		`{"node":{"code":"nodate","comment_count":5}},` +
			`{"node":{"code":"epoch","taken_at":0}},` +
			`{"node":{"code":"ancient","taken_at":915148800}},` + // 1999
			`{"node":{"code":"keeper","taken_at":1750000000}}`)

	got := parseTimeline(decodeValid(t, raw), "x")
	if len(got) != 1 {
		t.Fatalf("parsed %d candidates, want only the plausible one", len(got))
	}
	if got[0].Shortcode != "keeper" {
		t.Errorf("kept %q, want keeper", got[0].Shortcode)
	}
}

func TestParseTimelineSkipsMalformedEdges(t *testing.T) {
	raw := wrapEdges(
		`{},` +
			`{"node":{"taken_at":1750000000}},` + // no shortcode
			`{"node":{"code":"ok","taken_at":1750000000}}`)

	got := parseTimeline(decodeValid(t, raw), "x")
	if len(got) != 1 || got[0].Shortcode != "ok" {
		t.Fatalf("parsed %v, want just [ok]", got)
	}
}

func TestParseTimelineCarouselMediaURLs(t *testing.T) {
	raw := wrapEdges(`{"node":{
		"code":"carousel1",
		"taken_at":1750000000,
		"media_type":8,
		"carousel_media":[
			{"image_versions2":{"candidates":[
				{"url":"https://cdn/c0-lo","width":100,"height":100},
				{"url":"https://cdn/c0-hi","width":1000,"height":1000}
			]}},
			{"display_url":"https://cdn/c1-display"},
			{"image_versions2":{"candidates":[]},"display_url":"https://cdn/c2-display"}
		]
	}}`)

	got := parseTimeline(decodeValid(t, raw), "x")
	if len(got) != 1 {
		t.Fatalf("parsed %d candidates, want 1", len(got))
	}
	want := []string{"https://cdn/c0-hi", "https://cdn/c1-display", "https://cdn/c2-display"}
	if diff := cmp.Diff(want, got[0].MediaURLs); diff != "" {
		t.Errorf("media urls mismatch (-want +got):\n%s", diff)
	}
	if got[0].MediaType != MediaCarousel {
		t.Errorf("media type = %v, want carousel", got[0].MediaType)
	}
}

func TestParseTimelineLikeCountEdgeFallback(t *testing.T) {
	raw := wrapEdges(`{"node":{
		"code":"likes1",
		"taken_at":1750000000,
		"edge_liked_by":{"count":99}
	}}`)

	got := parseTimeline(decodeValid(t, raw), "x")
	if len(got) != 1 {
		t.Fatalf("parsed %d candidates, want 1", len(got))
	}
	if got[0].Likes() != 99 {
		t.Errorf("likes = %d, want 99 from edge_liked_by", got[0].Likes())
	}
}

func TestParseTimelineNilLikeCountStaysNil(t *testing.T) {
	raw := wrapEdges(`{"node":{"code":"nolikes","taken_at":1750000000}}`)

	got := parseTimeline(decodeValid(t, raw), "x")
	if len(got) != 1 {
		t.Fatalf("parsed %d candidates, want 1", len(got))
	}
	if got[0].LikeCount != nil {
		t.Errorf("like count = %v, want nil when absent", *got[0].LikeCount)
	}
	if got[0].Likes() != 0 {
		t.Errorf("Likes() = %d, want 0 for absent count", got[0].Likes())
	}
}
