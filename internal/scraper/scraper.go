package scraper

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"gramkeeper/internal/logging"
)

// interceptTimeout bounds how long we wait for a matching feed response
// after navigation. Expiry is a soft miss, not a failure.
const interceptTimeout = 15 * time.Second

// ScrapeProfile navigates the page to the profile's canonical URL and
// returns the candidate posts carried by the first timeline feed response
// observed on the wire. The response matcher is registered before
// navigation so the initial page-load fetch is not missed.
//
// An error is returned only when navigation itself fails; an absent or
// unrecognizable feed returns an empty slice.
func ScrapeProfile(ctx context.Context, page *rod.Page, handle string) ([]Candidate, error) {
	log := logging.Get(logging.CategoryScraper)
	timer := logging.StartTimer(logging.CategoryScraper, "ScrapeProfile "+handle)
	defer timer.Stop()

	recvCtx, cancel := context.WithTimeout(ctx, interceptTimeout)
	defer cancel()
	p := page.Context(recvCtx)

	if err := (proto.NetworkEnable{}).Call(p); err != nil {
		return nil, err
	}

	var payload *timelinePayload
	wait := p.EachEvent(func(ev *proto.NetworkResponseReceived) bool {
		if ev.Response == nil || ev.Response.Status != 200 {
			return false
		}
		if !matchesFeedURL(ev.Response.URL) {
			return false
		}
		body, err := responseBody(p, ev.RequestID)
		if err != nil {
			log.Debug("profile %s: response body unavailable: %v", handle, err)
			return false
		}
		decoded, ok := decodeTimeline(body)
		if !ok {
			// A matching URL with a different shape; keep listening.
			return false
		}
		log.Info("profile %s: intercepted %d timeline edges", handle, len(decoded.Data.Connection.Edges))
		payload = decoded
		return true
	})

	if err := p.Navigate(ProfileURL(handle)); err != nil {
		cancel()
		wait()
		return nil, err
	}

	wait()

	if payload == nil {
		log.Warn("profile %s: no timeline response captured within %s", handle, interceptTimeout)
		return []Candidate{}, nil
	}

	return parseTimeline(payload, handle), nil
}

// matchesFeedURL recognizes the two URL families the platform has served
// the timeline feed from.
func matchesFeedURL(url string) bool {
	return strings.Contains(url, "/graphql/query") || strings.Contains(url, "/api/v1/feed/user/")
}

func responseBody(page *rod.Page, id proto.NetworkRequestID) ([]byte, error) {
	res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(page)
	if err != nil {
		return nil, err
	}
	if res.Base64Encoded {
		return base64.StdEncoding.DecodeString(res.Body)
	}
	return []byte(res.Body), nil
}
