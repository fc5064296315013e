// Package commenter drives the browser through the post-engagement
// flow: open the post, like it if needed, type the comment, submit,
// and verify the submission took. Every failure leaves a screenshot
// behind for diagnosis.
package commenter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"gramkeeper/internal/logging"
	"gramkeeper/internal/scraper"
)

// Flow errors, listed in the order the steps run.
var (
	ErrSessionExpired     = errors.New("session expired: login page detected")
	ErrCommentBoxNotFound = errors.New("comment box not found")
	ErrPostButtonNotFound = errors.New("post button not found")
	ErrSubmitNotVerified  = errors.New("comment submission could not be verified")
)

const (
	loginCheckTimeout = 4 * time.Second
	elementTimeout    = 10 * time.Second
	likeSettleDelay   = 1 * time.Second
	verifyTimeout     = 10 * time.Second
	verifyInterval    = 500 * time.Millisecond
)

// PageProvider supplies authenticated browser pages.
type PageProvider interface {
	AuthedPage(ctx context.Context) (*rod.Page, func(), error)
}

// Result reports what the flow did to the post.
type Result struct {
	Liked bool // a like was placed during this flow
}

// Commenter publishes comments on posts through a real browser session.
type Commenter struct {
	pages         PageProvider
	screenshotDir string
}

// New creates a commenter. Failure screenshots land in screenshotDir.
func New(pages PageProvider, screenshotDir string) *Commenter {
	return &Commenter{pages: pages, screenshotDir: screenshotDir}
}

// PublishComment runs the full engagement flow against the post
// identified by shortcode. The post is liked first if it is not
// already, then the comment is typed and submitted. Submission is
// confirmed by the comment box clearing; if it never clears the
// comment may or may not have landed and ErrSubmitNotVerified is
// returned.
func (c *Commenter) PublishComment(ctx context.Context, shortcode, text string) (Result, error) {
	var res Result
	if strings.TrimSpace(text) == "" {
		return res, errors.New("comment text is empty")
	}

	page, cleanup, err := c.pages.AuthedPage(ctx)
	if err != nil {
		return res, fmt.Errorf("open browser: %w", err)
	}
	defer cleanup()

	url := scraper.Candidate{Shortcode: shortcode}.PostURL()
	logging.Commenter("opening %s", url)
	if err := page.Timeout(30 * time.Second).Navigate(url); err != nil {
		return res, c.fail(page, shortcode, fmt.Errorf("navigate to post: %w", err))
	}
	if err := page.WaitLoad(); err != nil {
		return res, c.fail(page, shortcode, fmt.Errorf("wait for post page: %w", err))
	}

	if sessionExpired(page) {
		return res, c.fail(page, shortcode, ErrSessionExpired)
	}

	liked, err := c.likeIfNeeded(page)
	if err != nil {
		return res, c.fail(page, shortcode, err)
	}
	res.Liked = liked

	box, err := findCommentBox(page)
	if err != nil {
		return res, c.fail(page, shortcode, err)
	}

	if err := box.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return res, c.fail(page, shortcode, fmt.Errorf("focus comment box: %w", err))
	}
	if err := box.Input(text); err != nil {
		return res, c.fail(page, shortcode, fmt.Errorf("type comment: %w", err))
	}

	post, err := page.Timeout(elementTimeout).ElementR(`div[role="button"]`, `/^Post$/`)
	if err != nil {
		return res, c.fail(page, shortcode, ErrPostButtonNotFound)
	}
	if err := post.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return res, c.fail(page, shortcode, fmt.Errorf("click post button: %w", err))
	}

	if err := waitForCleared(ctx, box); err != nil {
		return res, c.fail(page, shortcode, err)
	}

	logging.Commenter("comment published on %s (liked=%v)", shortcode, liked)
	return res, nil
}

// sessionExpired looks for the login affordance that Instagram renders
// to logged-out visitors.
func sessionExpired(page *rod.Page) bool {
	el, err := page.Timeout(loginCheckTimeout).Element(`a[href="/accounts/login/"]`)
	return err == nil && el != nil
}

// likeIfNeeded clicks the like button unless the post is already
// liked. Reports whether a like was placed.
func (c *Commenter) likeIfNeeded(page *rod.Page) (bool, error) {
	var liked bool
	_, err := page.Timeout(elementTimeout).Race().
		Element(`svg[aria-label="Like"]`).Handle(func(el *rod.Element) error {
		button, err := el.Parent()
		if err != nil {
			return fmt.Errorf("like button parent: %w", err)
		}
		if err := button.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("click like: %w", err)
		}
		liked = true
		// Give the UI a moment to register the like before moving on.
		time.Sleep(likeSettleDelay)
		return nil
	}).
		Element(`svg[aria-label="Unlike"]`).Handle(func(*rod.Element) error {
		logging.CommenterDebug("post already liked")
		return nil
	}).
		Do()
	if err != nil {
		return false, fmt.Errorf("locate like state: %w", err)
	}
	return liked, nil
}

// findCommentBox tries the labelled textarea first and falls back to
// any form textarea, since the aria label is localized.
func findCommentBox(page *rod.Page) (*rod.Element, error) {
	box, err := page.Timeout(elementTimeout).Race().
		Element(`textarea[aria-label="Add a comment…"]`).
		Element(`form textarea`).
		Do()
	if err != nil {
		return nil, ErrCommentBoxNotFound
	}
	return box, nil
}

// waitForCleared polls the comment box until its value empties, which
// is the only observable signal that the submission went through.
func waitForCleared(ctx context.Context, box *rod.Element) error {
	deadline := time.Now().Add(verifyTimeout)
	for time.Now().Before(deadline) {
		val, err := box.Property("value")
		if err != nil {
			// The box being detached from the DOM also means the form
			// submitted and re-rendered.
			return nil
		}
		if val.Str() == "" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(verifyInterval):
		}
	}
	return ErrSubmitNotVerified
}

// fail captures a screenshot for the failed step and returns err
// unchanged so callers can match on the sentinel.
func (c *Commenter) fail(page *rod.Page, shortcode string, err error) error {
	if c.screenshotDir != "" && page != nil {
		name := fmt.Sprintf("error-%d-%s.png", time.Now().UnixMilli(), shortcode)
		path := filepath.Join(c.screenshotDir, name)
		if data, shotErr := page.Screenshot(false, nil); shotErr == nil {
			if mkErr := os.MkdirAll(c.screenshotDir, 0o755); mkErr == nil {
				if writeErr := os.WriteFile(path, data, 0o644); writeErr == nil {
					logging.Commenter("failure screenshot saved to %s", path)
				}
			}
		}
	}
	logging.Get(logging.CategoryCommenter).Error("comment flow failed on %s: %v", shortcode, err)
	return err
}
