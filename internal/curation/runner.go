package curation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"golang.org/x/sync/errgroup"

	"gramkeeper/internal/logging"
	"gramkeeper/internal/scraper"
	"gramkeeper/internal/store"
)

// RunStore is the persistence surface a curation run needs.
type RunStore interface {
	EnabledProfileHandles() ([]string, error)
	CreateRun(startedAt time.Time) (int64, error)
	CompleteRun(id int64, status, message string) error
	PostByShortcode(shortcode string) (*store.Post, error)
	UpsertCuratedPosts(runID int64, cands []scraper.Candidate) error
}

// PageProvider supplies an authenticated browser page. The returned
// cleanup must be safe to call exactly once and closes the underlying
// browsing session.
type PageProvider interface {
	AuthedPage(ctx context.Context) (*rod.Page, func(), error)
}

// Notifier delivers a fire-and-forget notification. Failures are logged
// by the runner, never surfaced.
type Notifier interface {
	Notify(ctx context.Context, title, body, url string) error
}

// ScrapeFunc scrapes one profile's timeline on the given page.
type ScrapeFunc func(ctx context.Context, page *rod.Page, handle string) ([]scraper.Candidate, error)

// Runner sequences a curation run: scrape every enabled profile, score
// candidates as they arrive, enrich eligible ones in the background,
// select, persist, and notify.
//
// The Suggest and Notify fields are optional; a nil Suggest skips
// enrichment entirely and a nil Notify skips notifications.
type Runner struct {
	Store   RunStore
	Pages   PageProvider
	Tracker *Tracker
	Suggest Suggester
	Notify  Notifier

	// Scrape defaults to scraper.ScrapeProfile; tests substitute it.
	Scrape ScrapeFunc

	// Jitter returns the delay inserted between profile scrapes.
	Jitter func() time.Duration

	now func() time.Time
}

// NewRunner wires a runner with default scraping and jitter.
func NewRunner(st RunStore, pages PageProvider, tracker *Tracker) *Runner {
	return &Runner{
		Store:   st,
		Pages:   pages,
		Tracker: tracker,
		Scrape:  scraper.ScrapeProfile,
		Jitter:  defaultJitter,
		now:     time.Now,
	}
}

// defaultJitter spaces profile visits 1-3s apart so navigation cadence
// does not look mechanical.
func defaultJitter() time.Duration {
	return time.Second + time.Duration(rand.Int63n(int64(2*time.Second)))
}

// RunCuration executes one full curation run. Callers observe the
// outcome through the Tracker and the run record; the returned error
// duplicates the failure for CLI use.
//
// Run-level mutual exclusion is a caller responsibility: the trigger
// must check the last run's status and refuse to start a new run while
// one is running.
func (r *Runner) RunCuration(ctx context.Context) error {
	log := logging.Get(logging.CategoryCuration)
	timer := logging.StartTimer(logging.CategoryCuration, "RunCuration")
	defer timer.Stop()

	runID, err := r.Store.CreateRun(r.now())
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	log.Info("run %d started", runID)

	handles, err := r.Store.EnabledProfileHandles()
	if err != nil {
		r.Tracker.Init(nil)
		return r.failRun(ctx, runID, fmt.Errorf("list profiles: %w", err))
	}
	r.Tracker.Init(handles)

	page, cleanup, err := r.Pages.AuthedPage(ctx)
	if err != nil {
		return r.failRun(ctx, runID, fmt.Errorf("acquire browsing session: %w", err))
	}
	// The browsing session is closed regardless of outcome.
	defer cleanup()

	r.Tracker.UpdateTask(TaskInitializing, TaskDone, "")
	log.Info("run %d: curating %d profiles", runID, len(handles))

	// Enrichment tasks spawned during the loop are collected here and
	// joined before selection, so results are never missing enrichment
	// data, only delayed by it.
	var pending errgroup.Group
	batches := make([][]scraper.Candidate, 0, len(handles))

	for _, handle := range handles {
		r.Tracker.UpdateTask(handle, TaskProcessing, "")

		cands, err := r.Scrape(ctx, page, handle)
		if err != nil {
			log.Warn("run %d: scrape %s failed: %v", runID, handle, err)
			r.Tracker.UpdateTask(handle, TaskFailed, err.Error())
			continue
		}

		if r.Jitter != nil {
			sleepCtx(ctx, r.Jitter())
		}

		scored := make([]scraper.Candidate, 0, len(cands))
		for _, c := range cands {
			c.ProfileHandle = handle
			s := Score(c, r.now())
			if s <= 0 {
				continue
			}
			c.Score = s
			r.mergePrior(&c)
			scored = append(scored, c)
		}
		batches = append(batches, scored)

		// The task is marked done before enrichment spawns so the
		// background goroutine owns any later message for this handle.
		r.Tracker.UpdateTask(handle, TaskDone, fmt.Sprintf("Found %d candidates", len(scored)))

		if r.Suggest != nil && len(scored) > 0 {
			// Candidate pointers stay valid: scored is never appended
			// to after this point.
			ptrs := make([]*scraper.Candidate, len(scored))
			for i := range scored {
				ptrs[i] = &scored[i]
			}
			handle := handle
			pending.Go(func() error {
				if err := r.enrichProfile(ctx, handle, ptrs); err != nil {
					r.Tracker.UpdateTask(handle, TaskDone, "partial AI failure: "+err.Error())
				}
				return nil
			})
		}
	}

	// Mandatory join: nothing is persisted while enrichment is
	// outstanding.
	_ = pending.Wait()

	var all []scraper.Candidate
	for _, batch := range batches {
		all = append(all, batch...)
	}
	selected := Select(all)

	r.Tracker.UpdateTask(TaskFinalizing, TaskProcessing, "")

	if err := r.Store.UpsertCuratedPosts(runID, selected); err != nil {
		return r.failRun(ctx, runID, fmt.Errorf("persist curated posts: %w", err))
	}

	message := fmt.Sprintf("Curated %d posts", len(selected))
	if err := r.Store.CompleteRun(runID, store.RunStatusSuccess, message); err != nil {
		return r.failRun(ctx, runID, fmt.Errorf("complete run: %w", err))
	}
	log.Info("run %d complete: %d posts curated", runID, len(selected))

	r.Tracker.AddCurated(len(selected))
	r.Tracker.UpdateTask(TaskFinalizing, TaskDone, "")
	r.Tracker.Complete(nil)

	r.sendNotification(ctx, "Curation finished", fmt.Sprintf("Success: %d curated posts", len(selected)))
	return nil
}

// failRun records a run-fatal failure on the run record and the
// tracker, still attempting a failure notification.
func (r *Runner) failRun(ctx context.Context, runID int64, runErr error) error {
	logging.Get(logging.CategoryCuration).Error("run %d failed: %v", runID, runErr)

	if err := r.Store.CompleteRun(runID, store.RunStatusFailed, runErr.Error()); err != nil {
		logging.Get(logging.CategoryCuration).Error("run %d: recording failure also failed: %v", runID, err)
	}
	r.Tracker.Complete(runErr)
	r.sendNotification(ctx, "Curation failed", runErr.Error())
	return runErr
}

func (r *Runner) sendNotification(ctx context.Context, title, body string) {
	if r.Notify == nil {
		return
	}
	if err := r.Notify.Notify(ctx, title, body, "/"); err != nil {
		logging.Get(logging.CategoryCuration).Warn("notification failed: %v", err)
	}
}

// mergePrior carries user-interaction state and existing enrichment from
// a previously curated record with the same identity, so re-curation
// updates rather than resets.
func (r *Runner) mergePrior(c *scraper.Candidate) {
	prior, err := r.Store.PostByShortcode(c.Shortcode)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		logging.Get(logging.CategoryCuration).Warn("prior lookup for %s failed: %v", c.Shortcode, err)
		return
	}
	c.Seen = prior.Seen
	c.UserComment = prior.UserComment
	if len(prior.SuggestedComments) > 0 {
		c.SuggestedComments = prior.SuggestedComments
	}
	if prior.AIScore != nil {
		c.AIScore = prior.AIScore
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
