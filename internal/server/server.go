// Package server exposes the HTTP API: curated content reads, run
// control and progress, schedule settings, profile management, push
// subscriptions, and post interactions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gramkeeper/internal/commenter"
	"gramkeeper/internal/curation"
	"gramkeeper/internal/logging"
	"gramkeeper/internal/scheduler"
	"gramkeeper/internal/store"
)

// Runner starts a curation run.
type Runner interface {
	RunCuration(ctx context.Context) error
}

// CommentPublisher drives the browser comment flow for one post.
type CommentPublisher interface {
	PublishComment(ctx context.Context, shortcode, text string) (commenter.Result, error)
}

// Rescheduler re-arms the recurring run trigger after settings change.
type Rescheduler interface {
	Reschedule()
}

// Server wires the HTTP handlers to the application services.
type Server struct {
	store     *store.Store
	tracker   *curation.Tracker
	runner    Runner
	commenter CommentPublisher
	scheduler Rescheduler

	// Guards against overlapping runs triggered over HTTP.
	running atomic.Bool
}

// New creates a server. commenter and scheduler may be nil; the
// corresponding endpoints then report unavailability.
func New(st *store.Store, tracker *curation.Tracker, runner Runner, cp CommentPublisher, rs Rescheduler) *Server {
	return &Server{
		store:     st,
		tracker:   tracker,
		runner:    runner,
		commenter: cp,
		scheduler: rs,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/curated/latest", s.handleLatestCurated)
		r.Get("/curated", s.handleAllCurated)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/run", s.handleRunCuration)
			r.Get("/status", s.handleStatus)
			r.Get("/progress", s.handleProgress)
			r.Post("/progress/reset", s.handleProgressReset)
			r.Get("/settings", s.handleGetSettings)
			r.Post("/settings", s.handleUpdateSettings)
			r.Get("/profiles", s.handleListProfiles)
			r.Post("/profiles", s.handleSyncProfiles)
		})

		r.Route("/push", func(r chi.Router) {
			r.Post("/subscribe", s.handleSubscribe)
			r.Delete("/subscribe", s.handleUnsubscribe)
		})

		r.Route("/posts/{shortcode}", func(r chi.Router) {
			r.Post("/seen", s.handleMarkSeen)
			r.Post("/comment", s.handleComment)
		})
	})

	return r
}

// handleLatestCurated returns the most recent successful run and its
// curated posts.
func (s *Server) handleLatestCurated(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.LatestSuccessfulRun()
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"run": nil, "posts": []store.Post{}})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	posts, err := s.store.CuratedPostsForRun(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "posts": posts})
}

// handleAllCurated returns curated posts across all runs, newest first.
func (s *Server) handleAllCurated(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.AllCuratedPosts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

// handleRunCuration starts a run in the background. Returns 409 while
// a run is already in flight.
func (s *Server) handleRunCuration(w http.ResponseWriter, r *http.Request) {
	if !s.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "a curation run is already in progress")
		return
	}

	go func() {
		defer s.running.Store(false)
		if err := s.runner.RunCuration(context.Background()); err != nil {
			logging.Server("curation run failed: %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var latest *store.Run
	run, err := s.store.LatestRun()
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err == nil {
		latest = run
	}

	enabled, interval := s.readSchedule()
	writeJSON(w, http.StatusOK, map[string]any{
		"latestRun":   latest,
		"liveStatus":  s.tracker.Status(),
		"running":     s.running.Load(),
		"nextRunTime": scheduler.NextRunTime(enabled, interval, time.Now()),
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) handleProgressReset(w http.ResponseWriter, r *http.Request) {
	s.tracker.Reset()
	w.WriteHeader(http.StatusNoContent)
}

type settingsPayload struct {
	ScheduleEnabled       bool       `json:"scheduleEnabled"`
	ScheduleIntervalHours int        `json:"scheduleIntervalHours"`
	NextRunTime           *time.Time `json:"nextRunTime,omitempty"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	enabled, interval := s.readSchedule()
	writeJSON(w, http.StatusOK, settingsPayload{
		ScheduleEnabled:       enabled,
		ScheduleIntervalHours: interval,
		NextRunTime:           scheduler.NextRunTime(enabled, interval, time.Now()),
	})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var in settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if in.ScheduleIntervalHours < 1 || in.ScheduleIntervalHours > 24 {
		writeError(w, http.StatusBadRequest, "interval must be between 1 and 24 hours")
		return
	}

	enabledStr := "false"
	if in.ScheduleEnabled {
		enabledStr = "true"
	}
	if err := s.store.SetSetting(scheduler.SettingEnabled, enabledStr); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.SetSetting(scheduler.SettingIntervalHours, strconv.Itoa(in.ScheduleIntervalHours)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.scheduler != nil {
		s.scheduler.Reschedule()
	}
	s.handleGetSettings(w, r)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.store.ListProfiles()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

// handleSyncProfiles replaces the enabled profile set with the posted
// handles. Profiles absent from the list are disabled, not deleted, so
// their curated history survives.
func (s *Server) handleSyncProfiles(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Handles []string `json:"handles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if err := s.store.SyncProfiles(in.Handles); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.handleListProfiles(w, r)
}

type subscribePayload struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var in subscribePayload
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "invalid subscription payload")
		return
	}

	err := s.store.SaveSubscription(store.Subscription{
		Endpoint: in.Endpoint,
		P256dh:   in.Keys.P256dh,
		Auth:     in.Keys.Auth,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if err := s.store.DeleteSubscription(in.Endpoint); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	shortcode := chi.URLParam(r, "shortcode")

	var in struct {
		Seen bool `json:"seen"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if err := s.store.UpdatePostSeen(shortcode, in.Seen); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown post")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shortcode": shortcode, "seen": in.Seen})
}

// handleComment publishes a comment on the post through the browser,
// then records the comment and any like placed during the flow.
func (s *Server) handleComment(w http.ResponseWriter, r *http.Request) {
	if s.commenter == nil {
		writeError(w, http.StatusServiceUnavailable, "commenting is not configured")
		return
	}

	shortcode := chi.URLParam(r, "shortcode")

	var in struct {
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Comment == "" {
		writeError(w, http.StatusBadRequest, "comment text required")
		return
	}

	if _, err := s.store.PostByShortcode(shortcode); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown post")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	res, err := s.commenter.PublishComment(r.Context(), shortcode, in.Comment)
	if err != nil {
		switch {
		case errors.Is(err, commenter.ErrSessionExpired):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, commenter.ErrSubmitNotVerified):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if err := s.store.UpdatePostComment(shortcode, in.Comment); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.Liked {
		if err := s.store.UpdatePostLikeStatus(shortcode, true); err != nil {
			logging.Server("recording like on %s: %v", shortcode, err)
		}
	}

	post, err := s.store.PostByShortcode(shortcode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) readSchedule() (bool, int) {
	enabled := false
	if v, err := s.store.GetSetting(scheduler.SettingEnabled); err == nil {
		enabled = v == "true"
	}
	interval := scheduler.DefaultIntervalHours
	if v, err := s.store.GetSetting(scheduler.SettingIntervalHours); err == nil {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			interval = n
		}
	}
	return enabled, interval
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Server("encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
