package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gramkeeper/internal/commenter"
	"gramkeeper/internal/curation"
	"gramkeeper/internal/scheduler"
	"gramkeeper/internal/scraper"
	"gramkeeper/internal/store"
)

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) RunCuration(ctx context.Context) error {
	close(r.started)
	<-r.release
	return nil
}

type fakePublisher struct {
	result commenter.Result
	err    error
	got    struct {
		shortcode, text string
	}
}

func (p *fakePublisher) PublishComment(ctx context.Context, shortcode, text string) (commenter.Result, error) {
	p.got.shortcode = shortcode
	p.got.text = text
	return p.result, p.err
}

type fakeRescheduler struct{ calls int }

func (f *fakeRescheduler) Reschedule() { f.calls++ }

func newTestServer(t *testing.T, runner Runner, cp CommentPublisher, rs Rescheduler) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, curation.NewTracker(), runner, cp, rs), st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func seedPost(t *testing.T, st *store.Store, shortcode string) {
	t.Helper()
	runID, err := st.CreateRun(time.Now())
	require.NoError(t, err)
	require.NoError(t, st.UpsertCuratedPosts(runID, []scraper.Candidate{{
		Shortcode:     shortcode,
		ProfileHandle: "chef_anna",
		Username:      "chef_anna",
		PostedAt:      time.Now().Add(-2 * time.Hour),
		CommentCount:  12,
		MediaType:     scraper.MediaImage,
		Score:         5.5,
	}}))
	require.NoError(t, st.CompleteRun(runID, store.RunStatusSuccess, "ok"))
}

func TestRunCurationRejectsOverlap(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	srv, _ := newTestServer(t, runner, nil, nil)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/admin/run", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	<-runner.started

	rec = doJSON(t, h, http.MethodPost, "/api/admin/run", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(runner.release)
}

func TestLatestCuratedEmptyDatabase(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil, nil)

	rec := doJSON(t, srv.Routes(), http.MethodGet, "/api/curated/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Run   *store.Run   `json:"run"`
		Posts []store.Post `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Run)
	assert.Empty(t, resp.Posts)
}

func TestLatestCuratedReturnsRunPosts(t *testing.T) {
	srv, st := newTestServer(t, nil, nil, nil)
	seedPost(t, st, "ABC123")

	rec := doJSON(t, srv.Routes(), http.MethodGet, "/api/curated/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Run   *store.Run   `json:"run"`
		Posts []store.Post `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Run)
	assert.Equal(t, store.RunStatusSuccess, resp.Run.Status)
	require.Len(t, resp.Posts, 1)
	assert.Equal(t, "ABC123", resp.Posts[0].Shortcode)
}

func TestSettingsRoundTrip(t *testing.T) {
	rs := &fakeRescheduler{}
	srv, st := newTestServer(t, nil, nil, rs)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodGet, "/api/admin/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got settingsPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.ScheduleEnabled)
	assert.Equal(t, scheduler.DefaultIntervalHours, got.ScheduleIntervalHours)

	rec = doJSON(t, h, http.MethodPost, "/api/admin/settings", settingsPayload{
		ScheduleEnabled:       true,
		ScheduleIntervalHours: 6,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, rs.calls)

	v, err := st.GetSetting(scheduler.SettingEnabled)
	require.NoError(t, err)
	assert.Equal(t, "true", v)
	v, err = st.GetSetting(scheduler.SettingIntervalHours)
	require.NoError(t, err)
	assert.Equal(t, "6", v)
}

func TestSettingsRejectsBadInterval(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil, &fakeRescheduler{})

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/admin/settings", settingsPayload{
		ScheduleEnabled:       true,
		ScheduleIntervalHours: 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncProfiles(t *testing.T) {
	srv, st := newTestServer(t, nil, nil, nil)
	require.NoError(t, st.AddProfile("old_account"))

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/admin/profiles", map[string]any{
		"handles": []string{"chef_anna", "trail_runner"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	handles, err := st.EnabledProfileHandles()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"chef_anna", "trail_runner"}, handles)
}

func TestMarkSeen(t *testing.T) {
	srv, st := newTestServer(t, nil, nil, nil)
	seedPost(t, st, "ABC123")
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/posts/ABC123/seen", map[string]bool{"seen": true})
	require.Equal(t, http.StatusOK, rec.Code)

	post, err := st.PostByShortcode("ABC123")
	require.NoError(t, err)
	assert.True(t, post.Seen)

	rec = doJSON(t, h, http.MethodPost, "/api/posts/NOPE/seen", map[string]bool{"seen": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCommentFlowRecordsCommentAndLike(t *testing.T) {
	pub := &fakePublisher{result: commenter.Result{Liked: true}}
	srv, st := newTestServer(t, nil, pub, nil)
	seedPost(t, st, "ABC123")

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/posts/ABC123/comment", map[string]string{
		"comment": "this looks incredible",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ABC123", pub.got.shortcode)

	post, err := st.PostByShortcode("ABC123")
	require.NoError(t, err)
	assert.Equal(t, "this looks incredible", post.UserComment)
	assert.True(t, post.HasLiked)
}

func TestCommentSessionExpiredMapsTo401(t *testing.T) {
	pub := &fakePublisher{err: commenter.ErrSessionExpired}
	srv, st := newTestServer(t, nil, pub, nil)
	seedPost(t, st, "ABC123")

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/posts/ABC123/comment", map[string]string{
		"comment": "hello",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	post, err := st.PostByShortcode("ABC123")
	require.NoError(t, err)
	assert.Empty(t, post.UserComment)
}

func TestCommentUnknownPost(t *testing.T) {
	srv, _ := newTestServer(t, nil, &fakePublisher{}, nil)

	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/posts/NOPE/comment", map[string]string{
		"comment": "hello",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPushSubscribeLifecycle(t *testing.T) {
	srv, st := newTestServer(t, nil, nil, nil)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/push/subscribe", map[string]any{
		"endpoint": "https://push.example/abc",
		"keys":     map[string]string{"p256dh": "pk", "auth": "ak"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	subs, err := st.ListSubscriptions()
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push.example/abc", subs[0].Endpoint)

	rec = doJSON(t, h, http.MethodDelete, "/api/push/subscribe", map[string]string{
		"endpoint": "https://push.example/abc",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	subs, err = st.ListSubscriptions()
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestProgressEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil, nil)
	h := srv.Routes()
	srv.tracker.Init([]string{"chef_anna"})

	rec := doJSON(t, h, http.MethodGet, "/api/admin/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var prog curation.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prog))
	assert.Equal(t, curation.RunRunning, prog.Status)
	assert.Equal(t, 1, prog.TotalProfiles)

	rec = doJSON(t, h, http.MethodPost, "/api/admin/progress/reset", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, curation.RunIdle, srv.tracker.Status())
}
