package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gramkeeper/internal/ai"
	"gramkeeper/internal/browser"
	"gramkeeper/internal/commenter"
	"gramkeeper/internal/curation"
	"gramkeeper/internal/notify"
	"gramkeeper/internal/scheduler"
	"gramkeeper/internal/server"
	"gramkeeper/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and the run scheduler",
	RunE:  runServe,
}

// app bundles the long-lived services behind the server and the CLI
// one-shot commands.
type app struct {
	store     *store.Store
	sessions  *browser.SessionManager
	tracker   *curation.Tracker
	runner    *curation.Runner
	commenter *commenter.Commenter
}

// buildApp wires the services from config. The AI suggester is optional:
// without an API key, curation runs without comment suggestions.
func buildApp(ctx context.Context) (*app, error) {
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	bcfg := browser.DefaultConfig(cfg.DataDir)
	bcfg.Headless = cfg.Browser.Headless
	bcfg.Bin = cfg.Browser.Bin
	bcfg.UserAgent = cfg.Browser.UserAgent
	sessions := browser.NewSessionManager(bcfg)

	tracker := curation.NewTracker()
	runner := curation.NewRunner(st, sessions, tracker)
	runner.Notify = notify.NewPushNotifier(st)

	if cfg.AI.APIKey != "" {
		suggester, err := ai.NewClient(ctx, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.MaxImages)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("init ai client: %w", err)
		}
		runner.Suggest = suggester
	} else {
		logger.Warn("GEMINI_API_KEY not set; comment suggestions disabled")
	}

	return &app{
		store:     st,
		sessions:  sessions,
		tracker:   tracker,
		runner:    runner,
		commenter: commenter.New(sessions, cfg.ScreenshotDir()),
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.store.Close()

	// Runs left in "running" by a crash or restart can never finish.
	if n, err := a.store.FailStuckRuns(); err != nil {
		logger.Warn("failing stuck runs", zap.Error(err))
	} else if n > 0 {
		logger.Info("marked stuck runs as failed", zap.Int("count", n))
	}

	sched := scheduler.New(a.store, func() {
		if err := a.runner.RunCuration(context.Background()); err != nil {
			logger.Error("scheduled curation failed", zap.Error(err))
		}
	})
	sched.Reschedule()
	defer sched.Stop()

	srv := server.New(a.store, a.tracker, a.runner, a.commenter, sched)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if !a.sessions.HasSession() {
		logger.Warn("no saved browser session; run 'gramkeeper login' before curating")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
