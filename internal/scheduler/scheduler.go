// Package scheduler arms the recurring curation trigger. The schedule
// is stored as settings and re-read on every reschedule: an enabled
// flag and an interval in hours, firing at every hour of day that is a
// multiple of the interval (interval 4 fires at 0, 4, 8, 12, 16, 20).
package scheduler

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"gramkeeper/internal/logging"
	"gramkeeper/internal/store"
)

// Settings keys, stored by the external settings surface.
const (
	SettingEnabled       = "schedule_enabled"        // "true" / "false"
	SettingIntervalHours = "schedule_interval_hours" // integer >= 1
)

// DefaultIntervalHours applies when the interval setting is missing or
// unparseable.
const DefaultIntervalHours = 12

// SettingsSource reads the persisted schedule settings.
type SettingsSource interface {
	GetSetting(key string) (string, error)
}

// Scheduler owns the recurring trigger goroutine. Reschedule replaces
// it; Stop tears it down.
type Scheduler struct {
	settings SettingsSource
	run      func()

	mu     sync.Mutex
	cancel context.CancelFunc
	now    func() time.Time
}

// New creates a scheduler that invokes run at every firing.
func New(settings SettingsSource, run func()) *Scheduler {
	return &Scheduler{
		settings: settings,
		run:      run,
		now:      time.Now,
	}
}

// Reschedule re-reads the stored settings and re-arms (or disarms) the
// recurring trigger. Call at startup and after any settings change.
func (s *Scheduler) Reschedule() {
	log := logging.Get(logging.CategoryScheduler)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	enabled, interval := s.readSettings()
	if !enabled {
		log.Info("scheduler disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	log.Info("scheduling curation every %d hours", interval)

	go s.loop(ctx, interval)
}

// Stop disarms the trigger.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Scheduler) loop(ctx context.Context, intervalHours int) {
	log := logging.Get(logging.CategoryScheduler)

	for {
		next := NextRunTime(true, intervalHours, s.now())
		if next == nil {
			return
		}
		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			log.Info("scheduled curation firing at %s", s.now().Format(time.RFC3339))
			s.run()
		}
	}
}

func (s *Scheduler) readSettings() (bool, int) {
	enabled := false
	if v, err := s.settings.GetSetting(SettingEnabled); err == nil {
		enabled = v == "true"
	} else if !errors.Is(err, store.ErrNotFound) {
		logging.Get(logging.CategoryScheduler).Warn("reading %s: %v", SettingEnabled, err)
	}

	interval := DefaultIntervalHours
	if v, err := s.settings.GetSetting(SettingIntervalHours); err == nil {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			interval = n
		}
	}
	return enabled, interval
}

// NextRunTime computes the earliest firing strictly after now: the next
// hour of day today that is a multiple of intervalHours, or the first
// such hour tomorrow (midnight) if none remains today. Returns nil when
// disabled or the interval is invalid. Used for display only; the
// firing loop recomputes independently.
func NextRunTime(enabled bool, intervalHours int, now time.Time) *time.Time {
	if !enabled || intervalHours < 1 {
		return nil
	}

	year, month, day := now.Date()
	for h := 0; h < 24; h += intervalHours {
		cand := time.Date(year, month, day, h, 0, 0, 0, now.Location())
		if cand.After(now) {
			return &cand
		}
	}
	next := time.Date(year, month, day, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return &next
}
