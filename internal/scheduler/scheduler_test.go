package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gramkeeper/internal/store"
)

type fakeSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func (f *fakeSettings) GetSetting(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return "", store.ErrNotFound
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 8, 30, hour, minute, 0, 0, time.UTC)
}

func TestNextRunTimeLandsOnIntervalMultiple(t *testing.T) {
	// 13:30 with a 4-hour interval: candidates are 0,4,8,12,16,20; the
	// next one after now is 16:00.
	next := NextRunTime(true, 4, at(13, 30))
	require.NotNil(t, next)
	assert.Equal(t, at(16, 0), *next)
}

func TestNextRunTimeRollsToMidnight(t *testing.T) {
	// 21:30 with an 8-hour interval: 0, 8, 16 are all past, so the next
	// firing is tomorrow at midnight.
	next := NextRunTime(true, 8, at(21, 30))
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), *next)
}

func TestNextRunTimeStrictlyAfterNow(t *testing.T) {
	// Exactly on a boundary: the boundary itself does not count.
	next := NextRunTime(true, 6, at(12, 0))
	require.NotNil(t, next)
	assert.Equal(t, at(18, 0), *next)
}

func TestNextRunTimeDisabled(t *testing.T) {
	assert.Nil(t, NextRunTime(false, 4, at(10, 0)))
	assert.Nil(t, NextRunTime(true, 0, at(10, 0)))
	assert.Nil(t, NextRunTime(true, -3, at(10, 0)))
}

func TestNextRunTimeHourlyInterval(t *testing.T) {
	next := NextRunTime(true, 1, at(10, 59))
	require.NotNil(t, next)
	assert.Equal(t, at(11, 0), *next)
}

func TestReadSettingsDefaults(t *testing.T) {
	s := New(&fakeSettings{values: map[string]string{}}, func() {})

	enabled, interval := s.readSettings()
	assert.False(t, enabled)
	assert.Equal(t, DefaultIntervalHours, interval)
}

func TestReadSettingsParsesStoredValues(t *testing.T) {
	s := New(&fakeSettings{values: map[string]string{
		SettingEnabled:       "true",
		SettingIntervalHours: "6",
	}}, func() {})

	enabled, interval := s.readSettings()
	assert.True(t, enabled)
	assert.Equal(t, 6, interval)
}

func TestReadSettingsIgnoresInvalidInterval(t *testing.T) {
	for _, bad := range []string{"banana", "-6", "0"} {
		s := New(&fakeSettings{values: map[string]string{
			SettingEnabled:       "true",
			SettingIntervalHours: bad,
		}}, func() {})

		_, interval := s.readSettings()
		assert.Equal(t, DefaultIntervalHours, interval, "value %q", bad)
	}
}

func TestRescheduleDisabledDoesNotArm(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := New(&fakeSettings{values: map[string]string{}}, func() {
		fired <- struct{}{}
	})

	s.Reschedule()
	defer s.Stop()

	select {
	case <-fired:
		t.Fatal("disabled scheduler fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(&fakeSettings{values: map[string]string{
		SettingEnabled:       "true",
		SettingIntervalHours: "12",
	}}, func() {})

	s.Reschedule()
	s.Stop()
	s.Stop()
}
