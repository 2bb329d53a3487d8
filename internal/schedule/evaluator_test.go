package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDueTimezoneWindow(t *testing.T) {
	// 08:00 America/New_York daily. January dates are UTC-5, so the schedule
	// fires at 13:00 UTC.
	const expr = "0 8 * * *"
	const tz = "America/New_York"
	window := 2 * time.Minute

	tests := []struct {
		name string
		now  time.Time
		due  bool
	}{
		{"exactly at due time", time.Date(2025, 1, 24, 13, 0, 0, 0, time.UTC), true},
		{"one minute after", time.Date(2025, 1, 24, 13, 1, 0, 0, time.UTC), true},
		{"at window boundary", time.Date(2025, 1, 24, 13, 2, 0, 0, time.UTC), true},
		{"past the window", time.Date(2025, 1, 24, 13, 5, 0, 0, time.UTC), false},
		{"well before due time", time.Date(2025, 1, 24, 12, 30, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			due, err := IsDue(expr, tz, tt.now, window)
			require.NoError(t, err)
			assert.Equal(t, tt.due, due)
		})
	}
}

func TestIsDueEveryMinute(t *testing.T) {
	due, err := IsDue("* * * * *", "UTC", time.Now(), time.Minute)
	require.NoError(t, err)
	assert.True(t, due)
}

func TestDueAtReturnsSameInstantAcrossTicks(t *testing.T) {
	const expr = "0 8 * * *"
	const tz = "America/New_York"
	window := 2 * time.Minute
	firing := time.Date(2025, 1, 24, 13, 0, 0, 0, time.UTC)

	// Every tick inside the window resolves to the same firing instant, so
	// callers can tell a repeat evaluation from a new firing.
	for _, now := range []time.Time{
		firing,
		firing.Add(30 * time.Second),
		firing.Add(90 * time.Second),
	} {
		at, due, err := DueAt(expr, tz, now, window)
		require.NoError(t, err)
		require.True(t, due)
		assert.True(t, at.Equal(firing), "tick at %v resolved to %v", now, at)
	}

	_, due, err := DueAt(expr, tz, firing.Add(5*time.Minute), window)
	require.NoError(t, err)
	assert.False(t, due)
}

func TestNextDue(t *testing.T) {
	after := time.Date(2025, 1, 24, 13, 30, 0, 0, time.UTC)

	next, err := NextDue("0 8 * * *", "America/New_York", after)
	require.NoError(t, err)

	// 13:30 UTC is 08:30 ET; the next 08:00 ET is the following day.
	assert.Equal(t, time.Date(2025, 1, 25, 13, 0, 0, 0, time.UTC), next.UTC())
}

func TestNextDueRespectsTimezone(t *testing.T) {
	after := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// Daylight saving: June ET is UTC-4.
	next, err := NextDue("0 8 * * *", "America/New_York", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), next.UTC())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("0 8 * * *", "America/New_York"))
	assert.NoError(t, Validate("*/5 * * * 1-5", "UTC"))

	assert.Error(t, Validate("not a cron", "UTC"))
	assert.Error(t, Validate("0 8 * * * *", "UTC")) // 6 fields
	assert.Error(t, Validate("0 8 * * *", "Mars/Olympus"))
}

func TestIsDueRejectsBadInput(t *testing.T) {
	_, err := IsDue("bogus", "UTC", time.Now(), time.Minute)
	assert.Error(t, err)

	_, err = IsDue("0 8 * * *", "Nowhere/Nope", time.Now(), time.Minute)
	assert.Error(t, err)
}
