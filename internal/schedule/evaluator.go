// Package schedule evaluates cron expressions against tenant-declared
// timezones to decide when a configuration's check is due.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultDueWindow absorbs polling jitter: a scheduled instant counts as due
// for this long after it passes.
const DefaultDueWindow = 2 * time.Minute

// parser accepts standard 5-field cron syntax (minute, hour, day-of-month,
// month, day-of-week).
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks a cron expression and IANA timezone identifier. It is
// invoked at configuration write time so evaluation never sees bad input.
func Validate(expr, timezone string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", timezone, err)
	}
	return nil
}

// NextDue returns the first scheduled instant strictly after the given time,
// computed in the configuration's timezone.
func NextDue(expr, timezone string, after time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("unknown timezone %q: %w", timezone, err)
	}
	return sched.Next(after.In(loc)), nil
}

// IsDue reports whether a scheduled instant falls inside [now-window, now].
// The local due time is computed in the declared timezone; now may carry any
// location. Zero window falls back to DefaultDueWindow.
func IsDue(expr, timezone string, now time.Time, window time.Duration) (bool, error) {
	_, due, err := DueAt(expr, timezone, now, window)
	return due, err
}

// DueAt returns the scheduled instant inside [now-window, now], when one
// exists. The instant itself lets callers suppress a firing that already ran:
// the window spans several polling ticks, and each tick sees the same instant.
func DueAt(expr, timezone string, now time.Time, window time.Duration) (time.Time, bool, error) {
	if window <= 0 {
		window = DefaultDueWindow
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("unknown timezone %q: %w", timezone, err)
	}

	// Next is exclusive of its argument, so back off one extra second to keep
	// the window boundary itself due.
	ref := now.In(loc).Add(-window - time.Second)
	next := sched.Next(ref)
	if next.After(now.In(loc)) {
		return time.Time{}, false, nil
	}
	return next, true, nil
}
