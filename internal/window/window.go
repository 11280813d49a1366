// Package window splits a lookback horizon into calendar-month crawl windows.
package window

import (
	"fmt"
	"time"
)

// Window is an inclusive [Start, End] range of instants, UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

// String renders the window as an RFC 3339 interval, "start/end".
func (w Window) String() string {
	return fmt.Sprintf("%s/%s", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Equal reports whether both bounds are the same instants.
func (w Window) Equal(o Window) bool {
	return w.Start.Equal(o.Start) && w.End.Equal(o.End)
}

// UnixRange returns the bounds as epoch seconds, as the registry expects them.
func (w Window) UnixRange() (int64, int64) {
	return w.Start.Unix(), w.End.Unix()
}

// Monthly returns one window per calendar month, oldest first, starting on the
// first day of the month years before now. Each window ends one second before
// the next one starts. The window containing now is clamped to end one second
// before now, so the trailing partial month never looks finished.
func Monthly(years int, now time.Time) []Window {
	now = now.UTC().Truncate(time.Second)
	current := time.Date(now.Year()-years, now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var out []Window
	for current.Before(now) {
		next := nextMonth(current)
		end := next.Add(-time.Second)
		if !next.Before(now) {
			end = now.Add(-time.Second)
		}
		out = append(out, Window{Start: current, End: end})
		current = next
	}
	return out
}

// nextMonth jumps from day 28 far enough to land in the following month and
// truncates to its first day.
func nextMonth(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), 28, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 4)
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}
