package window_test

import (
	"testing"
	"time"

	"github.com/DeafMist/decl-radar/backend/internal/window"
	"github.com/stretchr/testify/require"
)

func TestMonthlyContiguousCoverage(t *testing.T) {
	nows := []time.Time{
		time.Date(2025, time.March, 15, 10, 30, 45, 500, time.UTC),
		time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC),
		time.Date(2025, time.January, 1, 0, 0, 1, 0, time.UTC),
		time.Date(2025, time.December, 31, 12, 0, 0, 0, time.FixedZone("EET", 2*3600)),
	}

	for _, now := range nows {
		for _, years := range []int{1, 2, 5} {
			ws := window.Monthly(years, now)
			require.NotEmpty(t, ws)

			utc := now.UTC().Truncate(time.Second)
			wantStart := time.Date(utc.Year()-years, utc.Month(), 1, 0, 0, 0, 0, time.UTC)
			require.Equal(t, wantStart, ws[0].Start, "horizon start for %s/%d", now, years)
			require.Equal(t, utc.Add(-time.Second), ws[len(ws)-1].End, "last window ends before now")

			for i, w := range ws {
				require.False(t, w.End.Before(w.Start), "window %d inverted", i)
				require.Equal(t, 1, w.Start.Day())
				if i > 0 {
					require.Equal(t, ws[i-1].End.Add(time.Second), w.Start, "gap before window %d", i)
				}
			}
			require.Len(t, ws, years*12+1)
		}
	}
}

func TestMonthlyFullMonthBounds(t *testing.T) {
	now := time.Date(2024, time.April, 10, 0, 0, 0, 0, time.UTC)
	ws := window.Monthly(1, now)

	feb := ws[10]
	require.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), feb.Start)
	require.Equal(t, time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC), feb.End)

	dec := ws[8]
	require.Equal(t, time.Date(2023, time.December, 31, 23, 59, 59, 0, time.UTC), dec.End)
}

func TestMonthlyNowOnMonthBoundary(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	ws := window.Monthly(1, now)

	require.Len(t, ws, 12)
	last := ws[len(ws)-1]
	require.Equal(t, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), last.Start)
	require.Equal(t, time.Date(2025, time.May, 31, 23, 59, 59, 0, time.UTC), last.End)
}

func TestMonthlyIsDeterministic(t *testing.T) {
	now := time.Date(2025, time.August, 20, 8, 0, 0, 0, time.UTC)
	a := window.Monthly(2, now)
	b := window.Monthly(2, now)
	require.Equal(t, a, b)
}

func TestWindowUnixRange(t *testing.T) {
	w := window.Window{
		Start: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, time.January, 31, 23, 59, 59, 0, time.UTC),
	}
	start, end := w.UnixRange()
	require.Equal(t, int64(1704067200), start)
	require.Equal(t, int64(1706745599), end)
	require.True(t, w.Equal(w))
}
