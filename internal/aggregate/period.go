// Package aggregate is the period-based aggregation engine: pure
// filter/reduce functions over invoice and supplier snapshots.
//
// Nothing here reads storage or the clock. Callers pass snapshots and, where
// a report depends on the current time, an explicit now. Inputs are never
// modified. All calendar arithmetic is done in UTC.
package aggregate

import (
	"fmt"
	"time"

	"bally/internal/core"
)

// Period is an inclusive time window [Start, End] with a display label.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// NewPeriod builds a custom window labelled "YYYY-MM-DD - YYYY-MM-DD".
func NewPeriod(start, end time.Time) Period {
	return Period{
		Start: start,
		End:   end,
		Label: fmt.Sprintf("%s - %s", start.Format(core.DateLayout), end.Format(core.DateLayout)),
	}
}

// Contains reports whether t lies within the window, both ends included.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// MonthPeriod covers the whole calendar month.
func MonthPeriod(year int, month time.Month) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Start: start,
		End:   lastInstant(start.AddDate(0, 1, 0)),
		Label: start.Format("January 2006"),
	}
}

// QuarterPeriod covers quarter q of year: months 3(q-1)+1 through 3(q-1)+3.
// Quarters outside 1..4 roll over into neighbouring years the way time.Date
// normalises months.
func QuarterPeriod(year, quarter int) Period {
	start := time.Date(year, time.Month(3*(quarter-1)+1), 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Start: start,
		End:   lastInstant(start.AddDate(0, 3, 0)),
		Label: fmt.Sprintf("Q%d %d", (int(start.Month())-1)/3+1, start.Year()),
	}
}

// YearPeriod covers January 1st through December 31st.
func YearPeriod(year int) Period {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Start: start,
		End:   lastInstant(start.AddDate(1, 0, 0)),
		Label: fmt.Sprintf("%d", year),
	}
}

// lastInstant returns the nanosecond before next, i.e. the end of the
// previous day.
func lastInstant(next time.Time) time.Time {
	return next.Add(-time.Nanosecond)
}

// trailingMonths returns the first day of each of the n months ending with
// the month of now, oldest first.
func trailingMonths(now time.Time, n int) []time.Time {
	y, m, _ := now.UTC().Date()
	current := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range n {
		out[i] = current.AddDate(0, i-(n-1), 0)
	}
	return out
}

func sameMonth(d core.Date, month time.Time) bool {
	return d.Year() == month.Year() && d.Month() == month.Month()
}
