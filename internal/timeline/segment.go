// ABOUTME: Date segmentation engine inserting day-boundary markers
// ABOUTME: Computes relative day labels (Today/Yesterday/weekday/date)

package timeline

import (
	"math"
	"sort"
	"time"
)

// Segment interleaves day-boundary markers into an ascending entry list: one
// marker per distinct calendar day, inserted immediately before the first
// entry of that day. The marker's timestamp is the start of that day
// (00:00:00 in loc) and its key is "day_" + the ISO date. Day identity is
// (year, day-of-year) in loc, never an elapsed-time threshold, so entries
// two seconds apart across midnight land in different segments. A nil loc
// defaults to time.Local. Empty input yields empty output.
//
// Input is expected to be sorted ascending; if it is not, a stably sorted
// copy is segmented instead and the input is left untouched.
func Segment(entries []Entry, loc *time.Location) []Entry {
	if len(entries) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}

	if !sortedAscending(entries) {
		sorted := make([]Entry, len(entries))
		copy(sorted, entries)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})
		entries = sorted
	}

	out := make([]Entry, 0, len(entries)+1)
	curYear, curDay := -1, -1
	for _, e := range entries {
		t := e.Timestamp.In(loc)
		if y, d := t.Year(), t.YearDay(); y != curYear || d != curDay {
			day := startOfDay(t)
			out = append(out, Entry{
				Kind:      EntryDayMarker,
				Key:       "day_" + day.Format("2006-01-02"),
				Timestamp: day,
			})
			curYear, curDay = y, d
		}
		out = append(out, e)
	}
	return out
}

// DayLabel renders a day marker's human-relative label against now, in
// strict priority order: same calendar day as now -> "Today"; one calendar
// day earlier -> "Yesterday"; two to six days earlier -> weekday name; same
// calendar year -> "January 2"; otherwise "January 2, 2006". Both instants
// are evaluated in day's location.
func DayLabel(day, now time.Time) string {
	loc := day.Location()
	dayStart := startOfDay(day.In(loc))
	nowStart := startOfDay(now.In(loc))

	// Rounding absorbs DST days that are not exactly 24h long.
	diff := int(math.Round(nowStart.Sub(dayStart).Hours() / 24))

	switch {
	case diff == 0:
		return "Today"
	case diff == 1:
		return "Yesterday"
	case diff >= 2 && diff <= 6:
		return dayStart.Weekday().String()
	case dayStart.Year() == nowStart.Year():
		return dayStart.Format("January 2")
	default:
		return dayStart.Format("January 2, 2006")
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sortedAscending(entries []Entry) bool {
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.Before(entries[i-1].Timestamp) {
			return false
		}
	}
	return true
}
