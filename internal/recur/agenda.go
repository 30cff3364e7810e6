package recur

import (
	"sort"
	"time"

	"pawplan/internal/model"
)

// GroupByDay returns the events active on the given day, sorted by
// time-of-day ascending. Times are zero-padded HH:MM strings, so plain
// string comparison orders them; the sort is stable, so records sharing a
// time keep the snapshot's relative order.
func GroupByDay(events []model.EventRecord, day model.Date) []model.EventRecord {
	out := make([]model.EventRecord, 0)
	for _, ev := range events {
		if ActiveOn(ev, day) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time < out[j].Time
	})
	return out
}

// HasOccurrence reports whether any event in the snapshot is active on the
// given day. Backs the dashboard week-strip dot indicator.
func HasOccurrence(events []model.EventRecord, day model.Date) bool {
	for _, ev := range events {
		if ActiveOn(ev, day) {
			return true
		}
	}
	return false
}

// WeekStart returns the first day of the week containing day, where
// startOn is "monday" or "sunday" (anything else is treated as monday,
// matching config normalization).
func WeekStart(day model.Date, startOn string) model.Date {
	t, err := day.Time()
	if err != nil {
		return day
	}
	first := time.Monday
	if startOn == "sunday" {
		first = time.Sunday
	}
	back := (int(t.Weekday()) - int(first) + 7) % 7
	return day.AddDays(-back)
}
