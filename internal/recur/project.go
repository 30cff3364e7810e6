package recur

import "pawplan/internal/model"

// ActiveOn reports whether a stored record has an occurrence on the given
// day. A forever-tagged record is active on its anchor date and every day
// after it; any other record is active only on its own date. Time-of-day
// never participates in the comparison.
//
// Both the day view ("what happens today") and the dashboard week strip
// ("does day D have anything") must go through this one predicate so the
// two views can never disagree about recurrence.
func ActiveOn(rec model.EventRecord, day model.Date) bool {
	if rec.Repeat == model.RepeatForever {
		return !day.Before(rec.Date)
	}
	return day == rec.Date
}
