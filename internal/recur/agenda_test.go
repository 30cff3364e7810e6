package recur

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pawplan/internal/model"
)

func event(id string, date model.Date, clock model.Clock, repeat model.RepeatMode) model.EventRecord {
	return model.EventRecord{
		ID:       id,
		Title:    "event " + id,
		Date:     date,
		Time:     clock,
		Category: model.CategoryOther,
		Repeat:   repeat,
	}
}

func TestActiveOnForever(t *testing.T) {
	rec := event("a", "2025-01-10", "09:00", model.RepeatForever)

	assert.True(t, ActiveOn(rec, "2025-01-10"), "anchor day")
	assert.True(t, ActiveOn(rec, "2025-06-01"), "months later")
	assert.True(t, ActiveOn(rec, "2026-01-01"), "years later")
	assert.False(t, ActiveOn(rec, "2025-01-09"), "day before anchor")
}

func TestActiveOnSingleDay(t *testing.T) {
	for _, repeat := range []model.RepeatMode{model.RepeatNever, model.RepeatDaily, model.RepeatWeekly} {
		rec := event("a", "2025-01-10", "09:00", repeat)

		assert.True(t, ActiveOn(rec, "2025-01-10"), "repeat=%q", repeat)
		assert.False(t, ActiveOn(rec, "2025-01-09"), "repeat=%q", repeat)
		assert.False(t, ActiveOn(rec, "2025-01-11"), "repeat=%q", repeat)
	}
}

func TestGroupByDaySortsByTime(t *testing.T) {
	events := []model.EventRecord{
		event("a", "2025-05-05", "09:00", model.RepeatNever),
		event("b", "2025-05-05", "14:30", model.RepeatNever),
		event("c", "2025-05-05", "08:15", model.RepeatNever),
		event("d", "2025-05-06", "07:00", model.RepeatNever),
	}

	got := GroupByDay(events, "2025-05-05")

	var times []model.Clock
	for _, ev := range got {
		times = append(times, ev.Time)
	}
	assert.Equal(t, []model.Clock{"08:15", "09:00", "14:30"}, times)
}

func TestGroupByDayStableOnTies(t *testing.T) {
	events := []model.EventRecord{
		event("first", "2025-05-05", "09:00", model.RepeatNever),
		event("second", "2025-05-05", "09:00", model.RepeatNever),
		event("third", "2025-05-05", "09:00", model.RepeatNever),
	}

	got := GroupByDay(events, "2025-05-05")

	var ids []string
	for _, ev := range got {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"first", "second", "third"}, ids)
}

func TestGroupByDayIncludesForever(t *testing.T) {
	events := []model.EventRecord{
		event("daily-feed", "2025-01-01", "07:30", model.RepeatForever),
		event("vet", "2025-05-05", "10:00", model.RepeatNever),
	}

	got := GroupByDay(events, "2025-05-05")
	assert.Len(t, got, 2)
	assert.Equal(t, "daily-feed", got[0].ID, "07:30 sorts before 10:00")
}

func TestHasOccurrence(t *testing.T) {
	events := []model.EventRecord{
		event("a", "2025-05-05", "09:00", model.RepeatNever),
	}

	assert.True(t, HasOccurrence(events, "2025-05-05"))
	assert.False(t, HasOccurrence(events, "2025-05-06"))
	assert.False(t, HasOccurrence(nil, "2025-05-05"))
}

func TestWeekStart(t *testing.T) {
	// 2025-05-07 is a Wednesday.
	assert.Equal(t, model.Date("2025-05-05"), WeekStart("2025-05-07", "monday"))
	assert.Equal(t, model.Date("2025-05-04"), WeekStart("2025-05-07", "sunday"))
	// A Monday is its own monday-week start.
	assert.Equal(t, model.Date("2025-05-05"), WeekStart("2025-05-05", "monday"))
	// Unknown values fall back to monday.
	assert.Equal(t, model.Date("2025-05-05"), WeekStart("2025-05-07", "wednesday"))
}
