package recur

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/teambition/rrule-go"

	"pawplan/internal/model"
)

// Expand turns a validated event skeleton into the concrete records to
// persist, one write per record. It performs no I/O; the caller issues the
// writes and must treat them as independent (partial success is possible).
//
//   - Forever: exactly one record tagged forever, anchored at the start
//     date; it stands for every day from there on.
//   - Never: exactly one untagged record on the start date.
//   - Daily / Weekly: max(1, count) records, dates advancing by one or
//     seven days, time/title/category/location copied verbatim.
func Expand(sk model.EventSkeleton, ownerID string) ([]model.EventRecord, error) {
	if err := sk.Validate(); err != nil {
		return nil, err
	}

	base := model.EventRecord{
		OwnerID:  ownerID,
		Title:    sk.Title,
		Date:     sk.Date,
		Time:     sk.Time,
		Category: sk.Category,
		Location: sk.Location,
	}

	switch sk.Repeat {
	case model.RepeatForever:
		base.Repeat = model.RepeatForever
		return []model.EventRecord{base}, nil

	case model.RepeatNever:
		return []model.EventRecord{base}, nil

	case model.RepeatDaily, model.RepeatWeekly:
		dates, err := seriesDates(sk)
		if err != nil {
			return nil, err
		}
		out := make([]model.EventRecord, 0, len(dates))
		for _, d := range dates {
			rec := base
			rec.Date = d
			rec.Repeat = sk.Repeat
			out = append(out, rec)
		}
		return out, nil
	}

	// Validate has already rejected anything else.
	return nil, fmt.Errorf("expand: unsupported repeat mode %q", string(sk.Repeat))
}

// seriesDates materializes the finite Daily/Weekly date series via an RRULE.
func seriesDates(sk model.EventSkeleton) ([]model.Date, error) {
	start, err := sk.Date.Time()
	if err != nil {
		return nil, err
	}

	freq := rrule.DAILY
	if sk.Repeat == model.RepeatWeekly {
		freq = rrule.WEEKLY
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    freq,
		Count:   clampCount(sk.Count),
		Dtstart: start,
	})
	if err != nil {
		return nil, fmt.Errorf("expand: build rrule: %w", err)
	}

	times := r.All()
	dates := make([]model.Date, 0, len(times))
	for _, t := range times {
		dates = append(dates, model.NewDate(t))
	}
	return dates, nil
}

// clampCount applies the defensive occurrence-count default: anything
// below 1 becomes 1.
func clampCount(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// ParseCount converts raw form input into an occurrence count. Non-numeric
// or sub-1 values fall back to 1 rather than being rejected.
func ParseCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 1
	}
	return clampCount(n)
}
