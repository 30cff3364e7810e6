package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	ical "github.com/arran4/golang-ical"

	"pawplan/internal/backend"
	appLog "pawplan/internal/log"
	"pawplan/internal/model"
)

// handleCalendarICS renders the owner's event collection as an iCalendar
// feed, so external calendar apps can subscribe to the organizer schedule.
// Forever-tagged records become open-ended daily RRULEs; everything else
// is a plain single-day VEVENT (series members are already expanded rows).
func (s *Server) handleCalendarICS(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner is required", http.StatusBadRequest)
		return
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)

	for _, raw := range s.collections[backend.CollectionEvents].eventDocs(owner) {
		var rec model.EventRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			appLog.Warn("ics export skipping undecodable event", "err", err)
			continue
		}
		if err := addVEvent(cal, rec); err != nil {
			appLog.Warn("ics export skipping event", "id", rec.ID, "err", err)
		}
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(cal.Serialize())); err != nil {
		appLog.Error("ics export write failed", err)
	}
}

func addVEvent(cal *ical.Calendar, rec model.EventRecord) error {
	day, err := rec.Date.Time()
	if err != nil {
		return err
	}
	clock, err := time.Parse(model.ClockLayout, string(rec.Time))
	if err != nil {
		return fmt.Errorf("invalid time %q: %w", string(rec.Time), err)
	}
	start := day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)

	ev := cal.AddEvent(rec.ID + "@pawplan")
	ev.SetDtStampTime(time.Now().UTC())
	ev.SetStartAt(start)
	ev.SetEndAt(start.Add(time.Hour))
	ev.SetSummary(rec.Title)
	if rec.Location != "" {
		ev.SetLocation(rec.Location)
	}
	if rec.Repeat == model.RepeatForever {
		ev.AddRrule("FREQ=DAILY")
	}
	return nil
}
