package model

import (
	"fmt"
	"time"
)

// DateLayout is the canonical wire/storage form of a calendar date.
// Zero-padded, so lexicographic comparison of Date values matches
// chronological order.
const DateLayout = "2006-01-02"

// ClockLayout is the canonical form of a time-of-day, minute granularity.
// Zero-padded HH:MM, so lexicographic comparison matches clock order.
const ClockLayout = "15:04"

// Date is a calendar day in "YYYY-MM-DD" form. Dates carry no timezone:
// all calendar math in this application is whole-day arithmetic in the
// user's local calendar.
type Date string

// NewDate truncates t to its calendar day.
func NewDate(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// Time parses the date at midnight UTC. UTC keeps day arithmetic immune
// to DST transitions.
func (d Date) Time() (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, string(d), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", string(d), err)
	}
	return t, nil
}

// Valid reports whether d is a well-formed calendar date.
func (d Date) Valid() bool {
	_, err := d.Time()
	return err == nil
}

// AddDays returns the date n whole days after d. Invalid dates are
// returned unchanged.
func (d Date) AddDays(n int) Date {
	t, err := d.Time()
	if err != nil {
		return d
	}
	return NewDate(t.AddDate(0, 0, n))
}

// Before reports whether d falls strictly before other. Both values are
// zero-padded, so string comparison is chronological comparison.
func (d Date) Before(other Date) bool { return d < other }

// Clock is a time-of-day in zero-padded "HH:MM" form.
type Clock string

// Valid reports whether c is a well-formed HH:MM value.
func (c Clock) Valid() bool {
	if len(c) != len(ClockLayout) {
		return false
	}
	_, err := time.Parse(ClockLayout, string(c))
	return err == nil
}

// Category is the closed set of event kinds the organizer understands.
type Category string

const (
	CategoryVet        Category = "vet"
	CategoryGrooming   Category = "grooming"
	CategoryTraining   Category = "training"
	CategoryFeeding    Category = "feeding"
	CategoryWalk       Category = "walk"
	CategoryMedication Category = "medication"
	CategoryOther      Category = "other"
)

// Categories lists every valid category, in display order.
func Categories() []Category {
	return []Category{
		CategoryVet,
		CategoryGrooming,
		CategoryTraining,
		CategoryFeeding,
		CategoryWalk,
		CategoryMedication,
		CategoryOther,
	}
}

// Known reports whether c is one of the defined categories.
func (c Category) Known() bool {
	for _, k := range Categories() {
		if c == k {
			return true
		}
	}
	return false
}

// RequiresLocation reports whether events of this category must carry a
// location (appointments at an external venue).
func (c Category) RequiresLocation() bool {
	switch c {
	case CategoryVet, CategoryGrooming, CategoryTraining:
		return true
	default:
		return false
	}
}

// RepeatMode describes how an event definition repeats. The same values
// double as the series tag stored on persisted records: a record tagged
// RepeatForever stands for every day on or after its date, records tagged
// RepeatDaily/RepeatWeekly are concrete members of an expanded series, and
// an untagged record is a plain one-off day.
type RepeatMode string

const (
	RepeatNever   RepeatMode = ""
	RepeatDaily   RepeatMode = "daily"
	RepeatWeekly  RepeatMode = "weekly"
	RepeatForever RepeatMode = "forever"
)

// Keyed is implemented by every persisted record kind; Key returns the
// store-assigned identifier that collection snapshots are keyed by.
type Keyed interface {
	Key() string
}

// EventSkeleton is the transient user input behind a calendar event. It is
// consumed once by recurrence expansion and discarded; it is never stored.
type EventSkeleton struct {
	Title    string
	Location string
	Date     Date
	Time     Clock
	Category Category
	Repeat   RepeatMode

	// Count is the number of occurrences for Daily/Weekly repeats.
	// Ignored for Never and Forever. Values below 1 are treated as 1.
	Count int
}

// Validate checks the skeleton before any expansion or write happens.
// A non-nil result is always a *ValidationError.
func (s EventSkeleton) Validate() error {
	if s.Title == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if !s.Date.Valid() {
		return &ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not a valid YYYY-MM-DD date", string(s.Date))}
	}
	if !s.Time.Valid() {
		return &ValidationError{Field: "time", Reason: fmt.Sprintf("%q is not a valid HH:MM time", string(s.Time))}
	}
	if !s.Category.Known() {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", string(s.Category))}
	}
	if s.Category.RequiresLocation() && s.Location == "" {
		return &ValidationError{Field: "location", Reason: fmt.Sprintf("required for category %q", string(s.Category))}
	}
	switch s.Repeat {
	case RepeatNever, RepeatDaily, RepeatWeekly, RepeatForever:
	default:
		return &ValidationError{Field: "repeat", Reason: fmt.Sprintf("unknown repeat mode %q", string(s.Repeat))}
	}
	return nil
}

// EventRecord is one persisted calendar entry. Records are created by
// recurrence expansion (client side) or arrive from the backend feed; after
// creation only the fields exposed by EventPatch ever change.
type EventRecord struct {
	ID       string     `json:"id"`
	OwnerID  string     `json:"owner_id"`
	Title    string     `json:"title"`
	Date     Date       `json:"date"`
	Time     Clock      `json:"time"`
	Category Category   `json:"category"`
	Location string     `json:"location,omitempty"`
	Repeat   RepeatMode `json:"repeat,omitempty"`
}

func (e EventRecord) Key() string { return e.ID }

// EventPatch is the whitelisted set of editable event fields. Nil fields
// are left untouched; the series tag and owner are deliberately not here.
type EventPatch struct {
	Title    *string   `json:"title,omitempty"`
	Date     *Date     `json:"date,omitempty"`
	Time     *Clock    `json:"time,omitempty"`
	Category *Category `json:"category,omitempty"`
	Location *string   `json:"location,omitempty"`
}

// Apply returns a copy of rec with the patch's non-nil fields replaced.
func (p EventPatch) Apply(rec EventRecord) EventRecord {
	if p.Title != nil {
		rec.Title = *p.Title
	}
	if p.Date != nil {
		rec.Date = *p.Date
	}
	if p.Time != nil {
		rec.Time = *p.Time
	}
	if p.Category != nil {
		rec.Category = *p.Category
	}
	if p.Location != nil {
		rec.Location = *p.Location
	}
	return rec
}

// Validate rejects patches that would put a record into a state the create
// form could never have produced.
func (p EventPatch) Validate() error {
	if p.Title != nil && *p.Title == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if p.Date != nil && !p.Date.Valid() {
		return &ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not a valid YYYY-MM-DD date", string(*p.Date))}
	}
	if p.Time != nil && !p.Time.Valid() {
		return &ValidationError{Field: "time", Reason: fmt.Sprintf("%q is not a valid HH:MM time", string(*p.Time))}
	}
	if p.Category != nil && !p.Category.Known() {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", string(*p.Category))}
	}
	return nil
}

// Pet is the profile of one registered animal.
type Pet struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	Species   string `json:"species"`
	Breed     string `json:"breed,omitempty"`
	BirthDate Date   `json:"birth_date,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

func (p Pet) Key() string { return p.ID }

// Validate checks the fields the pet form requires.
func (p Pet) Validate() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if p.BirthDate != "" && !p.BirthDate.Valid() {
		return &ValidationError{Field: "birth_date", Reason: fmt.Sprintf("%q is not a valid YYYY-MM-DD date", string(p.BirthDate))}
	}
	return nil
}

// ShoppingItem is one entry on the shopping list.
type ShoppingItem struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity,omitempty"`
	Bought   bool   `json:"bought"`
}

func (s ShoppingItem) Key() string { return s.ID }

// Validate checks the fields the shopping form requires.
func (s ShoppingItem) Validate() error {
	if s.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return nil
}

// Expense is one recorded expenditure. Amount is in minor currency units
// (cents) to keep arithmetic exact.
type Expense struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
	Amount  int64  `json:"amount"`
	Date    Date   `json:"date"`
}

func (e Expense) Key() string { return e.ID }

// Validate checks the fields the expense form requires.
func (e Expense) Validate() error {
	if e.Title == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if e.Amount < 0 {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	if !e.Date.Valid() {
		return &ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not a valid YYYY-MM-DD date", string(e.Date))}
	}
	return nil
}
