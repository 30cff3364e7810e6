// Package organizer is the facade the presentation layer talks to: it owns
// one subscription session per collection, routes optimistic mutations
// through the backend and the local snapshots, and derives calendar view
// data (day agenda, dashboard week strip) from the live snapshots.
package organizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pawplan/internal/backend"
	appLog "pawplan/internal/log"
	"pawplan/internal/model"
	"pawplan/internal/recur"
	"pawplan/internal/session"
	"pawplan/internal/store"
)

// Organizer holds the per-collection sessions for one owner. The owner
// identity is resolved once at construction and threaded into every
// session and backend call, never re-queried per operation.
type Organizer struct {
	svc   backend.Service
	owner string

	events   *session.Session[model.EventRecord]
	pets     *session.Session[model.Pet]
	shopping *session.Session[model.ShoppingItem]
	expenses *session.Session[model.Expense]

	refresher *refresher
}

// New builds an organizer for one owner. Sessions start closed; call Open.
func New(svc backend.Service, owner string) *Organizer {
	o := &Organizer{
		svc:      svc,
		owner:    owner,
		events:   session.New(svc, backend.CollectionEvents, owner, store.New[model.EventRecord]()),
		pets:     session.New(svc, backend.CollectionPets, owner, store.New[model.Pet]()),
		shopping: session.New(svc, backend.CollectionShopping, owner, store.New[model.ShoppingItem]()),
		expenses: session.New(svc, backend.CollectionExpenses, owner, store.New[model.Expense]()),
	}
	return o
}

// Open opens every collection session. Collections fail independently: a
// failed open leaves that session in Opening (or closed, without an owner)
// and the others untouched. The combined error joins the per-collection
// failures.
func (o *Organizer) Open(ctx context.Context) error {
	var errs []error
	if err := o.events.Open(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := o.pets.Open(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := o.shopping.Open(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := o.expenses.Open(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close tears down every session and the auto-refresh schedule, discarding
// all snapshots.
func (o *Organizer) Close() {
	o.StopAutoRefresh()
	o.events.Close()
	o.pets.Close()
	o.shopping.Close()
	o.expenses.Close()
}

// Events returns the live event snapshot in insertion order.
func (o *Organizer) Events() []model.EventRecord { return o.events.Store().Snapshot() }

// Pets returns the live pet snapshot.
func (o *Organizer) Pets() []model.Pet { return o.pets.Store().Snapshot() }

// ShoppingList returns the live shopping snapshot.
func (o *Organizer) ShoppingList() []model.ShoppingItem { return o.shopping.Store().Snapshot() }

// Expenses returns the live expense snapshot.
func (o *Organizer) Expenses() []model.Expense { return o.expenses.Store().Snapshot() }

// OnEventsChange registers a callback fired after every event snapshot
// mutation; the calendar screen re-derives its view from it.
func (o *Organizer) OnEventsChange(fn func()) { o.events.Store().OnChange(fn) }

// Agenda returns the events active on one day, sorted by time-of-day.
func (o *Organizer) Agenda(day model.Date) []model.EventRecord {
	return recur.GroupByDay(o.Events(), day)
}

// WeekStrip reports, for the week containing day, which of its seven days
// have at least one occurrence. weekStartOn is "monday" or "sunday".
func (o *Organizer) WeekStrip(day model.Date, weekStartOn string) [7]bool {
	events := o.Events()
	start := recur.WeekStart(day, weekStartOn)

	var dots [7]bool
	for i := range dots {
		dots[i] = recur.HasOccurrence(events, start.AddDays(i))
	}
	return dots
}

// CreateEvent validates the skeleton, expands it into its occurrence
// records, and issues one independent write per record, applying each
// success optimistically. If some writes fail the successes stand and the
// returned error is a *PartialBatchError listing the failures.
func (o *Organizer) CreateEvent(ctx context.Context, sk model.EventSkeleton) ([]model.EventRecord, error) {
	recs, err := recur.Expand(sk, o.owner)
	if err != nil {
		return nil, err
	}

	created := make([]model.EventRecord, 0, len(recs))
	var failures []RecordFailure

	for _, rec := range recs {
		doc, merr := json.Marshal(rec)
		if merr != nil {
			failures = append(failures, RecordFailure{Record: rec, Err: merr})
			continue
		}

		stored, cerr := o.svc.Create(ctx, backend.CollectionEvents, o.owner, doc)
		if cerr != nil {
			failures = append(failures, RecordFailure{Record: rec, Err: cerr})
			continue
		}

		var full model.EventRecord
		if uerr := json.Unmarshal(stored, &full); uerr != nil {
			failures = append(failures, RecordFailure{Record: rec, Err: fmt.Errorf("decode created record: %w", uerr)})
			continue
		}

		o.events.ApplyLocal(store.Inserted(full))
		created = append(created, full)
	}

	if len(failures) > 0 {
		appLog.Warn("event batch partially failed",
			"created", len(created), "failed", len(failures), "title", sk.Title)
		return created, &PartialBatchError{Failures: failures}
	}
	return created, nil
}

// EditEvent applies a whitelisted patch to one event: optimistically in
// the snapshot first, then at the backend. A backend rejection is returned
// as a *MutationError but the local change stands; the snapshot converges
// on the next feed event or fetch.
func (o *Organizer) EditEvent(ctx context.Context, id string, patch model.EventPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	cur, ok := o.events.Store().Get(id)
	if !ok {
		return fmt.Errorf("edit event: no record %q in snapshot", id)
	}

	o.events.ApplyLocal(store.Updated(patch.Apply(cur)))

	doc, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("edit event: encode patch: %w", err)
	}
	if err := o.svc.Update(ctx, backend.CollectionEvents, id, doc); err != nil {
		return &MutationError{Collection: backend.CollectionEvents, ID: id, Err: err}
	}
	return nil
}

// DeleteEvent removes one event, optimistically first. A backend rejection
// is returned as a *MutationError without restoring the local entry.
func (o *Organizer) DeleteEvent(ctx context.Context, id string) error {
	o.events.ApplyLocal(store.Deleted[model.EventRecord](id))
	if err := o.svc.Delete(ctx, backend.CollectionEvents, id); err != nil {
		return &MutationError{Collection: backend.CollectionEvents, ID: id, Err: err}
	}
	return nil
}

// AddPet validates and stores a pet profile.
func (o *Organizer) AddPet(ctx context.Context, p model.Pet) (model.Pet, error) {
	if err := p.Validate(); err != nil {
		return model.Pet{}, err
	}
	p.OwnerID = o.owner
	return createRecord(ctx, o.svc, backend.CollectionPets, o.owner, p, o.pets)
}

// RemovePet deletes a pet profile, optimistically first.
func (o *Organizer) RemovePet(ctx context.Context, id string) error {
	o.pets.ApplyLocal(store.Deleted[model.Pet](id))
	if err := o.svc.Delete(ctx, backend.CollectionPets, id); err != nil {
		return &MutationError{Collection: backend.CollectionPets, ID: id, Err: err}
	}
	return nil
}

// AddShoppingItem validates and stores a shopping-list entry.
func (o *Organizer) AddShoppingItem(ctx context.Context, it model.ShoppingItem) (model.ShoppingItem, error) {
	if err := it.Validate(); err != nil {
		return model.ShoppingItem{}, err
	}
	it.OwnerID = o.owner
	return createRecord(ctx, o.svc, backend.CollectionShopping, o.owner, it, o.shopping)
}

// SetBought toggles the bought flag on a shopping-list entry.
func (o *Organizer) SetBought(ctx context.Context, id string, bought bool) error {
	cur, ok := o.shopping.Store().Get(id)
	if !ok {
		return fmt.Errorf("shopping: no item %q in snapshot", id)
	}
	cur.Bought = bought
	o.shopping.ApplyLocal(store.Updated(cur))

	patch, err := json.Marshal(map[string]bool{"bought": bought})
	if err != nil {
		return err
	}
	if err := o.svc.Update(ctx, backend.CollectionShopping, id, patch); err != nil {
		return &MutationError{Collection: backend.CollectionShopping, ID: id, Err: err}
	}
	return nil
}

// RemoveShoppingItem deletes a shopping-list entry, optimistically first.
func (o *Organizer) RemoveShoppingItem(ctx context.Context, id string) error {
	o.shopping.ApplyLocal(store.Deleted[model.ShoppingItem](id))
	if err := o.svc.Delete(ctx, backend.CollectionShopping, id); err != nil {
		return &MutationError{Collection: backend.CollectionShopping, ID: id, Err: err}
	}
	return nil
}

// AddExpense validates and stores an expense.
func (o *Organizer) AddExpense(ctx context.Context, e model.Expense) (model.Expense, error) {
	if err := e.Validate(); err != nil {
		return model.Expense{}, err
	}
	e.OwnerID = o.owner
	return createRecord(ctx, o.svc, backend.CollectionExpenses, o.owner, e, o.expenses)
}

// RemoveExpense deletes an expense, optimistically first.
func (o *Organizer) RemoveExpense(ctx context.Context, id string) error {
	o.expenses.ApplyLocal(store.Deleted[model.Expense](id))
	if err := o.svc.Delete(ctx, backend.CollectionExpenses, id); err != nil {
		return &MutationError{Collection: backend.CollectionExpenses, ID: id, Err: err}
	}
	return nil
}

// ExpenseTotal sums all expenses in the snapshot, in minor currency units.
func (o *Organizer) ExpenseTotal() int64 {
	var total int64
	for _, e := range o.Expenses() {
		total += e.Amount
	}
	return total
}

// createRecord issues one backend create and applies the authoritative
// stored form (carrying the assigned id) optimistically.
func createRecord[T store.Keyed](ctx context.Context, svc backend.Service, collection, owner string, v T, sess *session.Session[T]) (T, error) {
	var zero T

	doc, err := json.Marshal(v)
	if err != nil {
		return zero, err
	}
	stored, err := svc.Create(ctx, collection, owner, doc)
	if err != nil {
		return zero, fmt.Errorf("create in %s: %w", collection, err)
	}

	var full T
	if err := json.Unmarshal(stored, &full); err != nil {
		return zero, fmt.Errorf("decode created %s record: %w", collection, err)
	}
	sess.ApplyLocal(store.Inserted(full))
	return full, nil
}
