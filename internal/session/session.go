// Package session manages the lifecycle of one change-feed connection per
// collection per screen visit: open on mount or focus, tear down on
// unmount, never two concurrent feeds for the same collection and owner.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"pawplan/internal/backend"
	appLog "pawplan/internal/log"
	"pawplan/internal/store"
)

// ErrNoOwner is returned when a session is opened without an owner
// identity. The session fails closed: no fetch, no feed, empty snapshot.
var ErrNoOwner = errors.New("session: no owner identity")

// State of one session.
type State int

const (
	// StateClosed: no feed, snapshot discarded.
	StateClosed State = iota
	// StateOpening: fetch and feed handshake in flight, or stuck after a
	// failure until the next refresh.
	StateOpening
	// StateOpen: fetch applied and feed live.
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// Session owns one collection snapshot and the feed that keeps it live.
// The snapshot is owned exclusively by its session; it is seeded by one
// bulk fetch per open and then maintained by feed deliveries and local
// mutations, all funneled through the store's merge.
type Session[T store.Keyed] struct {
	collection string
	owner      string
	svc        backend.Service
	store      *store.Store[T]

	mu     sync.Mutex
	state  State
	sub    backend.Subscription
	cancel context.CancelFunc

	// gen invalidates in-flight fetches and stale feed deliveries after a
	// close or reopen: results carrying an older generation are discarded.
	gen int
}

// New creates a closed session for one (collection, owner) pair.
func New[T store.Keyed](svc backend.Service, collection, owner string, st *store.Store[T]) *Session[T] {
	return &Session[T]{
		collection: collection,
		owner:      owner,
		svc:        svc,
		store:      st,
	}
}

// Store returns the snapshot this session owns.
func (s *Session[T]) Store() *store.Store[T] { return s.store }

// State returns the current lifecycle state.
func (s *Session[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open moves the session to Opening, subscribes the feed, runs the bulk
// fetch, and on success moves to Open. Reopening an already-open session
// consumes the previous feed handle first, so there is never a second
// concurrent feed for the same collection and owner.
//
// On fetch or feed-open failure the session stays in Opening; a later
// Open call is the manual-refresh path out of that state.
func (s *Session[T]) Open(ctx context.Context) error {
	if s.owner == "" {
		appLog.Warn("session open without owner, staying closed", "collection", s.collection)
		return ErrNoOwner
	}

	s.mu.Lock()
	// Close-before-reopen: consume the previous handle and invalidate any
	// in-flight fetch before the new feed exists.
	s.teardownLocked()
	s.state = StateOpening
	s.gen++
	myGen := s.gen

	sessCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	sub, err := s.svc.Subscribe(sessCtx, s.collection, s.owner, &feedHandler[T]{s: s, gen: myGen})
	if err != nil {
		return fmt.Errorf("session %s: open feed: %w", s.collection, err)
	}

	s.mu.Lock()
	if s.gen != myGen {
		// Closed or reopened while the handshake was in flight.
		s.mu.Unlock()
		_ = sub.Close()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()

	raws, err := s.svc.FetchAll(sessCtx, s.collection, s.owner)
	if err != nil {
		return fmt.Errorf("session %s: fetch: %w", s.collection, err)
	}

	items := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if uerr := json.Unmarshal(raw, &v); uerr != nil {
			appLog.Warn("session dropping undecodable fetch item", "collection", s.collection, "err", uerr)
			continue
		}
		items = append(items, v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != myGen {
		// Stale result for a session that has since closed or reopened.
		return nil
	}
	s.store.ApplyFetch(items)
	s.state = StateOpen
	appLog.Info("session open", "collection", s.collection, "owner", s.owner, "items", len(items))
	return nil
}

// Close tears the feed down, cancels any in-flight fetch, and discards the
// snapshot. Idempotent.
func (s *Session[T]) Close() {
	s.mu.Lock()
	s.teardownLocked()
	s.state = StateClosed
	s.mu.Unlock()

	s.store.Clear()
}

// teardownLocked invalidates the current generation and releases the feed
// and fetch resources. Caller holds s.mu.
func (s *Session[T]) teardownLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.sub != nil {
		if err := s.sub.Close(); err != nil {
			appLog.Warn("session feed close failed", "collection", s.collection, "err", err)
		}
		s.sub = nil
	}
}

// ApplyLocal merges an optimistic local mutation into the snapshot. It
// shares the store's merge with feed deliveries, so a local write followed
// by its feed echo collapses to a single entry.
func (s *Session[T]) ApplyLocal(ch store.Change[T]) {
	s.store.Apply(ch)
}

// feedHandler adapts backend feed deliveries for one session generation.
// Deliveries from a superseded feed are dropped.
type feedHandler[T store.Keyed] struct {
	s   *Session[T]
	gen int
}

func (h *feedHandler[T]) OnInsert(doc json.RawMessage) { h.applyDoc(store.OpInsert, doc) }
func (h *feedHandler[T]) OnUpdate(doc json.RawMessage) { h.applyDoc(store.OpUpdate, doc) }

func (h *feedHandler[T]) OnDelete(id string) {
	if !h.current() {
		return
	}
	h.s.store.Apply(store.Deleted[T](id))
}

func (h *feedHandler[T]) applyDoc(op store.Op, doc json.RawMessage) {
	if !h.current() {
		return
	}
	var v T
	if err := json.Unmarshal(doc, &v); err != nil {
		appLog.Warn("session dropping undecodable feed doc", "collection", h.s.collection, "op", op, "err", err)
		return
	}
	h.s.store.Apply(store.Change[T]{Op: op, Value: v})
}

func (h *feedHandler[T]) current() bool {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.gen == h.gen
}
