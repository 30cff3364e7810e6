// Package backend defines the contract the organizer core requires from a
// collection store: point fetch, point mutation, and a subscribed change
// feed, all scoped to one owner. The HTTP client in this package talks to
// the reference service in internal/server, but anything satisfying
// Service will do.
package backend

import (
	"context"
	"encoding/json"
)

// Collection names the service knows about. The set is closed: each record
// kind has its own collection, discriminated explicitly rather than by
// field presence.
const (
	CollectionEvents   = "events"
	CollectionPets     = "pets"
	CollectionShopping = "shopping"
	CollectionExpenses = "expenses"
)

// KnownCollection reports whether name is one of the defined collections.
func KnownCollection(name string) bool {
	switch name {
	case CollectionEvents, CollectionPets, CollectionShopping, CollectionExpenses:
		return true
	}
	return false
}

// Handler receives change-feed deliveries for one subscription. Calls are
// serialized: a delivery runs to completion before the next one for the
// same collection is dispatched.
type Handler interface {
	OnInsert(doc json.RawMessage)
	OnUpdate(doc json.RawMessage)
	OnDelete(id string)
}

// Subscription is a live feed handle. Close tears the feed down; after
// Close returns no further Handler calls are made.
type Subscription interface {
	Close() error
}

// Service is the backend collection service boundary.
//
// FetchAll is eventually consistent with prior writes by the same owner.
// Create returns the authoritative stored document, including the
// service-assigned id.
type Service interface {
	FetchAll(ctx context.Context, collection, ownerID string) ([]json.RawMessage, error)
	Subscribe(ctx context.Context, collection, ownerID string, h Handler) (Subscription, error)
	Create(ctx context.Context, collection, ownerID string, doc json.RawMessage) (json.RawMessage, error)
	Update(ctx context.Context, collection, id string, patch json.RawMessage) error
	Delete(ctx context.Context, collection, id string) error
}

// Feed frame ops shared by the client and the reference server.
const (
	FeedOpInsert = "insert"
	FeedOpUpdate = "update"
	FeedOpDelete = "delete"
)

// FeedFrame is the wire form of one change-feed delivery.
type FeedFrame struct {
	Op  string          `json:"op"`
	ID  string          `json:"id,omitempty"`
	Doc json.RawMessage `json:"doc,omitempty"`
}
