package server

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"pawplan/internal/backend"
	appLog "pawplan/internal/log"
)

// collection holds one record kind's documents, owner-scoped, plus the
// feed subscribers to notify on every mutation. Documents are stored as
// decoded JSON objects so partial updates can merge field-wise.
type collection struct {
	name string

	mu     sync.Mutex
	order  map[string][]string                 // owner -> ids, insertion order
	docs   map[string]map[string]mapDoc        // owner -> id -> doc
	owners map[string]string                   // id -> owner
	subs   map[string]map[*subscriber]struct{} // owner -> live feeds
}

type mapDoc = map[string]any

func newCollection(name string) *collection {
	return &collection{
		name:   name,
		order:  make(map[string][]string),
		docs:   make(map[string]map[string]mapDoc),
		owners: make(map[string]string),
		subs:   make(map[string]map[*subscriber]struct{}),
	}
}

// list returns the owner's documents in insertion order.
func (c *collection) list(owner string) []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]json.RawMessage, 0, len(c.order[owner]))
	for _, id := range c.order[owner] {
		raw, err := json.Marshal(c.docs[owner][id])
		if err != nil {
			appLog.Error("encode stored doc failed", err, "collection", c.name, "id", id)
			continue
		}
		out = append(out, raw)
	}
	return out
}

// create assigns an id, stamps the owner, stores the document, and
// broadcasts the insert. Returns the authoritative stored form.
func (c *collection) create(owner string, doc mapDoc) (json.RawMessage, error) {
	if doc == nil {
		return nil, fmt.Errorf("empty document")
	}

	id := uuid.NewString()
	doc["id"] = id
	doc["owner_id"] = owner

	c.mu.Lock()
	if c.docs[owner] == nil {
		c.docs[owner] = make(map[string]mapDoc)
	}
	c.docs[owner][id] = doc
	c.order[owner] = append(c.order[owner], id)
	c.owners[id] = owner
	raw, err := json.Marshal(doc)
	c.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("encode stored doc: %w", err)
	}

	c.broadcast(owner, backend.FeedFrame{Op: backend.FeedOpInsert, ID: id, Doc: raw})
	return raw, nil
}

// update shallow-merges the patch's fields into the stored document and
// broadcasts the full post-change value. Returns false for an unknown id.
// The id and owner stamps cannot be patched away.
func (c *collection) update(id string, patch mapDoc) bool {
	c.mu.Lock()
	owner, ok := c.owners[id]
	if !ok {
		c.mu.Unlock()
		return false
	}

	doc := c.docs[owner][id]
	for k, v := range patch {
		if k == "id" || k == "owner_id" {
			continue
		}
		doc[k] = v
	}
	raw, err := json.Marshal(doc)
	c.mu.Unlock()

	if err != nil {
		appLog.Error("encode patched doc failed", err, "collection", c.name, "id", id)
		return true
	}
	c.broadcast(owner, backend.FeedFrame{Op: backend.FeedOpUpdate, ID: id, Doc: raw})
	return true
}

// remove drops the document if present and broadcasts the delete. Removing
// an unknown id is a no-op.
func (c *collection) remove(id string) {
	c.mu.Lock()
	owner, ok := c.owners[id]
	if !ok {
		c.mu.Unlock()
		return
	}

	delete(c.docs[owner], id)
	delete(c.owners, id)
	ids := c.order[owner]
	for i, v := range ids {
		if v == id {
			c.order[owner] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	c.broadcast(owner, backend.FeedFrame{Op: backend.FeedOpDelete, ID: id})
}

// eventDocs returns the raw documents of one owner; the ICS exporter
// decodes them into event records.
func (c *collection) eventDocs(owner string) []json.RawMessage {
	return c.list(owner)
}
