package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pawplan/internal/backend"
	appLog "pawplan/internal/log"
)

// sendBuffer is the per-subscriber frame queue; a subscriber that falls
// this far behind is dropped rather than allowed to stall broadcasts.
const sendBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed carries no browser credentials; owner scoping is the access
	// boundary, same as the REST endpoints.
	CheckOrigin: func(*http.Request) bool { return true },
}

// subscriber is one live feed connection.
type subscriber struct {
	conn *websocket.Conn
	send chan backend.FeedFrame
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	col, owner, ok := s.lookup(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		appLog.Warn("feed upgrade failed", "collection", col.name, "err", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan backend.FeedFrame, sendBuffer)}
	col.register(owner, sub)
	appLog.Info("feed subscribed", "collection", col.name, "owner", owner)

	go sub.writeLoop()
	// Read loop holds the handler until the peer goes away; inbound frames
	// are ignored, the feed is one-way.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	col.unregister(owner, sub)
	appLog.Info("feed unsubscribed", "collection", col.name, "owner", owner)
}

func (sub *subscriber) writeLoop() {
	for frame := range sub.send {
		if err := sub.conn.WriteJSON(frame); err != nil {
			return
		}
	}
	// Hub closed the channel: say goodbye properly.
	_ = sub.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), writeDeadline())
	_ = sub.conn.Close()
}

func writeDeadline() time.Time {
	return time.Now().Add(time.Second)
}

func (c *collection) register(owner string, sub *subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[owner] == nil {
		c.subs[owner] = make(map[*subscriber]struct{})
	}
	c.subs[owner][sub] = struct{}{}
}

func (c *collection) unregister(owner string, sub *subscriber) {
	c.mu.Lock()
	if _, ok := c.subs[owner][sub]; ok {
		delete(c.subs[owner], sub)
		close(sub.send)
	}
	c.mu.Unlock()
	_ = sub.conn.Close()
}

// broadcast queues the frame for every feed of the mutated owner.
// Subscribers with a full queue are dropped.
func (c *collection) broadcast(owner string, frame backend.FeedFrame) {
	c.mu.Lock()
	var stale []*subscriber
	for sub := range c.subs[owner] {
		select {
		case sub.send <- frame:
		default:
			stale = append(stale, sub)
		}
	}
	for _, sub := range stale {
		delete(c.subs[owner], sub)
		close(sub.send)
	}
	c.mu.Unlock()

	for _, sub := range stale {
		appLog.Warn("dropping slow feed subscriber", "collection", c.name, "owner", owner)
		_ = sub.conn.Close()
	}
}
