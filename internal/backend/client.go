package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	appLog "pawplan/internal/log"
)

const defaultTimeout = 15 * time.Second

// Client talks to the collection service over HTTP, with the change feed
// carried on a WebSocket per subscription.
type Client struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer
}

// NewClient creates a client for the service at baseURL
// (e.g. "http://127.0.0.1:8080").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: defaultTimeout,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultTimeout,
		},
	}
}

func (c *Client) collectionURL(collection, ownerID string) string {
	u := c.baseURL + "/api/collections/" + url.PathEscape(collection)
	if ownerID != "" {
		u += "?owner=" + url.QueryEscape(ownerID)
	}
	return u
}

// FetchAll retrieves every document of one collection for one owner.
func (c *Client) FetchAll(ctx context.Context, collection, ownerID string) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.collectionURL(collection, ownerID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", collection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", collection, resp.StatusCode)
	}

	var body struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("fetch %s: decode response: %w", collection, err)
	}
	return body.Items, nil
}

// Create stores a new document and returns the authoritative stored form,
// including the service-assigned id.
func (c *Client) Create(ctx context.Context, collection, ownerID string, doc json.RawMessage) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.collectionURL(collection, ownerID), bytes.NewReader(doc))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create in %s: %w", collection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("create in %s: unexpected status %d", collection, resp.StatusCode)
	}

	created, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("create in %s: read response: %w", collection, err)
	}
	return created, nil
}

// Update applies a partial document to one record.
func (c *Client) Update(ctx context.Context, collection, id string, patch json.RawMessage) error {
	u := c.baseURL + "/api/collections/" + url.PathEscape(collection) + "/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(patch))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("update %s/%s: unexpected status %d", collection, id, resp.StatusCode)
	}
	return nil
}

// Delete removes one record.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	u := c.baseURL + "/api/collections/" + url.PathEscape(collection) + "/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("delete %s/%s: unexpected status %d", collection, id, resp.StatusCode)
	}
	return nil
}

// Subscribe opens a change-feed WebSocket and dispatches frames to h from
// a single goroutine, so deliveries for one subscription never overlap.
// The feed stays open until the returned Subscription is closed or ctx is
// canceled.
func (c *Client) Subscribe(ctx context.Context, collection, ownerID string, h Handler) (Subscription, error) {
	wsURL, err := c.feedURL(collection, ownerID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	sub := &wsSubscription{conn: conn, done: make(chan struct{})}

	// Close the socket if the caller's context ends first.
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	go sub.readLoop(collection, h)
	return sub, nil
}

func (c *Client) feedURL(collection, ownerID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/collections/" + url.PathEscape(collection) + "/feed"
	q := u.Query()
	q.Set("owner", ownerID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type wsSubscription struct {
	conn *websocket.Conn

	closeOnce sync.Once
	done      chan struct{}
}

// Close tears the feed down. Safe to call more than once; the read loop
// exits as soon as the socket is gone.
func (s *wsSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = s.conn.Close()
	})
	return err
}

func (s *wsSubscription) readLoop(collection string, h Handler) {
	for {
		var frame FeedFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			select {
			case <-s.done:
				// Deliberate teardown.
			default:
				if !errors.Is(err, io.EOF) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					appLog.Warn("feed closed unexpectedly", "collection", collection, "err", err)
				}
			}
			return
		}

		switch frame.Op {
		case FeedOpInsert:
			h.OnInsert(frame.Doc)
		case FeedOpUpdate:
			h.OnUpdate(frame.Doc)
		case FeedOpDelete:
			h.OnDelete(frame.ID)
		default:
			appLog.Warn("feed delivered unknown op", "collection", collection, "op", frame.Op)
		}
	}
}

var _ Service = (*Client)(nil)
