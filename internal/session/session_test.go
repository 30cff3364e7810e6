package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawplan/internal/backend"
	"pawplan/internal/store"
)

type rec struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (r rec) Key() string { return r.ID }

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

// fakeSub counts closes.
type fakeSub struct {
	mu     sync.Mutex
	closed int
}

func (f *fakeSub) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSub) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeService is a scriptable backend.Service.
type fakeService struct {
	mu         sync.Mutex
	items      []json.RawMessage
	fetchErr   error
	subErr     error
	fetchCalls int
	subs       []*fakeSub
	handlers   []backend.Handler

	// When set, FetchAll blocks until released (for in-flight cancel tests).
	fetchGate chan struct{}
}

func (f *fakeService) FetchAll(ctx context.Context, collection, ownerID string) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.fetchCalls++
	gate := f.fetchGate
	items, err := f.items, f.fetchErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return items, err
}

func (f *fakeService) Subscribe(ctx context.Context, collection, ownerID string, h backend.Handler) (backend.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	sub := &fakeSub{}
	f.subs = append(f.subs, sub)
	f.handlers = append(f.handlers, h)
	return sub, nil
}

func (f *fakeService) Create(ctx context.Context, collection, ownerID string, doc json.RawMessage) (json.RawMessage, error) {
	return doc, nil
}

func (f *fakeService) Update(ctx context.Context, collection, id string, patch json.RawMessage) error {
	return nil
}

func (f *fakeService) Delete(ctx context.Context, collection, id string) error {
	return nil
}

func (f *fakeService) lastHandler() backend.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[len(f.handlers)-1]
}

func newTestSession(svc backend.Service) *Session[rec] {
	return New(svc, "events", "owner-1", store.New[rec]())
}

func TestOpenSeedsSnapshot(t *testing.T) {
	svc := &fakeService{items: []json.RawMessage{
		raw(t, rec{ID: "a", Name: "one"}),
		raw(t, rec{ID: "b", Name: "two"}),
	}}
	s := newTestSession(svc)

	require.NoError(t, s.Open(context.Background()))

	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, []rec{{ID: "a", Name: "one"}, {ID: "b", Name: "two"}}, s.Store().Snapshot())
}

func TestOpenWithoutOwnerFailsClosed(t *testing.T) {
	svc := &fakeService{items: []json.RawMessage{raw(t, rec{ID: "a"})}}
	s := New(svc, "events", "", store.New[rec]())

	err := s.Open(context.Background())

	require.ErrorIs(t, err, ErrNoOwner)
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 0, svc.fetchCalls, "no fetch without an owner")
	assert.Empty(t, s.Store().Snapshot())
}

func TestFetchFailureStaysOpening(t *testing.T) {
	svc := &fakeService{fetchErr: assert.AnError}
	s := newTestSession(svc)

	require.Error(t, s.Open(context.Background()))
	assert.Equal(t, StateOpening, s.State())

	// Manual refresh is the way out of Opening.
	svc.mu.Lock()
	svc.fetchErr = nil
	svc.items = []json.RawMessage{raw(t, rec{ID: "a"})}
	svc.mu.Unlock()

	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, 1, s.Store().Len())
}

func TestFeedOpenFailureStaysOpening(t *testing.T) {
	svc := &fakeService{subErr: assert.AnError}
	s := newTestSession(svc)

	require.Error(t, s.Open(context.Background()))
	assert.Equal(t, StateOpening, s.State())
}

func TestReopenConsumesPreviousFeed(t *testing.T) {
	svc := &fakeService{}
	s := newTestSession(svc)

	require.NoError(t, s.Open(context.Background()))
	require.NoError(t, s.Open(context.Background()))

	require.Len(t, svc.subs, 2)
	assert.Equal(t, 1, svc.subs[0].closeCount(), "first feed closed on reopen")
	assert.Equal(t, 0, svc.subs[1].closeCount(), "second feed still live")
	assert.Equal(t, StateOpen, s.State())
}

func TestCloseTearsDownFeedAndSnapshot(t *testing.T) {
	svc := &fakeService{items: []json.RawMessage{raw(t, rec{ID: "a"})}}
	s := newTestSession(svc)
	require.NoError(t, s.Open(context.Background()))

	s.Close()

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, svc.subs[0].closeCount())
	assert.Empty(t, s.Store().Snapshot(), "snapshot discarded on unmount")

	// Close is idempotent.
	s.Close()
	assert.Equal(t, 1, svc.subs[0].closeCount())
}

func TestCloseDiscardsInFlightFetch(t *testing.T) {
	gate := make(chan struct{})
	svc := &fakeService{
		items:     []json.RawMessage{raw(t, rec{ID: "a"})},
		fetchGate: gate,
	}
	s := newTestSession(svc)

	done := make(chan error, 1)
	go func() {
		done <- s.Open(context.Background())
	}()

	// Wait for the fetch to be in flight, then unmount.
	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.fetchCalls == 1
	}, time.Second, time.Millisecond)

	s.Close()
	close(gate)

	<-done
	assert.Equal(t, StateClosed, s.State())
	assert.Empty(t, s.Store().Snapshot(), "stale fetch result must not be applied")
}

func TestFeedEchoAfterLocalInsertDeduplicates(t *testing.T) {
	svc := &fakeService{}
	s := newTestSession(svc)
	require.NoError(t, s.Open(context.Background()))

	v := rec{ID: "a", Name: "walk"}
	s.ApplyLocal(store.Inserted(v))
	svc.lastHandler().OnInsert(raw(t, v))

	assert.Equal(t, []rec{v}, s.Store().Snapshot(), "single entry after echo")
}

func TestFeedDeliveries(t *testing.T) {
	svc := &fakeService{}
	s := newTestSession(svc)
	require.NoError(t, s.Open(context.Background()))
	h := svc.lastHandler()

	h.OnInsert(raw(t, rec{ID: "a", Name: "one"}))
	h.OnUpdate(raw(t, rec{ID: "a", Name: "renamed"}))
	h.OnUpdate(raw(t, rec{ID: "b", Name: "raced-ahead"}))
	h.OnDelete("missing")

	assert.Equal(t, []rec{{ID: "a", Name: "renamed"}, {ID: "b", Name: "raced-ahead"}}, s.Store().Snapshot())

	h.OnDelete("a")
	assert.Equal(t, []rec{{ID: "b", Name: "raced-ahead"}}, s.Store().Snapshot())
}

func TestStaleFeedDeliveriesDropped(t *testing.T) {
	svc := &fakeService{}
	s := newTestSession(svc)
	require.NoError(t, s.Open(context.Background()))
	old := svc.lastHandler()

	require.NoError(t, s.Open(context.Background()))

	old.OnInsert(raw(t, rec{ID: "ghost"}))
	_, ok := s.Store().Get("ghost")
	assert.False(t, ok, "delivery from a superseded feed must be dropped")
}

func TestUndecodableFeedDocDropped(t *testing.T) {
	svc := &fakeService{}
	s := newTestSession(svc)
	require.NoError(t, s.Open(context.Background()))

	svc.lastHandler().OnInsert(json.RawMessage(`{"id": 12`))
	assert.Equal(t, 0, s.Store().Len())
}
