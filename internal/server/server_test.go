package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/server"
	"github.com/alanyoungcy/whalewatch/internal/server/handler"
	"github.com/alanyoungcy/whalewatch/internal/tracker"
)

// fakeEngine implements the watchlist and status interfaces the handlers
// consume, backed by a plain map.
type fakeEngine struct {
	mu    sync.Mutex
	addrs map[domain.Address]bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{addrs: make(map[domain.Address]bool)}
}

func (f *fakeEngine) Add(_ context.Context, raw string) error {
	addr := domain.NormalizeAddress(raw)
	if !addr.Valid() {
		return fmt.Errorf("engine: %w: %q", domain.ErrInvalidAddress, raw)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addrs[addr] = true
	return nil
}

func (f *fakeEngine) Remove(raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.addrs, domain.NormalizeAddress(raw))
}

func (f *fakeEngine) Watching(raw string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addrs[domain.NormalizeAddress(raw)]
}

func (f *fakeEngine) Addresses() []domain.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Address, 0, len(f.addrs))
	for a := range f.addrs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *fakeEngine) Status() tracker.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return tracker.Status{
		Watchers:      len(f.addrs),
		Interval:      60 * time.Second,
		SpamThreshold: 5,
	}
}

// fakeEventSource serves a fixed slice of events.
type fakeEventSource struct {
	events []domain.Event
}

func (f *fakeEventSource) GetByID(_ context.Context, id string) (domain.Event, error) {
	for _, ev := range f.events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return domain.Event{}, domain.ErrNotFound
}

func (f *fakeEventSource) ListRecent(_ context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	if opts.Limit >= len(f.events) {
		return f.events, nil
	}
	return f.events[:opts.Limit], nil
}

func (f *fakeEventSource) ListByAddress(_ context.Context, addr domain.Address, _ domain.ListOpts) ([]domain.Event, error) {
	var out []domain.Event
	for _, ev := range f.events {
		if ev.Address == addr {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEventSource) Count(_ context.Context) (int64, error) {
	return int64(len(f.events)), nil
}

const (
	testAddr  = "0xc2a302cc2f1afd8325627c9d740bd0e56c8e5f2a"
	otherAddr = "0xaaaa02cc2f1afd8325627c9d740bd0e56c8e5f2a"
)

func newTestServer(t *testing.T, engine *fakeEngine, events handler.EventSource, settings *tracker.Settings) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(logger),
		Status:    handler.NewStatusHandler(engine, "track"),
		Watchlist: handler.NewWatchlistHandler(engine, logger),
		Settings:  handler.NewSettingsHandler(settings, logger),
	}
	if events != nil {
		handlers.Events = handler.NewEventsHandler(events, logger)
	}

	srv := server.NewServer(server.Config{Port: 0}, handlers, nil, logger)
	return srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	// Not every response carries JSON (e.g. the mux's own 404 page).
	var decoded map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t, newFakeEngine(), nil, tracker.NewSettings(0, 0))

	rec, body := doJSON(t, h, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	engine := newFakeEngine()
	require.NoError(t, engine.Add(context.Background(), testAddr))
	h := newTestServer(t, engine, nil, tracker.NewSettings(0, 0))

	rec, body := doJSON(t, h, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "track", body["mode"])
	assert.EqualValues(t, 1, body["watchers"])
	assert.EqualValues(t, 60, body["interval_seconds"])
}

func TestWatchlistLifecycle(t *testing.T) {
	engine := newFakeEngine()
	h := newTestServer(t, engine, nil, tracker.NewSettings(0, 0))

	// Add.
	rec, body := doJSON(t, h, http.MethodPost, "/api/watchlist", map[string]string{"address": testAddr})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, testAddr, body["address"])

	// List.
	rec, body = doJSON(t, h, http.MethodGet, "/api/watchlist", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])

	// Remove.
	rec, _ = doJSON(t, h, http.MethodDelete, "/api/watchlist/"+testAddr, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, engine.Watching(testAddr))

	// Removing again is a 404.
	rec, _ = doJSON(t, h, http.MethodDelete, "/api/watchlist/"+testAddr, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWatchlistRejectsInvalidAddress(t *testing.T) {
	h := newTestServer(t, newFakeEngine(), nil, tracker.NewSettings(0, 0))

	rec, body := doJSON(t, h, http.MethodPost, "/api/watchlist", map[string]string{"address": "not-an-address"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid address", body["error"])

	rec, _ = doJSON(t, h, http.MethodPost, "/api/watchlist", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventsEndpoint(t *testing.T) {
	now := time.Now().UTC()
	src := &fakeEventSource{events: []domain.Event{
		{ID: "ev-1", Timestamp: now, Address: testAddr, Action: domain.ActionBuy, Coin: "BTC", Quantity: 1, ValueUSD: 50_000, OrderType: domain.OrderTypeFilled, OrderCount: 1},
		{ID: "ev-2", Timestamp: now, Address: otherAddr, Action: domain.ActionSell, Coin: "ETH", Quantity: 2, ValueUSD: 6_000, OrderType: domain.OrderTypeFilled, OrderCount: 1},
	}}
	h := newTestServer(t, newFakeEngine(), src, tracker.NewSettings(0, 0))

	rec, body := doJSON(t, h, http.MethodGet, "/api/events?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["total"])
	assert.Len(t, body["events"], 1)

	// Address filter.
	rec, body = doJSON(t, h, http.MethodGet, "/api/events?address="+otherAddr, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["events"], 1)

	rec, _ = doJSON(t, h, http.MethodGet, "/api/events?address=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Detail lookup.
	rec, body = doJSON(t, h, http.MethodGet, "/api/events/ev-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BTC", body["coin"])

	rec, _ = doJSON(t, h, http.MethodGet, "/api/events/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsRoutesAbsentWithoutStore(t *testing.T) {
	h := newTestServer(t, newFakeEngine(), nil, tracker.NewSettings(0, 0))

	rec, _ := doJSON(t, h, http.MethodGet, "/api/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettingsEndpoint(t *testing.T) {
	settings := tracker.NewSettings(0, 0)
	h := newTestServer(t, newFakeEngine(), nil, settings)

	rec, body := doJSON(t, h, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 60, body["interval_seconds"])
	assert.EqualValues(t, 5, body["spam_threshold"])

	// Out-of-range values are clamped, not rejected.
	rec, body = doJSON(t, h, http.MethodPut, "/api/settings", map[string]int{
		"interval_seconds": 5,
		"spam_threshold":   100,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 10, body["interval_seconds"])
	assert.EqualValues(t, 20, body["spam_threshold"])
	assert.Equal(t, 10*time.Second, settings.Interval())

	// Empty update is rejected.
	rec, _ = doJSON(t, h, http.MethodPut, "/api/settings", map[string]int{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(logger),
		Status:    handler.NewStatusHandler(newFakeEngine(), "track"),
		Watchlist: handler.NewWatchlistHandler(newFakeEngine(), logger),
		Settings:  handler.NewSettingsHandler(tracker.NewSettings(0, 0), logger),
	}
	srv := server.NewServer(server.Config{
		Port:        0,
		CORSOrigins: []string{"http://localhost:3000"},
	}, handlers, nil, logger)

	req := httptest.NewRequest(http.MethodOptions, "/api/watchlist", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	// Disallowed origin gets no CORS headers.
	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
