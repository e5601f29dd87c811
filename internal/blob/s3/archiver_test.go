package s3blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

type memStore struct {
	events  []domain.Event
	deleted int64
	listErr error
}

func (m *memStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Event, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Event
	for _, e := range m.events {
		if e.Timestamp.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	var kept []domain.Event
	for _, e := range m.events {
		if !e.Timestamp.Before(before) {
			kept = append(kept, e)
		}
	}
	m.deleted = int64(len(m.events) - len(kept))
	m.events = kept
	return m.deleted, nil
}

type memWriter struct {
	path string
	body string
	err  error
}

func (m *memWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if m.err != nil {
		return m.err
	}
	b, _ := io.ReadAll(data)
	m.path, m.body = path, string(b)
	return nil
}

func (m *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	return m.Put(ctx, path, data, "")
}

func testEvent(id string, ts time.Time) domain.Event {
	return domain.Event{
		ID: id, Timestamp: ts,
		Address:   "0xc2a302cc2f1afd8325627c9d740bd0e56c8e5f2a",
		Action:    domain.ActionBuy,
		Coin:      "ETH",
		Quantity:  1, Price: 3000, ValueUSD: 3000,
		OrderType: domain.OrderTypeFilled, OrderCount: 1,
	}
}

func TestArchiveEventsUploadsThenDeletes(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{events: []domain.Event{
		testEvent("old-1", cutoff.Add(-48*time.Hour)),
		testEvent("old-2", cutoff.Add(-24*time.Hour)),
		testEvent("new-1", cutoff.Add(24*time.Hour)),
	}}
	writer := &memWriter{}
	a := NewEventArchiver(writer, store, 30*24*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := a.ArchiveEvents(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, "archive/events/2026-08.jsonl", writer.path)
	assert.Equal(t, 2, strings.Count(writer.body, "\n"))
	assert.Contains(t, writer.body, `"old-1"`)

	// Only the archived rows were deleted.
	assert.Equal(t, int64(2), store.deleted)
	require.Len(t, store.events, 1)
	assert.Equal(t, "new-1", store.events[0].ID)
}

func TestArchiveEventsNothingToDo(t *testing.T) {
	store := &memStore{}
	writer := &memWriter{}
	a := NewEventArchiver(writer, store, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := a.ArchiveEvents(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.path)
}

func TestArchiveEventsUploadFailureKeepsRows(t *testing.T) {
	cutoff := time.Now().UTC()
	store := &memStore{events: []domain.Event{testEvent("old", cutoff.Add(-time.Hour))}}
	writer := &memWriter{err: errors.New("bucket gone")}
	a := NewEventArchiver(writer, store, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := a.ArchiveEvents(context.Background(), cutoff)
	require.Error(t, err)
	assert.Len(t, store.events, 1)
	assert.Zero(t, store.deleted)
}
