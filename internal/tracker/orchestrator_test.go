package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/tracker"
)

const (
	addrA = "0xaaaa02cc2f1afd8325627c9d740bd0e56c8e5f2a"
	addrB = "0xbbbb02cc2f1afd8325627c9d740bd0e56c8e5f2a"
)

// routingFetcher serves different canned state per address and can be told
// to panic for one of them.
type routingFetcher struct {
	mu        sync.Mutex
	fills     map[domain.Address][]domain.Fill
	panicAddr domain.Address
}

func newRoutingFetcher() *routingFetcher {
	return &routingFetcher{fills: make(map[domain.Address][]domain.Fill)}
}

func (r *routingFetcher) UserFills(ctx context.Context, addr domain.Address) ([]domain.Fill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if addr == r.panicAddr {
		panic("fetcher exploded")
	}
	return append([]domain.Fill(nil), r.fills[addr]...), nil
}

func (r *routingFetcher) OpenOrders(ctx context.Context, addr domain.Address) ([]domain.OpenOrder, error) {
	return nil, nil
}

// recordingSink captures InsertBatch calls; other EventStore methods are
// unused by the orchestrator.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (s *recordingSink) InsertBatch(ctx context.Context, events []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) GetByID(ctx context.Context, id string) (domain.Event, error) {
	return domain.Event{}, domain.ErrNotFound
}

func (s *recordingSink) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	return nil, nil
}

func (s *recordingSink) ListByAddress(ctx context.Context, addr domain.Address, opts domain.ListOpts) ([]domain.Event, error) {
	return nil, nil
}

func (s *recordingSink) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Event, error) {
	return nil, nil
}

func (s *recordingSink) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (s *recordingSink) Count(ctx context.Context) (int64, error) { return 0, nil }

type recordingBus struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *recordingBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func TestOrchestratorAddRemoveIdempotent(t *testing.T) {
	o := tracker.NewOrchestrator(newRoutingFetcher(), tracker.NewSettings(0, 0), discardLogger())

	require.NoError(t, o.Add(context.Background(), addrA))
	require.NoError(t, o.Add(context.Background(), addrA))
	require.NoError(t, o.Add(context.Background(), " "+addrA+" "))
	assert.Len(t, o.Addresses(), 1)
	assert.True(t, o.Watching(addrA))

	o.Remove(addrA)
	o.Remove(addrA)
	assert.Empty(t, o.Addresses())
	assert.False(t, o.Watching(addrA))
}

func TestOrchestratorRejectsInvalidAddress(t *testing.T) {
	o := tracker.NewOrchestrator(newRoutingFetcher(), tracker.NewSettings(0, 0), discardLogger())

	err := o.Add(context.Background(), "not-an-address")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
	assert.Empty(t, o.Addresses())
}

func TestOrchestratorMergesWatcherResults(t *testing.T) {
	f := newRoutingFetcher()
	f.fills[domain.NormalizeAddress(addrA)] = []domain.Fill{
		{Coin: "ETH", Side: "B", Size: 1, Price: 3000, TID: 1, Time: 1700000000000},
	}
	f.fills[domain.NormalizeAddress(addrB)] = []domain.Fill{
		{Coin: "BTC", Side: "A", Size: 2, Price: 60000, TID: 2, Time: 1700000001000},
	}

	sink := &recordingSink{}
	bus := &recordingBus{}
	o := tracker.NewOrchestrator(f, tracker.NewSettings(0, 0), discardLogger(),
		tracker.WithSink(sink), tracker.WithSignalBus(bus))

	require.NoError(t, o.Add(context.Background(), addrA))
	require.NoError(t, o.Add(context.Background(), addrB))

	events := o.CheckAll(context.Background())
	require.Len(t, events, 2)
	assert.Len(t, sink.events, 2)
	assert.Len(t, bus.payloads, 2)

	st := o.Status()
	assert.Equal(t, 2, st.Watchers)
	assert.Equal(t, 2, st.LastCycleCount)
	require.NotNil(t, st.LastCycleAt)
}

func TestOrchestratorIsolatesPanickingWatcher(t *testing.T) {
	f := newRoutingFetcher()
	f.panicAddr = domain.NormalizeAddress(addrA)
	f.fills[domain.NormalizeAddress(addrB)] = []domain.Fill{
		{Coin: "BTC", Side: "B", Size: 1, Price: 60000, TID: 9, Time: 1700000000000},
	}

	o := tracker.NewOrchestrator(f, tracker.NewSettings(0, 0), discardLogger())
	require.NoError(t, o.Add(context.Background(), addrA))
	require.NoError(t, o.Add(context.Background(), addrB))

	events := o.CheckAll(context.Background())
	require.Len(t, events, 1)
	assert.Equal(t, "BTC", events[0].Coin)
}

func TestOrchestratorSinkFailureStillReturnsEvents(t *testing.T) {
	f := newRoutingFetcher()
	f.fills[domain.NormalizeAddress(addrA)] = []domain.Fill{
		{Coin: "ETH", Side: "B", Size: 1, Price: 3000, TID: 1, Time: 1700000000000},
	}
	sink := &recordingSink{err: errors.New("db down")}
	o := tracker.NewOrchestrator(f, tracker.NewSettings(0, 0), discardLogger(), tracker.WithSink(sink))
	require.NoError(t, o.Add(context.Background(), addrA))

	events := o.CheckAll(context.Background())
	assert.Len(t, events, 1)
}

// panickingSink blows up inside InsertBatch, like a driver bug would.
type panickingSink struct {
	recordingSink
	calls int
}

func (s *panickingSink) InsertBatch(ctx context.Context, events []domain.Event) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	panic("sink blew up")
}

func TestOrchestratorSurvivesPanickingSink(t *testing.T) {
	f := newRoutingFetcher()
	f.fills[domain.NormalizeAddress(addrA)] = []domain.Fill{
		{Coin: "ETH", Side: "B", Size: 1, Price: 3000, TID: 1, Time: 1700000000000},
	}
	sink := &panickingSink{}
	o := tracker.NewOrchestrator(f, tracker.NewSettings(0, 0), discardLogger(), tracker.WithSink(sink))
	require.NoError(t, o.Add(context.Background(), addrA))

	var events []domain.Event
	require.NotPanics(t, func() { events = o.CheckAll(context.Background()) })
	assert.Len(t, events, 1)

	// The loop keeps cycling after the blow-up.
	f.mu.Lock()
	f.fills[domain.NormalizeAddress(addrA)] = append(f.fills[domain.NormalizeAddress(addrA)],
		domain.Fill{Coin: "BTC", Side: "A", Size: 2, Price: 60000, TID: 2, Time: 1700000001000})
	f.mu.Unlock()

	require.NotPanics(t, func() { events = o.CheckAll(context.Background()) })
	require.Len(t, events, 1)
	assert.Equal(t, "BTC", events[0].Coin)
	assert.Equal(t, 2, sink.calls)
}

// blockingSeenCache parks hydration reads until released.
type blockingSeenCache struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *blockingSeenCache) FillIDs(ctx context.Context, addr domain.Address) ([]string, error) {
	c.once.Do(func() { close(c.started) })
	<-c.release
	return nil, nil
}

func (c *blockingSeenCache) OrderIDs(ctx context.Context, addr domain.Address) ([]string, error) {
	return nil, nil
}

func (c *blockingSeenCache) AddFillIDs(ctx context.Context, addr domain.Address, ids []string) error {
	return nil
}

func (c *blockingSeenCache) AddOrderIDs(ctx context.Context, addr domain.Address, ids []string) error {
	return nil
}

func TestAddHydratesOutsideWatchSetLock(t *testing.T) {
	cache := &blockingSeenCache{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	o := tracker.NewOrchestrator(newRoutingFetcher(), tracker.NewSettings(0, 0), discardLogger(),
		tracker.WithSeenCache(cache))

	addDone := make(chan error, 1)
	go func() { addDone <- o.Add(context.Background(), addrA) }()
	<-cache.started

	// Hydration is in flight; reads of the watch set must not block on it.
	probe := make(chan bool, 1)
	go func() { probe <- o.Watching(addrA) }()
	select {
	case watching := <-probe:
		assert.False(t, watching)
	case <-time.After(time.Second):
		t.Fatal("Watching blocked while hydration was in flight")
	}
	o.Remove(addrB)

	close(cache.release)
	require.NoError(t, <-addDone)
	assert.True(t, o.Watching(addrA))
}

func TestOrchestratorRunStopsOnCancel(t *testing.T) {
	o := tracker.NewOrchestrator(newRoutingFetcher(), tracker.NewSettings(0, 0), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop after cancel")
	}
}
