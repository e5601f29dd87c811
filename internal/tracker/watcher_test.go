package tracker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/tracker"
)

const watchAddr = domain.Address("0xc2a302cc2f1afd8325627c9d740bd0e56c8e5f2a")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubFetcher serves canned upstream state, mutable between cycles.
type stubFetcher struct {
	mu        sync.Mutex
	fills     []domain.Fill
	orders    []domain.OpenOrder
	fillsErr  error
	ordersErr error
}

func (s *stubFetcher) UserFills(ctx context.Context, addr domain.Address) ([]domain.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fillsErr != nil {
		return nil, s.fillsErr
	}
	return append([]domain.Fill(nil), s.fills...), nil
}

func (s *stubFetcher) OpenOrders(ctx context.Context, addr domain.Address) ([]domain.OpenOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ordersErr != nil {
		return nil, s.ordersErr
	}
	return append([]domain.OpenOrder(nil), s.orders...), nil
}

func (s *stubFetcher) set(fills []domain.Fill, orders []domain.OpenOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fills, s.orders = fills, orders
}

func TestWatcherDedupsFillsAcrossCycles(t *testing.T) {
	f := &stubFetcher{fills: []domain.Fill{
		{Coin: "ETH", Side: "B", Size: 1, Price: 3000, TID: 1, Time: 1700000000000},
		{Coin: "BTC", Side: "A", Size: 2, Price: 60000, TID: 2, Time: 1700000001000},
	}}
	w := tracker.NewWatcher(watchAddr, f, nil, discardLogger())

	events := w.Check(context.Background(), 5)
	require.Len(t, events, 2)

	// Same upstream state: nothing new.
	events = w.Check(context.Background(), 5)
	assert.Empty(t, events)

	// One genuinely new fill.
	f.set(append(f.fills, domain.Fill{Coin: "SOL", Side: "B", Size: 10, Price: 150, TID: 3, Time: 1700000002000}), nil)
	events = w.Check(context.Background(), 5)
	require.Len(t, events, 1)
	assert.Equal(t, "SOL", events[0].Coin)
	assert.Equal(t, domain.ActionBuy, events[0].Action)
}

func TestWatcherOpenOrderDiff(t *testing.T) {
	f := &stubFetcher{orders: []domain.OpenOrder{
		{OID: "1", Coin: "ETH", Side: "B", Size: 5, LimitPrice: 2900, Time: 1700000000000},
		{OID: "2", Coin: "BTC", Side: "A", Size: 1, LimitPrice: 70000, Time: 1700000000000},
	}}
	w := tracker.NewWatcher(watchAddr, f, nil, discardLogger())

	events := w.Check(context.Background(), 5)
	require.Len(t, events, 2)
	assert.Equal(t, domain.ActionBuyLimit, events[0].Action)
	assert.Equal(t, domain.OrderTypeLimitOpen, events[0].OrderType)
	assert.Nil(t, events[0].TxHash)
	assert.Equal(t, 0.0, events[0].Fee)
	assert.InDelta(t, 5*2900.0, events[0].ValueUSD, 1e-9)
	assert.Equal(t, domain.ActionSellLimit, events[1].Action)

	// Order 1 left the book, order 3 is new; only the new one emits.
	f.set(nil, []domain.OpenOrder{
		{OID: "2", Coin: "BTC", Side: "A", Size: 1, LimitPrice: 70000, Time: 1700000000000},
		{OID: "3", Coin: "SOL", Side: "B", Size: 20, LimitPrice: 140, Time: 1700000003000},
	})
	events = w.Check(context.Background(), 5)
	require.Len(t, events, 1)
	assert.Equal(t, "SOL", events[0].Coin)

	// A re-appearing id never re-emits.
	f.set(nil, []domain.OpenOrder{
		{OID: "1", Coin: "ETH", Side: "B", Size: 5, LimitPrice: 2900, Time: 1700000000000},
	})
	events = w.Check(context.Background(), 5)
	assert.Empty(t, events)
}

func TestWatcherFillEventsPrecedeOrderEvents(t *testing.T) {
	f := &stubFetcher{
		fills:  []domain.Fill{{Coin: "ETH", Side: "B", Size: 1, Price: 3000, TID: 1, Time: 1700000000000}},
		orders: []domain.OpenOrder{{OID: "9", Coin: "BTC", Side: "B", Size: 1, LimitPrice: 50000, Time: 1700000000000}},
	}
	w := tracker.NewWatcher(watchAddr, f, nil, discardLogger())

	events := w.Check(context.Background(), 5)
	require.Len(t, events, 2)
	assert.Equal(t, domain.OrderTypeFilled, events[0].OrderType)
	assert.Equal(t, domain.OrderTypeLimitOpen, events[1].OrderType)
}

func TestWatcherHashValidation(t *testing.T) {
	good := "0x" + strings.Repeat("cd", 32)
	zero := "0x" + strings.Repeat("0", 64)
	f := &stubFetcher{fills: []domain.Fill{
		{Coin: "AAA", Side: "B", Size: 1, Price: 10, TID: 1, Hash: good, Time: 1700000000000},
		{Coin: "BBB", Side: "B", Size: 1, Price: 10, TID: 2, Hash: zero, Time: 1700000000000},
		{Coin: "CCC", Side: "B", Size: 1, Price: 10, TID: 3, Hash: "0x1234", Time: 1700000000000},
	}}
	w := tracker.NewWatcher(watchAddr, f, nil, discardLogger())

	events := w.Check(context.Background(), 5)
	require.Len(t, events, 3)

	byCoin := map[string]domain.Event{}
	for _, ev := range events {
		byCoin[ev.Coin] = ev
	}
	require.NotNil(t, byCoin["AAA"].TxHash)
	assert.Equal(t, good, *byCoin["AAA"].TxHash)
	assert.Nil(t, byCoin["BBB"].TxHash)
	assert.Nil(t, byCoin["CCC"].TxHash)
}

func TestWatcherDegradesOnFetchFailure(t *testing.T) {
	f := &stubFetcher{
		fillsErr: errors.New("upstream down"),
		orders:   []domain.OpenOrder{{OID: "1", Coin: "ETH", Side: "B", Size: 1, LimitPrice: 2000, Time: 1700000000000}},
	}
	w := tracker.NewWatcher(watchAddr, f, nil, discardLogger())

	// Fill fetch failure does not block open-order processing.
	events := w.Check(context.Background(), 5)
	require.Len(t, events, 1)
	assert.Equal(t, domain.OrderTypeLimitOpen, events[0].OrderType)

	// Once fills recover they are emitted; the earlier failure did not mark
	// anything seen.
	f.mu.Lock()
	f.fillsErr = nil
	f.fills = []domain.Fill{{Coin: "ETH", Side: "B", Size: 1, Price: 3000, TID: 7, Time: 1700000000000}}
	f.mu.Unlock()
	events = w.Check(context.Background(), 5)
	require.Len(t, events, 1)
	assert.Equal(t, domain.OrderTypeFilled, events[0].OrderType)
}

// seedSeen is an in-memory SeenCache for hydration tests.
type seedSeen struct {
	mu     sync.Mutex
	fills  map[domain.Address][]string
	orders map[domain.Address][]string
}

func newSeedSeen() *seedSeen {
	return &seedSeen{
		fills:  make(map[domain.Address][]string),
		orders: make(map[domain.Address][]string),
	}
}

func (s *seedSeen) AddFillIDs(ctx context.Context, addr domain.Address, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fills[addr] = append(s.fills[addr], ids...)
	return nil
}

func (s *seedSeen) FillIDs(ctx context.Context, addr domain.Address) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fills[addr]...), nil
}

func (s *seedSeen) AddOrderIDs(ctx context.Context, addr domain.Address, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[addr] = append(s.orders[addr], ids...)
	return nil
}

func (s *seedSeen) OrderIDs(ctx context.Context, addr domain.Address) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.orders[addr]...), nil
}

func TestWatcherHydrationSuppressesReplay(t *testing.T) {
	seen := newSeedSeen()
	require.NoError(t, seen.AddFillIDs(context.Background(), watchAddr, []string{watchAddr.String() + "_1"}))

	f := &stubFetcher{fills: []domain.Fill{
		{Coin: "ETH", Side: "B", Size: 1, Price: 3000, TID: 1, Time: 1700000000000},
		{Coin: "BTC", Side: "B", Size: 1, Price: 60000, TID: 2, Time: 1700000001000},
	}}
	w := tracker.NewWatcher(watchAddr, f, seen, discardLogger())
	w.Hydrate(context.Background())

	events := w.Check(context.Background(), 5)
	require.Len(t, events, 1)
	assert.Equal(t, "BTC", events[0].Coin)

	// The new fill id was pushed back to the cache.
	ids, err := seen.FillIDs(context.Background(), watchAddr)
	require.NoError(t, err)
	assert.Contains(t, ids, watchAddr.String()+"_2")
}
