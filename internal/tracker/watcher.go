package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// Fetcher retrieves the upstream state for a single address.
type Fetcher interface {
	UserFills(ctx context.Context, addr domain.Address) ([]domain.Fill, error)
	OpenOrders(ctx context.Context, addr domain.Address) ([]domain.OpenOrder, error)
}

// Watcher tracks one address across polling cycles. It owns three pieces of
// state: the monotonically growing sets of seen fill ids and seen open-order
// ids, and the previous cycle's open-order snapshot. A Watcher is driven by
// the orchestrator and is not safe for concurrent Check calls on itself.
type Watcher struct {
	addr    domain.Address
	fetcher Fetcher
	seen    domain.SeenCache // optional
	logger  *slog.Logger

	seenFillIDs      map[string]struct{}
	seenOpenOrderIDs map[string]struct{}
	prevOpenOrderIDs map[string]struct{}
}

// NewWatcher creates a watcher for the address. seen may be nil, in which
// case dedup state lives for the process lifetime only.
func NewWatcher(addr domain.Address, fetcher Fetcher, seen domain.SeenCache, logger *slog.Logger) *Watcher {
	return &Watcher{
		addr:             addr,
		fetcher:          fetcher,
		seen:             seen,
		logger:           logger.With("component", "watcher", "address", addr.Short()),
		seenFillIDs:      make(map[string]struct{}),
		seenOpenOrderIDs: make(map[string]struct{}),
		prevOpenOrderIDs: make(map[string]struct{}),
	}
}

// Address returns the watched address.
func (w *Watcher) Address() domain.Address { return w.addr }

// Hydrate loads previously persisted dedup state so events emitted before a
// restart are not re-emitted. Hydration failures are logged; the watcher
// then starts with empty state, matching the no-cache behavior.
func (w *Watcher) Hydrate(ctx context.Context) {
	if w.seen == nil {
		return
	}
	fillIDs, err := w.seen.FillIDs(ctx, w.addr)
	if err != nil {
		w.logger.Warn("hydrating fill ids failed", "error", err)
		return
	}
	orderIDs, err := w.seen.OrderIDs(ctx, w.addr)
	if err != nil {
		w.logger.Warn("hydrating order ids failed", "error", err)
		return
	}
	for _, id := range fillIDs {
		w.seenFillIDs[id] = struct{}{}
	}
	// prevOpenOrderIDs is deliberately left empty: it is a snapshot, not a
	// history, and most hydrated order ids are long closed.
	for _, id := range orderIDs {
		w.seenOpenOrderIDs[id] = struct{}{}
	}
	if len(fillIDs) > 0 || len(orderIDs) > 0 {
		w.logger.Info("dedup state hydrated",
			"fills", len(fillIDs), "orders", len(orderIDs))
	}
}

// Check runs one polling cycle: fetch fills and open orders concurrently,
// dedup against the seen sets, and return this cycle's events in
// deterministic order (fill-derived events first, then limit-order events).
// A failed fetch degrades to an empty list; Check never returns an error for
// upstream trouble.
func (w *Watcher) Check(ctx context.Context, threshold int) []domain.Event {
	var (
		wg     sync.WaitGroup
		fills  []domain.Fill
		orders []domain.OpenOrder
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer w.recoverFetch("fills")
		var err error
		fills, err = w.fetcher.UserFills(ctx, w.addr)
		if err != nil {
			w.logger.Error("fill fetch failed", "error", err)
			fills = nil
		}
	}()
	go func() {
		defer wg.Done()
		defer w.recoverFetch("open orders")
		var err error
		orders, err = w.fetcher.OpenOrders(ctx, w.addr)
		if err != nil {
			w.logger.Error("open order fetch failed", "error", err)
			orders = nil
		}
	}()
	wg.Wait()

	newFills := w.newFills(ctx, fills)
	events := aggregateFills(w.addr, newFills, threshold)
	events = append(events, w.diffOpenOrders(ctx, orders)...)
	return events
}

// newFills returns fills not seen before, marking them seen.
func (w *Watcher) newFills(ctx context.Context, fills []domain.Fill) []domain.Fill {
	var fresh []domain.Fill
	var freshIDs []string
	for _, f := range fills {
		id := w.fillID(f)
		if _, ok := w.seenFillIDs[id]; ok {
			continue
		}
		w.seenFillIDs[id] = struct{}{}
		fresh = append(fresh, f)
		freshIDs = append(freshIDs, id)
	}
	w.persistSeen(ctx, freshIDs, nil)
	return fresh
}

// diffOpenOrders compares the current open-order set against the previous
// snapshot. Never-seen ids produce limit-open events; ids that disappeared
// since the last cycle were filled or cancelled and are only logged. The
// snapshot is replaced wholesale every cycle.
func (w *Watcher) diffOpenOrders(ctx context.Context, orders []domain.OpenOrder) []domain.Event {
	current := make(map[string]struct{}, len(orders))
	var events []domain.Event
	var freshIDs []string

	for _, o := range orders {
		current[o.OID] = struct{}{}
		if _, ok := w.seenOpenOrderIDs[o.OID]; ok {
			continue
		}
		w.seenOpenOrderIDs[o.OID] = struct{}{}
		freshIDs = append(freshIDs, o.OID)

		action := domain.ActionSellLimit
		if o.IsBuy() {
			action = domain.ActionBuyLimit
		}
		events = append(events, domain.Event{
			ID:         uuid.NewString(),
			Timestamp:  o.Timestamp(),
			Address:    w.addr,
			Action:     action,
			Coin:       o.Coin,
			Quantity:   o.Size,
			Price:      o.LimitPrice,
			ValueUSD:   o.Size * o.LimitPrice,
			OrderType:  domain.OrderTypeLimitOpen,
			OrderCount: 1,
		})
	}

	for oid := range w.prevOpenOrderIDs {
		if _, ok := current[oid]; !ok {
			w.logger.Info("open order left the book", "oid", oid)
		}
	}
	w.prevOpenOrderIDs = current

	w.persistSeen(ctx, nil, freshIDs)
	return events
}

// recoverFetch keeps a panicking fetcher from taking down the process; the
// failed fetch degrades to an empty list like any other fetch error.
func (w *Watcher) recoverFetch(what string) {
	if r := recover(); r != nil {
		w.logger.Error("fetch panicked", "what", what, "panic", fmt.Sprint(r))
	}
}

func (w *Watcher) fillID(f domain.Fill) string {
	return w.addr.String() + "_" + strconv.FormatInt(f.TID, 10)
}

// persistSeen appends newly seen ids to the external dedup cache,
// best-effort.
func (w *Watcher) persistSeen(ctx context.Context, fillIDs, orderIDs []string) {
	if w.seen == nil {
		return
	}
	if len(fillIDs) > 0 {
		if err := w.seen.AddFillIDs(ctx, w.addr, fillIDs); err != nil {
			w.logger.Warn("persisting fill ids failed", "error", err)
		}
	}
	if len(orderIDs) > 0 {
		if err := w.seen.AddOrderIDs(ctx, w.addr, orderIDs); err != nil {
			w.logger.Warn("persisting order ids failed", "error", err)
		}
	}
}
