package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// EventsChannel is the signal bus channel engine events are published on.
const EventsChannel = "events"

// Alerter forwards noteworthy events to external notification channels.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Orchestrator owns the watch set and drives polling cycles. Watchers can be
// added and removed concurrently with a running cycle; each cycle operates
// on a snapshot of the watch set taken at cycle start.
type Orchestrator struct {
	fetcher  Fetcher
	settings *Settings
	logger   *slog.Logger

	// Optional collaborators; all best-effort.
	sink     domain.EventStore
	bus      domain.SignalBus
	seen     domain.SeenCache
	alerter  Alerter
	minAlert float64

	mu       sync.RWMutex
	watchers map[domain.Address]*Watcher

	lastCycle   sync.Map // "time" -> time.Time, "events" -> int
	cycleActive sync.Mutex
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

// WithSink stores every emitted event.
func WithSink(s domain.EventStore) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithSignalBus publishes every emitted event as JSON.
func WithSignalBus(b domain.SignalBus) Option {
	return func(o *Orchestrator) { o.bus = b }
}

// WithSeenCache persists dedup state across restarts.
func WithSeenCache(c domain.SeenCache) Option {
	return func(o *Orchestrator) { o.seen = c }
}

// WithAlerter fires notifications for events at or above minValueUSD.
func WithAlerter(a Alerter, minValueUSD float64) Option {
	return func(o *Orchestrator) {
		o.alerter = a
		o.minAlert = minValueUSD
	}
}

// NewOrchestrator creates an orchestrator with an empty watch set.
func NewOrchestrator(fetcher Fetcher, settings *Settings, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:  fetcher,
		settings: settings,
		logger:   logger.With("component", "orchestrator"),
		watchers: make(map[domain.Address]*Watcher),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Add registers an address for tracking. Adding an address that is already
// watched is a no-op. Invalid addresses are rejected. Hydration may hit the
// network, so the watcher is built and hydrated before the watch-set lock is
// taken; concurrent Remove/Watching calls are never held up by a slow cache.
func (o *Orchestrator) Add(ctx context.Context, raw string) error {
	addr := domain.NormalizeAddress(raw)
	if !addr.Valid() {
		return fmt.Errorf("tracker: %w: %q", domain.ErrInvalidAddress, raw)
	}

	o.mu.RLock()
	_, ok := o.watchers[addr]
	o.mu.RUnlock()
	if ok {
		return nil
	}

	w := NewWatcher(addr, o.fetcher, o.seen, o.logger)
	w.Hydrate(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.watchers[addr]; ok {
		// Lost the race to a concurrent Add; the existing watcher wins.
		return nil
	}
	o.watchers[addr] = w
	o.logger.Info("watcher added", "address", addr.Short())
	return nil
}

// Remove drops an address from tracking. Removing an unknown address is a
// no-op.
func (o *Orchestrator) Remove(raw string) {
	addr := domain.NormalizeAddress(raw)

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.watchers[addr]; !ok {
		return
	}
	delete(o.watchers, addr)
	o.logger.Info("watcher removed", "address", addr.Short())
}

// Watching reports whether the address is currently tracked.
func (o *Orchestrator) Watching(raw string) bool {
	addr := domain.NormalizeAddress(raw)
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.watchers[addr]
	return ok
}

// Addresses returns the currently watched addresses.
func (o *Orchestrator) Addresses() []domain.Address {
	o.mu.RLock()
	defer o.mu.RUnlock()
	addrs := make([]domain.Address, 0, len(o.watchers))
	for a := range o.watchers {
		addrs = append(addrs, a)
	}
	return addrs
}

// Settings exposes the shared runtime settings.
func (o *Orchestrator) Settings() *Settings { return o.settings }

// Status summarizes the tracking loop for the admin API.
type Status struct {
	Watchers       int           `json:"watchers"`
	Interval       time.Duration `json:"interval"`
	SpamThreshold  int           `json:"spam_threshold"`
	LastCycleAt    *time.Time    `json:"last_cycle_at,omitempty"`
	LastCycleCount int           `json:"last_cycle_events"`
}

// Status returns a snapshot of the loop state.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	n := len(o.watchers)
	o.mu.RUnlock()

	st := Status{
		Watchers:      n,
		Interval:      o.settings.Interval(),
		SpamThreshold: o.settings.SpamThreshold(),
	}
	if v, ok := o.lastCycle.Load("time"); ok {
		t := v.(time.Time)
		st.LastCycleAt = &t
	}
	if v, ok := o.lastCycle.Load("events"); ok {
		st.LastCycleCount = v.(int)
	}
	return st
}

// CheckAll runs one polling cycle over a snapshot of the watch set. Watchers
// run concurrently; a panicking watcher is logged and contributes no events
// without affecting its siblings. Emitted events are stored, published and
// alerted best-effort, then returned. A panic anywhere in the cycle,
// including a collaborator panicking on the emit path, is caught here so the
// poll loop outlives it; events collected before the panic are still
// returned.
func (o *Orchestrator) CheckAll(ctx context.Context) (events []domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("cycle panicked", "panic", fmt.Sprint(r))
		}
	}()

	o.cycleActive.Lock()
	defer o.cycleActive.Unlock()

	o.mu.RLock()
	snapshot := make([]*Watcher, 0, len(o.watchers))
	for _, w := range o.watchers {
		snapshot = append(snapshot, w)
	}
	o.mu.RUnlock()

	if len(snapshot) == 0 {
		return nil
	}
	threshold := o.settings.SpamThreshold()

	results := make([][]domain.Event, len(snapshot))
	var wg sync.WaitGroup
	for i, w := range snapshot {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("watcher panicked",
						"address", w.Address().Short(), "panic", fmt.Sprint(r))
				}
			}()
			results[i] = w.Check(ctx, threshold)
		}()
	}
	wg.Wait()

	for _, r := range results {
		events = append(events, r...)
	}

	o.lastCycle.Store("time", time.Now().UTC())
	o.lastCycle.Store("events", len(events))

	if len(events) == 0 {
		return nil
	}
	o.emit(ctx, events)
	return events
}

// emit forwards a cycle's events to the sink, signal bus and alerter. All
// three are best-effort; failures are logged and the events are still
// returned to the caller.
func (o *Orchestrator) emit(ctx context.Context, events []domain.Event) {
	if o.sink != nil {
		if err := o.sink.InsertBatch(ctx, events); err != nil {
			o.logger.Error("event sink failed", "error", err, "count", len(events))
		}
	}
	if o.bus != nil {
		for _, ev := range events {
			payload, err := json.Marshal(ev)
			if err != nil {
				o.logger.Error("event marshal failed", "error", err, "id", ev.ID)
				continue
			}
			if err := o.bus.Publish(ctx, EventsChannel, payload); err != nil {
				o.logger.Warn("event publish failed", "error", err, "id", ev.ID)
			}
		}
	}
	if o.alerter != nil {
		o.alert(ctx, events)
	}
}

func (o *Orchestrator) alert(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		switch {
		case ev.OrderType == domain.OrderTypeAggregated:
			title := fmt.Sprintf("Whale summary: %s", ev.Address.Short())
			msg := fmt.Sprintf("%s across %s ($%.2f, %d orders)",
				ev.Action, ev.Coin, ev.ValueUSD, ev.OrderCount)
			if err := o.alerter.Notify(ctx, "whale_summary", title, msg); err != nil {
				o.logger.Warn("summary alert failed", "error", err)
			}
		case ev.ValueUSD >= o.minAlert:
			title := fmt.Sprintf("Whale %s: %s", ev.Action, ev.Coin)
			msg := fmt.Sprintf("%s %s %.4f %s @ $%.4f ($%.2f)",
				ev.Address.Short(), ev.Action, ev.Quantity, ev.Coin, ev.Price, ev.ValueUSD)
			if err := o.alerter.Notify(ctx, "whale_fill", title, msg); err != nil {
				o.logger.Warn("fill alert failed", "error", err)
			}
		}
	}
}

// Run polls until ctx is cancelled: an immediate first cycle, then one cycle
// per interval, re-reading the interval each time so runtime changes take
// effect. Cancellation is observed only between cycles; an in-flight cycle
// always completes.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("tracking loop starting",
		slog.Duration("interval", o.settings.Interval()),
		slog.Int("watchers", len(o.Addresses())),
	)

	for {
		start := time.Now()
		events := o.CheckAll(context.WithoutCancel(ctx))
		o.logger.Debug("cycle completed",
			slog.Duration("elapsed", time.Since(start)),
			slog.Int("events", len(events)),
		)

		timer := time.NewTimer(o.settings.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			o.logger.Info("tracking loop stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}
