package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/whalewatch/internal/server"
	"github.com/alanyoungcy/whalewatch/internal/server/handler"
	"github.com/alanyoungcy/whalewatch/internal/server/ws"
	"github.com/alanyoungcy/whalewatch/internal/tracker"
)

// buildEngine constructs the tracking orchestrator with every optional
// collaborator that was wired, then registers the configured addresses.
// An invalid configured address is logged and skipped, never fatal.
func (a *App) buildEngine(ctx context.Context, deps *Dependencies) *tracker.Orchestrator {
	settings := tracker.NewSettings(a.cfg.Tracker.Interval.Duration, a.cfg.Tracker.SpamThreshold)

	var opts []tracker.Option
	if deps.EventStore != nil {
		opts = append(opts, tracker.WithSink(deps.EventStore))
	}
	if deps.SignalBus != nil {
		opts = append(opts, tracker.WithSignalBus(deps.SignalBus))
	}
	if deps.SeenCache != nil {
		opts = append(opts, tracker.WithSeenCache(deps.SeenCache))
	}
	if deps.Notifier != nil {
		opts = append(opts, tracker.WithAlerter(deps.Notifier, a.cfg.Tracker.MinAlertValueUSD))
	}

	engine := tracker.NewOrchestrator(deps.Fetcher, settings, a.logger, opts...)

	for _, addr := range a.cfg.Tracker.Addresses {
		if err := engine.Add(ctx, addr); err != nil {
			a.logger.WarnContext(ctx, "skipping configured address",
				slog.String("address", addr),
				slog.String("error", err.Error()),
			)
		}
	}
	return engine
}

// TrackMode runs the polling loop until the context is cancelled, plus the
// archival loop and HTTP server when configured.
func (a *App) TrackMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting track mode")

	g, ctx := errgroup.WithContext(ctx)
	engine := a.buildEngine(ctx, deps)

	g.Go(func() error {
		return engine.Run(ctx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.RunDaily(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, engine)
	}

	return ignoreCancel(g.Wait())
}

// OnceMode runs a single polling cycle over the configured addresses and
// exits. Useful for cron-style operation and smoke testing.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting once mode")

	engine := a.buildEngine(ctx, deps)
	events := engine.CheckAll(ctx)

	for _, ev := range events {
		a.logger.InfoContext(ctx, "event",
			slog.String("address", ev.Address.Short()),
			slog.String("action", ev.Action),
			slog.String("coin", ev.Coin),
			slog.Float64("quantity", ev.Quantity),
			slog.Float64("value_usd", ev.ValueUSD),
			slog.String("order_type", ev.OrderType),
		)
	}
	a.logger.InfoContext(ctx, "cycle finished", slog.Int("events", len(events)))
	return nil
}

// ServerMode runs the same subsystems as track mode but always starts the
// HTTP server, regardless of the server.enabled flag.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	engine := a.buildEngine(ctx, deps)

	g.Go(func() error {
		return engine.Run(ctx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.RunDaily(ctx)
		})
	}

	a.startHTTPServer(ctx, g, deps, engine)

	return ignoreCancel(g.Wait())
}

// startHTTPServer adds the HTTP server goroutines to the given errgroup. The
// events routes require the database; the WebSocket hub requires the signal
// bus. The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, engine *tracker.Orchestrator) {
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Status:    handler.NewStatusHandler(engine, a.cfg.Mode),
		Watchlist: handler.NewWatchlistHandler(engine, a.logger),
		Settings:  handler.NewSettingsHandler(engine.Settings(), a.logger),
	}
	if deps.EventStore != nil {
		handlers.Events = handler.NewEventsHandler(deps.EventStore, a.logger)
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// ignoreCancel maps a context cancellation into a clean exit.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
