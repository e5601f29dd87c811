package domain

import "context"

// SeenCache persists per-address dedup state across restarts. All methods
// are best-effort from the engine's point of view.
type SeenCache interface {
	AddFillIDs(ctx context.Context, addr Address, ids []string) error
	FillIDs(ctx context.Context, addr Address) ([]string, error)
	AddOrderIDs(ctx context.Context, addr Address, ids []string) error
	OrderIDs(ctx context.Context, addr Address) ([]string, error)
}

// SignalBus provides pub/sub fan-out of engine events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
