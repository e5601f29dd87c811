package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// EventStore persists emitted whale events.
type EventStore interface {
	InsertBatch(ctx context.Context, events []Event) error
	GetByID(ctx context.Context, id string) (Event, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]Event, error)
	ListByAddress(ctx context.Context, addr Address, opts ListOpts) ([]Event, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Event, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}
