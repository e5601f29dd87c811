package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventSelectCols = `id, timestamp, address, action, coin, quantity,
	price, value_usd, fee, tx_hash, closed_pnl, order_type, order_count`

func scanEventRows(rows pgx.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var (
			e    domain.Event
			addr string
		)
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &addr, &e.Action, &e.Coin, &e.Quantity,
			&e.Price, &e.ValueUSD, &e.Fee, &e.TxHash, &e.ClosedPnL,
			&e.OrderType, &e.OrderCount,
		); err != nil {
			return nil, err
		}
		e.Address = domain.Address(addr)
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertBatch inserts multiple events efficiently using pgx Batch. Events
// already present (same id) are silently skipped via ON CONFLICT DO NOTHING.
func (s *EventStore) InsertBatch(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO events (
			id, timestamp, address, action, coin, quantity,
			price, value_usd, fee, tx_hash, closed_pnl,
			order_type, order_count
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13
		) ON CONFLICT (id) DO NOTHING`

	for _, e := range events {
		batch.Queue(query,
			e.ID, e.Timestamp, e.Address.String(), e.Action, e.Coin, e.Quantity,
			e.Price, e.ValueUSD, e.Fee, e.TxHash, e.ClosedPnL,
			e.OrderType, e.OrderCount,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert event batch item %d: %w", i, err)
		}
	}
	return nil
}

// GetByID returns a single event, or domain.ErrNotFound.
func (s *EventStore) GetByID(ctx context.Context, id string) (domain.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventSelectCols+` FROM events WHERE id = $1`, id)
	if err != nil {
		return domain.Event{}, fmt.Errorf("postgres: get event: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return domain.Event{}, fmt.Errorf("postgres: scan event: %w", err)
	}
	if len(events) == 0 {
		return domain.Event{}, domain.ErrNotFound
	}
	return events[0], nil
}

// ListRecent returns the newest events with pagination and optional time
// filtering.
func (s *EventStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT ` + eventSelectCols + ` FROM events`
	var args []any
	argIdx := 1
	var conds []string

	if opts.Since != nil {
		conds = append(conds, fmt.Sprintf("timestamp >= $%d", argIdx))
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		conds = append(conds, fmt.Sprintf("timestamp <= $%d", argIdx))
		args = append(args, *opts.Until)
		argIdx++
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	query += " ORDER BY timestamp DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent events: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent events: %w", err)
	}
	return events, nil
}

// ListByAddress returns events for one address with pagination and optional
// time filtering.
func (s *EventStore) ListByAddress(ctx context.Context, addr domain.Address, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT ` + eventSelectCols + ` FROM events WHERE address = $1`
	args := []any{addr.String()}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY timestamp DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events by address: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events by address: %w", err)
	}
	return events, nil
}

// ListBefore returns events with timestamp strictly before the given time,
// oldest first, for archiving.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Event, error) {
	query := `SELECT ` + eventSelectCols + ` FROM events WHERE timestamp < $1 ORDER BY timestamp ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events before: %w", err)
	}
	return events, nil
}

// DeleteBefore deletes events with timestamp strictly before the given time.
// Returns the number deleted.
func (s *EventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of stored events.
func (s *EventStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: count events: %w", err)
	}
	return n, nil
}
