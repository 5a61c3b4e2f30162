package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bmmlabs/momentum/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventCols = `id, name, location, description, start_time, end_time,
	side_a, side_b, pool_a::text, pool_b::text,
	resolved, winner, resolved_at, created_at`

// Create inserts a new event row.
func (s *EventStore) Create(ctx context.Context, ev domain.Event) error {
	const query = `
		INSERT INTO events (
			id, name, location, description, start_time, end_time,
			side_a, side_b, pool_a, pool_b,
			resolved, winner, resolved_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9::numeric, $10::numeric,
			$11, $12, $13, $14, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		int64(ev.ID), ev.Name, ev.Location, ev.Description, ev.StartTime, ev.EndTime,
		ev.SideA.Bytes(), ev.SideB.Bytes(),
		ev.PoolA.String(), ev.PoolB.String(),
		ev.Resolved, winnerBytes(ev), ev.ResolvedAt, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create event %d: %w", ev.ID, err)
	}
	return nil
}

// Update overwrites the mutable columns of an existing event row.
func (s *EventStore) Update(ctx context.Context, ev domain.Event) error {
	const query = `
		UPDATE events SET
			pool_a      = $2::numeric,
			pool_b      = $3::numeric,
			resolved    = $4,
			winner      = $5,
			resolved_at = $6,
			updated_at  = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		int64(ev.ID),
		ev.PoolA.String(), ev.PoolB.String(),
		ev.Resolved, winnerBytes(ev), ev.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update event %d: %w", ev.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

// GetByID retrieves an event by its primary key.
func (s *EventStore) GetByID(ctx context.Context, id uint64) (domain.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventCols+` FROM events WHERE id = $1`, int64(id))
	ev, err := scanEvent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, fmt.Errorf("postgres: get event %d: %w", id, err)
	}
	return ev, nil
}

// List returns events with pagination and optional creation-time filtering,
// newest first.
func (s *EventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT ` + eventCols + ` FROM events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	events, err := collectEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	return events, nil
}

// ListUnarchivedResolved returns resolved events that have not yet been
// archived and whose resolution is older than the given cutoff, oldest first.
func (s *EventStore) ListUnarchivedResolved(ctx context.Context, before time.Time, limit int) ([]domain.Event, error) {
	query := `SELECT ` + eventCols + ` FROM events
		WHERE resolved AND NOT archived AND resolved_at <= $1
		ORDER BY resolved_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unarchived resolved events: %w", err)
	}
	defer rows.Close()

	events, err := collectEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unarchived resolved events: %w", err)
	}
	return events, nil
}

// MarkArchived flags an event as archived after its settlement report has
// been written.
func (s *EventStore) MarkArchived(ctx context.Context, id uint64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE events SET archived = TRUE, updated_at = NOW() WHERE id = $1`, int64(id))
	if err != nil {
		return fmt.Errorf("postgres: mark event %d archived: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

// Count returns the total number of events in the database.
func (s *EventStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM events").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count events: %w", err)
	}
	return count, nil
}

// MaxID returns the largest event id, zero when the table is empty.
func (s *EventStore) MaxID(ctx context.Context) (uint64, error) {
	var max int64
	err := s.pool.QueryRow(ctx, "SELECT COALESCE(MAX(id), 0) FROM events").Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("postgres: max event id: %w", err)
	}
	return uint64(max), nil
}

// winnerBytes returns the winner column value: nil until resolved.
func winnerBytes(ev domain.Event) []byte {
	if !ev.Resolved {
		return nil
	}
	return ev.Winner.Bytes()
}

// scanEvent scans a single event row into a domain.Event.
func scanEvent(row pgx.Row) (domain.Event, error) {
	var (
		ev           domain.Event
		id           int64
		sideA, sideB []byte
		winner       []byte
		poolA, poolB string
	)
	err := row.Scan(
		&id, &ev.Name, &ev.Location, &ev.Description, &ev.StartTime, &ev.EndTime,
		&sideA, &sideB, &poolA, &poolB,
		&ev.Resolved, &winner, &ev.ResolvedAt, &ev.CreatedAt,
	)
	if err != nil {
		return domain.Event{}, err
	}

	ev.ID = uint64(id)
	ev.SideA = common.BytesToAddress(sideA)
	ev.SideB = common.BytesToAddress(sideB)
	if winner != nil {
		ev.Winner = common.BytesToAddress(winner)
	}
	if ev.PoolA, err = parseBig(poolA); err != nil {
		return domain.Event{}, err
	}
	if ev.PoolB, err = parseBig(poolB); err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}

func collectEvents(rows pgx.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

var _ domain.EventStore = (*EventStore)(nil)
