package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bmmlabs/momentum/internal/domain"
)

// EntitlementStore implements domain.EntitlementStore using PostgreSQL.
type EntitlementStore struct {
	pool *pgxpool.Pool
}

// NewEntitlementStore creates a new EntitlementStore backed by the given
// connection pool.
func NewEntitlementStore(pool *pgxpool.Pool) *EntitlementStore {
	return &EntitlementStore{pool: pool}
}

const entitlementCols = `event_id, contributor, amount::text, remaining::text, computed_at, claimed_at`

// Upsert inserts or updates the entitlement for (event, contributor). Amount
// is immutable after first computation; remaining and claimed_at track
// claims.
func (s *EntitlementStore) Upsert(ctx context.Context, e domain.Entitlement) error {
	const query = `
		INSERT INTO entitlements (
			event_id, contributor, amount, remaining, computed_at, claimed_at
		) VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6)
		ON CONFLICT (event_id, contributor) DO UPDATE SET
			remaining  = EXCLUDED.remaining,
			claimed_at = EXCLUDED.claimed_at`

	_, err := s.pool.Exec(ctx, query,
		int64(e.EventID), e.Contributor.Bytes(),
		e.Amount.String(), e.Remaining.String(),
		e.ComputedAt, e.ClaimedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert entitlement %d/%s: %w", e.EventID, e.Contributor.Hex(), err)
	}
	return nil
}

// Get retrieves the entitlement for (event, contributor).
func (s *EntitlementStore) Get(ctx context.Context, eventID uint64, contributor common.Address) (domain.Entitlement, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entitlementCols+` FROM entitlements
		 WHERE event_id = $1 AND contributor = $2`,
		int64(eventID), contributor.Bytes(),
	)
	e, err := scanEntitlement(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Entitlement{}, domain.ErrNotFound
		}
		return domain.Entitlement{}, fmt.Errorf("postgres: get entitlement %d/%s: %w", eventID, contributor.Hex(), err)
	}
	return e, nil
}

// ListByEvent returns all computed entitlements for an event.
func (s *EntitlementStore) ListByEvent(ctx context.Context, eventID uint64) ([]domain.Entitlement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entitlementCols+` FROM entitlements
		 WHERE event_id = $1 ORDER BY computed_at ASC`,
		int64(eventID),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list entitlements for event %d: %w", eventID, err)
	}
	defer rows.Close()

	var ents []domain.Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan entitlement: %w", err)
		}
		ents = append(ents, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list entitlements for event %d: %w", eventID, err)
	}
	return ents, nil
}

func scanEntitlement(row pgx.Row) (domain.Entitlement, error) {
	var (
		e                 domain.Entitlement
		eventID           int64
		contributor       []byte
		amount, remaining string
	)
	err := row.Scan(&eventID, &contributor, &amount, &remaining, &e.ComputedAt, &e.ClaimedAt)
	if err != nil {
		return domain.Entitlement{}, err
	}

	e.EventID = uint64(eventID)
	e.Contributor = common.BytesToAddress(contributor)
	if e.Amount, err = parseBig(amount); err != nil {
		return domain.Entitlement{}, err
	}
	if e.Remaining, err = parseBig(remaining); err != nil {
		return domain.Entitlement{}, err
	}
	return e, nil
}

var _ domain.EntitlementStore = (*EntitlementStore)(nil)
