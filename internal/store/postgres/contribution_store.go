package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bmmlabs/momentum/internal/domain"
)

// ContributionStore implements domain.ContributionStore using PostgreSQL.
type ContributionStore struct {
	pool *pgxpool.Pool
}

// NewContributionStore creates a new ContributionStore backed by the given
// connection pool.
func NewContributionStore(pool *pgxpool.Pool) *ContributionStore {
	return &ContributionStore{pool: pool}
}

const contributionCols = `id, event_id, contributor, side,
	paid_asset, paid_amount::text, normalized_value::text, placed_at`

// Append inserts a new contribution row. Contributions are append-only.
func (s *ContributionStore) Append(ctx context.Context, c domain.Contribution) error {
	const query = `
		INSERT INTO contributions (
			id, event_id, contributor, side,
			paid_asset, paid_amount, normalized_value, placed_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8)`

	_, err := s.pool.Exec(ctx, query,
		c.ID, int64(c.EventID), c.Contributor.Bytes(), c.Side.Bytes(),
		string(c.PaidAsset), c.PaidAmount.String(), c.NormalizedValue.String(), c.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append contribution %s: %w", c.ID, err)
	}
	return nil
}

// ListByEvent returns an event's contributions in acceptance order.
func (s *ContributionStore) ListByEvent(ctx context.Context, eventID uint64, opts domain.ListOpts) ([]domain.Contribution, error) {
	query := `SELECT ` + contributionCols + ` FROM contributions WHERE event_id = $1`
	args := []any{int64(eventID)}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND placed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND placed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY placed_at ASC"

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
		return nil, fmt.Errorf("postgres: list contributions for event %d: %w", eventID, err)
	}
	defer rows.Close()

	contribs, err := collectContributions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list contributions for event %d: %w", eventID, err)
	}
	return contribs, nil
}

// ListByContributor returns one contributor's contributions to an event in
// acceptance order.
func (s *ContributionStore) ListByContributor(ctx context.Context, eventID uint64, contributor common.Address) ([]domain.Contribution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contributionCols+` FROM contributions
		 WHERE event_id = $1 AND contributor = $2
		 ORDER BY placed_at ASC`,
		int64(eventID), contributor.Bytes(),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list contributions for %s on event %d: %w", contributor.Hex(), eventID, err)
	}
	defer rows.Close()

	contribs, err := collectContributions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list contributions for %s on event %d: %w", contributor.Hex(), eventID, err)
	}
	return contribs, nil
}

// Count returns the number of contributions accepted for an event.
func (s *ContributionStore) Count(ctx context.Context, eventID uint64) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM contributions WHERE event_id = $1", int64(eventID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count contributions for event %d: %w", eventID, err)
	}
	return count, nil
}

func scanContribution(row pgx.Row) (domain.Contribution, error) {
	var (
		c                 domain.Contribution
		eventID           int64
		contributor, side []byte
		asset             string
		paid, normalized  string
	)
	err := row.Scan(
		&c.ID, &eventID, &contributor, &side,
		&asset, &paid, &normalized, &c.PlacedAt,
	)
	if err != nil {
		return domain.Contribution{}, err
	}

	c.EventID = uint64(eventID)
	c.Contributor = common.BytesToAddress(contributor)
	c.Side = common.BytesToAddress(side)
	c.PaidAsset = domain.Asset(asset)
	if c.PaidAmount, err = parseBig(paid); err != nil {
		return domain.Contribution{}, err
	}
	if c.NormalizedValue, err = parseBig(normalized); err != nil {
		return domain.Contribution{}, err
	}
	return c, nil
}

func collectContributions(rows pgx.Rows) ([]domain.Contribution, error) {
	var contribs []domain.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		contribs = append(contribs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return contribs, nil
}

var _ domain.ContributionStore = (*ContributionStore)(nil)
