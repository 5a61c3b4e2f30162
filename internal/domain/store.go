package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// EventStore persists event records keyed by id.
type EventStore interface {
	Create(ctx context.Context, ev Event) error
	Update(ctx context.Context, ev Event) error
	GetByID(ctx context.Context, id uint64) (Event, error)
	List(ctx context.Context, opts ListOpts) ([]Event, error)
	ListUnarchivedResolved(ctx context.Context, before time.Time, limit int) ([]Event, error)
	MarkArchived(ctx context.Context, id uint64) error
	Count(ctx context.Context) (int64, error)
	// MaxID returns the largest persisted event id, zero when no events
	// exist. Seeds the ledger's id sequence across restarts.
	MaxID(ctx context.Context) (uint64, error)
}

// ContributionStore persists accepted contributions as an append-only list
// keyed by (event id, contributor).
type ContributionStore interface {
	Append(ctx context.Context, c Contribution) error
	ListByEvent(ctx context.Context, eventID uint64, opts ListOpts) ([]Contribution, error)
	ListByContributor(ctx context.Context, eventID uint64, contributor common.Address) ([]Contribution, error)
	Count(ctx context.Context, eventID uint64) (int64, error)
}

// EntitlementStore persists a single mutable entitlement per
// (event id, contributor); unset until computed at settlement.
type EntitlementStore interface {
	Upsert(ctx context.Context, e Entitlement) error
	Get(ctx context.Context, eventID uint64, contributor common.Address) (Entitlement, error)
	ListByEvent(ctx context.Context, eventID uint64) ([]Entitlement, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of ledger operations.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
