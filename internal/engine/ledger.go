// Package engine implements the pooled-stake settlement core: value
// normalization, fee splitting, the event ledger state machine, proportional
// settlement, and the reward vault. Every external call (contribution,
// resolve, claim) is an atomic transaction: it either fully applies or leaves
// the ledger exactly as it was.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/bmmlabs/momentum/internal/domain"
)

// Policy holds the behavior switches that differ between the two contract
// variants.
type Policy struct {
	// SingleBetPerEvent restricts each contributor to one bet per event
	// (pooled-token variant). Off by default.
	SingleBetPerEvent bool
	// RetainFees keeps fee shares in the vault fee-fund for operator sweep
	// instead of transferring them to the recipients at contribution time.
	RetainFees bool
}

// Ledger owns all event, contribution, and entitlement state. All mutation
// goes through its guarded methods; there is no ambient global state.
type Ledger struct {
	normalizer *Normalizer
	splitter   *FeeSplitter
	vault      *Vault
	access     *AccessControl
	backend    domain.TransferBackend
	recipients domain.FeeRecipients
	policy     Policy
	clock      func() time.Time
	logger     *slog.Logger

	mu     sync.RWMutex // guards events map and id assignment
	events map[uint64]*eventState
	nextID uint64
}

// eventState bundles an event with its contributions and entitlements behind
// one mutex, giving the single-writer transaction boundary per event.
type eventState struct {
	mu            sync.Mutex
	ev            domain.Event
	contributions []domain.Contribution
	entitlements  map[common.Address]*entitlementState
}

// entitlementState guards a single (event, contributor) entitlement so
// concurrent claims by different contributors never block each other.
type entitlementState struct {
	mu  sync.Mutex
	ent domain.Entitlement
}

// LedgerOption customizes a Ledger.
type LedgerOption func(*Ledger)

// WithLedgerClock overrides the clock used for lifecycle derivation.
func WithLedgerClock(clock func() time.Time) LedgerOption {
	return func(l *Ledger) { l.clock = clock }
}

// WithLedgerStartID continues an id sequence: the next created event gets
// last+1. Seeded from the event store's MaxID so a restarted process never
// reissues a persisted id.
func WithLedgerStartID(last uint64) LedgerOption {
	return func(l *Ledger) { l.nextID = last }
}

// NewLedger wires the engine core together. The vault, access control, and
// fee recipients play the roles fixed at contract construction.
func NewLedger(
	normalizer *Normalizer,
	splitter *FeeSplitter,
	vault *Vault,
	access *AccessControl,
	backend domain.TransferBackend,
	recipients domain.FeeRecipients,
	policy Policy,
	logger *slog.Logger,
	opts ...LedgerOption,
) *Ledger {
	l := &Ledger{
		normalizer: normalizer,
		splitter:   splitter,
		vault:      vault,
		access:     access,
		backend:    backend,
		recipients: recipients,
		policy:     policy,
		clock:      time.Now,
		logger:     logger.With(slog.String("component", "ledger")),
		events:     make(map[uint64]*eventState),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Access exposes the ledger's access control for operator management.
func (l *Ledger) Access() *AccessControl {
	return l.access
}

// Vault exposes the reward vault for balance queries.
func (l *Ledger) Vault() *Vault {
	return l.vault
}

// EventParams are the inputs to CreateEvent.
type EventParams struct {
	Name        string
	Location    string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	SideA       common.Address
	SideB       common.Address
}

// CreateEvent registers a new event with a fresh monotonically increasing id.
// Operator only. The betting window must lie fully in the future and the two
// sides must be distinct non-zero identifiers.
func (l *Ledger) CreateEvent(caller common.Address, p EventParams) (domain.Event, error) {
	if err := l.access.RequireOperator(caller); err != nil {
		return domain.Event{}, err
	}

	now := l.clock()
	if !p.StartTime.After(now) || !p.EndTime.After(p.StartTime) {
		return domain.Event{}, fmt.Errorf("engine: window [%s, %s] at %s: %w",
			p.StartTime, p.EndTime, now, domain.ErrInvalidWindow)
	}
	zero := common.Address{}
	if p.SideA == zero || p.SideB == zero || p.SideA == p.SideB {
		return domain.Event{}, fmt.Errorf("engine: sides %s vs %s: %w",
			p.SideA, p.SideB, domain.ErrInvalidSides)
	}

	l.mu.Lock()
	l.nextID++
	ev := domain.Event{
		ID:          l.nextID,
		Name:        p.Name,
		Location:    p.Location,
		Description: p.Description,
		StartTime:   p.StartTime,
		EndTime:     p.EndTime,
		SideA:       p.SideA,
		SideB:       p.SideB,
		PoolA:       new(big.Int),
		PoolB:       new(big.Int),
		CreatedAt:   now,
	}
	l.events[ev.ID] = &eventState{
		ev:           ev,
		entitlements: make(map[common.Address]*entitlementState),
	}
	l.mu.Unlock()

	l.logger.Info("event created",
		slog.Uint64("event_id", ev.ID),
		slog.String("name", ev.Name),
		slog.Time("start", ev.StartTime),
		slog.Time("end", ev.EndTime),
	)
	return copyEvent(ev), nil
}

// ContributionRequest are the inputs to RecordContribution.
type ContributionRequest struct {
	EventID     uint64
	Side        common.Address
	Asset       domain.Asset
	Amount      *big.Int
	Contributor common.Address
}

// RecordContribution validates, normalizes, splits, and applies a bet. All
// validation happens before any mutation; the inbound stake transfer and fee
// routing run inside an undo-capable transaction, so a failed transfer leaves
// the ledger and the vault untouched. On success the chosen side's pool grows
// by the normalized pool share (fees excluded from pool accounting).
func (l *Ledger) RecordContribution(ctx context.Context, req ContributionRequest) (domain.Contribution, error) {
	if err := l.access.requireUnpaused(); err != nil {
		return domain.Contribution{}, err
	}

	es, err := l.eventState(req.EventID)
	if err != nil {
		return domain.Contribution{}, err
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	now := l.clock()
	if state := es.ev.StateAt(now); state != domain.EventStateActive {
		return domain.Contribution{}, fmt.Errorf("engine: event %d is %s: %w",
			req.EventID, state, domain.ErrEventNotActive)
	}
	if !es.ev.HasSide(req.Side) {
		return domain.Contribution{}, fmt.Errorf("engine: side %s on event %d: %w",
			req.Side, req.EventID, domain.ErrInvalidSide)
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return domain.Contribution{}, domain.ErrZeroAmount
	}
	if l.policy.SingleBetPerEvent && es.hasContribution(req.Contributor) {
		return domain.Contribution{}, fmt.Errorf("engine: contributor %s on event %d: %w",
			req.Contributor, req.EventID, domain.ErrDuplicateContribution)
	}

	split := l.splitter.Split(req.Amount)
	normalized, err := l.normalizer.Normalize(ctx, req.Asset, split.Pool)
	if err != nil {
		return domain.Contribution{}, err
	}

	// External calls: stake custody and fee routing. The undo stack reverses
	// completed transfers if a later one fails.
	tx := &txn{}
	vaultAcct := l.vault.Account()
	if err := tx.run(ctx,
		func(ctx context.Context) error {
			if err := l.backend.Transfer(ctx, req.Asset, req.Contributor, vaultAcct, req.Amount); err != nil {
				return fmt.Errorf("engine: stake transfer from %s: %w: %w",
					req.Contributor, domain.ErrTransferFailed, err)
			}
			return nil
		},
		func(ctx context.Context) {
			_ = l.backend.Transfer(ctx, req.Asset, vaultAcct, req.Contributor, req.Amount)
		},
	); err != nil {
		return domain.Contribution{}, err
	}

	if l.policy.RetainFees {
		feeSum := new(big.Int).Add(split.Liquidity, split.Development)
		feeSum.Add(feeSum, split.Community)
		l.vault.creditFees(req.Asset, feeSum)
	} else {
		fees := []struct {
			to     common.Address
			amount *big.Int
		}{
			{l.recipients.Liquidity, split.Liquidity},
			{l.recipients.Development, split.Development},
			{l.recipients.Community, split.Community},
		}
		for _, fee := range fees {
			if fee.amount.Sign() == 0 {
				continue
			}
			to, amount := fee.to, fee.amount
			if err := tx.run(ctx,
				func(ctx context.Context) error {
					if err := l.backend.Transfer(ctx, req.Asset, vaultAcct, to, amount); err != nil {
						return fmt.Errorf("engine: fee transfer to %s: %w: %w",
							to, domain.ErrTransferFailed, err)
					}
					return nil
				},
				func(ctx context.Context) {
					_ = l.backend.Transfer(ctx, req.Asset, to, vaultAcct, amount)
				},
			); err != nil {
				return domain.Contribution{}, err
			}
		}
	}

	// All external calls succeeded; apply ledger mutations. No failure point
	// remains past here.
	contribution := domain.Contribution{
		ID:              uuid.New().String(),
		EventID:         req.EventID,
		Contributor:     req.Contributor,
		Side:            req.Side,
		PaidAsset:       req.Asset,
		PaidAmount:      new(big.Int).Set(req.Amount),
		NormalizedValue: normalized,
		PlacedAt:        now,
	}
	es.contributions = append(es.contributions, contribution)
	if req.Side == es.ev.SideA {
		es.ev.PoolA.Add(es.ev.PoolA, normalized)
	} else {
		es.ev.PoolB.Add(es.ev.PoolB, normalized)
	}
	l.vault.creditPool(normalized)

	l.logger.Debug("contribution recorded",
		slog.Uint64("event_id", req.EventID),
		slog.String("contributor", req.Contributor.Hex()),
		slog.String("side", req.Side.Hex()),
		slog.String("normalized", normalized.String()),
	)
	return copyContribution(contribution), nil
}

// Resolve fixes the winner of an ended event. Operator only; allowed while
// paused. The transition to resolved happens at most once.
func (l *Ledger) Resolve(caller common.Address, eventID uint64, winner common.Address) (domain.Event, error) {
	if err := l.access.RequireOperator(caller); err != nil {
		return domain.Event{}, err
	}

	es, err := l.eventState(eventID)
	if err != nil {
		return domain.Event{}, err
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	if es.ev.Resolved {
		return domain.Event{}, fmt.Errorf("engine: event %d: %w", eventID, domain.ErrAlreadyResolved)
	}
	now := l.clock()
	if !now.After(es.ev.EndTime) {
		return domain.Event{}, fmt.Errorf("engine: event %d ends %s, now %s: %w",
			eventID, es.ev.EndTime, now, domain.ErrNotYetEnded)
	}
	if !es.ev.HasSide(winner) {
		return domain.Event{}, fmt.Errorf("engine: winner %s on event %d: %w",
			winner, eventID, domain.ErrInvalidWinner)
	}

	es.ev.Resolved = true
	es.ev.Winner = winner
	resolvedAt := now
	es.ev.ResolvedAt = &resolvedAt

	l.logger.Info("event resolved",
		slog.Uint64("event_id", eventID),
		slog.String("winner", winner.Hex()),
		slog.String("pool_a", es.ev.PoolA.String()),
		slog.String("pool_b", es.ev.PoolB.String()),
	)
	return copyEvent(es.ev), nil
}

// Snapshot returns a read-only view of an event at the current clock.
func (l *Ledger) Snapshot(eventID uint64) (domain.EventSnapshot, error) {
	es, err := l.eventState(eventID)
	if err != nil {
		return domain.EventSnapshot{}, err
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.ev.Snapshot(l.clock()), nil
}

// Snapshots returns views of every event ordered by id.
func (l *Ledger) Snapshots() []domain.EventSnapshot {
	l.mu.RLock()
	states := make([]*eventState, 0, len(l.events))
	for _, es := range l.events {
		states = append(states, es)
	}
	l.mu.RUnlock()

	now := l.clock()
	out := make([]domain.EventSnapshot, 0, len(states))
	for _, es := range states {
		es.mu.Lock()
		out = append(out, es.ev.Snapshot(now))
		es.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Contributions returns copies of every contribution recorded for an event.
func (l *Ledger) Contributions(eventID uint64) ([]domain.Contribution, error) {
	es, err := l.eventState(eventID)
	if err != nil {
		return nil, err
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	out := make([]domain.Contribution, len(es.contributions))
	for i, c := range es.contributions {
		out[i] = copyContribution(c)
	}
	return out, nil
}

// SweepFees withdraws retained fees from the vault fee-fund. Operator only.
func (l *Ledger) SweepFees(ctx context.Context, caller common.Address, asset domain.Asset, to common.Address, amount *big.Int) error {
	if err := l.access.RequireOperator(caller); err != nil {
		return err
	}
	return l.vault.SweepFees(ctx, asset, to, amount)
}

func (l *Ledger) eventState(id uint64) (*eventState, error) {
	l.mu.RLock()
	es, ok := l.events[id]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: event %d: %w", id, domain.ErrEventNotFound)
	}
	return es, nil
}

func (es *eventState) hasContribution(contributor common.Address) bool {
	for _, c := range es.contributions {
		if c.Contributor == contributor {
			return true
		}
	}
	return false
}

func copyEvent(ev domain.Event) domain.Event {
	out := ev
	out.PoolA = new(big.Int).Set(ev.PoolA)
	out.PoolB = new(big.Int).Set(ev.PoolB)
	if ev.ResolvedAt != nil {
		t := *ev.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}

func copyContribution(c domain.Contribution) domain.Contribution {
	out := c
	out.PaidAmount = new(big.Int).Set(c.PaidAmount)
	out.NormalizedValue = new(big.Int).Set(c.NormalizedValue)
	return out
}
