package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/bmmlabs/momentum/internal/domain"
	"github.com/bmmlabs/momentum/internal/engine"
	"github.com/bmmlabs/momentum/internal/notify"
)

// BettingService handles contribution intake: ledger application, store
// mirroring, pool fan-out, and large-bet alerting.
type BettingService struct {
	ledger        *engine.Ledger
	events        domain.EventStore
	contributions domain.ContributionStore
	bus           domain.SignalBus
	notifier      *notify.Notifier
	audit         domain.AuditStore
	largeBet      *big.Int // normalized value threshold for alerts; nil disables
	logger        *slog.Logger
}

// NewBettingService creates a BettingService. Side channels (stores, bus,
// notifier, audit) may be nil and are then skipped. largeBetThreshold is the
// normalized USD value above which a bet triggers a notification; nil or
// zero disables the alert.
func NewBettingService(
	ledger *engine.Ledger,
	events domain.EventStore,
	contributions domain.ContributionStore,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	audit domain.AuditStore,
	largeBetThreshold *big.Int,
	logger *slog.Logger,
) *BettingService {
	if largeBetThreshold != nil && largeBetThreshold.Sign() <= 0 {
		largeBetThreshold = nil
	}
	return &BettingService{
		ledger:        ledger,
		events:        events,
		contributions: contributions,
		bus:           bus,
		notifier:      notifier,
		audit:         audit,
		largeBet:      largeBetThreshold,
		logger:        logger.With(slog.String("component", "betting_service")),
	}
}

// Place applies a contribution through the ledger. On acceptance the
// contribution and the event's new pool totals are mirrored to the stores
// and the pool update is published for websocket fan-out.
func (s *BettingService) Place(ctx context.Context, req engine.ContributionRequest) (domain.Contribution, error) {
	c, err := s.ledger.RecordContribution(ctx, req)
	if err != nil {
		return domain.Contribution{}, fmt.Errorf("betting_service: place: %w", err)
	}

	if s.contributions != nil {
		if storeErr := s.contributions.Append(ctx, c); storeErr != nil {
			s.logger.ErrorContext(ctx, "contribution store append failed",
				slog.String("contribution_id", c.ID),
				slog.String("error", storeErr.Error()),
			)
		}
	}

	snap, snapErr := s.ledger.Snapshot(c.EventID)
	if snapErr == nil {
		s.mirrorPools(ctx, snap)
		s.publishPools(ctx, snap)
	}

	s.auditLog(ctx, "bet.placed", map[string]any{
		"contribution_id": c.ID,
		"event_id":        c.EventID,
		"contributor":     c.Contributor.Hex(),
		"side":            c.Side.Hex(),
		"asset":           string(c.PaidAsset),
		"paid_amount":     c.PaidAmount.String(),
		"normalized":      c.NormalizedValue.String(),
	})

	if s.notifier != nil && s.largeBet != nil && c.NormalizedValue.Cmp(s.largeBet) >= 0 {
		title := "Large bet"
		msg := fmt.Sprintf("event #%d: %s staked %s %s (value %s)",
			c.EventID, c.Contributor.Hex(), c.PaidAmount.String(), c.PaidAsset, c.NormalizedValue.String())
		if err := s.notifier.Notify(ctx, notify.KindLargeBet, title, msg); err != nil {
			s.logger.WarnContext(ctx, "large bet notification failed", slog.String("error", err.Error()))
		}
	}

	return c, nil
}

// ListByEvent returns an event's accepted contributions.
func (s *BettingService) ListByEvent(ctx context.Context, eventID uint64) ([]domain.Contribution, error) {
	contribs, err := s.ledger.Contributions(eventID)
	if err != nil {
		return nil, fmt.Errorf("betting_service: list event %d: %w", eventID, err)
	}
	return contribs, nil
}

// mirrorPools writes the event's current pool totals through to the store.
func (s *BettingService) mirrorPools(ctx context.Context, snap domain.EventSnapshot) {
	if s.events == nil {
		return
	}
	ev, err := s.events.GetByID(ctx, snap.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "pool mirror read failed",
			slog.Uint64("event_id", snap.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	ev.PoolA = snap.PoolA
	ev.PoolB = snap.PoolB
	if err := s.events.Update(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "pool mirror write failed",
			slog.Uint64("event_id", snap.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BettingService) publishPools(ctx context.Context, snap domain.EventSnapshot) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.PoolUpdate{
		EventID: snap.ID,
		PoolA:   snap.PoolA,
		PoolB:   snap.PoolB,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelPool, payload); err != nil {
		s.logger.WarnContext(ctx, "pool publish failed",
			slog.Uint64("event_id", snap.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BettingService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
