package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bmmlabs/momentum/internal/domain"
	"github.com/bmmlabs/momentum/internal/engine"
	"github.com/bmmlabs/momentum/internal/notify"
)

// claimLockTTL bounds how long a crashed claim request can hold its lock.
const claimLockTTL = 30 * time.Second

// SettlementService handles entitlement queries, claims, and fee sweeps.
// Claims take a distributed per-(event, contributor) lock so two replicas
// never race the same entitlement, on top of the engine's own in-process
// serialization.
type SettlementService struct {
	ledger       *engine.Ledger
	entitlements domain.EntitlementStore
	locks        domain.LockManager
	bus          domain.SignalBus
	notifier     *notify.Notifier
	audit        domain.AuditStore
	logger       *slog.Logger
}

// NewSettlementService creates a SettlementService. locks may be nil in
// single-instance deployments; the other side channels may be nil and are
// then skipped.
func NewSettlementService(
	ledger *engine.Ledger,
	entitlements domain.EntitlementStore,
	locks domain.LockManager,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	audit domain.AuditStore,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		ledger:       ledger,
		entitlements: entitlements,
		locks:        locks,
		bus:          bus,
		notifier:     notifier,
		audit:        audit,
		logger:       logger.With(slog.String("component", "settlement_service")),
	}
}

// Entitlement returns the contributor's computed share of a resolved event.
func (s *SettlementService) Entitlement(ctx context.Context, eventID uint64, contributor common.Address) (domain.Entitlement, error) {
	ent, err := s.ledger.Entitlement(eventID, contributor)
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("settlement_service: entitlement %d/%s: %w", eventID, contributor.Hex(), err)
	}
	s.mirrorEntitlement(ctx, ent)
	return ent, nil
}

// Claim pays out the contributor's full remaining entitlement.
func (s *SettlementService) Claim(ctx context.Context, eventID uint64, contributor common.Address) (*big.Int, error) {
	unlock, err := s.acquireClaimLock(ctx, eventID, contributor)
	if err != nil {
		return nil, err
	}
	defer unlock()

	paid, err := s.ledger.Claim(ctx, eventID, contributor)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: claim %d/%s: %w", eventID, contributor.Hex(), err)
	}

	s.afterPayout(ctx, eventID, contributor, paid, "claim")
	return paid, nil
}

// Withdraw pays out part of the contributor's remaining entitlement.
func (s *SettlementService) Withdraw(ctx context.Context, eventID uint64, contributor common.Address, amount *big.Int) error {
	unlock, err := s.acquireClaimLock(ctx, eventID, contributor)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.ledger.Withdraw(ctx, eventID, contributor, amount); err != nil {
		return fmt.Errorf("settlement_service: withdraw %d/%s: %w", eventID, contributor.Hex(), err)
	}

	s.afterPayout(ctx, eventID, contributor, amount, "withdraw")
	return nil
}

// SweepFees withdraws retained fees from the vault fee-fund. Operator only.
func (s *SettlementService) SweepFees(ctx context.Context, caller common.Address, asset domain.Asset, to common.Address, amount *big.Int) error {
	if err := s.ledger.SweepFees(ctx, caller, asset, to, amount); err != nil {
		return fmt.Errorf("settlement_service: sweep fees: %w", err)
	}
	s.auditLog(ctx, "fees.swept", map[string]any{
		"asset":  string(asset),
		"to":     to.Hex(),
		"amount": amount.String(),
	})
	return nil
}

func (s *SettlementService) acquireClaimLock(ctx context.Context, eventID uint64, contributor common.Address) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	key := fmt.Sprintf("claim:%d:%s", eventID, contributor.Hex())
	unlock, err := s.locks.Acquire(ctx, key, claimLockTTL)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: claim lock %d/%s: %w", eventID, contributor.Hex(), err)
	}
	return unlock, nil
}

// afterPayout mirrors the updated entitlement, publishes the settlement
// signal, audits, and notifies. All best effort.
func (s *SettlementService) afterPayout(ctx context.Context, eventID uint64, contributor common.Address, paid *big.Int, op string) {
	if ent, err := s.ledger.Entitlement(eventID, contributor); err == nil {
		s.mirrorEntitlement(ctx, ent)
	}

	s.publishSettlement(ctx, eventID, contributor, paid)

	s.auditLog(ctx, op+".paid", map[string]any{
		"event_id":    eventID,
		"contributor": contributor.Hex(),
		"amount":      paid.String(),
	})

	if s.notifier != nil {
		title := "Claim paid"
		msg := fmt.Sprintf("event #%d: paid %s to %s", eventID, paid.String(), contributor.Hex())
		if err := s.notifier.Notify(ctx, notify.KindClaimPaid, title, msg); err != nil {
			s.logger.WarnContext(ctx, "claim notification failed", slog.String("error", err.Error()))
		}
	}
}

func (s *SettlementService) mirrorEntitlement(ctx context.Context, ent domain.Entitlement) {
	if s.entitlements == nil {
		return
	}
	if err := s.entitlements.Upsert(ctx, ent); err != nil {
		s.logger.WarnContext(ctx, "entitlement mirror failed",
			slog.Uint64("event_id", ent.EventID),
			slog.String("contributor", ent.Contributor.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

// settlementSignal is the payload published on ch:settlement.
type settlementSignal struct {
	EventID     uint64 `json:"event_id"`
	Contributor string `json:"contributor"`
	Amount      string `json:"amount"`
}

func (s *SettlementService) publishSettlement(ctx context.Context, eventID uint64, contributor common.Address, paid *big.Int) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(settlementSignal{
		EventID:     eventID,
		Contributor: contributor.Hex(),
		Amount:      paid.String(),
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelSettlement, payload); err != nil {
		s.logger.WarnContext(ctx, "settlement publish failed",
			slog.Uint64("event_id", eventID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) auditLog(ctx context.Context, event string, detail map[string]any) {
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
