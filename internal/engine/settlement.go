package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bmmlabs/momentum/internal/domain"
)

// ComputeEntitlement returns a contributor's share of a resolved event's total
// pool: (winning-side sum * totalPool) / winningPool with floor division. The
// rounding direction means a contributor can be short by at most one
// indivisible unit, which guarantees the sum of all entitlements never
// exceeds the total pool. The first call memoizes the result; later calls and
// claims read the stored entitlement.
func (l *Ledger) ComputeEntitlement(eventID uint64, contributor common.Address) (*big.Int, error) {
	ent, err := l.entitlementState(eventID, contributor)
	if err != nil {
		return nil, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return new(big.Int).Set(ent.ent.Amount), nil
}

// Entitlement returns a copy of the stored entitlement record, computing it
// first if needed.
func (l *Ledger) Entitlement(eventID uint64, contributor common.Address) (domain.Entitlement, error) {
	ent, err := l.entitlementState(eventID, contributor)
	if err != nil {
		return domain.Entitlement{}, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return copyEntitlement(ent.ent), nil
}

// Claim pays out the contributor's full remaining entitlement exactly once.
// The remaining balance is zeroed before the vault transfer (effects before
// interactions); if the transfer fails, the zeroing is rolled back so no value
// is silently forfeited. A second claim fails with domain.ErrNothingToClaim.
func (l *Ledger) Claim(ctx context.Context, eventID uint64, contributor common.Address) (*big.Int, error) {
	ent, err := l.entitlementState(eventID, contributor)
	if err != nil {
		return nil, err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.ent.Remaining.Sign() == 0 {
		return nil, fmt.Errorf("engine: event %d contributor %s: %w",
			eventID, contributor, domain.ErrNothingToClaim)
	}

	amount := ent.ent.Remaining
	ent.ent.Remaining = new(big.Int)

	if err := l.vault.payOut(ctx, contributor, amount); err != nil {
		ent.ent.Remaining = amount
		return nil, err
	}

	now := l.clock()
	ent.ent.ClaimedAt = &now

	l.logger.Info("entitlement claimed",
		slog.Uint64("event_id", eventID),
		slog.String("contributor", contributor.Hex()),
		slog.String("amount", amount.String()),
	)
	return new(big.Int).Set(amount), nil
}

// Withdraw pays out part of a contributor's entitlement. The amount must not
// exceed the remaining entitlement or the vault balance; the decrement and the
// transfer apply atomically.
func (l *Ledger) Withdraw(ctx context.Context, eventID uint64, contributor common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrZeroAmount
	}

	ent, err := l.entitlementState(eventID, contributor)
	if err != nil {
		return err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.ent.Remaining.Sign() == 0 {
		return fmt.Errorf("engine: event %d contributor %s: %w",
			eventID, contributor, domain.ErrNothingToClaim)
	}
	if amount.Cmp(ent.ent.Remaining) > 0 {
		return fmt.Errorf("engine: withdraw %s exceeds remaining entitlement %s: %w",
			amount, ent.ent.Remaining, domain.ErrNothingToClaim)
	}

	remaining := new(big.Int).Sub(ent.ent.Remaining, amount)
	prev := ent.ent.Remaining
	ent.ent.Remaining = remaining

	if err := l.vault.payOut(ctx, contributor, amount); err != nil {
		ent.ent.Remaining = prev
		return err
	}

	if remaining.Sign() == 0 {
		now := l.clock()
		ent.ent.ClaimedAt = &now
	}
	return nil
}

// entitlementState fetches (computing and memoizing on first use) the guarded
// entitlement for (eventID, contributor).
func (l *Ledger) entitlementState(eventID uint64, contributor common.Address) (*entitlementState, error) {
	es, err := l.eventState(eventID)
	if err != nil {
		return nil, err
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.ev.Resolved {
		return nil, fmt.Errorf("engine: event %d not resolved: %w", eventID, domain.ErrNotYetEnded)
	}
	if ent, ok := es.entitlements[contributor]; ok {
		return ent, nil
	}

	winningSum := new(big.Int)
	for _, c := range es.contributions {
		if c.Contributor == contributor && c.Side == es.ev.Winner {
			winningSum.Add(winningSum, c.NormalizedValue)
		}
	}
	if winningSum.Sign() == 0 {
		return nil, fmt.Errorf("engine: event %d contributor %s: %w",
			eventID, contributor, domain.ErrNoWinningContribution)
	}

	winningPool := es.ev.PoolA
	if es.ev.Winner == es.ev.SideB {
		winningPool = es.ev.PoolB
	}

	amount := new(big.Int).Mul(winningSum, es.ev.TotalPool())
	amount.Quo(amount, winningPool)

	ent := &entitlementState{ent: domain.Entitlement{
		EventID:     eventID,
		Contributor: contributor,
		Amount:      amount,
		Remaining:   new(big.Int).Set(amount),
		ComputedAt:  l.clock(),
	}}
	es.entitlements[contributor] = ent
	return ent, nil
}

func copyEntitlement(e domain.Entitlement) domain.Entitlement {
	out := e
	out.Amount = new(big.Int).Set(e.Amount)
	out.Remaining = new(big.Int).Set(e.Remaining)
	if e.ClaimedAt != nil {
		t := *e.ClaimedAt
		out.ClaimedAt = &t
	}
	return out
}
