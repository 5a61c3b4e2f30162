package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bmmlabs/momentum/internal/domain"
)

func TestResolveValidation(t *testing.T) {
	f := newFixture(t, Policy{}, DefaultFeeRates())
	ev := f.activeEvent(t)
	f.bet(t, ev.ID, teamRed, alice, 1_000)

	// Still inside the window.
	if _, err := f.ledger.Resolve(operator, ev.ID, teamRed); !errors.Is(err, domain.ErrNotYetEnded) {
		t.Fatalf("in-window resolve: err = %v, want ErrNotYetEnded", err)
	}

	f.clock.now = f.clock.now.Add(4 * time.Hour)

	if _, err := f.ledger.Resolve(alice, ev.ID, teamRed); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-operator resolve: err = %v, want ErrUnauthorized", err)
	}
	if _, err := f.ledger.Resolve(operator, 404, teamRed); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("missing event: err = %v, want ErrEventNotFound", err)
	}
	if _, err := f.ledger.Resolve(operator, ev.ID, outsider); !errors.Is(err, domain.ErrInvalidWinner) {
		t.Fatalf("bad winner: err = %v, want ErrInvalidWinner", err)
	}

	resolved, err := f.ledger.Resolve(operator, ev.ID, teamRed)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Winner != teamRed {
		t.Fatalf("winner = %s, want %s", resolved.Winner, teamRed)
	}

	// No double settlement; the winner stays fixed.
	if _, err := f.ledger.Resolve(operator, ev.ID, teamBlue); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("second resolve: err = %v, want ErrAlreadyResolved", err)
	}
	snap, _ := f.ledger.Snapshot(ev.ID)
	if snap.Winner != teamRed {
		t.Fatalf("winner after failed re-resolve = %s, want %s", snap.Winner, teamRed)
	}
}

func TestResolveAllowedWhilePaused(t *testing.T) {
	f := newFixture(t, Policy{}, DefaultFeeRates())
	ev := f.activeEvent(t)
	f.bet(t, ev.ID, teamRed, alice, 1_000)

	if err := f.ledger.Access().SetPaused(operator, true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	f.clock.now = f.clock.now.Add(4 * time.Hour)
	if _, err := f.ledger.Resolve(operator, ev.ID, teamRed); err != nil {
		t.Fatalf("Resolve while paused: %v", err)
	}
	if _, err := f.ledger.Claim(context.Background(), ev.ID, alice); err != nil {
		t.Fatalf("Claim while paused: %v", err)
	}
}

// Proportional-share scenario from the contract's reward math: pools
// 700,000 / 300,000, winner A, a 70,000 stake on A receives
// 70,000 * 1,000,000 / 700,000 = 100,000.
func TestComputeEntitlementProportionalShare(t *testing.T) {
	f := newFixture(t, Policy{}, FeeRates{})
	ev := f.activeEvent(t)

	f.bet(t, ev.ID, teamRed, alice, 70_000)
	f.bet(t, ev.ID, teamRed, bob, 630_000)
	f.bet(t, ev.ID, teamBlue, carol, 300_000)

	f.clock.now = f.clock.now.Add(4 * time.Hour)
	if _, err := f.ledger.Resolve(operator, ev.ID, teamRed); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	got, err := f.ledger.ComputeEntitlement(ev.ID, alice)
	if err != nil {
		t.Fatalf("ComputeEntitlement: %v", err)
	}
	if got.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("entitlement = %s, want 100000", got)
	}

	bobEnt, err := f.ledger.ComputeEntitlement(ev.ID, bob)
	if err != nil {
		t.Fatalf("ComputeEntitlement(bob): %v", err)
	}
	if bobEnt.Cmp(big.NewInt(900_000)) != 0 {
		t.Fatalf("bob entitlement = %s, want 900000", bobEnt)
	}
}

func TestComputeEntitlementErrors(t *testing.T) {
	f := newFixture(t, Policy{}, FeeRates{})
	ev := f.activeEvent(t)
	f.bet(t, ev.ID, teamRed, alice, 1_000)
	f.bet(t, ev.ID, teamBlue, carol, 1_000)

	// Not resolved yet.
	if _, err := f.ledger.ComputeEntitlement(ev.ID, alice); !errors.Is(err, domain.ErrNotYetEnded) {
		t.Fatalf("unresolved: err = %v, want ErrNotYetEnded", err)
	}

	f.clock.now = f.clock.now.Add(4 * time.Hour)
	if _, err := f.ledger.Resolve(operator, ev.ID, teamRed); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if _, err := f.ledger.ComputeEntitlement(404, alice); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("missing event: err = %v, want ErrEventNotFound", err)
	}
	// Losing-side and absent contributors have no winning contribution.
	if _, err := f.ledger.ComputeEntitlement(ev.ID, carol); !errors.Is(err, domain.ErrNoWinningContribution) {
		t.Fatalf("loser: err = %v, want ErrNoWinningContribution", err)
	}
	if _, err := f.ledger.ComputeEntitlement(ev.ID, outsider); !errors.Is(err, domain.ErrNoWinningContribution) {
		t.Fatalf("outsider: err = %v, want ErrNoWinningContribution", err)
	}
}

func TestEntitlementSumNeverExceedsTotalPool(t *testing.T) {
	f := newFixture(t, Policy{}, FeeRates{})
	ev := f.activeEvent(t)

	// Awkward numbers so the floor division leaves a remainder.
	f.bet(t, ev.ID, teamRed, alice, 333)
	f.bet(t, ev.ID, teamRed, bob, 334)
	f.bet(t, ev.ID, teamBlue, carol, 1_000)

	f.clock.now = f.clock.now.Add(4 * time.Hour)
	if _, err := f.ledger.Resolve(operator, ev.ID, teamRed); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	snap, _ := f.ledger.Snapshot(ev.ID)
	total := new(big.Int).Add(snap.PoolA, snap.PoolB)

	sum := new(big.Int)
	for _, contributor := range []common.Address{alice, bob} {
		ent, err := f.ledger.ComputeEntitlement(ev.ID, contributor)
		if err != nil {
			t.Fatalf("ComputeEntitlement: %v", err)
		}
		sum.Add(sum, ent)
	}
	if sum.Cmp(total) > 0 {
		t.Fatalf("entitlement sum %s exceeds total pool %s", sum, total)
	}
}

func TestClaimExactlyOnce(t *testing.T) {
	f := newFixture(t, Policy{}, FeeRates{})
	ev := f.activeEvent(t)

	f.bet(t, ev.ID, teamRed, alice, 70_000)
	f.bet(t, ev.ID, teamRed, bob, 630_000)
	f.bet(t, ev.ID, teamBlue, carol, 300_000)

	f.clock.now = f.clock.now.Add(4 * time.Hour)
	if _, err := f.ledger.Resolve(operator, ev.ID, teamRed); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	before := f.bank.Balance(nzdd, alice)
	paid, err := f.ledger.Claim(context.Background(), ev.ID, alice)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if paid.Cmp(big.NewInt(100_000)) != 0 {
		t.Fatalf("paid = %s, want 100000", paid)
	}
	want := new(big.Int).Add(before, big.NewInt(100_000))
	if got := f.bank.Balance(nzdd, alice); got.Cmp(want) != 0 {
		t.Fatalf("alice balance = %s, want %s", got, want)
	}

	// Second claim fails and moves no funds.
	if _, err := f.ledger.Claim(context.Background(), ev.ID, alice); !errors.Is(err, domain.ErrNothingToClaim) {
		t.Fatalf("second claim: err = %v, want ErrNothingToClaim", err)
	}
	if got := f.bank.Balance(nzdd, alice); got.Cmp(want) != 0 {
		t.Fatalf("alice balance after failed claim = %s, want %s", got, want)
	}

	ent, err := f.ledger.Entitlement(ev.ID, alice)
	if err != nil {
		t.Fatalf("Entitlement: %v", err)
	}
	if ent.Remaining.Sign() != 0 {
		t.Fatalf("remaining = %s, want 0", ent.Remaining)
	}
	if ent.ClaimedAt == nil {
		t.Fatal("ClaimedAt not set")
	}
}

func TestClaimTransferFailureRestoresEntitlement(t *testing.T) {
	f := newFixture(t, Policy{}, FeeRates{})
	ev := f.activeEvent(t)

	f.bet(t, ev.ID, teamRed, alice, 1_000)
	f.bet(t, ev.ID, teamBlue, carol, 1_000)

	f.clock.now = f.clock.now.Add(4 * time.Hour)
	if _, err := f.ledger.Resolve(operator, ev.ID, teamRed); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	f.ledger.vault.backend = &failingBackend{inner: f.bank, failOn: map[int]bool{1: true}}

	if _, err := f.ledger.Claim(context.Background(), ev.ID, alice); !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("err = %v, want ErrTransferFailed", err)
	}

	// The entitlement zeroing rolled back; nothing was forfeited.
	ent, err := f.ledger.Entitlement(ev.ID, alice)
	if err != nil {
		t.Fatalf("Entitlement: %v", err)
	}
	if ent.Remaining.Cmp(ent.Amount) != 0 {
		t.Fatalf("remaining = %s, want full %s", ent.Remaining, ent.Amount)
	}
	if got := f.ledger.Vault().PoolBalance(); got.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("vault pool fund = %s, want 2000", got)
	}

	// With the backend healthy again the claim goes through.
	paid, err := f.ledger.Claim(context.Background(), ev.ID, alice)
	if err != nil {
		t.Fatalf("retry claim: %v", err)
	}
	if paid.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("paid = %s, want 2000", paid)
	}
}

func TestWithdrawPartial(t *testing.T) {
	f := newFixture(t, Policy{}, FeeRates{})
	ev := f.activeEvent(t)

	f.bet(t, ev.ID, teamRed, alice, 1_000)
	f.bet(t, ev.ID, teamBlue, carol, 1_000)

	f.clock.now = f.clock.now.Add(4 * time.Hour)
	if _, err := f.ledger.Resolve(operator, ev.ID, teamRed); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if err := f.ledger.Withdraw(context.Background(), ev.ID, alice, big.NewInt(500)); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	ent, _ := f.ledger.Entitlement(ev.ID, alice)
	if ent.Remaining.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("remaining = %s, want 1500", ent.Remaining)
	}
	if ent.ClaimedAt != nil {
		t.Fatal("ClaimedAt set on partial withdrawal")
	}

	// Over-withdrawal is rejected without moving funds.
	if err := f.ledger.Withdraw(context.Background(), ev.ID, alice, big.NewInt(2_000)); !errors.Is(err, domain.ErrNothingToClaim) {
		t.Fatalf("over-withdraw: err = %v, want ErrNothingToClaim", err)
	}
	if err := f.ledger.Withdraw(context.Background(), ev.ID, alice, big.NewInt(0)); !errors.Is(err, domain.ErrZeroAmount) {
		t.Fatalf("zero withdraw: err = %v, want ErrZeroAmount", err)
	}

	// Draining the rest marks the entitlement claimed.
	if err := f.ledger.Withdraw(context.Background(), ev.ID, alice, big.NewInt(1_500)); err != nil {
		t.Fatalf("final withdraw: %v", err)
	}
	ent, _ = f.ledger.Entitlement(ev.ID, alice)
	if ent.Remaining.Sign() != 0 || ent.ClaimedAt == nil {
		t.Fatalf("remaining = %s, claimedAt = %v; want drained and claimed", ent.Remaining, ent.ClaimedAt)
	}
	if err := f.ledger.Withdraw(context.Background(), ev.ID, alice, big.NewInt(1)); !errors.Is(err, domain.ErrNothingToClaim) {
		t.Fatalf("withdraw after drain: err = %v, want ErrNothingToClaim", err)
	}
}
