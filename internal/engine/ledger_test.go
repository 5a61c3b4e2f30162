package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bmmlabs/momentum/internal/bank"
	"github.com/bmmlabs/momentum/internal/domain"
	"github.com/bmmlabs/momentum/internal/oracle"
)

const nzdd = domain.Asset("nzdd")

var (
	operator   = testAddr(0xa1)
	alice      = testAddr(0x01)
	bob        = testAddr(0x02)
	carol      = testAddr(0x03)
	teamRed    = testAddr(0xe1)
	teamBlue   = testAddr(0xe2)
	vaultAddr  = testAddr(0xf1)
	liqAddr    = testAddr(0xf2)
	devAddr    = testAddr(0xf3)
	commAddr   = testAddr(0xf4)
	outsider   = testAddr(0x99)
	treasuryTo = testAddr(0xf5)
)

func testAddr(b byte) common.Address {
	var a common.Address
	a[common.AddressLength-1] = b
	return a
}

// testClock is a mutable clock shared by the ledger, normalizer, and price
// source in a fixture.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

var baseTime = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ledger *Ledger
	bank   *bank.Bank
	src    *oracle.StaticSource
	clock  *testClock
}

func newFixture(t *testing.T, policy Policy, rates FeeRates) *fixture {
	t.Helper()

	clock := &testClock{now: baseTime}

	src := oracle.NewStaticSource()
	src.SetClock(clock.Now)
	src.SetPrice(domain.AssetNative, big.NewInt(2_000_00000000))

	bk := bank.New()
	million := big.NewInt(1_000_000)
	for _, acct := range []common.Address{alice, bob, carol} {
		bk.Mint(nzdd, acct, million)
		bk.Mint(domain.AssetNative, acct, new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil))
	}
	// Settlement-asset float for payouts.
	bk.Mint(nzdd, vaultAddr, new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil))

	if err := rates.Validate(); err != nil {
		t.Fatalf("rates: %v", err)
	}

	access, err := NewAccessControl(operator)
	if err != nil {
		t.Fatalf("access: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	normalizer := NewNormalizer(src, WithClock(clock.Now))
	vault := NewVault(vaultAddr, nzdd, bk)
	recipients := domain.FeeRecipients{Liquidity: liqAddr, Development: devAddr, Community: commAddr}

	ledger := NewLedger(normalizer, NewFeeSplitter(rates), vault, access, bk, recipients, policy, logger,
		WithLedgerClock(clock.Now))

	return &fixture{ledger: ledger, bank: bk, src: src, clock: clock}
}

// activeEvent creates an event with a window starting one hour from now and
// advances the clock into it.
func (f *fixture) activeEvent(t *testing.T) domain.Event {
	t.Helper()
	ev, err := f.ledger.CreateEvent(operator, EventParams{
		Name:      "UFC Fight Night - Edwards vs. Brady",
		Location:  "O2 Arena, London",
		StartTime: f.clock.now.Add(time.Hour),
		EndTime:   f.clock.now.Add(3 * time.Hour),
		SideA:     teamRed,
		SideB:     teamBlue,
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	f.clock.now = f.clock.now.Add(time.Hour + time.Minute)
	f.src.SetPrice(domain.AssetNative, big.NewInt(2_000_00000000))
	return ev
}

func (f *fixture) bet(t *testing.T, eventID uint64, side common.Address, who common.Address, amount int64) domain.Contribution {
	t.Helper()
	c, err := f.ledger.RecordContribution(context.Background(), ContributionRequest{
		EventID:     eventID,
		Side:        side,
		Asset:       nzdd,
		Amount:      big.NewInt(amount),
		Contributor: who,
	})
	if err != nil {
		t.Fatalf("RecordContribution: %v", err)
	}
	return c
}

func TestCreateEventValidation(t *testing.T) {
	f := newFixture(t, Policy{}, DefaultFeeRates())

	cases := []struct {
		name    string
		caller  common.Address
		params  EventParams
		wantErr error
	}{
		{
			name:   "not operator",
			caller: alice,
			params: EventParams{
				StartTime: baseTime.Add(time.Hour), EndTime: baseTime.Add(2 * time.Hour),
				SideA: teamRed, SideB: teamBlue,
			},
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:   "start in past",
			caller: operator,
			params: EventParams{
				StartTime: baseTime.Add(-time.Hour), EndTime: baseTime.Add(2 * time.Hour),
				SideA: teamRed, SideB: teamBlue,
			},
			wantErr: domain.ErrInvalidWindow,
		},
		{
			name:   "end before start",
			caller: operator,
			params: EventParams{
				StartTime: baseTime.Add(2 * time.Hour), EndTime: baseTime.Add(time.Hour),
				SideA: teamRed, SideB: teamBlue,
			},
			wantErr: domain.ErrInvalidWindow,
		},
		{
			name:   "zero side",
			caller: operator,
			params: EventParams{
				StartTime: baseTime.Add(time.Hour), EndTime: baseTime.Add(2 * time.Hour),
				SideB: teamBlue,
			},
			wantErr: domain.ErrInvalidSides,
		},
		{
			name:   "identical sides",
			caller: operator,
			params: EventParams{
				StartTime: baseTime.Add(time.Hour), EndTime: baseTime.Add(2 * time.Hour),
				SideA: teamRed, SideB: teamRed,
			},
			wantErr: domain.ErrInvalidSides,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.CreateEvent(tc.caller, tc.params)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestCreateEventAssignsMonotonicIDs(t *testing.T) {
	f := newFixture(t, Policy{}, DefaultFeeRates())

	params := EventParams{
		StartTime: baseTime.Add(time.Hour), EndTime: baseTime.Add(2 * time.Hour),
		SideA: teamRed, SideB: teamBlue,
	}
	first, err := f.ledger.CreateEvent(operator, params)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	second, err := f.ledger.CreateEvent(operator, params)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if second.ID != first.ID+1 {
		t.Fatalf("ids = %d, %d; want consecutive", first.ID, second.ID)
	}
}

func TestCreateEventContinuesPersistedSequence(t *testing.T) {
	f := newFixture(t, Policy{}, DefaultFeeRates())

	params := EventParams{
		StartTime: baseTime.Add(time.Hour), EndTime: baseTime.Add(2 * time.Hour),
		SideA: teamRed, SideB: teamBlue,
	}
	var last uint64
	for i := 0; i < 3; i++ {
		ev, err := f.ledger.CreateEvent(operator, params)
		if err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
		last = ev.ID
	}

	// Rebuild the ledger as a restarted process would, continuing the id
	// sequence from the largest id the event store holds.
	access, err := NewAccessControl(operator)
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rebuilt := NewLedger(
		NewNormalizer(f.src, WithClock(f.clock.Now)),
		NewFeeSplitter(DefaultFeeRates()),
		NewVault(vaultAddr, nzdd, f.bank),
		access,
		f.bank,
		domain.FeeRecipients{Liquidity: liqAddr, Development: devAddr, Community: commAddr},
		Policy{},
		logger,
		WithLedgerClock(f.clock.Now),
		WithLedgerStartID(last),
	)

	ev, err := rebuilt.CreateEvent(operator, params)
	if err != nil {
		t.Fatalf("CreateEvent after rebuild: %v", err)
	}
	if ev.ID != last+1 {
		t.Fatalf("rebuilt ledger id = %d, want %d", ev.ID, last+1)
	}
}

func TestRecordContributionPoolsAndFees(t *testing.T) {
	f := newFixture(t, Policy{}, DefaultFeeRates())
	ev := f.activeEvent(t)

	f.bet(t, ev.ID, teamRed, alice, 10_000)

	snap, err := f.ledger.Snapshot(ev.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	// Pool holds the post-fee share only.
	if snap.PoolA.Cmp(big.NewInt(9_500)) != 0 {
		t.Fatalf("pool A = %s, want 9500", snap.PoolA)
	}
	if snap.PoolB.Sign() != 0 {
		t.Fatalf("pool B = %s, want 0", snap.PoolB)
	}

	// Fee shares reached their fixed recipients.
	if got := f.bank.Balance(nzdd, liqAddr); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("liquidity recipient = %s, want 300", got)
	}
	if got := f.bank.Balance(nzdd, devAddr); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("development recipient = %s, want 100", got)
	}
	if got := f.bank.Balance(nzdd, commAddr); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("community recipient = %s, want 100", got)
	}

	// The contributor paid the gross amount.
	if got := f.bank.Balance(nzdd, alice); got.Cmp(big.NewInt(990_000)) != 0 {
		t.Fatalf("alice balance = %s, want 990000", got)
	}
	if got := f.ledger.Vault().PoolBalance(); got.Cmp(big.NewInt(9_500)) != 0 {
		t.Fatalf("vault pool fund = %s, want 9500", got)
	}
}

func TestRecordContributionRetainFees(t *testing.T) {
	f := newFixture(t, Policy{RetainFees: true}, DefaultFeeRates())
	ev := f.activeEvent(t)

	f.bet(t, ev.ID, teamRed, alice, 10_000)

	// Recipients get nothing; the vault fee-fund tracks the 5%.
	if got := f.bank.Balance(nzdd, liqAddr); got.Sign() != 0 {
		t.Fatalf("liquidity recipient = %s, want 0", got)
	}
	if got := f.ledger.Vault().FeeBalance(nzdd); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("fee fund = %s, want 500", got)
	}

	// Operator sweeps part of the fee fund.
	if err := f.ledger.SweepFees(context.Background(), operator, nzdd, treasuryTo, big.NewInt(200)); err != nil {
		t.Fatalf("SweepFees: %v", err)
	}
	if got := f.ledger.Vault().FeeBalance(nzdd); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("fee fund after sweep = %s, want 300", got)
	}
	if got := f.bank.Balance(nzdd, treasuryTo); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("treasury = %s, want 200", got)
	}

	// Sweeps are operator-only and bounded by the fund.
	if err := f.ledger.SweepFees(context.Background(), alice, nzdd, treasuryTo, big.NewInt(1)); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("sweep by alice: err = %v, want ErrUnauthorized", err)
	}
	if err := f.ledger.SweepFees(context.Background(), operator, nzdd, treasuryTo, big.NewInt(10_000)); !errors.Is(err, domain.ErrInsufficientVaultBalance) {
		t.Fatalf("oversized sweep: err = %v, want ErrInsufficientVaultBalance", err)
	}
}

func TestRecordContributionValidation(t *testing.T) {
	f := newFixture(t, Policy{}, DefaultFeeRates())
	ev := f.activeEvent(t)

	cases := []struct {
		name    string
		req     ContributionRequest
		wantErr error
	}{
		{
			name:    "event not found",
			req:     ContributionRequest{EventID: 404, Side: teamRed, Asset: nzdd, Amount: big.NewInt(100), Contributor: alice},
			wantErr: domain.ErrEventNotFound,
		},
		{
			name:    "invalid side",
			req:     ContributionRequest{EventID: ev.ID, Side: outsider, Asset: nzdd, Amount: big.NewInt(100), Contributor: alice},
			wantErr: domain.ErrInvalidSide,
		},
		{
			name:    "zero amount",
			req:     ContributionRequest{EventID: ev.ID, Side: teamRed, Asset: nzdd, Amount: big.NewInt(0), Contributor: alice},
			wantErr: domain.ErrZeroAmount,
		},
		{
			name:    "nil amount",
			req:     ContributionRequest{EventID: ev.ID, Side: teamRed, Asset: nzdd, Contributor: alice},
			wantErr: domain.ErrZeroAmount,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.RecordContribution(context.Background(), tc.req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestRecordContributionOutsideWindow(t *testing.T) {
	f := newFixture(t, Policy{}, DefaultFeeRates())

	ev, err := f.ledger.CreateEvent(operator, EventParams{
		Name:      "scheduled",
		StartTime: baseTime.Add(time.Hour),
		EndTime:   baseTime.Add(2 * time.Hour),
		SideA:     teamRed,
		SideB:     teamBlue,
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	req := ContributionRequest{EventID: ev.ID, Side: teamRed, Asset: nzdd, Amount: big.NewInt(100), Contributor: alice}

	// Before the window opens.
	if _, err := f.ledger.RecordContribution(context.Background(), req); !errors.Is(err, domain.ErrEventNotActive) {
		t.Fatalf("scheduled: err = %v, want ErrEventNotActive", err)
	}

	// After the window closes: rejected and pools unchanged.
	f.clock.now = baseTime.Add(3 * time.Hour)
	if _, err := f.ledger.RecordContribution(context.Background(), req); !errors.Is(err, domain.ErrEventNotActive) {
		t.Fatalf("ended: err = %v, want ErrEventNotActive", err)
	}
	snap, err := f.ledger.Snapshot(ev.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.PoolA.Sign() != 0 || snap.PoolB.Sign() != 0 {
		t.Fatalf("pools = %s/%s, want 0/0", snap.PoolA, snap.PoolB)
	}
}

func TestRecordContributionSingleBetPolicy(t *testing.T) {
	f := newFixture(t, Policy{SingleBetPerEvent: true}, DefaultFeeRates())
	ev := f.activeEvent(t)

	f.bet(t, ev.ID, teamRed, alice, 1_000)

	_, err := f.ledger.RecordContribution(context.Background(), ContributionRequest{
		EventID: ev.ID, Side: teamBlue, Asset: nzdd, Amount: big.NewInt(1_000), Contributor: alice,
	})
	if !errors.Is(err, domain.ErrDuplicateContribution) {
		t.Fatalf("err = %v, want ErrDuplicateContribution", err)
	}

	// Other contributors are unaffected.
	f.bet(t, ev.ID, teamBlue, bob, 1_000)
}

func TestRecordContributionMultipleBetsDefault(t *testing.T) {
	f := newFixture(t, Policy{}, DefaultFeeRates())
	ev := f.activeEvent(t)

	f.bet(t, ev.ID, teamRed, alice, 1_000)
	f.bet(t, ev.ID, teamRed, alice, 2_000)

	contribs, err := f.ledger.Contributions(ev.ID)
	if err != nil {
		t.Fatalf("Contributions: %v", err)
	}
	if len(contribs) != 2 {
		t.Fatalf("contributions = %d, want 2", len(contribs))
	}
}

func TestRecordContributionPaused(t *testing.T) {
	f := newFixture(t, Policy{}, DefaultFeeRates())
	ev := f.activeEvent(t)

	if err := f.ledger.Access().SetPaused(operator, true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	_, err := f.ledger.RecordContribution(context.Background(), ContributionRequest{
		EventID: ev.ID, Side: teamRed, Asset: nzdd, Amount: big.NewInt(100), Contributor: alice,
	})
	if !errors.Is(err, domain.ErrPaused) {
		t.Fatalf("err = %v, want ErrPaused", err)
	}

	if err := f.ledger.Access().SetPaused(operator, false); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	f.bet(t, ev.ID, teamRed, alice, 100)
}

func TestRecordContributionPriceUnavailableNoSideEffects(t *testing.T) {
	f := newFixture(t, Policy{}, DefaultFeeRates())
	ev := f.activeEvent(t)

	f.src.SetQuote(domain.PriceQuote{Asset: domain.AssetNative, Price: big.NewInt(0), Timestamp: f.clock.now})
	before := f.bank.Balance(domain.AssetNative, alice)

	_, err := f.ledger.RecordContribution(context.Background(), ContributionRequest{
		EventID:     ev.ID,
		Side:        teamRed,
		Asset:       domain.AssetNative,
		Amount:      new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil),
		Contributor: alice,
	})
	if !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Fatalf("err = %v, want ErrPriceUnavailable", err)
	}

	// No transfer was attempted and no state changed.
	if got := f.bank.Balance(domain.AssetNative, alice); got.Cmp(before) != 0 {
		t.Fatalf("alice native balance changed: %s -> %s", before, got)
	}
	snap, _ := f.ledger.Snapshot(ev.ID)
	if snap.PoolA.Sign() != 0 {
		t.Fatalf("pool A = %s, want 0", snap.PoolA)
	}
}

// failingBackend wraps a real backend and fails specific calls by sequence
// number.
type failingBackend struct {
	inner  domain.TransferBackend
	failOn map[int]bool
	calls  int
}

func (b *failingBackend) Transfer(ctx context.Context, asset domain.Asset, from, to common.Address, amount *big.Int) error {
	b.calls++
	if b.failOn[b.calls] {
		return errors.New("backend down")
	}
	return b.inner.Transfer(ctx, asset, from, to, amount)
}

func TestRecordContributionTransferFailureRollsBack(t *testing.T) {
	f := newFixture(t, Policy{}, DefaultFeeRates())
	ev := f.activeEvent(t)

	// Stake in (call 1) succeeds, the liquidity fee transfer (call 2) fails,
	// and the undo reverse transfer (call 3) brings the stake back.
	fb := &failingBackend{inner: f.bank, failOn: map[int]bool{2: true}}
	f.ledger.backend = fb

	before := f.bank.Balance(nzdd, alice)
	_, err := f.ledger.RecordContribution(context.Background(), ContributionRequest{
		EventID: ev.ID, Side: teamRed, Asset: nzdd, Amount: big.NewInt(10_000), Contributor: alice,
	})
	if !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("err = %v, want ErrTransferFailed", err)
	}

	snap, _ := f.ledger.Snapshot(ev.ID)
	if snap.PoolA.Sign() != 0 || snap.PoolB.Sign() != 0 {
		t.Fatalf("pools = %s/%s, want 0/0", snap.PoolA, snap.PoolB)
	}
	contribs, _ := f.ledger.Contributions(ev.ID)
	if len(contribs) != 0 {
		t.Fatalf("contributions = %d, want 0", len(contribs))
	}
	if got := f.ledger.Vault().PoolBalance(); got.Sign() != 0 {
		t.Fatalf("vault pool fund = %s, want 0", got)
	}
	// The undo path runs against the raw bank, so the stake came back.
	if got := f.bank.Balance(nzdd, alice); got.Cmp(before) != 0 {
		t.Fatalf("alice balance = %s, want %s restored", got, before)
	}
}

func TestPoolsFrozenAfterResolution(t *testing.T) {
	f := newFixture(t, Policy{}, DefaultFeeRates())
	ev := f.activeEvent(t)

	f.bet(t, ev.ID, teamRed, alice, 10_000)
	f.bet(t, ev.ID, teamBlue, bob, 5_000)

	f.clock.now = f.clock.now.Add(4 * time.Hour)
	if _, err := f.ledger.Resolve(operator, ev.ID, teamRed); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	before, _ := f.ledger.Snapshot(ev.ID)
	_, err := f.ledger.RecordContribution(context.Background(), ContributionRequest{
		EventID: ev.ID, Side: teamRed, Asset: nzdd, Amount: big.NewInt(100), Contributor: carol,
	})
	if !errors.Is(err, domain.ErrEventNotActive) {
		t.Fatalf("err = %v, want ErrEventNotActive", err)
	}
	after, _ := f.ledger.Snapshot(ev.ID)
	if before.PoolA.Cmp(after.PoolA) != 0 || before.PoolB.Cmp(after.PoolB) != 0 {
		t.Fatalf("pools changed after resolution: %s/%s -> %s/%s",
			before.PoolA, before.PoolB, after.PoolA, after.PoolB)
	}
}
