package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bmmlabs/momentum/internal/bank"
	"github.com/bmmlabs/momentum/internal/domain"
	"github.com/bmmlabs/momentum/internal/engine"
	"github.com/bmmlabs/momentum/internal/oracle"
)

const nzdd = domain.Asset("nzdd")

var (
	operator = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	teamRed  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	teamBlue = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	vaultAcc = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	liqAddr  = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	devAddr  = common.HexToAddress("0x00000000000000000000000000000000000000e2")
	commAddr = common.HexToAddress("0x00000000000000000000000000000000000000e3")
)

var baseTime = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memBus records published messages.
type memBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func (b *memBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.messages == nil {
		b.messages = make(map[string][][]byte)
	}
	b.messages[channel] = append(b.messages[channel], payload)
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, channels ...string) (<-chan domain.BusMessage, func(), error) {
	ch := make(chan domain.BusMessage)
	return ch, func() { close(ch) }, nil
}

func (b *memBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages[channel])
}

// memLocks implements domain.LockManager in memory.
type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (m *memLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held == nil {
		m.held = make(map[string]bool)
	}
	if m.held[key] {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = true
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
	}, nil
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (m *memAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fixture struct {
	ledger *engine.Ledger
	bank   *bank.Bank
	clock  *testClock
	bus    *memBus
	audit  *memAudit

	events     *EventService
	betting    *BettingService
	settlement *SettlementService
	treasury   *TreasuryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &testClock{now: baseTime}

	src := oracle.NewStaticSource()
	src.SetClock(clock.Now)
	src.SetPrice(domain.AssetNative, big.NewInt(2_000_00000000))

	bk := bank.New()
	bk.Mint(nzdd, alice, big.NewInt(1_000_000))
	bk.Mint(nzdd, vaultAcc, new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil))

	access, err := engine.NewAccessControl(operator)
	if err != nil {
		t.Fatalf("access: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := engine.NewLedger(
		engine.NewNormalizer(src, engine.WithClock(clock.Now)),
		engine.NewFeeSplitter(engine.FeeRates{}),
		engine.NewVault(vaultAcc, nzdd, bk),
		access,
		bk,
		domain.FeeRecipients{Liquidity: liqAddr, Development: devAddr, Community: commAddr},
		engine.Policy{},
		logger,
		engine.WithLedgerClock(clock.Now),
	)

	bus := &memBus{}
	audit := &memAudit{}

	return &fixture{
		ledger:     ledger,
		bank:       bk,
		clock:      clock,
		bus:        bus,
		audit:      audit,
		events:     NewEventService(ledger, nil, bus, nil, audit, logger),
		betting:    NewBettingService(ledger, nil, nil, bus, nil, audit, nil, logger),
		settlement: NewSettlementService(ledger, nil, &memLocks{}, bus, nil, audit, logger),
		treasury:   NewTreasuryService(ledger, bk, audit, logger),
	}
}

func (f *fixture) activeEvent(t *testing.T) domain.EventSnapshot {
	t.Helper()
	snap, err := f.events.Create(context.Background(), operator, engine.EventParams{
		Name:      "Red vs Blue",
		StartTime: f.clock.Now().Add(time.Hour),
		EndTime:   f.clock.Now().Add(3 * time.Hour),
		SideA:     teamRed,
		SideB:     teamBlue,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	f.clock.Advance(time.Hour + time.Minute)
	return snap
}

func TestEventServiceCreatePublishesAndAudits(t *testing.T) {
	f := newFixture(t)

	snap := f.activeEvent(t)
	if snap.ID != 1 {
		t.Errorf("event id = %d, want 1", snap.ID)
	}
	if got := f.bus.count(domain.ChannelEvent); got != 1 {
		t.Errorf("ch:event messages = %d, want 1", got)
	}
	if len(f.audit.events) != 1 || f.audit.events[0] != "event.created" {
		t.Errorf("audit events = %v", f.audit.events)
	}
}

func TestBettingServicePlacePublishesPools(t *testing.T) {
	f := newFixture(t)
	snap := f.activeEvent(t)

	c, err := f.betting.Place(context.Background(), engine.ContributionRequest{
		EventID:     snap.ID,
		Side:        teamRed,
		Asset:       nzdd,
		Amount:      big.NewInt(500),
		Contributor: alice,
	})
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if c.NormalizedValue.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("normalized = %s, want 500", c.NormalizedValue)
	}
	if got := f.bus.count(domain.ChannelPool); got != 1 {
		t.Errorf("ch:pool messages = %d, want 1", got)
	}
}

func TestSettlementServiceClaimFlow(t *testing.T) {
	f := newFixture(t)
	snap := f.activeEvent(t)
	ctx := context.Background()

	if _, err := f.betting.Place(ctx, engine.ContributionRequest{
		EventID: snap.ID, Side: teamRed, Asset: nzdd,
		Amount: big.NewInt(700), Contributor: alice,
	}); err != nil {
		t.Fatalf("place: %v", err)
	}

	f.clock.Advance(3 * time.Hour)
	if _, err := f.events.Resolve(ctx, operator, snap.ID, teamRed); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	paid, err := f.settlement.Claim(ctx, snap.ID, alice)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if paid.Cmp(big.NewInt(700)) != 0 {
		t.Errorf("paid = %s, want 700", paid)
	}
	if got := f.bus.count(domain.ChannelSettlement); got != 1 {
		t.Errorf("ch:settlement messages = %d, want 1", got)
	}
}

func TestSettlementServiceClaimLockContention(t *testing.T) {
	f := newFixture(t)
	snap := f.activeEvent(t)
	ctx := context.Background()

	locks := &memLocks{}
	f.settlement = NewSettlementService(f.ledger, nil, locks, f.bus, nil, f.audit,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Hold the claim lock externally; the claim must fail fast.
	unlock, err := locks.Acquire(ctx, "claim:1:"+alice.Hex(), claimLockTTL)
	if err != nil {
		t.Fatalf("pre-acquire: %v", err)
	}
	defer unlock()

	if _, err := f.settlement.Claim(ctx, snap.ID, alice); err == nil {
		t.Fatal("Claim() under held lock error = nil, want error")
	}
}

func TestTreasuryServiceDepositFundsStakeTransfers(t *testing.T) {
	f := newFixture(t)
	snap := f.activeEvent(t)
	ctx := context.Background()

	// An unfunded contributor cannot clear the stake transfer.
	dave := common.HexToAddress("0x0000000000000000000000000000000000000004")
	_, err := f.betting.Place(ctx, engine.ContributionRequest{
		EventID:     snap.ID,
		Side:        teamRed,
		Asset:       nzdd,
		Amount:      big.NewInt(500),
		Contributor: dave,
	})
	if !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("Place() unfunded error = %v, want ErrTransferFailed", err)
	}

	if err := f.treasury.Deposit(ctx, operator, nzdd, dave, big.NewInt(10_000)); err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}
	if got := f.bank.Balance(nzdd, dave); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("balance after deposit = %s, want 10000", got)
	}

	if _, err := f.betting.Place(ctx, engine.ContributionRequest{
		EventID:     snap.ID,
		Side:        teamRed,
		Asset:       nzdd,
		Amount:      big.NewInt(500),
		Contributor: dave,
	}); err != nil {
		t.Fatalf("Place() after deposit error = %v", err)
	}

	found := false
	for _, e := range f.audit.events {
		if e == "deposit" {
			found = true
		}
	}
	if !found {
		t.Error("audit log missing deposit entry")
	}
}

func TestTreasuryServiceDepositValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.treasury.Deposit(ctx, alice, nzdd, alice, big.NewInt(100)); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("Deposit() by non-operator error = %v, want ErrUnauthorized", err)
	}
	if err := f.treasury.Deposit(ctx, operator, nzdd, alice, big.NewInt(0)); !errors.Is(err, domain.ErrZeroAmount) {
		t.Errorf("Deposit() of zero error = %v, want ErrZeroAmount", err)
	}
	if err := f.treasury.Deposit(ctx, operator, nzdd, alice, nil); !errors.Is(err, domain.ErrZeroAmount) {
		t.Errorf("Deposit() of nil error = %v, want ErrZeroAmount", err)
	}
}
