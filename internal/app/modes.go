package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/sync/errgroup"

	"github.com/bmmlabs/momentum/internal/bank"
	"github.com/bmmlabs/momentum/internal/crypto"
	"github.com/bmmlabs/momentum/internal/domain"
	"github.com/bmmlabs/momentum/internal/engine"
	"github.com/bmmlabs/momentum/internal/oracle"
	"github.com/bmmlabs/momentum/internal/pipeline"
	"github.com/bmmlabs/momentum/internal/server"
	"github.com/bmmlabs/momentum/internal/server/handler"
	"github.com/bmmlabs/momentum/internal/server/ws"
	"github.com/bmmlabs/momentum/internal/service"
)

// simOperatorKey is the well-known first development account key (the same
// one local Ethereum dev nodes ship with). Used only when sim mode has no
// operator key configured; never fund it anywhere real.
const simOperatorKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// simAccounts is how many funded test accounts sim mode derives at startup.
const simAccounts = 5

// adminService joins the operator methods of the event and settlement
// services behind the admin handler's single service surface.
type adminService struct {
	*service.EventService
	*service.SettlementService
	*service.TreasuryService
}

// services bundles the per-mode service layer.
type services struct {
	events     *service.EventService
	betting    *service.BettingService
	settlement *service.SettlementService
	treasury   *service.TreasuryService
}

// ServeMode runs the engine with live price feeds and full persistence: the
// HTTP/WebSocket API backed by Postgres mirrors, Redis fan-out, and the
// external price feed through the Redis-backed cache.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	feed := oracle.NewFeedClient(a.cfg.Oracle.FeedURL, a.cfg.Oracle.FeedAPIKey)
	source := oracle.NewCachedSource(feed, deps.PriceCache, a.cfg.Oracle.RefreshInterval.Duration, a.logger)

	backend := bank.New()
	ledger, err := a.buildLedger(ctx, deps, source, backend)
	if err != nil {
		return err
	}
	svcs := a.buildServices(ledger, deps, backend)

	a.startAPIServer(ctx, g, deps, svcs)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve mode: %w", err)
	}
	return nil
}

// SimMode runs the engine entirely in memory: a static price source, the
// in-process bank as transfer backend, seeded events, and funded test
// accounts. No Postgres, Redis, or S3 required.
func (a *App) SimMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sim mode")

	g, ctx := errgroup.WithContext(ctx)

	static := oracle.NewStaticSource()
	if price, ok := new(big.Int).SetString(a.cfg.Sim.NativePrice, 10); ok && price.Sign() > 0 {
		static.SetPrice(domain.AssetNative, price)
	}

	backend := bank.New()
	ledger, err := a.buildLedger(ctx, deps, static, backend)
	if err != nil {
		return err
	}

	if err := a.seedSim(ctx, ledger, backend); err != nil {
		return err
	}

	svcs := a.buildServices(ledger, deps, backend)
	a.startAPIServer(ctx, g, deps, svcs)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("sim mode: %w", err)
	}
	return nil
}

// MonitorMode runs only the observation surface: the WebSocket hub relaying
// Redis signals, the health endpoint, and the background pipeline. It never
// mutates engine state and needs no operator key.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	a.startPipeline(ctx, g, deps)

	if a.cfg.Server.Enabled {
		srv := server.NewMonitorServer(server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			APIKey:          a.cfg.Server.APIKey,
			RateLimit:       a.cfg.Server.RateLimit,
			RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
		}, handler.NewHealthHandler(deps.Pingers), hub, deps.RateLimiter, a.logger)
		a.runServer(ctx, g, srv)
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("monitor mode: %w", err)
	}
	return nil
}

// FullMode is serve mode plus the background pipeline: live feeds, full
// persistence, price refreshing, and nightly report archival.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	feed := oracle.NewFeedClient(a.cfg.Oracle.FeedURL, a.cfg.Oracle.FeedAPIKey)
	source := oracle.NewCachedSource(feed, deps.PriceCache, a.cfg.Oracle.RefreshInterval.Duration, a.logger)

	backend := bank.New()
	ledger, err := a.buildLedger(ctx, deps, source, backend)
	if err != nil {
		return err
	}
	svcs := a.buildServices(ledger, deps, backend)

	a.startAPIServer(ctx, g, deps, svcs)
	a.startPipeline(ctx, g, deps)

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("full mode: %w", err)
	}
	return nil
}

// buildLedger assembles the engine core: operator key, access control, vault,
// normalizer, fee splitter, and the ledger itself. When an event store is
// wired the id sequence continues from the largest persisted id, so a restart
// never reissues an id the mirror already holds.
func (a *App) buildLedger(ctx context.Context, deps *Dependencies, source domain.PriceSource, backend domain.TransferBackend) (*engine.Ledger, error) {
	keyHex, err := crypto.LoadOperatorKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Operator.PrivateKey,
		EncryptedKeyPath: a.cfg.Operator.EncryptedKeyPath,
		KeyPassword:      a.cfg.Operator.KeyPassword,
	})
	if err != nil {
		if a.cfg.Mode != "sim" {
			return nil, fmt.Errorf("app: operator key: %w", err)
		}
		keyHex = simOperatorKey
	}
	signer, err := crypto.NewSigner(keyHex)
	if err != nil {
		return nil, fmt.Errorf("app: operator signer: %w", err)
	}
	operator := signer.Address()

	access, err := engine.NewAccessControl(operator)
	if err != nil {
		return nil, fmt.Errorf("app: access control: %w", err)
	}

	asset := domain.Asset(a.cfg.Engine.SettlementAsset)
	vault := engine.NewVault(a.engineAddr(a.cfg.Engine.VaultAccount, "vault"), asset, backend)
	normalizer := engine.NewNormalizer(source)
	splitter := engine.NewFeeSplitter(engine.DefaultFeeRates())
	recipients := domain.FeeRecipients{
		Liquidity:   a.engineAddr(a.cfg.Engine.LiquidityAddress, "liquidity"),
		Development: a.engineAddr(a.cfg.Engine.DeveloperAddress, "development"),
		Community:   a.engineAddr(a.cfg.Engine.CommunityAddress, "community"),
	}
	policy := engine.Policy{
		SingleBetPerEvent: a.cfg.Engine.SingleBetPerEvent,
		RetainFees:        a.cfg.Engine.RetainFees,
	}

	a.logger.Info("ledger assembled",
		slog.String("operator", operator.Hex()),
		slog.String("settlement_asset", string(asset)),
		slog.Bool("single_bet_per_event", policy.SingleBetPerEvent),
		slog.Bool("retain_fees", policy.RetainFees),
	)

	opts := []engine.LedgerOption{}
	if deps.EventStore != nil {
		lastID, err := deps.EventStore.MaxID(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: seed event id sequence: %w", err)
		}
		opts = append(opts, engine.WithLedgerStartID(lastID))
	}

	return engine.NewLedger(normalizer, splitter, vault, access, backend, recipients, policy, a.logger, opts...), nil
}

// buildServices wires the service layer over the ledger. Side-channel
// dependencies left nil by Wire (sim mode) are passed through as nil; the
// services skip them.
func (a *App) buildServices(ledger *engine.Ledger, deps *Dependencies, funder domain.Funder) services {
	var largeBet *big.Int
	if a.cfg.Engine.LargeBetThreshold != "" {
		if v, ok := new(big.Int).SetString(a.cfg.Engine.LargeBetThreshold, 10); ok {
			largeBet = v
		}
	}

	return services{
		events: service.NewEventService(
			ledger, deps.EventStore, deps.SignalBus, deps.Notifier, deps.AuditStore, a.logger,
		),
		betting: service.NewBettingService(
			ledger, deps.EventStore, deps.ContributionStore, deps.SignalBus,
			deps.Notifier, deps.AuditStore, largeBet, a.logger,
		),
		settlement: service.NewSettlementService(
			ledger, deps.EntitlementStore, deps.LockManager, deps.SignalBus,
			deps.Notifier, deps.AuditStore, a.logger,
		),
		treasury: service.NewTreasuryService(ledger, funder, deps.AuditStore, a.logger),
	}
}

// startAPIServer adds the WebSocket hub and the HTTP API to the errgroup.
func (a *App) startAPIServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs services) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled by config")
		return
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, server.Handlers{
		Health:     handler.NewHealthHandler(deps.Pingers),
		Events:     handler.NewEventHandler(svcs.events, a.logger),
		Bets:       handler.NewBetHandler(svcs.betting, a.logger),
		Settlement: handler.NewSettlementHandler(svcs.settlement, a.logger),
		Admin:      handler.NewAdminHandler(adminService{svcs.events, svcs.settlement, svcs.treasury}, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	a.runServer(ctx, g, srv)
}

// runServer starts the listener and ties shutdown to context cancellation.
func (a *App) runServer(ctx context.Context, g *errgroup.Group, srv *server.Server) {
	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.Info("HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})
}

// startPipeline adds the background price refresher and report archiver to
// the errgroup when the pipeline is enabled.
func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Pipeline.Enabled {
		return
	}

	var refresher *pipeline.PriceRefresher
	if deps.PriceCache != nil && len(a.cfg.Oracle.Assets) > 0 {
		feed := oracle.NewFeedClient(a.cfg.Oracle.FeedURL, a.cfg.Oracle.FeedAPIKey)
		assets := make([]domain.Asset, 0, len(a.cfg.Oracle.Assets))
		for _, s := range a.cfg.Oracle.Assets {
			assets = append(assets, domain.Asset(s))
		}
		refresher = pipeline.NewPriceRefresher(feed, deps.PriceCache, assets, a.logger)
	}

	var archiver *pipeline.Archiver
	if deps.Reports != nil {
		archiver = pipeline.NewArchiver(deps.Reports, a.cfg.Pipeline.ArchiveRetentionDays, a.logger)
	}

	if refresher == nil && archiver == nil {
		a.logger.InfoContext(ctx, "pipeline enabled but no jobs runnable")
		return
	}

	orch := pipeline.NewOrchestrator(
		refresher,
		archiver,
		a.cfg.Oracle.RefreshInterval.Duration,
		a.cfg.Pipeline.ArchiveCron,
		a.logger,
	)
	g.Go(func() error { return orch.Run(ctx) })
}

// seedSim creates the configured event catalog and funds a handful of derived
// test accounts so bets can flow immediately.
func (a *App) seedSim(ctx context.Context, ledger *engine.Ledger, b *bank.Bank) error {
	operator := ledger.Access().Operator()
	now := time.Now()
	asset := domain.Asset(a.cfg.Engine.SettlementAsset)

	for _, se := range a.cfg.Sim.Events {
		offset := se.StartOffset.Duration
		if offset <= 0 {
			offset = 2 * time.Minute
		}
		dur := se.Duration.Duration
		if dur <= 0 {
			dur = time.Hour
		}
		ev, err := ledger.CreateEvent(operator, engine.EventParams{
			Name:        se.Name,
			Location:    se.Location,
			Description: se.Description,
			StartTime:   now.Add(offset),
			EndTime:     now.Add(offset + dur),
			SideA:       a.sideAddr(se.SideA, se.Name+"/a"),
			SideB:       a.sideAddr(se.SideB, se.Name+"/b"),
		})
		if err != nil {
			return fmt.Errorf("app: seed event %q: %w", se.Name, err)
		}
		a.logger.InfoContext(ctx, "seeded event",
			slog.Uint64("event_id", ev.ID),
			slog.String("name", ev.Name),
			slog.Time("start", ev.StartTime),
		)
	}

	mint, ok := new(big.Int).SetString(a.cfg.Sim.MintAmount, 10)
	if !ok || mint.Sign() <= 0 {
		return nil
	}
	for i := 0; i < simAccounts; i++ {
		addr := deriveAddr(fmt.Sprintf("sim-account-%d", i))
		b.Mint(asset, addr, mint)
		b.Mint(domain.AssetNative, addr, mint)
		a.logger.InfoContext(ctx, "funded test account",
			slog.String("address", addr.Hex()),
			slog.String("amount", mint.String()),
		)
	}
	return nil
}

// engineAddr parses a configured address, falling back to a derived
// deterministic address in sim mode where the config may leave them unset.
func (a *App) engineAddr(hex, label string) common.Address {
	if common.IsHexAddress(hex) {
		return common.HexToAddress(hex)
	}
	return deriveAddr("engine/" + label)
}

func (a *App) sideAddr(hex, label string) common.Address {
	if common.IsHexAddress(hex) {
		return common.HexToAddress(hex)
	}
	return deriveAddr("side/" + label)
}

// deriveAddr maps a label to a stable address. Sim-only convenience; nobody
// holds the corresponding key.
func deriveAddr(label string) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte(label))[12:])
}
