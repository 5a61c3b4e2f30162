package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/bmmlabs/momentum/internal/domain"
)

// PriceRefresher keeps the shared quote cache warm by polling the upstream
// feed for every tracked asset. With the cache primed, contribution
// normalization never waits on a feed round trip.
type PriceRefresher struct {
	feed   domain.PriceSource
	cache  domain.PriceCache
	assets []domain.Asset
	logger *slog.Logger
}

// NewPriceRefresher creates a PriceRefresher covering the given assets.
func NewPriceRefresher(feed domain.PriceSource, cache domain.PriceCache, assets []domain.Asset, logger *slog.Logger) *PriceRefresher {
	return &PriceRefresher{
		feed:   feed,
		cache:  cache,
		assets: assets,
		logger: logger.With(slog.String("component", "price_refresher")),
	}
}

// RunLoop refreshes all tracked assets immediately, then on every tick until
// the context is cancelled. Individual asset failures are logged and skipped
// so one dead feed does not starve the others.
func (pr *PriceRefresher) RunLoop(ctx context.Context, interval time.Duration) error {
	pr.refreshAll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			pr.logger.Info("price refresher stopped")
			return ctx.Err()
		case <-ticker.C:
			pr.refreshAll(ctx)
		}
	}
}

func (pr *PriceRefresher) refreshAll(ctx context.Context) {
	for _, asset := range pr.assets {
		quote, err := pr.feed.GetPrice(ctx, asset)
		if err != nil {
			pr.logger.Warn("price refresh failed",
				slog.String("asset", string(asset)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := pr.cache.SetQuote(ctx, quote); err != nil {
			pr.logger.Warn("quote cache write failed",
				slog.String("asset", string(asset)),
				slog.String("error", err.Error()),
			)
			continue
		}
		pr.logger.Debug("quote refreshed",
			slog.String("asset", string(asset)),
			slog.String("price", quote.Price.String()),
		)
	}
}
