package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bmmlabs/momentum/internal/domain"
)

// CachedSource wraps a PriceSource with a shared quote cache. Quotes younger
// than the refresh interval are served from the cache; the upstream feed is
// only hit when the cached quote is missing or about to go stale.
type CachedSource struct {
	upstream domain.PriceSource
	cache    domain.PriceCache
	refresh  time.Duration
	logger   *slog.Logger
}

// NewCachedSource creates a CachedSource. refresh controls how long a cached
// quote is served before the upstream feed is consulted again.
func NewCachedSource(upstream domain.PriceSource, cache domain.PriceCache, refresh time.Duration, logger *slog.Logger) *CachedSource {
	if refresh <= 0 {
		refresh = 30 * time.Second
	}
	return &CachedSource{
		upstream: upstream,
		cache:    cache,
		refresh:  refresh,
		logger:   logger.With("component", "oracle"),
	}
}

// GetPrice returns the cached quote when fresh, falling back to the upstream
// feed otherwise. Cache write failures are logged but do not fail the read,
// and a stale cached quote is returned as a last resort when the upstream
// feed is down.
func (cs *CachedSource) GetPrice(ctx context.Context, asset domain.Asset) (domain.PriceQuote, error) {
	cached, cacheErr := cs.cache.GetQuote(ctx, asset)
	if cacheErr == nil && time.Since(cached.Timestamp) < cs.refresh {
		return cached, nil
	}
	if cacheErr != nil && !errors.Is(cacheErr, domain.ErrNotFound) {
		cs.logger.Warn("quote cache read failed", "asset", asset, "error", cacheErr)
	}

	quote, err := cs.upstream.GetPrice(ctx, asset)
	if err != nil {
		// Serve the stale quote rather than nothing; the normalizer enforces
		// its own staleness bound.
		if cacheErr == nil {
			cs.logger.Warn("feed unavailable, serving stale quote",
				"asset", asset, "age", time.Since(cached.Timestamp), "error", err)
			return cached, nil
		}
		return domain.PriceQuote{}, fmt.Errorf("oracle: %s: %w", asset, err)
	}

	if err := cs.cache.SetQuote(ctx, quote); err != nil {
		cs.logger.Warn("quote cache write failed", "asset", asset, "error", err)
	}
	return quote, nil
}

var _ domain.PriceSource = (*CachedSource)(nil)
