package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bmmlabs/momentum/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each asset's
// quote is stored at "quote:{asset}" with fields "price" (decimal string, the
// fixed-point feed integer) and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func quoteKey(asset domain.Asset) string {
	return "quote:" + string(asset)
}

// SetQuote stores the latest quote for an asset.
func (pc *PriceCache) SetQuote(ctx context.Context, q domain.PriceQuote) error {
	fields := map[string]interface{}{
		"price": q.Price.String(),
		"ts":    strconv.FormatInt(q.Timestamp.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, quoteKey(q.Asset), fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Asset, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for an asset. It returns
// domain.ErrNotFound when no quote is cached.
func (pc *PriceCache) GetQuote(ctx context.Context, asset domain.Asset) (domain.PriceQuote, error) {
	vals, err := pc.rdb.HGetAll(ctx, quoteKey(asset)).Result()
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s: %w", asset, err)
	}
	if len(vals) == 0 {
		return domain.PriceQuote{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	price, ok := new(big.Int).SetString(priceStr, 10)
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse quote price %q for %s", priceStr, asset)
	}

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse quote ts for %s: %w", asset, err)
	}

	return domain.PriceQuote{
		Asset:     asset,
		Price:     price,
		Timestamp: time.Unix(0, tsNano),
	}, nil
}

// Invalidate drops the cached quote for an asset.
func (pc *PriceCache) Invalidate(ctx context.Context, asset domain.Asset) error {
	if err := pc.rdb.Del(ctx, quoteKey(asset)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate quote %s: %w", asset, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
