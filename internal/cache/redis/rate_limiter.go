package redis

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bmmlabs/momentum/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

var slidingWindowScript = redis.NewScript(slidingWindowLua)

// RateLimiter is a sliding window rate limiter shared across replicas. Each
// key tracks request timestamps in a sorted set that the script trims on
// every call.
type RateLimiter struct {
	rdb *redis.Client
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying()}
}

// Allow reports whether the request identified by key may proceed under the
// given limit per window. Errors from Redis are returned so the caller can
// decide whether to fail open.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if window <= 0 {
		window = time.Minute
	}
	if limit <= 0 {
		limit = 60
	}

	now := time.Now().UnixMilli()
	res, err := slidingWindowScript.Run(ctx, rl.rdb,
		[]string{"ratelimit:" + key},
		strconv.FormatInt(window.Milliseconds(), 10),
		strconv.Itoa(limit),
		strconv.FormatInt(now, 10),
		uuid.New().String(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	return res == 1, nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
