package domain

import (
	"context"
	"math/big"
	"time"
)

// PriceCache provides fast access to the latest oracle quotes.
type PriceCache interface {
	SetQuote(ctx context.Context, q PriceQuote) error
	GetQuote(ctx context.Context, asset Asset) (PriceQuote, error)
	Invalidate(ctx context.Context, asset Asset) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. Claims take a per
// (event, contributor) lock so two claim requests for the same entitlement
// never interleave across instances.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of ledger events to the websocket hub
// and other listeners.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan BusMessage, func(), error)
}

// Bus channels used for ledger fan-out.
const (
	ChannelEvent      = "ch:event"
	ChannelPool       = "ch:pool"
	ChannelSettlement = "ch:settlement"
)

// BusMessage is a single message delivered by a SignalBus subscription.
type BusMessage struct {
	Channel string
	Payload []byte
}

// PoolUpdate is the payload published on ch:pool after each accepted
// contribution.
type PoolUpdate struct {
	EventID uint64   `json:"event_id"`
	PoolA   *big.Int `json:"pool_a"`
	PoolB   *big.Int `json:"pool_b"`
}
