package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bmmlabs/momentum/internal/domain"
)

// SignalBus fans out engine events over Redis pub/sub so that every server
// replica can push updates to its websocket clients.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish sends a payload on a channel. Delivery is best effort; subscribers
// that are not connected miss the message.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe listens on one or more channels. Messages arrive on the returned
// channel until ctx is cancelled or the cancel func is called, after which
// the channel is closed.
func (sb *SignalBus) Subscribe(ctx context.Context, channels ...string) (<-chan domain.BusMessage, func(), error) {
	if len(channels) == 0 {
		return nil, nil, fmt.Errorf("redis: subscribe: no channels")
	}

	sub := sb.rdb.Subscribe(ctx, channels...)
	// Force the subscription to be established before returning.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis: subscribe %v: %w", channels, err)
	}

	out := make(chan domain.BusMessage, 64)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- domain.BusMessage{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	stop := func() {
		cancel()
		_ = sub.Close()
	}
	return out, stop, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
