package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bmmlabs/momentum/internal/domain"
)

// unlockScript releases a lock only when the caller still owns it.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockManager provides distributed locks on top of Redis SET NX. Locks carry
// a random token so that an expired lock cannot be released by a stale
// holder.
type LockManager struct {
	rdb *redis.Client
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{rdb: c.Underlying()}
}

// Acquire takes the named lock for at most ttl. It returns domain.ErrLockHeld
// when another holder owns the key. The returned func releases the lock;
// release errors are ignored since the TTL bounds the damage.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	token := uuid.New().String()
	fullKey := "lock:" + key

	ok, err := lm.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = unlockScript.Run(ctx, lm.rdb, []string{fullKey}, token).Err()
	}
	return release, nil
}

var _ domain.LockManager = (*LockManager)(nil)
