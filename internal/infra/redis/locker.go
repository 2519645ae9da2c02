package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultDialTimeout = 5 * time.Second

	// lockKeyPrefix namespaces evaluator locks in the keyspace.
	lockKeyPrefix = "kat:scheduler:lock:"
)

// releaseScript deletes the lock only when the caller still owns it, so an
// evaluator pass that outlived its TTL cannot release a peer's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker provides per-key advisory locks with a TTL. Two evaluator
// instances ticking at the same moment race on SET NX; the loser skips the
// schedule for this pass.
type Locker struct {
	client *Client
}

// NewLocker creates a new Locker.
func NewLocker(client *Client) *Locker {
	return &Locker{client: client}
}

// TryLock attempts to acquire the lock for key. It returns false when
// another holder owns the lock, and a release function otherwise. The lock
// expires after ttl even if never released.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, func(context.Context) error, error) {
	token := uuid.New().String()
	lockKey := lockKeyPrefix + key

	ok, err := l.client.Client().SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, nil
	}

	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client.Client(), []string{lockKey}, token).Err()
	}
	return true, release, nil
}
