package lease

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scrapeworks/orchestrator/pkg/model"
)

// acquireScript grants the lease on key to ARGV[1] for ARGV[2] milliseconds
// unless it is currently held by a different, still-live owner. Native
// Redis TTL expiry means a vanished key already reads as unheld, so this
// single GET covers both the "never held" and "expired" cases.
var acquireScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current and current ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func leaseKey(name string) string { return "lease:" + name }

// RedisStorage is the networked lease backend, suitable for coordinating
// leadership across scheduler replicas running in separate processes.
type RedisStorage struct {
	rdb *redis.Client
}

// NewRedisStorage wraps an existing Redis client for lease coordination.
func NewRedisStorage(rdb *redis.Client) *RedisStorage {
	return &RedisStorage{rdb: rdb}
}

func (r *RedisStorage) MaybeAcquire(ctx context.Context, name, owner string, dur time.Duration) (model.Lease, bool, error) {
	now := time.Now()
	res, err := acquireScript.Run(ctx, r.rdb, []string{leaseKey(name)}, owner, dur.Milliseconds()).Int64()
	if err != nil {
		return model.Lease{}, false, err
	}
	if res == 0 {
		return model.Lease{}, false, nil
	}
	return model.Lease{
		Name:          name,
		OwnerID:       owner,
		AcquiredAt:    now,
		AcquiredUntil: now.Add(dur),
	}, true, nil
}

func (r *RedisStorage) Release(ctx context.Context, name, owner string) error {
	_, err := releaseScript.Run(ctx, r.rdb, []string{leaseKey(name)}, owner).Result()
	if err == redis.Nil {
		return nil
	}
	return err
}
