package lock

import (
	"context"
	"fmt"
	"time"

	"cluster-intelligence-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease never removes a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	rdb    *redis.Client
	logger logger.ILogger
}

func NewRedisLocker(rdb *redis.Client, log logger.ILogger) *RedisLocker {
	return &RedisLocker{rdb: rdb, logger: log}
}

type redisLease struct {
	locker *RedisLocker
	key    string
	token  string
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Lease, error) {
	token := uuid.NewString()
	err := poll(ctx, key, wait, func(ctx context.Context) (bool, error) {
		ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return false, fmt.Errorf("redis lock %s: %w", key, err)
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Debug(logger.ModuleLock, "Lock acquired", map[string]interface{}{"key": key})
	return &redisLease{locker: l, key: key, token: token}, nil
}

func (r *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, r.locker.rdb, []string{r.key}, r.token).Int()
	if err != nil {
		return fmt.Errorf("redis unlock %s: %w", r.key, err)
	}
	if n == 0 {
		r.locker.logger.Warn(logger.ModuleLock, "Lock expired before release", map[string]interface{}{"key": r.key})
	}
	return nil
}
