package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"loyalty/internal/pkg/redis"
)

const releaseScriptName = "lock_release"

// 只删除自己持有的锁
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisLocker 基于 SET NX PX 的 Redis 锁
type RedisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	retry   time.Duration
}

func NewRedisLocker(client *redis.Client, ttl, timeout time.Duration) (*RedisLocker, error) {
	if err := client.LoadScriptFromContent(releaseScriptName, releaseScript); err != nil {
		return nil, err
	}
	return &RedisLocker{client: client, ttl: ttl, timeout: timeout, retry: 50 * time.Millisecond}, nil
}

// Acquire 轮询获取锁，直到 ctx 结束或超时
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func() error, error) {
	redisKey := "loyalty:lock:" + key
	token := uuid.NewString()

	waitCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.GetClient().SetNX(waitCtx, redisKey, token, l.ttl).Result()
		if err != nil && waitCtx.Err() == nil {
			return nil, errors.Wrapf(err, "set lock %s", redisKey)
		}
		if ok {
			release := func() error {
				_, err := l.client.RunScript(context.Background(), releaseScriptName, []string{redisKey}, token)
				return errors.Wrapf(err, "release lock %s", redisKey)
			}
			return release, nil
		}
		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			return nil, errors.Wrapf(ErrNotAcquired, "%s: %v", key, waitCtx.Err())
		}
	}
}
