// Package lock 提供按 key 加锁的分布式锁，ZooKeeper 与 Redis 两种实现。
package lock

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotAcquired 在等待超时或 ctx 取消时返回
var ErrNotAcquired = errors.New("lock: not acquired")

// Locker 获取 key 对应的锁，返回释放函数
type Locker interface {
	Acquire(ctx context.Context, key string) (release func() error, err error)
}

var (
	_ Locker = (*ZKLocker)(nil)
	_ Locker = (*RedisLocker)(nil)
)
