package locking

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"loyalty/internal/pkg/lock"
	"loyalty/internal/service/loyalty/domain"
)

// OrderLocker 是 port.OrderLocker 的实现，按订单号加锁
type OrderLocker struct {
	locker lock.Locker
}

func NewOrderLocker(locker lock.Locker) *OrderLocker {
	return &OrderLocker{locker: locker}
}

func (l *OrderLocker) Lock(ctx context.Context, orderID int64) (func() error, error) {
	release, err := l.locker.Acquire(ctx, fmt.Sprintf("order-%d", orderID))
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, errors.Wrapf(domain.ErrLockNotAcquired, "order %d: %v", orderID, err)
		}
		return nil, err
	}
	return release, nil
}
