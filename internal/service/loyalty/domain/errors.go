package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrOrderNotFound        = errors.New("loyalty: order not found")
	ErrRewardNotFound       = errors.New("loyalty: reward not found")
	ErrCouponNotFound       = errors.New("loyalty: coupon not found")
	ErrUnknownPricingBasis  = errors.New("loyalty: unable to get price")
	ErrMissingService       = errors.New("loyalty: item missing service")
	ErrLockNotAcquired      = errors.New("loyalty: order lock not acquired")
	ErrInvalidTraitRequest  = errors.New("loyalty: invalid trait request")
	ErrInvalidTraitCriteria = errors.New("loyalty: invalid trait expression")
)

// PricingError 订单行定价推导失败（数据缺陷），会中止整个奖励应用并回滚。
type PricingError struct {
	ItemID int64
	Err    error
}

func (e *PricingError) Error() string {
	return fmt.Sprintf("loyalty: pricing item %d: %v", e.ItemID, e.Err)
}

func (e *PricingError) Unwrap() error { return e.Err }

// Cause 兼容 github.com/pkg/errors 的 Cause 链
func (e *PricingError) Cause() error { return e.Err }

func newPricingError(itemID int64, err error) *PricingError {
	return &PricingError{ItemID: itemID, Err: err}
}
